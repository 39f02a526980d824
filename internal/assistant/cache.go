package assistant

import (
	"sync"
	"time"

	"github.com/SiddharthSirohi/mclippy/internal/config"
	"github.com/SiddharthSirohi/mclippy/internal/llm"
)

// AnalysisCache remembers email verdicts across cycles so a message that
// stays unread is not re-sent to the model every run. Entries expire on
// a TTL and are swept by a background loop.
type AnalysisCache struct {
	entries  map[string]*cachedAnalysis
	mu       sync.RWMutex
	ttl      time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

type cachedAnalysis struct {
	analysis  llm.EmailAnalysis
	expiresAt time.Time
}

// NewAnalysisCache creates a cache with the given TTL and starts its
// cleanup loop. A zero or negative TTL falls back to the default.
func NewAnalysisCache(ttl time.Duration) *AnalysisCache {
	if ttl <= 0 {
		ttl = config.DefaultAnalysisCacheTTL
	}
	c := &AnalysisCache{
		entries: make(map[string]*cachedAnalysis),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Store caches the verdict for one message.
func (c *AnalysisCache) Store(messageID string, analysis llm.EmailAnalysis) {
	if messageID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[messageID] = &cachedAnalysis{
		analysis:  analysis,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Get returns the cached verdict for a message, if present and fresh.
func (c *AnalysisCache) Get(messageID string) (llm.EmailAnalysis, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cached, ok := c.entries[messageID]
	if !ok || time.Now().After(cached.expiresAt) {
		return llm.EmailAnalysis{}, false
	}
	return cached.analysis, true
}

// Len returns the number of entries, including any not yet swept.
func (c *AnalysisCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stop ends the cleanup loop. Safe to call more than once.
func (c *AnalysisCache) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *AnalysisCache) cleanupLoop() {
	ticker := time.NewTicker(c.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *AnalysisCache) removeExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, cached := range c.entries {
		if now.After(cached.expiresAt) {
			delete(c.entries, id)
		}
	}
}
