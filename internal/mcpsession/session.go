// Package mcpsession maintains resilient MCP sessions over SSE transports.
// A Session owns one remote endpoint's connection lifecycle; a Supervisor
// keeps it alive and rotates it before the server-side idle cutoff; a
// Client layers tool invocation, retries, and outcome decoding on top.
package mcpsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/SiddharthSirohi/mclippy/internal/config"
)

// State describes the lifecycle state of a session.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// ErrNotConnected is returned when an operation requires a live transport
// and none is established.
var ErrNotConnected = errors.New("session not connected")

// SessionConfig holds configuration for a Session.
type SessionConfig struct {
	Label    string // short name for logs, e.g. "gmail"
	Endpoint string
	Dialer   Dialer
	Logger   *slog.Logger

	// Zero values are replaced with the package defaults.
	StalenessThreshold time.Duration
	MaxConnectionAge   time.Duration
	ConnectWaitTimeout time.Duration
	ConnectWaitPoll    time.Duration
	HealthRetryPause   time.Duration
}

// Session manages one MCP endpoint's connection lifecycle. All methods are
// safe for concurrent use.
type Session struct {
	label    string
	endpoint string
	dial     Dialer
	logger   *slog.Logger

	stalenessThreshold time.Duration
	maxConnectionAge   time.Duration
	connectWaitTimeout time.Duration
	connectWaitPoll    time.Duration
	healthRetryPause   time.Duration

	// mu guards the lifecycle state below. It is never held across
	// network calls; connect-in-progress is signalled through the
	// connecting state instead.
	mu           sync.Mutex
	state        State
	transport    Transport
	connID       int64
	connectedAt  time.Time
	lastActivity time.Time
	tools        map[string]struct{}

	// opMu serializes use of the transport so keep-alive probes and tool
	// calls never interleave on the same stream.
	opMu sync.Mutex
}

// NewSession creates a session for one endpoint. It does not connect.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = DialSSE
	}
	if cfg.StalenessThreshold == 0 {
		cfg.StalenessThreshold = config.DefaultStalenessThreshold
	}
	if cfg.MaxConnectionAge == 0 {
		cfg.MaxConnectionAge = config.DefaultMaxConnectionAge
	}
	if cfg.ConnectWaitTimeout == 0 {
		cfg.ConnectWaitTimeout = config.DefaultConnectWaitTimeout
	}
	if cfg.ConnectWaitPoll == 0 {
		cfg.ConnectWaitPoll = config.DefaultConnectWaitPoll
	}
	if cfg.HealthRetryPause == 0 {
		cfg.HealthRetryPause = config.DefaultHealthRetryPause
	}
	return &Session{
		label:              cfg.Label,
		endpoint:           cfg.Endpoint,
		dial:               cfg.Dialer,
		logger:             cfg.Logger,
		stalenessThreshold: cfg.StalenessThreshold,
		maxConnectionAge:   cfg.MaxConnectionAge,
		connectWaitTimeout: cfg.ConnectWaitTimeout,
		connectWaitPoll:    cfg.ConnectWaitPoll,
		healthRetryPause:   cfg.HealthRetryPause,
		state:              StateDisconnected,
	}
}

// Connect establishes a fresh connection, replacing any existing one. If
// another goroutine is already connecting, Connect waits for that attempt
// instead of starting a second handshake.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnecting {
		s.mu.Unlock()
		return s.waitForConnect(ctx)
	}
	old := s.transport
	s.transport = nil
	s.tools = nil
	s.state = StateConnecting
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	t, err := s.dial(ctx, s.endpoint)
	if err != nil {
		s.failConnect()
		return fmt.Errorf("dial %s: %w", s.label, err)
	}

	if err := t.Initialize(ctx); err != nil {
		_ = t.Close()
		s.failConnect()
		return fmt.Errorf("initialize %s: %w", s.label, err)
	}

	names, err := t.ListTools(ctx)
	if err != nil {
		_ = t.Close()
		s.failConnect()
		return fmt.Errorf("list tools %s: %w", s.label, err)
	}

	now := time.Now()
	s.mu.Lock()
	s.transport = t
	s.state = StateConnected
	s.connID++
	s.connectedAt = now
	s.lastActivity = now
	s.tools = make(map[string]struct{}, len(names))
	for _, name := range names {
		s.tools[name] = struct{}{}
	}
	id := s.connID
	s.mu.Unlock()

	s.logger.Info("Session connected",
		"session", s.label,
		"connection_id", id,
		"tools", len(names))
	return nil
}

func (s *Session) failConnect() {
	s.mu.Lock()
	s.state = StateDisconnected
	s.mu.Unlock()
}

// waitForConnect polls until an in-flight connection attempt resolves or
// the wait deadline passes.
func (s *Session) waitForConnect(ctx context.Context) error {
	deadline := time.Now().Add(s.connectWaitTimeout)
	for {
		s.mu.Lock()
		state := s.state
		s.mu.Unlock()

		switch state {
		case StateConnected:
			return nil
		case StateDisconnected:
			return fmt.Errorf("%s: concurrent connection attempt failed", s.label)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%s: timed out waiting for connection attempt", s.label)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.connectWaitPoll):
		}
	}
}

// WithSession runs fn against a freshly connected session and tears the
// connection down when fn returns, whatever the exit path. It is the
// batch shape: connect, do the work, disconnect.
func (s *Session) WithSession(ctx context.Context, fn func(*Session) error) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	defer s.Disconnect()
	return fn(s)
}

// EnsureConnected guarantees a usable connection, reconnecting when the
// session is down, idle past the staleness threshold, or older than the
// rotation cutoff. Calling it twice on a healthy session performs no
// second handshake.
func (s *Session) EnsureConnected(ctx context.Context) error {
	s.mu.Lock()
	state := s.state
	stale := state == StateConnected && time.Since(s.lastActivity) > s.stalenessThreshold
	aged := state == StateConnected && time.Since(s.connectedAt) > s.maxConnectionAge
	s.mu.Unlock()

	switch {
	case state == StateConnecting:
		return s.waitForConnect(ctx)
	case state == StateConnected && !stale && !aged:
		return nil
	case stale:
		s.logger.Info("Session idle past staleness threshold, reconnecting",
			"session", s.label)
	case aged:
		s.logger.Debug("Session past rotation age, reconnecting",
			"session", s.label)
	}
	return s.Connect(ctx)
}

// Probe performs a single lightweight liveness check on the current
// transport without reconnecting. Used by the supervisor's keep-alive
// loop; callers count failures themselves.
func (s *Session) Probe(ctx context.Context) error {
	t, ok := s.currentTransport()
	if !ok {
		return ErrNotConnected
	}
	s.opMu.Lock()
	_, err := t.ListTools(ctx)
	s.opMu.Unlock()
	if err != nil {
		return err
	}
	s.markActivity()
	return nil
}

// HealthCheck verifies the session end to end, reconnecting as needed and
// retrying once after a pause before giving up.
func (s *Session) HealthCheck(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.healthRetryPause):
			}
		}

		if err := s.EnsureConnected(ctx); err != nil {
			lastErr = err
			continue
		}
		if err := s.Probe(ctx); err != nil {
			lastErr = err
			s.MarkLost("health check probe failed", err)
			continue
		}
		return nil
	}
	return fmt.Errorf("%s: health check failed: %w", s.label, lastErr)
}

// CallTool invokes a tool on the current transport. It does not retry or
// decode; Client layers both on top.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	t, ok := s.currentTransport()
	if !ok {
		return nil, ErrNotConnected
	}
	s.opMu.Lock()
	result, err := t.CallTool(ctx, name, args)
	s.opMu.Unlock()
	if err == nil {
		s.markActivity()
	}
	return result, err
}

// Disconnect tears the connection down. Safe to call repeatedly and in
// any state.
func (s *Session) Disconnect() {
	s.mu.Lock()
	t := s.transport
	wasConnected := s.state != StateDisconnected || t != nil
	s.transport = nil
	s.tools = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	if t != nil {
		if err := t.Close(); err != nil {
			s.logger.Debug("Transport close error", "session", s.label, "error", err)
		}
	}
	if wasConnected {
		s.logger.Info("Session disconnected", "session", s.label)
	}
}

// MarkLost records that the transport died underneath us. The dead
// transport is closed best-effort; the next EnsureConnected reconnects.
func (s *Session) MarkLost(reason string, err error) {
	s.mu.Lock()
	t := s.transport
	s.transport = nil
	s.tools = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	if t != nil {
		_ = t.Close()
	}
	s.logger.Warn("Session connection lost",
		"session", s.label,
		"reason", reason,
		"error", err)
}

// HasTool reports whether the connected endpoint advertises the named
// tool. Always false while disconnected.
func (s *Session) HasTool(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		return false
	}
	_, ok := s.tools[name]
	return ok
}

// Tools returns the advertised tool names of the current connection.
func (s *Session) Tools() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	return names
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConnectionID returns the monotonically increasing id of the current
// connection. It increments on every successful Connect.
func (s *Session) ConnectionID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connID
}

// Age returns how long the current connection has been up, or zero while
// disconnected.
func (s *Session) Age() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		return 0
	}
	return time.Since(s.connectedAt)
}

// Expired reports whether the current connection is older than the
// rotation cutoff.
func (s *Session) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateConnected && time.Since(s.connectedAt) > s.maxConnectionAge
}

// Label returns the session's log label.
func (s *Session) Label() string { return s.label }

func (s *Session) currentTransport() (Transport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected || s.transport == nil {
		return nil, false
	}
	return s.transport, true
}

func (s *Session) markActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}
