package mcpsession

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/SiddharthSirohi/mclippy/internal/config"
)

// SupervisorConfig holds configuration for a Supervisor.
type SupervisorConfig struct {
	Session *Session
	Logger  *slog.Logger

	// Zero values are replaced with the package defaults.
	KeepAliveInterval     time.Duration
	RotationCheckInterval time.Duration
	FailureLimit          int
}

// Supervisor runs two background loops for one session: a keep-alive loop
// that probes the transport and declares the connection lost after
// consecutive failures, and a rotation loop that replaces connections
// before the server's idle cutoff can kill them mid-call.
type Supervisor struct {
	session *Session
	logger  *slog.Logger

	keepAliveInterval     time.Duration
	rotationCheckInterval time.Duration
	failureLimit          int

	mu            sync.Mutex
	stopChan      chan struct{}
	keepAliveDone chan struct{}
	rotateDone    chan struct{}
	started       bool
	stopped       bool
}

const (
	probeTimeout  = 5 * time.Second
	rotateTimeout = 15 * time.Second
)

// NewSupervisor creates a supervisor for the given session. It does not
// start the loops.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.KeepAliveInterval == 0 {
		cfg.KeepAliveInterval = config.DefaultKeepAliveInterval
	}
	if cfg.RotationCheckInterval == 0 {
		cfg.RotationCheckInterval = config.DefaultRotationCheckInterval
	}
	if cfg.FailureLimit == 0 {
		cfg.FailureLimit = config.DefaultKeepAliveFailureLimit
	}
	return &Supervisor{
		session:               cfg.Session,
		logger:                cfg.Logger,
		keepAliveInterval:     cfg.KeepAliveInterval,
		rotationCheckInterval: cfg.RotationCheckInterval,
		failureLimit:          cfg.FailureLimit,
		stopChan:              make(chan struct{}),
		keepAliveDone:         make(chan struct{}),
		rotateDone:            make(chan struct{}),
	}
}

// Start launches the keep-alive and rotation loops. Safe to call
// repeatedly and from concurrent goroutines; only the first call starts
// the loops.
func (sv *Supervisor) Start() {
	sv.mu.Lock()
	if sv.started {
		sv.mu.Unlock()
		return
	}
	sv.started = true
	sv.mu.Unlock()

	go sv.keepAliveLoop()
	go sv.rotationLoop()
	sv.logger.Debug("Supervisor started",
		"session", sv.session.Label(),
		"keep_alive_interval", sv.keepAliveInterval,
		"rotation_check_interval", sv.rotationCheckInterval)
}

// Stop signals both loops and waits for them to exit. Safe to call
// repeatedly and from concurrent goroutines.
func (sv *Supervisor) Stop() {
	sv.mu.Lock()
	if !sv.started {
		sv.mu.Unlock()
		return
	}
	if !sv.stopped {
		sv.stopped = true
		close(sv.stopChan)
	}
	sv.mu.Unlock()

	<-sv.keepAliveDone
	<-sv.rotateDone
	sv.logger.Debug("Supervisor stopped", "session", sv.session.Label())
}

// keepAliveLoop probes the session on a fixed interval. The probe doubles
// as activity, so a supervised session never trips the staleness
// threshold on its own.
func (sv *Supervisor) keepAliveLoop() {
	defer close(sv.keepAliveDone)

	ticker := time.NewTicker(sv.keepAliveInterval)
	defer ticker.Stop()

	consecutiveFailures := 0

	for {
		select {
		case <-sv.stopChan:
			return

		case <-ticker.C:
			if sv.session.State() != StateConnected {
				consecutiveFailures = 0
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
			err := sv.session.Probe(ctx)
			cancel()

			if err == nil {
				consecutiveFailures = 0
				continue
			}

			consecutiveFailures++
			sv.logger.Warn("Keep-alive probe failed",
				"session", sv.session.Label(),
				"consecutive_failures", consecutiveFailures,
				"error", err)

			if consecutiveFailures >= sv.failureLimit {
				sv.session.MarkLost("keep-alive failure limit reached", err)
				consecutiveFailures = 0
			}
		}
	}
}

// rotationLoop checks connection age and replaces connections that are
// within reach of the server's idle cutoff.
func (sv *Supervisor) rotationLoop() {
	defer close(sv.rotateDone)

	ticker := time.NewTicker(sv.rotationCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sv.stopChan:
			return

		case <-ticker.C:
			if !sv.session.Expired() {
				continue
			}

			sv.logger.Debug("Rotating aged connection",
				"session", sv.session.Label(),
				"age", sv.session.Age(),
				"connection_id", sv.session.ConnectionID())

			ctx, cancel := context.WithTimeout(context.Background(), rotateTimeout)
			err := sv.session.Connect(ctx)
			cancel()

			if err != nil {
				// Leave the session disconnected; the next call repairs it.
				sv.logger.Warn("Connection rotation failed",
					"session", sv.session.Label(),
					"error", err)
			}
		}
	}
}
