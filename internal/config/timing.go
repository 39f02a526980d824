package config

import "time"

// Default timing configurations used throughout the assistant.
//
// The remote endpoint silently drops idle SSE connections somewhere past
// the 60 second mark, and the thresholds below are tuned against that
// observed behavior rather than any documented guarantee. Treat them as
// defaults to re-validate if the remote service changes.
const (
	// DefaultKeepAliveInterval is how often the persistent session probes
	// the endpoint with a capability listing.
	DefaultKeepAliveInterval = 8 * time.Second

	// DefaultRotationCheckInterval is how often the supervisor checks
	// connection age for preemptive rotation.
	DefaultRotationCheckInterval = 5 * time.Second

	// DefaultMaxConnectionAge is the age at which a connection is rotated
	// preemptively, before the remote idle timeout can drop it mid-call.
	DefaultMaxConnectionAge = 50 * time.Second

	// DefaultStalenessThreshold is how long a session may sit idle before
	// EnsureConnected performs a full reconnect instead of a no-op.
	DefaultStalenessThreshold = 4 * time.Minute

	// DefaultConnectWaitTimeout bounds how long a caller waits for an
	// in-flight connect started by another goroutine.
	DefaultConnectWaitTimeout = 3 * time.Second

	// DefaultConnectWaitPoll is the polling increment while waiting for an
	// in-flight connect.
	DefaultConnectWaitPoll = 100 * time.Millisecond

	// DefaultHealthRetryPause is the pause between the two health probe
	// attempts before a session is declared unhealthy.
	DefaultHealthRetryPause = 1 * time.Second

	// DefaultToolRetryPause is the pause between tool call attempts after
	// a transport fault.
	DefaultToolRetryPause = 1 * time.Second

	// DefaultMaxToolAttempts is the total number of attempts for one tool
	// call before the transport error is surfaced.
	DefaultMaxToolAttempts = 3

	// DefaultKeepAliveFailureLimit is the number of consecutive probe
	// failures after which the supervisor marks the session disconnected.
	DefaultKeepAliveFailureLimit = 2

	// DefaultAnalysisCacheTTL is the time-to-live for cached LLM analyses.
	DefaultAnalysisCacheTTL = 30 * time.Minute

	// DefaultCycleTimeout bounds one full proactive check cycle.
	DefaultCycleTimeout = 5 * time.Minute
)
