// Package retry defines the retry policy for remote tool invocations and
// the error classification that decides when a retry is worthwhile.
package retry

import (
	"strings"
	"time"
)

// Policy defines how tool invocations are retried on transport failure.
type Policy struct {
	MaxAttempts int           // Total attempts including the first (1 = no retries)
	Pause       time.Duration // Fixed pause between attempts
}

// DefaultPolicy returns the retry policy for tool invocations.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Pause:       1 * time.Second,
	}
}

// NoRetryPolicy returns a policy that disables retries.
func NoRetryPolicy() Policy {
	return Policy{MaxAttempts: 1, Pause: 0}
}

// ShouldRetry reports whether another attempt is allowed after the given
// number of completed attempts.
func (p Policy) ShouldRetry(attempts int) bool {
	return attempts < p.MaxAttempts
}

// IsConnectionLost reports whether a transport error message indicates the
// underlying stream died, as opposed to the call itself being rejected.
// Lost connections are repaired with a reconnect before the next attempt.
func IsConnectionLost(errMsg string) bool {
	return containsAny(errMsg,
		"connection closed",
		"connection reset",
		"connection refused",
		"broken pipe",
		"EOF",
		"stream closed",
		"transport is closing",
		"use of closed network connection",
	)
}

// IsTimeout reports whether a transport error message indicates the call
// timed out rather than the stream dying.
func IsTimeout(errMsg string) bool {
	return containsAny(errMsg,
		"timeout",
		"deadline exceeded",
	)
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
