package retry_test

import (
	"testing"
	"time"

	"github.com/SiddharthSirohi/mclippy/internal/mcpsession/retry"
)

func TestDefaultPolicy(t *testing.T) {
	p := retry.DefaultPolicy()
	if p.MaxAttempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", p.MaxAttempts)
	}
	if p.Pause != time.Second {
		t.Errorf("Expected 1s pause, got %s", p.Pause)
	}
}

func TestPolicy_ShouldRetry(t *testing.T) {
	p := retry.Policy{MaxAttempts: 3, Pause: time.Second}

	if !p.ShouldRetry(1) {
		t.Error("Expected retry after first attempt")
	}
	if !p.ShouldRetry(2) {
		t.Error("Expected retry after second attempt")
	}
	if p.ShouldRetry(3) {
		t.Error("Did not expect retry after final attempt")
	}

	none := retry.NoRetryPolicy()
	if none.ShouldRetry(1) {
		t.Error("Expected no retries from NoRetryPolicy")
	}
}

func TestIsConnectionLost(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"connection closed", true},
		{"rpc error: connection reset by peer", true},
		{"write: broken pipe", true},
		{"unexpected EOF", true},
		{"connection refused", true},
		{"use of closed network connection", true},
		{"Invalid query parameter", false},
		{"rate limit exceeded", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := retry.IsConnectionLost(tt.msg); got != tt.want {
			t.Errorf("IsConnectionLost(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestIsTimeout(t *testing.T) {
	if !retry.IsTimeout("context deadline exceeded") {
		t.Error("Expected deadline exceeded to count as timeout")
	}
	if retry.IsTimeout("connection closed") {
		t.Error("Did not expect connection closed to count as timeout")
	}
}
