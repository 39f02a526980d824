package mcpsession_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SiddharthSirohi/mclippy/internal/mcpsession"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestSupervisor_MarksLostAfterConsecutiveProbeFailures(t *testing.T) {
	d := newFakeDialer("TOOL_A")
	s := newTestSession(t, d, func(cfg *mcpsession.SessionConfig) {
		cfg.MaxConnectionAge = time.Hour
		cfg.StalenessThreshold = time.Hour
	})
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	d.last().setListErr(errors.New("connection closed"))

	sv := mcpsession.NewSupervisor(mcpsession.SupervisorConfig{
		Session:               s,
		Logger:                testLogger(),
		KeepAliveInterval:     10 * time.Millisecond,
		RotationCheckInterval: time.Hour,
		FailureLimit:          2,
	})
	sv.Start()
	defer sv.Stop()

	if !waitFor(t, time.Second, func() bool {
		return s.State() == mcpsession.StateDisconnected
	}) {
		t.Fatal("Expected session to be marked disconnected after consecutive probe failures")
	}
}

func TestSupervisor_SingleProbeFailureIsTolerated(t *testing.T) {
	d := newFakeDialer("TOOL_A")
	s := newTestSession(t, d, func(cfg *mcpsession.SessionConfig) {
		cfg.MaxConnectionAge = time.Hour
		cfg.StalenessThreshold = time.Hour
	})
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	// One failed probe followed by healthy ones.
	d.last().mu.Lock()
	d.last().listErrs = []error{errors.New("connection closed")}
	d.last().mu.Unlock()

	sv := mcpsession.NewSupervisor(mcpsession.SupervisorConfig{
		Session:               s,
		Logger:                testLogger(),
		KeepAliveInterval:     10 * time.Millisecond,
		RotationCheckInterval: time.Hour,
		FailureLimit:          2,
	})
	sv.Start()
	defer sv.Stop()

	time.Sleep(80 * time.Millisecond)
	if s.State() != mcpsession.StateConnected {
		t.Errorf("Expected single probe failure to be tolerated, got state %s", s.State())
	}
}

func TestSupervisor_RotatesAgedConnection(t *testing.T) {
	d := newFakeDialer("TOOL_A")
	s := newTestSession(t, d, func(cfg *mcpsession.SessionConfig) {
		cfg.MaxConnectionAge = 20 * time.Millisecond
		cfg.StalenessThreshold = time.Hour
	})
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	sv := mcpsession.NewSupervisor(mcpsession.SupervisorConfig{
		Session:               s,
		Logger:                testLogger(),
		KeepAliveInterval:     time.Hour,
		RotationCheckInterval: 10 * time.Millisecond,
		FailureLimit:          2,
	})
	sv.Start()
	defer sv.Stop()

	if !waitFor(t, time.Second, func() bool {
		return s.ConnectionID() >= 2
	}) {
		t.Fatal("Expected supervisor to rotate the aged connection")
	}
	if s.State() != mcpsession.StateConnected {
		t.Errorf("Expected session to stay connected across rotation, got %s", s.State())
	}
}

func TestSupervisor_StopIsIdempotent(t *testing.T) {
	d := newFakeDialer("TOOL_A")
	s := newTestSession(t, d, nil)

	sv := mcpsession.NewSupervisor(mcpsession.SupervisorConfig{
		Session:               s,
		Logger:                testLogger(),
		KeepAliveInterval:     10 * time.Millisecond,
		RotationCheckInterval: 10 * time.Millisecond,
	})
	sv.Start()
	sv.Stop()
	sv.Stop()
}

func TestSupervisor_ConcurrentStartAndStop(t *testing.T) {
	d := newFakeDialer("TOOL_A")
	s := newTestSession(t, d, nil)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	sv := mcpsession.NewSupervisor(mcpsession.SupervisorConfig{
		Session:               s,
		Logger:                testLogger(),
		KeepAliveInterval:     5 * time.Millisecond,
		RotationCheckInterval: 5 * time.Millisecond,
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sv.Start()
		}()
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sv.Stop()
		}()
	}
	wg.Wait()
}

func TestSupervisor_StopBeforeStartIsSafe(t *testing.T) {
	d := newFakeDialer("TOOL_A")
	s := newTestSession(t, d, nil)
	sv := mcpsession.NewSupervisor(mcpsession.SupervisorConfig{
		Session: s,
		Logger:  testLogger(),
	})

	// Must return without blocking on loops that never ran.
	sv.Stop()
}
