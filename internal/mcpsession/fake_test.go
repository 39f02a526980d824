package mcpsession_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/SiddharthSirohi/mclippy/internal/mcpsession"
)

// fakeTransport implements mcpsession.Transport with call counters so
// tests can assert how often each transport operation ran.
type fakeTransport struct {
	mu       sync.Mutex
	tools    []string
	initErr  error
	listErr  error
	listErrs []error // consumed one per ListTools call before listErr applies
	handler  func(name string, args map[string]any) (*mcp.CallToolResult, error)

	initCalls  int
	listCalls  int
	callCalls  int
	closeCalls int
}

func (f *fakeTransport) Initialize(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	return f.initErr
}

func (f *fakeTransport) ListTools(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if len(f.listErrs) > 0 {
		err := f.listErrs[0]
		f.listErrs = f.listErrs[1:]
		if err != nil {
			return nil, err
		}
	} else if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]string(nil), f.tools...), nil
}

func (f *fakeTransport) CallTool(_ context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	f.mu.Lock()
	handler := f.handler
	f.callCalls++
	f.mu.Unlock()
	if handler == nil {
		return successResult(`{}`), nil
	}
	return handler(name, args)
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

func (f *fakeTransport) setListErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

func (f *fakeTransport) counts() (initCalls, listCalls, callCalls, closeCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initCalls, f.listCalls, f.callCalls, f.closeCalls
}

// fakeDialer produces fakeTransports and counts dial attempts.
type fakeDialer struct {
	mu         sync.Mutex
	delay      time.Duration
	dialErr    error
	dialCalls  int
	next       func() *fakeTransport
	transports []*fakeTransport
}

func newFakeDialer(tools ...string) *fakeDialer {
	return &fakeDialer{
		next: func() *fakeTransport {
			return &fakeTransport{tools: tools}
		},
	}
}

func (d *fakeDialer) dial(_ context.Context, _ string) (mcpsession.Transport, error) {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialCalls++
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	t := d.next()
	d.transports = append(d.transports, t)
	return t, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.transports)
}

// attempts counts every dial, including ones that failed.
func (d *fakeDialer) attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dialCalls
}

func (d *fakeDialer) last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T, d *fakeDialer, mutate func(*mcpsession.SessionConfig)) *mcpsession.Session {
	t.Helper()
	cfg := mcpsession.SessionConfig{
		Label:    "test",
		Endpoint: "http://example.invalid/sse",
		Dialer:   d.dial,
		Logger:   testLogger(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return mcpsession.NewSession(cfg)
}

func successResult(data string) *mcp.CallToolResult {
	return mcp.NewToolResultText(`{"successful": true, "data": ` + data + `}`)
}

func failureResult(msg string) *mcp.CallToolResult {
	return mcp.NewToolResultText(fmt.Sprintf(`{"successful": false, "error": %q, "data": null}`, msg))
}
