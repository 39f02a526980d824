package mcpsession_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/SiddharthSirohi/mclippy/internal/mcpsession"
	"github.com/SiddharthSirohi/mclippy/internal/mcpsession/retry"
)

func newTestClient(t *testing.T, s *mcpsession.Session) *mcpsession.Client {
	t.Helper()
	return mcpsession.NewClient(mcpsession.ClientConfig{
		Session: s,
		App:     "gmail",
		UserID:  "default",
		Logger:  testLogger(),
		Policy:  retry.Policy{MaxAttempts: 3, Pause: time.Millisecond},
	})
}

func TestClient_SuccessPassesThroughPayload(t *testing.T) {
	d := newFakeDialer("GMAIL_FETCH_EMAILS")
	s := newTestSession(t, d, nil)
	c := newTestClient(t, s)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	d.last().handler = func(name string, args map[string]any) (*mcp.CallToolResult, error) {
		return successResult(`{"messages": [{"id": "m1"}]}`), nil
	}

	out := c.CallTool(context.Background(), "GMAIL_FETCH_EMAILS", map[string]any{"query": "is:unread"})
	if out.Kind != mcpsession.OutcomeSuccess {
		t.Fatalf("Expected success, got %s (%s)", out.Kind, out.Message)
	}
	if len(out.Payload) == 0 {
		t.Error("Expected a payload on success")
	}
}

func TestClient_UnknownToolFailsWithoutInvocation(t *testing.T) {
	d := newFakeDialer("GMAIL_FETCH_EMAILS")
	s := newTestSession(t, d, nil)
	c := newTestClient(t, s)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	out := c.CallTool(context.Background(), "GOOGLECALENDAR_FIND_EVENT", nil)
	if out.Kind != mcpsession.OutcomeToolUnavailable {
		t.Fatalf("Expected tool_unavailable, got %s", out.Kind)
	}
	_, _, callCalls, _ := d.last().counts()
	if callCalls != 0 {
		t.Errorf("Expected zero tool invocations, got %d", callCalls)
	}
	if d.dials() != 1 {
		t.Errorf("Expected no reconnect attempts, got %d dials", d.dials())
	}
}

func TestClient_ConnectFailureReturnsWithoutRetry(t *testing.T) {
	d := newFakeDialer("GMAIL_FETCH_EMAILS")
	d.dialErr = errors.New("connection refused")
	s := newTestSession(t, d, nil)
	c := newTestClient(t, s)

	out := c.CallTool(context.Background(), "GMAIL_FETCH_EMAILS", nil)
	if out.Kind != mcpsession.OutcomeTransportError {
		t.Fatalf("Expected transport_error, got %s (%s)", out.Kind, out.Message)
	}
	if d.attempts() != 1 {
		t.Errorf("Expected a single dial when the session cannot connect, got %d", d.attempts())
	}
}

func TestClient_RetriesTransportFaultsWithReconnect(t *testing.T) {
	d := newFakeDialer("GMAIL_FETCH_EMAILS")
	d.next = func() *fakeTransport {
		return &fakeTransport{
			tools: []string{"GMAIL_FETCH_EMAILS"},
			handler: func(string, map[string]any) (*mcp.CallToolResult, error) {
				return nil, errors.New("connection closed")
			},
		}
	}
	s := newTestSession(t, d, nil)
	c := newTestClient(t, s)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	out := c.CallTool(context.Background(), "GMAIL_FETCH_EMAILS", nil)
	if out.Kind != mcpsession.OutcomeTransportError {
		t.Fatalf("Expected transport_error after exhausted retries, got %s", out.Kind)
	}
	if d.dials() != 3 {
		t.Errorf("Expected 3 connections for 3 attempts, got %d", d.dials())
	}
}

func TestClient_RecoversOnSecondAttempt(t *testing.T) {
	d := newFakeDialer("GMAIL_FETCH_EMAILS")
	attempt := 0
	d.next = func() *fakeTransport {
		return &fakeTransport{
			tools: []string{"GMAIL_FETCH_EMAILS"},
			handler: func(string, map[string]any) (*mcp.CallToolResult, error) {
				attempt++
				if attempt == 1 {
					return nil, errors.New("connection reset")
				}
				return successResult(`{"messages": []}`), nil
			},
		}
	}
	s := newTestSession(t, d, nil)
	c := newTestClient(t, s)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	out := c.CallTool(context.Background(), "GMAIL_FETCH_EMAILS", nil)
	if out.Kind != mcpsession.OutcomeSuccess {
		t.Fatalf("Expected recovery on retry, got %s (%s)", out.Kind, out.Message)
	}
	if d.dials() != 2 {
		t.Errorf("Expected one reconnect, got %d dials", d.dials())
	}
}

func TestClient_ApplicationErrorIsNeverRetried(t *testing.T) {
	d := newFakeDialer("GMAIL_FETCH_EMAILS")
	s := newTestSession(t, d, nil)
	c := newTestClient(t, s)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	d.last().handler = func(string, map[string]any) (*mcp.CallToolResult, error) {
		return failureResult("Invalid query parameter"), nil
	}

	out := c.CallTool(context.Background(), "GMAIL_FETCH_EMAILS", nil)
	if out.Kind != mcpsession.OutcomeApplicationError {
		t.Fatalf("Expected application_error, got %s", out.Kind)
	}
	_, _, callCalls, _ := d.last().counts()
	if callCalls != 1 {
		t.Errorf("Expected exactly 1 invocation, got %d", callCalls)
	}
	if d.dials() != 1 {
		t.Errorf("Expected no reconnects for an application error, got %d dials", d.dials())
	}
}

func TestClient_AuthorizationRequiredCarriesRedirectURL(t *testing.T) {
	const grantURL = "https://backend.composio.dev/api/v3/s/abc123"
	d := newFakeDialer("GMAIL_FETCH_EMAILS", "COMPOSIO_INITIATE_CONNECTION")
	s := newTestSession(t, d, nil)
	c := newTestClient(t, s)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	d.last().handler = func(name string, args map[string]any) (*mcp.CallToolResult, error) {
		if name == "COMPOSIO_INITIATE_CONNECTION" {
			if args["tool"] != "gmail" {
				t.Errorf("Expected initiate connection args for gmail, got %v", args)
			}
			return successResult(fmt.Sprintf(`{"response_data": {"redirect_url": %q}}`, grantURL)), nil
		}
		return failureResult("Could not find a connection with app='gmail' and entity='default'"), nil
	}

	out := c.CallTool(context.Background(), "GMAIL_FETCH_EMAILS", nil)
	if out.Kind != mcpsession.OutcomeAuthorizationRequired {
		t.Fatalf("Expected authorization_required, got %s (%s)", out.Kind, out.Message)
	}
	if out.RedirectURL != grantURL {
		t.Errorf("Expected redirect URL %q, got %q", grantURL, out.RedirectURL)
	}
	if d.dials() != 1 {
		t.Errorf("Expected no reconnects for authorization failure, got %d dials", d.dials())
	}
}

func TestClient_InitiateAuthorizationFallbackScan(t *testing.T) {
	const grantURL = "https://backend.composio.dev/api/v3/s/xyz789"
	d := newFakeDialer("COMPOSIO_INITIATE_CONNECTION")
	s := newTestSession(t, d, nil)
	c := newTestClient(t, s)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	// Response that buries the URL in free text instead of the documented
	// response shape.
	d.last().handler = func(string, map[string]any) (*mcp.CallToolResult, error) {
		return successResult(fmt.Sprintf(`{"message": "visit %s to authorize"}`, grantURL)), nil
	}

	url, err := c.InitiateAuthorization(context.Background())
	if err != nil {
		t.Fatalf("InitiateAuthorization failed: %v", err)
	}
	if url != grantURL {
		t.Errorf("Expected %q, got %q", grantURL, url)
	}
}

func TestClient_StartAndClose(t *testing.T) {
	d := newFakeDialer("TOOL_A")
	s := newTestSession(t, d, nil)
	c := mcpsession.NewClient(mcpsession.ClientConfig{
		Session:   s,
		App:       "gmail",
		UserID:    "default",
		Logger:    testLogger(),
		KeepAlive: true,
		Supervisor: mcpsession.SupervisorConfig{
			KeepAliveInterval:     10 * time.Millisecond,
			RotationCheckInterval: 10 * time.Millisecond,
		},
	})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if s.State() != mcpsession.StateConnected {
		t.Errorf("Expected connected after Start, got %s", s.State())
	}

	c.Close()
	if s.State() != mcpsession.StateDisconnected {
		t.Errorf("Expected disconnected after Close, got %s", s.State())
	}
}

func TestClient_StartWithoutKeepAliveSkipsSupervisor(t *testing.T) {
	d := newFakeDialer("TOOL_A")
	s := newTestSession(t, d, func(cfg *mcpsession.SessionConfig) {
		cfg.MaxConnectionAge = 10 * time.Millisecond
	})
	c := mcpsession.NewClient(mcpsession.ClientConfig{
		Session: s,
		App:     "gmail",
		UserID:  "default",
		Logger:  testLogger(),
		Supervisor: mcpsession.SupervisorConfig{
			KeepAliveInterval:     5 * time.Millisecond,
			RotationCheckInterval: 5 * time.Millisecond,
		},
	})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer c.Close()

	// Well past the rotation age. With no supervisor running, nothing
	// rotates the connection in the background.
	time.Sleep(50 * time.Millisecond)
	if got := s.ConnectionID(); got != 1 {
		t.Errorf("Expected connection to stay put without keep-alive, got connection_id %d", got)
	}
	if d.dials() != 1 {
		t.Errorf("Expected a single dial, got %d", d.dials())
	}
}
