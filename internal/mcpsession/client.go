package mcpsession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/SiddharthSirohi/mclippy/internal/mcpsession/retry"
)

const (
	// authInitToolName is the broker helper tool that starts a fresh
	// authorization grant for an app.
	authInitToolName = "COMPOSIO_INITIATE_CONNECTION"

	// redirectURLPrefix anchors the fallback scan for grant URLs when the
	// helper response does not use the documented shape.
	redirectURLPrefix = "https://backend.composio.dev/api/v3/s/"
)

// ClientConfig holds configuration for a Client.
type ClientConfig struct {
	Session *Session
	App     string // broker app slug, e.g. "gmail"
	UserID  string
	Logger  *slog.Logger

	// KeepAlive starts the session's supervisor on Start. Persistent
	// shapes (the chat loop) want it; batch shapes that scope work via
	// Session.WithSession leave it off.
	KeepAlive bool

	// Zero values are replaced with the package defaults.
	Policy     retry.Policy
	Supervisor SupervisorConfig
}

// Client is the tool invocation facade for one session. It layers tool
// availability checks, retry on transport faults, and outcome decoding on
// top of the raw session, and owns the session's supervisor.
type Client struct {
	session    *Session
	supervisor *Supervisor
	keepAlive  bool
	policy     retry.Policy
	classifier *ErrorClassifier
	logger     *slog.Logger
	app        string
}

// NewClient creates a client over the given session.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = retry.DefaultPolicy()
	}
	svCfg := cfg.Supervisor
	svCfg.Session = cfg.Session
	if svCfg.Logger == nil {
		svCfg.Logger = cfg.Logger
	}
	return &Client{
		session:    cfg.Session,
		supervisor: NewSupervisor(svCfg),
		keepAlive:  cfg.KeepAlive,
		policy:     cfg.Policy,
		classifier: &ErrorClassifier{App: cfg.App, UserID: cfg.UserID},
		logger:     cfg.Logger,
		app:        cfg.App,
	}
}

// Start connects the session and, when keep-alive is enabled, launches
// its supervisor.
func (c *Client) Start(ctx context.Context) error {
	if err := c.session.Connect(ctx); err != nil {
		return err
	}
	if c.keepAlive {
		c.supervisor.Start()
	}
	return nil
}

// Close stops the supervisor and disconnects the session.
func (c *Client) Close() {
	c.supervisor.Stop()
	c.session.Disconnect()
}

// Session returns the underlying session.
func (c *Client) Session() *Session { return c.session }

// CallTool invokes a remote tool and returns a decoded Outcome. Transport
// faults are retried with a disconnect and reconnect between attempts;
// application errors and authorization failures are returned on the first
// occurrence. A tool the endpoint does not advertise fails without any
// invocation being attempted.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) Outcome {
	var out Outcome
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			c.logger.Info("Retrying tool call",
				"session", c.session.Label(),
				"tool", name,
				"attempt", attempt,
				"max_attempts", c.policy.MaxAttempts)
			select {
			case <-ctx.Done():
				return transportError(ctx.Err().Error())
			case <-time.After(c.policy.Pause):
			}
		}

		if err := c.session.EnsureConnected(ctx); err != nil {
			// No session, no attempt: reconnect failures are reported
			// without burning the remaining attempts on redials.
			return transportError(err.Error())
		}

		if !c.session.HasTool(name) {
			c.logger.Warn("Tool not advertised by endpoint",
				"session", c.session.Label(),
				"tool", name)
			return Outcome{
				Kind:    OutcomeToolUnavailable,
				Message: fmt.Sprintf("tool %q not available on %s", name, c.session.Label()),
			}
		}

		result, err := c.session.CallTool(ctx, name, args)
		out = DecodeToolResult(result, err, c.classifier)

		switch out.Kind {
		case OutcomeSuccess, OutcomeApplicationError:
			return out
		case OutcomeAuthorizationRequired:
			return c.attachRedirectURL(ctx, out)
		}

		// Transport fault. Tear the stream down so the next attempt gets
		// a fresh connection.
		c.logger.Warn("Tool call transport fault",
			"session", c.session.Label(),
			"tool", name,
			"attempt", attempt,
			"error", out.Message)
		if retry.IsConnectionLost(out.Message) {
			c.session.MarkLost("tool call transport fault", errors.New(out.Message))
		} else {
			c.session.Disconnect()
		}
	}
	return out
}

// attachRedirectURL asks the broker for a grant URL so the caller can
// present it to the user. Failure to obtain one does not mask the
// authorization outcome.
func (c *Client) attachRedirectURL(ctx context.Context, out Outcome) Outcome {
	url, err := c.InitiateAuthorization(ctx)
	if err != nil {
		c.logger.Warn("Could not obtain authorization URL",
			"session", c.session.Label(),
			"app", c.app,
			"error", err)
		return out
	}
	out.RedirectURL = url
	return out
}

// InitiateAuthorization starts a fresh authorization grant for the
// client's app and returns the URL the user must open to complete it.
func (c *Client) InitiateAuthorization(ctx context.Context) (string, error) {
	if err := c.session.EnsureConnected(ctx); err != nil {
		return "", err
	}
	if !c.session.HasTool(authInitToolName) {
		return "", fmt.Errorf("endpoint %s does not expose %s", c.session.Label(), authInitToolName)
	}

	result, err := c.session.CallTool(ctx, authInitToolName, map[string]any{"tool": c.app})
	if err != nil {
		return "", fmt.Errorf("initiate connection: %w", err)
	}

	out := DecodeToolResult(result, nil, nil)
	if !out.Success() {
		return "", fmt.Errorf("initiate connection: %s", out.Message)
	}

	url, ok := extractRedirectURL(out.Payload)
	if !ok {
		return "", errors.New("initiate connection response carried no redirect URL")
	}
	c.logger.Info("Authorization grant started",
		"session", c.session.Label(),
		"app", c.app)
	return url, nil
}

// extractRedirectURL pulls the grant URL out of an initiate-connection
// payload. It tries the documented response shape first, then falls back
// to scanning for the broker's grant URL prefix.
func extractRedirectURL(payload json.RawMessage) (string, bool) {
	var doc struct {
		ResponseData struct {
			RedirectURL string `json:"redirect_url"`
		} `json:"response_data"`
	}
	if err := json.Unmarshal(payload, &doc); err == nil && doc.ResponseData.RedirectURL != "" {
		return doc.ResponseData.RedirectURL, true
	}

	raw := string(payload)
	idx := strings.Index(raw, redirectURLPrefix)
	if idx < 0 {
		return "", false
	}
	rest := raw[idx:]
	if end := strings.IndexAny(rest, "\"'\\ \n}"); end >= 0 {
		rest = rest[:end]
	}
	return rest, rest != ""
}
