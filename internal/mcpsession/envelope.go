package mcpsession

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// OutcomeKind discriminates the decoded result of one remote tool call.
type OutcomeKind string

const (
	// OutcomeSuccess means the tool executed and returned a payload.
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeApplicationError means the tool executed but reported a
	// definitive failure. Never retried.
	OutcomeApplicationError OutcomeKind = "application_error"
	// OutcomeAuthorizationRequired means the user must complete an
	// out-of-band grant before this tool works. Never retried.
	OutcomeAuthorizationRequired OutcomeKind = "authorization_required"
	// OutcomeTransportError means the call failed below the application
	// layer and may be transient.
	OutcomeTransportError OutcomeKind = "transport_error"
	// OutcomeToolUnavailable means the endpoint does not advertise the
	// requested tool. No call is attempted.
	OutcomeToolUnavailable OutcomeKind = "tool_unavailable"
)

// Outcome is the decoded result of one remote tool call. Exactly one
// variant's fields are meaningful, selected by Kind.
type Outcome struct {
	Kind        OutcomeKind
	Payload     json.RawMessage // success payload (the envelope's data field)
	Message     string          // error detail for the error kinds
	RedirectURL string          // authorization grant URL, when one was obtained
}

// Success reports whether the call produced a usable payload.
func (o Outcome) Success() bool { return o.Kind == OutcomeSuccess }

// Err converts a non-success outcome into an error for callers that treat
// every failure uniformly. Returns nil for success.
func (o Outcome) Err() error {
	if o.Kind == OutcomeSuccess {
		return nil
	}
	return fmt.Errorf("%s: %s", o.Kind, o.Message)
}

func successOutcome(payload json.RawMessage) Outcome {
	return Outcome{Kind: OutcomeSuccess, Payload: payload}
}

func applicationError(msg string) Outcome {
	return Outcome{Kind: OutcomeApplicationError, Message: msg}
}

func transportError(msg string) Outcome {
	return Outcome{Kind: OutcomeTransportError, Message: msg}
}

func authorizationRequired(msg string) Outcome {
	return Outcome{Kind: OutcomeAuthorizationRequired, Message: msg}
}

// Fragments of the remote broker's error strings that signal a missing or
// expired authorization grant. The service reports these only as free
// text, so the matching is necessarily stringly-typed; this file is the
// single home for it.
const (
	connectionNotFoundFragment = "Could not find a connection with app="
	refreshTokenFragment       = "credentials do not contain the necessary fields need to refresh the access token"
	googleUnauthorizedFragment = "401 Client Error: Unauthorized for url: https://www.googleapis.com"
)

// ErrorClassifier decides whether an application-level error message means
// the user must complete an authorization grant. It is parameterized by
// the app/entity pair because the broker embeds both in its
// connection-not-found message.
type ErrorClassifier struct {
	App    string
	UserID string
}

// authRule is one named predicate; rules are evaluated in priority order.
type authRule struct {
	name  string
	match func(c *ErrorClassifier, msg string) bool
}

var authRules = []authRule{
	{
		name: "connection_not_found_exact",
		match: func(c *ErrorClassifier, msg string) bool {
			return msg == c.connectionNotFoundMessage()
		},
	},
	{
		name: "connection_not_found_fragment",
		match: func(_ *ErrorClassifier, msg string) bool {
			return strings.Contains(msg, connectionNotFoundFragment)
		},
	},
	{
		name: "refresh_token_unusable",
		match: func(_ *ErrorClassifier, msg string) bool {
			return strings.Contains(msg, refreshTokenFragment)
		},
	},
	{
		name: "google_api_unauthorized",
		match: func(_ *ErrorClassifier, msg string) bool {
			return strings.Contains(msg, googleUnauthorizedFragment)
		},
	},
}

func (c *ErrorClassifier) connectionNotFoundMessage() string {
	return fmt.Sprintf("Could not find a connection with app='%s' and entity='%s'", c.App, c.UserID)
}

// NeedsAuthorization reports whether the message matches any of the known
// authorization-required patterns, and which rule matched.
func (c *ErrorClassifier) NeedsAuthorization(msg string) (string, bool) {
	for _, rule := range authRules {
		if rule.match(c, msg) {
			return rule.name, true
		}
	}
	return "", false
}

// envelope is the inner application-level document every tool call wraps
// in its first text content item.
type envelope struct {
	Successful *bool           `json:"successful"`
	Error      string          `json:"error"`
	Data       json.RawMessage `json:"data"`
}

// DecodeToolResult turns a raw transport result (or transport error) into
// a typed Outcome. This is the only place that distinguishes "complete an
// authorization grant" from an ordinary failure.
func DecodeToolResult(result *mcp.CallToolResult, callErr error, classifier *ErrorClassifier) Outcome {
	if callErr != nil {
		return transportError(callErr.Error())
	}
	if result == nil || len(result.Content) == 0 {
		return transportError("empty response")
	}

	text, ok := firstText(result)
	if !ok {
		return transportError("empty response")
	}

	var env envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return transportError("malformed payload: " + truncate(text, 120))
	}

	// Some helper tools omit the successful flag entirely; treat the whole
	// document as the payload in that case.
	if env.Successful == nil {
		return successOutcome(json.RawMessage(text))
	}

	if *env.Successful {
		if len(env.Data) > 0 {
			return successOutcome(env.Data)
		}
		return successOutcome(json.RawMessage(text))
	}

	if classifier != nil {
		if rule, needs := classifier.NeedsAuthorization(env.Error); needs {
			return Outcome{
				Kind:    OutcomeAuthorizationRequired,
				Message: fmt.Sprintf("authorization required (%s): %s", rule, truncate(env.Error, 160)),
			}
		}
	}
	return applicationError(env.Error)
}

// firstText returns the first text-bearing content item, if any.
func firstText(result *mcp.CallToolResult) (string, bool) {
	for _, item := range result.Content {
		if tc, ok := mcp.AsTextContent(item); ok && tc.Text != "" {
			return tc.Text, true
		}
	}
	return "", false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
