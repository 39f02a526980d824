// Package ops wraps the remote Gmail and Google Calendar tool surfaces in
// typed operations. Each service takes an Invoker so the cycle logic and
// tests stay independent of the live session stack.
package ops

import (
	"context"
	"fmt"

	"github.com/SiddharthSirohi/mclippy/internal/mcpsession"
)

// Invoker is the tool invocation surface the services call through. It is
// satisfied by *mcpsession.Client.
type Invoker interface {
	CallTool(ctx context.Context, name string, args map[string]any) mcpsession.Outcome
}

// AuthorizationError reports that the user must complete an authorization
// grant before the service can be used.
type AuthorizationError struct {
	App         string
	RedirectURL string
}

func (e *AuthorizationError) Error() string {
	if e.RedirectURL != "" {
		return fmt.Sprintf("%s requires authorization, open %s", e.App, e.RedirectURL)
	}
	return fmt.Sprintf("%s requires authorization", e.App)
}

// outcomeErr converts a non-success outcome into an error, preserving the
// authorization case as a typed error.
func outcomeErr(app, tool string, out mcpsession.Outcome) error {
	switch out.Kind {
	case mcpsession.OutcomeSuccess:
		return nil
	case mcpsession.OutcomeAuthorizationRequired:
		return &AuthorizationError{App: app, RedirectURL: out.RedirectURL}
	default:
		return fmt.Errorf("%s: %s: %s", tool, out.Kind, out.Message)
	}
}
