package ops_test

import (
	"context"
	"encoding/json"

	"github.com/SiddharthSirohi/mclippy/internal/mcpsession"
)

// recordedCall captures one invocation through the fake invoker.
type recordedCall struct {
	tool string
	args map[string]any
}

// fakeInvoker scripts outcomes per tool call and records every invocation.
type fakeInvoker struct {
	calls   []recordedCall
	handler func(tool string, args map[string]any) mcpsession.Outcome
}

func (f *fakeInvoker) CallTool(_ context.Context, tool string, args map[string]any) mcpsession.Outcome {
	f.calls = append(f.calls, recordedCall{tool: tool, args: args})
	if f.handler == nil {
		return success(`{}`)
	}
	return f.handler(tool, args)
}

func success(payload string) mcpsession.Outcome {
	return mcpsession.Outcome{Kind: mcpsession.OutcomeSuccess, Payload: json.RawMessage(payload)}
}

func authRequired(url string) mcpsession.Outcome {
	return mcpsession.Outcome{
		Kind:        mcpsession.OutcomeAuthorizationRequired,
		Message:     "authorization required",
		RedirectURL: url,
	}
}
