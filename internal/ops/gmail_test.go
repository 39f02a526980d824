package ops_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/SiddharthSirohi/mclippy/internal/mcpsession"
	"github.com/SiddharthSirohi/mclippy/internal/ops"
)

func TestGmail_FetchUnreadFollowsPagination(t *testing.T) {
	inv := &fakeInvoker{}
	inv.handler = func(tool string, args map[string]any) mcpsession.Outcome {
		if tool != "GMAIL_FETCH_EMAILS" {
			t.Fatalf("Unexpected tool %s", tool)
		}
		if _, hasToken := args["page_token"]; !hasToken {
			return success(`{"messages": [{"messageId": "m1", "threadId": "t1"}], "nextPageToken": "page2"}`)
		}
		if args["page_token"] != "page2" {
			t.Errorf("Expected page_token page2, got %v", args["page_token"])
		}
		return success(`{"messages": [{"messageId": "m2", "threadId": "t2"}]}`)
	}

	g := ops.NewGmail(inv, nil)
	since := time.Unix(1748800000, 0)
	emails, err := g.FetchUnread(context.Background(), since)
	if err != nil {
		t.Fatalf("FetchUnread failed: %v", err)
	}

	if len(emails) != 2 {
		t.Fatalf("Expected 2 emails across pages, got %d", len(emails))
	}
	if emails[0].MessageID != "m1" || emails[1].MessageID != "m2" {
		t.Errorf("Unexpected message ids: %s, %s", emails[0].MessageID, emails[1].MessageID)
	}
	if len(inv.calls) != 2 {
		t.Fatalf("Expected 2 fetch calls, got %d", len(inv.calls))
	}

	query, _ := inv.calls[0].args["query"].(string)
	if !strings.HasPrefix(query, "is:unread after:") {
		t.Errorf("Unexpected query %q", query)
	}
	if !strings.HasSuffix(query, fmt.Sprintf("%d", since.Unix())) {
		t.Errorf("Expected query to carry the since timestamp, got %q", query)
	}
	if inv.calls[0].args["include_payload"] != true {
		t.Error("Expected include_payload to be set")
	}
}

func TestGmail_FetchUnreadStopsAtPageCap(t *testing.T) {
	inv := &fakeInvoker{}
	inv.handler = func(string, map[string]any) mcpsession.Outcome {
		// Always promises another page.
		return success(`{"messages": [{"messageId": "m"}], "nextPageToken": "more"}`)
	}

	g := ops.NewGmail(inv, nil)
	emails, err := g.FetchUnread(context.Background(), time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("FetchUnread failed: %v", err)
	}
	if len(inv.calls) != 3 {
		t.Errorf("Expected pagination to stop at 3 pages, got %d calls", len(inv.calls))
	}
	if len(emails) != 3 {
		t.Errorf("Expected 3 emails, got %d", len(emails))
	}
}

func TestGmail_FetchUnreadSurfacesAuthorization(t *testing.T) {
	inv := &fakeInvoker{}
	inv.handler = func(string, map[string]any) mcpsession.Outcome {
		return authRequired("https://backend.composio.dev/api/v3/s/grant")
	}

	g := ops.NewGmail(inv, nil)
	_, err := g.FetchUnread(context.Background(), time.Now())
	var authErr *ops.AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected AuthorizationError, got %v", err)
	}
	if authErr.RedirectURL != "https://backend.composio.dev/api/v3/s/grant" {
		t.Errorf("Expected redirect URL to be preserved, got %q", authErr.RedirectURL)
	}
}

func TestGmail_Reply(t *testing.T) {
	inv := &fakeInvoker{}
	g := ops.NewGmail(inv, nil)

	if err := g.Reply(context.Background(), "t42", "alice@example.com", "Sounds good."); err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
	if len(inv.calls) != 1 || inv.calls[0].tool != "GMAIL_REPLY_TO_THREAD" {
		t.Fatalf("Expected one GMAIL_REPLY_TO_THREAD call, got %v", inv.calls)
	}
	args := inv.calls[0].args
	if args["thread_id"] != "t42" || args["recipient_email"] != "alice@example.com" {
		t.Errorf("Unexpected reply args: %v", args)
	}
}

func TestGmail_MarkRead(t *testing.T) {
	inv := &fakeInvoker{}
	g := ops.NewGmail(inv, nil)

	if err := g.MarkRead(context.Background(), "t42"); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if inv.calls[0].tool != "GMAIL_MODIFY_THREAD_LABELS" {
		t.Fatalf("Expected GMAIL_MODIFY_THREAD_LABELS, got %s", inv.calls[0].tool)
	}
	labels, ok := inv.calls[0].args["remove_label_ids"].([]string)
	if !ok || len(labels) != 1 || labels[0] != "UNREAD" {
		t.Errorf("Expected remove_label_ids [UNREAD], got %v", inv.calls[0].args["remove_label_ids"])
	}
}

func TestEmail_HeaderFallbacks(t *testing.T) {
	e := ops.Email{
		Payload: &ops.EmailPayload{Headers: []ops.Header{
			{Name: "From", Value: "Bob Example <bob@example.com>"},
			{Name: "Subject", Value: "Quarterly review"},
		}},
	}

	if e.From() != "Bob Example <bob@example.com>" {
		t.Errorf("Unexpected From fallback: %q", e.From())
	}
	if e.SubjectLine() != "Quarterly review" {
		t.Errorf("Unexpected Subject fallback: %q", e.SubjectLine())
	}
	if e.SenderAddress() != "bob@example.com" {
		t.Errorf("Expected bare address, got %q", e.SenderAddress())
	}

	empty := ops.Email{}
	if empty.From() != "Unknown Sender" || empty.SubjectLine() != "No Subject" {
		t.Errorf("Unexpected defaults: %q / %q", empty.From(), empty.SubjectLine())
	}
}

func TestEmail_Preview(t *testing.T) {
	e := ops.Email{Snippet: "short snippet"}
	if e.Preview(500) != "short snippet" {
		t.Errorf("Expected snippet fallback, got %q", e.Preview(500))
	}
	e.MessageText = strings.Repeat("x", 600)
	if got := e.Preview(500); len(got) != 500 {
		t.Errorf("Expected preview capped at 500, got %d", len(got))
	}
}
