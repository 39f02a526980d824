package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	toolFetchEmails        = "GMAIL_FETCH_EMAILS"
	toolReplyToThread      = "GMAIL_REPLY_TO_THREAD"
	toolModifyThreadLabels = "GMAIL_MODIFY_THREAD_LABELS"

	// fetchMaxPages caps pagination so one cycle cannot spiral on a busy
	// inbox.
	fetchMaxPages       = 3
	defaultFetchPerPage = 10

	labelUnread = "UNREAD"
)

// Header is one RFC 2822 header from the message payload.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// EmailPayload carries the raw header list for messages where the
// top-level convenience fields are missing.
type EmailPayload struct {
	Headers []Header `json:"headers"`
}

// Email is one message as returned by the remote Gmail tools.
type Email struct {
	MessageID   string        `json:"messageId"`
	ThreadID    string        `json:"threadId"`
	Sender      string        `json:"sender"`
	Subject     string        `json:"subject"`
	Snippet     string        `json:"snippet"`
	MessageText string        `json:"messageText"`
	Labels      []string      `json:"labelIds"`
	Timestamp   string        `json:"messageTimestamp"`
	Payload     *EmailPayload `json:"payload,omitempty"`
}

// From returns the sender, falling back to the From header when the
// top-level field is absent.
func (e *Email) From() string {
	if e.Sender != "" {
		return e.Sender
	}
	if v := e.header("from"); v != "" {
		return v
	}
	return "Unknown Sender"
}

// SubjectLine returns the subject, falling back to the Subject header.
func (e *Email) SubjectLine() string {
	if e.Subject != "" {
		return e.Subject
	}
	if v := e.header("subject"); v != "" {
		return v
	}
	return "No Subject"
}

// SenderAddress extracts the bare address from the sender value, which may
// be in "Name <addr>" form.
func (e *Email) SenderAddress() string {
	from := e.From()
	if open := strings.Index(from, "<"); open >= 0 {
		if end := strings.Index(from[open:], ">"); end > 0 {
			return strings.TrimSpace(from[open+1 : open+end])
		}
	}
	for _, part := range strings.Fields(from) {
		if strings.Contains(part, "@") {
			return strings.Trim(part, "<>")
		}
	}
	return from
}

// Preview returns the best available body preview, capped at n runes.
func (e *Email) Preview(n int) string {
	text := e.MessageText
	if text == "" {
		text = e.Snippet
	}
	runes := []rune(text)
	if len(runes) > n {
		return string(runes[:n])
	}
	return text
}

func (e *Email) header(name string) string {
	if e.Payload == nil {
		return ""
	}
	for _, h := range e.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Gmail exposes the remote Gmail operations.
type Gmail struct {
	inv     Invoker
	logger  *slog.Logger
	perPage int
}

// NewGmail creates the Gmail service over an invoker.
func NewGmail(inv Invoker, logger *slog.Logger) *Gmail {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gmail{inv: inv, logger: logger, perPage: defaultFetchPerPage}
}

// FetchUnread returns unread messages received after since, following
// pagination up to the page cap.
func (g *Gmail) FetchUnread(ctx context.Context, since time.Time) ([]Email, error) {
	query := fmt.Sprintf("is:unread after:%d", since.Unix())
	var (
		all       []Email
		pageToken string
	)

	for page := 1; page <= fetchMaxPages; page++ {
		args := map[string]any{
			"query":           query,
			"max_results":     g.perPage,
			"include_payload": true,
		}
		if pageToken != "" {
			args["page_token"] = pageToken
		}

		out := g.inv.CallTool(ctx, toolFetchEmails, args)
		if err := outcomeErr("gmail", toolFetchEmails, out); err != nil {
			return nil, err
		}

		var payload struct {
			Messages      []Email `json:"messages"`
			NextPageToken string  `json:"nextPageToken"`
		}
		if err := json.Unmarshal(out.Payload, &payload); err != nil {
			return nil, fmt.Errorf("%s: decode page %d: %w", toolFetchEmails, page, err)
		}

		g.logger.Debug("Fetched email page",
			"page", page,
			"messages", len(payload.Messages))
		all = append(all, payload.Messages...)

		if payload.NextPageToken == "" {
			break
		}
		pageToken = payload.NextPageToken
	}
	return all, nil
}

// Reply sends a reply on an existing thread.
func (g *Gmail) Reply(ctx context.Context, threadID, recipient, body string) error {
	out := g.inv.CallTool(ctx, toolReplyToThread, map[string]any{
		"thread_id":       threadID,
		"recipient_email": recipient,
		"message_body":    body,
		"user_id":         "me",
	})
	if err := outcomeErr("gmail", toolReplyToThread, out); err != nil {
		return err
	}
	g.logger.Info("Reply sent", "thread_id", threadID, "recipient", recipient)
	return nil
}

// MarkRead removes the unread label from a thread.
func (g *Gmail) MarkRead(ctx context.Context, threadID string) error {
	out := g.inv.CallTool(ctx, toolModifyThreadLabels, map[string]any{
		"thread_id":        threadID,
		"remove_label_ids": []string{labelUnread},
		"user_id":          "me",
	})
	return outcomeErr("gmail", toolModifyThreadLabels, out)
}
