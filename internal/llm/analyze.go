package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/SiddharthSirohi/mclippy/internal/calendarutil"
	"github.com/SiddharthSirohi/mclippy/internal/ops"
)

// EmailAnalysis is the model's verdict on one email.
type EmailAnalysis struct {
	EmailID          string   `json:"email_id"`
	IsImportant      bool     `json:"is_important"`
	Summary          string   `json:"summary"`
	SuggestedActions []string `json:"suggested_actions"`
}

// EventAnalysis is the model's note on one upcoming event.
type EventAnalysis struct {
	EventID          string   `json:"event_id"`
	Summary          string   `json:"summary_llm"`
	SuggestedActions []string `json:"suggested_actions"`
}

// ReplyDraft is a generated reply.
type ReplyDraft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// EventDetails is a parsed event-creation request, keyed to match the
// calendar create tool's parameters.
type EventDetails struct {
	Summary           string   `json:"summary"`
	StartDateTime     string   `json:"start_datetime"`
	Timezone          string   `json:"timezone"`
	DurationHours     int      `json:"event_duration_hour"`
	DurationMinutes   int      `json:"event_duration_minutes"`
	Attendees         []string `json:"attendees"`
	Description       string   `json:"description"`
	Location          string   `json:"location"`
	CreateMeetingRoom bool     `json:"create_meeting_room"`
}

// Analyzer runs the assistant's prompts against a Gemini client with the
// user's persona and priorities baked in.
type Analyzer struct {
	client     *Client
	persona    string
	priorities string
	logger     *slog.Logger
}

// NewAnalyzer creates an analyzer for one user.
func NewAnalyzer(client *Client, persona, priorities string, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{client: client, persona: persona, priorities: priorities, logger: logger}
}

// AnalyzeEmails triages a batch of emails. The result has one entry per
// input email in input order; emails the model skipped come back marked
// unimportant rather than missing.
func (a *Analyzer) AnalyzeEmails(ctx context.Context, emails []ops.Email) ([]EmailAnalysis, error) {
	if len(emails) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	for i := range emails {
		e := &emails[i]
		fmt.Fprintf(&sb, "Email %d:\nID: %s\nFrom: %s\nSubject: %s\nSnippet/Preview: %s\n---\n",
			i+1, e.MessageID, e.From(), e.SubjectLine(), e.Preview(500))
	}

	prompt := fmt.Sprintf(`You are a sharp personal assistant for a user whose role is: %q.
The user's current priorities are: %q.

Analyze the following unread emails and decide which ones genuinely matter to this user right now.

%s
Format your response as a single JSON array with one object per email:
- "email_id": (string) the ID of the email.
- "is_important": (boolean) true if it matters to this user.
- "summary": (string) a 1-2 sentence summary if important, otherwise empty.
- "suggested_actions": (array of strings) 1-3 concrete actions if important, otherwise empty.

Include every email, important or not. Respond with the JSON array only.`,
		a.persona, a.priorities, sb.String())

	raw, err := a.client.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("analyze emails: %w", err)
	}

	var parsed []EmailAnalysis
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("analyze emails: decode model output: %w", err)
	}

	byID := make(map[string]EmailAnalysis, len(parsed))
	for _, item := range parsed {
		byID[item.EmailID] = item
	}

	results := make([]EmailAnalysis, 0, len(emails))
	for i := range emails {
		id := emails[i].MessageID
		if item, ok := byID[id]; ok {
			results = append(results, item)
			continue
		}
		a.logger.Debug("Model skipped an email, marking unimportant", "message_id", id)
		results = append(results, EmailAnalysis{EmailID: id})
	}
	return results, nil
}

// AnalyzeEvents summarizes upcoming events with suggested preparation.
// One entry per input event in input order.
func (a *Analyzer) AnalyzeEvents(ctx context.Context, events []ops.Event, userEmail string) ([]EventAnalysis, error) {
	if len(events) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	for i := range events {
		ev := &events[i]
		attendees := ev.HumanAttendees()
		filtered := attendees[:0]
		for _, addr := range attendees {
			if addr != userEmail {
				filtered = append(filtered, addr)
			}
		}
		who := "Just you"
		if len(filtered) > 0 {
			who = strings.Join(filtered, ", ")
		}
		fmt.Fprintf(&sb, "Event %d (ID: %s):\n  Title: %s\n  Start: %s\n  End: %s\n  Attendees: %s\n---\n",
			i+1, ev.ID, ev.Summary, ev.Start.DateTime, ev.End.DateTime, who)
	}

	prompt := fmt.Sprintf(`You are a sharp personal assistant for a user whose role is: %q.
The user's current priorities are: %q.

Review the user's upcoming calendar events and note anything worth preparing or acting on,
such as updating an event's details, declining, or blocking preparation time.

%s
Format your response as a single JSON array with one object per event:
- "event_id": (string) the ID of the event.
- "summary_llm": (string) a one-sentence note on the event.
- "suggested_actions": (array of strings) 0-3 concrete actions.

Respond with the JSON array only.`,
		a.persona, a.priorities, sb.String())

	raw, err := a.client.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("analyze events: %w", err)
	}

	var parsed []EventAnalysis
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("analyze events: decode model output: %w", err)
	}

	byID := make(map[string]EventAnalysis, len(parsed))
	for _, item := range parsed {
		byID[item.EventID] = item
	}

	results := make([]EventAnalysis, 0, len(events))
	for i := range events {
		id := events[i].ID
		if item, ok := byID[id]; ok {
			results = append(results, item)
			continue
		}
		results = append(results, EventAnalysis{
			EventID: id,
			Summary: "No specific notes for this event.",
		})
	}
	return results, nil
}

// DraftReply generates a reply to an email following the chosen action
// sentiment, optionally offering free slots and honoring the user's edit
// instructions on a redraft.
func (a *Analyzer) DraftReply(ctx context.Context, email *ops.Email, sentiment, editInstructions string, slots []calendarutil.Interval) (ReplyDraft, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, `You are an assistant drafting an email reply on behalf of a user.
User's role: %q. User's priorities: %q. These steer tone only; focus on the original email.

Original Email:
From: %s
Subject: %s
Thread ID: %s
Body Preview:
%s

The user wants to: %q.
`, a.persona, a.priorities, email.From(), email.SubjectLine(), email.ThreadID, email.Preview(1500), sentiment)

	if editInstructions != "" {
		fmt.Fprintf(&sb, "\nUser's specific instructions for this draft: %q\n", editInstructions)
	}

	if len(slots) > 0 {
		sb.WriteString("\nThe user is free during these slots; if the reply proposes times, pick 1-3 and phrase them naturally:\n")
		for i, slot := range slots {
			if i == 5 {
				break
			}
			fmt.Fprintf(&sb, "- %s to %s\n",
				slot.Start.Format("Monday, January 02, 2006, from 3:04 PM"),
				slot.End.Format("3:04 PM MST"))
		}
	}

	sb.WriteString(`
Generate:
1. A reply "subject" line (usually "Re: [original subject]").
2. A professional, concise plain-text "body".

Format your response as a single JSON object with keys "subject" and "body" and nothing else.`)

	raw, err := a.client.Generate(ctx, sb.String())
	if err != nil {
		return ReplyDraft{}, fmt.Errorf("draft reply: %w", err)
	}

	var draft ReplyDraft
	if err := json.Unmarshal([]byte(stripFences(raw)), &draft); err != nil {
		return ReplyDraft{}, fmt.Errorf("draft reply: decode model output: %w", err)
	}
	if draft.Subject == "" || draft.Body == "" {
		return ReplyDraft{}, fmt.Errorf("draft reply: model output missing subject or body")
	}
	return draft, nil
}

// ParseEventDetails turns a natural-language event suggestion into the
// structured fields the calendar create tool expects. now anchors
// relative phrases like "tomorrow"; timezone is the user's zone name.
func (a *Analyzer) ParseEventDetails(ctx context.Context, suggestion, contextText, timezone string, now time.Time) (EventDetails, error) {
	prompt := fmt.Sprintf(`Extract structured details for creating a Google Calendar event.

Suggestion: %q
Context: %q
Current datetime (for resolving relative phrases like "tomorrow"): %s
User timezone: %s

Respond with a single JSON object and nothing else, with keys:
- "summary": (string) event title.
- "start_datetime": (string) naive local start time, e.g. "2025-06-03T15:00:00".
- "timezone": (string) IANA zone, default %q.
- "event_duration_hour": (integer) default 1 if unspecified.
- "event_duration_minutes": (integer) default 0.
- "attendees": (array of email strings) may be empty.
- "description": (string) short description referencing the context.
- "location": (string) empty if none.
- "create_meeting_room": (boolean) default true.`,
		suggestion, contextText, now.Format(time.RFC3339), timezone, timezone)

	raw, err := a.client.Generate(ctx, prompt)
	if err != nil {
		return EventDetails{}, fmt.Errorf("parse event details: %w", err)
	}

	var details EventDetails
	if err := json.Unmarshal([]byte(stripFences(raw)), &details); err != nil {
		return EventDetails{}, fmt.Errorf("parse event details: decode model output: %w", err)
	}
	if details.Summary == "" || details.StartDateTime == "" {
		return EventDetails{}, fmt.Errorf("parse event details: model output missing summary or start")
	}
	if details.Timezone == "" {
		details.Timezone = timezone
	}
	if details.DurationHours == 0 && details.DurationMinutes == 0 {
		details.DurationHours = 1
	}
	return details, nil
}

// Request converts parsed details into a calendar event request.
func (d EventDetails) Request() ops.EventRequest {
	return ops.EventRequest{
		Summary:           d.Summary,
		StartDateTime:     d.StartDateTime,
		Timezone:          d.Timezone,
		DurationHours:     d.DurationHours,
		DurationMinutes:   d.DurationMinutes,
		Attendees:         d.Attendees,
		Description:       d.Description,
		Location:          d.Location,
		CreateMeetingRoom: d.CreateMeetingRoom,
	}
}
