// Package assistant orchestrates the proactive check cycle: fetch unread
// mail and upcoming events, triage them with the model, surface what
// matters, and record an audit trail.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SiddharthSirohi/mclippy/internal/calendarutil"
	"github.com/SiddharthSirohi/mclippy/internal/config"
	"github.com/SiddharthSirohi/mclippy/internal/llm"
	"github.com/SiddharthSirohi/mclippy/internal/notify"
	"github.com/SiddharthSirohi/mclippy/internal/ops"
	"github.com/SiddharthSirohi/mclippy/internal/store"
)

// defaultLookback bounds the first fetch when no checkpoint exists yet.
const defaultLookback = 24 * time.Hour

// eventHorizon is how far ahead the calendar check looks.
const eventHorizon = 24 * time.Hour

// GmailService is the mail surface the cycle needs.
type GmailService interface {
	FetchUnread(ctx context.Context, since time.Time) ([]ops.Email, error)
	Reply(ctx context.Context, threadID, recipient, body string) error
	MarkRead(ctx context.Context, threadID string) error
}

// CalendarService is the calendar surface the cycle needs.
type CalendarService interface {
	FindEvents(ctx context.Context, timeMin, timeMax time.Time) ([]ops.Event, error)
	CreateEvent(ctx context.Context, req ops.EventRequest) error
	UpdateEvent(ctx context.Context, eventID string, req ops.EventRequest) error
	DeleteEvent(ctx context.Context, eventID string) error
	FreeSlots(ctx context.Context, queryStart, queryEnd time.Time, duration time.Duration) ([]calendarutil.Interval, error)
}

// Analyzer is the model surface the cycle needs.
type Analyzer interface {
	AnalyzeEmails(ctx context.Context, emails []ops.Email) ([]llm.EmailAnalysis, error)
	AnalyzeEvents(ctx context.Context, events []ops.Event, userEmail string) ([]llm.EventAnalysis, error)
	DraftReply(ctx context.Context, email *ops.Email, sentiment, editInstructions string, slots []calendarutil.Interval) (llm.ReplyDraft, error)
	ParseEventDetails(ctx context.Context, suggestion, contextText, timezone string, now time.Time) (llm.EventDetails, error)
}

// EmailItem is one important email with its verdict.
type EmailItem struct {
	Email    ops.Email
	Analysis llm.EmailAnalysis
}

// EventItem is one upcoming event with its note.
type EventItem struct {
	Event    ops.Event
	Analysis llm.EventAnalysis
}

// CheckResult is everything one cycle surfaced.
type CheckResult struct {
	CycleID         string
	EmailsFetched   int
	Emails          []EmailItem // important only
	Events          []EventItem
	GmailAuthURL    string
	CalendarAuthURL string
}

// Config wires an Assistant together.
type Config struct {
	Gmail    GmailService
	Calendar CalendarService
	Analyzer Analyzer
	Store    *store.Store
	Notifier *notify.Notifier
	User     *config.Config
	Logger   *slog.Logger
	CacheTTL time.Duration
}

// Assistant runs proactive check cycles and executes the follow-up
// actions the user picks.
type Assistant struct {
	gmail    GmailService
	calendar CalendarService
	analyzer Analyzer
	store    *store.Store
	notifier *notify.Notifier
	user     *config.Config
	logger   *slog.Logger
	cache    *AnalysisCache
}

// New creates an assistant.
func New(cfg Config) *Assistant {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = config.DefaultAnalysisCacheTTL
	}
	return &Assistant{
		gmail:    cfg.Gmail,
		calendar: cfg.Calendar,
		analyzer: cfg.Analyzer,
		store:    cfg.Store,
		notifier: cfg.Notifier,
		user:     cfg.User,
		logger:   cfg.Logger,
		cache:    NewAnalysisCache(cfg.CacheTTL),
	}
}

// Close releases background resources.
func (a *Assistant) Close() {
	a.cache.Stop()
}

// RunCycle performs one proactive check. A Gmail authorization failure
// aborts the cycle, since nothing useful can happen without mail access;
// a calendar authorization failure only skips the event portion. The
// email checkpoint advances only after a clean fetch.
func (a *Assistant) RunCycle(ctx context.Context) (*CheckResult, error) {
	cycleID, err := a.store.BeginCycle()
	if err != nil {
		return nil, fmt.Errorf("begin cycle: %w", err)
	}
	res := &CheckResult{CycleID: cycleID}
	a.logger.Info("Check cycle started", "cycle_id", cycleID)

	since := a.user.LastEmailCheck
	if since.IsZero() {
		since = time.Now().Add(-defaultLookback)
	}

	emails, err := a.gmail.FetchUnread(ctx, since)
	if err != nil {
		var authErr *ops.AuthorizationError
		if errors.As(err, &authErr) {
			res.GmailAuthURL = authErr.RedirectURL
			a.finishCycle(res, "auth_required", authErr.Error())
			return res, err
		}
		a.finishCycle(res, "error", err.Error())
		return res, fmt.Errorf("fetch emails: %w", err)
	}
	res.EmailsFetched = len(emails)

	important, err := a.triageEmails(ctx, emails)
	if err != nil {
		a.finishCycle(res, "error", err.Error())
		return res, err
	}
	res.Emails = important

	if err := a.user.SetLastEmailCheck(time.Now()); err != nil {
		a.logger.Warn("Could not persist email checkpoint", "error", err)
	}

	res.Events, res.CalendarAuthURL = a.checkCalendar(ctx)

	for i := range res.Emails {
		item := &res.Emails[i]
		if err := a.store.MarkSeen(item.Email.MessageID, item.Email.ThreadID); err != nil {
			a.logger.Warn("Could not record surfaced message", "message_id", item.Email.MessageID, "error", err)
		}
	}

	a.notifySummary(res)
	a.finishCycle(res, "ok", "")
	a.logger.Info("Check cycle finished",
		"cycle_id", cycleID,
		"emails_fetched", res.EmailsFetched,
		"important", len(res.Emails),
		"events", len(res.Events))
	return res, nil
}

// triageEmails drops already-surfaced messages, reuses cached verdicts,
// and sends only the remainder to the model.
func (a *Assistant) triageEmails(ctx context.Context, emails []ops.Email) ([]EmailItem, error) {
	var fresh []ops.Email
	for _, e := range emails {
		seen, err := a.store.Seen(e.MessageID)
		if err != nil {
			a.logger.Warn("Seen lookup failed", "message_id", e.MessageID, "error", err)
		}
		if !seen {
			fresh = append(fresh, e)
		}
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	verdicts := make(map[string]llm.EmailAnalysis, len(fresh))
	var toAnalyze []ops.Email
	for _, e := range fresh {
		if v, ok := a.cache.Get(e.MessageID); ok {
			verdicts[e.MessageID] = v
			continue
		}
		toAnalyze = append(toAnalyze, e)
	}

	if len(toAnalyze) > 0 {
		analyses, err := a.analyzer.AnalyzeEmails(ctx, toAnalyze)
		if err != nil {
			return nil, fmt.Errorf("triage emails: %w", err)
		}
		for _, v := range analyses {
			verdicts[v.EmailID] = v
			a.cache.Store(v.EmailID, v)
		}
	}

	var important []EmailItem
	for _, e := range fresh {
		if v, ok := verdicts[e.MessageID]; ok && v.IsImportant {
			important = append(important, EmailItem{Email: e, Analysis: v})
		}
	}
	return important, nil
}

// checkCalendar fetches and annotates upcoming events. Failures are
// logged rather than aborting the cycle.
func (a *Assistant) checkCalendar(ctx context.Context) ([]EventItem, string) {
	now := time.Now()
	events, err := a.calendar.FindEvents(ctx, now, now.Add(eventHorizon))
	if err != nil {
		var authErr *ops.AuthorizationError
		if errors.As(err, &authErr) {
			a.logger.Warn("Calendar requires authorization", "url", authErr.RedirectURL)
			return nil, authErr.RedirectURL
		}
		a.logger.Error("Calendar check failed", "error", err)
		return nil, ""
	}
	if len(events) == 0 {
		return nil, ""
	}

	items := make([]EventItem, 0, len(events))
	analyses, err := a.analyzer.AnalyzeEvents(ctx, events, a.user.UserEmail)
	if err != nil {
		a.logger.Error("Event analysis failed", "error", err)
		for _, ev := range events {
			items = append(items, EventItem{Event: ev})
		}
		return items, ""
	}
	for i, ev := range events {
		item := EventItem{Event: ev}
		if i < len(analyses) {
			item.Analysis = analyses[i]
		}
		items = append(items, item)
	}
	return items, ""
}

func (a *Assistant) notifySummary(res *CheckResult) {
	if a.notifier == nil {
		return
	}
	emailsOn := a.user.Notifications.Email != "off"
	calendarOn := a.user.Notifications.Calendar == "on"
	if !emailsOn && !calendarOn {
		return
	}

	var parts []string
	if emailsOn && len(res.Emails) > 0 {
		parts = append(parts, fmt.Sprintf("%d important email(s)", len(res.Emails)))
	}
	if calendarOn && len(res.Events) > 0 {
		parts = append(parts, fmt.Sprintf("%d upcoming event(s)", len(res.Events)))
	}
	if len(parts) == 0 {
		return
	}
	msg := parts[0]
	if len(parts) == 2 {
		msg = parts[0] + ". " + parts[1] + "."
	}
	a.notifier.Send("mClippy", msg)
}

func (a *Assistant) finishCycle(res *CheckResult, status, detail string) {
	if err := a.store.FinishCycle(res.CycleID, res.EmailsFetched, len(res.Emails), len(res.Events), status, detail); err != nil {
		a.logger.Warn("Could not finish cycle record", "cycle_id", res.CycleID, "error", err)
	}
}

// SendReply sends a drafted reply, marks the thread read, and records the
// action in the cycle's audit trail.
func (a *Assistant) SendReply(ctx context.Context, cycleID string, email *ops.Email, draft llm.ReplyDraft) error {
	recipient := email.SenderAddress()
	if recipient == "" {
		return fmt.Errorf("no recipient for thread %s", email.ThreadID)
	}
	if err := a.gmail.Reply(ctx, email.ThreadID, recipient, draft.Body); err != nil {
		return err
	}
	if err := a.gmail.MarkRead(ctx, email.ThreadID); err != nil {
		a.logger.Warn("Could not mark thread read", "thread_id", email.ThreadID, "error", err)
	}
	if err := a.store.RecordAction(cycleID, "reply_sent", email.ThreadID, "replied to "+recipient); err != nil {
		a.logger.Warn("Could not record action", "error", err)
	}
	return nil
}

// CreateEventFromSuggestion parses a natural-language suggestion into
// event details, creates the event, and records the action.
func (a *Assistant) CreateEventFromSuggestion(ctx context.Context, cycleID, suggestion, contextText string) (llm.EventDetails, error) {
	details, err := a.analyzer.ParseEventDetails(ctx, suggestion, contextText, a.user.Timezone, time.Now().In(a.user.Location()))
	if err != nil {
		return llm.EventDetails{}, err
	}
	if err := a.calendar.CreateEvent(ctx, details.Request()); err != nil {
		return details, err
	}
	if err := a.store.RecordAction(cycleID, "event_created", details.Summary, details.StartDateTime); err != nil {
		a.logger.Warn("Could not record action", "error", err)
	}
	return details, nil
}

// DraftReplyWithAvailability drafts a reply, attaching the user's free
// slots over the next few days when the action calls for proposing times.
func (a *Assistant) DraftReplyWithAvailability(ctx context.Context, email *ops.Email, sentiment, editInstructions string, withSlots bool, slotDuration time.Duration) (llm.ReplyDraft, error) {
	var slots []calendarutil.Interval
	if withSlots {
		loc := a.user.Location()
		now := time.Now().In(loc)
		var err error
		slots, err = a.calendar.FreeSlots(ctx, now, now.AddDate(0, 0, 3), slotDuration)
		if err != nil {
			a.logger.Warn("Could not compute free slots for draft", "error", err)
		}
	}
	return a.analyzer.DraftReply(ctx, email, sentiment, editInstructions, slots)
}
