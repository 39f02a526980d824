package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/SiddharthSirohi/mclippy/internal/assistant"
	"github.com/SiddharthSirohi/mclippy/internal/config"
	"github.com/SiddharthSirohi/mclippy/internal/llm"
	"github.com/SiddharthSirohi/mclippy/internal/mcpsession"
	"github.com/SiddharthSirohi/mclippy/internal/notify"
	"github.com/SiddharthSirohi/mclippy/internal/ops"
	"github.com/SiddharthSirohi/mclippy/internal/store"
)

const dbFileName = "mclippy.db"

// app wires the remote sessions, services, and assistant together for
// the interactive commands.
type app struct {
	cfg         *config.Config
	gmail       *mcpsession.Client
	calendar    *mcpsession.Client
	calendarSvc *ops.Calendar
	assistant   *assistant.Assistant
	store       *store.Store
	logger      *slog.Logger
}

// newApp builds the session clients, store, and assistant. It does not
// connect: persistent commands call start, batch commands scope their
// work via withSessions. Callers must Close the returned app.
func newApp(cfg *config.Config, keepAlive bool) (*app, error) {
	logger := slog.Default()

	if cfg.GoogleAPIKey == "" {
		return nil, fmt.Errorf("%s is not set", config.EnvGoogleAPIKey)
	}
	if cfg.GmailServerURL() == "" || cfg.CalendarServerURL() == "" {
		return nil, fmt.Errorf("%s and %s must be set", config.EnvGmailServerUUID, config.EnvCalendarServerUUID)
	}

	gmailClient := mcpsession.NewClient(mcpsession.ClientConfig{
		Session: mcpsession.NewSession(mcpsession.SessionConfig{
			Label:    "gmail",
			Endpoint: cfg.GmailServerURL(),
			Dialer:   mcpsession.DialSSE,
			Logger:   logger,
		}),
		App:       "gmail",
		UserID:    cfg.UserEmail,
		Logger:    logger,
		KeepAlive: keepAlive,
	})
	calendarClient := mcpsession.NewClient(mcpsession.ClientConfig{
		Session: mcpsession.NewSession(mcpsession.SessionConfig{
			Label:    "googlecalendar",
			Endpoint: cfg.CalendarServerURL(),
			Dialer:   mcpsession.DialSSE,
			Logger:   logger,
		}),
		App:       "googlecalendar",
		UserID:    cfg.UserEmail,
		Logger:    logger,
		KeepAlive: keepAlive,
	})

	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(filepath.Join(dir, dbFileName))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	analyzer := llm.NewAnalyzer(llm.NewClient(cfg.GoogleAPIKey, ""), cfg.Persona, cfg.Priorities, logger)
	notifier := notify.New(cfg.Notifications.Email != "off" || cfg.Notifications.Calendar == "on", logger)
	calendarSvc := ops.NewCalendar(calendarClient, logger, cfg.Location(), cfg.WorkStartHour, cfg.WorkEndHour)

	a := assistant.New(assistant.Config{
		Gmail:    ops.NewGmail(gmailClient, logger),
		Calendar: calendarSvc,
		Analyzer: analyzer,
		Store:    st,
		Notifier: notifier,
		User:     cfg,
		Logger:   logger,
	})

	return &app{
		cfg:         cfg,
		gmail:       gmailClient,
		calendar:    calendarClient,
		calendarSvc: calendarSvc,
		assistant:   a,
		store:       st,
		logger:      logger,
	}, nil
}

// start connects both sessions for the persistent shape, launching
// their supervisors when keep-alive is on.
func (a *app) start(ctx context.Context) error {
	if err := a.gmail.Start(ctx); err != nil {
		return fmt.Errorf("connect gmail session: %w", err)
	}
	if err := a.calendar.Start(ctx); err != nil {
		a.gmail.Close()
		return fmt.Errorf("connect calendar session: %w", err)
	}
	return nil
}

// withSessions runs fn with both provider sessions scoped to the call:
// connected on the way in, disconnected on every way out.
func (a *app) withSessions(ctx context.Context, fn func() error) error {
	return a.gmail.Session().WithSession(ctx, func(*mcpsession.Session) error {
		return a.calendar.Session().WithSession(ctx, func(*mcpsession.Session) error {
			return fn()
		})
	})
}

func (a *app) Close() {
	a.assistant.Close()
	a.gmail.Close()
	a.calendar.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Could not close store", "error", err)
	}
}
