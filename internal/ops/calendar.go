package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/SiddharthSirohi/mclippy/internal/calendarutil"
)

const (
	toolFindEvent   = "GOOGLECALENDAR_FIND_EVENT"
	toolCreateEvent = "GOOGLECALENDAR_CREATE_EVENT"
	toolUpdateEvent = "GOOGLECALENDAR_UPDATE_EVENT"
	toolDeleteEvent = "GOOGLECALENDAR_DELETE_EVENT"

	primaryCalendar       = "primary"
	defaultFindMaxResults = 10
)

// EventTime is a calendar timestamp, either a dateTime or an all-day date.
type EventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// Time resolves the timestamp in the given location. All-day dates resolve
// to midnight.
func (et EventTime) Time(loc *time.Location) (time.Time, error) {
	if et.DateTime != "" {
		t, err := time.Parse(time.RFC3339, et.DateTime)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse dateTime %q: %w", et.DateTime, err)
		}
		return t.In(loc), nil
	}
	if et.Date != "" {
		t, err := time.ParseInLocation("2006-01-02", et.Date, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse date %q: %w", et.Date, err)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("event time has neither dateTime nor date")
}

// Attendee is one event participant.
type Attendee struct {
	Email          string `json:"email"`
	Resource       bool   `json:"resource,omitempty"`
	ResponseStatus string `json:"responseStatus,omitempty"`
}

// Event is one calendar event as returned by the remote tools.
type Event struct {
	ID          string     `json:"id"`
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Start       EventTime  `json:"start"`
	End         EventTime  `json:"end"`
	Attendees   []Attendee `json:"attendees,omitempty"`
	HTMLLink    string     `json:"htmlLink,omitempty"`
}

// HumanAttendees returns attendee addresses excluding resource calendars.
func (ev *Event) HumanAttendees() []string {
	var emails []string
	for _, a := range ev.Attendees {
		if a.Email != "" && !a.Resource {
			emails = append(emails, a.Email)
		}
	}
	return emails
}

// EventRequest describes an event to create or the fields to update.
type EventRequest struct {
	Summary           string
	StartDateTime     string // RFC 3339 local time, e.g. 2025-06-02T14:00:00
	Timezone          string
	DurationHours     int
	DurationMinutes   int
	Attendees         []string
	Description       string
	Location          string
	CreateMeetingRoom bool
}

func (r EventRequest) args() map[string]any {
	args := map[string]any{
		"calendar_id":            primaryCalendar,
		"summary":                r.Summary,
		"start_datetime":         r.StartDateTime,
		"event_duration_hour":    r.DurationHours,
		"event_duration_minutes": r.DurationMinutes,
	}
	if r.Timezone != "" {
		args["timezone"] = r.Timezone
	}
	if len(r.Attendees) > 0 {
		args["attendees"] = r.Attendees
	}
	if r.Description != "" {
		args["description"] = r.Description
	}
	if r.Location != "" {
		args["location"] = r.Location
	}
	if r.CreateMeetingRoom {
		args["create_meeting_room"] = true
	}
	return args
}

// Calendar exposes the remote Google Calendar operations.
type Calendar struct {
	inv           Invoker
	logger        *slog.Logger
	location      *time.Location
	workStartHour int
	workEndHour   int
}

// NewCalendar creates the calendar service. Working hours bound free-slot
// computation; location resolves event times.
func NewCalendar(inv Invoker, logger *slog.Logger, loc *time.Location, workStartHour, workEndHour int) *Calendar {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Calendar{
		inv:           inv,
		logger:        logger,
		location:      loc,
		workStartHour: workStartHour,
		workEndHour:   workEndHour,
	}
}

// FindEvents returns events between timeMin and timeMax, expanded to
// single instances in start order.
func (c *Calendar) FindEvents(ctx context.Context, timeMin, timeMax time.Time) ([]Event, error) {
	out := c.inv.CallTool(ctx, toolFindEvent, map[string]any{
		"calendarId":   primaryCalendar,
		"timeMin":      timeMin.UTC().Format(time.RFC3339),
		"timeMax":      timeMax.UTC().Format(time.RFC3339),
		"maxResults":   defaultFindMaxResults,
		"singleEvents": true,
		"orderBy":      "startTime",
	})
	if err := outcomeErr("googlecalendar", toolFindEvent, out); err != nil {
		return nil, err
	}

	// The find tool nests twice: data.event_data.event_data.
	var payload struct {
		EventData struct {
			EventData []Event `json:"event_data"`
		} `json:"event_data"`
	}
	if err := json.Unmarshal(out.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", toolFindEvent, err)
	}
	c.logger.Debug("Fetched calendar events", "events", len(payload.EventData.EventData))
	return payload.EventData.EventData, nil
}

// CreateEvent creates an event on the primary calendar.
func (c *Calendar) CreateEvent(ctx context.Context, req EventRequest) error {
	out := c.inv.CallTool(ctx, toolCreateEvent, req.args())
	if err := outcomeErr("googlecalendar", toolCreateEvent, out); err != nil {
		return err
	}
	c.logger.Info("Event created", "summary", req.Summary, "start", req.StartDateTime)
	return nil
}

// UpdateEvent rewrites an existing event's details.
func (c *Calendar) UpdateEvent(ctx context.Context, eventID string, req EventRequest) error {
	args := req.args()
	args["event_id"] = eventID
	out := c.inv.CallTool(ctx, toolUpdateEvent, args)
	if err := outcomeErr("googlecalendar", toolUpdateEvent, out); err != nil {
		return err
	}
	c.logger.Info("Event updated", "event_id", eventID)
	return nil
}

// DeleteEvent removes an event from the primary calendar.
func (c *Calendar) DeleteEvent(ctx context.Context, eventID string) error {
	out := c.inv.CallTool(ctx, toolDeleteEvent, map[string]any{
		"calendar_id": primaryCalendar,
		"event_id":    eventID,
	})
	if err := outcomeErr("googlecalendar", toolDeleteEvent, out); err != nil {
		return err
	}
	c.logger.Info("Event deleted", "event_id", eventID)
	return nil
}

// FreeSlots fetches busy intervals in the query range and sweeps for
// duration-sized openings inside working hours.
func (c *Calendar) FreeSlots(ctx context.Context, queryStart, queryEnd time.Time, duration time.Duration) ([]calendarutil.Interval, error) {
	events, err := c.FindEvents(ctx, queryStart, queryEnd)
	if err != nil {
		return nil, err
	}

	busy := make([]calendarutil.Interval, 0, len(events))
	for _, ev := range events {
		start, err := ev.Start.Time(c.location)
		if err != nil {
			c.logger.Warn("Skipping event with unparseable start", "event_id", ev.ID, "error", err)
			continue
		}
		end, err := ev.End.Time(c.location)
		if err != nil {
			c.logger.Warn("Skipping event with unparseable end", "event_id", ev.ID, "error", err)
			continue
		}
		busy = append(busy, calendarutil.Interval{Start: start, End: end})
	}

	return calendarutil.FreeSlots(
		queryStart.In(c.location),
		queryEnd.In(c.location),
		busy,
		duration,
		c.workStartHour,
		c.workEndHour,
	), nil
}
