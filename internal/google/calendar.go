// Package google holds the adapters for the Google Workspace APIs:
// Calendar (event store), Drive/Docs (instructions discovery), the admin
// Directory (user enumeration), and Gmail (report delivery). All clients
// authenticate with a service account and impersonate users via domain-
// wide delegation.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"calpilot/internal/models"
)

const (
	// calendarEventsOwnedScope is the narrow scope needed to rewrite a
	// recurrence rule on a user's own events.
	calendarEventsOwnedScope = "https://www.googleapis.com/auth/calendar.events.owned"

	maxEventResults = 2500
)

// CalendarClient is the event store: it reads and updates events on
// users' primary calendars.
type CalendarClient struct {
	logger *slog.Logger
	creds  []byte
}

// NewCalendarClient creates a calendar client from service account JSON.
func NewCalendarClient(logger *slog.Logger, creds []byte) *CalendarClient {
	return &CalendarClient{logger: logger, creds: creds}
}

// serviceFor builds a Calendar service impersonating the given user.
func (c *CalendarClient) serviceFor(ctx context.Context, user string, scopes ...string) (*calendar.Service, error) {
	cfg, err := google.JWTConfigFromJSON(c.creds, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account credentials: %w", err)
	}
	cfg.Subject = user
	service, err := calendar.NewService(ctx, option.WithTokenSource(cfg.TokenSource(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return service, nil
}

// ListEvents fetches the user's primary calendar over the window, with
// recurring series expanded into single events. Synthetic
// "workingLocation" and "fromGmail" events are filtered out before they
// reach any caller. Users without a Calendar account yield zero events
// rather than an error.
func (c *CalendarClient) ListEvents(ctx context.Context, user string, w models.Window) ([]models.Event, error) {
	service, err := c.serviceFor(ctx, user, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Retrieving events from calendar.", "user", user, "start", w.Start, "end", w.End)
	result, err := service.Events.List("primary").
		TimeMin(w.Start.Format(time.RFC3339)).
		TimeMax(w.End.Format(time.RFC3339)).
		MaxResults(maxEventResults).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		if isNotOnCalendar(err) {
			c.logger.Warn("User is not signed up for Google Calendar.", "user", user)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to retrieve events for %s: %w", user, err)
	}

	var events []models.Event
	for _, item := range result.Items {
		if item.EventType == "workingLocation" || item.EventType == "fromGmail" {
			continue
		}
		events = append(events, toEvent(item))
	}
	c.logger.Info("Fetched events from calendar.", "user", user, "count", len(events))
	return events, nil
}

// GetEvent fetches a single event from the user's primary calendar.
func (c *CalendarClient) GetEvent(ctx context.Context, user, eventID string) (*models.Event, error) {
	service, err := c.serviceFor(ctx, user, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, err
	}
	item, err := service.Events.Get("primary", eventID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get event %s for %s: %w", eventID, user, err)
	}
	event := toEvent(item)
	return &event, nil
}

// UpdateRecurrence overwrites the recurrence rules of an event on the
// user's primary calendar and returns the updated event. This is the
// only mutating calendar operation; callers gate it behind an explicit
// commit flag.
func (c *CalendarClient) UpdateRecurrence(ctx context.Context, user, eventID string, rules []string) (*models.Event, error) {
	service, err := c.serviceFor(ctx, user, calendarEventsOwnedScope)
	if err != nil {
		return nil, err
	}

	item, err := service.Events.Get("primary", eventID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get event %s for %s: %w", eventID, user, err)
	}

	item.Recurrence = rules
	c.logger.Info("Updating event recurrence.", "user", user, "eventID", eventID, "rules", rules)
	updated, err := service.Events.Update("primary", eventID, item).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to update event %s for %s: %w", eventID, user, err)
	}
	event := toEvent(updated)
	return &event, nil
}

// toEvent converts a Calendar API event to the internal model.
func toEvent(item *calendar.Event) models.Event {
	event := models.Event{
		ID:               item.Id,
		Summary:          item.Summary,
		RecurringEventID: item.RecurringEventId,
		Recurrence:       item.Recurrence,
		HTMLLink:         item.HtmlLink,
		EventType:        item.EventType,
	}
	if item.Start != nil {
		event.Start = models.EventTime{Date: item.Start.Date, DateTime: item.Start.DateTime}
	}
	if item.End != nil {
		event.End = models.EventTime{Date: item.End.Date, DateTime: item.End.DateTime}
	}
	for _, a := range item.Attendees {
		event.Attendees = append(event.Attendees, models.Attendee{Email: a.Email, Self: a.Self})
	}
	return event
}

// isNotOnCalendar detects the API error returned for users who have no
// Calendar account.
func isNotOnCalendar(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return strings.Contains(apiErr.Message, "must be signed up for Google Calendar")
}
