package models

import (
	"strings"
	"time"
)

// EventTime mirrors the Google Calendar API shape: exactly one of Date
// (all-day, "2006-01-02") or DateTime (RFC 3339 with offset) is set.
type EventTime struct {
	Date     string `json:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty"`
}

// IsDateOnly reports whether this is an all-day boundary.
func (t EventTime) IsDateOnly() bool {
	return t.Date != ""
}

// Attendee is a single event attendee.
type Attendee struct {
	Email string `json:"email"`
	Self  bool   `json:"self,omitempty"`
}

// Domain returns the lower-cased part of the attendee's email after the
// last "@".
func (a Attendee) Domain() string {
	email := strings.ToLower(a.Email)
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[i+1:]
	}
	return email
}

// Event represents a calendar event as returned by the event store.
// Events are read-only: sourced per query and never persisted.
type Event struct {
	ID               string     `json:"id"`
	Summary          string     `json:"summary"`
	Start            EventTime  `json:"start"`
	End              EventTime  `json:"end"`
	Attendees        []Attendee `json:"attendees,omitempty"`
	RecurringEventID string     `json:"recurringEventId,omitempty"`
	Recurrence       []string   `json:"recurrence,omitempty"`
	HTMLLink         string     `json:"htmlLink,omitempty"`
	EventType        string     `json:"eventType,omitempty"`
}

// StartDate returns the display date of the event: all-day events use
// their date, timed events the first 10 characters of the timestamp.
func (e Event) StartDate() string {
	if e.Start.Date != "" {
		return e.Start.Date
	}
	if len(e.Start.DateTime) >= 10 {
		return e.Start.DateTime[:10]
	}
	return "YYYY-MM-DD"
}

// Classification buckets an event by who is attending.
type Classification string

const (
	ClassSolo     Classification = "SOLO"
	ClassPersonal Classification = "PERSONAL"
	ClassInternal Classification = "INTERNAL"
	ClassExternal Classification = "EXTERNAL"
)

// Issue is one problem the model found with a specific event. Issues are
// only ever produced by parsing the model's answer, never constructed
// directly by the pipeline.
type Issue struct {
	EventID     string
	Description string
}

// AnalysisResult holds the two labeled sections extracted from one model
// response. A nil field means the corresponding tag was absent, which is
// a normal, retriable outcome rather than a parse failure.
type AnalysisResult struct {
	Answer    *string
	Reasoning *string
}

// Complete reports whether both sections were present.
func (r AnalysisResult) Complete() bool {
	return r.Answer != nil && r.Reasoning != nil
}

// Report is the rendered output of one analysis run.
type Report struct {
	HTML string
	Text string
}

// Window is an inclusive time range for event store queries.
type Window struct {
	Start time.Time
	End   time.Time
}

// InstructionsShare pairs a user with the ID of the instructions document
// they shared with the service account.
type InstructionsShare struct {
	User  string
	DocID string
}

// ClassifiedEvent is the row type for classification exports.
type ClassifiedEvent struct {
	User             string
	Summary          string
	Date             string
	DurationHours    *float64
	Classification   Classification
	ExternalDomain   string
	Recurring        bool
	RecurringEventID string
}
