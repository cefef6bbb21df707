package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"calpilot/internal/models"
)

// BuildICS builds an iCalendar digest of the events referenced by the
// issue list, so the mailed report carries a .ics the user can open in
// any calendar client. Issues whose event lookup fails are left out, the
// same way Render drops them.
func (r *Renderer) BuildICS(issues []models.Issue, events []models.Event) (string, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//calpilot//EN")

	now := time.Now().UTC()
	seen := make(map[string]bool)
	for _, issue := range issues {
		event, ok := r.lookupEvent(issue.EventID, events)
		if !ok || seen[event.ID] {
			continue
		}
		seen[event.ID] = true

		start, end, err := eventTimes(event)
		if err != nil {
			r.logger.Warn("Could not parse event times for ICS digest, skipping.", "eventID", event.ID, "error", err)
			continue
		}

		ve := ical.NewComponent(ical.CompEvent)
		ve.Props.SetText(ical.PropUID, event.ID)
		ve.Props.SetText(ical.PropSummary, event.Summary)
		ve.Props.SetText(ical.PropDescription, issue.Description)
		ve.Props.SetDateTime(ical.PropDateTimeStamp, now)
		ve.Props.SetDateTime(ical.PropDateTimeStart, start)
		ve.Props.SetDateTime(ical.PropDateTimeEnd, end)
		cal.Children = append(cal.Children, ve)
	}

	var buf strings.Builder
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return "", fmt.Errorf("failed to encode ICS digest: %w", err)
	}
	return buf.String(), nil
}

// eventTimes resolves an event's boundaries to concrete timestamps.
// All-day boundaries become midnight UTC of their date.
func eventTimes(event models.Event) (time.Time, time.Time, error) {
	start, err := parseBoundary(event.Start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseBoundary(event.End)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func parseBoundary(t models.EventTime) (time.Time, error) {
	if t.IsDateOnly() {
		return time.Parse("2006-01-02", t.Date)
	}
	return time.Parse(time.RFC3339, t.DateTime)
}
