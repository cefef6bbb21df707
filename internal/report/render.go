// Package report renders analysis output: the HTML/plain-text issue
// report, an ICS digest of flagged events, and CSV classification
// exports.
package report

import (
	"fmt"
	"html"
	"log/slog"
	"strings"

	"calpilot/internal/models"
)

// Renderer turns a parsed issue list plus the scanned events into a
// human-readable report.
type Renderer struct {
	logger     *slog.Logger
	windowDays int
}

// NewRenderer creates a Renderer. windowDays is the lookback window
// length stated in the report preamble.
func NewRenderer(logger *slog.Logger, windowDays int) *Renderer {
	return &Renderer{logger: logger, windowDays: windowDays}
}

// Render produces the HTML and plain-text report for the given issues.
// Each issue is matched to its event by ID: rows with zero matches
// (the model invented or misquoted an ID) or multiple matches (duplicate
// IDs, a data-integrity signal) are skipped with a warning. Row order
// follows issue input order.
//
// The preamble intentionally reports the pre-filter issue count, while
// the table only contains rows whose lookup succeeded.
func (r *Renderer) Render(issues []models.Issue, events []models.Event) models.Report {
	intro := fmt.Sprintf(
		"I'm an AI agent that has inspected %d events in your calendar for the next %d days. After careful review, I have found %d issues.",
		len(events), r.windowDays, len(issues))

	var htmlOut strings.Builder
	htmlOut.WriteString("<html><body>\n <p>" + html.EscapeString(intro) + "</p>\n\n<hr/>\n\n")
	htmlOut.WriteString("<table border='1'>\n<thead>\n<tr><th>Date</th><th>Title</th><th>Issue</th></tr></thead>\n<tbody>\n\n")

	var textOut strings.Builder
	textOut.WriteString(intro + "\n\n")

	for _, issue := range issues {
		event, ok := r.lookupEvent(issue.EventID, events)
		if !ok {
			continue
		}
		date := event.StartDate()
		fmt.Fprintf(&htmlOut, "<tr><td>%s</td><td><a href=\"%s\">%s</a></td><td>%s</td></tr>\n\n",
			html.EscapeString(date),
			html.EscapeString(event.HTMLLink),
			html.EscapeString(event.Summary),
			html.EscapeString(issue.Description))
		fmt.Fprintf(&textOut, "- %s %q - %s\n\n", date, event.Summary, issue.Description)
	}

	htmlOut.WriteString("</tbody></table>\n\n<hr/>\n\n<p>Thank you for using this AI agent. I'm not perfect, but I'm trying my best! I've attached my full reasoning and thought process in a text file.</p></body></html>")

	return models.Report{HTML: htmlOut.String(), Text: textOut.String()}
}

// lookupEvent finds the single event with the given ID. Zero or multiple
// matches disqualify the row.
func (r *Renderer) lookupEvent(eventID string, events []models.Event) (models.Event, bool) {
	var match models.Event
	count := 0
	for _, ev := range events {
		if ev.ID == eventID {
			match = ev
			count++
		}
	}
	switch {
	case count == 0:
		r.logger.Warn("Issue references an event not in the event list, skipping.", "eventID", eventID)
		return models.Event{}, false
	case count > 1:
		r.logger.Warn("Multiple events share the referenced ID, skipping.", "eventID", eventID, "matches", count)
		return models.Event{}, false
	}
	return match, true
}
