package report

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calpilot/internal/classify"
	"calpilot/internal/models"
)

func newTestRenderer() *Renderer {
	return NewRenderer(slog.New(slog.NewTextHandler(io.Discard, nil)), 21)
}

func sampleEvents() []models.Event {
	return []models.Event{
		{
			ID:       "ev1",
			Summary:  "Weekly sync",
			Start:    models.EventTime{DateTime: "2025-08-20T10:00:00+01:00"},
			End:      models.EventTime{DateTime: "2025-08-20T11:00:00+01:00"},
			HTMLLink: "https://calendar.example/ev1",
		},
		{
			ID:      "ev2",
			Summary: "Offsite",
			Start:   models.EventTime{Date: "2025-08-25"},
			End:     models.EventTime{Date: "2025-08-26"},
		},
	}
}

func TestRender_RowPerResolvedIssue(t *testing.T) {
	issues := []models.Issue{
		{EventID: "ev1", Description: "double-booked"},
		{EventID: "ev2", Description: "no agenda"},
	}
	report := newTestRenderer().Render(issues, sampleEvents())

	// Timed events show the first 10 chars of the timestamp, all-day
	// events their date.
	assert.Contains(t, report.HTML, "<td>2025-08-20</td>")
	assert.Contains(t, report.HTML, "<td>2025-08-25</td>")
	assert.Contains(t, report.HTML, `<a href="https://calendar.example/ev1">Weekly sync</a>`)
	assert.Contains(t, report.Text, `- 2025-08-20 "Weekly sync" - double-booked`)
	assert.Contains(t, report.Text, `- 2025-08-25 "Offsite" - no agenda`)

	// Input order is preserved.
	assert.Less(t, strings.Index(report.Text, "Weekly sync"), strings.Index(report.Text, "Offsite"))
}

func TestRender_DanglingReferenceSkippedButCountedInPreamble(t *testing.T) {
	issues := []models.Issue{
		{EventID: "ev1", Description: "double-booked"},
		{EventID: "ghost", Description: "invented by the model"},
	}
	report := newTestRenderer().Render(issues, sampleEvents())

	// The preamble reports the pre-filter issue count even though only
	// one row survives the lookup. This asymmetry is deliberate.
	assert.Contains(t, report.Text, "I have found 2 issues.")
	assert.Equal(t, 1, strings.Count(report.HTML, "<tr><td>"))
	assert.NotContains(t, report.HTML, "invented by the model")
}

func TestRender_DuplicateEventIDSkipped(t *testing.T) {
	events := append(sampleEvents(), models.Event{ID: "ev1", Summary: "Impostor"})
	issues := []models.Issue{{EventID: "ev1", Description: "double-booked"}}
	report := newTestRenderer().Render(issues, events)

	assert.Equal(t, 0, strings.Count(report.HTML, "<tr><td>"))
	assert.Contains(t, report.Text, "I have found 1 issues.")
}

func TestRender_PreambleStatesCounts(t *testing.T) {
	report := newTestRenderer().Render(nil, sampleEvents())
	assert.Contains(t, report.Text, "inspected 2 events")
	assert.Contains(t, report.Text, "next 21 days")
	assert.Contains(t, report.Text, "found 0 issues")
}

func TestRender_EscapesHTML(t *testing.T) {
	events := []models.Event{{
		ID:      "ev9",
		Summary: "Demo <script>alert(1)</script>",
		Start:   models.EventTime{Date: "2025-09-01"},
		End:     models.EventTime{Date: "2025-09-01"},
	}}
	issues := []models.Issue{{EventID: "ev9", Description: "a < b & c"}}
	report := newTestRenderer().Render(issues, events)
	assert.NotContains(t, report.HTML, "<script>")
	assert.Contains(t, report.HTML, "&lt;script&gt;")
	assert.Contains(t, report.HTML, "a &lt; b &amp; c")
}

func TestBuildICS_ContainsFlaggedEvents(t *testing.T) {
	issues := []models.Issue{
		{EventID: "ev1", Description: "double-booked"},
		{EventID: "ghost", Description: "dangling"},
	}
	ics, err := newTestRenderer().BuildICS(issues, sampleEvents())
	require.NoError(t, err)
	assert.Contains(t, ics, "BEGIN:VCALENDAR")
	assert.Contains(t, ics, "UID:ev1")
	assert.Contains(t, ics, "SUMMARY:Weekly sync")
	assert.NotContains(t, ics, "ghost")
}

func TestWriteSummaries_ColumnLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summaries.csv")
	err := WriteSummaries(path, []UserSummary{
		{User: "alice@corp.example.com", Buckets: map[string]classify.Bucket{
			"SOLO":     {Meetings: 2, Hours: 1.5},
			"EXTERNAL": {Meetings: 1, Hours: 0.5},
		}},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "user,SOLO_MEETINGS,SOLO_DURATION,PERSONAL_MEETINGS,PERSONAL_DURATION,INTERNAL_MEETINGS,INTERNAL_DURATION,INTERNAL_RECURRING_MEETINGS,INTERNAL_RECURRING_DURATION,EXTERNAL_MEETINGS,EXTERNAL_DURATION", lines[0])
	assert.Equal(t, "alice@corp.example.com,2,1.50,0,0.00,0,0.00,0,0.00,1,0.50", lines[1])
}

func TestWriteExternals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "externals.csv")
	hours := 0.75
	err := WriteExternals(path, []models.ClassifiedEvent{
		{User: "alice@corp.example.com", Date: "2025-08-20", DurationHours: &hours, Summary: "Vendor call", ExternalDomain: "acme.com"},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "user,date,duration,summary,external_domain")
	assert.Contains(t, string(data), "alice@corp.example.com,2025-08-20,0.75,Vendor call,acme.com")
}

func TestWriteRecurringInternals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recurring_internals.csv")
	err := WriteRecurringInternals(path, []models.ClassifiedEvent{
		{User: "bob@corp.example.com", RecurringEventID: "series9", Date: "2025-08-21", Summary: "Standup"},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "user,recurringEventId,date,duration,summary")
	assert.Contains(t, string(data), "bob@corp.example.com,series9,2025-08-21,,Standup")
}
