package report

import (
	"encoding/csv"
	"fmt"
	"os"

	"calpilot/internal/classify"
	"calpilot/internal/models"
)

// UserSummary is one user's classification totals.
type UserSummary struct {
	User    string
	Buckets map[string]classify.Bucket
}

// WriteSummaries writes per-user classification counts and hours to a
// CSV file, one column pair per classification label.
func WriteSummaries(path string, summaries []UserSummary) error {
	header := []string{"user"}
	for _, label := range classify.SummaryLabels {
		header = append(header, label+"_MEETINGS", label+"_DURATION")
	}

	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		row := []string{s.User}
		for _, label := range classify.SummaryLabels {
			b := s.Buckets[label]
			row = append(row, fmt.Sprintf("%d", b.Meetings), fmt.Sprintf("%.2f", b.Hours))
		}
		rows = append(rows, row)
	}
	return writeCSV(path, header, rows)
}

// WriteExternals writes all externally-classified events to a CSV file.
func WriteExternals(path string, events []models.ClassifiedEvent) error {
	header := []string{"user", "date", "duration", "summary", "external_domain"}
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []string{ev.User, ev.Date, formatDuration(ev.DurationHours), ev.Summary, ev.ExternalDomain})
	}
	return writeCSV(path, header, rows)
}

// WriteRecurringInternals writes all recurring internal events to a CSV
// file, keyed by their series ID.
func WriteRecurringInternals(path string, events []models.ClassifiedEvent) error {
	header := []string{"user", "recurringEventId", "date", "duration", "summary"}
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []string{ev.User, ev.RecurringEventID, ev.Date, formatDuration(ev.DurationHours), ev.Summary})
	}
	return writeCSV(path, header, rows)
}

func formatDuration(hours *float64) string {
	if hours == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *hours)
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header to %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write rows to %s: %w", path, err)
	}
	w.Flush()
	return w.Error()
}
