package classify

import (
	"sort"
	"strings"
	"time"

	"calpilot/internal/models"
)

// Classifier buckets events by attendee domains. The domain sets are
// injected at construction and never mutated, so a Classifier is safe to
// share and trivially testable offline.
type Classifier struct {
	internal map[string]bool
	personal map[string]bool
	excluded map[string]bool
}

// New builds a Classifier from the three domain lists. Domains are
// matched case-insensitively; the lists are lower-cased here.
func New(internal, personal, excluded []string) *Classifier {
	return &Classifier{
		internal: toSet(internal),
		personal: toSet(personal),
		excluded: toSet(excluded),
	}
}

func toSet(domains []string) map[string]bool {
	set := make(map[string]bool, len(domains))
	for _, d := range domains {
		set[strings.ToLower(d)] = true
	}
	return set
}

// Classify labels an event as SOLO, PERSONAL, INTERNAL, or EXTERNAL
// based on its attendees, and returns the matched domain for EXTERNAL
// and PERSONAL events.
//
// Precedence is strict: EXTERNAL > PERSONAL > INTERNAL > SOLO. A single
// non-internal attendee overrides an otherwise-internal meeting.
// Attendees flagged as self and attendees from excluded domains (rooms,
// resource calendars, bots) never influence the outcome. Domains are
// scanned in lexicographic order so the reported domain is the smallest
// qualifying one, keeping output reproducible across runs.
func (c *Classifier) Classify(event models.Event) (models.Classification, string) {
	domainSet := make(map[string]bool)
	remaining := 0
	for _, a := range event.Attendees {
		if a.Self {
			continue
		}
		domain := a.Domain()
		if c.excluded[domain] {
			continue
		}
		remaining++
		domainSet[domain] = true
	}

	if remaining == 0 {
		return models.ClassSolo, ""
	}

	domains := make([]string, 0, len(domainSet))
	for d := range domainSet {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	for _, d := range domains {
		if !c.internal[d] && !c.personal[d] {
			return models.ClassExternal, d
		}
	}
	for _, d := range domains {
		if c.personal[d] {
			return models.ClassPersonal, d
		}
	}
	return models.ClassInternal, ""
}

// IsRecurring reports whether the event belongs to a recurring series.
func IsRecurring(event models.Event) bool {
	return event.RecurringEventID != ""
}

// DurationHours returns the event length in hours. All-day events (a
// date-only start or end) return false: they have no meaningful duration.
// Timestamps keep their offsets, so events crossing midnight or a DST
// boundary compute correctly.
func DurationHours(event models.Event) (float64, bool) {
	if event.Start.IsDateOnly() || event.End.IsDateOnly() {
		return 0, false
	}
	start, err := time.Parse(time.RFC3339, event.Start.DateTime)
	if err != nil {
		return 0, false
	}
	end, err := time.Parse(time.RFC3339, event.End.DateTime)
	if err != nil {
		return 0, false
	}
	return end.Sub(start).Hours(), true
}

// Bucket accumulates meeting count and total duration for one label.
type Bucket struct {
	Meetings int
	Hours    float64
}

// SummaryLabels is the fixed column order for classification summaries.
// INTERNAL meetings that belong to a recurring series are counted under
// INTERNAL_RECURRING instead of INTERNAL.
var SummaryLabels = []string{"SOLO", "PERSONAL", "INTERNAL", "INTERNAL_RECURRING", "EXTERNAL"}

// Summarize counts classified events per label, splitting recurring
// internal meetings into their own bucket.
func Summarize(events []models.ClassifiedEvent) map[string]Bucket {
	summary := make(map[string]Bucket, len(SummaryLabels))
	for _, label := range SummaryLabels {
		summary[label] = Bucket{}
	}
	for _, ev := range events {
		label := string(ev.Classification)
		if ev.Classification == models.ClassInternal && ev.Recurring {
			label = "INTERNAL_RECURRING"
		}
		b := summary[label]
		b.Meetings++
		if ev.DurationHours != nil {
			b.Hours += *ev.DurationHours
		}
		summary[label] = b
	}
	return summary
}
