package nuke

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calpilot/internal/classify"
	"calpilot/internal/models"
)

var dDay = time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)

type fakeStore struct {
	eventsByUser map[string][]models.Event
	series       map[string]models.Event
	listErr      map[string]error
	updates      []string
	updateErr    error
}

func (f *fakeStore) ListEvents(_ context.Context, user string, _ models.Window) ([]models.Event, error) {
	if err := f.listErr[user]; err != nil {
		return nil, err
	}
	return f.eventsByUser[user], nil
}

func (f *fakeStore) GetEvent(_ context.Context, _, eventID string) (*models.Event, error) {
	event, ok := f.series[eventID]
	if !ok {
		return nil, fmt.Errorf("event %s not found", eventID)
	}
	return &event, nil
}

func (f *fakeStore) UpdateRecurrence(_ context.Context, user, eventID string, rules []string) (*models.Event, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updates = append(f.updates, user+"/"+eventID)
	event := f.series[eventID]
	event.Recurrence = rules
	return &event, nil
}

type fakeDirectory struct {
	users []string
}

func (f *fakeDirectory) ListWorkspaceUsers(_ context.Context, _ []string) ([]string, error) {
	return f.users, nil
}

func internalAttendees() []models.Attendee {
	return []models.Attendee{
		{Email: "alice@corp.example.com"},
		{Email: "bob@corp.example.com"},
	}
}

func newTestNuker(store *fakeStore, dir Directory) *Nuker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	classifier := classify.New([]string{"corp.example.com"}, []string{"gmail.com"}, nil)
	return New(logger, store, dir, classifier, Options{MaxUsers: 500})
}

func TestPlanEvent_ProducesChange(t *testing.T) {
	store := &fakeStore{series: map[string]models.Event{
		"series1": {ID: "series1", Recurrence: []string{"RRULE:FREQ=WEEKLY;BYDAY=FR"}},
	}}
	n := newTestNuker(store, &fakeDirectory{})

	change, err := n.PlanEvent(context.Background(), "alice@corp.example.com", "series1", dDay)
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, []string{"RRULE:FREQ=WEEKLY;BYDAY=FR"}, change.OldRule)
	assert.Equal(t, []string{"RRULE:FREQ=WEEKLY;BYDAY=FR;WKST=MO;UNTIL=20250901T235959Z"}, change.NewRule)
}

func TestPlanEvent_NoChangeNeeded(t *testing.T) {
	rule := "RRULE:FREQ=WEEKLY;BYDAY=FR;WKST=MO;UNTIL=20250901T235959Z"
	store := &fakeStore{series: map[string]models.Event{
		"series1": {ID: "series1", Recurrence: []string{rule}},
	}}
	n := newTestNuker(store, &fakeDirectory{})

	change, err := n.PlanEvent(context.Background(), "alice@corp.example.com", "series1", dDay)
	require.NoError(t, err)
	assert.Nil(t, change)
}

func TestPlanEvent_RejectsMultiRuleSeries(t *testing.T) {
	store := &fakeStore{series: map[string]models.Event{
		"series1": {ID: "series1", Recurrence: []string{"RRULE:FREQ=WEEKLY", "RRULE:FREQ=DAILY"}},
	}}
	n := newTestNuker(store, &fakeDirectory{})

	_, err := n.PlanEvent(context.Background(), "alice@corp.example.com", "series1", dDay)
	require.Error(t, err)
}

func TestPlanUser_SelectsOnlyInternalRecurringSeries(t *testing.T) {
	user := "alice@corp.example.com"
	store := &fakeStore{
		eventsByUser: map[string][]models.Event{user: {
			// Two instances of the same internal series: planned once.
			{ID: "i1", RecurringEventID: "seriesA", Attendees: internalAttendees()},
			{ID: "i2", RecurringEventID: "seriesA", Attendees: internalAttendees()},
			// External recurring meeting: never nuked.
			{ID: "i3", RecurringEventID: "seriesB", Attendees: []models.Attendee{{Email: "v@acme.com"}}},
			// Internal one-off: not recurring, skipped.
			{ID: "i4", Attendees: internalAttendees()},
			// Second internal series.
			{ID: "i5", RecurringEventID: "seriesC", Attendees: internalAttendees()},
		}},
		series: map[string]models.Event{
			"seriesA": {ID: "seriesA", Recurrence: []string{"RRULE:FREQ=WEEKLY;BYDAY=MO"}},
			"seriesC": {ID: "seriesC", Recurrence: []string{"RRULE:FREQ=DAILY"}},
		},
	}
	n := newTestNuker(store, &fakeDirectory{})

	changes, err := n.PlanUser(context.Background(), user, dDay)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "seriesA", changes[0].EventID)
	assert.Equal(t, "seriesC", changes[1].EventID)
}

func TestPlanAll_ContinuesPastFailingUser(t *testing.T) {
	store := &fakeStore{
		eventsByUser: map[string][]models.Event{
			"ok@corp.example.com": {
				{ID: "i1", RecurringEventID: "seriesA", Attendees: internalAttendees()},
			},
		},
		listErr: map[string]error{"broken@corp.example.com": fmt.Errorf("calendar exploded")},
		series: map[string]models.Event{
			"seriesA": {ID: "seriesA", Recurrence: []string{"RRULE:FREQ=WEEKLY"}},
		},
	}
	dir := &fakeDirectory{users: []string{"broken@corp.example.com", "ok@corp.example.com"}}
	n := newTestNuker(store, dir)

	plan, err := n.PlanAll(context.Background(), dDay)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken@corp.example.com")
	require.NotNil(t, plan)
	require.Len(t, plan.Changes, 1)
	assert.Equal(t, "ok@corp.example.com", plan.Changes[0].User)
}

func TestPlanAll_CapsUserCount(t *testing.T) {
	dir := &fakeDirectory{users: []string{"a@corp.example.com", "b@corp.example.com", "c@corp.example.com"}}
	store := &fakeStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	classifier := classify.New([]string{"corp.example.com"}, nil, nil)
	n := New(logger, store, dir, classifier, Options{MaxUsers: 2})

	plan, err := n.PlanAll(context.Background(), dDay)
	require.NoError(t, err)
	assert.Empty(t, plan.Changes)
}

func TestApply_PushesEveryChange(t *testing.T) {
	store := &fakeStore{series: map[string]models.Event{
		"seriesA": {ID: "seriesA"},
		"seriesC": {ID: "seriesC"},
	}}
	n := newTestNuker(store, &fakeDirectory{})

	plan := &Plan{Changes: []Change{
		{User: "alice@corp.example.com", EventID: "seriesA", NewRule: []string{"RRULE:FREQ=WEEKLY;WKST=MO;UNTIL=20250901T235959Z"}},
		{User: "alice@corp.example.com", EventID: "seriesC", NewRule: []string{"RRULE:FREQ=DAILY;WKST=MO;UNTIL=20250901T235959Z"}},
	}}
	require.NoError(t, n.Apply(context.Background(), plan))
	assert.Equal(t, []string{"alice@corp.example.com/seriesA", "alice@corp.example.com/seriesC"}, store.updates)
}

func TestApply_ReportsFailures(t *testing.T) {
	store := &fakeStore{updateErr: fmt.Errorf("forbidden")}
	n := newTestNuker(store, &fakeDirectory{})

	plan := &Plan{Changes: []Change{{User: "u", EventID: "seriesA", NewRule: []string{"RRULE:FREQ=DAILY"}}}}
	err := n.Apply(context.Background(), plan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1")
}
