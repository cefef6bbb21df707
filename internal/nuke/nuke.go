// Package nuke builds and applies plans that terminate recurring
// internal meeting series as of a cutoff date. Planning is read-only;
// nothing is written to any calendar unless the caller explicitly
// applies the plan.
package nuke

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"calpilot/internal/classify"
	"calpilot/internal/models"
	"calpilot/internal/recurrence"
)

// EventStore is the calendar surface the nuker needs.
type EventStore interface {
	ListEvents(ctx context.Context, user string, w models.Window) ([]models.Event, error)
	GetEvent(ctx context.Context, user, eventID string) (*models.Event, error)
	UpdateRecurrence(ctx context.Context, user, eventID string, rules []string) (*models.Event, error)
}

// Directory enumerates workspace users.
type Directory interface {
	ListWorkspaceUsers(ctx context.Context, validDomains []string) ([]string, error)
}

// Change is one planned recurrence rewrite.
type Change struct {
	User    string
	EventID string
	OldRule []string
	NewRule []string
}

// Plan is the full set of rewrites a run would make.
type Plan struct {
	Changes []Change
}

// Options are the nuker policy knobs.
type Options struct {
	// InternalDomains limits workspace enumeration to real staff
	// accounts.
	InternalDomains []string
	// UserDelay is the pause between users in PlanAll.
	UserDelay time.Duration
	// MaxUsers caps how many users PlanAll will touch in one run.
	MaxUsers int
}

// Nuker plans and applies series terminations.
type Nuker struct {
	logger     *slog.Logger
	store      EventStore
	dir        Directory
	classifier *classify.Classifier
	opts       Options
}

// New creates a Nuker.
func New(logger *slog.Logger, store EventStore, dir Directory, classifier *classify.Classifier, opts Options) *Nuker {
	return &Nuker{logger: logger, store: store, dir: dir, classifier: classifier, opts: opts}
}

// PlanEvent plans the termination of a single recurring series. A nil
// Change means the rule already carries the requested bound.
func (n *Nuker) PlanEvent(ctx context.Context, user, eventID string, dDay time.Time) (*Change, error) {
	event, err := n.store.GetEvent(ctx, user, eventID)
	if err != nil {
		return nil, err
	}

	newRules, err := recurrence.AddFinalDateList(event.Recurrence, dDay)
	if err != nil {
		return nil, fmt.Errorf("cannot terminate series %s for %s: %w", eventID, user, err)
	}

	if equalRules(event.Recurrence, newRules) {
		n.logger.Info("No change to event is required.", "user", user, "eventID", eventID)
		return nil, nil
	}
	n.logger.Info("Planned recurrence change.",
		"user", user, "eventID", eventID, "oldRule", event.Recurrence, "newRule", newRules)
	return &Change{User: user, EventID: eventID, OldRule: event.Recurrence, NewRule: newRules}, nil
}

// PlanUser plans terminations for every recurring INTERNAL series on one
// user's calendar, scanning from d-day through the end of that year.
// Series are deduplicated by recurring event ID in first-seen order.
func (n *Nuker) PlanUser(ctx context.Context, user string, dDay time.Time) ([]Change, error) {
	window := models.Window{
		Start: dDay,
		End:   time.Date(dDay.Year(), time.December, 31, 23, 59, 59, 0, time.UTC),
	}
	events, err := n.store.ListEvents(ctx, user, window)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var seriesIDs []string
	for _, event := range events {
		class, _ := n.classifier.Classify(event)
		if class != models.ClassInternal || !classify.IsRecurring(event) {
			continue
		}
		if seen[event.RecurringEventID] {
			continue
		}
		seen[event.RecurringEventID] = true
		seriesIDs = append(seriesIDs, event.RecurringEventID)
	}
	n.logger.Info("Found recurring internal series.", "user", user, "count", len(seriesIDs))

	var changes []Change
	for _, id := range seriesIDs {
		change, err := n.PlanEvent(ctx, user, id, dDay)
		if err != nil {
			n.logger.Error("Could not plan series termination, skipping.", "user", user, "eventID", id, "error", err)
			continue
		}
		if change != nil {
			changes = append(changes, *change)
		}
	}
	return changes, nil
}

// PlanAll plans terminations for every user in the workspace, one user
// at a time. A failing user is recorded and the run continues.
func (n *Nuker) PlanAll(ctx context.Context, dDay time.Time) (*Plan, error) {
	users, err := n.dir.ListWorkspaceUsers(ctx, n.opts.InternalDomains)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate workspace users: %w", err)
	}
	if n.opts.MaxUsers > 0 && len(users) > n.opts.MaxUsers {
		users = users[:n.opts.MaxUsers]
	}
	n.logger.Info("Planning series terminations.", "users", len(users))

	plan := &Plan{}
	var failed []string
	for i, user := range users {
		n.logger.Info("Processing user.", "user", user, "position", fmt.Sprintf("%d/%d", i+1, len(users)))
		changes, err := n.PlanUser(ctx, user, dDay)
		if err != nil {
			n.logger.Error("Planning failed for user, continuing.", "user", user, "error", err)
			failed = append(failed, user)
		}
		plan.Changes = append(plan.Changes, changes...)
		if i < len(users)-1 {
			time.Sleep(n.opts.UserDelay)
		}
	}

	if len(failed) > 0 {
		return plan, fmt.Errorf("planning failed for %d of %d users: %s", len(failed), len(users), strings.Join(failed, ", "))
	}
	return plan, nil
}

// Apply pushes every planned change through the event store. Callers
// must only reach this behind an explicit commit flag; the default
// posture is to report the plan and stop.
func (n *Nuker) Apply(ctx context.Context, plan *Plan) error {
	var failed int
	for _, change := range plan.Changes {
		n.logger.Warn("Applying recurrence change.", "user", change.User, "eventID", change.EventID, "newRule", change.NewRule)
		if _, err := n.store.UpdateRecurrence(ctx, change.User, change.EventID, change.NewRule); err != nil {
			n.logger.Error("Failed to apply change.", "user", change.User, "eventID", change.EventID, "error", err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to apply %d of %d changes", failed, len(plan.Changes))
	}
	return nil
}

func equalRules(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
