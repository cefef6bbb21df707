// Package analyzer is the analysis pipeline: it composes the event
// store, instructions source, and model service, applies the retry
// policy, and hands the rendered report to a sink.
package analyzer

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"calpilot/internal/envelope"
	"calpilot/internal/models"
	"calpilot/internal/report"
)

//go:embed prompt.txt
var promptTemplate string

// ErrModelResponseIncomplete means the model never produced both an
// answer and a reasoning section within the retry bound. Terminal for
// the affected user; never reported as a partial result.
var ErrModelResponseIncomplete = errors.New("model response missing answer or reasoning")

// EventStore lists a user's calendar events over a window.
type EventStore interface {
	ListEvents(ctx context.Context, user string, w models.Window) ([]models.Event, error)
}

// InstructionsSource resolves analysis instructions and the users who
// shared them.
type InstructionsSource interface {
	GetInstructions(ctx context.Context, docID string) (string, error)
	FindUsers(ctx context.Context) ([]models.InstructionsShare, error)
}

// ModelService generates a raw text response for a prompt.
type ModelService interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Delivery is one finished report headed for a sink.
type Delivery struct {
	User      string
	Report    models.Report
	Reasoning string
	ICS       string
}

// ReportSink delivers a finished report (mail, stdout, ...).
type ReportSink interface {
	Deliver(ctx context.Context, d Delivery) error
}

// Options are the pipeline policy knobs.
type Options struct {
	// DaysInFuture is the lookahead window length.
	DaysInFuture int
	// MaxAttempts bounds model calls per user, counting the first.
	MaxAttempts int
	// UserDelay is the pause between users in batch runs, to stay
	// inside external rate limits.
	UserDelay time.Duration
}

// Pipeline runs the analysis end to end for one user at a time.
type Pipeline struct {
	logger   *slog.Logger
	store    EventStore
	docs     InstructionsSource
	model    ModelService
	sink     ReportSink
	renderer *report.Renderer
	opts     Options
}

// New creates a Pipeline.
func New(logger *slog.Logger, store EventStore, docs InstructionsSource, model ModelService, sink ReportSink, opts Options) *Pipeline {
	return &Pipeline{
		logger:   logger,
		store:    store,
		docs:     docs,
		model:    model,
		sink:     sink,
		renderer: report.NewRenderer(logger, opts.DaysInFuture),
		opts:     opts,
	}
}

// Analyze inspects one user's calendar: fetch events and instructions,
// prompt the model (retrying while the envelope is incomplete), parse
// the issue list, render, and deliver.
func (p *Pipeline) Analyze(ctx context.Context, user, docID string) error {
	window := p.defaultWindow()
	events, err := p.store.ListEvents(ctx, user, window)
	if err != nil {
		return fmt.Errorf("failed to fetch events for %s: %w", user, err)
	}

	instructions, err := p.docs.GetInstructions(ctx, docID)
	if err != nil {
		return fmt.Errorf("failed to fetch instructions for %s: %w", user, err)
	}

	prompt, err := buildPrompt(events, instructions)
	if err != nil {
		return fmt.Errorf("failed to build prompt for %s: %w", user, err)
	}

	result, err := p.generateComplete(ctx, prompt)
	if err != nil {
		return fmt.Errorf("analysis failed for %s: %w", user, err)
	}

	issues := envelope.ParseIssueList(*result.Answer, p.logger)
	rendered := p.renderer.Render(issues, events)

	ics, err := p.renderer.BuildICS(issues, events)
	if err != nil {
		p.logger.Warn("Could not build ICS digest, delivering without it.", "user", user, "error", err)
		ics = ""
	}

	return p.sink.Deliver(ctx, Delivery{
		User:      user,
		Report:    rendered,
		Reasoning: *result.Reasoning,
		ICS:       ics,
	})
}

// AnalyzeAll runs Analyze for every user who shared an instructions
// document. One user's failure is recorded and the batch continues; the
// accumulated failures come back as a single error at the end.
func (p *Pipeline) AnalyzeAll(ctx context.Context) error {
	shares, err := p.docs.FindUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to find users with shared instructions: %w", err)
	}
	p.logger.Info("Analyzing calendars.", "users", len(shares))

	var failed []string
	for i, share := range shares {
		p.logger.Info("Analyzing calendar.", "user", share.User)
		if err := p.Analyze(ctx, share.User, share.DocID); err != nil {
			p.logger.Error("Analysis failed for user, continuing batch.", "user", share.User, "error", err)
			failed = append(failed, share.User)
		}
		if i < len(shares)-1 {
			time.Sleep(p.opts.UserDelay)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("analysis failed for %d of %d users: %s", len(failed), len(shares), strings.Join(failed, ", "))
	}
	return nil
}

// CustomAnalyze prompts the model once with ad-hoc instructions over the
// user's events in the given window and returns the raw sections. No
// retry policy: the caller sees exactly what the model produced.
func (p *Pipeline) CustomAnalyze(ctx context.Context, user, instructions string, window models.Window) (models.AnalysisResult, []models.Event, error) {
	events, err := p.store.ListEvents(ctx, user, window)
	if err != nil {
		return models.AnalysisResult{}, nil, fmt.Errorf("failed to fetch events for %s: %w", user, err)
	}
	prompt, err := buildPrompt(events, instructions)
	if err != nil {
		return models.AnalysisResult{}, nil, fmt.Errorf("failed to build prompt for %s: %w", user, err)
	}
	raw, err := p.model.Generate(ctx, prompt)
	if err != nil {
		return models.AnalysisResult{}, nil, err
	}
	return envelope.Parse(raw), events, nil
}

// DefaultWindow returns the standard analysis window: now through the
// configured number of days ahead.
func (p *Pipeline) defaultWindow() models.Window {
	now := time.Now().UTC()
	return models.Window{Start: now, End: now.AddDate(0, 0, p.opts.DaysInFuture)}
}

// Window builds an explicit full-day window from two dates, falling back
// to the default when either is zero.
func (p *Pipeline) Window(start, end time.Time) models.Window {
	if start.IsZero() || end.IsZero() {
		return p.defaultWindow()
	}
	return models.Window{
		Start: time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC),
		End:   time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, time.UTC),
	}
}

// generateComplete calls the model until it produces both sections,
// bounded by MaxAttempts. Transport errors are not retried; only an
// incomplete envelope is.
func (p *Pipeline) generateComplete(ctx context.Context, prompt string) (models.AnalysisResult, error) {
	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		raw, err := p.model.Generate(ctx, prompt)
		if err != nil {
			return models.AnalysisResult{}, err
		}
		result := envelope.Parse(raw)
		if result.Complete() {
			return result, nil
		}
		p.logger.Warn("No answer or reasoning from the model, retrying.", "attempt", attempt, "maxAttempts", p.opts.MaxAttempts)
	}
	return models.AnalysisResult{}, fmt.Errorf("%w after %d attempts", ErrModelResponseIncomplete, p.opts.MaxAttempts)
}

// buildPrompt substitutes the serialized event list and the instructions
// into the prompt template. Events are serialized as indented JSON; keys
// follow the struct declaration order rather than being sorted, which is
// still fully deterministic, so identical inputs always produce the
// identical prompt.
func buildPrompt(events []models.Event, instructions string) (string, error) {
	data, err := json.MarshalIndent(events, "", "    ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize events: %w", err)
	}
	prompt := strings.ReplaceAll(promptTemplate, "{events}", string(data))
	prompt = strings.ReplaceAll(prompt, "{instructions}", instructions)
	return prompt, nil
}
