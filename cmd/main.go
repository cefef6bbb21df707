package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"calpilot/internal/analyzer"
	"calpilot/internal/classify"
	"calpilot/internal/config"
	"calpilot/internal/gemini"
	"calpilot/internal/google"
	"calpilot/internal/models"
	"calpilot/internal/nuke"
	"calpilot/internal/report"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "calpilot",
		Usage: "Inspect calendars, flag issues with Gemini, and terminate recurring series.",
		Commands: []*cli.Command{
			analyzeCommand(),
			classifyCommand(),
			nukeCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Analyze calendars with Gemini and report the issues it finds.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Usage: "Only analyze this user's calendar."},
			&cli.StringFlag{Name: "custom", Usage: "Custom prompt to use instead of the user's shared instructions."},
			&cli.StringFlag{Name: "start-date", Usage: "Optional start date (YYYY-MM-DD)."},
			&cli.StringFlag{Name: "end-date", Usage: "Optional end date (YYYY-MM-DD)."},
			&cli.BoolFlag{Name: "sendmail", Usage: "Email the report to the user instead of printing it."},
		},
		Action: func(c *cli.Context) error {
			logger := setupLogger(os.Getenv("LOG_LEVEL"))
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			creds, err := config.LoadServiceAccount()
			if err != nil {
				return err
			}
			geminiCreds, err := config.LoadGemini()
			if err != nil {
				return err
			}

			model, err := gemini.NewClient(c.Context, logger, geminiCreds.APIKey, geminiCreds.ModelName)
			if err != nil {
				return fmt.Errorf("failed to create gemini client: %w", err)
			}

			store := google.NewCalendarClient(logger, creds)
			workspace := google.NewWorkspaceClient(logger, creds, cfg.InstructionsDocName, cfg.AdminEmail)

			var sink analyzer.ReportSink = analyzer.NewLogSink(logger)
			if c.Bool("sendmail") {
				sink = analyzer.NewMailSink(logger, google.NewMailClient(logger, creds))
			}

			pipeline := analyzer.New(logger, store, workspace, model, sink, analyzer.Options{
				DaysInFuture: cfg.DaysInFuture,
				MaxAttempts:  cfg.MaxAttempts,
				UserDelay:    cfg.UserDelay,
			})

			if custom := c.String("custom"); custom != "" {
				return runCustomAnalysis(c.Context, logger, pipeline, c.String("user"), custom, c.String("start-date"), c.String("end-date"))
			}

			if user := c.String("user"); user != "" {
				return runSingleAnalysis(c.Context, pipeline, workspace, user)
			}
			return pipeline.AnalyzeAll(c.Context)
		},
	}
}

func runCustomAnalysis(ctx context.Context, logger *slog.Logger, pipeline *analyzer.Pipeline, user, custom, startStr, endStr string) error {
	if user == "" {
		return fmt.Errorf("--custom requires --user")
	}
	start, end, err := parseWindow(startStr, endStr)
	if err != nil {
		return err
	}

	result, events, err := pipeline.CustomAnalyze(ctx, user, custom, pipeline.Window(start, end))
	if err != nil {
		return err
	}
	logger.Info("Custom analysis finished.", "user", user, "events", len(events))
	if result.Reasoning != nil {
		fmt.Println(*result.Reasoning)
	}
	fmt.Println(strings.Repeat("~", 80))
	if result.Answer != nil {
		fmt.Println(*result.Answer)
	} else {
		fmt.Println("The model did not return an answer.")
	}
	return nil
}

func runSingleAnalysis(ctx context.Context, pipeline *analyzer.Pipeline, workspace *google.WorkspaceClient, user string) error {
	shares, err := workspace.FindUsers(ctx)
	if err != nil {
		return err
	}
	var matched []models.InstructionsShare
	for _, share := range shares {
		if share.User == user {
			matched = append(matched, share)
		}
	}
	if len(matched) != 1 {
		return fmt.Errorf("was asked to analyze %s, but found %d matching users with shared instructions", user, len(matched))
	}
	return pipeline.Analyze(ctx, matched[0].User, matched[0].DocID)
}

func classifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "classify",
		Usage: "Classify events as SOLO, PERSONAL, INTERNAL, or EXTERNAL. Use --user ALL for a workspace-wide CSV export.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Usage: "User to classify events for, or ALL.", Required: true},
			&cli.StringFlag{Name: "start-date", Usage: "Start date (YYYY-MM-DD)."},
			&cli.StringFlag{Name: "end-date", Usage: "End date (YYYY-MM-DD)."},
		},
		Action: func(c *cli.Context) error {
			logger := setupLogger(os.Getenv("LOG_LEVEL"))
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			creds, err := config.LoadServiceAccount()
			if err != nil {
				return err
			}

			start, end, err := parseWindow(c.String("start-date"), c.String("end-date"))
			if err != nil {
				return err
			}
			window := fullDayWindow(start, end, cfg.DaysInFuture)

			store := google.NewCalendarClient(logger, creds)
			classifier := classify.New(cfg.InternalDomains, cfg.PersonalDomains, cfg.ExcludedDomains)

			if user := c.String("user"); user != "ALL" {
				return classifySingleUser(c.Context, store, classifier, user, window)
			}

			workspace := google.NewWorkspaceClient(logger, creds, cfg.InstructionsDocName, cfg.AdminEmail)
			return classifyAllUsers(c.Context, logger, store, workspace, classifier, cfg, window)
		},
	}
}

func classifySingleUser(ctx context.Context, store *google.CalendarClient, classifier *classify.Classifier, user string, window models.Window) error {
	rows, err := collectClassified(ctx, store, classifier, user, window)
	if err != nil {
		return err
	}
	summary := classify.Summarize(rows)
	fmt.Printf("Summary for %s from %s to %s:\n", user, window.Start.Format("2006-01-02"), window.End.Format("2006-01-02"))
	for _, label := range classify.SummaryLabels {
		b := summary[label]
		fmt.Printf("  %s: %d meetings, %.2f hours\n", label, b.Meetings, b.Hours)
	}
	return nil
}

func classifyAllUsers(ctx context.Context, logger *slog.Logger, store *google.CalendarClient, workspace *google.WorkspaceClient, classifier *classify.Classifier, cfg *config.Config, window models.Window) error {
	users, err := workspace.ListWorkspaceUsers(ctx, cfg.InternalDomains)
	if err != nil {
		return err
	}
	if len(users) > cfg.MaxUsers {
		users = users[:cfg.MaxUsers]
	}

	var summaries []report.UserSummary
	var externals, recurringInternals []models.ClassifiedEvent
	for i, user := range users {
		logger.Info("Processing user.", "user", user, "position", fmt.Sprintf("%d/%d", i+1, len(users)))
		rows, err := collectClassified(ctx, store, classifier, user, window)
		if err != nil {
			logger.Error("Classification failed for user, continuing.", "user", user, "error", err)
			continue
		}
		summaries = append(summaries, report.UserSummary{User: user, Buckets: classify.Summarize(rows)})
		for _, row := range rows {
			switch {
			case row.Classification == models.ClassExternal:
				externals = append(externals, row)
			case row.Classification == models.ClassInternal && row.Recurring && row.DurationHours != nil:
				recurringInternals = append(recurringInternals, row)
			}
		}
		if i < len(users)-1 {
			time.Sleep(cfg.UserDelay)
		}
	}

	if err := report.WriteSummaries("summaries.csv", summaries); err != nil {
		return err
	}
	if err := report.WriteExternals("externals.csv", externals); err != nil {
		return err
	}
	if err := report.WriteRecurringInternals("recurring_internals.csv", recurringInternals); err != nil {
		return err
	}
	logger.Info("Wrote classification exports.",
		"summaries", len(summaries), "externals", len(externals), "recurringInternals", len(recurringInternals))
	return nil
}

// collectClassified fetches and classifies one user's events.
func collectClassified(ctx context.Context, store *google.CalendarClient, classifier *classify.Classifier, user string, window models.Window) ([]models.ClassifiedEvent, error) {
	events, err := store.ListEvents(ctx, user, window)
	if err != nil {
		return nil, err
	}
	rows := make([]models.ClassifiedEvent, 0, len(events))
	for _, event := range events {
		class, domain := classifier.Classify(event)
		row := models.ClassifiedEvent{
			User:             user,
			Summary:          event.Summary,
			Date:             event.StartDate(),
			Classification:   class,
			ExternalDomain:   domain,
			Recurring:        classify.IsRecurring(event),
			RecurringEventID: event.RecurringEventID,
		}
		if hours, ok := classify.DurationHours(event); ok {
			row.DurationHours = &hours
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func nukeCommand() *cli.Command {
	return &cli.Command{
		Name:      "nuke",
		Usage:     "Terminate recurring internal meeting series as of a cutoff date. Dry-run unless --commit is set.",
		ArgsUsage: "D-DAY (YYYY-MM-DD)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Usage: "Only apply to a specific user."},
			&cli.StringFlag{Name: "event-id", Usage: "Only apply to a specific recurring series (requires --user)."},
			&cli.BoolFlag{Name: "commit", Usage: "Apply the changes. Without this flag the plan is only printed."},
		},
		Action: func(c *cli.Context) error {
			logger := setupLogger(os.Getenv("LOG_LEVEL"))
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			creds, err := config.LoadServiceAccount()
			if err != nil {
				return err
			}

			dDay, err := parseDate(c.Args().First())
			if err != nil {
				return fmt.Errorf("d-day argument: %w", err)
			}

			store := google.NewCalendarClient(logger, creds)
			workspace := google.NewWorkspaceClient(logger, creds, cfg.InstructionsDocName, cfg.AdminEmail)
			classifier := classify.New(cfg.InternalDomains, cfg.PersonalDomains, cfg.ExcludedDomains)
			nuker := nuke.New(logger, store, workspace, classifier, nuke.Options{
				InternalDomains: cfg.InternalDomains,
				UserDelay:       cfg.UserDelay,
				MaxUsers:        cfg.MaxUsers,
			})

			plan, err := buildPlan(c.Context, nuker, c.String("user"), c.String("event-id"), dDay)
			if err != nil {
				return err
			}

			if len(plan.Changes) == 0 {
				logger.Info("Nothing to change.")
				return nil
			}
			for _, change := range plan.Changes {
				logger.Info("Planned change.", "user", change.User, "eventID", change.EventID,
					"oldRule", change.OldRule, "newRule", change.NewRule)
			}

			if !c.Bool("commit") {
				logger.Info("Dry run: --commit was not set, no changes applied.", "planned", len(plan.Changes))
				return nil
			}
			logger.Warn("Applying planned changes.", "count", len(plan.Changes))
			return nuker.Apply(c.Context, plan)
		},
	}
}

func buildPlan(ctx context.Context, nuker *nuke.Nuker, user, eventID string, dDay time.Time) (*nuke.Plan, error) {
	switch {
	case eventID != "":
		if user == "" {
			return nil, fmt.Errorf("--event-id requires --user")
		}
		change, err := nuker.PlanEvent(ctx, user, eventID, dDay)
		if err != nil {
			return nil, err
		}
		plan := &nuke.Plan{}
		if change != nil {
			plan.Changes = append(plan.Changes, *change)
		}
		return plan, nil
	case user != "":
		changes, err := nuker.PlanUser(ctx, user, dDay)
		if err != nil {
			return nil, err
		}
		return &nuke.Plan{Changes: changes}, nil
	default:
		return nuker.PlanAll(ctx, dDay)
	}
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("expected a date in YYYY-MM-DD format")
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format, expected YYYY-MM-DD, got %q", s)
	}
	return t, nil
}

func parseWindow(startStr, endStr string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error
	if startStr != "" {
		if start, err = parseDate(startStr); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if endStr != "" {
		if end, err = parseDate(endStr); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return start, end, nil
}

// fullDayWindow expands two dates into a [00:00:00, 23:59:59] window,
// defaulting to now through daysAhead days when either date is missing.
func fullDayWindow(start, end time.Time, daysAhead int) models.Window {
	if start.IsZero() || end.IsZero() {
		now := time.Now().UTC()
		return models.Window{Start: now, End: now.AddDate(0, 0, daysAhead)}
	}
	return models.Window{
		Start: time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC),
		End:   time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, time.UTC),
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return logger
}
