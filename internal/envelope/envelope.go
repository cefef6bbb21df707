// Package envelope parses the tagged structure expected in model
// responses: a <contemplator> block holding the model's reasoning and an
// <answer> block holding the issue list.
package envelope

import (
	"log/slog"
	"regexp"
	"strings"

	"calpilot/internal/models"
)

var (
	contemplatorPattern = regexp.MustCompile(`(?s)<contemplator>(.*?)</contemplator>`)
	answerPattern       = regexp.MustCompile(`(?s)<answer>(.*?)</answer>`)

	// issueLinePattern matches "- [<eventID>] <description>" where the
	// event ID contains no closing bracket.
	issueLinePattern = regexp.MustCompile(`^- \[([^\]]+)\] (.*)`)
)

// Parse extracts the answer and reasoning sections from a raw model
// response. A missing tag yields a nil field rather than an error:
// absence is a normal, retriable outcome decided by the caller.
func Parse(raw string) models.AnalysisResult {
	var result models.AnalysisResult
	if m := answerPattern.FindStringSubmatch(raw); m != nil {
		answer := strings.TrimSpace(m[1])
		result.Answer = &answer
	}
	if m := contemplatorPattern.FindStringSubmatch(raw); m != nil {
		reasoning := strings.TrimSpace(m[1])
		result.Reasoning = &reasoning
	}
	return result
}

// ParseIssueList parses the constrained per-line issue syntax out of an
// answer section. Lines that do not match are skipped with a warning;
// a malformed line never aborts the whole parse.
func ParseIssueList(answer string, logger *slog.Logger) []models.Issue {
	var issues []models.Issue
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := issueLinePattern.FindStringSubmatch(line)
		if m == nil {
			logger.Warn("Issue line does not match expected format, skipping.", "line", line)
			continue
		}
		issues = append(issues, models.Issue{EventID: m[1], Description: m[2]})
	}
	return issues
}
