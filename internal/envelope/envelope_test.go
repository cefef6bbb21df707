package envelope

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calpilot/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParse_BothSections(t *testing.T) {
	raw := "preamble\n<contemplator>\nthinking...\n</contemplator>\n<answer>\n- [a] b\n</answer>\ntrailer"
	result := Parse(raw)
	require.True(t, result.Complete())
	assert.Equal(t, "thinking...", *result.Reasoning)
	assert.Equal(t, "- [a] b", *result.Answer)
}

func TestParse_AnswerOnly(t *testing.T) {
	result := Parse("<answer>X</answer>")
	require.NotNil(t, result.Answer)
	assert.Equal(t, "X", *result.Answer)
	assert.Nil(t, result.Reasoning)
	assert.False(t, result.Complete())
}

func TestParse_NoTags(t *testing.T) {
	result := Parse("the model rambled without any tags")
	assert.Nil(t, result.Answer)
	assert.Nil(t, result.Reasoning)
}

func TestParse_FirstNonGreedyMatchWins(t *testing.T) {
	raw := "<answer>first</answer> junk <answer>second</answer>"
	result := Parse(raw)
	require.NotNil(t, result.Answer)
	assert.Equal(t, "first", *result.Answer)
}

func TestParse_EmptyTagIsPresent(t *testing.T) {
	// An empty tag is still a present section; only an absent tag is nil.
	result := Parse("<answer></answer><contemplator>why</contemplator>")
	require.NotNil(t, result.Answer)
	assert.Equal(t, "", *result.Answer)
	assert.True(t, result.Complete())
}

func TestParseIssueList_SkipsMalformedLines(t *testing.T) {
	answer := "- [abc123] double-booked\nnot a valid line\n- [def456] too long"
	issues := ParseIssueList(answer, discardLogger())
	assert.Equal(t, []models.Issue{
		{EventID: "abc123", Description: "double-booked"},
		{EventID: "def456", Description: "too long"},
	}, issues)
}

func TestParseIssueList_BlankLinesIgnored(t *testing.T) {
	answer := "\n\n- [x1] overlapping with 1:1\n\n   \n- [x2] no agenda\n"
	issues := ParseIssueList(answer, discardLogger())
	require.Len(t, issues, 2)
	assert.Equal(t, "x1", issues[0].EventID)
	assert.Equal(t, "x2", issues[1].EventID)
}

func TestParseIssueList_BracketInDescription(t *testing.T) {
	issues := ParseIssueList("- [ev1] talk [recording] runs over lunch", discardLogger())
	require.Len(t, issues, 1)
	assert.Equal(t, "ev1", issues[0].EventID)
	assert.Equal(t, "talk [recording] runs over lunch", issues[0].Description)
}

func TestParseIssueList_EmptyAnswer(t *testing.T) {
	assert.Empty(t, ParseIssueList("", discardLogger()))
}
