// Package recurrence edits RFC 5545 recurrence rules. The only supported
// transformation is terminating a series on a given date by forcing an
// UNTIL bound into the rule; everything else in the rule is preserved
// untouched, including parameter order.
package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const rulePrefix = "RRULE:"

var (
	// ErrMalformedRecurrence means the rule string did not start with the
	// literal RRULE: prefix, or one of its segments is not a KEY=VALUE
	// pair. The caller must fix the input.
	ErrMalformedRecurrence = errors.New("recurrence rule must start with RRULE:")

	// ErrUnsupportedRecurrenceShape means a wrapping list did not contain
	// exactly one rule. The calendar API wraps the scalar rule in a
	// single-element array; any other cardinality is a hard error, never
	// silently coerced.
	ErrUnsupportedRecurrenceShape = errors.New("recurrence list must contain exactly one rule")
)

// AddFinalDate terminates a recurring series on cutoff by forcing
// WKST=MO and UNTIL=<cutoff at 23:59:59 UTC> into the rule. Parameters
// already present are overwritten in place; absent ones are appended, WKST
// first. All other parameters keep their first-seen order, so for example
//
//	RRULE:FREQ=WEEKLY;BYDAY=FR
//
// with cutoff 2025-08-22 becomes
//
//	RRULE:FREQ=WEEKLY;BYDAY=FR;WKST=MO;UNTIL=20250822T235959Z
//
// The function is pure and idempotent with respect to UNTIL and WKST;
// calling it again with a different cutoff overwrites (last write wins).
func AddFinalDate(rule string, cutoff time.Time) (string, error) {
	body, ok := strings.CutPrefix(rule, rulePrefix)
	if !ok {
		return "", fmt.Errorf("%w: got %q", ErrMalformedRecurrence, rule)
	}

	pairs := orderedmap.New[string, string]()
	for _, kv := range strings.Split(body, ";") {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return "", fmt.Errorf("%w: segment %q is not a KEY=VALUE pair", ErrMalformedRecurrence, kv)
		}
		pairs.Set(key, value)
	}

	until := time.Date(cutoff.Year(), cutoff.Month(), cutoff.Day(), 23, 59, 59, 0, time.UTC)
	pairs.Set("WKST", "MO")
	pairs.Set("UNTIL", until.Format("20060102T150405")+"Z")

	parts := make([]string, 0, pairs.Len())
	for pair := pairs.Oldest(); pair != nil; pair = pair.Next() {
		parts = append(parts, pair.Key+"="+pair.Value)
	}
	return rulePrefix + strings.Join(parts, ";"), nil
}

// AddFinalDateList is AddFinalDate for the wrapped single-element form
// the calendar API uses for the recurrence field. The output preserves
// the wrapping shape.
func AddFinalDateList(rules []string, cutoff time.Time) ([]string, error) {
	if len(rules) != 1 {
		return nil, fmt.Errorf("%w: got %d", ErrUnsupportedRecurrenceShape, len(rules))
	}
	out, err := AddFinalDate(rules[0], cutoff)
	if err != nil {
		return nil, err
	}
	return []string{out}, nil
}
