// Package rules implements the playlist transformation engine: an
// ordered list of search/replace rules applied to a text document.
//
// The engine is pure — no I/O, no shared state — so it is safe to call
// from request handlers and background refresh loops concurrently.
package rules

import (
	"regexp"
	"strings"

	"github.com/m3uprocessor/m3u-processor/internal/model"
)

// Outcome reports what happened to a single rule during Apply.
//
// A rule never fails the whole operation: a bad rule degrades to a
// no-op for that step. The outcome exists so callers can log or surface
// skipped rules instead of swallowing them invisibly.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeSkippedEmptyPattern
	OutcomeSkippedInvalidPattern
)

// String returns a short label for logging.
func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeSkippedEmptyPattern:
		return "skipped: empty pattern"
	case OutcomeSkippedInvalidPattern:
		return "skipped: invalid pattern"
	default:
		return "unknown"
	}
}

// Result pairs a rule with its outcome.
type Result struct {
	Rule    model.Rule
	Outcome Outcome
}

// Apply runs the rules against document in order and returns the
// transformed text. Deterministic given (document, rules).
func Apply(document string, list []model.Rule) string {
	out, _ := ApplyDetailed(document, list)
	return out
}

// ApplyDetailed is Apply plus a per-rule outcome report.
func ApplyDetailed(document string, list []model.Rule) (string, []Result) {
	results := make([]Result, 0, len(list))
	for _, r := range list {
		var outcome Outcome
		document, outcome = applyOne(document, r)
		results = append(results, Result{Rule: r, Outcome: outcome})
	}
	return document, results
}

func applyOne(document string, r model.Rule) (string, Outcome) {
	if r.Search == "" {
		return document, OutcomeSkippedEmptyPattern
	}

	if r.IsRegex {
		pattern := r.Search
		if !r.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return document, OutcomeSkippedInvalidPattern
		}
		return re.ReplaceAllString(document, r.Replace), OutcomeApplied
	}

	if r.CaseSensitive {
		return strings.ReplaceAll(document, r.Search, r.Replace), OutcomeApplied
	}

	// Case-insensitive literal replace: match via a quoted pattern but
	// insert the replacement verbatim — the replacement text is never
	// case-adapted to the match, and $ sequences in it stay literal.
	re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(r.Search))
	return re.ReplaceAllLiteralString(document, r.Replace), OutcomeApplied
}
