// Package view derives the filtered, paged and aggregated projections the
// dashboards render from an immutable record snapshot.
package view

import (
	"strings"

	"github.com/tinytelemetry/warden/internal/model"
)

// Matches reports whether r satisfies every criterion in f. Criteria
// compose by AND; a wildcard criterion imposes no constraint.
func Matches(r *model.LogRecord, f model.FilterSpec) bool {
	if !f.AnyMethod() && r.Method != f.Method {
		return false
	}
	if !f.AnyDecision() && r.Decision != f.Decision {
		return false
	}
	if f.Status != 0 && r.StatusCode != f.Status {
		return false
	}
	return matchesSearch(r, strings.ToLower(f.Search))
}

// matchesSearch expects needle to be lower-cased already.
func matchesSearch(r *model.LogRecord, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(r.SourceAddress), needle) ||
		strings.Contains(strings.ToLower(r.Path), needle)
}

// Filter returns the records matching f in their original order. The
// input slice is never modified; with a zero filter it is returned as is.
func Filter(records []model.LogRecord, f model.FilterSpec) []model.LogRecord {
	if f.IsZero() {
		return records
	}
	needle := strings.ToLower(f.Search)
	f.Search = ""
	out := make([]model.LogRecord, 0, len(records))
	for i := range records {
		r := &records[i]
		if Matches(r, f) && matchesSearch(r, needle) {
			out = append(out, *r)
		}
	}
	return out
}
