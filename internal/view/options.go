package view

import (
	"slices"

	"github.com/tinytelemetry/warden/internal/model"
)

// Options lists the distinct criterion values present in a snapshot, for
// populating filter selectors.
type Options struct {
	Methods   []model.Method   `json:"methods"`
	Decisions []model.Decision `json:"decisions"`
	Statuses  []int            `json:"statuses"`
}

// FilterOptions collects the distinct methods, decisions and status codes
// in records. Methods and decisions follow display order; statuses ascend.
func FilterOptions(records []model.LogRecord) Options {
	methods := make(map[model.Method]struct{})
	decisions := make(map[model.Decision]struct{})
	statuses := make(map[int]struct{})
	for i := range records {
		methods[records[i].Method] = struct{}{}
		decisions[records[i].Decision] = struct{}{}
		statuses[records[i].StatusCode] = struct{}{}
	}

	var opts Options
	for _, m := range model.Methods {
		if _, ok := methods[m]; ok {
			opts.Methods = append(opts.Methods, m)
		}
	}
	for _, d := range model.Decisions {
		if _, ok := decisions[d]; ok {
			opts.Decisions = append(opts.Decisions, d)
		}
	}
	for s := range statuses {
		opts.Statuses = append(opts.Statuses, s)
	}
	slices.Sort(opts.Statuses)
	return opts
}
