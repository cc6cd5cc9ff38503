package view

import (
	"math"
	"time"

	"github.com/tinytelemetry/warden/internal/model"
)

// StatusClass buckets HTTP status codes by their leading digit.
type StatusClass string

const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// StatusClasses lists every class, in display order.
var StatusClasses = []StatusClass{Status2xx, Status3xx, Status4xx, Status5xx, StatusOther}

// ClassifyStatus returns the class of an HTTP status code.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}

// Stats is the aggregate summary of a record collection. Every map carries
// all of its keys, zero-valued when nothing fell in the bucket.
type Stats struct {
	Total       int                    `json:"total"`
	PerDecision map[model.Decision]int `json:"per_decision"`
	PerMethod   map[model.Method]int   `json:"per_method"`
	PerHour     [24]int                `json:"per_hour"`
	PerStatus   map[StatusClass]int    `json:"per_status"`
}

func emptyStats() Stats {
	s := Stats{
		PerDecision: make(map[model.Decision]int, len(model.Decisions)),
		PerMethod:   make(map[model.Method]int, len(model.Methods)),
		PerStatus:   make(map[StatusClass]int, len(StatusClasses)),
	}
	for _, d := range model.Decisions {
		s.PerDecision[d] = 0
	}
	for _, m := range model.Methods {
		s.PerMethod[m] = 0
	}
	for _, c := range StatusClasses {
		s.PerStatus[c] = 0
	}
	return s
}

// Aggregate reduces records into Stats with hours taken in local time.
func Aggregate(records []model.LogRecord) Stats {
	return AggregateIn(records, time.Local)
}

// AggregateIn reduces records into Stats, bucketing hours in loc. The
// result does not depend on record order.
func AggregateIn(records []model.LogRecord, loc *time.Location) Stats {
	if loc == nil {
		loc = time.Local
	}
	s := emptyStats()
	s.Total = len(records)
	for i := range records {
		r := &records[i]

		d := r.Decision
		if _, ok := s.PerDecision[d]; !ok {
			d = model.DecisionUnknown
		}
		s.PerDecision[d]++

		m := r.Method
		if _, ok := s.PerMethod[m]; !ok {
			m = model.MethodOther
		}
		s.PerMethod[m]++

		s.PerStatus[ClassifyStatus(r.StatusCode)]++

		if !r.Timestamp.IsZero() {
			s.PerHour[r.Timestamp.In(loc).Hour()]++
		}
	}
	return s
}

// Percent returns the share of records with decision d, rounded to a
// whole percentage. An empty collection yields 0.
func (s Stats) Percent(d model.Decision) int {
	if s.Total == 0 {
		return 0
	}
	return int(math.Round(float64(s.PerDecision[d]) * 100 / float64(s.Total)))
}

// PeakHour returns the busiest hour and its count. Ties resolve to the
// earliest hour.
func (s Stats) PeakHour() (hour, count int) {
	for h, c := range s.PerHour {
		if c > count {
			hour, count = h, c
		}
	}
	return hour, count
}
