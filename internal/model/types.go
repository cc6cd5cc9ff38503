package model

import (
	"math"
	"time"
)

// Decision is the normalized verdict the upstream engine produced for a request.
type Decision string

const (
	DecisionAllowed   Decision = "allowed"
	DecisionBlocked   Decision = "blocked"
	DecisionMonitored Decision = "monitored"
	// DecisionUnknown collects upstream strings outside the known vocabulary.
	DecisionUnknown Decision = "unknown"
	// DecisionAll is the filter wildcard. It never appears on a record.
	DecisionAll Decision = "all"
)

// Decisions lists every bucket a record can land in, in display order.
var Decisions = []Decision{DecisionAllowed, DecisionBlocked, DecisionMonitored, DecisionUnknown}

// Method is a normalized HTTP method.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodDelete Method = "DELETE"
	MethodPatch  Method = "PATCH"
	MethodOther  Method = "OTHER"
	MethodAll    Method = "all"
)

// Methods lists every method bucket, in display order.
var Methods = []Method{MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch, MethodOther}

// ConfidenceScale records which scale the upstream reported a confidence on.
type ConfidenceScale string

const (
	ScaleUnit    ConfidenceScale = "unit"
	ScaleTen     ConfidenceScale = "ten"
	ScalePercent ConfidenceScale = "percent"
)

// ConfidenceLevel is the coarse display band of a confidence value.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceNone   ConfidenceLevel = "none"
)

// Confidence holds a normalized confidence. Value is always in [0,1].
// Valid is false when the upstream sent nothing usable.
type Confidence struct {
	Value float64         `json:"value"`
	Scale ConfidenceScale `json:"scale,omitempty"`
	Raw   string          `json:"raw,omitempty"`
	Valid bool            `json:"valid"`
}

// Percent returns the confidence as a rounded percentage.
func (c Confidence) Percent() int {
	if !c.Valid {
		return 0
	}
	return int(math.Round(c.Value * 100))
}

// Level buckets the confidence for display.
func (c Confidence) Level() ConfidenceLevel {
	switch {
	case !c.Valid:
		return ConfidenceNone
	case c.Value >= 0.8:
		return ConfidenceHigh
	case c.Value >= 0.6:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// LogRecord is one classified HTTP request. Empty strings mean the field was absent.
type LogRecord struct {
	ID            string     `json:"id"`
	Timestamp     time.Time  `json:"timestamp"`
	SourceAddress string     `json:"source_address"`
	Method        Method     `json:"method"`
	Path          string     `json:"path"`
	QueryString   string     `json:"query_string,omitempty"`
	UserAgent     string     `json:"user_agent,omitempty"`
	StatusCode    int        `json:"status_code"`
	Decision      Decision   `json:"decision"`
	RawDecision   string     `json:"raw_decision,omitempty"`
	Confidence    Confidence `json:"confidence"`
	Reasoning     string     `json:"reasoning,omitempty"`
	DecisionMaker string     `json:"decision_maker,omitempty"`
	Country       string     `json:"country,omitempty"`
}

// FilterSpec is the user's current filter criteria. Zero values mean "all".
type FilterSpec struct {
	Search   string   `json:"search"`
	Method   Method   `json:"method"`
	Decision Decision `json:"decision"`
	// Status is an exact status code; 0 matches any.
	Status int `json:"status"`
}

// AllFilter returns the filter that matches every record.
func AllFilter() FilterSpec {
	return FilterSpec{Method: MethodAll, Decision: DecisionAll}
}

// AnyMethod reports whether the method criterion is the wildcard.
func (f FilterSpec) AnyMethod() bool {
	return f.Method == "" || f.Method == MethodAll
}

// AnyDecision reports whether the decision criterion is the wildcard.
func (f FilterSpec) AnyDecision() bool {
	return f.Decision == "" || f.Decision == DecisionAll
}

// IsZero reports whether the filter matches everything.
func (f FilterSpec) IsZero() bool {
	return f.Search == "" && f.AnyMethod() && f.AnyDecision() && f.Status == 0
}

// User is the identity behind an authenticated session.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
