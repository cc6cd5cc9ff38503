package view

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/warden/internal/model"
)

func TestMatches(t *testing.T) {
	r := &model.LogRecord{
		SourceAddress: "192.168.1.50",
		Method:        model.MethodPost,
		Path:          "/Admin/Login",
		StatusCode:    403,
		Decision:      model.DecisionBlocked,
	}

	tests := []struct {
		name   string
		filter model.FilterSpec
		want   bool
	}{
		{"zero filter", model.FilterSpec{}, true},
		{"all filter", model.AllFilter(), true},
		{"search path case-insensitive", model.FilterSpec{Search: "admin"}, true},
		{"search address", model.FilterSpec{Search: "168.1"}, true},
		{"search miss", model.FilterSpec{Search: "wp-json"}, false},
		{"method hit", model.FilterSpec{Method: model.MethodPost}, true},
		{"method miss", model.FilterSpec{Method: model.MethodGet}, false},
		{"decision hit", model.FilterSpec{Decision: model.DecisionBlocked}, true},
		{"decision miss", model.FilterSpec{Decision: model.DecisionAllowed}, false},
		{"status hit", model.FilterSpec{Status: 403}, true},
		{"status miss", model.FilterSpec{Status: 200}, false},
		{"and of all", model.FilterSpec{Search: "LOGIN", Method: model.MethodPost, Decision: model.DecisionBlocked, Status: 403}, true},
		{"and fails on one", model.FilterSpec{Search: "login", Method: model.MethodPost, Decision: model.DecisionMonitored}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(r, tt.filter))
			// Pure: a second evaluation agrees.
			assert.Equal(t, tt.want, Matches(r, tt.filter))
		})
	}
}

func TestFilterPreservesOrder(t *testing.T) {
	records := mixed()
	got := Filter(records, model.FilterSpec{Decision: model.DecisionAllowed})
	require.Len(t, got, 5)
	for i, r := range got {
		assert.Equal(t, records[10+i].ID, r.ID)
	}
}

func TestFilterDoesNotMutateInput(t *testing.T) {
	records := mixed()
	before := append([]model.LogRecord(nil), records...)
	_ = Filter(records, model.FilterSpec{Search: "10.0.0.1"})
	assert.Equal(t, before, records)
}
