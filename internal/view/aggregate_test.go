package view

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tinytelemetry/warden/internal/model"
)

func TestAggregateEmpty(t *testing.T) {
	s := AggregateIn(nil, time.UTC)
	assert.Equal(t, 0, s.Total)
	assert.Len(t, s.PerDecision, len(model.Decisions))
	for _, d := range model.Decisions {
		assert.Equal(t, 0, s.PerDecision[d])
	}
	assert.Len(t, s.PerMethod, len(model.Methods))
	assert.Equal(t, [24]int{}, s.PerHour)
	assert.Equal(t, 0, s.Percent(model.DecisionBlocked))
}

func TestAggregateFilteredBlocked(t *testing.T) {
	filtered := Filter(mixed(), model.FilterSpec{Decision: model.DecisionBlocked})
	s := AggregateIn(filtered, time.UTC)

	assert.Equal(t, 10, s.Total)
	assert.Equal(t, 10, s.PerDecision[model.DecisionBlocked])
	assert.Equal(t, 0, s.PerDecision[model.DecisionAllowed])
	assert.Equal(t, 0, s.PerDecision[model.DecisionMonitored])
	assert.Equal(t, 100, s.Percent(model.DecisionBlocked))
}

func TestAggregateBuckets(t *testing.T) {
	records := []model.LogRecord{
		{Method: model.MethodGet, StatusCode: 200, Decision: model.DecisionAllowed, Timestamp: base.Add(3 * time.Hour)},
		{Method: model.MethodPost, StatusCode: 404, Decision: model.DecisionBlocked, Timestamp: base.Add(3 * time.Hour)},
		{Method: "TRACE", StatusCode: 502, Decision: "weird", Timestamp: base.Add(23 * time.Hour)},
		{Method: model.MethodOther, StatusCode: 0, Decision: model.DecisionUnknown},
	}
	s := AggregateIn(records, time.UTC)

	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.PerMethod[model.MethodOther])
	assert.Equal(t, 2, s.PerDecision[model.DecisionUnknown])
	assert.Equal(t, 2, s.PerHour[3])
	assert.Equal(t, 1, s.PerHour[23])
	assert.Equal(t, 1, s.PerStatus[Status2xx])
	assert.Equal(t, 1, s.PerStatus[Status4xx])
	assert.Equal(t, 1, s.PerStatus[Status5xx])
	assert.Equal(t, 1, s.PerStatus[StatusOther])

	hour, count := s.PeakHour()
	assert.Equal(t, 3, hour)
	assert.Equal(t, 2, count)
}

func TestAggregateLocation(t *testing.T) {
	records := []model.LogRecord{{Timestamp: base.Add(22 * time.Hour)}}
	s := AggregateIn(records, time.FixedZone("UTC+3", 3*60*60))
	assert.Equal(t, 1, s.PerHour[1])
}

func TestAggregateOrderIndependent(t *testing.T) {
	records := mixed()
	first := AggregateIn(records, time.UTC)
	again := AggregateIn(records, time.UTC)
	assert.Equal(t, first, again)

	reversed := make([]model.LogRecord, len(records))
	for i, r := range records {
		reversed[len(records)-1-i] = r
	}
	assert.Equal(t, first, AggregateIn(reversed, time.UTC))
}
