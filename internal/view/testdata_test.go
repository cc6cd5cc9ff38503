package view

import (
	"fmt"
	"time"

	"github.com/tinytelemetry/warden/internal/model"
)

var base = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

func makeRecords(n int, decision model.Decision) []model.LogRecord {
	out := make([]model.LogRecord, n)
	for i := range out {
		out[i] = model.LogRecord{
			ID:            fmt.Sprintf("%s-%d", decision, i),
			Timestamp:     base.Add(time.Duration(i) * time.Hour),
			SourceAddress: fmt.Sprintf("10.0.0.%d", i),
			Method:        model.MethodGet,
			Path:          fmt.Sprintf("/api/item/%d", i),
			StatusCode:    200,
			Decision:      decision,
		}
	}
	return out
}

func mixed() []model.LogRecord {
	var out []model.LogRecord
	out = append(out, makeRecords(10, model.DecisionBlocked)...)
	out = append(out, makeRecords(5, model.DecisionAllowed)...)
	out = append(out, makeRecords(3, model.DecisionMonitored)...)
	return out
}
