package ingest

import "github.com/tinytelemetry/warden/internal/model"

// RecordSink is the destination for normalized records.
type RecordSink = model.RecordSink

// EnvelopeProcessor consumes source-tagged ingest lines and emits normalized records.
type EnvelopeProcessor interface {
	ProcessEnvelope(model.IngestEnvelope) *ProcessResult
}

// SinkFunc adapts a function to RecordSink.
type SinkFunc func(*model.LogRecord)

// Add calls f(record).
func (f SinkFunc) Add(record *model.LogRecord) { f(record) }

// MultiSink fans records out to several sinks in order.
type MultiSink []RecordSink

// Add forwards record to every sink.
func (m MultiSink) Add(record *model.LogRecord) {
	for _, s := range m {
		s.Add(record)
	}
}
