// Package logsource adapts the ingestion transports to one channel-based interface.
package logsource

import "github.com/tinytelemetry/warden/internal/model"

// LogSource is a unified interface for all record input sources (TCP, Kafka, files).
type LogSource interface {
	Lines() <-chan model.IngestEnvelope // closed when the source is exhausted or stopped
	Stop()                              // graceful shutdown
	Name() string                       // "tcp", "kafka", "stdin", "file"
}
