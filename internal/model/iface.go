package model

import "context"

// LogStore is the read side every fetch goes through. Records come back
// ordered by timestamp, most recent first.
type LogStore interface {
	FetchAll(ctx context.Context) ([]LogRecord, error)
}

// LogWriter persists normalized records.
type LogWriter interface {
	InsertLogBatch(records []*LogRecord) error
}

// RecordSink accepts normalized records from ingestion.
type RecordSink interface {
	Add(record *LogRecord)
}

// Session gates data loading on an authenticated user.
type Session interface {
	CurrentUser() *User
	IsLoading() bool
}
