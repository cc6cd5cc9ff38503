package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tinytelemetry/warden/internal/duckdb"
	"github.com/tinytelemetry/warden/internal/ingest"
	"github.com/tinytelemetry/warden/internal/logging"
	"github.com/tinytelemetry/warden/internal/logsource"
	"github.com/tinytelemetry/warden/internal/model"
)

// runImport loads an NDJSON or JSON export through the normal ingestion
// path. "-" reads stdin.
func runImport(cfg appConfig, path string, out io.Writer) error {
	_, cleanupLogger := logging.Setup(logging.Options{Path: cfg.LogFile, Level: cfg.LogLevel})
	defer cleanupLogger()

	var r io.Reader = os.Stdin
	name := "stdin"
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r, name = f, "file"
	}

	store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	defer store.Close()

	before, err := store.TotalLogCount(context.Background())
	if err != nil {
		return fmt.Errorf("count records: %w", err)
	}

	n, err := importRecords(context.Background(), store, cfg, name, r)
	if err != nil {
		return err
	}

	after, err := store.TotalLogCount(context.Background())
	if err != nil {
		return fmt.Errorf("count records: %w", err)
	}
	fmt.Fprintf(out, "Imported %d records (%d new, %d total)\n", n, after-before, after)
	return nil
}

// importRecords streams r through a processor into writer and returns
// the number of records normalized. Duplicate ids are ignored by the store.
func importRecords(ctx context.Context, writer model.LogWriter, cfg appConfig, name string, r io.Reader) (int64, error) {
	insertBuffer := duckdb.NewInsertBuffer(writer, duckdb.InsertBufferConfig{
		BatchSize:      cfg.InsertBatchSize,
		FlushInterval:  cfg.InsertFlushInterval,
		FlushQueueSize: cfg.InsertFlushQueue,
	})

	var count atomic.Int64
	sink := ingest.MultiSink{
		insertBuffer,
		ingest.SinkFunc(func(*model.LogRecord) { count.Add(1) }),
	}
	processor := ingest.NewProcessor(sink, ingest.NewNormalizer(ingest.NormalizerConfig{
		Scale: cfg.confidenceScale(),
	}))

	src := logsource.NewReaderSource(ctx, name, r)
	for env := range src.Lines() {
		processor.ProcessEnvelope(env)
	}
	insertBuffer.Stop()

	zap.S().Infof("import: %d records from %s", count.Load(), name)
	return count.Load(), nil
}
