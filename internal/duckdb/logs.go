package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tinytelemetry/warden/internal/model"
)

const selectColumns = `id, timestamp, source_address, method, path, query_string, user_agent,
	status_code, decision, raw_decision, confidence, confidence_scale, confidence_raw,
	reasoning, decision_maker, country`

// FetchAll returns every stored record, most recent first. Ties on
// timestamp are broken by id so the order is stable across calls.
func (s *Store) FetchAll(ctx context.Context) ([]model.LogRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM security_logs ORDER BY timestamp DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("fetch security logs: %w", err)
	}
	defer rows.Close()

	var results []model.LogRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			zap.S().Warnf("duckdb scan error (FetchAll): %v", err)
			continue
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func scanRecord(rows *sql.Rows) (model.LogRecord, error) {
	var (
		r                                    model.LogRecord
		method, decision                     string
		query, agent, rawDecision, reasoning sql.NullString
		maker, country, confScale, confRaw   sql.NullString
		confidence                           sql.NullFloat64
	)
	err := rows.Scan(&r.ID, &r.Timestamp, &r.SourceAddress, &method, &r.Path, &query, &agent,
		&r.StatusCode, &decision, &rawDecision, &confidence, &confScale, &confRaw,
		&reasoning, &maker, &country)
	if err != nil {
		return r, err
	}
	r.Method = model.Method(method)
	r.Decision = model.Decision(decision)
	r.QueryString = query.String
	r.UserAgent = agent.String
	r.RawDecision = rawDecision.String
	r.Reasoning = reasoning.String
	r.DecisionMaker = maker.String
	r.Country = country.String
	r.Confidence = model.Confidence{
		Value: confidence.Float64,
		Scale: model.ConfidenceScale(confScale.String),
		Raw:   confRaw.String,
		Valid: confidence.Valid,
	}
	return r, nil
}

// TotalLogCount returns the number of stored records.
func (s *Store) TotalLogCount(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM security_logs`).Scan(&count)
	return count, err
}

// DeleteBefore removes records with a timestamp before cutoff and returns
// how many were deleted.
func (s *Store) DeleteBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx(context.Background())
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM security_logs WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// InsertLogBatch writes a batch of records in a single transaction.
// Records whose id is already stored are skipped, so redelivered upstream
// messages are harmless. When the transaction fails because of individual
// records, the batch is salvaged record by record and only the bad ones are
// dropped. An error is returned when nothing could be stored: the store is
// unavailable, the query deadline passed, or every record failed. Callers
// may retry such a batch.
func (s *Store) InsertLogBatch(records []*model.LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx(context.Background())
	err := s.insertBatchTx(ctx, records)
	cancel()
	if err == nil {
		return nil
	}
	if errors.Is(err, errStoreUnavailable) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("insert batch of %d: %w", len(records), err)
	}

	var failed int
	var lastErr error
	for _, r := range records {
		rctx, rcancel := s.queryCtx(context.Background())
		rerr := s.insertBatchTx(rctx, []*model.LogRecord{r})
		rcancel()
		if rerr == nil {
			continue
		}
		if errors.Is(rerr, errStoreUnavailable) {
			return fmt.Errorf("insert batch of %d: %w", len(records), rerr)
		}
		failed++
		lastErr = rerr
		zap.S().Warnf("duckdb: dropping record (id=%s path=%.80s): %v", r.ID, r.Path, rerr)
	}
	if failed == len(records) {
		return fmt.Errorf("insert batch: all %d records failed: %w", failed, lastErr)
	}
	if failed > 0 {
		zap.S().Warnf("duckdb: batch partially failed, %d/%d records dropped", failed, len(records))
	}
	return nil
}

// errStoreUnavailable marks failures of the connection or transaction
// setup, as opposed to a rejected record.
var errStoreUnavailable = errors.New("store unavailable")

func (s *Store) insertBatchTx(ctx context.Context, records []*model.LogRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", errStoreUnavailable, err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO security_logs (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare: %w", errStoreUnavailable, err)
	}
	defer stmt.Close()

	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record insert: missing id")
		}
		var confidence, scale any
		if r.Confidence.Valid {
			confidence = r.Confidence.Value
			scale = string(r.Confidence.Scale)
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.Timestamp.UTC(), r.SourceAddress, string(r.Method), r.Path,
			nullString(r.QueryString), nullString(r.UserAgent), r.StatusCode,
			string(r.Decision), nullString(r.RawDecision),
			confidence, scale, nullString(r.Confidence.Raw),
			nullString(r.Reasoning), nullString(r.DecisionMaker), nullString(r.Country),
		); err != nil {
			return fmt.Errorf("record insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
