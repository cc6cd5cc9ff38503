package duckdb

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultSweepInterval is how often the retention sweep runs.
const DefaultSweepInterval = time.Hour

// Pruner deletes records older than a cutoff.
type Pruner interface {
	DeleteBefore(cutoff time.Time) (int64, error)
}

// RetentionConfig bounds how long records are kept. A non-positive
// MaxAge keeps them forever.
type RetentionConfig struct {
	MaxAge   time.Duration
	Interval time.Duration
}

// Retention sweeps records older than MaxAge out of the store.
type Retention struct {
	store    Pruner
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewRetention returns nil when retention is disabled.
func NewRetention(store Pruner, conf RetentionConfig) *Retention {
	if conf.MaxAge <= 0 {
		return nil
	}
	if conf.Interval <= 0 {
		conf.Interval = DefaultSweepInterval
	}
	return &Retention{store: store, maxAge: conf.MaxAge, interval: conf.Interval, now: time.Now}
}

// Sweep deletes expired records once and reports how many went.
func (r *Retention) Sweep() (int64, error) {
	cutoff := r.now().Add(-r.maxAge)
	n, err := r.store.DeleteBefore(cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		zap.S().Infof("duckdb: retention removed %d records older than %s", n, cutoff.UTC().Format(time.RFC3339))
	}
	return n, nil
}

// Run sweeps immediately, to catch up after downtime, then every
// interval until ctx is done. Sweep errors are logged, not returned.
func (r *Retention) Run(ctx context.Context) error {
	if r == nil {
		return nil
	}
	if _, err := r.Sweep(); err != nil {
		zap.S().Errorf("duckdb: retention sweep: %v", err)
	}
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := r.Sweep(); err != nil {
				zap.S().Errorf("duckdb: retention sweep: %v", err)
			}
		}
	}
}
