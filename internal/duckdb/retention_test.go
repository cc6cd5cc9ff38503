package duckdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tinytelemetry/warden/internal/model"
)

func TestNewRetention_Disabled(t *testing.T) {
	if r := NewRetention(newTestStore(t), RetentionConfig{}); r != nil {
		t.Fatal("zero MaxAge should disable retention")
	}
	var r *Retention
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("nil Run: %v", err)
	}
}

func TestRetention_SweepRemovesExpired(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	insertTestRecords(t, store, []*model.LogRecord{
		testRecord("fresh", now.Add(-time.Hour)),
		testRecord("stale", now.Add(-72*time.Hour)),
	})

	r := NewRetention(store, RetentionConfig{MaxAge: 48 * time.Hour})
	r.now = func() time.Time { return now }

	n, err := r.Sweep()
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}
	if count := countRecords(t, store); count != 1 {
		t.Errorf("TotalLogCount = %d, want 1", count)
	}
}

type countingPruner struct {
	calls chan time.Time
	err   error
}

func (p *countingPruner) DeleteBefore(cutoff time.Time) (int64, error) {
	p.calls <- cutoff
	return 0, p.err
}

func TestRetention_RunSweepsOnStartAndStops(t *testing.T) {
	p := &countingPruner{calls: make(chan time.Time, 4), err: errors.New("disk gone")}
	r := NewRetention(p, RetentionConfig{MaxAge: time.Hour, Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case <-p.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("no startup sweep")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
