// Package fetch owns the canonical record snapshot and the rules for
// replacing it under concurrent manual and timer-driven refreshes.
package fetch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tinytelemetry/warden/internal/model"
)

var (
	// ErrNotAuthenticated is returned when a load is attempted without a signed-in user.
	ErrNotAuthenticated = errors.New("fetch: session not authenticated")
	// ErrBusy is returned by AutoLoad when the previous auto-refresh is still outstanding.
	ErrBusy = errors.New("fetch: auto-refresh already in flight")
)

// State is the coordinator's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateRefreshing
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateRefreshing:
		return "refreshing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable committed record collection. Records must not
// be modified once the snapshot is published.
type Snapshot struct {
	Seq       uint64
	Records   []model.LogRecord
	FetchedAt time.Time
}

// Status is a consistent point-in-time view of the coordinator.
type Status struct {
	State     State
	Seq       uint64
	Records   int
	FetchedAt time.Time
	// DataReady is true once any fetch has committed.
	DataReady bool
	// Err is the most recent fetch failure not yet superseded by a newer commit.
	Err error
}

// Outcome labels for fetch observations.
const (
	OutcomeCommitted = "committed"
	OutcomeDiscarded = "discarded"
	OutcomeFailed    = "failed"
)

// Observer receives fetch telemetry. All methods must be safe for concurrent use.
type Observer interface {
	ObserveFetch(outcome string, elapsed time.Duration)
	SkippedTick()
	SnapshotSize(n int)
}

type nopObserver struct{}

func (nopObserver) ObserveFetch(string, time.Duration) {}
func (nopObserver) SkippedTick()                       {}
func (nopObserver) SnapshotSize(int)                   {}

// Config wires a Coordinator to its collaborators.
type Config struct {
	Store model.LogStore
	// Session gates every load. Nil means always authenticated.
	Session  model.Session
	Observer Observer
	// OnCommit runs after a snapshot is published, on the loading goroutine.
	OnCommit func(*Snapshot)
	Logger   *zap.SugaredLogger
}

// Coordinator fetches the full ordered collection from the store and holds
// the last successful result. Filtering and paging happen on the client
// over that snapshot, which assumes the collection is small enough to move
// wholesale; a deployment at larger scale would push filters and paging
// into the store query instead.
//
// Every Load is tagged with an increasing sequence number. A result is
// discarded if a newer load has already committed or is still pending, so
// responses are applied in issue order, never completion order.
type Coordinator struct {
	store    model.LogStore
	session  model.Session
	observer Observer
	onCommit func(*Snapshot)
	log      *zap.SugaredLogger

	snapshot atomic.Pointer[Snapshot]
	autoBusy atomic.Bool

	mu      sync.Mutex
	issued  uint64
	pending map[uint64]struct{}
	state   State
	lastErr error
	errSeq  uint64
}

// NewCoordinator creates a Coordinator in the Idle state.
func NewCoordinator(cfg Config) *Coordinator {
	c := &Coordinator{
		store:    cfg.Store,
		session:  cfg.Session,
		observer: cfg.Observer,
		onCommit: cfg.OnCommit,
		log:      cfg.Logger,
		pending:  make(map[uint64]struct{}),
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	if c.log == nil {
		c.log = zap.S()
	}
	return c
}

// Authenticated reports whether the session allows loading.
func (c *Coordinator) Authenticated() bool {
	if c.session == nil {
		return true
	}
	return !c.session.IsLoading() && c.session.CurrentUser() != nil
}

// Snapshot returns the last committed snapshot, or nil before the first commit.
func (c *Coordinator) Snapshot() *Snapshot {
	return c.snapshot.Load()
}

// Status returns the current state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{State: c.state, Err: c.lastErr}
	if snap := c.snapshot.Load(); snap != nil {
		st.Seq = snap.Seq
		st.Records = len(snap.Records)
		st.FetchedAt = snap.FetchedAt
		st.DataReady = true
	}
	return st
}

func (c *Coordinator) begin() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued++
	seq := c.issued
	c.pending[seq] = struct{}{}
	if c.snapshot.Load() == nil {
		c.state = StateLoading
	} else {
		c.state = StateRefreshing
	}
	return seq
}

// supersededLocked reports whether a newer load has been issued and is
// still pending, or has already committed.
func (c *Coordinator) supersededLocked(seq uint64) bool {
	if snap := c.snapshot.Load(); snap != nil && snap.Seq > seq {
		return true
	}
	for p := range c.pending {
		if p > seq {
			return true
		}
	}
	return false
}

// settleLocked picks the visible state once no load is pending.
func (c *Coordinator) settleLocked() {
	if len(c.pending) > 0 {
		return
	}
	switch {
	case c.snapshot.Load() != nil:
		c.state = StateReady
	case c.lastErr != nil:
		c.state = StateError
	default:
		c.state = StateIdle
	}
}

// Load issues one fetch and commits the result unless it has been
// superseded. It returns the snapshot visible after the call together with
// the fetch error, if any. A failed fetch never clears an earlier snapshot.
func (c *Coordinator) Load(ctx context.Context) (*Snapshot, error) {
	if !c.Authenticated() {
		return c.Snapshot(), ErrNotAuthenticated
	}

	seq := c.begin()
	start := time.Now()
	records, err := c.store.FetchAll(ctx)
	elapsed := time.Since(start)

	c.mu.Lock()
	delete(c.pending, seq)

	if c.supersededLocked(seq) {
		c.settleLocked()
		c.mu.Unlock()
		c.observer.ObserveFetch(OutcomeDiscarded, elapsed)
		c.log.Debugf("fetch: discarded stale response seq=%d err=%v", seq, err)
		return c.Snapshot(), err
	}

	if err != nil {
		c.lastErr = err
		c.errSeq = seq
		c.settleLocked()
		c.mu.Unlock()
		c.observer.ObserveFetch(OutcomeFailed, elapsed)
		c.log.Warnf("fetch: load seq=%d failed: %v", seq, err)
		return c.Snapshot(), err
	}

	next := &Snapshot{Seq: seq, Records: records, FetchedAt: time.Now()}
	committed := c.commit(next)
	if committed && seq > c.errSeq {
		c.lastErr = nil
	}
	c.settleLocked()
	c.mu.Unlock()

	if !committed {
		c.observer.ObserveFetch(OutcomeDiscarded, elapsed)
		return c.Snapshot(), nil
	}
	c.observer.ObserveFetch(OutcomeCommitted, elapsed)
	c.observer.SnapshotSize(len(records))
	if c.onCommit != nil {
		c.onCommit(next)
	}
	return next, nil
}

// commit publishes next unless a snapshot with an equal or newer sequence
// is already in place.
func (c *Coordinator) commit(next *Snapshot) bool {
	for {
		cur := c.snapshot.Load()
		if cur != nil && cur.Seq >= next.Seq {
			return false
		}
		if c.snapshot.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// AutoLoad is Load for timer-driven refreshes. If the previous auto load
// is still outstanding the tick is skipped and ErrBusy returned; skipped
// ticks are never queued.
func (c *Coordinator) AutoLoad(ctx context.Context) (*Snapshot, error) {
	if !c.autoBusy.CompareAndSwap(false, true) {
		c.observer.SkippedTick()
		return c.Snapshot(), ErrBusy
	}
	defer c.autoBusy.Store(false)
	return c.Load(ctx)
}

// Run performs an initial load and then refreshes every interval until ctx
// is done. Ticks are skipped while the session is not authenticated or the
// previous tick's load is still running.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = model.DefaultRefreshInterval
	}
	var wg sync.WaitGroup
	defer wg.Wait()

	tick := func() {
		if !c.Authenticated() {
			return
		}
		if !c.autoBusy.CompareAndSwap(false, true) {
			c.observer.SkippedTick()
			c.log.Debugf("fetch: auto-refresh skipped, previous load still running")
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer c.autoBusy.Store(false)
			_, _ = c.Load(ctx)
		}()
	}

	tick()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tick()
		}
	}
}
