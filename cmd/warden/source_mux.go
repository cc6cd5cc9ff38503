package main

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/warden/internal/logsource"
	"github.com/tinytelemetry/warden/internal/model"
)

// DefaultMuxBuffer is the merged channel capacity when none is configured.
const DefaultMuxBuffer = 50_000

// SourceMultiplexer fans every record source into one envelope stream for
// the processor. Lines closes when all sources are drained or on Stop.
type SourceMultiplexer struct {
	ctx    context.Context
	cancel context.CancelFunc

	sources []logsource.LogSource
	counts  []atomic.Int64
	out     chan model.IngestEnvelope
	pumps   errgroup.Group

	started, stopped, closed sync.Once
}

// NewSourceMultiplexer wires sources; nothing is read until Start.
func NewSourceMultiplexer(parent context.Context, sources []logsource.LogSource, buffer int) *SourceMultiplexer {
	if buffer <= 0 {
		buffer = DefaultMuxBuffer
	}
	ctx, cancel := context.WithCancel(parent)
	return &SourceMultiplexer{
		ctx:     ctx,
		cancel:  cancel,
		sources: sources,
		counts:  make([]atomic.Int64, len(sources)),
		out:     make(chan model.IngestEnvelope, buffer),
	}
}

// Start launches one pump per source.
func (m *SourceMultiplexer) Start() {
	m.started.Do(func() {
		for i, src := range m.sources {
			m.pumps.Go(func() error {
				m.pump(i, src)
				return nil
			})
		}
		go func() {
			_ = m.pumps.Wait()
			m.closeOut()
		}()
	})
}

// Stop stops every source and waits for the pumps before closing Lines.
func (m *SourceMultiplexer) Stop() {
	m.stopped.Do(func() {
		m.cancel()
		for _, src := range m.sources {
			src.Stop()
		}
		_ = m.pumps.Wait()
		m.closeOut()
	})
}

func (m *SourceMultiplexer) HasSources() bool { return len(m.sources) > 0 }

// Names lists the sources in registration order.
func (m *SourceMultiplexer) Names() []string {
	names := make([]string, len(m.sources))
	for i, src := range m.sources {
		names[i] = src.Name()
	}
	return names
}

// Counts reports how many record lines each source has delivered.
func (m *SourceMultiplexer) Counts() map[string]int64 {
	counts := make(map[string]int64, len(m.sources))
	for i, src := range m.sources {
		counts[src.Name()] += m.counts[i].Load()
	}
	return counts
}

func (m *SourceMultiplexer) Lines() <-chan model.IngestEnvelope { return m.out }

// pump copies one source into the merged stream. Blank lines are dropped;
// EOF markers pass so the processor can flush that stream.
func (m *SourceMultiplexer) pump(i int, src logsource.LogSource) {
	in := src.Lines()
	for {
		var env model.IngestEnvelope
		select {
		case <-m.ctx.Done():
			return
		case e, ok := <-in:
			if !ok {
				return
			}
			env = e
		}
		if !env.EOF {
			if env.Line == "" {
				continue
			}
			m.counts[i].Add(1)
		}
		select {
		case m.out <- env:
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *SourceMultiplexer) closeOut() {
	m.closed.Do(func() { close(m.out) })
}
