package logsource

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/tinytelemetry/warden/internal/model"
)

const (
	// DefaultReaderBuffer is the default channel buffer size for reader lines.
	DefaultReaderBuffer = 50_000

	// DefaultReaderMaxLineSize is the default maximum size (in bytes) of a single line.
	DefaultReaderMaxLineSize = 1024 * 1024 // 1MB
)

// ReaderConfig holds tunable parameters for a reader source.
type ReaderConfig struct {
	BufferSize  int
	MaxLineSize int
}

// ReaderSource reads newline-delimited records from an io.Reader, such as
// an exported file or stdin. Lines closes at end of input.
type ReaderSource struct {
	name     string
	ch       chan model.IngestEnvelope
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewStdinSource reads records from stdin.
func NewStdinSource(ctx context.Context, conf ...ReaderConfig) *ReaderSource {
	return NewReaderSource(ctx, "stdin", os.Stdin, conf...)
}

// NewReaderSource starts reading r in a background goroutine.
func NewReaderSource(ctx context.Context, name string, r io.Reader, conf ...ReaderConfig) *ReaderSource {
	bufferSize := DefaultReaderBuffer
	maxLineSize := DefaultReaderMaxLineSize
	if len(conf) > 0 {
		if conf[0].BufferSize > 0 {
			bufferSize = conf[0].BufferSize
		}
		if conf[0].MaxLineSize > 0 {
			maxLineSize = conf[0].MaxLineSize
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &ReaderSource{
		name:   name,
		ch:     make(chan model.IngestEnvelope, bufferSize),
		cancel: cancel,
	}
	go s.read(ctx, r, maxLineSize)
	return s
}

func (s *ReaderSource) read(ctx context.Context, r io.Reader, maxLineSize int) {
	defer close(s.ch)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	// A single goroutine does the blocking scan so cancellation is noticed
	// without spawning one goroutine per line.
	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				zap.S().Warnf("logsource: %s line exceeded max size (%d bytes), stopping", s.name, maxLineSize)
				return
			}
			zap.S().Warnf("logsource: %s scanner error: %v", s.name, err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				select {
				case s.ch <- model.IngestEnvelope{Source: s.name, EOF: true}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case s.ch <- model.IngestEnvelope{Source: s.name, Line: line}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *ReaderSource) Lines() <-chan model.IngestEnvelope { return s.ch }
func (s *ReaderSource) Stop()                              { s.stopOnce.Do(s.cancel) }
func (s *ReaderSource) Name() string                       { return s.name }
