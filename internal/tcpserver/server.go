// Package tcpserver receives decision records from producers that stream
// newline-delimited JSON over plain TCP.
package tcpserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tinytelemetry/warden/internal/model"
)

const (
	// SourceName tags every envelope produced by the server.
	SourceName = "tcp"

	DefaultAddr        = "127.0.0.1:4000"
	DefaultBuffer      = 100_000
	DefaultMaxLineSize = 1 << 20
	DefaultMaxConns    = 256
)

// Config tunes a Server. Zero fields take the defaults above; a zero
// IdleTimeout keeps idle producers connected forever.
type Config struct {
	Buffer      int
	MaxLineSize int
	MaxConns    int
	IdleTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Buffer <= 0 {
		c.Buffer = DefaultBuffer
	}
	if c.MaxLineSize <= 0 {
		c.MaxLineSize = DefaultMaxLineSize
	}
	if c.MaxConns <= 0 {
		c.MaxConns = DefaultMaxConns
	}
	return c
}

// Server turns each accepted connection into one ingest stream. A stream
// ends with an EOF envelope so the processor can flush partial documents.
type Server struct {
	addr string
	cfg  Config
	out  chan model.IngestEnvelope

	ln     net.Listener
	active atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	conns  sync.WaitGroup
	once   sync.Once
}

// NewServer prepares a server on addr (DefaultAddr when empty). Nothing
// listens until Start.
func NewServer(addr string, cfg Config) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:   addr,
		cfg:    cfg,
		out:    make(chan model.IngestEnvelope, cfg.Buffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start binds the listener and accepts producers in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("tcpserver: listen %s: %w", s.addr, err)
	}
	s.ln = ln
	s.conns.Add(1)
	go s.acceptLoop()
	return nil
}

// acceptRetryDelay spaces out Accept calls after a transient error such as
// running out of file descriptors.
const acceptRetryDelay = 50 * time.Millisecond

func (s *Server) acceptLoop() {
	defer s.conns.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			zap.S().Warnf("tcpserver: accept: %v", err)
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(acceptRetryDelay):
			}
			continue
		}
		if int(s.active.Add(1)) > s.cfg.MaxConns {
			s.active.Add(-1)
			zap.S().Warnf("tcpserver: refusing %s, %d producers already connected", conn.RemoteAddr(), s.cfg.MaxConns)
			conn.Close()
			continue
		}
		s.conns.Add(1)
		go s.serve(conn)
	}
}

// emit hands env to the consumer unless the server is shutting down.
func (s *Server) emit(env model.IngestEnvelope) bool {
	select {
	case s.out <- env:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.conns.Done()
	defer s.active.Add(-1)
	defer conn.Close()

	// Shutdown closes the socket, which unblocks the pending read.
	unhook := context.AfterFunc(s.ctx, func() { conn.Close() })
	defer unhook()

	stream := conn.RemoteAddr().String()
	defer s.emit(model.IngestEnvelope{Source: SourceName, Stream: stream, EOF: true})

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 64*1024), s.cfg.MaxLineSize)
	for {
		if s.cfg.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}
		if !sc.Scan() {
			break
		}
		line := strings.TrimSuffix(sc.Text(), "\r")
		if line == "" {
			continue
		}
		if !s.emit(model.IngestEnvelope{Source: SourceName, Stream: stream, Line: line}) {
			return
		}
	}

	err := sc.Err()
	var netErr net.Error
	switch {
	case err == nil || s.ctx.Err() != nil:
	case errors.Is(err, bufio.ErrTooLong):
		zap.S().Warnf("tcpserver: closing %s, line longer than %d bytes", stream, s.cfg.MaxLineSize)
	case errors.As(err, &netErr) && netErr.Timeout():
		zap.S().Infof("tcpserver: closing idle producer %s after %s", stream, s.cfg.IdleTimeout)
	default:
		zap.S().Warnf("tcpserver: read from %s: %v", stream, err)
	}
}

// Stop closes the listener and every producer connection, waits for them
// to finish, then closes Lines. Repeated calls are no-ops.
func (s *Server) Stop() error {
	s.once.Do(func() {
		s.cancel()
		if s.ln != nil {
			s.ln.Close()
		}
		s.conns.Wait()
		close(s.out)
	})
	return nil
}

// Lines delivers envelopes in arrival order per connection.
func (s *Server) Lines() <-chan model.IngestEnvelope { return s.out }

// Connections reports how many producers are currently connected.
func (s *Server) Connections() int { return int(s.active.Load()) }

// Addr is the bound address once started, the configured one before.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}
