package socketrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tinytelemetry/warden/internal/model"
)

const (
	// scannerInitBufSize is the initial buffer size for the per-connection scanner (64 KB).
	scannerInitBufSize = 64 * 1024
	// scannerMaxTokenSize is the maximum request size the server will accept (1 MB).
	scannerMaxTokenSize = 1024 * 1024
)

// Store is what the socket exposes.
type Store interface {
	model.LogStore
	TotalLogCount(ctx context.Context) (int64, error)
}

// TokenChecker validates Authenticate tokens. A nil checker accepts every connection.
type TokenChecker interface {
	Check(token string) bool
}

// Server exposes the decision log store over a Unix domain socket using JSON-RPC 2.0.
type Server struct {
	socketPath string
	store      Store
	auth       TokenChecker
	listener   net.Listener
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	stopOnce   sync.Once
	startTime  time.Time
}

// connState is per-connection session state.
type connState struct {
	user *model.User
}

// NewServer creates a new socket RPC server.
func NewServer(socketPath string, store Store, auth TokenChecker) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		socketPath: socketPath,
		store:      store,
		auth:       auth,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins listening on the Unix socket and accepting connections.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o755); err != nil {
		return fmt.Errorf("socketrpc: mkdir: %w", err)
	}

	// Remove stale socket if it exists.
	if _, err := os.Stat(s.socketPath); err == nil {
		conn, dialErr := net.DialTimeout("unix", s.socketPath, 500*time.Millisecond)
		if dialErr != nil {
			os.Remove(s.socketPath)
		} else {
			conn.Close()
			return fmt.Errorf("socketrpc: another server is already listening on %s", s.socketPath)
		}
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("socketrpc: listen: %w", err)
	}
	// The socket serves security logs; keep it private to the owner.
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("socketrpc: chmod: %w", err)
	}
	s.listener = ln
	s.startTime = time.Now()

	s.wg.Add(1)
	go s.acceptLoop()

	zap.S().Infof("socketrpc: listening on %s", s.socketPath)
	return nil
}

// Stop closes the listener and open connections, waits for them to drain,
// and removes the socket file.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		if s.listener != nil {
			s.listener.Close()
		}
		s.wg.Wait()
		os.Remove(s.socketPath)
	})
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			zap.S().Warnf("socketrpc: accept error: %v", err)
			// Transient errors (e.g. fd limit) must not kill the loop.
			time.Sleep(50 * time.Millisecond)
			continue
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	stop := context.AfterFunc(s.ctx, func() { conn.Close() })
	defer stop()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), scannerMaxTokenSize)
	encoder := json.NewEncoder(conn)
	state := &connState{}

	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			resp := Response{JSONRPC: "2.0", ID: 0, Error: &RPCError{Code: CodeParseError, Message: "parse error"}}
			if encoder.Encode(resp) != nil {
				return
			}
			continue
		}

		resp := s.dispatch(state, req)
		if err := encoder.Encode(resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(state *connState, req Request) Response {
	resp := Response{JSONRPC: "2.0", ID: req.ID}

	marshalResult := func(v any, err error) Response {
		if err != nil {
			resp.Error = &RPCError{Code: CodeApplication, Message: err.Error()}
			return resp
		}
		data, merr := json.Marshal(v)
		if merr != nil {
			resp.Error = &RPCError{Code: CodeInternal, Message: merr.Error()}
			return resp
		}
		resp.Result = data
		return resp
	}

	requireAuth := func() bool {
		if s.auth == nil || state.user != nil {
			return true
		}
		resp.Error = &RPCError{Code: CodeNotAuthenticated, Message: "not authenticated"}
		return false
	}

	switch req.Method {
	case "Authenticate":
		var p AuthParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			resp.Error = &RPCError{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
			return resp
		}
		if s.auth != nil && !s.auth.Check(p.Token) {
			state.user = nil
			zap.S().Warnf("socketrpc: rejected token for user %q", p.User.Name)
			resp.Error = &RPCError{Code: CodeNotAuthenticated, Message: "invalid token"}
			return resp
		}
		user := p.User
		state.user = &user
		return marshalResult(AuthResult{User: user}, nil)

	case "FetchAll":
		if !requireAuth() {
			return resp
		}
		records, err := s.store.FetchAll(s.ctx)
		if records == nil && err == nil {
			records = []model.LogRecord{}
		}
		return marshalResult(records, err)

	case "Status":
		if !requireAuth() {
			return resp
		}
		count, err := s.store.TotalLogCount(s.ctx)
		return marshalResult(StatusResult{
			LogCount:      count,
			Uptime:        time.Since(s.startTime),
			Authenticated: state.user != nil,
		}, err)

	default:
		resp.Error = &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
		return resp
	}
}

// IsNotAuthenticated reports whether err is the server's authentication failure.
func IsNotAuthenticated(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == CodeNotAuthenticated
}
