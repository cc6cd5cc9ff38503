package socketrpc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/tinytelemetry/warden/internal/model"
)

// JSON-RPC 2.0 Method Reference
//
// The socket RPC server exposes the decision log store to terminal clients
// over a Unix domain socket, one JSON object per line.
//
//   Method          Params                          Result
//   ─────────────   ─────────────────────────────   ──────────────
//   Authenticate    {User: model.User, Token: str}  AuthResult
//   FetchAll        (none)                          []LogRecord
//   Status          (none)                          StatusResult
//
// Authentication is per connection. When the server has a token configured,
// FetchAll and Status fail with -32001 until Authenticate succeeds.
//
// Error codes follow JSON-RPC 2.0:
//   -32700  Parse error (malformed JSON)
//   -32601  Method not found
//   -32602  Invalid params
//   -32603  Internal error (marshal failure)
//   -32000  Application error (query failure)
//   -32001  Not authenticated

const (
	CodeParseError       = -32700
	CodeMethodNotFound   = -32601
	CodeInvalidParams    = -32602
	CodeInternal         = -32603
	CodeApplication      = -32000
	CodeNotAuthenticated = -32001
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

// AuthParams are the Authenticate parameters.
type AuthParams struct {
	User  model.User `json:"user"`
	Token string     `json:"token"`
}

// AuthResult echoes the user bound to the connection.
type AuthResult struct {
	User model.User `json:"user"`
}

// StatusResult describes the serving process.
type StatusResult struct {
	LogCount      int64         `json:"log_count"`
	Uptime        time.Duration `json:"uptime"`
	Authenticated bool          `json:"authenticated"`
}

// DefaultSocketPath returns the default Unix socket path.
// It prefers $XDG_RUNTIME_DIR/warden/warden.sock, falling back to
// ~/.local/state/warden/warden.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "warden", "warden.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/warden.sock"
	}
	return filepath.Join(home, ".local", "state", "warden", "warden.sock")
}
