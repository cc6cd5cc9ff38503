package socketrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tinytelemetry/warden/internal/model"
)

const (
	dialTimeout        = 5 * time.Second
	defaultCallTimeout = 30 * time.Second
	// Responses carry the whole collection, so the client accepts far
	// larger lines than the server does.
	clientMaxTokenSize = 256 * 1024 * 1024
)

// Client talks to the socket RPC server. It implements model.LogStore, so
// a fetch coordinator can load snapshots through it. A broken connection
// is redialled on the next call and the last successful Authenticate is
// replayed.
type Client struct {
	socketPath string

	mu      sync.Mutex
	conn    net.Conn
	nextID  int
	scanner *bufio.Scanner
	encoder *json.Encoder
	auth    *AuthParams
}

// Dial connects to the socket RPC server at the given path.
func Dial(socketPath string) (*Client, error) {
	c := &Client{socketPath: socketPath}
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connectLocked() error {
	conn, err := net.DialTimeout("unix", c.socketPath, dialTimeout)
	if err != nil {
		return fmt.Errorf("socketrpc: dial: %w", err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 1024*1024), clientMaxTokenSize)
	c.conn = conn
	c.scanner = scanner
	c.encoder = json.NewEncoder(conn)
	return nil
}

func (c *Client) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// call performs a JSON-RPC call and unmarshals the result into dest.
func (c *Client) call(ctx context.Context, method string, params any, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.connectLocked(); err != nil {
			return err
		}
		if c.auth != nil && method != "Authenticate" {
			if err := c.roundTripLocked(ctx, "Authenticate", c.auth, nil); err != nil {
				return err
			}
		}
	}
	return c.roundTripLocked(ctx, method, params, dest)
}

func (c *Client) roundTripLocked(ctx context.Context, method string, params any, dest any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.nextID++
	id := c.nextID

	paramsData, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("socketrpc: marshal params: %w", err)
	}
	req := Request{JSONRPC: "2.0", ID: id, Method: method, Params: paramsData}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultCallTimeout)
	}
	conn := c.conn
	conn.SetDeadline(deadline)
	defer conn.SetDeadline(time.Time{})
	// Cancellation interrupts blocked I/O by expiring the deadline.
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if err := c.encoder.Encode(req); err != nil {
		c.dropLocked()
		return c.transportErr(ctx, "send", err)
	}

	if !c.scanner.Scan() {
		err := c.scanner.Err()
		c.dropLocked()
		if err != nil {
			return c.transportErr(ctx, "read", err)
		}
		return errors.New("socketrpc: connection closed")
	}

	var resp Response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		c.dropLocked()
		return fmt.Errorf("socketrpc: unmarshal response: %w", err)
	}
	if resp.ID != id {
		c.dropLocked()
		return fmt.Errorf("socketrpc: response id %d does not match request %d", resp.ID, id)
	}
	if resp.Error != nil {
		return resp.Error
	}

	if dest != nil {
		if err := json.Unmarshal(resp.Result, dest); err != nil {
			return fmt.Errorf("socketrpc: unmarshal result: %w", err)
		}
	}
	return nil
}

func (c *Client) transportErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("socketrpc: %s: %w", op, ctxErr)
	}
	return fmt.Errorf("socketrpc: %s: %w", op, err)
}

// Authenticate binds user to the connection. On success the credentials
// are remembered and replayed after a reconnect.
func (c *Client) Authenticate(ctx context.Context, user model.User, token string) (model.User, error) {
	params := &AuthParams{User: user, Token: token}
	var result AuthResult
	if err := c.call(ctx, "Authenticate", params, &result); err != nil {
		c.mu.Lock()
		c.auth = nil
		c.mu.Unlock()
		return model.User{}, err
	}
	c.mu.Lock()
	c.auth = params
	c.mu.Unlock()
	return result.User, nil
}

// FetchAll returns every stored record, newest first.
func (c *Client) FetchAll(ctx context.Context) ([]model.LogRecord, error) {
	var result []model.LogRecord
	err := c.call(ctx, "FetchAll", nil, &result)
	return result, err
}

// Status reports the server's record count and uptime.
func (c *Client) Status(ctx context.Context) (StatusResult, error) {
	var result StatusResult
	err := c.call(ctx, "Status", nil, &result)
	return result, err
}
