package socketrpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/tinytelemetry/warden/internal/model"
	"github.com/tinytelemetry/warden/internal/session"
)

// stubStore returns fixed values for dispatch unit testing.
type stubStore struct {
	records []model.LogRecord
	err     error
}

func (s *stubStore) FetchAll(context.Context) ([]model.LogRecord, error) {
	return s.records, s.err
}

func (s *stubStore) TotalLogCount(context.Context) (int64, error) {
	return int64(len(s.records)), s.err
}

func newTestDispatcher(token string) *Server {
	store := &stubStore{records: []model.LogRecord{{
		ID:        "a",
		Timestamp: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		Decision:  model.DecisionBlocked,
	}}}
	var auth TokenChecker
	if token != "" {
		auth = session.NewProvider(token)
	}
	return NewServer("", store, auth)
}

func call(srv *Server, state *connState, method, params string) Response {
	return srv.dispatch(state, Request{JSONRPC: "2.0", ID: 1, Method: method, Params: json.RawMessage(params)})
}

func TestDispatch_AllMethods(t *testing.T) {
	t.Parallel()
	srv := newTestDispatcher("")

	tests := []struct {
		method string
		params string
	}{
		{"Authenticate", `{"user":{"id":"u1","name":"ana"},"token":""}`},
		{"FetchAll", `null`},
		{"FetchAll", ``},
		{"Status", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			t.Parallel()
			resp := call(srv, &connState{}, tt.method, tt.params)
			if resp.Error != nil {
				t.Fatalf("dispatch(%s) error: %s", tt.method, resp.Error.Message)
			}
			if resp.Result == nil {
				t.Fatalf("dispatch(%s) returned nil result", tt.method)
			}
			if resp.JSONRPC != "2.0" {
				t.Errorf("JSONRPC = %q, want 2.0", resp.JSONRPC)
			}
			if resp.ID != 1 {
				t.Errorf("ID = %d, want 1", resp.ID)
			}
		})
	}
}

func TestDispatch_MethodNotFound(t *testing.T) {
	t.Parallel()
	resp := call(newTestDispatcher(""), &connState{}, "RecentLogsFiltered", `{}`)
	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != CodeMethodNotFound {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeMethodNotFound)
	}
}

func TestDispatch_InvalidParams(t *testing.T) {
	t.Parallel()
	resp := call(newTestDispatcher(""), &connState{}, "Authenticate", `{"user":42}`)
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Fatalf("expected invalid params, got %+v", resp.Error)
	}
}

func TestDispatch_RequiresAuthentication(t *testing.T) {
	t.Parallel()
	srv := newTestDispatcher("s3cret")
	state := &connState{}

	for _, method := range []string{"FetchAll", "Status"} {
		resp := call(srv, state, method, ``)
		if resp.Error == nil || resp.Error.Code != CodeNotAuthenticated {
			t.Fatalf("%s before auth: got %+v, want not authenticated", method, resp.Error)
		}
	}

	resp := call(srv, state, "Authenticate", `{"user":{"id":"u1"},"token":"wrong"}`)
	if resp.Error == nil || resp.Error.Code != CodeNotAuthenticated {
		t.Fatalf("bad token accepted: %+v", resp)
	}
	if state.user != nil {
		t.Fatal("bad token bound a user")
	}

	resp = call(srv, state, "Authenticate", `{"user":{"id":"u1","name":"ana"},"token":"s3cret"}`)
	if resp.Error != nil {
		t.Fatalf("Authenticate: %v", resp.Error)
	}
	var auth AuthResult
	if err := json.Unmarshal(resp.Result, &auth); err != nil {
		t.Fatal(err)
	}
	if auth.User.ID != "u1" {
		t.Errorf("user = %+v", auth.User)
	}

	resp = call(srv, state, "FetchAll", ``)
	if resp.Error != nil {
		t.Fatalf("FetchAll after auth: %v", resp.Error)
	}
	var records []model.LogRecord
	if err := json.Unmarshal(resp.Result, &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Decision != model.DecisionBlocked {
		t.Errorf("records = %+v", records)
	}

	// Authentication does not leak to other connections.
	resp = call(srv, &connState{}, "FetchAll", ``)
	if resp.Error == nil || resp.Error.Code != CodeNotAuthenticated {
		t.Errorf("fresh connection was authenticated")
	}
}

func TestDispatch_StoreError(t *testing.T) {
	t.Parallel()
	srv := NewServer("", &stubStore{err: errors.New("disk gone")}, nil)
	resp := call(srv, &connState{}, "FetchAll", ``)
	if resp.Error == nil || resp.Error.Code != CodeApplication {
		t.Fatalf("expected application error, got %+v", resp.Error)
	}
	if resp.Error.Message != "disk gone" {
		t.Errorf("message = %q", resp.Error.Message)
	}
}

func TestDispatch_EmptyStoreReturnsArray(t *testing.T) {
	t.Parallel()
	srv := NewServer("", &stubStore{}, nil)
	resp := call(srv, &connState{}, "FetchAll", ``)
	if string(resp.Result) != "[]" {
		t.Errorf("result = %s, want []", resp.Result)
	}
}

func TestIsNotAuthenticated(t *testing.T) {
	t.Parallel()
	if !IsNotAuthenticated(&RPCError{Code: CodeNotAuthenticated}) {
		t.Error("want true for -32001")
	}
	if IsNotAuthenticated(&RPCError{Code: CodeApplication}) || IsNotAuthenticated(errors.New("x")) {
		t.Error("want false for other errors")
	}
}
