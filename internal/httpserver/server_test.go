package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/warden/internal/fetch"
	"github.com/tinytelemetry/warden/internal/ingest"
	"github.com/tinytelemetry/warden/internal/metrics"
	"github.com/tinytelemetry/warden/internal/model"
	"github.com/tinytelemetry/warden/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeStore struct {
	mu      sync.Mutex
	records []model.LogRecord
	err     error
}

func (f *fakeStore) FetchAll(context.Context) ([]model.LogRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]model.LogRecord(nil), f.records...), nil
}

func (f *fakeStore) set(records []model.LogRecord, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records, f.err = records, err
}

func sampleRecords() []model.LogRecord {
	base := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	decisions := []model.Decision{model.DecisionBlocked, model.DecisionAllowed, model.DecisionMonitored}
	statuses := []int{403, 200, 200}
	out := make([]model.LogRecord, 0, 30)
	for i := range 30 {
		out = append(out, model.LogRecord{
			ID:            fmt.Sprintf("r-%d", i),
			Timestamp:     base.Add(-time.Duration(i) * time.Minute),
			SourceAddress: fmt.Sprintf("10.0.0.%d", i),
			Method:        model.MethodGet,
			Path:          fmt.Sprintf("/item/%d", i),
			StatusCode:    statuses[i%3],
			Decision:      decisions[i%3],
		})
	}
	return out
}

type testEnv struct {
	srv     *Server
	store   *fakeStore
	coord   *fetch.Coordinator
	handler http.Handler
	mu      sync.Mutex
	sunk    []*model.LogRecord
}

func newTestEnv(t *testing.T, token string) *testEnv {
	t.Helper()
	env := &testEnv{store: &fakeStore{records: sampleRecords()}}
	env.coord = fetch.NewCoordinator(fetch.Config{Store: env.store})

	sink := ingest.SinkFunc(func(r *model.LogRecord) {
		env.mu.Lock()
		env.sunk = append(env.sunk, r)
		env.mu.Unlock()
	})
	cfg := Config{
		Snapshots: env.coord,
		Processor: ingest.NewProcessor(sink, nil),
		Metrics:   metrics.New(),
		Location:  time.UTC,
	}
	if token != "" {
		cfg.Auth = session.NewProvider(token)
	}
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	env.srv = srv
	env.handler = srv.Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}

type logsBody struct {
	Records []model.LogRecord `json:"records"`
	Stats   struct {
		Total       int            `json:"total"`
		PerDecision map[string]int `json:"per_decision"`
	} `json:"stats"`
	Page struct {
		Page         int `json:"page"`
		TotalPages   int `json:"total_pages"`
		TotalRecords int `json:"total_records"`
		First        int `json:"first"`
		Last         int `json:"last"`
	} `json:"page"`
	Seq       uint64 `json:"seq"`
	LastError string `json:"last_error"`
}

func TestNewServerRequiresSnapshots(t *testing.T) {
	if _, err := NewServer(Config{}); err == nil {
		t.Fatal("expected error without snapshot source")
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	if _, err := env.coord.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	w := env.do(t, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]any
	decode(t, w, &body)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["state"] != "ready" {
		t.Errorf("state = %v, want ready", body["state"])
	}
	if body["records"] != float64(30) {
		t.Errorf("records = %v, want 30", body["records"])
	}
}

func TestHealthEndpoint_WrongMethod(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(t, http.MethodPost, "/api/health", "")
	if w.Code != http.StatusMethodNotAllowed && w.Code != http.StatusNotFound {
		t.Errorf("health POST status = %d, want 405 or 404", w.Code)
	}
}

func TestLogsBeforeFirstLoad(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(t, http.MethodGet, "/api/logs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body logsBody
	decode(t, w, &body)
	if len(body.Records) != 0 || body.Page.TotalPages != 1 || body.Page.Page != 1 {
		t.Errorf("unexpected empty projection: %+v", body.Page)
	}
}

func TestLogsFilterAndPage(t *testing.T) {
	env := newTestEnv(t, "")
	if _, err := env.coord.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name      string
		query     string
		wantTotal int
		wantLen   int
		wantPage  int
		wantPages int
	}{
		{"default", "", 30, 15, 1, 2},
		{"second page", "?page=2", 30, 15, 2, 2},
		{"page clamped", "?page=9", 30, 15, 2, 2},
		{"decision", "?decision=blocked", 10, 10, 1, 1},
		{"decision synonym", "?decision=deny", 10, 10, 1, 1},
		{"status", "?status=200", 20, 15, 1, 2},
		{"status all", "?status=all&page_size=50", 30, 30, 1, 1},
		{"search", "?search=item/2", 11, 11, 1, 1},
		{"composed", "?decision=allowed&status=200&page_size=4", 10, 4, 1, 3},
		{"no match", "?method=POST", 0, 0, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/logs"+tt.query, "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
			}
			var body logsBody
			decode(t, w, &body)
			if body.Stats.Total != tt.wantTotal {
				t.Errorf("total = %d, want %d", body.Stats.Total, tt.wantTotal)
			}
			if len(body.Records) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(body.Records), tt.wantLen)
			}
			if body.Page.Page != tt.wantPage || body.Page.TotalPages != tt.wantPages {
				t.Errorf("page = %d/%d, want %d/%d", body.Page.Page, body.Page.TotalPages, tt.wantPage, tt.wantPages)
			}
			if body.Seq != 1 {
				t.Errorf("seq = %d, want 1", body.Seq)
			}
		})
	}
}

func TestLogsCacheDropsOlderSnapshots(t *testing.T) {
	env := newTestEnv(t, "")
	for i := range 3 {
		if _, err := env.coord.Load(context.Background()); err != nil {
			t.Fatalf("Load %d: %v", i, err)
		}
		env.do(t, http.MethodGet, "/api/logs", "")
		env.do(t, http.MethodGet, "/api/logs?page=2", "")
	}
	if n := env.srv.cache.Len(); n != 2 {
		t.Errorf("cached projections = %d, want 2 for the latest snapshot only", n)
	}
}

func TestLogsBadParameters(t *testing.T) {
	env := newTestEnv(t, "")
	for _, q := range []string{"?decision=sideways", "?status=ok", "?page=x", "?page_size=0"} {
		w := env.do(t, http.MethodGet, "/api/logs"+q, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	if _, err := env.coord.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	w := env.do(t, http.MethodGet, "/api/stats?status=200", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Percent   map[string]int `json:"percent"`
		PeakHour  int            `json:"peak_hour"`
		PeakCount int            `json:"peak_count"`
	}
	decode(t, w, &body)
	if body.Percent["allowed"] != 50 || body.Percent["monitored"] != 50 || body.Percent["blocked"] != 0 {
		t.Errorf("percent = %v", body.Percent)
	}
	if body.PeakCount == 0 {
		t.Errorf("peak count = 0, want > 0")
	}
}

func TestFiltersEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	if _, err := env.coord.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	w := env.do(t, http.MethodGet, "/api/filters", "")
	var body struct {
		Methods   []string `json:"methods"`
		Decisions []string `json:"decisions"`
		Statuses  []int    `json:"statuses"`
	}
	decode(t, w, &body)
	if len(body.Methods) != 1 || body.Methods[0] != "GET" {
		t.Errorf("methods = %v", body.Methods)
	}
	if len(body.Decisions) != 3 {
		t.Errorf("decisions = %v", body.Decisions)
	}
	if len(body.Statuses) != 2 || body.Statuses[0] != 200 || body.Statuses[1] != 403 {
		t.Errorf("statuses = %v", body.Statuses)
	}
}

func TestRecordEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	if _, err := env.coord.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	w := env.do(t, http.MethodGet, "/api/logs/r-7", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var rec model.LogRecord
	decode(t, w, &rec)
	if rec.ID != "r-7" || rec.Path != "/item/7" {
		t.Errorf("record = %+v", rec)
	}

	w = env.do(t, http.MethodGet, "/api/logs/missing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", w.Code)
	}
}

func TestRefreshKeepsSnapshotOnFailure(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(t, http.MethodPost, "/api/refresh", "")
	if w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d", w.Code)
	}

	env.store.set(nil, errors.New("store offline"))
	w = env.do(t, http.MethodPost, "/api/refresh", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("failed refresh status = %d, want 502", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/logs", "")
	var body logsBody
	decode(t, w, &body)
	if body.Stats.Total != 30 {
		t.Errorf("total after failure = %d, want 30", body.Stats.Total)
	}
	if body.LastError != "store offline" {
		t.Errorf("last_error = %q", body.LastError)
	}
}

func TestIngestEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	payload := strings.Join([]string{
		`{"id":"a","timestamp":"2024-03-10T10:00:00Z","decision":"malicious","method":"post","url":"/login?x=1","status":403}`,
		`[{"id":"b","decision":"benign"},{"id":"c","decision":"weird"}]`,
		`{"id":"d",`,
		`"decision":"allowed"}`,
		`{"id":"e",`,
	}, "\n")

	w := env.do(t, http.MethodPost, "/api/ingest", payload)
	if w.Code != http.StatusAccepted {
		t.Fatalf("ingest status = %d body=%s", w.Code, w.Body.String())
	}
	var body struct {
		Accepted int `json:"accepted"`
	}
	decode(t, w, &body)
	if body.Accepted != 4 {
		t.Errorf("accepted = %d, want 4", body.Accepted)
	}

	env.mu.Lock()
	defer env.mu.Unlock()
	if len(env.sunk) != 4 {
		t.Fatalf("sunk = %d, want 4", len(env.sunk))
	}
	first := env.sunk[0]
	if first.Decision != model.DecisionBlocked || first.Method != model.MethodPost || first.Path != "/login" {
		t.Errorf("first record = %+v", first)
	}
	if env.sunk[2].Decision != model.DecisionUnknown || env.sunk[2].RawDecision != "weird" {
		t.Errorf("unknown decision not preserved: %+v", env.sunk[2])
	}
}

func TestBearerToken(t *testing.T) {
	env := newTestEnv(t, "s3cret")

	tests := []struct {
		name   string
		header []string
		want   int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"wrong", []string{"Authorization", "Bearer nope"}, http.StatusUnauthorized},
		{"not bearer", []string{"Authorization", "s3cret"}, http.StatusUnauthorized},
		{"valid", []string{"Authorization", "Bearer s3cret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/logs", "", tt.header...)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	// Health stays open for liveness checks.
	if w := env.do(t, http.MethodGet, "/api/health", ""); w.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", w.Code)
	}
}

func TestBearerToken_EmptyTokenLeavesAPIOpen(t *testing.T) {
	store := &fakeStore{records: sampleRecords()}
	srv, err := NewServer(Config{
		Snapshots: fetch.NewCoordinator(fetch.Config{Store: store}),
		Auth:      session.NewProvider(""),
		Location:  time.UTC,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	for _, header := range [][2]string{{}, {"Authorization", "Bearer anything"}} {
		req := httptest.NewRequest(http.MethodGet, "/api/logs", nil)
		if header[0] != "" {
			req.Header.Set(header[0], header[1])
		}
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("header %q: status = %d, want 200", header, w.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodGet, "/api/health", "")

	w := env.do(t, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `route="/api/health"`) {
		t.Errorf("metrics missing request counter:\n%s", w.Body.String())
	}
}
