package httpserver

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tinytelemetry/warden/internal/fetch"
	"github.com/tinytelemetry/warden/internal/ingest"
	"github.com/tinytelemetry/warden/internal/logparse"
	"github.com/tinytelemetry/warden/internal/metrics"
	"github.com/tinytelemetry/warden/internal/model"
	"github.com/tinytelemetry/warden/internal/view"
)

const (
	// SourceName tags records posted to the ingest endpoint.
	SourceName = "http"

	defaultAddr      = "0.0.0.0:3000"
	defaultCacheSize = 256
	maxPageSize      = 500
	maxIngestBytes   = 16 << 20
)

// SnapshotSource is the part of the fetch coordinator the API reads from.
type SnapshotSource interface {
	Snapshot() *fetch.Snapshot
	Status() fetch.Status
	Load(ctx context.Context) (*fetch.Snapshot, error)
}

// LineProcessor turns posted lines into records.
type LineProcessor interface {
	ProcessEnvelope(env model.IngestEnvelope) *ingest.ProcessResult
}

// TokenChecker validates bearer tokens.
type TokenChecker interface {
	Check(token string) bool
}

// LogCounter reports the number of stored records for the health endpoint.
type LogCounter interface {
	TotalLogCount(ctx context.Context) (int64, error)
}

// Config wires the API to the rest of the service. Only Snapshots is required.
type Config struct {
	Addr      string
	Snapshots SnapshotSource
	Processor LineProcessor
	Auth      TokenChecker
	Counter   LogCounter
	Metrics   *metrics.Handler
	CacheSize int
	Location  *time.Location
	// PageSize applies when a request sets no page_size.
	PageSize int
}

// Server provides the HTTP read and ingest API.
type Server struct {
	addr      string
	snapshots SnapshotSource
	processor LineProcessor
	auth      TokenChecker
	counter   LogCounter
	metrics   *metrics.Handler
	cache     *view.Cache
	cachedSeq atomic.Uint64
	loc       *time.Location
	pageSize  int

	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Snapshots == nil {
		return nil, errors.New("httpserver: snapshot source is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = model.DefaultPageSize
	}
	cache, err := view.NewCache(cfg.CacheSize, cfg.Location)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      cfg.Addr,
		snapshots: cfg.Snapshots,
		processor: cfg.Processor,
		auth:      cfg.Auth,
		counter:   cfg.Counter,
		metrics:   cfg.Metrics,
		cache:     cache,
		loc:       cfg.Location,
		pageSize:  cfg.PageSize,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}, nil
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	if s.metrics != nil {
		r.Use(s.countRequests)
		r.GET("/metrics", gin.WrapH(s.metrics.HTTPHandler()))
	}

	r.GET("/api/health", s.handleHealth)

	api := r.Group("/api", s.requireToken)
	api.GET("/logs", s.handleLogs)
	api.GET("/logs/:id", s.handleRecord)
	api.GET("/stats", s.handleStats)
	api.GET("/filters", s.handleFilters)
	api.POST("/refresh", s.handleRefresh)
	api.POST("/ingest", s.handleIngest)
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.startTime = time.Now()
	zap.S().Infof("httpserver: listening on %s", listener.Addr())

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.S().Errorf("httpserver: serve: %v", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) countRequests(c *gin.Context) {
	c.Next()
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	s.metrics.IncHTTPRequest(route, c.Writer.Status())
}

// requireToken guards the API with a bearer token. An empty configured
// token leaves the API open.
func (s *Server) requireToken(c *gin.Context) {
	if s.auth == nil || s.auth.Check("") {
		c.Next()
		return
	}
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || !s.auth.Check(strings.TrimSpace(token)) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid bearer token"})
		return
	}
	c.Next()
}

func (s *Server) handleHealth(c *gin.Context) {
	status := s.snapshots.Status()
	body := gin.H{
		"status":     "ok",
		"uptime":     time.Since(s.startTime).String(),
		"state":      status.State.String(),
		"data_ready": status.DataReady,
		"seq":        status.Seq,
		"records":    status.Records,
	}
	if !status.FetchedAt.IsZero() {
		body["fetched_at"] = status.FetchedAt
	}
	if status.Err != nil {
		body["last_error"] = status.Err.Error()
	}
	if s.counter != nil {
		count, err := s.counter.TotalLogCount(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
			return
		}
		body["log_count"] = count
	}
	c.JSON(http.StatusOK, body)
}

// parseQuery reads the filter and paging parameters shared by the
// projection endpoints.
func parseQuery(c *gin.Context, pageSize int) (view.Query, error) {
	q := view.Query{
		Filter: model.FilterSpec{
			Search: c.Query("search"),
			Method: logparse.ParseMethodFilter(c.Query("method")),
		},
		Page:     1,
		PageSize: pageSize,
	}

	decision, ok := logparse.ParseDecisionFilter(c.Query("decision"))
	if !ok {
		return q, errors.New("unknown decision filter: " + c.Query("decision"))
	}
	q.Filter.Decision = decision

	if raw := strings.TrimSpace(c.Query("status")); raw != "" && !strings.EqualFold(raw, "all") {
		code, err := strconv.Atoi(raw)
		if err != nil || code < 0 {
			return q, errors.New("status must be \"all\" or an HTTP status code")
		}
		q.Filter.Status = code
	}

	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return q, errors.New("page must be an integer")
		}
		q.Page = page
	}
	if raw := c.Query("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			return q, errors.New("page_size must be a positive integer")
		}
		q.PageSize = min(size, maxPageSize)
	}
	return q, nil
}

type logsResponse struct {
	view.Output
	Seq       uint64     `json:"seq"`
	FetchedAt *time.Time `json:"fetched_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

func (s *Server) project(c *gin.Context) (logsResponse, bool) {
	q, err := parseQuery(c, s.pageSize)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return logsResponse{}, false
	}

	var resp logsResponse
	snap := s.snapshots.Snapshot()
	if snap == nil {
		resp.Output = view.Project(nil, q, s.loc)
	} else {
		// Projections of older snapshots can never be hit again.
		if s.cachedSeq.Swap(snap.Seq) != snap.Seq {
			s.cache.Purge()
		}
		resp.Output = s.cache.Project(snap.Seq, snap.Records, q)
		resp.Seq = snap.Seq
		fetched := snap.FetchedAt
		resp.FetchedAt = &fetched
	}
	if err := s.snapshots.Status().Err; err != nil {
		resp.LastError = err.Error()
	}
	return resp, true
}

func (s *Server) handleLogs(c *gin.Context) {
	resp, ok := s.project(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStats(c *gin.Context) {
	resp, ok := s.project(c)
	if !ok {
		return
	}
	hour, peak := resp.Stats.PeakHour()
	percent := make(map[model.Decision]int, len(model.Decisions))
	for _, d := range model.Decisions {
		percent[d] = resp.Stats.Percent(d)
	}
	c.JSON(http.StatusOK, gin.H{
		"seq":        resp.Seq,
		"stats":      resp.Stats,
		"percent":    percent,
		"peak_hour":  hour,
		"peak_count": peak,
	})
}

func (s *Server) handleFilters(c *gin.Context) {
	var records []model.LogRecord
	if snap := s.snapshots.Snapshot(); snap != nil {
		records = snap.Records
	}
	c.JSON(http.StatusOK, view.FilterOptions(records))
}

func (s *Server) handleRecord(c *gin.Context) {
	id := c.Param("id")
	if snap := s.snapshots.Snapshot(); snap != nil {
		for i := range snap.Records {
			if snap.Records[i].ID == id {
				c.JSON(http.StatusOK, snap.Records[i])
				return
			}
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
}

func (s *Server) handleRefresh(c *gin.Context) {
	snap, err := s.snapshots.Load(c.Request.Context())
	if err != nil {
		code := http.StatusBadGateway
		if errors.Is(err, fetch.ErrNotAuthenticated) {
			code = http.StatusUnauthorized
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}
	body := gin.H{"seq": uint64(0), "records": 0}
	if snap != nil {
		body["seq"] = snap.Seq
		body["records"] = len(snap.Records)
	}
	c.JSON(http.StatusOK, body)
}

// handleIngest accepts NDJSON, a JSON array or a single multi-line JSON
// document. Each request is its own stream, closed when the body ends.
func (s *Server) handleIngest(c *gin.Context) {
	if s.processor == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ingestion is disabled"})
		return
	}

	stream := uuid.NewString()
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxIngestBytes)
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxIngestBytes)

	accepted := 0
	for scanner.Scan() {
		result := s.processor.ProcessEnvelope(model.IngestEnvelope{
			Source: SourceName,
			Stream: stream,
			Line:   scanner.Text(),
		})
		if result != nil {
			accepted += len(result.Records)
		}
	}
	s.processor.ProcessEnvelope(model.IngestEnvelope{Source: SourceName, Stream: stream, EOF: true})

	if err := scanner.Err(); err != nil {
		code := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || errors.Is(err, bufio.ErrTooLong) {
			code = http.StatusRequestEntityTooLarge
		}
		c.JSON(code, gin.H{"error": err.Error(), "accepted": accepted})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": accepted})
}
