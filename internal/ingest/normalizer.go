package ingest

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tinytelemetry/warden/internal/logparse"
	"github.com/tinytelemetry/warden/internal/model"
	"github.com/tinytelemetry/warden/internal/timestamp"
)

// Anomaly kinds reported while normalizing upstream records.
const (
	AnomalyUnknownDecision = "unknown_decision"
	AnomalyMissingID       = "missing_id"
	AnomalyBadTimestamp    = "bad_timestamp"
	AnomalyBadConfidence   = "bad_confidence"
	AnomalyBadStatus       = "bad_status"
	AnomalyMalformedLine   = "malformed_line"
)

// Locator resolves a source address to an ISO country code, or "".
type Locator interface {
	Country(addr string) string
}

// Observer receives ingestion telemetry.
type Observer interface {
	RecordIngested(source string, decision model.Decision)
	Anomaly(kind string)
}

type nopObserver struct{}

func (nopObserver) RecordIngested(string, model.Decision) {}
func (nopObserver) Anomaly(string)                        {}

// Field aliases accepted from the upstream decision engine and its exports.
var (
	idKeys        = []string{"id", "event_id", "request_id"}
	timeKeys      = []string{"created_at", "timestamp", "time", "ts"}
	addressKeys   = []string{"ip_address", "source_address", "client_ip", "ip", "remote_addr"}
	methodKeys    = []string{"method", "http_method"}
	urlKeys       = []string{"url", "path", "request_path", "uri"}
	queryKeys     = []string{"query_string", "query"}
	agentKeys     = []string{"user_agent", "ua"}
	statusKeys    = []string{"status", "status_code"}
	decisionKeys  = []string{"decision", "verdict", "action"}
	confKeys      = []string{"confidence", "score"}
	reasoningKeys = []string{"reasoning", "reason"}
	makerKeys     = []string{"decision_maker", "model", "rule"}
	countryKeys   = []string{"country", "country_code"}
)

// Normalizer turns raw upstream records into model.LogRecord. Every
// spelling variant is resolved here so nothing downstream sees raw values.
type Normalizer struct {
	scale    model.ConfidenceScale
	parser   *timestamp.Parser
	locator  Locator
	observer Observer
	now      func() time.Time
}

// NormalizerConfig configures a Normalizer.
type NormalizerConfig struct {
	Scale    model.ConfidenceScale
	Locator  Locator
	Observer Observer
}

// NewNormalizer creates a Normalizer. A zero config infers confidence
// scales and skips geo enrichment.
func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	n := &Normalizer{
		scale:    cfg.Scale,
		parser:   timestamp.NewParser(),
		locator:  cfg.Locator,
		observer: cfg.Observer,
		now:      time.Now,
	}
	if n.scale == "" {
		n.scale = logparse.ScaleAuto
	}
	if n.observer == nil {
		n.observer = nopObserver{}
	}
	return n
}

func (n *Normalizer) anomaly(kind, source, format string, args ...any) {
	n.observer.Anomaly(kind)
	zap.S().With("source", source, "anomaly", kind).Warnf(format, args...)
}

// Normalize converts one raw record. It never fails: missing or malformed
// fields are defaulted and reported as anomalies.
func (n *Normalizer) Normalize(raw map[string]any, source string) *model.LogRecord {
	r := &model.LogRecord{
		ID:            ExtractStringField(raw, idKeys...),
		SourceAddress: ExtractStringField(raw, addressKeys...),
		UserAgent:     sanitizeText(ExtractStringField(raw, agentKeys...)),
		Reasoning:     sanitizeText(ExtractStringField(raw, reasoningKeys...)),
		DecisionMaker: ExtractStringField(raw, makerKeys...),
		Country:       strings.ToUpper(ExtractStringField(raw, countryKeys...)),
		Method:        logparse.NormalizeMethod(ExtractStringField(raw, methodKeys...)),
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
		n.anomaly(AnomalyMissingID, source, "ingest: record without id, assigned %s", r.ID)
	}

	if ts, ok := n.parser.ParseTimestamp(numberValue(extractField(raw, timeKeys...))); ok {
		r.Timestamp = ts.UTC()
	} else {
		r.Timestamp = n.now().UTC()
		n.anomaly(AnomalyBadTimestamp, source, "ingest: record %s has no usable timestamp, using ingest time", r.ID)
	}

	r.Path, r.QueryString = splitURL(ExtractStringField(raw, urlKeys...))
	if q := ExtractStringField(raw, queryKeys...); q != "" {
		r.QueryString = strings.TrimPrefix(q, "?")
	}

	if s := ExtractStringField(raw, statusKeys...); s != "" {
		code, err := strconv.Atoi(strings.TrimSuffix(s, ".0"))
		if err != nil || code < 0 || code > 999 {
			n.anomaly(AnomalyBadStatus, source, "ingest: record %s has invalid status %q", r.ID, s)
		} else {
			r.StatusCode = code
		}
	}

	r.RawDecision = ExtractStringField(raw, decisionKeys...)
	decision, ok := logparse.NormalizeDecision(r.RawDecision)
	r.Decision = decision
	if !ok {
		n.anomaly(AnomalyUnknownDecision, source, "ingest: record %s has unrecognized decision %q", r.ID, r.RawDecision)
	}

	conf, ok := logparse.ParseConfidence(numberValue(extractField(raw, confKeys...)), n.scale)
	r.Confidence = conf
	if !ok {
		n.anomaly(AnomalyBadConfidence, source, "ingest: record %s has out-of-range confidence %q", r.ID, conf.Raw)
	}

	if r.Country == "" && n.locator != nil && r.SourceAddress != "" {
		r.Country = n.locator.Country(r.SourceAddress)
	}

	n.observer.RecordIngested(source, r.Decision)
	return r
}

// splitURL separates a request target into path and query. Absolute URLs
// are reduced to their path.
func splitURL(target string) (path, query string) {
	if target == "" {
		return "", ""
	}
	if strings.Contains(target, "://") {
		if u, err := url.Parse(target); err == nil {
			path = u.EscapedPath()
			if path == "" {
				path = "/"
			}
			return path, u.RawQuery
		}
	}
	path, query, _ = strings.Cut(target, "?")
	return path, query
}
