package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/warden/internal/model"
)

const detailModalID = "detail"

// DetailModal shows every field of one record. It holds its own copy, so
// a refresh underneath does not change what is displayed.
type DetailModal struct {
	scrollModal
	record  model.LogRecord
	content string
}

// NewDetailModal creates a detail modal for record.
func NewDetailModal(record model.LogRecord) *DetailModal {
	return &DetailModal{
		scrollModal: newScrollModal(),
		record:      record,
		content:     formatRecordDetails(record),
	}
}

func (d *DetailModal) ID() string { return detailModalID }

func (d *DetailModal) Update(msg tea.Msg) (bool, tea.Cmd) { return d.update(msg) }

func (d *DetailModal) View(width, height int) string {
	title := fmt.Sprintf("Request %s", d.record.ID)
	return d.render(title, d.content, modalHelp("ESC: Close"), width, height)
}

// recordDetails is the YAML shape of the detail view.
type recordDetails struct {
	ID            string `yaml:"id"`
	Timestamp     string `yaml:"timestamp"`
	SourceAddress string `yaml:"source_address,omitempty"`
	Country       string `yaml:"country,omitempty"`
	Method        string `yaml:"method"`
	Path          string `yaml:"path,omitempty"`
	QueryString   string `yaml:"query_string,omitempty"`
	UserAgent     string `yaml:"user_agent,omitempty"`
	StatusCode    int    `yaml:"status_code,omitempty"`
	Decision      string `yaml:"decision"`
	RawDecision   string `yaml:"upstream_decision,omitempty"`
	Confidence    string `yaml:"confidence"`
	DecisionMaker string `yaml:"decision_maker,omitempty"`
	Reasoning     string `yaml:"reasoning,omitempty"`
}

func formatRecordDetails(r model.LogRecord) string {
	doc := recordDetails{
		ID:            r.ID,
		Timestamp:     formatTimestamp(r.Timestamp, time.RFC3339),
		SourceAddress: r.SourceAddress,
		Country:       r.Country,
		Method:        string(r.Method),
		Path:          r.Path,
		QueryString:   r.QueryString,
		UserAgent:     r.UserAgent,
		StatusCode:    r.StatusCode,
		Decision:      string(r.Decision),
		Confidence:    formatConfidence(r.Confidence),
		DecisionMaker: r.DecisionMaker,
		Reasoning:     r.Reasoning,
	}
	if r.RawDecision != "" && r.RawDecision != string(r.Decision) {
		doc.RawDecision = r.RawDecision
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Sprintf("failed to render record: %v", err)
	}
	return string(out)
}

func formatConfidence(c model.Confidence) string {
	if !c.Valid {
		return "n/a"
	}
	return fmt.Sprintf("%d%% (%s)", c.Percent(), c.Level())
}

func formatTimestamp(t time.Time, layout string) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(layout)
}
