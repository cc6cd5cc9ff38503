package ingest

import (
	"strings"
	"sync"

	"github.com/tinytelemetry/warden/internal/model"
)

// DefaultMaxDocumentSize bounds a multi-line JSON document held for one
// stream.
const DefaultMaxDocumentSize = 16 << 20

// Processor parses ingest lines, normalizes the records they carry and
// hands them to the sink. JSON spread over several lines is accumulated
// per source until its brackets balance.
type Processor struct {
	// MaxDocumentSize caps the bytes accumulated for an unbalanced JSON
	// document. A stream exceeding it has its pending document discarded.
	MaxDocumentSize int

	sink       RecordSink
	normalizer *Normalizer

	mu      sync.Mutex
	pending map[string]*jsonAccumulator
}

type jsonAccumulator struct {
	buf   strings.Builder
	depth int
}

// NewProcessor creates a processor that sends normalized records to sink.
func NewProcessor(sink RecordSink, normalizer *Normalizer) *Processor {
	if normalizer == nil {
		normalizer = NewNormalizer(NormalizerConfig{})
	}
	return &Processor{
		MaxDocumentSize: DefaultMaxDocumentSize,
		sink:            sink,
		normalizer:      normalizer,
		pending:         make(map[string]*jsonAccumulator),
	}
}

// ProcessResult holds the records produced by one completed JSON document.
type ProcessResult struct {
	Records []*model.LogRecord
}

// ProcessLine processes a line from an unnamed source.
func (p *Processor) ProcessLine(line string) *ProcessResult {
	return p.ProcessEnvelope(model.IngestEnvelope{Line: line})
}

// ProcessEnvelope processes one source-tagged line. It returns nil while a
// multi-line document is still being accumulated or when the line carried
// nothing usable.
func (p *Processor) ProcessEnvelope(env model.IngestEnvelope) *ProcessResult {
	key := streamKey(env)
	if env.EOF {
		p.flush(key, env.Source)
		return nil
	}
	doc, ok, discarded := p.accumulate(key, env.Line)
	if discarded > 0 {
		p.normalizer.anomaly(AnomalyMalformedLine, env.Source, "ingest: discarding oversized JSON document (%d bytes)", discarded)
	}
	if !ok {
		return nil
	}
	return p.processDocument(env.Source, doc)
}

func streamKey(env model.IngestEnvelope) string {
	if env.Stream == "" {
		return env.Source
	}
	return env.Source + "/" + env.Stream
}

// accumulate returns a complete JSON document once one is available. When
// the pending document outgrows MaxDocumentSize it is dropped and its size
// returned as discarded.
func (p *Processor) accumulate(key, line string) (doc string, ok bool, discarded int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	acc := p.pending[key]
	trimmed := strings.TrimSpace(line)
	if acc == nil {
		if trimmed == "" {
			return "", false, 0
		}
		if trimmed[0] != '{' && trimmed[0] != '[' {
			// Not JSON; let the parser report it.
			return trimmed, true, 0
		}
		acc = &jsonAccumulator{}
	}

	acc.buf.WriteString(line)
	acc.buf.WriteString("\n")
	acc.depth += CountJSONDepth(line)

	if acc.depth > 0 {
		if p.MaxDocumentSize > 0 && acc.buf.Len() > p.MaxDocumentSize {
			delete(p.pending, key)
			return "", false, acc.buf.Len()
		}
		p.pending[key] = acc
		return "", false, 0
	}
	delete(p.pending, key)
	return strings.TrimSpace(acc.buf.String()), true, 0
}

func (p *Processor) processDocument(source, doc string) *ProcessResult {
	raws, err := ParseRawRecords(doc)
	if err != nil {
		p.normalizer.anomaly(AnomalyMalformedLine, source, "ingest: skipping line (%.80s): %v", doc, err)
		return nil
	}

	result := &ProcessResult{Records: make([]*model.LogRecord, 0, len(raws))}
	for _, raw := range raws {
		record := p.normalizer.Normalize(raw, source)
		if p.sink != nil {
			p.sink.Add(record)
		}
		result.Records = append(result.Records, record)
	}
	return result
}

// flush drops any partially accumulated document for a stream and reports
// it, e.g. when a connection closes mid-object.
func (p *Processor) flush(key, source string) {
	p.mu.Lock()
	acc, ok := p.pending[key]
	delete(p.pending, key)
	p.mu.Unlock()
	if ok {
		p.normalizer.anomaly(AnomalyMalformedLine, source, "ingest: discarding incomplete JSON (%d bytes)", acc.buf.Len())
	}
}

// CountJSONDepth counts the net change in JSON nesting depth for a line.
func CountJSONDepth(line string) int {
	depth := 0
	inString := false
	escaped := false

	for _, char := range line {
		if escaped {
			escaped = false
			continue
		}

		switch char {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				depth++
			}
		case '}', ']':
			if !inString {
				depth--
			}
		}
	}

	return depth
}
