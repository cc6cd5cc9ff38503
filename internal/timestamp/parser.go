// Package timestamp parses the loosely formatted created_at values the
// upstream decision engine emits.
package timestamp

import (
	"math"
	"strconv"
	"strings"
	"time"
)

var defaultLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
}

// Parser converts timestamp values into time.Time. Values without a zone
// are interpreted in Location.
type Parser struct {
	Location *time.Location
	layouts  []string
}

// NewParser creates a parser that reads zone-less values as UTC.
func NewParser() *Parser {
	return &Parser{Location: time.UTC, layouts: defaultLayouts}
}

// ParseTimestamp accepts strings, unix numbers (seconds, millis, micros or
// nanos picked by magnitude) and time.Time values.
func (p *Parser) ParseTimestamp(v any) (time.Time, bool) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return x, !x.IsZero()
	case string:
		return p.parseString(x)
	case float64:
		return parseUnix(x)
	case float32:
		return parseUnix(float64(x))
	case int64:
		return parseUnix(float64(x))
	case int:
		return parseUnix(float64(x))
	default:
		return time.Time{}, false
	}
}

func (p *Parser) parseString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	// Comma fractional seconds ("10:30:45,123") are common in exports.
	if i := strings.LastIndexByte(s, ','); i > 0 && i > strings.LastIndexByte(s, ':') {
		s = s[:i] + "." + s[i+1:]
	}
	for _, layout := range p.layouts {
		if t, err := time.ParseInLocation(layout, s, p.Location); err == nil {
			return t, true
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return parseUnix(f)
	}
	return time.Time{}, false
}

func parseUnix(v float64) (time.Time, bool) {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return time.Time{}, false
	}
	switch {
	case v < 1e11:
		sec, frac := math.Modf(v)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
	case v < 1e14:
		return time.UnixMilli(int64(v)).UTC(), true
	case v < 1e17:
		return time.UnixMicro(int64(v)).UTC(), true
	default:
		return time.Unix(0, int64(v)).UTC(), true
	}
}
