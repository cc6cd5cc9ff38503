package timestamp

import (
	"testing"
	"time"
)

func TestParseTimestamp_Strings(t *testing.T) {
	p := NewParser()

	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"RFC3339", "2024-01-15T10:30:45Z", time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC)},
		{"RFC3339Nano", "2024-01-15T10:30:45.123456789Z", time.Date(2024, 1, 15, 10, 30, 45, 123456789, time.UTC)},
		{"RFC3339 offset", "2024-01-15T10:30:45+05:00", time.Date(2024, 1, 15, 5, 30, 45, 0, time.UTC)},
		{"space separated", "2024-01-15 10:30:45", time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC)},
		{"postgres zone", "2024-01-15 10:30:45.5+00", time.Date(2024, 1, 15, 10, 30, 45, 500000000, time.UTC)},
		{"comma decimal", "2024-01-15 10:30:45,123", time.Date(2024, 1, 15, 10, 30, 45, 123000000, time.UTC)},
		{"numeric string", "946684800", time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := p.ParseTimestamp(tt.input)
			if !ok {
				t.Fatalf("ParseTimestamp(%q) failed", tt.input)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseTimestamp_Unix(t *testing.T) {
	p := NewParser()

	tests := []struct {
		name  string
		input any
		year  int
	}{
		{"seconds", float64(946684800), 2000},
		{"seconds int64", int64(946684800), 2000},
		{"millis", float64(1600000000000), 2020},
		{"micros", int64(1600000000000000), 2020},
		{"nanos", float64(1600000000000000000), 2020},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, ok := p.ParseTimestamp(tt.input)
			if !ok {
				t.Fatalf("ParseTimestamp(%v) failed", tt.input)
			}
			if ts.Year() != tt.year {
				t.Errorf("ParseTimestamp(%v) year = %d, want %d", tt.input, ts.Year(), tt.year)
			}
		})
	}
}

func TestParseTimestamp_Invalid(t *testing.T) {
	p := NewParser()

	for _, v := range []any{"", "   ", "yesterday", nil, float64(0), float64(-5), true} {
		if _, ok := p.ParseTimestamp(v); ok {
			t.Errorf("ParseTimestamp(%v) should fail", v)
		}
	}
}

func TestParseTimestamp_Location(t *testing.T) {
	p := NewParser()
	p.Location = time.FixedZone("UTC+2", 2*60*60)

	ts, ok := p.ParseTimestamp("2024-01-15 10:00:00")
	if !ok {
		t.Fatal("ParseTimestamp failed")
	}
	if ts.UTC().Hour() != 8 {
		t.Errorf("hour in UTC = %d, want 8", ts.UTC().Hour())
	}
}
