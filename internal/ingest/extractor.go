package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNotJSON is returned for lines that are neither a JSON object nor an array.
var ErrNotJSON = errors.New("ingest: line is not a JSON object or array")

// wrapperKeys are envelope keys some exporters nest record arrays under.
var wrapperKeys = []string{"records", "data", "logs"}

// ParseRawRecords decodes a line holding one upstream record, an array of
// records, or an object wrapping an array under one of wrapperKeys.
func ParseRawRecords(line string) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return nil, ErrNotJSON
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()

	if trimmed[0] == '[' {
		var items []map[string]any
		if err := dec.Decode(&items); err != nil {
			return nil, fmt.Errorf("decode record array: %w", err)
		}
		return items, nil
	}

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	for _, key := range wrapperKeys {
		if nested, ok := obj[key].([]any); ok {
			items := make([]map[string]any, 0, len(nested))
			for _, v := range nested {
				if m, ok := v.(map[string]any); ok {
					items = append(items, m)
				}
			}
			return items, nil
		}
	}
	return []map[string]any{obj}, nil
}

func stringifyJSONValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(v); err == nil {
			return strings.TrimSpace(buf.String())
		}
	}
	return ""
}

// ExtractStringField returns the first non-empty string value found among the given keys.
func ExtractStringField(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			if str := strings.TrimSpace(stringifyJSONValue(v)); str != "" {
				return str
			}
		}
	}
	return ""
}

// extractField returns the first present, non-null value among keys.
func extractField(raw map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// numberValue unwraps json.Number into float64 so downstream parsers see plain numbers.
func numberValue(v any) any {
	if n, ok := v.(json.Number); ok {
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	}
	return v
}

func sanitizeText(s string) string {
	clean := strings.ReplaceAll(s, "\t", " ")
	clean = strings.ReplaceAll(clean, "\r", " ")
	return strings.TrimSpace(clean)
}
