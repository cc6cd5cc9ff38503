package logparse

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tinytelemetry/warden/internal/model"
)

// ScaleAuto infers the confidence scale from the magnitude of each value.
const ScaleAuto model.ConfidenceScale = "auto"

// ParseScale validates a configured confidence scale.
func ParseScale(s string) (model.ConfidenceScale, error) {
	switch v := model.ConfidenceScale(strings.ToLower(strings.TrimSpace(s))); v {
	case "", ScaleAuto:
		return ScaleAuto, nil
	case model.ScaleUnit, model.ScaleTen, model.ScalePercent:
		return v, nil
	default:
		return "", fmt.Errorf("unknown confidence scale %q (want auto, unit, ten or percent)", s)
	}
}

func inferScale(v float64) model.ConfidenceScale {
	switch {
	case v <= 1:
		return model.ScaleUnit
	case v <= 10:
		return model.ScaleTen
	default:
		return model.ScalePercent
	}
}

func divisor(scale model.ConfidenceScale) float64 {
	switch scale {
	case model.ScaleTen:
		return 10
	case model.ScalePercent:
		return 100
	default:
		return 1
	}
}

// NormalizeConfidence converts a raw upstream confidence into a unit
// fraction. Out-of-range results are clamped and reported with ok=false.
func NormalizeConfidence(raw float64, scale model.ConfidenceScale) (model.Confidence, bool) {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return model.Confidence{Raw: strconv.FormatFloat(raw, 'g', -1, 64)}, false
	}
	if scale == "" || scale == ScaleAuto {
		scale = inferScale(raw)
	}
	value := raw / divisor(scale)
	ok := true
	if value < 0 {
		value, ok = 0, false
	} else if value > 1 {
		value, ok = 1, false
	}
	return model.Confidence{
		Value: value,
		Scale: scale,
		Raw:   strconv.FormatFloat(raw, 'f', -1, 64),
		Valid: true,
	}, ok
}

// ParseConfidence accepts the loosely typed values the upstream emits:
// numbers, numeric strings (optionally with a trailing %), or nothing.
// A missing value yields an invalid Confidence with ok=true.
func ParseConfidence(v any, scale model.ConfidenceScale) (model.Confidence, bool) {
	switch x := v.(type) {
	case nil:
		return model.Confidence{}, true
	case float64:
		return NormalizeConfidence(x, scale)
	case float32:
		return NormalizeConfidence(float64(x), scale)
	case int:
		return NormalizeConfidence(float64(x), scale)
	case int64:
		return NormalizeConfidence(float64(x), scale)
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return model.Confidence{}, true
		}
		if strings.HasSuffix(s, "%") {
			s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
			scale = model.ScalePercent
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Confidence{Raw: x}, false
		}
		return NormalizeConfidence(f, scale)
	default:
		return model.Confidence{Raw: fmt.Sprint(v)}, false
	}
}
