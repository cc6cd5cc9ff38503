package logparse

import (
	"strings"

	"github.com/tinytelemetry/warden/internal/model"
)

// NormalizeDecision maps an upstream verdict string onto the fixed decision
// vocabulary. ok is false when the string fell through to DecisionUnknown.
func NormalizeDecision(raw string) (model.Decision, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))

	switch normalized {
	case "allowed", "allow", "benign", "pass", "passed", "accept", "accepted":
		return model.DecisionAllowed, true
	case "blocked", "block", "malicious", "deny", "denied", "reject", "rejected", "drop":
		return model.DecisionBlocked, true
	case "monitored", "monitor", "flagged", "flag", "suspicious", "challenge", "log":
		return model.DecisionMonitored, true
	default:
		return model.DecisionUnknown, false
	}
}

// ParseDecisionFilter parses a user-supplied decision criterion. Empty and
// "all" select the wildcard; anything else goes through NormalizeDecision,
// and the literal "unknown" selects the Unknown bucket.
func ParseDecisionFilter(raw string) (model.Decision, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	switch normalized {
	case "", string(model.DecisionAll):
		return model.DecisionAll, true
	case string(model.DecisionUnknown):
		return model.DecisionUnknown, true
	}
	return NormalizeDecision(normalized)
}

// NormalizeMethod upper-cases the method and folds anything outside the
// known set into MethodOther.
func NormalizeMethod(raw string) model.Method {
	switch m := model.Method(strings.ToUpper(strings.TrimSpace(raw))); m {
	case model.MethodGet, model.MethodPost, model.MethodPut, model.MethodDelete, model.MethodPatch:
		return m
	default:
		return model.MethodOther
	}
}

// ParseMethodFilter parses a user-supplied method criterion.
func ParseMethodFilter(raw string) model.Method {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, string(model.MethodAll)) {
		return model.MethodAll
	}
	return NormalizeMethod(trimmed)
}
