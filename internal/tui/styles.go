package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/warden/internal/model"
	"github.com/tinytelemetry/warden/internal/view"
)

var (
	ColorNavy   = lipgloss.Color("#1B2A4A")
	ColorBlue   = lipgloss.Color("39")
	ColorGreen  = lipgloss.Color("42")
	ColorYellow = lipgloss.Color("220")
	ColorOrange = lipgloss.Color("208")
	ColorRed    = lipgloss.Color("196")
	ColorGray   = lipgloss.Color("244")
	ColorWhite  = lipgloss.Color("255")
)

// decisionColor returns the display color for a decision bucket.
func decisionColor(d model.Decision) lipgloss.Color {
	switch d {
	case model.DecisionAllowed:
		return ColorGreen
	case model.DecisionBlocked:
		return ColorRed
	case model.DecisionMonitored:
		return ColorYellow
	default:
		return ColorGray
	}
}

func confidenceColor(level model.ConfidenceLevel) lipgloss.Color {
	switch level {
	case model.ConfidenceHigh:
		return ColorGreen
	case model.ConfidenceMedium:
		return ColorYellow
	case model.ConfidenceLow:
		return ColorOrange
	default:
		return ColorGray
	}
}

func statusColor(code int) lipgloss.Color {
	switch view.ClassifyStatus(code) {
	case view.Status2xx:
		return ColorGreen
	case view.Status3xx:
		return ColorBlue
	case view.Status4xx:
		return ColorOrange
	case view.Status5xx:
		return ColorRed
	default:
		return ColorGray
	}
}

// barStyle is a solid block style for chart bars.
func barStyle(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c).Background(c)
}
