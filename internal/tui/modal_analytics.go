package tui

import (
	"fmt"
	"strings"

	"github.com/NimbleMarkets/ntcharts/barchart"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/warden/internal/model"
	"github.com/tinytelemetry/warden/internal/view"
)

// AnalyticsModal charts the stats of the filtered collection. It reads
// the controller on every render, so it follows refreshes and filters.
type AnalyticsModal struct {
	ctrl *view.Controller
}

// NewAnalyticsModal creates an analytics modal over ctrl.
func NewAnalyticsModal(ctrl *view.Controller) *AnalyticsModal {
	return &AnalyticsModal{ctrl: ctrl}
}

func (a *AnalyticsModal) ID() string { return "analytics" }

func (a *AnalyticsModal) Update(msg tea.Msg) (bool, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "escape", "esc", "a", "q":
			return true, nil
		}
	}
	return false, nil
}

func (a *AnalyticsModal) View(width, height int) string {
	stats := a.ctrl.Output().Stats

	modalWidth := max(40, width-8)
	contentWidth := modalWidth - 4

	title := lipgloss.NewStyle().Foreground(ColorBlue).Bold(true).
		Render(fmt.Sprintf("Analytics  (%d requests)", stats.Total))

	var body string
	if stats.Total == 0 {
		body = lipgloss.NewStyle().Foreground(ColorGray).Italic(true).
			Render("No requests match the current filters")
	} else {
		body = lipgloss.JoinVertical(lipgloss.Left,
			sectionTitle("Requests per hour"),
			renderHourChart(stats, contentWidth),
			hourAxis(stats, contentWidth),
			"",
			lipgloss.JoinHorizontal(lipgloss.Top,
				renderDecisionChart(stats, 30),
				"   ",
				renderBreakdown(stats),
			),
		)
	}

	help := lipgloss.NewStyle().Foreground(ColorGray).Render("a/ESC: Close")
	content := lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", help)

	frame := lipgloss.NewStyle().
		Width(modalWidth).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBlue).
		Padding(0, 1).
		Render(content)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, frame)
}

func sectionTitle(s string) string {
	return lipgloss.NewStyle().Foreground(ColorWhite).Bold(true).Render(s)
}

// hourBarWidth fits 24 bars with a one-column gap into width.
func hourBarWidth(width int) int {
	return max(1, (width-24)/24)
}

func renderHourChart(stats view.Stats, width int) string {
	barWidth := hourBarWidth(width)
	peak, _ := stats.PeakHour()
	bc := barchart.New(24*(barWidth+1), 8,
		barchart.WithBarGap(1),
		barchart.WithBarWidth(barWidth),
		barchart.WithNoAxis(),
	)
	for h, n := range stats.PerHour {
		style := barStyle(ColorBlue)
		if h == peak && n > 0 {
			style = barStyle(ColorOrange)
		}
		bc.Push(barchart.BarData{
			Label:  "",
			Values: []barchart.BarValue{{Name: fmt.Sprintf("%02d", h), Value: float64(n), Style: style}},
		})
	}
	bc.Draw()
	return bc.View()
}

// hourAxis labels every sixth bar under the hour chart.
func hourAxis(stats view.Stats, width int) string {
	step := hourBarWidth(width) + 1
	line := []rune(strings.Repeat(" ", 24*step))
	for h := 0; h < 24; h += 6 {
		label := fmt.Sprintf("%02d", h)
		copy(line[h*step:], []rune(label))
	}
	peak, count := stats.PeakHour()
	return lipgloss.NewStyle().Foreground(ColorGray).Render(string(line)) + "\n" +
		lipgloss.NewStyle().Foreground(ColorOrange).
			Render(fmt.Sprintf("peak %02d:00 with %d requests", peak, count))
}

func renderDecisionChart(stats view.Stats, width int) string {
	bc := barchart.New(width, 8,
		barchart.WithBarGap(2),
		barchart.WithBarWidth(max(1, (width-2*len(model.Decisions))/len(model.Decisions))),
		barchart.WithNoAxis(),
	)
	for _, d := range model.Decisions {
		bc.Push(barchart.BarData{
			Label: "",
			Values: []barchart.BarValue{{
				Name:  string(d),
				Value: float64(stats.PerDecision[d]),
				Style: barStyle(decisionColor(d)),
			}},
		})
	}
	bc.Draw()
	return lipgloss.JoinVertical(lipgloss.Left, sectionTitle("Decisions"), bc.View())
}

func renderBreakdown(stats view.Stats) string {
	var lines []string
	lines = append(lines, sectionTitle("Decisions"))
	for _, d := range model.Decisions {
		style := lipgloss.NewStyle().Foreground(decisionColor(d))
		lines = append(lines, style.Render(fmt.Sprintf("%-10s %6d %4d%%", d, stats.PerDecision[d], stats.Percent(d))))
	}
	lines = append(lines, "", sectionTitle("Methods"))
	for _, m := range model.Methods {
		lines = append(lines, fmt.Sprintf("%-10s %6d", m, stats.PerMethod[m]))
	}
	lines = append(lines, "", sectionTitle("Status"))
	for _, c := range view.StatusClasses {
		style := lipgloss.NewStyle().Foreground(statusClassColor(c))
		lines = append(lines, style.Render(fmt.Sprintf("%-10s %6d", c, stats.PerStatus[c])))
	}
	return strings.Join(lines, "\n")
}

func statusClassColor(c view.StatusClass) lipgloss.Color {
	switch c {
	case view.Status2xx:
		return statusColor(200)
	case view.Status3xx:
		return statusColor(300)
	case view.Status4xx:
		return statusColor(400)
	case view.Status5xx:
		return statusColor(500)
	default:
		return ColorGray
	}
}
