package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/warden/internal/fetch"
	"github.com/tinytelemetry/warden/internal/model"
	"github.com/tinytelemetry/warden/internal/view"
)

// renderBranding renders "Warden" with a blue to green gradient
func renderBranding() string {
	colors := []string{"#2F7CF6", "#2791E0", "#1FA6CA", "#17BBB4", "#0FD09E", "#07E588"}
	var b strings.Builder
	for i, char := range "Warden" {
		style := lipgloss.NewStyle().
			Background(ColorNavy).
			Foreground(lipgloss.Color(colors[i%len(colors)])).Bold(true)
		b.WriteString(style.Render(string(char)))
	}
	return b.String()
}

func (m *DashboardModel) renderHeader() string {
	base := lipgloss.NewStyle().Background(ColorNavy).Foreground(ColorWhite)

	left := renderBranding() + base.Render("  request decisions")
	right := "not signed in"
	if m.session != nil {
		if u := m.session.CurrentUser(); u != nil {
			right = "signed in as " + u.Name
		}
	}
	right = base.Render(right + " ")

	gap := max(1, m.width-lipgloss.Width(left)-lipgloss.Width(right))
	return left + base.Render(strings.Repeat(" ", gap)) + right
}

// renderStatCards shows totals for the filtered collection.
func (m *DashboardModel) renderStatCards() string {
	stats := m.ctrl.Output().Stats
	cardWidth := max(12, m.width/4-2)

	card := func(title, value string, color lipgloss.Color) string {
		t := lipgloss.NewStyle().Foreground(ColorGray).Render(title)
		v := lipgloss.NewStyle().Foreground(color).Bold(true).Render(value)
		return lipgloss.NewStyle().
			Width(cardWidth).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorGray).
			Padding(0, 1).
			Render(lipgloss.JoinVertical(lipgloss.Left, t, v))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top,
		card("Total requests", strconv.Itoa(stats.Total), ColorWhite),
		card("Allowed", fmt.Sprintf("%d%%", stats.Percent(model.DecisionAllowed)), decisionColor(model.DecisionAllowed)),
		card("Blocked", fmt.Sprintf("%d%%", stats.Percent(model.DecisionBlocked)), decisionColor(model.DecisionBlocked)),
		card("Monitored", fmt.Sprintf("%d%%", stats.Percent(model.DecisionMonitored)), decisionColor(model.DecisionMonitored)),
	)
}

func (m *DashboardModel) renderFilterBar() string {
	f := m.ctrl.Filter()
	label := lipgloss.NewStyle().Foreground(ColorGray)
	value := lipgloss.NewStyle().Foreground(ColorWhite).Bold(true)

	var search string
	switch {
	case m.searchActive:
		search = m.searchInput.View()
	case f.Search != "":
		search = value.Render(f.Search)
	default:
		search = label.Render("-")
	}

	var status string
	switch {
	case m.statusActive:
		status = m.statusInput.View()
	case f.Status != 0:
		status = value.Render(strconv.Itoa(f.Status))
	default:
		status = value.Render("all")
	}

	method := "all"
	if !f.AnyMethod() {
		method = string(f.Method)
	}
	decision := "all"
	if !f.AnyDecision() {
		decision = string(f.Decision)
	}

	parts := []string{
		label.Render("/ search: ") + search,
		label.Render("m method: ") + value.Render(method),
		label.Render("d decision: ") + value.Render(decision),
		label.Render("s status: ") + status,
	}
	line := " " + strings.Join(parts, label.Render("  │  "))
	if m.statusErr != "" {
		line += "  " + lipgloss.NewStyle().Foreground(ColorRed).Render(m.statusErr)
	}
	return line
}

// renderErrorBanner is shown while the latest load failed; the table
// keeps the last good data underneath it.
func (m *DashboardModel) renderErrorBanner() string {
	if m.status.Err == nil {
		return ""
	}
	msg := fmt.Sprintf(" Refresh failed: %v", m.status.Err)
	if m.status.DataReady {
		msg += " (showing last good data, r: retry)"
	} else {
		msg += " (r: retry)"
	}
	return lipgloss.NewStyle().
		Width(m.width).
		Background(ColorRed).
		Foreground(ColorWhite).
		Render(truncate(msg, m.width))
}

type column struct {
	title string
	width int
}

func (m *DashboardModel) tableColumns() []column {
	cols := []column{
		{"Time", 8},
		{"Source", 15},
		{"Method", 6},
		{"Path", 0},
		{"Status", 6},
		{"Decision", 9},
		{"Conf", 5},
		{"Country", 7},
	}
	fixed := 0
	for _, c := range cols {
		fixed += c.width + 1
	}
	cols[3].width = max(10, m.width-fixed-2)
	return cols
}

func (m *DashboardModel) renderTable(height int) string {
	out := m.ctrl.Output()
	cols := m.tableColumns()

	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = pad(c.title, c.width)
	}
	headerStyle := lipgloss.NewStyle().Foreground(ColorBlue).Bold(true)
	lines := []string{headerStyle.Render(" " + strings.Join(header, " "))}

	if len(out.Visible) == 0 {
		msg := "No requests recorded yet"
		if !m.ctrl.Filter().IsZero() {
			msg = "No requests match the current filters (x: clear)"
		}
		lines = append(lines, renderMessage(msg, m.width, max(1, height-2)))
		return strings.Join(lines, "\n")
	}

	for i, r := range out.Visible {
		if i >= height-1 {
			break
		}
		lines = append(lines, m.renderRow(r, cols, i == m.cursor))
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func (m *DashboardModel) renderRow(r model.LogRecord, cols []column, selected bool) string {
	status := "-"
	if r.StatusCode != 0 {
		status = strconv.Itoa(r.StatusCode)
	}
	conf := "-"
	if r.Confidence.Valid {
		conf = fmt.Sprintf("%d%%", r.Confidence.Percent())
	}
	cells := []struct {
		text  string
		color lipgloss.Color
	}{
		{formatTimestamp(r.Timestamp, time.TimeOnly), ColorGray},
		{orDash(r.SourceAddress), ColorWhite},
		{string(r.Method), ColorWhite},
		{orDash(r.Path), ColorWhite},
		{status, statusColor(r.StatusCode)},
		{string(r.Decision), decisionColor(r.Decision)},
		{conf, confidenceColor(r.Confidence.Level())},
		{orDash(r.Country), ColorGray},
	}

	parts := make([]string, len(cells))
	for i, c := range cells {
		style := lipgloss.NewStyle().Foreground(c.color)
		if selected {
			style = style.Background(ColorNavy).Bold(true)
		}
		parts[i] = style.Render(pad(c.text, cols[i].width))
	}
	prefix := " "
	if selected {
		prefix = lipgloss.NewStyle().Foreground(ColorBlue).Background(ColorNavy).Render("▌")
	}
	return prefix + strings.Join(parts, " ")
}

func (m *DashboardModel) renderPager() string {
	info := m.ctrl.Output().Page
	if info.TotalRecords == 0 {
		return ""
	}
	gray := lipgloss.NewStyle().Foreground(ColorGray)
	current := lipgloss.NewStyle().Foreground(ColorWhite).Background(ColorBlue).Bold(true)

	var nums []string
	for _, p := range view.PageWindow(info, 5) {
		label := fmt.Sprintf(" %d ", p)
		if p == info.Page {
			nums = append(nums, current.Render(label))
		} else {
			nums = append(nums, gray.Render(label))
		}
	}
	prev, next := gray.Render("‹"), gray.Render("›")
	if !info.HasPrev() {
		prev = " "
	}
	if !info.HasNext() {
		next = " "
	}

	left := gray.Render(fmt.Sprintf(" Showing %d-%d of %d", info.First, info.Last, info.TotalRecords))
	right := fmt.Sprintf("%s %s %s  %s ", prev, strings.Join(nums, ""), next,
		gray.Render(fmt.Sprintf("Page %d/%d", info.Page, info.TotalPages)))
	gap := max(1, m.width-lipgloss.Width(left)-lipgloss.Width(right))
	return left + strings.Repeat(" ", gap) + right
}

// renderStatusLine renders the status/help line at the bottom of the screen
func (m *DashboardModel) renderStatusLine() string {
	baseStyle := lipgloss.NewStyle().
		Background(ColorNavy).
		Foreground(ColorWhite)

	var leftText string
	switch {
	case m.searchActive:
		leftText = " enter: done | esc: clear"
	case m.statusActive:
		leftText = " enter: apply | esc: cancel"
	case m.width < 100:
		leftText = " ?: help | q: quit"
	default:
		leftText = " ↑↓: select | ←→: page | enter: details | a: analytics | r: refresh | ?: help | q: quit"
	}

	dotColor := ColorGray
	switch {
	case m.status.Err != nil:
		dotColor = ColorRed
	case m.isLoading():
		dotColor = ColorYellow
	case m.status.DataReady:
		dotColor = ColorGreen
	}
	dot := lipgloss.NewStyle().Background(ColorNavy).Foreground(dotColor).Render("●")

	var right []string
	if m.dataSource != "" {
		right = append(right, m.dataSource)
	}
	right = append(right, "every "+m.refreshInterval.String())
	if !m.status.FetchedAt.IsZero() {
		right = append(right, "updated "+m.status.FetchedAt.Local().Format(time.TimeOnly))
	}
	if m.status.State == fetch.StateRefreshing || m.manualLoading {
		right = append(right, spinnerFrame())
	}
	rightText := " " + strings.Join(right, " | ") + " "

	gap := max(1, m.width-lipgloss.Width(leftText)-lipgloss.Width(rightText)-1)
	return baseStyle.Render(leftText+strings.Repeat(" ", gap)) + dot + baseStyle.Render(rightText)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncate shortens s to width display cells, marking the cut with an ellipsis.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}

// pad truncates or right-pads s to exactly width cells.
func pad(s string, width int) string {
	s = truncate(s, width)
	if w := lipgloss.Width(s); w < width {
		s += strings.Repeat(" ", width-w)
	}
	return s
}
