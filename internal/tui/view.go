package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// View renders the dashboard
func (m *DashboardModel) View() string {
	if m.width <= 0 || m.height <= 0 {
		return "Initializing dashboard..."
	}

	// If a modal is on the stack, render it full-screen.
	if modal := m.TopModal(); modal != nil {
		return modal.View(m.width, m.height)
	}

	return m.renderDashboard()
}

// renderDashboard stacks header, stat cards, filter bar, optional error
// banner, the table or a placeholder, the pager and the status line.
func (m *DashboardModel) renderDashboard() string {
	if m.height < 16 || m.width < 60 {
		return "Terminal too small. Resize to at least 60x16."
	}

	sections := []string{
		m.renderHeader(),
		m.renderStatCards(),
		m.renderFilterBar(),
	}
	if banner := m.renderErrorBanner(); banner != "" {
		sections = append(sections, banner)
	}

	top := lipgloss.JoinVertical(lipgloss.Left, sections...)
	statusLine := m.renderStatusLine()
	bodyHeight := max(3, m.height-lipgloss.Height(top)-lipgloss.Height(statusLine))

	var body string
	switch {
	case !m.status.DataReady && m.isLoading():
		body = renderLoadingPlaceholder("Loading requests...", m.width, bodyHeight)
	case !m.status.DataReady && m.status.Err != nil:
		body = renderMessage("No data loaded. Press r to retry.", m.width, bodyHeight)
	case m.loader != nil && !m.loader.Authenticated():
		body = renderMessage("Not signed in.", m.width, bodyHeight)
	default:
		table := m.renderTable(bodyHeight - 1)
		body = lipgloss.JoinVertical(lipgloss.Left, table, m.renderPager())
	}

	return lipgloss.JoinVertical(lipgloss.Left, top, body, statusLine)
}

func renderMessage(text string, width, height int) string {
	style := lipgloss.NewStyle().Foreground(ColorGray).Italic(true)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, style.Render(text))
}
