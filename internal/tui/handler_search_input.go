package tui

import tea "github.com/charmbracelet/bubbletea"

// searchInputHandler edits the search criterion. Every keystroke is
// applied immediately; the controller resets to page 1 only when the
// text actually changes.
type searchInputHandler struct{}

func (h searchInputHandler) HandleKey(m *DashboardModel, msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "escape", "esc":
		m.searchActive = false
		m.searchInput.Blur()
		m.searchInput.SetValue("")
		m.ctrl.SetSearch("")
		m.clampCursor()
		return nil
	case "enter":
		m.searchActive = false
		m.searchInput.Blur()
		return nil
	default:
		var cmd tea.Cmd
		m.searchInput, cmd = m.searchInput.Update(msg)
		m.ctrl.SetSearch(m.searchInput.Value())
		m.clampCursor()
		return cmd
	}
}
