package tui

import (
	"errors"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// statusInputHandler edits the status-code criterion. The value is only
// applied on enter, since partial codes would match nothing.
type statusInputHandler struct{}

func (h statusInputHandler) HandleKey(m *DashboardModel, msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "escape", "esc":
		m.statusActive = false
		m.statusErr = ""
		m.statusInput.Blur()
		return nil
	case "enter":
		code, err := parseStatusInput(m.statusInput.Value())
		if err != nil {
			m.statusErr = err.Error()
			return nil
		}
		m.statusActive = false
		m.statusErr = ""
		m.statusInput.Blur()
		m.ctrl.SetStatus(code)
		m.clampCursor()
		return nil
	default:
		var cmd tea.Cmd
		m.statusInput, cmd = m.statusInput.Update(msg)
		return cmd
	}
}

var errBadStatus = errors.New("status must be a code between 100 and 599")

// parseStatusInput accepts an empty value or "all" for the wildcard and a
// three-digit HTTP status code otherwise.
func parseStatusInput(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "all") {
		return 0, nil
	}
	code, err := strconv.Atoi(raw)
	if err != nil || code < 100 || code > 599 {
		return 0, errBadStatus
	}
	return code, nil
}

func statusInputValue(code int) string {
	if code == 0 {
		return ""
	}
	return strconv.Itoa(code)
}
