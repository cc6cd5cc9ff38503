package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// HelpModal lists the key bindings.
type HelpModal struct {
	scrollModal
	content string
}

// NewHelpModal builds the help text from keys.
func NewHelpModal(keys KeyMap) *HelpModal {
	var b strings.Builder
	b.WriteString("Keys\n\n")
	for _, binding := range keys.helpBindings() {
		h := binding.Help()
		fmt.Fprintf(&b, "  %-12s %s\n", h.Key, h.Desc)
	}
	b.WriteString("\nFilters compose: a record is shown only if it matches the search,\n")
	b.WriteString("method, decision and status code at the same time. Changing any of\n")
	b.WriteString("them returns to the first page.\n")
	b.WriteString("\nThe dashboard refreshes on a timer. If a refresh fails the last\n")
	b.WriteString("loaded data stays on screen and a banner offers a retry.\n")
	return &HelpModal{scrollModal: newScrollModal("?"), content: b.String()}
}

func (h *HelpModal) ID() string { return "help" }

func (h *HelpModal) Update(msg tea.Msg) (bool, tea.Cmd) { return h.update(msg) }

func (h *HelpModal) View(width, height int) string {
	return h.render("Help", h.content, modalHelp("?: Toggle Help", "ESC: Close"), width, height)
}
