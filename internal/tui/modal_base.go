package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Modal is a self-contained modal that owns its own Update/View lifecycle.
// Modals are managed via a stack on DashboardModel; the topmost modal
// receives all input and renders full-screen.
type Modal interface {
	// ID returns a unique identifier used to deduplicate pushes.
	ID() string
	// Update processes a message. Return pop=true to close the modal.
	Update(msg tea.Msg) (pop bool, cmd tea.Cmd)
	// View renders the modal content for the given terminal dimensions.
	View(width, height int) string
}

// scrollModal is the shared viewport behaviour of the text modals.
type scrollModal struct {
	viewport  viewport.Model
	closeKeys []string
}

func newScrollModal(closeKeys ...string) scrollModal {
	return scrollModal{
		viewport:  viewport.New(80, 20),
		closeKeys: append([]string{"escape", "esc"}, closeKeys...),
	}
}

func (s *scrollModal) update(msg tea.Msg) (bool, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		k := msg.String()
		for _, c := range s.closeKeys {
			if k == c {
				return true, nil
			}
		}
		switch k {
		case "up", "k":
			s.viewport.ScrollUp(1)
			return false, nil
		case "down", "j":
			s.viewport.ScrollDown(1)
			return false, nil
		case "pgup":
			s.viewport.HalfPageUp()
			return false, nil
		case "pgdown":
			s.viewport.HalfPageDown()
			return false, nil
		}
		var cmd tea.Cmd
		s.viewport, cmd = s.viewport.Update(msg)
		return false, cmd

	case tea.MouseMsg:
		if msg.Action != tea.MouseActionPress {
			return false, nil
		}
		switch msg.Button {
		case tea.MouseButtonWheelUp:
			s.viewport.ScrollUp(1)
		case tea.MouseButtonWheelDown:
			s.viewport.ScrollDown(1)
		}
	}
	return false, nil
}

// render draws content inside the standard modal frame.
func (s *scrollModal) render(title, content, help string, width, height int) string {
	modalWidth := max(20, width-8)   // 4 chars margin on each side
	modalHeight := max(8, height-6)  // 3 lines margin top and bottom
	contentWidth := modalWidth - 4   // Modal borders
	contentHeight := modalHeight - 4 // Header + status

	s.viewport.Width = contentWidth
	s.viewport.Height = contentHeight
	s.viewport.SetContent(lipgloss.NewStyle().Width(contentWidth - 2).Render(content))

	contentPane := lipgloss.NewStyle().
		Width(contentWidth).
		Height(contentHeight).
		Border(lipgloss.NormalBorder()).
		BorderForeground(ColorGray).
		Render(s.viewport.View())

	header := lipgloss.NewStyle().
		Width(contentWidth).
		Foreground(ColorBlue).
		Bold(true).
		Render(title)

	statusBar := lipgloss.NewStyle().
		Foreground(ColorGray).
		Render(help)

	modal := lipgloss.JoinVertical(lipgloss.Left, header, contentPane, statusBar)

	finalModal := lipgloss.NewStyle().
		Width(modalWidth).
		Height(modalHeight).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBlue).
		Render(modal)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, finalModal)
}

// modalHelp renders the status bar items for modals.
func modalHelp(items ...string) string {
	base := []string{"up/down/Wheel: Scroll", "PgUp/PgDn: Page"}
	return strings.Join(append(base, items...), " | ")
}
