package tui

import (
	"errors"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/tinytelemetry/warden/internal/fetch"
	"github.com/tinytelemetry/warden/internal/model"
)

// Update handles messages
func (m *DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.autoPageSize {
			m.ctrl.SetPageSize(pageSizeFor(msg.Height))
		}
		m.clampCursor()
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.MouseMsg:
		return m.handleMouseEvent(msg)

	case TickMsg:
		// Signed out: keep the timer alive but do not fetch.
		if m.loader == nil || !m.loader.Authenticated() {
			return m, m.tickCmd()
		}
		return m, tea.Batch(m.loadCmd(false), m.tickCmd())

	case snapshotMsg:
		return m, m.applyLoad(msg)

	case SpinnerTickMsg:
		if m.isLoading() {
			return m, spinnerTick()
		}
		return m, nil
	}

	return m, nil
}

// applyLoad folds one load outcome into the view. The controller ignores
// snapshots older than the one it already shows, so results may arrive in
// any order.
func (m *DashboardModel) applyLoad(msg snapshotMsg) tea.Cmd {
	if msg.manual {
		m.manualLoading = false
	}
	switch {
	case errors.Is(msg.err, fetch.ErrBusy):
		// Skipped tick; nothing changed.
	case errors.Is(msg.err, fetch.ErrNotAuthenticated):
		zap.S().Debugf("tui: load skipped, session not authenticated")
	case msg.err != nil:
		zap.S().Warnf("tui: load failed: %v", msg.err)
	}
	if msg.snap != nil {
		m.ctrl.ApplySnapshot(msg.snap.Seq, msg.snap.Records)
		m.clampCursor()
	}
	if m.loader != nil {
		m.status = m.loader.Status()
	}
	return nil
}

func (m *DashboardModel) isLoading() bool {
	if m.manualLoading {
		return true
	}
	return m.status.State == fetch.StateLoading || m.status.State == fetch.StateRefreshing
}

// handleKeyPress routes a key to the top modal, an active inline input or
// the dashboard bindings, in that order.
func (m *DashboardModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.ForceQuit) {
		return m, tea.Quit
	}

	if modal := m.TopModal(); modal != nil {
		pop, cmd := modal.Update(msg)
		if pop {
			m.PopModal()
		}
		return m, cmd
	}

	if m.searchActive {
		return m, searchInputHandler{}.HandleKey(m, msg)
	}
	if m.statusActive {
		return m, statusInputHandler{}.HandleKey(m, msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.PushModal(NewHelpModal(m.keys))

	case key.Matches(msg, m.keys.Escape):
		m.statusErr = ""

	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1)

	case key.Matches(msg, m.keys.PrevPage):
		m.ctrl.PrevPage()
		m.clampCursor()
	case key.Matches(msg, m.keys.NextPage):
		m.ctrl.NextPage()
		m.clampCursor()
	case key.Matches(msg, m.keys.Home):
		m.ctrl.SetPage(1)
		m.cursor = 0
	case key.Matches(msg, m.keys.End):
		m.ctrl.SetPage(m.ctrl.Output().Page.TotalPages)
		m.clampCursor()

	case key.Matches(msg, m.keys.Enter):
		if m.ctrl.SelectIndex(m.cursor) {
			m.PushModal(NewDetailModal(*m.ctrl.Selected()))
		}

	case key.Matches(msg, m.keys.Search):
		m.searchActive = true
		m.searchInput.SetValue(m.ctrl.Filter().Search)
		m.searchInput.CursorEnd()
		return m, m.searchInput.Focus()

	case key.Matches(msg, m.keys.StatusFilter):
		m.statusActive = true
		m.statusErr = ""
		m.statusInput.SetValue(statusInputValue(m.ctrl.Filter().Status))
		m.statusInput.CursorEnd()
		return m, m.statusInput.Focus()

	case key.Matches(msg, m.keys.CycleMethod):
		m.ctrl.SetMethod(nextMethod(m.ctrl.Filter().Method))
		m.clampCursor()

	case key.Matches(msg, m.keys.CycleDecision):
		m.ctrl.SetDecision(nextDecision(m.ctrl.Filter().Decision))
		m.clampCursor()

	case key.Matches(msg, m.keys.ClearFilters):
		m.ctrl.SetFilter(model.AllFilter())
		m.searchInput.SetValue("")
		m.statusInput.SetValue("")
		m.clampCursor()

	case key.Matches(msg, m.keys.Refresh):
		return m, m.startManualLoad()

	case key.Matches(msg, m.keys.Analytics):
		m.PushModal(NewAnalyticsModal(m.ctrl))

	case key.Matches(msg, m.keys.SignOut):
		if m.session != nil {
			m.session.SignOut()
		}
		m.modalStack = nil
		m.ctrl.CloseDetail()
		m.signedOut = true
	}
	return m, nil
}

// handleMouseEvent scrolls the table or the top modal with the wheel.
func (m *DashboardModel) handleMouseEvent(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if modal := m.TopModal(); modal != nil {
		pop, cmd := modal.Update(msg)
		if pop {
			m.PopModal()
		}
		return m, cmd
	}
	if msg.Action != tea.MouseActionPress {
		return m, nil
	}
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.moveCursor(-1)
	case tea.MouseButtonWheelDown:
		m.moveCursor(1)
	}
	return m, nil
}

// moveCursor moves the row highlight, crossing onto the neighbouring page
// at either edge.
func (m *DashboardModel) moveCursor(delta int) {
	out := m.ctrl.Output()
	next := m.cursor + delta
	switch {
	case next < 0:
		if out.Page.HasPrev() {
			m.ctrl.PrevPage()
			m.cursor = len(m.ctrl.Output().Visible) - 1
		}
	case next >= len(out.Visible):
		if out.Page.HasNext() {
			m.ctrl.NextPage()
			m.cursor = 0
		}
	default:
		m.cursor = next
	}
	m.clampCursor()
}

// pageSizeFor fits the table to the terminal. Rows outside the table:
// header, stats, filter bar, banner, column header, pager, status line
// and borders.
func pageSizeFor(height int) int {
	const chrome = 12
	return max(5, height-chrome)
}

var methodCycle = append([]model.Method{model.MethodAll}, model.Methods...)

func nextMethod(cur model.Method) model.Method {
	for i, m := range methodCycle {
		if m == cur {
			return methodCycle[(i+1)%len(methodCycle)]
		}
	}
	return model.MethodAll
}

var decisionCycle = append([]model.Decision{model.DecisionAll}, model.Decisions...)

func nextDecision(cur model.Decision) model.Decision {
	for i, d := range decisionCycle {
		if d == cur {
			return decisionCycle[(i+1)%len(decisionCycle)]
		}
	}
	return model.DecisionAll
}
