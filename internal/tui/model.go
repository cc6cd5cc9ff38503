package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytelemetry/warden/internal/fetch"
	"github.com/tinytelemetry/warden/internal/model"
	"github.com/tinytelemetry/warden/internal/view"
)

// Loader is the part of the fetch coordinator the dashboard drives.
type Loader interface {
	Load(ctx context.Context) (*fetch.Snapshot, error)
	AutoLoad(ctx context.Context) (*fetch.Snapshot, error)
	Authenticated() bool
	Status() fetch.Status
}

// Session is the signed-in state shared by the sign-in page and the dashboard.
type Session interface {
	model.Session
	SignIn(user model.User, token string) error
	SignOut()
}

// Config wires the dashboard to its collaborators.
type Config struct {
	Loader          Loader
	Session         Session
	RefreshInterval time.Duration
	// PageSize fixes the table length. Zero fits it to the terminal height.
	PageSize int
	Location *time.Location
	// LoadTimeout bounds each fetch. Zero means 30s.
	LoadTimeout time.Duration
	// DataSource is shown in the status line, e.g. the socket path.
	DataSource string
}

// FilterState holds the inline search and status-code inputs.
type FilterState struct {
	searchInput  textinput.Model
	searchActive bool

	statusInput  textinput.Model
	statusActive bool
	statusErr    string
}

// ModalStackState holds the modal stack.
type ModalStackState struct {
	modalStack []Modal
}

// DashboardModel is the log dashboard. All derived data comes from the
// view controller; the model only tracks cursor, inputs and load status.
type DashboardModel struct {
	FilterState
	ModalStackState

	keys    KeyMap
	ctrl    *view.Controller
	loader  Loader
	session Session

	width  int
	height int

	refreshInterval time.Duration
	autoPageSize    bool
	loadTimeout     time.Duration
	dataSource      string

	// cursor is the highlighted row within the visible page.
	cursor int

	ticking       bool
	manualLoading bool
	status        fetch.Status

	signedOut bool
}

// TickMsg drives timer refreshes.
type TickMsg time.Time

// snapshotMsg carries the outcome of one load back to the event loop.
type snapshotMsg struct {
	snap   *fetch.Snapshot
	err    error
	manual bool
}

// NewDashboardModel creates the dashboard over an empty controller.
func NewDashboardModel(cfg Config) *DashboardModel {
	searchInput := textinput.New()
	searchInput.Placeholder = "Search source address or path..."
	searchInput.CharLimit = 200

	statusInput := textinput.New()
	statusInput.Placeholder = "HTTP status code, empty for all"
	statusInput.CharLimit = 3

	interval := cfg.RefreshInterval
	if interval <= 0 {
		interval = model.DefaultRefreshInterval
	}
	timeout := cfg.LoadTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &DashboardModel{
		FilterState: FilterState{
			searchInput: searchInput,
			statusInput: statusInput,
		},
		keys:            DefaultKeyMap(),
		ctrl:            view.NewController(cfg.PageSize, cfg.Location),
		loader:          cfg.Loader,
		session:         cfg.Session,
		refreshInterval: interval,
		autoPageSize:    cfg.PageSize <= 0,
		loadTimeout:     timeout,
		dataSource:      cfg.DataSource,
	}
}

// Controller exposes the view controller, mainly for tests.
func (m *DashboardModel) Controller() *view.Controller { return m.ctrl }

// Init starts the refresh timer once and performs an initial load.
func (m *DashboardModel) Init() tea.Cmd {
	m.signedOut = false
	cmds := []tea.Cmd{m.startManualLoad()}
	if !m.ticking {
		m.ticking = true
		cmds = append(cmds, m.tickCmd())
	}
	return tea.Batch(cmds...)
}

func (m *DashboardModel) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m *DashboardModel) loadCmd(manual bool) tea.Cmd {
	loader := m.loader
	timeout := m.loadTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		var (
			snap *fetch.Snapshot
			err  error
		)
		if manual {
			snap, err = loader.Load(ctx)
		} else {
			snap, err = loader.AutoLoad(ctx)
		}
		return snapshotMsg{snap: snap, err: err, manual: manual}
	}
}

// startManualLoad issues a user-initiated load. Manual loads bypass the
// auto-refresh busy guard; ordering is left to the coordinator.
func (m *DashboardModel) startManualLoad() tea.Cmd {
	if m.loader == nil || !m.loader.Authenticated() {
		return nil
	}
	m.manualLoading = true
	return tea.Batch(m.loadCmd(true), spinnerTick())
}

// PushModal pushes a modal onto the stack. Deduplicates by ID.
func (m *DashboardModel) PushModal(modal Modal) {
	for _, existing := range m.modalStack {
		if existing.ID() == modal.ID() {
			return
		}
	}
	m.modalStack = append(m.modalStack, modal)
}

// PopModal removes the topmost modal from the stack.
func (m *DashboardModel) PopModal() {
	if len(m.modalStack) == 0 {
		return
	}
	top := m.modalStack[len(m.modalStack)-1]
	m.modalStack = m.modalStack[:len(m.modalStack)-1]
	if top.ID() == detailModalID {
		m.ctrl.CloseDetail()
	}
}

// TopModal returns the topmost modal, or nil if the stack is empty.
func (m *DashboardModel) TopModal() Modal {
	if len(m.modalStack) == 0 {
		return nil
	}
	return m.modalStack[len(m.modalStack)-1]
}

// HasModal returns true if any modal is on the stack.
func (m *DashboardModel) HasModal() bool {
	return len(m.modalStack) > 0
}

// clampCursor keeps the cursor on a visible row after the page changed.
func (m *DashboardModel) clampCursor() {
	n := len(m.ctrl.Output().Visible)
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// DashboardPage adapts DashboardModel to the Page interface.
type DashboardPage struct {
	Model *DashboardModel
}

// NewDashboardPage wraps a DashboardModel as a Page.
func NewDashboardPage(m *DashboardModel) *DashboardPage {
	return &DashboardPage{Model: m}
}

func (p *DashboardPage) ID() string { return PageDashboard }

func (p *DashboardPage) Init() tea.Cmd { return p.Model.Init() }

func (p *DashboardPage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	_, cmd := p.Model.Update(msg)
	if p.Model.signedOut {
		p.Model.signedOut = false
		return cmd, &PageNav{PageID: PageSignIn}
	}
	return cmd, nil
}

func (p *DashboardPage) View(width, height int) string {
	p.Model.width = width
	p.Model.height = height
	return p.Model.View()
}
