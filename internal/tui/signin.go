package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/tinytelemetry/warden/internal/model"
)

// Authenticator verifies a user and token with the backend and returns the
// identity it accepted.
type Authenticator func(ctx context.Context, user model.User, token string) (model.User, error)

var errNameRequired = errors.New("name is required")

type signInResultMsg struct {
	user model.User
	err  error
}

// SignInPage collects a name and access token and opens the session.
type SignInPage struct {
	auth    Authenticator
	session Session
	timeout time.Duration

	name    textinput.Model
	token   textinput.Model
	focus   int
	pending bool
	err     error
}

// NewSignInPage creates the sign-in page. A nil auth accepts any user.
func NewSignInPage(auth Authenticator, session Session) *SignInPage {
	name := textinput.New()
	name.Placeholder = "name"
	name.CharLimit = 64
	name.Prompt = "Name:  "

	token := textinput.New()
	token.Placeholder = "access token"
	token.CharLimit = 256
	token.Prompt = "Token: "
	token.EchoMode = textinput.EchoPassword
	token.EchoCharacter = '•'

	return &SignInPage{
		auth:    auth,
		session: session,
		timeout: 10 * time.Second,
		name:    name,
		token:   token,
	}
}

func (p *SignInPage) ID() string { return PageSignIn }

func (p *SignInPage) Init() tea.Cmd {
	p.pending = false
	p.token.SetValue("")
	p.setFocus(0)
	return textinput.Blink
}

func (p *SignInPage) setFocus(i int) {
	p.focus = i
	if i == 0 {
		p.name.Focus()
		p.token.Blur()
	} else {
		p.token.Focus()
		p.name.Blur()
	}
}

func (p *SignInPage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	switch msg := msg.(type) {
	case signInResultMsg:
		p.pending = false
		if msg.err != nil {
			p.err = msg.err
			return nil, nil
		}
		if err := p.session.SignIn(msg.user, ""); err != nil {
			p.err = err
			return nil, nil
		}
		zap.S().Infof("tui: signed in as %s", msg.user.Name)
		p.err = nil
		return nil, &PageNav{PageID: PageDashboard}

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return tea.Quit, nil
		case "tab", "shift+tab", "up", "down":
			p.setFocus(1 - p.focus)
			return nil, nil
		case "enter":
			if p.focus == 0 {
				p.setFocus(1)
				return nil, nil
			}
			return p.submit(), nil
		}
		var cmd tea.Cmd
		if p.focus == 0 {
			p.name, cmd = p.name.Update(msg)
		} else {
			p.token, cmd = p.token.Update(msg)
		}
		return cmd, nil
	}
	return nil, nil
}

func (p *SignInPage) submit() tea.Cmd {
	if p.pending {
		return nil
	}
	name := strings.TrimSpace(p.name.Value())
	if name == "" {
		p.err = errNameRequired
		p.setFocus(0)
		return nil
	}
	p.pending = true
	p.err = nil

	user := model.User{ID: name, Name: name}
	token := p.token.Value()
	auth := p.auth
	timeout := p.timeout
	return func() tea.Msg {
		if auth == nil {
			return signInResultMsg{user: user}
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		accepted, err := auth(ctx, user, token)
		return signInResultMsg{user: accepted, err: err}
	}
}

func (p *SignInPage) View(width, height int) string {
	title := renderBranding()
	sub := lipgloss.NewStyle().Foreground(ColorGray).Render("Sign in to view request decisions")

	lines := []string{title, sub, "", p.name.View(), p.token.View(), ""}
	switch {
	case p.pending:
		lines = append(lines, lipgloss.NewStyle().Foreground(ColorYellow).Render(spinnerFrame()+" signing in..."))
	case p.err != nil:
		lines = append(lines, lipgloss.NewStyle().Foreground(ColorRed).Render("Sign-in failed: "+p.err.Error()))
	default:
		lines = append(lines, lipgloss.NewStyle().Foreground(ColorGray).Render("tab: switch field | enter: sign in | esc: quit"))
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBlue).
		Padding(1, 3).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}
