// Package session tracks whether a signed-in user is present. The data
// pipeline only runs while a session is authenticated.
package session

import (
	"crypto/subtle"
	"errors"
	"slices"
	"sync"

	"github.com/tinytelemetry/warden/internal/model"
)

// ErrInvalidToken is returned when SignIn is given a token that does not match.
var ErrInvalidToken = errors.New("session: invalid token")

// State is the authentication state of a Provider.
type State int

const (
	StateLoading State = iota
	StateUnauthenticated
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Provider is a token-checked session. A Provider with an empty token
// accepts any SignIn. It satisfies model.Session.
type Provider struct {
	token string

	mu        sync.RWMutex
	state     State
	user      *model.User
	listeners []func(State)
}

// NewProvider returns a Provider in the Loading state.
func NewProvider(token string) *Provider {
	return &Provider{token: token, state: StateLoading}
}

// Resolve ends the Loading state without a user.
func (p *Provider) Resolve() {
	p.mu.Lock()
	if p.state != StateLoading {
		p.mu.Unlock()
		return
	}
	p.state = StateUnauthenticated
	p.notifyLocked()
}

// SignIn authenticates user with token.
func (p *Provider) SignIn(user model.User, token string) error {
	if !p.Check(token) {
		p.mu.Lock()
		if p.state == StateLoading {
			p.state = StateUnauthenticated
			p.notifyLocked()
			return ErrInvalidToken
		}
		p.mu.Unlock()
		return ErrInvalidToken
	}
	p.mu.Lock()
	p.user = &user
	p.state = StateAuthenticated
	p.notifyLocked()
	return nil
}

// SignOut drops the current user.
func (p *Provider) SignOut() {
	p.mu.Lock()
	if p.state == StateUnauthenticated && p.user == nil {
		p.mu.Unlock()
		return
	}
	p.user = nil
	p.state = StateUnauthenticated
	p.notifyLocked()
}

// Check reports whether token matches the configured token.
func (p *Provider) Check(token string) bool {
	if p.token == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(p.token), []byte(token)) == 1
}

// CurrentUser returns a copy of the signed-in user, or nil.
func (p *Provider) CurrentUser() *model.User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.user == nil {
		return nil
	}
	u := *p.user
	return &u
}

// IsLoading reports whether the session is still being resolved.
func (p *Provider) IsLoading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state == StateLoading
}

// Authenticated reports whether a user is signed in.
func (p *Provider) Authenticated() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state == StateAuthenticated
}

// State returns the current state.
func (p *Provider) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// OnChange registers fn to be called after every state change.
func (p *Provider) OnChange(fn func(State)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// notifyLocked releases the lock before invoking listeners.
func (p *Provider) notifyLocked() {
	state := p.state
	listeners := slices.Clone(p.listeners)
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(state)
	}
}
