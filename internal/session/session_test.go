package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/warden/internal/model"
)

func TestProviderLifecycle(t *testing.T) {
	p := NewProvider("secret")
	var seen []State
	p.OnChange(func(s State) { seen = append(seen, s) })

	assert.True(t, p.IsLoading())
	assert.Nil(t, p.CurrentUser())

	err := p.SignIn(model.User{ID: "u1"}, "wrong")
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.False(t, p.IsLoading())
	assert.False(t, p.Authenticated())

	require.NoError(t, p.SignIn(model.User{ID: "u1", Name: "ops"}, "secret"))
	assert.True(t, p.Authenticated())
	require.NotNil(t, p.CurrentUser())
	assert.Equal(t, "ops", p.CurrentUser().Name)

	p.SignOut()
	assert.Nil(t, p.CurrentUser())
	assert.Equal(t, StateUnauthenticated, p.State())

	assert.Equal(t, []State{StateUnauthenticated, StateAuthenticated, StateUnauthenticated}, seen)
}

func TestProviderOpenToken(t *testing.T) {
	p := NewProvider("")
	assert.True(t, p.Check("anything"))
	require.NoError(t, p.SignIn(model.User{ID: "local"}, ""))
	assert.True(t, p.Authenticated())
}

func TestProviderResolve(t *testing.T) {
	p := NewProvider("x")
	p.Resolve()
	assert.False(t, p.IsLoading())
	assert.Equal(t, StateUnauthenticated, p.State())
	p.Resolve()
	assert.Equal(t, StateUnauthenticated, p.State())
}

var _ model.Session = (*Provider)(nil)
