package users

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/JakeFAU/scraperhub/internal/scraper"
	"github.com/JakeFAU/scraperhub/internal/session"
)

type emptyCatalog struct{}

func (emptyCatalog) Lookup(string) (scraper.Constructor, bool) { return nil, false }

type seqTokens struct{ n atomic.Int64 }

func (s *seqTokens) NewID() (string, error) {
	return fmt.Sprintf("token-%d", s.n.Add(1)), nil
}

func newTestManager(t *testing.T, seed ...User) *Manager {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "users.yaml"))
	require.NoError(t, err)
	for _, u := range seed {
		require.NoError(t, store.Add(u))
	}
	coord, err := session.NewCoordinator(session.Config{Catalog: emptyCatalog{}})
	require.NoError(t, err)
	return NewManager(store, coord, &seqTokens{}, nil)
}

func TestLogin(t *testing.T) {
	t.Parallel()

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{name: "plain password", email: "plain@example.com", password: "letmein"},
		{name: "email ignores case", email: "PLAIN@example.com", password: "letmein"},
		{name: "bcrypt password", email: "hashed@example.com", password: "hunter2"},
		{name: "wrong password", email: "plain@example.com", password: "nope", wantErr: ErrLoginFailed},
		{name: "wrong bcrypt password", email: "hashed@example.com", password: "hunter3", wantErr: ErrLoginFailed},
		{name: "unknown user", email: "ghost@example.com", password: "x", wantErr: ErrLoginFailed},
		{name: "missing password", email: "plain@example.com", wantErr: ErrMissingFields},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := newTestManager(t,
				User{Username: "plain", Email: "plain@example.com", Password: "letmein"},
				User{Username: "hashed", Email: "hashed@example.com", Password: string(hash)},
			)
			u, token, err := m.Login("", tt.email, tt.password)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Equal(t, 0, m.ActiveSessions())
				return
			}
			require.NoError(t, err)
			require.NotEmpty(t, token)

			cur, sess, ok := m.Current(token)
			require.True(t, ok)
			require.Equal(t, u, cur)
			require.Equal(t, token, sess.ID())
		})
	}
}

func TestLoginWithLiveTokenFails(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, User{Username: "a", Email: "a@example.com", Password: "pw"})
	_, token, err := m.Login("", "a@example.com", "pw")
	require.NoError(t, err)

	_, _, err = m.Login(token, "a@example.com", "pw")
	require.ErrorIs(t, err, ErrAlreadyLoggedIn)

	// A stale token does not block a new login.
	_, _, err = m.Login("stale", "a@example.com", "pw")
	require.NoError(t, err)
}

func TestSecondLoginJoinsExistingSession(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, User{Username: "a", Email: "a@example.com", Password: "pw"})
	_, first, err := m.Login("", "a@example.com", "pw")
	require.NoError(t, err)
	_, second, err := m.Login("", "A@example.com", "pw")
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 1, m.ActiveSessions())
}

func TestLogout(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, User{Username: "a", Email: "a@example.com", Password: "pw"})
	_, token, err := m.Login("", "a@example.com", "pw")
	require.NoError(t, err)
	_, sess, ok := m.Current(token)
	require.True(t, ok)

	m.Logout(token)
	m.Logout(token)
	m.Logout("unknown")

	_, _, ok = m.Current(token)
	require.False(t, ok)
	require.Equal(t, 0, m.ActiveSessions())
	require.ErrorIs(t, sess.Attach(t.Context(), nil), session.ErrSessionClosed)

	_, next, err := m.Login("", "a@example.com", "pw")
	require.NoError(t, err)
	require.NotEqual(t, token, next)
}

func TestRegister(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, User{Username: "a", Email: "a@example.com", Password: "pw"})

	_, err := m.Register("", "b@example.com", "pw")
	require.ErrorIs(t, err, ErrMissingFields)

	_, err = m.Register("dup", "A@EXAMPLE.COM", "pw")
	require.ErrorIs(t, err, ErrUserExists)

	u, err := m.Register("bob", "b@example.com", "s3cret")
	require.NoError(t, err)
	require.Equal(t, "bob", u.Username)
	require.NotEqual(t, "s3cret", u.Password)

	_, token, err := m.Login("", "b@example.com", "s3cret")
	require.NoError(t, err)
	require.NotEmpty(t, token)
}

func TestCloseAll(t *testing.T) {
	t.Parallel()

	m := newTestManager(t,
		User{Username: "a", Email: "a@example.com", Password: "pw"},
		User{Username: "b", Email: "b@example.com", Password: "pw"},
	)
	_, _, err := m.Login("", "a@example.com", "pw")
	require.NoError(t, err)
	_, _, err = m.Login("", "b@example.com", "pw")
	require.NoError(t, err)
	require.Equal(t, 2, m.ActiveSessions())

	m.CloseAll()
	require.Equal(t, 0, m.ActiveSessions())
}
