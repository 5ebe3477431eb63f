package users

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/JakeFAU/scraperhub/internal/session"
)

var (
	// ErrLoginFailed is returned for an unknown email or a wrong password.
	ErrLoginFailed = errors.New("login failed")
	// ErrAlreadyLoggedIn is returned when the caller's token is still live.
	ErrAlreadyLoggedIn = errors.New("already logged in")
	// ErrMissingFields is returned when a required field is empty.
	ErrMissingFields = errors.New("missing fields")
)

// Sessions creates coordinator sessions.
type Sessions interface {
	NewSession(id, owner string) *session.Session
}

// TokenGenerator creates session tokens.
type TokenGenerator interface {
	NewID() (string, error)
}

// Manager authenticates users and tracks the live session of each.
// A user has at most one session; logging in again joins it.
type Manager struct {
	store    Store
	sessions Sessions
	tokens   TokenGenerator
	logger   *zap.Logger

	mu      sync.Mutex
	byToken map[string]*binding
	byEmail map[string]*binding
}

type binding struct {
	token   string
	user    User
	session *session.Session
}

// NewManager wires a Manager.
func NewManager(store Store, sessions Sessions, tokens TokenGenerator, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:    store,
		sessions: sessions,
		tokens:   tokens,
		logger:   logger,
		byToken:  make(map[string]*binding),
		byEmail:  make(map[string]*binding),
	}
}

// Login verifies the credentials and returns the token of the user's
// session. token is the caller's current token, if any.
func (m *Manager) Login(token, email, password string) (User, string, error) {
	if email == "" || password == "" {
		return User{}, "", ErrMissingFields
	}

	m.mu.Lock()
	_, live := m.byToken[token]
	m.mu.Unlock()
	if token != "" && live {
		return User{}, "", ErrAlreadyLoggedIn
	}

	u, ok, err := m.store.FindByEmail(email)
	if err != nil {
		return User{}, "", fmt.Errorf("find user: %w", err)
	}
	if !ok || !checkPassword(u.Password, password) {
		m.logger.Info("login failed")
		return User{}, "", ErrLoginFailed
	}

	key := strings.ToLower(u.Email)
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.byEmail[key]; ok {
		m.logger.Info("user joined existing session", zap.String("session", b.token))
		return b.user, b.token, nil
	}
	newToken, err := m.tokens.NewID()
	if err != nil {
		return User{}, "", fmt.Errorf("new session token: %w", err)
	}
	b := &binding{token: newToken, user: u, session: m.sessions.NewSession(newToken, u.Email)}
	m.byToken[newToken] = b
	m.byEmail[key] = b
	m.logger.Info("user logged in", zap.String("session", newToken))
	return u, newToken, nil
}

// Logout ends the session behind token. Unknown tokens are ignored.
func (m *Manager) Logout(token string) {
	m.mu.Lock()
	b, ok := m.byToken[token]
	if ok {
		delete(m.byToken, token)
		delete(m.byEmail, strings.ToLower(b.user.Email))
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	b.session.Close()
	m.logger.Info("user logged out", zap.String("session", token))
}

// Current returns the user and session behind token.
func (m *Manager) Current(token string) (User, *session.Session, bool) {
	if token == "" {
		return User{}, nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byToken[token]
	if !ok {
		return User{}, nil, false
	}
	return b.user, b.session, true
}

// Register stores a new user with a bcrypt password hash.
func (m *Manager) Register(username, email, password string) (User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return User{}, ErrMissingFields
	}
	if _, ok, err := m.store.FindByEmail(email); err != nil {
		return User{}, fmt.Errorf("find user: %w", err)
	} else if ok {
		return User{}, fmt.Errorf("%w: %s", ErrUserExists, email)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u := User{Username: username, Email: email, Password: string(hash)}
	if err := m.store.Add(u); err != nil {
		return User{}, err
	}
	m.logger.Info("user registered", zap.String("username", username))
	return u, nil
}

// ActiveSessions returns the number of live sessions.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byToken)
}

// CloseAll ends every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]*binding, 0, len(m.byToken))
	for _, b := range m.byToken {
		all = append(all, b)
	}
	m.byToken = make(map[string]*binding)
	m.byEmail = make(map[string]*binding)
	m.mu.Unlock()
	for _, b := range all {
		b.session.Close()
	}
}

func checkPassword(stored, given string) bool {
	if strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}
