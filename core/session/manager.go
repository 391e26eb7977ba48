package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"mustody-console/core/rbac"
	"mustody-console/core/store"
	"mustody-console/core/utils"
)

var (
	ErrEmptyToken       = errors.New("empty token")
	ErrNoUserSnapshot   = errors.New("no persisted user snapshot")
	ErrCorruptSnapshot  = errors.New("persisted session discarded")
	ErrNotAuthenticated = errors.New("not authenticated")
)

const defaultLoginPath = "/login"

// Authenticator is the part of the backend the session talks to on its own.
type Authenticator interface {
	Logout(ctx context.Context) error
	RefreshToken(ctx context.Context) (string, error)
}

// Manager is the single source of truth for who is logged in and what they
// can see. Token and user are only ever set or cleared together.
type Manager struct {
	store     store.KVStore
	auth      Authenticator
	logger    *utils.Logger
	loginPath string

	mu    sync.RWMutex
	token string
	user  *User
	roles []string
	menu  []rbac.MenuItem

	hooksMu   sync.Mutex
	navigate  func(path string)
	listeners map[int]func(State)
	nextID    int
}

func NewManager(kv store.KVStore, auth Authenticator, logger *utils.Logger) *Manager {
	return &Manager{
		store:     kv,
		auth:      auth,
		logger:    logger,
		loginPath: defaultLoginPath,
		listeners: map[int]func(State){},
	}
}

func (m *Manager) SetLoginPath(path string) {
	if path = strings.TrimSpace(path); path != "" {
		m.loginPath = path
	}
}

// SetNavigator installs the callback used to send the viewer to the login view.
func (m *Manager) SetNavigator(fn func(path string)) {
	m.hooksMu.Lock()
	m.navigate = fn
	m.hooksMu.Unlock()
}

// Subscribe registers an observer called after every state transition.
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	m.hooksMu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.hooksMu.Unlock()
	return func() {
		m.hooksMu.Lock()
		delete(m.listeners, id)
		m.hooksMu.Unlock()
	}
}

// Login stores token and, when user is given, the normalized user snapshot. A
// user that fails validation is rejected with ErrInvalidUser before anything
// is persisted. Without a user the snapshot is loaded from storage; if none
// exists the session is cleared and ErrNoUserSnapshot returned.
func (m *Manager) Login(ctx context.Context, token string, user *User) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	if user != nil {
		user = user.Clone()
		if err := user.Normalize(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	if err := m.store.Set(ctx, store.KeyToken, token); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("persist token: %w", err)
	}
	if user == nil {
		u, err := m.loadUserLocked(ctx)
		if err != nil {
			m.clearLocked(ctx)
			m.mu.Unlock()
			m.notify()
			return err
		}
		user = u
	} else {
		raw, err := json.Marshal(user)
		if err == nil {
			err = m.store.Set(ctx, store.KeyUser, string(raw))
		}
		if err != nil {
			m.clearLocked(ctx)
			m.mu.Unlock()
			m.notify()
			return fmt.Errorf("persist user: %w", err)
		}
	}
	m.applyLocked(token, user)
	m.mu.Unlock()
	if m.logger != nil {
		m.logger.Printf("session login user=%s roles=%s token=%s", user.ID, strings.Join(user.EffectiveRoles(), ","), utils.Fingerprint(token))
	}
	m.notify()
	return nil
}

// Logout notifies the backend on a best-effort basis and then clears every
// trace of the session. It always completes.
func (m *Manager) Logout(ctx context.Context) {
	if m.Authenticated() && m.auth != nil {
		if err := m.auth.Logout(ctx); err != nil && m.logger != nil {
			m.logger.Warnf("session logout notification failed: %v", err)
		}
	}
	m.mu.Lock()
	m.clearLocked(ctx)
	m.mu.Unlock()
	m.notify()
}

// Hydrate restores the session from storage at startup. Anything that cannot
// be restored completely is discarded.
func (m *Manager) Hydrate(ctx context.Context) error {
	m.mu.Lock()
	token, ok, err := m.store.Get(ctx, store.KeyToken)
	if err != nil {
		m.clearLocked(ctx)
		m.mu.Unlock()
		m.notify()
		return fmt.Errorf("%w: token: %v", ErrCorruptSnapshot, err)
	}
	if !ok || strings.TrimSpace(token) == "" {
		m.clearLocked(ctx)
		m.mu.Unlock()
		m.notify()
		return nil
	}
	user, err := m.loadUserLocked(ctx)
	if err != nil {
		m.clearLocked(ctx)
		m.mu.Unlock()
		m.notify()
		if errors.Is(err, ErrNoUserSnapshot) {
			if m.logger != nil {
				m.logger.Warnf("session token without user snapshot discarded")
			}
			return nil
		}
		return err
	}
	m.applyLocked(token, user)
	m.mu.Unlock()
	if m.logger != nil {
		m.logger.Printf("session hydrated user=%s", user.ID)
	}
	m.notify()
	return nil
}

// Refresh exchanges the current token for a new one. Any failure ends the
// session, except one caused by ctx being cancelled. A session that changed while the exchange was in flight is left
// alone.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.RLock()
	token, user := m.token, m.user
	m.mu.RUnlock()
	if token == "" || user == nil {
		return ErrNotAuthenticated
	}
	if m.auth == nil {
		return errors.New("no authenticator")
	}
	next, err := m.auth.RefreshToken(ctx)
	if err == nil && strings.TrimSpace(next) == "" {
		err = ErrEmptyToken
	}
	if err != nil {
		if ctx.Err() != nil {
			// Interrupted by the caller, not rejected by the backend.
			if m.logger != nil {
				m.logger.Warnf("session refresh interrupted: %v", err)
			}
			return fmt.Errorf("refresh: %w", err)
		}
		if m.logger != nil {
			m.logger.Errorf("session refresh failed: %v", err)
		}
		m.expire(token)
		return fmt.Errorf("refresh: %w", err)
	}
	m.mu.Lock()
	if m.token != token {
		m.mu.Unlock()
		return nil
	}
	if err := m.store.Set(ctx, store.KeyToken, next); err != nil {
		m.mu.Unlock()
		m.expire(token)
		return fmt.Errorf("persist refreshed token: %w", err)
	}
	m.token = next
	m.mu.Unlock()
	if m.logger != nil {
		m.logger.Debugf("session token refreshed token=%s", utils.Fingerprint(next))
	}
	m.notify()
	return nil
}

// HandleUnauthorized is the 401 path: it clears the session and redirects to
// login. Only the call that actually ends a live session redirects, so
// concurrent failing requests produce a single navigation.
func (m *Manager) HandleUnauthorized() bool {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()
	if token == "" {
		return false
	}
	return m.expire(token)
}

func (m *Manager) expire(token string) bool {
	m.mu.Lock()
	if m.token == "" || m.token != token {
		m.mu.Unlock()
		return false
	}
	m.clearLocked(context.Background())
	m.mu.Unlock()
	m.notify()
	m.hooksMu.Lock()
	nav := m.navigate
	m.hooksMu.Unlock()
	if nav != nil {
		nav(m.loginPath)
	}
	return true
}

func (m *Manager) HasRole(role string) bool {
	r := rbac.NormalizeRole(role)
	if r == "" {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return false
	}
	if m.user.PrimaryRole == r {
		return true
	}
	for _, held := range m.roles {
		if held == r {
			return true
		}
	}
	for _, ms := range m.user.Memberships {
		if rbac.NormalizeRole(ms.Role) == r {
			return true
		}
	}
	return false
}

// CanAccess is true for an empty requirement, with or without a user.
// Otherwise any one held role suffices.
func (m *Manager) CanAccess(requiredRoles []string) bool {
	if len(requiredRoles) == 0 {
		return true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return false
	}
	return rbac.HasAny(m.roles, requiredRoles)
}

func (m *Manager) Authenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token != "" && m.user != nil
}

func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

func (m *Manager) User() *User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user.Clone()
}

func (m *Manager) Menu() []rbac.MenuItem {
	return m.Snapshot().Menu
}

func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := State{
		Authenticated:  m.token != "" && m.user != nil,
		Token:          m.token,
		User:           m.user.Clone(),
		EffectiveRoles: append([]string{}, m.roles...),
		Menu:           make([]rbac.MenuItem, len(m.menu)),
	}
	copy(st.Menu, m.menu)
	return st
}

func (m *Manager) loadUserLocked(ctx context.Context) (*User, error) {
	raw, ok, err := m.store.Get(ctx, store.KeyUser)
	if err != nil {
		return nil, fmt.Errorf("%w: user: %v", ErrCorruptSnapshot, err)
	}
	if !ok {
		return nil, ErrNoUserSnapshot
	}
	u, err := ParseUser([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return u, nil
}

func (m *Manager) applyLocked(token string, user *User) {
	m.token = token
	m.user = user
	m.roles = user.EffectiveRoles()
	m.menu = rbac.MenuFor(m.roles)
}

func (m *Manager) clearLocked(ctx context.Context) {
	if err := m.store.Delete(ctx, store.KeyToken, store.KeyUser); err != nil && m.logger != nil {
		m.logger.Errorf("session clear storage: %v", err)
	}
	m.token = ""
	m.user = nil
	m.roles = nil
	m.menu = nil
}

func (m *Manager) notify() {
	st := m.Snapshot()
	m.hooksMu.Lock()
	fns := make([]func(State), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.hooksMu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}
