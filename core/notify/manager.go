package notify

import (
	"context"
	"strings"
	"sync"
	"time"

	"mustody-console/core/utils"
)

// Backend is the slice of the REST client the inbox needs.
type Backend interface {
	ListNotifications(ctx context.Context) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
}

// Manager owns the notification inbox cache. The cache is only ever replaced
// wholesale by a successful fetch or flipped entry-by-entry after the backend
// confirmed a read.
type Manager struct {
	backend Backend
	logger  *utils.Logger

	mu        sync.RWMutex
	items     []Notification
	fetchedAt time.Time
	lastErr   error
}

func NewManager(backend Backend, logger *utils.Logger) *Manager {
	return &Manager{backend: backend, logger: logger, items: []Notification{}}
}

// Fetch replaces the cache with the backend's list. On error the previous
// cache is kept and the error returned for the caller's bookkeeping.
func (m *Manager) Fetch(ctx context.Context) error {
	items, err := m.backend.ListNotifications(ctx)
	if err != nil {
		m.mu.Lock()
		m.lastErr = err
		m.mu.Unlock()
		if m.logger != nil {
			m.logger.Warnf("notifications fetch failed: %v", err)
		}
		return err
	}
	if items == nil {
		items = []Notification{}
	}
	m.mu.Lock()
	m.items = cloneList(items)
	m.fetchedAt = time.Now().UTC()
	m.lastErr = nil
	m.mu.Unlock()
	return nil
}

// MarkAsRead reports whether the entry was flipped. Backend errors are logged
// and leave the cache untouched.
func (m *Manager) MarkAsRead(ctx context.Context, id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	if err := m.backend.MarkNotificationRead(ctx, id); err != nil {
		if m.logger != nil {
			m.logger.Warnf("notifications mark read id=%s: %v", id, err)
		}
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == id {
			m.items[i].IsRead = true
		}
	}
	return true
}

func (m *Manager) MarkAllAsRead(ctx context.Context) bool {
	if err := m.backend.MarkAllNotificationsRead(ctx); err != nil {
		if m.logger != nil {
			m.logger.Warnf("notifications mark all read: %v", err)
		}
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		m.items[i].IsRead = true
	}
	return true
}

// UnreadCount is derived from the cache on every call.
func (m *Manager) UnreadCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, it := range m.items {
		if !it.IsRead {
			n++
		}
	}
	return n
}

func (m *Manager) Items() []Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneList(m.items)
}

// Status returns when the cache was last replaced and the last fetch error.
func (m *Manager) Status() (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fetchedAt, m.lastErr
}

// Reset drops the cache, used when the session ends.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.items = []Notification{}
	m.fetchedAt = time.Time{}
	m.lastErr = nil
	m.mu.Unlock()
}
