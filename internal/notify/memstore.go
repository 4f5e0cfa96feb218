package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"librarian/internal/catalog"
)

// MemoryStore is an in-process Store used by tests and DB_DRIVER=memory.
type MemoryStore struct {
	mu            sync.Mutex
	logs          []EmailLog
	notifications []Notification
	nextLog       int64
	nextNote      int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) CreateEmailLog(_ context.Context, l *EmailLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextLog++
	l.ID = m.nextLog
	m.logs = append(m.logs, cloneLog(*l))
	return nil
}

func (m *MemoryStore) UpdateEmailLogStatus(_ context.Context, id int64, status, reason string) error {
	if err := checkTarget(status); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.logs {
		if m.logs[i].ID != id {
			continue
		}
		if m.logs[i].Status != StatusPending {
			return ErrInvalidStatusTransition
		}
		m.logs[i].Status, m.logs[i].Reason = status, reason
		return nil
	}
	return fmt.Errorf("email log %d: %w", id, catalog.ErrNotFound)
}

func (m *MemoryStore) GetEmailLog(_ context.Context, id int64) (*EmailLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range m.logs {
		if l.ID == id {
			out := cloneLog(l)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("email log %d: %w", id, catalog.ErrNotFound)
}

func (m *MemoryStore) ListEmailLogs(_ context.Context, f EmailLogFilter) ([]EmailLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	page := f.Page.Normalize()
	matched := []EmailLog{}
	for _, l := range m.logs {
		if f.Type == "" || l.EmailType == f.Type {
			matched = append(matched, cloneLog(l))
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].SentAt.Equal(matched[j].SentAt) {
			return matched[i].SentAt.After(matched[j].SentAt)
		}
		return matched[i].ID > matched[j].ID
	})

	if page.Skip >= len(matched) {
		return []EmailLog{}, nil
	}
	end := min(page.Skip+page.Limit, len(matched))
	return matched[page.Skip:end], nil
}

func (m *MemoryStore) CreateNotification(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextNote++
	n.ID = m.nextNote
	m.notifications = append(m.notifications, *n)
	return nil
}

func (m *MemoryStore) ListNotifications(_ context.Context, patronID int64, unreadOnly bool) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []Notification{}
	for _, n := range m.notifications {
		if n.PatronID == patronID && (!unreadOnly || !n.IsRead) {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) MarkNotificationRead(_ context.Context, patronID, id int64) (*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.notifications {
		if m.notifications[i].ID == id && m.notifications[i].PatronID == patronID {
			m.notifications[i].IsRead = true
			out := m.notifications[i]
			return &out, nil
		}
	}
	return nil, fmt.Errorf("notification %d: %w", id, catalog.ErrNotFound)
}

func (m *MemoryStore) DeleteNotification(_ context.Context, patronID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, n := range m.notifications {
		if n.ID == id && n.PatronID == patronID {
			m.notifications = append(m.notifications[:i], m.notifications[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("notification %d: %w", id, catalog.ErrNotFound)
}

func (m *MemoryStore) PurgePatron(_ context.Context, patronID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.notifications[:0]
	for _, n := range m.notifications {
		if n.PatronID != patronID {
			kept = append(kept, n)
		}
	}
	m.notifications = kept

	for i := range m.logs {
		if m.logs[i].PatronID != nil && *m.logs[i].PatronID == patronID {
			m.logs[i].PatronID = nil
		}
	}
	return nil
}

func cloneLog(l EmailLog) EmailLog {
	if l.PatronID != nil {
		pid := *l.PatronID
		l.PatronID = &pid
	}
	return l
}
