package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lalithlochan/aquamon/internal/apperr"
	"github.com/lalithlochan/aquamon/internal/db"
)

// MemoryRepository keeps notifications in process with the same scoping and
// ordering rules as the Postgres repository. Suitable for development and tests.
type MemoryRepository struct {
	mu            sync.RWMutex
	notifications map[int64]*db.Notification
	nextID        int64
	now           func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		notifications: make(map[int64]*db.Notification),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryRepository) CreateNotification(ctx context.Context, notif *db.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	notif.ID = m.nextID
	notif.State = db.StateUnread
	notif.CreatedAt = m.now()
	notif.ReadAt = nil
	if len(notif.Data) == 0 {
		notif.Data = []byte(`{}`)
	}

	stored := *notif
	m.notifications[stored.ID] = &stored
	return nil
}

func (m *MemoryRepository) GetNotification(ctx context.Context, id int64) (*db.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.notifications[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", apperr.ErrNotificationNotFound, id)
	}
	out := *n
	return &out, nil
}

func (m *MemoryRepository) ListNotifications(ctx context.Context, q db.ListQuery) ([]*db.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := m.filter(q.Scope, q.State)
	sortNotifications(matched, q.State)

	start := q.Offset
	if start > len(matched) {
		return []*db.Notification{}, nil
	}
	end := start + q.Limit
	if q.Limit <= 0 || end > len(matched) {
		end = len(matched)
	}

	out := make([]*db.Notification, 0, end-start)
	for _, n := range matched[start:end] {
		c := *n
		out = append(out, &c)
	}
	return out, nil
}

func (m *MemoryRepository) CountNotifications(ctx context.Context, scope db.Scope, state string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.filter(scope, state)), nil
}

func (m *MemoryRepository) MarkNotificationRead(ctx context.Context, id int64) (*db.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notifications[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", apperr.ErrNotificationNotFound, id)
	}
	if n.State == db.StateUnread {
		readAt := m.now()
		n.State = db.StateRead
		n.ReadAt = &readAt
	}

	out := *n
	return &out, nil
}

func (m *MemoryRepository) filter(scope db.Scope, state string) []*db.Notification {
	var out []*db.Notification
	for _, n := range m.notifications {
		if state != "" && n.State != state {
			continue
		}
		if scope.Matches(n) {
			out = append(out, n)
		}
	}
	return out
}

// sortNotifications mirrors db.OrderClause
func sortNotifications(ns []*db.Notification, state string) {
	sort.Slice(ns, func(i, j int) bool {
		a, b := ns[i], ns[j]
		if state == "" && a.State != b.State {
			return a.State == db.StateUnread
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}
