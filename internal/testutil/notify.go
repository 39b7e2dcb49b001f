package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/HTM0410/sale-account-sub001/internal/notify"
)

// MemNotifications implements notify.Store.
type MemNotifications struct {
	mu    sync.Mutex
	items map[string]*notify.Notification
	seq   int
}

var _ notify.Store = (*MemNotifications)(nil)

func NewMemNotifications() *MemNotifications {
	return &MemNotifications{items: map[string]*notify.Notification{}}
}

func (m *MemNotifications) Create(_ context.Context, n *notify.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	// strictly increasing so List order is stable
	n.CreatedAt = time.Date(2026, 1, 1, 0, 0, m.seq, 0, time.UTC)
	cp := *n
	m.items[n.ID] = &cp
	return nil
}

func (m *MemNotifications) List(_ context.Context, userID string, limit int) ([]notify.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notify.Notification
	for _, n := range m.items {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemNotifications) UnreadCount(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := 0
	for _, n := range m.items {
		if n.UserID == userID && !n.Read {
			c++
		}
	}
	return c, nil
}

func (m *MemNotifications) MarkRead(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok {
		return notify.ErrNotificationNotFound
	}
	if n.UserID != userID {
		return notify.ErrForbidden
	}
	n.Read = true
	return nil
}

func (m *MemNotifications) MarkAllRead(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var c int64
	for _, n := range m.items {
		if n.UserID == userID && !n.Read {
			n.Read = true
			c++
		}
	}
	return c, nil
}

var ErrConnClosed = errors.New("test conn closed")

// Conn is a notify.Conn that records every event it receives.
type Conn struct {
	mu     sync.Mutex
	events []notify.Event
	closed bool
	// Fail makes every Send return an error, as a dead transport would.
	Fail bool
	sent chan struct{}
}

func NewConn() *Conn { return &Conn{sent: make(chan struct{}, 64)} }

func (c *Conn) Send(ev notify.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.Fail {
		return ErrConnClosed
	}
	c.events = append(c.events, ev)
	select {
	case c.sent <- struct{}{}:
	default:
	}
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) Events() []notify.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notify.Event(nil), c.events...)
}

func (c *Conn) Types() []notify.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]notify.EventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

// Sent is signalled after every successful Send.
func (c *Conn) Sent() <-chan struct{} { return c.sent }
