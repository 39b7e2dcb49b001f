package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/HTM0410/sale-account-sub001/internal/apperr"
)

var ErrTooManyConnections = apperr.New(apperr.KindForbidden, "too_many_connections", "too many open notification streams")

// Conn is one open push connection. Send must be safe to call after Close and then
// return an error.
type Conn interface {
	Send(ev Event) error
	Close() error
}

// Emitter delivers events to connected clients. Delivery is best effort: nothing is
// returned to the caller.
type Emitter interface {
	EmitToUser(ctx context.Context, userID string, ev Event)
	Broadcast(ctx context.Context, ev Event)
}

// Hub maps users to their open connections in this process.
type Hub struct {
	mu         sync.RWMutex
	conns      map[string]map[Conn]struct{}
	maxPerUser int
	logger     *slog.Logger
}

var _ Emitter = (*Hub)(nil)

// NewHub returns an empty registry; maxPerUser <= 0 means unlimited.
func NewHub(maxPerUser int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		conns:      make(map[string]map[Conn]struct{}),
		maxPerUser: maxPerUser,
		logger:     logger,
	}
}

func (h *Hub) Register(userID string, c Conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[userID]
	if !ok {
		set = make(map[Conn]struct{})
		h.conns[userID] = set
	}
	if _, dup := set[c]; dup {
		return nil
	}
	if h.maxPerUser > 0 && len(set) >= h.maxPerUser {
		return ErrTooManyConnections
	}
	set[c] = struct{}{}
	return nil
}

func (h *Hub) Unregister(userID string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[userID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, userID)
	}
}

func (h *Hub) EmitToUser(_ context.Context, userID string, ev Event) {
	ev = stamped(ev)
	h.mu.RLock()
	set := h.conns[userID]
	targets := make([]Conn, 0, len(set))
	for c := range set {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.deliver(userID, c, ev)
	}
}

func (h *Hub) Broadcast(_ context.Context, ev Event) {
	ev = stamped(ev)
	type target struct {
		userID string
		conn   Conn
	}
	h.mu.RLock()
	var targets []target
	for uid, set := range h.conns {
		for c := range set {
			targets = append(targets, target{uid, c})
		}
	}
	h.mu.RUnlock()

	for _, t := range targets {
		h.deliver(t.userID, t.conn, ev)
	}
}

func (h *Hub) deliver(userID string, c Conn, ev Event) {
	if err := c.Send(ev); err != nil {
		lvl := slog.LevelWarn
		if errors.Is(err, ErrConnClosed) {
			lvl = slog.LevelDebug
		}
		h.logger.Log(context.Background(), lvl, "push delivery failed", "user_id", userID, "event", ev.Type, "err", err)
	}
}

// Connections returns the number of open connections for userID.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// Users returns how many users have at least one open connection.
func (h *Hub) Users() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
