package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/HTM0410/sale-account-sub001/internal/access"
	"github.com/HTM0410/sale-account-sub001/internal/notify"
	"github.com/go-chi/chi/v5"
)

type NotificationsHandler struct {
	Notify    *notify.Service
	Hub       notify.Registry
	Heartbeat time.Duration
	Logger    *slog.Logger
}

func (h *NotificationsHandler) Register(r chi.Router) {
	r.Get("/api/notifications", h.list)
	r.Post("/api/notifications/read-all", h.markAllRead)
	r.Post("/api/notifications/{id}/read", h.markRead)
}

func (h *NotificationsHandler) RegisterStream(r chi.Router) {
	r.Get("/api/notifications/stream", h.stream)
}

func (h *NotificationsHandler) list(w http.ResponseWriter, r *http.Request) {
	sess, err := access.Require(r.Context(), access.RoleUser)
	if err != nil {
		writeError(w, r, h.Logger, "notifications.list", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Notify.List(ctx, sess.UserID, queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, r, h.Logger, "notifications.list", err)
		return
	}
	unread, err := h.Notify.UnreadCount(ctx, sess.UserID)
	if err != nil {
		writeError(w, r, h.Logger, "notifications.list", err)
		return
	}
	if list == nil {
		list = []notify.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list, "unread_count": unread})
}

func (h *NotificationsHandler) markRead(w http.ResponseWriter, r *http.Request) {
	sess, err := access.Require(r.Context(), access.RoleUser)
	if err != nil {
		writeError(w, r, h.Logger, "notifications.read", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Notify.MarkRead(ctx, chi.URLParam(r, "id"), sess.UserID); err != nil {
		writeError(w, r, h.Logger, "notifications.read", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationsHandler) markAllRead(w http.ResponseWriter, r *http.Request) {
	sess, err := access.Require(r.Context(), access.RoleUser)
	if err != nil {
		writeError(w, r, h.Logger, "notifications.read_all", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	n, err := h.Notify.MarkAllRead(ctx, sess.UserID)
	if err != nil {
		writeError(w, r, h.Logger, "notifications.read_all", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// stream holds the request open until the client goes away.
func (h *NotificationsHandler) stream(w http.ResponseWriter, r *http.Request) {
	sess, err := access.Require(r.Context(), access.RoleUser)
	if err != nil {
		writeError(w, r, h.Logger, "notifications.stream", err)
		return
	}
	conn, err := notify.NewSSEConn(w)
	if err != nil {
		writeError(w, r, h.Logger, "notifications.stream", err)
		return
	}

	initial := func(ctx context.Context) []notify.Event { return h.Notify.InitialEvents(ctx, sess.UserID) }
	h.Logger.Debug("stream opened", "user_id", sess.UserID)
	err = notify.Stream(r.Context(), h.Hub, sess.UserID, conn, h.Heartbeat, initial)
	switch {
	case errors.Is(err, notify.ErrTooManyConnections):
		writeError(w, r, h.Logger, "notifications.stream", err)
	case err != nil:
		h.Logger.Debug("stream ended", "user_id", sess.UserID, "err", err)
	default:
		h.Logger.Debug("stream closed", "user_id", sess.UserID)
	}
}
