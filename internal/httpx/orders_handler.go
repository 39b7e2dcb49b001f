package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/HTM0410/sale-account-sub001/internal/access"
	"github.com/HTM0410/sale-account-sub001/internal/orders"
	"github.com/go-chi/chi/v5"
)

type OrdersHandler struct {
	Orders *orders.Service
	Logger *slog.Logger
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/api/catalog", h.catalog)
	r.Get("/api/orders", h.listMine)
	r.Get("/api/orders/{id}", h.getOrder)
	r.Get("/api/orders/{id}/status", h.getStatus)
	r.Post("/api/orders/{id}/cancel", h.cancel)
}

func (h *OrdersHandler) catalog(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Orders.Catalog(ctx)
	if err != nil {
		writeError(w, r, h.Logger, "catalog", err)
		return
	}
	if ps == nil {
		ps = []orders.Package{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"packages": ps})
}

func (h *OrdersHandler) listMine(w http.ResponseWriter, r *http.Request) {
	sess, err := access.Require(r.Context(), access.RoleUser)
	if err != nil {
		writeError(w, r, h.Logger, "orders.list", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Orders.ListForUser(ctx, sess.UserID, queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, r, h.Logger, "orders.list", err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": list})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	sess, err := access.Require(r.Context(), access.RoleUser)
	if err != nil {
		writeError(w, r, h.Logger, "orders.get", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.GetFor(ctx, chi.URLParam(r, "id"), sess)
	if err != nil {
		writeError(w, r, h.Logger, "orders.get", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// getStatus is polled by the checkout result page; it is served from the status cache.
func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	sess, err := access.Require(r.Context(), access.RoleUser)
	if err != nil {
		writeError(w, r, h.Logger, "orders.status", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	id := chi.URLParam(r, "id")
	st, err := h.Orders.StatusFor(ctx, id, sess)
	if err != nil {
		writeError(w, r, h.Logger, "orders.status", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": id, "status": st})
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	sess, err := access.Require(r.Context(), access.RoleUser)
	if err != nil {
		writeError(w, r, h.Logger, "orders.cancel", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.CancelFor(ctx, chi.URLParam(r, "id"), sess)
	if err != nil {
		writeError(w, r, h.Logger, "orders.cancel", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
