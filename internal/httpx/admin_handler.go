package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/HTM0410/sale-account-sub001/internal/access"
	"github.com/HTM0410/sale-account-sub001/internal/apperr"
	"github.com/HTM0410/sale-account-sub001/internal/notify"
	"github.com/HTM0410/sale-account-sub001/internal/orders"
	"github.com/go-chi/chi/v5"
)

var errMissingFields = apperr.New(apperr.KindInvalidInput, "missing_fields", "missing required fields")

// AdminHandler serves /api/admin. The gate already limits the prefix to staff; each
// handler checks the role again.
type AdminHandler struct {
	Orders *orders.Service
	Notify *notify.Service
	Logger *slog.Logger
}

type CreateOrderReq struct {
	ExternalID string             `json:"external_id"`
	UserID     string             `json:"user_id"`
	Items      []orders.ItemInput `json:"items"`
	Customer   orders.Customer    `json:"customer"`
}

type CreateOrderResp struct {
	OrderID    string        `json:"order_id"`
	Total      int64         `json:"total"`
	Status     orders.Status `json:"status"`
	Idempotent bool          `json:"idempotent"`
}

type UpdateStatusReq struct {
	Status string `json:"status"`
}

type BroadcastReq struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Level   string `json:"level"`
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Get("/api/admin/orders", h.listOrders)
	r.Post("/api/admin/orders", h.createOrder)
	r.Patch("/api/admin/orders/{id}/status", h.updateStatus)
	r.Post("/api/admin/settings/broadcast", h.broadcast)
}

func (h *AdminHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	if _, err := access.Require(r.Context(), access.RoleStaff); err != nil {
		writeError(w, r, h.Logger, "admin.orders.list", err)
		return
	}
	q := r.URL.Query()
	f := orders.ListFilter{
		UserID: q.Get("user_id"),
		Status: orders.Status(strings.TrimSpace(q.Get("status"))),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	list, err := h.Orders.List(ctx, f)
	if err != nil {
		writeError(w, r, h.Logger, "admin.orders.list", err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": list})
}

// createOrder is the full order path: prices come from the catalog, items are stored as rows.
func (h *AdminHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	if _, err := access.Require(r.Context(), access.RoleStaff); err != nil {
		writeError(w, r, h.Logger, "admin.orders.create", err)
		return
	}
	var req CreateOrderReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Logger, "admin.orders.create", err)
		return
	}
	if req.ExternalID == "" || req.UserID == "" {
		writeError(w, r, h.Logger, "admin.orders.create", errMissingFields)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, existed, err := h.Orders.CreateOrder(ctx, req.ExternalID, req.UserID, req.Items, req.Customer)
	if err != nil {
		writeError(w, r, h.Logger, "admin.orders.create", err)
		return
	}
	code := http.StatusCreated
	if existed {
		code = http.StatusOK
	}
	writeJSON(w, code, CreateOrderResp{OrderID: o.ID, Total: o.Total, Status: o.Status, Idempotent: existed})
}

func (h *AdminHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	sess, err := access.Require(r.Context(), access.RoleStaff)
	if err != nil {
		writeError(w, r, h.Logger, "admin.orders.status", err)
		return
	}
	var req UpdateStatusReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Logger, "admin.orders.status", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.UpdateStatus(ctx, chi.URLParam(r, "id"), req.Status, sess)
	if err != nil {
		writeError(w, r, h.Logger, "admin.orders.status", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *AdminHandler) broadcast(w http.ResponseWriter, r *http.Request) {
	sess, err := access.Require(r.Context(), access.RoleAdmin)
	if err != nil {
		writeError(w, r, h.Logger, "admin.broadcast", err)
		return
	}
	var req BroadcastReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Logger, "admin.broadcast", err)
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Message) == "" {
		writeError(w, r, h.Logger, "admin.broadcast", errMissingFields)
		return
	}
	h.Notify.Announce(r.Context(), notify.Announcement{Title: req.Title, Message: req.Message, Level: req.Level})
	h.Logger.Info("broadcast sent", "user_id", sess.UserID)
	writeJSON(w, http.StatusAccepted, map[string]bool{"sent": true})
}
