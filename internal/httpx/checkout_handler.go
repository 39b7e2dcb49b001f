package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/HTM0410/sale-account-sub001/internal/access"
	"github.com/HTM0410/sale-account-sub001/internal/apperr"
	"github.com/HTM0410/sale-account-sub001/internal/orders"
	"github.com/HTM0410/sale-account-sub001/internal/payment"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

var errUnknownProvider = apperr.New(apperr.KindInvalidInput, "unknown_provider", "unsupported payment provider")

// Idempotency is satisfied by redisx.Idempotency.
type Idempotency interface {
	Lookup(ctx context.Context, userID, key string) (string, error)
	Remember(ctx context.Context, userID, key, orderID string) error
}

type CheckoutHandler struct {
	Orders   *orders.Service
	Gateways map[payment.Provider]payment.Redirector
	Idem     Idempotency // optional
	Logger   *slog.Logger
}

type CheckoutItem struct {
	PackageID string `json:"package_id"`
	Quantity  int    `json:"quantity"`
}

type CheckoutReq struct {
	Items    []CheckoutItem   `json:"items"`
	Total    *decimal.Decimal `json:"total,omitempty"`
	Provider string           `json:"provider"`
	Customer orders.Customer  `json:"customer"`
}

type CheckoutResp struct {
	OrderID    string        `json:"order_id"`
	Total      int64         `json:"total"`
	Status     orders.Status `json:"status"`
	Provider   string        `json:"provider"`
	PaymentURL string        `json:"payment_url"`
	Idempotent bool          `json:"idempotent,omitempty"`
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.Post("/api/checkout", h.checkout)
}

func (h *CheckoutHandler) checkout(w http.ResponseWriter, r *http.Request) {
	sess, err := access.Require(r.Context(), access.RoleUser)
	if err != nil {
		writeError(w, r, h.Logger, "checkout", err)
		return
	}
	var req CheckoutReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Logger, "checkout", err)
		return
	}
	provider, ok := payment.ParseProvider(req.Provider)
	gw := h.Gateways[provider]
	if !ok || gw == nil {
		writeError(w, r, h.Logger, "checkout", errUnknownProvider)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.Idem != nil {
		if id, err := h.Idem.Lookup(ctx, sess.UserID, idemKey); err != nil {
			h.Logger.Warn("idempotency lookup", "user_id", sess.UserID, "err", err)
		} else if id != "" {
			h.resume(ctx, w, r, gw, id, sess)
			return
		}
	}

	items, total, err := h.price(ctx, req)
	if err != nil {
		writeError(w, r, h.Logger, "checkout", err)
		return
	}
	o, err := h.Orders.CreatePendingOrder(ctx, sess.UserID, items, total, req.Customer)
	if err != nil {
		writeError(w, r, h.Logger, "checkout", err)
		return
	}
	if idemKey != "" && h.Idem != nil {
		if err := h.Idem.Remember(ctx, sess.UserID, idemKey, o.ID); err != nil {
			h.Logger.Warn("idempotency remember", "order_id", o.ID, "err", err)
		}
	}

	payURL, err := h.redirect(ctx, gw, o, clientIP(r), sess.Locale)
	if err != nil {
		if merr := h.Orders.MarkFailed(ctx, o.ID); merr != nil {
			h.Logger.Error("mark failed after redirect error", "order_id", o.ID, "err", merr)
		}
		writeError(w, r, h.Logger, "checkout.redirect", err)
		return
	}
	writeJSON(w, http.StatusCreated, CheckoutResp{
		OrderID:    o.ID,
		Total:      o.Total,
		Status:     o.Status,
		Provider:   string(provider),
		PaymentURL: payURL,
	})
}

// resume answers a retried checkout with the order the first attempt created.
func (h *CheckoutHandler) resume(ctx context.Context, w http.ResponseWriter, r *http.Request, gw payment.Redirector, orderID string, sess *access.Session) {
	o, err := h.Orders.GetFor(ctx, orderID, sess)
	if err != nil {
		writeError(w, r, h.Logger, "checkout.resume", err)
		return
	}
	resp := CheckoutResp{OrderID: o.ID, Total: o.Total, Status: o.Status, Provider: string(gw.Provider()), Idempotent: true}
	if o.Status == orders.StatusPending {
		if resp.PaymentURL, err = h.redirect(ctx, gw, o, clientIP(r), sess.Locale); err != nil {
			writeError(w, r, h.Logger, "checkout.redirect", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CheckoutHandler) redirect(ctx context.Context, gw payment.Redirector, o *orders.Order, ip, locale string) (string, error) {
	if err := h.Orders.AttachPayment(ctx, o.ID, gw.Provider()); err != nil {
		return "", err
	}
	return gw.CreatePaymentRedirect(ctx, payment.Request{
		OrderID:     o.ID,
		Amount:      o.Total,
		ClientIP:    ip,
		Description: fmt.Sprintf("Thanh toan don hang %s", o.ID),
		Locale:      locale,
	})
}

// price snapshots catalog names and prices for the requested packages. A client total,
// when sent, must agree with the catalog after rounding.
func (h *CheckoutHandler) price(ctx context.Context, req CheckoutReq) ([]orders.LineItem, decimal.Decimal, error) {
	if len(req.Items) == 0 {
		return nil, decimal.Zero, orders.ErrEmptyCart
	}
	pkgs, err := h.Orders.Catalog(ctx)
	if err != nil {
		return nil, decimal.Zero, err
	}
	byID := make(map[string]orders.Package, len(pkgs))
	for _, p := range pkgs {
		byID[p.ID] = p
	}

	items := make([]orders.LineItem, 0, len(req.Items))
	sum := decimal.Zero
	for _, it := range req.Items {
		p, ok := byID[it.PackageID]
		if !ok {
			return nil, decimal.Zero, fmt.Errorf("%w: %s", orders.ErrPackageNotFound, it.PackageID)
		}
		if it.Quantity <= 0 {
			return nil, decimal.Zero, fmt.Errorf("%w: quantity for %s", orders.ErrInvalidItem, it.PackageID)
		}
		li := orders.LineItem{
			PackageID:   p.ID,
			ProductName: p.ProductName,
			PackageName: p.Name,
			Description: p.Description,
			UnitPrice:   p.Price,
			Quantity:    it.Quantity,
		}
		items = append(items, li)
		sum = sum.Add(decimal.NewFromInt(li.Subtotal()))
	}
	if req.Total != nil && orders.RoundTotal(*req.Total) != sum.IntPart() {
		return nil, decimal.Zero, orders.ErrInvalidTotal
	}
	return items, sum, nil
}
