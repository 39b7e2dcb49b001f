package httpx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/HTM0410/sale-account-sub001/internal/apperr"
	"github.com/HTM0410/sale-account-sub001/internal/orders"
	"github.com/HTM0410/sale-account-sub001/internal/payment"
	"github.com/go-chi/chi/v5"
)

// WebhookVerifier is satisfied by payment.Stripe.
type WebhookVerifier interface {
	VerifyWebhook(payload []byte, sigHeader string) (payment.Callback, bool, error)
}

// PaymentHandler receives gateway results. All routes are public; authenticity comes
// from the gateway signature only.
type PaymentHandler struct {
	Orders *orders.Service
	VNPay  payment.CallbackGateway
	Hosted payment.CallbackGateway
	Stripe WebhookVerifier
	// ResultPath is where the browser lands after a return, e.g. "/checkout/result".
	ResultPath string
	Logger     *slog.Logger
}

// VNPay IPN acknowledgement codes.
const (
	ipnConfirmed     = "00"
	ipnOrderNotFound = "01"
	ipnAlreadyDone   = "02"
	ipnBadAmount     = "04"
	ipnBadSignature  = "97"
	ipnUnknown       = "99"
)

type ipnResp struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

func (h *PaymentHandler) Register(r chi.Router) {
	if h.VNPay != nil {
		r.Get("/api/payment/vnpay/ipn", h.vnpayIPN)
		r.Get("/api/payment/vnpay/return", h.gatewayReturn(h.VNPay))
	}
	if h.Hosted != nil {
		r.Get("/api/payment/hosted/callback", h.gatewayReturn(h.Hosted))
	}
	if h.Stripe != nil {
		r.Post("/api/payment/stripe/webhook", h.stripeWebhook)
	}
}

func (h *PaymentHandler) vnpayIPN(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !h.VNPay.VerifyCallback(q) {
		h.Logger.Warn("vnpay ipn signature mismatch", "order_id", q.Get("vnp_TxnRef"), "ip", clientIP(r))
		writeJSON(w, http.StatusOK, ipnResp{ipnBadSignature, "Invalid signature"})
		return
	}
	cb, err := h.VNPay.ParseCallback(q)
	if err != nil {
		writeJSON(w, http.StatusOK, ipnResp{ipnUnknown, "Invalid request"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Orders.CompletePayment(ctx, cb)
	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		writeJSON(w, http.StatusOK, ipnResp{ipnOrderNotFound, "Order not found"})
	case errors.Is(err, orders.ErrAmountMismatch):
		writeJSON(w, http.StatusOK, ipnResp{ipnBadAmount, "Invalid amount"})
	case err != nil:
		h.Logger.Error("vnpay ipn", "order_id", cb.OrderID, "err", err)
		writeJSON(w, http.StatusOK, ipnResp{ipnUnknown, "Unknown error"})
	case !res.Applied:
		writeJSON(w, http.StatusOK, ipnResp{ipnAlreadyDone, "Order already confirmed"})
	default:
		h.Logger.Info("vnpay ipn applied", "order_id", cb.OrderID, "outcome", cb.Outcome.String(), "code", cb.ResponseCode)
		writeJSON(w, http.StatusOK, ipnResp{ipnConfirmed, "Confirm Success"})
	}
}

// gatewayReturn handles the browser coming back from a redirect gateway. The result is
// applied here as well as in the IPN, whichever arrives first wins.
func (h *PaymentHandler) gatewayReturn(gw payment.CallbackGateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		provider := string(gw.Provider())
		if !gw.VerifyCallback(q) {
			h.Logger.Warn("payment return signature mismatch", "provider", provider, "ip", clientIP(r))
			h.resultRedirect(w, r, "", "failed", "invalid_signature")
			return
		}
		cb, err := gw.ParseCallback(q)
		if err != nil {
			h.resultRedirect(w, r, "", "failed", "malformed")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		res, err := h.Orders.CompletePayment(ctx, cb)
		if err != nil {
			h.Logger.Warn("payment return", "provider", provider, "order_id", cb.OrderID, "err", err)
			h.resultRedirect(w, r, cb.OrderID, "failed", apperr.CodeOf(err))
			return
		}
		status := "pending"
		if res.Order != nil {
			status = string(res.Order.Status)
		}
		h.resultRedirect(w, r, cb.OrderID, status, "")
	}
}

func (h *PaymentHandler) resultRedirect(w http.ResponseWriter, r *http.Request, orderID, status, errCode string) {
	v := url.Values{}
	v.Set("status", status)
	if orderID != "" {
		v.Set("order_id", orderID)
	}
	if errCode != "" {
		v.Set("error", errCode)
	}
	target := h.ResultPath
	if target == "" {
		target = "/checkout/result"
	}
	http.Redirect(w, r, target+"?"+v.Encode(), http.StatusFound)
}

const maxWebhookBody = int64(65536)

func (h *PaymentHandler) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}
	cb, handled, err := h.Stripe.VerifyWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.Logger.Warn("stripe webhook rejected", "err", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid webhook"})
		return
	}
	if !handled {
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Orders.CompletePayment(ctx, cb)
	if err != nil {
		// retrying cannot fix a domain error, only an internal one
		if apperr.KindOf(err) == apperr.KindInternal {
			h.Logger.Error("stripe webhook", "order_id", cb.OrderID, "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "retry"})
			return
		}
		h.Logger.Warn("stripe webhook not applied", "order_id", cb.OrderID, "err", err)
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}
	if res.Order != nil {
		h.Logger.Info("stripe webhook applied", "order_id", cb.OrderID, "status", res.Order.Status, "applied", res.Applied)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
