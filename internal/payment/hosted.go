package payment

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/HTM0410/sale-account-sub001/internal/apperr"
)

const (
	hppSignature   = "hpp_signature"
	hppSuccessCode = "success"
)

type HostedConfig struct {
	MerchantID string
	Secret     string
	PayURL     string
	ReturnURL  string
}

// Hosted is the simplified international card page. It shares the canonical
// signing contract with VNPay but uses hpp_* fields, HMAC-SHA256 and whole-unit amounts;
// its return path always echoes hpp_status=success.
type Hosted struct {
	cfg HostedConfig
	now func() time.Time
}

func NewHosted(cfg HostedConfig) *Hosted {
	return &Hosted{cfg: cfg, now: time.Now}
}

func (g *Hosted) Provider() Provider { return ProviderHosted }

func (g *Hosted) CreatePaymentRedirect(_ context.Context, req Request) (string, error) {
	if req.Amount <= 0 {
		return "", ErrInvalidAmount
	}
	if g.cfg.MerchantID == "" || g.cfg.Secret == "" || g.cfg.PayURL == "" || g.cfg.ReturnURL == "" {
		return "", ErrGatewayConfig
	}
	if req.OrderID == "" {
		return "", apperr.Wrap(ErrMalformed, fmt.Errorf("missing order id"))
	}

	params := url.Values{}
	params.Set("hpp_merchant", g.cfg.MerchantID)
	params.Set("hpp_order_ref", req.OrderID)
	params.Set("hpp_amount", strconv.FormatInt(req.Amount, 10))
	params.Set("hpp_currency", "VND")
	params.Set("hpp_return_url", g.cfg.ReturnURL)
	params.Set("hpp_client_ip", req.ClientIP)
	params.Set("hpp_timestamp", strconv.FormatInt(g.now().Unix(), 10))
	params.Set("hpp_description", req.Description)

	query := Canonicalize(params)
	return g.cfg.PayURL + "?" + query + "&" + hppSignature + "=" + hmacHex(sha256.New, g.cfg.Secret, query), nil
}

func (g *Hosted) Sign(params url.Values) string {
	return hmacHex(sha256.New, g.cfg.Secret, Canonicalize(params, hppSignature))
}

func (g *Hosted) VerifyCallback(params url.Values) bool {
	if g.cfg.Secret == "" || params == nil {
		return false
	}
	got := params.Get(hppSignature)
	if got == "" || params.Get("hpp_order_ref") == "" {
		return false
	}
	return equalHex(g.Sign(params), got)
}

func (g *Hosted) InterpretResultCode(code string) Outcome {
	if code == hppSuccessCode {
		return Success
	}
	return Failure
}

func (g *Hosted) ParseCallback(params url.Values) (Callback, error) {
	cb := Callback{
		Provider:      ProviderHosted,
		OrderID:       params.Get("hpp_order_ref"),
		ResponseCode:  params.Get("hpp_status"),
		TransactionNo: params.Get("hpp_txn_id"),
		Currency:      params.Get("hpp_currency"),
	}
	if cb.OrderID == "" {
		return Callback{}, apperr.Wrap(ErrMalformed, fmt.Errorf("missing hpp_order_ref"))
	}
	amount, err := strconv.ParseInt(params.Get("hpp_amount"), 10, 64)
	if err != nil || amount < 0 {
		return Callback{}, apperr.Wrap(ErrMalformed, fmt.Errorf("bad hpp_amount %q", params.Get("hpp_amount")))
	}
	cb.Amount = amount
	if ts, err := strconv.ParseInt(params.Get("hpp_timestamp"), 10, 64); err == nil {
		cb.PaidAt = time.Unix(ts, 0).UTC()
	}
	cb.Outcome = g.InterpretResultCode(cb.ResponseCode)
	return cb, nil
}
