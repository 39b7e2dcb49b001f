package payment

import (
	"context"
	"net/url"
	"time"

	"github.com/HTM0410/sale-account-sub001/internal/apperr"
)

type Provider string

const (
	ProviderVNPay  Provider = "vnpay"
	ProviderHosted Provider = "hosted"
	ProviderStripe Provider = "stripe"
)

func ParseProvider(s string) (Provider, bool) {
	switch p := Provider(s); p {
	case ProviderVNPay, ProviderHosted, ProviderStripe:
		return p, true
	}
	return "", false
}

type Outcome int

const (
	Failure Outcome = iota
	Success
)

func (o Outcome) String() string {
	if o == Success {
		return "success"
	}
	return "failure"
}

var (
	ErrInvalidAmount    = apperr.New(apperr.KindInvalidInput, "invalid_amount", "amount must be positive")
	ErrGatewayConfig    = apperr.New(apperr.KindGateway, "gateway_config", "payment gateway is not configured")
	ErrInvalidSignature = apperr.New(apperr.KindGateway, "invalid_signature", "callback signature mismatch")
	ErrMalformed        = apperr.New(apperr.KindInvalidInput, "malformed_callback", "malformed gateway callback")
)

// Request is what checkout hands to a gateway to start a payment.
type Request struct {
	OrderID     string
	Amount      int64 // whole VND
	ClientIP    string
	Description string
	Locale      string
}

// Callback is a verified, parsed gateway notification.
type Callback struct {
	Provider      Provider
	OrderID       string
	Amount        int64 // whole VND
	ResponseCode  string
	TransactionNo string
	BankCode      string
	CardType      string
	PaidAt        time.Time
	Outcome       Outcome

	// Stripe only.
	SessionID       string
	PaymentIntentID string
	Currency        string
}

// Redirector starts a payment off-site.
type Redirector interface {
	Provider() Provider
	CreatePaymentRedirect(ctx context.Context, req Request) (string, error)
}

// CallbackGateway is a Redirector whose results come back as signed query parameters.
type CallbackGateway interface {
	Redirector
	// VerifyCallback never errors: any mismatch, missing secret or malformed input is false.
	VerifyCallback(params url.Values) bool
	InterpretResultCode(code string) Outcome
	ParseCallback(params url.Values) (Callback, error)
	Sign(params url.Values) string
}
