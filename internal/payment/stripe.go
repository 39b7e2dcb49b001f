package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/HTM0410/sale-account-sub001/internal/apperr"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

type sessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// Stripe is the international gateway: a hosted Checkout Session out, a signed webhook back.
type Stripe struct {
	cfg      StripeConfig
	sessions sessionCreator
}

func NewStripe(cfg StripeConfig) *Stripe {
	s := &Stripe{cfg: cfg}
	if cfg.SecretKey != "" {
		sc := &client.API{}
		sc.Init(cfg.SecretKey, nil)
		s.sessions = sc.CheckoutSessions
	}
	return s
}

func (g *Stripe) Provider() Provider { return ProviderStripe }

func (g *Stripe) CreatePaymentRedirect(ctx context.Context, req Request) (string, error) {
	if req.Amount <= 0 {
		return "", ErrInvalidAmount
	}
	if g.sessions == nil || g.cfg.SuccessURL == "" || g.cfg.CancelURL == "" {
		return "", ErrGatewayConfig
	}
	name := req.Description
	if name == "" {
		name = "Order " + req.OrderID
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.OrderID),
		SuccessURL:        stripe.String(g.cfg.SuccessURL),
		CancelURL:         stripe.String(g.cfg.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				// VND is zero-decimal for Stripe
				Currency:   stripe.String(string(stripe.CurrencyVND)),
				UnitAmount: stripe.Int64(req.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
			},
			Quantity: stripe.Int64(1),
		}},
	}
	params.Context = ctx
	params.AddMetadata("order_id", req.OrderID)

	sess, err := g.sessions.New(params)
	if err != nil {
		return "", apperr.Wrap(apperr.New(apperr.KindGateway, "stripe_session", "create checkout session"), err)
	}
	return sess.URL, nil
}

// VerifyWebhook checks the Stripe-Signature header and maps the event to a Callback.
// handled is false for event types that carry no order outcome.
func (g *Stripe) VerifyWebhook(payload []byte, sigHeader string) (cb Callback, handled bool, err error) {
	if g.cfg.WebhookSecret == "" {
		return Callback{}, false, ErrGatewayConfig
	}
	ev, err := webhook.ConstructEventWithOptions(payload, sigHeader, g.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return Callback{}, false, apperr.Wrap(ErrInvalidSignature, err)
	}

	var outcome Outcome
	switch ev.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		outcome = Success
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		outcome = Failure
	default:
		return Callback{}, false, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
		return Callback{}, false, apperr.Wrap(ErrMalformed, err)
	}
	orderID := sess.ClientReferenceID
	if orderID == "" {
		orderID = sess.Metadata["order_id"]
	}
	if orderID == "" {
		return Callback{}, false, apperr.Wrap(ErrMalformed, fmt.Errorf("session %s has no order reference", sess.ID))
	}
	// completed but still unpaid means an async method is pending; wait for the async event
	if outcome == Success && sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return Callback{}, false, nil
	}

	cb = Callback{
		Provider:     ProviderStripe,
		OrderID:      orderID,
		Amount:       sess.AmountTotal,
		ResponseCode: string(ev.Type),
		SessionID:    sess.ID,
		Currency:     string(sess.Currency),
		Outcome:      outcome,
		PaidAt:       time.Unix(ev.Created, 0).UTC(),
	}
	if sess.PaymentIntent != nil {
		cb.PaymentIntentID = sess.PaymentIntent.ID
	}
	return cb, true, nil
}
