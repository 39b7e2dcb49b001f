package orders

import (
	"time"

	"github.com/HTM0410/sale-account-sub001/internal/payment"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Package is a sellable plan of a product, e.g. "Netflix Premium / 1 month".
type Package struct {
	ID           string    `json:"id"`
	ProductName  string    `json:"product_name"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Price        int64     `json:"price"`
	DurationDays int       `json:"duration_days"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// LineItem is a point-in-time snapshot; names survive later catalog edits.
type LineItem struct {
	PackageID   string `json:"package_id"`
	ProductName string `json:"product_name"`
	PackageName string `json:"package_name,omitempty"`
	Description string `json:"description,omitempty"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
}

func (li LineItem) Subtotal() int64 { return li.UnitPrice * int64(li.Quantity) }

var vnPrinter = message.NewPrinter(language.Vietnamese)

// FormatVND renders 1234567 as "1.234.567₫".
func FormatVND(v int64) string {
	return vnPrinter.Sprintf("%d₫", v)
}

type Customer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type Order struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Total     int64      `json:"total"`
	Status    Status     `json:"status"`
	Metadata  Metadata   `json:"metadata"`
	Items     []LineItem `json:"items,omitempty"` // normalized rows, full order path only
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}

// LineItems returns normalized rows when present, the checkout snapshot otherwise.
func (o *Order) LineItems() []LineItem {
	if len(o.Items) > 0 {
		return o.Items
	}
	return o.Metadata.Items
}

type Metadata struct {
	Items    []LineItem   `json:"items,omitempty"`
	Customer Customer     `json:"customer"`
	Payment  *PaymentMeta `json:"payment,omitempty"`
}

// PaymentMeta is a tagged variant: Provider selects which of Domestic/International is set.
type PaymentMeta struct {
	Provider      payment.Provider      `json:"provider"`
	InitiatedAt   *time.Time            `json:"initiated_at,omitempty"`
	CompletedAt   *time.Time            `json:"completed_at,omitempty"`
	Domestic      *DomesticPayment      `json:"domestic,omitempty"`
	International *InternationalPayment `json:"international,omitempty"`
}

// DomesticPayment holds VNPay result fields.
type DomesticPayment struct {
	TransactionNo string `json:"transaction_no,omitempty"`
	BankCode      string `json:"bank_code,omitempty"`
	CardType      string `json:"card_type,omitempty"`
	ResponseCode  string `json:"response_code,omitempty"`
}

// InternationalPayment holds hosted-card and Stripe result fields.
type InternationalPayment struct {
	TransactionID   string `json:"transaction_id,omitempty"`
	SessionID       string `json:"session_id,omitempty"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
	Currency        string `json:"currency,omitempty"`
	Status          string `json:"status,omitempty"`
}

func (m *PaymentMeta) Validate() error {
	if m == nil {
		return nil
	}
	switch m.Provider {
	case payment.ProviderVNPay:
		if m.International != nil {
			return ErrInvalidPayment
		}
	case payment.ProviderHosted, payment.ProviderStripe:
		if m.Domestic != nil {
			return ErrInvalidPayment
		}
	default:
		return ErrInvalidPayment
	}
	return nil
}

// NewPaymentMeta starts the variant for p at initiation time.
func NewPaymentMeta(p payment.Provider, at time.Time) *PaymentMeta {
	m := &PaymentMeta{Provider: p, InitiatedAt: &at}
	if p == payment.ProviderVNPay {
		m.Domestic = &DomesticPayment{}
	} else {
		m.International = &InternationalPayment{}
	}
	return m
}

// ApplyCallback records a verified gateway result into the matching variant.
func (m *PaymentMeta) ApplyCallback(cb payment.Callback, at time.Time) {
	m.CompletedAt = &at
	switch m.Provider {
	case payment.ProviderVNPay:
		if m.Domestic == nil {
			m.Domestic = &DomesticPayment{}
		}
		m.Domestic.TransactionNo = cb.TransactionNo
		m.Domestic.BankCode = cb.BankCode
		m.Domestic.CardType = cb.CardType
		m.Domestic.ResponseCode = cb.ResponseCode
	default:
		if m.International == nil {
			m.International = &InternationalPayment{}
		}
		m.International.TransactionID = cb.TransactionNo
		m.International.SessionID = cb.SessionID
		m.International.PaymentIntentID = cb.PaymentIntentID
		m.International.Currency = cb.Currency
		m.International.Status = cb.ResponseCode
	}
}
