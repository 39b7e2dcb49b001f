package orders

import "github.com/HTM0410/sale-account-sub001/internal/apperr"

var (
	ErrEmptyCart         = apperr.New(apperr.KindInvalidInput, "empty_cart", "cart is empty")
	ErrInvalidTotal      = apperr.New(apperr.KindInvalidInput, "invalid_total", "order total must be positive")
	ErrInvalidItem       = apperr.New(apperr.KindInvalidInput, "invalid_item", "invalid line item")
	ErrInvalidStatus     = apperr.New(apperr.KindInvalidInput, "invalid_status", "status must be one of pending, paid, failed, cancelled")
	ErrInvalidTransition = apperr.New(apperr.KindInvalidInput, "invalid_transition", "order is already in a different terminal state")
	ErrInvalidPayment    = apperr.New(apperr.KindInvalidInput, "invalid_payment_meta", "payment metadata does not match its provider")
	ErrAmountMismatch    = apperr.New(apperr.KindGateway, "amount_mismatch", "paid amount does not match order total")
	ErrOrderNotFound     = apperr.New(apperr.KindNotFound, "order_not_found", "order not found")
	ErrPackageNotFound   = apperr.New(apperr.KindNotFound, "package_not_found", "package not found")
	ErrForbidden         = apperr.New(apperr.KindForbidden, "order_forbidden", "not allowed to act on this order")
)
