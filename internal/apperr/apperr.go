package apperr

import (
	"errors"
	"net/http"
)

// Kind is the machine-checkable classifier returned to callers.
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindInvalidInput Kind = "invalid_input"
	KindGateway      Kind = "gateway_error"
	KindInternal     Kind = "internal_error"
)

// Error carries a Kind plus a technical Code (e.g. "order_not_found") shown to staff only.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind+Code so a Wrap'd copy still satisfies errors.Is against the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// Wrap attaches a cause to a sentinel without mutating it.
func Wrap(sentinel *Error, cause error) *Error {
	cp := *sentinel
	cp.Err = cause
	return &cp
}

// KindOf returns the Kind of the first *Error in the chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the technical code of err, "internal" when err is not classified.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return "internal"
}

func HTTPStatus(k Kind) int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var messages = map[string]map[Kind]string{
	"vi": {
		KindUnauthorized: "Vui lòng đăng nhập để tiếp tục",
		KindForbidden:    "Bạn không có quyền thực hiện thao tác này",
		KindNotFound:     "Không tìm thấy dữ liệu yêu cầu",
		KindInvalidInput: "Dữ liệu không hợp lệ",
		KindGateway:      "Cổng thanh toán không phản hồi hợp lệ",
		KindInternal:     "Đã có lỗi xảy ra, vui lòng thử lại sau",
	},
	"en": {
		KindUnauthorized: "Please sign in to continue",
		KindForbidden:    "You do not have permission to perform this action",
		KindNotFound:     "The requested resource was not found",
		KindInvalidInput: "Invalid request",
		KindGateway:      "The payment gateway returned an invalid response",
		KindInternal:     "Something went wrong, please try again later",
	},
}

// Localized returns the user-facing text for k; unknown locales fall back to Vietnamese.
func Localized(k Kind, locale string) string {
	m, ok := messages[locale]
	if !ok {
		m = messages["vi"]
	}
	if s, ok := m[k]; ok {
		return s
	}
	return m[KindInternal]
}
