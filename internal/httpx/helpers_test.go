package httpx_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/HTM0410/sale-account-sub001/internal/access"
	"github.com/HTM0410/sale-account-sub001/internal/httpx"
	"github.com/HTM0410/sale-account-sub001/internal/notify"
	"github.com/HTM0410/sale-account-sub001/internal/orders"
	"github.com/HTM0410/sale-account-sub001/internal/payment"
	"github.com/HTM0410/sale-account-sub001/internal/testutil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	sessionSecret = "httpx-test-secret"
	vnpSecret     = "VNPAYSECRETVNPAYSECRET"
	hppSecret     = "hosted-secret"
	whsec         = "whsec_httpx_test"
)

type env struct {
	router http.Handler
	repo   *testutil.MemOrders
	notes  *testutil.MemNotifications
	hub    *notify.Hub
	orders *orders.Service
	vnp    *payment.VNPay
	hosted *payment.Hosted
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := testutil.Logger()
	e := &env{
		repo: testutil.NewMemOrders(
			orders.Package{ID: "nf-1m", ProductName: "Netflix Premium", Name: "1 tháng", Price: 79000, Active: true},
			orders.Package{ID: "yt-12m", ProductName: "YouTube Premium", Name: "12 tháng", Price: 390000, Active: true},
		),
		notes: testutil.NewMemNotifications(),
		hub:   notify.NewHub(2, logger),
		vnp: payment.NewVNPay(payment.VNPayConfig{
			TmnCode:    "DEMO1234",
			HashSecret: vnpSecret,
			PayURL:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
			ReturnURL:  "https://shop.example/api/payment/vnpay/return",
		}),
		hosted: payment.NewHosted(payment.HostedConfig{
			MerchantID: "M-1",
			Secret:     hppSecret,
			PayURL:     "https://pay.example/hpp",
			ReturnURL:  "https://shop.example/api/payment/hosted/callback",
		}),
	}
	ns := notify.NewService(e.notes, e.hub, logger)
	e.orders = orders.NewService(e.repo, logger,
		orders.WithNotifier(ns),
		orders.WithStatusCache(testutil.NewStatusCache()),
	)
	stripeGw := payment.NewStripe(payment.StripeConfig{WebhookSecret: whsec})

	gate := &access.Gate{
		Classifier: access.DefaultClassifier(),
		Sessions:   access.NewSessionParser(sessionSecret),
		Logger:     logger,
	}
	e.router = httpx.NewRouter(gate,
		&httpx.CheckoutHandler{
			Orders: e.orders,
			Gateways: map[payment.Provider]payment.Redirector{
				payment.ProviderVNPay:  e.vnp,
				payment.ProviderHosted: e.hosted,
				payment.ProviderStripe: stripeGw,
			},
			Logger: logger,
		},
		&httpx.PaymentHandler{Orders: e.orders, VNPay: e.vnp, Hosted: e.hosted, Stripe: stripeGw, Logger: logger},
		&httpx.OrdersHandler{Orders: e.orders, Logger: logger},
		&httpx.AdminHandler{Orders: e.orders, Notify: ns, Logger: logger},
		&httpx.NotificationsHandler{Notify: ns, Hub: e.hub, Heartbeat: time.Hour, Logger: logger},
	)
	return e
}

func token(t *testing.T, sub string, role access.Role) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, access.Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	s, err := tok.SignedString([]byte(sessionSecret))
	require.NoError(t, err)
	return s
}

func (e *env) do(t *testing.T, method, target, bearer, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errResp struct {
	Error struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// checkout creates a pending order for user through the API and returns its id and total.
func (e *env) checkout(t *testing.T, user, provider string) httpx.CheckoutResp {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/checkout", token(t, user, access.RoleUser),
		`{"provider":"`+provider+`","items":[{"package_id":"nf-1m","quantity":2}],"total":"158000","customer":{"email":"an@example.com"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[httpx.CheckoutResp](t, rec)
}

func decimalOf(v int64) decimal.Decimal { return decimal.NewFromInt(v) }
