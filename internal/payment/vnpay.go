package payment

import (
	"context"
	"crypto/sha512"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/HTM0410/sale-account-sub001/internal/apperr"
)

const (
	vnpVersion      = "2.1.0"
	vnpSuccessCode  = "00"
	vnpDateLayout   = "20060102150405"
	vnpSecureHash   = "vnp_SecureHash"
	vnpSecureHashTy = "vnp_SecureHashType"
)

// VNPay times are always GMT+7.
var vnpZone = time.FixedZone("ICT", 7*60*60)

type VNPayConfig struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string
	Expire     time.Duration
}

// VNPay is the domestic gateway: HMAC-SHA512 over the canonical vnp_* parameter set,
// amounts sent in hundredths of a dong.
type VNPay struct {
	cfg VNPayConfig
	now func() time.Time
}

func NewVNPay(cfg VNPayConfig) *VNPay {
	if cfg.Expire <= 0 {
		cfg.Expire = 15 * time.Minute
	}
	return &VNPay{cfg: cfg, now: time.Now}
}

func (g *VNPay) Provider() Provider { return ProviderVNPay }

func (g *VNPay) configured() bool {
	return g.cfg.TmnCode != "" && g.cfg.HashSecret != "" && g.cfg.PayURL != "" && g.cfg.ReturnURL != ""
}

func (g *VNPay) CreatePaymentRedirect(_ context.Context, req Request) (string, error) {
	if req.Amount <= 0 {
		return "", ErrInvalidAmount
	}
	if !g.configured() {
		return "", ErrGatewayConfig
	}
	if req.OrderID == "" {
		return "", apperr.Wrap(ErrMalformed, fmt.Errorf("missing order id"))
	}

	now := g.now().In(vnpZone)
	info := req.Description
	if info == "" {
		info = "Thanh toan don hang " + req.OrderID
	}
	locale := "vn"
	if req.Locale == "en" {
		locale = "en"
	}
	ip := req.ClientIP
	if ip == "" {
		ip = "127.0.0.1"
	}

	params := url.Values{}
	params.Set("vnp_Version", vnpVersion)
	params.Set("vnp_Command", "pay")
	params.Set("vnp_TmnCode", g.cfg.TmnCode)
	params.Set("vnp_Amount", strconv.FormatInt(req.Amount*100, 10))
	params.Set("vnp_CurrCode", "VND")
	params.Set("vnp_TxnRef", req.OrderID)
	params.Set("vnp_OrderInfo", info)
	params.Set("vnp_OrderType", "other")
	params.Set("vnp_Locale", locale)
	params.Set("vnp_ReturnUrl", g.cfg.ReturnURL)
	params.Set("vnp_IpAddr", ip)
	params.Set("vnp_CreateDate", now.Format(vnpDateLayout))
	params.Set("vnp_ExpireDate", now.Add(g.cfg.Expire).Format(vnpDateLayout))

	query := Canonicalize(params)
	sig := hmacHex(sha512.New, g.cfg.HashSecret, query)
	return g.cfg.PayURL + "?" + query + "&" + vnpSecureHash + "=" + sig, nil
}

func (g *VNPay) Sign(params url.Values) string {
	return hmacHex(sha512.New, g.cfg.HashSecret, Canonicalize(params, vnpSecureHash, vnpSecureHashTy))
}

func (g *VNPay) VerifyCallback(params url.Values) bool {
	if g.cfg.HashSecret == "" || params == nil {
		return false
	}
	got := params.Get(vnpSecureHash)
	if got == "" || params.Get("vnp_TxnRef") == "" {
		return false
	}
	return equalHex(g.Sign(params), got)
}

func (g *VNPay) InterpretResultCode(code string) Outcome {
	if code == vnpSuccessCode {
		return Success
	}
	return Failure
}

// ParseCallback reads a callback that already passed VerifyCallback.
func (g *VNPay) ParseCallback(params url.Values) (Callback, error) {
	cb := Callback{
		Provider:      ProviderVNPay,
		OrderID:       params.Get("vnp_TxnRef"),
		ResponseCode:  params.Get("vnp_ResponseCode"),
		TransactionNo: params.Get("vnp_TransactionNo"),
		BankCode:      params.Get("vnp_BankCode"),
		CardType:      params.Get("vnp_CardType"),
	}
	if cb.OrderID == "" {
		return Callback{}, apperr.Wrap(ErrMalformed, fmt.Errorf("missing vnp_TxnRef"))
	}
	raw, err := strconv.ParseInt(params.Get("vnp_Amount"), 10, 64)
	if err != nil || raw < 0 {
		return Callback{}, apperr.Wrap(ErrMalformed, fmt.Errorf("bad vnp_Amount %q", params.Get("vnp_Amount")))
	}
	cb.Amount = raw / 100

	if s := params.Get("vnp_PayDate"); s != "" {
		if t, err := time.ParseInLocation(vnpDateLayout, s, vnpZone); err == nil {
			cb.PaidAt = t.UTC()
		}
	}

	cb.Outcome = g.InterpretResultCode(cb.ResponseCode)
	if st := params.Get("vnp_TransactionStatus"); st != "" && st != vnpSuccessCode {
		cb.Outcome = Failure
	}
	return cb, nil
}
