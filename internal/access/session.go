package access

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/HTM0410/sale-account-sub001/internal/apperr"
	"github.com/golang-jwt/jwt/v5"
)

const SessionCookie = "session"

var (
	ErrUnauthorized = apperr.New(apperr.KindUnauthorized, "unauthorized", "missing or invalid session")
	ErrForbidden    = apperr.New(apperr.KindForbidden, "insufficient_role", "insufficient role")
)

// Session is the subset of the auth provider's token the core reads.
type Session struct {
	UserID string
	Role   Role
	Locale string
}

// Claims as issued by the external auth service.
type Claims struct {
	Role   string `json:"role"`
	Locale string `json:"locale,omitempty"`
	jwt.RegisteredClaims
}

type SessionParser struct {
	secret []byte
}

func NewSessionParser(secret string) *SessionParser {
	return &SessionParser{secret: []byte(secret)}
}

// Parse validates an HS256 token and returns its Session.
func (p *SessionParser) Parse(token string) (*Session, error) {
	if len(p.secret) == 0 {
		return nil, apperr.Wrap(ErrUnauthorized, errors.New("session secret not configured"))
	}
	var c Claims
	tok, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return nil, apperr.Wrap(ErrUnauthorized, err)
	}
	if c.Subject == "" {
		return nil, apperr.Wrap(ErrUnauthorized, errors.New("token without subject"))
	}
	role, err := ParseRole(c.Role)
	if err != nil {
		return nil, apperr.Wrap(ErrUnauthorized, err)
	}
	locale := c.Locale
	if locale != "en" {
		locale = "vi"
	}
	return &Session{UserID: c.Subject, Role: role, Locale: locale}, nil
}

// FromRequest reads a bearer token, falling back to the session cookie.
// It returns (nil, nil) when the request carries no credentials at all.
func (p *SessionParser) FromRequest(r *http.Request) (*Session, error) {
	token := ""
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.Fields(h)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return nil, apperr.Wrap(ErrUnauthorized, errors.New("invalid authorization header"))
		}
		token = parts[1]
	} else if c, err := r.Cookie(SessionCookie); err == nil {
		token = c.Value
	}
	if token == "" {
		return nil, nil
	}
	return p.Parse(token)
}

type ctxKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func SessionFrom(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}

// Require is the per-endpoint check repeated behind the gate.
func Require(ctx context.Context, min Role) (*Session, error) {
	s, ok := SessionFrom(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	if !s.Role.AtLeast(min) {
		return nil, ErrForbidden
	}
	return s, nil
}
