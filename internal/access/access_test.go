package access

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-session-secret"

func signToken(t *testing.T, sub, role string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:   role,
		Locale: "en",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	s, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func TestParseRole(t *testing.T) {
	for in, want := range map[string]Role{"admin": RoleAdmin, "ADMIN": RoleAdmin, " Staff ": RoleStaff, "user": RoleUser} {
		got, err := ParseRole(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, bad := range []string{"", "root", "superadmin", "moderator"} {
		_, err := ParseRole(bad)
		assert.Error(t, err, bad)
	}
	assert.False(t, Role("ADMIN").AtLeast(RoleUser), "non-canonical value is never sufficient")
}

func TestClassify_Precedence(t *testing.T) {
	c := DefaultClassifier()
	cases := map[string]RouteClass{
		"/admin/settings":            RouteAdminRestricted,
		"/admin/users/42":            RouteAdminRestricted,
		"/api/admin/settings/banner": RouteAdminRestricted,
		"/admin":                     RouteAdmin,
		"/admin/orders":              RouteAdmin,
		"/api/admin/orders/1/status": RouteAdmin,
		"/staff/tickets":             RouteStaff,
		"/dashboard":                 RouteDashboard,
		"/api/orders/abc":            RouteDashboard,
		"/api/notifications/stream":  RouteDashboard,
		"/":                          RoutePublic,
		"/products/netflix":          RoutePublic,
		"/administrator":             RoutePublic,
		"/api/payment/vnpay/ipn":     RoutePublic,
	}
	for path, want := range cases {
		assert.Equal(t, want, c.Classify(path), path)
	}
}

func TestAuthorize(t *testing.T) {
	user := &Session{UserID: "u", Role: RoleUser}
	staff := &Session{UserID: "s", Role: RoleStaff}
	admin := &Session{UserID: "a", Role: RoleAdmin}

	tests := []struct {
		name   string
		class  RouteClass
		sess   *Session
		allow  bool
		target string
	}{
		{"public anonymous", RoutePublic, nil, true, ""},
		{"dashboard anonymous", RouteDashboard, nil, false, "/auth/signin?callbackUrl=%2Fdashboard%2Forders"},
		{"dashboard user", RouteDashboard, user, true, ""},
		{"admin user", RouteAdmin, user, false, "/dashboard?error=insufficient_permissions"},
		{"admin staff", RouteAdmin, staff, true, ""},
		{"staff staff", RouteStaff, staff, true, ""},
		{"staff user", RouteStaff, user, false, "/dashboard?error=insufficient_permissions"},
		{"restricted staff", RouteAdminRestricted, staff, false, "/admin?error=insufficient_permissions"},
		{"restricted user", RouteAdminRestricted, user, false, "/dashboard?error=insufficient_permissions"},
		{"restricted admin", RouteAdminRestricted, admin, true, ""},
		{"invalid role", RouteDashboard, &Session{UserID: "x", Role: "root"}, false, "/auth/signin?callbackUrl=%2Fdashboard%2Forders"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Authorize(tt.class, tt.sess, "/dashboard/orders")
			assert.Equal(t, tt.allow, d.Allow)
			assert.Equal(t, tt.target, d.Redirect)
		})
	}
}

func TestSessionParser(t *testing.T) {
	p := NewSessionParser(testSecret)

	s, err := p.Parse(signToken(t, "user-1", "STAFF", time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "user-1", s.UserID)
	assert.Equal(t, RoleStaff, s.Role)
	assert.Equal(t, "en", s.Locale)

	_, err = p.Parse(signToken(t, "user-1", "user", time.Now().Add(-time.Minute)))
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = p.Parse(signToken(t, "user-1", "owner", time.Now().Add(time.Hour)))
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = NewSessionParser("other").Parse(signToken(t, "user-1", "user", time.Now().Add(time.Hour)))
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func newGateServer(t *testing.T) http.Handler {
	t.Helper()
	g := &Gate{Classifier: DefaultClassifier(), Sessions: NewSessionParser(testSecret)}
	return g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := SessionFrom(r.Context())
		if ok {
			w.Header().Set("X-User", s.UserID)
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestGateMiddleware_Pages(t *testing.T) {
	h := newGateServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/signin?callbackUrl=%2Fdashboard", rec.Header().Get("Location"))

	req := httptest.NewRequest(http.MethodGet, "/admin/settings", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: signToken(t, "s-1", "staff", time.Now().Add(time.Hour))})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/admin?error=insufficient_permissions", rec.Header().Get("Location"))

	req = httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: signToken(t, "s-1", "staff", time.Now().Add(time.Hour))})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s-1", rec.Header().Get("X-User"))
}

func TestGateMiddleware_API(t *testing.T) {
	h := newGateServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"unauthorized"`)

	req := httptest.NewRequest(http.MethodPatch, "/api/admin/orders/1/status", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "u-1", "user", time.Now().Add(time.Hour)))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// bad token on a public route degrades to anonymous
	req = httptest.NewRequest(http.MethodGet, "/api/catalog", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-User"))
}
