package access

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/HTM0410/sale-account-sub001/internal/apperr"
)

// Gate runs before every handler: it attaches the session (if any) to the context and
// enforces the route class. Page routes are redirected, API routes get 401/403 JSON.
type Gate struct {
	Classifier *Classifier
	Sessions   *SessionParser
	Logger     *slog.Logger
}

func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		class := g.Classifier.Classify(path)

		sess, err := g.Sessions.FromRequest(r)
		if err != nil {
			// a bad token on a public route is just an anonymous visitor
			if g.Logger != nil {
				g.Logger.Debug("session rejected", "path", path, "err", err)
			}
			sess = nil
		}

		d := Authorize(class, sess, requestTarget(r))
		if !d.Allow {
			if g.Logger != nil {
				uid := ""
				if sess != nil {
					uid = sess.UserID
				}
				g.Logger.Info("access denied", "path", path, "class", class.String(), "user_id", uid)
			}
			if IsAPI(path) {
				kind := apperr.KindForbidden
				if d.Unauthenticated {
					kind = apperr.KindUnauthorized
				}
				writeDenied(w, kind, sess)
				return
			}
			http.Redirect(w, r, d.Redirect, http.StatusFound)
			return
		}

		if sess != nil {
			r = r.WithContext(WithSession(r.Context(), sess))
		}
		next.ServeHTTP(w, r)
	})
}

func requestTarget(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + r.URL.RawQuery
}

func writeDenied(w http.ResponseWriter, kind apperr.Kind, sess *Session) {
	locale := "vi"
	if sess != nil {
		locale = sess.Locale
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.HTTPStatus(kind))
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"status": string(kind), "message": apperr.Localized(kind, locale)},
	})
}
