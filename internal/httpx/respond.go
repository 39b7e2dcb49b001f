package httpx

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/HTM0410/sale-account-sub001/internal/access"
	"github.com/HTM0410/sale-account-sub001/internal/apperr"
	"github.com/go-chi/chi/v5/middleware"
)

var errBadJSON = apperr.New(apperr.KindInvalidInput, "invalid_json", "invalid json body")

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Status  apperr.Kind `json:"status"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
}

// writeError maps err to its Kind. Callers only ever see the localized message; the
// technical code is added for staff sessions.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	kind := apperr.KindOf(err)
	sess, _ := access.SessionFrom(r.Context())

	attrs := []any{"op", op, "request_id", middleware.GetReqID(r.Context()), "err", err}
	if sess != nil {
		attrs = append(attrs, "user_id", sess.UserID)
	}
	if kind == apperr.KindInternal {
		logger.Error("request failed", attrs...)
	} else {
		logger.Info("request rejected", append(attrs, "kind", kind)...)
	}

	locale := "vi"
	body := errorBody{Status: kind}
	if sess != nil {
		locale = sess.Locale
		if sess.Role.IsStaff() {
			body.Code = apperr.CodeOf(err)
		}
	}
	body.Message = apperr.Localized(kind, locale)
	writeJSON(w, apperr.HTTPStatus(kind), map[string]any{"error": body})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Wrap(errBadJSON, err)
	}
	return nil
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}
