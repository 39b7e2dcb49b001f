package httpx

import (
	"net/http"
	"time"

	"github.com/HTM0410/sale-account-sub001/internal/access"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Registrar mounts a handler group's routes.
type Registrar interface {
	Register(r chi.Router)
}

// Streamer mounts long-lived routes that must not run under the request timeout.
type Streamer interface {
	RegisterStream(r chi.Router)
}

func NewRouter(gate *access.Gate, handlers ...Registrar) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(gate.Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		for _, h := range handlers {
			h.Register(r)
		}
	})
	for _, h := range handlers {
		if s, ok := h.(Streamer); ok {
			s.RegisterStream(r)
		}
	}
	return r
}
