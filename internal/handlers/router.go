package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/nkiryanov/authcore/internal/handlers/middleware"
	"github.com/nkiryanov/authcore/internal/logger"
	"github.com/nkiryanov/authcore/internal/service/gate"
)

type authorizer interface {
	Admit(ctx context.Context, req gate.Request) error
	Authorize(ctx context.Context, req gate.Request) (string, error)
}

type service interface {
	authService
	userGetter

	ReadAccess(r *http.Request) string
	VerifyCSRF(token string, subject string) bool
}

// NewRouter wires auth endpoints
// Public endpoints are admitted by origin and rate limit, the rest need an access token too
func NewRouter(s service, g authorizer, l logger.Logger) http.Handler {
	if l == nil {
		l = logger.NewNoOpLogger()
	}
	h := NewAuth(s, l)

	admit := middleware.Admit(g)
	withAuth := middleware.Auth(g, s)
	withCSRF := middleware.CSRF(s)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.LoggerMiddleware(l))

	r.Route("/api/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(admit)
			r.Post("/register", h.register)
			r.Post("/login", h.login)
			r.Post("/refresh", h.refresh)
			r.Post("/logout", h.logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(withAuth, withCSRF)
			r.Get("/csrf", h.csrf)
			r.Post("/logout-all", h.logoutAll)
		})
	})

	r.Route("/api/user", func(r chi.Router) {
		r.Use(withAuth, withCSRF)
		r.Method(http.MethodGet, "/me", handleUserMe(s))
	})

	return r
}
