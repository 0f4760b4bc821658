package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/nkiryanov/authcore/internal/handlers/render"
	"github.com/nkiryanov/authcore/internal/handlers/userctx"
	"github.com/nkiryanov/authcore/internal/service/gate"
)

type authorizer interface {
	Admit(ctx context.Context, req gate.Request) error
	Authorize(ctx context.Context, req gate.Request) (string, error)
}

type accessReader interface {
	// Access token from request, empty if none
	ReadAccess(r *http.Request) string
}

// Admit requests from allowed origins within rate limit, no token required
func Admit(g authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := gate.Request{Origin: r.Header.Get("Origin"), ClientAddr: ClientAddr(r)}

			if err := g.Admit(r.Context(), req); err != nil {
				renderRejection(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Auth lets through authenticated requests only and puts subject to the request context
func Auth(g authorizer, tokens accessReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := gate.Request{
				Origin:     r.Header.Get("Origin"),
				ClientAddr: ClientAddr(r),
				Token:      tokens.ReadAccess(r),
			}

			subject, err := g.Authorize(r.Context(), req)
			if err != nil {
				renderRejection(w, err)
				return
			}

			ctx := userctx.New(r.Context(), subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientAddr is the host part of the remote address
func ClientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func renderRejection(w http.ResponseWriter, err error) {
	var rej *gate.Rejection
	if !errors.As(err, &rej) {
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	switch rej.Kind {
	case gate.KindOriginRejected:
		render.ServiceError(w, "Origin not allowed", rej.Status)
	case gate.KindRateLimited:
		render.RetryLater(w, "Too many requests", rej.Status, rej.RetryAfterSeconds())
	default:
		render.ServiceError(w, "Unauthorized", rej.Status)
	}
}
