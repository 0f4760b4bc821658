package middleware

import (
	"net/http"

	"github.com/nkiryanov/authcore/internal/handlers/render"
	"github.com/nkiryanov/authcore/internal/handlers/userctx"
)

const CSRFHeaderName = "X-CSRF-Token"

type csrfVerifier interface {
	VerifyCSRF(token string, subject string) bool
}

// CSRF requires a token issued to the authenticated subject on state changing requests
// Has to be used after Auth
func CSRF(v csrfVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			subject, ok := userctx.FromContext(r.Context())
			if !ok || !v.VerifyCSRF(r.Header.Get(CSRFHeaderName), subject) {
				render.ServiceError(w, "CSRF token invalid", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
