package gate

import (
	"net/http"
	"time"

	"github.com/nkiryanov/authcore/internal/apperrors"
	"github.com/nkiryanov/authcore/internal/clock"
)

type Kind string

const (
	KindOriginRejected  Kind = "origin_rejected"
	KindRateLimited     Kind = "rate_limited"
	KindUnauthenticated Kind = "unauthenticated"
)

// Rejection of a request by the gate
type Rejection struct {
	Kind Kind

	// Recommended HTTP status code
	Status int

	// How long the caller has to wait, set for rate limited requests only
	RetryAfter time.Duration

	// Internal cause, for logging only. Never shown to the caller
	Err error
}

func (r *Rejection) Error() string {
	return r.sentinel().Error()
}

func (r *Rejection) Unwrap() []error {
	if r.Err == nil {
		return []error{r.sentinel()}
	}
	return []error{r.sentinel(), r.Err}
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds
func (r *Rejection) RetryAfterSeconds() int {
	return clock.RoundUp(r.RetryAfter, time.Second)
}

func (r *Rejection) sentinel() error {
	switch r.Kind {
	case KindOriginRejected:
		return apperrors.ErrOriginRejected
	case KindRateLimited:
		return apperrors.ErrRateLimited
	default:
		return apperrors.ErrUnauthenticated
	}
}

func rejectOrigin(err error) *Rejection {
	return &Rejection{Kind: KindOriginRejected, Status: http.StatusForbidden, Err: err}
}

func rejectRateLimited(retryAfter time.Duration) *Rejection {
	return &Rejection{Kind: KindRateLimited, Status: http.StatusTooManyRequests, RetryAfter: retryAfter}
}

func rejectUnauthenticated(err error) *Rejection {
	return &Rejection{Kind: KindUnauthenticated, Status: http.StatusUnauthorized, Err: err}
}
