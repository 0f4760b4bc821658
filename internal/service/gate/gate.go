// Package gate decides whether an inbound request may reach a protected handler.
// It is transport agnostic: HTTP middleware and gRPC interceptor feed it a Request.
package gate

import (
	"context"
	"errors"
	"fmt"

	"github.com/nkiryanov/authcore/internal/logger"
	"github.com/nkiryanov/authcore/internal/service/ratelimit"
)

type accessVerifier interface {
	VerifyAccess(token string) (string, error)
}

type rateLimiter interface {
	Allow(identifier string) ratelimit.Decision
}

type Request struct {
	Origin     string
	ClientAddr string

	// Access token without any scheme prefix
	Token string
}

type Gate struct {
	origins  *OriginPolicy
	limiter  rateLimiter
	verifier accessVerifier
	logger   logger.Logger
}

func New(origins *OriginPolicy, limiter rateLimiter, verifier accessVerifier, l logger.Logger) (*Gate, error) {
	if origins == nil || limiter == nil || verifier == nil {
		return nil, errors.New("origin policy, limiter and verifier are required")
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Gate{
		origins:  origins,
		limiter:  limiter,
		verifier: verifier,
		logger:   l,
	}, nil
}

// Authorize checks origin, rate limit and access token in that order
// Returns authenticated subject or *Rejection
func (g *Gate) Authorize(ctx context.Context, req Request) (string, error) {
	if err := g.Admit(ctx, req); err != nil {
		return "", err
	}

	if req.Token == "" {
		g.logger.Debug("Request rejected: no access token", "client", req.ClientAddr)
		return "", rejectUnauthenticated(errors.New("access token is absent"))
	}

	subject, err := g.verifier.VerifyAccess(req.Token)
	if err != nil {
		g.logger.Debug("Request rejected: access token invalid", "client", req.ClientAddr, "error", err)
		return "", rejectUnauthenticated(err)
	}

	return subject, nil
}

// Admit checks origin and rate limit only, for endpoints reachable without a token
// Returns *Rejection if request is not admitted
func (g *Gate) Admit(ctx context.Context, req Request) error {
	if req.Origin == "" {
		g.logger.Warn("Request rejected: no origin", "client", req.ClientAddr)
		return rejectOrigin(errors.New("origin is absent"))
	}
	if !g.origins.Allowed(req.Origin) {
		g.logger.Warn("Request rejected: origin not allowed", "origin", req.Origin, "client", req.ClientAddr)
		return rejectOrigin(fmt.Errorf("origin %q not allowed", req.Origin))
	}

	decision := g.limiter.Allow(req.ClientAddr)
	if !decision.Permitted {
		g.logger.Warn("Request rejected: rate limited", "client", req.ClientAddr, "reset_in", decision.ResetIn)
		return rejectRateLimited(decision.ResetIn)
	}

	return nil
}
