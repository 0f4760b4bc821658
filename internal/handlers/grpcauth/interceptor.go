// Package grpcauth guards gRPC unary calls with the same gate as the HTTP routes.
package grpcauth

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/nkiryanov/authcore/internal/handlers/userctx"
	"github.com/nkiryanov/authcore/internal/logger"
	"github.com/nkiryanov/authcore/internal/service/gate"
)

// Metadata keys, lower-cased as grpc normalizes them
const (
	OriginKey        = "origin"
	AuthorizationKey = "authorization"
	RetryAfterKey    = "retry-after"
)

const bearerPrefix = "bearer "

type authorizer interface {
	Admit(ctx context.Context, req gate.Request) error
	Authorize(ctx context.Context, req gate.Request) (string, error)
}

// UnaryServerInterceptor authorizes every call and puts the subject into the handler context.
// Methods listed in public are admitted by origin and rate limit only.
func UnaryServerInterceptor(g authorizer, l logger.Logger, public ...string) grpc.UnaryServerInterceptor {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	publicMethods := make(map[string]struct{}, len(public))
	for _, m := range public {
		publicMethods[m] = struct{}{}
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		r := requestFromContext(ctx)

		if _, ok := publicMethods[info.FullMethod]; ok {
			if err := g.Admit(ctx, r); err != nil {
				return nil, toStatus(ctx, l, err)
			}
			return handler(ctx, req)
		}

		subject, err := g.Authorize(ctx, r)
		if err != nil {
			return nil, toStatus(ctx, l, err)
		}

		return handler(userctx.New(ctx, subject), req)
	}
}

func requestFromContext(ctx context.Context) gate.Request {
	var r gate.Request

	if md, ok := metadata.FromIncomingContext(ctx); ok {
		r.Origin = first(md, OriginKey)
		if v := first(md, AuthorizationKey); len(v) > len(bearerPrefix) && strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
			r.Token = v[len(bearerPrefix):]
		}
	}

	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		r.ClientAddr = p.Addr.String()
		if host, _, err := net.SplitHostPort(r.ClientAddr); err == nil {
			r.ClientAddr = host
		}
	}

	return r
}

func first(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

func toStatus(ctx context.Context, l logger.Logger, err error) error {
	var rej *gate.Rejection
	if !errors.As(err, &rej) {
		l.Error("Authorization failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}

	switch rej.Kind {
	case gate.KindOriginRejected:
		return status.Error(codes.PermissionDenied, "origin not allowed")
	case gate.KindRateLimited:
		if err := grpc.SetHeader(ctx, metadata.Pairs(RetryAfterKey, strconv.Itoa(rej.RetryAfterSeconds()))); err != nil {
			l.Debug("Retry-after header not sent", "error", err)
		}
		return status.Error(codes.ResourceExhausted, "too many requests")
	default:
		return status.Error(codes.Unauthenticated, "unauthenticated")
	}
}
