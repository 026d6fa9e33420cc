package grpcserver

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/and161185/sendergate/internal/api"
	"github.com/and161185/sendergate/internal/auth"
	"github.com/and161185/sendergate/internal/errs"
)

// Authorizer decides whether a token subject may administer the registry.
type Authorizer interface {
	Authorize(ctx context.Context, subject, channel string) error
}

// publicMethods need no bearer token.
var publicMethods = map[string]bool{
	api.FullMethod(api.MethodCheck): true,
}

// AuthUnary verifies the bearer token of every Gate method except Check and
// requires the subject to be sovereign. Other services (health, reflection)
// pass through.
func AuthUnary(signKey []byte, authz Authorizer, log *zap.Logger) grpc.UnaryServerInterceptor {
	prefix := "/" + api.ServiceName + "/"
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, prefix) || publicMethods[info.FullMethod] {
			return next(ctx, req)
		}
		tok, err := bearerTokenFromMD(ctx)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "no auth")
		}
		claims, err := auth.Parse(signKey, tok)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		if err := authz.Authorize(ctx, claims.Subject, claims.Channel); err != nil {
			switch {
			case errors.Is(err, errs.ErrForbidden):
				log.Warn("admin call denied", zap.String("subject", claims.Subject), zap.String("method", info.FullMethod))
				return nil, status.Error(codes.PermissionDenied, "sovereign trust required")
			case errors.Is(err, errs.ErrUnauthorized):
				return nil, status.Error(codes.Unauthenticated, "invalid token")
			default:
				log.Error("authorize failed", zap.String("subject", claims.Subject), zap.Error(err))
				return nil, status.Error(codes.Unavailable, "authorization unavailable")
			}
		}
		return next(WithCaller(ctx, Caller{Subject: claims.Subject, Channel: claims.Channel}), req)
	}
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			t := strings.TrimSpace(v[7:])
			if t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}
