package grpcserver

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/and161185/sendergate/internal/auth"
	"github.com/and161185/sendergate/internal/errs"
)

var signKey = []byte("test-secret-test-secret")

func makeJWT(t *testing.T, sub string, key []byte, method jwt.SigningMethod, iat time.Time, ttl time.Duration) string {
	t.Helper()
	claims := auth.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(iat),
		NotBefore: jwt.NewNumericDate(iat),
		ExpiresAt: jwt.NewNumericDate(iat.Add(ttl)),
	}}
	token := jwt.NewWithClaims(method, claims)
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}

func ctxWithAuth(token string) context.Context {
	md := metadata.New(map[string]string{
		"authorization": "Bearer " + token,
	})
	return metadata.NewIncomingContext(context.Background(), md)
}

func Test_bearerTokenFromMD_OkAndErrors(t *testing.T) {
	t.Parallel()

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer abc.def.ghi"))
	got, err := bearerTokenFromMD(ctx)
	if err != nil || got != "abc.def.ghi" {
		t.Fatalf("ok: got=%q err=%v", got, err)
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Basic foo"))
	if _, err := bearerTokenFromMD(ctx); err == nil {
		t.Fatalf("want error on non-bearer")
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer   "))
	if _, err := bearerTokenFromMD(ctx); err == nil {
		t.Fatalf("want error on empty token")
	}

	if _, err := bearerTokenFromMD(context.Background()); err == nil {
		t.Fatalf("want error on no metadata")
	}
}

type authzFunc func(ctx context.Context, subject, channel string) error

func (f authzFunc) Authorize(ctx context.Context, subject, channel string) error {
	return f(ctx, subject, channel)
}

func sovereignOnly(subject, _ string) error {
	switch subject {
	case "root", "owner":
		return nil
	case "broken":
		return context.DeadlineExceeded
	default:
		return errs.ErrForbidden
	}
}

func runAuth(t *testing.T, ctx context.Context, method string) (Caller, error) {
	t.Helper()
	ic := AuthUnary(signKey, authzFunc(func(_ context.Context, s, c string) error { return sovereignOnly(s, c) }), zaptest.NewLogger(t))
	var seen Caller
	_, err := ic(ctx, "req", &grpc.UnaryServerInfo{FullMethod: method}, func(ctx context.Context, _ any) (any, error) {
		seen, _ = CallerFromCtx(ctx)
		return "ok", nil
	})
	return seen, err
}

func TestAuthUnary(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	const admin = "/sendergate.v1.Gate/AddContact"

	if _, err := runAuth(t, context.Background(), "/sendergate.v1.Gate/Check"); err != nil {
		t.Fatalf("Check must be public: %v", err)
	}
	if _, err := runAuth(t, context.Background(), "/grpc.health.v1.Health/Check"); err != nil {
		t.Fatalf("health must pass through: %v", err)
	}

	c, err := runAuth(t, ctxWithAuth(makeJWT(t, "owner", signKey, jwt.SigningMethodHS256, now, time.Hour)), admin)
	if err != nil || c.Subject != "owner" {
		t.Fatalf("sovereign: caller=%+v err=%v", c, err)
	}

	cases := []struct {
		name string
		ctx  context.Context
		want codes.Code
	}{
		{"no token", context.Background(), codes.Unauthenticated},
		{"garbage", ctxWithAuth("not-a-jwt"), codes.Unauthenticated},
		{"expired", ctxWithAuth(makeJWT(t, "owner", signKey, jwt.SigningMethodHS256, now.Add(-2*time.Hour), time.Hour)), codes.Unauthenticated},
		{"wrong alg", ctxWithAuth(makeJWT(t, "owner", signKey, jwt.SigningMethodHS384, now, time.Hour)), codes.Unauthenticated},
		{"wrong key", ctxWithAuth(makeJWT(t, "owner", []byte("other-key-other-key"), jwt.SigningMethodHS256, now, time.Hour)), codes.Unauthenticated},
		{"not sovereign", ctxWithAuth(makeJWT(t, "friend", signKey, jwt.SigningMethodHS256, now, time.Hour)), codes.PermissionDenied},
		{"registry down", ctxWithAuth(makeJWT(t, "broken", signKey, jwt.SigningMethodHS256, now, time.Hour)), codes.Unavailable},
	}
	for _, tc := range cases {
		if _, err := runAuth(t, tc.ctx, admin); status.Code(err) != tc.want {
			t.Fatalf("%s: want %v, got %v", tc.name, tc.want, err)
		}
	}
}
