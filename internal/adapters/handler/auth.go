package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
	"github.com/DanielPopoola/marketplace-escrow/internal/logctx"
	"github.com/golang-jwt/jwt/v5"
)

type callerKey struct{}

// Claims are the bearer token claims issued by the marketplace identity service.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func WithCaller(ctx context.Context, caller *domain.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns nil for anonymous requests.
func CallerFrom(ctx context.Context) *domain.Caller {
	caller, _ := ctx.Value(callerKey{}).(*domain.Caller)
	return caller
}

// TokenVerifier validates HS256 bearer tokens.
type TokenVerifier struct {
	secret []byte
	issuer string
}

func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}
}

func (v *TokenVerifier) Verify(raw string) (*domain.Caller, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return &domain.Caller{UserID: claims.Subject, Email: claims.Email}, nil
}

// Issue signs claims with the shared secret.
func (v *TokenVerifier) Issue(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Authenticate attaches the caller of a valid bearer token to the request. Requests
// without a valid token continue anonymously and are rejected by the services.
func Authenticate(verifier *TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, found := strings.CutPrefix(header, "Bearer ")
			if !found || strings.TrimSpace(raw) == "" {
				next.ServeHTTP(w, r)
				return
			}

			caller, err := verifier.Verify(strings.TrimSpace(raw))
			if err != nil {
				logctx.From(r.Context(), logger).Info("rejected bearer token", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}
