package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"loan-engine/internal/config"
	"loan-engine/internal/domain/loan"

	"github.com/golang-jwt/jwt/v5"
)

type operatorKey struct{}

// OperatorClaims is the token payload: sub is the operator id.
type OperatorClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// AnonymousOperator acts on requests when authentication is disabled.
var AnonymousOperator = loan.Operator{ID: "anonymous", Name: "anonymous"}

func WithOperator(ctx context.Context, op loan.Operator) context.Context {
	noteOperator(ctx, op.ID)
	return context.WithValue(ctx, operatorKey{}, op)
}

func OperatorFromContext(ctx context.Context) (loan.Operator, bool) {
	op, ok := ctx.Value(operatorKey{}).(loan.Operator)
	return op, ok
}

func AuthMiddleware(cfg config.AuthConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), AnonymousOperator)))
			})
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op, err := operatorFromRequest(r, cfg.JWTSecret)
			if err != nil {
				logger.WarnContext(r.Context(), "AuthMiddleware: rejected request", "error", err)
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error":{"message":"Unauthorized"}}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), op)))
		})
	}
}

func operatorFromRequest(r *http.Request, secret string) (loan.Operator, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return loan.Operator{}, errors.New("missing Authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return loan.Operator{}, errors.New("invalid Authorization header format")
	}

	var claims OperatorClaims
	token, err := jwt.ParseWithClaims(parts[1], &claims, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return loan.Operator{}, err
	}
	if !token.Valid {
		return loan.Operator{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return loan.Operator{}, errors.New("token has no subject")
	}

	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	return loan.Operator{ID: claims.Subject, Name: name}, nil
}
