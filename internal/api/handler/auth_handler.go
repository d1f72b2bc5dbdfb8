package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"loan-engine/internal/api/handler/dto"
	mw "loan-engine/internal/api/middleware"
	"loan-engine/internal/config"
	"loan-engine/internal/pkg/apperrors"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 24 * time.Hour

type AuthHandler struct {
	cfg    config.AuthConfig
	now    func() time.Time
	logger *slog.Logger
}

func NewAuthHandler(cfg config.AuthConfig, l *slog.Logger) *AuthHandler {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	return &AuthHandler{
		cfg:    cfg,
		now:    time.Now,
		logger: l.With("component", "AuthHandler"),
	}
}

// GenerateBearerToken issues an operator token. The username becomes the
// token subject and the operator id recorded on loans.
func (h *AuthHandler) GenerateBearerToken(w http.ResponseWriter, r *http.Request) {
	var req dto.TokenRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.WarnContext(r.Context(), "failed to decode request body", "error", err)
		respondError(w, err)
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		respondError(w, apperrors.NewValidationError("username", "is required"))
		return
	}
	if h.cfg.JWTSecret == "" {
		h.logger.ErrorContext(r.Context(), "JWT secret is not configured")
		respondError(w, errors.New("jwt secret is not configured"))
		return
	}

	expiresAt := h.now().Add(h.cfg.TokenTTL).UTC()
	claims := mw.OperatorClaims{
		Name: strings.TrimSpace(req.Name),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(h.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.cfg.JWTSecret))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to sign token", "error", err)
		respondError(w, err)
		return
	}

	h.logger.InfoContext(r.Context(), "Issued operator token", "operator", username)
	respondJSON(w, http.StatusOK, dto.TokenResponse{Token: "Bearer " + tokenString, ExpiresAt: expiresAt})
}
