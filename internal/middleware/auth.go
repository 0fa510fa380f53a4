package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "wabadash/internal/errors"
	"wabadash/internal/models"
	"wabadash/internal/service"
	"wabadash/internal/tracing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"

	bearerPrefix = "Bearer "
)

type claimsKey struct{}

// Claims are the admin API token claims
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Auth validates HS256 bearer tokens on the admin API. With no secret
// configured every request is let through as an admin.
type Auth struct {
	secret []byte
	issuer string
	logger *logrus.Logger
	now    func() time.Time
}

func NewAuth(cfg models.AuthConfig, logger *logrus.Logger) *Auth {
	a := &Auth{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		logger: logger,
		now:    time.Now,
	}
	if !a.Enabled() {
		logger.Warn("Admin API authentication disabled: auth.jwt_secret is not set")
	}
	return a
}

func (a *Auth) Enabled() bool {
	return len(a.secret) > 0
}

// IssueToken signs a token for subject with the given role
func (a *Auth) IssueToken(subject, role string, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", apperrors.NewMissingConfigError("auth.jwt_secret", "Token signing is not configured")
	}
	now := a.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse validates a raw token and returns its claims
func (a *Auth) Parse(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, apperrors.NewAuthError("token expired")
	case err != nil:
		return nil, apperrors.NewAuthError("invalid token")
	case !token.Valid:
		return nil, apperrors.NewAuthError("invalid token")
	case claims.Subject == "":
		return nil, apperrors.NewAuthError("missing subject")
	}
	return claims, nil
}

// Authenticate rejects requests without a valid bearer token
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			ctx := context.WithValue(r.Context(), claimsKey{}, &Claims{Role: RoleAdmin})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			a.reject(w, r, apperrors.NewAuthError("missing bearer token"))
			return
		}

		claims, err := a.Parse(strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)))
		if err != nil {
			a.reject(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects authenticated requests whose role does not match
func (a *Auth) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				a.reject(w, r, apperrors.NewAuthError("missing claims"))
				return
			}
			if claims.Role != role {
				a.reject(w, r, apperrors.NewForbiddenError("role "+role+" required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Auth) reject(w http.ResponseWriter, r *http.Request, err error) {
	service.LogWithContext(r.Context(), a.logger).WithError(err).WithFields(logrus.Fields{
		service.LogFieldMethod: r.Method,
		service.LogFieldURL:    r.URL.Path,
	}).Warn("Rejected admin API request")
	WriteError(w, r, err)
}

// ClaimsFromContext returns the claims stored by Authenticate, or nil
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey{}).(*Claims)
	return claims
}

// WriteError writes the standard JSON error body with the status mapped
// from err's code
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="wabadash"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apperrors.ToHTTPResponse(err, tracing.RequestID(r.Context())))
}
