package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mural/mural-api/internal/pkg/jwt"
	"github.com/mural/mural-api/internal/pkg/logger"
	"github.com/mural/mural-api/internal/pkg/response"
)

type contextKey string

const (
	EmailKey   contextKey = "email"
	SubjectKey contextKey = "subject"
)

// Allowlist is the set of identities permitted past the identity gate
type Allowlist map[string]struct{}

// NewAllowlist builds an allow-list; entries are compared case-insensitively
func NewAllowlist(emails []string) Allowlist {
	list := make(Allowlist, len(emails))
	for _, email := range emails {
		email = strings.ToLower(strings.TrimSpace(email))
		if email != "" {
			list[email] = struct{}{}
		}
	}
	return list
}

// Allows reports whether email is on the list
func (a Allowlist) Allows(email string) bool {
	_, ok := a[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

// RequireIdentity returns middleware that validates the identity token and
// checks its email against the allow-list
func RequireIdentity(jwtService *jwt.Service, allowed Allowlist) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := jwtService.ValidateToken(parts[1])
			if err != nil {
				if errors.Is(err, jwt.ErrExpiredToken) {
					response.Unauthorized(w, "Token expired")
				} else {
					response.Unauthorized(w, "Invalid token")
				}
				return
			}

			if !allowed.Allows(claims.Email) {
				logger.FromContext(r.Context()).Warn().
					Str("email", claims.Email).
					Str("path", r.URL.Path).
					Msg("Identity not on allow-list")
				response.Forbidden(w, "You are not allowed to manage images")
				return
			}

			ctx := context.WithValue(r.Context(), EmailKey, strings.ToLower(claims.Email))
			ctx = context.WithValue(ctx, SubjectKey, claims.Subject)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetEmail extracts the verified email from context
func GetEmail(ctx context.Context) string {
	if email, ok := ctx.Value(EmailKey).(string); ok {
		return email
	}
	return ""
}
