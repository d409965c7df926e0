package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AdminClaims are the JWT claims expected on the Brikk admin API.
type AdminClaims struct {
	jwt.RegisteredClaims
	OrgID string   `json:"org_id"`
	Roles []string `json:"roles"`
}

// HasRole reports whether the token carries the role.
func (c *AdminClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// JWTValidator validates admin bearer tokens signed with a shared
// HMAC secret. Only HS256 is accepted.
type JWTValidator struct {
	secret []byte
}

// NewJWTValidator creates a validator; an empty secret yields nil, and
// the middleware then rejects everything (fail closed).
func NewJWTValidator(secret string) *JWTValidator {
	if secret == "" {
		return nil
	}
	return &JWTValidator{secret: []byte(secret)}
}

// Validate parses and validates a token string.
func (v *JWTValidator) Validate(tokenStr string) (*AdminClaims, error) {
	if v == nil {
		return nil, fmt.Errorf("validator uninitialized")
	}

	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(*jwt.Token) (interface{}, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

type claimsKey struct{}

// GetAdminClaims extracts validated admin claims from the context.
func GetAdminClaims(ctx context.Context) (*AdminClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*AdminClaims)
	return claims, ok
}

// RejectFunc writes an unauthorized response; injected by the HTTP layer
// so this package does not depend on the response envelope format.
type RejectFunc func(w http.ResponseWriter, r *http.Request, detail string)

// AdminMiddleware creates JWT bearer auth for admin endpoints.
// If validator is nil, all requests are rejected (fail closed). Tokens
// must carry a subject, an org binding, and the admin role.
func AdminMiddleware(validator *JWTValidator, reject RejectFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				reject(w, r, "missing Authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				reject(w, r, "invalid Authorization header format (expected 'Bearer <token>')")
				return
			}

			if validator == nil {
				reject(w, r, "admin authentication not configured")
				return
			}

			claims, err := validator.Validate(parts[1])
			if err != nil {
				reject(w, r, "invalid or expired token")
				return
			}
			if claims.Subject == "" {
				reject(w, r, "token subject is required")
				return
			}
			if claims.OrgID == "" {
				reject(w, r, "token org binding is required")
				return
			}
			if !claims.HasRole("admin") {
				reject(w, r, "admin role required")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
