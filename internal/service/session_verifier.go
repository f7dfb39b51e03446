package service

import (
	"context"
	"fmt"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
	"github.com/allensfl/coachingspace-app-sub001/internal/port"

	"github.com/golang-jwt/jwt/v5"
)

// ============================================================
// Admin session verification
// ============================================================

// SupabaseClaims are the claims of a Supabase Auth access token.
type SupabaseClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier checks Supabase access tokens locally against the project's
// JWT secret.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for HS256 tokens signed with secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify returns the token's subject.
func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SupabaseClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*SupabaseClaims)
	if !ok || !token.Valid {
		return "", &domain.ErrUnauthorized{Message: "invalid token"}
	}
	if claims.Subject == "" {
		return "", &domain.ErrUnauthorized{Message: "token has no subject"}
	}
	if claims.Role == "anon" {
		return "", &domain.ErrForbidden{Action: "anonymous key cannot access the admin API"}
	}
	return claims.Subject, nil
}

// NewSessionVerifier picks how admin tokens are checked: locally when a JWT
// secret is configured, otherwise against remote. It returns nil when
// neither is available, which leaves the admin API open.
func NewSessionVerifier(jwtSecret string, remote port.SessionVerifier) port.SessionVerifier {
	if jwtSecret != "" {
		return NewJWTVerifier(jwtSecret)
	}
	return remote
}
