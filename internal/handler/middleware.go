package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/allensfl/coachingspace-app-sub001/internal/port"

	"go.uber.org/zap"
)

type contextKey string

const userIDKey contextKey = "userID"

// PortalSessionHeader carries the unlocked portal session id.
const PortalSessionHeader = "X-Portal-Session"

// AdminAuthMiddleware validates Bearer tokens with verifier and injects the
// user id into the context. A nil verifier runs the admin API open, as
// ownerID; that is the single-user local setup.
func AdminAuthMiddleware(verifier port.SessionVerifier, ownerID string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, ownerID)))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("auth: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("auth: invalid token format",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			userID, err := verifier.Verify(r.Context(), parts[1])
			if err != nil {
				logger.Warn("auth: token rejected",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				handleServiceError(w, err, logger)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext extracts the authenticated admin user id from context.
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}
