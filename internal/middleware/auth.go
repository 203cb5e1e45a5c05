package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/xiaozining525-dotcom/bk/internal/models"
	"go.uber.org/zap"
)

// SessionResolver resolves a bearer token to a user
type SessionResolver interface {
	// Method Authenticate resolves a session token to the user it belongs to.
	//
	// "token" parameter is the opaque session token taken from the Authorization header.
	//
	// Unknown or expired tokens resolve to nil user and nil error.
	// If some other error occurs, the error will be returned together with nil.
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// SessionMiddleware resolves the caller from the Authorization header and stores it in the context.
// Requests without a valid session continue anonymously.
func SessionMiddleware(resolver SessionResolver, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := resolver.Authenticate(r.Context(), token)
			if err != nil {
				logger.Error("failed to resolve session",
					zap.String("request_id", GetRequestID(r.Context())),
					zap.Error(err),
				)
				writeError(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			if user == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests that SessionMiddleware left anonymous
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetUser(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUser retrieves the authenticated user from context
func GetUser(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userKey).(*models.User)
	return user, ok && user != nil
}

// WithUser returns a copy of ctx carrying user
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header
func BearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// writeError writes the standard error envelope
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.Envelope{Success: false, Error: message})
}
