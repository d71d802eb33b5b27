package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rohits-web03/esigned/internal/apperr"
	"github.com/rohits-web03/esigned/internal/models"
	"github.com/rohits-web03/esigned/internal/utils"
)

type contextKey string

const UserIDKey contextKey = "userID"

type Authenticator interface {
	Authenticate(token string) (uuid.UUID, error)
}

type Authorizer interface {
	Authorize(ctx context.Context, userID uuid.UUID, c models.Capability) (*models.User, error)
}

// UserID returns the authenticated user id stored by Auth.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return id, ok
}

func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, UserIDKey, id)
}

// Auth requires a valid "Authorization: Bearer <token>" header.
func Auth(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			id, err := a.Authenticate(extractBearer(r.Header.Get("Authorization")))
			if err != nil {
				utils.JSONError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
		})
	}
}

// RequireCapability must run after Auth.
func RequireCapability(az Authorizer, c models.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := UserID(r.Context())
			if !ok {
				utils.JSONError(w, apperr.Auth("Authentication required"))
				return
			}
			if _, err := az.Authorize(r.Context(), id, c); err != nil {
				utils.JSONError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearer(h string) string {
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
