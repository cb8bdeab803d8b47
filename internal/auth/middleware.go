package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ekklesia/commhub/internal/domain"
	"github.com/ekklesia/commhub/internal/pkg/httputil"
)

type ctxKey struct{}

// WithUser returns a context carrying u.
func WithUser(ctx context.Context, u *domain.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(ctx context.Context) *domain.User {
	u, _ := ctx.Value(ctxKey{}).(*domain.User)
	return u
}

// RequireAuth rejects requests without a valid bearer access token.
func (m *Manager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok {
			token, ok = strings.CutPrefix(h, "bearer ")
		}
		if !ok || strings.TrimSpace(token) == "" {
			httputil.Unauthorized(w, ErrInvalidToken.Error())
			return
		}
		u, err := m.Authenticate(r.Context(), strings.TrimSpace(token))
		switch {
		case err == nil:
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		case errors.Is(err, ErrInactiveUser):
			httputil.BadRequest(w, err.Error())
		case errors.Is(err, ErrInvalidToken):
			httputil.Unauthorized(w, err.Error())
		default:
			httputil.InternalError(w, err)
		}
	})
}
