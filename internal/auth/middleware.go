package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/roc-passaporte/backend-passaporte/internal/common"
)

var errNoToken = errors.New("auth: token missing")

// Middleware resolves the access token into a passport owner on the request
// context. Tokens come from the Authorization header or, for browser
// clients, the access cookie.
type Middleware struct {
	Service      *Service
	AccessCookie string
}

// Authenticate attaches the owner when a valid token is present and lets
// anonymous requests through untouched.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.resolveOwner(r)
		if err != nil && !errors.Is(err, errNoToken) {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects the request unless a valid token resolves to an owner.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.resolveOwner(r)
		if err != nil {
			var appErr *common.AppError
			if errors.As(err, &appErr) && !errors.Is(err, errNoToken) {
				status := appErr.HTTPStatus
				if status == 0 {
					status = http.StatusUnauthorized
				}
				common.JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
				return
			}
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m Middleware) resolveOwner(r *http.Request) (context.Context, error) {
	if m.Service == nil {
		return r.Context(), errors.New("auth: service not configured")
	}
	token := m.extractToken(r)
	if token == "" {
		return r.Context(), errNoToken
	}
	ownerID, err := m.Service.ParseAccessToken(token)
	if err != nil {
		return r.Context(), err
	}
	return common.WithUserID(r.Context(), ownerID), nil
}

func (m Middleware) extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if m.AccessCookie != "" {
		if cookie, err := r.Cookie(m.AccessCookie); err == nil {
			return strings.TrimSpace(cookie.Value)
		}
	}
	return ""
}
