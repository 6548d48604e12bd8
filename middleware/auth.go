// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/danielhkuo/works-portal/auth"
	"github.com/danielhkuo/works-portal/models"
)

// SessionCookie is the cookie name browsers carry the session token in.
const SessionCookie = "session"

type ctxKey int

const (
	userKey ctxKey = iota
	sessionKey
)

// SessionValidator resolves a session token to its user.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (models.User, string, error)
}

var _ SessionValidator = (*auth.Sessions)(nil)

// Authenticate rejects requests without a valid session and stores the
// session's user in the request context.
func Authenticate(sessions SessionValidator, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				ErrorResponse(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			user, sessionID, err := sessions.Validate(r.Context(), token)
			if err != nil {
				Error(w, log, err)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			ctx = context.WithValue(ctx, sessionKey, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole allows only users whose role is in roles. It must run after
// Authenticate.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				ErrorResponse(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !auth.HasRole(user.Role, roles...) {
				ErrorResponse(w, http.StatusForbidden, "Your role cannot perform this action")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken returns the session token from the Authorization header or,
// failing that, the session cookie.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// UserFromContext returns the authenticated user.
func UserFromContext(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(userKey).(models.User)
	return u, ok
}

// CurrentUser returns the authenticated user of r. Handlers behind
// Authenticate can rely on it being set.
func CurrentUser(r *http.Request) models.User {
	u, _ := UserFromContext(r.Context())
	return u
}

// SessionID returns the id of the session that authenticated r.
func SessionID(r *http.Request) string {
	id, _ := r.Context().Value(sessionKey).(string)
	return id
}

// WithUser returns ctx carrying user; used by tests and internal callers.
func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}
