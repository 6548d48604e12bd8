// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-jwt/jwt/v4"
	ua "github.com/mileusna/useragent"

	"github.com/danielhkuo/works-portal/db"
	"github.com/danielhkuo/works-portal/errs"
	"github.com/danielhkuo/works-portal/models"
)

var (
	ErrInvalidCredentials = errs.New(errs.EUnauthorized, "invalid username or password")
	ErrInvalidToken       = errs.New(errs.EUnauthorized, "invalid or expired session")
)

// Claims are the JWT claims of a session token. ID holds the session row id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Sessions issues and validates session tokens. Every token is backed by a
// row in the sessions table so it can be revoked before it expires.
type Sessions struct {
	store  *db.Store
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessions(store *db.Store, secret string, ttl time.Duration) *Sessions {
	return &Sessions{
		store:  store,
		secret: []byte(secret),
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Issue records a new session for user and returns its signed token.
func (s *Sessions) Issue(ctx context.Context, user models.User, ip, userAgent string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	sessionID := NewID()

	ins := s.store.SQL.Insert("sessions").
		Columns("id", "user_id", "ip_hash", "user_agent", "created_at", "expires_at").
		Values(sessionID, user.ID, HashIP(ip, string(s.secret)), describeAgent(userAgent), now, expiresAt)
	if _, err := db.Exec(ctx, s.store.DB, ins); err != nil {
		return "", time.Time{}, errs.Wrap(err, "auth.Issue")
	}

	claims := Claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, errs.Wrap(fmt.Errorf("failed to sign token: %w", err), "auth.Issue")
	}
	return token, expiresAt, nil
}

// Validate parses token and returns the active user it belongs to along
// with the session id.
func (s *Sessions) Validate(ctx context.Context, token string) (models.User, string, error) {
	keyLookupFn := func(t *jwt.Token) (interface{}, error) {
		// Check for expected signing method.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, keyLookupFn)
	if err != nil || !parsed.Valid || claims.ID == "" || claims.Subject == "" {
		return models.User{}, "", ErrInvalidToken
	}

	var session struct {
		UserID    string     `db:"user_id"`
		ExpiresAt time.Time  `db:"expires_at"`
		RevokedAt *time.Time `db:"revoked_at"`
	}
	q := s.store.SQL.Select("user_id", "expires_at", "revoked_at").
		From("sessions").
		Where(sq.Eq{"id": claims.ID})
	if err := db.Get(ctx, s.store.DB, &session, q); err != nil {
		if db.IsNotFound(err) {
			return models.User{}, "", ErrInvalidToken
		}
		return models.User{}, "", errs.Wrap(err, "auth.Validate")
	}
	if session.UserID != claims.Subject || session.RevokedAt != nil || !s.now().Before(session.ExpiresAt) {
		return models.User{}, "", ErrInvalidToken
	}

	var user models.User
	if err := db.Get(ctx, s.store.DB, &user, s.store.SQL.Select("*").From("users").Where(sq.Eq{"id": session.UserID})); err != nil {
		if db.IsNotFound(err) {
			return models.User{}, "", ErrInvalidToken
		}
		return models.User{}, "", errs.Wrap(err, "auth.Validate")
	}
	if !user.Active {
		return models.User{}, "", ErrInvalidToken
	}

	return user, claims.ID, nil
}

// Revoke ends a single session.
func (s *Sessions) Revoke(ctx context.Context, sessionID string) error {
	upd := s.store.SQL.Update("sessions").
		Set("revoked_at", s.now()).
		Where(sq.Eq{"id": sessionID, "revoked_at": nil})
	if _, err := db.Exec(ctx, s.store.DB, upd); err != nil {
		return errs.Wrap(err, "auth.Revoke")
	}
	return nil
}

// RevokeAllForUser ends every session of userID except keep (which may be
// empty).
func (s *Sessions) RevokeAllForUser(ctx context.Context, userID, keep string) error {
	where := sq.And{sq.Eq{"user_id": userID, "revoked_at": nil}}
	if keep != "" {
		where = append(where, sq.NotEq{"id": keep})
	}
	upd := s.store.SQL.Update("sessions").Set("revoked_at", s.now()).Where(where)
	if _, err := db.Exec(ctx, s.store.DB, upd); err != nil {
		return errs.Wrap(err, "auth.RevokeAllForUser")
	}
	return nil
}

// describeAgent reduces a User-Agent header to browser and OS names.
func describeAgent(header string) string {
	if header == "" {
		return "unknown"
	}
	agent := ua.Parse(header)
	desc := strings.TrimSpace(agent.Name + " " + agent.OS)
	if desc == "" {
		return "unknown"
	}
	return desc
}
