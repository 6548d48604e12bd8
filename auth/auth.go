// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/danielhkuo/works-portal/models"
)

// MinPasswordLength is the shortest password accepted on create or change.
const MinPasswordLength = 8

// NewID returns a random identifier for a database record.
func NewID() string {
	return uuid.NewString()
}

// GenerateToken creates a random URL-safe secret from byteLen random bytes.
func GenerateToken(byteLen int) (string, error) {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	// URL-safe base64 without padding
	return strings.TrimRight(base64.URLEncoding.EncodeToString(b), "="), nil
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(h), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Sign computes an HMAC-SHA256 over parts joined by "|".
// The result is deterministic for the same secret and parts.
func Sign(secret string, parts ...string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(strings.Join(parts, "|")))
	// Use URL-safe base64 and trim padding for cleaner values
	return strings.TrimRight(base64.URLEncoding.EncodeToString(h.Sum(nil)), "=")
}

// Verify checks sig against the signature of parts in constant time.
func Verify(secret, sig string, parts ...string) bool {
	expected := Sign(secret, parts...)
	return hmac.Equal([]byte(sig), []byte(expected))
}

// ContentHash returns the hex SHA-256 of parts joined by a NUL byte.
func ContentHash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}

// HashIP creates a one-way hash of an IP address for privacy
func HashIP(ip, salt string) string {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(ip))
	sum := h.Sum(nil)
	// Return first 16 hex chars (64 bits) - enough for deduplication
	return hex.EncodeToString(sum[:8])
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case models.RoleAdmin, models.RoleEngineer, models.RoleClerk,
		models.RoleCE, models.RoleCOO, models.RoleCEO:
		return true
	}
	return false
}

// IsExecutive reports whether role belongs to the approval chain.
func IsExecutive(role string) bool {
	return role == models.RoleCE || role == models.RoleCOO || role == models.RoleCEO
}

// HasRole reports whether role is in allowed.
func HasRole(role string, allowed ...string) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}
