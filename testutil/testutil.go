// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package testutil provides database, config and request helpers for tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/danielhkuo/works-portal/auth"
	"github.com/danielhkuo/works-portal/cliparse"
	"github.com/danielhkuo/works-portal/db"
	"github.com/danielhkuo/works-portal/models"
)

// TestPassword is the password of every user made by CreateTestUser.
const TestPassword = "password123"

// TestSecret signs session tokens and file signatures in tests.
const TestSecret = "test-session-secret-0123456789"

// SetupTestDB creates a fresh SQLite database file with the full schema.
func SetupTestDB(t *testing.T) *db.Store {
	t.Helper()

	store, err := db.Open(context.Background(), db.DialectSQLite, filepath.Join(t.TempDir(), "portal.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := db.NewMigrator(store, zap.NewNop()).Up(context.Background(), db.Migrations()); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return store
}

// GetTestConfig returns a standard test configuration with a private media
// directory.
func GetTestConfig(t *testing.T) cliparse.Config {
	t.Helper()
	return cliparse.Config{
		Port:                 3318,
		DatabaseURL:          "file:test.db",
		DatabaseType:         cliparse.DatabaseSQLite,
		SessionSecret:        TestSecret,
		SessionTTL:           time.Hour,
		MediaDir:             t.TempDir(),
		MaxImageSize:         1 << 20,
		MaxVideoSize:         4 << 20,
		ChunkSize:            64 << 10,
		UploadExpiry:         time.Hour,
		CEOApprovalThreshold: 1_000_000,
		PublicBaseURL:        "http://portal.test",
		LogLevel:             "debug",
		LogFormat:            "console",
		LoginRate:            1000,
	}
}

// CreateTestRegion inserts a region and returns it.
func CreateTestRegion(t *testing.T, store *db.Store, name, level string, parentID *string) models.Region {
	t.Helper()

	r := models.Region{
		ID:        auth.NewID(),
		Name:      name,
		Level:     level,
		ParentID:  parentID,
		CreatedAt: time.Now().UTC(),
	}
	ins := store.SQL.Insert("regions").
		Columns("id", "name", "level", "parent_id", "created_at").
		Values(r.ID, r.Name, r.Level, r.ParentID, r.CreatedAt)
	if _, err := db.Exec(context.Background(), store.DB, ins); err != nil {
		t.Fatalf("Failed to create test region: %v", err)
	}
	return r
}

// CreateTestUser inserts an active user with TestPassword.
func CreateTestUser(t *testing.T, store *db.Store, username, role string, regionID *string) models.User {
	t.Helper()

	hash, err := auth.HashPassword(TestPassword)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	now := time.Now().UTC()
	u := models.User{
		ID:           auth.NewID(),
		Username:     username,
		FullName:     "Test " + username,
		Email:        username + "@portal.test",
		PasswordHash: hash,
		Role:         role,
		RegionID:     regionID,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	ins := store.SQL.Insert("users").
		Columns("id", "username", "full_name", "email", "password_hash", "role", "region_id", "active", "created_at", "updated_at").
		Values(u.ID, u.Username, u.FullName, u.Email, u.PasswordHash, u.Role, u.RegionID, u.Active, u.CreatedAt, u.UpdatedAt)
	if _, err := db.Exec(context.Background(), store.DB, ins); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return u
}

// Login issues a session token for user.
func Login(t *testing.T, sessions *auth.Sessions, user models.User) string {
	t.Helper()
	token, _, err := sessions.Issue(context.Background(), user, "127.0.0.1", "go-test")
	if err != nil {
		t.Fatalf("Failed to issue session: %v", err)
	}
	return token
}

// MakeRequest creates an HTTP test request, authenticated when token is set.
func MakeRequest(method, path string, body interface{}, token string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
