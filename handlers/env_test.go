// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/danielhkuo/works-portal/auth"
	"github.com/danielhkuo/works-portal/cliparse"
	"github.com/danielhkuo/works-portal/db"
	"github.com/danielhkuo/works-portal/handlers"
	"github.com/danielhkuo/works-portal/media"
	"github.com/danielhkuo/works-portal/models"
	"github.com/danielhkuo/works-portal/router"
	"github.com/danielhkuo/works-portal/testutil"
)

// pngBytes is a minimal body that sniffs as image/png.
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

// mp4Bytes returns n bytes that sniff as an MP4 container.
func mp4Bytes(n int) []byte {
	b := make([]byte, n)
	copy(b, "\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom")
	for i := 24; i < n; i++ {
		b[i] = byte(i)
	}
	return b
}

type env struct {
	t        *testing.T
	store    *db.Store
	cfg      cliparse.Config
	sessions *auth.Sessions
	files    *media.Store
	router   http.Handler
}

func newEnv(t *testing.T) *env {
	t.Helper()

	store := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig(t)
	files, err := media.NewStore(cfg.MediaDir, media.Limits{
		MaxImage: cfg.MaxImageSize,
		MaxVideo: cfg.MaxVideoSize,
		Chunk:    cfg.ChunkSize,
	})
	require.NoError(t, err)

	return &env{
		t:        t,
		store:    store,
		cfg:      cfg,
		sessions: auth.NewSessions(store, cfg.SessionSecret, cfg.SessionTTL),
		files:    files,
		router:   router.NewRouter(store, cfg, zap.NewNop(), files),
	}
}

// user creates a user and returns it with a session token.
func (e *env) user(username, role string, regionID *string) (models.User, string) {
	e.t.Helper()
	u := testutil.CreateTestUser(e.t, e.store, username, role, regionID)
	return u, testutil.Login(e.t, e.sessions, u)
}

func (e *env) do(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	e.t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, testutil.MakeRequest(method, path, body, token))
	return w
}

// raw sends body unencoded.
func (e *env) raw(method, path string, body []byte, token string) *httptest.ResponseRecorder {
	e.t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// upload posts a multipart media upload.
func (e *env) upload(token, filename string, content []byte, fields map[string]string) *httptest.ResponseRecorder {
	e.t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(e.t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(e.t, err)
	_, err = io.Copy(part, bytes.NewReader(content))
	require.NoError(e.t, err)
	require.NoError(e.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/media", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// notifications returns the notifications of userID, newest first.
func (e *env) notifications(userID string) []models.Notification {
	e.t.Helper()
	var out []models.Notification
	require.NoError(e.t, db.Select(context.Background(), e.store.DB, &out,
		e.store.SQL.Select("*").From("notifications").Where(sq.Eq{"user_id": userID}).OrderBy("created_at DESC")))
	return out
}

// mediaHandler builds a handler sharing the env's stores, for calls that
// have no route.
func (e *env) mediaHandler() *handlers.MediaHandler {
	return handlers.NewMediaHandler(e.store, e.cfg, zap.NewNop(), e.files)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func ptr[T any](v T) *T {
	return &v
}
