// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package middleware

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/danielhkuo/works-portal/errs"
	"github.com/danielhkuo/works-portal/models"
)

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("created"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/work-requests", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "created", w.Body.String())

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/work-requests", fields["path"])
	assert.Equal(t, int64(http.StatusCreated), fields["status"])
	assert.Equal(t, int64(7), fields["bytes"])
	assert.Equal(t, "Firefox", fields["user_agent"])
}

func TestRequestLoggerPreservesResponse(t *testing.T) {
	testCases := []struct {
		name       string
		statusCode int
		body       string
	}{
		{"OK", http.StatusOK, "ok"},
		{"Created", http.StatusCreated, `{"id":"123"}`},
		{"BadRequest", http.StatusBadRequest, `{"error":"bad request"}`},
		{"InternalError", http.StatusInternalServerError, "error"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			handler := RequestLogger(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				w.Write([]byte(tc.body))
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/test", nil))

			assert.Equal(t, tc.statusCode, w.Code)
			assert.Equal(t, tc.body, w.Body.String())
		})
	}
}

func TestError(t *testing.T) {
	testCases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"not found", errs.NotFound("Work request not found"), http.StatusNotFound, "Work request not found"},
		{"conflict", errs.Conflict("already approved"), http.StatusConflict, "already approved"},
		{"invalid", errs.Invalid("title is required"), http.StatusBadRequest, "title is required"},
		{"forbidden", errs.Forbidden("nope"), http.StatusForbidden, "nope"},
		{"too large", errs.New(errs.ETooLarge, "too big"), http.StatusRequestEntityTooLarge, "too big"},
		{"internal hides detail", errors.New("pq: connection refused"), http.StatusInternalServerError, "An internal error has occurred."},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			Error(w, zap.NewNop(), tc.err)

			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Contains(t, w.Body.String(), tc.message)
			assert.NotContains(t, w.Body.String(), "connection refused")
		})
	}
}

func TestParseJSONBody(t *testing.T) {
	var req models.LoginRequest
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"username":"alice","password":"pw"}`))
	require.NoError(t, ParseJSONBody(httptest.NewRecorder(), r, &req))
	assert.Equal(t, "alice", req.Username)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`))
	err := ParseJSONBody(httptest.NewRecorder(), r, &req)
	assert.Equal(t, errs.EInvalid, errs.ErrorCode(err))

	big := `{"username":"` + strings.Repeat("a", MaxJSONBody) + `"}`
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	err = ParseJSONBody(httptest.NewRecorder(), r, &req)
	assert.Equal(t, errs.ETooLarge, errs.ErrorCode(err))
}

func TestPagination(t *testing.T) {
	testCases := []struct {
		query   string
		limit   int
		offset  int
		wantErr bool
	}{
		{"", 50, 0, false},
		{"?limit=10&offset=20", 10, 20, false},
		{"?limit=1000", 200, 0, false},
		{"?limit=0", 0, 0, true},
		{"?offset=-1", 0, 0, true},
		{"?limit=abc", 0, 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.query, func(t *testing.T) {
			limit, offset, err := Pagination(httptest.NewRequest(http.MethodGet, "/items"+tc.query, nil))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.limit, limit)
			assert.Equal(t, tc.offset, offset)
		})
	}
}

func TestCORS(t *testing.T) {
	called := false
	handler := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/work-requests", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.False(t, called, "preflight should not reach the handler")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/work-requests", nil))
	assert.True(t, called)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

type fakeSessions struct {
	user models.User
}

func (f fakeSessions) Validate(_ context.Context, token string) (models.User, string, error) {
	if token != "good" {
		return models.User{}, "", errs.New(errs.EUnauthorized, "invalid or expired session")
	}
	return f.user, "session-1", nil
}

func TestAuthenticateAndRequireRole(t *testing.T) {
	sessions := fakeSessions{user: models.User{ID: "u1", Role: models.RoleClerk, Active: true}}

	var seen models.User
	var seenSession string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CurrentUser(r)
		seenSession = SessionID(r)
		w.WriteHeader(http.StatusNoContent)
	})

	testCases := []struct {
		name   string
		roles  []string
		setup  func(r *http.Request)
		status int
	}{
		{"no token", []string{models.RoleClerk}, func(r *http.Request) {}, http.StatusUnauthorized},
		{"bad token", []string{models.RoleClerk}, func(r *http.Request) { r.Header.Set("Authorization", "Bearer bad") }, http.StatusUnauthorized},
		{"wrong scheme", []string{models.RoleClerk}, func(r *http.Request) { r.Header.Set("Authorization", "Basic good") }, http.StatusUnauthorized},
		{"bearer ok", []string{models.RoleClerk}, func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, http.StatusNoContent},
		{"cookie ok", []string{models.RoleClerk}, func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "good"}) }, http.StatusNoContent},
		{"role denied", []string{models.RoleAdmin}, func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, http.StatusForbidden},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			handler := Authenticate(sessions, zap.NewNop())(RequireRole(tc.roles...)(inner))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tc.setup(req)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}

	assert.Equal(t, "u1", seen.ID)
	assert.Equal(t, "session-1", seenSession)
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "buckets are per IP")

	now = now.Add(30 * time.Second)
	assert.True(t, l.Allow("10.0.0.1"), "one token refills every 30s at 2/min")

	now = now.Add(time.Hour)
	l.Allow("10.0.0.3")
	assert.Len(t, l.clients, 1, "idle buckets are dropped")

	handler := NewRateLimiter(1).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	r := chi.NewRouter()
	r.Use(m.Handler)
	r.Get("/work-requests/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/work-requests/"+id, nil))
	}

	got := testutil.ToFloat64(m.requests.With(prometheus.Labels{
		"method":        http.MethodGet,
		"route":         "/work-requests/{id}",
		"status":        "4XX",
		"response_code": "404",
		"user_agent":    "unknown",
	}))
	assert.Equal(t, float64(2), got)
}

func TestGetClientIP(t *testing.T) {
	testCases := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expectedIP string
	}{
		{"RemoteAddr with port", nil, "192.168.1.50:54321", "192.168.1.50"},
		{"RemoteAddr without port", nil, "192.168.1.50", "192.168.1.50"},
		{"IPv6 RemoteAddr with port", nil, "[::1]:12345", "::1"},
		{"X-Forwarded-For is ignored", map[string]string{"X-Forwarded-For": "192.168.1.100"}, "10.0.0.1:12345", "10.0.0.1"},
		{"X-Real-IP is ignored", map[string]string{"X-Real-IP": "203.0.113.50"}, "10.0.0.1:12345", "10.0.0.1"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tc.expectedIP, GetClientIP(req))
		})
	}
}

func TestRealIP(t *testing.T) {
	_, proxies, err := net.ParseCIDR("10.0.0.0/8")
	require.NoError(t, err)

	var seen string
	handler := RealIP([]*net.IPNet{proxies})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetClientIP(r)
	}))

	testCases := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expectedIP string
	}{
		{"trusted proxy X-Forwarded-For", map[string]string{"X-Forwarded-For": "203.0.113.195, 70.41.3.18"}, "10.1.2.3:8080", "203.0.113.195"},
		{"trusted proxy X-Real-IP", map[string]string{"X-Real-IP": "203.0.113.50"}, "10.1.2.3:8080", "203.0.113.50"},
		{"trusted proxy without headers", nil, "10.1.2.3:8080", "10.1.2.3"},
		{"untrusted peer X-Forwarded-For", map[string]string{"X-Forwarded-For": "203.0.113.195"}, "198.51.100.7:4444", "198.51.100.7"},
		{"untrusted peer X-Real-IP", map[string]string{"X-Real-IP": "203.0.113.50"}, "198.51.100.7:4444", "198.51.100.7"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tc.expectedIP, seen)
		})
	}
}

func TestRateLimiterIgnoresForwardedHeaders(t *testing.T) {
	limited := RealIP(nil)(NewRateLimiter(2).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	codes := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "198.51.100.7:4444"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		w := httptest.NewRecorder()
		limited.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{204, 204, 429, 429, 429}, codes)
}
