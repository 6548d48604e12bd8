// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package middleware

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/middleware"
	ua "github.com/mileusna/useragent"
	"go.uber.org/zap"

	"github.com/danielhkuo/works-portal/errs"
	"github.com/danielhkuo/works-portal/models"
)

// MaxJSONBody bounds request bodies read by ParseJSONBody.
const MaxJSONBody = 1 << 20

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w}
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Code() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// Flush lets streaming handlers push partial responses.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// RequestLogger logs every request once it completes.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.Code()),
				zap.Int("bytes", rec.bytes),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote", GetClientIP(r)),
				zap.String("user_agent", UserAgent(r)),
			}
			if u, ok := UserFromContext(r.Context()); ok {
				fields = append(fields, zap.String("user_id", u.ID))
			}
			if rec.Code() >= http.StatusInternalServerError {
				log.Warn("request completed", fields...)
				return
			}
			log.Info("request completed", fields...)
		})
	}
}

// UserAgent returns the browser name from the User-Agent header.
func UserAgent(r *http.Request) string {
	header := r.Header.Get("User-Agent")
	if header == "" {
		return "unknown"
	}
	if name := ua.Parse(header).Name; name != "" {
		return name
	}
	return "unknown"
}

// JSONResponse writes a JSON response
func JSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// The status is already written; an encode failure can only be dropped.
	_ = json.NewEncoder(w).Encode(data)
}

// ErrorResponse writes a JSON error response
func ErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	JSONResponse(w, statusCode, models.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	})
}

// Error writes err as a JSON error response. Internal errors are logged and
// their details withheld from the caller.
func Error(w http.ResponseWriter, log *zap.Logger, err error) {
	code := errs.ErrorCode(err)
	status := StatusFor(code)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("op", errs.ErrorOp(err)), zap.Error(err))
	}
	ErrorResponse(w, status, errs.ErrorMessage(err))
}

// StatusFor maps an error code to an HTTP status.
func StatusFor(code string) int {
	switch code {
	case errs.ENotFound:
		return http.StatusNotFound
	case errs.EConflict:
		return http.StatusConflict
	case errs.EInvalid:
		return http.StatusBadRequest
	case errs.EForbidden:
		return http.StatusForbidden
	case errs.EUnauthorized:
		return http.StatusUnauthorized
	case errs.ETooLarge:
		return http.StatusRequestEntityTooLarge
	case errs.ETooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ParseJSONBody parses the request body into the given struct
func ParseJSONBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxJSONBody))
	if err := dec.Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return errs.New(errs.ETooLarge, "request body too large")
		}
		return errs.Invalid("Invalid JSON")
	}
	return nil
}

// Pagination reads limit and offset query parameters. limit defaults to 50
// and is capped at 200.
func Pagination(r *http.Request) (limit, offset int, err error) {
	limit, offset = 50, 0
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit <= 0 {
			return 0, 0, errs.Invalid("limit must be a positive integer")
		}
		if limit > 200 {
			limit = 200
		}
	}
	if s := r.URL.Query().Get("offset"); s != "" {
		offset, err = strconv.Atoi(s)
		if err != nil || offset < 0 {
			return 0, 0, errs.Invalid("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

// CORS middleware allows cross-origin requests from the frontend
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RealIP rewrites r.RemoteAddr from X-Real-IP or X-Forwarded-For, but only
// when the connecting peer falls inside one of trusted. Other peers keep
// their socket address whatever headers they send.
func RealIP(trusted []*net.IPNet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		forwarded := chimw.RealIP(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if peer := net.ParseIP(GetClientIP(r)); peer != nil {
				for _, n := range trusted {
					if n.Contains(peer) {
						forwarded.ServeHTTP(w, r)
						return
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetClientIP returns the host part of r.RemoteAddr. Forwarding headers are
// applied earlier by RealIP for trusted proxies only.
func GetClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
