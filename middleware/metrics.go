// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the HTTP request collectors.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Number of HTTP requests handled.",
		}, []string{"method", "route", "status", "response_code", "user_agent"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "portal",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Time taken to handle HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status", "response_code", "user_agent"}),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

// Handler records a request count and duration per route pattern.
func (m *Metrics) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := newStatusRecorder(w)

		defer func(start time.Time) {
			code := rec.Code()
			labels := prometheus.Labels{
				"method":        r.Method,
				"route":         routePattern(r),
				"status":        fmt.Sprintf("%dXX", code/100),
				"response_code": fmt.Sprintf("%d", code),
				"user_agent":    UserAgent(r),
			}
			m.duration.With(labels).Observe(time.Since(start).Seconds())
			m.requests.With(labels).Inc()
		}(time.Now())

		next.ServeHTTP(rec, r)
	})
}

// routePattern returns the matched chi pattern so ids do not explode the
// label space.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
