// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Logging

	r.Use(middleware.RequestLogger(log))

Logs method, path, status, bytes, duration, client IP, browser name and the
authenticated user once the request completes.

# Authentication

	r.Use(middleware.Authenticate(sessions, log))
	r.With(middleware.RequireRole(models.RoleAdmin)).Post("/users", h.CreateUser)

Tokens come from "Authorization: Bearer <token>" or the session cookie.
Handlers read the caller with middleware.CurrentUser(r).

# Errors

	middleware.Error(w, log, err)

maps an errs code to an HTTP status and writes {"error", "message"}.
Internal errors are logged and replaced with a generic message.

# Metrics and Rate Limiting

Metrics.Handler counts requests per chi route pattern; RateLimiter.Handler
throttles per client IP (used on login).

# JSON Helpers

	middleware.JSONResponse(w, http.StatusOK, data)
	middleware.ErrorResponse(w, http.StatusBadRequest, "message")
	err := middleware.ParseJSONBody(w, r, &req)

# Client IP Extraction

	r.Use(middleware.RealIP(cfg.TrustedProxies)) // forwarding headers from trusted proxies only
	ip := middleware.GetClientIP(r)              // host part of RemoteAddr
*/
package middleware
