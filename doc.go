// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the municipal works portal.

The portal tracks civil work requests through a CE → COO → CEO approval
chain, stores site photos and videos, and runs an e-filing office where
numbered files move between staff along the region hierarchy.

# Commands

	portal [serve]       Run the API server (default)
	portal migrate       Apply database migrations and exit
	portal seed -f FILE  Load regions, e-filing reference data and an admin

# Configuration

Settings come from flags or PORTAL_* environment variables, optionally
loaded from a .env file (--env-file):

	PORTAL_DATABASE_URL=portal.db PORTAL_SESSION_SECRET=... portal serve

Required settings:

  - PORTAL_DATABASE_URL (-d): SQLite path or PostgreSQL connection string
  - PORTAL_SESSION_SECRET: Secret for session tokens and file signatures

See package cliparse for the rest.

# Architecture

  - handlers: HTTP request handlers
  - router: chi routes, role checks and middleware chain
  - middleware: Authentication, logging, metrics, rate limiting, JSON helpers
  - workflow: Approval chain state machine
  - routing: Who an e-file may be marked to
  - efiling: File numbers, templates and signatures
  - media: On-disk media store and chunk assembly
  - notify: Notification fan-out
  - auth: Passwords, sessions and HMAC helpers
  - db: sqlx store, dialects and migrations
  - seed: YAML seed loader
  - cliparse, logger, errs, models, testutil

While serving, a janitor discards chunked uploads abandoned for longer
than the upload expiry.
*/
package main
