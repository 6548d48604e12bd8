// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the works portal API.

# Route Registration

NewRouter returns a chi router with every endpoint mounted:

	r := router.NewRouter(store, cfg, log, files)

Every request passes through request IDs, panic recovery, CORS, request
logging and Prometheus metrics. JSON routes are gzip-compressed; media
streams and chunk bodies are not.

# Endpoints

Public:

	GET  /health      - Liveness probe
	GET  /metrics     - Prometheus metrics
	POST /auth/login  - Issue a session (rate limited per IP)

Session:

	POST /auth/logout
	GET  /auth/me
	POST /auth/password

Administration (admin):

	GET|POST /users, GET|PATCH /users/{id}, POST /users/{id}/password
	POST /regions, DELETE /regions/{id}
	POST /efiling/categories, PUT /efiling/categories/{id}
	POST /efiling/statuses, PUT /efiling/statuses/{id}

Work requests:

	POST   /work-requests                - Raise (engineer, admin)
	GET    /work-requests                - List visible requests
	GET    /work-requests/{id}           - Detail with approvals and media
	PATCH  /work-requests/{id}           - Edit (creator)
	DELETE /work-requests/{id}           - Delete
	POST   /work-requests/{id}/assign    - Assign (admin, ce)
	POST   /work-requests/{id}/approvals - Decide (ce, coo, ceo)
	POST   /work-requests/{id}/complete  - Complete
	GET    /approvals/pending            - Awaiting the caller's role

Media:

	POST   /media                              - Multipart upload
	POST   /media/uploads                      - Start a chunked upload
	PUT    /media/uploads/{id}/chunks/{index}  - Store a chunk
	POST   /media/uploads/{id}/complete        - Assemble
	GET    /media/{id}                         - Stream (supports Range)

E-filing lives under /efiling: categories, statuses, templates and files.
See package handlers for their semantics.
*/
package router
