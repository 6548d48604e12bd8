// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db handles connections, schema migrations and query helpers.

# Connecting

Open selects the driver for the dialect (lib/pq for postgres,
modernc.org/sqlite for sqlite) and pings the server:

	store, err := db.Open(ctx, db.DialectPostgres, cfg.DatabaseURL)

Store.SQL is a squirrel statement builder whose placeholder format matches
the dialect, so the same query code runs on both.

# Migrations

Numbered scripts live in migrations/ and are embedded in the binary:

	err := db.NewMigrator(store, log).Up(ctx, db.Migrations())

Applied versions are recorded in schema_migrations; re-running Up is a no-op.

# Tables

  - regions: district > zone > ward hierarchy
  - users, sessions: accounts, roles and issued session tokens
  - work_requests, approvals: requests and their CE/COO/CEO decisions
  - media, media_uploads: stored files and in-flight chunked uploads
  - notifications: per-user inbox
  - efile_categories, efile_statuses, efile_templates, efile_sequences:
    e-filing reference data
  - efiles, efile_movements, efile_signatures: files, their routing
    history and signatures

# Query Helpers

	var u models.User
	err := db.Get(ctx, store.DB, &u, store.SQL.Select("*").From("users").Where(sq.Eq{"id": id}))

Get, Select, Exec, ExecOne and Count accept either the pool or a *sqlx.Tx.
*/
package db
