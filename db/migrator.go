// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrations returns the embedded migration scripts.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

type Migrator struct {
	store *Store
	log   *zap.Logger
}

func NewMigrator(store *Store, log *zap.Logger) *Migrator {
	return &Migrator{store: store, log: log}
}

// Up applies every script in source whose version is newer than the last
// applied one. Scripts are named like "0002_migration_name.sql".
func (m *Migrator) Up(ctx context.Context, source fs.FS) error {
	if _, err := m.store.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	list, err := fs.ReadDir(source, ".")
	if err != nil {
		return err
	}
	// apply in version order
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name() < list[j].Name()
	})

	current, err := m.currentVersion(ctx)
	if err != nil {
		return err
	}

	pending := 0
	for _, f := range list {
		v, err := scriptVersion(f.Name())
		if err != nil {
			return err
		}
		if v > current {
			pending++
		}
	}
	if pending > 0 {
		m.log.Info("Bringing up schema migrations", zap.Int("migration_count", pending))
	}

	for _, f := range list {
		n := f.Name()
		v, err := scriptVersion(n)
		if err != nil {
			return err
		}
		if v <= current {
			continue
		}

		m.log.Debug("Executing schema migration", zap.String("migration_name", n))
		script, err := fs.ReadFile(source, n)
		if err != nil {
			return err
		}
		if err := m.apply(ctx, v, n, string(script)); err != nil {
			return fmt.Errorf("migration %s: %w", n, err)
		}
		current = v
	}

	return nil
}

func (m *Migrator) currentVersion(ctx context.Context) (int, error) {
	var v int
	q := m.store.SQL.Select("COALESCE(MAX(version), 0)").From("schema_migrations")
	if err := Get(ctx, m.store.DB, &v, q); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

func (m *Migrator) apply(ctx context.Context, version int, name, script string) error {
	tx, err := m.store.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	ins := m.store.SQL.Insert("schema_migrations").
		Columns("version", "name", "applied_at").
		Values(version, name, time.Now().UTC())
	if _, err := Exec(ctx, tx, ins); err != nil {
		return err
	}

	return tx.Commit()
}

// splitStatements breaks a script on semicolons after dropping "--" comment
// lines. Scripts must not put semicolons inside string literals.
func splitStatements(script string) []string {
	var b strings.Builder
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	var out []string
	for _, stmt := range strings.Split(b.String(), ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// extract the version number as an integer from a file named like "0002_migration_name.sql"
func scriptVersion(filename string) (int, error) {
	vString := strings.Split(filename, "_")[0]
	vInt, err := strconv.Atoi(vString)
	if err != nil {
		return 0, fmt.Errorf("invalid migration name %q: %w", filename, err)
	}
	return vInt, nil
}
