// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), DialectSQLite, filepath.Join(t.TempDir(), "portal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMigratorUp(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	m := NewMigrator(store, zap.NewNop())

	require.NoError(t, m.Up(ctx, Migrations()))
	// second run is a no-op
	require.NoError(t, m.Up(ctx, Migrations()))

	v, err := m.currentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	n, err := Count(ctx, store.DB, store.SQL.Select("COUNT(*)").From("users"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMigratorAppliesInOrder(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	m := NewMigrator(store, zap.NewNop())

	source := fstest.MapFS{
		"0002_add_column.sql": {Data: []byte("ALTER TABLE widgets ADD COLUMN color TEXT;")},
		"0001_widgets.sql":    {Data: []byte("-- widgets\nCREATE TABLE widgets (id TEXT PRIMARY KEY);")},
	}
	require.NoError(t, m.Up(ctx, source))

	_, err := store.DB.ExecContext(ctx, "INSERT INTO widgets (id, color) VALUES ('w1', 'red')")
	require.NoError(t, err)

	v, err := m.currentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestMigratorRejectsBadName(t *testing.T) {
	store := openTestStore(t)
	m := NewMigrator(store, zap.NewNop())
	err := m.Up(context.Background(), fstest.MapFS{"init.sql": {Data: []byte("SELECT 1;")}})
	assert.Error(t, err)
}

func TestSplitStatements(t *testing.T) {
	script := `
-- comment; with semicolon
CREATE TABLE a (id TEXT);

CREATE INDEX i ON a(id);
`
	stmts := splitStatements(script)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (id TEXT)", stmts[0])
	assert.Equal(t, "CREATE INDEX i ON a(id)", stmts[1])
}

func TestWithTxAndHelpers(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	require.NoError(t, NewMigrator(store, zap.NewNop()).Up(ctx, Migrations()))

	now := time.Now().UTC()
	insert := store.SQL.Insert("regions").
		Columns("id", "name", "level", "created_at").
		Values("r1", "North", "district", now)

	// rolled back on error
	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := Exec(ctx, tx, insert); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := Count(ctx, store.DB, store.SQL.Select("COUNT(*)").From("regions"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// committed on success
	require.NoError(t, store.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := Exec(ctx, tx, insert)
		return err
	}))

	var name string
	require.NoError(t, Get(ctx, store.DB, &name, store.SQL.Select("name").From("regions").Where(sq.Eq{"id": "r1"})))
	assert.Equal(t, "North", name)

	// duplicate key
	_, err = Exec(ctx, store.DB, insert)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	// ExecOne on missing row
	err = ExecOne(ctx, store.DB, store.SQL.Update("regions").Set("name", "x").Where(sq.Eq{"id": "missing"}))
	assert.True(t, IsNotFound(err))
}
