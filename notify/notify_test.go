// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package notify_test

import (
	"context"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/works-portal/db"
	"github.com/danielhkuo/works-portal/models"
	"github.com/danielhkuo/works-portal/notify"
	"github.com/danielhkuo/works-portal/testutil"
)

func TestSend(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	actor := testutil.CreateTestUser(t, store, "actor", models.RoleCE, nil)
	alice := testutil.CreateTestUser(t, store, "alice", models.RoleEngineer, nil)
	bob := testutil.CreateTestUser(t, store, "bob", models.RoleEngineer, nil)

	msg := notify.Message{Kind: notify.KindWorkRequestApproved, Title: "Approved", RefType: models.OwnerWorkRequest, RefID: "wr-1"}
	err := notify.Send(ctx, store, store.DB, []string{alice.ID, bob.ID, alice.ID, actor.ID, ""}, actor.ID, msg)
	require.NoError(t, err)

	var got []models.Notification
	require.NoError(t, db.Select(ctx, store.DB, &got, store.SQL.Select("*").From("notifications").OrderBy("user_id")))
	require.Len(t, got, 2)
	for _, n := range got {
		assert.NotEqual(t, actor.ID, n.UserID)
		assert.Equal(t, "wr-1", n.RefID)
		assert.Nil(t, n.ReadAt)
	}

	// nobody left to notify
	require.NoError(t, notify.Send(ctx, store, store.DB, []string{actor.ID}, actor.ID, msg))
}

func TestActiveUsersWithRole(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	ce := testutil.CreateTestUser(t, store, "ce", models.RoleCE, nil)
	coo := testutil.CreateTestUser(t, store, "coo", models.RoleCOO, nil)
	retired := testutil.CreateTestUser(t, store, "retired", models.RoleCE, nil)
	testutil.CreateTestUser(t, store, "eng", models.RoleEngineer, nil)

	_, err := db.Exec(ctx, store.DB, store.SQL.Update("users").Set("active", false).Where(sq.Eq{"id": retired.ID}))
	require.NoError(t, err)

	ids, err := notify.ActiveUsersWithRole(ctx, store, store.DB, models.RoleCE, models.RoleCOO)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ce.ID, coo.ID}, ids)
}
