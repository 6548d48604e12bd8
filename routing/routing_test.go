// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/danielhkuo/works-portal/models"
)

func strp(s string) *string { return &s }

// north
// ├── north-zone-a
// │   ├── ward-1
// │   └── ward-2
// └── north-zone-b
// south
func testTree() *Tree {
	return NewTree([]models.Region{
		{ID: "north", Level: models.LevelDistrict},
		{ID: "north-zone-a", Level: models.LevelZone, ParentID: strp("north")},
		{ID: "north-zone-b", Level: models.LevelZone, ParentID: strp("north")},
		{ID: "ward-1", Level: models.LevelWard, ParentID: strp("north-zone-a")},
		{ID: "ward-2", Level: models.LevelWard, ParentID: strp("north-zone-a")},
		{ID: "south", Level: models.LevelDistrict},
	})
}

func user(id, role string, region *string) models.User {
	return models.User{ID: id, FullName: id, Role: role, RegionID: region, Active: true}
}

func TestSameBranch(t *testing.T) {
	tree := testTree()

	assert.True(t, tree.SameBranch("ward-1", "ward-1"))
	assert.True(t, tree.SameBranch("ward-1", "north"))
	assert.True(t, tree.SameBranch("north", "ward-2"))
	assert.False(t, tree.SameBranch("ward-1", "ward-2"))
	assert.False(t, tree.SameBranch("ward-1", "north-zone-b"))
	assert.False(t, tree.SameBranch("north", "south"))
	assert.False(t, tree.SameBranch("ward-1", "unknown"))
}

func TestTreeCycleTerminates(t *testing.T) {
	tree := NewTree([]models.Region{
		{ID: "a", ParentID: strp("b")},
		{ID: "b", ParentID: strp("a")},
	})
	assert.False(t, tree.IsAncestorOrSelf("c", "a"))
}

func TestAllowed(t *testing.T) {
	tree := testTree()

	ward1Clerk := user("ward1-clerk", models.RoleClerk, strp("ward-1"))
	tests := []struct {
		name      string
		sender    models.User
		recipient models.User
		want      bool
	}{
		{name: "same ward", sender: ward1Clerk, recipient: user("ward1-eng", models.RoleEngineer, strp("ward-1")), want: true},
		{name: "up to zone", sender: ward1Clerk, recipient: user("zone-a-eng", models.RoleEngineer, strp("north-zone-a")), want: true},
		{name: "up to district", sender: ward1Clerk, recipient: user("north-clerk", models.RoleClerk, strp("north")), want: true},
		{name: "down from district", sender: user("north-clerk", models.RoleClerk, strp("north")), recipient: ward1Clerk, want: true},
		{name: "sibling ward", sender: ward1Clerk, recipient: user("ward2-eng", models.RoleEngineer, strp("ward-2")), want: false},
		{name: "other district", sender: ward1Clerk, recipient: user("south-eng", models.RoleEngineer, strp("south")), want: false},
		{name: "executive reachable", sender: ward1Clerk, recipient: user("ce", models.RoleCE, nil), want: true},
		{name: "executive reaches anyone", sender: user("coo", models.RoleCOO, nil), recipient: user("south-eng", models.RoleEngineer, strp("south")), want: true},
		{name: "admin reaches anyone", sender: user("admin", models.RoleAdmin, nil), recipient: user("south-eng", models.RoleEngineer, strp("south")), want: true},
		{name: "unassigned to unassigned", sender: user("hq-clerk", models.RoleClerk, nil), recipient: user("hq-eng", models.RoleEngineer, nil), want: true},
		{name: "unassigned to regional", sender: user("hq-clerk", models.RoleClerk, nil), recipient: ward1Clerk, want: false},
		{name: "regional to unassigned", sender: ward1Clerk, recipient: user("hq-eng", models.RoleEngineer, nil), want: false},
		{name: "not self", sender: ward1Clerk, recipient: ward1Clerk, want: false},
		{name: "inactive", sender: ward1Clerk, recipient: models.User{ID: "gone", Role: models.RoleCE}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Allowed(tt.sender, tt.recipient, tree))
		})
	}
}

func TestRecipientsOrdering(t *testing.T) {
	tree := testTree()
	sender := user("sender", models.RoleClerk, strp("ward-1"))

	candidates := []models.User{
		user("zeta", models.RoleEngineer, strp("ward-1")),
		user("alpha", models.RoleEngineer, strp("north")),
		user("ce", models.RoleCE, nil),
		user("ceo", models.RoleCEO, nil),
		user("stranger", models.RoleEngineer, strp("south")),
		sender,
	}

	got := Recipients(sender, candidates, tree)
	ids := make([]string, len(got))
	for i, u := range got {
		ids[i] = u.ID
	}
	assert.Equal(t, []string{"ceo", "ce", "alpha", "zeta"}, ids)
}
