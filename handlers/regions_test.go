// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/works-portal/models"
	"github.com/danielhkuo/works-portal/testutil"
)

func TestRegionHierarchy(t *testing.T) {
	e := newEnv(t)
	_, adminToken := e.user("root", models.RoleAdmin, nil)
	_, engToken := e.user("eng", models.RoleEngineer, nil)

	create := func(req models.CreateRegionRequest) models.Region {
		t.Helper()
		w := e.do(http.MethodPost, "/regions", req, adminToken)
		testutil.AssertStatus(t, w, http.StatusCreated)
		return decode[models.Region](t, w)
	}

	district := create(models.CreateRegionRequest{Name: "Central", Level: models.LevelDistrict})
	zone := create(models.CreateRegionRequest{Name: "Zone A", Level: models.LevelZone, ParentID: &district.ID})
	create(models.CreateRegionRequest{Name: "Ward 1", Level: models.LevelWard, ParentID: &zone.ID})

	bad := []models.CreateRegionRequest{
		{Level: models.LevelDistrict},
		{Name: "Nowhere", Level: "city"},
		{Name: "Floating", Level: models.LevelDistrict, ParentID: &zone.ID},
		{Name: "Orphan", Level: models.LevelZone},
		{Name: "Skip", Level: models.LevelWard, ParentID: &district.ID},
		{Name: "Ghost", Level: models.LevelZone, ParentID: ptr("missing")},
	}
	for _, req := range bad {
		w := e.do(http.MethodPost, "/regions", req, adminToken)
		testutil.AssertStatus(t, w, http.StatusBadRequest)
	}

	testutil.AssertStatus(t, e.do(http.MethodPost, "/regions",
		models.CreateRegionRequest{Name: "East", Level: models.LevelDistrict}, engToken), http.StatusForbidden)

	w := e.do(http.MethodGet, "/regions", nil, engToken)
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.Len(t, decode[[]models.Region](t, w), 3)

	w = e.do(http.MethodGet, "/regions?level=zone", nil, engToken)
	zones := decode[[]models.Region](t, w)
	require.Len(t, zones, 1)
	assert.Equal(t, zone.ID, zones[0].ID)
}

func TestDeleteRegion(t *testing.T) {
	e := newEnv(t)
	_, adminToken := e.user("root", models.RoleAdmin, nil)

	district := testutil.CreateTestRegion(t, e.store, "Central", models.LevelDistrict, nil)
	zone := testutil.CreateTestRegion(t, e.store, "Zone A", models.LevelZone, &district.ID)
	ward := testutil.CreateTestRegion(t, e.store, "Ward 1", models.LevelWard, &zone.ID)
	u := testutil.CreateTestUser(t, e.store, "clerk", models.RoleClerk, &ward.ID)

	// Regions with children or members stay.
	testutil.AssertStatus(t, e.do(http.MethodDelete, "/regions/"+zone.ID, nil, adminToken), http.StatusConflict)
	testutil.AssertStatus(t, e.do(http.MethodDelete, "/regions/"+ward.ID, nil, adminToken), http.StatusConflict)

	w := e.do(http.MethodPatch, "/users/"+u.ID, models.UpdateUserRequest{RegionID: ptr("")}, adminToken)
	testutil.AssertStatus(t, w, http.StatusOK)

	testutil.AssertStatus(t, e.do(http.MethodDelete, "/regions/"+ward.ID, nil, adminToken), http.StatusNoContent)
	testutil.AssertStatus(t, e.do(http.MethodDelete, "/regions/"+zone.ID, nil, adminToken), http.StatusNoContent)
	testutil.AssertStatus(t, e.do(http.MethodDelete, "/regions/"+zone.ID, nil, adminToken), http.StatusNotFound)
}
