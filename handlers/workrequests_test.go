// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/works-portal/models"
	"github.com/danielhkuo/works-portal/notify"
	"github.com/danielhkuo/works-portal/testutil"
)

// approvalChain holds one user per role involved in work requests.
type approvalChain struct {
	*env
	admin, eng, ce, coo, ceo                          models.User
	adminToken, engToken, ceToken, cooToken, ceoToken string
}

func newApprovalChain(t *testing.T) *approvalChain {
	c := &approvalChain{env: newEnv(t)}
	c.admin, c.adminToken = c.user("root", models.RoleAdmin, nil)
	c.eng, c.engToken = c.user("eng", models.RoleEngineer, nil)
	c.ce, c.ceToken = c.user("ce", models.RoleCE, nil)
	c.coo, c.cooToken = c.user("coo", models.RoleCOO, nil)
	c.ceo, c.ceoToken = c.user("ceo", models.RoleCEO, nil)
	return c
}

func (c *approvalChain) create(title string, cost int64) models.WorkRequest {
	c.t.Helper()
	w := c.do(http.MethodPost, "/work-requests", models.CreateWorkRequestRequest{
		Title:         title,
		Description:   "Resurface the carriageway",
		Location:      "Station Road",
		EstimatedCost: cost,
	}, c.engToken)
	testutil.AssertStatus(c.t, w, http.StatusCreated)
	return decode[models.WorkRequest](c.t, w)
}

func (c *approvalChain) decide(token, id, decision, remarks string) *models.WorkRequest {
	c.t.Helper()
	w := c.do(http.MethodPost, "/work-requests/"+id+"/approvals", models.ApprovalRequest{Decision: decision, Remarks: remarks}, token)
	if w.Code != http.StatusOK {
		return nil
	}
	wr := decode[models.WorkRequest](c.t, w)
	return &wr
}

func kinds(ns []models.Notification) []string {
	out := make([]string, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.Kind)
	}
	return out
}

func TestCreateWorkRequest(t *testing.T) {
	c := newApprovalChain(t)

	wr := c.create("Pothole repair", 25_000)
	assert.Equal(t, models.StatusSubmitted, wr.Status)
	assert.Equal(t, models.PriorityNormal, wr.Priority)
	assert.Equal(t, c.eng.ID, wr.CreatedBy)

	ceInbox := c.notifications(c.ce.ID)
	require.Len(t, ceInbox, 1)
	assert.Equal(t, notify.KindWorkRequestPending, ceInbox[0].Kind)
	assert.Equal(t, wr.ID, ceInbox[0].RefID)
	assert.Empty(t, c.notifications(c.coo.ID))

	bad := []models.CreateWorkRequestRequest{
		{Title: "  "},
		{Title: "Bad priority", Priority: "asap"},
		{Title: "Negative", EstimatedCost: -1},
		{Title: "Bad region", RegionID: ptr("missing")},
	}
	for _, req := range bad {
		testutil.AssertStatus(t, c.do(http.MethodPost, "/work-requests", req, c.engToken), http.StatusBadRequest)
	}

	_, clerkToken := c.user("clerk", models.RoleClerk, nil)
	testutil.AssertStatus(t, c.do(http.MethodPost, "/work-requests",
		models.CreateWorkRequestRequest{Title: "Not mine to raise"}, clerkToken), http.StatusForbidden)
}

func TestCreateWorkRequestDefaultsToUserRegion(t *testing.T) {
	e := newEnv(t)
	region := testutil.CreateTestRegion(t, e.store, "Central", models.LevelDistrict, nil)
	_, token := e.user("eng", models.RoleEngineer, &region.ID)

	w := e.do(http.MethodPost, "/work-requests", models.CreateWorkRequestRequest{Title: "Drain"}, token)
	testutil.AssertStatus(t, w, http.StatusCreated)
	wr := decode[models.WorkRequest](t, w)
	require.NotNil(t, wr.RegionID)
	assert.Equal(t, region.ID, *wr.RegionID)
}

func TestApprovalWithinThreshold(t *testing.T) {
	c := newApprovalChain(t)
	wr := c.create("Street lights", 1_000_000)

	// Only the stage owner may act.
	w := c.do(http.MethodPost, "/work-requests/"+wr.ID+"/approvals", models.ApprovalRequest{Decision: models.DecisionApprove}, c.cooToken)
	testutil.AssertStatus(t, w, http.StatusForbidden)
	w = c.do(http.MethodPost, "/work-requests/"+wr.ID+"/approvals", models.ApprovalRequest{Decision: models.DecisionApprove}, c.engToken)
	testutil.AssertStatus(t, w, http.StatusForbidden)

	got := c.decide(c.ceToken, wr.ID, models.DecisionApprove, "")
	require.NotNil(t, got)
	assert.Equal(t, models.StatusCEApproved, got.Status)

	got = c.decide(c.cooToken, wr.ID, models.DecisionApprove, "Within budget")
	require.NotNil(t, got)
	assert.Equal(t, models.StatusApproved, got.Status)

	w = c.do(http.MethodPost, "/work-requests/"+wr.ID+"/approvals", models.ApprovalRequest{Decision: models.DecisionApprove}, c.ceoToken)
	testutil.AssertStatus(t, w, http.StatusConflict)

	w = c.do(http.MethodGet, "/work-requests/"+wr.ID, nil, c.engToken)
	testutil.AssertStatus(t, w, http.StatusOK)
	detail := decode[models.WorkRequestDetail](t, w)
	require.Len(t, detail.Approvals, 2)
	assert.Equal(t, "ce", detail.Approvals[0].Stage)
	assert.Equal(t, "coo", detail.Approvals[1].Stage)
	assert.Equal(t, "Within budget", detail.Approvals[1].Remarks)
	assert.Empty(t, detail.Media)

	assert.Contains(t, kinds(c.notifications(c.eng.ID)), notify.KindWorkRequestApproved)
	assert.Empty(t, c.notifications(c.ceo.ID))
}

func TestApprovalAboveThresholdNeedsCEO(t *testing.T) {
	c := newApprovalChain(t)
	wr := c.create("Flyover", 1_000_001)

	require.NotNil(t, c.decide(c.ceToken, wr.ID, models.DecisionApprove, ""))
	got := c.decide(c.cooToken, wr.ID, models.DecisionApprove, "")
	require.NotNil(t, got)
	assert.Equal(t, models.StatusCOOApproved, got.Status)

	ceoInbox := c.notifications(c.ceo.ID)
	require.Len(t, ceoInbox, 1)
	assert.Equal(t, notify.KindWorkRequestPending, ceoInbox[0].Kind)

	w := c.do(http.MethodGet, "/approvals/pending", nil, c.ceoToken)
	testutil.AssertStatus(t, w, http.StatusOK)
	pending := decode[models.ListResponse[models.WorkRequest]](t, w)
	require.Equal(t, 1, pending.Total)
	assert.Equal(t, wr.ID, pending.Items[0].ID)

	got = c.decide(c.ceoToken, wr.ID, models.DecisionApprove, "")
	require.NotNil(t, got)
	assert.Equal(t, models.StatusApproved, got.Status)

	w = c.do(http.MethodGet, "/approvals/pending", nil, c.ceoToken)
	assert.Equal(t, 0, decode[models.ListResponse[models.WorkRequest]](t, w).Total)
}

func TestRejectAndResubmit(t *testing.T) {
	c := newApprovalChain(t)
	wr := c.create("Footpath", 40_000)

	w := c.do(http.MethodPost, "/work-requests/"+wr.ID+"/approvals", models.ApprovalRequest{Decision: models.DecisionReject}, c.ceToken)
	testutil.AssertStatus(t, w, http.StatusBadRequest)
	w = c.do(http.MethodPost, "/work-requests/"+wr.ID+"/approvals", models.ApprovalRequest{Decision: "maybe"}, c.ceToken)
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	got := c.decide(c.ceToken, wr.ID, models.DecisionReject, "Needs a site survey")
	require.NotNil(t, got)
	assert.Equal(t, models.StatusRejected, got.Status)

	engInbox := c.notifications(c.eng.ID)
	require.Len(t, engInbox, 1)
	assert.Equal(t, notify.KindWorkRequestRejected, engInbox[0].Kind)
	assert.Contains(t, engInbox[0].Body, "Needs a site survey")

	// Only the creator edits; an admin can see it but not change it.
	w = c.do(http.MethodPatch, "/work-requests/"+wr.ID, models.UpdateWorkRequestRequest{Title: ptr("Hijack")}, c.adminToken)
	testutil.AssertStatus(t, w, http.StatusForbidden)

	w = c.do(http.MethodPatch, "/work-requests/"+wr.ID, models.UpdateWorkRequestRequest{
		Description:   ptr("Survey attached"),
		EstimatedCost: ptr(int64(45_000)),
	}, c.engToken)
	testutil.AssertStatus(t, w, http.StatusOK)
	updated := decode[models.WorkRequest](t, w)
	assert.Equal(t, models.StatusSubmitted, updated.Status)
	assert.Equal(t, int64(45_000), updated.EstimatedCost)
	assert.Equal(t, "Footpath", updated.Title)

	pending := 0
	for _, n := range c.notifications(c.ce.ID) {
		if n.Kind == notify.KindWorkRequestPending {
			pending++
		}
	}
	assert.Equal(t, 2, pending)

	require.NotNil(t, c.decide(c.ceToken, wr.ID, models.DecisionApprove, ""))
	w = c.do(http.MethodPatch, "/work-requests/"+wr.ID, models.UpdateWorkRequestRequest{Title: ptr("Too late")}, c.engToken)
	testutil.AssertStatus(t, w, http.StatusConflict)
}

func TestAssignAndComplete(t *testing.T) {
	c := newApprovalChain(t)
	field, fieldToken := c.user("field", models.RoleEngineer, nil)
	clerk, _ := c.user("clerk", models.RoleClerk, nil)
	wr := c.create("Culvert", 10_000)

	// An engineer only sees what they raised or were given.
	testutil.AssertStatus(t, c.do(http.MethodGet, "/work-requests/"+wr.ID, nil, fieldToken), http.StatusNotFound)

	w := c.do(http.MethodPost, "/work-requests/"+wr.ID+"/assign", models.AssignWorkRequestRequest{UserID: clerk.ID}, c.adminToken)
	testutil.AssertStatus(t, w, http.StatusBadRequest)
	w = c.do(http.MethodPost, "/work-requests/"+wr.ID+"/assign", models.AssignWorkRequestRequest{UserID: field.ID}, c.engToken)
	testutil.AssertStatus(t, w, http.StatusForbidden)

	w = c.do(http.MethodPost, "/work-requests/"+wr.ID+"/assign", models.AssignWorkRequestRequest{UserID: field.ID}, c.ceToken)
	testutil.AssertStatus(t, w, http.StatusOK)
	assigned := decode[models.WorkRequest](t, w)
	require.NotNil(t, assigned.AssignedTo)
	assert.Equal(t, field.ID, *assigned.AssignedTo)
	assert.Contains(t, kinds(c.notifications(field.ID)), notify.KindWorkRequestAssigned)

	testutil.AssertStatus(t, c.do(http.MethodGet, "/work-requests/"+wr.ID, nil, fieldToken), http.StatusOK)

	// Completion waits for final approval.
	testutil.AssertStatus(t, c.do(http.MethodPost, "/work-requests/"+wr.ID+"/complete", nil, fieldToken), http.StatusConflict)

	require.NotNil(t, c.decide(c.ceToken, wr.ID, models.DecisionApprove, ""))
	require.NotNil(t, c.decide(c.cooToken, wr.ID, models.DecisionApprove, ""))

	testutil.AssertStatus(t, c.do(http.MethodPost, "/work-requests/"+wr.ID+"/complete", nil, c.ceToken), http.StatusForbidden)

	w = c.do(http.MethodPost, "/work-requests/"+wr.ID+"/complete", nil, fieldToken)
	testutil.AssertStatus(t, w, http.StatusOK)
	done := decode[models.WorkRequest](t, w)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
	assert.Contains(t, kinds(c.notifications(c.eng.ID)), notify.KindWorkRequestCompleted)

	w = c.do(http.MethodPost, "/work-requests/"+wr.ID+"/assign", models.AssignWorkRequestRequest{UserID: field.ID}, c.adminToken)
	testutil.AssertStatus(t, w, http.StatusConflict)
}

func TestListWorkRequests(t *testing.T) {
	c := newApprovalChain(t)
	_, otherToken := c.user("other", models.RoleEngineer, nil)

	road := c.create("Road resurfacing", 1_000)
	c.create("Park benches", 2_000)
	require.NotNil(t, c.decide(c.ceToken, road.ID, models.DecisionApprove, ""))

	list := func(token, query string) models.ListResponse[models.WorkRequest] {
		t.Helper()
		w := c.do(http.MethodGet, "/work-requests"+query, nil, token)
		testutil.AssertStatus(t, w, http.StatusOK)
		return decode[models.ListResponse[models.WorkRequest]](t, w)
	}

	assert.Equal(t, 2, list(c.engToken, "").Total)
	assert.Equal(t, 0, list(otherToken, "").Total)
	assert.Equal(t, 2, list(c.cooToken, "").Total)

	byStatus := list(c.cooToken, "?status=ce_approved")
	require.Equal(t, 1, byStatus.Total)
	assert.Equal(t, road.ID, byStatus.Items[0].ID)

	search := list(c.adminToken, "?q=BENCH")
	require.Equal(t, 1, search.Total)
	assert.Equal(t, "Park benches", search.Items[0].Title)

	assert.Equal(t, 0, list(c.adminToken, "?mine=true").Total)

	testutil.AssertStatus(t, c.do(http.MethodGet, "/work-requests?limit=0", nil, c.adminToken), http.StatusBadRequest)
}

func TestDeleteWorkRequest(t *testing.T) {
	c := newApprovalChain(t)

	wr := c.create("Temporary", 1_000)
	testutil.AssertStatus(t, c.do(http.MethodDelete, "/work-requests/"+wr.ID, nil, c.engToken), http.StatusNoContent)
	testutil.AssertStatus(t, c.do(http.MethodGet, "/work-requests/"+wr.ID, nil, c.engToken), http.StatusNotFound)

	wr = c.create("Under review", 1_000)
	require.NotNil(t, c.decide(c.ceToken, wr.ID, models.DecisionApprove, ""))
	testutil.AssertStatus(t, c.do(http.MethodDelete, "/work-requests/"+wr.ID, nil, c.engToken), http.StatusConflict)
	testutil.AssertStatus(t, c.do(http.MethodDelete, "/work-requests/"+wr.ID, nil, c.ceToken), http.StatusForbidden)
	testutil.AssertStatus(t, c.do(http.MethodDelete, "/work-requests/"+wr.ID, nil, c.adminToken), http.StatusNoContent)
}
