// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/danielhkuo/works-portal/auth"
	"github.com/danielhkuo/works-portal/cliparse"
	"github.com/danielhkuo/works-portal/db"
	"github.com/danielhkuo/works-portal/errs"
	"github.com/danielhkuo/works-portal/media"
	"github.com/danielhkuo/works-portal/middleware"
	"github.com/danielhkuo/works-portal/models"
	"github.com/danielhkuo/works-portal/notify"
	"github.com/danielhkuo/works-portal/workflow"
)

type WorkRequestHandler struct {
	store *db.Store
	cfg   cliparse.Config
	log   *zap.Logger
	media *media.Store
}

func NewWorkRequestHandler(store *db.Store, cfg cliparse.Config, log *zap.Logger, files *media.Store) *WorkRequestHandler {
	return &WorkRequestHandler{store: store, cfg: cfg, log: log, media: files}
}

// CreateWorkRequest handles POST /work-requests
func (h *WorkRequestHandler) CreateWorkRequest(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)

	var req models.CreateWorkRequestRequest
	if err := middleware.ParseJSONBody(w, r, &req); err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}
	if !validPriority(req.Priority) {
		middleware.ErrorResponse(w, http.StatusBadRequest, "priority must be low, normal, high or urgent")
		return
	}
	if req.EstimatedCost < 0 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "estimated_cost cannot be negative")
		return
	}

	regionID := emptyToNil(req.RegionID)
	if regionID == nil {
		regionID = user.RegionID
	}

	ts := now()
	wr := models.WorkRequest{
		ID:            auth.NewID(),
		Title:         req.Title,
		Description:   strings.TrimSpace(req.Description),
		Location:      strings.TrimSpace(req.Location),
		RegionID:      regionID,
		Priority:      req.Priority,
		EstimatedCost: req.EstimatedCost,
		Status:        models.StatusSubmitted,
		CreatedBy:     user.ID,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}

	err := h.store.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := checkRegion(r.Context(), h.store, tx, wr.RegionID); err != nil {
			return err
		}
		ins := h.store.SQL.Insert("work_requests").
			Columns("id", "title", "description", "location", "region_id", "priority", "estimated_cost", "status", "created_by", "created_at", "updated_at").
			Values(wr.ID, wr.Title, wr.Description, wr.Location, wr.RegionID, wr.Priority, wr.EstimatedCost, wr.Status, wr.CreatedBy, wr.CreatedAt, wr.UpdatedAt)
		if _, err := db.Exec(r.Context(), tx, ins); err != nil {
			return err
		}
		return h.notifyApprovers(r.Context(), tx, wr, user.ID)
	})
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "workrequests.Create"))
		return
	}

	h.log.Info("work request created", zap.String("work_request_id", wr.ID), zap.String("created_by", user.ID))
	middleware.JSONResponse(w, http.StatusCreated, wr)
}

// ListWorkRequests handles GET /work-requests
func (h *WorkRequestHandler) ListWorkRequests(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)

	limit, offset, err := middleware.Pagination(r)
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	query := r.URL.Query()
	where := visibleWorkRequests(user)
	if status := query.Get("status"); status != "" {
		where = append(where, sq.Eq{"status": status})
	}
	if regionID := query.Get("region_id"); regionID != "" {
		where = append(where, sq.Eq{"region_id": regionID})
	}
	if query.Get("mine") == "true" {
		where = append(where, sq.Or{sq.Eq{"created_by": user.ID}, sq.Eq{"assigned_to": user.ID}})
	}
	if q := strings.ToLower(strings.TrimSpace(query.Get("q"))); q != "" {
		pattern := "%" + q + "%"
		where = append(where, sq.Or{
			sq.Like{"LOWER(title)": pattern},
			sq.Like{"LOWER(description)": pattern},
			sq.Like{"LOWER(location)": pattern},
		})
	}

	total, err := db.Count(r.Context(), h.store.DB, h.store.SQL.Select("COUNT(*)").From("work_requests").Where(where))
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "workrequests.List"))
		return
	}

	items := []models.WorkRequest{}
	sel := h.store.SQL.Select("*").From("work_requests").Where(where).
		OrderBy("created_at DESC", "id").
		Limit(uint64(limit)).Offset(uint64(offset))
	if err := db.Select(r.Context(), h.store.DB, &items, sel); err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "workrequests.List"))
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ListResponse[models.WorkRequest]{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GetWorkRequest handles GET /work-requests/{id}
func (h *WorkRequestHandler) GetWorkRequest(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)

	wr, err := getWorkRequest(r.Context(), h.store, h.store.DB, chi.URLParam(r, "id"))
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}
	if !canViewWorkRequest(user, wr) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Work request not found")
		return
	}

	detail := models.WorkRequestDetail{
		WorkRequest: wr,
		Approvals:   []models.Approval{},
		Media:       []models.Media{},
	}
	sel := h.store.SQL.Select("*").From("approvals").
		Where(sq.Eq{"work_request_id": wr.ID}).
		OrderBy("created_at", "id")
	if err := db.Select(r.Context(), h.store.DB, &detail.Approvals, sel); err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "workrequests.Get"))
		return
	}
	detail.Media, err = listOwnerMedia(r.Context(), h.store, h.store.DB, h.cfg, models.OwnerWorkRequest, wr.ID)
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "workrequests.Get"))
		return
	}

	middleware.JSONResponse(w, http.StatusOK, detail)
}

// UpdateWorkRequest handles PATCH /work-requests/{id}
func (h *WorkRequestHandler) UpdateWorkRequest(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)
	id := chi.URLParam(r, "id")

	var req models.UpdateWorkRequestRequest
	if err := middleware.ParseJSONBody(w, r, &req); err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	var wr models.WorkRequest
	err := h.store.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		var err error
		wr, err = getWorkRequest(r.Context(), h.store, tx, id)
		if err != nil {
			return err
		}
		if !canViewWorkRequest(user, wr) {
			return errs.NotFound("Work request not found")
		}
		if wr.CreatedBy != user.ID {
			return errs.Forbidden("Only the creator can edit a work request")
		}
		if !workflow.Editable(wr.Status) {
			return errs.Newf(errs.EConflict, "A %s work request cannot be edited", wr.Status)
		}

		if req.Title != nil {
			title := strings.TrimSpace(*req.Title)
			if title == "" {
				return errs.Invalid("title cannot be empty")
			}
			wr.Title = title
		}
		if req.Description != nil {
			wr.Description = strings.TrimSpace(*req.Description)
		}
		if req.Location != nil {
			wr.Location = strings.TrimSpace(*req.Location)
		}
		if req.RegionID != nil {
			wr.RegionID = emptyToNil(req.RegionID)
			if err := checkRegion(r.Context(), h.store, tx, wr.RegionID); err != nil {
				return err
			}
		}
		if req.Priority != nil {
			if !validPriority(*req.Priority) {
				return errs.Invalid("priority must be low, normal, high or urgent")
			}
			wr.Priority = *req.Priority
		}
		if req.EstimatedCost != nil {
			if *req.EstimatedCost < 0 {
				return errs.Invalid("estimated_cost cannot be negative")
			}
			wr.EstimatedCost = *req.EstimatedCost
		}

		resubmitted := wr.Status == models.StatusRejected
		prev := wr.Status
		wr.Status = models.StatusSubmitted
		wr.UpdatedAt = now()

		upd := h.store.SQL.Update("work_requests").
			Set("title", wr.Title).
			Set("description", wr.Description).
			Set("location", wr.Location).
			Set("region_id", wr.RegionID).
			Set("priority", wr.Priority).
			Set("estimated_cost", wr.EstimatedCost).
			Set("status", wr.Status).
			Set("updated_at", wr.UpdatedAt).
			Where(sq.Eq{"id": wr.ID, "status": prev})
		if err := db.ExecOne(r.Context(), tx, upd); err != nil {
			if db.IsNotFound(err) {
				return errs.Conflict("Work request changed concurrently")
			}
			return err
		}

		if resubmitted {
			return h.notifyApprovers(r.Context(), tx, wr, user.ID)
		}
		return nil
	})
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "workrequests.Update"))
		return
	}

	h.log.Info("work request updated", zap.String("work_request_id", wr.ID))
	middleware.JSONResponse(w, http.StatusOK, wr)
}

// DeleteWorkRequest handles DELETE /work-requests/{id}
func (h *WorkRequestHandler) DeleteWorkRequest(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)
	id := chi.URLParam(r, "id")

	var paths []string
	err := h.store.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		wr, err := getWorkRequest(r.Context(), h.store, tx, id)
		if err != nil {
			return err
		}
		if user.Role != models.RoleAdmin {
			if !canViewWorkRequest(user, wr) {
				return errs.NotFound("Work request not found")
			}
			if wr.CreatedBy != user.ID {
				return errs.Forbidden("Only the creator can delete a work request")
			}
			if wr.Status != models.StatusSubmitted {
				return errs.Conflict("Only submitted work requests can be deleted")
			}
		}

		sel := h.store.SQL.Select("path").From("media").
			Where(sq.Eq{"owner_type": models.OwnerWorkRequest, "owner_id": wr.ID})
		if err := db.Select(r.Context(), tx, &paths, sel); err != nil {
			return err
		}
		if _, err := db.Exec(r.Context(), tx, h.store.SQL.Delete("media").
			Where(sq.Eq{"owner_type": models.OwnerWorkRequest, "owner_id": wr.ID})); err != nil {
			return err
		}
		return db.ExecOne(r.Context(), tx, h.store.SQL.Delete("work_requests").Where(sq.Eq{"id": wr.ID}))
	})
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "workrequests.Delete"))
		return
	}

	for _, p := range paths {
		if err := h.media.Remove(p); err != nil {
			h.log.Warn("failed to remove media file", zap.String("path", p), zap.Error(err))
		}
	}

	h.log.Info("work request deleted", zap.String("work_request_id", id), zap.String("by", user.ID))
	w.WriteHeader(http.StatusNoContent)
}

// AssignWorkRequest handles POST /work-requests/{id}/assign
func (h *WorkRequestHandler) AssignWorkRequest(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)
	id := chi.URLParam(r, "id")

	var req models.AssignWorkRequestRequest
	if err := middleware.ParseJSONBody(w, r, &req); err != nil {
		middleware.Error(w, h.log, err)
		return
	}
	if req.UserID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "user_id is required")
		return
	}

	var wr models.WorkRequest
	err := h.store.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		var err error
		wr, err = getWorkRequest(r.Context(), h.store, tx, id)
		if err != nil {
			return err
		}
		if wr.Status == models.StatusCompleted {
			return errs.Conflict("Work request is already completed")
		}

		assignee, err := getUser(r.Context(), h.store, tx, req.UserID)
		if errs.ErrorCode(err) == errs.ENotFound {
			return errs.Invalid("user_id does not exist")
		}
		if err != nil {
			return err
		}
		if !assignee.Active || assignee.Role != models.RoleEngineer {
			return errs.Invalid("Work can only be assigned to an active engineer")
		}

		wr.AssignedTo = &assignee.ID
		wr.UpdatedAt = now()
		upd := h.store.SQL.Update("work_requests").
			Set("assigned_to", wr.AssignedTo).
			Set("updated_at", wr.UpdatedAt).
			Where(sq.Eq{"id": wr.ID})
		if err := db.ExecOne(r.Context(), tx, upd); err != nil {
			return err
		}

		msg := notify.WorkRequestRef(wr, notify.KindWorkRequestAssigned,
			fmt.Sprintf("Work request %q assigned to you", wr.Title),
			"Assigned by "+user.FullName)
		return notify.Send(r.Context(), h.store, tx, []string{assignee.ID}, user.ID, msg)
	})
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "workrequests.Assign"))
		return
	}

	h.log.Info("work request assigned", zap.String("work_request_id", wr.ID), zap.String("assigned_to", req.UserID))
	middleware.JSONResponse(w, http.StatusOK, wr)
}

// CompleteWorkRequest handles POST /work-requests/{id}/complete
func (h *WorkRequestHandler) CompleteWorkRequest(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)
	id := chi.URLParam(r, "id")

	var wr models.WorkRequest
	err := h.store.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		var err error
		wr, err = getWorkRequest(r.Context(), h.store, tx, id)
		if err != nil {
			return err
		}
		if !canViewWorkRequest(user, wr) {
			return errs.NotFound("Work request not found")
		}
		assignee := wr.AssignedTo != nil && *wr.AssignedTo == user.ID
		if wr.CreatedBy != user.ID && !assignee {
			return errs.Forbidden("Only the creator or assignee can complete a work request")
		}
		if !workflow.Completable(wr.Status) {
			return errs.Newf(errs.EConflict, "A %s work request cannot be completed", wr.Status)
		}

		ts := now()
		wr.Status = models.StatusCompleted
		wr.CompletedAt = &ts
		wr.UpdatedAt = ts
		upd := h.store.SQL.Update("work_requests").
			Set("status", wr.Status).
			Set("completed_at", wr.CompletedAt).
			Set("updated_at", wr.UpdatedAt).
			Where(sq.Eq{"id": wr.ID, "status": models.StatusApproved})
		if err := db.ExecOne(r.Context(), tx, upd); err != nil {
			if db.IsNotFound(err) {
				return errs.Conflict("Work request changed concurrently")
			}
			return err
		}

		recipients := []string{wr.CreatedBy}
		if wr.AssignedTo != nil {
			recipients = append(recipients, *wr.AssignedTo)
		}
		msg := notify.WorkRequestRef(wr, notify.KindWorkRequestCompleted,
			fmt.Sprintf("Work request %q completed", wr.Title),
			"Completed by "+user.FullName)
		return notify.Send(r.Context(), h.store, tx, recipients, user.ID, msg)
	})
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "workrequests.Complete"))
		return
	}

	h.log.Info("work request completed", zap.String("work_request_id", wr.ID))
	middleware.JSONResponse(w, http.StatusOK, wr)
}

// DecideWorkRequest handles POST /work-requests/{id}/approvals
func (h *WorkRequestHandler) DecideWorkRequest(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)
	id := chi.URLParam(r, "id")

	var req models.ApprovalRequest
	if err := middleware.ParseJSONBody(w, r, &req); err != nil {
		middleware.Error(w, h.log, err)
		return
	}
	req.Remarks = strings.TrimSpace(req.Remarks)
	if req.Decision == models.DecisionReject && req.Remarks == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "remarks are required when rejecting")
		return
	}

	var (
		wr       models.WorkRequest
		approval models.Approval
	)
	err := h.store.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		var err error
		wr, err = getWorkRequest(r.Context(), h.store, tx, id)
		if err != nil {
			return err
		}

		next, stage, err := workflow.Decide(wr, user.Role, req.Decision, h.cfg.CEOApprovalThreshold)
		if err != nil {
			return err
		}

		ts := now()
		prev := wr.Status
		wr.Status = next
		wr.UpdatedAt = ts
		upd := h.store.SQL.Update("work_requests").
			Set("status", wr.Status).
			Set("updated_at", wr.UpdatedAt).
			Where(sq.Eq{"id": wr.ID, "status": prev})
		if err := db.ExecOne(r.Context(), tx, upd); err != nil {
			if db.IsNotFound(err) {
				return errs.Conflict("Work request changed concurrently")
			}
			return err
		}

		approval = models.Approval{
			ID:            auth.NewID(),
			WorkRequestID: wr.ID,
			Stage:         string(stage),
			Decision:      req.Decision,
			Remarks:       req.Remarks,
			ApproverID:    user.ID,
			CreatedAt:     ts,
		}
		ins := h.store.SQL.Insert("approvals").
			Columns("id", "work_request_id", "stage", "decision", "remarks", "approver_id", "created_at").
			Values(approval.ID, approval.WorkRequestID, approval.Stage, approval.Decision, approval.Remarks, approval.ApproverID, approval.CreatedAt)
		if _, err := db.Exec(r.Context(), tx, ins); err != nil {
			return err
		}

		return h.notifyDecision(r.Context(), tx, wr, approval, user)
	})
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "workrequests.Decide"))
		return
	}

	h.log.Info("work request decided",
		zap.String("work_request_id", wr.ID),
		zap.String("stage", approval.Stage),
		zap.String("decision", approval.Decision),
		zap.String("status", wr.Status))
	middleware.JSONResponse(w, http.StatusOK, wr)
}

// PendingApprovals handles GET /approvals/pending
func (h *WorkRequestHandler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)

	limit, offset, err := middleware.Pagination(r)
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	status, ok := workflow.PendingStatus(user.Role)
	if !ok {
		middleware.JSONResponse(w, http.StatusOK, models.ListResponse[models.WorkRequest]{
			Items: []models.WorkRequest{},
			Limit: limit, Offset: offset,
		})
		return
	}

	where := sq.Eq{"status": status}
	total, err := db.Count(r.Context(), h.store.DB, h.store.SQL.Select("COUNT(*)").From("work_requests").Where(where))
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "approvals.Pending"))
		return
	}

	items := []models.WorkRequest{}
	sel := h.store.SQL.Select("*").From("work_requests").Where(where).
		OrderBy("updated_at", "id").
		Limit(uint64(limit)).Offset(uint64(offset))
	if err := db.Select(r.Context(), h.store.DB, &items, sel); err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "approvals.Pending"))
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ListResponse[models.WorkRequest]{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// notifyApprovers tells everyone holding the role that owns wr's current
// stage that it is waiting for them.
func (h *WorkRequestHandler) notifyApprovers(ctx context.Context, tx *sqlx.Tx, wr models.WorkRequest, skip string) error {
	role, ok := workflow.NextApproverRole(wr.Status)
	if !ok {
		return nil
	}
	ids, err := notify.ActiveUsersWithRole(ctx, h.store, tx, role)
	if err != nil {
		return err
	}
	msg := notify.WorkRequestRef(wr, notify.KindWorkRequestPending,
		fmt.Sprintf("Work request %q awaits your approval", wr.Title),
		fmt.Sprintf("Estimated cost %d, priority %s", wr.EstimatedCost, wr.Priority))
	return notify.Send(ctx, h.store, tx, ids, skip, msg)
}

func (h *WorkRequestHandler) notifyDecision(ctx context.Context, tx *sqlx.Tx, wr models.WorkRequest, a models.Approval, by models.User) error {
	var msg models.Notification
	switch wr.Status {
	case models.StatusRejected:
		msg.Kind = notify.KindWorkRequestRejected
		msg.Title = fmt.Sprintf("Work request %q rejected", wr.Title)
	case models.StatusApproved:
		msg.Kind = notify.KindWorkRequestApproved
		msg.Title = fmt.Sprintf("Work request %q approved", wr.Title)
	default:
		msg.Kind = notify.KindWorkRequestPending
		msg.Title = fmt.Sprintf("Work request %q passed %s review", wr.Title, strings.ToUpper(a.Stage))
	}
	msg.Body = by.FullName
	if a.Remarks != "" {
		msg.Body += ": " + a.Remarks
	}

	if err := notify.Send(ctx, h.store, tx, []string{wr.CreatedBy}, by.ID,
		notify.WorkRequestRef(wr, msg.Kind, msg.Title, msg.Body)); err != nil {
		return err
	}
	return h.notifyApprovers(ctx, tx, wr, by.ID)
}

// visibleWorkRequests scopes queries to what u may see.
func visibleWorkRequests(u models.User) sq.And {
	if u.Role != models.RoleEngineer {
		return sq.And{}
	}
	return sq.And{sq.Or{sq.Eq{"created_by": u.ID}, sq.Eq{"assigned_to": u.ID}}}
}
