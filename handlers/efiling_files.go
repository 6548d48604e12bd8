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
	"github.com/danielhkuo/works-portal/efiling"
	"github.com/danielhkuo/works-portal/errs"
	"github.com/danielhkuo/works-portal/middleware"
	"github.com/danielhkuo/works-portal/models"
	"github.com/danielhkuo/works-portal/notify"
	"github.com/danielhkuo/works-portal/routing"
)

// Mailboxes for GET /efiling/files
const (
	BoxInbox   = "inbox"
	BoxSent    = "sent"
	BoxCreated = "created"
	BoxAll     = "all"
)

type EFileHandler struct {
	store *db.Store
	cfg   cliparse.Config
	log   *zap.Logger
}

func NewEFileHandler(store *db.Store, cfg cliparse.Config, log *zap.Logger) *EFileHandler {
	return &EFileHandler{store: store, cfg: cfg, log: log}
}

// CreateFile handles POST /efiling/files
func (h *EFileHandler) CreateFile(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)

	var req models.CreateEFileRequest
	if err := middleware.ParseJSONBody(w, r, &req); err != nil {
		middleware.Error(w, h.log, err)
		return
	}
	if req.CategoryID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "category_id is required")
		return
	}
	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}
	if !validPriority(req.Priority) {
		middleware.ErrorResponse(w, http.StatusBadRequest, "priority must be low, normal, high or urgent")
		return
	}

	ts := now()
	f := models.EFile{
		ID:            auth.NewID(),
		Subject:       strings.TrimSpace(req.Subject),
		Body:          req.Body,
		CategoryID:    req.CategoryID,
		RegionID:      emptyToNil(req.RegionID),
		Priority:      req.Priority,
		CreatedBy:     user.ID,
		CurrentHolder: user.ID,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
	if f.RegionID == nil {
		f.RegionID = user.RegionID
	}

	err := h.store.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		category, err := getCategory(r.Context(), h.store, tx, f.CategoryID)
		if errs.ErrorCode(err) == errs.ENotFound {
			return errs.Invalid("category_id does not exist")
		}
		if err != nil {
			return err
		}
		if !category.Active {
			return errs.Invalid("Category is inactive")
		}
		if err := checkRegion(r.Context(), h.store, tx, f.RegionID); err != nil {
			return err
		}

		var initial models.EFileStatus
		err = db.Get(r.Context(), tx, &initial, h.store.SQL.Select("*").From("efile_statuses").
			Where(sq.Eq{"is_terminal": false}).
			OrderBy("sort_order", "id").
			Limit(1))
		if db.IsNotFound(err) {
			return errs.Conflict("No open file status is configured")
		}
		if err != nil {
			return err
		}
		f.StatusID = initial.ID

		seq, err := h.nextSequence(r.Context(), tx, category.ID, ts.Year())
		if err != nil {
			return err
		}
		f.FileNumber = efiling.FileNumber(category.Code, ts.Year(), seq)

		if templateID := emptyToNil(req.TemplateID); templateID != nil {
			t, err := getTemplate(r.Context(), h.store, tx, *templateID)
			if errs.ErrorCode(err) == errs.ENotFound {
				return errs.Invalid("template_id does not exist")
			}
			if err != nil {
				return err
			}
			if t.CategoryID != nil && *t.CategoryID != category.ID {
				return errs.Invalid("Template belongs to another category")
			}
			data, err := templateData(r.Context(), h.store, tx, user, &category.ID, f.RegionID, ts)
			if err != nil {
				return err
			}
			data.FileNumber = f.FileNumber
			data.Subject = f.Subject
			out, err := efiling.Render(t.Subject, t.Body, data)
			if err != nil {
				return err
			}
			f.Subject = out.Subject
			if strings.TrimSpace(f.Body) == "" {
				f.Body = out.Body
			}
		}
		if f.Subject == "" {
			return errs.Invalid("subject is required")
		}

		ins := h.store.SQL.Insert("efiles").
			Columns("id", "file_number", "subject", "body", "category_id", "status_id", "region_id", "priority", "created_by", "current_holder", "created_at", "updated_at").
			Values(f.ID, f.FileNumber, f.Subject, f.Body, f.CategoryID, f.StatusID, f.RegionID, f.Priority, f.CreatedBy, f.CurrentHolder, f.CreatedAt, f.UpdatedAt)
		if _, err := db.Exec(r.Context(), tx, ins); err != nil {
			return err
		}
		return h.recordMovement(r.Context(), tx, models.EFileMovement{
			FileID:     f.ID,
			Action:     models.ActionCreated,
			FromUserID: user.ID,
			StatusID:   &f.StatusID,
			CreatedAt:  ts,
		})
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			middleware.ErrorResponse(w, http.StatusConflict, "File number already taken, please retry")
			return
		}
		middleware.Error(w, h.log, errs.Wrap(err, "efiles.Create"))
		return
	}

	h.log.Info("file created", zap.String("file_id", f.ID), zap.String("file_number", f.FileNumber))
	middleware.JSONResponse(w, http.StatusCreated, f)
}

// ListFiles handles GET /efiling/files?box=inbox|sent|created|all
func (h *EFileHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)

	limit, offset, err := middleware.Pagination(r)
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	query := r.URL.Query()
	box := query.Get("box")
	if box == "" {
		box = BoxInbox
	}
	where, err := boxFilter(user, box)
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}
	if statusID := query.Get("status_id"); statusID != "" {
		where = append(where, sq.Eq{"status_id": statusID})
	}
	if categoryID := query.Get("category_id"); categoryID != "" {
		where = append(where, sq.Eq{"category_id": categoryID})
	}
	switch query.Get("open") {
	case "true":
		where = append(where, sq.Eq{"closed_at": nil})
	case "false":
		where = append(where, sq.NotEq{"closed_at": nil})
	}

	total, err := db.Count(r.Context(), h.store.DB, h.store.SQL.Select("COUNT(*)").From("efiles").Where(where))
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "efiles.List"))
		return
	}

	items := []models.EFile{}
	sel := h.store.SQL.Select("*").From("efiles").Where(where).
		OrderBy("updated_at DESC", "id").
		Limit(uint64(limit)).Offset(uint64(offset))
	if err := db.Select(r.Context(), h.store.DB, &items, sel); err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "efiles.List"))
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ListResponse[models.EFile]{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GetFile handles GET /efiling/files/{id}
func (h *EFileHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	f, err := h.visibleFile(r)
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	detail := models.EFileDetail{
		EFile:      f,
		Movements:  []models.EFileMovement{},
		Signatures: []models.EFileSignature{},
	}
	if err := db.Select(r.Context(), h.store.DB, &detail.Movements, h.store.SQL.Select("*").From("efile_movements").
		Where(sq.Eq{"file_id": f.ID}).
		OrderBy("created_at", "id")); err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "efiles.Get"))
		return
	}
	if err := db.Select(r.Context(), h.store.DB, &detail.Signatures, h.store.SQL.Select("*").From("efile_signatures").
		Where(sq.Eq{"file_id": f.ID}).
		OrderBy("signed_at", "id")); err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "efiles.Get"))
		return
	}
	detail.Attachments, err = listOwnerMedia(r.Context(), h.store, h.store.DB, h.cfg, models.OwnerEFile, f.ID)
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "efiles.Get"))
		return
	}

	middleware.JSONResponse(w, http.StatusOK, detail)
}

// UpdateFile handles PATCH /efiling/files/{id}
func (h *EFileHandler) UpdateFile(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)

	var req models.UpdateEFileRequest
	if err := middleware.ParseJSONBody(w, r, &req); err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	f, err := h.heldFile(r, user)
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}
	if f.ClosedAt != nil {
		middleware.ErrorResponse(w, http.StatusConflict, "File is closed")
		return
	}

	if req.Subject != nil {
		subject := strings.TrimSpace(*req.Subject)
		if subject == "" {
			middleware.ErrorResponse(w, http.StatusBadRequest, "subject cannot be empty")
			return
		}
		f.Subject = subject
	}
	if req.Body != nil {
		f.Body = *req.Body
	}
	f.UpdatedAt = now()

	upd := h.store.SQL.Update("efiles").
		Set("subject", f.Subject).
		Set("body", f.Body).
		Set("updated_at", f.UpdatedAt).
		Where(sq.Eq{"id": f.ID, "current_holder": user.ID})
	if err := db.ExecOne(r.Context(), h.store.DB, upd); err != nil {
		if db.IsNotFound(err) {
			middleware.ErrorResponse(w, http.StatusConflict, "File was marked elsewhere")
			return
		}
		middleware.Error(w, h.log, errs.Wrap(err, "efiles.Update"))
		return
	}

	h.log.Info("file updated", zap.String("file_id", f.ID))
	middleware.JSONResponse(w, http.StatusOK, f)
}

// Recipients handles GET /efiling/files/{id}/recipients
func (h *EFileHandler) Recipients(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)

	if _, err := h.heldFile(r, user); err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	candidates, tree, err := h.routingInputs(r.Context(), h.store.DB)
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "efiles.Recipients"))
		return
	}

	out := []models.Recipient{}
	for _, u := range routing.Recipients(user, candidates, tree) {
		out = append(out, models.Recipient{ID: u.ID, FullName: u.FullName, Role: u.Role, RegionID: u.RegionID})
	}
	middleware.JSONResponse(w, http.StatusOK, out)
}

// MarkFile handles POST /efiling/files/{id}/mark
func (h *EFileHandler) MarkFile(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)

	var req models.MarkEFileRequest
	if err := middleware.ParseJSONBody(w, r, &req); err != nil {
		middleware.Error(w, h.log, err)
		return
	}
	if req.ToUserID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "to_user_id is required")
		return
	}

	var f models.EFile
	err := h.store.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		var err error
		f, err = getEFile(r.Context(), h.store, tx, chi.URLParam(r, "id"))
		if err != nil {
			return err
		}
		if f.CurrentHolder != user.ID {
			return h.notHolder(r.Context(), tx, user, f)
		}
		if f.ClosedAt != nil {
			return errs.Conflict("File is closed")
		}

		recipient, err := getUser(r.Context(), h.store, tx, req.ToUserID)
		if errs.ErrorCode(err) == errs.ENotFound {
			return errs.Invalid("to_user_id does not exist")
		}
		if err != nil {
			return err
		}
		_, tree, err := h.routingInputs(r.Context(), tx)
		if err != nil {
			return err
		}
		if !routing.Allowed(user, recipient, tree) {
			return errs.Forbidden("This file cannot be marked to that user")
		}

		ts := now()
		f.CurrentHolder = recipient.ID
		f.UpdatedAt = ts
		upd := h.store.SQL.Update("efiles").
			Set("current_holder", f.CurrentHolder).
			Set("updated_at", f.UpdatedAt).
			Where(sq.Eq{"id": f.ID, "current_holder": user.ID})
		if err := db.ExecOne(r.Context(), tx, upd); err != nil {
			if db.IsNotFound(err) {
				return errs.Conflict("File was marked elsewhere")
			}
			return err
		}

		if err := h.recordMovement(r.Context(), tx, models.EFileMovement{
			FileID:     f.ID,
			Action:     models.ActionMarked,
			FromUserID: user.ID,
			ToUserID:   &recipient.ID,
			Remarks:    strings.TrimSpace(req.Remarks),
			CreatedAt:  ts,
		}); err != nil {
			return err
		}

		msg := notify.EFileRef(f, notify.KindEFileMarked,
			fmt.Sprintf("File %s marked to you", f.FileNumber),
			fmt.Sprintf("%s: %s", user.FullName, f.Subject))
		return notify.Send(r.Context(), h.store, tx, []string{recipient.ID}, user.ID, msg)
	})
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "efiles.Mark"))
		return
	}

	h.log.Info("file marked",
		zap.String("file_id", f.ID),
		zap.String("from", user.ID),
		zap.String("to", f.CurrentHolder))
	middleware.JSONResponse(w, http.StatusOK, f)
}

// ChangeStatus handles POST /efiling/files/{id}/status
func (h *EFileHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)

	var req models.ChangeEFileStatusRequest
	if err := middleware.ParseJSONBody(w, r, &req); err != nil {
		middleware.Error(w, h.log, err)
		return
	}
	if req.StatusID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "status_id is required")
		return
	}

	var f models.EFile
	err := h.store.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		var err error
		f, err = getEFile(r.Context(), h.store, tx, chi.URLParam(r, "id"))
		if err != nil {
			return err
		}
		if f.CurrentHolder != user.ID {
			return h.notHolder(r.Context(), tx, user, f)
		}

		var status models.EFileStatus
		err = db.Get(r.Context(), tx, &status, h.store.SQL.Select("*").From("efile_statuses").Where(sq.Eq{"id": req.StatusID}))
		if db.IsNotFound(err) {
			return errs.Invalid("status_id does not exist")
		}
		if err != nil {
			return err
		}

		ts := now()
		f.StatusID = status.ID
		f.UpdatedAt = ts
		f.ClosedAt = nil
		if status.IsTerminal {
			f.ClosedAt = &ts
		}
		upd := h.store.SQL.Update("efiles").
			Set("status_id", f.StatusID).
			Set("closed_at", f.ClosedAt).
			Set("updated_at", f.UpdatedAt).
			Where(sq.Eq{"id": f.ID, "current_holder": user.ID})
		if err := db.ExecOne(r.Context(), tx, upd); err != nil {
			if db.IsNotFound(err) {
				return errs.Conflict("File was marked elsewhere")
			}
			return err
		}

		if err := h.recordMovement(r.Context(), tx, models.EFileMovement{
			FileID:     f.ID,
			Action:     models.ActionStatus,
			FromUserID: user.ID,
			StatusID:   &status.ID,
			Remarks:    strings.TrimSpace(req.Remarks),
			CreatedAt:  ts,
		}); err != nil {
			return err
		}

		msg := notify.EFileRef(f, notify.KindEFileStatus,
			fmt.Sprintf("File %s is now %s", f.FileNumber, status.Name),
			"Changed by "+user.FullName)
		return notify.Send(r.Context(), h.store, tx, []string{f.CreatedBy}, user.ID, msg)
	})
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "efiles.ChangeStatus"))
		return
	}

	h.log.Info("file status changed", zap.String("file_id", f.ID), zap.String("status_id", f.StatusID))
	middleware.JSONResponse(w, http.StatusOK, f)
}

// SignFile handles POST /efiling/files/{id}/sign
func (h *EFileHandler) SignFile(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)

	var req models.SignEFileRequest
	if err := middleware.ParseJSONBody(w, r, &req); err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	f, err := h.heldFile(r, user)
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	sig := models.EFileSignature{
		ID:          auth.NewID(),
		FileID:      f.ID,
		UserID:      user.ID,
		ContentHash: efiling.ContentHash(f),
		Remarks:     strings.TrimSpace(req.Remarks),
		SignedAt:    efiling.SignedAt(now()),
	}
	sig.Signature = efiling.Sign(h.cfg.SessionSecret, sig.FileID, sig.UserID, sig.ContentHash, sig.SignedAt)

	err = h.store.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		ins := h.store.SQL.Insert("efile_signatures").
			Columns("id", "file_id", "user_id", "content_hash", "signature", "remarks", "signed_at").
			Values(sig.ID, sig.FileID, sig.UserID, sig.ContentHash, sig.Signature, sig.Remarks, sig.SignedAt)
		if _, err := db.Exec(r.Context(), tx, ins); err != nil {
			if db.IsUniqueViolation(err) {
				return errs.Conflict("You have already signed this version of the file")
			}
			return err
		}
		msg := notify.EFileRef(f, notify.KindEFileSigned,
			fmt.Sprintf("File %s signed", f.FileNumber),
			"Signed by "+user.FullName)
		return notify.Send(r.Context(), h.store, tx, []string{f.CreatedBy}, user.ID, msg)
	})
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "efiles.Sign"))
		return
	}

	h.log.Info("file signed", zap.String("file_id", f.ID), zap.String("user_id", user.ID))
	middleware.JSONResponse(w, http.StatusCreated, sig)
}

// VerifySignatures handles GET /efiling/files/{id}/signatures/verify
func (h *EFileHandler) VerifySignatures(w http.ResponseWriter, r *http.Request) {
	f, err := h.visibleFile(r)
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	var sigs []models.EFileSignature
	if err := db.Select(r.Context(), h.store.DB, &sigs, h.store.SQL.Select("*").From("efile_signatures").
		Where(sq.Eq{"file_id": f.ID}).
		OrderBy("signed_at", "id")); err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "efiles.VerifySignatures"))
		return
	}

	out := make([]models.SignatureCheck, 0, len(sigs))
	for _, sig := range sigs {
		out = append(out, efiling.Check(h.cfg.SessionSecret, f, sig))
	}
	middleware.JSONResponse(w, http.StatusOK, out)
}

// nextSequence reserves the next file number of a category for year.
// The UPDATE runs first so concurrent writers queue on the row lock.
func (h *EFileHandler) nextSequence(ctx context.Context, tx *sqlx.Tx, categoryID string, year int) (int, error) {
	key := sq.Eq{"category_id": categoryID, "year": year}
	err := db.ExecOne(ctx, tx, h.store.SQL.Update("efile_sequences").
		Set("last_value", sq.Expr("last_value + 1")).
		Where(key))
	switch {
	case err == nil:
		var seq int
		if err := db.Get(ctx, tx, &seq, h.store.SQL.Select("last_value").From("efile_sequences").Where(key)); err != nil {
			return 0, err
		}
		return seq, nil
	case db.IsNotFound(err):
		ins := h.store.SQL.Insert("efile_sequences").
			Columns("category_id", "year", "last_value").
			Values(categoryID, year, 1)
		if _, err := db.Exec(ctx, tx, ins); err != nil {
			return 0, err
		}
		return 1, nil
	default:
		return 0, err
	}
}

func (h *EFileHandler) recordMovement(ctx context.Context, tx *sqlx.Tx, m models.EFileMovement) error {
	m.ID = auth.NewID()
	ins := h.store.SQL.Insert("efile_movements").
		Columns("id", "file_id", "action", "from_user_id", "to_user_id", "status_id", "remarks", "created_at").
		Values(m.ID, m.FileID, m.Action, m.FromUserID, m.ToUserID, m.StatusID, m.Remarks, m.CreatedAt)
	_, err := db.Exec(ctx, tx, ins)
	return err
}

// routingInputs loads every user and the region tree.
func (h *EFileHandler) routingInputs(ctx context.Context, q sqlx.QueryerContext) ([]models.User, *routing.Tree, error) {
	var users []models.User
	if err := db.Select(ctx, q, &users, h.store.SQL.Select("*").From("users").Where(sq.Eq{"active": true})); err != nil {
		return nil, nil, err
	}
	var regions []models.Region
	if err := db.Select(ctx, q, &regions, h.store.SQL.Select("*").From("regions")); err != nil {
		return nil, nil, err
	}
	return users, routing.NewTree(regions), nil
}

// visibleFile loads the file named in the path if the caller may see it.
func (h *EFileHandler) visibleFile(r *http.Request) (models.EFile, error) {
	user := middleware.CurrentUser(r)

	f, err := getEFile(r.Context(), h.store, h.store.DB, chi.URLParam(r, "id"))
	if err != nil {
		return f, err
	}
	ok, err := canViewEFile(r.Context(), h.store, h.store.DB, user, f)
	if err != nil {
		return f, errs.Wrap(err, "efiles.visible")
	}
	if !ok {
		return f, errs.NotFound("File not found")
	}
	return f, nil
}

// heldFile loads the file named in the path and requires the caller to
// hold it.
func (h *EFileHandler) heldFile(r *http.Request, user models.User) (models.EFile, error) {
	f, err := getEFile(r.Context(), h.store, h.store.DB, chi.URLParam(r, "id"))
	if err != nil {
		return f, err
	}
	if f.CurrentHolder != user.ID {
		return f, h.notHolder(r.Context(), h.store.DB, user, f)
	}
	return f, nil
}

// notHolder hides files the caller has never seen.
func (h *EFileHandler) notHolder(ctx context.Context, q sqlx.QueryerContext, user models.User, f models.EFile) error {
	ok, err := canViewEFile(ctx, h.store, q, user, f)
	if err != nil {
		return err
	}
	if !ok {
		return errs.NotFound("File not found")
	}
	return errs.Forbidden("Only the current holder can do that")
}

// boxFilter selects the files in a mailbox of u.
func boxFilter(u models.User, box string) (sq.And, error) {
	switch box {
	case BoxInbox:
		return sq.And{sq.Eq{"current_holder": u.ID}}, nil
	case BoxSent:
		return sq.And{sq.Expr("id IN (SELECT file_id FROM efile_movements WHERE from_user_id = ? AND action = ?)",
			u.ID, models.ActionMarked)}, nil
	case BoxCreated:
		return sq.And{sq.Eq{"created_by": u.ID}}, nil
	case BoxAll:
		if u.Role != models.RoleAdmin {
			return nil, errs.Forbidden("Only admins can list every file")
		}
		return sq.And{}, nil
	default:
		return nil, errs.Invalid("box must be inbox, sent, created or all")
	}
}
