// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-chi/chi"
	"go.uber.org/zap"

	"github.com/danielhkuo/works-portal/auth"
	"github.com/danielhkuo/works-portal/cliparse"
	"github.com/danielhkuo/works-portal/db"
	"github.com/danielhkuo/works-portal/efiling"
	"github.com/danielhkuo/works-portal/errs"
	"github.com/danielhkuo/works-portal/middleware"
	"github.com/danielhkuo/works-portal/models"
)

// ReferenceHandler manages e-file categories and statuses.
type ReferenceHandler struct {
	store *db.Store
	cfg   cliparse.Config
	log   *zap.Logger
}

func NewReferenceHandler(store *db.Store, cfg cliparse.Config, log *zap.Logger) *ReferenceHandler {
	return &ReferenceHandler{store: store, cfg: cfg, log: log}
}

// ListCategories handles GET /efiling/categories
func (h *ReferenceHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	items := []models.EFileCategory{}
	sel := h.store.SQL.Select("*").From("efile_categories").OrderBy("name", "id")
	if r.URL.Query().Get("active") == "true" {
		sel = sel.Where(sq.Eq{"active": true})
	}
	if err := db.Select(r.Context(), h.store.DB, &items, sel); err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "efiling.ListCategories"))
		return
	}
	middleware.JSONResponse(w, http.StatusOK, items)
}

// CreateCategory handles POST /efiling/categories
func (h *ReferenceHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req models.CategoryRequest
	if err := middleware.ParseJSONBody(w, r, &req); err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	c := models.EFileCategory{
		ID:          auth.NewID(),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Active:      req.Active == nil || *req.Active,
		CreatedAt:   now(),
	}
	if c.Name == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "name is required")
		return
	}
	code, err := efiling.NormalizeCode(req.Code)
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}
	c.Code = code

	ins := h.store.SQL.Insert("efile_categories").
		Columns("id", "name", "code", "description", "active", "created_at").
		Values(c.ID, c.Name, c.Code, c.Description, c.Active, c.CreatedAt)
	if _, err := db.Exec(r.Context(), h.store.DB, ins); err != nil {
		if db.IsUniqueViolation(err) {
			middleware.ErrorResponse(w, http.StatusConflict, "Category code already exists")
			return
		}
		middleware.Error(w, h.log, errs.Wrap(err, "efiling.CreateCategory"))
		return
	}

	h.log.Info("category created", zap.String("category_id", c.ID), zap.String("code", c.Code))
	middleware.JSONResponse(w, http.StatusCreated, c)
}

// UpdateCategory handles PUT /efiling/categories/{id}
//
// The code is fixed once files may carry it in their numbers.
func (h *ReferenceHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req models.CategoryRequest
	if err := middleware.ParseJSONBody(w, r, &req); err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	var c models.EFileCategory
	err := db.Get(r.Context(), h.store.DB, &c, h.store.SQL.Select("*").From("efile_categories").
		Where(sq.Eq{"id": chi.URLParam(r, "id")}))
	if db.IsNotFound(err) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Category not found")
		return
	}
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "efiling.UpdateCategory"))
		return
	}

	if req.Code != "" {
		code, err := efiling.NormalizeCode(req.Code)
		if err != nil {
			middleware.Error(w, h.log, err)
			return
		}
		if code != c.Code {
			middleware.ErrorResponse(w, http.StatusBadRequest, "A category code cannot be changed")
			return
		}
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		c.Name = name
	}
	c.Description = strings.TrimSpace(req.Description)
	if req.Active != nil {
		c.Active = *req.Active
	}

	upd := h.store.SQL.Update("efile_categories").
		Set("name", c.Name).
		Set("description", c.Description).
		Set("active", c.Active).
		Where(sq.Eq{"id": c.ID})
	if _, err := db.Exec(r.Context(), h.store.DB, upd); err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "efiling.UpdateCategory"))
		return
	}

	h.log.Info("category updated", zap.String("category_id", c.ID), zap.Bool("active", c.Active))
	middleware.JSONResponse(w, http.StatusOK, c)
}

// ListStatuses handles GET /efiling/statuses
func (h *ReferenceHandler) ListStatuses(w http.ResponseWriter, r *http.Request) {
	items := []models.EFileStatus{}
	sel := h.store.SQL.Select("*").From("efile_statuses").OrderBy("sort_order", "name")
	if err := db.Select(r.Context(), h.store.DB, &items, sel); err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "efiling.ListStatuses"))
		return
	}
	middleware.JSONResponse(w, http.StatusOK, items)
}

// CreateStatus handles POST /efiling/statuses
func (h *ReferenceHandler) CreateStatus(w http.ResponseWriter, r *http.Request) {
	var req models.StatusRequest
	if err := middleware.ParseJSONBody(w, r, &req); err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	s := models.EFileStatus{
		ID:         auth.NewID(),
		Name:       strings.TrimSpace(req.Name),
		IsTerminal: req.IsTerminal,
		SortOrder:  req.SortOrder,
		CreatedAt:  now(),
	}
	if s.Name == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "name is required")
		return
	}
	code, err := efiling.NormalizeCode(req.Code)
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}
	s.Code = code

	ins := h.store.SQL.Insert("efile_statuses").
		Columns("id", "name", "code", "is_terminal", "sort_order", "created_at").
		Values(s.ID, s.Name, s.Code, s.IsTerminal, s.SortOrder, s.CreatedAt)
	if _, err := db.Exec(r.Context(), h.store.DB, ins); err != nil {
		if db.IsUniqueViolation(err) {
			middleware.ErrorResponse(w, http.StatusConflict, "Status code already exists")
			return
		}
		middleware.Error(w, h.log, errs.Wrap(err, "efiling.CreateStatus"))
		return
	}

	h.log.Info("status created", zap.String("status_id", s.ID), zap.String("code", s.Code))
	middleware.JSONResponse(w, http.StatusCreated, s)
}

// UpdateStatus handles PUT /efiling/statuses/{id}
func (h *ReferenceHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req models.StatusRequest
	if err := middleware.ParseJSONBody(w, r, &req); err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	var s models.EFileStatus
	err := db.Get(r.Context(), h.store.DB, &s, h.store.SQL.Select("*").From("efile_statuses").
		Where(sq.Eq{"id": chi.URLParam(r, "id")}))
	if db.IsNotFound(err) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Status not found")
		return
	}
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "efiling.UpdateStatus"))
		return
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		s.Name = name
	}
	if req.Code != "" {
		code, err := efiling.NormalizeCode(req.Code)
		if err != nil {
			middleware.Error(w, h.log, err)
			return
		}
		s.Code = code
	}
	s.IsTerminal = req.IsTerminal
	s.SortOrder = req.SortOrder

	upd := h.store.SQL.Update("efile_statuses").
		Set("name", s.Name).
		Set("code", s.Code).
		Set("is_terminal", s.IsTerminal).
		Set("sort_order", s.SortOrder).
		Where(sq.Eq{"id": s.ID})
	if _, err := db.Exec(r.Context(), h.store.DB, upd); err != nil {
		if db.IsUniqueViolation(err) {
			middleware.ErrorResponse(w, http.StatusConflict, "Status code already exists")
			return
		}
		middleware.Error(w, h.log, errs.Wrap(err, "efiling.UpdateStatus"))
		return
	}

	h.log.Info("status updated", zap.String("status_id", s.ID))
	middleware.JSONResponse(w, http.StatusOK, s)
}
