// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

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
)

type TemplateHandler struct {
	store *db.Store
	cfg   cliparse.Config
	log   *zap.Logger
}

func NewTemplateHandler(store *db.Store, cfg cliparse.Config, log *zap.Logger) *TemplateHandler {
	return &TemplateHandler{store: store, cfg: cfg, log: log}
}

// ListTemplates handles GET /efiling/templates
func (h *TemplateHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	items := []models.EFileTemplate{}
	sel := h.store.SQL.Select("*").From("efile_templates").OrderBy("name", "id")
	if categoryID := r.URL.Query().Get("category_id"); categoryID != "" {
		// Templates without a category apply to every category.
		sel = sel.Where(sq.Or{sq.Eq{"category_id": categoryID}, sq.Eq{"category_id": nil}})
	}
	if err := db.Select(r.Context(), h.store.DB, &items, sel); err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "templates.List"))
		return
	}
	middleware.JSONResponse(w, http.StatusOK, items)
}

// GetTemplate handles GET /efiling/templates/{id}
func (h *TemplateHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := getTemplate(r.Context(), h.store, h.store.DB, chi.URLParam(r, "id"))
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, t)
}

// CreateTemplate handles POST /efiling/templates
func (h *TemplateHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)

	var req models.TemplateRequest
	if err := middleware.ParseJSONBody(w, r, &req); err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	ts := now()
	t := models.EFileTemplate{
		ID:        auth.NewID(),
		CreatedBy: user.ID,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	if err := h.apply(r.Context(), &t, req); err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	ins := h.store.SQL.Insert("efile_templates").
		Columns("id", "name", "category_id", "subject", "body", "created_by", "created_at", "updated_at").
		Values(t.ID, t.Name, t.CategoryID, t.Subject, t.Body, t.CreatedBy, t.CreatedAt, t.UpdatedAt)
	if _, err := db.Exec(r.Context(), h.store.DB, ins); err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "templates.Create"))
		return
	}

	h.log.Info("template created", zap.String("template_id", t.ID), zap.String("by", user.ID))
	middleware.JSONResponse(w, http.StatusCreated, t)
}

// UpdateTemplate handles PUT /efiling/templates/{id}
func (h *TemplateHandler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req models.TemplateRequest
	if err := middleware.ParseJSONBody(w, r, &req); err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	t, err := getTemplate(r.Context(), h.store, h.store.DB, chi.URLParam(r, "id"))
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}
	if err := h.apply(r.Context(), &t, req); err != nil {
		middleware.Error(w, h.log, err)
		return
	}
	t.UpdatedAt = now()

	upd := h.store.SQL.Update("efile_templates").
		Set("name", t.Name).
		Set("category_id", t.CategoryID).
		Set("subject", t.Subject).
		Set("body", t.Body).
		Set("updated_at", t.UpdatedAt).
		Where(sq.Eq{"id": t.ID})
	if _, err := db.Exec(r.Context(), h.store.DB, upd); err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "templates.Update"))
		return
	}

	h.log.Info("template updated", zap.String("template_id", t.ID))
	middleware.JSONResponse(w, http.StatusOK, t)
}

// DeleteTemplate handles DELETE /efiling/templates/{id}
func (h *TemplateHandler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := db.ExecOne(r.Context(), h.store.DB, h.store.SQL.Delete("efile_templates").Where(sq.Eq{"id": id}))
	if db.IsNotFound(err) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Template not found")
		return
	}
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "templates.Delete"))
		return
	}

	h.log.Info("template deleted", zap.String("template_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// RenderTemplate handles POST /efiling/templates/{id}/render
func (h *TemplateHandler) RenderTemplate(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)

	var req models.RenderTemplateRequest
	if err := middleware.ParseJSONBody(w, r, &req); err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	t, err := getTemplate(r.Context(), h.store, h.store.DB, chi.URLParam(r, "id"))
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	categoryID := emptyToNil(req.CategoryID)
	if categoryID == nil {
		categoryID = t.CategoryID
	}
	data, err := templateData(r.Context(), h.store, h.store.DB, user, categoryID, emptyToNil(req.RegionID), now())
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}
	data.Subject = strings.TrimSpace(req.Subject)
	data.FileNumber = "(preview)"

	out, err := efiling.Render(t.Subject, t.Body, data)
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, out)
}

// apply validates req and copies it onto t.
func (h *TemplateHandler) apply(ctx context.Context, t *models.EFileTemplate, req models.TemplateRequest) error {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return errs.Invalid("name is required")
	}
	if strings.TrimSpace(req.Subject) == "" {
		return errs.Invalid("subject is required")
	}
	if err := efiling.Validate(req.Subject, req.Body); err != nil {
		return err
	}

	categoryID := emptyToNil(req.CategoryID)
	if categoryID != nil {
		if _, err := getCategory(ctx, h.store, h.store.DB, *categoryID); err != nil {
			if errs.ErrorCode(err) == errs.ENotFound {
				return errs.Invalid("category_id does not exist")
			}
			return err
		}
	}

	t.Name = name
	t.CategoryID = categoryID
	t.Subject = req.Subject
	t.Body = req.Body
	return nil
}

func getTemplate(ctx context.Context, store *db.Store, q sqlx.QueryerContext, id string) (models.EFileTemplate, error) {
	var t models.EFileTemplate
	err := db.Get(ctx, q, &t, store.SQL.Select("*").From("efile_templates").Where(sq.Eq{"id": id}))
	if db.IsNotFound(err) {
		return t, errs.NotFound("Template not found")
	}
	if err != nil {
		return t, errs.Wrap(err, "templates.get")
	}
	return t, nil
}

func getCategory(ctx context.Context, store *db.Store, q sqlx.QueryerContext, id string) (models.EFileCategory, error) {
	var c models.EFileCategory
	err := db.Get(ctx, q, &c, store.SQL.Select("*").From("efile_categories").Where(sq.Eq{"id": id}))
	if db.IsNotFound(err) {
		return c, errs.NotFound("Category not found")
	}
	if err != nil {
		return c, errs.Wrap(err, "efiling.getCategory")
	}
	return c, nil
}

// templateData resolves the names a template sees. The region falls back
// to the sender's own.
func templateData(ctx context.Context, store *db.Store, q sqlx.QueryerContext, sender models.User, categoryID, regionID *string, at time.Time) (efiling.TemplateData, error) {
	data := efiling.TemplateData{
		Sender: sender.FullName,
		Date:   efiling.FormatDate(at),
	}
	if categoryID != nil {
		c, err := getCategory(ctx, store, q, *categoryID)
		if err != nil {
			return data, err
		}
		data.Category = c.Name
	}
	if regionID == nil {
		regionID = sender.RegionID
	}
	if regionID != nil {
		region, err := getRegion(ctx, store, q, *regionID)
		if err != nil {
			return data, err
		}
		data.Region = region.Name
	}
	return data, nil
}
