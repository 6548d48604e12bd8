// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
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
	"github.com/danielhkuo/works-portal/middleware"
	"github.com/danielhkuo/works-portal/models"
)

// parentLevel maps each level to the level its parent must have.
var parentLevel = map[string]string{
	models.LevelDistrict: "",
	models.LevelZone:     models.LevelDistrict,
	models.LevelWard:     models.LevelZone,
}

type RegionHandler struct {
	store *db.Store
	cfg   cliparse.Config
	log   *zap.Logger
}

func NewRegionHandler(store *db.Store, cfg cliparse.Config, log *zap.Logger) *RegionHandler {
	return &RegionHandler{store: store, cfg: cfg, log: log}
}

// ListRegions handles GET /regions
func (h *RegionHandler) ListRegions(w http.ResponseWriter, r *http.Request) {
	regions := []models.Region{}
	sel := h.store.SQL.Select("*").From("regions").OrderBy("name", "id")
	if level := r.URL.Query().Get("level"); level != "" {
		sel = sel.Where(sq.Eq{"level": level})
	}
	if err := db.Select(r.Context(), h.store.DB, &regions, sel); err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "regions.List"))
		return
	}
	middleware.JSONResponse(w, http.StatusOK, regions)
}

// CreateRegion handles POST /regions
func (h *RegionHandler) CreateRegion(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRegionRequest
	if err := middleware.ParseJSONBody(w, r, &req); err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "name is required")
		return
	}
	want, ok := parentLevel[req.Level]
	if !ok {
		middleware.ErrorResponse(w, http.StatusBadRequest, "level must be district, zone or ward")
		return
	}

	parentID := emptyToNil(req.ParentID)
	switch {
	case want == "" && parentID != nil:
		middleware.ErrorResponse(w, http.StatusBadRequest, "A district cannot have a parent")
		return
	case want != "" && parentID == nil:
		middleware.ErrorResponse(w, http.StatusBadRequest, "parent_id is required for a "+req.Level)
		return
	case parentID != nil:
		parent, err := getRegion(r.Context(), h.store, h.store.DB, *parentID)
		if errs.ErrorCode(err) == errs.ENotFound {
			middleware.ErrorResponse(w, http.StatusBadRequest, "parent_id does not exist")
			return
		}
		if err != nil {
			middleware.Error(w, h.log, err)
			return
		}
		if parent.Level != want {
			middleware.ErrorResponse(w, http.StatusBadRequest, "The parent of a "+req.Level+" must be a "+want)
			return
		}
	}

	region := models.Region{
		ID:        auth.NewID(),
		Name:      req.Name,
		Level:     req.Level,
		ParentID:  parentID,
		CreatedAt: now(),
	}
	ins := h.store.SQL.Insert("regions").
		Columns("id", "name", "level", "parent_id", "created_at").
		Values(region.ID, region.Name, region.Level, region.ParentID, region.CreatedAt)
	if _, err := db.Exec(r.Context(), h.store.DB, ins); err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "regions.Create"))
		return
	}

	h.log.Info("region created", zap.String("region_id", region.ID), zap.String("level", region.Level))
	middleware.JSONResponse(w, http.StatusCreated, region)
}

// DeleteRegion handles DELETE /regions/{id}
func (h *RegionHandler) DeleteRegion(w http.ResponseWriter, r *http.Request) {
	regionID := chi.URLParam(r, "id")

	err := h.store.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if _, err := getRegion(r.Context(), h.store, tx, regionID); err != nil {
			return err
		}

		children, err := db.Count(r.Context(), tx, h.store.SQL.Select("COUNT(*)").From("regions").Where(sq.Eq{"parent_id": regionID}))
		if err != nil {
			return err
		}
		if children > 0 {
			return errs.Conflict("Region has child regions")
		}

		// Any reference from users, work requests or files keeps the region.
		for _, table := range []string{"users", "work_requests", "efiles"} {
			n, err := db.Count(r.Context(), tx, h.store.SQL.Select("COUNT(*)").From(table).Where(sq.Eq{"region_id": regionID}))
			if err != nil {
				return err
			}
			if n > 0 {
				return errs.Conflict("Region is still in use")
			}
		}

		return db.ExecOne(r.Context(), tx, h.store.SQL.Delete("regions").Where(sq.Eq{"id": regionID}))
	})
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "regions.Delete"))
		return
	}

	h.log.Info("region deleted", zap.String("region_id", regionID))
	w.WriteHeader(http.StatusNoContent)
}
