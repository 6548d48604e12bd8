// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielhkuo/works-portal/cliparse"
	"github.com/danielhkuo/works-portal/db"
	"github.com/danielhkuo/works-portal/errs"
	"github.com/danielhkuo/works-portal/middleware"
	"github.com/danielhkuo/works-portal/models"
	"github.com/danielhkuo/works-portal/workflow"
)

type DashboardHandler struct {
	store *db.Store
	cfg   cliparse.Config
	log   *zap.Logger
}

func NewDashboardHandler(store *db.Store, cfg cliparse.Config, log *zap.Logger) *DashboardHandler {
	return &DashboardHandler{store: store, cfg: cfg, log: log}
}

// GetDashboard handles GET /dashboard
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)
	resp := models.DashboardResponse{
		WorkRequestsByStatus: map[string]int{
			models.StatusSubmitted:   0,
			models.StatusCEApproved:  0,
			models.StatusCOOApproved: 0,
			models.StatusApproved:    0,
			models.StatusRejected:    0,
			models.StatusCompleted:   0,
		},
	}

	// The counts are independent; the pool serializes them on SQLite.
	g, ctx := errgroup.WithContext(r.Context())

	var byStatus []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	g.Go(func() error {
		return db.Select(ctx, h.store.DB, &byStatus, h.store.SQL.Select("status", "COUNT(*) AS n").
			From("work_requests").
			Where(visibleWorkRequests(user)).
			GroupBy("status"))
	})

	if status, ok := workflow.PendingStatus(user.Role); ok {
		g.Go(func() (err error) {
			resp.PendingApprovals, err = db.Count(ctx, h.store.DB, h.store.SQL.Select("COUNT(*)").
				From("work_requests").Where(sq.Eq{"status": status}))
			return err
		})
	}

	g.Go(func() (err error) {
		resp.UnreadNotifications, err = db.Count(ctx, h.store.DB, h.store.SQL.Select("COUNT(*)").
			From("notifications").Where(sq.Eq{"user_id": user.ID, "read_at": nil}))
		return err
	})

	g.Go(func() (err error) {
		resp.EFileInbox, err = db.Count(ctx, h.store.DB, h.store.SQL.Select("COUNT(*)").
			From("efiles").Where(sq.Eq{"current_holder": user.ID, "closed_at": nil}))
		return err
	})

	if err := g.Wait(); err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "dashboard.Get"))
		return
	}
	for _, row := range byStatus {
		resp.WorkRequestsByStatus[row.Status] = row.N
	}

	middleware.JSONResponse(w, http.StatusOK, resp)
}
