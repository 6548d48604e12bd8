// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-chi/chi"
	"go.uber.org/zap"

	"github.com/danielhkuo/works-portal/cliparse"
	"github.com/danielhkuo/works-portal/db"
	"github.com/danielhkuo/works-portal/errs"
	"github.com/danielhkuo/works-portal/middleware"
	"github.com/danielhkuo/works-portal/models"
)

type NotificationHandler struct {
	store *db.Store
	cfg   cliparse.Config
	log   *zap.Logger
}

func NewNotificationHandler(store *db.Store, cfg cliparse.Config, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{store: store, cfg: cfg, log: log}
}

// ListNotifications handles GET /notifications
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)

	limit, offset, err := middleware.Pagination(r)
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	where := sq.And{sq.Eq{"user_id": user.ID}}
	if r.URL.Query().Get("unread") == "true" {
		where = append(where, sq.Eq{"read_at": nil})
	}

	total, err := db.Count(r.Context(), h.store.DB, h.store.SQL.Select("COUNT(*)").From("notifications").Where(where))
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "notifications.List"))
		return
	}

	items := []models.Notification{}
	sel := h.store.SQL.Select("*").From("notifications").Where(where).
		OrderBy("created_at DESC", "id").
		Limit(uint64(limit)).Offset(uint64(offset))
	if err := db.Select(r.Context(), h.store.DB, &items, sel); err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "notifications.List"))
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ListResponse[models.Notification]{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// UnreadCount handles GET /notifications/unread-count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)

	n, err := db.Count(r.Context(), h.store.DB, h.store.SQL.Select("COUNT(*)").From("notifications").
		Where(sq.Eq{"user_id": user.ID, "read_at": nil}))
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "notifications.UnreadCount"))
		return
	}
	middleware.JSONResponse(w, http.StatusOK, models.UnreadCountResponse{Unread: n})
}

// MarkRead handles POST /notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)
	id := chi.URLParam(r, "id")

	var n models.Notification
	err := db.Get(r.Context(), h.store.DB, &n, h.store.SQL.Select("*").From("notifications").
		Where(sq.Eq{"id": id, "user_id": user.ID}))
	if db.IsNotFound(err) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Notification not found")
		return
	}
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "notifications.MarkRead"))
		return
	}

	// Marking twice keeps the first read time.
	if n.ReadAt == nil {
		ts := now()
		n.ReadAt = &ts
		upd := h.store.SQL.Update("notifications").
			Set("read_at", ts).
			Where(sq.Eq{"id": n.ID, "read_at": nil})
		if _, err := db.Exec(r.Context(), h.store.DB, upd); err != nil {
			middleware.Error(w, h.log, errs.Wrap(err, "notifications.MarkRead"))
			return
		}
	}

	middleware.JSONResponse(w, http.StatusOK, n)
}

// MarkAllRead handles POST /notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)

	res, err := db.Exec(r.Context(), h.store.DB, h.store.SQL.Update("notifications").
		Set("read_at", now()).
		Where(sq.Eq{"user_id": user.ID, "read_at": nil}))
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "notifications.MarkAllRead"))
		return
	}
	updated, _ := res.RowsAffected()

	h.log.Debug("notifications marked read", zap.String("user_id", user.ID), zap.Int64("count", updated))
	middleware.JSONResponse(w, http.StatusOK, models.UnreadCountResponse{Unread: 0})
}

// DeleteNotification handles DELETE /notifications/{id}
func (h *NotificationHandler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)

	err := db.ExecOne(r.Context(), h.store.DB, h.store.SQL.Delete("notifications").
		Where(sq.Eq{"id": chi.URLParam(r, "id"), "user_id": user.ID}))
	if db.IsNotFound(err) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Notification not found")
		return
	}
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "notifications.Delete"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
