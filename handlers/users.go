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
	"github.com/danielhkuo/works-portal/errs"
	"github.com/danielhkuo/works-portal/middleware"
	"github.com/danielhkuo/works-portal/models"
)

type UserHandler struct {
	store    *db.Store
	cfg      cliparse.Config
	log      *zap.Logger
	sessions *auth.Sessions
}

func NewUserHandler(store *db.Store, cfg cliparse.Config, log *zap.Logger, sessions *auth.Sessions) *UserHandler {
	return &UserHandler{store: store, cfg: cfg, log: log, sessions: sessions}
}

// Login handles POST /auth/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := middleware.ParseJSONBody(w, r, &req); err != nil {
		middleware.Error(w, h.log, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "username and password are required")
		return
	}

	var user models.User
	err := db.Get(r.Context(), h.store.DB, &user,
		h.store.SQL.Select("*").From("users").Where(sq.Eq{"username": req.Username}))
	if err != nil && !db.IsNotFound(err) {
		middleware.Error(w, h.log, errs.Wrap(err, "users.Login"))
		return
	}
	// Unknown users, inactive users and wrong passwords are indistinguishable.
	if err != nil || !user.Active || !auth.CheckPassword(user.PasswordHash, req.Password) {
		h.log.Info("login failed", zap.String("username", req.Username))
		middleware.Error(w, h.log, auth.ErrInvalidCredentials)
		return
	}

	token, expiresAt, err := h.sessions.Issue(r.Context(), user, middleware.GetClientIP(r), r.UserAgent())
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   strings.HasPrefix(h.cfg.PublicBaseURL, "https://"),
		SameSite: http.SameSiteLaxMode,
	})

	h.log.Info("user logged in", zap.String("user_id", user.ID), zap.String("role", user.Role))

	middleware.JSONResponse(w, http.StatusOK, models.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	})
}

// Logout handles POST /auth/logout
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Revoke(r.Context(), middleware.SessionID(r)); err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	middleware.JSONResponse(w, http.StatusOK, models.MessageResponse{Message: "Logged out"})
}

// Me handles GET /auth/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	middleware.JSONResponse(w, http.StatusOK, middleware.CurrentUser(r))
}

// ChangePassword handles POST /auth/password
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)

	var req models.ChangePasswordRequest
	if err := middleware.ParseJSONBody(w, r, &req); err != nil {
		middleware.Error(w, h.log, err)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Current password is incorrect")
		return
	}
	if err := validatePassword(req.NewPassword); err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	if err := h.setPassword(r, user.ID, req.NewPassword, middleware.SessionID(r)); err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	h.log.Info("password changed", zap.String("user_id", user.ID))
	middleware.JSONResponse(w, http.StatusOK, models.MessageResponse{Message: "Password updated"})
}

// ListUsers handles GET /users
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := middleware.Pagination(r)
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	where := sq.And{}
	query := r.URL.Query()
	if role := query.Get("role"); role != "" {
		if !auth.ValidRole(role) {
			middleware.ErrorResponse(w, http.StatusBadRequest, "Unknown role")
			return
		}
		where = append(where, sq.Eq{"role": role})
	}
	if regionID := query.Get("region_id"); regionID != "" {
		where = append(where, sq.Eq{"region_id": regionID})
	}
	switch query.Get("active") {
	case "":
	case "true":
		where = append(where, sq.Eq{"active": true})
	case "false":
		where = append(where, sq.Eq{"active": false})
	default:
		middleware.ErrorResponse(w, http.StatusBadRequest, "active must be true or false")
		return
	}

	total, err := db.Count(r.Context(), h.store.DB, h.store.SQL.Select("COUNT(*)").From("users").Where(where))
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "users.List"))
		return
	}

	users := []models.User{}
	sel := h.store.SQL.Select("*").From("users").Where(where).
		OrderBy("full_name", "id").
		Limit(uint64(limit)).Offset(uint64(offset))
	if err := db.Select(r.Context(), h.store.DB, &users, sel); err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "users.List"))
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ListResponse[models.User]{
		Items:  users,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// CreateUser handles POST /users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if err := middleware.ParseJSONBody(w, r, &req); err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.FullName = strings.TrimSpace(req.FullName)
	if req.Username == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "username is required")
		return
	}
	if req.FullName == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "full_name is required")
		return
	}
	if !auth.ValidRole(req.Role) {
		middleware.ErrorResponse(w, http.StatusBadRequest, "role must be one of admin, engineer, clerk, ce, coo, ceo")
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		middleware.Error(w, h.log, errs.Invalid(err.Error()))
		return
	}

	regionID := emptyToNil(req.RegionID)
	if err := checkRegion(r.Context(), h.store, h.store.DB, regionID); err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	ts := now()
	user := models.User{
		ID:           auth.NewID(),
		Username:     req.Username,
		FullName:     req.FullName,
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hash,
		Role:         req.Role,
		RegionID:     regionID,
		Active:       true,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	ins := h.store.SQL.Insert("users").
		Columns("id", "username", "full_name", "email", "password_hash", "role", "region_id", "active", "created_at", "updated_at").
		Values(user.ID, user.Username, user.FullName, user.Email, user.PasswordHash, user.Role, user.RegionID, user.Active, user.CreatedAt, user.UpdatedAt)
	if _, err := db.Exec(r.Context(), h.store.DB, ins); err != nil {
		if db.IsUniqueViolation(err) {
			middleware.ErrorResponse(w, http.StatusConflict, "Username already taken")
			return
		}
		middleware.Error(w, h.log, errs.Wrap(err, "users.Create"))
		return
	}

	h.log.Info("user created", zap.String("user_id", user.ID), zap.String("role", user.Role))
	middleware.JSONResponse(w, http.StatusCreated, user)
}

// GetUser handles GET /users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := getUser(r.Context(), h.store, h.store.DB, chi.URLParam(r, "id"))
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, user)
}

// UpdateUser handles PATCH /users/{id}
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	caller := middleware.CurrentUser(r)
	userID := chi.URLParam(r, "id")

	var req models.UpdateUserRequest
	if err := middleware.ParseJSONBody(w, r, &req); err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	user, err := getUser(r.Context(), h.store, h.store.DB, userID)
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			middleware.ErrorResponse(w, http.StatusBadRequest, "full_name cannot be empty")
			return
		}
		user.FullName = name
	}
	if req.Email != nil {
		user.Email = strings.TrimSpace(*req.Email)
	}
	if req.Role != nil {
		if !auth.ValidRole(*req.Role) {
			middleware.ErrorResponse(w, http.StatusBadRequest, "role must be one of admin, engineer, clerk, ce, coo, ceo")
			return
		}
		if user.ID == caller.ID && *req.Role != user.Role {
			middleware.ErrorResponse(w, http.StatusBadRequest, "Cannot change your own role")
			return
		}
		user.Role = *req.Role
	}
	if req.RegionID != nil {
		user.RegionID = emptyToNil(req.RegionID)
		if err := checkRegion(r.Context(), h.store, h.store.DB, user.RegionID); err != nil {
			middleware.Error(w, h.log, err)
			return
		}
	}
	deactivated := false
	if req.Active != nil {
		if user.ID == caller.ID && !*req.Active {
			middleware.ErrorResponse(w, http.StatusBadRequest, "Cannot deactivate your own account")
			return
		}
		deactivated = user.Active && !*req.Active
		user.Active = *req.Active
	}
	user.UpdatedAt = now()

	upd := h.store.SQL.Update("users").
		Set("full_name", user.FullName).
		Set("email", user.Email).
		Set("role", user.Role).
		Set("region_id", user.RegionID).
		Set("active", user.Active).
		Set("updated_at", user.UpdatedAt).
		Where(sq.Eq{"id": user.ID})
	if _, err := db.Exec(r.Context(), h.store.DB, upd); err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "users.Update"))
		return
	}

	if deactivated {
		if err := h.sessions.RevokeAllForUser(r.Context(), user.ID, ""); err != nil {
			middleware.Error(w, h.log, err)
			return
		}
	}

	h.log.Info("user updated", zap.String("user_id", user.ID), zap.Bool("active", user.Active))
	middleware.JSONResponse(w, http.StatusOK, user)
}

// ResetPassword handles POST /users/{id}/password
func (h *UserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req models.ResetPasswordRequest
	if err := middleware.ParseJSONBody(w, r, &req); err != nil {
		middleware.Error(w, h.log, err)
		return
	}
	if err := validatePassword(req.NewPassword); err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	user, err := getUser(r.Context(), h.store, h.store.DB, chi.URLParam(r, "id"))
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	if err := h.setPassword(r, user.ID, req.NewPassword, ""); err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	h.log.Info("password reset", zap.String("user_id", user.ID), zap.String("by", middleware.CurrentUser(r).ID))
	middleware.JSONResponse(w, http.StatusOK, models.MessageResponse{Message: "Password reset"})
}

// setPassword stores a new hash and revokes every session except keep.
func (h *UserHandler) setPassword(r *http.Request, userID, password, keep string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return errs.Invalid(err.Error())
	}
	upd := h.store.SQL.Update("users").
		Set("password_hash", hash).
		Set("updated_at", now()).
		Where(sq.Eq{"id": userID})
	if _, err := db.Exec(r.Context(), h.store.DB, upd); err != nil {
		return errs.Wrap(err, "users.setPassword")
	}
	return h.sessions.RevokeAllForUser(r.Context(), userID, keep)
}
