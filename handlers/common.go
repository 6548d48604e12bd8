// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/danielhkuo/works-portal/auth"
	"github.com/danielhkuo/works-portal/db"
	"github.com/danielhkuo/works-portal/errs"
	"github.com/danielhkuo/works-portal/models"
)

func now() time.Time {
	return time.Now().UTC()
}

func validPriority(p string) bool {
	switch p {
	case models.PriorityLow, models.PriorityNormal, models.PriorityHigh, models.PriorityUrgent:
		return true
	}
	return false
}

// emptyToNil turns an empty optional id into NULL.
func emptyToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func getUser(ctx context.Context, store *db.Store, q sqlx.QueryerContext, id string) (models.User, error) {
	var u models.User
	err := db.Get(ctx, q, &u, store.SQL.Select("*").From("users").Where(sq.Eq{"id": id}))
	if db.IsNotFound(err) {
		return u, errs.NotFound("User not found")
	}
	return u, err
}

func getRegion(ctx context.Context, store *db.Store, q sqlx.QueryerContext, id string) (models.Region, error) {
	var r models.Region
	err := db.Get(ctx, q, &r, store.SQL.Select("*").From("regions").Where(sq.Eq{"id": id}))
	if db.IsNotFound(err) {
		return r, errs.NotFound("Region not found")
	}
	return r, err
}

// checkRegion verifies an optional region id refers to a region.
func checkRegion(ctx context.Context, store *db.Store, q sqlx.QueryerContext, id *string) error {
	if id == nil {
		return nil
	}
	_, err := getRegion(ctx, store, q, *id)
	if errs.ErrorCode(err) == errs.ENotFound {
		return errs.Invalid("region_id does not exist")
	}
	return err
}

func getWorkRequest(ctx context.Context, store *db.Store, q sqlx.QueryerContext, id string) (models.WorkRequest, error) {
	var wr models.WorkRequest
	err := db.Get(ctx, q, &wr, store.SQL.Select("*").From("work_requests").Where(sq.Eq{"id": id}))
	if db.IsNotFound(err) {
		return wr, errs.NotFound("Work request not found")
	}
	return wr, err
}

// canViewWorkRequest: engineers see requests they raised or were assigned;
// every other role sees all requests.
func canViewWorkRequest(u models.User, wr models.WorkRequest) bool {
	if u.Role != models.RoleEngineer {
		return true
	}
	return wr.CreatedBy == u.ID || (wr.AssignedTo != nil && *wr.AssignedTo == u.ID)
}

func getEFile(ctx context.Context, store *db.Store, q sqlx.QueryerContext, id string) (models.EFile, error) {
	var f models.EFile
	err := db.Get(ctx, q, &f, store.SQL.Select("*").From("efiles").Where(sq.Eq{"id": id}))
	if db.IsNotFound(err) {
		return f, errs.NotFound("File not found")
	}
	return f, err
}

// canViewEFile allows admins, the creator, the holder and anyone the file
// has passed through.
func canViewEFile(ctx context.Context, store *db.Store, q sqlx.QueryerContext, u models.User, f models.EFile) (bool, error) {
	if u.Role == models.RoleAdmin || f.CreatedBy == u.ID || f.CurrentHolder == u.ID {
		return true, nil
	}
	n, err := db.Count(ctx, q, store.SQL.Select("COUNT(*)").From("efile_movements").
		Where(sq.And{
			sq.Eq{"file_id": f.ID},
			sq.Or{sq.Eq{"from_user_id": u.ID}, sq.Eq{"to_user_id": u.ID}},
		}))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// canViewOwner resolves a media owner and checks u may see it.
func canViewOwner(ctx context.Context, store *db.Store, q sqlx.QueryerContext, u models.User, ownerType, ownerID string) error {
	switch ownerType {
	case models.OwnerWorkRequest:
		wr, err := getWorkRequest(ctx, store, q, ownerID)
		if err != nil {
			return err
		}
		if !canViewWorkRequest(u, wr) {
			return errs.NotFound("Work request not found")
		}
		return nil
	case models.OwnerEFile:
		f, err := getEFile(ctx, store, q, ownerID)
		if err != nil {
			return err
		}
		ok, err := canViewEFile(ctx, store, q, u, f)
		if err != nil {
			return err
		}
		if !ok {
			return errs.NotFound("File not found")
		}
		return nil
	default:
		return errs.Invalid("owner_type must be work_request or efile")
	}
}

// validatePassword applies the shared password policy.
func validatePassword(pw string) error {
	if len(pw) < auth.MinPasswordLength {
		return errs.Newf(errs.EInvalid, "password must be at least %d characters", auth.MinPasswordLength)
	}
	return nil
}
