// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package notify writes in-app notifications. Notifications are inserted in
// the same transaction as the change they describe.
package notify

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/danielhkuo/works-portal/auth"
	"github.com/danielhkuo/works-portal/db"
	"github.com/danielhkuo/works-portal/models"
)

// Notification kinds
const (
	KindWorkRequestSubmitted = "work_request.submitted"
	KindWorkRequestPending   = "work_request.pending_approval"
	KindWorkRequestApproved  = "work_request.approved"
	KindWorkRequestRejected  = "work_request.rejected"
	KindWorkRequestAssigned  = "work_request.assigned"
	KindWorkRequestCompleted = "work_request.completed"
	KindEFileMarked          = "efile.marked"
	KindEFileStatus          = "efile.status"
	KindEFileSigned          = "efile.signed"
)

// Message is the content shared by every recipient of one notification.
type Message struct {
	Kind    string
	Title   string
	Body    string
	RefType string
	RefID   string
}

// Send inserts msg once for each distinct user in userIDs, skipping skip
// (usually the actor) and empty ids.
func Send(ctx context.Context, store *db.Store, e sqlx.ExecerContext, userIDs []string, skip string, msg Message) error {
	seen := make(map[string]bool, len(userIDs))
	now := time.Now().UTC()

	ins := store.SQL.Insert("notifications").
		Columns("id", "user_id", "kind", "title", "body", "ref_type", "ref_id", "created_at")
	rows := 0
	for _, id := range userIDs {
		if id == "" || id == skip || seen[id] {
			continue
		}
		seen[id] = true
		ins = ins.Values(auth.NewID(), id, msg.Kind, msg.Title, msg.Body, msg.RefType, msg.RefID, now)
		rows++
	}
	if rows == 0 {
		return nil
	}

	_, err := db.Exec(ctx, e, ins)
	return err
}

// ActiveUsersWithRole returns the ids of active users holding any of roles.
func ActiveUsersWithRole(ctx context.Context, store *db.Store, q sqlx.QueryerContext, roles ...string) ([]string, error) {
	var ids []string
	sel := store.SQL.Select("id").From("users").
		Where(sq.Eq{"role": roles, "active": true}).
		OrderBy("id")
	if err := db.Select(ctx, q, &ids, sel); err != nil {
		return nil, err
	}
	return ids, nil
}

// WorkRequestRef is shorthand for the ref fields of a work request message.
func WorkRequestRef(wr models.WorkRequest, kind, title, body string) Message {
	return Message{Kind: kind, Title: title, Body: body, RefType: models.OwnerWorkRequest, RefID: wr.ID}
}

// EFileRef is shorthand for the ref fields of an e-file message.
func EFileRef(f models.EFile, kind, title, body string) Message {
	return Message{Kind: kind, Title: title, Body: body, RefType: models.OwnerEFile, RefID: f.ID}
}
