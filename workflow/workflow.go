// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package workflow holds the work request approval chain.
//
// A request moves submitted → ce_approved → coo_approved → approved, with
// the CEO stage skipped when the estimated cost is within the threshold.
// Any stage may reject. Approved requests can be completed; rejected ones
// return to submitted when edited.
package workflow

import (
	"github.com/danielhkuo/works-portal/errs"
	"github.com/danielhkuo/works-portal/models"
)

// Stage names the approver role responsible for a status.
type Stage string

const (
	StageCE  Stage = models.RoleCE
	StageCOO Stage = models.RoleCOO
	StageCEO Stage = models.RoleCEO
)

// StageFor returns the stage awaiting a decision in status, if any.
func StageFor(status string) (Stage, bool) {
	switch status {
	case models.StatusSubmitted:
		return StageCE, true
	case models.StatusCEApproved:
		return StageCOO, true
	case models.StatusCOOApproved:
		return StageCEO, true
	}
	return "", false
}

// PendingStatus returns the status whose requests wait on role.
func PendingStatus(role string) (string, bool) {
	switch role {
	case models.RoleCE:
		return models.StatusSubmitted, true
	case models.RoleCOO:
		return models.StatusCEApproved, true
	case models.RoleCEO:
		return models.StatusCOOApproved, true
	}
	return "", false
}

// Decide applies a decision by role to a request and returns the resulting
// status along with the stage that decided.
func Decide(wr models.WorkRequest, role, decision string, ceoThreshold int64) (string, Stage, error) {
	stage, ok := StageFor(wr.Status)
	if !ok {
		return "", "", errs.Newf(errs.EConflict, "work request is %s and not awaiting approval", wr.Status)
	}
	if string(stage) != role {
		return "", "", errs.Newf(errs.EForbidden, "work request is awaiting %s approval", stage)
	}

	switch decision {
	case models.DecisionReject:
		return models.StatusRejected, stage, nil
	case models.DecisionApprove:
	default:
		return "", "", errs.Invalid("decision must be approve or reject")
	}

	switch stage {
	case StageCE:
		return models.StatusCEApproved, stage, nil
	case StageCOO:
		if wr.EstimatedCost <= ceoThreshold {
			return models.StatusApproved, stage, nil
		}
		return models.StatusCOOApproved, stage, nil
	default:
		return models.StatusApproved, stage, nil
	}
}

// NextApproverRole returns the role that must act on status next.
func NextApproverRole(status string) (string, bool) {
	stage, ok := StageFor(status)
	return string(stage), ok
}

// Editable reports whether the creator may still change a request.
func Editable(status string) bool {
	return status == models.StatusSubmitted || status == models.StatusRejected
}

// Completable reports whether a request may be marked completed.
func Completable(status string) bool {
	return status == models.StatusApproved
}
