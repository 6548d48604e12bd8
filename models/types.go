// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import "time"

// Roles
const (
	RoleAdmin    = "admin"
	RoleEngineer = "engineer"
	RoleClerk    = "clerk"
	RoleCE       = "ce"
	RoleCOO      = "coo"
	RoleCEO      = "ceo"
)

// Region levels, outermost first
const (
	LevelDistrict = "district"
	LevelZone     = "zone"
	LevelWard     = "ward"
)

// Work request status constants
const (
	StatusSubmitted   = "submitted"
	StatusCEApproved  = "ce_approved"
	StatusCOOApproved = "coo_approved"
	StatusApproved    = "approved"
	StatusRejected    = "rejected"
	StatusCompleted   = "completed"
)

// Priorities shared by work requests and e-files
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Approval decisions
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// Media owners and kinds
const (
	OwnerWorkRequest = "work_request"
	OwnerEFile       = "efile"

	KindImage = "image"
	KindVideo = "video"
)

// E-file movement actions
const (
	ActionCreated = "created"
	ActionMarked  = "marked"
	ActionStatus  = "status"
)

// Domain types

type User struct {
	ID           string    `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	FullName     string    `json:"full_name" db:"full_name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"` // Never expose in JSON
	Role         string    `json:"role" db:"role"`
	RegionID     *string   `json:"region_id,omitempty" db:"region_id"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

type Region struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Level     string    `json:"level" db:"level"`
	ParentID  *string   `json:"parent_id,omitempty" db:"parent_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type WorkRequest struct {
	ID            string     `json:"id" db:"id"`
	Title         string     `json:"title" db:"title"`
	Description   string     `json:"description" db:"description"`
	Location      string     `json:"location" db:"location"`
	RegionID      *string    `json:"region_id,omitempty" db:"region_id"`
	Priority      string     `json:"priority" db:"priority"`
	EstimatedCost int64      `json:"estimated_cost" db:"estimated_cost"`
	Status        string     `json:"status" db:"status"`
	CreatedBy     string     `json:"created_by" db:"created_by"`
	AssignedTo    *string    `json:"assigned_to,omitempty" db:"assigned_to"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

type Approval struct {
	ID            string    `json:"id" db:"id"`
	WorkRequestID string    `json:"work_request_id" db:"work_request_id"`
	Stage         string    `json:"stage" db:"stage"`
	Decision      string    `json:"decision" db:"decision"`
	Remarks       string    `json:"remarks" db:"remarks"`
	ApproverID    string    `json:"approver_id" db:"approver_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

type Media struct {
	ID          string    `json:"id" db:"id"`
	OwnerType   string    `json:"owner_type" db:"owner_type"`
	OwnerID     string    `json:"owner_id" db:"owner_id"`
	Kind        string    `json:"kind" db:"kind"`
	Filename    string    `json:"filename" db:"filename"`
	ContentType string    `json:"content_type" db:"content_type"`
	Size        int64     `json:"size" db:"size"`
	SizeHuman   string    `json:"size_human" db:"-"`
	Path        string    `json:"-" db:"path"` // Relative to the media root
	Caption     string    `json:"caption" db:"caption"`
	UploadedBy  string    `json:"uploaded_by" db:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	URL         string    `json:"url" db:"-"`
}

type MediaUpload struct {
	ID          string    `json:"id" db:"id"`
	OwnerType   string    `json:"owner_type" db:"owner_type"`
	OwnerID     string    `json:"owner_id" db:"owner_id"`
	Filename    string    `json:"filename" db:"filename"`
	Kind        string    `json:"kind" db:"kind"`
	Size        int64     `json:"size" db:"size"`
	TotalChunks int       `json:"total_chunks" db:"total_chunks"`
	Caption     string    `json:"caption" db:"caption"`
	UploadedBy  string    `json:"uploaded_by" db:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type Notification struct {
	ID        string     `json:"id" db:"id"`
	UserID    string     `json:"user_id" db:"user_id"`
	Kind      string     `json:"kind" db:"kind"`
	Title     string     `json:"title" db:"title"`
	Body      string     `json:"body" db:"body"`
	RefType   string     `json:"ref_type" db:"ref_type"`
	RefID     string     `json:"ref_id" db:"ref_id"`
	ReadAt    *time.Time `json:"read_at,omitempty" db:"read_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

type EFileCategory struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Code        string    `json:"code" db:"code"`
	Description string    `json:"description" db:"description"`
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type EFileStatus struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Code       string    `json:"code" db:"code"`
	IsTerminal bool      `json:"is_terminal" db:"is_terminal"`
	SortOrder  int       `json:"sort_order" db:"sort_order"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type EFileTemplate struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	CategoryID *string   `json:"category_id,omitempty" db:"category_id"`
	Subject    string    `json:"subject" db:"subject"`
	Body       string    `json:"body" db:"body"`
	CreatedBy  string    `json:"created_by" db:"created_by"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

type EFile struct {
	ID            string     `json:"id" db:"id"`
	FileNumber    string     `json:"file_number" db:"file_number"`
	Subject       string     `json:"subject" db:"subject"`
	Body          string     `json:"body" db:"body"`
	CategoryID    string     `json:"category_id" db:"category_id"`
	StatusID      string     `json:"status_id" db:"status_id"`
	RegionID      *string    `json:"region_id,omitempty" db:"region_id"`
	Priority      string     `json:"priority" db:"priority"`
	CreatedBy     string     `json:"created_by" db:"created_by"`
	CurrentHolder string     `json:"current_holder" db:"current_holder"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
	ClosedAt      *time.Time `json:"closed_at,omitempty" db:"closed_at"`
}

type EFileMovement struct {
	ID         string    `json:"id" db:"id"`
	FileID     string    `json:"file_id" db:"file_id"`
	Action     string    `json:"action" db:"action"`
	FromUserID string    `json:"from_user_id" db:"from_user_id"`
	ToUserID   *string   `json:"to_user_id,omitempty" db:"to_user_id"`
	StatusID   *string   `json:"status_id,omitempty" db:"status_id"`
	Remarks    string    `json:"remarks" db:"remarks"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type EFileSignature struct {
	ID          string    `json:"id" db:"id"`
	FileID      string    `json:"file_id" db:"file_id"`
	UserID      string    `json:"user_id" db:"user_id"`
	ContentHash string    `json:"content_hash" db:"content_hash"`
	Signature   string    `json:"signature" db:"signature"`
	Remarks     string    `json:"remarks" db:"remarks"`
	SignedAt    time.Time `json:"signed_at" db:"signed_at"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
