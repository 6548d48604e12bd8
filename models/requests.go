// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import "time"

// Request types

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type ResetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

type CreateUserRequest struct {
	Username string  `json:"username"`
	FullName string  `json:"full_name"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Role     string  `json:"role"`
	RegionID *string `json:"region_id"`
}

// Nil fields are left unchanged. An empty RegionID clears the region.
type UpdateUserRequest struct {
	FullName *string `json:"full_name"`
	Email    *string `json:"email"`
	Role     *string `json:"role"`
	RegionID *string `json:"region_id"`
	Active   *bool   `json:"active"`
}

type CreateRegionRequest struct {
	Name     string  `json:"name"`
	Level    string  `json:"level"`
	ParentID *string `json:"parent_id"`
}

type CreateWorkRequestRequest struct {
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	Location      string  `json:"location"`
	RegionID      *string `json:"region_id"`
	Priority      string  `json:"priority"`
	EstimatedCost int64   `json:"estimated_cost"`
}

type UpdateWorkRequestRequest struct {
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	Location      *string `json:"location"`
	RegionID      *string `json:"region_id"`
	Priority      *string `json:"priority"`
	EstimatedCost *int64  `json:"estimated_cost"`
}

type AssignWorkRequestRequest struct {
	UserID string `json:"user_id"`
}

type ApprovalRequest struct {
	Decision string `json:"decision"`
	Remarks  string `json:"remarks"`
}

type InitUploadRequest struct {
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	TotalChunks int    `json:"total_chunks"`
	OwnerType   string `json:"owner_type"`
	OwnerID     string `json:"owner_id"`
	Caption     string `json:"caption"`
}

type CategoryRequest struct {
	Name        string `json:"name"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Active      *bool  `json:"active"`
}

type StatusRequest struct {
	Name       string `json:"name"`
	Code       string `json:"code"`
	IsTerminal bool   `json:"is_terminal"`
	SortOrder  int    `json:"sort_order"`
}

type TemplateRequest struct {
	Name       string  `json:"name"`
	CategoryID *string `json:"category_id"`
	Subject    string  `json:"subject"`
	Body       string  `json:"body"`
}

type RenderTemplateRequest struct {
	Subject    string  `json:"subject"`
	CategoryID *string `json:"category_id"`
	RegionID   *string `json:"region_id"`
}

type CreateEFileRequest struct {
	CategoryID string  `json:"category_id"`
	TemplateID *string `json:"template_id"`
	Subject    string  `json:"subject"`
	Body       string  `json:"body"`
	RegionID   *string `json:"region_id"`
	Priority   string  `json:"priority"`
}

type UpdateEFileRequest struct {
	Subject *string `json:"subject"`
	Body    *string `json:"body"`
}

type MarkEFileRequest struct {
	ToUserID string `json:"to_user_id"`
	Remarks  string `json:"remarks"`
}

type ChangeEFileStatusRequest struct {
	StatusID string `json:"status_id"`
	Remarks  string `json:"remarks"`
}

type SignEFileRequest struct {
	Remarks string `json:"remarks"`
}

// Response types

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

type WorkRequestDetail struct {
	WorkRequest
	Approvals []Approval `json:"approvals"`
	Media     []Media    `json:"media"`
}

type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type UnreadCountResponse struct {
	Unread int `json:"unread"`
}

type UploadStatusResponse struct {
	Upload         MediaUpload `json:"upload"`
	ReceivedChunks []int       `json:"received_chunks"`
}

type RenderedTemplate struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type EFileDetail struct {
	EFile
	Movements   []EFileMovement  `json:"movements"`
	Signatures  []EFileSignature `json:"signatures"`
	Attachments []Media          `json:"attachments"`
}

type SignatureCheck struct {
	SignatureID    string    `json:"signature_id"`
	UserID         string    `json:"user_id"`
	SignedAt       time.Time `json:"signed_at"`
	Valid          bool      `json:"valid"`
	ContentChanged bool      `json:"content_changed"`
}

type Recipient struct {
	ID       string  `json:"id"`
	FullName string  `json:"full_name"`
	Role     string  `json:"role"`
	RegionID *string `json:"region_id,omitempty"`
}

type DashboardResponse struct {
	WorkRequestsByStatus map[string]int `json:"work_requests_by_status"`
	PendingApprovals     int            `json:"pending_approvals"`
	UnreadNotifications  int            `json:"unread_notifications"`
	EFileInbox           int            `json:"efile_inbox"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
