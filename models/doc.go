// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, and domain types for the API.

Domain types carry both json and db tags so rows scan directly into them
with sqlx and encode straight to responses. Secrets (password hashes, media
paths on disk) are tagged json:"-".

# Enumerations

  - Roles: admin, engineer, clerk, ce, coo, ceo
  - Region levels: district > zone > ward
  - Work request statuses: submitted, ce_approved, coo_approved, approved,
    rejected, completed
  - Priorities: low, normal, high, urgent
  - Media owners: work_request, efile; kinds: image, video

# Partial Updates

Update requests use pointer fields; nil means "leave unchanged".
*/
package models
