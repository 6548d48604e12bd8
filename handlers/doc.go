// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the works portal API.

# Handler Types

Each handler is a struct holding the store, config and logger:

  - UserHandler: Login, sessions and user administration
  - RegionHandler: District, zone and ward hierarchy
  - WorkRequestHandler: Work requests and the CE → COO → CEO approval chain
  - MediaHandler: Photo and video uploads, including chunked uploads
  - NotificationHandler: In-app notifications
  - ReferenceHandler: E-file categories and statuses
  - TemplateHandler: E-file templates and previews
  - EFileHandler: E-files, marking, status changes and signatures
  - DashboardHandler: Per-user summary counts

Handlers are created via constructor functions:

	workHandler := handlers.NewWorkRequestHandler(store, cfg, log, files)

Every handler reads the caller from the request context; the router places
them behind middleware.Authenticate.

# Work Request Lifecycle

	submitted → ce_approved → coo_approved → approved → completed
	                        ↘ approved (cost within the CEO threshold)

Any approver stage may reject. The creator may edit a submitted or
rejected request; editing a rejected one resubmits it to the CE.

# E-Filing

A file is numbered CODE/YYYY/NNNN from its category's yearly sequence and
held by one user at a time. Only the holder may edit, mark, sign or change
the status of a file. Marking follows the region tree (see package
routing). A terminal status closes the file.

Signatures are HMACs over the file number, subject and body, so
verification reports both forged signatures and content changed since
signing.

# Errors

Handlers return errs codes through middleware.Error, which maps them to
HTTP statuses. Files and work requests the caller may not see answer 404
rather than 403.
*/
package handlers
