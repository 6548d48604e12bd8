// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/danielhkuo/works-portal/auth"
	"github.com/danielhkuo/works-portal/cliparse"
	"github.com/danielhkuo/works-portal/db"
	"github.com/danielhkuo/works-portal/errs"
	"github.com/danielhkuo/works-portal/media"
	"github.com/danielhkuo/works-portal/middleware"
	"github.com/danielhkuo/works-portal/models"
)

// multipartOverhead is the allowance for form fields and boundaries on top
// of the file itself.
const multipartOverhead = 1 << 20

type MediaHandler struct {
	store *db.Store
	cfg   cliparse.Config
	log   *zap.Logger
	media *media.Store
}

func NewMediaHandler(store *db.Store, cfg cliparse.Config, log *zap.Logger, files *media.Store) *MediaHandler {
	return &MediaHandler{store: store, cfg: cfg, log: log, media: files}
}

// UploadMedia handles POST /media
func (h *MediaHandler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)

	largest := h.media.MaxSize(models.KindVideo)
	if img := h.media.MaxSize(models.KindImage); img > largest {
		largest = img
	}
	r.Body = http.MaxBytesReader(w, r.Body, largest+multipartOverhead)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			middleware.ErrorResponse(w, http.StatusRequestEntityTooLarge, "Upload too large")
			return
		}
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	kind, ext, contentType, err := media.Classify(header.Filename)
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}
	if err := h.media.CheckSize(kind, header.Size); err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	ownerType, ownerID := r.FormValue("owner_type"), r.FormValue("owner_id")
	if err := canViewOwner(r.Context(), h.store, h.store.DB, user, ownerType, ownerID); err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	m := models.Media{
		ID:          auth.NewID(),
		OwnerType:   ownerType,
		OwnerID:     ownerID,
		Kind:        kind,
		Filename:    header.Filename,
		ContentType: contentType,
		Caption:     strings.TrimSpace(r.FormValue("caption")),
		UploadedBy:  user.ID,
		CreatedAt:   now(),
	}
	m.Path, m.Size, err = h.media.Save(m.ID, kind, ext, file, m.CreatedAt)
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "media.Upload"))
		return
	}

	if err := h.insertMedia(r.Context(), h.store.DB, m); err != nil {
		h.discard(m.Path)
		middleware.Error(w, h.log, errs.Wrap(err, "media.Upload"))
		return
	}

	h.log.Info("media uploaded",
		zap.String("media_id", m.ID),
		zap.String("kind", m.Kind),
		zap.String("size", humanize.Bytes(uint64(m.Size))))
	middleware.JSONResponse(w, http.StatusCreated, decorateMedia(h.cfg, m))
}

// InitUpload handles POST /media/uploads
func (h *MediaHandler) InitUpload(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)

	var req models.InitUploadRequest
	if err := middleware.ParseJSONBody(w, r, &req); err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	kind, _, _, err := media.Classify(req.Filename)
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}
	if req.Size <= 0 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "size must be positive")
		return
	}
	if err := h.media.CheckSize(kind, req.Size); err != nil {
		middleware.Error(w, h.log, err)
		return
	}
	// Every chunk carries at least one byte and at most chunk-size bytes.
	chunk := h.media.ChunkSize()
	minChunks := (req.Size + chunk - 1) / chunk
	if req.TotalChunks <= 0 || int64(req.TotalChunks) < minChunks || int64(req.TotalChunks) > req.Size {
		middleware.ErrorResponse(w, http.StatusBadRequest,
			"total_chunks must be between "+strconv.FormatInt(minChunks, 10)+" and "+strconv.FormatInt(req.Size, 10)+
				" for chunks of at most "+humanize.Bytes(uint64(chunk)))
		return
	}
	if err := canViewOwner(r.Context(), h.store, h.store.DB, user, req.OwnerType, req.OwnerID); err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	upload := models.MediaUpload{
		ID:          auth.NewID(),
		OwnerType:   req.OwnerType,
		OwnerID:     req.OwnerID,
		Filename:    req.Filename,
		Kind:        kind,
		Size:        req.Size,
		TotalChunks: req.TotalChunks,
		Caption:     strings.TrimSpace(req.Caption),
		UploadedBy:  user.ID,
		CreatedAt:   now(),
	}
	ins := h.store.SQL.Insert("media_uploads").
		Columns("id", "owner_type", "owner_id", "filename", "kind", "size", "total_chunks", "caption", "uploaded_by", "created_at").
		Values(upload.ID, upload.OwnerType, upload.OwnerID, upload.Filename, upload.Kind, upload.Size, upload.TotalChunks, upload.Caption, upload.UploadedBy, upload.CreatedAt)
	if _, err := db.Exec(r.Context(), h.store.DB, ins); err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "media.InitUpload"))
		return
	}

	h.log.Info("upload started",
		zap.String("upload_id", upload.ID),
		zap.Int64("size", upload.Size),
		zap.Int("total_chunks", upload.TotalChunks))
	middleware.JSONResponse(w, http.StatusCreated, upload)
}

// PutChunk handles PUT /media/uploads/{id}/chunks/{index}
func (h *MediaHandler) PutChunk(w http.ResponseWriter, r *http.Request) {
	upload, err := h.ownUpload(r)
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 || index >= upload.TotalChunks {
		middleware.ErrorResponse(w, http.StatusBadRequest,
			"index must be between 0 and "+strconv.Itoa(upload.TotalChunks-1))
		return
	}

	n, err := h.media.PutChunk(upload.ID, index, r.Body)
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "media.PutChunk"))
		return
	}

	h.log.Debug("chunk stored", zap.String("upload_id", upload.ID), zap.Int("index", index), zap.Int64("bytes", n))
	h.uploadStatus(w, upload)
}

// GetUpload handles GET /media/uploads/{id}
func (h *MediaHandler) GetUpload(w http.ResponseWriter, r *http.Request) {
	upload, err := h.ownUpload(r)
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}
	h.uploadStatus(w, upload)
}

// CompleteUpload handles POST /media/uploads/{id}/complete
func (h *MediaHandler) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)

	upload, err := h.ownUpload(r)
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}
	// The owner may have been deleted or moved on since the upload began.
	if err := canViewOwner(r.Context(), h.store, h.store.DB, user, upload.OwnerType, upload.OwnerID); err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	kind, ext, contentType, err := media.Classify(upload.Filename)
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	m := models.Media{
		ID:          auth.NewID(),
		OwnerType:   upload.OwnerType,
		OwnerID:     upload.OwnerID,
		Kind:        kind,
		Filename:    upload.Filename,
		ContentType: contentType,
		Size:        upload.Size,
		Caption:     upload.Caption,
		UploadedBy:  user.ID,
		CreatedAt:   now(),
	}
	m.Path, err = h.media.Assemble(upload.ID, upload.TotalChunks, upload.Size, m.ID, kind, ext, m.CreatedAt)
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "media.CompleteUpload"))
		return
	}

	err = h.store.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.insertMedia(r.Context(), tx, m); err != nil {
			return err
		}
		return db.ExecOne(r.Context(), tx, h.store.SQL.Delete("media_uploads").Where(sq.Eq{"id": upload.ID}))
	})
	if err != nil {
		h.discard(m.Path)
		middleware.Error(w, h.log, errs.Wrap(err, "media.CompleteUpload"))
		return
	}
	if err := h.media.Abort(upload.ID); err != nil {
		h.log.Warn("failed to remove upload chunks", zap.String("upload_id", upload.ID), zap.Error(err))
	}

	h.log.Info("upload completed",
		zap.String("upload_id", upload.ID),
		zap.String("media_id", m.ID),
		zap.String("size", humanize.Bytes(uint64(m.Size))))
	middleware.JSONResponse(w, http.StatusCreated, decorateMedia(h.cfg, m))
}

// AbortUpload handles DELETE /media/uploads/{id}
func (h *MediaHandler) AbortUpload(w http.ResponseWriter, r *http.Request) {
	upload, err := h.ownUpload(r)
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}

	if _, err := db.Exec(r.Context(), h.store.DB, h.store.SQL.Delete("media_uploads").Where(sq.Eq{"id": upload.ID})); err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "media.AbortUpload"))
		return
	}
	if err := h.media.Abort(upload.ID); err != nil {
		h.log.Warn("failed to remove upload chunks", zap.String("upload_id", upload.ID), zap.Error(err))
	}

	h.log.Info("upload aborted", zap.String("upload_id", upload.ID))
	w.WriteHeader(http.StatusNoContent)
}

// ListMedia handles GET /media?owner_type=&owner_id=
func (h *MediaHandler) ListMedia(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)
	ownerType, ownerID := r.URL.Query().Get("owner_type"), r.URL.Query().Get("owner_id")

	if err := canViewOwner(r.Context(), h.store, h.store.DB, user, ownerType, ownerID); err != nil {
		middleware.Error(w, h.log, err)
		return
	}
	items, err := listOwnerMedia(r.Context(), h.store, h.store.DB, h.cfg, ownerType, ownerID)
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "media.List"))
		return
	}
	middleware.JSONResponse(w, http.StatusOK, items)
}

// ServeMedia handles GET /media/{id}
func (h *MediaHandler) ServeMedia(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)

	m, err := h.getMedia(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}
	if err := canViewOwner(r.Context(), h.store, h.store.DB, user, m.OwnerType, m.OwnerID); err != nil {
		middleware.ErrorResponse(w, http.StatusNotFound, "Media not found")
		return
	}

	f, err := h.media.Open(m.Path)
	if err != nil {
		h.log.Error("media file missing", zap.String("media_id", m.ID), zap.String("path", m.Path), zap.Error(err))
		middleware.ErrorResponse(w, http.StatusNotFound, "Media file not found")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", m.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": m.Filename}))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	// ServeContent handles Range and conditional requests.
	http.ServeContent(w, r, m.Filename, m.CreatedAt, f)
}

// DeleteMedia handles DELETE /media/{id}
func (h *MediaHandler) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)

	m, err := h.getMedia(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.Error(w, h.log, err)
		return
	}
	if err := canViewOwner(r.Context(), h.store, h.store.DB, user, m.OwnerType, m.OwnerID); err != nil {
		middleware.ErrorResponse(w, http.StatusNotFound, "Media not found")
		return
	}
	if m.UploadedBy != user.ID && user.Role != models.RoleAdmin {
		middleware.ErrorResponse(w, http.StatusForbidden, "Only the uploader can delete media")
		return
	}

	if err := db.ExecOne(r.Context(), h.store.DB, h.store.SQL.Delete("media").Where(sq.Eq{"id": m.ID})); err != nil {
		if db.IsNotFound(err) {
			middleware.ErrorResponse(w, http.StatusNotFound, "Media not found")
			return
		}
		middleware.Error(w, h.log, errs.Wrap(err, "media.Delete"))
		return
	}
	h.discard(m.Path)

	h.log.Info("media deleted", zap.String("media_id", m.ID), zap.String("by", user.ID))
	w.WriteHeader(http.StatusNoContent)
}

// PruneExpired drops upload sessions older than the upload expiry along
// with their chunks, and any chunk directory no session claims.
func (h *MediaHandler) PruneExpired(ctx context.Context) (int, error) {
	cutoff := now().Add(-h.cfg.UploadExpiry)

	if _, err := db.Exec(ctx, h.store.DB, h.store.SQL.Delete("media_uploads").Where(sq.Lt{"created_at": cutoff})); err != nil {
		return 0, errs.Wrap(err, "media.PruneExpired")
	}

	var live []string
	if err := db.Select(ctx, h.store.DB, &live, h.store.SQL.Select("id").From("media_uploads")); err != nil {
		return 0, errs.Wrap(err, "media.PruneExpired")
	}
	keep := make(map[string]bool, len(live))
	for _, id := range live {
		keep[id] = true
	}

	n, err := h.media.PruneUploads(cutoff, func(id string) bool { return keep[id] })
	if n > 0 {
		h.log.Info("pruned expired uploads", zap.Int("count", n))
	}
	return n, err
}

// ownUpload loads the upload named in the path and checks it belongs to
// the caller.
func (h *MediaHandler) ownUpload(r *http.Request) (models.MediaUpload, error) {
	user := middleware.CurrentUser(r)

	var upload models.MediaUpload
	err := db.Get(r.Context(), h.store.DB, &upload,
		h.store.SQL.Select("*").From("media_uploads").Where(sq.Eq{"id": chi.URLParam(r, "id")}))
	if db.IsNotFound(err) {
		return upload, errs.NotFound("Upload not found")
	}
	if err != nil {
		return upload, errs.Wrap(err, "media.ownUpload")
	}
	if upload.UploadedBy != user.ID {
		return upload, errs.NotFound("Upload not found")
	}
	return upload, nil
}

func (h *MediaHandler) uploadStatus(w http.ResponseWriter, upload models.MediaUpload) {
	received, err := h.media.ReceivedChunks(upload.ID)
	if err != nil {
		middleware.Error(w, h.log, errs.Wrap(err, "media.uploadStatus"))
		return
	}
	middleware.JSONResponse(w, http.StatusOK, models.UploadStatusResponse{
		Upload:         upload,
		ReceivedChunks: received,
	})
}

func (h *MediaHandler) getMedia(ctx context.Context, id string) (models.Media, error) {
	var m models.Media
	err := db.Get(ctx, h.store.DB, &m, h.store.SQL.Select("*").From("media").Where(sq.Eq{"id": id}))
	if db.IsNotFound(err) {
		return m, errs.NotFound("Media not found")
	}
	if err != nil {
		return m, errs.Wrap(err, "media.get")
	}
	return m, nil
}

func (h *MediaHandler) insertMedia(ctx context.Context, e sqlx.ExecerContext, m models.Media) error {
	ins := h.store.SQL.Insert("media").
		Columns("id", "owner_type", "owner_id", "kind", "filename", "content_type", "size", "path", "caption", "uploaded_by", "created_at").
		Values(m.ID, m.OwnerType, m.OwnerID, m.Kind, m.Filename, m.ContentType, m.Size, m.Path, m.Caption, m.UploadedBy, m.CreatedAt)
	_, err := db.Exec(ctx, e, ins)
	return err
}

func (h *MediaHandler) discard(rel string) {
	if err := h.media.Remove(rel); err != nil {
		h.log.Warn("failed to remove media file", zap.String("path", rel), zap.Error(err))
	}
}

// listOwnerMedia returns the media attached to an owner, oldest first.
func listOwnerMedia(ctx context.Context, store *db.Store, q sqlx.QueryerContext, cfg cliparse.Config, ownerType, ownerID string) ([]models.Media, error) {
	items := []models.Media{}
	sel := store.SQL.Select("*").From("media").
		Where(sq.Eq{"owner_type": ownerType, "owner_id": ownerID}).
		OrderBy("created_at", "id")
	if err := db.Select(ctx, q, &items, sel); err != nil {
		return nil, err
	}
	for i := range items {
		items[i] = decorateMedia(cfg, items[i])
	}
	return items, nil
}

// decorateMedia fills the fields derived for clients.
func decorateMedia(cfg cliparse.Config, m models.Media) models.Media {
	m.SizeHuman = humanize.Bytes(uint64(m.Size))
	m.URL = strings.TrimRight(cfg.PublicBaseURL, "/") + "/media/" + m.ID
	return m
}
