// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package media stores uploaded images and videos on disk.
//
// Files live under <root>/<kind>s/<yyyy>/<mm>/<id><ext>. Chunked uploads
// are staged under <root>/.uploads/<upload-id>/ until they are assembled.
// A file's content must match the type its extension names.
package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/danielhkuo/works-portal/errs"
	"github.com/danielhkuo/works-portal/models"
)

const uploadsDir = ".uploads"

// contentTypes maps accepted extensions to the type served back.
var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
}

// Limits bounds what the store accepts.
type Limits struct {
	MaxImage int64
	MaxVideo int64
	Chunk    int64
}

// Store keeps media files under a root directory.
//
// Finished files live at <root>/<kind>s/<yyyy>/<mm>/<id><ext>. Chunked
// uploads collect under <root>/.uploads/<upload-id>/<index>.part until
// they are assembled.
type Store struct {
	root   string
	limits Limits
	stored *prometheus.CounterVec
}

func NewStore(root string, limits Limits) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, uploadsDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &Store{
		root:   root,
		limits: limits,
		stored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "media",
			Name:      "stored_bytes_total",
			Help:      "Bytes of media committed to storage.",
		}, []string{"kind"}),
	}, nil
}

// Collectors returns the store's metrics for registration.
func (s *Store) Collectors() []prometheus.Collector {
	return []prometheus.Collector{s.stored}
}

// Classify returns the media kind, normalized extension and content type
// for filename.
func Classify(filename string) (kind, ext, contentType string, err error) {
	ext = strings.ToLower(filepath.Ext(filename))
	contentType, ok := contentTypes[ext]
	if !ok {
		return "", "", "", errs.Newf(errs.EInvalid, "unsupported file type %q", ext)
	}
	kind = models.KindVideo
	if strings.HasPrefix(contentType, "image/") {
		kind = models.KindImage
	}
	return kind, ext, contentType, nil
}

// MaxSize returns the size limit for kind.
func (s *Store) MaxSize(kind string) int64 {
	if kind == models.KindImage {
		return s.limits.MaxImage
	}
	return s.limits.MaxVideo
}

// ChunkSize returns the largest chunk PutChunk accepts.
func (s *Store) ChunkSize() int64 {
	return s.limits.Chunk
}

// CheckSize rejects sizes over the limit for kind.
func (s *Store) CheckSize(kind string, size int64) error {
	if limit := s.MaxSize(kind); size > limit {
		return errs.Newf(errs.ETooLarge, "%s exceeds the %s limit", kind, humanize.Bytes(uint64(limit)))
	}
	return nil
}

// Save streams r into a new file for id and returns its path relative to
// the root and its size.
func (s *Store) Save(id, kind, ext string, r io.Reader, now time.Time) (string, int64, error) {
	tmp, err := os.CreateTemp(filepath.Join(s.root, uploadsDir), "save-*")
	if err != nil {
		return "", 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(r, s.MaxSize(kind)+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, err
	}
	if err := s.CheckSize(kind, n); err != nil {
		return "", 0, err
	}
	if n == 0 {
		return "", 0, errs.Invalid("file is empty")
	}

	return s.commit(tmp.Name(), id, kind, ext, n, now)
}

// PutChunk stores chunk index of an upload, replacing any earlier copy.
func (s *Store) PutChunk(uploadID string, index int, r io.Reader) (int64, error) {
	dir, err := s.uploadDir(uploadID)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(dir, "chunk-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(r, s.limits.Chunk+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	if n > s.limits.Chunk {
		return 0, errs.Newf(errs.ETooLarge, "chunk exceeds the %s limit", humanize.Bytes(uint64(s.limits.Chunk)))
	}
	if n == 0 {
		return 0, errs.Invalid("chunk is empty")
	}

	if err := os.Rename(tmp.Name(), chunkPath(dir, index)); err != nil {
		return 0, err
	}
	return n, nil
}

// ReceivedChunks lists the chunk indexes stored for an upload, ascending.
func (s *Store) ReceivedChunks(uploadID string) ([]int, error) {
	dir, err := s.uploadDir(uploadID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []int{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := []int{}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".part") {
			continue
		}
		i, err := strconv.Atoi(strings.TrimSuffix(name, ".part"))
		if err != nil {
			continue
		}
		out = append(out, i)
	}
	sort.Ints(out)
	return out, nil
}

// Assemble concatenates chunks 0..totalChunks-1 of an upload into a new
// file for id. The assembled size must equal size. Chunks are left in place;
// the caller removes them with Abort once the upload is recorded.
func (s *Store) Assemble(uploadID string, totalChunks int, size int64, id, kind, ext string, now time.Time) (string, error) {
	dir, err := s.uploadDir(uploadID)
	if err != nil {
		return "", err
	}

	var missing []string
	for i := 0; i < totalChunks; i++ {
		if _, err := os.Stat(chunkPath(dir, i)); err != nil {
			missing = append(missing, strconv.Itoa(i))
		}
	}
	if len(missing) > 0 {
		return "", errs.Newf(errs.EConflict, "missing chunks: %s", strings.Join(missing, ", "))
	}

	tmp, err := os.CreateTemp(filepath.Join(s.root, uploadsDir), "assemble-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	var written int64
	for i := 0; i < totalChunks; i++ {
		n, err := appendFile(tmp, chunkPath(dir, i))
		if err != nil {
			tmp.Close()
			return "", err
		}
		written += n
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if written != size {
		return "", errs.Newf(errs.EInvalid, "assembled %d bytes, expected %d", written, size)
	}
	if err := s.CheckSize(kind, written); err != nil {
		return "", err
	}

	rel, _, err := s.commit(tmp.Name(), id, kind, ext, written, now)
	if err != nil {
		return "", err
	}
	return rel, nil
}

// Abort discards the chunks of an upload.
func (s *Store) Abort(uploadID string) error {
	dir, err := s.uploadDir(uploadID)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

// PruneUploads removes chunk directories whose last change is before
// cutoff and which keep does not claim.
func (s *Store) PruneUploads(cutoff time.Time, keep func(uploadID string) bool) (int, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, uploadsDir))
	if err != nil {
		return 0, err
	}

	var errList error
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || keep(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			errList = multierr.Append(errList, err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, uploadsDir, e.Name())); err != nil {
			errList = multierr.Append(errList, err)
			continue
		}
		removed++
	}
	return removed, errList
}

// Open opens a stored file by its relative path.
func (s *Store) Open(rel string) (*os.File, error) {
	return os.Open(s.abs(rel))
}

// Remove deletes a stored file. Missing files are not an error.
func (s *Store) Remove(rel string) error {
	err := os.Remove(s.abs(rel))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// commit checks the content of src matches ext and moves it into place.
func (s *Store) commit(src, id, kind, ext string, size int64, now time.Time) (string, int64, error) {
	if err := sniff(src, ext); err != nil {
		return "", 0, err
	}

	rel := filepath.Join(kind+"s", now.Format("2006"), now.Format("01"), id+ext)
	dst := s.abs(rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", 0, err
	}
	if err := os.Rename(src, dst); err != nil {
		return "", 0, err
	}

	s.stored.WithLabelValues(kind).Add(float64(size))
	return filepath.ToSlash(rel), size, nil
}

func (s *Store) abs(rel string) string {
	// Clean against "/" so a stored path can never climb out of root.
	return filepath.Join(s.root, filepath.FromSlash(filepath.Clean("/"+rel)))
}

func (s *Store) uploadDir(uploadID string) (string, error) {
	if _, err := uuid.Parse(uploadID); err != nil {
		return "", errs.Invalid("invalid upload id")
	}
	return filepath.Join(s.root, uploadsDir, uploadID), nil
}

func chunkPath(dir string, index int) string {
	return filepath.Join(dir, strconv.Itoa(index)+".part")
}

func appendFile(dst io.Writer, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(dst, f)
}

// sniff rejects files whose content is not the type ext promises.
func sniff(path, ext string) error {
	want := contentTypes[ext]
	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return err
	}
	if !detected.Is(want) {
		return errs.Newf(errs.EInvalid, "file content (%s) does not match %s", detected.String(), ext)
	}
	return nil
}
