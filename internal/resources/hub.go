// Package resources stores uploaded learning resources: the bytes go to
// object storage, the metadata to the record store.
package resources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"go.uber.org/zap"

	"github.com/dusk-indust/lessonforge/internal/store"
	"github.com/dusk-indust/lessonforge/internal/validate"
)

// DefaultMaxSize caps an upload when the Hub is built without a limit.
const DefaultMaxSize = 25 << 20

// ErrTooLarge is returned when an upload exceeds the Hub's size limit.
var ErrTooLarge = errors.New("resource exceeds size limit")

// Upload is the metadata submitted with a resource.
type Upload struct {
	Title       string `json:"title" validate:"notblank,min=3"`
	Description string `json:"description"`
	Subject     string `json:"subject" validate:"notblank,min=2"`
	GradeLevel  string `json:"gradeLevel" validate:"notblank"`
	FileName    string `json:"fileName" validate:"notblank"`
	// FileType is the MIME type. It is derived from the file name or
	// content when empty.
	FileType string `json:"fileType"`
}

// Hub uploads, lists and serves resources.
type Hub struct {
	fs        afs.Service
	root      string
	records   store.ResourceStore
	validator *validate.Validator
	maxSize   int64
	logger    *zap.Logger
}

// NewHub stores objects under rootURL, which may be any afs URL
// (file://, mem://, s3://, gs://).
func NewHub(rootURL string, records store.ResourceStore, logger *zap.Logger) *Hub {
	return &Hub{
		fs:        afs.New(),
		root:      strings.TrimRight(rootURL, "/"),
		records:   records,
		validator: validate.New(),
		maxSize:   DefaultMaxSize,
		logger:    logger.Named("resources"),
	}
}

// WithMaxSize sets the upload size limit in bytes.
func (h *Hub) WithMaxSize(n int64) *Hub {
	h.maxSize = n
	return h
}

// Upload validates meta, writes the content to
// <root>/<userID>/<uuid>-<name> and records the metadata. The object is
// removed again if the metadata cannot be stored.
func (h *Hub) Upload(ctx context.Context, userID string, meta Upload, content io.Reader) (store.Resource, error) {
	if err := h.validator.Struct(meta); err != nil {
		return store.Resource{}, err
	}

	data, err := io.ReadAll(io.LimitReader(content, h.maxSize+1))
	if err != nil {
		return store.Resource{}, fmt.Errorf("resources: read upload: %w", err)
	}
	if int64(len(data)) > h.maxSize {
		return store.Resource{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, h.maxSize)
	}

	name := safeName(meta.FileName)
	dest := url.Join(h.root, userID+"/"+uuid.NewString()+"-"+name)
	if err := h.fs.Upload(ctx, dest, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return store.Resource{}, fmt.Errorf("resources: upload %s: %w", dest, err)
	}

	res, err := h.records.InsertResource(ctx, store.Resource{
		UserID:      userID,
		Title:       strings.TrimSpace(meta.Title),
		Description: strings.TrimSpace(meta.Description),
		Subject:     strings.TrimSpace(meta.Subject),
		GradeLevel:  strings.TrimSpace(meta.GradeLevel),
		FilePath:    dest,
		FileType:    fileType(meta.FileType, name, data),
	})
	if err != nil {
		if derr := h.fs.Delete(ctx, dest); derr != nil {
			h.logger.Warn("orphaned resource object", zap.String("url", dest), zap.Error(derr))
		}
		return store.Resource{}, fmt.Errorf("resources: record: %w", err)
	}
	h.logger.Info("resource uploaded", zap.String("resource_id", res.ID), zap.String("user_id", userID), zap.Int("bytes", len(data)))
	return res, nil
}

func (h *Hub) List(ctx context.Context, userID string, opts store.ListOptions) (store.Page[store.Resource], error) {
	return h.records.ListResources(ctx, userID, opts)
}

func (h *Hub) Get(ctx context.Context, userID, id string) (store.Resource, error) {
	return h.records.GetResource(ctx, userID, id)
}

// Open returns the stored bytes of res.
func (h *Hub) Open(ctx context.Context, res store.Resource) ([]byte, error) {
	data, err := h.fs.DownloadWithURL(ctx, res.FilePath)
	if err != nil {
		return nil, fmt.Errorf("resources: download %s: %w", res.FilePath, err)
	}
	return data, nil
}

// FileName returns the name the resource was uploaded with.
func FileName(res store.Resource) string {
	base := path.Base(res.FilePath)
	// Strip the "<uuid>-" prefix added on upload.
	if len(base) > 37 && base[36] == '-' {
		if _, err := uuid.Parse(base[:36]); err == nil {
			return base[37:]
		}
	}
	return base
}

func safeName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case r < 0x20, r == '/', r == '?', r == '#', r == '%':
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	return name
}

func fileType(declared, name string, data []byte) string {
	if declared = strings.TrimSpace(declared); declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}
