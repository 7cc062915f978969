package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"cove/internal/server/auth"
	"cove/internal/server/config"
	"cove/internal/server/metrics"
	"cove/internal/server/progress"
	"cove/internal/server/service"
	"cove/internal/server/storage"
)

// Handler contains the HTTP handlers for the cove API.
type Handler struct {
	ingester *service.Ingester
	store    *storage.Store
	keys     *auth.KeyStore
	tracker  *progress.Tracker
	cfg      *config.Config
}

// NewHandler creates a handler with its component dependencies.
func NewHandler(ingester *service.Ingester, store *storage.Store, keys *auth.KeyStore, tracker *progress.Tracker, cfg *config.Config) *Handler {
	return &Handler{
		ingester: ingester,
		store:    store,
		keys:     keys,
		tracker:  tracker,
		cfg:      cfg,
	}
}

// HandleUpload handles POST /upload. The ingestion strategy is decided
// once per request from the declared length and the largeFile flag.
func (h *Handler) HandleUpload(c echo.Context) error {
	req := c.Request()
	ctx, cancel := context.WithTimeout(req.Context(), h.cfg.RequestTimeout)
	defer cancel()

	largeFlag := c.QueryParam("largeFile") == "true"
	uploadID := c.QueryParam("uploadId")

	var (
		result *service.Result
		err    error
	)
	if h.ingester.UseStreaming(req.ContentLength, largeFlag) {
		result, err = h.uploadStreaming(ctx, c, uploadID)
	} else {
		result, err = h.uploadBuffered(ctx, c, uploadID)
	}
	if err != nil {
		return h.uploadFailure(ctx, c, err)
	}

	metrics.UploadsTotal.Inc()
	metrics.UploadBytesTotal.Add(float64(result.Size))

	return respondOK(c, http.StatusOK, "file uploaded", echo.Map{
		"file": echo.Map{
			"name":         result.Name,
			"size":         result.Size,
			"content_type": result.ContentType,
			"url":          fmt.Sprintf("%s/f/%s", h.cfg.BaseURL, result.Name),
			"delete_url":   fmt.Sprintf("%s/delete?filename=%s", h.cfg.BaseURL, result.Name),
		},
	})
}

// uploadBuffered is the regular path: the whole multipart form is parsed
// under the regular size limit before any authentication re-check.
func (h *Handler) uploadBuffered(ctx context.Context, c echo.Context, uploadID string) (*service.Result, error) {
	req := c.Request()

	// Bound the buffered body; the margin covers multipart framing and
	// non-file fields.
	req.Body = http.MaxBytesReader(c.Response(), req.Body, h.cfg.FileSizeLimit+1024*1024)

	form, err := c.MultipartForm()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, service.ErrFileTooLarge
		}
		return nil, fmt.Errorf("%w: %v", service.ErrMalformedUpload, err)
	}
	defer form.RemoveAll()

	if len(form.Value) > 10 {
		return nil, fmt.Errorf("%w: too many form fields", service.ErrMalformedUpload)
	}
	files := form.File["file"]
	if len(files) == 0 {
		return nil, service.ErrNoFile
	}
	if len(files) > 1 {
		return nil, fmt.Errorf("%w: more than one file", service.ErrMalformedUpload)
	}

	// The key may have been inside the form body, invisible to the
	// middleware; the form is parsed now, so resolve it before any write.
	if _, ok := usernameFromContext(c); !ok {
		user, err := h.keys.Authenticate(auth.ExtractKey(req))
		if err != nil {
			return nil, err
		}
		c.Set(ctxUsername, user)
	}

	return h.ingester.IngestBuffered(ctx, files[0], uploadID)
}

// uploadStreaming is the large-file path. Authentication may only be
// resolvable after the stream has been consumed; if it ultimately fails,
// the stored file is deleted.
func (h *Handler) uploadStreaming(ctx context.Context, c echo.Context, uploadID string) (*service.Result, error) {
	mr, err := c.Request().MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrMalformedUpload, err)
	}

	result, fields, err := h.ingester.IngestStream(ctx, mr, uploadID)
	if err != nil {
		return nil, err
	}

	if _, ok := usernameFromContext(c); !ok {
		user, authErr := h.keys.Authenticate(fields["key"])
		if authErr != nil {
			if delErr := h.store.Delete(result.Name); delErr != nil {
				slog.Error("failed to delete unauthenticated upload", "file", result.Name, "error", delErr)
			}
			return nil, authErr
		}
		c.Set(ctxUsername, user)
	}

	return result, nil
}

// uploadFailure maps an ingestion error to a response, honoring the
// request timeout and never writing after headers have gone out.
func (h *Handler) uploadFailure(ctx context.Context, c echo.Context, err error) error {
	if c.Response().Committed {
		slog.Error("upload failed after response committed", "error", err)
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return respondError(c, http.StatusRequestTimeout, CodeRequestTimeout,
			"upload timed out", "")
	}
	return mapError(c, err)
}

// HandleDelete handles GET /delete?filename=&key=. Any authenticated key
// may delete any file; files are not tied to their uploader.
func (h *Handler) HandleDelete(c echo.Context) error {
	filename := c.QueryParam("filename")

	if err := h.store.Delete(filename); err != nil {
		return mapError(c, err)
	}

	user, _ := usernameFromContext(c)
	metrics.DeletesTotal.Inc()
	slog.Info("file deleted", "file", filename, "user", user)

	return respondOK(c, http.StatusOK, "file deleted", echo.Map{
		"filename": filename,
	})
}

// HandleClientConfig handles GET /config?key=. Returns a ShareX-style
// uploader definition embedding the caller's own key, served as a
// download.
func (h *Handler) HandleClientConfig(c echo.Context) error {
	key := auth.ExtractKey(c.Request())
	user, _ := usernameFromContext(c)

	doc := map[string]any{
		"Version":         "14.1.0",
		"Name":            "cove (" + user + ")",
		"DestinationType": "ImageUploader, FileUploader",
		"RequestMethod":   "POST",
		"RequestURL":      h.cfg.BaseURL + "/upload",
		"Body":            "MultipartFormData",
		"Arguments":       map[string]string{"key": key},
		"FileFormName":    "file",
		"URL":             "{json:data.file.url}",
		"DeletionURL":     "{json:data.file.delete_url}",
	}
	blob, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return mapError(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="cove.sxcu"`)
	return c.Blob(http.StatusOK, "application/json", blob)
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	storageStatus := "ok"

	if info, err := os.Stat(h.store.Root()); err != nil || !info.IsDir() {
		status = "degraded"
		storageStatus = "upload directory unavailable"
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":  status,
		"storage": storageStatus,
	})
}

// HandleStats handles GET /api/stats. Aggregates are computed by walking
// the upload directory.
func (h *Handler) HandleStats(c echo.Context) error {
	stats, err := h.store.Stat()
	if err != nil {
		return mapError(c, err)
	}

	return respondOK(c, http.StatusOK, "storage stats", echo.Map{
		"files":              stats.Files,
		"storage_used_bytes": stats.TotalBytes,
		"storage_used_human": humanizeBytes(stats.TotalBytes),
	})
}

// humanizeBytes formats a byte count into a human-readable string.
func humanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
