package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"cove/internal/server/metrics"
)

// videoTypes are the extensions served with byte-range support so media
// players can seek.
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
}

// imageTypes are served inline with long-lived cache headers; stored
// files never change, so aggressive caching is safe.
var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".ico":  "image/x-icon",
	".svg":  "image/svg+xml",
}

// HandleServe handles GET /f/:filename. No authentication: the generated
// filenames are the only handle clients have.
func (h *Handler) HandleServe(c echo.Context) error {
	name := c.Param("filename")

	f, info, err := h.store.Open(name)
	if err != nil {
		return mapError(c, err)
	}
	defer f.Close()

	metrics.DownloadsTotal.Inc()

	ext := strings.ToLower(filepath.Ext(name))
	res := c.Response()

	if contentType, ok := videoTypes[ext]; ok {
		return h.serveVideo(c, f, info.Size(), contentType)
	}

	if contentType, ok := imageTypes[ext]; ok {
		res.Header().Set(echo.HeaderContentType, contentType)
		res.Header().Set(echo.HeaderContentLength, strconv.FormatInt(info.Size(), 10))
		res.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		res.WriteHeader(http.StatusOK)
		return h.streamBody(c, f, info.Size())
	}

	// Unknown extension: plain download rather than inline rendering.
	res.Header().Set(echo.HeaderContentType, "application/octet-stream")
	res.Header().Set(echo.HeaderContentLength, strconv.FormatInt(info.Size(), 10))
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename=%q`, name))
	res.WriteHeader(http.StatusOK)
	return h.streamBody(c, f, info.Size())
}

// serveVideo honors an optional Range header with 206/416 semantics.
func (h *Handler) serveVideo(c echo.Context, f io.ReadSeeker, size int64, contentType string) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, contentType)
	res.Header().Set("Accept-Ranges", "bytes")

	rangeHeader := c.Request().Header.Get("Range")
	if rangeHeader == "" {
		res.Header().Set(echo.HeaderContentLength, strconv.FormatInt(size, 10))
		res.WriteHeader(http.StatusOK)
		return h.streamBody(c, f, size)
	}

	start, end, ok := parseRange(rangeHeader, size)
	if !ok {
		res.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		res.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return nil
	}

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return mapError(c, fmt.Errorf("seek failed: %w", err))
	}

	length := end - start + 1
	res.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	res.Header().Set(echo.HeaderContentLength, strconv.FormatInt(length, 10))
	res.WriteHeader(http.StatusPartialContent)
	return h.streamBody(c, io.LimitReader(f, length), length)
}

// streamBody copies file bytes to the client after headers are out.
// A failure here can only be logged; the connection is already committed
// and no second response may be written.
func (h *Handler) streamBody(c echo.Context, src io.Reader, length int64) error {
	if c.Request().Method == http.MethodHead {
		return nil
	}
	if _, err := io.Copy(c.Response(), src); err != nil {
		slog.Warn("stream aborted",
			"path", c.Request().URL.Path,
			"length", length,
			"error", err,
		)
	}
	return nil
}

// parseRange parses a single "bytes=start-end" range against the file
// size. A missing end means through end of file. Returns ok=false for
// anything unsatisfiable or malformed.
func parseRange(header string, size int64) (start, end int64, ok bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, 0, false
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		// Multi-range requests are not supported.
		return 0, 0, false
	}

	startStr, endStr, found := strings.Cut(spec, "-")
	if !found || startStr == "" {
		return 0, 0, false
	}

	start, err := strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false
	}

	if strings.TrimSpace(endStr) == "" {
		end = size - 1
	} else {
		end, err = strconv.ParseInt(strings.TrimSpace(endStr), 10, 64)
		if err != nil {
			return 0, 0, false
		}
	}

	if start >= size || end >= size || start > end {
		return 0, 0, false
	}
	return start, end, true
}
