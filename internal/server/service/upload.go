package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cove/internal/server/progress"
	"cove/internal/server/storage"
)

// Sentinel errors for the ingestion pipeline.
var (
	ErrNoFile           = errors.New("no file supplied")
	ErrInvalidExtension = errors.New("file extension not allowed")
	ErrFileTooLarge     = errors.New("file exceeds maximum allowed size")
	ErrMalformedUpload  = errors.New("malformed multipart body")
	ErrClientAborted    = errors.New("client aborted upload")
	ErrWriteFailed      = errors.New("failed writing upload to disk")
	ErrReadFailed       = errors.New("failed reading upload stream")
)

const (
	// maxFieldCount caps non-file fields captured per upload.
	maxFieldCount = 10
	// maxFieldValueSize caps a single captured field value.
	maxFieldValueSize = 4 * 1024
	// progressLogInterval is byte-based so log volume is bounded
	// regardless of transfer speed.
	progressLogInterval = 100 * 1024 * 1024
)

// Result describes a completed upload. Both ingestion paths produce the
// same shape so response handling downstream is uniform.
type Result struct {
	Name        string
	Path        string
	Size        int64
	ContentType string
}

// Limits carries the size and extension policy for ingestion.
type Limits struct {
	FileSizeLimit      int64
	LargeFileSizeLimit int64
	ExtensionCheck     bool
	AllowedExtensions  []string
}

// Ingester writes uploaded bytes to uniquely named files in the store.
// It decides per request between the buffered path for regular uploads
// and the streaming path for large ones.
type Ingester struct {
	store   *storage.Store
	namer   *storage.Namer
	tracker *progress.Tracker
	limits  Limits
	allowed map[string]bool
}

// NewIngester creates an ingester over the given store and namer.
// tracker may be nil when progress reporting is disabled.
func NewIngester(store *storage.Store, namer *storage.Namer, tracker *progress.Tracker, limits Limits) *Ingester {
	allowed := make(map[string]bool, len(limits.AllowedExtensions))
	for _, ext := range limits.AllowedExtensions {
		allowed[strings.ToLower(ext)] = true
	}
	return &Ingester{
		store:   store,
		namer:   namer,
		tracker: tracker,
		limits:  limits,
		allowed: allowed,
	}
}

// UseStreaming reports whether a request should take the streaming path:
// either the client flagged a large upload or the declared length
// exceeds the regular limit. Declared length -1 (unknown) also streams,
// since the body cannot be safely buffered.
func (ing *Ingester) UseStreaming(declaredLength int64, largeFlag bool) bool {
	if largeFlag {
		return true
	}
	return declaredLength < 0 || declaredLength > ing.limits.FileSizeLimit
}

// ExtensionAllowed checks a filename's extension against the allow-list.
// Always true when extension checking is disabled.
func (ing *Ingester) ExtensionAllowed(filename string) bool {
	if !ing.limits.ExtensionCheck {
		return true
	}
	return ing.allowed[strings.ToLower(filepath.Ext(filename))]
}

// IngestBuffered handles the regular path: the multipart body has
// already been parsed and fits under the regular size limit. The
// extension is checked before any bytes are accepted.
func (ing *Ingester) IngestBuffered(ctx context.Context, fh *multipart.FileHeader, uploadID string) (*Result, error) {
	if !ing.ExtensionAllowed(fh.Filename) {
		return nil, ErrInvalidExtension
	}
	if fh.Size > ing.limits.FileSizeLimit {
		return nil, ErrFileTooLarge
	}

	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	defer src.Close()

	name, err := ing.namer.Generate(fh.Filename)
	if err != nil {
		return nil, err
	}

	written, path, err := ing.writeTo(ctx, name, src, ing.limits.FileSizeLimit, uploadID)
	if err != nil {
		return nil, err
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	slog.Info("upload stored",
		"file", name,
		"original", fh.Filename,
		"bytes", written,
	)

	return &Result{Name: name, Path: path, Size: written, ContentType: contentType}, nil
}

// IngestStream handles the large-file path: the multipart stream is
// parsed incrementally and the file part is piped straight to disk.
// Non-file fields are captured into the returned map so a key supplied
// alongside the stream can be recovered for deferred authentication.
// The field map is returned even on error.
func (ing *Ingester) IngestStream(ctx context.Context, mr *multipart.Reader, uploadID string) (*Result, map[string]string, error) {
	fields := make(map[string]string)
	var result *Result

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, fields, fmt.Errorf("%w: %v", ErrClientAborted, ctx.Err())
			}
			return nil, fields, fmt.Errorf("%w: %v", ErrMalformedUpload, err)
		}

		if part.FileName() == "" {
			if len(fields) < maxFieldCount {
				value, err := io.ReadAll(io.LimitReader(part, maxFieldValueSize))
				if err == nil {
					fields[part.FormName()] = string(value)
				}
			}
			part.Close()
			continue
		}

		if result != nil {
			// Only one file per upload; NextPart discards the rest.
			part.Close()
			continue
		}

		// Extension verdict before the destination file ever exists.
		if !ing.ExtensionAllowed(part.FileName()) {
			part.Close()
			return nil, fields, ErrInvalidExtension
		}

		name, err := ing.namer.Generate(part.FileName())
		if err != nil {
			return nil, fields, err
		}

		written, path, err := ing.writeTo(ctx, name, part, ing.limits.LargeFileSizeLimit, uploadID)
		part.Close()
		if err != nil {
			return nil, fields, err
		}

		result = &Result{
			Name:        name,
			Path:        path,
			Size:        written,
			ContentType: "application/octet-stream",
		}
	}

	if result == nil {
		return nil, fields, ErrNoFile
	}
	return result, fields, nil
}

// writeTo streams src into a fresh destination file, enforcing the byte
// ceiling and emitting progress. On any failure the partial file is
// deleted best-effort and a classified error returned.
func (ing *Ingester) writeTo(ctx context.Context, name string, src io.Reader, limit int64, uploadID string) (int64, string, error) {
	dst, path, err := ing.store.Create(name)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	written, err := ing.copyWithProgress(ctx, dst, src, limit, uploadID, name)
	if err != nil {
		dst.Close()
		ing.discardPartial(path, name)
		return 0, "", err
	}

	if err := dst.Close(); err != nil {
		ing.discardPartial(path, name)
		return 0, "", fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return written, path, nil
}

func (ing *Ingester) copyWithProgress(ctx context.Context, dst *os.File, src io.Reader, limit int64, uploadID, name string) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	start := time.Now()
	nextMark := int64(progressLogInterval)

	for {
		if ctx.Err() != nil {
			return written, fmt.Errorf("%w: %v", ErrClientAborted, ctx.Err())
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			if written+int64(n) > limit {
				return written, ErrFileTooLarge
			}
			wn, werr := dst.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, fmt.Errorf("%w: %v", ErrWriteFailed, werr)
			}
			if ing.tracker != nil {
				ing.tracker.Update(uploadID, written)
			}
			if written >= nextMark {
				logThroughput(name, written, start)
				nextMark += progressLogInterval
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			if ctx.Err() != nil || errors.Is(rerr, context.Canceled) {
				return written, fmt.Errorf("%w: %v", ErrClientAborted, rerr)
			}
			return written, fmt.Errorf("%w: %v", ErrReadFailed, rerr)
		}
	}

	if written >= progressLogInterval {
		logThroughput(name, written, start)
	}
	return written, nil
}

// discardPartial removes a half-written file. A failed delete of a
// partial is logged, never escalated.
func (ing *Ingester) discardPartial(path, name string) {
	if err := ing.store.RemovePartial(path); err != nil {
		slog.Error("failed to remove partial upload", "file", name, "error", err)
	}
}

func logThroughput(name string, written int64, start time.Time) {
	elapsed := time.Since(start).Seconds()
	var mbps float64
	if elapsed > 0 {
		mbps = float64(written) / (1024 * 1024) / elapsed
	}
	slog.Info("upload progress",
		"file", name,
		"bytes", written,
		"elapsed_s", fmt.Sprintf("%.1f", elapsed),
		"throughput_mbps", fmt.Sprintf("%.1f", mbps),
	)
}
