package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"cove/internal/server/auth"
	"cove/internal/server/service"
	"cove/internal/server/storage"
)

// Machine-readable error codes returned to clients.
const (
	CodeEmptyKey         = "EMPTY_KEY"
	CodeInvalidKey       = "INVALID_KEY"
	CodeNoFile           = "NO_FILE"
	CodeInvalidExtension = "INVALID_EXTENSION"
	CodeFileTooLarge     = "FILE_TOO_LARGE"
	CodeRateLimited      = "RATE_LIMITED"
	CodeEmptyFilename    = "EMPTY_FILENAME"
	CodeFileNotFound     = "FILE_NOT_FOUND"
	CodePathTraversal    = "PATH_TRAVERSAL"
	CodeRequestTimeout   = "REQUEST_TIMEOUT"
	CodeServerError      = "SERVER_ERROR"
)

// Envelope is the uniform success shape for all JSON responses.
type Envelope struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail is the payload inside an error envelope.
type ErrorDetail struct {
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	Fix       string    `json:"fix,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type errorEnvelope struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// respondOK writes a success envelope.
func respondOK(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, Envelope{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// respondError writes an error envelope.
func respondError(c echo.Context, status int, code, message, fix string) error {
	return c.JSON(status, errorEnvelope{
		Success: false,
		Error: ErrorDetail{
			Message:   message,
			Code:      code,
			Fix:       fix,
			Timestamp: time.Now().UTC(),
		},
	})
}

// mapError translates component-level errors into envelope responses.
// Unexpected errors collapse into a generic 500; detail stays in the logs.
func mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, auth.ErrEmptyKey):
		return respondError(c, http.StatusBadRequest, CodeEmptyKey,
			"no API key supplied", "pass the key via ?key=, a form field, X-Api-Key, or a bearer token")
	case errors.Is(err, auth.ErrInvalidKey):
		return respondError(c, http.StatusUnauthorized, CodeInvalidKey,
			"invalid API key", "")
	case errors.Is(err, service.ErrNoFile):
		return respondError(c, http.StatusBadRequest, CodeNoFile,
			"no file supplied", "send the file in a multipart field named 'file'")
	case errors.Is(err, service.ErrInvalidExtension):
		return respondError(c, http.StatusBadRequest, CodeInvalidExtension,
			"file extension not allowed", "")
	case errors.Is(err, service.ErrFileTooLarge):
		return respondError(c, http.StatusRequestEntityTooLarge, CodeFileTooLarge,
			"file exceeds maximum allowed size", "")
	case errors.Is(err, service.ErrMalformedUpload):
		return respondError(c, http.StatusBadRequest, CodeServerError,
			"malformed multipart body", "")
	case errors.Is(err, service.ErrClientAborted),
		errors.Is(err, service.ErrReadFailed),
		errors.Is(err, service.ErrWriteFailed):
		return respondError(c, http.StatusInternalServerError, CodeServerError,
			"upload failed", "")
	case errors.Is(err, storage.ErrEmptyFilename):
		return respondError(c, http.StatusBadRequest, CodeEmptyFilename,
			"no filename supplied", "")
	case errors.Is(err, storage.ErrUnsafeFilename):
		return respondError(c, http.StatusForbidden, CodePathTraversal,
			"filename is not allowed", "")
	case errors.Is(err, storage.ErrNotFound):
		return respondError(c, http.StatusNotFound, CodeFileNotFound,
			"file not found", "")
	default:
		return respondError(c, http.StatusInternalServerError, CodeServerError,
			"internal server error", "")
	}
}
