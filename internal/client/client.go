package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ValidationError reports a bad command-line argument.
type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

// ValidatePaths checks that every argument names a readable regular file.
func ValidatePaths(args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, &ValidationError{Arg: "<files>", Cause: "no files provided"}
	}

	var out []string
	for _, raw := range args {
		p := filepath.Clean(raw)
		info, err := os.Stat(p)
		if err != nil {
			return nil, &ValidationError{Arg: raw, Cause: "not found or not accessible"}
		}
		if info.IsDir() {
			return nil, &ValidationError{Arg: raw, Cause: "is a directory, not a file"}
		}
		out = append(out, p)
	}
	return out, nil
}

// UploadedFile is what the server reports for a stored upload.
type UploadedFile struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	URL       string `json:"url"`
	DeleteURL string `json:"delete_url"`
}

// envelope mirrors the server's uniform response shape.
type envelope struct {
	Success bool `json:"success"`
	Data    struct {
		File UploadedFile `json:"file"`
	} `json:"data"`
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Client talks to a cove server.
type Client struct {
	baseURL string
	key     string
	http    *http.Client
}

// New creates a client for the given server. The key is sent as a
// bearer token.
func New(baseURL, key string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		http:    &http.Client{Timeout: 30 * time.Minute},
	}
}

// Upload sends one file and returns the stored file's details.
func (c *Client) Upload(ctx context.Context, path string) (*UploadedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.key)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	env, err := decodeEnvelope(resp.Body)
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fmt.Errorf("server rejected upload: %s (%s)", env.Error.Message, env.Error.Code)
	}
	return &env.Data.File, nil
}

// Delete removes a stored file by name.
func (c *Client) Delete(ctx context.Context, filename string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/delete?filename="+filename, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.key)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete request failed: %w", err)
	}
	defer resp.Body.Close()

	env, err := decodeEnvelope(resp.Body)
	if err != nil {
		return err
	}
	if !env.Success {
		return fmt.Errorf("server rejected delete: %s (%s)", env.Error.Message, env.Error.Code)
	}
	return nil
}

func decodeEnvelope(r io.Reader) (*envelope, error) {
	var env envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("unreadable server response: %w", err)
	}
	return &env, nil
}
