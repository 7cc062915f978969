package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Sentinel errors for filename validation and lookup.
var (
	ErrEmptyFilename  = errors.New("empty filename")
	ErrUnsafeFilename = errors.New("filename fails path containment")
	ErrNotFound       = errors.New("file not found")
)

// Store manages the upload directory. Filenames are always validated
// against path traversal before any filesystem access.
type Store struct {
	root string // absolute, symlink-resolved upload root
}

// NewStore creates the upload directory if needed and resolves it to an
// absolute path so containment checks cannot be fooled by a relative root.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", dir, err)
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upload directory: %w", err)
	}
	// Resolve symlinks in the root itself so the prefix check below
	// compares like with like.
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	return &Store{root: root}, nil
}

// Root returns the absolute upload root path.
func (s *Store) Root() string {
	return s.root
}

// sanitize validates a client-supplied filename and returns the joined
// absolute path. It never touches the filesystem.
func (s *Store) sanitize(name string) (string, error) {
	if name == "" {
		return "", ErrEmptyFilename
	}
	if strings.Contains(name, "..") {
		return "", ErrUnsafeFilename
	}
	if filepath.Base(name) != name {
		return "", ErrUnsafeFilename
	}
	full := filepath.Join(s.root, name)
	abs, err := filepath.Abs(full)
	if err != nil {
		return "", ErrUnsafeFilename
	}
	if !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", ErrUnsafeFilename
	}
	return abs, nil
}

// resolveExisting sanitizes the name and additionally resolves symlinks,
// rejecting paths that escape the root through a link. Returns ErrNotFound
// if nothing exists at the path.
func (s *Store) resolveExisting(name string) (string, error) {
	abs, err := s.sanitize(name)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to resolve %s: %w", name, err)
	}
	if resolved != s.root && !strings.HasPrefix(resolved, s.root+string(filepath.Separator)) {
		return "", ErrUnsafeFilename
	}
	return resolved, nil
}

// Create opens a new destination file for writing.
func (s *Store) Create(name string) (*os.File, string, error) {
	abs, err := s.sanitize(name)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Create(abs)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create %s: %w", name, err)
	}
	return f, abs, nil
}

// Open opens a stored file for reading along with its metadata.
func (s *Store) Open(name string) (*os.File, os.FileInfo, error) {
	abs, err := s.resolveExisting(name)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to stat %s: %w", name, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, ErrNotFound
	}
	return f, info, nil
}

// Delete removes a stored file. Returns ErrNotFound when it is absent.
func (s *Store) Delete(name string) error {
	abs, err := s.resolveExisting(name)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

// RemovePartial deletes a half-written file by absolute path, best effort.
func (s *Store) RemovePartial(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Stats walks the upload directory and reports file count and total bytes.
type Stats struct {
	Files      int
	TotalBytes int64
}

// Stat computes aggregate storage statistics by walking the upload root.
func (s *Store) Stat() (Stats, error) {
	var stats Stats
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		stats.Files++
		stats.TotalBytes += info.Size()
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("failed to walk upload directory: %w", err)
	}
	return stats, nil
}
