package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func writeTestFile(t *testing.T, store *Store, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(store.Root(), name), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
}

func TestStore_Sanitize(t *testing.T) {
	store := newTestStore(t)

	t.Run("rejects empty name", func(t *testing.T) {
		_, err := store.sanitize("")
		if !errors.Is(err, ErrEmptyFilename) {
			t.Errorf("expected ErrEmptyFilename, got %v", err)
		}
	})

	rejected := []string{
		"../etc/passwd",
		"..",
		"a/../b.png",
		"sub/dir.png",
		"/etc/passwd",
		"..\\windows.png",
	}
	for _, name := range rejected {
		t.Run("rejects "+name, func(t *testing.T) {
			_, err := store.sanitize(name)
			if !errors.Is(err, ErrUnsafeFilename) {
				t.Errorf("sanitize(%q): expected ErrUnsafeFilename, got %v", name, err)
			}
		})
	}

	t.Run("accepts plain filename", func(t *testing.T) {
		abs, err := store.sanitize("2024_Jun_01-12_00_00_abCD1234.png")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if filepath.Dir(abs) != store.Root() {
			t.Errorf("expected path inside root, got %s", abs)
		}
	})
}

func TestStore_OpenDelete(t *testing.T) {
	t.Run("open returns content and size", func(t *testing.T) {
		store := newTestStore(t)
		writeTestFile(t, store, "a.txt", "hello")

		f, info, err := store.Open("a.txt")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer f.Close()

		if info.Size() != 5 {
			t.Errorf("expected size 5, got %d", info.Size())
		}
	})

	t.Run("open missing file returns ErrNotFound", func(t *testing.T) {
		store := newTestStore(t)
		_, _, err := store.Open("missing.txt")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("delete removes file", func(t *testing.T) {
		store := newTestStore(t)
		writeTestFile(t, store, "del.txt", "x")

		if err := store.Delete("del.txt"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := os.Stat(filepath.Join(store.Root(), "del.txt")); !os.IsNotExist(err) {
			t.Error("expected file to be gone")
		}
	})

	t.Run("delete miss is ErrNotFound every time", func(t *testing.T) {
		store := newTestStore(t)
		for i := 0; i < 2; i++ {
			if err := store.Delete("never-existed.txt"); !errors.Is(err, ErrNotFound) {
				t.Errorf("attempt %d: expected ErrNotFound, got %v", i+1, err)
			}
		}
	})

	t.Run("symlink escaping the root is rejected", func(t *testing.T) {
		store := newTestStore(t)
		outside := filepath.Join(t.TempDir(), "secret.txt")
		if err := os.WriteFile(outside, []byte("secret"), 0644); err != nil {
			t.Fatalf("failed to write outside file: %v", err)
		}
		link := filepath.Join(store.Root(), "innocent.txt")
		if err := os.Symlink(outside, link); err != nil {
			t.Skipf("symlinks not supported: %v", err)
		}

		_, _, err := store.Open("innocent.txt")
		if !errors.Is(err, ErrUnsafeFilename) {
			t.Errorf("expected ErrUnsafeFilename, got %v", err)
		}
	})
}

func TestStore_RemovePartial(t *testing.T) {
	store := newTestStore(t)
	path := filepath.Join(store.Root(), "partial.bin")
	if err := os.WriteFile(path, []byte("half"), 0644); err != nil {
		t.Fatalf("failed to write: %v", err)
	}

	if err := store.RemovePartial(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Second removal of the now-missing file is not an error.
	if err := store.RemovePartial(path); err != nil {
		t.Errorf("expected nil for missing partial, got %v", err)
	}
}

func TestStore_Stat(t *testing.T) {
	store := newTestStore(t)
	writeTestFile(t, store, "one.txt", "aaaa")
	writeTestFile(t, store, "two.txt", "bb")

	stats, err := store.Stat()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Files != 2 {
		t.Errorf("expected 2 files, got %d", stats.Files)
	}
	if stats.TotalBytes != 6 {
		t.Errorf("expected 6 bytes, got %d", stats.TotalBytes)
	}
}
