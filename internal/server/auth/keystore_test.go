package auth

import (
	"errors"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func testStore() *KeyStore {
	return NewKeyStore(map[string]string{
		"alice": "alice-secret-key-1",
		"bob":   "bob-secret-key-22",
	})
}

func TestKeyStore_Authenticate(t *testing.T) {
	store := testStore()

	t.Run("valid keys resolve to their usernames", func(t *testing.T) {
		user, err := store.Authenticate("alice-secret-key-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user != "alice" {
			t.Errorf("expected alice, got %q", user)
		}

		user, err = store.Authenticate("bob-secret-key-22")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user != "bob" {
			t.Errorf("expected bob, got %q", user)
		}
	})

	t.Run("empty key fails with ErrEmptyKey", func(t *testing.T) {
		_, err := store.Authenticate("")
		if !errors.Is(err, ErrEmptyKey) {
			t.Errorf("expected ErrEmptyKey, got %v", err)
		}
	})

	t.Run("unknown key fails with ErrInvalidKey", func(t *testing.T) {
		_, err := store.Authenticate("not-a-real-key-at-all")
		if !errors.Is(err, ErrInvalidKey) {
			t.Errorf("expected ErrInvalidKey, got %v", err)
		}
	})

	t.Run("short key rejected before lookup", func(t *testing.T) {
		_, err := store.Authenticate("short")
		if !errors.Is(err, ErrInvalidKey) {
			t.Errorf("expected ErrInvalidKey, got %v", err)
		}
	})
}

func TestExtractKey_Precedence(t *testing.T) {
	newRequest := func(modify func(r *http.Request)) *http.Request {
		r, _ := http.NewRequest(http.MethodPost, "/upload", nil)
		modify(r)
		return r
	}

	t.Run("query parameter wins over everything", func(t *testing.T) {
		r := newRequest(func(r *http.Request) {
			r.URL.RawQuery = "key=query-key"
			r.Header.Set("X-Api-Key", "header-key")
			r.Header.Set("Authorization", "Bearer bearer-key")
			r.PostForm = url.Values{"key": {"form-key"}}
		})
		if got := ExtractKey(r); got != "query-key" {
			t.Errorf("expected query-key, got %q", got)
		}
	})

	t.Run("form field beats headers", func(t *testing.T) {
		r := newRequest(func(r *http.Request) {
			r.Header.Set("X-Api-Key", "header-key")
			r.PostForm = url.Values{"key": {"form-key"}}
		})
		if got := ExtractKey(r); got != "form-key" {
			t.Errorf("expected form-key, got %q", got)
		}
	})

	t.Run("X-Api-Key beats bearer token", func(t *testing.T) {
		r := newRequest(func(r *http.Request) {
			r.Header.Set("X-Api-Key", "header-key")
			r.Header.Set("Authorization", "Bearer bearer-key")
		})
		if got := ExtractKey(r); got != "header-key" {
			t.Errorf("expected header-key, got %q", got)
		}
	})

	t.Run("bearer token found when nothing else set", func(t *testing.T) {
		r := newRequest(func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer bearer-key")
		})
		if got := ExtractKey(r); got != "bearer-key" {
			t.Errorf("expected bearer-key, got %q", got)
		}
	})

	t.Run("multipart form values are seen", func(t *testing.T) {
		r := newRequest(func(r *http.Request) {
			r.MultipartForm = &multipart.Form{Value: map[string][]string{"key": {"mp-key"}}}
		})
		if got := ExtractKey(r); got != "mp-key" {
			t.Errorf("expected mp-key, got %q", got)
		}
	})

	t.Run("no key anywhere yields empty", func(t *testing.T) {
		r := newRequest(func(r *http.Request) {})
		if got := ExtractKey(r); got != "" {
			t.Errorf("expected empty, got %q", got)
		}
	})

	t.Run("non-bearer authorization is ignored", func(t *testing.T) {
		r := newRequest(func(r *http.Request) {
			r.Header.Set("Authorization", "Basic "+strings.Repeat("x", 16))
		})
		if got := ExtractKey(r); got != "" {
			t.Errorf("expected empty, got %q", got)
		}
	})
}
