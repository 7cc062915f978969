package storage

import (
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestNamer_Generate(t *testing.T) {
	fixed := time.Date(2024, time.June, 1, 15, 4, 5, 0, time.UTC)

	newFixedNamer := func(suffixLen int) *Namer {
		n := NewNamer(suffixLen)
		n.now = func() time.Time { return fixed }
		return n
	}

	t.Run("format is timestamp underscore suffix extension", func(t *testing.T) {
		n := newFixedNamer(8)
		name, err := n.Generate("Holiday.PNG")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		pattern := regexp.MustCompile(`^2024_Jun_01-15_04_05_[A-Za-z0-9]{8}\.png$`)
		if !pattern.MatchString(name) {
			t.Errorf("name %q does not match expected format", name)
		}
	})

	t.Run("extension is lower-cased", func(t *testing.T) {
		n := newFixedNamer(8)
		name, err := n.Generate("VIDEO.MP4")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasSuffix(name, ".mp4") {
			t.Errorf("expected .mp4 suffix, got %q", name)
		}
	})

	t.Run("no extension on original yields none", func(t *testing.T) {
		n := newFixedNamer(4)
		name, err := n.Generate("Makefile")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(name[len("2006_Jan_02-15_04_05"):], ".") {
			t.Errorf("expected no extension, got %q", name)
		}
	})

	t.Run("suffix length is configurable", func(t *testing.T) {
		n := newFixedNamer(12)
		name, err := n.Generate("a.jpg")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		pattern := regexp.MustCompile(`_[A-Za-z0-9]{12}\.jpg$`)
		if !pattern.MatchString(name) {
			t.Errorf("expected 12-char suffix in %q", name)
		}
	})

	t.Run("names within one second still differ", func(t *testing.T) {
		n := newFixedNamer(8)
		seen := make(map[string]bool)
		for i := 0; i < 50; i++ {
			name, err := n.Generate("x.png")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if seen[name] {
				t.Fatalf("duplicate name generated: %s", name)
			}
			seen[name] = true
		}
	})
}
