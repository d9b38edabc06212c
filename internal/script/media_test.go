package script

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveMedia(t *testing.T) {
	t.Parallel()

	mediaRoot := t.TempDir()
	baseDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(mediaRoot, "a.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(baseDir, "b.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("relative ref under media root", func(t *testing.T) {
		t.Parallel()
		got, err := ResolveMedia("a.jpg", mediaRoot, baseDir)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(got, mediaRoot) {
			t.Fatalf("resolved outside media root: %s", got)
		}
	})

	t.Run("falls back to base dir", func(t *testing.T) {
		t.Parallel()
		got, err := ResolveMedia("b.jpg", mediaRoot, baseDir)
		if err != nil {
			t.Fatal(err)
		}
		if got != filepath.Join(baseDir, "b.jpg") {
			t.Fatalf("resolved = %s", got)
		}
	})

	t.Run("absolute ref used as given", func(t *testing.T) {
		t.Parallel()
		abs := filepath.Join(mediaRoot, "a.jpg")
		got, err := ResolveMedia(abs, "", baseDir)
		if err != nil {
			t.Fatal(err)
		}
		if got != abs {
			t.Fatalf("resolved = %s", got)
		}
	})

	t.Run("leading slashes stripped for relative lookup", func(t *testing.T) {
		t.Parallel()
		got, err := ResolveMedia("\\a.jpg", mediaRoot, "")
		if err != nil {
			t.Fatal(err)
		}
		if got != filepath.Join(mediaRoot, "a.jpg") {
			t.Fatalf("resolved = %s", got)
		}
	})

	t.Run("missing everywhere", func(t *testing.T) {
		t.Parallel()
		_, err := ResolveMedia("nope.jpg", mediaRoot, baseDir)
		if !errors.Is(err, ErrMediaMissing) {
			t.Fatalf("err = %v, want ErrMediaMissing", err)
		}
	})

	t.Run("empty reference", func(t *testing.T) {
		t.Parallel()
		_, err := ResolveMedia("  ", mediaRoot, baseDir)
		if !errors.Is(err, ErrMediaMissing) {
			t.Fatalf("err = %v, want ErrMediaMissing", err)
		}
	})
}
