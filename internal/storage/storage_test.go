package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestSaveAndOpen(t *testing.T) {
	s := newTestStore(t)

	n, err := s.Save("team-1/logo.png", strings.NewReader("png bytes"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if n != int64(len("png bytes")) {
		t.Errorf("wrote %d bytes", n)
	}

	f, err := s.Open("team-1/logo.png")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	got, _ := io.ReadAll(f)
	if string(got) != "png bytes" {
		t.Errorf("read back %q", got)
	}
}

func TestResolveRejectsEscapes(t *testing.T) {
	s := newTestStore(t)

	for _, rel := range []string{
		"", ".", "..", "../outside", "a/../../outside", "/etc/passwd",
	} {
		if _, err := s.Save(rel, strings.NewReader("x")); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("Save(%q) = %v, want ErrInvalidPath", rel, err)
		}
	}
}

func TestDeleteMissingIsNotAnError(t *testing.T) {
	s := newTestStore(t)
	if err := s.Delete("team-9/nope.jpg"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}

func TestPurgeDirectory(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"team-2/a.jpg", "team-2/b.mp4", "team-3/keep.jpg"} {
		if _, err := s.Save(name, strings.NewReader("x")); err != nil {
			t.Fatalf("Save %s: %v", name, err)
		}
	}

	if err := s.PurgeDirectory("team-2"); err != nil {
		t.Fatalf("PurgeDirectory: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "team-2")); !errors.Is(err, os.ErrNotExist) {
		t.Error("team-2 still exists")
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "team-3", "keep.jpg")); err != nil {
		t.Errorf("unrelated file removed: %v", err)
	}
}
