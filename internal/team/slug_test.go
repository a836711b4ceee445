package team

import (
	"context"
	"strings"
	"testing"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ice Storm", "ice-storm"},
		{"  Mighty Ducks!  ", "mighty-ducks"},
		{"U12 -- AA", "u12-aa"},
		{"???", "team"},
		{"", "team"},
		{"already-slugged", "already-slugged"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUniqueSlugAppendsSuffix(t *testing.T) {
	taken := map[string]bool{"ice-storm": true, "ice-storm-2": true}
	exists := func(_ context.Context, c string) (bool, error) { return taken[c], nil }

	got, err := uniqueSlug(context.Background(), "Ice Storm", exists)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ice-storm-3" {
		t.Errorf("expected ice-storm-3, got %q", got)
	}
}

func TestUniqueSlugNoCollision(t *testing.T) {
	exists := func(_ context.Context, c string) (bool, error) { return false, nil }

	got, err := uniqueSlug(context.Background(), "Ice Storm", exists)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ice-storm" {
		t.Errorf("expected ice-storm, got %q", got)
	}
}

func TestRandomJoinCodeShape(t *testing.T) {
	code, err := randomJoinCode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(code) != joinCodeLength {
		t.Fatalf("expected %d chars, got %d", joinCodeLength, len(code))
	}
	for _, c := range code {
		if !strings.ContainsRune(joinCodeAlphabet, c) {
			t.Errorf("code contains %q, not in alphabet", c)
		}
	}
}

func TestUniqueJoinCodeFailsClosed(t *testing.T) {
	// Everything is taken: the loop must give up rather than spin.
	exists := func(_ context.Context, c string) (bool, error) { return true, nil }

	_, err := uniqueJoinCode(context.Background(), exists)
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
}

func TestUniqueJoinCodeRetriesCollisions(t *testing.T) {
	calls := 0
	exists := func(_ context.Context, c string) (bool, error) {
		calls++
		return calls < 3, nil // first two candidates taken
	}

	code, err := uniqueJoinCode(context.Background(), exists)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code == "" {
		t.Fatal("expected a code")
	}
	if calls != 3 {
		t.Errorf("expected 3 existence checks, got %d", calls)
	}
}

func TestNormalizeJoinCode(t *testing.T) {
	if got := NormalizeJoinCode(" abcd2345 "); got != "ABCD2345" {
		t.Errorf("got %q", got)
	}
}
