package team

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// joinCodeAlphabet deliberately omits easily-confused symbols (I, O, 0, 1).
const joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const joinCodeLength = 8

// maxCodeAttempts caps the generate-then-verify retry loop so pathological
// uniqueness contention fails closed instead of spinning forever.
const maxCodeAttempts = 20

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts a team name to its URL-safe base slug.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = nonSlugChars.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "team"
	}
	return s
}

// existsFunc reports whether a candidate value is already taken.
type existsFunc func(ctx context.Context, candidate string) (bool, error)

// uniqueSlug derives a slug from name, appending -2, -3, ... until the
// candidate is free.
func uniqueSlug(ctx context.Context, name string, exists existsFunc) (string, error) {
	base := Slugify(name)
	candidate := base
	for counter := 2; ; counter++ {
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("checking slug %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, counter)
	}
}

// uniqueJoinCode generates random codes until one is free, capped at
// maxCodeAttempts.
func uniqueJoinCode(ctx context.Context, exists existsFunc) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := randomJoinCode()
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("checking join code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("exhausted %d join code attempts", maxCodeAttempts)
}

func randomJoinCode() (string, error) {
	max := big.NewInt(int64(len(joinCodeAlphabet)))
	b := make([]byte, joinCodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating join code: %w", err)
		}
		b[i] = joinCodeAlphabet[n.Int64()]
	}
	return string(b), nil
}

// NormalizeJoinCode uppercases and trims user-supplied join code input.
func NormalizeJoinCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
