// Package ratelimit provides persisted per-user rolling windows. Counters
// live in Postgres so limits survive restarts and hold across replicas.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrLimited is returned when a window is exhausted or the minimum gap
// between actions has not elapsed.
var ErrLimited = errors.New("rate limit exceeded")

// Policy describes one limited action kind.
type Policy struct {
	Kind   string        // rate_windows.kind
	Max    int           // actions allowed per window
	Window time.Duration // window length
	MinGap time.Duration // minimum spacing between consecutive actions
}

// Policies in effect.
var (
	EmailChangePolicy = Policy{Kind: "email_change", Max: 5, Window: 24 * time.Hour, MinGap: 30 * time.Second}
	InviteEmailPolicy = Policy{Kind: "invite_email", Max: 20, Window: time.Hour, MinGap: 10 * time.Second}
)

// window is a user's stored counter state for one kind.
type window struct {
	start  time.Time
	count  int
	lastAt time.Time
}

// evaluate applies the policy to the stored state and returns the state to
// persist. found is false when the user has no row yet.
func evaluate(p Policy, now time.Time, found bool, w window) (window, error) {
	if found && now.Sub(w.lastAt) < p.MinGap {
		return w, fmt.Errorf("%w: wait %s between attempts", ErrLimited, p.MinGap)
	}
	if !found || now.Sub(w.start) >= p.Window {
		return window{start: now, count: 1, lastAt: now}, nil
	}
	if w.count >= p.Max {
		return w, fmt.Errorf("%w: %d per %s", ErrLimited, p.Max, p.Window)
	}
	w.count++
	w.lastAt = now
	return w, nil
}

// Limiter enforces one Policy against the rate_windows table.
type Limiter struct {
	pool   *pgxpool.Pool
	policy Policy
	now    func() time.Time
}

// NewLimiter creates a limiter for the given policy.
func NewLimiter(pool *pgxpool.Pool, policy Policy) *Limiter {
	return &Limiter{pool: pool, policy: policy, now: time.Now}
}

// Allow consumes one slot for the user, or returns ErrLimited. The row is
// locked for the duration so concurrent attempts serialize.
func (l *Limiter) Allow(ctx context.Context, userID string) error {
	now := l.now()

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rate window: %w", err)
	}
	defer tx.Rollback(ctx)

	var w window
	found := true
	err = tx.QueryRow(ctx,
		`SELECT window_start, count, last_at FROM rate_windows
		 WHERE user_id = $1 AND kind = $2
		 FOR UPDATE`,
		userID, l.policy.Kind,
	).Scan(&w.start, &w.count, &w.lastAt)
	if errors.Is(err, pgx.ErrNoRows) {
		found = false
	} else if err != nil {
		return fmt.Errorf("read rate window: %w", err)
	}

	next, err := evaluate(l.policy, now, found, w)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO rate_windows (user_id, kind, window_start, count, last_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, kind)
		 DO UPDATE SET window_start = $3, count = $4, last_at = $5`,
		userID, l.policy.Kind, next.start, next.count, next.lastAt)
	if err != nil {
		return fmt.Errorf("write rate window: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rate window: %w", err)
	}
	return nil
}
