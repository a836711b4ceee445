package emailchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pucc/slapshot/internal/identity"
)

// PGStore is the Postgres implementation of Store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a store backed by the given connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) EmailTaken(ctx context.Context, email, excludeUserID string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM users WHERE email = $1 AND id <> $2`,
		identity.NormalizeEmail(email), excludeUserID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking email availability: %w", err)
	}
	return true, nil
}

func (s *PGStore) HasPending(ctx context.Context, userID string, now time.Time) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM email_change_requests
		 WHERE user_id = $1 AND status = 'pending' AND expires_at > $2`,
		userID, now,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking pending requests: %w", err)
	}
	return true, nil
}

// CreatePending inserts the request and dispatches the support notification
// inside the same transaction. A mail failure rolls the insert back.
func (s *PGStore) CreatePending(ctx context.Context, req *Request, notify func() error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO email_change_requests
			(user_id, current_email, requested_email, reason, status,
			 approve_token_hash, deny_token_hash, request_ip, expires_at, created_at)
		 VALUES ($1, $2, $3, nullif($4, ''), 'pending', $5, $6, $7, $8, $9)
		 RETURNING id`,
		req.UserID, req.CurrentEmail, req.RequestedEmail, req.Reason,
		req.ApproveTokenHash, req.DenyTokenHash, req.RequestIP,
		req.ExpiresAt, req.CreatedAt,
	).Scan(&req.ID)
	if err != nil {
		return fmt.Errorf("inserting email change request: %w", err)
	}

	if err := notify(); err != nil {
		return fmt.Errorf("dispatching approval notification: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing email change request: %w", err)
	}
	return nil
}

// WithLockedRequest serializes concurrent decision attempts on one request
// behind a row lock, then applies whatever transition fn returns.
func (s *PGStore) WithLockedRequest(ctx context.Context, tokenHash string,
	fn func(req *Request, emailTaken func(email string) (bool, error)) (*Transition, error)) error {

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	req := &Request{}
	var reason, decisionIP *string
	err = tx.QueryRow(ctx,
		`SELECT id, user_id, current_email, requested_email, reason, status,
		        approve_token_hash, deny_token_hash, request_ip, decision_ip,
		        decided_at, expires_at, created_at
		 FROM email_change_requests
		 WHERE approve_token_hash = $1 OR deny_token_hash = $1
		 FOR UPDATE`,
		tokenHash,
	).Scan(&req.ID, &req.UserID, &req.CurrentEmail, &req.RequestedEmail, &reason, &req.Status,
		&req.ApproveTokenHash, &req.DenyTokenHash, &req.RequestIP, &decisionIP,
		&req.DecidedAt, &req.ExpiresAt, &req.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("locking email change request: %w", err)
	}
	if reason != nil {
		req.Reason = *reason
	}
	if decisionIP != nil {
		req.DecisionIP = *decisionIP
	}

	emailTaken := func(email string) (bool, error) {
		var one int
		err := tx.QueryRow(ctx,
			`SELECT 1 FROM users WHERE email = $1 AND id <> $2`,
			identity.NormalizeEmail(email), req.UserID,
		).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("checking email availability: %w", err)
		}
		return true, nil
	}

	transition, fnErr := fn(req, emailTaken)
	if transition == nil {
		// Nothing to apply; surface fn's verdict with the lock released.
		return fnErr
	}

	_, err = tx.Exec(ctx,
		`UPDATE email_change_requests
		 SET status = $1, decided_at = $2, decision_ip = $3
		 WHERE id = $4`,
		transition.Status, transition.DecidedAt, transition.DecisionIP, req.ID,
	)
	if err != nil {
		return fmt.Errorf("applying decision: %w", err)
	}

	if transition.UpdateEmail {
		_, err = tx.Exec(ctx,
			`UPDATE users SET email = $1 WHERE id = $2`,
			identity.NormalizeEmail(req.RequestedEmail), req.UserID,
		)
		if err != nil {
			return fmt.Errorf("applying approved email: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing decision: %w", err)
	}
	return fnErr
}
