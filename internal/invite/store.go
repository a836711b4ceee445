package invite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// undefinedTable is the Postgres error code raised when the invites table
// has not been migrated yet. Invite tracking degrades to disabled rather
// than failing the calling operation.
const undefinedTable = "42P01"

// Store provides best-effort invite tracking over Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an invite store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func isMissingSchema(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTable
}

// RecordSend upserts the invite row for (team, email). A repeat send bumps
// send_count and refreshes last_sent_at, inviter, and message, but an
// accepted invite is never downgraded back to pending. Returns false when
// invite tracking is unavailable (unmigrated schema); the email itself has
// already been handled by the caller either way.
func (s *Store) RecordSend(ctx context.Context, teamID, inviterID, email, message string) (bool, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO team_invites (team_id, email, invited_by, message, status, send_count, last_sent_at)
		 VALUES ($1, $2, $3, nullif($4, ''), 'pending', 1, now())
		 ON CONFLICT (team_id, email) DO UPDATE SET
			send_count = team_invites.send_count + 1,
			last_sent_at = now(),
			invited_by = excluded.invited_by,
			message = excluded.message,
			status = CASE WHEN team_invites.status = 'accepted'
			              THEN team_invites.status ELSE 'pending' END`,
		teamID, email, inviterID, message,
	)
	if err != nil {
		if isMissingSchema(err) {
			return false, nil
		}
		return true, fmt.Errorf("recording invite send: %w", err)
	}
	return true, nil
}

// Reconcile forces any invite whose email now matches an active member to
// accepted, backfilling accepted_at from the membership creation time. It is
// idempotent and safe to call on every read or from a sweep.
func (s *Store) Reconcile(ctx context.Context, teamID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE team_invites i
		 SET status = 'accepted',
		     accepted_at = coalesce(i.accepted_at, tm.created_at)
		 FROM team_members tm JOIN users u ON u.id = tm.user_id
		 WHERE i.team_id = $1
		   AND tm.team_id = i.team_id
		   AND tm.status = 'active'
		   AND lower(u.email) = lower(i.email)
		   AND i.status <> 'accepted'`,
		teamID,
	)
	if err != nil {
		if isMissingSchema(err) {
			return nil
		}
		return fmt.Errorf("reconciling invites: %w", err)
	}
	return nil
}

// List returns the team's invites after a reconciliation pass: pending
// first, then accepted, then everything else, most recently sent first
// within a tier. The second return is false when invite tracking is
// unavailable; the caller should surface an empty list, never an error.
func (s *Store) List(ctx context.Context, teamID string) ([]Invite, bool, error) {
	if err := s.Reconcile(ctx, teamID); err != nil {
		return nil, true, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT team_id, email, invited_by, coalesce(message, ''), status,
		        send_count, last_sent_at, accepted_at, created_at
		 FROM team_invites
		 WHERE team_id = $1
		 ORDER BY CASE status WHEN 'pending' THEN 0 WHEN 'accepted' THEN 1 ELSE 2 END,
		          last_sent_at DESC`,
		teamID,
	)
	if err != nil {
		if isMissingSchema(err) {
			slog.Warn("invite tracking disabled: team_invites table missing")
			return nil, false, nil
		}
		return nil, true, fmt.Errorf("listing invites: %w", err)
	}
	defer rows.Close()

	var invites []Invite
	for rows.Next() {
		var in Invite
		err := rows.Scan(&in.TeamID, &in.Email, &in.InvitedBy, &in.Message, &in.Status,
			&in.SendCount, &in.LastSentAt, &in.AcceptedAt, &in.CreatedAt)
		if err != nil {
			return nil, true, fmt.Errorf("scanning invite row: %w", err)
		}
		invites = append(invites, in)
	}
	return invites, true, rows.Err()
}
