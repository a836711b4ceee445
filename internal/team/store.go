package team

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pucc/slapshot/internal/auth"
)

var (
	// ErrNotFound is returned for unknown teams, join codes, or members.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned for permission, role, and self-action violations.
	ErrForbidden = errors.New("forbidden")
	// ErrConfirmation is returned when team deletion confirmation input does
	// not match.
	ErrConfirmation = errors.New("confirmation mismatch")
	// ErrConflict is returned on an unexpected uniqueness race during
	// creation.
	ErrConflict = errors.New("conflict")
)

// deleteConfirmWord is the literal a caller must type to delete a team.
const deleteConfirmWord = "DELETE"

const uniqueViolation = "23505"

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides database operations for teams and memberships.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a team store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ownerMembershipInsert relies on the partial unique index on
// team_members(team_id) WHERE role = 'owner' to keep ownership single.
const ownerMembershipInsert = `INSERT INTO team_members (team_id, user_id, role, status)
	 VALUES ($1, $2, 'owner', 'active')`

const teamColumns = `id, name, slug, join_code,
	coalesce(age_group, ''), coalesce(season_year, ''), coalesce(level, ''),
	coalesce(home_rink, ''), coalesce(city, ''), coalesce(notes, ''),
	coalesce(logo_path, ''), created_by, created_at`

func scanTeam(row pgx.Row) (*Team, error) {
	t := &Team{}
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.JoinCode,
		&t.AgeGroup, &t.SeasonYear, &t.Level,
		&t.HomeRink, &t.City, &t.Notes,
		&t.LogoPath, &t.CreatedBy, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Create makes a team with a unique slug and join code and an owner
// membership for ownerID, all in one transaction.
func (s *Store) Create(ctx context.Context, ownerID, name string, meta Metadata) (*Team, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	t, err := s.CreateTx(ctx, tx, ownerID, name, meta)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing team creation: %w", err)
	}
	return t, nil
}

// CreateTx is Create running inside an existing transaction, so registration
// can create the account and its first team atomically.
func (s *Store) CreateTx(ctx context.Context, q Querier, ownerID, name string, meta Metadata) (*Team, error) {
	slug, err := uniqueSlug(ctx, name, func(ctx context.Context, candidate string) (bool, error) {
		return s.rowExists(ctx, q, `SELECT 1 FROM teams WHERE slug = $1`, candidate)
	})
	if err != nil {
		return nil, err
	}

	joinCode, err := uniqueJoinCode(ctx, func(ctx context.Context, candidate string) (bool, error) {
		return s.rowExists(ctx, q, `SELECT 1 FROM teams WHERE join_code = $1`, candidate)
	})
	if err != nil {
		return nil, err
	}

	t, err := scanTeam(q.QueryRow(ctx,
		`INSERT INTO teams (name, slug, join_code, age_group, season_year, level, home_rink, city, notes, created_by)
		 VALUES ($1, $2, $3, nullif($4, ''), nullif($5, ''), nullif($6, ''), nullif($7, ''), nullif($8, ''), nullif($9, ''), $10)
		 RETURNING `+teamColumns,
		name, slug, joinCode, meta.AgeGroup, meta.SeasonYear, meta.Level,
		meta.HomeRink, meta.City, meta.Notes, ownerID,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("creating team: %w", err)
	}

	_, err = q.Exec(ctx, ownerMembershipInsert, t.ID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("creating owner membership: %w", err)
	}

	return t, nil
}

func (s *Store) rowExists(ctx context.Context, q Querier, sql string, args ...any) (bool, error) {
	var one int
	err := q.QueryRow(ctx, sql, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetByID retrieves a team by primary key.
func (s *Store) GetByID(ctx context.Context, id string) (*Team, error) {
	t, err := scanTeam(s.pool.QueryRow(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting team: %w", err)
	}
	return t, nil
}

// GetByJoinCode retrieves a team by its exact join code.
func (s *Store) GetByJoinCode(ctx context.Context, code string) (*Team, error) {
	t, err := scanTeam(s.pool.QueryRow(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE join_code = $1`, NormalizeJoinCode(code)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting team by join code: %w", err)
	}
	return t, nil
}

// Update changes team metadata. The actor must be admin-or-owner.
func (s *Store) Update(ctx context.Context, actorID, teamID, name string, meta Metadata) (*Team, error) {
	if _, err := s.RequireAdmin(ctx, actorID, teamID); err != nil {
		return nil, err
	}

	t, err := scanTeam(s.pool.QueryRow(ctx,
		`UPDATE teams SET name = $1,
			age_group = nullif($2, ''), season_year = nullif($3, ''), level = nullif($4, ''),
			home_rink = nullif($5, ''), city = nullif($6, ''), notes = nullif($7, '')
		 WHERE id = $8
		 RETURNING `+teamColumns,
		name, meta.AgeGroup, meta.SeasonYear, meta.Level,
		meta.HomeRink, meta.City, meta.Notes, teamID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("updating team: %w", err)
	}
	return t, nil
}

// SetLogoPath records the stored logo path for a team; pass "" to clear it.
func (s *Store) SetLogoPath(ctx context.Context, actorID, teamID, path string) error {
	if _, err := s.RequireAdmin(ctx, actorID, teamID); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE teams SET logo_path = nullif($1, '') WHERE id = $2`, path, teamID)
	if err != nil {
		return fmt.Errorf("setting logo path: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a team and everything hanging off it (memberships, invites,
// media rows cascade). Only the owner may delete, and only with both
// confirmation inputs matching: confirmWord must be the literal "DELETE" and
// confirmName must equal the team's current name byte-for-byte. That is
// friction, not authentication.
func (s *Store) Delete(ctx context.Context, actorID, teamID, confirmName, confirmWord string) (*Team, error) {
	role, err := s.RequireMembership(ctx, actorID, teamID)
	if err != nil {
		return nil, err
	}
	if role != auth.RoleOwner {
		return nil, fmt.Errorf("%w: only the owner can delete a team", ErrForbidden)
	}

	t, err := s.GetByID(ctx, teamID)
	if err != nil {
		return nil, err
	}

	if confirmWord != deleteConfirmWord {
		return nil, fmt.Errorf("%w: type %s to confirm", ErrConfirmation, deleteConfirmWord)
	}
	if confirmName != t.Name {
		return nil, fmt.Errorf("%w: team name does not match", ErrConfirmation)
	}

	if _, err := s.pool.Exec(ctx, `DELETE FROM teams WHERE id = $1`, teamID); err != nil {
		return nil, fmt.Errorf("deleting team: %w", err)
	}
	return t, nil
}
