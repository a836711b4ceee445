package team

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pucc/slapshot/internal/auth"
)

// joinMembershipUpsert re-activates an existing membership row without
// touching its role: a fresh insert defaults to member, a re-activation
// keeps whatever role the row already had.
const joinMembershipUpsert = `INSERT INTO team_members (team_id, user_id, role, status)
	 VALUES ($1, $2, 'member', 'active')
	 ON CONFLICT (team_id, user_id)
	 DO UPDATE SET status = 'active', updated_at = now()`

// Join adds the user to the team behind the join code, or re-activates a
// previously removed membership.
func (s *Store) Join(ctx context.Context, userID, joinCode string) (*Team, error) {
	t, err := s.GetByJoinCode(ctx, joinCode)
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx, joinMembershipUpsert, t.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("joining team: %w", err)
	}
	return t, nil
}

// RequireMembership returns the user's role in the team, or ErrForbidden if
// no active membership exists.
func (s *Store) RequireMembership(ctx context.Context, userID, teamID string) (auth.Role, error) {
	var role auth.Role
	err := s.pool.QueryRow(ctx,
		`SELECT role FROM team_members
		 WHERE team_id = $1 AND user_id = $2 AND status = 'active'`,
		teamID, userID,
	).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: team access denied", ErrForbidden)
	}
	if err != nil {
		return "", fmt.Errorf("getting membership role: %w", err)
	}
	return role, nil
}

// RequireAdmin is RequireMembership plus an admin-or-owner check.
func (s *Store) RequireAdmin(ctx context.Context, userID, teamID string) (auth.Role, error) {
	role, err := s.RequireMembership(ctx, userID, teamID)
	if err != nil {
		return "", err
	}
	if !role.IsAdmin() {
		return "", fmt.Errorf("%w: admin access required", ErrForbidden)
	}
	return role, nil
}

// memberChangeGuard enforces who may alter whom. Self-action is always
// rejected, owners are untouchable, and admins may only touch plain members.
func memberChangeGuard(actorID string, actorRole auth.Role, targetID string, targetRole auth.Role) error {
	if !actorRole.IsAdmin() {
		return fmt.Errorf("%w: admin access required", ErrForbidden)
	}
	if targetID == actorID {
		return fmt.Errorf("%w: you cannot change your own membership", ErrForbidden)
	}
	if targetRole == auth.RoleOwner {
		return fmt.Errorf("%w: the team owner cannot be changed", ErrForbidden)
	}
	if actorRole == auth.RoleAdmin && targetRole == auth.RoleAdmin {
		return fmt.Errorf("%w: only the owner can change another admin", ErrForbidden)
	}
	return nil
}

// SetMemberRole changes the target's role to admin or member. The target row
// is locked for the duration of the decision so two concurrent admin actions
// cannot both evaluate against a stale role.
func (s *Store) SetMemberRole(ctx context.Context, actorID, teamID, targetID string, newRole auth.Role) error {
	if newRole != auth.RoleAdmin && newRole != auth.RoleMember {
		return fmt.Errorf("%w: role must be admin or member", ErrForbidden)
	}

	return s.lockedMemberChange(ctx, actorID, teamID, targetID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE team_members SET role = $1, updated_at = now()
			 WHERE team_id = $2 AND user_id = $3`,
			newRole, teamID, targetID,
		)
		if err != nil {
			return fmt.Errorf("updating member role: %w", err)
		}
		return nil
	})
}

// RemoveMember flips the target's membership to removed. The row is kept for
// audit history; the role field is reset to member since it carries no
// meaning for a removed row.
func (s *Store) RemoveMember(ctx context.Context, actorID, teamID, targetID string) error {
	return s.lockedMemberChange(ctx, actorID, teamID, targetID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE team_members SET status = 'removed', role = 'member', updated_at = now()
			 WHERE team_id = $1 AND user_id = $2`,
			teamID, targetID,
		)
		if err != nil {
			return fmt.Errorf("removing member: %w", err)
		}
		return nil
	})
}

// lockedMemberChange runs the guard checks and the mutation against a
// row-locked target membership inside one transaction.
func (s *Store) lockedMemberChange(ctx context.Context, actorID, teamID, targetID string, mutate func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var actorRole auth.Role
	err = tx.QueryRow(ctx,
		`SELECT role FROM team_members
		 WHERE team_id = $1 AND user_id = $2 AND status = 'active'`,
		teamID, actorID,
	).Scan(&actorRole)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: team access denied", ErrForbidden)
	}
	if err != nil {
		return fmt.Errorf("getting actor role: %w", err)
	}

	var targetRole auth.Role
	var targetStatus MembershipStatus
	err = tx.QueryRow(ctx,
		`SELECT role, status FROM team_members
		 WHERE team_id = $1 AND user_id = $2
		 FOR UPDATE`,
		teamID, targetID,
	).Scan(&targetRole, &targetStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: member not found", ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("locking target membership: %w", err)
	}
	if targetStatus != StatusActive {
		return fmt.Errorf("%w: member not found", ErrNotFound)
	}

	if err := memberChangeGuard(actorID, actorRole, targetID, targetRole); err != nil {
		return err
	}

	if err := mutate(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing member change: %w", err)
	}
	return nil
}

// ListMembers returns the active roster, owner first, then admins, then
// members, alphabetical within a tier.
func (s *Store) ListMembers(ctx context.Context, teamID string) ([]Member, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tm.user_id, u.email, u.display_name, tm.role, tm.created_at
		 FROM team_members tm JOIN users u ON u.id = tm.user_id
		 WHERE tm.team_id = $1 AND tm.status = 'active'
		 ORDER BY CASE tm.role WHEN 'owner' THEN 0 WHEN 'admin' THEN 1 ELSE 2 END,
		          lower(u.display_name)`,
		teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Email, &m.DisplayName, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scanning member row: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListUserTeams returns the teams a user actively belongs to, with their
// role and the live member count, ordered by team name.
func (s *Store) ListUserTeams(ctx context.Context, userID string) ([]UserTeam, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+prefixedTeamColumns("t")+`, tm.role,
			(SELECT count(*) FROM team_members tm2
			 WHERE tm2.team_id = t.id AND tm2.status = 'active') AS member_count
		 FROM team_members tm JOIN teams t ON t.id = tm.team_id
		 WHERE tm.user_id = $1 AND tm.status = 'active'
		 ORDER BY t.name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing user teams: %w", err)
	}
	defer rows.Close()

	var teams []UserTeam
	for rows.Next() {
		var ut UserTeam
		err := rows.Scan(&ut.ID, &ut.Name, &ut.Slug, &ut.JoinCode,
			&ut.AgeGroup, &ut.SeasonYear, &ut.Level,
			&ut.HomeRink, &ut.City, &ut.Notes,
			&ut.LogoPath, &ut.CreatedBy, &ut.CreatedAt,
			&ut.Role, &ut.MemberCount)
		if err != nil {
			return nil, fmt.Errorf("scanning user team row: %w", err)
		}
		teams = append(teams, ut)
	}
	return teams, rows.Err()
}

func prefixedTeamColumns(alias string) string {
	return alias + `.id, ` + alias + `.name, ` + alias + `.slug, ` + alias + `.join_code,
		coalesce(` + alias + `.age_group, ''), coalesce(` + alias + `.season_year, ''), coalesce(` + alias + `.level, ''),
		coalesce(` + alias + `.home_rink, ''), coalesce(` + alias + `.city, ''), coalesce(` + alias + `.notes, ''),
		coalesce(` + alias + `.logo_path, ''), ` + alias + `.created_by, ` + alias + `.created_at`
}
