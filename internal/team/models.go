package team

import (
	"time"

	"github.com/pucc/slapshot/internal/auth"
)

// MembershipStatus tracks whether a membership row is live. Removed rows are
// kept for audit history and can be re-activated via the join code.
type MembershipStatus string

const (
	StatusActive  MembershipStatus = "active"
	StatusRemoved MembershipStatus = "removed"
)

// Team represents a team and its metadata.
type Team struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	JoinCode   string    `json:"join_code"`
	AgeGroup   string    `json:"age_group"`
	SeasonYear string    `json:"season_year"`
	Level      string    `json:"level"`
	HomeRink   string    `json:"home_rink"`
	City       string    `json:"city"`
	Notes      string    `json:"team_notes"`
	LogoPath   string    `json:"logo_path,omitempty"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// Metadata holds the optional descriptive fields of a team.
type Metadata struct {
	AgeGroup   string
	SeasonYear string
	Level      string
	HomeRink   string
	City       string
	Notes      string
}

// Membership is a (team, user) pair with a role and status.
type Membership struct {
	TeamID    string           `json:"team_id"`
	UserID    string           `json:"user_id"`
	Role      auth.Role        `json:"role"`
	Status    MembershipStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Member is an active membership joined with the user's identity, as shown
// in the team roster.
type Member struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        auth.Role `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
}

// UserTeam is a team as seen from one user's perspective: the team, the
// user's role in it, and the live roster size.
type UserTeam struct {
	Team
	Role        auth.Role `json:"role"`
	MemberCount int       `json:"member_count"`
}
