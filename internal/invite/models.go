package invite

import "time"

// Status of a tracked invitation.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusExpired  Status = "expired"
)

// Invite tracks an invitation email sent for a (team, email) pair. It is a
// best-effort audit record reconciled lazily against the actual roster, not
// a gatekeeping mechanism: membership is granted by the join code alone.
type Invite struct {
	TeamID     string     `json:"team_id"`
	Email      string     `json:"email"`
	InvitedBy  string     `json:"invited_by"`
	Message    string     `json:"message,omitempty"`
	Status     Status     `json:"status"`
	SendCount  int        `json:"send_count"`
	LastSentAt time.Time  `json:"last_sent_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
