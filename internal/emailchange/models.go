package emailchange

import "time"

// Status of an email-change request. Pending is the only mutable state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusExpired  Status = "expired"
)

// Decision names which single-use link was redeemed.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDeny    Decision = "deny"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionDeny
}

// Request is a pending or settled email-change request. The two decision
// tokens are stored only as hashes; the raw tokens exist solely inside the
// links mailed to support.
type Request struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	CurrentEmail     string     `json:"current_email"`
	RequestedEmail   string     `json:"requested_email"`
	Reason           string     `json:"reason,omitempty"`
	Status           Status     `json:"status"`
	ApproveTokenHash string     `json:"-"`
	DenyTokenHash    string     `json:"-"`
	RequestIP        string     `json:"-"`
	DecisionIP       string     `json:"-"`
	DecidedAt        *time.Time `json:"decided_at,omitempty"`
	ExpiresAt        time.Time  `json:"expires_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Transition is the state change a decision applies to a locked request.
type Transition struct {
	Status      Status
	DecidedAt   time.Time
	DecisionIP  string
	UpdateEmail bool // on approve: write requested_email onto the user row
}

// Outcome reports the settled result of a decision for the caller and for
// the follow-up notifications.
type Outcome struct {
	Status         Status
	CurrentEmail   string
	RequestedEmail string
}
