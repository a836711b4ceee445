package identity

import "time"

// User represents a registered account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateUserInput holds the fields required to register a new account.
type CreateUserInput struct {
	Email       string
	DisplayName string
	Password    string
}

// UpdateProfileInput holds optional fields for a partial profile update.
// Email changes are excluded: they only happen through an approved
// email-change request.
type UpdateProfileInput struct {
	DisplayName *string
	Password    *string
}

// Session represents an active login session.
type Session struct {
	TokenHash string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}
