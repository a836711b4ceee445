package emailchange

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/pucc/slapshot/internal/mail"
)

var (
	// ErrSameEmail is returned when the requested email equals the current one.
	ErrSameEmail = errors.New("requested email matches current email")
	// ErrEmailInUse is returned when another account already owns the email.
	ErrEmailInUse = errors.New("requested email already in use")
	// ErrPendingExists is returned when the user already has an open request.
	ErrPendingExists = errors.New("a pending email change request already exists")
	// ErrRateLimited is returned when the per-user request window is exhausted.
	ErrRateLimited = errors.New("email change rate limit reached")
	// ErrNotFound is returned when no request matches the supplied token.
	ErrNotFound = errors.New("email change request not found")
	// ErrWrongToken is returned when a token is redeemed for the other decision.
	ErrWrongToken = errors.New("token does not authorize this decision")
	// ErrAlreadyDecided is returned on replay: the request is no longer pending.
	ErrAlreadyDecided = errors.New("request already decided")
	// ErrExpired is returned when the request expired before the decision.
	ErrExpired = errors.New("request has expired")
	// ErrEmailClaimed is returned on approval when the requested email has
	// since been taken by a different account.
	ErrEmailClaimed = errors.New("requested email has been claimed by another account")
)

const (
	requestTTL = 7 * 24 * time.Hour
	tokenBytes = 24
)

// Store is the persistence surface the workflow needs. The pg implementation
// is in store.go; tests use an in-memory fake.
type Store interface {
	// EmailTaken reports whether email belongs to an account other than userID.
	EmailTaken(ctx context.Context, email, excludeUserID string) (bool, error)

	// HasPending reports whether userID has a pending, non-expired request.
	HasPending(ctx context.Context, userID string, now time.Time) (bool, error)

	// CreatePending persists req and invokes notify before committing; if
	// notify fails the insert is rolled back. A request must never exist
	// without its approval notification having been dispatched.
	CreatePending(ctx context.Context, req *Request, notify func() error) error

	// WithLockedRequest locates the request whose approve or deny token hash
	// equals tokenHash, locks its row, and invokes fn with the current row
	// and a transaction-scoped emailTaken check. A non-nil Transition is
	// applied and committed even when fn also returns an error (expiry and
	// claimed-email side effects); a nil Transition with an error rolls
	// everything back.
	WithLockedRequest(ctx context.Context, tokenHash string,
		fn func(req *Request, emailTaken func(email string) (bool, error)) (*Transition, error)) error
}

// RateLimiter gates request creation per user.
type RateLimiter interface {
	Allow(ctx context.Context, userID string) error
}

// Service implements the email-change approval workflow: self-service
// requests settled by a support-held dual-token decision.
type Service struct {
	store        Store
	mailer       mail.Sender
	limiter      RateLimiter
	baseURL      string
	supportEmail string
	now          func() time.Time
}

// NewService wires the workflow.
func NewService(store Store, mailer mail.Sender, limiter RateLimiter, baseURL, supportEmail string) *Service {
	return &Service{
		store:        store,
		mailer:       mailer,
		limiter:      limiter,
		baseURL:      baseURL,
		supportEmail: supportEmail,
		now:          time.Now,
	}
}

// Request opens a pending email-change request for the user and mails the
// approve/deny links to support. The insert and the support notification
// succeed or fail together.
func (s *Service) Request(ctx context.Context, userID, currentEmail, requestedEmail, reason, ip string) (*Request, error) {
	now := s.now()

	if requestedEmail == currentEmail {
		return nil, ErrSameEmail
	}

	taken, err := s.store.EmailTaken(ctx, requestedEmail, userID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailInUse
	}

	pending, err := s.store.HasPending(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, ErrPendingExists
	}

	if err := s.limiter.Allow(ctx, userID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
	}

	approveToken, approveHash, err := generateToken()
	if err != nil {
		return nil, err
	}
	denyToken, denyHash, err := generateToken()
	if err != nil {
		return nil, err
	}

	req := &Request{
		UserID:           userID,
		CurrentEmail:     currentEmail,
		RequestedEmail:   requestedEmail,
		Reason:           reason,
		Status:           StatusPending,
		ApproveTokenHash: approveHash,
		DenyTokenHash:    denyHash,
		RequestIP:        ip,
		ExpiresAt:        now.Add(requestTTL),
		CreatedAt:        now,
	}

	err = s.store.CreatePending(ctx, req, func() error {
		msg := supportRequestMessage(s.supportEmail, req,
			s.decisionURL(approveToken, DecisionApprove),
			s.decisionURL(denyToken, DecisionDeny))
		return s.mailer.Send(ctx, msg)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("email change requested",
		"request_id", req.ID,
		"user_id", userID,
	)
	return req, nil
}

// Decide redeems one of the two single-use tokens. Exactly one redemption
// wins; everything after it observes a terminal state.
func (s *Service) Decide(ctx context.Context, token string, decision Decision, ip string) (*Outcome, error) {
	if !decision.Valid() {
		return nil, ErrNotFound
	}

	now := s.now()
	tokenHash := HashToken(token)

	var outcome *Outcome
	err := s.store.WithLockedRequest(ctx, tokenHash,
		func(req *Request, emailTaken func(string) (bool, error)) (*Transition, error) {
			outcome = &Outcome{
				CurrentEmail:   req.CurrentEmail,
				RequestedEmail: req.RequestedEmail,
			}

			// The deny token cannot approve and vice versa.
			matched := DecisionDeny
			if tokenHash == req.ApproveTokenHash {
				matched = DecisionApprove
			}
			if matched != decision {
				return nil, ErrWrongToken
			}

			// First redemption wins; replays observe the settled state.
			if req.Status != StatusPending {
				outcome.Status = req.Status
				return nil, ErrAlreadyDecided
			}

			if now.After(req.ExpiresAt) {
				outcome.Status = StatusExpired
				return &Transition{Status: StatusExpired, DecidedAt: now, DecisionIP: ip}, ErrExpired
			}

			if decision == DecisionDeny {
				outcome.Status = StatusDenied
				return &Transition{Status: StatusDenied, DecidedAt: now, DecisionIP: ip}, nil
			}

			// Approval is only safe while the requested email is still free.
			taken, err := emailTaken(req.RequestedEmail)
			if err != nil {
				return nil, err
			}
			if taken {
				outcome.Status = StatusDenied
				return &Transition{Status: StatusDenied, DecidedAt: now, DecisionIP: ip}, ErrEmailClaimed
			}

			outcome.Status = StatusApproved
			return &Transition{Status: StatusApproved, DecidedAt: now, DecisionIP: ip, UpdateEmail: true}, nil
		})
	if err != nil {
		return outcome, err
	}

	// The decision is the durable fact; these notifications never roll it back.
	s.notifyDecision(ctx, outcome)

	slog.Info("email change decided",
		"decision", string(decision),
		"status", string(outcome.Status),
	)
	return outcome, nil
}

func (s *Service) notifyDecision(ctx context.Context, outcome *Outcome) {
	switch outcome.Status {
	case StatusApproved:
		for _, msg := range approvedMessages(outcome) {
			mail.SendBestEffort(ctx, s.mailer, msg)
		}
	case StatusDenied:
		mail.SendBestEffort(ctx, s.mailer, deniedMessage(outcome))
	}
}

func (s *Service) decisionURL(token string, decision Decision) string {
	q := url.Values{}
	q.Set("action", "account_email_request_decision")
	q.Set("decision", string(decision))
	q.Set("token", token)
	return s.baseURL + "/api?" + q.Encode()
}

// generateToken returns a raw single-use token and its stored hash.
func generateToken() (token, hash string, err error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generating decision token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(b)
	return token, HashToken(token), nil
}

// HashToken returns the hex-encoded SHA-256 hash of a raw decision token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
