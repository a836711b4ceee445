package emailchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pucc/slapshot/internal/mail"
)

// fakeStore is an in-memory Store honoring the same atomicity contract as
// the Postgres implementation.
type fakeStore struct {
	mu     sync.Mutex
	seq    int
	reqs   map[string]*Request // by id
	emails map[string]string   // email -> user id
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		reqs:   map[string]*Request{},
		emails: map[string]string{},
	}
}

func (f *fakeStore) EmailTaken(_ context.Context, email, excludeUserID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	owner, ok := f.emails[email]
	return ok && owner != excludeUserID, nil
}

func (f *fakeStore) HasPending(_ context.Context, userID string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reqs {
		if r.UserID == userID && r.Status == StatusPending && r.ExpiresAt.After(now) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CreatePending(_ context.Context, req *Request, notify func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	req.ID = fmt.Sprintf("req-%d", f.seq)
	if err := notify(); err != nil {
		return err
	}
	cp := *req
	f.reqs[req.ID] = &cp
	return nil
}

func (f *fakeStore) WithLockedRequest(_ context.Context, tokenHash string,
	fn func(req *Request, emailTaken func(string) (bool, error)) (*Transition, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var stored *Request
	for _, r := range f.reqs {
		if r.ApproveTokenHash == tokenHash || r.DenyTokenHash == tokenHash {
			stored = r
			break
		}
	}
	if stored == nil {
		return ErrNotFound
	}

	emailTaken := func(email string) (bool, error) {
		owner, ok := f.emails[email]
		return ok && owner != stored.UserID, nil
	}

	cp := *stored
	transition, fnErr := fn(&cp, emailTaken)
	if transition == nil {
		return fnErr
	}

	stored.Status = transition.Status
	t := transition.DecidedAt
	stored.DecidedAt = &t
	stored.DecisionIP = transition.DecisionIP
	if transition.UpdateEmail {
		delete(f.emails, stored.CurrentEmail)
		f.emails[stored.RequestedEmail] = stored.UserID
	}
	return fnErr
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	fail bool
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("relay down")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) messages() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.sent...)
}

type fakeLimiter struct{ err error }

func (l fakeLimiter) Allow(context.Context, string) error { return l.err }

func newTestService(store *fakeStore, mailer *recordingMailer, limiter RateLimiter, now time.Time) *Service {
	svc := NewService(store, mailer, limiter, "https://snap.example.com", "support@example.com")
	svc.now = func() time.Time { return now }
	return svc
}

var t0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestRequestRejectsSameEmail(t *testing.T) {
	svc := newTestService(newFakeStore(), &recordingMailer{}, fakeLimiter{}, t0)

	_, err := svc.Request(context.Background(), "u1", "a@x.com", "a@x.com", "", "1.2.3.4")
	if !errors.Is(err, ErrSameEmail) {
		t.Fatalf("expected ErrSameEmail, got %v", err)
	}
}

func TestRequestRejectsEmailInUse(t *testing.T) {
	store := newFakeStore()
	store.emails["b@x.com"] = "u2"
	svc := newTestService(store, &recordingMailer{}, fakeLimiter{}, t0)

	_, err := svc.Request(context.Background(), "u1", "a@x.com", "b@x.com", "", "1.2.3.4")
	if !errors.Is(err, ErrEmailInUse) {
		t.Fatalf("expected ErrEmailInUse, got %v", err)
	}
}

func TestRequestRejectsExistingPending(t *testing.T) {
	store := newFakeStore()
	mailer := &recordingMailer{}
	svc := newTestService(store, mailer, fakeLimiter{}, t0)

	if _, err := svc.Request(context.Background(), "u1", "a@x.com", "b@x.com", "", "1.2.3.4"); err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	_, err := svc.Request(context.Background(), "u1", "a@x.com", "c@x.com", "", "1.2.3.4")
	if !errors.Is(err, ErrPendingExists) {
		t.Fatalf("expected ErrPendingExists, got %v", err)
	}
}

func TestRequestRateLimited(t *testing.T) {
	svc := newTestService(newFakeStore(), &recordingMailer{},
		fakeLimiter{err: errors.New("window exhausted")}, t0)

	_, err := svc.Request(context.Background(), "u1", "a@x.com", "b@x.com", "", "1.2.3.4")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestRequestStoresHashesAndNotifiesSupport(t *testing.T) {
	store := newFakeStore()
	mailer := &recordingMailer{}
	svc := newTestService(store, mailer, fakeLimiter{}, t0)

	req, err := svc.Request(context.Background(), "u1", "a@x.com", "b@x.com", "typo in signup", "1.2.3.4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if req.ExpiresAt != t0.Add(7*24*time.Hour) {
		t.Errorf("expected 7 day expiry, got %v", req.ExpiresAt)
	}
	if len(req.ApproveTokenHash) != 64 || len(req.DenyTokenHash) != 64 {
		t.Error("expected sha256 hex token hashes")
	}
	if req.ApproveTokenHash == req.DenyTokenHash {
		t.Error("approve and deny hashes are identical")
	}

	msgs := mailer.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 support mail, got %d", len(msgs))
	}
	m := msgs[0]
	if m.To != "support@example.com" {
		t.Errorf("support mail to %q", m.To)
	}
	for _, want := range []string{
		"a@x.com", "b@x.com", "typo in signup", "1.2.3.4",
		"decision=approve", "decision=deny",
	} {
		if !strings.Contains(m.Body, want) {
			t.Errorf("support mail body missing %q", want)
		}
	}
	// Raw tokens are in the links but hashes never appear.
	if strings.Contains(m.Body, req.ApproveTokenHash) || strings.Contains(m.Body, req.DenyTokenHash) {
		t.Error("support mail leaks stored hashes")
	}
}

func TestRequestRollsBackOnMailFailure(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &recordingMailer{fail: true}, fakeLimiter{}, t0)

	_, err := svc.Request(context.Background(), "u1", "a@x.com", "b@x.com", "", "1.2.3.4")
	if err == nil {
		t.Fatal("expected error when support mail fails")
	}
	if len(store.reqs) != 0 {
		t.Fatal("request persisted despite notification failure")
	}
}

// decisionFixture creates a pending request and returns the raw tokens by
// capturing them from the support mail.
func decisionFixture(t *testing.T, store *fakeStore, mailer *recordingMailer, now time.Time) (approveToken, denyToken string) {
	t.Helper()
	svc := newTestService(store, mailer, fakeLimiter{}, now)
	req, err := svc.Request(context.Background(), "u1", "a@x.com", "b@x.com", "", "1.2.3.4")
	if err != nil {
		t.Fatalf("fixture request failed: %v", err)
	}

	body := mailer.messages()[0].Body
	for _, line := range strings.Split(body, "\r\n") {
		if i := strings.Index(line, "token="); i >= 0 {
			token := line[i+len("token="):]
			if HashToken(token) == req.ApproveTokenHash {
				approveToken = token
			} else if HashToken(token) == req.DenyTokenHash {
				denyToken = token
			}
		}
	}
	if approveToken == "" || denyToken == "" {
		t.Fatal("could not extract tokens from support mail")
	}
	mailer.sent = nil
	return approveToken, denyToken
}

func TestDecideUnknownToken(t *testing.T) {
	svc := newTestService(newFakeStore(), &recordingMailer{}, fakeLimiter{}, t0)
	_, err := svc.Decide(context.Background(), "no-such-token", DecisionApprove, "9.9.9.9")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDecideWrongTokenForDecision(t *testing.T) {
	store := newFakeStore()
	mailer := &recordingMailer{}
	_, denyToken := decisionFixture(t, store, mailer, t0)
	svc := newTestService(store, mailer, fakeLimiter{}, t0)

	_, err := svc.Decide(context.Background(), denyToken, DecisionApprove, "9.9.9.9")
	if !errors.Is(err, ErrWrongToken) {
		t.Fatalf("expected ErrWrongToken, got %v", err)
	}

	// Request is untouched: the deny token still works for deny.
	outcome, err := svc.Decide(context.Background(), denyToken, DecisionDeny, "9.9.9.9")
	if err != nil {
		t.Fatalf("deny after rejected approve failed: %v", err)
	}
	if outcome.Status != StatusDenied {
		t.Errorf("expected denied, got %s", outcome.Status)
	}
}

func TestDecideDeny(t *testing.T) {
	store := newFakeStore()
	store.emails["a@x.com"] = "u1"
	mailer := &recordingMailer{}
	_, denyToken := decisionFixture(t, store, mailer, t0)
	svc := newTestService(store, mailer, fakeLimiter{}, t0)

	outcome, err := svc.Decide(context.Background(), denyToken, DecisionDeny, "9.9.9.9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != StatusDenied {
		t.Fatalf("expected denied, got %s", outcome.Status)
	}
	if store.emails["a@x.com"] != "u1" {
		t.Error("user email changed on denial")
	}

	// Notification goes to the old address only.
	msgs := mailer.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(msgs))
	}
	if msgs[0].To != "a@x.com" {
		t.Errorf("denial notification to %q, want a@x.com", msgs[0].To)
	}
}

func TestDecideApprove(t *testing.T) {
	store := newFakeStore()
	store.emails["a@x.com"] = "u1"
	mailer := &recordingMailer{}
	approveToken, _ := decisionFixture(t, store, mailer, t0)
	svc := newTestService(store, mailer, fakeLimiter{}, t0)

	outcome, err := svc.Decide(context.Background(), approveToken, DecisionApprove, "9.9.9.9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != StatusApproved {
		t.Fatalf("expected approved, got %s", outcome.Status)
	}
	if store.emails["b@x.com"] != "u1" {
		t.Error("user email not updated on approval")
	}

	// Both old and new addresses are notified.
	msgs := mailer.messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(msgs))
	}
	tos := map[string]bool{msgs[0].To: true, msgs[1].To: true}
	if !tos["a@x.com"] || !tos["b@x.com"] {
		t.Errorf("notifications went to %v", tos)
	}
}

func TestDecideReplayConflicts(t *testing.T) {
	store := newFakeStore()
	mailer := &recordingMailer{}
	approveToken, denyToken := decisionFixture(t, store, mailer, t0)
	svc := newTestService(store, mailer, fakeLimiter{}, t0)

	if _, err := svc.Decide(context.Background(), approveToken, DecisionApprove, "9.9.9.9"); err != nil {
		t.Fatalf("first decision failed: %v", err)
	}

	// The same link again and the opposite link both observe the settled state.
	if _, err := svc.Decide(context.Background(), approveToken, DecisionApprove, "9.9.9.9"); !errors.Is(err, ErrAlreadyDecided) {
		t.Fatalf("expected ErrAlreadyDecided on replay, got %v", err)
	}
	if _, err := svc.Decide(context.Background(), denyToken, DecisionDeny, "9.9.9.9"); !errors.Is(err, ErrAlreadyDecided) {
		t.Fatalf("expected ErrAlreadyDecided for losing token, got %v", err)
	}
}

func TestDecideConcurrentExactlyOnce(t *testing.T) {
	store := newFakeStore()
	mailer := &recordingMailer{}
	approveToken, denyToken := decisionFixture(t, store, mailer, t0)
	svc := newTestService(store, mailer, fakeLimiter{}, t0)

	results := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := svc.Decide(context.Background(), approveToken, DecisionApprove, "9.9.9.9")
		results <- err
	}()
	go func() {
		defer wg.Done()
		_, err := svc.Decide(context.Background(), denyToken, DecisionDeny, "9.9.9.9")
		results <- err
	}()
	wg.Wait()
	close(results)

	var succeeded, conflicted int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrAlreadyDecided):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || conflicted != 1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d conflicts", succeeded, conflicted)
	}
}

func TestDecideExpiredTransitionsToExpired(t *testing.T) {
	store := newFakeStore()
	mailer := &recordingMailer{}
	approveToken, _ := decisionFixture(t, store, mailer, t0)

	late := newTestService(store, mailer, fakeLimiter{}, t0.Add(8*24*time.Hour))
	_, err := late.Decide(context.Background(), approveToken, DecisionApprove, "9.9.9.9")
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}

	// The expiry was persisted as a side effect despite the rejection.
	for _, r := range store.reqs {
		if r.Status != StatusExpired {
			t.Fatalf("expected stored status expired, got %s", r.Status)
		}
	}
	if len(mailer.messages()) != 0 {
		t.Error("no decision notification expected for expiry")
	}
}

func TestDecideApproveWithClaimedEmailDenies(t *testing.T) {
	store := newFakeStore()
	mailer := &recordingMailer{}
	approveToken, _ := decisionFixture(t, store, mailer, t0)

	// Someone else registered the requested address in the meantime.
	store.emails["b@x.com"] = "u-other"

	svc := newTestService(store, mailer, fakeLimiter{}, t0)
	_, err := svc.Decide(context.Background(), approveToken, DecisionApprove, "9.9.9.9")
	if !errors.Is(err, ErrEmailClaimed) {
		t.Fatalf("expected ErrEmailClaimed, got %v", err)
	}

	for _, r := range store.reqs {
		if r.Status != StatusDenied {
			t.Fatalf("expected stored status denied, got %s", r.Status)
		}
	}
	if store.emails["b@x.com"] != "u-other" {
		t.Error("claimed email reassigned")
	}
}

func TestDecideInvalidDecision(t *testing.T) {
	svc := newTestService(newFakeStore(), &recordingMailer{}, fakeLimiter{}, t0)
	_, err := svc.Decide(context.Background(), "tok", Decision("shrug"), "9.9.9.9")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
