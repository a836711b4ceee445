package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pucc/slapshot/internal/auth"
	"github.com/pucc/slapshot/internal/config"
	"github.com/pucc/slapshot/internal/invite"
	"github.com/pucc/slapshot/internal/mail"
	"github.com/pucc/slapshot/internal/team"
)

type fakeTeamStore struct {
	membershipRole auth.Role
	membershipErr  error
	adminErr       error
	members        []team.Member
	team           *team.Team
	getByIDCalls   int
}

func (f *fakeTeamStore) Create(context.Context, string, string, team.Metadata) (*team.Team, error) {
	return nil, errors.New("unexpected Create")
}

func (f *fakeTeamStore) CreateTx(context.Context, team.Querier, string, string, team.Metadata) (*team.Team, error) {
	return nil, errors.New("unexpected CreateTx")
}

func (f *fakeTeamStore) GetByID(context.Context, string) (*team.Team, error) {
	f.getByIDCalls++
	if f.team == nil {
		return nil, team.ErrNotFound
	}
	return f.team, nil
}

func (f *fakeTeamStore) Join(context.Context, string, string) (*team.Team, error) {
	return nil, errors.New("unexpected Join")
}

func (f *fakeTeamStore) Update(context.Context, string, string, string, team.Metadata) (*team.Team, error) {
	return nil, errors.New("unexpected Update")
}

func (f *fakeTeamStore) SetLogoPath(context.Context, string, string, string) error {
	return nil
}

func (f *fakeTeamStore) Delete(context.Context, string, string, string, string) (*team.Team, error) {
	return nil, errors.New("unexpected Delete")
}

func (f *fakeTeamStore) RequireMembership(context.Context, string, string) (auth.Role, error) {
	return f.membershipRole, f.membershipErr
}

func (f *fakeTeamStore) RequireAdmin(context.Context, string, string) (auth.Role, error) {
	if f.adminErr != nil {
		return "", f.adminErr
	}
	return auth.RoleAdmin, nil
}

func (f *fakeTeamStore) SetMemberRole(context.Context, string, string, string, auth.Role) error {
	return errors.New("unexpected SetMemberRole")
}

func (f *fakeTeamStore) RemoveMember(context.Context, string, string, string) error {
	return errors.New("unexpected RemoveMember")
}

func (f *fakeTeamStore) ListMembers(context.Context, string) ([]team.Member, error) {
	return f.members, nil
}

func (f *fakeTeamStore) ListUserTeams(context.Context, string) ([]team.UserTeam, error) {
	return nil, nil
}

type fakeInviteStore struct {
	listErr   error
	recordErr error
	invites   []invite.Invite
}

func (f *fakeInviteStore) RecordSend(context.Context, string, string, string, string) (bool, error) {
	if f.recordErr != nil {
		return false, f.recordErr
	}
	return true, nil
}

func (f *fakeInviteStore) List(context.Context, string) ([]invite.Invite, bool, error) {
	if f.listErr != nil {
		return nil, true, f.listErr
	}
	return f.invites, true, nil
}

type allowAllLimiter struct{}

func (allowAllLimiter) Allow(context.Context, string) error { return nil }

type sentRecorder struct {
	msgs []mail.Message
}

func (s *sentRecorder) Send(_ context.Context, msg mail.Message) error {
	s.msgs = append(s.msgs, msg)
	return nil
}

func asUser(r *http.Request, u *auth.User) *http.Request {
	return r.WithContext(auth.ContextWithUser(r.Context(), u))
}

// A broken invite table must not take the roster down with it: the members
// listing still succeeds, with tracking reported off.
func TestTeamMembersSurvivesInviteStoreFailure(t *testing.T) {
	h := &handler{RouterDeps: RouterDeps{
		Teams: &fakeTeamStore{
			membershipRole: auth.RoleMember,
			members:        []team.Member{{UserID: "u1", DisplayName: "Casey", Role: auth.RoleMember}},
		},
		Invites: &fakeInviteStore{listErr: errors.New("connection refused")},
	}}

	req := asUser(httptest.NewRequest(http.MethodGet, "/api?action=team_members&team_id=t1", nil),
		&auth.User{ID: "u1"})
	rec := httptest.NewRecorder()
	h.teamMembers(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if enabled, _ := body["invite_tracking_enabled"].(bool); enabled {
		t.Error("invite_tracking_enabled should be false when the invite store errors")
	}
	if _, ok := body["invites"]; ok {
		t.Error("invites key should be absent when tracking is degraded")
	}
	members, ok := body["members"].([]any)
	if !ok || len(members) != 1 {
		t.Errorf("members = %v, want the one-member roster", body["members"])
	}
}

// Once the invitation email is sent the action has succeeded; a failing
// invite store only turns the tracking flag off.
func TestInviteEmailSurvivesRecordFailure(t *testing.T) {
	mailer := &sentRecorder{}
	h := &handler{RouterDeps: RouterDeps{
		Teams: &fakeTeamStore{
			membershipRole: auth.RoleMember,
			team:           &team.Team{ID: "t1", Name: "Ice Hawks", JoinCode: "ABCD2345"},
		},
		Invites:       &fakeInviteStore{recordErr: errors.New("relation vanished mid-flight")},
		InviteLimiter: allowAllLimiter{},
		Mailer:        mailer,
		Config:        &config.Config{App: config.AppConfig{BaseURL: "https://snap.example.com"}},
	}}

	payload, _ := json.Marshal(map[string]string{
		"team_id": "t1",
		"email":   "newplayer@example.com",
	})
	req := asUser(httptest.NewRequest(http.MethodPost, "/api?action=invite_email", bytes.NewReader(payload)),
		&auth.User{ID: "u1", DisplayName: "Casey"})
	rec := httptest.NewRecorder()
	h.inviteEmail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	if len(mailer.msgs) != 1 {
		t.Fatalf("sent %d emails, want 1", len(mailer.msgs))
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if enabled, _ := body["invite_tracking_enabled"].(bool); enabled {
		t.Error("invite_tracking_enabled should be false when recording fails")
	}
}

// The permission check must run before the team fetch so a non-member gets
// the same answer for real and made-up team ids.
func TestTeamLogoDeletePermissionBeforeFetch(t *testing.T) {
	teams := &fakeTeamStore{
		adminErr: team.ErrForbidden,
		team:     &team.Team{ID: "t1", Name: "Ice Hawks"},
	}
	h := &handler{RouterDeps: RouterDeps{Teams: teams}}

	payload, _ := json.Marshal(map[string]string{"team_id": "t1"})
	req := asUser(httptest.NewRequest(http.MethodPost, "/api?action=team_logo_delete", bytes.NewReader(payload)),
		&auth.User{ID: "outsider"})
	rec := httptest.NewRecorder()
	h.teamLogoDelete(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403; body: %s", rec.Code, rec.Body.String())
	}
	if teams.getByIDCalls != 0 {
		t.Errorf("GetByID called %d times before the permission check", teams.getByIDCalls)
	}
}
