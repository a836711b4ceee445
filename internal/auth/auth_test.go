package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerateSessionToken(t *testing.T) {
	plaintext, hash, err := GenerateSessionToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plaintext) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(plaintext))
	}
	if hash != HashToken(plaintext) {
		t.Error("hash does not match HashToken of plaintext")
	}

	plaintext2, _, err := GenerateSessionToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plaintext == plaintext2 {
		t.Error("two generated tokens are identical")
	}
}

func TestHashTokenDeterministic(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Error("hash is not deterministic")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Error("distinct inputs hash equal")
	}
}

func TestRoleHelpers(t *testing.T) {
	tests := []struct {
		role    Role
		valid   bool
		isAdmin bool
	}{
		{RoleOwner, true, true},
		{RoleAdmin, true, true},
		{RoleMember, true, false},
		{Role("coach"), false, false},
		{Role(""), false, false},
	}
	for _, tt := range tests {
		if got := tt.role.Valid(); got != tt.valid {
			t.Errorf("Role(%q).Valid() = %v, want %v", tt.role, got, tt.valid)
		}
		if got := tt.role.IsAdmin(); got != tt.isAdmin {
			t.Errorf("Role(%q).IsAdmin() = %v, want %v", tt.role, got, tt.isAdmin)
		}
	}
}

type fakeSessions struct {
	token string
	user  *User
}

func (f *fakeSessions) LookupSession(_ context.Context, token string) (*User, error) {
	if token == f.token {
		return f.user, nil
	}
	return nil, nil
}

func TestSessionMiddlewareCookie(t *testing.T) {
	sessions := &fakeSessions{
		token: "tok123",
		user:  &User{ID: "u1", Email: "a@x.com", DisplayName: "A"},
	}

	var got *User
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = UserFromContext(r.Context())
	})
	handler := SessionMiddleware(sessions, "slapshot_session")(inner)

	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	req.AddCookie(&http.Cookie{Name: "slapshot_session", Value: "tok123"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil || got.ID != "u1" {
		t.Fatalf("expected user u1 in context, got %+v", got)
	}
}

func TestSessionMiddlewareBearerFallback(t *testing.T) {
	sessions := &fakeSessions{
		token: "tok456",
		user:  &User{ID: "u2"},
	}

	var got *User
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = UserFromContext(r.Context())
	})
	handler := SessionMiddleware(sessions, "slapshot_session")(inner)

	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	req.Header.Set("Authorization", "Bearer tok456")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil || got.ID != "u2" {
		t.Fatalf("expected user u2 in context, got %+v", got)
	}
}

func TestSessionMiddlewareInvalidToken(t *testing.T) {
	sessions := &fakeSessions{token: "real", user: &User{ID: "u3"}}

	var got *User
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = UserFromContext(r.Context())
	})
	handler := SessionMiddleware(sessions, "slapshot_session")(inner)

	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	req.AddCookie(&http.Cookie{Name: "slapshot_session", Value: "forged"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got != nil {
		t.Fatalf("expected no user for invalid token, got %+v", got)
	}
}

func TestSessionMiddlewareNoToken(t *testing.T) {
	sessions := &fakeSessions{}

	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if UserFromContext(r.Context()) != nil {
			t.Error("expected nil user")
		}
	})
	handler := SessionMiddleware(sessions, "slapshot_session")(inner)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api", nil))
	if !called {
		t.Fatal("inner handler not called")
	}
}
