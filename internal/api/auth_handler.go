package api

import (
	"context"
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/pucc/slapshot/internal/identity"
	"github.com/pucc/slapshot/internal/team"
)

// userContext is the session payload shared by session, register and login:
// the account plus every team it actively belongs to.
func (h *handler) userContext(ctx context.Context, userID string) (*identity.User, []team.UserTeam, error) {
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	teams, err := h.Teams.ListUserTeams(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return u, teams, nil
}

func (h *handler) writeUserContext(w http.ResponseWriter, r *http.Request, status int, userID string) {
	u, teams, err := h.userContext(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeOK(w, status, envelope{
		"authenticated": true,
		"user":          u,
		"teams":         teams,
	})
}

func (h *handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.Config.Session.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.Config.Session.Lifetime.Seconds()),
		HttpOnly: true,
		Secure:   h.Config.Session.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.Config.Session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Config.Session.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func validEmail(email string) bool {
	if email == "" || strings.ContainsAny(email, " \t\r\n") {
		return false
	}
	_, err := mail.ParseAddress(email)
	return err == nil
}

// session reports the current authentication state.
func (h *handler) session(w http.ResponseWriter, r *http.Request) {
	u := authUser(r)
	if u == nil {
		writeOK(w, http.StatusOK, envelope{"authenticated": false})
		return
	}
	h.writeUserContext(w, r, http.StatusOK, u.ID)
}

type registerRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	TeamName    string `json:"team_name"`
}

// register creates the account, its first team, and the owner membership in
// one transaction, then logs the user in.
func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req registerRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid JSON body.")
		return
	}
	req.Email = identity.NormalizeEmail(req.Email)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.TeamName = strings.TrimSpace(req.TeamName)

	if !validEmail(req.Email) {
		writeError(w, http.StatusUnprocessableEntity, "Valid email required.")
		return
	}
	if utf8.RuneCountInString(req.DisplayName) < 2 {
		writeError(w, http.StatusUnprocessableEntity, "Display name must be at least 2 characters.")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusUnprocessableEntity, "Password must be at least 8 characters.")
		return
	}
	if utf8.RuneCountInString(req.TeamName) < 2 {
		writeError(w, http.StatusUnprocessableEntity, "Team name must be at least 2 characters.")
		return
	}

	ctx := r.Context()
	tx, err := h.Pool.Begin(ctx)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	defer tx.Rollback(ctx)

	u, err := h.Users.CreateTx(ctx, tx, identity.CreateUserInput{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Password:    req.Password,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if _, err := h.Teams.CreateTx(ctx, tx, u.ID, req.TeamName, team.Metadata{}); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		writeDomainError(w, r, err)
		return
	}

	token, _, err := h.Users.CreateSession(ctx, u.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.setSessionCookie(w, token)

	if h.Metrics != nil {
		h.Metrics.IncAuthSuccess("register")
	}
	auditLog(r, "auth_register", "user", u.ID)
	h.writeUserContext(w, r, http.StatusCreated, u.ID)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid JSON body.")
		return
	}
	req.Email = identity.NormalizeEmail(req.Email)
	if !validEmail(req.Email) || req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "Email and password are required.")
		return
	}

	ctx := r.Context()
	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil || !identity.CheckPassword(u, req.Password) {
		if h.Metrics != nil {
			h.Metrics.IncAuthFailure("password")
		}
		writeError(w, http.StatusUnauthorized, "Invalid email or password.")
		return
	}

	token, _, err := h.Users.CreateSession(ctx, u.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.setSessionCookie(w, token)

	if h.Metrics != nil {
		h.Metrics.IncAuthSuccess("password")
	}
	h.writeUserContext(w, r, http.StatusOK, u.ID)
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	if token := h.sessionToken(r); token != "" {
		if err := h.Users.DeleteSession(r.Context(), token); err != nil {
			writeDomainError(w, r, err)
			return
		}
	}
	h.clearSessionCookie(w)
	writeOK(w, http.StatusOK, nil)
}
