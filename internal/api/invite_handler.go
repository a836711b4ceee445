package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/pucc/slapshot/internal/identity"
	"github.com/pucc/slapshot/internal/mail"
	"github.com/pucc/slapshot/internal/ratelimit"
)

const maxInviteMessage = 500

// inviteEmail sends a join invitation to an email address and records the
// send for the roster view. Recording is best-effort; the email itself must
// succeed.
func (h *handler) inviteEmail(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	u := h.requireAuth(w, r)
	if u == nil {
		return
	}

	var body struct {
		TeamID  string `json:"team_id"`
		Email   string `json:"email"`
		Message string `json:"message"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid JSON body.")
		return
	}
	if body.TeamID == "" {
		writeError(w, http.StatusUnprocessableEntity, "team_id required.")
		return
	}
	email := identity.NormalizeEmail(body.Email)
	message := strings.TrimSpace(body.Message)
	if !validEmail(email) {
		writeError(w, http.StatusUnprocessableEntity, "Valid recipient email required.")
		return
	}
	if utf8.RuneCountInString(message) > maxInviteMessage {
		writeError(w, http.StatusUnprocessableEntity, "Custom message must be 500 characters or fewer.")
		return
	}

	ctx := r.Context()
	if _, err := h.Teams.RequireMembership(ctx, u.ID, body.TeamID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.InviteLimiter.Allow(ctx, u.ID); err != nil {
		if errors.Is(err, ratelimit.ErrLimited) {
			if h.Metrics != nil {
				h.Metrics.IncRateLimitRejection("invite_email")
			}
			writeError(w, http.StatusTooManyRequests, "Invite email rate limit reached. Try again later.")
			return
		}
		writeDomainError(w, r, err)
		return
	}

	t, err := h.Teams.GetByID(ctx, body.TeamID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	msg := inviteMessage(h.Config.App.BaseURL, u.DisplayName, t.Name, t.JoinCode, email, message)
	if err := h.Mailer.Send(ctx, msg); err != nil {
		writeError(w, http.StatusInternalServerError, "Email send failed. Verify your server mail configuration.")
		return
	}

	// The email is already on its way; a broken invite table must not turn
	// the success into a 500.
	enabled, err := h.Invites.RecordSend(ctx, body.TeamID, u.ID, email, message)
	if err != nil {
		slog.Warn("invite tracking degraded", "error", err, "team_id", body.TeamID)
		enabled = false
	}

	if h.Metrics != nil {
		h.Metrics.InviteSendsTotal.Inc()
	}
	auditLog(r, "invite_email", "team", body.TeamID, "recipient", email)
	writeOK(w, http.StatusOK, envelope{"invite_tracking_enabled": enabled})
}

// inviteMessage composes the invitation: join code, direct link, and an
// optional personal note from the sender.
func inviteMessage(baseURL, senderName, teamName, joinCode, to, note string) mail.Message {
	if senderName == "" {
		senderName = "A team member"
	}
	inviteURL := baseURL + "/?join=" + url.QueryEscape(joinCode)

	lines := []string{
		fmt.Sprintf("%s invited you to join %q on Slapshot Snapshot.", senderName, teamName),
		"",
		fmt.Sprintf("Join code: %s", joinCode),
		fmt.Sprintf("Direct link: %s", inviteURL),
	}
	if note != "" {
		lines = append(lines, "", "Personal note:", note)
	}
	lines = append(lines, "", "See you at the rink.")

	return mail.Message{
		To:      to,
		Subject: fmt.Sprintf("Invitation to join %s on Slapshot Snapshot", teamName),
		Body:    strings.Join(lines, "\r\n"),
	}
}
