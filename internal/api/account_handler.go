package api

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/pucc/slapshot/internal/emailchange"
	"github.com/pucc/slapshot/internal/identity"
)

type updateProfileRequest struct {
	DisplayName *string `json:"display_name"`
	Password    *string `json:"password"`
}

// updateProfile applies a partial profile update. Email is deliberately not
// updatable here; it only changes through an approved email-change request.
func (h *handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	u := h.requireAuth(w, r)
	if u == nil {
		return
	}

	var req updateProfileRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid JSON body.")
		return
	}

	if req.DisplayName != nil {
		trimmed := strings.TrimSpace(*req.DisplayName)
		if utf8.RuneCountInString(trimmed) < 2 {
			writeError(w, http.StatusUnprocessableEntity, "Display name must be at least 2 characters.")
			return
		}
		req.DisplayName = &trimmed
	}
	if req.Password != nil && len(*req.Password) < 8 {
		writeError(w, http.StatusUnprocessableEntity, "Password must be at least 8 characters.")
		return
	}
	if req.DisplayName == nil && req.Password == nil {
		writeError(w, http.StatusUnprocessableEntity, "Nothing to update.")
		return
	}

	updated, err := h.Users.UpdateProfile(r.Context(), u.ID, identity.UpdateProfileInput{
		DisplayName: req.DisplayName,
		Password:    req.Password,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	auditLog(r, "account_update_profile", "user", u.ID)
	writeOK(w, http.StatusOK, envelope{"user": updated})
}

type emailChangeRequestBody struct {
	NewEmail string `json:"new_email"`
	Reason   string `json:"reason"`
}

// emailChangeRequest opens a pending email-change request. The decision is
// made out of band by support via the mailed approve/deny links.
func (h *handler) emailChangeRequest(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	u := h.requireAuth(w, r)
	if u == nil {
		return
	}

	var body emailChangeRequestBody
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid JSON body.")
		return
	}
	newEmail := identity.NormalizeEmail(body.NewEmail)
	if !validEmail(newEmail) {
		writeError(w, http.StatusUnprocessableEntity, "Valid email required.")
		return
	}

	req, err := h.EmailChange.Request(r.Context(), u.ID, u.Email, newEmail,
		strings.TrimSpace(body.Reason), clientIP(r))
	if err != nil {
		if errors.Is(err, emailchange.ErrRateLimited) && h.Metrics != nil {
			h.Metrics.IncRateLimitRejection("email_change")
		}
		writeDomainError(w, r, err)
		return
	}

	if h.Metrics != nil {
		h.Metrics.EmailChangeRequestsTotal.Inc()
	}
	auditLog(r, "account_email_change_request", "email_change_request", req.ID)
	writeOK(w, http.StatusCreated, envelope{"request": req})
}

// emailRequestDecision redeems an approve or deny link. It accepts GET so
// the mailed links work in a browser.
func (h *handler) emailRequestDecision(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("token")
	decision := emailchange.Decision(q.Get("decision"))
	if token == "" || !decision.Valid() {
		writeError(w, http.StatusUnprocessableEntity, "decision and token are required.")
		return
	}

	outcome, err := h.EmailChange.Decide(r.Context(), token, decision, clientIP(r))
	if err != nil {
		// Expiry is settled as a side effect; record it before reporting.
		if errors.Is(err, emailchange.ErrExpired) && h.Metrics != nil {
			h.Metrics.IncEmailChangeDecision(string(emailchange.StatusExpired))
		}
		writeDomainError(w, r, err)
		return
	}

	if h.Metrics != nil {
		h.Metrics.IncEmailChangeDecision(string(outcome.Status))
	}
	auditLog(r, "account_email_request_decision", "email_change_request", "",
		"decision", string(decision), "status", string(outcome.Status))
	writeOK(w, http.StatusOK, envelope{
		"status":          outcome.Status,
		"current_email":   outcome.CurrentEmail,
		"requested_email": outcome.RequestedEmail,
	})
}
