package api

import (
	"net/http"

	"github.com/pucc/slapshot/internal/auth"
)

type memberChangeRequest struct {
	TeamID string `json:"team_id"`
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (h *handler) readMemberChange(w http.ResponseWriter, r *http.Request) (*auth.User, *memberChangeRequest) {
	if !requirePost(w, r) {
		return nil, nil
	}
	u := h.requireAuth(w, r)
	if u == nil {
		return nil, nil
	}

	var body memberChangeRequest
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid JSON body.")
		return nil, nil
	}
	if body.TeamID == "" || body.UserID == "" {
		writeError(w, http.StatusUnprocessableEntity, "team_id and user_id required.")
		return nil, nil
	}
	return u, &body
}

// teamMemberRole promotes or demotes a member between admin and member.
func (h *handler) teamMemberRole(w http.ResponseWriter, r *http.Request) {
	u, body := h.readMemberChange(w, r)
	if body == nil {
		return
	}

	role := auth.Role(body.Role)
	if role != auth.RoleAdmin && role != auth.RoleMember {
		writeError(w, http.StatusUnprocessableEntity, "role must be admin or member.")
		return
	}

	if err := h.Teams.SetMemberRole(r.Context(), u.ID, body.TeamID, body.UserID, role); err != nil {
		writeDomainError(w, r, err)
		return
	}

	auditLog(r, "team_member_role", "membership", body.TeamID+"/"+body.UserID,
		"new_role", string(role))
	writeOK(w, http.StatusOK, nil)
}

// teamMemberRemove removes a member from the roster. The row survives with
// status removed so a rejoin via join code reactivates it.
func (h *handler) teamMemberRemove(w http.ResponseWriter, r *http.Request) {
	u, body := h.readMemberChange(w, r)
	if body == nil {
		return
	}

	if err := h.Teams.RemoveMember(r.Context(), u.ID, body.TeamID, body.UserID); err != nil {
		writeDomainError(w, r, err)
		return
	}

	auditLog(r, "team_member_remove", "membership", body.TeamID+"/"+body.UserID)
	writeOK(w, http.StatusOK, nil)
}
