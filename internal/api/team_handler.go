package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/pucc/slapshot/internal/team"
)

type teamMetadataBody struct {
	AgeGroup   string `json:"age_group"`
	SeasonYear string `json:"season_year"`
	Level      string `json:"level"`
	HomeRink   string `json:"home_rink"`
	City       string `json:"city"`
	Notes      string `json:"team_notes"`
}

func (b teamMetadataBody) metadata() team.Metadata {
	return team.Metadata{
		AgeGroup:   strings.TrimSpace(b.AgeGroup),
		SeasonYear: strings.TrimSpace(b.SeasonYear),
		Level:      strings.TrimSpace(b.Level),
		HomeRink:   strings.TrimSpace(b.HomeRink),
		City:       strings.TrimSpace(b.City),
		Notes:      strings.TrimSpace(b.Notes),
	}
}

// teamCreate creates a team with the caller as owner.
func (h *handler) teamCreate(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	u := h.requireAuth(w, r)
	if u == nil {
		return
	}

	var body struct {
		Name string `json:"name"`
		teamMetadataBody
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid JSON body.")
		return
	}
	name := strings.TrimSpace(body.Name)
	if utf8.RuneCountInString(name) < 2 {
		writeError(w, http.StatusUnprocessableEntity, "Team name must be at least 2 characters.")
		return
	}

	created, err := h.Teams.Create(r.Context(), u.ID, name, body.metadata())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	teams, err := h.Teams.ListUserTeams(r.Context(), u.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	auditLog(r, "team_create", "team", created.ID)
	writeOK(w, http.StatusCreated, envelope{
		"teams":           teams,
		"created_team_id": created.ID,
	})
}

// teamJoin activates a membership through a join code. A previously removed
// member comes back with their old role.
func (h *handler) teamJoin(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	u := h.requireAuth(w, r)
	if u == nil {
		return
	}

	var body struct {
		JoinCode string `json:"join_code"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid JSON body.")
		return
	}
	code := team.NormalizeJoinCode(body.JoinCode)
	if len(code) < 6 {
		writeError(w, http.StatusUnprocessableEntity, "Valid team join code required.")
		return
	}

	joined, err := h.Teams.Join(r.Context(), u.ID, code)
	if err != nil {
		if errors.Is(err, team.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Join code not found.")
			return
		}
		writeDomainError(w, r, err)
		return
	}

	teams, err := h.Teams.ListUserTeams(r.Context(), u.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	auditLog(r, "team_join", "team", joined.ID)
	writeOK(w, http.StatusOK, envelope{
		"teams":          teams,
		"joined_team_id": joined.ID,
	})
}

// teamUpdate edits a team's name and metadata. Admin or owner only.
func (h *handler) teamUpdate(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	u := h.requireAuth(w, r)
	if u == nil {
		return
	}

	var body struct {
		TeamID string `json:"team_id"`
		Name   string `json:"name"`
		teamMetadataBody
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid JSON body.")
		return
	}
	if body.TeamID == "" {
		writeError(w, http.StatusUnprocessableEntity, "team_id required.")
		return
	}
	name := strings.TrimSpace(body.Name)
	if utf8.RuneCountInString(name) < 2 {
		writeError(w, http.StatusUnprocessableEntity, "Team name must be at least 2 characters.")
		return
	}

	updated, err := h.Teams.Update(r.Context(), u.ID, body.TeamID, name, body.metadata())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	auditLog(r, "team_update", "team", updated.ID)
	writeOK(w, http.StatusOK, envelope{"team": updated})
}

// teamLogoUpload stores a new logo image for the team.
func (h *handler) teamLogoUpload(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	u := h.requireAuth(w, r)
	if u == nil {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.Config.Uploads.MaxBytes)
	if err := r.ParseMultipartForm(4 << 20); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Upload failed.")
		return
	}
	teamID := r.FormValue("team_id")
	if teamID == "" {
		writeError(w, http.StatusUnprocessableEntity, "team_id required.")
		return
	}
	if _, err := h.Teams.RequireAdmin(r.Context(), u.ID, teamID); err != nil {
		writeDomainError(w, r, err)
		return
	}

	file, header, err := r.FormFile("logo")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Logo file is required.")
		return
	}
	defer file.Close()

	mimeType, err := sniffMIME(file)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if !strings.HasPrefix(mimeType, "image/") {
		writeError(w, http.StatusUnprocessableEntity, "Logo must be an image.")
		return
	}

	ext := strings.ToLower(strings.TrimPrefix(extOf(header.Filename), "."))
	if ext == "" {
		ext = "png"
	}
	rel := fmt.Sprintf("team-%s/logo.%s", teamID, ext)
	if _, err := h.Files.Save(rel, file); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.Teams.SetLogoPath(r.Context(), u.ID, teamID, rel); err != nil {
		writeDomainError(w, r, err)
		return
	}

	auditLog(r, "team_logo_upload", "team", teamID)
	writeOK(w, http.StatusOK, envelope{"logo_path": uploadsWebPath(rel)})
}

// teamLogoDelete clears the team logo.
func (h *handler) teamLogoDelete(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	u := h.requireAuth(w, r)
	if u == nil {
		return
	}

	var body struct {
		TeamID string `json:"team_id"`
	}
	if err := readJSON(r, &body); err != nil || body.TeamID == "" {
		writeError(w, http.StatusUnprocessableEntity, "team_id required.")
		return
	}

	// Permission first, so non-members cannot distinguish real team ids
	// from unknown ones.
	if _, err := h.Teams.RequireAdmin(r.Context(), u.ID, body.TeamID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	t, err := h.Teams.GetByID(r.Context(), body.TeamID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.Teams.SetLogoPath(r.Context(), u.ID, body.TeamID, ""); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if t.LogoPath != "" {
		if err := h.Files.Delete(t.LogoPath); err != nil {
			writeDomainError(w, r, err)
			return
		}
	}

	auditLog(r, "team_logo_delete", "team", body.TeamID)
	writeOK(w, http.StatusOK, nil)
}

// teamDelete deletes a team after the owner retypes its name and the word
// DELETE, then purges the team's upload directory.
func (h *handler) teamDelete(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	u := h.requireAuth(w, r)
	if u == nil {
		return
	}

	var body struct {
		TeamID      string `json:"team_id"`
		ConfirmName string `json:"confirm_name"`
		ConfirmWord string `json:"confirm_word"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid JSON body.")
		return
	}
	if body.TeamID == "" {
		writeError(w, http.StatusUnprocessableEntity, "team_id required.")
		return
	}

	deleted, err := h.Teams.Delete(r.Context(), u.ID, body.TeamID, body.ConfirmName, body.ConfirmWord)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	// The rows are gone; leftover files are an acceptable loss on failure.
	if err := h.Files.PurgeDirectory("team-" + deleted.ID); err != nil {
		slog.Warn("purging team uploads failed", "team_id", deleted.ID, "error", err)
	}

	auditLog(r, "team_delete", "team", deleted.ID)
	writeOK(w, http.StatusOK, nil)
}

// teamMembers returns the active roster plus tracked invites. The invites
// list degrades to absent when invite tracking is unavailable.
func (h *handler) teamMembers(w http.ResponseWriter, r *http.Request) {
	u := h.requireAuth(w, r)
	if u == nil {
		return
	}
	teamID := r.URL.Query().Get("team_id")
	if teamID == "" {
		writeError(w, http.StatusUnprocessableEntity, "team_id required.")
		return
	}
	if _, err := h.Teams.RequireMembership(r.Context(), u.ID, teamID); err != nil {
		writeDomainError(w, r, err)
		return
	}

	members, err := h.Teams.ListMembers(r.Context(), teamID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	// Invite tracking is an overlay on the roster; if its store is broken
	// the members listing still succeeds without it.
	invites, enabled, err := h.Invites.List(r.Context(), teamID)
	if err != nil {
		slog.Warn("invite tracking degraded", "error", err, "team_id", teamID)
		invites, enabled = nil, false
	}

	fields := envelope{
		"members":                 members,
		"invite_tracking_enabled": enabled,
	}
	if enabled {
		fields["invites"] = invites
	}
	writeOK(w, http.StatusOK, fields)
}
