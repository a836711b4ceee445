package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/pucc/slapshot/internal/media"
)

// mediaList returns a team's media, newest first.
func (h *handler) mediaList(w http.ResponseWriter, r *http.Request) {
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

	items, err := h.Media.List(r.Context(), teamID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	for i := range items {
		items[i].FilePath = uploadsWebPath(items[i].FilePath)
	}
	writeOK(w, http.StatusOK, envelope{"items": items})
}

// mediaUpload accepts a photo or video file for a team.
func (h *handler) mediaUpload(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	u := h.requireAuth(w, r)
	if u == nil {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.Config.Uploads.MaxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "File too large.")
		return
	}

	teamID := r.FormValue("team_id")
	if teamID == "" {
		writeError(w, http.StatusUnprocessableEntity, "team_id required.")
		return
	}
	if _, err := h.Teams.RequireMembership(r.Context(), u.ID, teamID); err != nil {
		writeDomainError(w, r, err)
		return
	}

	gameDate, err := media.ParseGameDate(r.FormValue("game_date"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Upload file is required.")
		return
	}
	defer file.Close()

	if header.Size <= 0 || header.Size > h.Config.Uploads.MaxBytes {
		writeError(w, http.StatusUnprocessableEntity, "File too large.")
		return
	}

	mimeType, err := sniffMIME(file)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	mediaType, ok := media.TypeFromMIME(mimeType)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "Only image and video uploads are supported.")
		return
	}

	rel, err := media.UploadPath(teamID, header.Filename, mediaType, time.Now())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	size, err := h.Files.Save(rel, file)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = media.TitleFromFilename(header.Filename)
	}

	item := &media.Item{
		TeamID:         teamID,
		UploaderUserID: u.ID,
		MediaType:      mediaType,
		StorageType:    media.StorageUpload,
		Title:          title,
		Description:    strings.TrimSpace(r.FormValue("description")),
		GameDate:       gameDate,
		FilePath:       rel,
		MimeType:       mimeType,
		FileSize:       size,
	}
	if err := h.Media.Create(r.Context(), item); err != nil {
		// Keep storage consistent with the database.
		_ = h.Files.Delete(rel)
		writeDomainError(w, r, err)
		return
	}

	if h.Metrics != nil {
		h.Metrics.IncMediaItem(string(mediaType), string(media.StorageUpload))
	}
	auditLog(r, "media_upload", "media_item", item.ID)
	writeOK(w, http.StatusCreated, nil)
}

// mediaExternal links an external video, normalizing YouTube URLs into
// embeddable form.
func (h *handler) mediaExternal(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	u := h.requireAuth(w, r)
	if u == nil {
		return
	}

	var body struct {
		TeamID      string `json:"team_id"`
		Title       string `json:"title"`
		Description string `json:"description"`
		GameDate    string `json:"game_date"`
		URL         string `json:"url"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid JSON body.")
		return
	}
	if body.TeamID == "" {
		writeError(w, http.StatusUnprocessableEntity, "team_id required.")
		return
	}
	if _, err := h.Teams.RequireMembership(r.Context(), u.ID, body.TeamID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	title := strings.TrimSpace(body.Title)
	url := strings.TrimSpace(body.URL)
	if title == "" || url == "" {
		writeError(w, http.StatusUnprocessableEntity, "Title and video URL are required.")
		return
	}
	gameDate, err := media.ParseGameDate(body.GameDate)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	externalURL := url
	var thumbnail string
	if info, ok := media.YouTubeEmbed(url); ok {
		externalURL = info.EmbedURL
		thumbnail = info.ThumbnailURL
	}

	item := &media.Item{
		TeamID:         body.TeamID,
		UploaderUserID: u.ID,
		MediaType:      media.TypeVideo,
		StorageType:    media.StorageExternal,
		Title:          title,
		Description:    strings.TrimSpace(body.Description),
		GameDate:       gameDate,
		ExternalURL:    externalURL,
		ThumbnailURL:   thumbnail,
	}
	if err := h.Media.Create(r.Context(), item); err != nil {
		writeDomainError(w, r, err)
		return
	}

	if h.Metrics != nil {
		h.Metrics.IncMediaItem(string(media.TypeVideo), string(media.StorageExternal))
	}
	auditLog(r, "media_external", "media_item", item.ID)
	writeOK(w, http.StatusCreated, nil)
}

// mediaDelete removes an item. Allowed for its uploader or a team admin.
func (h *handler) mediaDelete(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	u := h.requireAuth(w, r)
	if u == nil {
		return
	}

	var body struct {
		MediaID string `json:"media_id"`
	}
	if err := readJSON(r, &body); err != nil || body.MediaID == "" {
		writeError(w, http.StatusUnprocessableEntity, "media_id required.")
		return
	}

	item, err := h.Media.Get(r.Context(), body.MediaID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	role, err := h.Teams.RequireMembership(r.Context(), u.ID, item.TeamID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if item.UploaderUserID != u.ID && !role.IsAdmin() {
		writeError(w, http.StatusForbidden, "Delete not allowed.")
		return
	}

	if err := h.Media.Delete(r.Context(), item.ID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if item.StorageType == media.StorageUpload && item.FilePath != "" {
		_ = h.Files.Delete(item.FilePath)
	}

	auditLog(r, "media_delete", "media_item", item.ID)
	writeOK(w, http.StatusOK, nil)
}
