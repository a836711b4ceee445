package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/pucc/slapshot/internal/emailchange"
	"github.com/pucc/slapshot/internal/identity"
	"github.com/pucc/slapshot/internal/media"
	"github.com/pucc/slapshot/internal/ratelimit"
	"github.com/pucc/slapshot/internal/team"
)

// maxBodySize is the maximum allowed JSON request body size (1 MB).
const maxBodySize = 1 << 20

// envelope is the response shape shared by every action: {"ok": bool, ...}.
type envelope map[string]any

// writeOK writes a success envelope with extra fields merged in.
func writeOK(w http.ResponseWriter, statusCode int, fields envelope) {
	body := envelope{"ok": true}
	for k, v := range fields {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError writes a failure envelope with a human-readable message.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(envelope{"ok": false, "error": message})
}

// readJSON decodes the request body into v, enforcing a size limit. An empty
// body decodes to the zero value.
func readJSON(r *http.Request, v any) error {
	lr := io.LimitReader(r.Body, maxBodySize)
	err := json.NewDecoder(lr).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// writeDomainError maps sentinel errors from the domain packages onto the
// status taxonomy. Anything unrecognized is a 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrEmailTaken):
		writeError(w, http.StatusConflict, "Email already exists.")
	case errors.Is(err, identity.ErrNotFound):
		writeError(w, http.StatusNotFound, "User not found.")
	case errors.Is(err, team.ErrNotFound):
		writeError(w, http.StatusNotFound, "Team not found.")
	case errors.Is(err, team.ErrForbidden):
		writeError(w, http.StatusForbidden, "Not allowed.")
	case errors.Is(err, team.ErrConfirmation):
		writeError(w, http.StatusUnprocessableEntity, "Confirmation did not match.")
	case errors.Is(err, team.ErrConflict):
		writeError(w, http.StatusConflict, "Conflicting change, try again.")
	case errors.Is(err, media.ErrNotFound):
		writeError(w, http.StatusNotFound, "Media item not found.")
	case errors.Is(err, media.ErrBadGameDate):
		writeError(w, http.StatusUnprocessableEntity, "game_date must be YYYY-MM-DD.")
	case errors.Is(err, emailchange.ErrSameEmail):
		writeError(w, http.StatusUnprocessableEntity, "New email matches your current email.")
	case errors.Is(err, emailchange.ErrEmailInUse), errors.Is(err, emailchange.ErrEmailClaimed):
		writeError(w, http.StatusConflict, "That email is already in use.")
	case errors.Is(err, emailchange.ErrPendingExists):
		writeError(w, http.StatusConflict, "An email change request is already pending.")
	case errors.Is(err, emailchange.ErrRateLimited), errors.Is(err, ratelimit.ErrLimited):
		writeError(w, http.StatusTooManyRequests, "Too many attempts. Try again later.")
	case errors.Is(err, emailchange.ErrNotFound):
		writeError(w, http.StatusNotFound, "Request not found.")
	case errors.Is(err, emailchange.ErrWrongToken):
		writeError(w, http.StatusForbidden, "This link cannot make that decision.")
	case errors.Is(err, emailchange.ErrAlreadyDecided):
		writeError(w, http.StatusConflict, "This request has already been decided.")
	case errors.Is(err, emailchange.ErrExpired):
		writeError(w, http.StatusGone, "This request has expired.")
	default:
		slog.Error("internal error",
			"error", err,
			"path", r.URL.Path,
			"action", r.URL.Query().Get("action"),
			"request_id", RequestIDFromContext(r.Context()),
		)
		writeError(w, http.StatusInternalServerError, "Internal error.")
	}
}
