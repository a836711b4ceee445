package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pucc/slapshot/internal/auth"
	"github.com/pucc/slapshot/internal/config"
	"github.com/pucc/slapshot/internal/emailchange"
	"github.com/pucc/slapshot/internal/identity"
	"github.com/pucc/slapshot/internal/invite"
	"github.com/pucc/slapshot/internal/mail"
	"github.com/pucc/slapshot/internal/media"
	"github.com/pucc/slapshot/internal/metrics"
	"github.com/pucc/slapshot/internal/storage"
	"github.com/pucc/slapshot/internal/team"
)

// TeamStore is the team and membership surface the handlers consume,
// satisfied by *team.Store.
type TeamStore interface {
	Create(ctx context.Context, ownerID, name string, meta team.Metadata) (*team.Team, error)
	CreateTx(ctx context.Context, q team.Querier, ownerID, name string, meta team.Metadata) (*team.Team, error)
	GetByID(ctx context.Context, id string) (*team.Team, error)
	Join(ctx context.Context, userID, joinCode string) (*team.Team, error)
	Update(ctx context.Context, actorID, teamID, name string, meta team.Metadata) (*team.Team, error)
	SetLogoPath(ctx context.Context, actorID, teamID, path string) error
	Delete(ctx context.Context, actorID, teamID, confirmName, confirmWord string) (*team.Team, error)
	RequireMembership(ctx context.Context, userID, teamID string) (auth.Role, error)
	RequireAdmin(ctx context.Context, userID, teamID string) (auth.Role, error)
	SetMemberRole(ctx context.Context, actorID, teamID, targetID string, newRole auth.Role) error
	RemoveMember(ctx context.Context, actorID, teamID, targetID string) error
	ListMembers(ctx context.Context, teamID string) ([]team.Member, error)
	ListUserTeams(ctx context.Context, userID string) ([]team.UserTeam, error)
}

// InviteStore records and lists invite sends, satisfied by *invite.Store.
type InviteStore interface {
	RecordSend(ctx context.Context, teamID, inviterID, email, message string) (bool, error)
	List(ctx context.Context, teamID string) ([]invite.Invite, bool, error)
}

// RateLimiter gates an action per user, satisfied by *ratelimit.Limiter.
type RateLimiter interface {
	Allow(ctx context.Context, userID string) error
}

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Pool          *pgxpool.Pool
	Users         *identity.Store
	Teams         TeamStore
	Invites       InviteStore
	EmailChange   *emailchange.Service
	Media         *media.Store
	Files         *storage.Store
	Mailer        mail.Sender
	InviteLimiter RateLimiter
	Metrics       *metrics.Metrics
	Config        *config.Config
}

// handler carries the wired dependencies for all actions.
type handler struct {
	RouterDeps
}

// NewRouter builds the chi router with all routes and middleware. The whole
// application API is a single action-dispatched endpoint; health, metrics
// and upload serving sit beside it.
func NewRouter(deps RouterDeps) http.Handler {
	h := &handler{RouterDeps: deps}

	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(secureHeaders)
	r.Use(corsMiddleware([]string{deps.Config.App.BaseURL}))
	r.Use(h.instrumentedLogger)
	r.Use(auth.SessionMiddleware(identity.NewAuthAdapter(deps.Users), deps.Config.Session.CookieName))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/metrics", deps.Metrics.Handler())

	// Uploaded files (team logos and media) are served straight from the
	// storage root.
	r.Handle("/uploads/*", http.StripPrefix("/uploads/",
		http.FileServer(http.Dir(deps.Files.Root()))))

	r.HandleFunc("/api", h.dispatch)

	return r
}

// dispatch routes a request by its ?action= parameter.
func (h *handler) dispatch(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")
	switch action {
	case "session":
		h.session(w, r)
	case "auth_register":
		h.register(w, r)
	case "auth_login":
		h.login(w, r)
	case "auth_logout":
		h.logout(w, r)
	case "account_update_profile":
		h.updateProfile(w, r)
	case "account_email_change_request":
		h.emailChangeRequest(w, r)
	case "account_email_request_decision":
		h.emailRequestDecision(w, r)
	case "team_create":
		h.teamCreate(w, r)
	case "team_join":
		h.teamJoin(w, r)
	case "team_update":
		h.teamUpdate(w, r)
	case "team_logo_upload":
		h.teamLogoUpload(w, r)
	case "team_logo_delete":
		h.teamLogoDelete(w, r)
	case "team_delete":
		h.teamDelete(w, r)
	case "team_members":
		h.teamMembers(w, r)
	case "team_member_role":
		h.teamMemberRole(w, r)
	case "team_member_remove":
		h.teamMemberRemove(w, r)
	case "invite_email":
		h.inviteEmail(w, r)
	case "media_list":
		h.mediaList(w, r)
	case "media_upload":
		h.mediaUpload(w, r)
	case "media_external":
		h.mediaExternal(w, r)
	case "media_delete":
		h.mediaDelete(w, r)
	default:
		writeOK(w, http.StatusOK, envelope{
			"service": "Slapshot Snapshot API",
			"actions": []string{
				"session",
				"auth_register",
				"auth_login",
				"auth_logout",
				"account_update_profile",
				"account_email_change_request",
				"account_email_request_decision",
				"team_create",
				"team_join",
				"team_update",
				"team_logo_upload",
				"team_logo_delete",
				"team_delete",
				"team_members",
				"team_member_role",
				"team_member_remove",
				"invite_email",
				"media_list",
				"media_upload",
				"media_external",
				"media_delete",
			},
		})
	}
}

// instrumentedLogger combines structured request logging with the HTTP
// metrics counters.
func (h *handler) instrumentedLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		action := r.URL.Query().Get("action")
		if action == "" {
			action = r.URL.Path
		}
		if h.Metrics != nil {
			h.Metrics.HTTPRequestsTotal.
				WithLabelValues(action, r.Method, fmt.Sprintf("%d", ww.Status())).Inc()
			h.Metrics.HTTPRequestDuration.
				WithLabelValues(action, r.Method).Observe(elapsed.Seconds())
		}

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"action", r.URL.Query().Get("action"),
			"status", ww.Status(),
			"duration_ms", elapsed.Milliseconds(),
			"bytes", ww.BytesWritten(),
			"request_id", RequestIDFromContext(r.Context()),
		)
	})
}

// authUser returns the session user, or nil when unauthenticated.
func authUser(r *http.Request) *auth.User {
	return auth.UserFromContext(r.Context())
}

// requireAuth returns the session user or writes a 401.
func (h *handler) requireAuth(w http.ResponseWriter, r *http.Request) *auth.User {
	u := authUser(r)
	if u == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required.")
		return nil
	}
	return u
}

// sessionToken extracts the raw session token from the cookie or bearer
// header.
func (h *handler) sessionToken(r *http.Request) string {
	return auth.SessionTokenFromRequest(r, h.Config.Session.CookieName)
}

// requirePost enforces POST on mutating actions.
func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required.")
		return false
	}
	return true
}
