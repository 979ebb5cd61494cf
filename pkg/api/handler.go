// Package api serves the relay's HTTP surface: session ingestion for agents,
// live event streams for viewers, and the token and login endpoints around
// them.
//
//	@title						pipeline-relay API
//	@version					1.0
//	@description				Mirrors agent pipeline sessions and streams them to viewers.
//	@BasePath					/
//	@securityDefinitions.apikey	AdminSecret
//	@in							header
//	@name						X-Admin-Secret
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@securityDefinitions.apikey	ShareToken
//	@in							header
//	@name						X-Share-Token
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/txn2/pipeline-relay/pkg/agentkey"
	"github.com/txn2/pipeline-relay/pkg/apierr"
	"github.com/txn2/pipeline-relay/pkg/audit"
	"github.com/txn2/pipeline-relay/pkg/auth"
	"github.com/txn2/pipeline-relay/pkg/broadcast"
	"github.com/txn2/pipeline-relay/pkg/health"
	"github.com/txn2/pipeline-relay/pkg/ingest"
	"github.com/txn2/pipeline-relay/pkg/metrics"
	"github.com/txn2/pipeline-relay/pkg/token"
	"github.com/txn2/pipeline-relay/pkg/websession"
)

const (
	defaultMaxBodyBytes = 4 << 20
	defaultKeepalive    = 25 * time.Second
)

// Config holds settings the handlers need that are not components.
type Config struct {
	// Name is reported by /api/version.
	Name      string
	Version   string
	Commit    string
	BuildDate string

	// PasswordHash is the bcrypt hash checked by /auth/login. Empty
	// disables password login.
	PasswordHash string

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64

	// Keepalive is the interval between SSE comment frames.
	Keepalive time.Duration
}

// Deps holds the components behind the handlers.
type Deps struct {
	Config   Config
	Gate     *auth.Gate
	Limiter  *auth.LoginLimiter
	Sessions *websession.Manager
	Ingest   *ingest.Service
	Hub      *broadcast.Hub
	Agents   *agentkey.Registry
	Shares   *token.ShareStore
	Guests   *token.GuestService
	Codes    *token.CodeService
	Health   *health.Checker
	Metrics  *metrics.Metrics

	// Audit records security events. Nil discards them.
	Audit *audit.Logger

	// UI serves browser pages. Nil serves nothing outside the API.
	UI http.Handler

	// Login serves the login page. Nil falls back to UI.
	Login http.Handler
}

// Handler is the relay's root http.Handler.
type Handler struct {
	deps    Deps
	cfg     Config
	mux     *http.ServeMux
	handler http.Handler
}

// New creates the handler and registers every route.
func New(deps Deps) *Handler {
	cfg := deps.Config
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Keepalive <= 0 {
		cfg.Keepalive = defaultKeepalive
	}
	h := &Handler{deps: deps, cfg: cfg, mux: http.NewServeMux()}
	h.registerRoutes()
	h.handler = logRequests(limitBodies(cfg.MaxBodyBytes, deps.Gate.Middleware(h.mux)))
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	admin := auth.Require(auth.AdminAccess...)
	agent := auth.Require(auth.AgentAccess...)
	viewer := auth.Require(auth.ViewerAccess...)
	guestCreator := auth.Require(append([]auth.Outcome{auth.OutcomeShareToken}, auth.ViewerAccess...)...)

	// Sessions and steps.
	h.mux.Handle("POST /sessions", agent(http.HandlerFunc(h.createSession)))
	h.mux.Handle("GET /sessions", viewer(http.HandlerFunc(h.listSessions)))
	h.mux.Handle("POST /sessions/resume", agent(http.HandlerFunc(h.resumeSession)))
	h.mux.Handle("GET /sessions/{id}", viewer(http.HandlerFunc(h.getSession)))
	h.mux.Handle("DELETE /sessions/{id}", admin(http.HandlerFunc(h.deleteSession)))
	h.mux.Handle("POST /sessions/{id}/steps", agent(http.HandlerFunc(h.appendStep)))
	h.mux.Handle("POST /sessions/{id}/status", agent(http.HandlerFunc(h.updateStatus)))

	// Live streams.
	h.mux.Handle("GET /events", viewer(http.HandlerFunc(h.streamEvents)))
	h.mux.Handle("GET /events/{id}", viewer(http.HandlerFunc(h.streamEvents)))

	// Browser login.
	h.mux.HandleFunc("POST /auth/login", h.login)
	h.mux.HandleFunc("POST /auth/logout", h.logout)
	h.mux.HandleFunc("GET /auth/check", h.check)

	// Guest access.
	h.mux.Handle("POST /share-token", viewer(http.HandlerFunc(h.issueShareToken)))
	h.mux.Handle("POST /guest-links", guestCreator(http.HandlerFunc(h.createGuestLink)))
	h.mux.Handle("GET /guest-links", viewer(http.HandlerFunc(h.listGuestLinks)))
	h.mux.Handle("DELETE /guest-links/{token}", viewer(http.HandlerFunc(h.revokeGuestLink)))
	h.mux.HandleFunc("GET /guest/{token}", h.guestView)

	// Agent registration.
	h.mux.Handle("POST /admin/registration-code", admin(http.HandlerFunc(h.issueRegistrationCode)))
	h.mux.HandleFunc("POST /tokens/register-with-code", h.registerWithCode)
	h.mux.Handle("GET /agents", admin(http.HandlerFunc(h.listAgentTokens)))
	h.mux.Handle("POST /agents", admin(http.HandlerFunc(h.createAgentToken)))
	h.mux.Handle("DELETE /agents/tokens/{id}", admin(http.HandlerFunc(h.revokeAgentToken)))
	h.mux.Handle("GET /admin/audit", admin(http.HandlerFunc(h.listAudit)))

	// Operations.
	h.mux.Handle("GET /healthz", h.deps.Health.LivenessHandler())
	h.mux.Handle("GET /readyz", h.deps.Health.ReadinessHandler())
	h.mux.HandleFunc("GET /api/version", h.version)
	h.mux.HandleFunc("GET /api/contract", h.contract)
	h.mux.Handle("GET /metrics", admin(h.deps.Metrics.Handler()))
	h.mux.Handle("GET /swagger/", swaggerHandler())

	h.registerUI()
}

// registerUI mounts the browser pages. Unknown API paths get a problem
// response instead of the page shell.
func (h *Handler) registerUI() {
	login := h.deps.Login
	if login == nil {
		login = h.deps.UI
	}
	if login != nil {
		h.mux.Handle("GET /login", login)
	}
	h.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if h.deps.UI == nil || auth.IsAPIPath(r.URL.Path) || r.Method != http.MethodGet {
			apierr.Write(w, apierr.NewNotFound("no such route"))
			return
		}
		h.deps.UI.ServeHTTP(w, r)
	})
}

// statusResponse is a generic acknowledgement.
type statusResponse struct {
	Status string `json:"status"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes err as problem+json, logging anything that will be
// reported as an internal error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if apierr.KindOf(err) == apierr.Internal {
		var e *apierr.Error
		if !errors.As(err, &e) {
			slog.Error("api: request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		}
	}
	apierr.Write(w, err)
}

// decodeJSON decodes the request body into v.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apierr.NewInvalid("request body too large")
		}
		return apierr.NewInvalid("invalid JSON body")
	}
	return nil
}

// subject names the caller for audit fields such as createdBy.
func subject(r *http.Request) string {
	p := auth.GetPrincipal(r.Context())
	if p == nil {
		return ""
	}
	if p.Agent != nil {
		return p.Agent.Agent
	}
	return p.Subject
}
