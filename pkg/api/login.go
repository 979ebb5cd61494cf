package api

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/txn2/pipeline-relay/pkg/apierr"
	"github.com/txn2/pipeline-relay/pkg/audit"
	"github.com/txn2/pipeline-relay/pkg/auth"
)

// loginRequest is the body of POST /auth/login.
type loginRequest struct {
	Password string `json:"password"`
}

// checkResponse reports the caller's browser session.
type checkResponse struct {
	Authenticated bool   `json:"authenticated"`
	Subject       string `json:"subject,omitempty"`
}

// login handles POST /auth/login.
//
// @Summary      Log in
// @Description  Checks the admin password and starts a browser session. Attempts are rate limited per client address.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body  loginRequest  true  "Password"
// @Success      200  {object}  checkResponse
// @Failure      401  {object}  apierr.Problem
// @Failure      429  {object}  apierr.Problem
// @Router       /auth/login [post]
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	client := h.deps.Gate.ClientIP(r)
	if ok, retryAfter := h.deps.Limiter.Allow(client); !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
		writeError(w, r, apierr.New(apierr.RateLimited, "too many login attempts"))
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ok, err := auth.CheckPassword(h.cfg.PasswordHash, req.Password)
	switch {
	case errors.Is(err, auth.ErrLoginDisabled):
		slog.Warn("api: login attempted with no password configured", "client", client)
		h.record(r, audit.NewEvent(audit.ActionLogin).Failed("login disabled"))
		writeError(w, r, apierr.NewUnauthorized())
		return
	case err != nil:
		writeError(w, r, err)
		return
	case !ok:
		slog.Info("api: failed login", "client", client)
		h.record(r, audit.NewEvent(audit.ActionLogin).Failed("wrong password"))
		writeError(w, r, apierr.NewUnauthorized())
		return
	}

	sess, err := h.deps.Sessions.Authenticate(w, r, auth.AdminSubject)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.record(r, audit.NewEvent(audit.ActionLogin).WithActor(sess.Subject))
	writeJSON(w, http.StatusOK, checkResponse{Authenticated: true, Subject: sess.Subject})
}

// logout handles POST /auth/logout.
//
// @Summary      Log out
// @Tags         Auth
// @Produce      json
// @Success      200  {object}  statusResponse
// @Router       /auth/logout [post]
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if sess, err := h.deps.Sessions.Current(r); err == nil && sess != nil && sess.Authenticated {
		h.record(r, audit.NewEvent(audit.ActionLogout).WithActor(sess.Subject))
	}
	if err := h.deps.Sessions.Logout(w, r); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "logged out"})
}

// check handles GET /auth/check.
//
// @Summary      Check login
// @Description  Reports whether the request carries an authenticated browser session.
// @Tags         Auth
// @Produce      json
// @Success      200  {object}  checkResponse
// @Router       /auth/check [get]
func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	sess, err := h.deps.Sessions.Current(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := checkResponse{}
	if sess != nil && sess.Authenticated {
		resp.Authenticated = true
		resp.Subject = sess.Subject
	}
	writeJSON(w, http.StatusOK, resp)
}
