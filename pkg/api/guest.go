package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/txn2/pipeline-relay/pkg/apierr"
	"github.com/txn2/pipeline-relay/pkg/audit"
	"github.com/txn2/pipeline-relay/pkg/pipeline"
	"github.com/txn2/pipeline-relay/pkg/token"
)

// guestLinkRequest is the body of POST /guest-links. Either SessionID or
// both Project and Agent are set.
type guestLinkRequest struct {
	SessionID string  `json:"sessionId,omitempty"`
	Project   string  `json:"project,omitempty"`
	Agent     string  `json:"agent,omitempty"`
	TTLHours  float64 `json:"ttlHours,omitempty"`
}

// guestLinkResponse is a created guest link.
type guestLinkResponse struct {
	*token.GuestLink
	URL string `json:"url"`
}

// guestLinkListResponse wraps a list of guest links.
type guestLinkListResponse struct {
	Links []*token.GuestLink `json:"links"`
	Total int                `json:"total"`
}

// guestViewResponse is what a guest link shows.
type guestViewResponse struct {
	Target    token.GuestTarget   `json:"target"`
	ExpiresAt time.Time           `json:"expiresAt"`
	Sessions  []*pipeline.Session `json:"sessions"`
}

// errGuestDenied is the only failure a guest ever sees.
var errGuestDenied = apierr.New(apierr.Unauthorized, "invalid or expired")

// issueShareToken handles POST /share-token.
//
// @Summary      Issue share token
// @Description  Issues a short-lived token that authorizes exactly one guest link creation.
// @Tags         Guest Access
// @Produce      json
// @Success      200  {object}  token.ShareToken
// @Failure      429  {object}  apierr.Problem
// @Router       /share-token [post]
func (h *Handler) issueShareToken(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.Shares.Issue(subject(r))
	if errors.Is(err, token.ErrCapacity) {
		writeError(w, r, apierr.New(apierr.RateLimited, "too many outstanding share tokens"))
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.record(r, audit.NewEvent(audit.ActionShareTokenIssued).WithActor(subject(r)))
	writeJSON(w, http.StatusOK, st)
}

// createGuestLink handles POST /guest-links.
//
// @Summary      Create guest link
// @Description  Creates a read-only link to one session, or to every session of an agent in a project.
// @Tags         Guest Access
// @Accept       json
// @Produce      json
// @Param        body  body  guestLinkRequest  true  "Target"
// @Success      201  {object}  guestLinkResponse
// @Failure      400  {object}  apierr.Problem
// @Failure      404  {object}  apierr.Problem
// @Security     ShareToken
// @Router       /guest-links [post]
func (h *Handler) createGuestLink(w http.ResponseWriter, r *http.Request) {
	var req guestLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.TTLHours < 0 {
		writeError(w, r, apierr.NewInvalid("ttlHours must not be negative"))
		return
	}
	target := token.GuestTarget{SessionID: req.SessionID, Project: req.Project, Agent: req.Agent}
	if !target.Valid() {
		writeError(w, r, apierr.NewInvalid(token.ErrInvalidTarget.Error()))
		return
	}
	if target.SessionID != "" {
		if _, err := h.deps.Ingest.Snapshot(r.Context(), target.SessionID); err != nil {
			writeError(w, r, err)
			return
		}
	}

	ttl := time.Duration(req.TTLHours * float64(time.Hour))
	link, err := h.deps.Guests.Issue(r.Context(), target, ttl, subject(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.record(r, audit.NewEvent(audit.ActionGuestLinkCreated).
		WithActor(subject(r)).WithTarget(link.ID).
		WithDetail("session_id", target.SessionID).
		WithDetail("project", target.Project).
		WithDetail("agent", target.Agent).
		WithDetail("expires_at", link.ExpiresAt))
	writeJSON(w, http.StatusCreated, guestLinkResponse{GuestLink: link, URL: "/guest/" + link.Token})
}

// listGuestLinks handles GET /guest-links.
//
// @Summary      List guest links
// @Tags         Guest Access
// @Produce      json
// @Success      200  {object}  guestLinkListResponse
// @Router       /guest-links [get]
func (h *Handler) listGuestLinks(w http.ResponseWriter, r *http.Request) {
	links, err := h.deps.Guests.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if links == nil {
		links = []*token.GuestLink{}
	}
	writeJSON(w, http.StatusOK, guestLinkListResponse{Links: links, Total: len(links)})
}

// revokeGuestLink handles DELETE /guest-links/{token}.
//
// @Summary      Revoke guest link
// @Tags         Guest Access
// @Produce      json
// @Param        token  path  string  true  "Link token or ID"
// @Success      200  {object}  statusResponse
// @Failure      404  {object}  apierr.Problem
// @Router       /guest-links/{token} [delete]
func (h *Handler) revokeGuestLink(w http.ResponseWriter, r *http.Request) {
	err := h.deps.Guests.Revoke(r.Context(), r.PathValue("token"))
	if errors.Is(err, token.ErrInvalidOrExpired) {
		writeError(w, r, apierr.NewNotFound("guest link not found"))
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.record(r, audit.NewEvent(audit.ActionGuestLinkRevoked).WithActor(subject(r)))
	writeJSON(w, http.StatusOK, statusResponse{Status: "revoked"})
}

// guestView handles GET /guest/{token}. Unknown, expired and revoked links,
// and links whose session is gone, all fail the same way.
//
// @Summary      View guest link
// @Tags         Guest Access
// @Produce      json
// @Param        token  path  string  true  "Link token"
// @Success      200  {object}  guestViewResponse
// @Failure      401  {object}  apierr.Problem
// @Router       /guest/{token} [get]
func (h *Handler) guestView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	link, err := h.deps.Guests.Validate(ctx, r.PathValue("token"))
	if errors.Is(err, token.ErrInvalidOrExpired) {
		writeError(w, r, errGuestDenied)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := guestViewResponse{Target: link.Target, ExpiresAt: link.ExpiresAt}
	if link.Target.SessionID != "" {
		sess, err := h.deps.Ingest.Snapshot(ctx, link.Target.SessionID)
		if apierr.KindOf(err) == apierr.NotFound {
			writeError(w, r, errGuestDenied)
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp.Sessions = []*pipeline.Session{sess}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	listed, err := h.deps.Ingest.ListSessions(ctx, pipeline.ListFilter{
		Agent:   link.Target.Agent,
		Project: link.Target.Project,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp.Sessions = make([]*pipeline.Session, 0, len(listed))
	for _, s := range listed {
		full, err := h.deps.Ingest.Snapshot(ctx, s.ID)
		if apierr.KindOf(err) == apierr.NotFound {
			continue
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp.Sessions = append(resp.Sessions, full)
	}
	writeJSON(w, http.StatusOK, resp)
}
