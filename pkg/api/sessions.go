package api

import (
	"net/http"
	"strconv"

	"github.com/txn2/pipeline-relay/pkg/apierr"
	"github.com/txn2/pipeline-relay/pkg/audit"
	"github.com/txn2/pipeline-relay/pkg/ingest"
	"github.com/txn2/pipeline-relay/pkg/pipeline"
)

// sessionListResponse wraps a list of sessions.
type sessionListResponse struct {
	Sessions []*pipeline.Session `json:"sessions"`
	Total    int                 `json:"total"`
}

// statusRequest is the body of a status change.
type statusRequest struct {
	Status pipeline.Status `json:"status"`
}

// resumeRequest is the body of a resume call.
type resumeRequest struct {
	Agent   string `json:"agent"`
	Project string `json:"project"`
}

// createSession handles POST /sessions.
//
// @Summary      Start a session
// @Description  Starts a pipeline session. Identical requests within the dedup window return the first session with deduplicated set.
// @Tags         Sessions
// @Accept       json
// @Produce      json
// @Param        body  body  ingest.CreateRequest  true  "Session"
// @Success      200  {object}  ingest.CreateResult
// @Failure      400  {object}  apierr.Problem
// @Failure      403  {object}  apierr.Problem
// @Security     BearerAuth
// @Security     AdminSecret
// @Router       /sessions [post]
func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req ingest.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.deps.Ingest.CreateSession(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// listSessions handles GET /sessions.
//
// @Summary      List sessions
// @Description  Returns active sessions, or sessions matching the status, agent and project filters.
// @Tags         Sessions
// @Produce      json
// @Param        status   query  string  false  "active, paused or completed"
// @Param        agent    query  string  false  "Agent name"
// @Param        project  query  string  false  "Project"
// @Param        limit    query  int     false  "Maximum results"
// @Success      200  {object}  sessionListResponse
// @Failure      400  {object}  apierr.Problem
// @Router       /sessions [get]
func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := pipeline.ListFilter{
		Status:  pipeline.Status(q.Get("status")),
		Agent:   q.Get("agent"),
		Project: q.Get("project"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, apierr.NewInvalid("limit must be a non-negative integer"))
			return
		}
		f.Limit = n
	}

	var (
		sessions []*pipeline.Session
		err      error
	)
	if f == (pipeline.ListFilter{}) {
		sessions, err = h.deps.Ingest.ActiveSessions(r.Context())
	} else {
		sessions, err = h.deps.Ingest.ListSessions(r.Context(), f)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []*pipeline.Session{}
	}
	writeJSON(w, http.StatusOK, sessionListResponse{Sessions: sessions, Total: len(sessions)})
}

// getSession handles GET /sessions/{id}.
//
// @Summary      Get session
// @Description  Returns a session with its steps in sequence order.
// @Tags         Sessions
// @Produce      json
// @Param        id  path  string  true  "Session ID"
// @Success      200  {object}  pipeline.Session
// @Failure      404  {object}  apierr.Problem
// @Router       /sessions/{id} [get]
func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.deps.Ingest.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// appendStep handles POST /sessions/{id}/steps.
//
// @Summary      Append step
// @Description  Renders and stores a step. The relay assigns the sequence number.
// @Tags         Sessions
// @Accept       json
// @Produce      json
// @Param        id    path  string            true  "Session ID"
// @Param        body  body  ingest.StepInput  true  "Step"
// @Success      200  {object}  ingest.StepResult
// @Failure      400  {object}  apierr.Problem
// @Failure      404  {object}  apierr.Problem
// @Security     BearerAuth
// @Security     AdminSecret
// @Router       /sessions/{id}/steps [post]
func (h *Handler) appendStep(w http.ResponseWriter, r *http.Request) {
	var in ingest.StepInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.deps.Ingest.AppendStep(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// updateStatus handles POST /sessions/{id}/status.
//
// @Summary      Change session status
// @Tags         Sessions
// @Accept       json
// @Produce      json
// @Param        id    path  string         true  "Session ID"
// @Param        body  body  statusRequest  true  "New status"
// @Success      200  {object}  pipeline.Session
// @Failure      400  {object}  apierr.Problem
// @Failure      404  {object}  apierr.Problem
// @Failure      409  {object}  apierr.Problem
// @Security     BearerAuth
// @Security     AdminSecret
// @Router       /sessions/{id}/status [post]
func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := h.deps.Ingest.UpdateStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// resumeSession handles POST /sessions/resume.
//
// @Summary      Resume session
// @Description  Reactivates the most recent paused or completed session for the agent and project.
// @Tags         Sessions
// @Accept       json
// @Produce      json
// @Param        body  body  resumeRequest  true  "Agent and project"
// @Success      200  {object}  pipeline.Session
// @Failure      404  {object}  apierr.Problem
// @Security     BearerAuth
// @Security     AdminSecret
// @Router       /sessions/resume [post]
func (h *Handler) resumeSession(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := h.deps.Ingest.Resume(r.Context(), req.Agent, req.Project)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// deleteSession handles DELETE /sessions/{id}.
//
// @Summary      Delete session
// @Tags         Sessions
// @Produce      json
// @Param        id  path  string  true  "Session ID"
// @Success      200  {object}  statusResponse
// @Failure      404  {object}  apierr.Problem
// @Security     AdminSecret
// @Router       /sessions/{id} [delete]
func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.deps.Ingest.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	h.record(r, audit.NewEvent(audit.ActionSessionDeleted).WithActor(subject(r)).WithTarget(id))
	writeJSON(w, http.StatusOK, statusResponse{Status: "deleted"})
}
