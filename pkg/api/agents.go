package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/txn2/pipeline-relay/pkg/agentkey"
	"github.com/txn2/pipeline-relay/pkg/apierr"
	"github.com/txn2/pipeline-relay/pkg/audit"
	"github.com/txn2/pipeline-relay/pkg/token"
)

const tokenWarning = "Store this token securely. It will not be shown again."

// registrationRejected is the detail for every failed registration.
const registrationRejected = "registration code unavailable or agent already registered"

// registrationCodeResponse is a newly issued registration code.
type registrationCodeResponse struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// registerRequest is the body of POST /tokens/register-with-code.
type registerRequest struct {
	Code  string `json:"code"`
	Agent string `json:"agent"`
}

// agentTokenRequest is the body of POST /agents.
type agentTokenRequest struct {
	Agent string `json:"agent"`
}

// agentTokenResponse carries a raw bearer token, shown once.
type agentTokenResponse struct {
	*agentkey.Issued
	Warning string `json:"warning"`
}

// agentTokenListResponse wraps a list of bearer token records.
type agentTokenListResponse struct {
	Tokens []*agentkey.BearerToken `json:"tokens"`
	Total  int                     `json:"total"`
}

// issueRegistrationCode handles POST /admin/registration-code.
//
// @Summary      Issue registration code
// @Description  Issues a single-use code an agent exchanges for its bearer token.
// @Tags         Agents
// @Produce      json
// @Success      201  {object}  registrationCodeResponse
// @Security     AdminSecret
// @Router       /admin/registration-code [post]
func (h *Handler) issueRegistrationCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.deps.Codes.Issue(r.Context(), subject(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.record(r, audit.NewEvent(audit.ActionRegistrationCodeIssued).WithActor(subject(r)))
	writeJSON(w, http.StatusCreated, registrationCodeResponse{Code: code.Code, ExpiresAt: code.ExpiresAt})
}

// registerWithCode handles POST /tokens/register-with-code.
//
// An agent name that is already registered and a code that cannot be
// consumed both answer 409 Conflict with the same detail. The code is only
// spent once the name has been checked.
//
// @Summary      Register agent
// @Description  Exchanges a registration code for a bearer token. The token is returned once.
// @Tags         Agents
// @Accept       json
// @Produce      json
// @Param        body  body  registerRequest  true  "Code and agent name"
// @Success      201  {object}  agentTokenResponse
// @Failure      400  {object}  apierr.Problem
// @Failure      409  {object}  apierr.Problem
// @Router       /tokens/register-with-code [post]
func (h *Handler) registerWithCode(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if !agentkey.ValidAgentName(req.Agent) {
		writeError(w, r, apierr.NewInvalid(agentkey.ErrInvalidAgentName.Error()))
		return
	}

	ctx := r.Context()
	exists, err := h.deps.Agents.Exists(ctx, req.Agent)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if exists {
		h.record(r, audit.NewEvent(audit.ActionAgentRegistered).
			WithActor(req.Agent).WithTarget(req.Agent).Failed("agent already registered"))
		writeError(w, r, apierr.NewConflict(registrationRejected))
		return
	}

	if _, err := h.deps.Codes.Consume(ctx, req.Code, req.Agent); err != nil {
		h.record(r, audit.NewEvent(audit.ActionAgentRegistered).
			WithActor(req.Agent).WithTarget(req.Agent).Failed(err.Error()))
		if errors.Is(err, token.ErrCodeUnavailable) {
			err = apierr.Wrap(apierr.Conflict, registrationRejected, err)
		}
		writeError(w, r, err)
		return
	}

	issued, err := h.deps.Agents.Create(ctx, req.Agent)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.record(r, audit.NewEvent(audit.ActionAgentRegistered).
		WithActor(req.Agent).WithTarget(req.Agent).WithDetail("token_id", issued.ID))
	writeJSON(w, http.StatusCreated, agentTokenResponse{Issued: issued, Warning: tokenWarning})
}

// listAgentTokens handles GET /agents.
//
// @Summary      List agent tokens
// @Description  Returns every bearer token record. Token values are never exposed.
// @Tags         Agents
// @Produce      json
// @Success      200  {object}  agentTokenListResponse
// @Security     AdminSecret
// @Router       /agents [get]
func (h *Handler) listAgentTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.deps.Agents.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if tokens == nil {
		tokens = []*agentkey.BearerToken{}
	}
	writeJSON(w, http.StatusOK, agentTokenListResponse{Tokens: tokens, Total: len(tokens)})
}

// createAgentToken handles POST /agents.
//
// @Summary      Create agent token
// @Tags         Agents
// @Accept       json
// @Produce      json
// @Param        body  body  agentTokenRequest  true  "Agent name"
// @Success      201  {object}  agentTokenResponse
// @Failure      400  {object}  apierr.Problem
// @Security     AdminSecret
// @Router       /agents [post]
func (h *Handler) createAgentToken(w http.ResponseWriter, r *http.Request) {
	var req agentTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	issued, err := h.deps.Agents.Create(r.Context(), req.Agent)
	if errors.Is(err, agentkey.ErrInvalidAgentName) {
		writeError(w, r, apierr.NewInvalid(err.Error()))
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.record(r, audit.NewEvent(audit.ActionAgentTokenCreated).
		WithActor(subject(r)).WithTarget(issued.Agent).WithDetail("token_id", issued.ID))
	writeJSON(w, http.StatusCreated, agentTokenResponse{Issued: issued, Warning: tokenWarning})
}

// revokeAgentToken handles DELETE /agents/tokens/{id}.
//
// @Summary      Revoke agent token
// @Description  Revokes a bearer token. Requests already holding it may succeed until the next cache refresh.
// @Tags         Agents
// @Produce      json
// @Param        id  path  string  true  "Token ID"
// @Success      200  {object}  statusResponse
// @Failure      404  {object}  apierr.Problem
// @Security     AdminSecret
// @Router       /agents/tokens/{id} [delete]
func (h *Handler) revokeAgentToken(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := h.deps.Agents.Revoke(r.Context(), id)
	if errors.Is(err, agentkey.ErrNotFound) {
		writeError(w, r, apierr.NewNotFound("agent token not found"))
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.record(r, audit.NewEvent(audit.ActionAgentTokenRevoked).WithActor(subject(r)).WithTarget(id))
	writeJSON(w, http.StatusOK, statusResponse{Status: "revoked"})
}
