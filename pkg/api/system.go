package api

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/txn2/pipeline-relay/pkg/auth"
	"github.com/txn2/pipeline-relay/pkg/broadcast"
	"github.com/txn2/pipeline-relay/pkg/pipeline"
)

// ContractVersion identifies the agent-facing contract served by
// /api/contract. It changes only on incompatible changes.
const ContractVersion = "1"

// versionResponse is returned by GET /api/version.
type versionResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"buildDate,omitempty"`
	Contract  string `json:"contract"`
}

// contractRoute describes one agent-facing route.
type contractRoute struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// contractResponse is returned by GET /api/contract. Agents read it to
// check that the relay speaks the protocol they were built against.
type contractResponse struct {
	Version    string           `json:"version"`
	Headers    auth.HeaderNames `json:"headers"`
	Routes     []contractRoute  `json:"routes"`
	StepKinds  []string         `json:"stepKinds"`
	Statuses   []string         `json:"statuses"`
	EventTypes []string         `json:"eventTypes"`
}

// version handles GET /api/version.
//
// @Summary      Relay version
// @Tags         System
// @Produce      json
// @Success      200  {object}  versionResponse
// @Router       /api/version [get]
func (h *Handler) version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, versionResponse{
		Name:      h.cfg.Name,
		Version:   h.cfg.Version,
		Commit:    h.cfg.Commit,
		BuildDate: h.cfg.BuildDate,
		Contract:  ContractVersion,
	})
}

// contract handles GET /api/contract.
//
// @Summary      Agent contract
// @Description  Describes the routes, headers and enumerations agents depend on.
// @Tags         System
// @Produce      json
// @Success      200  {object}  contractResponse
// @Router       /api/contract [get]
func (h *Handler) contract(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, contractResponse{
		Version: ContractVersion,
		Headers: h.deps.Gate.HeaderNames(),
		Routes: []contractRoute{
			{http.MethodPost, "/sessions"},
			{http.MethodPost, "/sessions/{id}/steps"},
			{http.MethodPost, "/sessions/{id}/status"},
			{http.MethodPost, "/sessions/resume"},
			{http.MethodPost, "/tokens/register-with-code"},
		},
		StepKinds: []string{
			string(pipeline.StepOutput), string(pipeline.StepDocument), string(pipeline.StepCommand),
			string(pipeline.StepError), string(pipeline.StepNote),
		},
		Statuses: []string{
			string(pipeline.StatusActive), string(pipeline.StatusPaused), string(pipeline.StatusCompleted),
		},
		EventTypes: []string{
			broadcast.EventInit, broadcast.EventSessionCreated, broadcast.EventSessionUpdated,
			broadcast.EventSessionDeleted, broadcast.EventStep,
		},
	})
}

// swaggerHandler serves the API docs registered by internal/apidocs.
func swaggerHandler() http.Handler {
	return httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json"))
}
