package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/txn2/pipeline-relay/pkg/apierr"
	"github.com/txn2/pipeline-relay/pkg/audit"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// auditListResponse is a page of audit events.
type auditListResponse struct {
	Events []audit.Event `json:"events"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// listAudit handles GET /admin/audit.
//
// @Summary      Query audit trail
// @Description  Returns security audit events, newest first.
// @Tags         Admin
// @Produce      json
// @Param        action   query  string  false  "Action, e.g. login or guest_link.created"
// @Param        actor    query  string  false  "Actor"
// @Param        success  query  bool    false  "Only successful or only failed events"
// @Param        since    query  string  false  "RFC 3339 lower bound"
// @Param        until    query  string  false  "RFC 3339 upper bound"
// @Param        limit    query  int     false  "Page size (default 50, max 500)"
// @Param        offset   query  int     false  "Page offset"
// @Success      200  {object}  auditListResponse
// @Failure      400  {object}  apierr.Problem
// @Security     AdminSecret
// @Router       /admin/audit [get]
func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	events, total, err := h.deps.Audit.Query(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	writeJSON(w, http.StatusOK, auditListResponse{
		Events: events,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

func parseAuditFilter(r *http.Request) (audit.QueryFilter, error) {
	q := r.URL.Query()
	filter := audit.QueryFilter{
		Action: audit.Action(q.Get("action")),
		Actor:  q.Get("actor"),
		Limit:  defaultAuditLimit,
	}

	if v := q.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, apierr.NewInvalid("success must be true or false")
		}
		filter.Success = &b
	}
	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{{"since", &filter.StartTime}, {"until", &filter.EndTime}} {
		v := q.Get(bound.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, apierr.NewInvalid(bound.name + " must be an RFC 3339 timestamp")
		}
		*bound.dst = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return filter, apierr.NewInvalid("limit must be a positive integer")
		}
		filter.Limit = min(n, maxAuditLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, apierr.NewInvalid("offset must not be negative")
		}
		filter.Offset = n
	}
	return filter, nil
}

// record stamps event with the caller's address and stores it.
func (h *Handler) record(r *http.Request, event *audit.Event) {
	event.WithClientIP(h.deps.Gate.ClientIP(r))
	h.deps.Audit.Record(r.Context(), event)
}
