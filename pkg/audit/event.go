package audit

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Action names an audited operation.
type Action string

// Audited actions.
const (
	ActionLogin                  Action = "login"
	ActionLogout                 Action = "logout"
	ActionAgentTokenCreated      Action = "agent_token.created"
	ActionAgentTokenRevoked      Action = "agent_token.revoked"
	ActionAgentRegistered        Action = "agent.registered"
	ActionRegistrationCodeIssued Action = "registration_code.issued"
	ActionShareTokenIssued       Action = "share_token.issued"
	ActionGuestLinkCreated       Action = "guest_link.created"
	ActionGuestLinkRevoked       Action = "guest_link.revoked"
	ActionSessionDeleted         Action = "session.deleted"
)

// Event is one audited action.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Action    Action         `json:"action"`
	Actor     string         `json:"actor"`
	Target    string         `json:"target,omitempty"`
	ClientIP  string         `json:"clientIp,omitempty"`
	Success   bool           `json:"success"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// NewEvent creates a successful event for action.
func NewEvent(action Action) *Event {
	return &Event{
		ID:      ulid.Make().String(),
		Action:  action,
		Success: true,
	}
}

// WithActor sets who performed the action.
func (e *Event) WithActor(actor string) *Event {
	e.Actor = actor
	return e
}

// WithTarget sets what the action was performed on.
func (e *Event) WithTarget(target string) *Event {
	e.Target = target
	return e
}

// WithClientIP sets the caller's address.
func (e *Event) WithClientIP(ip string) *Event {
	e.ClientIP = ip
	return e
}

// WithDetail adds a detail field.
func (e *Event) WithDetail(key string, value any) *Event {
	if e.Detail == nil {
		e.Detail = make(map[string]any)
	}
	e.Detail[key] = value
	return e
}

// Failed marks the event unsuccessful with reason.
func (e *Event) Failed(reason string) *Event {
	e.Success = false
	return e.WithDetail("reason", reason)
}

var sensitiveKeys = map[string]bool{
	"password":      true,
	"secret":        true,
	"token":         true,
	"code":          true,
	"authorization": true,
	"credentials":   true,
}

// SanitizeDetail redacts credential-bearing detail fields.
func SanitizeDetail(detail map[string]any) map[string]any {
	if detail == nil {
		return nil
	}
	sanitized := make(map[string]any, len(detail))
	for k, v := range detail {
		if sensitiveKeys[k] {
			sanitized[k] = "[REDACTED]"
		} else {
			sanitized[k] = v
		}
	}
	return sanitized
}
