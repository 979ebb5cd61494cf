// Package auth decides, for every inbound request, which credential scheme
// authorizes it. The decision is a single ordered pass over the schemes and
// fails closed.
package auth

import (
	"context"
	"slices"

	"github.com/txn2/pipeline-relay/pkg/agentkey"
)

// contextKey is a private type for context keys.
type contextKey int

const (
	principalContextKey contextKey = iota
	traceContextKey
)

// Principal is the authenticated caller attached to a request.
type Principal struct {
	Outcome Outcome `json:"outcome"`
	Subject string  `json:"subject,omitempty"`

	// Agent is set for OutcomeAgent.
	Agent *agentkey.Identity `json:"agent,omitempty"`
}

// Is reports whether the principal was authorized by one of outcomes.
func (p *Principal) Is(outcomes ...Outcome) bool {
	return p != nil && slices.Contains(outcomes, p.Outcome)
}

// WithPrincipal adds p to ctx. Agent principals also carry their identity
// for services that check ownership.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	if p.Agent != nil {
		ctx = agentkey.WithIdentity(ctx, *p.Agent)
	}
	return context.WithValue(ctx, principalContextKey, p)
}

// GetPrincipal retrieves the principal from ctx, or nil.
func GetPrincipal(ctx context.Context) *Principal {
	if p, ok := ctx.Value(principalContextKey).(*Principal); ok {
		return p
	}
	return nil
}

// Trace records the outcome of the gate for outer middleware such as
// request logging, which runs before the principal exists.
type Trace struct {
	Outcome Outcome
}

// WithTrace returns a context carrying a fresh Trace.
func WithTrace(ctx context.Context) (context.Context, *Trace) {
	t := &Trace{}
	return context.WithValue(ctx, traceContextKey, t), t
}

func traceFrom(ctx context.Context) *Trace {
	t, _ := ctx.Value(traceContextKey).(*Trace)
	return t
}
