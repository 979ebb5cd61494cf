package auth

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/txn2/pipeline-relay/pkg/apierr"
)

// Route access groups for Require.
var (
	// AdminAccess allows the admin secret and authenticated browser sessions.
	AdminAccess = []Outcome{OutcomeAdmin, OutcomeSession, OutcomeUpstreamPromoted}

	// AgentAccess allows agent bearer tokens and the admin secret.
	AgentAccess = []Outcome{OutcomeAgent, OutcomeAdmin}

	// ViewerAccess allows anyone who may watch pipelines.
	ViewerAccess = []Outcome{OutcomeSession, OutcomeUpstreamPromoted, OutcomeAdmin, OutcomeAgent}
)

// Middleware runs the gate on every request. Allowed requests continue with
// their Principal in the context; denied requests never reach next.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Decide(r)
		g.rec.AuthDecision(string(d.Outcome))
		if t := traceFrom(r.Context()); t != nil {
			t.Outcome = d.Outcome
		}

		switch d.Outcome {
		case OutcomeDenied:
			g.deny(w, r, d.Err)
			return
		case OutcomeUpstreamPromoted:
			if d.Promote {
				if _, err := g.sessions.Authenticate(w, r, d.Subject); err != nil {
					slog.Error("auth: promoting upstream session", "subject", d.Subject, "error", err)
					apierr.Write(w, apierr.NewInternal(err))
					return
				}
			}
		case OutcomeSession:
			if err := g.sessions.Touch(r.Context(), d.Session.ID); err != nil {
				slog.Warn("auth: touching web session", "error", err)
			}
		case OutcomePublic, OutcomeStatic:
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), d.Principal())))
	})
}

// deny answers a denied request. Browsers without a credential are sent to
// the login page; API clients get problem+json.
func (*Gate) deny(w http.ResponseWriter, r *http.Request, err *apierr.Error) {
	if err.Kind == apierr.Unauthenticated && !WantsJSON(r) {
		http.Redirect(w, r, "/login?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
		return
	}
	apierr.Write(w, err)
}

// WantsJSON reports whether r expects a JSON error body.
func WantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") || IsAPIPath(r.URL.Path)
}

// Require allows only principals authorized by one of outcomes. Requests
// that reach it without a principal are treated as unauthenticated.
func Require(outcomes ...Outcome) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := GetPrincipal(r.Context())
			if p == nil {
				apierr.Write(w, apierr.NewUnauthenticated())
				return
			}
			if !p.Is(outcomes...) {
				apierr.Write(w, apierr.New(apierr.Forbidden, "forbidden"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
