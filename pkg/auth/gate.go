package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/txn2/pipeline-relay/pkg/agentkey"
	"github.com/txn2/pipeline-relay/pkg/apierr"
	"github.com/txn2/pipeline-relay/pkg/token"
	"github.com/txn2/pipeline-relay/pkg/websession"
)

// Outcome names the rule that decided a request.
type Outcome string

// Outcomes, in decision order.
const (
	OutcomeAdmin            Outcome = "admin"
	OutcomeAgent            Outcome = "agent"
	OutcomeShareToken       Outcome = "share_token"
	OutcomePublic           Outcome = "public"
	OutcomeStatic           Outcome = "static"
	OutcomeUpstreamPromoted Outcome = "upstream_promoted"
	OutcomeSession          Outcome = "session"
	OutcomeDenied           Outcome = "denied"
)

// Precedence is the order in which the gate evaluates its rules. The first
// rule whose credential is present decides the request.
var Precedence = []Outcome{
	OutcomeAdmin,
	OutcomeAgent,
	OutcomeShareToken,
	OutcomePublic,
	OutcomeStatic,
	OutcomeUpstreamPromoted,
	OutcomeSession,
	OutcomeDenied,
}

// Default header names.
const (
	DefaultAdminHeader    = "X-Admin-Secret"
	DefaultBearerHeader   = "Authorization"
	DefaultShareHeader    = "X-Share-Token"
	DefaultUpstreamHeader = "X-Upstream-Authenticated"

	// AdminSubject is the subject of admin and password-login principals.
	AdminSubject = "admin"

	// UpstreamSubject is used when the proxy does not name the user.
	UpstreamSubject = "upstream"

	// ShareTokenPath is the only route a share token authorizes.
	ShareTokenPath = "/guest-links"
)

// Decision is the result of Gate.Decide.
type Decision struct {
	Outcome Outcome
	Subject string
	Agent   *agentkey.Identity

	// Session is the web session for OutcomeSession, or the session already
	// present on an upstream-authenticated request.
	Session *websession.Session

	// Promote asks the middleware to issue a fresh authenticated web session.
	Promote bool

	// Err is set for OutcomeDenied.
	Err *apierr.Error
}

// Principal converts an allowing decision into the request principal.
func (d Decision) Principal() *Principal {
	return &Principal{Outcome: d.Outcome, Subject: d.Subject, Agent: d.Agent}
}

// Agents resolves bearer tokens. agentkey.Cache implements it.
type Agents interface {
	Lookup(raw string) (agentkey.Identity, bool)
}

// Shares consumes single-use share tokens. token.ShareStore implements it.
type Shares interface {
	Consume(raw string) (*token.ShareToken, error)
}

// Sessions manages browser sessions. websession.Manager implements it.
type Sessions interface {
	Current(r *http.Request) (*websession.Session, error)
	Touch(ctx context.Context, id string) error
	Authenticate(w http.ResponseWriter, r *http.Request, subject string) (*websession.Session, error)
}

// Recorder counts decisions. Metrics implement it.
type Recorder interface {
	AuthDecision(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) AuthDecision(string) {}

// UpstreamConfig configures trust in a reverse proxy that authenticates
// users before they reach the relay.
type UpstreamConfig struct {
	Enabled bool

	// Header carries Sentinel when the proxy authenticated the user.
	Header   string
	Sentinel string

	// UserHeader optionally names the authenticated user.
	UserHeader string

	// TrustedProxies restricts the header to these CIDRs when set.
	TrustedProxies []string
}

// Config configures a Gate.
type Config struct {
	AdminSecret  string
	AdminHeader  string
	BearerHeader string
	ShareHeader  string
	Upstream     UpstreamConfig
}

// Deps are the collaborators the gate consults.
type Deps struct {
	Agents   Agents
	Shares   Shares
	Sessions Sessions
	Recorder Recorder
}

// Gate is the authentication gate.
type Gate struct {
	cfg         Config
	adminDigest *[sha256.Size]byte
	proxies     proxyList
	agents      Agents
	shares      Shares
	sessions    Sessions
	rec         Recorder
}

// NewGate creates a Gate.
func NewGate(cfg Config, deps Deps) (*Gate, error) {
	if cfg.AdminHeader == "" {
		cfg.AdminHeader = DefaultAdminHeader
	}
	if cfg.BearerHeader == "" {
		cfg.BearerHeader = DefaultBearerHeader
	}
	if cfg.ShareHeader == "" {
		cfg.ShareHeader = DefaultShareHeader
	}
	if cfg.Upstream.Header == "" {
		cfg.Upstream.Header = DefaultUpstreamHeader
	}
	if cfg.Upstream.Enabled && cfg.Upstream.Sentinel == "" {
		return nil, errors.New("upstream authentication requires a sentinel value")
	}
	if deps.Agents == nil || deps.Shares == nil || deps.Sessions == nil {
		return nil, errors.New("gate requires agents, shares and sessions")
	}
	proxies, err := parseProxies(cfg.Upstream.TrustedProxies)
	if err != nil {
		return nil, err
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}

	g := &Gate{
		cfg:      cfg,
		proxies:  proxies,
		agents:   deps.Agents,
		shares:   deps.Shares,
		sessions: deps.Sessions,
		rec:      deps.Recorder,
	}
	if cfg.AdminSecret != "" {
		d := digest(cfg.AdminSecret)
		g.adminDigest = &d
	}
	return g, nil
}

// HeaderNames are the credential headers a gate reads.
type HeaderNames struct {
	Admin  string `json:"admin"`
	Bearer string `json:"bearer"`
	Share  string `json:"share"`
}

// HeaderNames returns the configured credential header names.
func (g *Gate) HeaderNames() HeaderNames {
	return HeaderNames{Admin: g.cfg.AdminHeader, Bearer: g.cfg.BearerHeader, Share: g.cfg.ShareHeader}
}

// Decide evaluates the rules in Precedence order. A present but invalid
// credential denies the request; it never falls through to a later rule.
// The only side effect is consuming a share token on ShareTokenPath.
// A share header on any other route is ignored.
func (g *Gate) Decide(r *http.Request) Decision {
	if presented, ok := headerPresent(r, g.cfg.AdminHeader); ok {
		if !g.adminMatches(presented) {
			return denied(apierr.NewUnauthorized())
		}
		return Decision{Outcome: OutcomeAdmin, Subject: AdminSubject}
	}

	if raw, ok := g.bearer(r); ok {
		id, found := g.agents.Lookup(raw)
		if !found {
			return denied(apierr.NewUnauthorized())
		}
		return Decision{Outcome: OutcomeAgent, Subject: id.Agent, Agent: &id}
	}

	// The share header is only read on ShareTokenPath and ignored elsewhere.
	if raw, ok := headerPresent(r, g.cfg.ShareHeader); ok && r.Method == http.MethodPost && r.URL.Path == ShareTokenPath {
		st, err := g.shares.Consume(raw)
		if err != nil {
			return denied(apierr.NewUnauthorized())
		}
		return Decision{Outcome: OutcomeShareToken, Subject: st.CreatedBy}
	}

	if IsPublicPath(r.URL.Path) {
		return Decision{Outcome: OutcomePublic}
	}
	if IsStaticPath(r.URL.Path) {
		return Decision{Outcome: OutcomeStatic}
	}

	current, err := g.sessions.Current(r)
	if err != nil {
		slog.Error("auth: loading web session", "path", r.URL.Path, "error", err)
		return denied(apierr.NewInternal(err))
	}
	authenticated := current != nil && current.Authenticated

	if g.upstreamTrusted(r) {
		subject := UpstreamSubject
		if g.cfg.Upstream.UserHeader != "" {
			if u := strings.TrimSpace(r.Header.Get(g.cfg.Upstream.UserHeader)); u != "" {
				subject = u
			}
		}
		d := Decision{Outcome: OutcomeUpstreamPromoted, Subject: subject}
		if authenticated && current.Subject == subject {
			d.Session = current
		} else {
			d.Promote = true
		}
		return d
	}

	if authenticated {
		return Decision{Outcome: OutcomeSession, Subject: current.Subject, Session: current}
	}
	return denied(apierr.NewUnauthenticated())
}

func denied(err *apierr.Error) Decision {
	return Decision{Outcome: OutcomeDenied, Err: err}
}

// adminMatches compares fixed-length digests of both values so the time
// taken does not depend on where, or whether, the lengths differ. With no
// secret configured every presented value is a mismatch.
func (g *Gate) adminMatches(presented string) bool {
	if g.adminDigest == nil {
		return false
	}
	got := digest(presented)
	return subtle.ConstantTimeCompare(got[:], g.adminDigest[:]) == 1
}

func digest(s string) [sha256.Size]byte {
	return sha256.Sum256([]byte(s))
}

// bearer extracts a Bearer credential. On the standard Authorization header
// other schemes are not agent credentials and are ignored; a custom header
// carries the raw token.
func (g *Gate) bearer(r *http.Request) (string, bool) {
	v, ok := headerPresent(r, g.cfg.BearerHeader)
	if !ok {
		return "", false
	}
	scheme, cred, _ := strings.Cut(v, " ")
	if !strings.EqualFold(scheme, "bearer") {
		if http.CanonicalHeaderKey(g.cfg.BearerHeader) == DefaultBearerHeader {
			return "", false
		}
		return v, true
	}
	return strings.TrimSpace(cred), true
}

func (g *Gate) upstreamTrusted(r *http.Request) bool {
	up := g.cfg.Upstream
	if !up.Enabled {
		return false
	}
	v := r.Header.Get(up.Header)
	if v == "" || subtle.ConstantTimeCompare(digestSlice(v), digestSlice(up.Sentinel)) != 1 {
		return false
	}
	if len(g.proxies) == 0 {
		return true
	}
	return g.proxies.contains(remoteIP(r))
}

func digestSlice(s string) []byte {
	d := digest(s)
	return d[:]
}

// headerPresent reports whether name is set on r. An empty value counts as
// present so a blank credential is rejected rather than ignored.
func headerPresent(r *http.Request, name string) (string, bool) {
	vals, ok := r.Header[http.CanonicalHeaderKey(name)]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return strings.TrimSpace(vals[0]), true
}
