package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/pipeline-relay/pkg/auth"
	"github.com/txn2/pipeline-relay/pkg/platform"
)

const (
	testAdminSecret = "api-test-admin"
	testPassword    = "correct horse"
)

// testRelay is an API handler over an in-memory platform.
type testRelay struct {
	t *testing.T
	p *platform.Platform
	h *Handler
}

func newTestRelay(t *testing.T, mutate ...func(*platform.Config)) *testRelay {
	t.Helper()
	hash, err := auth.HashPassword(testPassword)
	require.NoError(t, err)

	cfg := &platform.Config{
		Server: platform.ServerConfig{Name: "relay-test"},
		Auth: platform.AuthConfig{
			AdminSecret: testAdminSecret,
			Login:       platform.LoginConfig{PasswordHash: hash},
			Cookie:      platform.CookieConfig{Secret: strings.Repeat("c", 32)},
		},
	}
	for _, m := range mutate {
		m(cfg)
	}
	p, err := platform.New(platform.WithConfig(cfg))
	require.NoError(t, err)

	h := New(Deps{
		Config: Config{
			Name:         cfg.Server.Name,
			Version:      "test",
			PasswordHash: cfg.Auth.Login.PasswordHash,
			MaxBodyBytes: cfg.Server.MaxBodyBytes,
			Keepalive:    cfg.Broadcast.Keepalive,
		},
		Gate:     p.Gate(),
		Limiter:  p.LoginLimiter(),
		Sessions: p.Sessions(),
		Ingest:   p.Ingest(),
		Hub:      p.Hub(),
		Agents:   p.Agents(),
		Shares:   p.Shares(),
		Guests:   p.Guests(),
		Codes:    p.Codes(),
		Health:   p.Health(),
		Metrics:  p.Metrics(),
		Audit:    p.Audit(),
		UI: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("<html>ui</html>"))
		}),
	})
	t.Cleanup(func() { _ = p.Close() })
	return &testRelay{t: t, p: p, h: h}
}

// do sends a request. headers alternate name and value.
func (tr *testRelay) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	tr.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(tr.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	tr.h.ServeHTTP(rec, req)
	return rec
}

func (tr *testRelay) admin(method, path string, body any) *httptest.ResponseRecorder {
	tr.t.Helper()
	return tr.do(method, path, body, auth.DefaultAdminHeader, testAdminSecret)
}

func (tr *testRelay) agent(token, method, path string, body any) *httptest.ResponseRecorder {
	tr.t.Helper()
	return tr.do(method, path, body, "Authorization", "Bearer "+token)
}

// agentToken registers agent and returns its bearer token.
func (tr *testRelay) agentToken(agent string) string {
	tr.t.Helper()
	rec := tr.admin(http.MethodPost, "/agents", agentTokenRequest{Agent: agent})
	require.Equal(tr.t, http.StatusCreated, rec.Code, rec.Body.String())
	var out map[string]any
	decode(tr.t, rec, &out)
	return out["token"].(string)
}

// createSession starts a session for agent and returns its ID.
func (tr *testRelay) createSession(token, agent string) string {
	tr.t.Helper()
	rec := tr.agent(token, http.MethodPost, "/sessions", map[string]string{
		"agent": agent, "project": "relay", "command": "/build",
	})
	require.Equal(tr.t, http.StatusOK, rec.Code, rec.Body.String())
	var out map[string]any
	decode(tr.t, rec, &out)
	return out["sessionId"].(string)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestGate_PublicPaths(t *testing.T) {
	tr := newTestRelay(t)
	for _, path := range []string{"/healthz", "/api/version", "/api/contract", "/auth/check"} {
		t.Run(path, func(t *testing.T) {
			rec := tr.do(http.MethodGet, path, nil)
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestGate_BrowserRedirectedToLogin(t *testing.T) {
	tr := newTestRelay(t)

	rec := tr.do(http.MethodGet, "/sessions/abc/view", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code, "API paths never redirect")

	rec = tr.do(http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?next=%2Fdashboard", rec.Header().Get("Location"))
}

func TestGate_APIDeniedWithProblem(t *testing.T) {
	tr := newTestRelay(t)

	rec := tr.do(http.MethodGet, "/sessions", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	rec = tr.do(http.MethodGet, "/sessions", nil, auth.DefaultAdminHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGate_WrongAccessForbidden(t *testing.T) {
	tr := newTestRelay(t)
	tok := tr.agentToken("builder")

	rec := tr.agent(tok, http.MethodGet, "/agents", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = tr.agent(tok, http.MethodDelete, "/sessions/whatever", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUnknownAPIRoute(t *testing.T) {
	tr := newTestRelay(t)
	rec := tr.admin(http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = tr.admin(http.MethodGet, "/somewhere", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ui")
}

func TestSessions_CreateDeduplicates(t *testing.T) {
	tr := newTestRelay(t)
	tok := tr.agentToken("builder")
	body := map[string]string{"agent": "builder", "project": "relay", "command": "/build"}

	first := tr.agent(tok, http.MethodPost, "/sessions", body)
	second := tr.agent(tok, http.MethodPost, "/sessions", body)
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)

	var a, b map[string]any
	decode(t, first, &a)
	decode(t, second, &b)
	assert.Equal(t, a["sessionId"], b["sessionId"])
	assert.Nil(t, a["deduplicated"])
	assert.Equal(t, true, b["deduplicated"])
}

func TestSessions_AgentMismatchForbidden(t *testing.T) {
	tr := newTestRelay(t)
	tok := tr.agentToken("builder")
	tr.agentToken("reviewer")

	rec := tr.agent(tok, http.MethodPost, "/sessions", map[string]string{
		"agent": "reviewer", "project": "relay", "command": "/build",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSessions_AdminNeedsRegisteredAgent(t *testing.T) {
	tr := newTestRelay(t)
	rec := tr.admin(http.MethodPost, "/sessions", map[string]string{
		"agent": "ghost", "project": "relay", "command": "/build",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessions_InvalidBody(t *testing.T) {
	tr := newTestRelay(t)
	req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader("{"))
	req.Header.Set(auth.DefaultAdminHeader, testAdminSecret)
	rec := httptest.NewRecorder()
	tr.h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid JSON body")
}

func TestSessions_BodyTooLarge(t *testing.T) {
	tr := newTestRelay(t, func(c *platform.Config) { c.Server.MaxBodyBytes = 64 })
	tok := tr.agentToken("builder")

	rec := tr.agent(tok, http.MethodPost, "/sessions", map[string]string{
		"agent": "builder", "project": "relay", "command": strings.Repeat("x", 200),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "too large")
}

func TestSessions_ConcurrentStepsGetDistinctSeq(t *testing.T) {
	tr := newTestRelay(t)
	tok := tr.agentToken("builder")
	id := tr.createSession(tok, "builder")

	results := make(chan *httptest.ResponseRecorder, 2)
	for i := 0; i < 2; i++ {
		go func() {
			results <- tr.agent(tok, http.MethodPost, "/sessions/"+id+"/steps",
				map[string]string{"kind": "output", "content": "hello"})
		}()
	}

	seqs := map[float64]bool{}
	for i := 0; i < 2; i++ {
		rec := <-results
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var out map[string]any
		decode(t, rec, &out)
		seqs[out["seqNo"].(float64)] = true
	}
	assert.Equal(t, map[float64]bool{1: true, 2: true}, seqs)

	rec := tr.admin(http.MethodGet, "/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sess map[string]any
	decode(t, rec, &sess)
	assert.Len(t, sess["steps"], 2)
}

func TestSessions_StatusListAndDelete(t *testing.T) {
	tr := newTestRelay(t)
	tok := tr.agentToken("builder")
	id := tr.createSession(tok, "builder")

	rec := tr.agent(tok, http.MethodPost, "/sessions/"+id+"/status", statusRequest{Status: "paused"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = tr.admin(http.MethodGet, "/sessions?status=paused", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list sessionListResponse
	decode(t, rec, &list)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, id, list.Sessions[0].ID)

	rec = tr.admin(http.MethodGet, "/sessions?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = tr.admin(http.MethodDelete, "/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = tr.admin(http.MethodGet, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessions_Resume(t *testing.T) {
	tr := newTestRelay(t)
	tok := tr.agentToken("builder")
	id := tr.createSession(tok, "builder")
	resume := resumeRequest{Agent: "builder", Project: "relay"}

	rec := tr.agent(tok, http.MethodPost, "/sessions/resume", resume)
	require.Equal(t, http.StatusNotFound, rec.Code, "active sessions are not resumable")

	rec = tr.agent(tok, http.MethodPost, "/sessions/"+id+"/status", statusRequest{Status: "paused"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = tr.agent(tok, http.MethodPost, "/sessions/resume", resume)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sess map[string]any
	decode(t, rec, &sess)
	assert.Equal(t, id, sess["id"])
	assert.Equal(t, "active", sess["status"])
}

func TestLogin(t *testing.T) {
	tr := newTestRelay(t)

	rec := tr.do(http.MethodPost, "/auth/login", loginRequest{Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = tr.do(http.MethodPost, "/auth/login", loginRequest{Password: testPassword})
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/auth/check", http.NoBody)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	check := httptest.NewRecorder()
	tr.h.ServeHTTP(check, req)
	var out checkResponse
	decode(t, check, &out)
	assert.True(t, out.Authenticated)
	assert.Equal(t, auth.AdminSubject, out.Subject)

	req = httptest.NewRequest(http.MethodGet, "/sessions", http.NoBody)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	list := httptest.NewRecorder()
	tr.h.ServeHTTP(list, req)
	assert.Equal(t, http.StatusOK, list.Code)
}

func TestLogin_RateLimited(t *testing.T) {
	tr := newTestRelay(t, func(c *platform.Config) { c.Auth.Login.MaxAttempts = 2 })

	for i := 0; i < 2; i++ {
		rec := tr.do(http.MethodPost, "/auth/login", loginRequest{Password: "nope"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := tr.do(http.MethodPost, "/auth/login", loginRequest{Password: testPassword})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestLogin_DisabledWithoutHash(t *testing.T) {
	tr := newTestRelay(t, func(c *platform.Config) { c.Auth.Login.PasswordHash = "" })
	rec := tr.do(http.MethodPost, "/auth/login", loginRequest{Password: testPassword})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterWithCode(t *testing.T) {
	tr := newTestRelay(t)
	issue := func() string {
		rec := tr.admin(http.MethodPost, "/admin/registration-code", nil)
		require.Equal(t, http.StatusCreated, rec.Code)
		var out registrationCodeResponse
		decode(t, rec, &out)
		return out.Code
	}

	code := issue()
	rec := tr.do(http.MethodPost, "/tokens/register-with-code", registerRequest{Code: code, Agent: "builder"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var issued map[string]any
	decode(t, rec, &issued)
	assert.NotEmpty(t, issued["token"])
	assert.Equal(t, tokenWarning, issued["warning"])

	t.Run("code is single use", func(t *testing.T) {
		rec := tr.do(http.MethodPost, "/tokens/register-with-code", registerRequest{Code: code, Agent: "other"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("existing agent keeps the code", func(t *testing.T) {
		fresh := issue()
		rec := tr.do(http.MethodPost, "/tokens/register-with-code", registerRequest{Code: fresh, Agent: "builder"})
		assert.Equal(t, http.StatusConflict, rec.Code)

		rec = tr.do(http.MethodPost, "/tokens/register-with-code", registerRequest{Code: fresh, Agent: "reviewer"})
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("failures do not reveal registered names", func(t *testing.T) {
		tests := []struct {
			name string
			code string
		}{
			{name: "made up code", code: "guess"},
			{name: "empty code", code: ""},
			{name: "spent code", code: code},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				known := tr.do(http.MethodPost, "/tokens/register-with-code", registerRequest{Code: tt.code, Agent: "builder"})
				unknown := tr.do(http.MethodPost, "/tokens/register-with-code", registerRequest{Code: tt.code, Agent: "nobody"})
				assert.Equal(t, http.StatusConflict, known.Code)
				assert.Equal(t, unknown.Code, known.Code)
				assert.JSONEq(t, unknown.Body.String(), known.Body.String())
				assert.NotContains(t, known.Body.String(), "builder")
			})
		}
	})

	t.Run("invalid agent name", func(t *testing.T) {
		rec := tr.do(http.MethodPost, "/tokens/register-with-code", registerRequest{Code: issue(), Agent: "bad name!"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("registered token authenticates", func(t *testing.T) {
		rec := tr.agent(issued["token"].(string), http.MethodGet, "/sessions", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestAgentTokens_ListAndRevoke(t *testing.T) {
	tr := newTestRelay(t)
	tok := tr.agentToken("builder")

	rec := tr.admin(http.MethodGet, "/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list agentTokenListResponse
	decode(t, rec, &list)
	require.Equal(t, 1, list.Total)
	assert.NotContains(t, rec.Body.String(), tok)

	rec = tr.admin(http.MethodDelete, "/agents/tokens/"+list.Tokens[0].ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = tr.agent(tok, http.MethodGet, "/sessions", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = tr.admin(http.MethodDelete, "/agents/tokens/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGuestLinks(t *testing.T) {
	tr := newTestRelay(t)
	tok := tr.agentToken("builder")
	id := tr.createSession(tok, "builder")

	rec := tr.admin(http.MethodPost, "/share-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var share map[string]any
	decode(t, rec, &share)
	shareToken := share["token"].(string)

	rec = tr.do(http.MethodPost, "/guest-links", guestLinkRequest{SessionID: id}, auth.DefaultShareHeader, shareToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var link map[string]any
	decode(t, rec, &link)
	url := link["url"].(string)

	t.Run("share token is single use", func(t *testing.T) {
		rec := tr.do(http.MethodPost, "/guest-links", guestLinkRequest{SessionID: id}, auth.DefaultShareHeader, shareToken)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("share token only creates links", func(t *testing.T) {
		rec := tr.do(http.MethodGet, "/sessions", nil, auth.DefaultShareHeader, shareToken)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("share header is ignored on public paths", func(t *testing.T) {
		rec := tr.do(http.MethodGet, "/healthz", nil, auth.DefaultShareHeader, "stray")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("guest sees the session", func(t *testing.T) {
		rec := tr.do(http.MethodGet, url, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var view map[string]any
		decode(t, rec, &view)
		assert.Len(t, view["sessions"], 1)
	})

	t.Run("listed for viewers", func(t *testing.T) {
		rec := tr.admin(http.MethodGet, "/guest-links", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var list guestLinkListResponse
		decode(t, rec, &list)
		assert.Equal(t, 1, list.Total)
	})

	t.Run("deleted session denies guest", func(t *testing.T) {
		require.Equal(t, http.StatusOK, tr.admin(http.MethodDelete, "/sessions/"+id, nil).Code)
		rec := tr.do(http.MethodGet, url, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid or expired")
	})

	t.Run("unknown link", func(t *testing.T) {
		rec := tr.do(http.MethodGet, "/guest/nope", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestGuestLinks_ProjectTargetAndRevoke(t *testing.T) {
	tr := newTestRelay(t)
	tok := tr.agentToken("builder")
	tr.createSession(tok, "builder")

	rec := tr.admin(http.MethodPost, "/guest-links", guestLinkRequest{Project: "relay", Agent: "builder", TTLHours: 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var link map[string]any
	decode(t, rec, &link)

	rec = tr.do(http.MethodGet, link["url"].(string), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view map[string]any
	decode(t, rec, &view)
	assert.Len(t, view["sessions"], 1)

	rec = tr.admin(http.MethodDelete, "/guest-links/"+link["token"].(string), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = tr.do(http.MethodGet, link["url"].(string), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuestLinks_InvalidRequests(t *testing.T) {
	tr := newTestRelay(t)

	rec := tr.admin(http.MethodPost, "/guest-links", guestLinkRequest{Project: "relay"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = tr.admin(http.MethodPost, "/guest-links", guestLinkRequest{SessionID: "x", TTLHours: -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = tr.admin(http.MethodPost, "/guest-links", guestLinkRequest{SessionID: "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShareToken_Capacity(t *testing.T) {
	tr := newTestRelay(t, func(c *platform.Config) { c.Tokens.ShareCapacity = 1 })

	require.Equal(t, http.StatusOK, tr.admin(http.MethodPost, "/share-token", nil).Code)
	rec := tr.admin(http.MethodPost, "/share-token", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestContract(t *testing.T) {
	tr := newTestRelay(t)

	rec := tr.do(http.MethodGet, "/api/contract", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var c contractResponse
	decode(t, rec, &c)
	assert.Equal(t, ContractVersion, c.Version)
	assert.Equal(t, auth.DefaultAdminHeader, c.Headers.Admin)
	assert.Contains(t, c.StepKinds, "document")
	assert.Contains(t, c.EventTypes, "step")
	assert.Contains(t, c.Routes, contractRoute{http.MethodPost, "/sessions/{id}/steps"})
}

func TestVersion(t *testing.T) {
	tr := newTestRelay(t)

	rec := tr.do(http.MethodGet, "/api/version", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var v versionResponse
	decode(t, rec, &v)
	assert.Equal(t, "relay-test", v.Name)
	assert.Equal(t, "test", v.Version)
	assert.Equal(t, ContractVersion, v.Contract)
}

func TestMetrics_AdminOnly(t *testing.T) {
	tr := newTestRelay(t)

	assert.Equal(t, http.StatusUnauthorized, tr.do(http.MethodGet, "/metrics", nil).Code)
	rec := tr.admin(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "auth_decisions_total")
}
