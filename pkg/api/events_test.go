package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/pipeline-relay/pkg/auth"
	"github.com/txn2/pipeline-relay/pkg/broadcast"
	"github.com/txn2/pipeline-relay/pkg/pipeline"
)

// sseFrame is one parsed event frame.
type sseFrame struct {
	Event string
	Data  broadcast.Event
}

// readFrame reads the next event frame, skipping comments.
func readFrame(t *testing.T, r *bufio.Reader) sseFrame {
	t.Helper()
	var f sseFrame
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSuffix(line, "\n")
		switch {
		case line == "":
			if f.Event != "" {
				return f
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			f.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &f.Data))
		}
	}
}

func openStream(t *testing.T, srv *httptest.Server, path string) (*bufio.Reader, *http.Response) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+path, http.NoBody)
	require.NoError(t, err)
	req.Header.Set(auth.DefaultAdminHeader, testAdminSecret)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return bufio.NewReader(resp.Body), resp
}

func TestEvents_GlobalStream(t *testing.T) {
	tr := newTestRelay(t)
	srv := httptest.NewServer(tr.h)
	t.Cleanup(srv.Close)
	tok := tr.agentToken("builder")
	existing := tr.createSession(tok, "builder")

	r, resp := openStream(t, srv, "/events")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	init := readFrame(t, r)
	assert.Equal(t, broadcast.EventInit, init.Event)
	require.Len(t, init.Data.Sessions, 1)
	assert.Equal(t, existing, init.Data.Sessions[0].ID)

	rec := tr.agent(tok, http.MethodPost, "/sessions", map[string]string{
		"agent": "builder", "project": "relay", "command": "/deploy",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	created := readFrame(t, r)
	assert.Equal(t, broadcast.EventSessionCreated, created.Event)
	assert.NotEqual(t, existing, created.Data.SessionID)
}

func TestEvents_SessionStream(t *testing.T) {
	tr := newTestRelay(t)
	srv := httptest.NewServer(tr.h)
	t.Cleanup(srv.Close)
	tok := tr.agentToken("builder")
	id := tr.createSession(tok, "builder")

	r, resp := openStream(t, srv, "/events/"+id)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	init := readFrame(t, r)
	assert.Equal(t, broadcast.EventInit, init.Event)
	require.NotNil(t, init.Data.Session)
	assert.Equal(t, id, init.Data.Session.ID)

	rec := tr.agent(tok, http.MethodPost, "/sessions/"+id+"/steps",
		map[string]string{"kind": "document", "documentName": "plan.md", "content": "# Plan"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	step := readFrame(t, r)
	assert.Equal(t, broadcast.EventStep, step.Event)
	require.NotNil(t, step.Data.Step)
	assert.Equal(t, int64(1), step.Data.Step.Seq)
	assert.Contains(t, step.Data.Step.RenderedHTML, "<h1")
}

func TestEvents_SessionStreamSkipsStepsInSnapshot(t *testing.T) {
	tr := newTestRelay(t)
	srv := httptest.NewServer(tr.h)
	t.Cleanup(srv.Close)
	tok := tr.agentToken("builder")
	id := tr.createSession(tok, "builder")

	appendStep := func(content string) {
		rec := tr.agent(tok, http.MethodPost, "/sessions/"+id+"/steps",
			map[string]string{"kind": "output", "content": content})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	appendStep("first")

	r, resp := openStream(t, srv, "/events/"+id)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	init := readFrame(t, r)
	require.NotNil(t, init.Data.Session)
	require.Len(t, init.Data.Session.Steps, 1)
	first := init.Data.Session.Steps[0]

	// The step event for seq 1 can reach the subscription after the
	// snapshot already holds it.
	tr.p.Hub().Publish(broadcast.Event{
		Type: broadcast.EventStep, SessionID: id, Seq: first.Seq, Step: &first,
	})
	appendStep("second")

	next := readFrame(t, r)
	assert.Equal(t, broadcast.EventStep, next.Event)
	assert.Equal(t, int64(2), next.Data.Seq)
	require.NotNil(t, next.Data.Step)
	assert.Equal(t, int64(2), next.Data.Step.Seq)
}

func TestSnapshotSeq(t *testing.T) {
	tests := []struct {
		name string
		ev   broadcast.Event
		want int64
	}{
		{name: "global init", ev: broadcast.Event{Type: broadcast.EventInit}, want: 0},
		{name: "no steps", ev: broadcast.Event{Session: &pipeline.Session{}}, want: 0},
		{name: "highest seq", ev: broadcast.Event{Session: &pipeline.Session{
			Steps: []pipeline.Step{{Seq: 1}, {Seq: 3}, {Seq: 2}},
		}}, want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, snapshotSeq(tt.ev))
		})
	}
}

func TestEvents_UnknownSession(t *testing.T) {
	tr := newTestRelay(t)
	rec := tr.admin(http.MethodGet, "/events/missing", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Zero(t, tr.p.Hub().Subscribers("missing"))
}

func TestEvents_Keepalive(t *testing.T) {
	tr := newTestRelay(t)
	tr.h.cfg.Keepalive = 10 * time.Millisecond
	srv := httptest.NewServer(tr.h)
	t.Cleanup(srv.Close)

	r, _ := openStream(t, srv, "/events")
	readFrame(t, r)

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": keepalive\n", line)
}

func TestEvents_HubCloseEndsStream(t *testing.T) {
	tr := newTestRelay(t)
	srv := httptest.NewServer(tr.h)
	t.Cleanup(srv.Close)

	r, _ := openStream(t, srv, "/events")
	readFrame(t, r)

	tr.p.Hub().Close()
	_, err := r.ReadString('\n')
	for err == nil {
		_, err = r.ReadString('\n')
	}
	assert.Error(t, err)
}
