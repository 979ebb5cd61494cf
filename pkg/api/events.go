package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/txn2/pipeline-relay/pkg/apierr"
	"github.com/txn2/pipeline-relay/pkg/broadcast"
)

// streamEvents handles GET /events and GET /events/{id}.
//
// The stream opens with an init event holding the current state: every
// active session for the global stream, or the session with its steps.
// Events committed after that follow as "event: <type>" frames; steps
// already in the snapshot are not sent again. A viewer
// that falls behind is disconnected and gets a fresh init on reconnect.
//
// @Summary      Stream events
// @Description  Server-sent events. The first frame is init, followed by session_created, session_updated, session_deleted and step frames.
// @Tags         Events
// @Produce      text/event-stream
// @Param        id  path  string  false  "Session ID"
// @Success      200  {object}  broadcast.Event
// @Failure      404  {object}  apierr.Problem
// @Router       /events/{id} [get]
func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, errors.New("streaming unsupported"))
		return
	}
	ctx := r.Context()
	topic := r.PathValue("id")

	// Subscribe before the snapshot so nothing committed in between is lost.
	sub := h.deps.Hub.Subscribe(topic)
	defer sub.Close()

	initial, err := h.initEvent(ctx, topic)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, initial); err != nil {
		return
	}
	flusher.Flush()
	sent := snapshotSeq(initial)

	keepalive := time.NewTicker(h.cfg.Keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if ev.Type == broadcast.EventStep && ev.Seq <= sent {
				continue
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) initEvent(ctx context.Context, topic string) (broadcast.Event, error) {
	ev := broadcast.Event{Type: broadcast.EventInit, SessionID: topic, At: time.Now().UTC()}
	if topic == broadcast.GlobalTopic {
		sessions, err := h.deps.Ingest.ActiveSessions(ctx)
		if err != nil {
			return ev, err
		}
		ev.Sessions = sessions
		return ev, nil
	}
	sess, err := h.deps.Ingest.Snapshot(ctx, topic)
	if err != nil {
		return ev, err
	}
	ev.Session = sess
	return ev, nil
}

// snapshotSeq returns the highest step seq already carried by an init event.
// Steps published between Subscribe and the snapshot arrive on the
// subscription too.
func snapshotSeq(ev broadcast.Event) int64 {
	var high int64
	if ev.Session == nil {
		return high
	}
	for _, st := range ev.Session.Steps {
		high = max(high, st.Seq)
	}
	return high
}

// writeEvent writes one SSE frame.
func writeEvent(w io.Writer, ev broadcast.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return apierr.NewInternal(err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}
