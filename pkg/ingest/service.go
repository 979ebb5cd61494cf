// Package ingest accepts pipeline sessions and steps from agents, stores
// them, and announces each change to live viewers.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/txn2/pipeline-relay/pkg/agentkey"
	"github.com/txn2/pipeline-relay/pkg/apierr"
	"github.com/txn2/pipeline-relay/pkg/broadcast"
	"github.com/txn2/pipeline-relay/pkg/pipeline"
	"github.com/txn2/pipeline-relay/pkg/render"
)

// Renderer converts markdown to safe HTML.
type Renderer interface {
	RenderSafe(markdown string) (string, error)
}

// Publisher delivers events to subscribers.
type Publisher interface {
	Publish(ev broadcast.Event)
}

// AgentDirectory reports whether an agent is registered.
type AgentDirectory interface {
	Exists(ctx context.Context, agent string) (bool, error)
}

// Recorder receives ingest counts. Metrics implement it.
type Recorder interface {
	Deduplicated()
	StepAppended()
}

type nopRecorder struct{}

func (nopRecorder) Deduplicated() {}
func (nopRecorder) StepAppended() {}

// Config configures a Service.
type Config struct {
	Store     pipeline.Store
	Renderer  Renderer
	Publisher Publisher

	// Agents, if set, rejects session creates for unregistered agents.
	Agents AgentDirectory

	Recorder Recorder
	Dedup    DedupConfig
}

// Service implements session and step ingestion.
type Service struct {
	store  pipeline.Store
	render Renderer
	pub    Publisher
	agents AgentDirectory
	rec    Recorder
	dedup  *Deduper
	locks  *KeyedMutex
	now    func() time.Time
	newID  func() string
}

// New creates a Service.
func New(cfg Config) *Service {
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	return &Service{
		store:  cfg.Store,
		render: cfg.Renderer,
		pub:    cfg.Publisher,
		agents: cfg.Agents,
		rec:    cfg.Recorder,
		dedup:  NewDeduper(cfg.Dedup),
		locks:  NewKeyedMutex(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// CreateRequest describes a new session.
type CreateRequest struct {
	Agent    string         `json:"agent"`
	Project  string         `json:"project"`
	Command  string         `json:"command"`
	User     string         `json:"user,omitempty"`
	Branch   string         `json:"branch,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CreateResult is the outcome of CreateSession.
type CreateResult struct {
	SessionID    string            `json:"sessionId"`
	Deduplicated bool              `json:"deduplicated,omitempty"`
	Session      *pipeline.Session `json:"-"`
}

// CreateSession starts a session. Identical requests arriving within the
// dedup window return the first session's ID.
func (s *Service) CreateSession(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if req.Agent == "" || req.Project == "" || req.Command == "" {
		return nil, apierr.NewInvalid("agent, project and command are required")
	}
	if err := s.checkCaller(ctx, req.Agent); err != nil {
		return nil, err
	}
	if _, isAgent := agentkey.IdentityFrom(ctx); !isAgent && s.agents != nil {
		ok, err := s.agents.Exists(ctx, req.Agent)
		if err != nil {
			return nil, s.internal("checking agent", err, "agent", req.Agent)
		}
		if !ok {
			return nil, apierr.NewInvalid("unknown agent")
		}
	}

	key := DedupKey{
		Agent: req.Agent, Project: req.Project, Command: req.Command,
		User: req.User, Branch: req.Branch,
	}
	existing, ticket := s.dedup.Begin(ctx, key)
	if ticket == nil {
		s.rec.Deduplicated()
		return &CreateResult{SessionID: existing, Deduplicated: true}, nil
	}

	sess, err := s.store.CreateSession(ctx, pipeline.NewSession{
		ID:       s.newID(),
		Agent:    req.Agent,
		Project:  req.Project,
		Command:  req.Command,
		User:     req.User,
		Branch:   req.Branch,
		Metadata: req.Metadata,
		Now:      s.now(),
	})
	if err != nil {
		ticket.Release()
		return nil, s.internal("creating session", err, "agent", req.Agent, "project", req.Project)
	}
	ticket.Resolve(sess.ID)

	s.pub.Publish(broadcast.Event{
		Type:      broadcast.EventSessionCreated,
		SessionID: sess.ID,
		Session:   sess,
		At:        s.now(),
	})
	return &CreateResult{SessionID: sess.ID, Session: sess}, nil
}

// StepInput describes a step to append.
type StepInput struct {
	Kind         pipeline.StepKind `json:"kind"`
	Content      string            `json:"content"`
	DocumentName string            `json:"documentName,omitempty"`
	Command      string            `json:"command,omitempty"`
	ExitCode     *int              `json:"exitCode,omitempty"`
}

// StepResult is the outcome of AppendStep.
type StepResult struct {
	StepID string         `json:"stepId"`
	Seq    int64          `json:"seqNo"`
	Step   *pipeline.Step `json:"-"`
}

// AppendStep renders and stores a step, then publishes it. Steps of one
// session are published in sequence order.
func (s *Service) AppendStep(ctx context.Context, sessionID string, in StepInput) (*StepResult, error) {
	if in.Kind == "" {
		in.Kind = pipeline.StepOutput
	}
	if !in.Kind.Valid() {
		return nil, apierr.NewInvalid("unknown step kind")
	}
	if in.Kind == pipeline.StepDocument && in.DocumentName == "" {
		return nil, apierr.NewInvalid("documentName is required for document steps")
	}

	if _, err := s.ownedSession(ctx, sessionID); err != nil {
		return nil, err
	}

	html, err := s.render.RenderSafe(stepMarkdown(in))
	if err != nil {
		return nil, s.internal("rendering step", err, "session_id", sessionID)
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	st, err := s.store.AppendStep(ctx, sessionID, pipeline.NewStep{
		ID:           s.newID(),
		Kind:         in.Kind,
		DocumentName: in.DocumentName,
		Content:      in.Content,
		RenderedHTML: html,
		Command:      in.Command,
		ExitCode:     in.ExitCode,
		Now:          s.now(),
	})
	if errors.Is(err, pipeline.ErrNotFound) {
		return nil, apierr.NewNotFound("session not found")
	}
	if err != nil {
		return nil, s.internal("appending step", err, "session_id", sessionID)
	}
	s.rec.StepAppended()

	s.pub.Publish(broadcast.Event{
		Type:      broadcast.EventStep,
		SessionID: sessionID,
		Seq:       st.Seq,
		Step:      st,
		At:        st.CreatedAt,
	})
	return &StepResult{StepID: st.ID, Seq: st.Seq, Step: st}, nil
}

// stepMarkdown returns the markdown source rendered for a step. Documents
// and notes are markdown already; terminal content is fenced.
func stepMarkdown(in StepInput) string {
	switch in.Kind {
	case pipeline.StepDocument, pipeline.StepNote:
		return in.Content
	case pipeline.StepCommand:
		body := "$ " + in.Command + "\n" + in.Content
		return render.Fence("console", body)
	default:
		return render.Fence("", in.Content)
	}
}

// UpdateStatus moves a session to status.
func (s *Service) UpdateStatus(ctx context.Context, sessionID string, status pipeline.Status) (*pipeline.Session, error) {
	if !status.Valid() {
		return nil, apierr.NewInvalid("unknown status")
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.ownedSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Status.CanTransition(status) {
		return nil, apierr.NewInvalid("cannot move session from " + string(sess.Status) + " to " + string(status))
	}

	updated, err := s.store.UpdateStatus(ctx, sessionID, sess.Status, status, s.now())
	if errors.Is(err, pipeline.ErrNotFound) {
		return nil, apierr.NewNotFound("session not found")
	}
	if errors.Is(err, pipeline.ErrStatusConflict) {
		return nil, apierr.NewConflict("session status changed concurrently, retry")
	}
	if err != nil {
		return nil, s.internal("updating session status", err, "session_id", sessionID)
	}

	s.pub.Publish(broadcast.Event{
		Type:      broadcast.EventSessionUpdated,
		SessionID: sessionID,
		Session:   updated,
		At:        updated.UpdatedAt,
	})
	return updated, nil
}

// Resume reactivates the most recent paused or completed session for agent
// and project. Concurrent callers never claim the same session.
func (s *Service) Resume(ctx context.Context, agent, project string) (*pipeline.Session, error) {
	if agent == "" || project == "" {
		return nil, apierr.NewInvalid("agent and project are required")
	}
	if err := s.checkCaller(ctx, agent); err != nil {
		return nil, err
	}

	sess, err := s.store.ClaimResumableSession(ctx, agent, project, s.now())
	if errors.Is(err, pipeline.ErrNoResumableSession) {
		return nil, apierr.NewNotFound("no resumable session")
	}
	if err != nil {
		return nil, s.internal("claiming session", err, "agent", agent, "project", project)
	}

	unlock := s.locks.Lock(sess.ID)
	defer unlock()

	// A status change or delete can land between the claim and the lock.
	current, err := s.store.GetSession(ctx, sess.ID)
	if errors.Is(err, pipeline.ErrNotFound) {
		return nil, apierr.NewNotFound("no resumable session")
	}
	if err != nil {
		return nil, s.internal("loading claimed session", err, "session_id", sess.ID)
	}

	s.pub.Publish(broadcast.Event{
		Type:      broadcast.EventSessionUpdated,
		SessionID: current.ID,
		Session:   current,
		At:        current.UpdatedAt,
	})
	return current, nil
}

// Delete soft-deletes a session.
func (s *Service) Delete(ctx context.Context, sessionID string) error {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	err := s.store.SoftDelete(ctx, sessionID, s.now())
	if errors.Is(err, pipeline.ErrNotFound) {
		return apierr.NewNotFound("session not found")
	}
	if err != nil {
		return s.internal("deleting session", err, "session_id", sessionID)
	}
	s.pub.Publish(broadcast.Event{
		Type:      broadcast.EventSessionDeleted,
		SessionID: sessionID,
		At:        s.now(),
	})
	return nil
}

// Snapshot returns a session with its steps.
func (s *Service) Snapshot(ctx context.Context, sessionID string) (*pipeline.Session, error) {
	sess, err := s.store.GetSessionWithSteps(ctx, sessionID)
	if errors.Is(err, pipeline.ErrNotFound) {
		return nil, apierr.NewNotFound("session not found")
	}
	if err != nil {
		return nil, s.internal("loading session", err, "session_id", sessionID)
	}
	return sess, nil
}

// ActiveSessions returns every active session.
func (s *Service) ActiveSessions(ctx context.Context) ([]*pipeline.Session, error) {
	sessions, err := s.store.GetActiveSessions(ctx)
	if err != nil {
		return nil, s.internal("listing active sessions", err)
	}
	return sessions, nil
}

// ListSessions returns sessions matching f.
func (s *Service) ListSessions(ctx context.Context, f pipeline.ListFilter) ([]*pipeline.Session, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apierr.NewInvalid("unknown status")
	}
	sessions, err := s.store.ListSessions(ctx, f)
	if err != nil {
		return nil, s.internal("listing sessions", err)
	}
	return sessions, nil
}

// checkCaller rejects agents acting on behalf of another agent.
func (*Service) checkCaller(ctx context.Context, agent string) error {
	if id, ok := agentkey.IdentityFrom(ctx); ok && id.Agent != agent {
		return apierr.New(apierr.Forbidden, "agent does not match bearer token")
	}
	return nil
}

// ownedSession loads a session and checks the caller may write to it.
func (s *Service) ownedSession(ctx context.Context, sessionID string) (*pipeline.Session, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, pipeline.ErrNotFound) {
		return nil, apierr.NewNotFound("session not found")
	}
	if err != nil {
		return nil, s.internal("loading session", err, "session_id", sessionID)
	}
	if err := s.checkCaller(ctx, sess.Agent); err != nil {
		return nil, err
	}
	return sess, nil
}

// internal logs a storage failure with context and returns a generic error.
func (*Service) internal(msg string, err error, attrs ...any) error {
	slog.Error(msg, append(attrs, "error", err)...)
	return apierr.NewInternal(err)
}
