// Package pipeline defines the mirrored domain: sessions (one pipeline run by
// one agent on one project) and the ordered steps recorded inside them, plus
// the Store port that persists them.
package pipeline

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a session.
type Status string

// Session statuses.
const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusPaused    Status = "paused"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusPaused:
		return true
	}
	return false
}

// CanTransition reports whether an explicit status change from s to next is
// allowed. Reactivation goes through ClaimResumableSession, not here.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusActive:
		return next == StatusCompleted || next == StatusPaused
	case StatusPaused:
		return next == StatusCompleted
	}
	return false
}

// StepKind classifies a step.
type StepKind string

// Step kinds.
const (
	StepOutput   StepKind = "output"
	StepDocument StepKind = "document"
	StepCommand  StepKind = "command"
	StepError    StepKind = "error"
	StepNote     StepKind = "note"
)

// Valid reports whether k is a known step kind.
func (k StepKind) Valid() bool {
	switch k {
	case StepOutput, StepDocument, StepCommand, StepError, StepNote:
		return true
	}
	return false
}

// Session is one tracked pipeline run.
type Session struct {
	ID          string         `json:"id"`
	Agent       string         `json:"agent"`
	Project     string         `json:"project"`
	Command     string         `json:"command"`
	User        string         `json:"user,omitempty"`
	Branch      string         `json:"branch,omitempty"`
	Status      Status         `json:"status"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	StartedAt   time.Time      `json:"startedAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	DeletedAt   *time.Time     `json:"-"`

	// Steps is populated only by GetSessionWithSteps.
	Steps []Step `json:"steps,omitempty"`
}

// Deleted reports whether the session has been soft-deleted.
func (s *Session) Deleted() bool {
	return s.DeletedAt != nil
}

// Step is one ordered event inside a session.
type Step struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"sessionId"`
	Seq          int64     `json:"seq"`
	Kind         StepKind  `json:"kind"`
	DocumentName string    `json:"documentName,omitempty"`
	Content      string    `json:"content"`
	RenderedHTML string    `json:"renderedHtml,omitempty"`
	Command      string    `json:"command,omitempty"`
	ExitCode     *int      `json:"exitCode,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NewSession holds the fields needed to create a session.
type NewSession struct {
	ID       string
	Agent    string
	Project  string
	Command  string
	User     string
	Branch   string
	Metadata map[string]any
	Now      time.Time
}

// NewStep holds the fields needed to append a step. Seq is assigned by the
// store.
type NewStep struct {
	ID           string
	Kind         StepKind
	DocumentName string
	Content      string
	RenderedHTML string
	Command      string
	ExitCode     *int
	Now          time.Time
}

// ListFilter narrows ListSessions.
type ListFilter struct {
	Status  Status
	Agent   string
	Project string
	Limit   int
}

// Errors returned by stores.
var (
	ErrNotFound           = errors.New("session not found")
	ErrNoResumableSession = errors.New("no resumable session")
	ErrStatusConflict     = errors.New("session status changed")
)

// Store persists sessions and steps.
//
// AppendStep must assign Seq as the current maximum for the session plus one
// and must serialize concurrent appends to the same session so no two steps
// share a number. Appends to different sessions must not serialize against
// each other.
type Store interface {
	// CreateSession inserts a new active session.
	CreateSession(ctx context.Context, s NewSession) (*Session, error)

	// GetSession returns a session without steps. Soft-deleted sessions
	// return ErrNotFound.
	GetSession(ctx context.Context, id string) (*Session, error)

	// GetSessionWithSteps returns a session and its steps in seq order.
	GetSessionWithSteps(ctx context.Context, id string) (*Session, error)

	// GetActiveSessions returns every non-deleted active session.
	GetActiveSessions(ctx context.Context) ([]*Session, error)

	// ListSessions returns non-deleted sessions matching the filter, newest first.
	ListSessions(ctx context.Context, f ListFilter) ([]*Session, error)

	// AppendStep stores a step with the next sequence number.
	AppendStep(ctx context.Context, sessionID string, st NewStep) (*Step, error)

	// ClaimResumableSession atomically reactivates the most recent paused or
	// completed session for (agent, project). Concurrent callers never claim
	// the same row; losers get ErrNoResumableSession.
	ClaimResumableSession(ctx context.Context, agent, project string, now time.Time) (*Session, error)

	// UpdateStatus moves a session from status from to status to. When the
	// stored status is no longer from it returns ErrStatusConflict and
	// leaves the row untouched.
	UpdateStatus(ctx context.Context, id string, from, to Status, now time.Time) (*Session, error)

	// SoftDelete marks a session deleted.
	SoftDelete(ctx context.Context, id string, now time.Time) error
}
