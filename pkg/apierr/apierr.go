// Package apierr defines the error taxonomy shared by the HTTP surface and
// the services behind it. Every expected failure maps to a stable HTTP status
// and a machine-readable code; only unexpected failures become Internal.
package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Kind classifies an error for the caller.
type Kind int

// Error kinds.
const (
	Internal Kind = iota
	Unauthenticated
	Unauthorized
	Forbidden
	NotFound
	Conflict
	RateLimited
	Invalid
)

var kindInfo = map[Kind]struct {
	status int
	code   string
	title  string
}{
	Internal:        {http.StatusInternalServerError, "internal", "Internal Server Error"},
	Unauthenticated: {http.StatusUnauthorized, "authentication_required", "Unauthorized"},
	Unauthorized:    {http.StatusUnauthorized, "unauthorized", "Unauthorized"},
	Forbidden:       {http.StatusForbidden, "forbidden", "Forbidden"},
	NotFound:        {http.StatusNotFound, "not_found", "Not Found"},
	Conflict:        {http.StatusConflict, "conflict", "Conflict"},
	RateLimited:     {http.StatusTooManyRequests, "rate_limited", "Too Many Requests"},
	Invalid:         {http.StatusBadRequest, "invalid", "Bad Request"},
}

// Status returns the HTTP status for the kind.
func (k Kind) Status() int {
	return kindInfo[k].status
}

// Code returns the machine-readable code for the kind.
func (k Kind) Code() string {
	return kindInfo[k].code
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	return kindInfo[k].code
}

// Error is a classified error. Message is safe to show to callers; Err is
// kept for logging and errors.Is/As and is never written to a response.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates a classified error around a cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// NewUnauthenticated returns the uniform "authentication required" error.
func NewUnauthenticated() *Error { return New(Unauthenticated, "authentication required") }

// NewUnauthorized returns the uniform "unauthorized" error.
func NewUnauthorized() *Error { return New(Unauthorized, "unauthorized") }

// NewNotFound returns a NotFound error with the given message.
func NewNotFound(msg string) *Error { return New(NotFound, msg) }

// NewInvalid returns an Invalid error with the given message.
func NewInvalid(msg string) *Error { return New(Invalid, msg) }

// NewConflict returns a Conflict error with the given message.
func NewConflict(msg string) *Error { return New(Conflict, msg) }

// NewInternal hides the cause behind a generic message.
func NewInternal(err error) *Error { return Wrap(Internal, "internal error", err) }

// KindOf returns the kind of err, or Internal if err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Problem is the RFC 7807 body written for every error response.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Code   string `json:"code"`
}

// ProblemFor builds the response body for err.
func ProblemFor(err error) Problem {
	kind := KindOf(err)
	info := kindInfo[kind]
	p := Problem{
		Type:   "about:blank",
		Title:  info.title,
		Status: info.status,
		Code:   info.code,
	}
	var e *Error
	if kind != Internal && errors.As(err, &e) {
		p.Detail = e.Message
	} else {
		p.Detail = "internal error"
	}
	return p
}

// Write writes err as application/problem+json.
func Write(w http.ResponseWriter, err error) {
	p := ProblemFor(err)
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
