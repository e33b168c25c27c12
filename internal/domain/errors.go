package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidRequest indicates invalid request
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnauthorized indicates the upstream rejected the session
	ErrUnauthorized = errors.New("unauthorized")
	// ErrEmptyQuery indicates a blank chat query
	ErrEmptyQuery = errors.New("query is empty")
	// ErrNoActiveTable indicates a send without an active table
	ErrNoActiveTable = errors.New("no active table")
	// ErrTablePending indicates a query is already in flight for the table
	ErrTablePending = errors.New("a query is already pending for this table")
	// ErrTableNotSelected indicates an operation on a table outside the selection
	ErrTableNotSelected = errors.New("table is not selected")
	// ErrNoWorkspace indicates the session has not opened a database yet
	ErrNoWorkspace = errors.New("no database opened for this session")
)

// ValidationError is returned before any network call is made.
type ValidationError struct {
	Err    error
	Notice string
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError wraps a sentinel with the message shown to the user.
func NewValidationError(err error, notice string) *ValidationError {
	return &ValidationError{Err: err, Notice: notice}
}

// NetworkError means the request never reached the server or got no response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RemoteError means the server answered with a failure status.
type RemoteError struct {
	Op      string
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: remote returned %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: remote returned %d: %s", e.Op, e.Status, e.Message)
}

// Is lets a 401 match ErrUnauthorized.
func (e *RemoteError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == 401
}

// ParseError reports markup that could not be turned into a table.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "parse error: " + e.Reason
}
