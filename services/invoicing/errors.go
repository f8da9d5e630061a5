package invoicing

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by collaborators for a missing product, invoice,
	// customer or company.
	ErrNotFound = errors.New("not found")
	// ErrNoCompany means the authenticated user has no company profile.
	ErrNoCompany = errors.New("user has no company profile")
)

// ValidationError is raised by Submit before any remote call. The draft is
// left unchanged.
type ValidationError struct {
	Field string
	// Line is the zero-based line index, or -1 for header fields.
	Line    int
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func headerInvalid(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Line: -1, Message: msg}
}

func lineInvalid(line int, field, msg string) *ValidationError {
	return &ValidationError{Field: fmt.Sprintf("lines[%d].%s", line, field), Line: line, Message: msg}
}

// RemoteError wraps a failed catalog or ledger call. Op names the step.
// Orphaned is set when an invoice header was written, its line items were
// not, and deleting the header failed too.
type RemoteError struct {
	Op       string
	Err      error
	Orphaned int64
}

func (e *RemoteError) Error() string {
	if e.Orphaned != 0 {
		return fmt.Sprintf("%s: %v (invoice %d left without line items)", e.Op, e.Err, e.Orphaned)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func remote(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RemoteError{Op: op, Err: err}
}
