package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input rejected before persistence.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError with a formatted message.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ConflictError reports an operation that is invalid in the entity's
// current state, such as posting to a closed session or answering a
// question twice.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

// Conflictf builds a ConflictError with a formatted message.
func Conflictf(format string, args ...any) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown entity or an ownership mismatch.
// Ownership mismatches are deliberately indistinguishable from missing
// rows so callers cannot probe for other users' data.
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string { return e.Msg }

// NotFoundf builds a NotFoundError with a formatted message.
func NotFoundf(format string, args ...any) error {
	return &NotFoundError{Msg: fmt.Sprintf(format, args...)}
}

// AgentError wraps a failed or unusable reply from the external agent.
type AgentError struct {
	Op  string
	Err error
}

func (e *AgentError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("agent %s failed", e.Op)
	}
	return fmt.Sprintf("agent %s: %v", e.Op, e.Err)
}

func (e *AgentError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// IsAgent reports whether err is an AgentError.
func IsAgent(err error) bool {
	var ae *AgentError
	return errors.As(err, &ae)
}
