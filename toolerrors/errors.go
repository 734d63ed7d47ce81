// Package toolerrors provides the structured error taxonomy from spec.md
// §7, grounded on runtime/agent/toolerrors/tool_error.go's Message/Cause
// chain. ToolError supports errors.Is/errors.As across retries and
// surfaces Kind/Retryable so the agent loop (looprunner) can apply the
// exact retry and termination rules spec.md describes without parsing
// error strings.
package toolerrors

import (
	"errors"
	"fmt"
)

// Kind enumerates the error taxonomy of spec.md §7. The string value is
// what gets surfaced in Observation.Error.Code and in bus.Event.Data.error.
type Kind string

const (
	KindInputValidation Kind = "input_validation_error"
	KindValidation      Kind = "validation_error"
	KindMissingAction   Kind = "missing_action"
	KindResolveError    Kind = "resolve_error"
	KindTimeout         Kind = "timeout"
	KindExecutionFailure Kind = "execution_failure"
	KindCancelled       Kind = "cancelled"
)

// retryableKinds mirrors spec.md §7: these kinds are retryable up to the
// caps tracked by looprunner; all others either terminate immediately
// (cancelled) or are recorded and the loop continues without a retry of
// the same decision (resolve_error, execution_failure).
var retryableKinds = map[Kind]bool{
	KindInputValidation: true,
	KindValidation:       true,
	KindMissingAction:    true,
}

// ToolError is the structured failure type threaded through tool runtime,
// planner validation, and the agent loop.
type ToolError struct {
	Kind      Kind
	Message   string
	Retryable bool
	Cause     *ToolError
}

// New constructs a ToolError of the given kind with no cause.
func New(kind Kind, message string) *ToolError {
	if message == "" {
		message = string(kind)
	}
	return &ToolError{Kind: kind, Message: message, Retryable: retryableKinds[kind]}
}

// Errorf formats a ToolError message.
func Errorf(kind Kind, format string, args ...any) *ToolError {
	return New(kind, fmt.Sprintf(format, args...))
}

// NewWithCause constructs a ToolError of the given kind wrapping cause. The
// cause is folded into a ToolError chain so Kind/Retryable survive
// persistence round-trips (JSON-marshaled Observation rows).
func NewWithCause(kind Kind, message string, cause error) *ToolError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &ToolError{Kind: kind, Message: message, Retryable: retryableKinds[kind], Cause: FromError(cause)}
}

// FromError converts an arbitrary error into a ToolError chain, preserving
// an existing ToolError (and its Kind) if err already is or wraps one.
func FromError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{Kind: KindExecutionFailure, Message: err.Error(), Cause: FromError(errors.Unwrap(err))}
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap supports errors.Is/errors.As across the cause chain.
func (e *ToolError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}

// Is lets errors.Is match on Kind alone, e.g. errors.Is(err, toolerrors.Sentinel(KindTimeout)).
func (e *ToolError) Is(target error) bool {
	var te *ToolError
	if !errors.As(target, &te) || te == nil {
		return false
	}
	return te.Message == "" && te.Kind == e.Kind
}

// Sentinel constructs a bare ToolError usable only as an errors.Is target
// for a given Kind (Message left empty so Is matches on Kind alone).
func Sentinel(kind Kind) *ToolError { return &ToolError{Kind: kind} }
