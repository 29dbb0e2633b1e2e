package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for caller handling.
type ErrorClass string

const (
	// ErrorClassValidation indicates bad input shape or a dangling reference.
	// Examples: unknown parent, predecessor in a different branch.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassState indicates a transition that is illegal in the node's
	// current state. The caller may retry once preconditions are met.
	ErrorClassState ErrorClass = "state"

	// ErrorClassConflict indicates the requested entity already exists or is
	// still referenced. Carries enough context for idempotent handling.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassIntegrity indicates a programming defect in the engine or its
	// data. No legitimate caller input can produce it when template
	// invariants were enforced at authoring time.
	ErrorClassIntegrity ErrorClass = "integrity"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification for caller handling.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is the error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Node is the node ID that caused the error, if applicable.
	Node string `json:"node,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	switch {
	case e.Node != "" && e.Operation != "":
		return fmt.Sprintf("[%s] %s (node=%s, operation=%s)%s",
			e.Class, e.Message, e.Node, e.Operation, e.unwrapSuffix())
	case e.Node != "":
		return fmt.Sprintf("[%s] %s (node=%s)%s", e.Class, e.Message, e.Node, e.unwrapSuffix())
	default:
		return fmt.Sprintf("[%s] %s%s", e.Class, e.Message, e.unwrapSuffix())
	}
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

func (e *EngineError) unwrapSuffix() string {
	if e.Err != nil {
		return ": " + e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
// Two engine errors match when class and code match; an empty code on the
// target matches any code of the same class.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	if t.Code == "" {
		return e.Class == t.Class
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassValidation, Message: message, Err: err}
}

// NewStateError creates a new state error.
func NewStateError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassState, Message: message, Err: err}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassConflict, Message: message, Err: err}
}

// NewIntegrityError creates a new integrity violation error.
func NewIntegrityError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassIntegrity, Message: message, Err: err}
}

// WithNode adds node context to an error.
func (e *EngineError) WithNode(nodeID string) *EngineError {
	e.Node = nodeID
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsValidation returns true if the error is classified as a validation error.
func IsValidation(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassValidation
	}
	return false
}

// IsState returns true if the error is classified as a state error.
func IsState(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassState
	}
	return false
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConflict
	}
	return false
}

// IsIntegrity returns true if the error is classified as an integrity violation.
func IsIntegrity(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassIntegrity
	}
	return false
}

// IsRecoverable returns true if the caller can act on the error.
// Validation, state, and conflict errors are expected conditions; integrity
// violations are not.
func IsRecoverable(err error) bool {
	return IsValidation(err) || IsState(err) || IsConflict(err)
}

// CodeOf returns the error code of an engine error, or an empty string.
func CodeOf(err error) string {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Error codes, one per rejectable condition.
const (
	ErrCodeInvalidParent          = "INVALID_PARENT"
	ErrCodeInvalidPredecessor     = "INVALID_PREDECESSOR"
	ErrCodeCyclicPredecessor      = "CYCLIC_PREDECESSOR"
	ErrCodeDuplicateStatus        = "DUPLICATE_STATUS"
	ErrCodeUnknownStatus          = "UNKNOWN_STATUS"
	ErrCodeStatusInUse            = "STATUS_IN_USE"
	ErrCodeUnknownNode            = "UNKNOWN_NODE"
	ErrCodePredecessorNotComplete = "PREDECESSOR_NOT_COMPLETE"
	ErrCodeChildrenIncomplete     = "CHILDREN_INCOMPLETE"
	ErrCodeAlreadyTerminal        = "ALREADY_TERMINAL"
	ErrCodeIterationClosed        = "ITERATION_CLOSED"
	ErrCodeAlreadyInstantiated    = "ALREADY_INSTANTIATED"
	ErrCodeIncompleteTemplate     = "INCOMPLETE_TEMPLATE"
	ErrCodeInvalidTransition      = "INVALID_TRANSITION"
	ErrCodeNotFound               = "NOT_FOUND"
	ErrCodeInternal               = "INTERNAL_ERROR"
)
