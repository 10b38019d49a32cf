package types

import "fmt"

// ErrorCode represents a unified error code across the framework.
type ErrorCode string

// Lifecycle error codes
const (
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrDuplicateName     ErrorCode = "DUPLICATE_NAME"
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrInitFailed        ErrorCode = "INIT_FAILED"
	ErrCleanupFailed     ErrorCode = "CLEANUP_FAILED"
)

// Workflow error codes
const (
	ErrCyclicWorkflow       ErrorCode = "CYCLIC_WORKFLOW"
	ErrUnknownWorkflow      ErrorCode = "UNKNOWN_WORKFLOW"
	ErrUnknownExecution     ErrorCode = "UNKNOWN_EXECUTION"
	ErrUnknownAction        ErrorCode = "UNKNOWN_ACTION"
	ErrInvalidDefinition    ErrorCode = "INVALID_DEFINITION"
	ErrOutputMismatch       ErrorCode = "OUTPUT_MISMATCH"
	ErrStepTimeout          ErrorCode = "STEP_TIMEOUT"
	ErrStepRetriesExhausted ErrorCode = "STEP_RETRIES_EXHAUSTED"
	ErrStepFailed           ErrorCode = "STEP_FAILED"
	ErrWorkflowCancelled    ErrorCode = "WORKFLOW_CANCELLED"
	ErrEngineClosed         ErrorCode = "ENGINE_CLOSED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Workflow  string    `json:"workflow,omitempty"`
	Step      string    `json:"step,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithWorkflow sets the workflow name the error originated from.
func (e *Error) WithWorkflow(name string) *Error {
	e.Workflow = name
	return e
}

// WithStep sets the step ID the error originated from.
func (e *Error) WithStep(id string) *Error {
	e.Step = id
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
