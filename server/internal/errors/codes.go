package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a specific error type for assistant operations.
type ErrorCode string

const (
	// ErrCodeSessionNotFound indicates the session id is unknown or expired.
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	// ErrCodeRateLimitExceeded indicates a request budget has been exhausted.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodePermissionDenied indicates the operation is not allowed for the role.
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeProviderUnavailable indicates no completion backend could serve the call.
	ErrCodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	// ErrCodeProviderFailed indicates the selected backend failed mid-turn.
	ErrCodeProviderFailed ErrorCode = "PROVIDER_FAILED"
	// ErrCodeConversationEnded indicates an append to an ended conversation.
	ErrCodeConversationEnded ErrorCode = "CONVERSATION_ENDED"
	// ErrCodeStoreUnavailable indicates the persistence layer is unreachable.
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
)

// AgentError represents a structured error for assistant operations.
type AgentError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AgentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AgentError) Unwrap() error {
	return e.Cause
}

// New creates an AgentError with the given code and message.
func New(code ErrorCode, message string) *AgentError {
	return &AgentError{Code: code, Message: message}
}

// Wrap creates an AgentError wrapping a cause.
func Wrap(code ErrorCode, message string, cause error) *AgentError {
	return &AgentError{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the error code from err, or empty string if it is not
// an AgentError.
func CodeOf(err error) ErrorCode {
	var agentErr *AgentError
	if stderrors.As(err, &agentErr) {
		return agentErr.Code
	}
	return ""
}

// IsRetryable reports whether the error is worth retrying by the caller.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case ErrCodeProviderFailed, ErrCodeStoreUnavailable, ErrCodeTimeout:
		return true
	}
	return false
}
