package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeGroupNotFound  = "group_not_found"
	ErrCodeAlreadyJoined  = "already_joined"
	ErrCodeNotInGroup     = "not_in_group"
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotParticipant = "not_participant"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeInvalidMessage = "invalid_message"
	ErrCodeInternal       = "internal_error"
)

var (
	// ErrHubSaturated is returned by Publish when the hub queue is full and the event was dropped.
	ErrHubSaturated = errors.New("hub queue full, event dropped")
	// ErrHubStopped is returned once the hub loop has exited.
	ErrHubStopped = errors.New("hub stopped")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// NewError builds a CoreError for transports that validate before reaching the hub.
func NewError(code, msg string) *CoreError {
	return coreError(code, msg)
}
