package core

import (
	"errors"
	"fmt"
)

// Error codes for domain errors.
const (
	ErrCodeNotConnected   = "not_connected"
	ErrCodeConnection     = "connection_error"
	ErrCodeHistoryFetch   = "history_fetch_failed"
	ErrCodeSendFailed     = "send_failed"
	ErrCodeMalformedEvent = "malformed_event"
	ErrCodeStaleLoad      = "stale_load"
)

var (
	// ErrNotConnected is returned by a socket send while the connection is
	// not established. It triggers the REST fallback path, not a user-facing
	// failure by itself.
	ErrNotConnected = errors.New("not connected")

	// ErrStaleGeneration is returned when a history response arrives for a
	// load that a newer conversation open has superseded. The response must
	// be discarded entirely.
	ErrStaleGeneration = errors.New("stale load generation")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// HistoryFetchError reports a failed history load for one conversation.
// It is retryable: live events buffered while the load was in flight are
// preserved for the next attempt.
type HistoryFetchError struct {
	Key ConversationKey
	Err error
}

func (e *HistoryFetchError) Error() string {
	return fmt.Sprintf("history fetch for %d/%d: %v", e.Key.Lo, e.Key.Hi, e.Err)
}

func (e *HistoryFetchError) Unwrap() error {
	return e.Err
}

// SendFailure reports a rejected send. Content carries the user's text so the
// caller can restore it to the compose field; it must never be discarded.
type SendFailure struct {
	Content string
	Err     error
}

func (e *SendFailure) Error() string {
	return fmt.Sprintf("send failed: %v", e.Err)
}

func (e *SendFailure) Unwrap() error {
	return e.Err
}
