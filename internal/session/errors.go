package session

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexOutOfRange is returned when a queue index does not exist
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrDuplicateTrack is returned when adding a track whose id is already queued
	ErrDuplicateTrack = errors.New("track already in queue")

	// ErrEmptyQueue is returned when an operation needs a current track
	ErrEmptyQueue = errors.New("queue is empty")

	// ErrInvalidMode is returned for an unknown playback mode
	ErrInvalidMode = errors.New("invalid playback mode")

	// ErrNoop is returned when an operation would not change anything
	ErrNoop = errors.New("operation has no effect")

	// ErrClosed is returned when the session loop is no longer running
	ErrClosed = errors.New("session closed")
)

// ValidationError reports a rejected command argument. The session state is
// left untouched whenever one is returned.
type ValidationError struct {
	Op  string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a rejected command
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// RestoreError reports an unreadable snapshot. Gateways log it and fall back
// to DefaultSnapshot rather than returning it to the session.
type RestoreError struct {
	Path string
	Err  error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("failed to restore session from %s: %v", e.Path, e.Err)
}

func (e *RestoreError) Unwrap() error { return e.Err }
