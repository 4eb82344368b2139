package goobd

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout is returned when no frame arrives within the receive timeout.
	ErrTimeout = errors.New("receive timeout")
	// ErrClosed is returned from Send and Receive after the transport is closed.
	ErrClosed = errors.New("transport closed")
	// ErrDevice wraps driver or socket level failures.
	ErrDevice = errors.New("device error")

	ErrDroppedFrame = errors.New("transport incoming buffer full")
	ErrNilTransport = errors.New("transport is nil")
)

// TimeoutError carries which identifiers were being waited on when the
// timeout fired. It matches ErrTimeout under errors.Is.
type TimeoutError struct {
	Timeout time.Duration
	Frames  []uint32
	Type    string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timeout (%v) for frame 0x%03X", e.Type, e.Timeout, e.Frames)
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

type unrecoverableError struct {
	error
}

func (e unrecoverableError) Error() string {
	if e.error == nil {
		return "unrecoverable error"
	}
	return e.error.Error()
}

func (e unrecoverableError) Unwrap() error {
	return e.error
}

// Unrecoverable wraps an error in `unrecoverableError` struct
func Unrecoverable(err error) error {
	return unrecoverableError{err}
}

// IsRecoverable checks if error is an instance of `unrecoverableError`
func IsRecoverable(err error) bool {
	if _, ok := err.(unrecoverableError); ok {
		return false
	}
	return true
}
