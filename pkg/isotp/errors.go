package isotp

import (
	"errors"
	"fmt"
)

var (
	ErrPayloadTooLarge    = errors.New("payload exceeds 4095 bytes")
	ErrFlowControlTimeout = errors.New("timeout waiting for flow control")
	ErrOverflow           = errors.New("receiver reported overflow")
	ErrWaitLimit          = errors.New("too many wait flow controls in a row")
	ErrUnexpectedFrame    = errors.New("consecutive frame outside a transfer")
	ErrTooManyStreams     = errors.New("too many concurrent reassemblies")
	ErrMalformedFrame     = errors.New("malformed frame")
)

// SequenceError reports a consecutive frame arriving out of order. The
// transfer it belonged to is discarded.
type SequenceError struct {
	Expected byte
	Got      byte
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("wrong sequence number: expected %d, got %d", e.Expected, e.Got)
}
