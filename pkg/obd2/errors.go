package obd2

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when a query is started while another one is
	// still in flight on the same session.
	ErrBusy = errors.New("obd2: query already in flight")

	// ErrNoResponse is returned by broadcast queries that collected no
	// answer from any ECU inside the window.
	ErrNoResponse = errors.New("obd2: no response")
)

// UnexpectedResponseError reports a reply whose service or PID echo does
// not match the request it should answer.
type UnexpectedResponseError struct {
	WantService byte
	GotService  byte
	WantPID     byte
	GotPID      byte
}

func (e *UnexpectedResponseError) Error() string {
	if e.GotService != e.WantService {
		return fmt.Sprintf("unexpected response: service 0x%02X, expected 0x%02X", e.GotService, e.WantService)
	}
	return fmt.Sprintf("unexpected response: PID 0x%02X, expected 0x%02X", e.GotPID, e.WantPID)
}

// UnknownPidError reports a PID missing from the definition table.
type UnknownPidError struct {
	PID byte
}

func (e *UnknownPidError) Error() string {
	return fmt.Sprintf("unknown PID 0x%02X", e.PID)
}

// MalformedResponseError reports a payload whose size does not match what
// the definition table expects.
type MalformedResponseError struct {
	PID  byte
	Want int
	Got  int
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("PID 0x%02X: expected %d data bytes, got %d", e.PID, e.Want, e.Got)
}

// NegativeResponseError is a service 0x7F reply carrying the rejected
// service and a negative response code.
type NegativeResponseError struct {
	Service Service
	Code    byte
}

func (e *NegativeResponseError) Error() string {
	return fmt.Sprintf("service 0x%02X rejected: %s", byte(e.Service), nrcText(e.Code))
}

// Pending reports whether the ECU asked for more time. The session keeps
// waiting on these instead of failing the query.
func (e *NegativeResponseError) Pending() bool {
	return e.Code == nrcResponsePending
}

const nrcResponsePending = 0x78

var nrcNames = map[byte]string{
	0x10: "general reject",
	0x11: "service not supported",
	0x12: "sub-function not supported",
	0x13: "incorrect message length or format",
	0x21: "busy, repeat request",
	0x22: "conditions not correct",
	0x31: "request out of range",
	0x33: "security access denied",
	0x78: "response pending",
	0x7F: "service not supported in active session",
}

func nrcText(code byte) string {
	if name, ok := nrcNames[code]; ok {
		return fmt.Sprintf("%s (0x%02X)", name, code)
	}
	return fmt.Sprintf("negative response code 0x%02X", code)
}
