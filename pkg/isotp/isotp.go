// Package isotp segments and reassembles payloads over classic CAN frames
// according to ISO 15765-2, the transport OBD-II and UDS diagnostics ride on.
package isotp

import (
	"time"
)

// MaxPayload is the largest payload the 12-bit first frame length field can
// announce.
const MaxPayload = 4095

// maxStreams bounds how many senders a Reassembler tracks at once.
const maxStreams = 8

// Frame types from the high nibble of the PCI byte.
const (
	typeSingle      = 0x0
	typeFirst       = 0x1
	typeConsecutive = 0x2
	typeFlow        = 0x3
)

// FlowStatus is the handshake verdict carried in a flow control frame.
type FlowStatus byte

const (
	ContinueToSend FlowStatus = 0x00
	Wait           FlowStatus = 0x01
	Overflow       FlowStatus = 0x02
)

func (fs FlowStatus) String() string {
	switch fs {
	case ContinueToSend:
		return "continue to send"
	case Wait:
		return "wait"
	case Overflow:
		return "overflow"
	default:
		return "reserved"
	}
}

// Options tune a transfer. The zero value disables block pacing, separation
// time, frame padding and wait frames; timeouts left at zero fall back to one
// second.
type Options struct {
	// BlockSize is advertised in our flow control frames, the number of
	// consecutive frames the peer may send before the next flow control.
	// Zero lets the peer stream the whole message in one block.
	BlockSize byte

	// STmin is the separation time advertised in our flow control frames.
	STmin time.Duration

	// WFTMax bounds how many wait flow controls in a row we accept from the
	// peer before aborting a send. Zero rejects wait frames outright.
	WFTMax int

	// FlowControlTimeout bounds the wait for the peer's flow control after
	// a first frame or a completed block.
	FlowControlTimeout time.Duration

	// ConsecutiveTimeout expires a partial reassembly when the sender goes
	// quiet in the middle of a transfer.
	ConsecutiveTimeout time.Duration

	// PadFrames pads every outgoing frame to 8 data bytes with PadByte.
	// Most ECUs on an OBD bus expect full-length frames.
	PadFrames bool
	PadByte   byte
}

// DefaultOptions returns the options used when nil is passed to NewConn or
// NewReassembler.
func DefaultOptions() *Options {
	return &Options{
		WFTMax:             8,
		FlowControlTimeout: time.Second,
		ConsecutiveTimeout: time.Second,
		PadFrames:          true,
	}
}

func (o *Options) normalize() {
	if o.FlowControlTimeout <= 0 {
		o.FlowControlTimeout = time.Second
	}
	if o.ConsecutiveTimeout <= 0 {
		o.ConsecutiveTimeout = time.Second
	}
}

func (o *Options) pad(data []byte) []byte {
	if !o.PadFrames || len(data) >= 8 {
		return data
	}
	padded := make([]byte, 8)
	for i := range padded {
		padded[i] = o.PadByte
	}
	copy(padded, data)
	return padded
}

func (o *Options) singleFrame(payload []byte) []byte {
	data := make([]byte, 0, 8)
	data = append(data, byte(len(payload)))
	data = append(data, payload...)
	return o.pad(data)
}

func (o *Options) firstFrame(length int, chunk []byte) []byte {
	data := make([]byte, 0, 8)
	data = append(data, 0x10|byte(length>>8)&0x0F, byte(length))
	data = append(data, chunk...)
	return data
}

func (o *Options) consecutiveFrame(seq byte, chunk []byte) []byte {
	data := make([]byte, 0, 8)
	data = append(data, 0x20|seq&0x0F)
	data = append(data, chunk...)
	return o.pad(data)
}

func (o *Options) flowControl(status FlowStatus, blockSize byte, stmin time.Duration) []byte {
	return o.pad([]byte{0x30 | byte(status)&0x0F, blockSize, encodeSTmin(stmin)})
}

// encodeSTmin turns a separation time into its wire byte. Times below a
// millisecond round to the closest 100 microsecond step, times above the
// encodable maximum clamp to 127 ms.
func encodeSTmin(d time.Duration) byte {
	switch {
	case d <= 0:
		return 0x00
	case d < time.Millisecond:
		steps := (d + 50*time.Microsecond) / (100 * time.Microsecond)
		if steps < 1 {
			steps = 1
		}
		if steps > 9 {
			steps = 9
		}
		return 0xF0 | byte(steps)
	case d > 127*time.Millisecond:
		return 0x7F
	default:
		return byte(d / time.Millisecond)
	}
}

// decodeSTmin turns a wire byte into the separation time it asks for.
// Reserved values decode to the longest separation time, as ISO 15765-2
// requires of a well-behaved sender.
func decodeSTmin(b byte) time.Duration {
	switch {
	case b <= 0x7F:
		return time.Duration(b) * time.Millisecond
	case b >= 0xF1 && b <= 0xF9:
		return time.Duration(b&0x0F) * 100 * time.Microsecond
	default:
		return 127 * time.Millisecond
	}
}

type flowControlFrame struct {
	Status    FlowStatus
	BlockSize byte
	STmin     time.Duration
}

func parseFlowControl(data []byte) (*flowControlFrame, error) {
	if len(data) < 3 {
		return nil, ErrMalformedFrame
	}
	status := FlowStatus(data[0] & 0x0F)
	if status > Overflow {
		return nil, ErrMalformedFrame
	}
	return &flowControlFrame{
		Status:    status,
		BlockSize: data[1],
		STmin:     decodeSTmin(data[2]),
	}, nil
}
