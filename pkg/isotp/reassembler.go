package isotp

import (
	"time"

	"github.com/roffe/goobd"
)

// Message is one payload reassembled from a single sender.
type Message struct {
	Identifier uint32
	Data       []byte
}

type stream struct {
	buf     []byte
	length  int
	seq     byte
	counted int
	last    time.Time
}

// Reassembler rebuilds payloads from incoming frames, tracking one transfer
// per CAN identifier so interleaved senders don't corrupt each other. It is
// not safe for concurrent use.
type Reassembler struct {
	opts    Options
	streams map[uint32]*stream
}

func NewReassembler(opts *Options) *Reassembler {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	o.normalize()
	return &Reassembler{
		opts:    o,
		streams: make(map[uint32]*stream),
	}
}

// Absorb consumes one incoming frame. A non-nil msg means the frame completed
// a payload. A non-nil fc is a flow control the caller must transmit back to
// the sender for the transfer to proceed. A failed transfer is discarded
// whole, Absorb never returns a partial payload.
func (r *Reassembler) Absorb(frame *goobd.CANFrame) (msg *Message, fc []byte, err error) {
	if len(frame.Data) == 0 {
		return nil, nil, ErrMalformedFrame
	}
	now := time.Now()
	switch frame.Data[0] >> 4 {
	case typeSingle:
		// A single frame replaces whatever transfer the sender had going.
		delete(r.streams, frame.Identifier)
		// A length nibble of zero is an empty payload on classic CAN.
		n := int(frame.Data[0] & 0x0F)
		if n > len(frame.Data)-1 {
			return nil, nil, ErrMalformedFrame
		}
		data := make([]byte, n)
		copy(data, frame.Data[1:1+n])
		return &Message{Identifier: frame.Identifier, Data: data}, nil, nil

	case typeFirst:
		if len(frame.Data) < 2 {
			return nil, nil, ErrMalformedFrame
		}
		length := int(frame.Data[0]&0x0F)<<8 | int(frame.Data[1])
		if length <= 7 {
			return nil, nil, ErrMalformedFrame
		}
		if _, ok := r.streams[frame.Identifier]; !ok && len(r.streams) >= maxStreams {
			r.expire(now)
			if len(r.streams) >= maxStreams {
				return nil, r.opts.flowControl(Overflow, 0, 0), ErrTooManyStreams
			}
		}
		st := &stream{
			buf:    make([]byte, 0, length),
			length: length,
			seq:    1,
			last:   now,
		}
		chunk := frame.Data[2:]
		if len(chunk) > length {
			chunk = chunk[:length]
		}
		st.buf = append(st.buf, chunk...)
		r.streams[frame.Identifier] = st
		return nil, r.opts.flowControl(ContinueToSend, r.opts.BlockSize, r.opts.STmin), nil

	case typeConsecutive:
		st, ok := r.streams[frame.Identifier]
		if !ok {
			return nil, nil, ErrUnexpectedFrame
		}
		if now.Sub(st.last) > r.opts.ConsecutiveTimeout {
			delete(r.streams, frame.Identifier)
			return nil, nil, ErrUnexpectedFrame
		}
		got := frame.Data[0] & 0x0F
		if got != st.seq {
			delete(r.streams, frame.Identifier)
			return nil, nil, &SequenceError{Expected: st.seq, Got: got}
		}
		st.seq = (st.seq + 1) & 0x0F
		st.last = now
		need := st.length - len(st.buf)
		chunk := frame.Data[1:]
		if len(chunk) > need {
			// Trailing pad bytes in the last frame.
			chunk = chunk[:need]
		}
		st.buf = append(st.buf, chunk...)
		if len(st.buf) >= st.length {
			delete(r.streams, frame.Identifier)
			return &Message{Identifier: frame.Identifier, Data: st.buf}, nil, nil
		}
		st.counted++
		if r.opts.BlockSize > 0 && st.counted%int(r.opts.BlockSize) == 0 {
			return nil, r.opts.flowControl(ContinueToSend, r.opts.BlockSize, r.opts.STmin), nil
		}
		return nil, nil, nil

	case typeFlow:
		// The sender side handles these, nothing to reassemble.
		return nil, nil, nil
	}
	return nil, nil, ErrMalformedFrame
}

// Pending reports how many partial transfers are in flight.
func (r *Reassembler) Pending() int {
	return len(r.streams)
}

// Expire drops partial transfers whose sender has gone quiet, returning the
// identifiers that were dropped.
func (r *Reassembler) Expire() []uint32 {
	return r.expire(time.Now())
}

func (r *Reassembler) expire(now time.Time) []uint32 {
	var dropped []uint32
	for id, st := range r.streams {
		if now.Sub(st.last) > r.opts.ConsecutiveTimeout {
			delete(r.streams, id)
			dropped = append(dropped, id)
		}
	}
	return dropped
}
