package isotp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roffe/goobd"
)

// Conn sends and receives payloads over one transport using a fixed pair of
// CAN identifiers, txID for our frames and rxID for the peer's. It is not
// safe for concurrent use.
type Conn struct {
	tr   goobd.Transport
	txID uint32
	rxID uint32
	opts Options
	re   *Reassembler
}

func NewConn(tr goobd.Transport, txID, rxID uint32, opts *Options) (*Conn, error) {
	if tr == nil {
		return nil, goobd.ErrNilTransport
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	o.normalize()
	return &Conn{
		tr:   tr,
		txID: txID,
		rxID: rxID,
		opts: o,
		re:   NewReassembler(&o),
	}, nil
}

func (c *Conn) send(data []byte) error {
	return c.tr.Send(goobd.NewFrame(c.txID, data))
}

// Send transmits payload to the connection's transmit identifier, pacing
// consecutive frames by the block size and separation time the peer answers
// with. Payloads up to 7 bytes go out as a plain single frame.
func (c *Conn) Send(ctx context.Context, payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	if len(payload) <= 7 {
		return c.send(c.opts.singleFrame(payload))
	}

	if err := c.send(c.opts.firstFrame(len(payload), payload[:6])); err != nil {
		return err
	}
	remaining := payload[6:]
	seq := byte(1)
	for len(remaining) > 0 {
		fc, err := c.waitFlowControl(ctx)
		if err != nil {
			return err
		}
		inBlock := 0
		for len(remaining) > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			chunk := remaining
			if len(chunk) > 7 {
				chunk = chunk[:7]
			}
			if err := c.send(c.opts.consecutiveFrame(seq, chunk)); err != nil {
				return err
			}
			seq = (seq + 1) & 0x0F
			remaining = remaining[len(chunk):]
			if len(remaining) == 0 {
				break
			}
			inBlock++
			if fc.BlockSize > 0 && inBlock >= int(fc.BlockSize) {
				break
			}
			if fc.STmin > 0 {
				if err := sleep(ctx, fc.STmin); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// waitFlowControl reads frames until the peer's next flow control verdict,
// restarting the timeout for every wait frame up to WFTMax of them.
func (c *Conn) waitFlowControl(ctx context.Context) (*flowControlFrame, error) {
	waits := 0
	deadline := time.Now().Add(c.opts.FlowControlTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrFlowControlTimeout
		}
		frame, err := c.tr.Receive(remaining)
		if err != nil {
			if errors.Is(err, goobd.ErrTimeout) {
				return nil, ErrFlowControlTimeout
			}
			return nil, err
		}
		if frame.Identifier != c.rxID || len(frame.Data) == 0 || frame.Data[0]>>4 != typeFlow {
			continue
		}
		fc, err := parseFlowControl(frame.Data)
		if err != nil {
			return nil, err
		}
		switch fc.Status {
		case Wait:
			waits++
			if waits > c.opts.WFTMax {
				return nil, ErrWaitLimit
			}
			deadline = time.Now().Add(c.opts.FlowControlTimeout)
		case Overflow:
			return nil, ErrOverflow
		default:
			return fc, nil
		}
	}
}

// pollQuantum caps a single blocking receive so cancellation gets noticed
// while a long deadline is still pending.
const pollQuantum = 50 * time.Millisecond

// Recv waits up to timeout for a complete payload from the connection's
// receive identifier, answering first frames with flow control. Frames from
// other identifiers are ignored. Cancellation is observed between frames
// and at every poll quantum.
func (c *Conn) Recv(ctx context.Context, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, goobd.ErrTimeout
		}
		if remaining > pollQuantum {
			remaining = pollQuantum
		}
		frame, err := c.tr.Receive(remaining)
		if err != nil {
			if errors.Is(err, goobd.ErrTimeout) {
				continue
			}
			return nil, err
		}
		if frame.Identifier != c.rxID {
			continue
		}
		msg, fc, err := c.re.Absorb(frame)
		if fc != nil {
			// an overflow verdict still goes out so the peer aborts
			// instead of running into its flow control timeout
			if serr := c.send(fc); serr != nil {
				return nil, serr
			}
		}
		if err != nil {
			return nil, err
		}
		if msg != nil {
			return msg.Data, nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
