package obd2

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/roffe/goobd"
	"github.com/roffe/goobd/pkg/isotp"
)

const (
	// Broadcast is the functional request identifier every emissions ECU
	// listens on. Physical requests go to 0x7E0 through 0x7E7 and each
	// ECU answers on its request identifier plus 8.
	Broadcast uint32 = 0x7DF

	requestBase  uint32 = 0x7E0
	responseBase uint32 = 0x7E8
	responseLast uint32 = 0x7EF
)

// pollQuantum caps one blocking receive so cancellation gets noticed
// while a long deadline is still pending.
const pollQuantum = 50 * time.Millisecond

// Options configures a Session.
type Options struct {
	// RequestID is the arbitration identifier queries go out on.
	// Defaults to Broadcast.
	RequestID uint32

	// ISOTP tunes segmentation and flow control. Nil takes the defaults.
	ISOTP *isotp.Options
}

// Session drives request/response exchanges over one transport. A session
// runs one query at a time: starting a second while the first is still in
// flight fails with ErrBusy instead of interleaving traffic.
type Session struct {
	tr        goobd.Transport
	requestID uint32
	opts      isotp.Options
	re        *isotp.Reassembler
	busy      atomic.Bool
}

// NewSession wraps an open transport. The transport stays owned by the
// caller, closing the session is closing the transport.
func NewSession(tr goobd.Transport, opts *Options) (*Session, error) {
	if tr == nil {
		return nil, goobd.ErrNilTransport
	}
	s := &Session{tr: tr, requestID: Broadcast}
	if opts != nil && opts.RequestID != 0 {
		s.requestID = opts.RequestID
	}
	if opts != nil && opts.ISOTP != nil {
		s.opts = *opts.ISOTP
	} else {
		s.opts = *isotp.DefaultOptions()
	}
	s.re = isotp.NewReassembler(&s.opts)
	return s, nil
}

// responseRange gives the identifiers that may answer a request id.
func responseRange(requestID uint32) (lo, hi uint32) {
	if requestID == Broadcast {
		return responseBase, responseLast
	}
	return requestID + 8, requestID + 8
}

// Query sends req and waits for the matching response. The timeout covers
// the whole exchange, not a single frame: however many frames arrive and
// get discarded, Query returns no later than roughly timeout after the
// request went out. An ECU answering "response pending" restarts the
// clock, that is the one case allowed to take longer.
func (s *Session) Query(ctx context.Context, req *Request, timeout time.Duration) (*Response, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.busy.Store(false)
	return s.query(ctx, req, s.requestID, timeout)
}

func (s *Session) query(ctx context.Context, req *Request, requestID uint32, timeout time.Duration) (*Response, error) {
	s.reset()
	if err := s.send(ctx, requestID, req.Encode()); err != nil {
		return nil, err
	}

	lo, hi := responseRange(requestID)
	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, &goobd.TimeoutError{Timeout: timeout, Frames: []uint32{lo}, Type: "query"}
		}
		if remaining > pollQuantum {
			remaining = pollQuantum
		}
		frame, err := s.tr.Receive(remaining)
		if err != nil {
			if errors.Is(err, goobd.ErrTimeout) {
				continue
			}
			return nil, err
		}
		if frame.Identifier < lo || frame.Identifier > hi {
			continue
		}
		msg, err := s.absorb(frame)
		if err != nil {
			return nil, err
		}
		if msg == nil {
			continue
		}
		resp, err := Decode(req, msg.Data)
		if err != nil {
			var neg *NegativeResponseError
			if errors.As(err, &neg) && neg.Pending() {
				deadline = time.Now().Add(timeout)
				continue
			}
			return nil, err
		}
		resp.Source = frame.Identifier
		return resp, nil
	}
}

// reset starts a clean exchange. Partial reassemblies left over from an
// earlier query are dropped and frames buffered before the request goes
// out are flushed, so a stale answer is never read as this exchange's.
func (s *Session) reset() {
	s.re = isotp.NewReassembler(&s.opts)
	for {
		if _, err := s.tr.Receive(0); err != nil {
			return
		}
	}
}

// absorb feeds one frame to the reassembler and sends any flow control it
// asks for back to the ECU's physical request identifier.
func (s *Session) absorb(frame *goobd.CANFrame) (*isotp.Message, error) {
	msg, fc, err := s.re.Absorb(frame)
	if fc != nil {
		if serr := s.tr.Send(goobd.NewFrame(frame.Identifier-8, fc)); serr != nil {
			return nil, serr
		}
	}
	if err != nil {
		return nil, fmt.Errorf("0x%03X: %w", frame.Identifier, err)
	}
	return msg, nil
}

// send pushes a request payload out through the segmentation layer.
// Functional requests have no flow control partner, so anything that does
// not fit a single frame must go to a physical identifier.
func (s *Session) send(ctx context.Context, requestID uint32, payload []byte) error {
	if requestID == Broadcast && len(payload) > 7 {
		return fmt.Errorf("broadcast request of %d bytes does not fit a single frame", len(payload))
	}
	conn, err := isotp.NewConn(s.tr, requestID, requestID+8, &s.opts)
	if err != nil {
		return err
	}
	return conn.Send(ctx, payload)
}

// QueryPID reads one service 0x01 PID.
func (s *Session) QueryPID(ctx context.Context, pid byte, timeout time.Duration) (*Response, error) {
	return s.Query(ctx, NewRequest(ServiceCurrentData, pid), timeout)
}

// SupportedPIDs walks the support bitmaps at 0x00, 0x20, 0x40 and 0x60
// and returns every PID the ECU claims, bitmap PIDs included. Each probe
// gets its own timeout.
func (s *Session) SupportedPIDs(ctx context.Context, timeout time.Duration) ([]byte, error) {
	var pids []byte
	for _, probe := range []byte{0x00, 0x20, 0x40, 0x60} {
		resp, err := s.QueryPID(ctx, probe, timeout)
		if err != nil {
			return nil, err
		}
		mask := resp.Value.Bits
		for i := 0; i < 32; i++ {
			if mask&(1<<(31-i)) != 0 {
				pids = append(pids, probe+byte(i)+1)
			}
		}
		// the lowest bit says whether the next bitmap exists
		if mask&1 == 0 {
			break
		}
	}
	return pids, nil
}

// ReadDTCs fetches the stored trouble codes (service 0x03).
func (s *Session) ReadDTCs(ctx context.Context, timeout time.Duration) ([]DTC, error) {
	resp, err := s.Query(ctx, NewServiceRequest(ServiceStoredDTCs), timeout)
	if err != nil {
		return nil, err
	}
	return ParseDTCs(resp.Raw)
}

// PendingDTCs fetches the codes seen this drive cycle but not yet stored
// (service 0x07).
func (s *Session) PendingDTCs(ctx context.Context, timeout time.Duration) ([]DTC, error) {
	resp, err := s.Query(ctx, NewServiceRequest(ServicePendingDTCs), timeout)
	if err != nil {
		return nil, err
	}
	return ParseDTCs(resp.Raw)
}

// ClearDTCs erases stored codes and freeze frames (service 0x04).
func (s *Session) ClearDTCs(ctx context.Context, timeout time.Duration) error {
	_, err := s.Query(ctx, NewServiceRequest(ServiceClearDTCs), timeout)
	return err
}

// VIN reads the vehicle identification number (service 0x09 PID 0x02).
func (s *Session) VIN(ctx context.Context, timeout time.Duration) (string, error) {
	resp, err := s.Query(ctx, NewRequest(ServiceVehicleInfo, 0x02), timeout)
	if err != nil {
		return "", err
	}
	return ParseVIN(resp.Raw)
}

// Broadcast sends req on the functional identifier and collects one
// response per ECU until the window closes. Replies that fail to decode
// are dropped so one misbehaving module cannot hide the rest.
func (s *Session) Broadcast(ctx context.Context, req *Request, timeout time.Duration) ([]*Response, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.busy.Store(false)

	s.reset()
	if err := s.send(ctx, Broadcast, req.Encode()); err != nil {
		return nil, err
	}

	var responses []*Response
	seen := make(map[uint32]bool)
	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if remaining > pollQuantum {
			remaining = pollQuantum
		}
		frame, err := s.tr.Receive(remaining)
		if err != nil {
			if errors.Is(err, goobd.ErrTimeout) {
				continue
			}
			return nil, err
		}
		if frame.Identifier < responseBase || frame.Identifier > responseLast || seen[frame.Identifier] {
			continue
		}
		msg, err := s.absorb(frame)
		if err != nil || msg == nil {
			continue
		}
		resp, err := Decode(req, msg.Data)
		if err != nil {
			continue
		}
		resp.Source = frame.Identifier
		seen[frame.Identifier] = true
		responses = append(responses, resp)
	}
	if len(responses) == 0 {
		return nil, ErrNoResponse
	}
	return responses, nil
}
