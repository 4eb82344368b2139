// Package ecusim runs a fake emissions ECU on any transport. It answers
// the standard diagnostic services from a configurable PID table, which
// makes it the test bench for everything above the frame layer.
package ecusim

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/roffe/goobd"
	"github.com/roffe/goobd/pkg/isotp"
	"github.com/roffe/goobd/pkg/obd2"
)

const pollInterval = 20 * time.Millisecond

// Config tunes one simulated ECU.
type Config struct {
	// RequestID is the physical identifier the ECU listens on, next to
	// the broadcast identifier. Responses go out on RequestID+8.
	// Defaults to 0x7E0.
	RequestID uint32

	// VIN is reported on service 0x09 PID 0x02 when set.
	VIN string

	// Delay is artificial latency before every response.
	Delay time.Duration

	// Pend makes the ECU send that many "response pending" negatives,
	// PendGap apart, before the real answer.
	Pend    int
	PendGap time.Duration

	// ISOTP tunes segmentation for responses. Nil takes the defaults.
	ISOTP *isotp.Options
}

// Handler can take over a request before the built-in services see it.
// Returning handled=false falls through, a nil reply with handled=true
// swallows the request.
type Handler func(payload []byte) (reply []byte, handled bool)

// ECU is one simulated controller. Start it after wiring PIDs and stop it
// before closing the transport.
type ECU struct {
	tr         goobd.Transport
	requestID  uint32
	responseID uint32
	cfg        Config
	opts       isotp.Options
	re         *isotp.Reassembler

	mu      sync.Mutex
	pids    map[byte][]byte
	stored  []obd2.DTC
	pending []obd2.DTC
	handler Handler

	done chan struct{}
	wg   sync.WaitGroup
}

// New attaches a simulated ECU to a transport. The transport stays owned
// by the caller.
func New(tr goobd.Transport, cfg *Config) *ECU {
	if cfg == nil {
		cfg = &Config{}
	}
	e := &ECU{
		tr:        tr,
		requestID: cfg.RequestID,
		cfg:       *cfg,
		pids:      make(map[byte][]byte),
		done:      make(chan struct{}),
	}
	if e.requestID == 0 {
		e.requestID = 0x7E0
	}
	e.responseID = e.requestID + 8
	if cfg.ISOTP != nil {
		e.opts = *cfg.ISOTP
	} else {
		e.opts = *isotp.DefaultOptions()
	}
	e.re = isotp.NewReassembler(&e.opts)
	return e
}

// SetPID wires a service 0x01 reading. The support bitmaps at 0x00, 0x20,
// 0x40 and 0x60 are derived from the wired set unless set explicitly.
func (e *ECU) SetPID(pid byte, data ...byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pids[pid] = data
}

// SetDTCs loads the stored and pending trouble code lists.
func (e *ECU) SetDTCs(stored, pending []obd2.DTC) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stored = append([]obd2.DTC(nil), stored...)
	e.pending = append([]obd2.DTC(nil), pending...)
}

// SetHandler installs a request hook.
func (e *ECU) SetHandler(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = h
}

// Start runs the receive loop until Stop.
func (e *ECU) Start() {
	e.wg.Add(1)
	go e.loop()
}

// Stop halts the receive loop. It does not close the transport.
func (e *ECU) Stop() {
	close(e.done)
	e.wg.Wait()
}

func (e *ECU) loop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.done:
			return
		default:
		}
		frame, err := e.tr.Receive(pollInterval)
		if err != nil {
			if errors.Is(err, goobd.ErrTimeout) {
				continue
			}
			return
		}
		functional := frame.Identifier == 0x7DF
		if !functional && frame.Identifier != e.requestID {
			continue
		}
		msg, fc, err := e.re.Absorb(frame)
		if fc != nil {
			if e.tr.Send(goobd.NewFrame(e.responseID, fc)) != nil {
				return
			}
		}
		if err != nil || msg == nil {
			continue
		}
		reply := e.handle(msg.Data, functional)
		if reply == nil {
			continue
		}
		if !e.stall(reply[0]) {
			return
		}
		if e.cfg.Delay > 0 {
			time.Sleep(e.cfg.Delay)
		}
		if e.respond(reply) != nil {
			return
		}
	}
}

// stall emits the configured run of "response pending" negatives. The
// service byte reported is the one of the pending reply, minus the 0x40
// echo offset when it carries one.
func (e *ECU) stall(responseSID byte) bool {
	if e.cfg.Pend <= 0 {
		return true
	}
	sid := responseSID
	if sid >= 0x40 && sid != 0x7F {
		sid -= 0x40
	}
	for i := 0; i < e.cfg.Pend; i++ {
		if e.respond([]byte{0x7F, sid, 0x78}) != nil {
			return false
		}
		time.Sleep(e.cfg.PendGap)
	}
	return true
}

func (e *ECU) respond(payload []byte) error {
	conn, err := isotp.NewConn(e.tr, e.responseID, e.requestID, &e.opts)
	if err != nil {
		return err
	}
	return conn.Send(context.Background(), payload)
}

func (e *ECU) handle(payload []byte, functional bool) []byte {
	if len(payload) == 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handler != nil {
		if reply, handled := e.handler(payload); handled {
			return reply
		}
	}

	service := obd2.Service(payload[0])
	switch service {
	case obd2.ServiceCurrentData:
		if len(payload) < 2 {
			return e.negative(service, 0x13, functional)
		}
		pid := payload[1]
		data, ok := e.pids[pid]
		if !ok {
			if mask, derived := e.supportMask(pid); derived {
				data, ok = mask, true
			}
		}
		if !ok {
			return e.negative(service, 0x31, functional)
		}
		return append([]byte{byte(service) + 0x40, pid}, data...)

	case obd2.ServiceStoredDTCs:
		return dtcReply(0x43, e.stored)

	case obd2.ServicePendingDTCs:
		return dtcReply(0x47, e.pending)

	case obd2.ServiceClearDTCs:
		e.stored = nil
		e.pending = nil
		return []byte{0x44}

	case obd2.ServiceVehicleInfo:
		if len(payload) < 2 || payload[1] != 0x02 || e.cfg.VIN == "" {
			return e.negative(service, 0x31, functional)
		}
		reply := []byte{byte(service) + 0x40, 0x02, 0x01}
		return append(reply, e.cfg.VIN...)

	default:
		return e.negative(service, 0x11, functional)
	}
}

// negative answers a physical request with a rejection. Functional
// requests for things an ECU does not support go unanswered on a real
// bus, so the broadcast case stays silent.
func (e *ECU) negative(service obd2.Service, code byte, functional bool) []byte {
	if functional {
		return nil
	}
	return []byte{0x7F, byte(service), code}
}

// supportMask derives the bitmap for PIDs 0x00, 0x20, 0x40 and 0x60 from
// the wired PID set.
func (e *ECU) supportMask(pid byte) ([]byte, bool) {
	if pid != 0x00 && pid != 0x20 && pid != 0x40 && pid != 0x60 {
		return nil, false
	}
	var mask uint32
	for wired := range e.pids {
		if wired > pid && wired <= pid+0x20 {
			mask |= 1 << (31 - uint32(wired-pid-1))
		}
	}
	if pid < 0x60 && e.pagesBeyond(pid+0x20) {
		mask |= 1
	}
	return []byte{byte(mask >> 24), byte(mask >> 16), byte(mask >> 8), byte(mask)}, true
}

func (e *ECU) pagesBeyond(next byte) bool {
	for wired := range e.pids {
		if wired > next {
			return true
		}
	}
	return false
}

func dtcReply(sid byte, codes []obd2.DTC) []byte {
	reply := []byte{sid, byte(len(codes))}
	for _, c := range codes {
		reply = append(reply, c[0], c[1])
	}
	return reply
}
