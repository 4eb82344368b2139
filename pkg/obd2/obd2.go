// Package obd2 implements the SAE J1979 diagnostic message layer: request
// encoding, response verification against the service and PID echo, and
// typed decoding through a PID definition table.
package obd2

// Service is a diagnostic service identifier (legacy term: mode).
type Service byte

const (
	ServiceCurrentData Service = 0x01
	ServiceFreezeFrame Service = 0x02
	ServiceStoredDTCs  Service = 0x03
	ServiceClearDTCs   Service = 0x04
	ServicePendingDTCs Service = 0x07
	ServiceVehicleInfo Service = 0x09

	// positiveResponse is added to the request service in a reply,
	// 0x01 -> 0x41. 0x7F marks a negative response instead.
	positiveResponse    = 0x40
	negativeResponseSID = 0x7F
)

// Request is one diagnostic request: a service, a PID and optional extra
// payload bytes. Requests do not change once built.
type Request struct {
	Service Service
	PID     byte
	Extra   []byte

	// NoPID omits the PID byte on the wire, for services that take none.
	// Services 0x03, 0x04 and 0x07 are asked bare.
	NoPID bool
}

// NewRequest builds a request for a service that addresses a PID.
func NewRequest(service Service, pid byte, extra ...byte) *Request {
	return &Request{Service: service, PID: pid, Extra: extra}
}

// NewServiceRequest builds a request for a service without a PID, such as
// reading or clearing trouble codes.
func NewServiceRequest(service Service) *Request {
	return &Request{Service: service, NoPID: true}
}

// Encode lays the request out as a transport payload.
func (r *Request) Encode() []byte {
	data := make([]byte, 0, 2+len(r.Extra))
	data = append(data, byte(r.Service))
	if !r.NoPID {
		data = append(data, r.PID)
	}
	return append(data, r.Extra...)
}

// Response is a verified and decoded reply.
type Response struct {
	Service Service
	PID     byte
	Source  uint32 // CAN identifier the answering ECU used
	Raw     []byte // data bytes after the service and PID echo
	Value   Value
}

// Decode verifies that payload answers req and decodes it. The service
// echo must be the request service plus 0x40 and the PID echo must match;
// anything else is an UnexpectedResponseError. Service 0x01 data is run
// through the PID definition table, which also pins the expected byte
// count. A 0x7F payload comes back as a NegativeResponseError.
func Decode(req *Request, payload []byte) (*Response, error) {
	if len(payload) == 0 {
		return nil, &MalformedResponseError{PID: req.PID, Want: 1, Got: 0}
	}
	if payload[0] == negativeResponseSID {
		if len(payload) < 3 {
			return nil, &MalformedResponseError{PID: req.PID, Want: 3, Got: len(payload)}
		}
		return nil, &NegativeResponseError{Service: Service(payload[1]), Code: payload[2]}
	}
	want := byte(req.Service) + positiveResponse
	if payload[0] != want {
		return nil, &UnexpectedResponseError{WantService: want, GotService: payload[0]}
	}

	resp := &Response{Service: req.Service, PID: req.PID}
	if req.NoPID {
		resp.Raw = payload[1:]
		return resp, nil
	}

	if len(payload) < 2 {
		return nil, &MalformedResponseError{PID: req.PID, Want: 2, Got: len(payload)}
	}
	if payload[1] != req.PID {
		return nil, &UnexpectedResponseError{
			WantService: want, GotService: payload[0],
			WantPID: req.PID, GotPID: payload[1],
		}
	}
	resp.Raw = payload[2:]

	if req.Service != ServiceCurrentData {
		return resp, nil
	}
	def, ok := Lookup(req.PID)
	if !ok {
		return nil, &UnknownPidError{PID: req.PID}
	}
	if def.Bytes > 0 && len(resp.Raw) != def.Bytes {
		return nil, &MalformedResponseError{PID: req.PID, Want: def.Bytes, Got: len(resp.Raw)}
	}
	resp.Value = def.Decode(resp.Raw)
	return resp, nil
}
