package goobd

import (
	"context"
	"sync"
)

func init() {
	if err := Register(&TransportInfo{
		Name:               "Virtual",
		Description:        "In-memory bus",
		RequiresSerialPort: false,
		New: func(cfg *Config) (Transport, error) {
			return NewVirtualBus().Join(cfg), nil
		},
	}); err != nil {
		panic(err)
	}
}

// VirtualBus is an in-memory CAN bus. A frame sent by one endpoint is
// delivered to every other endpoint, like a shared physical medium.
type VirtualBus struct {
	mu        sync.Mutex
	endpoints []*Virtual
}

func NewVirtualBus() *VirtualBus {
	return &VirtualBus{}
}

// Join attaches a new endpoint to the bus. A nil cfg gets log defaults.
func (bus *VirtualBus) Join(cfg *Config) *Virtual {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.OnMessage == nil {
		cfg.OnMessage = func(string) {}
	}
	if cfg.OnError == nil {
		cfg.OnError = func(error) {}
	}
	v := &Virtual{
		BaseTransport: NewBaseTransport("Virtual", cfg),
		bus:           bus,
	}
	bus.mu.Lock()
	bus.endpoints = append(bus.endpoints, v)
	bus.mu.Unlock()
	return v
}

func (bus *VirtualBus) broadcast(from *Virtual, frame *CANFrame) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	for _, ep := range bus.endpoints {
		if ep == from || ep.closed() {
			continue
		}
		if ep.accept(frame.Identifier) {
			ep.deliver(frame)
		}
	}
}

func (bus *VirtualBus) remove(v *Virtual) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	for i, ep := range bus.endpoints {
		if ep == v {
			bus.endpoints = append(bus.endpoints[:i], bus.endpoints[i+1:]...)
			return
		}
	}
}

type Virtual struct {
	*BaseTransport
	bus *VirtualBus
}

func (v *Virtual) Open(ctx context.Context) error {
	return nil
}

// Bus returns the bus this endpoint is attached to, so further peers can
// join the same medium.
func (v *Virtual) Bus() *VirtualBus {
	return v.bus
}

func (v *Virtual) Send(frame *CANFrame) error {
	if v.closed() {
		return ErrClosed
	}
	if err := frame.Validate(); err != nil {
		return err
	}
	if v.cfg.Debug {
		v.cfg.OnMessage(">> " + frame.String())
	}
	v.bus.broadcast(v, frame)
	return nil
}

func (v *Virtual) Close() error {
	v.closeBase()
	v.bus.remove(v)
	return nil
}
