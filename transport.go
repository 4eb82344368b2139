package goobd

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// Transport moves raw CAN frames to and from a bus. Send blocks until the
// frame is handed to the underlying device. Receive blocks up to timeout and
// fails with ErrTimeout on expiry. Implementations preserve frame ordering as
// delivered by the medium. A Transport belongs to one diagnostic session;
// sharing one across goroutines requires synchronization by the caller.
type Transport interface {
	Name() string
	Open(context.Context) error
	Send(*CANFrame) error
	Receive(timeout time.Duration) (*CANFrame, error)
	Close() error
}

type TransportInfo struct {
	Name               string
	Description        string
	RequiresSerialPort bool
	New                func(*Config) (Transport, error)
}

func (t *TransportInfo) String() string {
	return fmt.Sprintf("%s | %s, requires serial port: %v", t.Name, t.Description, t.RequiresSerialPort)
}

type Config struct {
	Debug         bool
	Port          string   // serial port or CAN interface name
	PortBaudrate  int      // serial port baudrate
	Bitrate       uint32   // CAN bus bitrate in bit/s, 500000 for OBD-II
	Library       string   // J2534 shared library path
	Filters       []uint32 // receive filters, empty lets everything through
	UseExtendedID bool
	PrintVersion  bool
	OnMessage     func(string)
	OnError       func(error)
}

var transportMap = make(map[string]*TransportInfo)

// New instantiates a registered transport by name. The transport is not
// opened; call Open on the result.
func New(transportName string, cfg *Config) (Transport, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.OnMessage == nil {
		cfg.OnMessage = func(msg string) {
			_, file, no, ok := runtime.Caller(1)
			if ok {
				fmt.Printf("%s#%d %v\n", filepath.Base(file), no, msg)
			} else {
				log.Println(msg)
			}
		}
	}
	if cfg.OnError == nil {
		cfg.OnError = func(err error) {
			log.Println(err)
		}
	}
	if cfg.Bitrate == 0 {
		cfg.Bitrate = 500000
	}
	if transport, found := transportMap[transportName]; found {
		return transport.New(cfg)
	}
	return nil, fmt.Errorf("unknown transport %q", transportName)
}

func Register(transport *TransportInfo) error {
	if _, found := transportMap[transport.Name]; !found {
		transportMap[transport.Name] = transport
		return nil
	}
	return fmt.Errorf("transport %s already registered", transport.Name)
}

func ListNames() []string {
	var out []string
	for name := range transportMap {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out
}

func List() []TransportInfo {
	var out []TransportInfo
	for _, transport := range transportMap {
		out = append(out, *transport)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out
}

// BaseTransport carries the receive buffering and close handling shared by
// every backend. Backends push incoming frames with deliver and implement
// Send against their device.
type BaseTransport struct {
	name     string
	cfg      *Config
	recvChan chan *CANFrame

	closeOnce sync.Once
	closeChan chan struct{}
}

func NewBaseTransport(name string, cfg *Config) *BaseTransport {
	return &BaseTransport{
		name:      name,
		cfg:       cfg,
		recvChan:  make(chan *CANFrame, 1024),
		closeChan: make(chan struct{}),
	}
}

// Name returns the transport name.
func (base *BaseTransport) Name() string {
	return base.name
}

// Receive returns the next buffered frame, waiting up to timeout for one to
// arrive. Frames buffered before Close are still drained first.
func (base *BaseTransport) Receive(timeout time.Duration) (*CANFrame, error) {
	select {
	case frame := <-base.recvChan:
		return frame, nil
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case frame := <-base.recvChan:
		return frame, nil
	case <-base.closeChan:
		return nil, ErrClosed
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// deliver hands an incoming frame to Receive, dropping it when the buffer is
// full so a stalled reader never blocks the device pump.
func (base *BaseTransport) deliver(frame *CANFrame) {
	select {
	case base.recvChan <- frame:
	default:
		base.cfg.OnError(ErrDroppedFrame)
	}
}

// accept applies the configured receive filters.
func (base *BaseTransport) accept(identifier uint32) bool {
	if len(base.cfg.Filters) == 0 {
		return true
	}
	for _, id := range base.cfg.Filters {
		if id == identifier {
			return true
		}
	}
	return false
}

func (base *BaseTransport) closeBase() {
	base.closeOnce.Do(func() {
		close(base.closeChan)
	})
}

func (base *BaseTransport) closed() bool {
	select {
	case <-base.closeChan:
		return true
	default:
		return false
	}
}
