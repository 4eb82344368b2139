package goobd

import (
	"context"
	"fmt"
	"net"
	"strings"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/candevice"
	"go.einride.tech/can/pkg/socketcan"
)

func init() {
	if err := Register(&TransportInfo{
		Name:               "SocketCAN",
		Description:        "Linux SocketCAN",
		RequiresSerialPort: false,
		New:                NewSocketCAN,
	}); err != nil {
		panic(err)
	}
}

type SocketCAN struct {
	*BaseTransport
	d          *candevice.Device
	conn       net.Conn
	tx         *socketcan.Transmitter
	rx         *socketcan.Receiver
	ownsDevice bool
}

// NewSocketCAN creates a transport that configures and binds the CAN
// interface named in cfg.Port when opened. Bringing the interface up needs
// CAP_NET_ADMIN.
func NewSocketCAN(cfg *Config) (Transport, error) {
	return &SocketCAN{
		BaseTransport: NewBaseTransport("SocketCAN", cfg),
	}, nil
}

// NewSocketCANFromConn wraps an already bound CAN socket, leaving interface
// configuration to the caller.
func NewSocketCANFromConn(conn net.Conn, cfg *Config) (Transport, error) {
	if cfg == nil {
		cfg = &Config{OnMessage: func(string) {}, OnError: func(error) {}}
	}
	return &SocketCAN{
		BaseTransport: NewBaseTransport("SocketCAN", cfg),
		conn:          conn,
	}, nil
}

func (a *SocketCAN) Open(ctx context.Context) error {
	if a.conn == nil {
		d, err := candevice.New(a.cfg.Port)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDevice, err)
		}
		if err := d.SetBitrate(a.cfg.Bitrate); err != nil {
			return fmt.Errorf("%w: set bitrate: %v", ErrDevice, err)
		}
		if err := d.SetUp(); err != nil {
			return fmt.Errorf("%w: set up: %v", ErrDevice, err)
		}
		a.d = d
		a.ownsDevice = true

		conn, err := socketcan.DialContext(ctx, "can", a.cfg.Port)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDevice, err)
		}
		a.conn = conn
	}
	a.tx = socketcan.NewTransmitter(a.conn)
	a.rx = socketcan.NewReceiver(a.conn)
	go a.recvManager()
	return nil
}

func (a *SocketCAN) Send(frame *CANFrame) error {
	if a.closed() {
		return ErrClosed
	}
	if err := frame.Validate(); err != nil {
		return err
	}
	f := can.Frame{
		ID:         frame.Identifier,
		Length:     uint8(frame.DLC()),
		IsExtended: frame.Extended,
		IsRemote:   frame.RTR,
	}
	copy(f.Data[:], frame.Data)
	if err := a.tx.TransmitFrame(context.Background(), f); err != nil {
		return fmt.Errorf("%w: %v", ErrDevice, err)
	}
	if a.cfg.Debug {
		a.cfg.OnMessage(">> " + frame.String())
	}
	return nil
}

func (a *SocketCAN) Close() error {
	a.closeBase()
	if a.ownsDevice && a.d != nil {
		defer a.d.SetDown()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

func (a *SocketCAN) recvManager() {
	for {
		if !a.rx.Receive() {
			if !a.closed() {
				if err := a.rx.Err(); err != nil {
					a.cfg.OnError(fmt.Errorf("%w: %v", ErrDevice, err))
				}
			}
			return
		}
		f := a.rx.Frame()
		if !a.accept(f.ID) {
			continue
		}
		frame := NewFrame(f.ID, f.Data[:f.Length])
		frame.Extended = f.IsExtended
		frame.RTR = f.IsRemote
		a.deliver(frame)
	}
}

// FindDevices lists the CAN network interfaces present on the system.
func FindDevices() (dev []string) {
	iFaces, _ := net.Interfaces()
	for _, i := range iFaces {
		if strings.Contains(i.Name, "can") {
			dev = append(dev, i.Name)
		}
	}
	return
}
