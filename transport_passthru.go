//go:build linux || windows

package goobd

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/roffe/goobd/pkg/passthru"
)

func init() {
	if err := Register(&TransportInfo{
		Name:        "J2534",
		Description: "SAE J2534 PassThru",
		New:         NewPassThru,
	}); err != nil {
		panic(err)
	}
	prefix, dlls := passthru.FindDLLs()
	for i, dll := range dlls {
		name := fmt.Sprintf("%sJ2534 #%d %s", prefix, i, dll.Name)
		if err := Register(&TransportInfo{
			Name:        name,
			Description: "J2534 PassThru interface",
			New:         newPassThruLibrary(name, dll.FunctionLibrary),
		}); err != nil {
			panic(err)
		}
	}
}

// PassThru talks raw CAN through a SAE J2534 pass-thru library. Receive polls
// the device driver directly with the remaining timeout instead of running a
// pump goroutine, so the driver's own message buffering is the only queue.
type PassThru struct {
	*BaseTransport

	h *passthru.PassThru

	channelID  uint32
	deviceID   uint32
	flags      uint32
	protocol   uint32
	ownsDevice bool
}

func newPassThruLibrary(name, library string) func(cfg *Config) (Transport, error) {
	return func(cfg *Config) (Transport, error) {
		cfg.Library = library
		return newPassThru(name, cfg)
	}
}

// NewPassThru creates a J2534 transport for the library named in cfg.Library.
func NewPassThru(cfg *Config) (Transport, error) {
	return newPassThru("J2534", cfg)
}

func newPassThru(name string, cfg *Config) (Transport, error) {
	if cfg.Library == "" {
		return nil, errors.New("no J2534 library given")
	}
	return &PassThru{
		BaseTransport: NewBaseTransport(name, cfg),
		flags:         passthru.CAN_ID_BOTH,
		protocol:      passthru.CAN,
	}, nil
}

// NewPassThruChannel wraps an already connected device channel. Open still
// conditions the channel (loopback off, rx buffer cleared, filters) but the
// device and library stay owned by the caller: Close only clears the message
// filters.
func NewPassThruChannel(h *passthru.PassThru, deviceID, channelID uint32, cfg *Config) (Transport, error) {
	if h == nil {
		return nil, errors.New("nil passthru handle")
	}
	if cfg == nil {
		cfg = &Config{OnMessage: func(string) {}, OnError: func(error) {}}
	}
	return &PassThru{
		BaseTransport: NewBaseTransport("J2534", cfg),
		h:             h,
		deviceID:      deviceID,
		channelID:     channelID,
		flags:         passthru.CAN_ID_BOTH,
		protocol:      passthru.CAN,
	}, nil
}

func (pt *PassThru) Open(ctx context.Context) error {
	if pt.h == nil {
		var err error
		pt.h, err = passthru.New(pt.cfg.Library)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", pt.cfg.Library, err)
		}

		if err := pt.h.PassThruOpen("", &pt.deviceID); err != nil {
			if str, err2 := pt.h.PassThruGetLastError(); err2 == nil && str != "" {
				pt.cfg.OnMessage("PassThruOpen: " + str)
			}
			if errg := pt.h.Close(); errg != nil {
				pt.cfg.OnError(errg)
			}
			return fmt.Errorf("PassThruOpen: %w", err)
		}

		if pt.cfg.PrintVersion {
			if err := pt.printVersions(); err != nil {
				return fmt.Errorf("PassThruReadVersion: %w", err)
			}
		}

		if err := pt.h.PassThruConnect(pt.deviceID, pt.protocol, pt.flags, pt.cfg.Bitrate, &pt.channelID); err != nil {
			if errg := pt.h.PassThruClose(pt.deviceID); errg != nil {
				pt.cfg.OnError(errg)
			}
			if errg := pt.h.Close(); errg != nil {
				pt.cfg.OnError(errg)
			}
			return fmt.Errorf("PassThruConnect: %w", err)
		}
		pt.ownsDevice = true
	}

	// Loopback off so our own transmissions don't come back as rx messages.
	opts := &passthru.SCONFIG_LIST{
		NumOfParams: 1,
		ConfigPtr:   &passthru.SCONFIG{Parameter: passthru.LOOPBACK, Value: 0},
	}
	if err := pt.h.PassThruIoctl(pt.channelID, passthru.SET_CONFIG, opts, nil); err != nil {
		pt.cfg.OnError(fmt.Errorf("PassThruIoctl set loopback: %w", err))
	}

	if err := pt.h.PassThruIoctl(pt.channelID, passthru.CLEAR_RX_BUFFER, nil, nil); err != nil {
		if errg := pt.Close(); errg != nil {
			pt.cfg.OnError(errg)
		}
		return fmt.Errorf("PassThruIoctl clear rx buffer: %w", err)
	}

	if len(pt.cfg.Filters) > 0 {
		if err := pt.setupFilters(); err != nil {
			return err
		}
	} else {
		pt.allowAll()
	}
	return nil
}

func (pt *PassThru) printVersions() error {
	firmwareVersion, dllVersion, apiVersion, err := pt.h.PassThruReadVersion(pt.deviceID)
	if err != nil {
		return err
	}
	pt.cfg.OnMessage("Firmware version: " + firmwareVersion)
	pt.cfg.OnMessage("DLL version: " + dllVersion)
	pt.cfg.OnMessage("API version: " + apiVersion)
	return nil
}

func (pt *PassThru) allowAll() {
	filterID := uint32(0)
	var txflags uint32
	if pt.cfg.UseExtendedID {
		txflags = passthru.CAN_29BIT_ID
	}
	maskMsg := &passthru.PassThruMsg{
		ProtocolID:     pt.protocol,
		DataSize:       4,
		ExtraDataIndex: 4,
		TxFlags:        txflags,
	}
	patternMsg := &passthru.PassThruMsg{
		ProtocolID:     pt.protocol,
		DataSize:       4,
		ExtraDataIndex: 4,
		TxFlags:        txflags,
	}
	if err := pt.h.PassThruStartMsgFilter(pt.channelID, passthru.PASS_FILTER, maskMsg, patternMsg, nil, &filterID); err != nil {
		pt.cfg.OnError(fmt.Errorf("PassThruStartMsgFilter: %w", err))
	}
}

func (pt *PassThru) setupFilters() error {
	if len(pt.cfg.Filters) > 10 {
		return errors.New("too many filters")
	}
	var txflags uint32
	if pt.cfg.UseExtendedID {
		txflags = passthru.CAN_29BIT_ID
	}
	maskMsg := &passthru.PassThruMsg{
		ProtocolID:     pt.protocol,
		DataSize:       4,
		ExtraDataIndex: 4,
		Data:           [4128]byte{0x00, 0x00, 0xff, 0xff},
		TxFlags:        txflags,
	}
	for i, filter := range pt.cfg.Filters {
		filterID := uint32(i)
		patternMsg := &passthru.PassThruMsg{
			ProtocolID:     pt.protocol,
			DataSize:       4,
			ExtraDataIndex: 4,
			TxFlags:        txflags,
		}
		binary.BigEndian.PutUint32(patternMsg.Data[:], filter)
		if err := pt.h.PassThruStartMsgFilter(pt.channelID, passthru.PASS_FILTER, maskMsg, patternMsg, nil, &filterID); err != nil {
			return err
		}
	}
	return nil
}

func (pt *PassThru) Send(frame *CANFrame) error {
	if pt.closed() {
		return ErrClosed
	}
	if err := frame.Validate(); err != nil {
		return err
	}
	var txflags uint32
	if frame.Extended {
		txflags = passthru.CAN_29BIT_ID
	}
	msg := &passthru.PassThruMsg{
		ProtocolID:     pt.protocol,
		DataSize:       4 + uint32(len(frame.Data)),
		ExtraDataIndex: 4 + uint32(len(frame.Data)),
		TxFlags:        txflags,
	}
	binary.BigEndian.PutUint32(msg.Data[:], frame.Identifier)
	copy(msg.Data[4:], frame.Data)
	numMsg := uint32(1)
	if err := pt.h.PassThruWriteMsgs(pt.channelID, msg, &numMsg, 25); err != nil {
		if str, err2 := pt.h.PassThruGetLastError(); err2 == nil && str != "" {
			return fmt.Errorf("%w: PassThruWriteMsgs: %v: %s", ErrDevice, err, str)
		}
		return fmt.Errorf("%w: PassThruWriteMsgs: %v", ErrDevice, err)
	}
	if pt.cfg.Debug {
		pt.cfg.OnMessage(">> " + frame.String())
	}
	return nil
}

// Receive reads the next matching frame straight from the device, waiting at
// most timeout. Loopback echos, ISO15765 start indications and frames not
// matching the configured filters are skipped with the remaining time.
func (pt *PassThru) Receive(timeout time.Duration) (*CANFrame, error) {
	deadline := time.Now().Add(timeout)
	for {
		if pt.closed() {
			return nil, ErrClosed
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrTimeout
		}
		ms := uint32(remaining / time.Millisecond)
		if ms == 0 {
			ms = 1
		}
		msg := new(passthru.PassThruMsg)
		msg.ProtocolID = pt.protocol
		n, err := pt.h.PassThruReadMsg(pt.channelID, msg, ms)
		if err != nil {
			if errors.Is(err, passthru.ErrBufferEmpty) || errors.Is(err, passthru.ErrTimeout) {
				continue
			}
			return nil, fmt.Errorf("%w: PassThruReadMsg: %v", ErrDevice, err)
		}
		if n == 0 || msg.DataSize < 4 {
			continue
		}
		if msg.RxStatus&(passthru.TX_MSG_TYPE|passthru.START_OF_MESSAGE) != 0 {
			continue
		}
		identifier := binary.BigEndian.Uint32(msg.Data[:4])
		if !pt.accept(identifier) {
			continue
		}
		frame := NewFrame(identifier, msg.Data[4:msg.DataSize])
		frame.Extended = msg.RxStatus&passthru.CAN_29BIT_ID != 0
		if pt.cfg.Debug {
			pt.cfg.OnMessage("<< " + frame.String())
		}
		return frame, nil
	}
}

func (pt *PassThru) Close() error {
	pt.closeBase()
	if pt.h == nil {
		return nil
	}
	if err := pt.h.PassThruIoctl(pt.channelID, passthru.CLEAR_MSG_FILTERS, nil, nil); err != nil {
		pt.cfg.OnError(fmt.Errorf("PassThruIoctl clear filters: %w", err))
	}
	if !pt.ownsDevice {
		return nil
	}
	if err := pt.h.PassThruDisconnect(pt.channelID); err != nil {
		pt.cfg.OnError(fmt.Errorf("PassThruDisconnect: %w", err))
	}
	if err := pt.h.PassThruClose(pt.deviceID); err != nil {
		pt.cfg.OnError(fmt.Errorf("PassThruClose: %w", err))
	}
	return pt.h.Close()
}
