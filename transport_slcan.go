package goobd

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/albenik/bcd"
	"go.bug.st/serial"
)

func init() {
	if err := Register(&TransportInfo{
		Name:               "SLCan",
		Description:        "Lawicel SLCAN serial adapter",
		RequiresSerialPort: true,
		New:                NewSLCan,
	}); err != nil {
		panic(err)
	}
}

type SLCan struct {
	*BaseTransport
	port serial.Port
}

func NewSLCan(cfg *Config) (Transport, error) {
	if cfg.PortBaudrate == 0 {
		cfg.PortBaudrate = 115200
	}
	return &SLCan{
		BaseTransport: NewBaseTransport("SLCan", cfg),
	}, nil
}

func (sl *SLCan) Open(ctx context.Context) error {
	portName, err := PortInfo(sl.cfg.Port)
	if err != nil {
		return err
	}
	mode := &serial.Mode{
		BaudRate: sl.cfg.PortBaudrate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(portName, mode)
	if err != nil {
		return fmt.Errorf("failed to open com port %q : %v", sl.cfg.Port, err)
	}
	p.SetReadTimeout(1 * time.Millisecond)
	sl.port = p

	p.ResetOutputBuffer()
	p.ResetInputBuffer()

	go sl.recvManager(ctx)

	code, err := bitrateCode(sl.cfg.Bitrate)
	if err != nil {
		p.Close()
		return err
	}
	p.Write([]byte(code + "\r"))
	time.Sleep(10 * time.Millisecond)
	if sl.cfg.PrintVersion {
		p.Write([]byte("V\r"))
	}
	p.Write([]byte("O\r"))
	return nil
}

func bitrateCode(bitrate uint32) (string, error) {
	switch bitrate {
	case 10000:
		return "S0", nil
	case 20000:
		return "S1", nil
	case 50000:
		return "S2", nil
	case 100000:
		return "S3", nil
	case 125000:
		return "S4", nil
	case 250000:
		return "S5", nil
	case 500000:
		return "S6", nil
	case 800000:
		return "S7", nil
	case 1000000:
		return "S8", nil
	}
	return "", fmt.Errorf("unsupported bitrate: %d", bitrate)
}

func (sl *SLCan) Send(frame *CANFrame) error {
	if sl.closed() {
		return ErrClosed
	}
	if err := frame.Validate(); err != nil {
		return err
	}
	f := encodeFrame(frame)
	if _, err := sl.port.Write(f); err != nil {
		return fmt.Errorf("%w: failed to write to com port: %s, %v", ErrDevice, f, err)
	}
	if sl.cfg.Debug {
		sl.cfg.OnMessage(">> " + string(f))
	}
	return nil
}

func encodeFrame(frame *CANFrame) []byte {
	f := bytes.NewBuffer(nil)
	idb := make([]byte, 4)
	binary.BigEndian.PutUint32(idb, frame.Identifier)
	if frame.Extended {
		f.WriteString("T" + hex.EncodeToString(idb) +
			strconv.Itoa(frame.DLC()) +
			hex.EncodeToString(frame.Data) + "\x0D")
	} else {
		f.WriteString("t" + hex.EncodeToString(idb)[5:] +
			strconv.Itoa(frame.DLC()) +
			hex.EncodeToString(frame.Data) + "\x0D")
	}
	return f.Bytes()
}

func (sl *SLCan) Close() error {
	sl.closeBase()
	time.Sleep(10 * time.Millisecond)
	sl.port.Write([]byte("C\r"))
	time.Sleep(10 * time.Millisecond)
	return sl.port.Close()
}

func (sl *SLCan) recvManager(ctx context.Context) {
	buff := bytes.NewBuffer(nil)
	readBuffer := make([]byte, 8)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sl.closeChan:
			return
		default:
		}
		n, err := sl.port.Read(readBuffer)
		if err != nil {
			if !sl.closed() {
				sl.cfg.OnError(fmt.Errorf("failed to read com port: %w", err))
			}
			return
		}
		if n == 0 {
			continue
		}
		sl.parse(buff, readBuffer[:n])
	}
}

func (sl *SLCan) parse(buff *bytes.Buffer, readBuffer []byte) {
	for _, b := range readBuffer {
		if b != 0x0D {
			buff.WriteByte(b)
			continue
		}
		if buff.Len() == 0 {
			continue
		}
		by := buff.Bytes()
		switch by[0] {
		case 'F':
			if err := decodeStatus(by); err != nil {
				sl.cfg.OnError(fmt.Errorf("CAN status error: %w", err))
			}
		case 't', 'T':
			if sl.cfg.Debug {
				sl.cfg.OnMessage("<< " + buff.String())
			}
			f, err := decodeFrame(by)
			if err != nil {
				sl.cfg.OnError(fmt.Errorf("failed to decode frame: %X", buff.Bytes()))
				break
			}
			if sl.accept(f.Identifier) {
				sl.deliver(f)
			}
		case 'V':
			sl.cfg.OnMessage("H/W version " + buff.String())
		case 'z', 'Z': // last command ok
		case 0x07: // bell, last command was unknown
			sl.cfg.OnError(errors.New("unknown command"))
		default:
			sl.cfg.OnMessage("Unknown>> " + buff.String())
		}
		buff.Reset()
	}
}

func decodeFrame(buff []byte) (*CANFrame, error) {
	if buff[0] == 'T' {
		if len(buff) < 10 {
			return nil, errors.New("short extended frame")
		}
		id, err := strconv.ParseUint(string(buff[1:9]), 16, 32)
		if err != nil {
			return nil, fmt.Errorf("failed to decode identifier: %v", err)
		}
		data, err := hex.DecodeString(string(buff[10:]))
		if err != nil {
			return nil, fmt.Errorf("failed to decode frame body: %v", err)
		}
		return NewExtendedFrame(uint32(id), data), nil
	}
	if len(buff) < 5 {
		return nil, errors.New("short frame")
	}
	id, err := strconv.ParseUint(string(buff[1:4]), 16, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to decode identifier: %v", err)
	}
	data, err := hex.DecodeString(string(buff[5:]))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame body: %v", err)
	}
	return NewFrame(uint32(id), data), nil
}

/*
Bit 0 CAN receive FIFO queue full
Bit 1 CAN transmit FIFO queue full
Bit 2 Error warning (EI), see SJA1000 datasheet
Bit 3 Data Overrun (DOI), see SJA1000 datasheet
Bit 4 Not used.
Bit 5 Error Passive (EPI), see SJA1000 datasheet
Bit 6 Arbitration Lost (ALI), see SJA1000 datasheet
Bit 7 Bus Error (BEI), see SJA1000 datasheet
*/
func decodeStatus(b []byte) error {
	bs := int(bcd.ToUint16(b[1:]))
	switch true {
	case checkBitSet(bs, 1):
		return errors.New("CAN receive FIFO queue full")
	case checkBitSet(bs, 2):
		return errors.New("CAN transmit FIFO queue full")
	case checkBitSet(bs, 3):
		return errors.New("error warning (EI), see SJA1000 datasheet")
	case checkBitSet(bs, 4):
		return errors.New("data Overrun (DOI), see SJA1000 datasheet")
	case checkBitSet(bs, 5):
		return errors.New("not used")
	case checkBitSet(bs, 6):
		return errors.New("error Passive (EPI), see SJA1000 datasheet")
	case checkBitSet(bs, 7):
		return errors.New("arbitration Lost (ALI), see SJA1000 datasheet")
	case checkBitSet(bs, 8):
		return errors.New("bus Error (BEI), see SJA1000 datasheet")
	}
	return nil
}

func checkBitSet(n, k int) bool {
	return n&(1<<(k-1)) != 0
}
