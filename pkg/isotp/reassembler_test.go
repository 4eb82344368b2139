package isotp

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/roffe/goobd"
)

func TestReassembleSingleFrame(t *testing.T) {
	r := NewReassembler(nil)
	msg, fc, err := r.Absorb(goobd.NewFrame(0x7E8, []byte{0x03, 0x41, 0x0C, 0x1A, 0x00, 0x00, 0x00, 0x00}))
	if err != nil {
		t.Fatalf("absorb error: %v", err)
	}
	if fc != nil {
		t.Fatalf("unexpected flow control % X", fc)
	}
	if msg == nil {
		t.Fatal("expected a completed message")
	}
	if msg.Identifier != 0x7E8 {
		t.Errorf("expected identifier 0x7E8, got 0x%03X", msg.Identifier)
	}
	if want := []byte{0x41, 0x0C, 0x1A}; !bytes.Equal(msg.Data, want) {
		t.Errorf("expected % X got % X", want, msg.Data)
	}
}

func TestReassembleEmptySingleFrame(t *testing.T) {
	r := NewReassembler(nil)
	msg, _, err := r.Absorb(goobd.NewFrame(0x7E8, []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}))
	if err != nil {
		t.Fatalf("absorb error: %v", err)
	}
	if msg == nil || len(msg.Data) != 0 {
		t.Fatalf("expected an empty message, got %+v", msg)
	}
}

func TestReassembleMultiFrame(t *testing.T) {
	r := NewReassembler(nil)
	payload := make([]byte, 20)
	for i := range payload {
		payload[i] = byte(i)
	}

	msg, fc, err := r.Absorb(goobd.NewFrame(0x7E8, append([]byte{0x10, 0x14}, payload[:6]...)))
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if msg != nil {
		t.Fatal("message completed too early")
	}
	if fc == nil {
		t.Fatal("expected a flow control after the first frame")
	}
	if fc[0] != 0x30 || fc[1] != 0x00 || fc[2] != 0x00 {
		t.Fatalf("expected clear to send with no pacing, got % X", fc)
	}

	msg, fc, err = r.Absorb(goobd.NewFrame(0x7E8, append([]byte{0x21}, payload[6:13]...)))
	if err != nil || msg != nil || fc != nil {
		t.Fatalf("mid transfer: msg=%v fc=%v err=%v", msg, fc, err)
	}

	msg, _, err = r.Absorb(goobd.NewFrame(0x7E8, append([]byte{0x22}, payload[13:20]...)))
	if err != nil {
		t.Fatalf("last frame: %v", err)
	}
	if msg == nil {
		t.Fatal("expected a completed message")
	}
	if !bytes.Equal(msg.Data, payload) {
		t.Errorf("expected % X got % X", payload, msg.Data)
	}
	if r.Pending() != 0 {
		t.Errorf("expected no pending transfers, got %d", r.Pending())
	}
}

func TestSequenceError(t *testing.T) {
	r := NewReassembler(nil)
	if _, _, err := r.Absorb(goobd.NewFrame(0x7E8, []byte{0x10, 0x14, 0, 1, 2, 3, 4, 5})); err != nil {
		t.Fatalf("first frame: %v", err)
	}

	_, _, err := r.Absorb(goobd.NewFrame(0x7E8, []byte{0x22, 6, 7, 8, 9, 10, 11, 12}))
	var seqErr *SequenceError
	if !errors.As(err, &seqErr) {
		t.Fatalf("expected a sequence error, got %v", err)
	}
	if seqErr.Expected != 1 || seqErr.Got != 2 {
		t.Errorf("expected 1/2, got %d/%d", seqErr.Expected, seqErr.Got)
	}
	if r.Pending() != 0 {
		t.Error("failed transfer must be discarded")
	}

	// The transfer was discarded whole, a late in-order frame has nothing
	// to attach to.
	if _, _, err := r.Absorb(goobd.NewFrame(0x7E8, []byte{0x21, 6, 7, 8, 9, 10, 11, 12})); !errors.Is(err, ErrUnexpectedFrame) {
		t.Fatalf("expected unexpected frame error, got %v", err)
	}
}

func TestLastFrameExcessIgnored(t *testing.T) {
	r := NewReassembler(nil)
	payload := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8}

	if _, _, err := r.Absorb(goobd.NewFrame(0x7E8, append([]byte{0x10, 0x09}, payload[:6]...))); err != nil {
		t.Fatalf("first frame: %v", err)
	}
	msg, _, err := r.Absorb(goobd.NewFrame(0x7E8, []byte{0x21, 6, 7, 8, 0xAA, 0xAA, 0xAA, 0xAA}))
	if err != nil {
		t.Fatalf("last frame: %v", err)
	}
	if msg == nil {
		t.Fatal("expected a completed message")
	}
	if !bytes.Equal(msg.Data, payload) {
		t.Errorf("pad bytes leaked into payload: % X", msg.Data)
	}
}

func TestStrayConsecutiveFrame(t *testing.T) {
	r := NewReassembler(nil)
	_, _, err := r.Absorb(goobd.NewFrame(0x7E8, []byte{0x21, 1, 2, 3, 4, 5, 6, 7}))
	if !errors.Is(err, ErrUnexpectedFrame) {
		t.Fatalf("expected unexpected frame error, got %v", err)
	}
}

func TestBlockSizeFlowControl(t *testing.T) {
	r := NewReassembler(&Options{BlockSize: 2})
	payload := make([]byte, 27)
	for i := range payload {
		payload[i] = byte(i)
	}

	_, fc, err := r.Absorb(goobd.NewFrame(0x7E8, append([]byte{0x10, 27}, payload[:6]...)))
	if err != nil || fc == nil {
		t.Fatalf("first frame: fc=%v err=%v", fc, err)
	}
	if fc[1] != 2 {
		t.Fatalf("expected advertised block size 2, got %d", fc[1])
	}

	_, fc, err = r.Absorb(goobd.NewFrame(0x7E8, append([]byte{0x21}, payload[6:13]...)))
	if err != nil || fc != nil {
		t.Fatalf("first frame of block: fc=%v err=%v", fc, err)
	}

	// Block complete, the sender needs another clear to send.
	_, fc, err = r.Absorb(goobd.NewFrame(0x7E8, append([]byte{0x22}, payload[13:20]...)))
	if err != nil {
		t.Fatalf("second frame of block: %v", err)
	}
	if fc == nil || FlowStatus(fc[0]&0x0F) != ContinueToSend {
		t.Fatalf("expected a flow control after a full block, got % X", fc)
	}

	msg, fc, err := r.Absorb(goobd.NewFrame(0x7E8, append([]byte{0x23}, payload[20:27]...)))
	if err != nil {
		t.Fatalf("last frame: %v", err)
	}
	if fc != nil {
		t.Fatalf("no flow control due after completion, got % X", fc)
	}
	if msg == nil || !bytes.Equal(msg.Data, payload) {
		t.Fatalf("expected completed payload, got %+v", msg)
	}
}

func TestTooManyStreams(t *testing.T) {
	r := NewReassembler(nil)
	ff := []byte{0x10, 0x20, 1, 2, 3, 4, 5, 6}
	for i := uint32(0); i < maxStreams; i++ {
		if _, _, err := r.Absorb(goobd.NewFrame(0x7E8+i, ff)); err != nil {
			t.Fatalf("stream %d: %v", i, err)
		}
	}

	_, fc, err := r.Absorb(goobd.NewFrame(0x700, ff))
	if !errors.Is(err, ErrTooManyStreams) {
		t.Fatalf("expected too many streams error, got %v", err)
	}
	if fc == nil || FlowStatus(fc[0]&0x0F) != Overflow {
		t.Fatalf("expected an overflow flow control, got % X", fc)
	}
}

func TestExpireDropsStaleTransfers(t *testing.T) {
	r := NewReassembler(&Options{ConsecutiveTimeout: time.Millisecond})
	if _, _, err := r.Absorb(goobd.NewFrame(0x7E8, []byte{0x10, 0x20, 1, 2, 3, 4, 5, 6})); err != nil {
		t.Fatalf("first frame: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	dropped := r.Expire()
	if len(dropped) != 1 || dropped[0] != 0x7E8 {
		t.Fatalf("expected 0x7E8 dropped, got %v", dropped)
	}
	if r.Pending() != 0 {
		t.Errorf("expected no pending transfers, got %d", r.Pending())
	}
}

func TestStaleTransferRejectsLateFrame(t *testing.T) {
	r := NewReassembler(&Options{ConsecutiveTimeout: time.Millisecond})
	if _, _, err := r.Absorb(goobd.NewFrame(0x7E8, []byte{0x10, 0x20, 1, 2, 3, 4, 5, 6})); err != nil {
		t.Fatalf("first frame: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	_, _, err := r.Absorb(goobd.NewFrame(0x7E8, []byte{0x21, 7, 8, 9, 10, 11, 12, 13}))
	if !errors.Is(err, ErrUnexpectedFrame) {
		t.Fatalf("expected unexpected frame error, got %v", err)
	}
}
