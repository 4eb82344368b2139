package goobd

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestVirtualBusBroadcast(t *testing.T) {
	bus := NewVirtualBus()
	a := bus.Join(nil)
	b := bus.Join(nil)
	c := bus.Join(nil)
	defer a.Close()
	defer b.Close()
	defer c.Close()

	if err := a.Send(NewFrame(0x123, []byte{0xDE, 0xAD})); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	for name, ep := range map[string]*Virtual{"b": b, "c": c} {
		frame, err := ep.Receive(time.Second)
		if err != nil {
			t.Fatalf("%s: Receive() error = %v", name, err)
		}
		if frame.Identifier != 0x123 {
			t.Errorf("%s: Receive() identifier = 0x%03X, want 0x123", name, frame.Identifier)
		}
		if !bytes.Equal(frame.Data, []byte{0xDE, 0xAD}) {
			t.Errorf("%s: Receive() data = % X, want DE AD", name, frame.Data)
		}
	}
	// the sender never hears its own frame
	if _, err := a.Receive(50 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("sender Receive() error = %v, want ErrTimeout", err)
	}
}

func TestVirtualReceiveTimeout(t *testing.T) {
	bus := NewVirtualBus()
	a := bus.Join(nil)
	defer a.Close()

	start := time.Now()
	_, err := a.Receive(100 * time.Millisecond)
	elapsed := time.Since(start)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Receive() error = %v, want ErrTimeout", err)
	}
	if elapsed < 100*time.Millisecond {
		t.Errorf("Receive() returned after %v, want at least 100ms", elapsed)
	}
}

func TestVirtualDrainAfterClose(t *testing.T) {
	bus := NewVirtualBus()
	a := bus.Join(nil)
	b := bus.Join(nil)
	defer b.Close()

	for _, id := range []uint32{0x110, 0x111} {
		if err := b.Send(NewFrame(id, []byte{0x01})); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	// anything sent after the close never reaches the endpoint
	if err := b.Send(NewFrame(0x112, []byte{0x01})); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	for _, want := range []uint32{0x110, 0x111} {
		frame, err := a.Receive(time.Second)
		if err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
		if frame.Identifier != want {
			t.Errorf("Receive() identifier = 0x%03X, want 0x%03X", frame.Identifier, want)
		}
	}
	if _, err := a.Receive(50 * time.Millisecond); !errors.Is(err, ErrClosed) {
		t.Errorf("Receive() after drain error = %v, want ErrClosed", err)
	}
}

func TestVirtualSendAfterClose(t *testing.T) {
	bus := NewVirtualBus()
	a := bus.Join(nil)
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := a.Send(NewFrame(0x123, nil)); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after close error = %v, want ErrClosed", err)
	}
}

func TestVirtualSendInvalidFrame(t *testing.T) {
	bus := NewVirtualBus()
	a := bus.Join(nil)
	defer a.Close()
	if err := a.Send(NewFrame(MaxStandardID+1, nil)); err == nil {
		t.Error("Send() accepted an identifier wider than 11 bits")
	}
}

func TestVirtualFilters(t *testing.T) {
	bus := NewVirtualBus()
	a := bus.Join(&Config{Filters: []uint32{0x7E8}})
	b := bus.Join(nil)
	defer a.Close()
	defer b.Close()

	if err := b.Send(NewFrame(0x280, []byte{0xFF})); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := b.Send(NewFrame(0x7E8, []byte{0x41})); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	frame, err := a.Receive(time.Second)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if frame.Identifier != 0x7E8 {
		t.Errorf("Receive() identifier = 0x%03X, want 0x7E8", frame.Identifier)
	}
	if _, err := a.Receive(50 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("Receive() error = %v, want ErrTimeout after the filtered frame", err)
	}
}

func TestVirtualDropsWhenFull(t *testing.T) {
	bus := NewVirtualBus()
	var dropped int
	a := bus.Join(&Config{OnError: func(err error) {
		if errors.Is(err, ErrDroppedFrame) {
			dropped++
		}
	}})
	b := bus.Join(nil)
	defer a.Close()
	defer b.Close()

	frame := NewFrame(0x100, []byte{0x00})
	for i := 0; i < 1025; i++ {
		if err := b.Send(frame); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	if dropped != 1 {
		t.Errorf("dropped %d frames, want 1", dropped)
	}
}
