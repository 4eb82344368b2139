package isotp

import (
	"bytes"
	"testing"
	"time"
)

func TestSingleFramePCI(t *testing.T) {
	opts := DefaultOptions()
	got := opts.singleFrame([]byte{0x01, 0x0C})
	want := []byte{0x02, 0x01, 0x0C, 0x00, 0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("expected % X got % X", want, got)
	}
}

func TestSingleFrameNoPadding(t *testing.T) {
	opts := &Options{}
	got := opts.singleFrame([]byte{0x3E})
	want := []byte{0x01, 0x3E}
	if !bytes.Equal(got, want) {
		t.Fatalf("expected % X got % X", want, got)
	}
}

func TestFirstFramePCI(t *testing.T) {
	opts := DefaultOptions()
	chunk := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}

	got := opts.firstFrame(20, chunk)
	want := append([]byte{0x10, 0x14}, chunk...)
	if !bytes.Equal(got, want) {
		t.Fatalf("expected % X got % X", want, got)
	}

	got = opts.firstFrame(4095, chunk)
	want = append([]byte{0x1F, 0xFF}, chunk...)
	if !bytes.Equal(got, want) {
		t.Fatalf("expected % X got % X", want, got)
	}
}

func TestConsecutiveFramePCI(t *testing.T) {
	opts := &Options{}
	chunk := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}

	if got := opts.consecutiveFrame(1, chunk); got[0] != 0x21 {
		t.Fatalf("expected PCI 0x21 got 0x%02X", got[0])
	}
	if got := opts.consecutiveFrame(15, chunk); got[0] != 0x2F {
		t.Fatalf("expected PCI 0x2F got 0x%02X", got[0])
	}
	// The sequence number wraps to zero after fifteen.
	if got := opts.consecutiveFrame((15+1)&0x0F, chunk); got[0] != 0x20 {
		t.Fatalf("expected PCI 0x20 got 0x%02X", got[0])
	}
}

func TestFlowControlPCI(t *testing.T) {
	opts := &Options{}

	got := opts.flowControl(ContinueToSend, 4, 10*time.Millisecond)
	want := []byte{0x30, 0x04, 0x0A}
	if !bytes.Equal(got, want) {
		t.Fatalf("expected % X got % X", want, got)
	}

	got = opts.flowControl(Overflow, 0, 0)
	want = []byte{0x32, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("expected % X got % X", want, got)
	}
}

func TestEncodeSTmin(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want byte
	}{
		{"zero", 0, 0x00},
		{"five ms", 5 * time.Millisecond, 0x05},
		{"max ms", 127 * time.Millisecond, 0x7F},
		{"clamped", time.Second, 0x7F},
		{"300us", 300 * time.Microsecond, 0xF3},
		{"900us", 900 * time.Microsecond, 0xF9},
		{"sub 100us rounds up", 50 * time.Microsecond, 0xF1},
		{"999us stays encodable", 999 * time.Microsecond, 0xF9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := encodeSTmin(tt.d); got != tt.want {
				t.Errorf("encodeSTmin(%v) = 0x%02X, want 0x%02X", tt.d, got, tt.want)
			}
		})
	}
}

func TestDecodeSTmin(t *testing.T) {
	tests := []struct {
		name string
		b    byte
		want time.Duration
	}{
		{"zero", 0x00, 0},
		{"ten ms", 0x0A, 10 * time.Millisecond},
		{"max ms", 0x7F, 127 * time.Millisecond},
		{"100us", 0xF1, 100 * time.Microsecond},
		{"900us", 0xF9, 900 * time.Microsecond},
		{"reserved mid range", 0xAB, 127 * time.Millisecond},
		{"reserved F0", 0xF0, 127 * time.Millisecond},
		{"reserved FA", 0xFA, 127 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decodeSTmin(tt.b); got != tt.want {
				t.Errorf("decodeSTmin(0x%02X) = %v, want %v", tt.b, got, tt.want)
			}
		})
	}
}

func TestParseFlowControl(t *testing.T) {
	fc, err := parseFlowControl([]byte{0x31, 0x08, 0x14, 0x00, 0x00, 0x00, 0x00, 0x00})
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if fc.Status != Wait {
		t.Errorf("expected wait status, got %v", fc.Status)
	}
	if fc.BlockSize != 8 {
		t.Errorf("expected block size 8, got %d", fc.BlockSize)
	}
	if fc.STmin != 20*time.Millisecond {
		t.Errorf("expected 20ms STmin, got %v", fc.STmin)
	}

	if _, err := parseFlowControl([]byte{0x30, 0x00}); err == nil {
		t.Error("expected error for truncated flow control")
	}
	if _, err := parseFlowControl([]byte{0x33, 0x00, 0x00}); err == nil {
		t.Error("expected error for reserved flow status")
	}
}
