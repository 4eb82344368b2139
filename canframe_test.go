package goobd

import (
	"testing"
)

func TestCANFrameValidate(t *testing.T) {
	tests := []struct {
		name    string
		frame   *CANFrame
		wantErr bool
	}{
		{"standard", NewFrame(0x7E0, []byte{0x02, 0x01, 0x0C}), false},
		{"max standard id", NewFrame(MaxStandardID, nil), false},
		{"standard id too wide", NewFrame(MaxStandardID+1, nil), true},
		{"extended", NewExtendedFrame(0x18DB33F1, []byte{0x01}), false},
		{"max extended id", NewExtendedFrame(MaxExtendedID, nil), false},
		{"extended id too wide", NewExtendedFrame(MaxExtendedID+1, nil), true},
		{"payload too long", NewFrame(0x123, make([]byte, 9)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.frame.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewFrameCopiesData(t *testing.T) {
	src := []byte{0x01, 0x02}
	frame := NewFrame(0x123, src)
	src[0] = 0xFF
	if frame.Data[0] != 0x01 {
		t.Errorf("NewFrame() aliases the caller slice: % X", frame.Data)
	}
	if frame.DLC() != 2 {
		t.Errorf("DLC() = %d, want 2", frame.DLC())
	}
	if frame.Extended {
		t.Error("NewFrame() marked the frame extended")
	}
}

func TestNewExtendedFrame(t *testing.T) {
	frame := NewExtendedFrame(0x18DB33F1, nil)
	if !frame.Extended {
		t.Error("NewExtendedFrame() did not mark the frame extended")
	}
}

func TestOnlyPrintable(t *testing.T) {
	if got := onlyPrintable([]byte{'A', 'B', 0x01, '1'}); got != "AB.1" {
		t.Errorf("onlyPrintable() = %q, want %q", got, "AB.1")
	}
}
