package goobd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

const (
	// MaxStandardID is the highest 11-bit CAN identifier.
	MaxStandardID = 0x7FF
	// MaxExtendedID is the highest 29-bit CAN identifier.
	MaxExtendedID = 0x1FFFFFFF
)

type CANFrame struct {
	Identifier uint32
	Extended   bool
	RTR        bool
	Data       []byte
}

// NewFrame creates a new CANFrame and copies the data slice
func NewFrame(identifier uint32, data []byte) *CANFrame {
	d := make([]byte, len(data))
	copy(d, data)
	return &CANFrame{
		Identifier: identifier,
		Data:       d,
	}
}

// NewExtendedFrame creates a new 29-bit CANFrame and copies the data slice
func NewExtendedFrame(identifier uint32, data []byte) *CANFrame {
	frame := NewFrame(identifier, data)
	frame.Extended = true
	return frame
}

// Returns the length of the data (DLC)
func (f *CANFrame) DLC() int {
	return len(f.Data)
}

// Validate checks that the payload fits a classic CAN frame and that the
// identifier fits its declared width.
func (f *CANFrame) Validate() error {
	if len(f.Data) > 8 {
		return fmt.Errorf("frame 0x%03X: payload %d bytes exceeds 8", f.Identifier, len(f.Data))
	}
	if !f.Extended && f.Identifier > MaxStandardID {
		return fmt.Errorf("frame 0x%X: identifier exceeds 11 bits", f.Identifier)
	}
	if f.Extended && f.Identifier > MaxExtendedID {
		return fmt.Errorf("frame 0x%X: identifier exceeds 29 bits", f.Identifier)
	}
	return nil
}

var (
	yellow = color.New(color.FgHiBlue).SprintfFunc()
	red    = color.New(color.FgRed).SprintfFunc()
	green  = color.New(color.FgGreen).SprintfFunc()
)

func (f *CANFrame) String() string {
	var out strings.Builder
	out.WriteString(fmt.Sprintf("0x%03X", f.Identifier) + " || ")
	out.WriteString(strconv.Itoa(len(f.Data)) + " || ")
	var hexView strings.Builder
	for i, b := range f.Data {
		hexView.WriteString(fmt.Sprintf("%02X", b))
		if i != len(f.Data)-1 {
			hexView.WriteString(" ")
		}
	}
	out.WriteString(fmt.Sprintf("%-23s", hexView.String()))
	out.WriteString(" || ")
	out.WriteString(onlyPrintable(f.Data))
	return out.String()
}

func (f *CANFrame) ColorString() string {
	var out strings.Builder
	out.WriteString(green("0x%03X", f.Identifier) + " || ")
	out.WriteString(strconv.Itoa(len(f.Data)) + " || ")
	var hexView strings.Builder
	for i, b := range f.Data {
		hexView.WriteString(fmt.Sprintf("%02X", b))
		if i != len(f.Data)-1 {
			hexView.WriteString(" ")
		}
	}
	out.WriteString(red(fmt.Sprintf("%-23s", hexView.String())))
	out.WriteString(" || ")
	out.WriteString(yellow(onlyPrintable(f.Data)))
	return out.String()
}

func onlyPrintable(data []byte) string {
	var out strings.Builder
	for _, b := range data {
		if b < 32 || b > 127 {
			out.WriteString(".")
		} else {
			out.WriteByte(b)
		}
	}
	return out.String()
}
