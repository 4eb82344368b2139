package obd2

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates what a decoded Value holds.
type Kind int

const (
	None Kind = iota
	Unsigned
	Signed
	Bitmask
	Composite
)

// Value is one decoded diagnostic quantity. Scalar kinds carry their scaled
// physical reading in Float, Bitmask carries raw bits, Composite carries
// labelled sub-values.
type Value struct {
	Kind  Kind
	Float float64
	Bits  uint32
	Unit  string
	Label string
	Parts []Value
}

func (v Value) String() string {
	switch v.Kind {
	case None:
		return ""
	case Bitmask:
		s := fmt.Sprintf("%#x", v.Bits)
		if v.Label != "" {
			return v.Label + " " + s
		}
		return s
	case Composite:
		parts := make([]string, len(v.Parts))
		for i, p := range v.Parts {
			parts[i] = p.String()
		}
		return strings.Join(parts, ", ")
	default:
		s := strconv.FormatFloat(v.Float, 'f', -1, 64)
		if v.Unit != "" {
			s += " " + v.Unit
		}
		if v.Label != "" {
			return v.Label + " " + s
		}
		return s
	}
}
