package obd2

import (
	"encoding/binary"
	"fmt"
)

// Definition describes one service 0x01 PID: how many data bytes the ECU
// answers with and how to turn them into a Value.
type Definition struct {
	PID    byte
	Name   string
	Bytes  int
	Unit   string
	Decode func([]byte) Value
}

// scaled8 decodes A*scale+offset.
func scaled8(kind Kind, scale, offset float64, unit string) func([]byte) Value {
	return func(data []byte) Value {
		return Value{Kind: kind, Float: float64(data[0])*scale + offset, Unit: unit}
	}
}

// scaled16 decodes (256*A+B)*scale+offset.
func scaled16(kind Kind, scale, offset float64, unit string) func([]byte) Value {
	return func(data []byte) Value {
		raw := uint16(data[0])<<8 | uint16(data[1])
		return Value{Kind: kind, Float: float64(raw)*scale + offset, Unit: unit}
	}
}

func percent8() func([]byte) Value {
	return scaled8(Unsigned, 100.0/255.0, 0, "%")
}

func trim8() func([]byte) Value {
	return scaled8(Signed, 100.0/128.0, -100, "%")
}

func temp8() func([]byte) Value {
	return scaled8(Signed, 1, -40, "°C")
}

func bitmask(n int) func([]byte) Value {
	return func(data []byte) Value {
		var bits uint32
		switch n {
		case 1:
			bits = uint32(data[0])
		case 2:
			bits = uint32(binary.BigEndian.Uint16(data))
		default:
			bits = binary.BigEndian.Uint32(data)
		}
		return Value{Kind: Bitmask, Bits: bits}
	}
}

// o2Sensor decodes the voltage/trim pair reported by PIDs 0x14-0x1B.
func o2Sensor() func([]byte) Value {
	return func(data []byte) Value {
		v := Value{Kind: Unsigned, Float: float64(data[0]) / 200.0, Unit: "V", Label: "voltage"}
		t := Value{Kind: Signed, Float: float64(data[1])*100.0/128.0 - 100, Unit: "%", Label: "short term fuel trim"}
		return Value{Kind: Composite, Parts: []Value{v, t}}
	}
}

var definitions = map[byte]*Definition{
	0x00: {PID: 0x00, Name: "Supported PIDs 0x01-0x20", Bytes: 4, Decode: bitmask(4)},
	0x01: {PID: 0x01, Name: "Monitor status since DTCs cleared", Bytes: 4, Decode: bitmask(4)},
	0x03: {PID: 0x03, Name: "Fuel system status", Bytes: 2, Decode: bitmask(2)},
	0x04: {PID: 0x04, Name: "Calculated engine load", Bytes: 1, Unit: "%", Decode: percent8()},
	0x05: {PID: 0x05, Name: "Engine coolant temperature", Bytes: 1, Unit: "°C", Decode: temp8()},
	0x06: {PID: 0x06, Name: "Short term fuel trim bank 1", Bytes: 1, Unit: "%", Decode: trim8()},
	0x07: {PID: 0x07, Name: "Long term fuel trim bank 1", Bytes: 1, Unit: "%", Decode: trim8()},
	0x08: {PID: 0x08, Name: "Short term fuel trim bank 2", Bytes: 1, Unit: "%", Decode: trim8()},
	0x09: {PID: 0x09, Name: "Long term fuel trim bank 2", Bytes: 1, Unit: "%", Decode: trim8()},
	0x0A: {PID: 0x0A, Name: "Fuel pressure", Bytes: 1, Unit: "kPa", Decode: scaled8(Unsigned, 3, 0, "kPa")},
	0x0B: {PID: 0x0B, Name: "Intake manifold pressure", Bytes: 1, Unit: "kPa", Decode: scaled8(Unsigned, 1, 0, "kPa")},
	0x0C: {PID: 0x0C, Name: "Engine speed", Bytes: 2, Unit: "rpm", Decode: scaled16(Unsigned, 0.25, 0, "rpm")},
	0x0D: {PID: 0x0D, Name: "Vehicle speed", Bytes: 1, Unit: "km/h", Decode: scaled8(Unsigned, 1, 0, "km/h")},
	0x0E: {PID: 0x0E, Name: "Timing advance", Bytes: 1, Unit: "°", Decode: scaled8(Signed, 0.5, -64, "°")},
	0x0F: {PID: 0x0F, Name: "Intake air temperature", Bytes: 1, Unit: "°C", Decode: temp8()},
	0x10: {PID: 0x10, Name: "Mass air flow rate", Bytes: 2, Unit: "g/s", Decode: scaled16(Unsigned, 0.01, 0, "g/s")},
	0x11: {PID: 0x11, Name: "Throttle position", Bytes: 1, Unit: "%", Decode: percent8()},
	0x13: {PID: 0x13, Name: "Oxygen sensors present", Bytes: 1, Decode: bitmask(1)},
	0x14: {PID: 0x14, Name: "Oxygen sensor 1", Bytes: 2, Decode: o2Sensor()},
	0x15: {PID: 0x15, Name: "Oxygen sensor 2", Bytes: 2, Decode: o2Sensor()},
	0x16: {PID: 0x16, Name: "Oxygen sensor 3", Bytes: 2, Decode: o2Sensor()},
	0x17: {PID: 0x17, Name: "Oxygen sensor 4", Bytes: 2, Decode: o2Sensor()},
	0x18: {PID: 0x18, Name: "Oxygen sensor 5", Bytes: 2, Decode: o2Sensor()},
	0x19: {PID: 0x19, Name: "Oxygen sensor 6", Bytes: 2, Decode: o2Sensor()},
	0x1A: {PID: 0x1A, Name: "Oxygen sensor 7", Bytes: 2, Decode: o2Sensor()},
	0x1B: {PID: 0x1B, Name: "Oxygen sensor 8", Bytes: 2, Decode: o2Sensor()},
	0x1C: {PID: 0x1C, Name: "OBD standard", Bytes: 1, Decode: scaled8(Unsigned, 1, 0, "")},
	0x1F: {PID: 0x1F, Name: "Run time since engine start", Bytes: 2, Unit: "s", Decode: scaled16(Unsigned, 1, 0, "s")},
	0x20: {PID: 0x20, Name: "Supported PIDs 0x21-0x40", Bytes: 4, Decode: bitmask(4)},
	0x21: {PID: 0x21, Name: "Distance with MIL on", Bytes: 2, Unit: "km", Decode: scaled16(Unsigned, 1, 0, "km")},
	0x2F: {PID: 0x2F, Name: "Fuel level", Bytes: 1, Unit: "%", Decode: percent8()},
	0x31: {PID: 0x31, Name: "Distance since codes cleared", Bytes: 2, Unit: "km", Decode: scaled16(Unsigned, 1, 0, "km")},
	0x33: {PID: 0x33, Name: "Barometric pressure", Bytes: 1, Unit: "kPa", Decode: scaled8(Unsigned, 1, 0, "kPa")},
	0x3C: {PID: 0x3C, Name: "Catalyst temperature bank 1 sensor 1", Bytes: 2, Unit: "°C", Decode: scaled16(Signed, 0.1, -40, "°C")},
	0x40: {PID: 0x40, Name: "Supported PIDs 0x41-0x60", Bytes: 4, Decode: bitmask(4)},
	0x42: {PID: 0x42, Name: "Control module voltage", Bytes: 2, Unit: "V", Decode: scaled16(Unsigned, 0.001, 0, "V")},
	0x43: {PID: 0x43, Name: "Absolute load value", Bytes: 2, Unit: "%", Decode: scaled16(Unsigned, 100.0/255.0, 0, "%")},
	0x45: {PID: 0x45, Name: "Relative throttle position", Bytes: 1, Unit: "%", Decode: percent8()},
	0x46: {PID: 0x46, Name: "Ambient air temperature", Bytes: 1, Unit: "°C", Decode: temp8()},
	0x51: {PID: 0x51, Name: "Fuel type", Bytes: 1, Decode: scaled8(Unsigned, 1, 0, "")},
	0x5C: {PID: 0x5C, Name: "Engine oil temperature", Bytes: 1, Unit: "°C", Decode: temp8()},
	0x5E: {PID: 0x5E, Name: "Fuel rate", Bytes: 2, Unit: "L/h", Decode: scaled16(Unsigned, 0.05, 0, "L/h")},
	0x60: {PID: 0x60, Name: "Supported PIDs 0x61-0x80", Bytes: 4, Decode: bitmask(4)},
}

// Lookup returns the definition for a service 0x01 PID.
func Lookup(pid byte) (*Definition, bool) {
	def, ok := definitions[pid]
	return def, ok
}

// RegisterDefinition adds or replaces a PID definition. It is meant for
// startup wiring, before any session is running queries.
func RegisterDefinition(def *Definition) error {
	if def == nil {
		return fmt.Errorf("nil definition")
	}
	if def.Name == "" {
		return fmt.Errorf("PID 0x%02X: no name", def.PID)
	}
	if def.Decode == nil {
		return fmt.Errorf("PID 0x%02X: no decode rule", def.PID)
	}
	definitions[def.PID] = def
	return nil
}
