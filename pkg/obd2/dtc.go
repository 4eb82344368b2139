package obd2

import (
	"fmt"
	"strings"
)

// DTC is one diagnostic trouble code in its two-byte wire form.
type DTC [2]byte

var dtcLetters = [4]byte{'P', 'C', 'B', 'U'}

// String renders the code the way a scan tool prints it: a system letter
// from the top two bits, then four digits, P0133 for {0x01, 0x33}.
func (d DTC) String() string {
	return fmt.Sprintf("%c%d%X%02X", dtcLetters[d[0]>>6], (d[0]>>4)&0x03, d[0]&0x0F, d[1])
}

// ParseDTCs unpacks a service 0x03 or 0x07 reply body: a count byte
// followed by two bytes per code. All-zero pairs are padding and dropped.
func ParseDTCs(data []byte) ([]DTC, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("trouble code reply without a count byte")
	}
	count := int(data[0])
	pairs := data[1:]
	if len(pairs) < 2*count {
		return nil, fmt.Errorf("trouble code reply announces %d codes but carries %d bytes", count, len(pairs))
	}
	var codes []DTC
	for i := 0; i < count; i++ {
		code := DTC{pairs[2*i], pairs[2*i+1]}
		if code == (DTC{}) {
			continue
		}
		codes = append(codes, code)
	}
	return codes, nil
}

const vinLength = 17

// ParseVIN unpacks a service 0x09 PID 0x02 reply body. ECUs prefix the
// seventeen characters with a data item count and some pad with NUL
// bytes, both get stripped.
func ParseVIN(data []byte) (string, error) {
	var b strings.Builder
	for _, c := range data {
		if c >= 0x20 && c < 0x7F {
			b.WriteByte(c)
		}
	}
	vin := b.String()
	if len(vin) < vinLength {
		return "", fmt.Errorf("vehicle identification reply too short: %q", vin)
	}
	return vin[len(vin)-vinLength:], nil
}
