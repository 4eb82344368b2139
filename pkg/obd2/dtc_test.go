package obd2_test

import (
	"testing"

	"github.com/roffe/goobd/pkg/obd2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDTCString(t *testing.T) {
	tests := []struct {
		code obd2.DTC
		want string
	}{
		{obd2.DTC{0x01, 0x33}, "P0133"},
		{obd2.DTC{0x2B, 0xA9}, "P2BA9"},
		{obd2.DTC{0x41, 0x23}, "C0123"},
		{obd2.DTC{0x81, 0x34}, "B0134"},
		{obd2.DTC{0xC1, 0x56}, "U0156"},
		{obd2.DTC{0xF1, 0x23}, "U3123"},
		{obd2.DTC{0x00, 0x01}, "P0001"},
	}
	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.code.String())
		})
	}
}

func TestParseDTCs(t *testing.T) {
	codes, err := obd2.ParseDTCs([]byte{0x02, 0x01, 0x33, 0xC1, 0x56})
	require.NoError(t, err)
	require.Len(t, codes, 2)
	assert.Equal(t, "P0133", codes[0].String())
	assert.Equal(t, "U0156", codes[1].String())
}

func TestParseDTCsSkipsPadding(t *testing.T) {
	codes, err := obd2.ParseDTCs([]byte{0x02, 0x01, 0x33, 0x00, 0x00})
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.Equal(t, "P0133", codes[0].String())
}

func TestParseDTCsEmpty(t *testing.T) {
	codes, err := obd2.ParseDTCs([]byte{0x00})
	require.NoError(t, err)
	assert.Empty(t, codes)
}

func TestParseDTCsMalformed(t *testing.T) {
	_, err := obd2.ParseDTCs(nil)
	assert.Error(t, err)

	_, err = obd2.ParseDTCs([]byte{0x03, 0x01, 0x33})
	assert.Error(t, err)
}

func TestParseVIN(t *testing.T) {
	const vin = "W0L000043MB541503"

	got, err := obd2.ParseVIN(append([]byte{0x01}, vin...))
	require.NoError(t, err)
	assert.Equal(t, vin, got)

	// NUL padded variant some ECUs send
	padded := append([]byte{0x00, 0x00, 0x00}, vin...)
	got, err = obd2.ParseVIN(padded)
	require.NoError(t, err)
	assert.Equal(t, vin, got)
}

func TestParseVINTooShort(t *testing.T) {
	_, err := obd2.ParseVIN([]byte{0x01, 'W', '0', 'L'})
	assert.Error(t, err)
}
