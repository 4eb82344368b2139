package obd2_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/roffe/goobd/pkg/obd2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDefinitions(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pids.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefinitions(t *testing.T) {
	path := writeDefinitions(t, `pids:
  - pid: 0xA0
    name: Gearbox oil temperature
    bytes: 1
    unit: °C
    kind: signed
    offset: -40
  - pid: 0xA1
    name: Rail pressure
    bytes: 2
    unit: MPa
    scale: 0.1
  - pid: 0xA2
    name: Gearbox status
    bytes: 2
    kind: bitmask
`)
	n, err := obd2.LoadDefinitions(path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	def, ok := obd2.Lookup(0xA0)
	require.True(t, ok)
	v := def.Decode([]byte{0x8C})
	assert.Equal(t, obd2.Signed, v.Kind)
	assert.InDelta(t, 100, v.Float, 1e-9)
	assert.Equal(t, "°C", v.Unit)

	def, ok = obd2.Lookup(0xA1)
	require.True(t, ok)
	v = def.Decode([]byte{0x01, 0x00})
	assert.Equal(t, obd2.Unsigned, v.Kind)
	assert.InDelta(t, 25.6, v.Float, 1e-9)

	def, ok = obd2.Lookup(0xA2)
	require.True(t, ok)
	v = def.Decode([]byte{0x12, 0x34})
	assert.Equal(t, obd2.Bitmask, v.Kind)
	assert.Equal(t, uint32(0x1234), v.Bits)
}

func TestLoadDefinitionsRejectsBadEntries(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "unknown kind",
			body: "pids:\n  - {pid: 0xB0, name: Broken, bytes: 1, kind: floating}\n",
		},
		{
			name: "scalar width",
			body: "pids:\n  - {pid: 0xB1, name: Broken, bytes: 3}\n",
		},
		{
			name: "missing name",
			body: "pids:\n  - {pid: 0xB2, bytes: 1}\n",
		},
		{
			name: "bitmask width",
			body: "pids:\n  - {pid: 0xB3, name: Broken, bytes: 3, kind: bitmask}\n",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := obd2.LoadDefinitions(writeDefinitions(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadDefinitionsMissingFile(t *testing.T) {
	_, err := obd2.LoadDefinitions(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
