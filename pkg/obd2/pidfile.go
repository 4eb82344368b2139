package obd2

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefinitionFile is the on-disk shape for extra PID definitions. Scale
// defaults to 1, kind to unsigned. One and two byte readings decode as
// A*scale+offset and (256*A+B)*scale+offset, bitmasks keep raw bits.
type DefinitionFile struct {
	PIDs []DefinitionEntry `yaml:"pids"`
}

type DefinitionEntry struct {
	PID    uint8   `yaml:"pid"`
	Name   string  `yaml:"name"`
	Bytes  int     `yaml:"bytes"`
	Unit   string  `yaml:"unit"`
	Kind   string  `yaml:"kind"`
	Scale  float64 `yaml:"scale"`
	Offset float64 `yaml:"offset"`
}

// LoadDefinitions reads a YAML definition file and registers every entry,
// returning how many were added.
func LoadDefinitions(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var file DefinitionFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	for i, entry := range file.PIDs {
		def, err := entry.definition()
		if err != nil {
			return 0, fmt.Errorf("%s: entry %d: %w", path, i, err)
		}
		if err := RegisterDefinition(def); err != nil {
			return 0, fmt.Errorf("%s: entry %d: %w", path, i, err)
		}
	}
	return len(file.PIDs), nil
}

func (e DefinitionEntry) definition() (*Definition, error) {
	if e.Name == "" {
		return nil, fmt.Errorf("PID 0x%02X: no name", e.PID)
	}
	scale := e.Scale
	if scale == 0 {
		scale = 1
	}
	def := &Definition{PID: e.PID, Name: e.Name, Bytes: e.Bytes, Unit: e.Unit}
	switch e.Kind {
	case "bitmask":
		switch e.Bytes {
		case 1, 2, 4:
			def.Decode = bitmask(e.Bytes)
		default:
			return nil, fmt.Errorf("PID 0x%02X: bitmask needs 1, 2 or 4 bytes, not %d", e.PID, e.Bytes)
		}
	case "", "unsigned", "signed":
		kind := Unsigned
		if e.Kind == "signed" {
			kind = Signed
		}
		switch e.Bytes {
		case 1:
			def.Decode = scaled8(kind, scale, e.Offset, e.Unit)
		case 2:
			def.Decode = scaled16(kind, scale, e.Offset, e.Unit)
		default:
			return nil, fmt.Errorf("PID 0x%02X: scalar needs 1 or 2 bytes, not %d", e.PID, e.Bytes)
		}
	default:
		return nil, fmt.Errorf("PID 0x%02X: unknown kind %q", e.PID, e.Kind)
	}
	return def, nil
}
