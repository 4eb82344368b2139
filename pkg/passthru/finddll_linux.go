package passthru

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// J2534Config mirrors the json config files unix J2534 implementations such
// as Macchina-J2534 drop in ~/.passthru/.
type J2534Config struct {
	CAN         bool   `json:"CAN"`
	CANPS       bool   `json:"CAN_PS"`
	ISO15765    bool   `json:"ISO15765"`
	ISO9141     bool   `json:"ISO9141"`
	ISO14230    bool   `json:"ISO14230"`
	SCIATRANS   bool   `json:"SCI_A_TRANS"`
	SCIAENGINE  bool   `json:"SCI_A_ENGINE"`
	SCIBTRANS   bool   `json:"SCI_B_TRANS"`
	SCIBENGINE  bool   `json:"SCI_B_ENGINE"`
	J1850VPW    bool   `json:"J1850VPW"`
	J1850PWM    bool   `json:"J1850PWM"`
	SWCANPS     bool   `json:"SW_CAN_PS"`
	FUNCTIONLIB string `json:"FUNCTION_LIB"`
	NAME        string `json:"NAME"`
	VENDOR      string `json:"VENDOR"`
	COMPORT     string `json:"COM-PORT"`
}

func findConfigFiles(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".json" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// FindDLLs scans ~/.passthru/ for json config files describing installed
// J2534 shared libraries.
func FindDLLs() (_ string, libs []J2534DLL) {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	configDir := filepath.Join(home, ".passthru")
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return
	}
	configFiles, err := findConfigFiles(configDir)
	if err != nil {
		return
	}
	for _, file := range configFiles {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		var config J2534Config
		if err := json.Unmarshal(data, &config); err != nil {
			continue
		}
		if len(config.FUNCTIONLIB) > 1 && config.FUNCTIONLIB[:2] == "~/" {
			config.FUNCTIONLIB = filepath.Join(home, config.FUNCTIONLIB[2:])
		}
		if _, err := os.Stat(config.FUNCTIONLIB); err != nil || filepath.Ext(config.FUNCTIONLIB) != ".so" {
			continue
		}
		libs = append(libs, J2534DLL{
			Name:            config.VENDOR + " " + config.NAME,
			FunctionLibrary: config.FUNCTIONLIB,
			Capabilities: Capabilities{
				CAN:      config.CAN,
				CANPS:    config.CANPS,
				SWCANPS:  config.SWCANPS,
				ISO15765: config.ISO15765,
				ISO9141:  config.ISO9141,
				ISO14230: config.ISO14230,
			},
		})
	}
	return
}
