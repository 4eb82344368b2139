package goobd

import (
	"errors"
	"log"
	"runtime"
	"strings"

	"go.bug.st/serial/enumerator"
)

// PortInfo resolves a serial port name against the ports present on the
// system. Passing "*" prints every discovered port and returns an error so
// callers can use it as a discovery mode.
func PortInfo(portName string) (string, error) {
	if runtime.GOOS == "windows" {
		portName = strings.ToUpper(portName)
	}
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", err
	}
	if len(ports) == 0 {
		return "", errors.New("no serial ports found")
	}
	if portName == "*" {
		log.Println("discovered com ports:")
	}
	for _, port := range ports {
		if port.Name == portName || portName == "*" {
			log.Printf("port: %s\n", port.Name)
			if port.IsUSB {
				log.Printf("   USB ID      %s:%s\n", port.VID, port.PID)
				log.Printf("   USB serial  %s\n", port.SerialNumber)
			}
			if portName == "*" {
				continue
			}
			return portName, nil
		}
	}
	return "", errors.New("no device selected")
}
