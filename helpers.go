package elm327

import (
	"fmt"
	"slices"
	"strings"
)

func isPortAvailable(portName string) (bool, error) {
	// Reject anything that could escape /dev
	if strings.Contains(portName, "..") {
		return false, fmt.Errorf("invalid port name: contains path traversal")
	}

	if !isValidPortPattern(portName) {
		return false, fmt.Errorf("port name doesn't match expected pattern: %s", portName)
	}

	ports, err := AvailablePorts()
	if err != nil {
		return false, err
	}
	return slices.Contains(ports, portName), nil
}

func isValidPortPattern(portName string) bool {
	// Windows: COM1-COM999
	if strings.HasPrefix(portName, "COM") && len(portName) >= 4 && len(portName) <= 6 {
		return true
	}
	// Bluetooth SPP bindings made with `rfcomm bind`
	if strings.HasPrefix(portName, "/dev/rfcomm") {
		return true
	}
	// USB adapters and macOS call-out devices
	if strings.HasPrefix(portName, "/dev/tty") || strings.HasPrefix(portName, "/dev/cu") {
		return true
	}
	return false
}
