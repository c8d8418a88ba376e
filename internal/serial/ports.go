package serial

import (
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// PJRC's USB vendor ID, reported by every Teensy board.
const teensyVID = "16C0"

// PortInfo describes one serial port on the host.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// IsTeensy reports whether the port belongs to a Teensy board.
func (p PortInfo) IsTeensy() bool {
	return p.IsUSB && strings.EqualFold(p.VID, teensyVID)
}

// ListPorts enumerates host serial ports, Teensy boards first.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, &ConnectionError{Op: "enumerate", Err: err}
	}
	return sortPorts(toPortInfo(details)), nil
}

func toPortInfo(details []*enumerator.PortDetails) []PortInfo {
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		if d == nil {
			continue
		}
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return ports
}

func sortPorts(ports []PortInfo) []PortInfo {
	sort.SliceStable(ports, func(i, j int) bool {
		ti, tj := ports[i].IsTeensy(), ports[j].IsTeensy()
		if ti != tj {
			return ti
		}
		return ports[i].Name < ports[j].Name
	})
	return ports
}
