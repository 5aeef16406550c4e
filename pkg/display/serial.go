package display

import (
	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// DefaultBaudRate for the UART console.
const DefaultBaudRate = 115200

// Port is a serial port candidate.
type Port struct {
	Name string
}

// Ports lists the serial ports present on the host.
func Ports() ([]Port, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list serial ports")
	}
	ports := make([]Port, 0, len(names))
	for _, n := range names {
		ports = append(ports, Port{Name: n})
	}
	return ports, nil
}

// Serial is a console on a UART. Close releases the port.
type Serial struct {
	*Console
	port serial.Port
}

// OpenSerial opens name at baud 8N1 and returns a console on it.
func OpenSerial(name string, baud int) (*Serial, error) {
	if baud == 0 {
		baud = DefaultBaudRate
	}
	p, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open serial port %s", name)
	}
	return &Serial{Console: NewConsole(p), port: p}, nil
}

// Close closes the port.
func (s *Serial) Close() error {
	return s.port.Close()
}
