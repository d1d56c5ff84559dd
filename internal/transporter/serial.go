package transporter

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

const (
	DefaultBaudRate    = 9600
	DefaultReadTimeout = 200 * time.Millisecond
)

// SerialOpener returns an Opener for a real serial device. Reads time out
// after readTimeout so the listener can observe Stop and Reopen between
// reads.
func SerialOpener(baud int, readTimeout time.Duration) Opener {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}

	return func(name string) (io.ReadCloser, error) {
		p, err := serial.Open(name, &serial.Mode{BaudRate: baud})
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", name, err)
		}
		if err := p.SetReadTimeout(readTimeout); err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to set read timeout on %s: %w", name, err)
		}
		return p, nil
	}
}

// Ports lists the serial ports present on the system.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}
