// Package serial_link opens the raw byte link to the meter.
package serial_link

import (
	"fmt"
	"io"

	"github.com/jacobsa/go-serial/serial"
)

// Open connects to the serial device at the given baud rate. The port
// is configured for single-byte reads with an inter-character timeout,
// so a quiet line returns control to the caller instead of blocking
// forever; the frame assembler owns the overall deadline.
func Open(device string, baud uint) (io.ReadWriteCloser, error) {
	options := serial.OpenOptions{
		PortName:              device,
		BaudRate:              baud,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		InterCharacterTimeout: 500,
	}

	port, err := serial.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return port, nil
}
