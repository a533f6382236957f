// Package serial provides blocking byte-stream access to a serial device.
// It knows nothing about the protocol carried on the stream; callers decide
// how many bytes a frame needs and read exactly that many.
package serial

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// devicePort is the subset of go.bug.st/serial.Port this package uses.
type devicePort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Port is an open serial device. Reads and writes block; there is no timeout
// surface, so callers needing bounded latency must build it above this layer.
type Port struct {
	dev  string
	port devicePort
}

// Open opens the serial device at the given path and configures it for
// 8N1 at the given baud rate.
func Open(device string, baud int) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("serial: opening %s: %w", device, err)
	}
	return &Port{dev: device, port: p}, nil
}

// Read blocks until exactly n bytes are available and returns them.
func (p *Port) Read(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(p.port, buf); err != nil {
		return nil, fmt.Errorf("serial: reading %d bytes from %s: %w", n, p.dev, err)
	}
	return buf, nil
}

// Write blocks until the whole buffer is transmitted and returns the number
// of bytes written.
func (p *Port) Write(buf []byte) (int, error) {
	n, err := p.port.Write(buf)
	if err != nil {
		return n, fmt.Errorf("serial: writing to %s: %w", p.dev, err)
	}
	if n != len(buf) {
		return n, fmt.Errorf("serial: short write to %s: %d of %d bytes", p.dev, n, len(buf))
	}
	return n, nil
}

// Close closes the underlying device. A blocked Read or Write returns with
// an error once the device is closed.
func (p *Port) Close() error {
	return p.port.Close()
}
