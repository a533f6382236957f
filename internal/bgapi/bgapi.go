// Package bgapi implements the BlueGiga BGAPI binary protocol spoken by the
// BLED112 serial dongle. A packet is a 4-byte header followed by a payload:
//
//	octet 0, bit 7    message type: 0 command/response, 1 event
//	octet 0, bits 6:3 technology type: 0000 Bluetooth Smart
//	octet 0, bits 2:0 payload length, high bits
//	octet 1           payload length, low bits
//	octet 2           class id
//	octet 3           command id
//	octet 4..n        payload, up to 2048 bytes
//
// The package frames typed commands onto a byte stream and reads packets back
// off it, leaving response/event reconciliation to the caller.
package bgapi

import (
	"fmt"

	"github.com/openmyo/myolink/internal/packet"
)

// Message classes used by this client.
const (
	ClassConnection = 0x03
	ClassAttClient  = 0x04
	ClassGAP        = 0x06
)

const (
	headerLen  = 4
	maxPayload = 2048

	typeMask  = 0x88 // message type + technology type bits
	typeEvent = 0x80
	lenHigh   = 0x07
)

// Kind distinguishes direct command responses from asynchronous events.
type Kind uint8

const (
	KindResponse Kind = iota
	KindEvent
)

func (k Kind) String() string {
	if k == KindEvent {
		return "event"
	}
	return "response"
}

// Packet is one inbound BGAPI packet.
type Packet struct {
	Kind    Kind
	Class   uint8
	Command uint8
	Payload []byte
}

// Is reports whether the packet carries the given kind, class and command id.
func (p Packet) Is(kind Kind, class, command uint8) bool {
	return p.Kind == kind && p.Class == class && p.Command == command
}

// Command is an outbound BGAPI command.
type Command interface {
	class() uint8
	command() uint8
	payload() []byte
}

// Stream is the byte transport a Client runs over. Read blocks until exactly
// n bytes are available. serial.Port satisfies it.
type Stream interface {
	Read(n int) ([]byte, error)
	Write(p []byte) (int, error)
}

// Client frames commands onto a Stream and reads packets back. It assumes it
// is the sole reader and writer of the stream.
type Client struct {
	stream Stream
}

// NewClient returns a Client over the given stream.
func NewClient(s Stream) *Client {
	return &Client{stream: s}
}

// Send frames and writes a single command.
func (c *Client) Send(cmd Command) error {
	body := cmd.payload()
	if len(body) > maxPayload {
		return fmt.Errorf("bgapi: payload of %d bytes exceeds protocol maximum", len(body))
	}

	buf := make([]byte, 0, headerLen+len(body))
	buf = packet.AppendUint8(buf, uint8(len(body)>>8)&lenHigh)
	buf = packet.AppendUint8(buf, uint8(len(body)))
	buf = packet.AppendUint8(buf, cmd.class())
	buf = packet.AppendUint8(buf, cmd.command())
	buf = packet.AppendBytes(buf, body)

	if _, err := c.stream.Write(buf); err != nil {
		return fmt.Errorf("bgapi: sending command 0x%02x/0x%02x: %w", cmd.class(), cmd.command(), err)
	}
	return nil
}

// Receive blocks for the next packet on the stream. It returns both direct
// responses and asynchronous events, in arrival order.
func (c *Client) Receive() (Packet, error) {
	hdr, err := c.stream.Read(headerLen)
	if err != nil {
		return Packet{}, fmt.Errorf("bgapi: reading packet header: %w", err)
	}

	switch hdr[0] & typeMask {
	case 0x00, typeEvent:
	default:
		return Packet{}, fmt.Errorf("bgapi: unsupported message type 0x%02x", hdr[0])
	}

	p := Packet{
		Class:   hdr[2],
		Command: hdr[3],
	}
	if hdr[0]&typeEvent != 0 {
		p.Kind = KindEvent
	}

	n := int(hdr[0]&lenHigh)<<8 | int(hdr[1])
	if n > 0 {
		p.Payload, err = c.stream.Read(n)
		if err != nil {
			return Packet{}, fmt.Errorf("bgapi: reading %d payload bytes: %w", n, err)
		}
	}
	return p, nil
}
