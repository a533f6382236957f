// Package gatt implements the client side of the GATT protocol over a BGAPI
// dongle: device discovery, connection management, characteristic resolution,
// attribute reads and writes, and notification delivery.
//
// The client is single-threaded and blocking. It assumes it is the sole
// reader of the underlying transport; while it waits for the response to a
// command it keeps consuming packets, queueing attribute-value events that
// arrive interleaved so Listen can deliver them later in arrival order. It is
// not safe for concurrent use without external locking.
package gatt

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/openmyo/myolink/internal/bgapi"
)

// The dongle manages a fixed number of connection slots.
const maxConnections = 3

// Payloads written to a characteristic's client-configuration descriptor to
// control its notification stream.
var (
	EnableNotifications  = []byte{0x01, 0x00}
	DisableNotifications = []byte{0x00, 0x00}
)

// ErrNotConnected is returned when an operation requires an established
// connection and there is none.
var ErrNotConnected = errors.New("gatt: not connected")

// ErrDisconnected is returned when the device drops the connection while an
// operation is in flight. This is an expected outcome of normal operation:
// the device disconnects after inactivity, and also when the consumer falls
// behind the notification rate. Callers typically react by reconnecting.
var ErrDisconnected = errors.New("gatt: device disconnected")

// Event is a pending attribute-value notification.
type Event struct {
	Handle uint16
	Value  []byte
}

// Characteristics maps a characteristic UUID (2 or 16 bytes, keyed as a raw
// byte string) to its attribute handle. It is built by Characteristics() and
// is only valid for the connection it was resolved on.
type Characteristics map[string]uint16

// Handle looks up the attribute handle for a UUID given as raw bytes.
func (c Characteristics) Handle(uuid []byte) (uint16, bool) {
	h, ok := c[string(uuid)]
	return h, ok
}

// Transport sends commands to and receives packets from the dongle.
// bgapi.Client satisfies it.
type Transport interface {
	Send(bgapi.Command) error
	Receive() (bgapi.Packet, error)
}

// Client is a GATT protocol client holding at most one live connection.
type Client struct {
	t Transport

	connected bool
	addr      Address
	conn      uint8
	queue     []Event
}

// NewClient returns a Client over the given transport.
func NewClient(t Transport) *Client {
	return &Client{t: t}
}

// DiscoverFunc is called for every device heard during discovery with its
// RSSI, address and raw advertisement data. Returning false stops the scan.
type DiscoverFunc func(rssi int8, addr Address, data []byte) bool

// Discover scans for nearby devices, invoking fn for each advertisement
// until fn returns false, then ends the scan procedure.
func (c *Client) Discover(fn DiscoverFunc) error {
	if err := c.t.Send(bgapi.GapDiscover{Mode: bgapi.DiscoverGeneric}); err != nil {
		return err
	}
	payload, err := c.waitFor(bgapi.KindResponse, bgapi.ClassGAP, bgapi.CmdGapDiscover)
	if err != nil {
		return err
	}
	var rsp bgapi.GapDiscoverResponse
	if err := rsp.Unmarshal(payload); err != nil {
		return err
	}
	if rsp.Result != 0 {
		return fmt.Errorf("gatt: discover rejected: result 0x%04x", rsp.Result)
	}

	for {
		payload, err := c.waitFor(bgapi.KindEvent, bgapi.ClassGAP, bgapi.EvtGapScanResponse)
		if err != nil {
			return err
		}
		var ev bgapi.ScanResponseEvent
		if err := ev.Unmarshal(payload); err != nil {
			return err
		}
		if !fn(ev.RSSI, Address(ev.Sender), ev.Data) {
			break
		}
	}

	if err := c.t.Send(bgapi.GapEndProcedure{}); err != nil {
		return err
	}
	payload, err = c.waitFor(bgapi.KindResponse, bgapi.ClassGAP, bgapi.CmdGapEndProcedure)
	if err != nil {
		return err
	}
	var end bgapi.GapEndProcedureResponse
	if err := end.Unmarshal(payload); err != nil {
		return err
	}
	if end.Result != 0 {
		return fmt.Errorf("gatt: ending discovery failed: result 0x%04x", end.Result)
	}
	return nil
}

// Connect establishes a connection to the device at addr. If the dongle
// already holds a live connection to that address the slot is adopted instead
// of opening a second one. Any events queued from a prior session are
// discarded.
func (c *Client) Connect(addr Address) error {
	for slot := uint8(0); slot < maxConnections; slot++ {
		if err := c.t.Send(bgapi.ConnectionGetStatus{Connection: slot}); err != nil {
			return err
		}
		ack, err := c.waitFor(bgapi.KindResponse, bgapi.ClassConnection, bgapi.CmdConnectionGetStatus)
		if err != nil {
			return err
		}
		var probe bgapi.ConnectionGetStatusResponse
		if err := probe.Unmarshal(ack); err != nil {
			return err
		}
		if probe.Connection != slot {
			return fmt.Errorf("gatt: status probe of connection %d answered for connection %d", slot, probe.Connection)
		}
		payload, err := c.waitFor(bgapi.KindEvent, bgapi.ClassConnection, bgapi.EvtConnectionStatus)
		if err != nil {
			return err
		}
		var status bgapi.ConnectionStatusEvent
		if err := status.Unmarshal(payload); err != nil {
			return err
		}
		if status.Connected() && Address(status.Address) == addr {
			c.adopt(slot, addr)
			return nil
		}
	}

	cmd := bgapi.GapConnectDirect{
		Address:         addr,
		AddrType:        bgapi.AddressTypePublic,
		ConnIntervalMin: 6,
		ConnIntervalMax: 6,
		Timeout:         64,
		Latency:         0,
	}
	if err := c.t.Send(cmd); err != nil {
		return err
	}
	payload, err := c.waitFor(bgapi.KindResponse, bgapi.ClassGAP, bgapi.CmdGapConnectDirect)
	if err != nil {
		return err
	}
	var rsp bgapi.GapConnectDirectResponse
	if err := rsp.Unmarshal(payload); err != nil {
		return err
	}
	if rsp.Result != 0 {
		return fmt.Errorf("gatt: connection to %s failed: result 0x%04x", addr, rsp.Result)
	}

	if _, err := c.waitFor(bgapi.KindEvent, bgapi.ClassConnection, bgapi.EvtConnectionStatus); err != nil {
		return err
	}
	c.adopt(rsp.Connection, addr)
	return nil
}

// ConnectString is Connect with the address in its colon-separated form.
func (c *Client) ConnectString(s string) error {
	addr, err := ParseAddress(s)
	if err != nil {
		return err
	}
	return c.Connect(addr)
}

func (c *Client) adopt(slot uint8, addr Address) {
	c.conn = slot
	c.addr = addr
	c.connected = true
	c.queue = nil
	slog.Info("[GATT] connected", "address", addr.String(), "connection", slot)
}

// Connected reports whether a connection is currently established.
func (c *Client) Connected() bool {
	return c.connected
}

// Address returns the address of the connected device.
func (c *Client) Address() (Address, error) {
	if !c.connected {
		return Address{}, ErrNotConnected
	}
	return c.addr, nil
}

// Disconnect closes the active connection. Calling it while already
// disconnected is a no-op.
func (c *Client) Disconnect() error {
	if !c.connected {
		return nil
	}
	return c.disconnectSlot(c.conn)
}

// DisconnectAll closes every connection slot on the dongle, including ones
// opened by other clients.
func (c *Client) DisconnectAll() error {
	for slot := uint8(0); slot < maxConnections; slot++ {
		if err := c.disconnectSlot(slot); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) disconnectSlot(slot uint8) error {
	active := c.connected && c.conn == slot

	if err := c.t.Send(bgapi.ConnectionDisconnect{Connection: slot}); err != nil {
		return err
	}
	payload, err := c.waitFor(bgapi.KindResponse, bgapi.ClassConnection, bgapi.CmdConnectionDisconnect)
	if err != nil {
		// The disconnection event can outrun the acknowledgement.
		if active && errors.Is(err, ErrDisconnected) {
			return nil
		}
		return err
	}
	var rsp bgapi.ConnectionDisconnectResponse
	if err := rsp.Unmarshal(payload); err != nil {
		return err
	}
	if !active {
		// Inactive slots commonly answer "not connected"; that is success
		// for our purposes.
		return nil
	}
	if rsp.Result != 0 {
		// No disconnection event follows a rejected command.
		return fmt.Errorf("gatt: disconnect of connection %d rejected: result 0x%04x", slot, rsp.Result)
	}

	for {
		payload, err := c.waitFor(bgapi.KindEvent, bgapi.ClassConnection, bgapi.EvtConnectionDisconnected)
		if err != nil {
			if errors.Is(err, ErrDisconnected) {
				return nil
			}
			return err
		}
		var ev bgapi.DisconnectedEvent
		if err := ev.Unmarshal(payload); err != nil {
			return err
		}
		if ev.Connection == slot {
			c.reset()
			return nil
		}
	}
}

// Characteristics discovers every attribute of the connected device over the
// full handle range and returns the UUID to handle mapping. Calling it twice
// on the same connection yields identical bindings.
func (c *Client) Characteristics() (Characteristics, error) {
	if !c.connected {
		return nil, ErrNotConnected
	}

	if err := c.t.Send(bgapi.AttFindInformation{Connection: c.conn, Start: 0x0001, End: 0xFFFF}); err != nil {
		return nil, err
	}
	payload, err := c.waitFor(bgapi.KindResponse, bgapi.ClassAttClient, bgapi.CmdAttFindInformation)
	if err != nil {
		return nil, err
	}
	var rsp bgapi.AttResponse
	if err := rsp.Unmarshal(payload); err != nil {
		return nil, err
	}
	if rsp.Result != 0 {
		return nil, fmt.Errorf("gatt: find information rejected: result 0x%04x", rsp.Result)
	}

	chr := Characteristics{}
	for {
		p, err := c.t.Receive()
		if err != nil {
			return nil, err
		}
		switch {
		case p.Is(bgapi.KindEvent, bgapi.ClassAttClient, bgapi.EvtAttFindInformationFound):
			var ev bgapi.FindInformationFoundEvent
			if err := ev.Unmarshal(p.Payload); err != nil {
				return nil, err
			}
			chr[string(ev.UUID)] = ev.Handle
		case p.Is(bgapi.KindEvent, bgapi.ClassAttClient, bgapi.EvtAttProcedureCompleted):
			return chr, nil
		default:
			if err := c.route(p); err != nil {
				return nil, err
			}
		}
	}
}

// ReadAttribute reads the value of the attribute at the given handle. If the
// connection drops while the read is in flight it returns ErrDisconnected.
func (c *Client) ReadAttribute(handle uint16) ([]byte, error) {
	if !c.connected {
		return nil, ErrNotConnected
	}

	if err := c.t.Send(bgapi.AttReadByHandle{Connection: c.conn, Handle: handle}); err != nil {
		return nil, err
	}
	payload, err := c.waitFor(bgapi.KindResponse, bgapi.ClassAttClient, bgapi.CmdAttReadByHandle)
	if err != nil {
		return nil, err
	}
	var rsp bgapi.AttResponse
	if err := rsp.Unmarshal(payload); err != nil {
		return nil, err
	}
	if rsp.Result != 0 {
		return nil, fmt.Errorf("gatt: read of handle 0x%04x rejected: result 0x%04x", handle, rsp.Result)
	}

	// The value arrives as an attribute value event. Values notified for
	// other handles of this connection in the meantime are queued; anything
	// else goes through the normal routing.
	for {
		p, err := c.t.Receive()
		if err != nil {
			return nil, err
		}
		if p.Is(bgapi.KindEvent, bgapi.ClassAttClient, bgapi.EvtAttAttributeValue) {
			var ev bgapi.AttributeValueEvent
			if err := ev.Unmarshal(p.Payload); err != nil {
				return nil, err
			}
			if ev.Connection == c.conn && ev.Handle == handle {
				return ev.Value, nil
			}
		}
		if err := c.route(p); err != nil {
			return nil, err
		}
	}
}

// WriteAttribute writes a value to the attribute at the given handle and
// blocks until the device acknowledges the write.
func (c *Client) WriteAttribute(handle uint16, value []byte) error {
	if !c.connected {
		return ErrNotConnected
	}

	if err := c.t.Send(bgapi.AttWrite{Connection: c.conn, Handle: handle, Data: value}); err != nil {
		return err
	}
	payload, err := c.waitFor(bgapi.KindResponse, bgapi.ClassAttClient, bgapi.CmdAttWrite)
	if err != nil {
		return err
	}
	var rsp bgapi.AttResponse
	if err := rsp.Unmarshal(payload); err != nil {
		return err
	}
	if rsp.Result != 0 {
		return fmt.Errorf("gatt: write to handle 0x%04x rejected: result 0x%04x", handle, rsp.Result)
	}

	payload, err = c.waitFor(bgapi.KindEvent, bgapi.ClassAttClient, bgapi.EvtAttProcedureCompleted)
	if err != nil {
		return err
	}
	var done bgapi.ProcedureCompletedEvent
	if err := done.Unmarshal(payload); err != nil {
		return err
	}
	if done.Result != 0 {
		return fmt.Errorf("gatt: write to handle 0x%04x failed: result 0x%04x", handle, done.Result)
	}
	return nil
}

// ListenFunc receives one attribute-value notification: the attribute handle
// and the raw value bytes.
type ListenFunc func(handle uint16, value []byte)

// Listen delivers notifications to fn until the connection drops, at which
// point it returns ErrDisconnected. Events queued while earlier commands
// were waiting for their responses are delivered first, then live events in
// exact arrival order. Listen occupies the calling goroutine; issuing other
// calls on this client while Listen runs races for packets.
func (c *Client) Listen(fn ListenFunc) error {
	events, errf := c.Events()
	for ev := range events {
		fn(ev.Handle, ev.Value)
	}
	return errf()
}

// Events returns an iterator over attribute-value notifications plus a
// function reporting why iteration stopped. The sequence ends with
// ErrDisconnected when the connection drops; breaking out of the range loop
// ends it with a nil error, leaving unread packets on the transport. Like
// Listen, iteration occupies the calling goroutine and must not overlap
// other calls on this client.
func (c *Client) Events() (iter.Seq[Event], func() error) {
	var stopErr error
	seq := func(yield func(Event) bool) {
		if !c.connected {
			stopErr = ErrNotConnected
			return
		}

		for len(c.queue) > 0 {
			ev := c.queue[0]
			c.queue = c.queue[1:]
			if !yield(ev) {
				return
			}
		}

		for {
			p, err := c.t.Receive()
			if err != nil {
				stopErr = err
				return
			}
			if p.Is(bgapi.KindEvent, bgapi.ClassAttClient, bgapi.EvtAttAttributeValue) {
				var ev bgapi.AttributeValueEvent
				if err := ev.Unmarshal(p.Payload); err != nil {
					stopErr = err
					return
				}
				if ev.Connection == c.conn && !yield(Event{Handle: ev.Handle, Value: ev.Value}) {
					return
				}
				continue
			}
			if err := c.route(p); err != nil {
				stopErr = err
				return
			}
		}
	}
	return seq, func() error { return stopErr }
}

// waitFor consumes packets until one matches the given kind, class and
// command, routing everything else. A disconnection of the active connection
// preempts the wait with ErrDisconnected.
func (c *Client) waitFor(kind bgapi.Kind, class, command uint8) ([]byte, error) {
	for {
		p, err := c.t.Receive()
		if err != nil {
			return nil, err
		}
		if p.Is(kind, class, command) {
			return p.Payload, nil
		}
		if err := c.route(p); err != nil {
			return nil, err
		}
	}
}

// route files an out-of-band packet: attribute values are queued for Listen,
// a disconnection of the active connection resets the client and surfaces
// ErrDisconnected, anything else is dropped.
func (c *Client) route(p bgapi.Packet) error {
	switch {
	case p.Is(bgapi.KindEvent, bgapi.ClassAttClient, bgapi.EvtAttAttributeValue):
		var ev bgapi.AttributeValueEvent
		if err := ev.Unmarshal(p.Payload); err != nil {
			return err
		}
		if c.connected && ev.Connection == c.conn {
			c.enqueue(ev)
		}
	case p.Is(bgapi.KindEvent, bgapi.ClassConnection, bgapi.EvtConnectionDisconnected):
		var ev bgapi.DisconnectedEvent
		if err := ev.Unmarshal(p.Payload); err != nil {
			return err
		}
		if c.connected && ev.Connection == c.conn {
			c.reset()
			return ErrDisconnected
		}
	default:
		slog.Debug("[GATT] dropping unexpected packet",
			"kind", p.Kind.String(), "class", p.Class, "command", p.Command)
	}
	return nil
}

func (c *Client) enqueue(ev bgapi.AttributeValueEvent) {
	c.queue = append(c.queue, Event{Handle: ev.Handle, Value: ev.Value})
}

func (c *Client) reset() {
	c.connected = false
	c.addr = Address{}
	c.conn = 0
	c.queue = nil
}
