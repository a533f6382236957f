package gatt

import (
	"io"

	"github.com/openmyo/myolink/internal/bgapi"
	"github.com/openmyo/myolink/internal/packet"
)

// mockTransport replays a scripted packet sequence and records every command
// sent. Receive fails with io.EOF when the script runs out, so a test that
// over-reads fails instead of hanging.
type mockTransport struct {
	sent   []bgapi.Command
	script []bgapi.Packet
	pos    int
}

func (m *mockTransport) Send(cmd bgapi.Command) error {
	m.sent = append(m.sent, cmd)
	return nil
}

func (m *mockTransport) Receive() (bgapi.Packet, error) {
	if m.pos >= len(m.script) {
		return bgapi.Packet{}, io.EOF
	}
	p := m.script[m.pos]
	m.pos++
	return p, nil
}

func (m *mockTransport) push(ps ...bgapi.Packet) {
	m.script = append(m.script, ps...)
}

func rsp(class, cmd uint8, payload []byte) bgapi.Packet {
	return bgapi.Packet{Kind: bgapi.KindResponse, Class: class, Command: cmd, Payload: payload}
}

func evt(class, cmd uint8, payload []byte) bgapi.Packet {
	return bgapi.Packet{Kind: bgapi.KindEvent, Class: class, Command: cmd, Payload: payload}
}

func statusPayload(conn, flags uint8, addr Address) []byte {
	buf := packet.AppendUint8(nil, conn)
	buf = packet.AppendUint8(buf, flags)
	buf = packet.AppendBytes(buf, addr[:])
	buf = packet.AppendUint8(buf, 0)  // address type
	buf = packet.AppendUint16(buf, 6) // conn interval
	buf = packet.AppendUint16(buf, 64)
	buf = packet.AppendUint16(buf, 0)
	buf = packet.AppendUint8(buf, 0xFF)
	return buf
}

func valuePayload(conn uint8, handle uint16, value []byte) []byte {
	buf := packet.AppendUint8(nil, conn)
	buf = packet.AppendUint16(buf, handle)
	buf = packet.AppendUint8(buf, 0) // value type
	buf = packet.AppendUint8(buf, uint8(len(value)))
	buf = packet.AppendBytes(buf, value)
	return buf
}

func disconnectedPayload(conn uint8, reason uint16) []byte {
	buf := packet.AppendUint8(nil, conn)
	buf = packet.AppendUint16(buf, reason)
	return buf
}

func infoFoundPayload(conn uint8, handle uint16, uuid []byte) []byte {
	buf := packet.AppendUint8(nil, conn)
	buf = packet.AppendUint16(buf, handle)
	buf = packet.AppendUint8(buf, uint8(len(uuid)))
	buf = packet.AppendBytes(buf, uuid)
	return buf
}

func completedPayload(conn uint8, result, handle uint16) []byte {
	buf := packet.AppendUint8(nil, conn)
	buf = packet.AppendUint16(buf, result)
	buf = packet.AppendUint16(buf, handle)
	return buf
}

// pushConnect scripts the full connect exchange: three idle slot probes
// followed by a successful direct connection on the given slot.
func (m *mockTransport) pushConnect(addr Address, slot uint8) {
	for i := uint8(0); i < 3; i++ {
		m.push(
			rsp(bgapi.ClassConnection, bgapi.CmdConnectionGetStatus, []byte{i}),
			evt(bgapi.ClassConnection, bgapi.EvtConnectionStatus, statusPayload(i, 0, Address{})),
		)
	}
	m.push(
		rsp(bgapi.ClassGAP, bgapi.CmdGapConnectDirect, []byte{0x00, 0x00, slot}),
		evt(bgapi.ClassConnection, bgapi.EvtConnectionStatus,
			statusPayload(slot, bgapi.ConnFlagConnected|bgapi.ConnFlagCompleted, addr)),
	)
}

// pushDisconnect scripts the acknowledged teardown of the given slot.
func (m *mockTransport) pushDisconnect(slot uint8) {
	m.push(
		rsp(bgapi.ClassConnection, bgapi.CmdConnectionDisconnect, []byte{slot, 0x00, 0x00}),
		evt(bgapi.ClassConnection, bgapi.EvtConnectionDisconnected, disconnectedPayload(slot, 0)),
	)
}
