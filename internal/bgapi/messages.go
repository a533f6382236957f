package bgapi

import (
	"fmt"

	"github.com/openmyo/myolink/internal/packet"
)

// Command ids within ClassConnection.
const (
	CmdConnectionDisconnect = 0x00
	CmdConnectionGetStatus  = 0x07

	EvtConnectionStatus       = 0x00
	EvtConnectionDisconnected = 0x04
)

// Command ids within ClassAttClient.
const (
	CmdAttFindInformation = 0x03
	CmdAttReadByHandle    = 0x04
	CmdAttWrite           = 0x05

	EvtAttProcedureCompleted   = 0x01
	EvtAttGroupFound           = 0x02
	EvtAttFindInformationFound = 0x04
	EvtAttAttributeValue       = 0x05
)

// Command ids within ClassGAP.
const (
	CmdGapSetMode       = 0x01
	CmdGapDiscover      = 0x02
	CmdGapConnectDirect = 0x03
	CmdGapEndProcedure  = 0x04

	EvtGapScanResponse = 0x00
)

// GAP discover modes.
const (
	DiscoverLimited     = 0
	DiscoverGeneric     = 1
	DiscoverObservation = 2
)

// GAP address types.
const (
	AddressTypePublic = 0
	AddressTypeRandom = 1
)

// Connection status flag bits reported by ConnectionStatusEvent.
const (
	ConnFlagConnected        = 1 << 0
	ConnFlagEncrypted        = 1 << 1
	ConnFlagCompleted        = 1 << 2
	ConnFlagParametersChange = 1 << 3
)

// GapDiscover starts a GAP discovery procedure.
type GapDiscover struct {
	Mode uint8
}

func (GapDiscover) class() uint8   { return ClassGAP }
func (GapDiscover) command() uint8 { return CmdGapDiscover }
func (c GapDiscover) payload() []byte {
	return packet.AppendUint8(nil, c.Mode)
}

// GapEndProcedure ends the running GAP procedure.
type GapEndProcedure struct{}

func (GapEndProcedure) class() uint8    { return ClassGAP }
func (GapEndProcedure) command() uint8  { return CmdGapEndProcedure }
func (GapEndProcedure) payload() []byte { return nil }

// GapConnectDirect opens a connection to a single device.
type GapConnectDirect struct {
	Address         [6]byte
	AddrType        uint8
	ConnIntervalMin uint16
	ConnIntervalMax uint16
	Timeout         uint16
	Latency         uint16
}

func (GapConnectDirect) class() uint8   { return ClassGAP }
func (GapConnectDirect) command() uint8 { return CmdGapConnectDirect }
func (c GapConnectDirect) payload() []byte {
	buf := packet.AppendBytes(nil, c.Address[:])
	buf = packet.AppendUint8(buf, c.AddrType)
	buf = packet.AppendUint16(buf, c.ConnIntervalMin)
	buf = packet.AppendUint16(buf, c.ConnIntervalMax)
	buf = packet.AppendUint16(buf, c.Timeout)
	buf = packet.AppendUint16(buf, c.Latency)
	return buf
}

// ConnectionGetStatus asks the dongle for the state of one connection slot.
// The response is followed by a ConnectionStatusEvent for the slot.
type ConnectionGetStatus struct {
	Connection uint8
}

func (ConnectionGetStatus) class() uint8   { return ClassConnection }
func (ConnectionGetStatus) command() uint8 { return CmdConnectionGetStatus }
func (c ConnectionGetStatus) payload() []byte {
	return packet.AppendUint8(nil, c.Connection)
}

// ConnectionDisconnect closes one connection slot.
type ConnectionDisconnect struct {
	Connection uint8
}

func (ConnectionDisconnect) class() uint8   { return ClassConnection }
func (ConnectionDisconnect) command() uint8 { return CmdConnectionDisconnect }
func (c ConnectionDisconnect) payload() []byte {
	return packet.AppendUint8(nil, c.Connection)
}

// AttFindInformation discovers attribute information over a handle range.
type AttFindInformation struct {
	Connection uint8
	Start      uint16
	End        uint16
}

func (AttFindInformation) class() uint8   { return ClassAttClient }
func (AttFindInformation) command() uint8 { return CmdAttFindInformation }
func (c AttFindInformation) payload() []byte {
	buf := packet.AppendUint8(nil, c.Connection)
	buf = packet.AppendUint16(buf, c.Start)
	buf = packet.AppendUint16(buf, c.End)
	return buf
}

// AttReadByHandle reads a remote attribute value.
type AttReadByHandle struct {
	Connection uint8
	Handle     uint16
}

func (AttReadByHandle) class() uint8   { return ClassAttClient }
func (AttReadByHandle) command() uint8 { return CmdAttReadByHandle }
func (c AttReadByHandle) payload() []byte {
	buf := packet.AppendUint8(nil, c.Connection)
	buf = packet.AppendUint16(buf, c.Handle)
	return buf
}

// AttWrite writes a remote attribute value.
type AttWrite struct {
	Connection uint8
	Handle     uint16
	Data       []byte
}

func (AttWrite) class() uint8   { return ClassAttClient }
func (AttWrite) command() uint8 { return CmdAttWrite }
func (c AttWrite) payload() []byte {
	buf := packet.AppendUint8(nil, c.Connection)
	buf = packet.AppendUint16(buf, c.Handle)
	buf = packet.AppendUint8(buf, uint8(len(c.Data)))
	buf = packet.AppendBytes(buf, c.Data)
	return buf
}

// GapDiscoverResponse acknowledges GapDiscover.
type GapDiscoverResponse struct {
	Result uint16
}

// Unmarshal decodes the response payload.
func (r *GapDiscoverResponse) Unmarshal(p []byte) error {
	rd := packet.NewReader(p)
	r.Result = rd.Uint16()
	return wrapErr("gap discover response", rd)
}

// GapEndProcedureResponse acknowledges GapEndProcedure.
type GapEndProcedureResponse struct {
	Result uint16
}

// Unmarshal decodes the response payload.
func (r *GapEndProcedureResponse) Unmarshal(p []byte) error {
	rd := packet.NewReader(p)
	r.Result = rd.Uint16()
	return wrapErr("gap end procedure response", rd)
}

// GapConnectDirectResponse acknowledges GapConnectDirect and carries the
// connection handle the dongle assigned.
type GapConnectDirectResponse struct {
	Result     uint16
	Connection uint8
}

// Unmarshal decodes the response payload.
func (r *GapConnectDirectResponse) Unmarshal(p []byte) error {
	rd := packet.NewReader(p)
	r.Result = rd.Uint16()
	r.Connection = rd.Uint8()
	return wrapErr("gap connect direct response", rd)
}

// ConnectionGetStatusResponse acknowledges ConnectionGetStatus.
type ConnectionGetStatusResponse struct {
	Connection uint8
}

// Unmarshal decodes the response payload.
func (r *ConnectionGetStatusResponse) Unmarshal(p []byte) error {
	rd := packet.NewReader(p)
	r.Connection = rd.Uint8()
	return wrapErr("connection get status response", rd)
}

// ConnectionDisconnectResponse acknowledges ConnectionDisconnect.
type ConnectionDisconnectResponse struct {
	Connection uint8
	Result     uint16
}

// Unmarshal decodes the response payload.
func (r *ConnectionDisconnectResponse) Unmarshal(p []byte) error {
	rd := packet.NewReader(p)
	r.Connection = rd.Uint8()
	r.Result = rd.Uint16()
	return wrapErr("connection disconnect response", rd)
}

// AttResponse is the shared acknowledgement shape of the attclient commands
// (find information, read by handle, attribute write).
type AttResponse struct {
	Connection uint8
	Result     uint16
}

// Unmarshal decodes the response payload.
func (r *AttResponse) Unmarshal(p []byte) error {
	rd := packet.NewReader(p)
	r.Connection = rd.Uint8()
	r.Result = rd.Uint16()
	return wrapErr("attclient response", rd)
}

// ScanResponseEvent is one advertisement heard during discovery.
type ScanResponseEvent struct {
	RSSI       int8
	PacketType uint8
	Sender     [6]byte
	AddrType   uint8
	Bond       uint8
	Data       []byte
}

// Unmarshal decodes the event payload.
func (e *ScanResponseEvent) Unmarshal(p []byte) error {
	rd := packet.NewReader(p)
	e.RSSI = rd.Int8()
	e.PacketType = rd.Uint8()
	copy(e.Sender[:], rd.Bytes(6))
	e.AddrType = rd.Uint8()
	e.Bond = rd.Uint8()
	e.Data = rd.Bytes(int(rd.Uint8()))
	return wrapErr("gap scan response event", rd)
}

// ConnectionStatusEvent reports the state of a connection slot.
type ConnectionStatusEvent struct {
	Connection   uint8
	Flags        uint8
	Address      [6]byte
	AddrType     uint8
	ConnInterval uint16
	Timeout      uint16
	Latency      uint16
	Bonding      uint8
}

// Unmarshal decodes the event payload.
func (e *ConnectionStatusEvent) Unmarshal(p []byte) error {
	rd := packet.NewReader(p)
	e.Connection = rd.Uint8()
	e.Flags = rd.Uint8()
	copy(e.Address[:], rd.Bytes(6))
	e.AddrType = rd.Uint8()
	e.ConnInterval = rd.Uint16()
	e.Timeout = rd.Uint16()
	e.Latency = rd.Uint16()
	e.Bonding = rd.Uint8()
	return wrapErr("connection status event", rd)
}

// Connected reports whether the slot holds an established connection.
func (e ConnectionStatusEvent) Connected() bool {
	return e.Flags&ConnFlagConnected != 0
}

// DisconnectedEvent reports a closed connection slot.
type DisconnectedEvent struct {
	Connection uint8
	Reason     uint16
}

// Unmarshal decodes the event payload.
func (e *DisconnectedEvent) Unmarshal(p []byte) error {
	rd := packet.NewReader(p)
	e.Connection = rd.Uint8()
	e.Reason = rd.Uint16()
	return wrapErr("connection disconnected event", rd)
}

// FindInformationFoundEvent is one attribute discovered by AttFindInformation.
type FindInformationFoundEvent struct {
	Connection uint8
	Handle     uint16
	UUID       []byte
}

// Unmarshal decodes the event payload.
func (e *FindInformationFoundEvent) Unmarshal(p []byte) error {
	rd := packet.NewReader(p)
	e.Connection = rd.Uint8()
	e.Handle = rd.Uint16()
	e.UUID = rd.Bytes(int(rd.Uint8()))
	return wrapErr("find information found event", rd)
}

// ProcedureCompletedEvent terminates an attclient procedure.
type ProcedureCompletedEvent struct {
	Connection uint8
	Result     uint16
	Handle     uint16
}

// Unmarshal decodes the event payload.
func (e *ProcedureCompletedEvent) Unmarshal(p []byte) error {
	rd := packet.NewReader(p)
	e.Connection = rd.Uint8()
	e.Result = rd.Uint16()
	e.Handle = rd.Uint16()
	return wrapErr("procedure completed event", rd)
}

// AttributeValueEvent carries a notified or read attribute value.
type AttributeValueEvent struct {
	Connection uint8
	Handle     uint16
	Type       uint8
	Value      []byte
}

// Unmarshal decodes the event payload.
func (e *AttributeValueEvent) Unmarshal(p []byte) error {
	rd := packet.NewReader(p)
	e.Connection = rd.Uint8()
	e.Handle = rd.Uint16()
	e.Type = rd.Uint8()
	e.Value = rd.Bytes(int(rd.Uint8()))
	return wrapErr("attribute value event", rd)
}

func wrapErr(what string, rd *packet.Reader) error {
	if err := rd.Err(); err != nil {
		return fmt.Errorf("bgapi: decoding %s: %w", what, err)
	}
	return nil
}
