package myo

import (
	"github.com/openmyo/myolink/internal/gatt"
)

type attrWrite struct {
	handle uint16
	value  []byte
}

type advertisement struct {
	rssi int8
	addr gatt.Address
	data []byte
}

// mockGatt simulates the GATT layer: scripted advertisements for Discover,
// canned attribute values for reads, recorded writes, and a scripted
// notification stream for Listen.
type mockGatt struct {
	connected      bool
	addr           gatt.Address
	advs           []advertisement
	reads          map[uint16][]byte
	writes         []attrWrite
	notifications  []gatt.Event
	disconnectAlls int
}

func (m *mockGatt) Discover(fn gatt.DiscoverFunc) error {
	for _, a := range m.advs {
		if !fn(a.rssi, a.addr, a.data) {
			break
		}
	}
	return nil
}

func (m *mockGatt) Connect(addr gatt.Address) error {
	m.connected = true
	m.addr = addr
	return nil
}

func (m *mockGatt) Connected() bool {
	return m.connected
}

func (m *mockGatt) Address() (gatt.Address, error) {
	if !m.connected {
		return gatt.Address{}, gatt.ErrNotConnected
	}
	return m.addr, nil
}

func (m *mockGatt) Disconnect() error {
	m.connected = false
	return nil
}

func (m *mockGatt) DisconnectAll() error {
	m.disconnectAlls++
	m.connected = false
	return nil
}

func (m *mockGatt) ReadAttribute(handle uint16) ([]byte, error) {
	if !m.connected {
		return nil, gatt.ErrNotConnected
	}
	v, ok := m.reads[handle]
	if !ok {
		return nil, gatt.ErrDisconnected
	}
	return v, nil
}

func (m *mockGatt) WriteAttribute(handle uint16, value []byte) error {
	if !m.connected {
		return gatt.ErrNotConnected
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	m.writes = append(m.writes, attrWrite{handle: handle, value: cp})
	return nil
}

func (m *mockGatt) Listen(fn gatt.ListenFunc) error {
	for _, ev := range m.notifications {
		fn(ev.Handle, ev.Value)
	}
	m.connected = false
	return gatt.ErrDisconnected
}
