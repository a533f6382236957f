package myo

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/openmyo/myolink/internal/gatt"
)

var testAddr = gatt.Address{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}

func myoAdvData() []byte {
	// Vendor specific advertisement section terminated by the service UUID.
	return append([]byte{0x02, 0x01, 0x06}, ServiceUUID[:]...)
}

func TestIsMyo(t *testing.T) {
	if !IsMyo(myoAdvData()) {
		t.Error("IsMyo = false for a Myo advertisement")
	}
	if IsMyo([]byte{0x01, 0x02, 0x03}) {
		t.Error("IsMyo = true for a short foreign advertisement")
	}
	foreign := bytes.Repeat([]byte{0xAB}, 20)
	if IsMyo(foreign) {
		t.Error("IsMyo = true for a foreign advertisement")
	}
}

func TestDiscoverFiltersForeignDevices(t *testing.T) {
	m := &mockGatt{advs: []advertisement{
		{rssi: -40, addr: gatt.Address{1, 1, 1, 1, 1, 1}, data: bytes.Repeat([]byte{0x00}, 20)},
		{rssi: -50, addr: testAddr, data: myoAdvData()},
	}}
	c := &Client{gatt: m}

	var seen []gatt.Address
	err := c.Discover(func(rssi int8, addr gatt.Address, data []byte) bool {
		seen = append(seen, addr)
		return true
	})
	if err != nil {
		t.Fatalf("Discover error = %v", err)
	}
	if len(seen) != 1 || seen[0] != testAddr {
		t.Errorf("seen = %v, want only %s", seen, testAddr)
	}
	if m.disconnectAlls != 1 {
		t.Errorf("DisconnectAll called %d times, want 1", m.disconnectAlls)
	}
}

func TestConnectEnablesNotifications(t *testing.T) {
	m := &mockGatt{}
	c := &Client{gatt: m}

	if err := c.Connect(testAddr); err != nil {
		t.Fatalf("Connect error = %v", err)
	}
	if len(m.writes) != len(eventDescriptors) {
		t.Fatalf("wrote %d descriptors, want %d", len(m.writes), len(eventDescriptors))
	}
	for i, w := range m.writes {
		if w.handle != eventDescriptors[i] {
			t.Errorf("write %d went to %#x, want %#x", i, w.handle, eventDescriptors[i])
		}
		if !bytes.Equal(w.value, []byte{0x01, 0x00}) {
			t.Errorf("write %d value = % x, want 01 00", i, w.value)
		}
	}
}

func TestDisconnectDisablesNotifications(t *testing.T) {
	m := &mockGatt{connected: true, addr: testAddr}
	c := &Client{gatt: m}

	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect error = %v", err)
	}
	if len(m.writes) != len(eventDescriptors) {
		t.Fatalf("wrote %d descriptors, want %d", len(m.writes), len(eventDescriptors))
	}
	for _, w := range m.writes {
		if !bytes.Equal(w.value, []byte{0x00, 0x00}) {
			t.Errorf("descriptor %#x value = % x, want 00 00", w.handle, w.value)
		}
	}
	if m.connected {
		t.Error("still connected after Disconnect")
	}

	// Disconnecting again must not fail or write anything.
	if err := c.Disconnect(); err != nil {
		t.Errorf("second Disconnect = %v, want nil", err)
	}
	if len(m.writes) != len(eventDescriptors) {
		t.Error("second Disconnect wrote descriptors while disconnected")
	}
}

func TestCommandEncoding(t *testing.T) {
	m := &mockGatt{connected: true}
	c := &Client{gatt: m}

	if err := c.Vibrate(VibrationMedium); err != nil {
		t.Fatalf("Vibrate error = %v", err)
	}
	if err := c.SetMode(EmgRaw, ImuData, ClassifierDisabled); err != nil {
		t.Fatalf("SetMode error = %v", err)
	}
	if err := c.SetSleepMode(NeverSleep); err != nil {
		t.Fatalf("SetSleepMode error = %v", err)
	}

	want := []attrWrite{
		{handle: hndCommand, value: []byte{0x03, 0x01, 0x02}},
		{handle: hndCommand, value: []byte{0x01, 0x03, 0x03, 0x01, 0x00}},
		{handle: hndCommand, value: []byte{0x09, 0x01, 0x01}},
	}
	if len(m.writes) != len(want) {
		t.Fatalf("wrote %d commands, want %d", len(m.writes), len(want))
	}
	for i, w := range want {
		if m.writes[i].handle != w.handle || !bytes.Equal(m.writes[i].value, w.value) {
			t.Errorf("command %d = {%#x % x}, want {%#x % x}",
				i, m.writes[i].handle, m.writes[i].value, w.handle, w.value)
		}
	}
}

func TestFirmwareVersion(t *testing.T) {
	m := &mockGatt{connected: true, reads: map[uint16][]byte{
		hndFirmwareVersion: {0x01, 0x00, 0x05, 0x00, 0xC2, 0x07, 0x02, 0x00},
	}}
	c := &Client{gatt: m}

	v, err := c.FirmwareVersion()
	if err != nil {
		t.Fatalf("FirmwareVersion error = %v", err)
	}
	if v.Major != 1 || v.Minor != 5 || v.Patch != 1986 || v.HardwareRev != 2 {
		t.Errorf("version = %+v, want 1.5.1986 rev 2", v)
	}
	if v.String() != "1.5.1986" {
		t.Errorf("String() = %q, want 1.5.1986", v.String())
	}
}

func TestDeviceName(t *testing.T) {
	m := &mockGatt{connected: true, reads: map[uint16][]byte{
		hndDeviceName: []byte("Myo"),
	}}
	c := &Client{gatt: m}

	name, err := c.DeviceName()
	if err != nil {
		t.Fatalf("DeviceName error = %v", err)
	}
	if name != "Myo" {
		t.Errorf("DeviceName = %q, want Myo", name)
	}
}

func TestDecodeEmg(t *testing.T) {
	p := []byte{
		0x01, 0xFF, 0x03, 0x04, 0x05, 0x06, 0x07, 0x80,
		0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18,
	}
	first, second, err := decodeEmg(p)
	if err != nil {
		t.Fatalf("decodeEmg error = %v", err)
	}
	if first[0] != 1 || first[1] != -1 || first[7] != -128 {
		t.Errorf("first = %v", first)
	}
	if second[0] != 0x11 || second[7] != 0x18 {
		t.Errorf("second = %v", second)
	}

	if _, _, err := decodeEmg(p[:15]); err == nil {
		t.Error("decodeEmg should reject a short packet")
	}
}

func TestDecodeImu(t *testing.T) {
	var p []byte
	appendInt16 := func(v int16) {
		p = append(p, byte(v), byte(v>>8))
	}
	appendInt16(16384) // w = 1.0
	appendInt16(-8192) // x = -0.5
	appendInt16(0)     // y = 0
	appendInt16(4096)  // z = 0.25
	appendInt16(2048)  // ax = 1 g
	appendInt16(-1024) // ay = -0.5 g
	appendInt16(0)     // az = 0
	appendInt16(160)   // gx = 10 deg/s
	appendInt16(-16)   // gy = -1 deg/s
	appendInt16(32)    // gz = 2 deg/s

	s, err := decodeImu(p)
	if err != nil {
		t.Fatalf("decodeImu error = %v", err)
	}
	approx := func(got, want float32) bool {
		return math.Abs(float64(got-want)) < 1e-6
	}
	if !approx(s.Orientation[0], 1) || !approx(s.Orientation[1], -0.5) ||
		!approx(s.Orientation[2], 0) || !approx(s.Orientation[3], 0.25) {
		t.Errorf("orientation = %v", s.Orientation)
	}
	if !approx(s.Accelerometer[0], 1) || !approx(s.Accelerometer[1], -0.5) {
		t.Errorf("accelerometer = %v", s.Accelerometer)
	}
	if !approx(s.Gyroscope[0], 10) || !approx(s.Gyroscope[1], -1) || !approx(s.Gyroscope[2], 2) {
		t.Errorf("gyroscope = %v", s.Gyroscope)
	}

	if _, err := decodeImu(p[:19]); err == nil {
		t.Error("decodeImu should reject a short packet")
	}
}

func TestListenDispatch(t *testing.T) {
	emgPacket := []byte{
		1, 2, 3, 4, 5, 6, 7, 8,
		9, 10, 11, 12, 13, 14, 15, 16,
	}
	imuPacket := make([]byte, imuPacketLen)
	imuPacket[0] = 0x00
	imuPacket[1] = 0x40 // w raw 16384 -> 1.0

	m := &mockGatt{connected: true, notifications: []gatt.Event{
		{Handle: hndEmgData0, Value: emgPacket},
		{Handle: hndIMUData, Value: imuPacket},
		{Handle: 0x9999, Value: []byte{0xFF}}, // unrelated handle, ignored
	}}
	c := &Client{gatt: m}

	var emg []EmgSample
	var imu []ImuSample
	c.OnEmg(func(s EmgSample) { emg = append(emg, s) })
	c.OnImu(func(s ImuSample) { imu = append(imu, s) })

	if err := c.Listen(); !errors.Is(err, gatt.ErrDisconnected) {
		t.Fatalf("Listen = %v, want ErrDisconnected", err)
	}

	if len(emg) != 2 {
		t.Fatalf("got %d EMG samples, want 2 (two per notification)", len(emg))
	}
	if emg[0][0] != 1 || emg[1][0] != 9 {
		t.Errorf("EMG samples = %v, %v", emg[0], emg[1])
	}
	if len(imu) != 1 {
		t.Fatalf("got %d IMU samples, want 1", len(imu))
	}
	if imu[0].Orientation[0] != 1.0 {
		t.Errorf("orientation w = %v, want 1.0", imu[0].Orientation[0])
	}
}

func TestListenWithoutCallbacks(t *testing.T) {
	m := &mockGatt{connected: true, notifications: []gatt.Event{
		{Handle: hndEmgData0, Value: make([]byte, emgPacketLen)},
	}}
	c := &Client{gatt: m}

	// No callbacks registered: Listen must not panic.
	if err := c.Listen(); !errors.Is(err, gatt.ErrDisconnected) {
		t.Fatalf("Listen = %v, want ErrDisconnected", err)
	}
}
