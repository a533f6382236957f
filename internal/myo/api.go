package myo

import (
	"fmt"

	"github.com/openmyo/myolink/internal/packet"
)

// ServiceUUID identifies the Myo control service. It terminates the vendor
// specific section of the device's advertisement packets, which is how a Myo
// is recognized during discovery.
var ServiceUUID = [16]byte{
	0x42, 0x48, 0x12, 0x4a,
	0x7f, 0x2c, 0x48, 0x47,
	0xb9, 0xde, 0x04, 0xa9,
	0x01, 0x00, 0x06, 0xd5,
}

// Attribute handles of the Myo GATT database. Hardcoded: the descriptors
// carry no distinct UUID, but their handles are stable across firmware 1.x.
const (
	hndInfo            = 0x00
	hndDeviceName      = 0x03
	hndFirmwareVersion = 0x17
	hndCommand         = 0x19

	hndIMUData       = 0x1C
	hndIMUDescriptor = 0x1D

	hndEmgData0       = 0x2B
	hndEmgDescriptor0 = 0x2C
	hndEmgData1       = 0x2E
	hndEmgDescriptor1 = 0x2F
	hndEmgData2       = 0x31
	hndEmgDescriptor2 = 0x32
	hndEmgData3       = 0x34
	hndEmgDescriptor3 = 0x35
)

// eventDescriptors are the client-configuration descriptors that gate the
// device's notification streams.
var eventDescriptors = []uint16{
	hndIMUDescriptor,
	hndEmgDescriptor0,
	hndEmgDescriptor1,
	hndEmgDescriptor2,
	hndEmgDescriptor3,
}

// Fixed-point scales applied when decoding IMU samples.
const (
	orientationScale   = 16384.0
	accelerometerScale = 2048.0
	gyroscopeScale     = 16.0
)

// EmgMode selects the EMG data stream.
type EmgMode uint8

const (
	EmgNone EmgMode = 0x00 // do not send EMG data
	EmgFilt EmgMode = 0x02 // send filtered EMG data
	EmgRaw  EmgMode = 0x03 // send raw EMG data
)

// ImuMode selects the IMU data stream.
type ImuMode uint8

const (
	ImuNone   ImuMode = 0x00 // do not send IMU data or events
	ImuData   ImuMode = 0x01 // send IMU data streams
	ImuEvents ImuMode = 0x02 // send motion events
	ImuAll    ImuMode = 0x03 // send both
	ImuRaw    ImuMode = 0x04 // send raw IMU data streams
)

// ClassifierMode enables the onboard gesture classifier.
type ClassifierMode uint8

const (
	ClassifierDisabled ClassifierMode = 0x00
	ClassifierEnabled  ClassifierMode = 0x01
)

// SleepMode controls the inactivity timeout.
type SleepMode uint8

const (
	SleepNormal SleepMode = 0 // sleep after a period of inactivity
	NeverSleep  SleepMode = 1
)

// Vibration selects a vibration pattern.
type Vibration uint8

const (
	VibrationNone   Vibration = 0x00
	VibrationShort  Vibration = 0x01
	VibrationMedium Vibration = 0x02
	VibrationLong   Vibration = 0x03
)

// Command opcodes written to the command characteristic.
const (
	cmdSetMode      = 0x01
	cmdVibrate      = 0x03
	cmdSetSleepMode = 0x09
)

// command builds a command payload: opcode, payload size, then arguments.
func command(opcode uint8, args ...uint8) []byte {
	buf := packet.AppendUint8(nil, opcode)
	buf = packet.AppendUint8(buf, uint8(len(args)))
	return packet.AppendBytes(buf, args)
}

// Info is the device information attribute.
type Info struct {
	SerialNumber          [6]byte
	UnlockPose            uint16
	ActiveClassifierType  uint8
	ActiveClassifierIndex uint8
	HasCustomClassifier   uint8
	StreamIndicating      uint8
	SKU                   uint8
}

func decodeInfo(p []byte) (Info, error) {
	var info Info
	rd := packet.NewReader(p)
	copy(info.SerialNumber[:], rd.Bytes(6))
	info.UnlockPose = rd.Uint16()
	info.ActiveClassifierType = rd.Uint8()
	info.ActiveClassifierIndex = rd.Uint8()
	info.HasCustomClassifier = rd.Uint8()
	info.StreamIndicating = rd.Uint8()
	info.SKU = rd.Uint8()
	if err := rd.Err(); err != nil {
		return Info{}, fmt.Errorf("myo: decoding device info: %w", err)
	}
	return info, nil
}

// Version is the firmware version attribute.
type Version struct {
	Major       uint16
	Minor       uint16
	Patch       uint16
	HardwareRev uint16
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func decodeVersion(p []byte) (Version, error) {
	var v Version
	rd := packet.NewReader(p)
	v.Major = rd.Uint16()
	v.Minor = rd.Uint16()
	v.Patch = rd.Uint16()
	v.HardwareRev = rd.Uint16()
	if err := rd.Err(); err != nil {
		return Version{}, fmt.Errorf("myo: decoding firmware version: %w", err)
	}
	return v, nil
}

// EmgSample is one 8-channel surface EMG reading. The device packs two
// consecutive samples into every EMG notification.
type EmgSample [8]int8

// ImuSample is one decoded inertial reading. Orientation is a unit
// quaternion (w, x, y, z); acceleration is in g, angular velocity in deg/s.
type ImuSample struct {
	Orientation   [4]float32
	Accelerometer [3]float32
	Gyroscope     [3]float32
}

const (
	emgPacketLen = 16
	imuPacketLen = 20
)

func decodeEmg(p []byte) (first, second EmgSample, err error) {
	if len(p) != emgPacketLen {
		return first, second, fmt.Errorf("myo: EMG packet is %d bytes, want %d", len(p), emgPacketLen)
	}
	for i := 0; i < 8; i++ {
		first[i] = int8(p[i])
		second[i] = int8(p[8+i])
	}
	return first, second, nil
}

func decodeImu(p []byte) (ImuSample, error) {
	if len(p) != imuPacketLen {
		return ImuSample{}, fmt.Errorf("myo: IMU packet is %d bytes, want %d", len(p), imuPacketLen)
	}
	var s ImuSample
	rd := packet.NewReader(p)
	for i := range s.Orientation {
		s.Orientation[i] = float32(rd.Int16()) / orientationScale
	}
	for i := range s.Accelerometer {
		s.Accelerometer[i] = float32(rd.Int16()) / accelerometerScale
	}
	for i := range s.Gyroscope {
		s.Gyroscope[i] = float32(rd.Int16()) / gyroscopeScale
	}
	return s, rd.Err()
}
