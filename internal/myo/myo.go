// Package myo is the device-specific layer for the Myo gesture armband. It
// drives the GATT client to discover and configure a Myo and decodes the
// notification streams into typed EMG and IMU samples.
package myo

import (
	"bytes"
	"errors"
	"log/slog"

	"github.com/openmyo/myolink/internal/gatt"
)

// ErrNoDevice is returned by ConnectAny when the scan ends without finding
// a Myo.
var ErrNoDevice = errors.New("myo: no device found")

// gattClient is the subset of gatt.Client this package uses, abstracted for
// testing.
type gattClient interface {
	Discover(gatt.DiscoverFunc) error
	Connect(gatt.Address) error
	Connected() bool
	Address() (gatt.Address, error)
	Disconnect() error
	DisconnectAll() error
	ReadAttribute(handle uint16) ([]byte, error)
	WriteAttribute(handle uint16, value []byte) error
	Listen(gatt.ListenFunc) error
}

// Client communicates with a single Myo armband.
type Client struct {
	gatt gattClient

	onEmg func(EmgSample)
	onImu func(ImuSample)
}

// NewClient returns a Client driving the given GATT client.
func NewClient(g *gatt.Client) *Client {
	return &Client{gatt: g}
}

// IsMyo reports whether advertisement data belongs to a Myo device. The
// control service UUID terminates the vendor specific section of the packet.
func IsMyo(advData []byte) bool {
	if len(advData) < len(ServiceUUID) {
		return false
	}
	return bytes.Equal(advData[len(advData)-len(ServiceUUID):], ServiceUUID[:])
}

// Discover scans for Myo devices, invoking fn for each one found. Non-Myo
// advertisements are filtered out. Returning false from fn stops the scan.
func (c *Client) Discover(fn gatt.DiscoverFunc) error {
	if err := c.gatt.DisconnectAll(); err != nil {
		return err
	}
	return c.gatt.Discover(func(rssi int8, addr gatt.Address, data []byte) bool {
		if !IsMyo(data) {
			return true
		}
		return fn(rssi, addr, data)
	})
}

// Connect connects to the Myo at addr and enables its notification streams.
//
// A sleeping Myo will not answer; if the device was streaming when the
// previous session ended it disconnects itself shortly after that session's
// process exits, so always Disconnect before exiting.
func (c *Client) Connect(addr gatt.Address) error {
	if err := c.gatt.Connect(addr); err != nil {
		return err
	}
	return c.enableNotifications()
}

// ConnectString is Connect with the address in colon-separated form.
func (c *Client) ConnectString(s string) error {
	addr, err := gatt.ParseAddress(s)
	if err != nil {
		return err
	}
	return c.Connect(addr)
}

// ConnectAny discovers Myo devices and connects to the first one found.
// The chosen address is available through Address afterwards.
func (c *Client) ConnectAny() error {
	var target gatt.Address
	found := false
	err := c.Discover(func(rssi int8, addr gatt.Address, data []byte) bool {
		target = addr
		found = true
		return false
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrNoDevice
	}
	slog.Info("[MYO] found device", "address", target.String())
	return c.Connect(target)
}

func (c *Client) enableNotifications() error {
	for _, descriptor := range eventDescriptors {
		if err := c.gatt.WriteAttribute(descriptor, gatt.EnableNotifications); err != nil {
			return err
		}
	}
	return nil
}

// Connected reports whether the client holds a live connection.
func (c *Client) Connected() bool {
	return c.gatt.Connected()
}

// Address returns the address of the connected Myo.
func (c *Client) Address() (gatt.Address, error) {
	return c.gatt.Address()
}

// Disconnect disables the notification streams and closes the connection.
// Safe to call when already disconnected.
func (c *Client) Disconnect() error {
	if c.gatt.Connected() {
		for _, descriptor := range eventDescriptors {
			if err := c.gatt.WriteAttribute(descriptor, gatt.DisableNotifications); err != nil {
				return err
			}
		}
	}
	return c.gatt.Disconnect()
}

// Info reads the device information attribute.
func (c *Client) Info() (Info, error) {
	p, err := c.gatt.ReadAttribute(hndInfo)
	if err != nil {
		return Info{}, err
	}
	return decodeInfo(p)
}

// FirmwareVersion reads the firmware version attribute.
func (c *Client) FirmwareVersion() (Version, error) {
	p, err := c.gatt.ReadAttribute(hndFirmwareVersion)
	if err != nil {
		return Version{}, err
	}
	return decodeVersion(p)
}

// DeviceName reads the device name attribute.
func (c *Client) DeviceName() (string, error) {
	p, err := c.gatt.ReadAttribute(hndDeviceName)
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// Vibrate makes the device vibrate.
func (c *Client) Vibrate(v Vibration) error {
	return c.gatt.WriteAttribute(hndCommand, command(cmdVibrate, uint8(v)))
}

// SetMode configures the EMG, IMU and classifier streams.
func (c *Client) SetMode(emg EmgMode, imu ImuMode, classifier ClassifierMode) error {
	return c.gatt.WriteAttribute(hndCommand, command(cmdSetMode, uint8(emg), uint8(imu), uint8(classifier)))
}

// SetSleepMode configures the inactivity behavior. Set NeverSleep to keep
// the device connected while idle.
func (c *Client) SetSleepMode(mode SleepMode) error {
	return c.gatt.WriteAttribute(hndCommand, command(cmdSetSleepMode, uint8(mode)))
}

// OnEmg registers the callback invoked by Listen for every EMG sample. Each
// notification carries two samples; the callback runs once per sample.
func (c *Client) OnEmg(fn func(EmgSample)) {
	c.onEmg = fn
}

// OnImu registers the callback invoked by Listen for every IMU sample.
func (c *Client) OnImu(fn func(ImuSample)) {
	c.onImu = fn
}

// Listen blocks, decoding notifications and dispatching them to the
// registered callbacks until the device disconnects, then returns
// gatt.ErrDisconnected. Samples that fail to decode are logged and skipped.
func (c *Client) Listen() error {
	return c.gatt.Listen(func(handle uint16, value []byte) {
		switch handle {
		case hndEmgData0, hndEmgData1, hndEmgData2, hndEmgData3:
			if c.onEmg == nil {
				return
			}
			first, second, err := decodeEmg(value)
			if err != nil {
				slog.Warn("[MYO] dropping malformed EMG packet", "err", err)
				return
			}
			c.onEmg(first)
			c.onEmg(second)
		case hndIMUData:
			if c.onImu == nil {
				return
			}
			sample, err := decodeImu(value)
			if err != nil {
				slog.Warn("[MYO] dropping malformed IMU packet", "err", err)
				return
			}
			c.onImu(sample)
		}
	})
}
