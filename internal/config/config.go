// Package config loads the YAML configuration for the myolink tools.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/openmyo/myolink/internal/gatt"
	"github.com/openmyo/myolink/internal/myo"
)

// Config holds all application configuration.
type Config struct {
	Port     PortConfig   `yaml:"port"`
	Device   DeviceConfig `yaml:"device"`
	Myo      MyoConfig    `yaml:"myo"`
	LogLevel string       `yaml:"log_level"`
}

// PortConfig holds serial port settings for the BLED112 dongle.
type PortConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

// DeviceConfig selects the target device.
type DeviceConfig struct {
	// Address in colon-separated form. Empty means connect to the first
	// Myo found by scanning.
	Address string `yaml:"address"`
}

// MyoConfig holds the streaming modes applied after connecting.
type MyoConfig struct {
	EmgMode   string `yaml:"emg_mode"`   // "off", "filtered" or "raw"
	ImuMode   string `yaml:"imu_mode"`   // "off", "data", "events", "all" or "raw"
	SleepMode string `yaml:"sleep_mode"` // "normal" or "never"
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "myolink")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Port: PortConfig{
			Device: "/dev/ttyACM0",
			Baud:   115200,
		},
		Myo: MyoConfig{
			EmgMode:   "raw",
			ImuMode:   "data",
			SleepMode: "never",
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// WriteDefault writes the default config to the default path, creating the
// config directory if needed. An existing file is left untouched.
func WriteDefault() (string, error) {
	dir := DefaultConfigDir()
	if dir == "" {
		return "", fmt.Errorf("cannot determine home directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing default config: %w", err)
	}
	return path, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Port.Device == "" {
		return fmt.Errorf("port.device must not be empty")
	}
	if c.Port.Baud <= 0 {
		return fmt.Errorf("port.baud must be > 0, got %d", c.Port.Baud)
	}

	if c.Device.Address != "" {
		if _, err := gatt.ParseAddress(c.Device.Address); err != nil {
			return fmt.Errorf("device.address: %w", err)
		}
	}

	switch c.Myo.EmgMode {
	case "off", "filtered", "raw":
	default:
		return fmt.Errorf("myo.emg_mode must be \"off\", \"filtered\" or \"raw\", got %q", c.Myo.EmgMode)
	}

	switch c.Myo.ImuMode {
	case "off", "data", "events", "all", "raw":
	default:
		return fmt.Errorf("myo.imu_mode must be \"off\", \"data\", \"events\", \"all\" or \"raw\", got %q", c.Myo.ImuMode)
	}

	switch c.Myo.SleepMode {
	case "normal", "never":
	default:
		return fmt.Errorf("myo.sleep_mode must be \"normal\" or \"never\", got %q", c.Myo.SleepMode)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// EmgMode returns the configured EMG mode as a device constant.
func (c *Config) EmgMode() myo.EmgMode {
	switch c.Myo.EmgMode {
	case "filtered":
		return myo.EmgFilt
	case "raw":
		return myo.EmgRaw
	default:
		return myo.EmgNone
	}
}

// ImuMode returns the configured IMU mode as a device constant.
func (c *Config) ImuMode() myo.ImuMode {
	switch c.Myo.ImuMode {
	case "data":
		return myo.ImuData
	case "events":
		return myo.ImuEvents
	case "all":
		return myo.ImuAll
	case "raw":
		return myo.ImuRaw
	default:
		return myo.ImuNone
	}
}

// SleepMode returns the configured sleep mode as a device constant.
func (c *Config) SleepMode() myo.SleepMode {
	if c.Myo.SleepMode == "never" {
		return myo.NeverSleep
	}
	return myo.SleepNormal
}
