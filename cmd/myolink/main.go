package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/openmyo/myolink/internal/bgapi"
	"github.com/openmyo/myolink/internal/config"
	"github.com/openmyo/myolink/internal/gatt"
	"github.com/openmyo/myolink/internal/myo"
	"github.com/openmyo/myolink/internal/serial"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/myolink/config.yaml)")
	address := flag.String("address", "", "device address, overrides the config file")
	scan := flag.Bool("scan", false, "scan for Myo devices and exit")
	writeConfig := flag.Bool("write-config", false, "write the default config file and exit")
	flag.Parse()

	if *writeConfig {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		fmt.Println("wrote", path)
		return
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *address != "" {
		cfg.Device.Address = *address
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	setupLogging(cfg.LogLevel)
	printBanner(cfg)

	// Open the BLED112 dongle
	port, err := serial.Open(cfg.Port.Device, cfg.Port.Baud)
	if err != nil {
		log.Fatalf("Failed to open %s: %v\n\nCheck that the BLED112 dongle is plugged in and the device path is correct.", cfg.Port.Device, err)
	}
	defer port.Close()

	client := myo.NewClient(gatt.NewClient(bgapi.NewClient(port)))

	if *scan {
		if err := runScan(client); err != nil {
			log.Fatalf("scan: %v", err)
		}
		return
	}

	if err := runStream(cfg, client, port); err != nil {
		log.Fatalf("%v", err)
	}
}

// runScan lists every Myo in range with its signal strength.
func runScan(client *myo.Client) error {
	log.Println("Scanning for Myo devices, Ctrl+C to stop...")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	seen := map[gatt.Address]bool{}
	return client.Discover(func(rssi int8, addr gatt.Address, data []byte) bool {
		if !seen[addr] {
			seen[addr] = true
			fmt.Printf("  %s  RSSI %d dBm\n", addr, rssi)
		}
		select {
		case <-sigCh:
			return false
		default:
			return true
		}
	})
}

// runStream connects to a Myo, configures its streams and prints samples
// until the connection drops or the process is interrupted.
func runStream(cfg *config.Config, client *myo.Client, port *serial.Port) error {
	if cfg.Device.Address != "" {
		log.Printf("Connecting to %s...", cfg.Device.Address)
		if err := client.ConnectString(cfg.Device.Address); err != nil {
			return fmt.Errorf("connecting to %s: %w", cfg.Device.Address, err)
		}
	} else {
		log.Println("Scanning for a Myo...")
		if err := client.ConnectAny(); err != nil {
			return fmt.Errorf("connecting: %w", err)
		}
	}

	addr, err := client.Address()
	if err != nil {
		return err
	}
	name, err := client.DeviceName()
	if err != nil {
		return fmt.Errorf("reading device name: %w", err)
	}
	version, err := client.FirmwareVersion()
	if err != nil {
		return fmt.Errorf("reading firmware version: %w", err)
	}
	log.Printf("Connected to %q at %s, firmware %s", name, addr, version)

	if err := client.SetSleepMode(cfg.SleepMode()); err != nil {
		return fmt.Errorf("setting sleep mode: %w", err)
	}
	if err := client.SetMode(cfg.EmgMode(), cfg.ImuMode(), myo.ClassifierDisabled); err != nil {
		return fmt.Errorf("setting streaming modes: %w", err)
	}
	if err := client.Vibrate(myo.VibrationShort); err != nil {
		return fmt.Errorf("vibrating: %w", err)
	}

	client.OnEmg(func(s myo.EmgSample) {
		fmt.Printf("EMG %v\n", s)
	})
	client.OnImu(func(s myo.ImuSample) {
		fmt.Printf("IMU quat=%v accel=%v gyro=%v\n", s.Orientation, s.Accelerometer, s.Gyroscope)
	})

	// The listen loop is the sole reader of the serial port, so a concurrent
	// disconnect handshake is not possible. Closing the port breaks the loop
	// out of its read; the dongle keeps the connection alive and the next run
	// adopts it.
	var stopping atomic.Bool
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received %s, shutting down...", sig)
		stopping.Store(true)
		port.Close()
	}()

	log.Println("Streaming, Ctrl+C to quit.")
	err = client.Listen()
	switch {
	case stopping.Load():
		log.Println("Goodbye!")
		return nil
	case errors.Is(err, gatt.ErrDisconnected):
		return fmt.Errorf("device disconnected")
	default:
		return fmt.Errorf("listening: %w", err)
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// setupLogging configures the default slog logger from the config level.
func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== myolink ===")
	fmt.Printf("  Port:    %s @ %d baud\n", cfg.Port.Device, cfg.Port.Baud)
	if cfg.Device.Address != "" {
		fmt.Printf("  Device:  %s\n", cfg.Device.Address)
	} else {
		fmt.Println("  Device:  first Myo found")
	}
	fmt.Printf("  EMG:     %s\n", cfg.Myo.EmgMode)
	fmt.Printf("  IMU:     %s\n", cfg.Myo.ImuMode)
	fmt.Printf("  Sleep:   %s\n", cfg.Myo.SleepMode)
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Println("===============")
}
