package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"twiddle-pid-core/control"
)

// Transports the command can drive.
const (
	TransportWebsocket = "websocket"
	TransportCAN       = "can"
	TransportBoth      = "both"
	TransportReplay    = "replay"
)

// RunConfig is the YAML run file of the closed_loop command.
type RunConfig struct {
	Transport string    `yaml:"transport"`
	Listen    string    `yaml:"listen"`
	Log       LogConfig `yaml:"log"`
	CAN       CANConfig `yaml:"can"`
	Scenario  string    `yaml:"scenario"`

	// RestartOnTune asks the simulator for a fresh episode every time a
	// tuner moves its gains, so each trial is scored from the same start.
	RestartOnTune bool `yaml:"restart_on_tune"`

	Driver control.DriverConfig `yaml:"driver"`
}

type LogConfig struct {
	File   string `yaml:"file"`
	Level  string `yaml:"level"`
	Stdout bool   `yaml:"stdout"`
}

type CANConfig struct {
	Interface      string `yaml:"interface"`
	MapPath        string `yaml:"map"`
	TelemetryFrame string `yaml:"telemetry_frame"`
	CommandFrame   string `yaml:"command_frame"`
}

// DefaultRunConfig mirrors the simulator setup: websocket on 4567 and the
// hand-tuned gains with tuning switched off.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Transport: TransportWebsocket,
		Listen:    ":4567",
		Log: LogConfig{
			File:   "closed_loop.log",
			Level:  "info",
			Stdout: true,
		},
		CAN: CANConfig{
			Interface:      "vcan0",
			MapPath:        "config/can/can_map.csv",
			TelemetryFrame: "VEHICLE_TELEMETRY",
			CommandFrame:   "STEER_CMD",
		},
		Driver: control.DefaultDriverConfig(),
	}
}

// LoadRunConfig reads a YAML run file on top of the defaults. Fields the
// file omits keep their default value.
func LoadRunConfig(path string) (RunConfig, error) {
	cfg := DefaultRunConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return RunConfig{}, fmt.Errorf("read file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

func (c RunConfig) Validate() error {
	switch c.Transport {
	case TransportWebsocket, TransportCAN, TransportBoth, TransportReplay:
	default:
		return fmt.Errorf("invalid transport %q (want %s, %s, %s or %s)",
			c.Transport, TransportWebsocket, TransportCAN, TransportBoth, TransportReplay)
	}
	if c.usesWebsocket() && c.Listen == "" {
		return fmt.Errorf("transport %s requires listen address", c.Transport)
	}
	if c.Transport == TransportReplay && c.Scenario == "" {
		return fmt.Errorf("transport %s requires scenario", c.Transport)
	}
	if c.usesCAN() {
		if c.CAN.Interface == "" || c.CAN.MapPath == "" {
			return fmt.Errorf("transport %s requires can.interface and can.map", c.Transport)
		}
		if c.CAN.TelemetryFrame == "" || c.CAN.CommandFrame == "" {
			return fmt.Errorf("transport %s requires can.telemetry_frame and can.command_frame", c.Transport)
		}
	}
	if err := c.Driver.Validate(); err != nil {
		return fmt.Errorf("driver: %w", err)
	}
	return nil
}

func (c RunConfig) usesWebsocket() bool {
	return c.Transport == TransportWebsocket || c.Transport == TransportBoth
}

func (c RunConfig) usesCAN() bool {
	return c.Transport == TransportCAN || c.Transport == TransportBoth
}
