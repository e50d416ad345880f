package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// JointCount is the number of arm joints (wrist, elbow, biceps, shoulder).
const JointCount = 4

// Interpolation policies.
const (
	PolicyFixed        = "fixed"
	PolicyProportional = "proportional"
)

// Servo drivers.
const (
	DriverGPIO    = "gpio"    // hardware PWM through go-rpio (or the mock GPIO driver)
	DriverPCA9685 = "pca9685" // 16-channel PWM expander on I2C
	DriverFeetech = "feetech" // serial bus servos
)

// Command transports.
const (
	TransportSerial    = "serial"
	TransportWebsocket = "websocket"
	TransportNone      = "none"
)

// JointConfig describes one arm joint and the servo that drives it.
type JointConfig struct {
	Name       string `yaml:"name"`
	Channel    int    `yaml:"channel"`      // BCM pin (gpio), PWM channel (pca9685) or servo ID (feetech)
	MinDeg     int    `yaml:"min_deg"`      // lowest accepted target
	MaxDeg     int    `yaml:"max_deg"`      // highest accepted target
	Invert     bool   `yaml:"invert"`       // mirrored mounting: target = max - target
	RestDeg    int    `yaml:"rest_deg"`     // pose written at startup
	MinPulseUs int    `yaml:"min_pulse_us"` // pulse width at 0 deg
	MaxPulseUs int    `yaml:"max_pulse_us"` // pulse width at 180 deg
}

// ClawConfig describes the gripper servo. The claw is either open or closed.
type ClawConfig struct {
	Channel    int   `yaml:"channel"`
	OpenDeg    int   `yaml:"open_deg"`
	ClosedDeg  int   `yaml:"closed_deg"`
	RestDeg    int   `yaml:"rest_deg"`
	MaxStepDeg int   `yaml:"max_step_deg"` // 0 = same as interpolation.max_step_deg
	Replay     *bool `yaml:"replay"`       // playback drives the claw from recorded frames (default false: live button)
	MinPulseUs int   `yaml:"min_pulse_us"`
	MaxPulseUs int   `yaml:"max_pulse_us"`
}

// InterpolationConfig selects how fast joints approach their targets.
type InterpolationConfig struct {
	Policy      string `yaml:"policy"`       // "fixed" or "proportional"
	MaxStepDeg  int    `yaml:"max_step_deg"` // largest move per tick
	ScaleFactor int    `yaml:"scale_factor"` // distance at which proportional step reaches max_step_deg
}

// LoopConfig holds control loop timing and the record buffer size.
type LoopConfig struct {
	TickMs       int  `yaml:"tick_ms"`
	BufferSize   int  `yaml:"buffer_size"`
	StartEnabled bool `yaml:"start_enabled"`
}

// ServoConfig selects the actuator driver.
type ServoConfig struct {
	Driver      string `yaml:"driver"`
	PeriodHz    int    `yaml:"period_hz"`
	I2CBus      string `yaml:"i2c_bus"`  // "" = first available bus
	I2CAddr     int    `yaml:"i2c_addr"` // PCA9685 address, default 0x40
	FeetechPort string `yaml:"feetech_port"`
	FeetechBaud int    `yaml:"feetech_baud"`
}

// TransportConfig describes where command frames come from.
type TransportConfig struct {
	Type       string `yaml:"type"`
	SerialPort string `yaml:"serial_port"`
	SerialBaud int    `yaml:"serial_baud"`
	QueueSize  int    `yaml:"queue_size"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Joints        []JointConfig       `yaml:"joints"`
	Claw          ClawConfig          `yaml:"claw"`
	Interpolation InterpolationConfig `yaml:"interpolation"`
	Loop          LoopConfig          `yaml:"loop"`
	Servo         ServoConfig         `yaml:"servo"`
	Transport     TransportConfig     `yaml:"transport"`
	Defaults      DefaultsConfig      `yaml:"defaults"`
}

// Default returns the built-in profile for the four-joint arm.
// Call Finalize before use.
func Default() *Config {
	return &Config{
		Joints: []JointConfig{
			{Name: "wrist", Channel: 0, MinDeg: 3, MaxDeg: 120, RestDeg: 90, MinPulseUs: 500, MaxPulseUs: 2400},
			{Name: "elbow", Channel: 1, MinDeg: 3, MaxDeg: 120, RestDeg: 90, MinPulseUs: 500, MaxPulseUs: 2400},
			{Name: "biceps", Channel: 2, MinDeg: 3, MaxDeg: 160, RestDeg: 90, MinPulseUs: 500, MaxPulseUs: 2500},
			{Name: "shoulder", Channel: 3, MinDeg: 3, MaxDeg: 120, RestDeg: 90, MinPulseUs: 500, MaxPulseUs: 2400},
		},
		Claw: ClawConfig{
			Channel:    4,
			OpenDeg:    30,
			ClosedDeg:  95,
			MinPulseUs: 500,
			MaxPulseUs: 2400,
		},
		Interpolation: InterpolationConfig{
			Policy:      PolicyFixed,
			MaxStepDeg:  2,
			ScaleFactor: 30,
		},
		Loop: LoopConfig{
			TickMs:     30,
			BufferSize: 1000,
		},
		Servo: ServoConfig{
			Driver:   DriverPCA9685,
			PeriodHz: 50,
			I2CAddr:  0x40,
		},
		Transport: TransportConfig{
			Type:       TransportSerial,
			SerialPort: "/dev/ttyUSB0",
			SerialBaud: 115200,
			QueueSize:  16,
		},
		Defaults: DefaultsConfig{
			DebugLevel: 1,
		},
	}
}

// Load reads a YAML file on top of the built-in profile and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize fills unset fields with their defaults and validates the result.
func (c *Config) Finalize() error {
	c.applyDefaults()
	return c.Validate()
}

func (c *Config) applyDefaults() {
	for i := range c.Joints {
		j := &c.Joints[i]
		if j.MinPulseUs <= 0 {
			j.MinPulseUs = 500
		}
		if j.MaxPulseUs <= 0 {
			j.MaxPulseUs = 2400
		}
		if j.RestDeg == 0 {
			j.RestDeg = clamp(90, j.MinDeg, j.MaxDeg)
		}
	}
	if c.Claw.MinPulseUs <= 0 {
		c.Claw.MinPulseUs = 500
	}
	if c.Claw.MaxPulseUs <= 0 {
		c.Claw.MaxPulseUs = 2400
	}
	if c.Claw.RestDeg == 0 {
		c.Claw.RestDeg = c.Claw.OpenDeg
	}
	if c.Interpolation.Policy == "" {
		c.Interpolation.Policy = PolicyFixed
	}
	if c.Interpolation.MaxStepDeg <= 0 {
		c.Interpolation.MaxStepDeg = 2 // firmware smoothing step
	}
	if c.Interpolation.ScaleFactor <= 0 {
		c.Interpolation.ScaleFactor = 30
	}
	if c.Claw.MaxStepDeg <= 0 {
		c.Claw.MaxStepDeg = c.Interpolation.MaxStepDeg
	}
	if c.Loop.TickMs <= 0 {
		c.Loop.TickMs = 30
	}
	if c.Loop.BufferSize == 0 {
		c.Loop.BufferSize = 1000
	}
	if c.Servo.PeriodHz <= 0 {
		c.Servo.PeriodHz = 50
	}
	if c.Servo.I2CAddr == 0 {
		c.Servo.I2CAddr = 0x40
	}
	if c.Servo.FeetechBaud <= 0 {
		c.Servo.FeetechBaud = 1_000_000
	}
	if c.Transport.Type == "" {
		c.Transport.Type = TransportNone
	}
	if c.Transport.SerialBaud <= 0 {
		c.Transport.SerialBaud = 115200
	}
	if c.Transport.QueueSize <= 0 {
		c.Transport.QueueSize = 16
	}
}

// Validate checks ranges and enumerations. It assumes defaults were applied.
func (c *Config) Validate() error {
	if len(c.Joints) != JointCount {
		return fmt.Errorf("joints: expected %d entries, got %d", JointCount, len(c.Joints))
	}
	for i, j := range c.Joints {
		if j.MinDeg < 0 || j.MaxDeg > 180 || j.MinDeg > j.MaxDeg {
			return fmt.Errorf("joints[%d] (%s): invalid range [%d, %d]", i, j.Name, j.MinDeg, j.MaxDeg)
		}
		if j.RestDeg < j.MinDeg || j.RestDeg > j.MaxDeg {
			return fmt.Errorf("joints[%d] (%s): rest_deg %d outside [%d, %d]", i, j.Name, j.RestDeg, j.MinDeg, j.MaxDeg)
		}
		if j.MinPulseUs >= j.MaxPulseUs {
			return fmt.Errorf("joints[%d] (%s): min_pulse_us must be < max_pulse_us", i, j.Name)
		}
	}
	for name, deg := range map[string]int{"open_deg": c.Claw.OpenDeg, "closed_deg": c.Claw.ClosedDeg, "rest_deg": c.Claw.RestDeg} {
		if deg < 0 || deg > 180 {
			return fmt.Errorf("claw.%s must be between 0 and 180, got %d", name, deg)
		}
	}
	if c.Claw.MinPulseUs >= c.Claw.MaxPulseUs {
		return errors.New("claw: min_pulse_us must be < max_pulse_us")
	}
	switch c.Interpolation.Policy {
	case PolicyFixed, PolicyProportional:
	default:
		return fmt.Errorf("interpolation.policy must be %q or %q, got %q", PolicyFixed, PolicyProportional, c.Interpolation.Policy)
	}
	if c.Loop.BufferSize < 0 {
		return fmt.Errorf("loop.buffer_size must be > 0, got %d", c.Loop.BufferSize)
	}
	switch c.Servo.Driver {
	case DriverGPIO, DriverPCA9685:
	case DriverFeetech:
		if c.Servo.FeetechPort == "" {
			return errors.New("servo.feetech_port is required for the feetech driver")
		}
	default:
		return fmt.Errorf("unsupported servo driver: %q", c.Servo.Driver)
	}
	switch c.Transport.Type {
	case TransportWebsocket, TransportNone:
	case TransportSerial:
		if c.Transport.SerialPort == "" {
			return errors.New("transport.serial_port is required for the serial transport")
		}
	default:
		return fmt.Errorf("unsupported transport type: %q", c.Transport.Type)
	}
	return nil
}

// TickInterval returns the minimum time between two control steps.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Loop.TickMs) * time.Millisecond
}

// ClawReplay reports whether playback drives the claw from recorded frames.
// Unset means the claw follows the live button in every mode.
func (c *Config) ClawReplay() bool {
	return c.Claw.Replay != nil && *c.Claw.Replay
}

// JointRanges returns the [min, max] range of every joint in joint order.
func (c *Config) JointRanges() [JointCount][2]int {
	var r [JointCount][2]int
	for i, j := range c.Joints {
		if i >= JointCount {
			break
		}
		r[i] = [2]int{j.MinDeg, j.MaxDeg}
	}
	return r
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
