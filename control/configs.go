package control

import "fmt"

// PIDConfig holds the initial gains, the initial twiddle steps and the
// evaluation window for one channel.
type PIDConfig struct {
	Window  int     `yaml:"window"`
	Kp      float64 `yaml:"kp"`
	Ki      float64 `yaml:"ki"`
	Kd      float64 `yaml:"kd"`
	DKp     float64 `yaml:"dkp"`
	DKi     float64 `yaml:"dki"`
	DKd     float64 `yaml:"dkd"`
	Twiddle bool    `yaml:"twiddle"`
}

// Gains returns the initial weight vector.
func (c PIDConfig) Gains() Vector { return Vector{c.Kp, c.Ki, c.Kd} }

// Steps returns the initial step vector.
func (c PIDConfig) Steps() Vector { return Vector{c.DKp, c.DKi, c.DKd} }

// DriverConfig configures the steering and throttle channels.
type DriverConfig struct {
	Steering PIDConfig `yaml:"steering"`
	Throttle PIDConfig `yaml:"throttle"`

	// RestartEvery forces an episode restart after this many steps; 0 disables it.
	RestartEvery int `yaml:"restart_every"`
}

// Validate checks both channels the same way Configure would.
func (c DriverConfig) Validate() error {
	if _, err := NewTuner("steering", c.Steering.Window, DefaultTolerance, c.Steering.Gains(), c.Steering.Steps()); err != nil {
		return fmt.Errorf("steering: %w", err)
	}
	if _, err := NewTuner("throttle", c.Throttle.Window, DefaultTolerance, c.Throttle.Gains(), c.Throttle.Steps()); err != nil {
		return fmt.Errorf("throttle: %w", err)
	}
	if c.RestartEvery < 0 {
		return fmt.Errorf("%w: restart_every %d must be >= 0", ErrInvalidConfiguration, c.RestartEvery)
	}
	return nil
}

// DefaultDriverConfig returns the hand-tuned gains the simulator runs with.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		Steering: PIDConfig{
			Window: 1000,
			Kp:     0.601021, Ki: 0.001, Kd: 9.2861,
			DKp: 0.2, DKi: 0.003, DKd: 1,
		},
		Throttle: PIDConfig{
			Window: 1000,
			Kp:     0.3805, Ki: 0.00915, Kd: 9.08918,
			DKp: 0.2, DKi: 0.003, DKd: 2,
		},
	}
}
