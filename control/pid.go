package control

import "fmt"

// Controller implements a discrete PID controller on cross-track error
// whose gains are tuned online by a Tuner.
type Controller struct {
	name           string
	twiddleEnabled bool
	tuner          *Tuner
	observer       func(Event)

	// State
	pError float64
	iError float64
	dError float64

	// Windowed cost fed to the tuner
	step        int
	twiddleErr  float64
	resetsTotal int
}

// NewController creates an unconfigured controller. Configure must be
// called before the first UpdateError.
func NewController(name string, enableTwiddle bool) *Controller {
	return &Controller{
		name:           name,
		twiddleEnabled: enableTwiddle,
	}
}

// NewControllerFromConfig creates and configures a controller in one call.
func NewControllerFromConfig(name string, cfg PIDConfig) (*Controller, error) {
	c := NewController(name, cfg.Twiddle)
	if err := c.Configure(cfg.Window, cfg.Kp, cfg.Ki, cfg.Kd, cfg.DKp, cfg.DKi, cfg.DKd); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return c, nil
}

// Configure sets the initial gains and twiddle steps and the number of
// ticks between tuning evaluations. On error the controller keeps its
// previous configuration.
func (pid *Controller) Configure(window int, kp, ki, kd, dkp, dki, dkd float64) error {
	t, err := NewTuner(pid.name, window, DefaultTolerance, Vector{kp, ki, kd}, Vector{dkp, dki, dkd})
	if err != nil {
		return err
	}
	t.SetObserver(pid.observer)
	pid.tuner = t
	pid.Reset()
	return nil
}

// SetObserver forwards tuner adjustment events to fn.
func (pid *Controller) SetObserver(fn func(Event)) {
	pid.observer = fn
	if pid.tuner != nil {
		pid.tuner.SetObserver(fn)
	}
}

// UpdateError consumes one cross-track error sample. The returned Result
// is AdjustedWeights when the tuner moved the gains, in which case the
// controller state has already been reset. Once converged, every window
// still reports Converged and restarts the windowed cost.
func (pid *Controller) UpdateError(cte float64) (Result, error) {
	if pid.tuner == nil {
		return NotDue, ErrNotConfigured
	}

	// The first sample differences against zero.
	pid.dError = cte - pid.pError
	pid.pError = cte
	pid.iError += cte

	pid.step++
	pid.twiddleErr += cte * cte

	if !pid.twiddleEnabled {
		return NotDue, nil
	}
	res := pid.tuner.Evaluate(pid.step, pid.twiddleErr/float64(pid.step))
	switch res {
	case AdjustedWeights:
		pid.Reset()
		pid.resetsTotal++
	case Converged:
		// Gains are frozen but the window cadence continues; the error
		// terms are left alone.
		pid.step = 0
		pid.twiddleErr = 0.0
	}
	return res, nil
}

// TotalError returns the weighted sum of the error terms. It is unbounded;
// callers clamp it to their actuation range.
func (pid *Controller) TotalError() float64 {
	if pid.tuner == nil {
		return 0
	}
	w := pid.tuner.Weights()
	return w[0]*pid.pError + w[1]*pid.iError + w[2]*pid.dError
}

// Reset clears the error terms and the windowed cost. Gains and steps
// are kept.
func (pid *Controller) Reset() {
	pid.pError = 0.0
	pid.iError = 0.0
	pid.dError = 0.0
	pid.step = 0
	pid.twiddleErr = 0.0
}

// Name returns the channel name given at construction.
func (pid *Controller) Name() string { return pid.name }

// TwiddleEnabled reports whether UpdateError drives the tuner.
func (pid *Controller) TwiddleEnabled() bool { return pid.twiddleEnabled }

// Terms returns the proportional, integral and derivative errors.
func (pid *Controller) Terms() (p, i, d float64) {
	return pid.pError, pid.iError, pid.dError
}

// Ticks returns the number of samples since the last reset.
func (pid *Controller) Ticks() int { return pid.step }

// WindowedError returns the squared-error sum since the last reset.
func (pid *Controller) WindowedError() float64 { return pid.twiddleErr }

// Weights returns the current gains, or zeros before Configure.
func (pid *Controller) Weights() Vector {
	if pid.tuner == nil {
		return Vector{}
	}
	return pid.tuner.Weights()
}

// Steps returns the current twiddle steps, or zeros before Configure.
func (pid *Controller) Steps() Vector {
	if pid.tuner == nil {
		return Vector{}
	}
	return pid.tuner.Steps()
}

// Gain returns the gain in dimension i.
func (pid *Controller) Gain(i int) (float64, error) {
	if pid.tuner == nil {
		return 0, ErrNotConfigured
	}
	return pid.tuner.Get(i)
}

// Converged reports whether tuning has stopped.
func (pid *Controller) Converged() bool {
	return pid.tuner != nil && pid.tuner.Converged()
}

// GetDiagnostics returns current PID state for logging/debugging
func (pid *Controller) GetDiagnostics() PIDDiagnostics {
	w := pid.Weights()
	d := PIDDiagnostics{
		Error:    pid.pError,
		Integral: pid.iError,
		Delta:    pid.dError,
		P:        w[0] * pid.pError,
		I:        w[1] * pid.iError,
		D:        w[2] * pid.dError,
		Gains:    w,
		Steps:    pid.Steps(),
		Resets:   pid.resetsTotal,
	}
	if pid.tuner != nil {
		d.Window = pid.tuner.Window()
		d.Tolerance = pid.tuner.Tolerance()
		d.StepSum = pid.tuner.StepSum()
		d.BestCost = pid.tuner.Best()
		d.Dim = pid.tuner.Dim()
		d.Phase = pid.tuner.Phase()
	}
	return d
}

// PIDDiagnostics contains PID internal state for monitoring
type PIDDiagnostics struct {
	Error     float64
	Integral  float64
	Delta     float64
	P         float64
	I         float64
	D         float64
	Gains     Vector
	Steps     Vector
	StepSum   float64
	Tolerance float64
	Window    int
	BestCost  float64
	Dim       int
	Phase     Phase
	Resets    int
}
