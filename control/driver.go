package control

import "math"

// Throttle heuristic weights. Speed is expected in [0, 100].
const (
	throttleSpeedWeight = 0.2
	throttleSpeedScale  = 80.0
	throttleErrWeight   = 0.4
	throttleSteerWeight = 0.4
	throttleCeiling     = 0.9
)

// StepReport tells the caller what happened inside one Driver.Step.
type StepReport struct {
	Steering Result
	Throttle Result

	// Restart is set when a forced episode restart reset both channels.
	Restart bool
}

// Tuned reports whether either channel moved its gains this step.
func (r StepReport) Tuned() bool {
	return r.Steering == AdjustedWeights || r.Throttle == AdjustedWeights
}

// Driver owns one steering and one throttle controller and turns
// telemetry into a bounded command.
type Driver struct {
	cfg      DriverConfig
	steer    *Controller
	throttle *Controller
	steps    int
}

// NewDriver builds both channels from cfg.
func NewDriver(cfg DriverConfig) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	steer, err := NewControllerFromConfig("steering", cfg.Steering)
	if err != nil {
		return nil, err
	}
	throttle, err := NewControllerFromConfig("throttle", cfg.Throttle)
	if err != nil {
		return nil, err
	}
	return &Driver{cfg: cfg, steer: steer, throttle: throttle}, nil
}

// SetObserver forwards tuner events of both channels to fn.
func (d *Driver) SetObserver(fn func(Event)) {
	d.steer.SetObserver(fn)
	d.throttle.SetObserver(fn)
}

// Step feeds one telemetry sample through both channels.
func (d *Driver) Step(t Telemetry) (Command, StepReport, error) {
	var rep StepReport
	var err error

	if rep.Steering, err = d.steer.UpdateError(t.CTE); err != nil {
		return Command{}, rep, err
	}
	if rep.Throttle, err = d.throttle.UpdateError(t.CTE); err != nil {
		return Command{}, rep, err
	}

	steer := ClampFloat(-d.steer.TotalError(), -1.0, 1.0)
	cmd := Command{
		Steering: steer,
		Throttle: ThrottleCommand(t.Speed, d.throttle.TotalError(), steer),
	}

	if d.cfg.RestartEvery > 0 {
		d.steps++
		if d.steps == d.cfg.RestartEvery {
			d.steer.Reset()
			d.throttle.Reset()
			d.steps = 0
			rep.Restart = true
		}
	}
	return cmd, rep, nil
}

// ThrottleCommand maps speed, the throttle controller output and the
// steering command to a throttle in [-0.1, 0.9]. Slow, well-tracked and
// straight driving gets more throttle.
func ThrottleCommand(speed, throttleOut, steer float64) float64 {
	v := throttleSpeedWeight*(speed/throttleSpeedScale) +
		throttleErrWeight*math.Abs(throttleOut) +
		throttleSteerWeight*math.Abs(steer)
	return throttleCeiling - ClampFloat(v, 0.0, 1.0)
}

// Steering returns the steering channel.
func (d *Driver) Steering() *Controller { return d.steer }

// Throttle returns the throttle channel.
func (d *Driver) Throttle() *Controller { return d.throttle }
