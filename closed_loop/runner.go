package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"twiddle-pid-core/control"
	"twiddle-pid-core/utils"
)

// TelemetrySource yields one telemetry sample per call. It returns io.EOF
// when the counterpart goes away cleanly.
type TelemetrySource interface {
	Next(ctx context.Context) (control.Telemetry, error)
}

// ActuationSink accepts commands and episode restart requests.
type ActuationSink interface {
	Send(ctx context.Context, cmd control.Command) error
	Restart(ctx context.Context) error
}

type RunnerConfig struct {
	Name          string
	Driver        control.DriverConfig
	RestartOnTune bool
}

// Runner drives one Driver from one telemetry source. Each transport
// session gets its own Runner.
type Runner struct {
	cfg    RunnerConfig
	log    *utils.Logger
	driver *control.Driver
	stats  episodeStats

	ticks     uint64
	episodes  int
	converged map[string]bool
}

func NewRunner(cfg RunnerConfig, log *utils.Logger) (*Runner, error) {
	driver, err := control.NewDriver(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("driver: %w", err)
	}
	r := &Runner{cfg: cfg, log: log, driver: driver, converged: map[string]bool{}}
	driver.SetObserver(r.onTune)

	s, t := driver.Steering(), driver.Throttle()
	log.Info("[%s] steering gains=%v steps=%v twiddle=%v window=%d",
		cfg.Name, s.Weights(), s.Steps(), s.TwiddleEnabled(), cfg.Driver.Steering.Window)
	log.Info("[%s] throttle gains=%v steps=%v twiddle=%v window=%d",
		cfg.Name, t.Weights(), t.Steps(), t.TwiddleEnabled(), cfg.Driver.Throttle.Window)
	return r, nil
}

func (r *Runner) onTune(e control.Event) {
	r.log.Debug("[%s] %s: p=%v dp=%v sum_dp=%g best=%g dim=%d phase=%s",
		r.cfg.Name, e.Name, e.Weights, e.Steps, e.StepSum, e.Best, e.Dim, e.Phase)
}

// Run processes telemetry until the source ends or ctx is done. A clean
// end of the source is not an error.
func (r *Runner) Run(ctx context.Context, src TelemetrySource, sink ActuationSink) error {
	defer r.endEpisode("session end")

	for {
		tel, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := r.Tick(ctx, tel, sink); err != nil {
			return err
		}
	}
}

// Tick runs one telemetry sample through the driver and sends the result.
func (r *Runner) Tick(ctx context.Context, tel control.Telemetry, sink ActuationSink) error {
	cmd, rep, err := r.driver.Step(tel)
	if err != nil {
		return fmt.Errorf("step: %w", err)
	}
	r.ticks++
	r.stats.add(tel.CTE)

	if r.log.Enabled(utils.TRACE) {
		p, i, d := r.driver.Steering().Terms()
		r.log.Trace("[%s] cte=%.4f speed=%.2f heading=%.2f p=%.4f i=%.4f d=%.4f steer=%.4f throttle=%.4f",
			r.cfg.Name, tel.CTE, tel.Speed, tel.Heading, p, i, d, cmd.Steering, cmd.Throttle)
	}

	if err := sink.Send(ctx, cmd); err != nil {
		return fmt.Errorf("send command: %w", err)
	}

	r.noteConverged(r.driver.Steering(), rep.Steering)
	r.noteConverged(r.driver.Throttle(), rep.Throttle)

	restart := rep.Restart || (r.cfg.RestartOnTune && rep.Tuned())
	if restart {
		if err := sink.Restart(ctx); err != nil {
			return fmt.Errorf("restart: %w", err)
		}
		r.endEpisode("restart")
	} else if r.stats.full() {
		r.endEpisode("window full")
	}
	return nil
}

func (r *Runner) noteConverged(c *control.Controller, res control.Result) {
	if res != control.Converged || r.converged[c.Name()] {
		return
	}
	r.converged[c.Name()] = true
	d := c.GetDiagnostics()
	r.log.Info("[%s] %s tuning converged: gains=%v sum_dp=%g tolerance=%g best=%g",
		r.cfg.Name, c.Name(), d.Gains, d.StepSum, d.Tolerance, d.BestCost)
}

func (r *Runner) endEpisode(reason string) {
	s := r.stats.summary()
	r.stats.reset()
	if s.Samples == 0 {
		return
	}
	r.episodes++
	r.log.Info("[%s] episode %d (%s): samples=%d cte_mean=%.4f cte_sd=%.4f cte_rms=%.4f cte_max=%.4f",
		r.cfg.Name, r.episodes, reason, s.Samples, s.Mean, s.StdDev, s.RMS, s.MaxAbs)
	for _, c := range []*control.Controller{r.driver.Steering(), r.driver.Throttle()} {
		if !c.TwiddleEnabled() {
			continue
		}
		d := c.GetDiagnostics()
		r.log.Debug("[%s] %s tuner: window=%d gains=%v steps=%v sum_dp=%g best=%g dim=%d phase=%s resets=%d",
			r.cfg.Name, c.Name(), d.Window, d.Gains, d.Steps, d.StepSum, d.BestCost, d.Dim, d.Phase, d.Resets)
	}
}

// Driver exposes the runner's driver for diagnostics.
func (r *Runner) Driver() *control.Driver { return r.driver }
