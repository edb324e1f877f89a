package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"twiddle-pid-core/control"
	"twiddle-pid-core/utils"
)

// Scenario defines a scripted telemetry replay
type Scenario struct {
	Meta     ScenarioMeta      `json:"meta"`
	Timing   ScenarioTiming    `json:"timing"`
	Defaults TelemetrySample   `json:"defaults"`
	Segments []ScenarioSegment `json:"segments"`
}

type ScenarioMeta struct {
	Name        string `json:"name"`
	Version     int    `json:"version"`
	Description string `json:"description"`
}

type ScenarioTiming struct {
	DtS          float64 `json:"dt_s"`
	DurationS    float64 `json:"duration_s"`
	RealTimeMode bool    `json:"real_time_mode"`
}

// TelemetrySample is one telemetry record as written in scenario files.
type TelemetrySample struct {
	CTEM       float64 `json:"cte_m"`
	SpeedKph   float64 `json:"speed_kph"`
	HeadingDeg float64 `json:"heading_deg"`
}

// ScenarioSegment holds a telemetry sample over [T0, T1). A negative T1
// runs to the end of the scenario.
type ScenarioSegment struct {
	T0 float64 `json:"t0"`
	T1 float64 `json:"t1"`
	TelemetrySample
	Comment string `json:"comment,omitempty"`
}

// LoadScenario loads a scenario from JSON file
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read file: %w", err)
	}

	var scen Scenario
	if err := json.Unmarshal(data, &scen); err != nil {
		return Scenario{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := scen.Validate(); err != nil {
		return Scenario{}, err
	}
	return scen, nil
}

func (s Scenario) Validate() error {
	if s.Timing.DurationS <= 0 {
		return fmt.Errorf("invalid duration_s: %f", s.Timing.DurationS)
	}
	if s.Timing.DtS <= 0 || s.Timing.DtS > s.Timing.DurationS {
		return fmt.Errorf("invalid dt_s: %f", s.Timing.DtS)
	}
	for i, seg := range s.Segments {
		if seg.T1 >= 0 && seg.T1 <= seg.T0 {
			return fmt.Errorf("segment %d: t1 %f not after t0 %f", i, seg.T1, seg.T0)
		}
		if seg.SpeedKph < 0 {
			return fmt.Errorf("segment %d: negative speed_kph %f", i, seg.SpeedKph)
		}
	}
	return nil
}

// Steps is the number of telemetry samples the scenario produces.
func (s Scenario) Steps() int {
	return int(math.Round(s.Timing.DurationS / s.Timing.DtS))
}

// EvalTelemetry evaluates the scenario at time t. The first segment
// covering t wins; otherwise the defaults apply.
func EvalTelemetry(scen *Scenario, t float64) control.Telemetry {
	sample := scen.Defaults
	for _, seg := range scen.Segments {
		t1 := seg.T1
		if t1 < 0 {
			t1 = scen.Timing.DurationS
		}
		if t >= seg.T0 && t < t1 {
			sample = seg.TelemetrySample
			break
		}
	}
	return control.Telemetry{CTE: sample.CTEM, Speed: sample.SpeedKph, Heading: sample.HeadingDeg}
}

// scenarioPlayer replays a scenario as a TelemetrySource and records what
// the runner sends back. The replay is open loop: commands do not change
// the telemetry.
type scenarioPlayer struct {
	scen *Scenario
	step int

	last     control.Command
	sent     int
	restarts int
}

func newScenarioPlayer(scen *Scenario) *scenarioPlayer {
	return &scenarioPlayer{scen: scen}
}

func (p *scenarioPlayer) Next(ctx context.Context) (control.Telemetry, error) {
	if p.step >= p.scen.Steps() {
		return control.Telemetry{}, io.EOF
	}
	if p.scen.Timing.RealTimeMode {
		timer := time.NewTimer(time.Duration(p.scen.Timing.DtS * float64(time.Second)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return control.Telemetry{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return control.Telemetry{}, err
	}

	tel := EvalTelemetry(p.scen, float64(p.step)*p.scen.Timing.DtS)
	p.step++
	return tel, nil
}

func (p *scenarioPlayer) Send(_ context.Context, cmd control.Command) error {
	p.last = cmd
	p.sent++
	return nil
}

// Restart is counted only; scenario time keeps running.
func (p *scenarioPlayer) Restart(context.Context) error {
	p.restarts++
	return nil
}

// runScenario replays a scenario file through one Runner.
func runScenario(ctx context.Context, path string, rcfg RunnerConfig, log *utils.Logger) error {
	scen, err := LoadScenario(path)
	if err != nil {
		return fmt.Errorf("scenario %s: %w", path, err)
	}
	rcfg.Name = "replay:" + scen.Meta.Name
	runner, err := NewRunner(rcfg, log)
	if err != nil {
		return err
	}
	log.Info("Replaying scenario %q: dt=%.3fs duration=%.1fs steps=%d real_time=%v",
		scen.Meta.Name, scen.Timing.DtS, scen.Timing.DurationS, scen.Steps(), scen.Timing.RealTimeMode)

	player := newScenarioPlayer(&scen)
	if err := runner.Run(ctx, player, player); err != nil {
		return err
	}
	s, t := runner.Driver().Steering(), runner.Driver().Throttle()
	log.Info("Scenario %q done: commands=%d restarts=%d last=%+v steering gains=%v throttle gains=%v",
		scen.Meta.Name, player.sent, player.restarts, player.last, s.Weights(), t.Weights())
	return nil
}
