package control

import (
	"fmt"
	"math"
)

// Dimensions is the number of tuned gains (P, I, D).
const Dimensions = 3

// DefaultTolerance is the step-sum below which tuning stops.
const DefaultTolerance = 1e-5

// Step scaling applied after a successful or exhausted trial.
const (
	stepGrow   = 1.05
	stepShrink = 0.95
)

// Vector is a fixed-size gain or step vector indexed by P, I, D.
type Vector [Dimensions]float64

// Sum returns the sum of all entries, accumulated in index order.
func (v Vector) Sum() float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}

// Phase is the trial direction for the dimension under test.
type Phase int

const (
	PhaseUp Phase = iota + 1
	PhaseDown
)

func (p Phase) String() string {
	switch p {
	case PhaseUp:
		return "up"
	case PhaseDown:
		return "down"
	default:
		return "idle"
	}
}

// Result is the outcome of one tuner evaluation.
type Result int

const (
	// NotDue means the evaluation window has not elapsed.
	NotDue Result = iota
	// AdjustedWeights means the working point changed and the caller
	// should restart its error accumulation.
	AdjustedWeights
	// Converged means the step sum is below tolerance; nothing changes.
	Converged
)

func (r Result) String() string {
	switch r {
	case NotDue:
		return "not-due"
	case AdjustedWeights:
		return "adjusted"
	case Converged:
		return "converged"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Event describes the tuner state right after an adjustment.
type Event struct {
	Name    string
	Weights Vector
	Steps   Vector
	StepSum float64
	Best    float64
	Dim     int
	Phase   Phase
}

// Tuner is a twiddle (coordinate-ascent) search over a Vector of gains.
// It is not safe for concurrent use.
type Tuner struct {
	name      string
	window    int
	tolerance float64

	p  Vector
	dp Vector

	dim         int
	phase       Phase
	best        float64
	initialized bool

	observer func(Event)
}

// NewTuner creates a tuner that evaluates once every window ticks.
func NewTuner(name string, window int, tolerance float64, weights, steps Vector) (*Tuner, error) {
	if window < 1 {
		return nil, fmt.Errorf("%w: window %d must be >= 1", ErrInvalidConfiguration, window)
	}
	if !(tolerance > 0) || math.IsInf(tolerance, 0) {
		return nil, fmt.Errorf("%w: tolerance %v must be positive", ErrInvalidConfiguration, tolerance)
	}
	for i := 0; i < Dimensions; i++ {
		if math.IsNaN(weights[i]) || math.IsInf(weights[i], 0) {
			return nil, fmt.Errorf("%w: weight[%d] = %v", ErrInvalidConfiguration, i, weights[i])
		}
		if !(steps[i] >= 0) || math.IsInf(steps[i], 0) {
			return nil, fmt.Errorf("%w: step[%d] = %v must be non-negative", ErrInvalidConfiguration, i, steps[i])
		}
	}
	return &Tuner{
		name:      name,
		window:    window,
		tolerance: tolerance,
		p:         weights,
		dp:        steps,
	}, nil
}

// SetObserver registers fn to receive an Event on every AdjustedWeights
// result. A nil fn disables notifications.
func (t *Tuner) SetObserver(fn func(Event)) {
	t.observer = fn
}

// Get returns the gain in dimension i.
func (t *Tuner) Get(i int) (float64, error) {
	if i < 0 || i >= Dimensions {
		return 0, fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, i, Dimensions)
	}
	return t.p[i], nil
}

func (t *Tuner) Weights() Vector    { return t.p }
func (t *Tuner) Steps() Vector      { return t.dp }
func (t *Tuner) Best() float64      { return t.best }
func (t *Tuner) Dim() int           { return t.dim }
func (t *Tuner) Phase() Phase       { return t.phase }
func (t *Tuner) Window() int        { return t.window }
func (t *Tuner) Tolerance() float64 { return t.tolerance }
func (t *Tuner) StepSum() float64   { return t.dp.Sum() }

// Converged reports whether the step sum has dropped below tolerance.
func (t *Tuner) Converged() bool {
	return t.StepSum() < t.tolerance
}

// Evaluate runs one twiddle step with cost err, but only when tick equals
// the configured window.
func (t *Tuner) Evaluate(tick int, err float64) Result {
	if tick != t.window {
		return NotDue
	}
	if t.Converged() {
		return Converged
	}

	switch {
	case !t.initialized:
		t.best = err
		t.dim = 0
		t.p[t.dim] += t.dp[t.dim]
		t.phase = PhaseUp
		t.initialized = true

	case err < t.best:
		// Whichever direction was on trial helped; keep it and move on.
		t.best = err
		t.dp[t.dim] *= stepGrow
		t.advance()

	case t.phase == PhaseUp:
		t.p[t.dim] -= 2 * t.dp[t.dim]
		t.phase = PhaseDown

	default:
		// Neither direction helped: back to the pre-trial value.
		t.p[t.dim] += t.dp[t.dim]
		t.dp[t.dim] *= stepShrink
		t.advance()
	}

	t.notify()
	return AdjustedWeights
}

func (t *Tuner) advance() {
	t.dim = (t.dim + 1) % Dimensions
	t.p[t.dim] += t.dp[t.dim]
	t.phase = PhaseUp
}

func (t *Tuner) notify() {
	if t.observer == nil {
		return
	}
	t.observer(Event{
		Name:    t.name,
		Weights: t.p,
		Steps:   t.dp,
		StepSum: t.StepSum(),
		Best:    t.best,
		Dim:     t.dim,
		Phase:   t.phase,
	})
}
