package control

// Telemetry is one sample from the vehicle or simulator.
type Telemetry struct {
	CTE     float64 // cross-track error
	Speed   float64
	Heading float64
}

// Command is the actuation sent back for one Telemetry sample.
type Command struct {
	Steering float64 // [-1, 1]
	Throttle float64 // [-0.1, 0.9]
}

// ClampFloat clamps value between min and max
func ClampFloat(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// BoolToFloat converts bool to float64 (for CAN encoding)
func BoolToFloat(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}
