package utils

import (
	"fmt"
	"sort"
)

// Frame directions as seen from this process.
const (
	DirectionRX = "rx"
	DirectionTX = "tx"
)

type SignalDef struct {
	Name      string
	StartBit  int
	BitLength int
	Signed    bool
	Factor    float64
	Offset    float64
	Min       float64
	Max       float64
	Default   float64
	Unit      string
	Comment   string
}

type FrameDef struct {
	ID        uint32
	Name      string
	DLC       int
	Direction string
	CycleMS   int
	Signals   []SignalDef
}

// Signal returns the named signal of the frame.
func (fd *FrameDef) Signal(name string) (SignalDef, bool) {
	for _, s := range fd.Signals {
		if s.Name == name {
			return s, true
		}
	}
	return SignalDef{}, false
}

// Require checks that the frame has the given direction and carries every
// named signal.
func (fd *FrameDef) Require(direction string, signals ...string) error {
	if fd.Direction != direction {
		return fmt.Errorf("frame %s: direction %q, want %q", fd.Name, fd.Direction, direction)
	}
	for _, name := range signals {
		if _, ok := fd.Signal(name); !ok {
			return fmt.Errorf("frame %s: missing signal %q", fd.Name, name)
		}
	}
	return nil
}

type CANMap struct {
	ByID   map[uint32]*FrameDef
	ByName map[string]*FrameDef
}

func (m *CANMap) FrameNames() []string {
	out := make([]string, 0, len(m.ByName))
	for k := range m.ByName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
