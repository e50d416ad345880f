package intake

import (
	"github.com/cjeanneret/ArmGo/internal/config"
	"github.com/cjeanneret/ArmGo/internal/frame"
)

// Limit is the accepted range of one joint and whether its axis is mirrored.
type Limit struct {
	Min    int
	Max    int
	Invert bool
}

// Intake turns raw frames from the transport into normalized commands.
// It never fails: out-of-range targets are clamped, not rejected.
type Intake struct {
	limits [frame.Joints]Limit
}

// New creates an intake from the joint configuration.
func New(cfg *config.Config) *Intake {
	var limits [frame.Joints]Limit
	for i, j := range cfg.Joints {
		if i >= frame.Joints {
			break
		}
		limits[i] = Limit{Min: j.MinDeg, Max: j.MaxDeg, Invert: j.Invert}
	}
	return NewWithLimits(limits)
}

// NewWithLimits creates an intake from explicit per-joint limits.
func NewWithLimits(limits [frame.Joints]Limit) *Intake {
	return &Intake{limits: limits}
}

// Limits returns the per-joint limits.
func (in *Intake) Limits() [frame.Joints]Limit {
	return in.limits
}

// Normalize applies axis inversion then clamping to every joint target.
// The order is deliberate: clamping first then inverting yields
// max - clamp(v), which can fall below Min (120 - 119 = 1 on [3, 120]).
// Inverting first keeps the result in [Min, Max].
func (in *Intake) Normalize(raw frame.Raw) frame.Command {
	cmd := raw.Buttons()
	for i, l := range in.limits {
		target := cmd.Joints[i]
		if l.Invert {
			target = l.Max - target
		}
		cmd.Joints[i] = Clamp(target, l.Min, l.Max)
	}
	return cmd
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
