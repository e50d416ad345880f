package motion

import (
	"fmt"

	"github.com/cjeanneret/ArmGo/internal/config"
)

// Policy computes the next angle on the way from current to target.
// Implementations never overshoot and always make progress when
// current != target.
type Policy interface {
	Next(current, target int) int
}

// FixedStep moves by at most MaxStep degrees per tick.
type FixedStep struct {
	MaxStep int
}

func (p FixedStep) Next(current, target int) int {
	d := target - current
	return current + sign(d)*min(abs(d), max(p.MaxStep, 1))
}

// ProportionalStep moves by MaxStep*distance/Scale degrees per tick, at least
// one degree and never past the target. The step equals MaxStep at a
// distance of Scale, so it is larger when far and eases in when close.
type ProportionalStep struct {
	MaxStep int
	Scale   int
}

func (p ProportionalStep) Next(current, target int) int {
	d := target - current
	if d == 0 {
		return current
	}
	dist := abs(d)
	step := max(1, p.MaxStep*dist/max(p.Scale, 1))
	return current + sign(d)*min(step, dist)
}

// NewPolicy returns the policy registered under name.
func NewPolicy(name string, maxStep, scale int) (Policy, error) {
	switch name {
	case config.PolicyFixed:
		return FixedStep{MaxStep: maxStep}, nil
	case config.PolicyProportional:
		return ProportionalStep{MaxStep: maxStep, Scale: scale}, nil
	}
	return nil, fmt.Errorf("unknown interpolation policy %q", name)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
