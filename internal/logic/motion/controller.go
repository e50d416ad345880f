package motion

import (
	"errors"
	"fmt"

	"github.com/cjeanneret/ArmGo/internal/config"
	"github.com/cjeanneret/ArmGo/internal/debug"
	"github.com/cjeanneret/ArmGo/internal/hw/servo"
)

// Arm tracks the angle last written to every servo and moves each one
// toward its target through an interpolation policy.
// It's an intermediate layer between the record/playback logic and the
// servo driver.
type Arm struct {
	driver    servo.Driver
	joints    Policy
	claw      Policy
	rest      [4]int
	clawRest  int
	current   [4]int
	clawAngle int
	homed     bool
}

// NewArm creates an arm at its rest pose. Nothing is written until Home.
func NewArm(driver servo.Driver, joints, claw Policy, rest [4]int, clawRest int) *Arm {
	return &Arm{
		driver:    driver,
		joints:    joints,
		claw:      claw,
		rest:      rest,
		clawRest:  clawRest,
		current:   rest,
		clawAngle: clawRest,
	}
}

// NewArmFromConfig builds the arm and its policies from the configuration.
func NewArmFromConfig(driver servo.Driver, cfg *config.Config) (*Arm, error) {
	jp, err := NewPolicy(cfg.Interpolation.Policy, cfg.Interpolation.MaxStepDeg, cfg.Interpolation.ScaleFactor)
	if err != nil {
		return nil, err
	}
	cp, err := NewPolicy(cfg.Interpolation.Policy, cfg.Claw.MaxStepDeg, cfg.Interpolation.ScaleFactor)
	if err != nil {
		return nil, err
	}
	var rest [4]int
	for i := range rest {
		rest[i] = cfg.Joints[i].RestDeg
	}
	return NewArm(driver, jp, cp, rest, cfg.Claw.RestDeg), nil
}

// Home writes the rest pose to every servo and resets the tracked angles.
func (a *Arm) Home() error {
	a.current = a.rest
	a.clawAngle = a.clawRest
	a.homed = true
	debug.Info("Homing to rest pose")
	return a.writeAll()
}

// Advance moves every servo one interpolation step toward its target.
// When enabled is false the arm holds: nothing is written and the tracked
// angles stay frozen, so motion resumes from where it stopped.
func (a *Arm) Advance(targets [4]int, clawTarget int, enabled bool) error {
	if !enabled {
		return nil
	}
	for i := range a.current {
		a.current[i] = a.joints.Next(a.current[i], targets[i])
	}
	a.clawAngle = a.claw.Next(a.clawAngle, clawTarget)
	debug.Angles(a.current, a.clawAngle)
	return a.writeAll()
}

// Angles returns the last angles written (or to be written) for the joints and claw.
func (a *Arm) Angles() ([4]int, int) {
	return a.current, a.clawAngle
}

// Homed reports whether Home has run.
func (a *Arm) Homed() bool {
	return a.homed
}

func (a *Arm) writeAll() error {
	var errs []error
	for i, ch := range servo.Joints {
		if err := a.driver.SetAngle(ch, a.current[i]); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch, err))
		}
	}
	if err := a.driver.SetAngle(servo.Claw, a.clawAngle); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", servo.Claw, err))
	}
	return errors.Join(errs...)
}
