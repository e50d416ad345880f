package control

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cjeanneret/ArmGo/internal/config"
	"github.com/cjeanneret/ArmGo/internal/debug"
	"github.com/cjeanneret/ArmGo/internal/frame"
	"github.com/cjeanneret/ArmGo/internal/hw/servo"
	"github.com/cjeanneret/ArmGo/internal/logic/capture"
	"github.com/cjeanneret/ArmGo/internal/logic/intake"
	"github.com/cjeanneret/ArmGo/internal/logic/motion"
)

// Status levels passed to a Sink.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Sink receives human-readable diagnostics (mode changes, faults).
type Sink interface {
	Status(level, msg string)
}

// Snapshot is a copy of the controller state after a tick.
type Snapshot struct {
	capture.State
	Joints      [frame.Joints]int `json:"joints"`
	Claw        int               `json:"claw"`
	Targets     [frame.Joints]int `json:"targets"`
	ClawTarget  int               `json:"claw_target"`
	LastFrameID uint16            `json:"last_frame_id"`
	Ticks       uint64            `json:"ticks"`
	Homed       bool              `json:"homed"`
}

// ClawOptions maps the claw button to angles.
type ClawOptions struct {
	OpenDeg   int
	ClosedDeg int
	// Replay drives the claw from the active (possibly recorded) frame.
	// When false (the default), the claw always follows the live button.
	Replay bool
}

// Controller runs the two phases of a control tick: HandleCommand when a
// frame arrives, then Tick. It is safe for concurrent use.
type Controller struct {
	mu sync.Mutex

	intake *intake.Intake
	engine *capture.Engine
	arm    *motion.Arm
	claw   ClawOptions

	live       frame.Command
	targets    [frame.Joints]int
	clawTarget int
	ticks      uint64

	sinks     []Sink
	observers []func(Snapshot)
}

// New wires a controller from the configuration and a servo driver.
func New(cfg *config.Config, driver servo.Driver) (*Controller, error) {
	engine, err := capture.NewEngine(cfg.Loop.BufferSize, cfg.Loop.StartEnabled)
	if err != nil {
		return nil, err
	}
	arm, err := motion.NewArmFromConfig(driver, cfg)
	if err != nil {
		return nil, err
	}
	claw := ClawOptions{
		OpenDeg:   cfg.Claw.OpenDeg,
		ClosedDeg: cfg.Claw.ClosedDeg,
		Replay:    cfg.ClawReplay(),
	}
	return NewController(intake.New(cfg), engine, arm, claw), nil
}

// NewController assembles a controller. The live frame starts at the arm's
// rest pose so an idle arm holds still until the first command.
func NewController(in *intake.Intake, engine *capture.Engine, arm *motion.Arm, claw ClawOptions) *Controller {
	joints, _ := arm.Angles()
	c := &Controller{
		intake: in,
		engine: engine,
		arm:    arm,
		claw:   claw,
	}
	c.live.Joints = joints
	c.live.Enable = engine.ArmEnabled()
	c.targets = joints
	c.clawTarget = claw.OpenDeg
	return c
}

// AddSink registers a diagnostics receiver.
func (c *Controller) AddSink(s Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks = append(c.sinks, s)
}

// Subscribe registers fn to be called with a snapshot after every tick.
// fn runs on the loop goroutine and must not block.
func (c *Controller) Subscribe(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Home writes the rest pose once, regardless of armEnabled.
func (c *Controller) Home() error {
	c.mu.Lock()
	err := c.arm.Home()
	if err != nil {
		c.reportLocked(LevelError, fmt.Sprintf("homing: %v", err))
	} else {
		c.reportLocked(LevelInfo, "arm at rest pose")
	}
	snap, obs := c.snapshotLocked(), c.observers
	c.mu.Unlock()

	publish(obs, snap)
	if err != nil {
		return fmt.Errorf("home: %w", err)
	}
	return nil
}

// HandleCommand normalizes a received frame, updates the mode flags and
// makes it the live frame.
func (c *Controller) HandleCommand(raw frame.Raw) {
	cmd := c.intake.Normalize(raw)
	debug.Verbose("cmd id=%d joints=%v claw=%v rec=%v play=%v en=%v",
		cmd.ID, cmd.Joints, cmd.Claw, cmd.Record, cmd.Play, cmd.Enable)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.live = cmd
	for _, ev := range c.engine.Apply(cmd) {
		c.reportLocked(eventLevel(ev), string(ev))
	}
}

// Tick selects the active frame and moves the arm one step toward it.
// Driver errors are reported to the sinks and returned; the next tick
// proceeds normally.
func (c *Controller) Tick() error {
	c.mu.Lock()
	active, events := c.engine.Step(c.live)
	for _, ev := range events {
		c.reportLocked(eventLevel(ev), string(ev))
	}

	clawSrc := c.live
	if c.claw.Replay {
		clawSrc = active
	}
	c.targets = active.Joints
	c.clawTarget = c.claw.OpenDeg
	if clawSrc.Claw {
		c.clawTarget = c.claw.ClosedDeg
	}

	err := c.arm.Advance(c.targets, c.clawTarget, c.engine.ArmEnabled())
	if err != nil {
		c.reportLocked(LevelError, fmt.Sprintf("servo write: %v", err))
	}
	c.ticks++
	snap, obs := c.snapshotLocked(), c.observers
	c.mu.Unlock()

	publish(obs, snap)
	return err
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	joints, claw := c.arm.Angles()
	return Snapshot{
		State:       c.engine.State(),
		Joints:      joints,
		Claw:        claw,
		Targets:     c.targets,
		ClawTarget:  c.clawTarget,
		LastFrameID: c.live.ID,
		Ticks:       c.ticks,
		Homed:       c.arm.Homed(),
	}
}

func (c *Controller) reportLocked(level, msg string) {
	for _, s := range c.sinks {
		s.Status(level, msg)
	}
}

func publish(observers []func(Snapshot), snap Snapshot) {
	for _, fn := range observers {
		fn(snap)
	}
}

func eventLevel(ev capture.Event) string {
	switch ev {
	case capture.PlaybackEmpty, capture.BufferWrapped:
		return LevelWarn
	}
	return LevelInfo
}

// LogSink writes diagnostics to the debug logger.
type LogSink struct{}

func (LogSink) Status(level, msg string) {
	if level == LevelError {
		debug.Error(errors.New(msg))
		return
	}
	debug.Mode(msg)
}
