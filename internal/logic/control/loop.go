package control

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cjeanneret/ArmGo/internal/debug"
	"github.com/cjeanneret/ArmGo/internal/transport"
)

// Loop is the periodic trigger of the controller: each tick polls at most
// one frame, hands it to the controller, then runs Tick.
type Loop struct {
	ctrl     *Controller
	source   transport.Source
	clock    clock.Clock
	interval time.Duration
}

// NewLoop creates a loop. A nil clock means the wall clock.
func NewLoop(ctrl *Controller, source transport.Source, clk clock.Clock, interval time.Duration) *Loop {
	if clk == nil {
		clk = clock.New()
	}
	if source == nil {
		source = transport.None{}
	}
	return &Loop{ctrl: ctrl, source: source, clock: clk, interval: interval}
}

// Run homes the arm, then ticks until ctx is cancelled. Actuator errors,
// homing included, go to the sinks and never stop the loop.
func (l *Loop) Run(ctx context.Context) error {
	_ = l.ctrl.Home()

	debug.Info("Control loop started (tick %v)", l.interval)
	ticker := l.clock.Ticker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			debug.Info("Control loop stopped after %d ticks", l.ctrl.Snapshot().Ticks)
			return nil
		case <-ticker.C:
			l.Step()
		}
	}
}

// Step runs one tick immediately.
func (l *Loop) Step() {
	if raw, ok := l.source.Poll(); ok {
		l.ctrl.HandleCommand(raw)
	}
	// Write errors already went to the sinks.
	_ = l.ctrl.Tick()
}
