package control

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cjeanneret/ArmGo/internal/transport"
)

func TestLoop_StepPollsOneFramePerTick(t *testing.T) {
	c, _, _ := newTestController(t, testConfig(t))
	q := transport.NewQueue(4)
	q.Push(rawPose(10, false, false))
	q.Push(rawPose(20, false, false))

	l := NewLoop(c, q, clock.NewMock(), 30*time.Millisecond)
	l.Step()
	if s := c.Snapshot(); s.Joints[0] != 10 {
		t.Fatalf("after first step: joints %v", s.Joints)
	}
	if q.Len() != 1 {
		t.Errorf("queue len = %d, want 1", q.Len())
	}
	l.Step()
	if s := c.Snapshot(); s.Joints[0] != 20 {
		t.Errorf("after second step: joints %v", s.Joints)
	}
}

func TestLoop_RunHomesThenTicksOnClock(t *testing.T) {
	c, drv, _ := newTestController(t, testConfig(t))
	snaps := make(chan Snapshot, 16)
	c.Subscribe(func(s Snapshot) {
		select {
		case snaps <- s:
		default:
		}
	})

	q := transport.NewQueue(4)
	q.Push(rawPose(70, false, false))
	mock := clock.NewMock()
	l := NewLoop(c, q, mock, 30*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	// First snapshot comes from homing.
	select {
	case s := <-snaps:
		if !s.Homed || s.Ticks != 0 {
			t.Fatalf("homing snapshot = %+v", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no homing snapshot")
	}
	if drv.count() != 5 {
		t.Fatalf("homing writes = %d, want 5", drv.count())
	}

	var ticked Snapshot
	deadline := time.After(2 * time.Second)
wait:
	for {
		mock.Add(30 * time.Millisecond)
		select {
		case ticked = <-snaps:
			break wait
		case <-deadline:
			t.Fatal("loop did not tick on the mock clock")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if ticked.Joints[0] != 70 {
		t.Errorf("joints after tick = %v, want 70", ticked.Joints)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestLoop_RunKeepsTickingWhenServosFail(t *testing.T) {
	drv := &recordingServo{err: errors.New("i2c nack")}
	c, err := New(testConfig(t), drv)
	if err != nil {
		t.Fatal(err)
	}
	sink := &recordingSink{}
	c.AddSink(sink)
	snaps := make(chan Snapshot, 16)
	c.Subscribe(func(s Snapshot) {
		select {
		case snaps <- s:
		default:
		}
	})

	q := transport.NewQueue(4)
	q.Push(rawPose(70, false, false))
	mock := clock.NewMock()
	l := NewLoop(c, q, mock, 30*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for ticks := uint64(0); ticks < 3; {
		mock.Add(30 * time.Millisecond)
		select {
		case err := <-done:
			t.Fatalf("Run returned %v before cancel", err)
		case s := <-snaps:
			ticks = s.Ticks
		case <-deadline:
			t.Fatal("loop stopped ticking after servo errors")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if !sink.contains("error: homing") || !sink.contains("error: servo write") {
		t.Errorf("sink lines = %v", sink.all())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestNewLoop_Defaults(t *testing.T) {
	c, _, _ := newTestController(t, testConfig(t))
	l := NewLoop(c, nil, nil, time.Millisecond)
	if _, ok := l.source.(transport.None); !ok {
		t.Errorf("source = %T, want transport.None", l.source)
	}
	if l.clock == nil {
		t.Error("clock should default to the wall clock")
	}
}
