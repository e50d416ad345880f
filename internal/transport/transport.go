// Package transport delivers command frames from the radio link (or any
// other producer) to the control loop without ever blocking it.
package transport

import (
	"sync/atomic"

	"github.com/cjeanneret/ArmGo/internal/debug"
	"github.com/cjeanneret/ArmGo/internal/frame"
)

// Source yields at most one pending frame per call and never blocks.
type Source interface {
	Poll() (frame.Raw, bool)
	Close() error
}

// Queue is a bounded FIFO of frames. When full, Push drops the oldest
// frame so the newest command always gets through.
type Queue struct {
	ch      chan frame.Raw
	dropped atomic.Uint64
}

// NewQueue creates a queue holding up to size frames (minimum 1).
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{ch: make(chan frame.Raw, size)}
}

// Push enqueues a frame. Safe for concurrent producers.
func (q *Queue) Push(r frame.Raw) {
	for {
		select {
		case q.ch <- r:
			return
		default:
		}
		select {
		case old := <-q.ch:
			q.dropped.Add(1)
			debug.Trace("queue full, dropped frame id=%d", old.ID)
		default:
		}
	}
}

// Poll returns the oldest pending frame, if any.
func (q *Queue) Poll() (frame.Raw, bool) {
	select {
	case r := <-q.ch:
		return r, true
	default:
		return frame.Raw{}, false
	}
}

// Len returns the number of pending frames.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Dropped returns how many frames were discarded because the queue was full.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

func (q *Queue) Close() error {
	return nil
}

// None is a Source that never yields. The controller keeps acting on the
// last frame it received.
type None struct{}

func (None) Poll() (frame.Raw, bool) { return frame.Raw{}, false }
func (None) Close() error            { return nil }
