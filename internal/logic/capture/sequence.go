package capture

import (
	"fmt"

	"github.com/cjeanneret/ArmGo/internal/debug"
	"github.com/cjeanneret/ArmGo/internal/frame"
)

// Event is a mode transition or buffer condition worth reporting.
type Event string

const (
	RecordingStarted Event = "recording started"
	RecordingStopped Event = "recording stopped"
	PlaybackStarted  Event = "playback started"
	PlaybackStopped  Event = "playback stopped"
	PlaybackEmpty    Event = "playback stopped: nothing recorded"
	BufferWrapped    Event = "recording wrapped: overwriting oldest frames"
	ArmEnabled       Event = "arm enabled"
	ArmDisabled      Event = "arm disabled"
)

// State is a copy of the engine's flags and cursors.
type State struct {
	Recording      bool `json:"recording"`
	Playing        bool `json:"playing"`
	ArmEnabled     bool `json:"arm_enabled"`
	BufferIndex    int  `json:"buffer_index"`
	RecordingIndex int  `json:"recording_index"`
	Capacity       int  `json:"capacity"`
}

// Engine is the record/playback state machine and the circular frame
// buffer it owns. It is not safe for concurrent use.
type Engine struct {
	buf            []frame.Command
	bufferIndex    int
	recordingIndex int

	recording  bool
	playing    bool
	armEnabled bool

	// last sampled button levels, for edge detection
	prevRecord bool
	prevPlay   bool
}

// NewEngine allocates a buffer of size frames.
func NewEngine(size int, startEnabled bool) (*Engine, error) {
	if size <= 0 {
		return nil, fmt.Errorf("buffer size must be > 0, got %d", size)
	}
	return &Engine{
		buf:        make([]frame.Command, size),
		armEnabled: startEnabled,
	}, nil
}

// Apply updates the mode flags from the buttons of a received command.
// Record and play react to edges against the previous command; enable
// follows the button level.
func (e *Engine) Apply(cmd frame.Command) []Event {
	var events []Event

	recordRise := cmd.Record && !e.prevRecord
	recordFall := !cmd.Record && e.prevRecord
	playRise := cmd.Play && !e.prevPlay
	playFall := !cmd.Play && e.prevPlay
	e.prevRecord, e.prevPlay = cmd.Record, cmd.Play

	switch {
	case recordRise && !e.recording:
		if e.playing {
			e.playing = false
			events = append(events, PlaybackStopped)
		}
		e.recording = true
		e.bufferIndex = 0
		e.recordingIndex = 0
		events = append(events, RecordingStarted)
	case recordFall && e.recording:
		e.recording = false
		events = append(events, RecordingStopped)
	}

	switch {
	case playRise && !e.playing:
		if e.recording {
			// recordingIndex already holds the captured length.
			e.recording = false
			events = append(events, RecordingStopped)
		}
		e.playing = true
		e.bufferIndex = 0
		events = append(events, PlaybackStarted)
	case playFall && e.playing:
		e.playing = false
		e.bufferIndex = 0
		events = append(events, PlaybackStopped)
	}

	if cmd.Enable != e.armEnabled {
		e.armEnabled = cmd.Enable
		if e.armEnabled {
			events = append(events, ArmEnabled)
		} else {
			events = append(events, ArmDisabled)
		}
	}

	return events
}

// Step runs one control tick. It returns the active frame: the live frame
// when idle or recording, a recorded frame when playing.
func (e *Engine) Step(live frame.Command) (frame.Command, []Event) {
	switch {
	case e.recording:
		e.buf[e.bufferIndex] = live
		e.bufferIndex = (e.bufferIndex + 1) % len(e.buf)
		var events []Event
		if e.recordingIndex < len(e.buf) {
			e.recordingIndex++
		}
		if e.bufferIndex == 0 {
			events = append(events, BufferWrapped)
		}
		debug.Verbose("rec: bufferIndex=%d recordingIndex=%d", e.bufferIndex, e.recordingIndex)
		return live, events

	case e.playing:
		// Playback always starts at slot 0. After a wrap that slot is not
		// the oldest frame; the loop still covers every slot in index order.
		if e.recordingIndex == 0 {
			e.playing = false
			e.bufferIndex = 0
			return live, []Event{PlaybackEmpty}
		}
		active := e.buf[e.bufferIndex]
		e.bufferIndex++
		if e.bufferIndex >= e.recordingIndex {
			e.bufferIndex = 0
		}
		debug.Verbose("play: bufferIndex=%d recordingIndex=%d", e.bufferIndex, e.recordingIndex)
		return active, nil
	}
	return live, nil
}

// ArmEnabled reports whether actuation is allowed.
func (e *Engine) ArmEnabled() bool {
	return e.armEnabled
}

// State returns a copy of the flags and cursors.
func (e *Engine) State() State {
	return State{
		Recording:      e.recording,
		Playing:        e.playing,
		ArmEnabled:     e.armEnabled,
		BufferIndex:    e.bufferIndex,
		RecordingIndex: e.recordingIndex,
		Capacity:       len(e.buf),
	}
}
