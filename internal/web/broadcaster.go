package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	clientBuffer = 64
	historySize  = 32
)

// StatusEvent represents a single status message for SSE.
type StatusEvent struct {
	Time  string `json:"t"`
	Level string `json:"l,omitempty"`
	Msg   string `json:"msg"`
}

// StatusBroadcaster distributes controller diagnostics and log lines to
// SSE clients and other listeners. It keeps the last few events so a
// client that connects late sees recent mode changes.
type StatusBroadcaster struct {
	clock clock.Clock

	mu      sync.RWMutex
	clients map[chan string]struct{}
	history []StatusEvent
}

// NewStatusBroadcaster creates a new broadcaster on the wall clock.
func NewStatusBroadcaster() *StatusBroadcaster {
	return NewStatusBroadcasterWithClock(clock.New())
}

// NewStatusBroadcasterWithClock creates a broadcaster timestamping with clk.
func NewStatusBroadcasterWithClock(clk clock.Clock) *StatusBroadcaster {
	return &StatusBroadcaster{
		clock:   clk,
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast messages and a cleanup function.
// The channel is primed with recent history. The caller must call the
// returned cleanup when done (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, clientBuffer)
	b.mu.Lock()
	for _, evt := range b.history {
		if payload, ok := encode(evt); ok {
			ch <- payload
		}
	}
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Broadcast sends a message to all subscribed clients.
// Messages are sent as JSON: {"t":"...","l":"info","msg":"..."}
// Slow clients may miss messages (non-blocking, buffered).
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	evt := StatusEvent{
		Time:  b.clock.Now().Format(time.RFC3339),
		Level: level,
		Msg:   msg,
	}
	payload, ok := encode(evt)
	if !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append(b.history, evt)
	if len(b.history) > historySize {
		b.history = b.history[len(b.history)-historySize:]
	}
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

// Status implements control.Sink.
func (b *StatusBroadcaster) Status(level, msg string) {
	b.Broadcast(level, msg)
}

// Recent returns up to n of the latest events, oldest first.
func (b *StatusBroadcaster) Recent(n int) []StatusEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n > len(b.history) {
		n = len(b.history)
	}
	out := make([]StatusEvent, n)
	copy(out, b.history[len(b.history)-n:])
	return out
}

// ClientCount returns the number of subscribed clients.
func (b *StatusBroadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func encode(evt StatusEvent) (string, bool) {
	data, err := json.Marshal(evt)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// BroadcastWriter implements io.Writer; each Write broadcasts the content.
// Lines tagged [ERROR] by the debug logger are sent at level "error".
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

// broadcastWriter wraps StatusBroadcaster as io.Writer for use with debug.SetOutput.
type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(string(p), "\n") {
		msg := strings.TrimSpace(line)
		if msg == "" {
			continue
		}
		level := "info"
		if strings.Contains(msg, "[ERROR]") {
			level = "error"
		}
		w.b.Broadcast(level, msg)
	}
	return len(p), nil
}
