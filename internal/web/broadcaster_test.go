package web

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func receive(t *testing.T, ch <-chan string) StatusEvent {
	t.Helper()
	select {
	case msg := <-ch:
		var evt StatusEvent
		if err := json.Unmarshal([]byte(msg), &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast")
	}
	return StatusEvent{}
}

func TestBroadcaster_SubscribeAndReceive(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Broadcast("warn", "playback stopped: nothing recorded")

	evt := receive(t, ch)
	if evt.Msg != "playback stopped: nothing recorded" {
		t.Errorf("msg = %q", evt.Msg)
	}
	if evt.Level != "warn" {
		t.Errorf("level = %q, want \"warn\"", evt.Level)
	}
}

func TestBroadcaster_MultipleSubscribers(t *testing.T) {
	b := NewStatusBroadcaster()
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	b.Status("info", "recording started")

	for i, ch := range []<-chan string{ch1, ch2} {
		if evt := receive(t, ch); evt.Msg != "recording started" {
			t.Errorf("subscriber %d: msg = %q", i, evt.Msg)
		}
	}
	if b.ClientCount() != 2 {
		t.Errorf("ClientCount = %d, want 2", b.ClientCount())
	}
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	unsub()
	unsub() // idempotent

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
	if b.ClientCount() != 0 {
		t.Errorf("ClientCount = %d, want 0", b.ClientCount())
	}
	// Broadcasting after unsubscribe should not panic
	b.Broadcast("info", "after unsub")
}

func TestBroadcaster_FullChannelDropsMessage(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	for i := 0; i < clientBuffer+10; i++ {
		b.Broadcast("info", "fill")
	}

	count := 0
	for len(ch) > 0 {
		<-ch
		count++
	}
	if count != clientBuffer {
		t.Errorf("expected %d buffered messages, got %d", clientBuffer, count)
	}
}

func TestBroadcaster_LateSubscriberGetsHistory(t *testing.T) {
	b := NewStatusBroadcaster()
	b.Broadcast("info", "arm enabled")
	b.Broadcast("info", "recording started")

	ch, unsub := b.Subscribe()
	defer unsub()

	if evt := receive(t, ch); evt.Msg != "arm enabled" {
		t.Errorf("first replayed = %q", evt.Msg)
	}
	if evt := receive(t, ch); evt.Msg != "recording started" {
		t.Errorf("second replayed = %q", evt.Msg)
	}
}

func TestBroadcaster_RecentIsBounded(t *testing.T) {
	b := NewStatusBroadcaster()
	for i := 0; i < historySize+5; i++ {
		b.Broadcast("info", "x")
	}
	if got := len(b.Recent(1000)); got != historySize {
		t.Errorf("Recent len = %d, want %d", got, historySize)
	}
	if got := len(b.Recent(3)); got != 3 {
		t.Errorf("Recent(3) len = %d", got)
	}
}

func TestBroadcaster_TimestampFromClock(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	b := NewStatusBroadcasterWithClock(mock)

	b.Broadcast("info", "timestamped")

	evts := b.Recent(1)
	if len(evts) != 1 || evts[0].Time != "2024-05-01T12:00:00Z" {
		t.Errorf("events = %+v", evts)
	}
}

func TestBroadcastWriter_SplitsLinesAndDetectsErrors(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	w := BroadcastWriter(b)
	in := "[ArmGo] [MODE] arm enabled\n  \n[ArmGo] [ERROR] servo write: nack\n"
	n, err := w.Write([]byte(in))
	if err != nil || n != len(in) {
		t.Fatalf("Write = %d, %v", n, err)
	}

	first := receive(t, ch)
	if first.Level != "info" || first.Msg != "[ArmGo] [MODE] arm enabled" {
		t.Errorf("first = %+v", first)
	}
	second := receive(t, ch)
	if second.Level != "error" {
		t.Errorf("second level = %q, want error", second.Level)
	}
	if len(ch) != 0 {
		t.Error("blank line should not be broadcast")
	}
}
