package embedded

import (
	"errors"
	"sync"
	"testing"
)

func TestEventTypeString(t *testing.T) {
	tests := []struct {
		eventType EventType
		want      string
	}{
		{EventInstanceCreated, "instance_created"},
		{EventDeviceBound, "device_bound"},
		{EventInstanceStarted, "instance_started"},
		{EventInstanceStopped, "instance_stopped"},
		{EventError, "error"},
		{EventType(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.eventType.String(); got != tt.want {
			t.Errorf("EventType(%d).String() = %q, want %q", tt.eventType, got, tt.want)
		}
	}
}

func TestEventEmitter_DropsWhenFull(t *testing.T) {
	em := newEventEmitter(2)

	for i := 0; i < 5; i++ {
		em.emitInstance(EventInstanceCreated, "a", "msg")
	}
	if got := em.droppedEvents(); got != 3 {
		t.Errorf("dropped %d events, want 3", got)
	}
	if len(em.channel()) != 2 {
		t.Errorf("buffered %d events, want 2", len(em.channel()))
	}
}

func TestEventEmitter_ErrorEvent(t *testing.T) {
	em := newEventEmitter(1)
	cause := errors.New("boom")
	em.emitError("vpn1", cause)

	ev := <-em.channel()
	if ev.Type != EventError {
		t.Errorf("type = %v, want %v", ev.Type, EventError)
	}
	if ev.Instance != "vpn1" || !errors.Is(ev.Error, cause) || ev.Message != "boom" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestEventEmitter_CloseIsIdempotent(t *testing.T) {
	em := newEventEmitter(1)
	em.close()
	em.close()
	em.emitInstance(EventInstanceCreated, "a", "after close")

	if _, ok := <-em.channel(); ok {
		t.Error("event delivered after close")
	}
}

func TestEventEmitter_CloseDuringEmit(t *testing.T) {
	em := newEventEmitter(4)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			em.emitInstance(EventInstanceCreated, "a", "msg")
		}
	}()
	go func() {
		defer wg.Done()
		em.close()
	}()
	wg.Wait()

	// Drains whatever landed before the close; the channel must be closed.
	for range em.channel() {
	}
}
