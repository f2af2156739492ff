package connectivity

import (
	"testing"
	"time"

	"chatsync/internal/bus"
)

func TestInitialStateOffline(t *testing.T) {
	m := NewMonitor(nil)
	if m.Online() {
		t.Error("monitor should start offline")
	}
}

func TestTransitionPublishesEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("connectivity.", 10)
	defer unsub()

	m := NewMonitor(b)
	m.SetOnline(true)

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindConnectivityChanged {
			t.Errorf("kind = %q, want %q", evt.Kind, bus.KindConnectivityChanged)
		}
		change, ok := evt.Payload.(Change)
		if !ok {
			t.Fatalf("payload type = %T, want Change", evt.Payload)
		}
		if !change.Online {
			t.Error("change.Online = false, want true")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for connectivity event")
	}
	if !m.Online() {
		t.Error("Online() = false after SetOnline(true)")
	}
}

func TestRepeatedStateDoesNotRepublish(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("connectivity.", 10)
	defer unsub()

	m := NewMonitor(b)
	m.SetOnline(true)
	<-ch

	m.SetOnline(true)
	select {
	case evt := <-ch:
		t.Errorf("unexpected event for repeated state: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no event.
	}
}

func TestOfflineTransition(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("connectivity.", 10)
	defer unsub()

	m := NewMonitor(b)
	m.SetOnline(true)
	<-ch
	m.SetOnline(false)

	evt := <-ch
	if change := evt.Payload.(Change); change.Online {
		t.Error("change.Online = true, want false")
	}
	if m.Online() {
		t.Error("Online() = true after SetOnline(false)")
	}
}
