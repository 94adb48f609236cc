package events

import (
	"testing"
	"time"
)

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestSubscribeReceivesMatchingType(t *testing.T) {
	bus := NewEventBus()

	got := make(chan Event, 1)
	bus.Subscribe(EventBalanceUpdated, func(e Event) { got <- e })

	bus.PublishBalanceUpdated("r1", "deposit", "u1", "live", 150, 50, "+")

	e := waitEvent(t, got)
	if e.Type != EventBalanceUpdated {
		t.Errorf("expected BALANCE_UPDATED, got %s", e.Type)
	}
	if e.Data["new_balance"] != 150.0 || e.Data["delta_sign"] != "+" {
		t.Errorf("unexpected payload: %+v", e.Data)
	}
	if e.Data["request_id"] != "r1" || e.Data["kind"] != "deposit" {
		t.Errorf("expected request context in payload, got %+v", e.Data)
	}
	if e.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestSubscribeIgnoresOtherTypes(t *testing.T) {
	bus := NewEventBus()

	got := make(chan Event, 1)
	bus.Subscribe(EventSnapshotStale, func(e Event) { got <- e })

	bus.PublishRequestFinalized("r1", "deposit", "approved", "op-1")

	select {
	case e := <-got:
		t.Fatalf("unexpected event delivered: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	bus := NewEventBus()

	got := make(chan Event, 3)
	bus.SubscribeAll(func(e Event) { got <- e })

	bus.PublishRequestFinalized("r1", "withdrawal", "rejected", "op-1")
	bus.PublishSnapshotStale("all", time.Now())
	bus.PublishError("store", "load failed", nil)

	seen := make(map[EventType]bool)
	for i := 0; i < 3; i++ {
		seen[waitEvent(t, got).Type] = true
	}
	for _, want := range []EventType{EventRequestFinalized, EventSnapshotStale, EventError} {
		if !seen[want] {
			t.Errorf("missing event type %s", want)
		}
	}
}

func TestMultipleSubscribersAllNotified(t *testing.T) {
	bus := NewEventBus()

	first := make(chan Event, 1)
	second := make(chan Event, 1)
	bus.Subscribe(EventPlatformDegraded, func(e Event) { first <- e })
	bus.Subscribe(EventPlatformDegraded, func(e Event) { second <- e })

	bus.PublishPlatformDegraded("verify r1", 3, nil)

	waitEvent(t, first)
	waitEvent(t, second)
}
