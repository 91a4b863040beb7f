package events

import (
	"testing"
	"time"
)

func TestBroker_PublishSubscribe(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(&Event{Type: EventConnectionAccepted, Message: "conn-1"})

	select {
	case evt := <-sub:
		if evt.Type != EventConnectionAccepted {
			t.Errorf("got type %q, want %q", evt.Type, EventConnectionAccepted)
		}
		if evt.Timestamp.IsZero() {
			t.Error("Publish should stamp a zero Timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBroker_MultipleSubscribers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	defer b.Unsubscribe(sub1)
	defer b.Unsubscribe(sub2)

	if got := b.SubscriberCount(); got != 2 {
		t.Fatalf("SubscriberCount() = %d, want 2", got)
	}

	b.Publish(&Event{Type: EventWorkerRespawned})

	for _, sub := range []Subscriber{sub1, sub2} {
		select {
		case <-sub:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event on a subscriber")
		}
	}
}

func TestBroker_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Unsubscribe(sub)

	if got := b.SubscriberCount(); got != 0 {
		t.Fatalf("SubscriberCount() = %d, want 0 after Unsubscribe", got)
	}

	// sub's channel is closed; receiving from it must not block.
	select {
	case _, ok := <-sub:
		if ok {
			t.Error("expected closed channel to yield zero value with ok=false")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out reading from closed subscriber channel")
	}
}

func TestBroker_PublishStampsID(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(&Event{Type: EventPostCommitted, Message: "0"})

	select {
	case evt := <-sub:
		if evt.ID == "" {
			t.Error("Publish should stamp a non-empty ID")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBroker_StopIsIdempotentAndRejectsLateCalls(t *testing.T) {
	b := NewBroker()
	b.Start()

	sub := b.Subscribe()
	b.Stop()
	b.Stop() // must not panic on double-close

	// A subscribe after Stop gets an already-closed channel.
	late := b.Subscribe()
	select {
	case _, ok := <-late:
		if ok {
			t.Error("Subscribe after Stop should return an already-closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out reading from post-Stop subscriber channel")
	}

	// A publish after Stop must not panic or deliver anything, and sub
	// is already closed by Stop itself.
	b.Publish(&Event{Type: EventWorkerRespawned})
	if _, ok := <-sub; ok {
		t.Error("sub should have been closed by Stop")
	}
}
