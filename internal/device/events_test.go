package device

import "testing"

func TestBusUnsubscribeTwice(t *testing.T) {
	b := NewBus()
	_, unsub := b.Subscribe()

	unsub()
	unsub() // must not panic

	if b.Len() != 0 {
		t.Errorf("Expected no subscribers, got %d", b.Len())
	}
}

func TestBusPublishAfterUnsubscribe(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe()
	unsub()

	b.Publish(Event{Type: EventDeviceUpdated})

	if _, ok := <-ch; ok {
		t.Error("Expected the channel to be closed and empty")
	}
}

func TestBusDropsSlowConsumer(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe()
	defer unsub()

	for i := 0; i < 100; i++ {
		b.Publish(Event{Type: EventDeviceUpdated})
	}

	// The buffer holds 64; the rest were dropped rather than blocking
	// the publisher.
	if n := len(ch); n != 64 {
		t.Errorf("Expected a full 64-event buffer, got %d", n)
	}
}
