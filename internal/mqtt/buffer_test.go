package mqtt

import (
	"testing"
)

func msg(i int) Message {
	return Message{Topic: "doorbell/test", Payload: []byte{byte(i)}}
}

func TestRingBufferEmptyDrain(t *testing.T) {
	rb := newRingBuffer(10)
	if got := rb.drainAll(); got != nil {
		t.Errorf("expected nil from empty drain, got %d items", len(got))
	}
}

func TestRingBufferKeepsOrder(t *testing.T) {
	rb := newRingBuffer(10)
	for i := 0; i < 5; i++ {
		rb.push(msg(i))
	}

	got := rb.drainAll()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	for i, m := range got {
		if m.Payload[0] != byte(i) {
			t.Errorf("item %d: expected payload %d, got %d", i, i, m.Payload[0])
		}
	}
	if got := rb.drainAll(); got != nil {
		t.Errorf("expected nil from second drain, got %d items", len(got))
	}
}

func TestRingBufferDropsOldest(t *testing.T) {
	rb := newRingBuffer(3)
	for i := 0; i < 7; i++ {
		rb.push(msg(i))
	}
	if rb.dropped != 4 {
		t.Errorf("dropped: got %d, want 4", rb.dropped)
	}

	got := rb.drainAll()
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	for i, m := range got {
		want := byte(i + 4)
		if m.Payload[0] != want {
			t.Errorf("item %d: expected payload %d, got %d", i, want, m.Payload[0])
		}
	}
	if rb.dropped != 0 {
		t.Errorf("dropped not reset after drain: %d", rb.dropped)
	}
}

func TestRingBufferReuseAfterDrain(t *testing.T) {
	rb := newRingBuffer(4)
	for i := 0; i < 3; i++ {
		rb.push(msg(i))
	}
	rb.drainAll()

	for i := 10; i < 14; i++ {
		rb.push(msg(i))
	}
	if rb.len() != 4 {
		t.Fatalf("len: got %d, want 4", rb.len())
	}
	for i, m := range rb.drainAll() {
		if want := byte(10 + i); m.Payload[0] != want {
			t.Errorf("item %d: expected %d, got %d", i, want, m.Payload[0])
		}
	}
}

func TestRingBufferMinimumCapacity(t *testing.T) {
	rb := newRingBuffer(0)
	rb.push(msg(1))
	rb.push(msg(2))
	got := rb.drainAll()
	if len(got) != 1 || got[0].Payload[0] != 2 {
		t.Errorf("expected only the newest message, got %+v", got)
	}
}

func TestRingBufferPreservesFields(t *testing.T) {
	rb := newRingBuffer(2)
	rb.push(Message{
		Topic:    "homeassistant/device_automation/doorbell/press/action",
		Payload:  []byte("PRESS"),
		QoS:      1,
		Retained: true,
	})

	got := rb.drainAll()
	if len(got) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got))
	}
	if got[0].Topic != "homeassistant/device_automation/doorbell/press/action" {
		t.Errorf("topic: got %s", got[0].Topic)
	}
	if string(got[0].Payload) != "PRESS" {
		t.Errorf("payload: got %s", got[0].Payload)
	}
	if got[0].QoS != 1 || !got[0].Retained {
		t.Errorf("qos/retained not preserved: %+v", got[0])
	}
}
