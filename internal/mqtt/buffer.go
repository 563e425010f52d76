package mqtt

import (
	log "github.com/sirupsen/logrus"
)

// ringBuffer is a fixed-capacity FIFO of messages published while
// disconnected. Not safe for concurrent use; caller must synchronize.
type ringBuffer struct {
	buf      []Message
	capacity int
	head     int // next write position
	count    int
	dropped  int // messages overwritten since last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{
		buf:      make([]Message, capacity),
		capacity: capacity,
	}
}

func (r *ringBuffer) push(msg Message) {
	if r.count == r.capacity {
		if r.dropped == 0 {
			log.WithField("capacity", r.capacity).Warn("mqtt: offline buffer full, dropping oldest")
		}
		r.dropped++
		// head already points at the oldest entry
		r.buf[r.head] = msg
		r.head = (r.head + 1) % r.capacity
		return
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % r.capacity
	r.count++
}

// drainAll returns buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drainAll() []Message {
	if r.count == 0 {
		return nil
	}

	out := make([]Message, r.count)
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(start+i)%r.capacity]
	}

	if r.dropped > 0 {
		log.WithField("dropped", r.dropped).Warn("mqtt: messages lost while disconnected")
	}
	r.count = 0
	r.head = 0
	r.dropped = 0
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
