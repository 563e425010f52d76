package mqtt

import "sync"

// FakeClient records publishes and lets tests deliver inbound messages.
type FakeClient struct {
	mu sync.Mutex

	published []Message
	handlers  map[string]Handler
	qos       map[string]byte
	reconnect []func()

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// SubscribeError, if set, will be returned by Subscribe.
	SubscribeError error

	// Loopback delivers every successful publish back to a matching
	// subscription, the way a broker echoes a client's own messages.
	Loopback bool

	// Hold, if set, makes Publish wait until it is closed, like a broker
	// that is slow to acknowledge.
	Hold chan struct{}

	// Connected controls the return value of IsConnected.
	Connected bool

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeClient creates a connected FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		handlers:  make(map[string]Handler),
		qos:       make(map[string]byte),
		Connected: true,
	}
}

// Publish records msg.
func (f *FakeClient) Publish(msg Message) error {
	f.mu.Lock()
	hold := f.Hold
	f.mu.Unlock()
	if hold != nil {
		<-hold
	}

	f.mu.Lock()
	if f.PublishError != nil {
		err := f.PublishError
		f.mu.Unlock()
		return err
	}
	f.published = append(f.published, msg)
	h := f.handlers[msg.Topic]
	loop := f.Loopback
	f.mu.Unlock()

	if loop && h != nil {
		h(msg)
	}
	return nil
}

// Subscribe records the handler for topic.
func (f *FakeClient) Subscribe(topic string, qos byte, h Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubscribeError != nil {
		return f.SubscribeError
	}
	f.handlers[topic] = h
	f.qos[topic] = qos
	return nil
}

// OnReconnect records fn; Reconnect runs it.
func (f *FakeClient) OnReconnect(fn func()) {
	f.mu.Lock()
	f.reconnect = append(f.reconnect, fn)
	f.mu.Unlock()
}

// IsConnected reports whether the fake client is "connected".
func (f *FakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// SetConnected changes the connection state.
func (f *FakeClient) SetConnected(connected bool) {
	f.mu.Lock()
	f.Connected = connected
	f.mu.Unlock()
}

// Close marks the client as closed.
func (f *FakeClient) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Deliver simulates an inbound message. It reports whether a handler was
// subscribed to topic.
func (f *FakeClient) Deliver(topic string, payload []byte) bool {
	f.mu.Lock()
	h := f.handlers[topic]
	qos := f.qos[topic]
	f.mu.Unlock()
	if h == nil {
		return false
	}
	h(Message{Topic: topic, Payload: payload, QoS: qos})
	return true
}

// Reconnect simulates a reconnection, running every OnReconnect hook.
func (f *FakeClient) Reconnect() {
	f.mu.Lock()
	f.Connected = true
	hooks := append([]func(){}, f.reconnect...)
	f.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// Published returns a copy of every recorded publish.
func (f *FakeClient) Published() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.published...)
}

// Subscribed reports whether topic has a handler and its QoS.
func (f *FakeClient) Subscribed(topic string) (byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[topic]
	return f.qos[topic], ok
}

// Reset clears recorded publishes.
func (f *FakeClient) Reset() {
	f.mu.Lock()
	f.published = nil
	f.mu.Unlock()
}
