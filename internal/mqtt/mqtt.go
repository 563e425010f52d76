// Package mqtt provides the broker connection used by the remote bridge,
// with an abstraction for testing.
package mqtt

import (
	"time"

	"github.com/google/uuid"
)

// Defaults for RealClient.
const (
	DefaultBufferSize     = 100
	DefaultConnectTimeout = 10 * time.Second
	publishTimeout        = 5 * time.Second
)

// Message is a single MQTT message, inbound or outbound.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// Handler receives messages for a subscribed topic.
type Handler func(msg Message)

// Client is the subset of an MQTT connection the bridge needs.
type Client interface {
	// Publish sends msg. While disconnected the message may be buffered and
	// replayed after reconnection, in which case Publish returns nil.
	Publish(msg Message) error

	// Subscribe registers h for topic. Subscriptions survive reconnects.
	Subscribe(topic string, qos byte, h Handler) error

	// OnReconnect registers fn to run after every reconnection (not the
	// initial connection).
	OnReconnect(fn func())

	ConnectionStatus

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Options configures a RealClient.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// BufferSize is the number of publishes kept while disconnected.
	BufferSize     int
	ConnectTimeout time.Duration
}

// ClientID returns prefix with a short random suffix, so that two instances
// never kick each other off the broker.
func ClientID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}
