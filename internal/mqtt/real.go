package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

type route struct {
	qos     byte
	handler Handler
}

// RealClient talks to an actual MQTT broker. The initial connection must
// succeed; after that paho reconnects on its own, publishes are buffered
// while the link is down and subscriptions are restored on reconnect.
type RealClient struct {
	client paho.Client

	mu        sync.Mutex
	buffer    *ringBuffer
	routes    map[string]route
	reconnect []func()
	started   bool
}

// Connect creates a client and connects it to opts.Broker.
func Connect(opts Options) (*RealClient, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.ClientID == "" {
		opts.ClientID = ClientID("doorbell")
	}

	c := &RealClient{
		buffer: newRingBuffer(opts.BufferSize),
		routes: make(map[string]route),
	}

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetConnectTimeout(opts.ConnectTimeout).
		SetMaxReconnectInterval(30 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.WithError(err).Warn("mqtt: connection lost")
		})

	c.client = paho.NewClient(po)
	token := c.client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		return nil, fmt.Errorf("connect to %s: timeout", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", opts.Broker, err)
	}

	log.WithFields(log.Fields{"broker": opts.Broker, "client_id": opts.ClientID}).Info("mqtt: connected")
	return c, nil
}

func (c *RealClient) onConnect(_ paho.Client) {
	c.mu.Lock()
	first := !c.started
	c.started = true
	pending := c.buffer.drainAll()
	routes := make(map[string]route, len(c.routes))
	for topic, r := range c.routes {
		routes[topic] = r
	}
	hooks := append([]func(){}, c.reconnect...)
	c.mu.Unlock()

	if !first {
		log.Info("mqtt: reconnected")
		for topic, r := range routes {
			if err := c.subscribe(topic, r); err != nil {
				log.WithError(err).WithField("topic", topic).Error("mqtt: resubscribe failed")
			}
		}
	}

	for _, msg := range pending {
		if err := c.publish(msg); err != nil {
			log.WithError(err).WithField("topic", msg.Topic).Warn("mqtt: replay failed")
		}
	}
	if len(pending) > 0 {
		log.WithField("count", len(pending)).Info("mqtt: replayed buffered messages")
	}

	if !first {
		for _, fn := range hooks {
			fn()
		}
	}
}

// Publish sends msg, or buffers it while the connection is down.
func (c *RealClient) Publish(msg Message) error {
	if !c.client.IsConnectionOpen() {
		c.mu.Lock()
		c.buffer.push(msg)
		n := c.buffer.len()
		c.mu.Unlock()
		log.WithFields(log.Fields{"topic": msg.Topic, "buffered": n}).Debug("mqtt: disconnected, message buffered")
		return nil
	}
	return c.publish(msg)
}

func (c *RealClient) publish(msg Message) error {
	token := c.client.Publish(msg.Topic, msg.QoS, msg.Retained, msg.Payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", msg.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Topic, err)
	}
	return nil
}

// Subscribe registers h for topic and remembers it for reconnects.
func (c *RealClient) Subscribe(topic string, qos byte, h Handler) error {
	r := route{qos: qos, handler: h}
	c.mu.Lock()
	c.routes[topic] = r
	c.mu.Unlock()
	return c.subscribe(topic, r)
}

func (c *RealClient) subscribe(topic string, r route) error {
	token := c.client.Subscribe(topic, r.qos, func(_ paho.Client, m paho.Message) {
		r.handler(Message{
			Topic:    m.Topic(),
			Payload:  m.Payload(),
			QoS:      m.Qos(),
			Retained: m.Retained(),
		})
	})
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// OnReconnect registers fn to run after every reconnection.
func (c *RealClient) OnReconnect(fn func()) {
	c.mu.Lock()
	c.reconnect = append(c.reconnect, fn)
	c.mu.Unlock()
}

// IsConnected reports whether the client currently has an open connection.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close disconnects from the broker, waiting up to one second for in-flight work.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000)
	return nil
}
