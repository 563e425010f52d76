// Package bridge mirrors doorbell presses onto MQTT as a Home Assistant
// device trigger and injects presses made from Home Assistant back into the
// engine.
package bridge

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/doorbell/internal/gpio"
	"github.com/sweeney/doorbell/internal/logic"
	"github.com/sweeney/doorbell/internal/mqtt"
)

// ErrConnection is returned when the broker cannot be reached or refuses a
// publish or subscription.
var ErrConnection = errors.New("bridge connection failed")

// PressPayload is the command sentinel carried on the action topic.
const PressPayload = "PRESS"

// Defaults.
const (
	DefaultTopicPrefix = "homeassistant"
	DefaultDeviceID    = "doorbell"
	DefaultDeviceName  = "Doorbell"
	DefaultPressHold   = 200 * time.Millisecond
)

// echoTTL bounds how long a published press waits for its broker echo. An
// echo that never arrives is forgotten after this long.
const echoTTL = 5 * time.Second

// Config names the device and its topics.
type Config struct {
	TopicPrefix string
	DeviceID    string
	DeviceName  string
	// PressHold is the gap between the synthetic press and release of a
	// remote press.
	PressHold time.Duration
}

func (c Config) withDefaults() Config {
	if c.TopicPrefix == "" {
		c.TopicPrefix = DefaultTopicPrefix
	}
	if c.DeviceID == "" {
		c.DeviceID = DefaultDeviceID
	}
	if c.DeviceName == "" {
		c.DeviceName = DefaultDeviceName
	}
	if c.PressHold <= 0 {
		c.PressHold = DefaultPressHold
	}
	return c
}

// ConfigTopic is where the discovery message is published.
func (c Config) ConfigTopic() string {
	return fmt.Sprintf("%s/device_automation/%s/press/config", c.TopicPrefix, c.DeviceID)
}

// ActionTopic carries press commands in both directions.
func (c Config) ActionTopic() string {
	return fmt.Sprintf("%s/device_automation/%s/press/action", c.TopicPrefix, c.DeviceID)
}

// Device identifies the doorbell to Home Assistant.
type Device struct {
	Name        string   `json:"name"`
	Identifiers []string `json:"identifiers"`
}

// Discovery is the Home Assistant device trigger discovery message.
type Discovery struct {
	AutomationType string `json:"automation_type"`
	Device         Device `json:"device"`
	Name           string `json:"name"`
	Icon           string `json:"icon"`
	UniqueID       string `json:"unique_id"`
	Topic          string `json:"topic"`
	Type           string `json:"type"`
	Subtype        string `json:"subtype"`
	Payload        string `json:"payload"`
}

// DiscoveryMessage builds the discovery message for c.
func (c Config) DiscoveryMessage() Discovery {
	return Discovery{
		AutomationType: "trigger",
		Device:         Device{Name: c.DeviceName, Identifiers: []string{c.DeviceID}},
		Name:           c.DeviceName,
		Icon:           "mdi:doorbell",
		UniqueID:       c.DeviceID + "_button",
		Topic:          c.ActionTopic(),
		Type:           "action",
		Subtype:        "press",
		Payload:        PressPayload,
	}
}

// Sampler accepts injected samples. *logic.Engine implements it.
type Sampler interface {
	OnSample(level gpio.Level, at time.Time, src logic.Source) (logic.Transition, bool, error)
}

// Stats counts bridge traffic since startup.
type Stats struct {
	Published int
	Received  int
	Echoes    int
	Ignored   int
}

// Bridge connects the engine to an MQTT broker.
type Bridge struct {
	client   mqtt.Client
	engine   Sampler
	polarity logic.Polarity
	cfg      Config
	now      func() time.Time

	mu     sync.Mutex
	echoes []time.Time // publish times of presses awaiting their echo; zero while buffered offline
	stats  Stats
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates a bridge. Call Start before registering its task.
func New(client mqtt.Client, engine Sampler, polarity logic.Polarity, cfg Config) *Bridge {
	return &Bridge{
		client:   client,
		engine:   engine,
		polarity: polarity,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Config returns the effective configuration.
func (b *Bridge) Config() Config {
	return b.cfg
}

// Start announces the device and subscribes to the action topic. Any failure
// is wrapped in ErrConnection. Discovery is re-announced after every
// reconnect.
func (b *Bridge) Start() error {
	if err := b.announce(); err != nil {
		return err
	}
	if err := b.client.Subscribe(b.cfg.ActionTopic(), 1, b.handle); err != nil {
		return fmt.Errorf("%w: subscribe: %v", ErrConnection, err)
	}
	b.client.OnReconnect(func() {
		b.startBufferedEchoes()
		if err := b.announce(); err != nil {
			log.WithError(err).Error("bridge: re-announce failed")
		}
	})

	log.WithFields(log.Fields{
		"config_topic": b.cfg.ConfigTopic(),
		"action_topic": b.cfg.ActionTopic(),
	}).Info("bridge: announced to home assistant")
	return nil
}

func (b *Bridge) announce() error {
	payload, err := json.Marshal(b.cfg.DiscoveryMessage())
	if err != nil {
		return fmt.Errorf("encode discovery: %w", err)
	}
	if err := b.client.Publish(mqtt.Message{Topic: b.cfg.ConfigTopic(), Payload: payload}); err != nil {
		return fmt.Errorf("%w: publish discovery: %v", ErrConnection, err)
	}
	return nil
}

// Press publishes a press command at QoS 1. The broker echoes it back to our
// own subscription; that echo is swallowed instead of being injected.
func (b *Bridge) Press() error {
	now := b.now()
	at := now
	if !b.client.IsConnected() {
		// Buffered until reconnect; the echo clock starts then.
		at = time.Time{}
	}
	b.mu.Lock()
	b.expireEchoes(now)
	b.echoes = append(b.echoes, at)
	b.mu.Unlock()

	err := b.client.Publish(mqtt.Message{Topic: b.cfg.ActionTopic(), Payload: []byte(PressPayload), QoS: 1})

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		for i, t := range b.echoes {
			if t.Equal(at) {
				b.echoes = append(b.echoes[:i], b.echoes[i+1:]...)
				break
			}
		}
		return fmt.Errorf("%w: publish press: %v", ErrConnection, err)
	}
	b.stats.Published++
	return nil
}

// expireEchoes drops pending echoes published more than echoTTL before now.
// b.mu must be held.
func (b *Bridge) expireEchoes(now time.Time) {
	n := 0
	for _, t := range b.echoes {
		if t.IsZero() || now.Sub(t) <= echoTTL {
			b.echoes[n] = t
			n++
		}
	}
	if dropped := len(b.echoes) - n; dropped > 0 {
		log.WithField("count", dropped).Debug("bridge: press echo never arrived")
	}
	b.echoes = b.echoes[:n]
}

// startBufferedEchoes starts the echo clock for presses that were buffered
// while the broker was unreachable and have now been replayed.
func (b *Bridge) startBufferedEchoes() {
	now := b.now()
	b.mu.Lock()
	for i, t := range b.echoes {
		if t.IsZero() {
			b.echoes[i] = now
		}
	}
	b.mu.Unlock()
}

// Task publishes every local press in the background, so a slow broker never
// holds up the engine. Presses that arrived from the broker are not published
// again. Wait blocks until the publishes started so far have finished.
func (b *Bridge) Task() logic.Task {
	return logic.Task{
		Name:      "mqtt",
		Direction: logic.PressDirection(b.polarity.ButtonActive),
		Run: func(t logic.Transition) error {
			if t.Source == logic.SourceRemote {
				return nil
			}
			b.mu.Lock()
			if b.closed {
				b.mu.Unlock()
				return nil
			}
			b.wg.Add(1)
			b.mu.Unlock()

			go func() {
				defer b.wg.Done()
				if err := b.Press(); err != nil {
					log.WithError(err).Warn("bridge: press not published")
				}
			}()
			return nil
		},
	}
}

func (b *Bridge) handle(msg mqtt.Message) {
	entry := log.WithField("topic", msg.Topic)
	b.mu.Lock()
	b.expireEchoes(b.now())
	switch {
	case b.closed:
		b.mu.Unlock()
		return
	case strings.TrimSpace(string(msg.Payload)) != PressPayload:
		b.stats.Ignored++
		b.mu.Unlock()
		entry.WithField("payload", string(msg.Payload)).Debug("bridge: ignoring unknown command")
		return
	case len(b.echoes) > 0:
		b.echoes = b.echoes[1:]
		b.stats.Echoes++
		b.mu.Unlock()
		return
	}
	b.stats.Received++
	b.wg.Add(1)
	b.mu.Unlock()

	entry.Info("bridge: remote press")
	go b.inject()
}

// inject emulates a physical press: the active level, a short hold, then
// the idle level. The release is always sent so the relay is never left
// energised, even when the bridge is closing.
func (b *Bridge) inject() {
	defer b.wg.Done()

	active := b.polarity.ButtonActive
	b.sample(active)

	t := time.NewTimer(b.cfg.PressHold)
	select {
	case <-t.C:
	case <-b.done:
		t.Stop()
	}

	b.sample(active.Invert())
}

func (b *Bridge) sample(level gpio.Level) {
	if _, _, err := b.engine.OnSample(level, b.now(), logic.SourceRemote); err != nil {
		log.WithError(err).WithField("level", level).Warn("bridge: injected sample failed")
	}
}

// Stats returns traffic counters.
func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// IsConnected reports the broker connection state.
func (b *Bridge) IsConnected() bool {
	return b.client.IsConnected()
}

// Wait blocks until every in-flight remote press has been injected and every
// local press handed to Task has been published.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

// Close stops accepting remote presses, finishes in-flight injections and
// publishes and disconnects from the broker.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	b.wg.Wait()
	return b.client.Close()
}
