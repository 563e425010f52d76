// Package status provides a thread-safe status tracker for the doorbell
// daemon. It is read by the HTTP handlers and the print-state command.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/doorbell/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	PollMs         int64
	SettleMs       int64
	BurstThreshold int
	BurstWindowMs  int64
	CooldownMs     int64
	CooldownMode   string
	Store          string
	Broker         string // empty = bridge disabled
	HTTPAddr       string
	Mock           bool
}

// Notifications aggregates dispatcher results. This is a local copy to
// avoid importing internal/notify from status.
type Notifications struct {
	Runs       int
	Delivered  int
	Gone       int
	Failed     int
	Suppressed int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Engine         logic.State
	Pressed        bool
	LastRing       time.Time
	LastRingSource logic.Source
	Notifications  Notifications
	Subscribers    int
	MQTTConnected  bool
	StartTime      time.Time
	Now            time.Time
	Config         Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetEngine records the engine state and whether the accepted level means
// pressed.
func (t *Tracker) SetEngine(s logic.State, pressed bool) {
	t.mu.Lock()
	t.snap.Engine = s
	t.snap.Pressed = pressed
	t.mu.Unlock()
}

// RecordRing stores the time and source of the latest press.
func (t *Tracker) RecordRing(tr logic.Transition) {
	t.mu.Lock()
	t.snap.LastRing = tr.Time
	t.snap.LastRingSource = tr.Source
	t.mu.Unlock()
}

// AddNotifications accumulates one fan-out's outcomes.
func (t *Tracker) AddNotifications(delivered, gone, failed int) {
	t.mu.Lock()
	t.snap.Notifications.Runs++
	t.snap.Notifications.Delivered += delivered
	t.snap.Notifications.Gone += gone
	t.snap.Notifications.Failed += failed
	t.mu.Unlock()
}

// SetSuppressedNotifications sets the number of triggers held back by the
// dispatcher cooldown. The count only grows; a smaller n is ignored.
func (t *Tracker) SetSuppressedNotifications(n int) {
	t.mu.Lock()
	if n > t.snap.Notifications.Suppressed {
		t.snap.Notifications.Suppressed = n
	}
	t.mu.Unlock()
}

// SetSubscribers sets the number of stored subscriptions.
func (t *Tracker) SetSubscribers(n int) {
	t.mu.Lock()
	t.snap.Subscribers = n
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Task returns a registry task that records every transition matching dir
// as a ring.
func (t *Tracker) Task(dir logic.Direction) logic.Task {
	return logic.Task{
		Name:      "status",
		Direction: dir,
		Run: func(tr logic.Transition) error {
			t.RecordRing(tr)
			return nil
		},
	}
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
