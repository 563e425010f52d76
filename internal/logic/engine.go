package logic

import (
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/doorbell/internal/gpio"
)

// Default tuning values.
const (
	DefaultBurstThreshold = 15
	DefaultBurstWindow    = 60 * time.Second
)

// Config tunes the engine.
type Config struct {
	Polarity Polarity
	// BurstThreshold is the accepted-transition count within BurstWindow at
	// which relay writes stop.
	BurstThreshold int
	BurstWindow    time.Duration
}

// Engine turns settled input samples into transitions. It drives the relay
// unless the burst threshold has been reached and always runs matching tasks.
// Safe for concurrent use: the polling loop and remote injections are
// serialized on an internal mutex, and tasks see transitions in the order
// they were accepted.
type Engine struct {
	cfg   Config
	relay gpio.Output
	tasks *Registry

	mu       sync.Mutex
	previous gpio.Level
	known    bool
	window   BurstWindow
	counts   Counts
	// energised is set while the last relay write may have left the bell
	// ringing.
	energised bool
	pending   []Transition
	draining  bool
}

// NewEngine creates an engine writing to relay and notifying tasks.
// Zero threshold or window fall back to the defaults.
func NewEngine(cfg Config, relay gpio.Output, tasks *Registry) *Engine {
	if cfg.BurstThreshold <= 0 {
		cfg.BurstThreshold = DefaultBurstThreshold
	}
	if cfg.BurstWindow <= 0 {
		cfg.BurstWindow = DefaultBurstWindow
	}
	if tasks == nil {
		tasks = NewRegistry()
	}
	return &Engine{cfg: cfg, relay: relay, tasks: tasks}
}

// OnSample processes a settled sample. It returns the transition and true when
// the level differs from the last accepted one. A relay write failure is
// returned after tasks have run; it never prevents them from running.
//
// Tasks run outside the lock, so a task may inject samples of its own.
// Accepted transitions are queued and dispatched one at a time in acceptance
// order. If another call is already dispatching, OnSample queues its
// transition and returns before the tasks for it have run.
func (e *Engine) OnSample(level gpio.Level, at time.Time, src Source) (Transition, bool, error) {
	e.mu.Lock()
	if e.known && e.previous == level {
		e.mu.Unlock()
		return Transition{}, false, nil
	}

	t := Transition{
		Previous:    e.previous,
		HasPrevious: e.known,
		Level:       level,
		Time:        at,
		Pressed:     e.cfg.Polarity.Pressed(level),
		Source:      src,
	}
	e.previous = level
	e.known = true

	if e.window.Start.IsZero() || at.Sub(e.window.Start) >= e.cfg.BurstWindow {
		e.window = BurstWindow{Start: at, Count: 1}
	} else {
		e.window.Count++
	}
	t.WindowCount = e.window.Count

	// Past the burst threshold only a release that de-energises the relay
	// is still written.
	var writeErr error
	if e.window.Count < e.cfg.BurstThreshold || (!t.Pressed && e.energised) {
		writeErr = e.driveRelay(t.Pressed)
	} else {
		t.RelaySuppressed = true
		e.counts.Suppressed++
	}

	e.counts.Transitions++
	if t.Pressed {
		e.counts.Presses++
	}
	e.pending = append(e.pending, t)
	if e.draining {
		e.mu.Unlock()
		return t, true, writeErr
	}
	e.draining = true
	e.mu.Unlock()

	e.drain()
	return t, true, writeErr
}

// driveRelay writes the relay level for pressed. e.mu must be held.
func (e *Engine) driveRelay(pressed bool) error {
	if e.relay == nil {
		e.energised = pressed
		return nil
	}
	level := e.cfg.Polarity.RelayLevel(pressed)
	if err := e.relay.Write(level); err != nil {
		if pressed {
			e.energised = true
		}
		return fmt.Errorf("drive relay %s: %w", level, err)
	}
	e.energised = pressed
	return nil
}

// drain dispatches queued transitions until the queue is empty.
func (e *Engine) drain() {
	for {
		e.mu.Lock()
		if len(e.pending) == 0 {
			e.draining = false
			e.mu.Unlock()
			return
		}
		t := e.pending[0]
		e.pending = e.pending[1:]
		e.mu.Unlock()

		e.tasks.Dispatch(t)
	}
}

// State returns a snapshot of the engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		Level:  e.previous,
		Known:  e.known,
		Window: e.window,
		Counts: e.counts,
	}
}

// Polarity returns the configured polarity.
func (e *Engine) Polarity() Polarity {
	return e.cfg.Polarity
}

// Tasks returns the registry the engine dispatches to.
func (e *Engine) Tasks() *Registry {
	return e.tasks
}
