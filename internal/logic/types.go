// Package logic contains the debounce, burst-suppression and task dispatch
// logic for the doorbell button.
// This package performs no hardware reads and never sleeps; time is always
// injected via time.Time parameters.
package logic

import (
	"time"

	"github.com/sweeney/doorbell/internal/gpio"
)

// Source identifies where a sample came from.
type Source string

const (
	SourceHardware Source = "hardware"
	SourceRemote   Source = "remote"
	SourceMock     Source = "mock"
)

// Direction filters which transitions a task is interested in.
type Direction int

const (
	// Both matches every accepted transition.
	Both Direction = iota
	// Falling matches transitions to LOW (high-to-low).
	Falling
	// Rising matches transitions to HIGH (low-to-high).
	Rising
)

// String returns a short name for the direction.
func (d Direction) String() string {
	switch d {
	case Falling:
		return "falling"
	case Rising:
		return "rising"
	default:
		return "both"
	}
}

// Matches reports whether a transition to level qualifies for d.
func (d Direction) Matches(level gpio.Level) bool {
	switch d {
	case Falling:
		return level == gpio.Low
	case Rising:
		return level == gpio.High
	default:
		return true
	}
}

// PressDirection returns the direction that means "button pressed" for a
// button whose active level is active.
func PressDirection(active gpio.Level) Direction {
	if active == gpio.Low {
		return Falling
	}
	return Rising
}

// Polarity maps raw levels to logical meaning.
type Polarity struct {
	// ButtonActive is the input level while the button is pressed.
	// With a pull-up this is LOW.
	ButtonActive gpio.Level
	// RelayActive is the output level that energises the bell relay.
	RelayActive gpio.Level
}

// Pressed reports whether the raw input level means pressed.
func (p Polarity) Pressed(level gpio.Level) bool {
	return level == p.ButtonActive
}

// RelayLevel returns the output level for a given pressed state.
func (p Polarity) RelayLevel(pressed bool) gpio.Level {
	if pressed {
		return p.RelayActive
	}
	return p.RelayActive.Invert()
}

// Transition is a debounced change of the accepted input level.
type Transition struct {
	// Previous is the previously accepted level; only valid when HasPrevious.
	Previous    gpio.Level
	HasPrevious bool
	Level       gpio.Level
	Time        time.Time
	// Pressed is true when Level is the button's active level.
	Pressed bool
	Source  Source
	// RelaySuppressed is true when the burst threshold blocked the relay
	// write. A release that returns an energised relay to idle is never
	// suppressed.
	RelaySuppressed bool
	// WindowCount is the number of accepted transitions in the current burst window.
	WindowCount int
}

// BurstWindow counts accepted transitions within a fixed window.
type BurstWindow struct {
	Start time.Time
	Count int
}

// Counts tracks engine totals since startup.
type Counts struct {
	Transitions int
	Presses     int
	Suppressed  int
}

// State is a point-in-time view of the engine.
type State struct {
	Level  gpio.Level
	Known  bool
	Window BurstWindow
	Counts Counts
}
