// Package gpio provides digital input and output lines with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing and mock mode without hardware.
package gpio

import (
	"errors"
	"fmt"
	"strings"
)

// ErrHardwareRead is returned (wrapped) when an input line cannot be read.
var ErrHardwareRead = errors.New("gpio: hardware read failed")

// Level is the raw binary level of a line.
type Level int

const (
	Low  Level = 0
	High Level = 1
)

// String returns "LOW" or "HIGH".
func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

// Invert returns the opposite level.
func (l Level) Invert() Level {
	if l == High {
		return Low
	}
	return High
}

// ParseLevel accepts "high"/"low" (any case) and "1"/"0".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "1":
		return High, nil
	case "low", "0":
		return Low, nil
	}
	return Low, fmt.Errorf("gpio: invalid level %q", s)
}

// Pull is the bias applied to an input line.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// ParsePull accepts "up", "down" and "none".
func ParsePull(s string) (Pull, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up":
		return PullUp, nil
	case "down":
		return PullDown, nil
	case "none", "":
		return PullNone, nil
	}
	return PullNone, fmt.Errorf("gpio: invalid pull %q", s)
}

// Input reads a single digital input line.
type Input interface {
	// Read returns the current raw level of the line.
	// Failures wrap ErrHardwareRead.
	Read() (Level, error)

	// Close releases the line.
	Close() error
}

// Output drives a single digital output line.
type Output interface {
	// Write sets the line to the given raw level.
	Write(level Level) error

	// Close resets the line and releases it.
	Close() error
}

// Defaults (BCM numbering).
const (
	DefaultChip      = "gpiochip0"
	DefaultButtonPin = 17
	DefaultRelayPin  = 27
)
