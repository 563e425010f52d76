//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealInput reads a button line using the Linux GPIO character device.
type RealInput struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
	pin  int
}

// NewRealInput requests pin on the named chip as an input with the given bias.
func NewRealInput(chipName string, pin int, pull Pull) (*RealInput, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsInput, biasOption(pull))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request input pin %d: %w", pin, err)
	}

	return &RealInput{chip: chip, line: line, pin: pin}, nil
}

// Read returns the raw level of the button line.
func (r *RealInput) Read() (Level, error) {
	v, err := r.line.Value()
	if err != nil {
		return Low, fmt.Errorf("read pin %d: %w: %w", r.pin, ErrHardwareRead, err)
	}
	if v != 0 {
		return High, nil
	}
	return Low, nil
}

// Close releases the line and the chip.
func (r *RealInput) Close() error {
	var errs []error
	if r.line != nil {
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close input pin %d: %w", r.pin, err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	return errors.Join(errs...)
}

// RealOutput drives the relay line using the Linux GPIO character device.
type RealOutput struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
	pin  int
	idle Level
}

// NewRealOutput requests pin as an output initialised to idle.
func NewRealOutput(chipName string, pin int, idle Level) (*RealOutput, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(int(idle)))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}

	return &RealOutput{chip: chip, line: line, pin: pin, idle: idle}, nil
}

// Write sets the relay line level.
func (o *RealOutput) Write(level Level) error {
	if err := o.line.SetValue(int(level)); err != nil {
		return fmt.Errorf("write pin %d: %w", o.pin, err)
	}
	return nil
}

// Close drives the relay back to idle, then reconfigures the line as a
// pulled-down input (Pi boot default) before releasing it so the relay is
// never left energised across a restart.
func (o *RealOutput) Close() error {
	var errs []error
	if o.line != nil {
		if err := o.line.SetValue(int(o.idle)); err != nil {
			errs = append(errs, fmt.Errorf("reset output pin %d: %w", o.pin, err))
		}
		if err := o.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure output pin %d: %w", o.pin, err))
		}
		if err := o.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output pin %d: %w", o.pin, err))
		}
	}
	if o.chip != nil {
		if err := o.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	return errors.Join(errs...)
}

func biasOption(p Pull) gpiocdev.LineReqOption {
	switch p {
	case PullUp:
		return gpiocdev.WithPullUp
	case PullDown:
		return gpiocdev.WithPullDown
	default:
		return gpiocdev.WithBiasDisabled
	}
}
