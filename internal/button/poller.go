// Package button samples the doorbell input line and feeds settled levels to
// the engine.
package button

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/doorbell/internal/gpio"
	"github.com/sweeney/doorbell/internal/logic"
)

// Sampler accepts settled samples. *logic.Engine implements it.
type Sampler interface {
	OnSample(level gpio.Level, at time.Time, src logic.Source) (logic.Transition, bool, error)
}

// Poller reads the input once per tick. When the raw level differs from the
// last hardware level it waits one settle interval and reads again; only a
// level that survives the settle delay is passed on.
//
// The poller tracks the hardware level on its own so that remotely injected
// samples are not immediately overwritten by the idle hardware level.
type Poller struct {
	input  gpio.Input
	engine Sampler
	settle time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	last  gpio.Level
	known bool
}

// NewPoller creates a poller with the given settle interval.
func NewPoller(input gpio.Input, engine Sampler, settle time.Duration) *Poller {
	return &Poller{
		input:  input,
		engine: engine,
		settle: settle,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// PollOnce performs a single sample. Read failures are returned unchanged
// (wrapping gpio.ErrHardwareRead) and are not retried here.
func (p *Poller) PollOnce(ctx context.Context) error {
	level, err := p.input.Read()
	if err != nil {
		return err
	}
	if p.known && level == p.last {
		return nil
	}

	if p.settle > 0 {
		if err := p.sleep(ctx, p.settle); err != nil {
			return err
		}
		level, err = p.input.Read()
		if err != nil {
			return err
		}
		if p.known && level == p.last {
			// Bounced back before settling.
			return nil
		}
	}

	p.last = level
	p.known = true

	if _, _, err := p.engine.OnSample(level, p.now(), logic.SourceHardware); err != nil {
		return fmt.Errorf("sample %s: %w", level, err)
	}
	return nil
}

// Run polls on every tick until ctx is cancelled. Errors from a single poll
// are logged and polling continues with the next tick.
func (p *Poller) Run(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			if err := p.PollOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.WithError(err).Warn("button poll failed")
			}
		}
	}
}

// Read returns the current raw level without feeding the engine.
func (p *Poller) Read() (gpio.Level, error) {
	return p.input.Read()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
