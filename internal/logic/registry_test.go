package logic

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sweeney/doorbell/internal/gpio"
)

func TestRegistryRunsInOrder(t *testing.T) {
	reg := NewRegistry()
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		reg.Add(Task{Name: name, Run: func(Transition) error {
			order = append(order, name)
			return nil
		}})
	}

	ran := reg.Dispatch(Transition{Level: gpio.Low, Time: time.Now()})
	assert.Equal(t, 3, ran)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, 3, reg.Len())
}

func TestRegistryIsolatesFailures(t *testing.T) {
	reg := NewRegistry()
	var reached bool
	reg.Add(Task{Name: "error", Run: func(Transition) error { return errors.New("boom") }})
	reg.Add(Task{Name: "panic", Run: func(Transition) error { panic("kaboom") }})
	reg.Add(Task{Name: "nil"})
	reg.Add(Task{Name: "last", Run: func(Transition) error {
		reached = true
		return nil
	}})

	assert.NotPanics(t, func() {
		reg.Dispatch(Transition{Level: gpio.High})
	})
	assert.True(t, reached, "later tasks run after failing ones")
}

func TestRegistrySkipsNonMatching(t *testing.T) {
	reg := NewRegistry()
	called := false
	reg.Add(Task{Name: "rising", Direction: Rising, Run: func(Transition) error {
		called = true
		return nil
	}})

	assert.Equal(t, 0, reg.Dispatch(Transition{Level: gpio.Low}))
	assert.False(t, called)
}
