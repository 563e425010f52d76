package logic

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/doorbell/internal/gpio"
)

var activeLow = Polarity{ButtonActive: gpio.Low, RelayActive: gpio.High}

func newTestEngine(t *testing.T) (*Engine, *gpio.FakeOutput, *[]Transition) {
	t.Helper()
	relay := gpio.NewFakeOutput()
	reg := NewRegistry()
	var seen []Transition
	reg.Add(Task{Name: "record", Direction: Both, Run: func(tr Transition) error {
		seen = append(seen, tr)
		return nil
	}})
	e := NewEngine(Config{Polarity: activeLow, BurstThreshold: 15, BurstWindow: time.Minute}, relay, reg)
	return e, relay, &seen
}

func TestFirstSampleIsAccepted(t *testing.T) {
	e, relay, seen := newTestEngine(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tr, ok, err := e.OnSample(gpio.High, now, SourceHardware)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, tr.HasPrevious)
	assert.False(t, tr.Pressed)
	assert.Equal(t, []gpio.Level{gpio.Low}, relay.Writes(), "idle input drives relay to its idle level")
	assert.Len(t, *seen, 1)
}

func TestNoTransitionForStableLevel(t *testing.T) {
	e, relay, seen := newTestEngine(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e.OnSample(gpio.High, now, SourceHardware)

	for i := 1; i <= 10; i++ {
		_, ok, err := e.OnSample(gpio.High, now.Add(time.Duration(i)*20*time.Millisecond), SourceHardware)
		require.NoError(t, err)
		assert.False(t, ok, "sample %d should not be a transition", i)
	}
	assert.Len(t, *seen, 1)
	assert.Len(t, relay.Writes(), 1)
}

func TestPressDrivesRelayInverted(t *testing.T) {
	e, relay, _ := newTestEngine(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e.OnSample(gpio.High, now, SourceHardware)

	tr, ok, err := e.OnSample(gpio.Low, now.Add(time.Second), SourceHardware)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, tr.Pressed)
	assert.True(t, tr.HasPrevious)
	assert.Equal(t, gpio.High, tr.Previous)

	last, _ := relay.Last()
	assert.Equal(t, gpio.High, last, "pressed active-low button energises active-high relay")

	e.OnSample(gpio.High, now.Add(2*time.Second), SourceHardware)
	last, _ = relay.Last()
	assert.Equal(t, gpio.Low, last)
}

func TestActiveHighPolarity(t *testing.T) {
	relay := gpio.NewFakeOutput()
	e := NewEngine(Config{Polarity: Polarity{ButtonActive: gpio.High, RelayActive: gpio.Low}}, relay, nil)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tr, _, _ := e.OnSample(gpio.High, now, SourceHardware)
	assert.True(t, tr.Pressed)
	last, _ := relay.Last()
	assert.Equal(t, gpio.Low, last)
}

func TestBurstSuppressesRelayButNotTasks(t *testing.T) {
	e, relay, seen := newTestEngine(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	level := gpio.High
	for i := 0; i < 20; i++ {
		tr, ok, err := e.OnSample(level, now.Add(time.Duration(i)*time.Second), SourceHardware)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, i+1, tr.WindowCount)
		assert.Equal(t, i+1 >= 16, tr.RelaySuppressed, "transition %d", i+1)
		level = level.Invert()
	}

	// The 15th transition is a release after an energising press, so it is
	// still written; everything after it is held back.
	assert.Len(t, relay.Writes(), 15)
	assert.Len(t, *seen, 20, "every transition reaches the tasks")
	assert.Equal(t, 5, e.State().Counts.Suppressed)
}

func TestBurstReleaseDeEnergisesRelay(t *testing.T) {
	e, relay, _ := newTestEngine(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	// 14 transitions ending on a press: the relay is energised.
	level := gpio.High
	for i := 0; i < 14; i++ {
		e.OnSample(level, now.Add(time.Duration(i)*time.Second), SourceHardware)
		level = level.Invert()
	}
	require.Equal(t, gpio.Low, e.State().Level)
	writes := relay.Writes()
	require.Equal(t, gpio.High, writes[len(writes)-1])

	tr, ok, err := e.OnSample(gpio.High, now.Add(14*time.Second), SourceHardware)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 15, tr.WindowCount)
	assert.False(t, tr.RelaySuppressed)
	writes = relay.Writes()
	assert.Equal(t, gpio.Low, writes[len(writes)-1], "relay back at idle")

	// The next press and release are both held back; the relay stays idle.
	tr, _, _ = e.OnSample(gpio.Low, now.Add(15*time.Second), SourceHardware)
	assert.True(t, tr.RelaySuppressed)
	tr, _, _ = e.OnSample(gpio.High, now.Add(16*time.Second), SourceHardware)
	assert.True(t, tr.RelaySuppressed)
	assert.Len(t, relay.Writes(), 15)
}

func TestBurstSuppressedPressLeavesRelayIdle(t *testing.T) {
	e, relay, _ := newTestEngine(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	// Start pressed so the 15th transition is a press.
	level := gpio.Low
	for i := 0; i < 15; i++ {
		e.OnSample(level, now.Add(time.Duration(i)*time.Second), SourceHardware)
		level = level.Invert()
	}
	assert.Len(t, relay.Writes(), 14)
	writes := relay.Writes()
	assert.Equal(t, gpio.Low, writes[len(writes)-1])
	assert.Equal(t, 1, e.State().Counts.Suppressed)
}

func TestBurstWindowResetsToOne(t *testing.T) {
	e, relay, _ := newTestEngine(t)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	level := gpio.High
	for i := 0; i < 16; i++ {
		e.OnSample(level, start.Add(time.Duration(i)*time.Second), SourceHardware)
		level = level.Invert()
	}
	require.Equal(t, 16, e.State().Window.Count)
	require.Len(t, relay.Writes(), 15)

	later := start.Add(time.Minute)
	tr, ok, _ := e.OnSample(level, later, SourceHardware)
	require.True(t, ok)
	assert.Equal(t, 1, tr.WindowCount)
	assert.False(t, tr.RelaySuppressed)
	assert.Equal(t, later, e.State().Window.Start)
	assert.Len(t, relay.Writes(), 16)
}

func TestWindowMeasuredFromStartNotLastTransition(t *testing.T) {
	e, _, _ := newTestEngine(t)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	e.OnSample(gpio.High, start, SourceHardware)
	e.OnSample(gpio.Low, start.Add(59*time.Second), SourceHardware)
	tr, _, _ := e.OnSample(gpio.High, start.Add(60*time.Second), SourceHardware)
	assert.Equal(t, 1, tr.WindowCount)
}

func TestRelayWriteErrorStillRunsTasks(t *testing.T) {
	e, relay, seen := newTestEngine(t)
	relay.WriteError = errors.New("relay stuck")

	_, ok, err := e.OnSample(gpio.Low, time.Now(), SourceHardware)
	assert.True(t, ok)
	assert.Error(t, err)
	assert.Len(t, *seen, 1)
}

func TestDirectionFilters(t *testing.T) {
	relay := gpio.NewFakeOutput()
	reg := NewRegistry()
	var falling, rising, both int
	reg.Add(Task{Name: "falling", Direction: Falling, Run: func(Transition) error { falling++; return nil }})
	reg.Add(Task{Name: "rising", Direction: Rising, Run: func(Transition) error { rising++; return nil }})
	reg.Add(Task{Name: "both", Direction: Both, Run: func(Transition) error { both++; return nil }})
	e := NewEngine(Config{Polarity: activeLow}, relay, reg)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e.OnSample(gpio.High, now, SourceHardware)
	e.OnSample(gpio.Low, now.Add(time.Second), SourceHardware)
	e.OnSample(gpio.High, now.Add(2*time.Second), SourceHardware)

	assert.Equal(t, 1, falling)
	assert.Equal(t, 2, rising)
	assert.Equal(t, 3, both)
}

func TestCountsTrackPresses(t *testing.T) {
	e, _, _ := newTestEngine(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e.OnSample(gpio.High, now, SourceHardware)
	e.OnSample(gpio.Low, now.Add(time.Second), SourceRemote)
	e.OnSample(gpio.High, now.Add(2*time.Second), SourceRemote)

	st := e.State()
	assert.True(t, st.Known)
	assert.Equal(t, gpio.High, st.Level)
	assert.Equal(t, 3, st.Counts.Transitions)
	assert.Equal(t, 1, st.Counts.Presses)
}

func TestTaskMayInjectSample(t *testing.T) {
	relay := gpio.NewFakeOutput()
	reg := NewRegistry()
	e := NewEngine(Config{Polarity: activeLow}, relay, reg)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	reg.Add(Task{Name: "reinject", Direction: Falling, Run: func(tr Transition) error {
		_, _, err := e.OnSample(gpio.High, tr.Time.Add(time.Millisecond), SourceRemote)
		return err
	}})

	e.OnSample(gpio.Low, now, SourceHardware)
	assert.Equal(t, gpio.High, e.State().Level)
	assert.Equal(t, 2, e.State().Counts.Transitions)
}

func TestTasksSeeTransitionsInAcceptanceOrder(t *testing.T) {
	relay := gpio.NewFakeOutput()
	reg := NewRegistry()
	e := NewEngine(Config{Polarity: activeLow}, relay, reg)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	var (
		mu   sync.Mutex
		seen []gpio.Level
	)
	entered := make(chan struct{})
	release := make(chan struct{})
	reg.Add(Task{Name: "slow", Direction: Both, Run: func(tr Transition) error {
		if tr.Level == gpio.Low {
			close(entered)
			<-release
		}
		mu.Lock()
		seen = append(seen, tr.Level)
		mu.Unlock()
		return nil
	}})

	e.OnSample(gpio.High, now, SourceHardware)

	first := make(chan struct{})
	go func() {
		defer close(first)
		e.OnSample(gpio.Low, now.Add(time.Second), SourceHardware)
	}()
	<-entered

	// The press is still being dispatched; the release queues behind it.
	tr, ok, err := e.OnSample(gpio.High, now.Add(2*time.Second), SourceRemote)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, gpio.High, tr.Level)

	close(release)
	<-first

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []gpio.Level{gpio.High, gpio.Low, gpio.High}, seen)
}

func TestPressDirection(t *testing.T) {
	assert.Equal(t, Falling, PressDirection(gpio.Low))
	assert.Equal(t, Rising, PressDirection(gpio.High))
}
