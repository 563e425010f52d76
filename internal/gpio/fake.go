package gpio

import (
	"errors"
	"sync"
)

// FakeInput is a test double that returns scripted levels.
// It also backs mock mode, where the level is set directly.
type FakeInput struct {
	mu sync.Mutex

	// Levels contains scripted levels to return.
	// Each call to Read() consumes the next level.
	Levels []Level

	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned (wrapped in ErrHardwareRead) by Read()
	ReadError error

	// Reads counts calls to Read.
	Reads int
}

// NewFakeInput creates a FakeInput with the given levels.
func NewFakeInput(levels ...Level) *FakeInput {
	return &FakeInput{Levels: levels}
}

// Read returns the next scripted level.
// If levels are exhausted, returns the last level repeatedly.
func (f *FakeInput) Read() (Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Reads++
	if f.ReadError != nil {
		return Low, errors.Join(ErrHardwareRead, f.ReadError)
	}

	if len(f.Levels) == 0 {
		return Low, errors.Join(ErrHardwareRead, errors.New("no levels configured"))
	}

	level := f.Levels[f.index]
	if f.index < len(f.Levels)-1 {
		f.index++
	}
	return level, nil
}

// Set replaces the script with a single constant level.
func (f *FakeInput) Set(level Level) {
	f.mu.Lock()
	f.Levels = []Level{level}
	f.index = 0
	f.mu.Unlock()
}

// Close marks the input as closed.
func (f *FakeInput) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// FakeOutput records every level written to it.
type FakeOutput struct {
	mu sync.Mutex

	writes []Level

	// WriteError, if set, will be returned by Write.
	WriteError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeOutput creates an empty FakeOutput.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Write records the level.
func (f *FakeOutput) Write(level Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	f.writes = append(f.writes, level)
	return nil
}

// Writes returns a copy of all recorded levels.
func (f *FakeOutput) Writes() []Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Level(nil), f.writes...)
}

// Last returns the most recent level written and whether there was one.
func (f *FakeOutput) Last() (Level, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return Low, false
	}
	return f.writes[len(f.writes)-1], true
}

// Close marks the output as closed.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
