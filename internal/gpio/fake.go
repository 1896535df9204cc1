package gpio

import (
	"sync"
	"time"
)

// FakeEdges is a test double edge source fed by Push.
type FakeEdges struct {
	ch chan Edge

	mu     sync.Mutex
	Closed bool
}

func NewFakeEdges() *FakeEdges {
	return &FakeEdges{ch: make(chan Edge, EdgeBuffer)}
}

// Push delivers an edge as if it came from the driver goroutine.
func (f *FakeEdges) Push(line int, tick time.Duration) {
	f.ch <- Edge{Line: line, Tick: tick}
}

func (f *FakeEdges) Edges() <-chan Edge {
	return f.ch
}

func (f *FakeEdges) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (f *FakeEdges) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Closed
}

// FakePWM records every level it is set to.
type FakePWM struct {
	mu     sync.Mutex
	levels []uint8
	closed bool

	// SetError, if set, is returned by SetLevel after recording the level.
	SetError error
}

func NewFakePWM() *FakePWM {
	return &FakePWM{}
}

func (f *FakePWM) SetLevel(level uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = append(f.levels, level)
	return f.SetError
}

// Levels returns a copy of the recorded levels.
func (f *FakePWM) Levels() []uint8 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint8(nil), f.levels...)
}

// Last returns the most recent level, or false if none was set.
func (f *FakePWM) Last() (uint8, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.levels) == 0 {
		return 0, false
	}
	return f.levels[len(f.levels)-1], true
}

func (f *FakePWM) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *FakePWM) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
