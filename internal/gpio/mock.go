package gpio

import (
	"sync"

	"github.com/sweeney/photobooth/internal/logger"
)

// MockPWM logs levels instead of driving hardware. Used in mock mode on a
// development machine.
type MockPWM struct {
	line int

	mu    sync.Mutex
	level uint8
}

func NewMockPWM(line int) *MockPWM {
	logger.WithComponent("gpio").Info().Int("line", line).Msg("using mock flash output")
	return &MockPWM{line: line}
}

func (m *MockPWM) SetLevel(level uint8) error {
	m.mu.Lock()
	m.level = level
	m.mu.Unlock()
	logger.WithComponent("gpio").Debug().Int("line", m.line).Uint8("level", level).Msg("flash level")
	return nil
}

// Level returns the last level set.
func (m *MockPWM) Level() uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

func (m *MockPWM) Close() error {
	return nil
}
