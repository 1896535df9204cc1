//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/photobooth/internal/logger"
)

// ChipSource delivers falling edges from button lines on a gpiocdev chip.
// Buttons pull the line low, so lines are requested with pull-ups.
type ChipSource struct {
	lines   *gpiocdev.Lines
	edges   chan Edge
	dropped atomic.Uint64
}

// NewChipSource requests offsets on chip as edge-detecting inputs.
func NewChipSource(chip string, offsets []int) (*ChipSource, error) {
	s := &ChipSource{edges: make(chan Edge, EdgeBuffer)}

	lines, err := gpiocdev.RequestLines(chip, offsets,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(s.handle),
	)
	if err != nil {
		return nil, fmt.Errorf("request lines %v on %s: %w", offsets, chip, err)
	}
	s.lines = lines
	return s, nil
}

// handle runs on the gpiocdev watcher goroutine. It must not block.
func (s *ChipSource) handle(evt gpiocdev.LineEvent) {
	e := Edge{Line: evt.Offset, Tick: evt.Timestamp}
	select {
	case s.edges <- e:
	default:
		n := s.dropped.Add(1)
		logger.WithComponent("gpio").Warn().
			Int("line", e.Line).
			Uint64("dropped", n).
			Msg("edge buffer full, dropping edge")
	}
}

func (s *ChipSource) Edges() <-chan Edge {
	return s.edges
}

// Close stops edge detection and returns the lines to input with pull-down,
// the Pi boot default, before releasing them.
func (s *ChipSource) Close() error {
	if s.lines == nil {
		return nil
	}
	var errs []error
	if err := s.lines.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown, gpiocdev.WithoutEdges); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure button lines: %w", err))
	}
	if err := s.lines.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close button lines: %w", err))
	}
	s.lines = nil
	return errors.Join(errs...)
}

// LineOutput drives the flash as a plain on/off line for boards without a
// PWM-capable pin. Levels at or above half scale turn it on.
type LineOutput struct {
	line *gpiocdev.Line
}

// NewLineOutput requests offset on chip as an output, initially low.
func NewLineOutput(chip string, offset int) (*LineOutput, error) {
	line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request output line %d on %s: %w", offset, chip, err)
	}
	return &LineOutput{line: line}, nil
}

func (o *LineOutput) SetLevel(level uint8) error {
	v := 0
	if level >= MaxLevel/2+1 {
		v = 1
	}
	if err := o.line.SetValue(v); err != nil {
		return fmt.Errorf("set flash line: %w", err)
	}
	return nil
}

// Close releases the line without changing its value.
func (o *LineOutput) Close() error {
	if o.line == nil {
		return nil
	}
	err := o.line.Close()
	o.line = nil
	if err != nil {
		return fmt.Errorf("close flash line: %w", err)
	}
	return nil
}
