//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// ChipSource is not available on non-Linux platforms.
type ChipSource struct{}

func NewChipSource(chip string, offsets []int) (*ChipSource, error) {
	return nil, errUnsupported
}

func (s *ChipSource) Edges() <-chan Edge { return nil }
func (s *ChipSource) Close() error       { return nil }

// LineOutput is not available on non-Linux platforms.
type LineOutput struct{}

func NewLineOutput(chip string, offset int) (*LineOutput, error) {
	return nil, errUnsupported
}

func (o *LineOutput) SetLevel(level uint8) error { return errUnsupported }
func (o *LineOutput) Close() error               { return nil }

// RPiPWM is not available on non-Linux platforms.
type RPiPWM struct{}

func NewRPiPWM(pin int) (*RPiPWM, error) {
	return nil, errUnsupported
}

func (r *RPiPWM) SetLevel(level uint8) error { return errUnsupported }
func (r *RPiPWM) Close() error               { return nil }
