// Package gpio provides button edge sources and flash output sinks.
// Real implementations use the Linux GPIO character device and the
// Raspberry Pi PWM peripheral; fakes allow testing without hardware.
package gpio

import "time"

// Edge is a single falling edge on an input line. Tick is the kernel
// timestamp of the edge, monotonic and comparable only with other ticks.
type Edge struct {
	Line int
	Tick time.Duration
}

// EdgeSource delivers raw edges. Edges are sent from a driver goroutine.
type EdgeSource interface {
	Edges() <-chan Edge
	Close() error
}

// PWM drives an output at an intensity between 0 and MaxLevel.
type PWM interface {
	SetLevel(level uint8) error
	Close() error
}

// MaxLevel is full intensity.
const MaxLevel = 255

// EdgeBuffer is the channel capacity of every edge source. Edges arriving
// while it is full are dropped.
const EdgeBuffer = 32

// Default line offsets (BCM numbering).
const (
	PinInfo  = 21
	PinPhoto = 20
	PinGIF   = 19
	PinPrint = 18
	PinFlash = 13
)
