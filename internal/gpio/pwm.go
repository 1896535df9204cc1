//go:build linux

package gpio

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"
)

// pwmClock gives a ~1 kHz output with a cycle of MaxLevel.
const pwmClock = MaxLevel * 1000

// RPiPWM drives a hardware PWM pin through the BCM2835 registers.
type RPiPWM struct {
	pin rpio.Pin
}

// NewRPiPWM maps the GPIO registers and puts pin into PWM mode.
// Requires /dev/gpiomem access and a PWM-capable pin (12, 13, 18 or 19).
func NewRPiPWM(pin int) (*RPiPWM, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}
	p := rpio.Pin(pin)
	p.Mode(rpio.Pwm)
	p.Freq(pwmClock)
	p.DutyCycle(0, MaxLevel)
	return &RPiPWM{pin: p}, nil
}

func (r *RPiPWM) SetLevel(level uint8) error {
	r.pin.DutyCycle(uint32(level), MaxLevel)
	return nil
}

// Close unmaps the registers. The PWM peripheral keeps running at the last
// level, so the flash stays at whatever idle level was set before.
func (r *RPiPWM) Close() error {
	return rpio.Close()
}
