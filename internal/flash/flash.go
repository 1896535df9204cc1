// Package flash switches the booth flash between its idle and capture
// intensities.
package flash

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/sweeney/photobooth/internal/gpio"
	"github.com/sweeney/photobooth/internal/logger"
)

// Driver maps on/off onto PWM levels. Output errors are logged, never
// returned: a failed flash must not abort a capture.
type Driver struct {
	out gpio.PWM
	log *zerolog.Logger

	mu        sync.Mutex
	onLevel   uint8
	idleLevel uint8
	on        bool
}

// New creates a driver and sets the output to the idle level.
func New(out gpio.PWM, onLevel, idleLevel uint8) *Driver {
	d := &Driver{
		out:       out,
		log:       logger.WithComponent("flash"),
		onLevel:   onLevel,
		idleLevel: idleLevel,
	}
	d.write(idleLevel)
	return d
}

// SetFlash turns the flash on or back to idle.
func (d *Driver) SetFlash(on bool) {
	d.mu.Lock()
	d.on = on
	level := d.idleLevel
	if on {
		level = d.onLevel
	}
	d.mu.Unlock()
	d.write(level)
}

// SetLevels changes the intensities. While the flash is off the new idle
// level is written at once; while it is on the output is left alone and the
// new levels take effect on the next SetFlash.
func (d *Driver) SetLevels(onLevel, idleLevel uint8) {
	d.mu.Lock()
	write := !d.on && d.idleLevel != idleLevel
	d.onLevel, d.idleLevel = onLevel, idleLevel
	d.mu.Unlock()
	if write {
		d.write(idleLevel)
	}
}

// On reports the last requested state.
func (d *Driver) On() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.on
}

// Close restores the idle level and releases the output.
func (d *Driver) Close() error {
	d.SetFlash(false)
	return d.out.Close()
}

func (d *Driver) write(level uint8) {
	if err := d.out.SetLevel(level); err != nil {
		d.log.Error().Err(err).Uint8("level", level).Msg("failed to set flash level")
	}
}
