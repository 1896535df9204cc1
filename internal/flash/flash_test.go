package flash

import (
	"errors"
	"reflect"
	"testing"

	"github.com/sweeney/photobooth/internal/gpio"
)

func TestNewSetsIdleLevel(t *testing.T) {
	pwm := gpio.NewFakePWM()
	New(pwm, 255, 100)

	if got := pwm.Levels(); !reflect.DeepEqual(got, []uint8{100}) {
		t.Errorf("expected [100], got %v", got)
	}
}

func TestSetFlash(t *testing.T) {
	pwm := gpio.NewFakePWM()
	d := New(pwm, 255, 100)

	d.SetFlash(true)
	if !d.On() {
		t.Error("expected on")
	}
	d.SetFlash(false)
	if d.On() {
		t.Error("expected off")
	}

	if got := pwm.Levels(); !reflect.DeepEqual(got, []uint8{100, 255, 100}) {
		t.Errorf("expected [100 255 100], got %v", got)
	}
}

func TestErrorsAreSwallowed(t *testing.T) {
	pwm := gpio.NewFakePWM()
	pwm.SetError = errors.New("bus error")
	d := New(pwm, 255, 100)

	d.SetFlash(true)
	if !d.On() {
		t.Error("state should follow the request even when output fails")
	}
}

func TestSetLevelsWhileOff(t *testing.T) {
	pwm := gpio.NewFakePWM()
	d := New(pwm, 255, 100)

	d.SetLevels(200, 50)
	if last, _ := pwm.Last(); last != 50 {
		t.Errorf("expected new idle level 50 applied, got %d", last)
	}
	n := len(pwm.Levels())
	d.SetLevels(220, 50)
	if len(pwm.Levels()) != n {
		t.Error("unchanged idle level should not write")
	}

	d.SetFlash(true)
	if last, _ := pwm.Last(); last != 220 {
		t.Errorf("expected new on level 220, got %d", last)
	}
}

func TestSetLevelsWhileOnKeepsOutput(t *testing.T) {
	pwm := gpio.NewFakePWM()
	d := New(pwm, 255, 100)

	d.SetFlash(true)
	d.SetLevels(128, 100)
	d.SetFlash(false)

	if got := pwm.Levels(); !reflect.DeepEqual(got, []uint8{100, 255, 100}) {
		t.Errorf("output must not change while the flash is on, got %v", got)
	}

	d.SetFlash(true)
	if last, _ := pwm.Last(); last != 128 {
		t.Errorf("expected deferred on level 128 on the next flash, got %d", last)
	}
}

func TestCloseRestoresIdle(t *testing.T) {
	pwm := gpio.NewFakePWM()
	d := New(pwm, 255, 100)
	d.SetFlash(true)

	if err := d.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if last, _ := pwm.Last(); last != 100 {
		t.Errorf("expected idle level 100 on close, got %d", last)
	}
	if !pwm.IsClosed() {
		t.Error("expected output closed")
	}
}
