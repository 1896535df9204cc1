package camera

import (
	"errors"
	"image"
	"image/color"
	"sync"
	"time"
)

// Fake is a test double that produces a solid frame per request after
// Delay. Frames alternate colour so consecutive captures differ.
type Fake struct {
	width, height int
	results       chan Result

	mu       sync.Mutex
	Delay    time.Duration
	failNext int
	running  bool
	closed   bool
	nextID   int
	calls    []time.Time
}

func NewFake(width, height int) *Fake {
	if width < 1 {
		width = 64
	}
	if height < 1 {
		height = 48
	}
	return &Fake{width: width, height: height, results: make(chan Result, 16)}
}

func (f *Fake) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	return nil
}

func (f *Fake) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	return nil
}

func (f *Fake) Capture() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return 0, ErrNotStarted
	}
	f.nextID++
	f.calls = append(f.calls, time.Now())

	r := Result{RequestID: f.nextID}
	if f.failNext > 0 {
		f.failNext--
		r.Err = errors.New("fake: capture failed")
	} else {
		r.Image = f.frame(f.nextID)
	}

	delay := f.Delay
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		f.results <- r
	}()
	return f.nextID, nil
}

func (f *Fake) frame(id int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, f.width, f.height))
	c := color.RGBA{R: uint8(id * 40), G: 128, B: uint8(255 - id*40), A: 255}
	for y := 0; y < f.height; y++ {
		for x := 0; x < f.width; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func (f *Fake) Results() <-chan Result {
	return f.results
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.closed = true
	return nil
}

// Calls returns the time of every Capture call.
func (f *Fake) Calls() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.calls...)
}

// Running reports whether the device is started.
func (f *Fake) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// SetFailNext makes the next n captures fail.
func (f *Fake) SetFailNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
}
