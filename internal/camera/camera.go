// Package camera drives the still capture device. Capture requests are
// asynchronous: Capture returns a request id at once and the frame arrives
// later on Results.
package camera

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
)

// Result completes one capture request. Exactly one of Image and Err is set.
// JPEG holds the encoded bytes when the device produced them.
type Result struct {
	RequestID int
	Image     image.Image
	JPEG      []byte
	Err       error
}

// Device is a capture device.
type Device interface {
	Start() error
	Stop() error
	// Capture queues a still capture and returns its request id.
	Capture() (int, error)
	Results() <-chan Result
	Close() error
}

// Device types.
const (
	TypeV4L2   = "v4l2"
	TypeRPiCam = "rpicam"
	TypeFake   = "fake"
)

// Options configure a device.
type Options struct {
	Device string
	Width  int
	Height int
	FlipH  bool
	FlipV  bool
}

// ErrNotStarted is returned by Capture before Start.
var ErrNotStarted = errors.New("camera: not started")

// ErrBusy is returned by Capture while the request queue is full.
var ErrBusy = errors.New("camera: capture queue full")

// resultBuffer is the capacity of every device's result channel.
const resultBuffer = 4

// Open creates a device of the given type.
func Open(kind string, opts Options) (Device, error) {
	switch kind {
	case TypeV4L2:
		return NewV4L2(opts)
	case TypeRPiCam:
		return NewRPiCam(opts)
	case TypeFake:
		return NewFake(opts.Width, opts.Height), nil
	}
	return nil, fmt.Errorf("unknown camera type %q", kind)
}

func decodeJPEG(data []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg frame: %w", err)
	}
	return img, nil
}
