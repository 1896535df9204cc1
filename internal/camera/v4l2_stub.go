//go:build !linux

package camera

import "errors"

// V4L2 is not available on non-Linux platforms.
type V4L2 struct{}

func NewV4L2(opts Options) (*V4L2, error) {
	return nil, errors.New("camera: v4l2 requires Linux")
}

func (c *V4L2) Start() error           { return ErrNotStarted }
func (c *V4L2) Stop() error            { return nil }
func (c *V4L2) Capture() (int, error)  { return 0, ErrNotStarted }
func (c *V4L2) Results() <-chan Result { return nil }
func (c *V4L2) Close() error           { return nil }
