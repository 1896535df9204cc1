//go:build linux

package camera

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/blackjack/webcam"
	"github.com/rs/zerolog"

	"github.com/sweeney/photobooth/internal/logger"
)

const (
	fourccMJPEG = webcam.PixelFormat(0x47504A4D) // 'MJPG'
	fourccYUYV  = webcam.PixelFormat(0x56595559) // 'YUYV'

	// V4L2_CID_HFLIP and V4L2_CID_VFLIP.
	ctrlHFlip = webcam.ControlID(0x00980914)
	ctrlVFlip = webcam.ControlID(0x00980915)

	waitTimeout = 1 // seconds
	bufferCount = 4
)

// V4L2 captures stills from a streaming V4L2 device. The device streams
// continuously; frames are discarded unless a capture request is pending.
type V4L2 struct {
	opts Options
	log  *zerolog.Logger

	cam    *webcam.Webcam
	format webcam.PixelFormat
	width  int
	height int

	requests chan int
	results  chan Result
	stop     chan struct{}
	done     chan struct{}

	mu      sync.Mutex
	nextID  int
	running bool
}

// NewV4L2 opens opts.Device. Streaming starts with Start.
func NewV4L2(opts Options) (*V4L2, error) {
	cam, err := webcam.Open(opts.Device)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Device, err)
	}
	return &V4L2{
		opts:     opts,
		log:      logger.WithComponent("camera"),
		cam:      cam,
		requests: make(chan int, resultBuffer),
		results:  make(chan Result, resultBuffer),
	}, nil
}

// Start selects MJPEG (or YUYV if MJPEG is not offered), applies the mirror
// controls and starts streaming.
func (c *V4L2) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	formats := c.cam.GetSupportedFormats()
	switch {
	case formats[fourccMJPEG] != "":
		c.format = fourccMJPEG
	case formats[fourccYUYV] != "":
		c.format = fourccYUYV
	default:
		return fmt.Errorf("%s: neither MJPEG nor YUYV supported (have %v)", c.opts.Device, formats)
	}

	f, w, h, err := c.cam.SetImageFormat(c.format, uint32(c.opts.Width), uint32(c.opts.Height))
	if err != nil {
		return fmt.Errorf("%s: set format: %w", c.opts.Device, err)
	}
	c.format, c.width, c.height = f, int(w), int(h)

	if err := c.cam.SetBufferCount(bufferCount); err != nil {
		c.log.Warn().Err(err).Msg("failed to set buffer count")
	}
	c.setFlip(ctrlHFlip, "hflip", c.opts.FlipH)
	c.setFlip(ctrlVFlip, "vflip", c.opts.FlipV)

	if err := c.cam.StartStreaming(); err != nil {
		return fmt.Errorf("%s: start streaming: %w", c.opts.Device, err)
	}

	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.running = true
	go c.loop(c.stop, c.done)

	c.log.Info().
		Str("device", c.opts.Device).
		Str("format", formats[c.format]).
		Int("width", c.width).
		Int("height", c.height).
		Msg("camera streaming")
	return nil
}

func (c *V4L2) setFlip(id webcam.ControlID, name string, on bool) {
	v := int32(0)
	if on {
		v = 1
	}
	if err := c.cam.SetControl(id, v); err != nil {
		c.log.Warn().Err(err).Str("control", name).Msg("device does not accept mirror control")
	}
}

func (c *V4L2) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}

		err := c.cam.WaitForFrame(waitTimeout)
		var timeout *webcam.Timeout
		if errors.As(err, &timeout) {
			continue
		}
		if err != nil {
			c.failPending(fmt.Errorf("wait for frame: %w", err))
			continue
		}

		frame, index, err := c.cam.GetFrame()
		if err != nil {
			c.failPending(fmt.Errorf("read frame: %w", err))
			continue
		}

		select {
		case id := <-c.requests:
			c.results <- c.convert(id, frame)
		default:
		}
		if err := c.cam.ReleaseFrame(index); err != nil {
			c.log.Warn().Err(err).Msg("failed to release frame")
		}
	}
}

// convert copies the frame out of the mmap buffer and decodes it.
func (c *V4L2) convert(id int, frame []byte) Result {
	data := make([]byte, len(frame))
	copy(data, frame)

	if c.format == fourccMJPEG {
		img, err := decodeJPEG(data)
		if err != nil {
			return Result{RequestID: id, Err: err}
		}
		return Result{RequestID: id, Image: img, JPEG: data}
	}

	img, err := yuyvToImage(data, c.width, c.height)
	if err != nil {
		return Result{RequestID: id, Err: err}
	}
	return Result{RequestID: id, Image: img}
}

func (c *V4L2) failPending(err error) {
	select {
	case id := <-c.requests:
		c.results <- Result{RequestID: id, Err: err}
	default:
		c.log.Warn().Err(err).Msg("camera stream error")
	}
}

func (c *V4L2) Capture() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return 0, ErrNotStarted
	}
	c.nextID++
	select {
	case c.requests <- c.nextID:
		return c.nextID, nil
	default:
		return 0, ErrBusy
	}
}

func (c *V4L2) Results() <-chan Result {
	return c.results
}

// Stop ends streaming. Pending requests are not completed.
func (c *V4L2) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	close(c.stop)
	done := c.done
	c.mu.Unlock()

	<-done
	if err := c.cam.StopStreaming(); err != nil {
		return fmt.Errorf("%s: stop streaming: %w", c.opts.Device, err)
	}
	return nil
}

func (c *V4L2) Close() error {
	if err := c.Stop(); err != nil {
		c.log.Warn().Err(err).Msg("stop on close failed")
	}
	return c.cam.Close()
}

// yuyvToImage unpacks a packed 4:2:2 frame.
func yuyvToImage(frame []byte, w, h int) (image.Image, error) {
	if len(frame) < w*h*2 {
		return nil, fmt.Errorf("short YUYV frame: %d bytes for %dx%d", len(frame), w, h)
	}
	img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio422)
	for i := range img.Cb {
		ii := i * 4
		img.Y[i*2] = frame[ii]
		img.Y[i*2+1] = frame[ii+2]
		img.Cb[i] = frame[ii+1]
		img.Cr[i] = frame[ii+3]
	}
	return img, nil
}
