package camera

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/photobooth/internal/logger"
)

// RPiCamCommand is the libcamera still capture tool.
const RPiCamCommand = "rpicam-still"

// rpicamTimeout bounds a single still capture.
const rpicamTimeout = 15 * time.Second

// RPiCam captures stills by running rpicam-still for each request, for CSI
// cameras that have no V4L2 capture node. Captures are serialised.
type RPiCam struct {
	opts    Options
	command string
	log     *zerolog.Logger
	results chan Result

	mu      sync.Mutex
	nextID  int
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	busy    sync.Mutex
	wg      sync.WaitGroup
}

// NewRPiCam checks that rpicam-still is installed.
func NewRPiCam(opts Options) (*RPiCam, error) {
	path, err := exec.LookPath(RPiCamCommand)
	if err != nil {
		return nil, fmt.Errorf("%s not found: %w", RPiCamCommand, err)
	}
	return newRPiCam(path, opts), nil
}

func newRPiCam(command string, opts Options) *RPiCam {
	return &RPiCam{
		opts:    opts,
		command: command,
		log:     logger.WithComponent("camera"),
		results: make(chan Result, resultBuffer),
	}
}

// Args returns the command line for one capture.
func (c *RPiCam) Args() []string {
	args := []string{
		"--nopreview",
		"--immediate",
		"--encoding", "jpg",
		"--width", strconv.Itoa(c.opts.Width),
		"--height", strconv.Itoa(c.opts.Height),
	}
	if c.opts.FlipH {
		args = append(args, "--hflip")
	}
	if c.opts.FlipV {
		args = append(args, "--vflip")
	}
	return append(args, "-o", "-")
}

func (c *RPiCam) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.running = true
	return nil
}

func (c *RPiCam) Capture() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return 0, ErrNotStarted
	}
	c.nextID++
	id := c.nextID
	ctx := c.ctx

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.results <- c.capture(ctx, id)
	}()
	return id, nil
}

func (c *RPiCam) capture(ctx context.Context, id int) Result {
	c.busy.Lock()
	defer c.busy.Unlock()

	ctx, cancel := context.WithTimeout(ctx, rpicamTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.command, c.Args()...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return Result{RequestID: id, Err: fmt.Errorf("%s: %w: %s", RPiCamCommand, err, bytes.TrimSpace(stderr.Bytes()))}
	}
	data := stdout.Bytes()
	img, err := decodeJPEG(data)
	if err != nil {
		return Result{RequestID: id, Err: err}
	}
	c.log.Debug().Int("request", id).Dur("took", time.Since(start)).Int("bytes", len(data)).Msg("still captured")
	return Result{RequestID: id, Image: img, JPEG: data}
}

func (c *RPiCam) Results() <-chan Result {
	return c.results
}

// Stop cancels running captures and waits for them to report.
func (c *RPiCam) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.cancel()
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	// Nobody may be reading results any more; drain so senders can finish.
	for {
		select {
		case <-done:
			return nil
		case r := <-c.results:
			c.log.Debug().Int("request", r.RequestID).Msg("discarding capture after stop")
		}
	}
}

func (c *RPiCam) Close() error {
	return c.Stop()
}
