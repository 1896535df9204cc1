// Package printer sends the last artifact to a print spooler.
package printer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/photobooth/internal/artifact"
	"github.com/sweeney/photobooth/internal/logger"
	"github.com/sweeney/photobooth/internal/logic"
)

// Spooler is a print queue.
type Spooler interface {
	// ActiveJobs lists jobs not yet completed.
	ActiveJobs(ctx context.Context) ([]string, error)
	Submit(ctx context.Context, path string, options []string) error
}

// CUPS talks to the local CUPS server through lpstat and lp.
type CUPS struct {
	Printer string // destination; empty selects the default printer
}

func (c CUPS) ActiveJobs(ctx context.Context) ([]string, error) {
	args := []string{"-o"}
	if c.Printer != "" {
		args = append(args, c.Printer)
	}
	out, err := exec.CommandContext(ctx, "lpstat", args...).Output()
	if err != nil {
		return nil, fmt.Errorf("lpstat: %w", err)
	}
	return parseJobs(out), nil
}

func parseJobs(out []byte) []string {
	var jobs []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) > 0 {
			jobs = append(jobs, fields[0])
		}
	}
	return jobs
}

// SubmitArgs returns the lp command line.
func (c CUPS) SubmitArgs(path string, options []string) []string {
	var args []string
	if c.Printer != "" {
		args = append(args, "-d", c.Printer)
	}
	for _, o := range options {
		args = append(args, "-o", o)
	}
	return append(args, path)
}

func (c CUPS) Submit(ctx context.Context, path string, options []string) error {
	out, err := exec.CommandContext(ctx, "lp", c.SubmitArgs(path, options)...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("lp: %w: %s", err, bytes.TrimSpace(out))
	}
	return nil
}

// Outcome of a print request.
type Outcome string

const (
	Submitted   Outcome = "SUBMITTED"
	SkippedBusy Outcome = "SKIPPED_BUSY"
	SkippedNone Outcome = "SKIPPED_NO_ARTIFACT"
	Failed      Outcome = "FAILED"
)

// SpoolTimeout bounds each spooler call.
const SpoolTimeout = 10 * time.Second

// Options configure a Dispatcher.
type Options struct {
	StagingDir string
	FlipV      bool
	Options    []string
}

// Dispatcher submits one print at a time and only to an idle spooler.
// Submission is fire-and-forget: there is no retry and no completion
// tracking.
type Dispatcher struct {
	spooler Spooler
	log     *zerolog.Logger
	now     func() time.Time
	timeout time.Duration

	// mu serialises the idle check with the submit. opts is read once per
	// print and never under mu, so SetOptions returns at once.
	mu   sync.Mutex
	opts atomic.Pointer[Options]

	submitted atomic.Uint64
	skipped   atomic.Uint64
	failed    atomic.Uint64
}

func NewDispatcher(s Spooler, opts Options) *Dispatcher {
	d := &Dispatcher{
		spooler: s,
		log:     logger.WithComponent("printer"),
		now:     time.Now,
		timeout: SpoolTimeout,
	}
	d.SetOptions(opts)
	return d
}

// SetOptions replaces the options for subsequent prints. A print already
// running keeps the options it started with.
func (d *Dispatcher) SetOptions(opts Options) {
	if opts.StagingDir == "" {
		opts.StagingDir = os.TempDir()
	}
	opts.Options = append([]string(nil), opts.Options...)
	d.opts.Store(&opts)
}

// PrintLast prints a. Animations print their poster still.
func (d *Dispatcher) PrintLast(ctx context.Context, a logic.Artifact) (Outcome, error) {
	src := a.PrintPath()
	if src == "" {
		d.skipped.Add(1)
		d.log.Info().Str("kind", string(a.Kind)).Msg("nothing to print")
		return SkippedNone, nil
	}

	opts := *d.opts.Load()

	d.mu.Lock()
	defer d.mu.Unlock()

	qctx, cancel := context.WithTimeout(ctx, d.timeout)
	jobs, err := d.spooler.ActiveJobs(qctx)
	cancel()
	if err != nil {
		d.skipped.Add(1)
		d.log.Warn().Err(err).Msg("spooler query failed, not printing")
		return SkippedBusy, nil
	}
	if len(jobs) > 0 {
		d.skipped.Add(1)
		d.log.Info().Strs("jobs", jobs).Msg("printer busy, not printing")
		return SkippedBusy, nil
	}

	staged, err := d.stage(src, opts)
	if err != nil {
		d.failed.Add(1)
		return Failed, err
	}
	sctx, cancel := context.WithTimeout(ctx, d.timeout)
	err = d.spooler.Submit(sctx, staged, opts.Options)
	cancel()
	if err != nil {
		os.Remove(staged)
		d.failed.Add(1)
		return Failed, fmt.Errorf("submit %s: %w", staged, err)
	}
	// lp copies the file into the spool before returning.
	if err := os.Remove(staged); err != nil {
		d.log.Warn().Err(err).Str("path", staged).Msg("failed to remove staged print")
	}

	d.submitted.Add(1)
	d.log.Info().Str("source", src).Msg("print submitted")
	return Submitted, nil
}

// stage copies src to a file unique to this job, flipping it if configured.
func (d *Dispatcher) stage(src string, opts Options) (string, error) {
	if err := os.MkdirAll(opts.StagingDir, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	dst := filepath.Join(opts.StagingDir, fmt.Sprintf("print_%d.jpg", d.now().UnixNano()))

	if opts.FlipV {
		img, err := artifact.ReadJPEG(src)
		if err != nil {
			return "", fmt.Errorf("stage %s: %w", src, err)
		}
		if err := artifact.WriteJPEG(dst, artifact.FlipVertical(img), artifact.FullQuality); err != nil {
			return "", fmt.Errorf("stage %s: %w", src, err)
		}
		return dst, nil
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("stage %s: %w", src, err)
	}
	if err := artifact.WriteBytes(dst, data); err != nil {
		return "", fmt.Errorf("stage %s: %w", src, err)
	}
	return dst, nil
}

// Stats counts outcomes since startup.
type Stats struct {
	Submitted uint64
	Skipped   uint64
	Failed    uint64
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Submitted: d.submitted.Load(),
		Skipped:   d.skipped.Load(),
		Failed:    d.failed.Load(),
	}
}
