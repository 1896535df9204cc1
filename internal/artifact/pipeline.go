// Package artifact persists captured frames: stills with thumbnails, and
// bursts merged into an animation by an external encoder.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/photobooth/internal/logger"
	"github.com/sweeney/photobooth/internal/logic"
	"github.com/sweeney/photobooth/internal/worker"
)

// StampLayout names animations and their posters.
const StampLayout = "2006-01-02_15-04-05"

// FramePattern names burst frames in the private work directory.
const FramePattern = "frame_%03d.jpg"

// resultBuffer bounds completions waiting for the run loop.
const resultBuffer = 32

// Result reports the outcome of one persist task.
type Result struct {
	Kind     logic.ArtifactKind
	Artifact logic.Artifact
	Err      error
}

// Options configure a Pipeline.
type Options struct {
	ImagesDir  string
	ThumbsDir  string
	ThumbWidth int
	Format     string // animation file extension, without dot
	Encoder    Encoder
	Now        func() time.Time
}

// Pipeline writes artifacts. Its methods may run concurrently on workers;
// results are delivered on Results.
type Pipeline struct {
	opts    Options
	log     *zerolog.Logger
	base    int
	results chan Result
}

var stillName = regexp.MustCompile(`^image_(\d+)\.jpg$`)

// NewPipeline creates the output directories. Still numbering continues
// after the highest image_NNNNN.jpg already present, so device request ids
// that restart at 1 never overwrite earlier stills.
func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Format == "" {
		opts.Format = "mp4"
	}
	for _, dir := range []string{opts.ImagesDir, opts.ThumbsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	base, err := highestStill(opts.ImagesDir)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		opts:    opts,
		log:     logger.WithComponent("artifact"),
		base:    base,
		results: make(chan Result, resultBuffer),
	}, nil
}

func highestStill(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", dir, err)
	}
	highest := 0
	for _, e := range entries {
		m := stillName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	}
	return highest, nil
}

// Results delivers one Result per finished task.
func (p *Pipeline) Results() <-chan Result {
	return p.results
}

// SingleTask wraps PersistSingle for the worker pool.
func (p *Pipeline) SingleTask(f logic.Frame) worker.Task {
	return worker.Task{
		Name: "persist-still",
		Run: func(ctx context.Context) error {
			a, err := p.PersistSingle(ctx, f)
			p.report(Result{Kind: logic.ArtifactStill, Artifact: a, Err: err})
			return err
		},
	}
}

// BurstTask wraps PersistBurst for the worker pool. The task owns frames.
func (p *Pipeline) BurstTask(frames []logic.Frame, fps int) worker.Task {
	return worker.Task{
		Name: "persist-animation",
		Run: func(ctx context.Context) error {
			a, err := p.PersistBurst(ctx, frames, fps)
			p.report(Result{Kind: logic.ArtifactAnimation, Artifact: a, Err: err})
			return err
		},
	}
}

func (p *Pipeline) report(r Result) {
	select {
	case p.results <- r:
	default:
		p.log.Warn().Str("path", r.Artifact.Path).Msg("result queue full, completion not reported")
	}
}

// PersistSingle writes the full frame and its thumbnail.
func (p *Pipeline) PersistSingle(ctx context.Context, f logic.Frame) (logic.Artifact, error) {
	if f.Image == nil && len(f.JPEG) == 0 {
		return logic.Artifact{}, errors.New("frame has no image data")
	}
	name := fmt.Sprintf("image_%05d.jpg", p.base+f.RequestID)
	full := filepath.Join(p.opts.ImagesDir, name)
	thumb := filepath.Join(p.opts.ThumbsDir, name)

	if err := p.writeFrame(full, f); err != nil {
		return logic.Artifact{}, err
	}
	if err := p.writeThumb(thumb, f, full); err != nil {
		return logic.Artifact{}, err
	}

	a := logic.Artifact{
		Kind:      logic.ArtifactStill,
		Path:      full,
		Thumbnail: thumb,
		CreatedAt: p.opts.Now(),
	}
	p.log.Info().Str("path", full).Int("request", f.RequestID).Msg("still saved")
	return a, nil
}

// PersistBurst writes the frames to a private directory, keeps the first as
// poster still and runs the encoder over the sequence.
func (p *Pipeline) PersistBurst(ctx context.Context, frames []logic.Frame, fps int) (logic.Artifact, error) {
	if len(frames) == 0 {
		return logic.Artifact{}, errors.New("burst has no frames")
	}

	work, err := os.MkdirTemp("", "photobooth-burst-*")
	if err != nil {
		return logic.Artifact{}, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(work)

	for i, f := range frames {
		if err := p.writeFrame(filepath.Join(work, fmt.Sprintf(FramePattern, i)), f); err != nil {
			return logic.Artifact{}, err
		}
	}

	created := frames[0].Time
	if created.IsZero() {
		created = p.opts.Now()
	}
	stem, err := p.reserveStem(created.Format(StampLayout))
	if err != nil {
		return logic.Artifact{}, err
	}
	poster := filepath.Join(p.opts.ImagesDir, stem+".jpg")
	thumb := filepath.Join(p.opts.ThumbsDir, stem+".jpg")
	output := filepath.Join(p.opts.ImagesDir, stem+"."+p.opts.Format)

	if err := p.writeFrame(poster, frames[0]); err != nil {
		os.Remove(poster)
		return logic.Artifact{}, err
	}
	if err := p.writeThumb(thumb, frames[0], poster); err != nil {
		return logic.Artifact{}, err
	}

	start := time.Now()
	if err := p.opts.Encoder.Encode(ctx, filepath.Join(work, FramePattern), fps, output); err != nil {
		return logic.Artifact{}, fmt.Errorf("encode %s: %w", output, err)
	}

	a := logic.Artifact{
		Kind:      logic.ArtifactAnimation,
		Path:      output,
		Poster:    poster,
		Thumbnail: thumb,
		CreatedAt: created,
	}
	p.log.Info().
		Str("path", output).
		Int("frames", len(frames)).
		Int("fps", fps).
		Dur("took", time.Since(start)).
		Msg("animation saved")
	return a, nil
}

// reserveStem claims the poster name for stamp, appending a counter when
// another burst already holds it. The empty poster file is the claim.
func (p *Pipeline) reserveStem(stamp string) (string, error) {
	stem := stamp
	for i := 2; ; i++ {
		f, err := os.OpenFile(filepath.Join(p.opts.ImagesDir, stem+".jpg"), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return stem, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("reserve %s: %w", stem, err)
		}
		stem = fmt.Sprintf("%s_%d", stamp, i)
	}
}

// writeFrame keeps device JPEG bytes verbatim and encodes otherwise.
func (p *Pipeline) writeFrame(path string, f logic.Frame) error {
	if len(f.JPEG) > 0 {
		return WriteBytes(path, f.JPEG)
	}
	return WriteJPEG(path, f.Image, FullQuality)
}

func (p *Pipeline) writeThumb(path string, f logic.Frame, full string) error {
	img := f.Image
	if img == nil {
		var err error
		if img, err = ReadJPEG(full); err != nil {
			return err
		}
	}
	return WriteJPEG(path, Thumbnail(img, p.opts.ThumbWidth), ThumbQuality)
}
