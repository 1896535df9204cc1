package artifact

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Encoder merges a numbered frame sequence into one animation file.
// inputPattern is a printf-style path such as /tmp/x/frame_%03d.jpg.
type Encoder interface {
	Encode(ctx context.Context, inputPattern string, fps int, output string) error
}

// ExecEncoder runs ffmpeg (or a compatible binary).
type ExecEncoder struct {
	Command string
}

// Args returns the command line for one encode. Codec options follow the
// output extension.
func (e ExecEncoder) Args(inputPattern string, fps int, output string) []string {
	args := []string{
		"-y",
		"-loglevel", "error",
		"-framerate", strconv.Itoa(fps),
		"-i", inputPattern,
	}
	switch strings.ToLower(filepath.Ext(output)) {
	case ".mp4", ".mov", ".mkv":
		args = append(args, "-c:v", "libx264", "-pix_fmt", "yuv420p", "-crf", "23")
	case ".gif":
		args = append(args,
			"-vf", "split[a][b];[a]palettegen[p];[b][p]paletteuse",
			"-loop", "0",
		)
	case ".webm":
		args = append(args, "-c:v", "libvpx-vp9", "-b:v", "0", "-crf", "32")
	}
	return append(args, output)
}

func (e ExecEncoder) Encode(ctx context.Context, inputPattern string, fps int, output string) error {
	cmd := exec.CommandContext(ctx, e.Command, e.Args(inputPattern, fps, output)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", e.Command, err, bytes.TrimSpace(out))
	}
	return nil
}

// EncodeCall records one FakeEncoder invocation.
type EncodeCall struct {
	InputPattern string
	FPS          int
	Output       string
	Frames       int // files matching the pattern at call time
}

// FakeEncoder is a test double that records calls and writes a placeholder
// output file.
type FakeEncoder struct {
	mu    sync.Mutex
	calls []EncodeCall

	// Err, if set, is returned instead of writing output.
	Err error
}

func (f *FakeEncoder) Encode(ctx context.Context, inputPattern string, fps int, output string) error {
	matches, _ := filepath.Glob(strings.Replace(inputPattern, "%03d", "[0-9][0-9][0-9]", 1))

	f.mu.Lock()
	f.calls = append(f.calls, EncodeCall{InputPattern: inputPattern, FPS: fps, Output: output, Frames: len(matches)})
	err := f.Err
	f.mu.Unlock()

	if err != nil {
		return err
	}
	return WriteBytes(output, []byte("fake animation"))
}

// Calls returns a copy of the recorded calls.
func (f *FakeEncoder) Calls() []EncodeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]EncodeCall(nil), f.calls...)
}
