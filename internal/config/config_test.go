package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/photobooth/internal/logic"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "photobooth.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	s, err := Load(writeConfig(t, "log:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c := s.Current()

	if c.GPIO.Photo != 20 || c.GPIO.GIF != 19 || c.GPIO.Print != 18 || c.GPIO.Info != 21 {
		t.Errorf("unexpected default lines: %+v", c.GPIO)
	}
	if c.GPIO.Flash != 13 {
		t.Errorf("expected flash line 13, got %d", c.GPIO.Flash)
	}
	if c.Main.FlashDefault != 100 || c.Main.FlashOn != 255 {
		t.Errorf("expected flash levels 100/255, got %d/%d", c.Main.FlashDefault, c.Main.FlashOn)
	}
	if c.Main.Display != 4000 {
		t.Errorf("expected display 4000, got %d", c.Main.Display)
	}
	if c.Camera.Type != CameraV4L2 {
		t.Errorf("expected camera v4l2, got %q", c.Camera.Type)
	}
	if c.Log.Level != "debug" {
		t.Errorf("expected file value debug, got %q", c.Log.Level)
	}
	if c.BounceWindow() != time.Second {
		t.Errorf("expected 1s bounce window, got %v", c.BounceWindow())
	}
}

func TestLoadFileValues(t *testing.T) {
	path := writeConfig(t, `
main:
  countdown: 1500
  gif_frames: 5
  gif_fps: 4
  gif_pause: 250
  display: 2000
  image_dir: /srv/booth
printer:
  name: selphy
  options: ["media=Postcard"]
`)
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c := s.Current()

	want := logic.Params{
		Countdown:       1500 * time.Millisecond,
		InterFrameDelay: 250 * time.Millisecond,
		DisplayDuration: 2 * time.Second,
		TargetFrames:    5,
		BurstFPS:        4,
	}
	if got := c.Params(); got != want {
		t.Errorf("expected params %+v, got %+v", want, got)
	}
	if c.ImagesDir() != "/srv/booth/images" || c.ThumbsDir() != "/srv/booth/thumbs" {
		t.Errorf("unexpected dirs %q %q", c.ImagesDir(), c.ThumbsDir())
	}
	if c.Printer.Name != "selphy" || len(c.Printer.Options) != 1 || c.Printer.Options[0] != "media=Postcard" {
		t.Errorf("unexpected printer config %+v", c.Printer)
	}
	if s.File() != path {
		t.Errorf("expected file %q, got %q", path, s.File())
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PHOTOBOOTH_MAIN_COUNTDOWN", "500")
	t.Setenv("PHOTOBOOTH_CAMERA_TYPE", "fake")

	s, err := Load(writeConfig(t, "main:\n  countdown: 3000\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c := s.Current()
	if c.Main.Countdown != 500 {
		t.Errorf("expected env countdown 500, got %d", c.Main.Countdown)
	}
	if c.Camera.Type != CameraFake {
		t.Errorf("expected env camera fake, got %q", c.Camera.Type)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"zero frames", "main:\n  gif_frames: 0\n", "gif_frames"},
		{"zero fps", "main:\n  gif_fps: 0\n", "gif_fps"},
		{"negative countdown", "main:\n  countdown: -1\n", "countdown"},
		{"flash level", "main:\n  flash_on: 300\n", "flash_on"},
		{"duplicate line", "gpio:\n  gif: 20\n", "line 20"},
		{"flash shares line", "gpio:\n  flash: 18\n", "line 18"},
		{"camera type", "camera:\n  type: gphoto\n", "camera.type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestReloadKeepsPreviousOnError(t *testing.T) {
	path := writeConfig(t, "main:\n  countdown: 1000\n")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := os.WriteFile(path, []byte("main:\n  countdown: 2000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := s.Reload()
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if c.Main.Countdown != 2000 || s.Current().Main.Countdown != 2000 {
		t.Errorf("expected countdown 2000 after reload, got %d", s.Current().Main.Countdown)
	}

	if err := os.WriteFile(path, []byte("main:\n  gif_frames: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Reload(); err == nil {
		t.Fatal("expected invalid reload to fail")
	}
	if s.Current().Main.Countdown != 2000 {
		t.Errorf("invalid reload replaced config: countdown %d", s.Current().Main.Countdown)
	}
}

func TestButtonLines(t *testing.T) {
	s, err := Load(writeConfig(t, "gpio:\n  photo: 5\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	lines := s.Current().ButtonLines()
	if lines[5] != logic.ButtonPhoto {
		t.Errorf("expected line 5 photo, got %q", lines[5])
	}
	if lines[21] != logic.ButtonInfo || lines[19] != logic.ButtonGIF || lines[18] != logic.ButtonPrint {
		t.Errorf("unexpected mapping %v", lines)
	}
	if _, ok := lines[13]; ok {
		t.Error("flash line must not map to a button")
	}
}

func TestCurrentReturnsCopy(t *testing.T) {
	s, err := Load(writeConfig(t, "printer:\n  options: [a]\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c := s.Current()
	c.Printer.Options[0] = "changed"
	if s.Current().Printer.Options[0] != "a" {
		t.Error("Current must not share option slice")
	}
}
