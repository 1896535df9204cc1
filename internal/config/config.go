// Package config loads booth settings from a YAML file with environment
// overrides, and keeps them current while the file changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/sweeney/photobooth/internal/logger"
	"github.com/sweeney/photobooth/internal/logic"
)

// EnvPrefix prefixes environment overrides, e.g. PHOTOBOOTH_MAIN_COUNTDOWN.
const EnvPrefix = "PHOTOBOOTH"

// Camera types.
const (
	CameraV4L2   = "v4l2"
	CameraRPiCam = "rpicam"
	CameraFake   = "fake"
)

// Config is the full settings tree.
type Config struct {
	GPIO    GPIOConfig    `mapstructure:"gpio" yaml:"gpio"`
	Main    MainConfig    `mapstructure:"main" yaml:"main"`
	Camera  CameraConfig  `mapstructure:"camera" yaml:"camera"`
	Encoder EncoderConfig `mapstructure:"encoder" yaml:"encoder"`
	Printer PrinterConfig `mapstructure:"printer" yaml:"printer"`
	MQTT    MQTTConfig    `mapstructure:"mqtt" yaml:"mqtt"`
	HTTP    HTTPConfig    `mapstructure:"http" yaml:"http"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// GPIOConfig holds line offsets (BCM numbering) and input settings.
type GPIOConfig struct {
	Chip     string `mapstructure:"chip" yaml:"chip"`
	Info     int    `mapstructure:"info" yaml:"info"`
	Photo    int    `mapstructure:"photo" yaml:"photo"`
	GIF      int    `mapstructure:"gif" yaml:"gif"`
	Print    int    `mapstructure:"print" yaml:"print"`
	Flash    int    `mapstructure:"flash" yaml:"flash"`
	BounceMS int    `mapstructure:"bounce_ms" yaml:"bounce_ms"`
	Mock     bool   `mapstructure:"mock" yaml:"mock"`
}

// MainConfig holds session timing, flash levels and output locations.
// Durations are in milliseconds.
type MainConfig struct {
	Countdown    int    `mapstructure:"countdown" yaml:"countdown"`
	GIFFrames    int    `mapstructure:"gif_frames" yaml:"gif_frames"`
	GIFFPS       int    `mapstructure:"gif_fps" yaml:"gif_fps"`
	GIFPause     int    `mapstructure:"gif_pause" yaml:"gif_pause"`
	Display      int    `mapstructure:"display" yaml:"display"`
	FlashDefault int    `mapstructure:"flash_default" yaml:"flash_default"`
	FlashOn      int    `mapstructure:"flash_on" yaml:"flash_on"`
	FlipH        bool   `mapstructure:"flip_h" yaml:"flip_h"`
	FlipV        bool   `mapstructure:"flip_v" yaml:"flip_v"`
	PrinterFlipV bool   `mapstructure:"printer_flip_v" yaml:"printer_flip_v"`
	ImageDir     string `mapstructure:"image_dir" yaml:"image_dir"`
	ThumbWidth   int    `mapstructure:"thumb_width" yaml:"thumb_width"`
	Workers      int    `mapstructure:"workers" yaml:"workers"`
}

type CameraConfig struct {
	Type   string `mapstructure:"type" yaml:"type"`
	Device string `mapstructure:"device" yaml:"device"`
	Width  int    `mapstructure:"width" yaml:"width"`
	Height int    `mapstructure:"height" yaml:"height"`
}

type EncoderConfig struct {
	Command string `mapstructure:"command" yaml:"command"`
	Format  string `mapstructure:"format" yaml:"format"`
}

type PrinterConfig struct {
	Name       string   `mapstructure:"name" yaml:"name"`
	Options    []string `mapstructure:"options" yaml:"options"`
	StagingDir string   `mapstructure:"staging_dir" yaml:"staging_dir"`
}

type MQTTConfig struct {
	Broker string `mapstructure:"broker" yaml:"broker"`
	Topic  string `mapstructure:"topic" yaml:"topic"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gpio.chip", "gpiochip0")
	v.SetDefault("gpio.info", 21)
	v.SetDefault("gpio.photo", 20)
	v.SetDefault("gpio.gif", 19)
	v.SetDefault("gpio.print", 18)
	v.SetDefault("gpio.flash", 13)
	v.SetDefault("gpio.bounce_ms", 1000)
	v.SetDefault("gpio.mock", false)

	v.SetDefault("main.countdown", 3000)
	v.SetDefault("main.gif_frames", 3)
	v.SetDefault("main.gif_fps", 3)
	v.SetDefault("main.gif_pause", 1000)
	v.SetDefault("main.display", 4000)
	v.SetDefault("main.flash_default", 100)
	v.SetDefault("main.flash_on", 255)
	v.SetDefault("main.flip_h", true)
	v.SetDefault("main.flip_v", true)
	v.SetDefault("main.printer_flip_v", false)
	v.SetDefault("main.image_dir", "./images")
	v.SetDefault("main.thumb_width", 500)
	v.SetDefault("main.workers", 2)

	v.SetDefault("camera.type", CameraV4L2)
	v.SetDefault("camera.device", "/dev/video0")
	v.SetDefault("camera.width", 1920)
	v.SetDefault("camera.height", 1080)

	v.SetDefault("encoder.command", "ffmpeg")
	v.SetDefault("encoder.format", "mp4")

	v.SetDefault("printer.name", "")
	v.SetDefault("printer.options", []string{})
	v.SetDefault("printer.staging_dir", os.TempDir())

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.topic", "photobooth")

	v.SetDefault("http.addr", ":8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// SearchPaths are the directories searched for photobooth.yaml when no file
// is named explicitly.
func SearchPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "photobooth"))
	}
	return append(paths, "/etc/photobooth")
}

// Store holds the current configuration. Reads are safe from any goroutine.
type Store struct {
	v *viper.Viper

	mu  sync.RWMutex
	cfg Config
}

// Load reads the configuration from path, or from photobooth.yaml in
// SearchPaths when path is empty. A missing file is an error.
func Load(path string) (*Store, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("photobooth")
		v.SetConfigType("yaml")
		for _, p := range SearchPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("no photobooth.yaml in %s", strings.Join(SearchPaths(), ", "))
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	return &Store{v: v, cfg: cfg}, nil
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", v.ConfigFileUsed(), err)
	}
	return cfg, nil
}

// Current returns a copy of the active configuration.
func (s *Store) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.cfg
	cfg.Printer.Options = append([]string(nil), s.cfg.Printer.Options...)
	return cfg
}

// File returns the path of the loaded file.
func (s *Store) File() string {
	return s.v.ConfigFileUsed()
}

// Reload re-reads the file. An unreadable or invalid file leaves the active
// configuration untouched.
func (s *Store) Reload() (Config, error) {
	if err := s.v.ReadInConfig(); err != nil {
		return s.Current(), fmt.Errorf("failed to re-read config: %w", err)
	}
	cfg, err := decode(s.v)
	if err != nil {
		return s.Current(), err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return cfg, nil
}

// Watch reloads on file changes and passes every valid result to onChange.
// onChange runs on the watcher goroutine.
func (s *Store) Watch(onChange func(Config)) {
	log := logger.WithComponent("config")
	s.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := s.Reload()
		if err != nil {
			log.Warn().Err(err).Str("file", e.Name).Msg("config reload rejected, keeping previous settings")
			return
		}
		log.Info().Str("file", e.Name).Msg("config reloaded")
		if onChange != nil {
			onChange(cfg)
		}
	})
	s.v.WatchConfig()
}

// Validate checks ranges and cross-field constraints.
func (c Config) Validate() error {
	m := c.Main
	switch {
	case m.Countdown <= 0:
		return fmt.Errorf("main.countdown must be positive, got %d", m.Countdown)
	case m.Display <= 0:
		return fmt.Errorf("main.display must be positive, got %d", m.Display)
	case m.GIFPause < 0:
		return fmt.Errorf("main.gif_pause must not be negative, got %d", m.GIFPause)
	case m.GIFFrames < 1:
		return fmt.Errorf("main.gif_frames must be at least 1, got %d", m.GIFFrames)
	case m.GIFFPS < 1:
		return fmt.Errorf("main.gif_fps must be at least 1, got %d", m.GIFFPS)
	case m.FlashDefault < 0 || m.FlashDefault > 255:
		return fmt.Errorf("main.flash_default must be 0-255, got %d", m.FlashDefault)
	case m.FlashOn < 0 || m.FlashOn > 255:
		return fmt.Errorf("main.flash_on must be 0-255, got %d", m.FlashOn)
	case m.ImageDir == "":
		return errors.New("main.image_dir must be set")
	case m.ThumbWidth < 1:
		return fmt.Errorf("main.thumb_width must be at least 1, got %d", m.ThumbWidth)
	case m.Workers < 1:
		return fmt.Errorf("main.workers must be at least 1, got %d", m.Workers)
	case c.GPIO.BounceMS < 0:
		return fmt.Errorf("gpio.bounce_ms must not be negative, got %d", c.GPIO.BounceMS)
	case c.Encoder.Command == "":
		return errors.New("encoder.command must be set")
	case c.Encoder.Format == "":
		return errors.New("encoder.format must be set")
	}

	switch c.Camera.Type {
	case CameraV4L2, CameraRPiCam, CameraFake:
	default:
		return fmt.Errorf("camera.type must be %s, %s or %s, got %q", CameraV4L2, CameraRPiCam, CameraFake, c.Camera.Type)
	}
	if c.Camera.Width < 1 || c.Camera.Height < 1 {
		return fmt.Errorf("camera size must be positive, got %dx%d", c.Camera.Width, c.Camera.Height)
	}

	seen := make(map[int]string)
	for _, l := range []struct {
		name string
		line int
	}{
		{"gpio.info", c.GPIO.Info},
		{"gpio.photo", c.GPIO.Photo},
		{"gpio.gif", c.GPIO.GIF},
		{"gpio.print", c.GPIO.Print},
		{"gpio.flash", c.GPIO.Flash},
	} {
		if l.line < 0 {
			return fmt.Errorf("%s must not be negative, got %d", l.name, l.line)
		}
		if other, dup := seen[l.line]; dup {
			return fmt.Errorf("%s and %s both use line %d", other, l.name, l.line)
		}
		seen[l.line] = l.name
	}
	return nil
}

// ButtonLines maps input line offsets to logical buttons.
func (c Config) ButtonLines() map[int]logic.Button {
	return map[int]logic.Button{
		c.GPIO.Info:  logic.ButtonInfo,
		c.GPIO.Photo: logic.ButtonPhoto,
		c.GPIO.GIF:   logic.ButtonGIF,
		c.GPIO.Print: logic.ButtonPrint,
	}
}

// BounceWindow returns the debounce window.
func (c Config) BounceWindow() time.Duration {
	return ms(c.GPIO.BounceMS)
}

// Params snapshots the session parameters.
func (c Config) Params() logic.Params {
	return logic.Params{
		Countdown:       ms(c.Main.Countdown),
		InterFrameDelay: ms(c.Main.GIFPause),
		DisplayDuration: ms(c.Main.Display),
		TargetFrames:    c.Main.GIFFrames,
		BurstFPS:        c.Main.GIFFPS,
	}
}

// ImagesDir is where full-size artifacts go.
func (c Config) ImagesDir() string {
	return filepath.Join(c.Main.ImageDir, "images")
}

// ThumbsDir is where thumbnails go.
func (c Config) ThumbsDir() string {
	return filepath.Join(c.Main.ImageDir, "thumbs")
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
