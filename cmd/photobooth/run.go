package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/photobooth/internal/artifact"
	"github.com/sweeney/photobooth/internal/camera"
	"github.com/sweeney/photobooth/internal/config"
	"github.com/sweeney/photobooth/internal/flash"
	"github.com/sweeney/photobooth/internal/gpio"
	"github.com/sweeney/photobooth/internal/logger"
	"github.com/sweeney/photobooth/internal/mqtt"
	"github.com/sweeney/photobooth/internal/printer"
	"github.com/sweeney/photobooth/internal/status"
	"github.com/sweeney/photobooth/internal/web"
	"github.com/sweeney/photobooth/internal/worker"
)

// workerQueue bounds side work waiting for a free worker.
const workerQueue = 16

func run(ctx context.Context, store *config.Store, console bool) error {
	log := logger.WithComponent("main")
	cfg := store.Current()

	tracker := status.NewTracker(time.Now(), statusConfig(cfg))

	// MQTT is optional; the publisher connects in the background.
	var publisher mqtt.Publisher
	var realPub *mqtt.RealPublisher
	if cfg.MQTT.Broker != "" {
		host, _ := os.Hostname()
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: "photobooth-" + host,
			Prefix:   cfg.MQTT.Topic,
			OnStatus: tracker.SetMQTTConnected,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		realPub = p
		publisher = p
		defer p.Close()
	}

	edges, quit, err := openInput(cfg, console)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	out, err := openFlash(cfg)
	if err != nil {
		edges.Close()
		return fmt.Errorf("init flash: %w", err)
	}
	flashDriver := flash.New(out, uint8(cfg.Main.FlashOn), uint8(cfg.Main.FlashDefault))

	cam, err := camera.Open(cfg.Camera.Type, camera.Options{
		Device: cfg.Camera.Device,
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
		FlipH:  cfg.Main.FlipH,
		FlipV:  cfg.Main.FlipV,
	})
	if err == nil {
		err = cam.Start()
	}
	if err != nil {
		flashDriver.Close()
		edges.Close()
		return fmt.Errorf("init camera: %w", err)
	}

	pipeline, err := artifact.NewPipeline(artifact.Options{
		ImagesDir:  cfg.ImagesDir(),
		ThumbsDir:  cfg.ThumbsDir(),
		ThumbWidth: cfg.Main.ThumbWidth,
		Format:     cfg.Encoder.Format,
		Encoder:    artifact.ExecEncoder{Command: cfg.Encoder.Command},
		Now:        time.Now,
	})
	if err != nil {
		cam.Close()
		flashDriver.Close()
		edges.Close()
		return fmt.Errorf("init storage: %w", err)
	}
	pool := worker.New(ctx, cfg.Main.Workers, workerQueue)
	dispatcher := printer.NewDispatcher(printer.CUPS{Printer: cfg.Printer.Name}, printerOptions(cfg))

	if cfg.HTTP.Addr != "" {
		srv := web.New(web.Options{Addr: cfg.HTTP.Addr, ImagesDir: cfg.ImagesDir(), ThumbsDir: cfg.ThumbsDir()}, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("gallery listening")
	}

	reloads := make(chan config.Config, 1)
	store.Watch(func(c config.Config) {
		// Keep only the newest settings if the loop is behind.
		select {
		case <-reloads:
		default:
		}
		reloads <- c
	})

	if publisher != nil {
		snap := tracker.Snapshot()
		if err := publisher.PublishSystem(mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}); err != nil {
			log.Warn().Err(err).Msg("failed to publish startup event")
		}
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	log.Info().
		Str("config", store.File()).
		Str("camera", cfg.Camera.Type).
		Str("images", cfg.ImagesDir()).
		Str("broker", cfg.MQTT.Broker).
		Msg("started")

	reason := runLoop(loopDeps{
		Edges:     edges,
		Quit:      quit,
		Flash:     flashDriver,
		Camera:    cam,
		Pool:      pool,
		Pipeline:  pipeline,
		Printer:   dispatcher,
		Tracker:   tracker,
		Publisher: publisher,
		Reloads:   reloads,
		Signals:   sigCh,
		Now:       time.Now,
		Lines:     cfg.ButtonLines(),
		Bounce:    cfg.BounceWindow(),
		Params:    cfg.Params(),
	})

	shutdown(pool, pipeline, tracker, flashDriver, cam, edges)

	if realPub != nil {
		snap := tracker.Snapshot()
		if err := realPub.Flush(mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "SHUTDOWN",
			Reason:     reason,
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
		}, 5*time.Second); err != nil {
			log.Warn().Err(err).Msg("failed to publish shutdown event")
		} else {
			log.Info().Msg("published shutdown event")
		}
	}

	stats := pool.Stats()
	log.Info().
		Str("reason", reason).
		Uint64("tasks_completed", stats.Completed).
		Uint64("tasks_failed", stats.Failed).
		Uint64("tasks_dropped", stats.Dropped).
		Msg("stopped")
	return nil
}

// shutdown finishes side work, then releases hardware: flash back to idle,
// camera stopped, input lines released.
func shutdown(pool *worker.Pool, pipeline *artifact.Pipeline, tracker *status.Tracker, fl *flash.Driver, cam camera.Device, edges gpio.EdgeSource) {
	log := logger.WithComponent("main")

	pool.Wait()
drain:
	for {
		select {
		case r := <-pipeline.Results():
			if r.Err != nil {
				tracker.RecordPersistFailure()
				log.Error().Err(r.Err).Str("kind", string(r.Kind)).Msg("persist failed")
				continue
			}
			tracker.SetLastArtifact(r.Artifact)
			log.Info().Str("path", r.Artifact.Path).Msg("artifact saved")
		default:
			break drain
		}
	}

	if err := fl.Close(); err != nil {
		log.Warn().Err(err).Msg("flash close")
	}
	if err := cam.Stop(); err != nil {
		log.Warn().Err(err).Msg("camera stop")
	}
	if err := cam.Close(); err != nil {
		log.Warn().Err(err).Msg("camera close")
	}
	if err := edges.Close(); err != nil {
		log.Warn().Err(err).Msg("gpio close")
	}
}

// openInput returns the button edge source and, for the console, its quit
// channel.
func openInput(cfg config.Config, console bool) (gpio.EdgeSource, <-chan struct{}, error) {
	if console || cfg.GPIO.Mock {
		keys := gpio.DefaultConsoleKeys(cfg.GPIO.Photo, cfg.GPIO.GIF, cfg.GPIO.Print, cfg.GPIO.Info)
		src := gpio.NewConsoleSource(os.Stdin, keys)
		return src, src.Quit(), nil
	}
	src, err := gpio.NewChipSource(cfg.GPIO.Chip, []int{cfg.GPIO.Info, cfg.GPIO.Photo, cfg.GPIO.GIF, cfg.GPIO.Print})
	if err != nil {
		return nil, nil, err
	}
	return src, nil, nil
}

// openFlash prefers the hardware PWM peripheral and falls back to switching
// the line on and off.
func openFlash(cfg config.Config) (gpio.PWM, error) {
	if cfg.GPIO.Mock {
		return gpio.NewMockPWM(cfg.GPIO.Flash), nil
	}
	pwm, err := gpio.NewRPiPWM(cfg.GPIO.Flash)
	if err == nil {
		return pwm, nil
	}
	logger.WithComponent("main").Warn().Err(err).Int("line", cfg.GPIO.Flash).
		Msg("hardware PWM unavailable, driving flash as on/off line")
	return gpio.NewLineOutput(cfg.GPIO.Chip, cfg.GPIO.Flash)
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		CountdownMs: int64(cfg.Main.Countdown),
		GIFFrames:   cfg.Main.GIFFrames,
		GIFFPS:      cfg.Main.GIFFPS,
		GIFPauseMs:  int64(cfg.Main.GIFPause),
		DisplayMs:   int64(cfg.Main.Display),
		BounceMs:    int64(cfg.GPIO.BounceMS),
		Camera:      cfg.Camera.Type,
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
		ImageDir:    cfg.Main.ImageDir,
	}
}

func printerOptions(cfg config.Config) printer.Options {
	return printer.Options{
		StagingDir: cfg.Printer.StagingDir,
		FlipV:      cfg.Main.PrinterFlipV,
		Options:    cfg.Printer.Options,
	}
}
