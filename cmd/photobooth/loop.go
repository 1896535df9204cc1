package main

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/photobooth/internal/artifact"
	"github.com/sweeney/photobooth/internal/camera"
	"github.com/sweeney/photobooth/internal/config"
	"github.com/sweeney/photobooth/internal/flash"
	"github.com/sweeney/photobooth/internal/gpio"
	"github.com/sweeney/photobooth/internal/logger"
	"github.com/sweeney/photobooth/internal/logic"
	"github.com/sweeney/photobooth/internal/mqtt"
	"github.com/sweeney/photobooth/internal/printer"
	"github.com/sweeney/photobooth/internal/status"
	"github.com/sweeney/photobooth/internal/worker"
)

// loopDeps are the collaborators of the run loop. Publisher and Reloads
// may be nil.
type loopDeps struct {
	Edges     gpio.EdgeSource
	Quit      <-chan struct{} // console quit key, may be nil
	Flash     *flash.Driver
	Camera    camera.Device
	Pool      *worker.Pool
	Pipeline  *artifact.Pipeline
	Printer   *printer.Dispatcher
	Tracker   *status.Tracker
	Publisher mqtt.Publisher
	Reloads   <-chan config.Config
	Signals   <-chan os.Signal
	Now       func() time.Time

	Lines  map[int]logic.Button
	Bounce time.Duration
	Params logic.Params
}

// loop owns the session. Every field is touched only from the goroutine
// running runLoop; timer callbacks reach it through timers.
type loop struct {
	loopDeps
	log      *zerolog.Logger
	session  *logic.Session
	debounce *logic.Debouncer
	params   logic.Params
	inputOff bool
	reason   string

	// levels holds reloaded flash levels until the session is IDLE.
	levels *[2]uint8

	timers   chan logic.Timer
	infoDone chan struct{}
	done     chan struct{}
}

// runLoop processes inputs until the session allows the process to exit.
// It returns the close reason (signal name or QUIT).
func runLoop(d loopDeps) string {
	if d.Now == nil {
		d.Now = time.Now
	}
	l := &loop{
		loopDeps: d,
		log:      logger.WithComponent("loop"),
		session:  logic.NewSession(),
		debounce: logic.NewDebouncer(d.Bounce, d.Lines),
		params:   d.Params,
		timers:   make(chan logic.Timer, 8),
		infoDone: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	defer close(l.done)

	l.log.Info().
		Dur("countdown", l.params.Countdown).
		Int("gif_frames", l.params.TargetFrames).
		Dur("bounce", d.Bounce).
		Msg("ready")
	l.publishState()

	quit := d.Quit
	for {
		select {
		case e := <-d.Edges.Edges():
			if l.handleEdge(e) {
				return l.reason
			}

		case r := <-d.Camera.Results():
			if l.handleCapture(r) {
				return l.reason
			}

		case t := <-l.timers:
			if l.execute(l.session.TimerFired(t)) {
				return l.reason
			}

		case r := <-d.Pipeline.Results():
			l.handlePersisted(r)

		case cfg := <-d.Reloads:
			l.applyConfig(cfg)

		case <-l.infoDone:
			if l.session.Mode() == logic.ModeIdle && l.Tracker.Snapshot().View == status.ViewInfo {
				l.Tracker.SetView(status.ViewLive, time.Time{})
			}

		case <-quit:
			quit = nil
			if l.requestClose("QUIT") {
				return l.reason
			}

		case s := <-d.Signals:
			if l.requestClose(signalName(s)) {
				return l.reason
			}
		}
	}
}

func (l *loop) handleEdge(e gpio.Edge) bool {
	b, verdict := l.debounce.Accept(e.Line, e.Tick)
	switch verdict {
	case logic.Bounced:
		l.log.Debug().Int("line", e.Line).Msg("bounce ignored")
		return false
	case logic.Unmapped:
		l.log.Debug().Int("line", e.Line).Msg("edge on unmapped line")
		return false
	}
	if l.inputOff {
		l.log.Debug().Str("button", string(b)).Msg("input disabled, press ignored")
		return false
	}

	before := l.session.CountsSnapshot().Rejected
	cmds := l.session.Trigger(b, l.params)
	if l.session.CountsSnapshot().Rejected > before {
		l.log.Debug().Str("button", string(b)).Str("mode", string(l.session.Mode())).Msg("trigger rejected")
		l.publish(mqtt.EventTriggerRejected, "", string(b))
	} else if l.session.Mode() == logic.ModeCountingDown && hasCommand(cmds, logic.CmdCountdown) {
		l.log.Info().Str("button", string(b)).Str("kind", string(l.session.Kind())).Msg("session started")
		l.publish(mqtt.EventSessionStarted, "", string(l.session.Kind()))
	}
	return l.execute(cmds)
}

func (l *loop) handleCapture(r camera.Result) bool {
	if r.Err != nil {
		if !l.session.Capturing() {
			l.log.Debug().Err(r.Err).Int("request", r.RequestID).Msg("late capture error dropped")
			return false
		}
		l.log.Error().Err(r.Err).Int("request", r.RequestID).Msg("capture failed, aborting session")
		l.publish(mqtt.EventCaptureFailed, "", r.Err.Error())
		return l.execute(l.session.CaptureFailed())
	}

	cmds := l.session.FrameDelivered(logic.Frame{
		RequestID: r.RequestID,
		Image:     r.Image,
		JPEG:      r.JPEG,
		Time:      l.Now(),
	})
	if cmds == nil {
		l.log.Warn().Int("request", r.RequestID).Str("mode", string(l.session.Mode())).Msg("unexpected frame dropped")
		return false
	}
	return l.execute(cmds)
}

func (l *loop) handlePersisted(r artifact.Result) {
	if r.Err != nil {
		l.log.Error().Err(r.Err).Str("kind", string(r.Kind)).Msg("persist failed")
		l.Tracker.RecordPersistFailure()
		l.publish(mqtt.EventPersistFailed, "", r.Err.Error())
		return
	}
	l.session.ArtifactSaved(r.Artifact)
	l.Tracker.SetLastArtifact(r.Artifact)
	l.log.Info().Str("kind", string(r.Kind)).Str("path", r.Artifact.Path).Msg("artifact saved")
	l.publish(mqtt.EventArtifactSaved, r.Artifact.Path, string(r.Kind))
}

func (l *loop) applyConfig(cfg config.Config) {
	l.params = cfg.Params()
	l.levels = &[2]uint8{uint8(cfg.Main.FlashOn), uint8(cfg.Main.FlashDefault)}
	if l.session.Mode() == logic.ModeIdle {
		l.applyLevels()
	}
	l.Printer.SetOptions(printerOptions(cfg))
	l.Tracker.SetConfig(statusConfig(cfg))
	if cfg.BounceWindow() != l.debounce.Window() {
		l.log.Warn().Msg("gpio changes take effect after restart")
	}
	l.log.Info().Dur("countdown", l.params.Countdown).Int("gif_frames", l.params.TargetFrames).Msg("settings applied to next session")
}

func (l *loop) applyLevels() {
	if l.levels == nil {
		return
	}
	l.Flash.SetLevels(l.levels[0], l.levels[1])
	l.levels = nil
}

func (l *loop) requestClose(reason string) bool {
	if l.reason == "" {
		l.reason = reason
	}
	if l.session.Closing() {
		l.log.Info().Str("reason", reason).Str("mode", string(l.session.Mode())).Msg("already closing")
		return false
	}
	l.log.Info().Str("reason", reason).Str("mode", string(l.session.Mode())).Msg("close requested")
	return l.execute(l.session.RequestClose())
}

// execute carries out cmds in order and reports whether the loop must exit.
// A capture request refused synchronously feeds CaptureFailed back in.
func (l *loop) execute(cmds []logic.Command) bool {
	exit := false
	for len(cmds) > 0 {
		c := cmds[0]
		cmds = cmds[1:]

		switch c.Type {
		case logic.CmdFlashOn:
			l.Flash.SetFlash(true)
		case logic.CmdFlashOff:
			l.Flash.SetFlash(false)

		case logic.CmdCountdown:
			l.Tracker.SetView(status.ViewCountdown, l.Now().Add(c.Delay))

		case logic.CmdCapture:
			id, err := l.Camera.Capture()
			if err != nil {
				l.log.Error().Err(err).Msg("capture request refused, aborting session")
				l.publish(mqtt.EventCaptureFailed, "", err.Error())
				cmds = append(cmds, l.session.CaptureFailed()...)
				continue
			}
			l.log.Debug().Int("request", id).Str("mode", string(l.session.Mode())).Msg("capture requested")

		case logic.CmdArmTimer:
			l.arm(c.Timer, c.Delay)

		case logic.CmdPersistSingle:
			for _, f := range c.Frames {
				l.Pool.Submit(l.Pipeline.SingleTask(f))
			}
		case logic.CmdPersistBurst:
			l.Pool.Submit(l.Pipeline.BurstTask(c.Frames, c.FPS))

		case logic.CmdShowResult:
			l.Tracker.SetView(status.ViewResult, time.Time{})
		case logic.CmdShowLive:
			l.Tracker.SetView(status.ViewLive, time.Time{})
			l.applyLevels()
		case logic.CmdShowInfo:
			l.Tracker.SetView(status.ViewInfo, time.Time{})
			l.armInfo(l.params.DisplayDuration)

		case logic.CmdPrint:
			l.submitPrint(c.Artifact)

		case logic.CmdDisableInput:
			l.inputOff = true
			l.log.Info().Str("mode", string(l.session.Mode())).Msg("input disabled, finishing session before exit")
		case logic.CmdExit:
			exit = true
		}
	}
	l.publishState()
	return exit
}

// arm starts a single-shot timer. Firings after the loop has returned are
// discarded.
func (l *loop) arm(t logic.Timer, d time.Duration) {
	time.AfterFunc(d, func() {
		select {
		case l.timers <- t:
		case <-l.done:
		}
	})
}

func (l *loop) armInfo(d time.Duration) {
	time.AfterFunc(d, func() {
		select {
		case l.infoDone <- struct{}{}:
		default:
		}
	})
}

func (l *loop) submitPrint(a logic.Artifact) {
	l.publish(mqtt.EventPrintRequested, a.PrintPath(), string(a.Kind))
	dispatcher := l.Printer
	tracker := l.Tracker
	ok := l.Pool.Submit(worker.Task{
		Name: "print",
		Run: func(ctx context.Context) error {
			outcome, err := dispatcher.PrintLast(ctx, a)
			tracker.RecordPrint(outcome == printer.Submitted, outcome == printer.SkippedBusy || outcome == printer.SkippedNone)
			return err
		},
	})
	if !ok {
		tracker.RecordPrint(false, false)
	}
}

func (l *loop) publishState() {
	l.Tracker.UpdateSession(status.Session{
		Mode:     l.session.Mode(),
		Kind:     l.session.Kind(),
		FlashOn:  l.session.FlashOn(),
		Buffered: l.session.Buffered(),
		Closing:  l.session.Closing(),
		Counts:   l.session.CountsSnapshot(),
	})
}

func (l *loop) publish(t mqtt.EventType, path, detail string) {
	if l.Publisher == nil {
		return
	}
	err := l.Publisher.Publish(mqtt.Event{
		Timestamp: l.Now(),
		Type:      t,
		Mode:      l.session.Mode(),
		Path:      path,
		Detail:    detail,
	})
	if err != nil {
		l.log.Warn().Err(err).Str("event", string(t)).Msg("publish error")
	}
}

func hasCommand(cmds []logic.Command, t logic.CommandType) bool {
	for _, c := range cmds {
		if c.Type == t {
			return true
		}
	}
	return false
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
