package logic

import "time"

// Session is the capture orchestration state machine. It is created once and
// reused for the process lifetime. Every input returns the commands the
// caller must execute, in order. Session is not safe for concurrent use; it
// is owned by the run loop.
type Session struct {
	mode       Mode
	kind       Kind
	params     Params
	flashOn    bool
	frames     []Frame
	generation uint64
	closing    bool

	lastArtifact Artifact
	hasArtifact  bool

	counts Counts
}

// NewSession creates an idle session.
func NewSession() *Session {
	return &Session{mode: ModeIdle}
}

// Trigger handles a button press. Photo and GIF start a session only from
// IDLE; anything else is rejected without side effects.
func (s *Session) Trigger(b Button, p Params) []Command {
	switch b {
	case ButtonPhoto:
		return s.start(KindSingle, p)
	case ButtonGIF:
		return s.start(KindBurst, p)
	case ButtonPrint:
		return s.Print()
	case ButtonInfo:
		if s.mode != ModeIdle || s.closing {
			s.counts.Rejected++
			return nil
		}
		return []Command{{Type: CmdShowInfo}}
	}
	return nil
}

func (s *Session) start(kind Kind, p Params) []Command {
	if s.mode != ModeIdle || s.closing {
		s.counts.Rejected++
		return nil
	}
	if p.TargetFrames < 1 {
		p.TargetFrames = 1
	}

	s.generation++
	s.kind = kind
	s.params = p
	s.frames = nil
	s.mode = ModeCountingDown

	cmds := s.flash(true, nil)
	cmds = append(cmds,
		Command{Type: CmdCountdown, Delay: p.Countdown},
		s.arm(TimerCountdown, p.Countdown),
	)
	return cmds
}

// TimerFired handles an elapsed single-shot timer. Timers armed by an
// earlier session, or that no longer match the mode, are ignored.
func (s *Session) TimerFired(t Timer) []Command {
	if t.Generation != s.generation {
		return nil
	}

	switch t.Kind {
	case TimerCountdown:
		if s.mode != ModeCountingDown {
			return nil
		}
		if s.kind == KindBurst {
			s.mode = ModeCapturingBurst
		} else {
			s.mode = ModeCapturingSingle
		}
		return []Command{{Type: CmdCapture}}

	case TimerNextFrame:
		if s.mode != ModeCapturingBurst {
			return nil
		}
		return []Command{{Type: CmdCapture}}

	case TimerDisplay:
		if s.mode != ModeDisplaying {
			return nil
		}
		return s.finish(nil)
	}
	return nil
}

// FrameDelivered handles a completed capture request. Frames arriving
// outside a capturing mode are dropped and nil is returned.
func (s *Session) FrameDelivered(f Frame) []Command {
	switch s.mode {
	case ModeCapturingSingle:
		s.mode = ModeDisplaying
		s.counts.Photos++
		cmds := []Command{{Type: CmdPersistSingle, Frames: []Frame{f}}}
		cmds = s.flash(false, cmds)
		return append(cmds,
			Command{Type: CmdShowResult},
			s.arm(TimerDisplay, s.params.DisplayDuration),
		)

	case ModeCapturingBurst:
		s.frames = append(s.frames, f)
		if len(s.frames) < s.params.TargetFrames {
			return []Command{s.arm(TimerNextFrame, s.params.InterFrameDelay)}
		}

		// Hand the buffer off and start a fresh one, so the receiver owns
		// the frames outright.
		frames := s.frames
		s.frames = nil
		s.mode = ModeDisplaying
		s.counts.Bursts++

		cmds := s.flash(false, nil)
		return append(cmds,
			Command{Type: CmdPersistBurst, Frames: frames, FPS: s.params.BurstFPS},
			Command{Type: CmdShowResult},
			s.arm(TimerDisplay, s.params.DisplayDuration),
		)
	}
	return nil
}

// CaptureFailed aborts the current session straight back to IDLE.
func (s *Session) CaptureFailed() []Command {
	if s.mode != ModeCapturingSingle && s.mode != ModeCapturingBurst {
		return nil
	}
	s.counts.CaptureErrors++
	s.frames = nil
	cmds := s.flash(false, nil)
	return s.finish(cmds)
}

// RequestClose asks the session to let the process exit. While a session is
// active the close is deferred until IDLE is reached and input is disabled.
func (s *Session) RequestClose() []Command {
	if s.mode == ModeIdle {
		s.closing = true
		return []Command{{Type: CmdExit}}
	}
	if s.closing {
		return nil
	}
	s.closing = true
	return []Command{{Type: CmdDisableInput}}
}

// Print requests a print of the last artifact. It does nothing before the
// first artifact has been persisted or once closing.
func (s *Session) Print() []Command {
	if !s.hasArtifact || s.closing {
		return nil
	}
	s.counts.Prints++
	return []Command{{Type: CmdPrint, Artifact: s.lastArtifact}}
}

// ArtifactSaved records a persisted artifact as the print candidate.
func (s *Session) ArtifactSaved(a Artifact) {
	s.lastArtifact = a
	s.hasArtifact = true
}

// finish returns to IDLE, appending SHOW_LIVE and, if a close was deferred,
// EXIT.
func (s *Session) finish(cmds []Command) []Command {
	s.mode = ModeIdle
	cmds = append(cmds, Command{Type: CmdShowLive})
	if s.closing {
		cmds = append(cmds, Command{Type: CmdExit})
	}
	return cmds
}

// flash appends a flash command if it changes the flash state, so on and
// off always alternate.
func (s *Session) flash(on bool, cmds []Command) []Command {
	if s.flashOn == on {
		return cmds
	}
	s.flashOn = on
	if on {
		return append(cmds, Command{Type: CmdFlashOn})
	}
	return append(cmds, Command{Type: CmdFlashOff})
}

func (s *Session) arm(kind TimerKind, d time.Duration) Command {
	return Command{
		Type:  CmdArmTimer,
		Timer: Timer{Kind: kind, Generation: s.generation},
		Delay: d,
	}
}

// Mode returns the current mode.
func (s *Session) Mode() Mode {
	return s.mode
}

// Kind returns the kind of the current or most recent session.
func (s *Session) Kind() Kind {
	return s.kind
}

// FlashOn reports whether a flash-on command is outstanding.
func (s *Session) FlashOn() bool {
	return s.flashOn
}

// Closing reports whether a close has been requested.
func (s *Session) Closing() bool {
	return s.closing
}

// Buffered returns the number of frames in the burst buffer.
func (s *Session) Buffered() int {
	return len(s.frames)
}

// Params returns the parameters of the current or most recent session.
func (s *Session) Params() Params {
	return s.params
}

// LastArtifact returns the print candidate, if any.
func (s *Session) LastArtifact() (Artifact, bool) {
	return s.lastArtifact, s.hasArtifact
}

// Capturing reports whether a capture request may be outstanding.
func (s *Session) Capturing() bool {
	return s.mode == ModeCapturingSingle || s.mode == ModeCapturingBurst
}

// CountsSnapshot returns a copy of the outcome counters.
func (s *Session) CountsSnapshot() Counts {
	return s.counts
}
