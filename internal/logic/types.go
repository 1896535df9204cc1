// Package logic contains the pure capture orchestration logic of the booth.
// This package has NO external dependencies (no GPIO, camera, files, or time.Sleep).
// Time is always injectable via time.Time / time.Duration parameters.
package logic

import (
	"image"
	"time"
)

// Button identifies a logical button on the panel.
type Button string

const (
	ButtonInfo  Button = "info"
	ButtonPhoto Button = "photo"
	ButtonGIF   Button = "gif"
	ButtonPrint Button = "print"
)

// Mode is the state of the capture session.
type Mode string

const (
	ModeIdle            Mode = "IDLE"
	ModeCountingDown    Mode = "COUNTING_DOWN"
	ModeCapturingSingle Mode = "CAPTURING_SINGLE"
	ModeCapturingBurst  Mode = "CAPTURING_BURST"
	ModeDisplaying      Mode = "DISPLAYING"
)

// Kind selects what a session produces.
type Kind string

const (
	KindSingle Kind = "SINGLE"
	KindBurst  Kind = "BURST"
)

// TimerKind identifies a single-shot timer armed by the session.
type TimerKind string

const (
	TimerCountdown TimerKind = "COUNTDOWN"
	TimerNextFrame TimerKind = "NEXT_FRAME"
	TimerDisplay   TimerKind = "DISPLAY"
)

// Timer is handed back to the session when an armed delay elapses.
// Generation ties it to the session that armed it.
type Timer struct {
	Kind       TimerKind
	Generation uint64
}

// Params are the session parameters, snapshotted from configuration when a
// session is triggered.
type Params struct {
	Countdown       time.Duration
	InterFrameDelay time.Duration
	DisplayDuration time.Duration
	TargetFrames    int
	BurstFPS        int
}

// Frame is a single captured still.
type Frame struct {
	RequestID int
	Image     image.Image
	JPEG      []byte // encoded bytes as delivered by the device, may be nil
	Time      time.Time
}

// ArtifactKind distinguishes stills from merged sequences.
type ArtifactKind string

const (
	ArtifactStill     ArtifactKind = "STILL"
	ArtifactAnimation ArtifactKind = "ANIMATION"
)

// Artifact is a persisted result. Poster is the still used for printing an
// animation; empty for stills.
type Artifact struct {
	Kind      ArtifactKind
	Path      string
	Poster    string
	Thumbnail string
	CreatedAt time.Time
}

// PrintPath returns the still image that represents the artifact on paper.
func (a Artifact) PrintPath() string {
	if a.Kind == ArtifactAnimation {
		return a.Poster
	}
	return a.Path
}

// CommandType is an effect the run loop must carry out.
type CommandType string

const (
	CmdFlashOn       CommandType = "FLASH_ON"
	CmdFlashOff      CommandType = "FLASH_OFF"
	CmdCountdown     CommandType = "COUNTDOWN"
	CmdCapture       CommandType = "CAPTURE"
	CmdArmTimer      CommandType = "ARM_TIMER"
	CmdPersistSingle CommandType = "PERSIST_SINGLE"
	CmdPersistBurst  CommandType = "PERSIST_BURST"
	CmdShowResult    CommandType = "SHOW_RESULT"
	CmdShowLive      CommandType = "SHOW_LIVE"
	CmdShowInfo      CommandType = "SHOW_INFO"
	CmdPrint         CommandType = "PRINT"
	CmdDisableInput  CommandType = "DISABLE_INPUT"
	CmdExit          CommandType = "EXIT"
)

// Command is a single effect. Only the fields relevant to Type are set.
type Command struct {
	Type     CommandType
	Timer    Timer         // ARM_TIMER
	Delay    time.Duration // ARM_TIMER, COUNTDOWN
	Frames   []Frame       // PERSIST_SINGLE, PERSIST_BURST (ownership moves to the receiver)
	FPS      int           // PERSIST_BURST
	Artifact Artifact      // PRINT
}

// Counts tracks session outcomes since startup.
type Counts struct {
	Photos        int
	Bursts        int
	Rejected      int
	CaptureErrors int
	Prints        int
}
