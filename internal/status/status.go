// Package status provides a thread-safe status tracker for the photobooth
// daemon. It is the headless display surface: the run loop writes to it and
// HTTP handlers, the websocket stream and MQTT lifecycle events read it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/photobooth/internal/logic"
)

// View is what a kiosk screen would be showing.
type View string

const (
	ViewLive      View = "LIVE"
	ViewCountdown View = "COUNTDOWN"
	ViewResult    View = "RESULT"
	ViewInfo      View = "INFO"
)

// Config contains daemon configuration for display.
type Config struct {
	CountdownMs int64
	GIFFrames   int
	GIFFPS      int
	GIFPauseMs  int64
	DisplayMs   int64
	BounceMs    int64
	Camera      string
	Broker      string
	HTTPAddr    string
	ImageDir    string
}

// Session is the run loop's view of the capture session.
type Session struct {
	Mode     logic.Mode
	Kind     logic.Kind
	FlashOn  bool
	Buffered int
	Closing  bool
	Counts   logic.Counts
}

// Outputs counts side-work outcomes reported by workers.
type Outputs struct {
	Saved          int
	PersistFailed  int
	PrintSubmitted int
	PrintSkipped   int
	PrintFailed    int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Session        Session
	View           View
	CountdownUntil time.Time
	LastArtifact   *logic.Artifact
	Outputs        Outputs
	StartTime      time.Time
	Now            time.Time
	MQTTConnected  bool
	Config         Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex. Subscribers are
// signalled after every change.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot

	subMu  sync.Mutex
	subs   map[int]chan struct{}
	nextID int
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Session:   Session{Mode: logic.ModeIdle},
			View:      ViewLive,
			StartTime: startTime,
			Config:    cfg,
		},
		subs: make(map[int]chan struct{}),
	}
}

func (t *Tracker) change(fn func(s *Snapshot)) {
	t.mu.Lock()
	fn(&t.snap)
	t.mu.Unlock()
	t.notify()
}

// UpdateSession records session state. Called from the run loop after every
// input.
func (t *Tracker) UpdateSession(s Session) {
	t.change(func(snap *Snapshot) { snap.Session = s })
}

// SetView records what the screen shows. until is the countdown deadline
// for ViewCountdown and ignored otherwise.
func (t *Tracker) SetView(v View, until time.Time) {
	t.change(func(snap *Snapshot) {
		snap.View = v
		if v == ViewCountdown {
			snap.CountdownUntil = until
		} else {
			snap.CountdownUntil = time.Time{}
		}
	})
}

// SetLastArtifact records a newly persisted artifact.
func (t *Tracker) SetLastArtifact(a logic.Artifact) {
	t.change(func(snap *Snapshot) {
		snap.LastArtifact = &a
		snap.Outputs.Saved++
	})
}

// RecordPersistFailure counts a failed still or animation write.
func (t *Tracker) RecordPersistFailure() {
	t.change(func(snap *Snapshot) { snap.Outputs.PersistFailed++ })
}

// RecordPrint counts a print outcome: submitted, skipped or failed.
func (t *Tracker) RecordPrint(submitted, skipped bool) {
	t.change(func(snap *Snapshot) {
		switch {
		case submitted:
			snap.Outputs.PrintSubmitted++
		case skipped:
			snap.Outputs.PrintSkipped++
		default:
			snap.Outputs.PrintFailed++
		}
	})
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.change(func(snap *Snapshot) { snap.MQTTConnected = connected })
}

// SetConfig replaces the displayed configuration after a reload.
func (t *Tracker) SetConfig(cfg Config) {
	t.change(func(snap *Snapshot) { snap.Config = cfg })
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	if s.LastArtifact != nil {
		a := *s.LastArtifact
		s.LastArtifact = &a
	}
	s.Now = time.Now()
	return s
}

// Subscribe returns a channel that receives a signal after changes. Signals
// coalesce: a slow reader sees one pending signal, not one per change.
// cancel must be called to release the subscription.
func (t *Tracker) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	t.subMu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = ch
	t.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.subMu.Lock()
			delete(t.subs, id)
			t.subMu.Unlock()
		})
	}
}

func (t *Tracker) notify() {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for _, ch := range t.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
