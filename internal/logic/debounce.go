package logic

import "time"

// Verdict is the outcome of a raw edge passing through the Debouncer.
type Verdict string

const (
	Accepted Verdict = "ACCEPTED"
	Bounced  Verdict = "BOUNCED"
	Unmapped Verdict = "UNMAPPED"
)

// Debouncer turns raw edges into logical button presses.
// An edge is accepted only if it arrives more than window after the last
// accepted edge on the same line.
type Debouncer struct {
	window       time.Duration
	lines        map[int]Button
	lastAccepted map[int]time.Duration
}

// NewDebouncer creates a debouncer for the given line → button mapping.
func NewDebouncer(window time.Duration, lines map[int]Button) *Debouncer {
	m := make(map[int]Button, len(lines))
	for line, b := range lines {
		m[line] = b
	}
	return &Debouncer{
		window:       window,
		lines:        m,
		lastAccepted: make(map[int]time.Duration),
	}
}

// Accept processes one raw edge. The bounce check runs before the mapping
// lookup, so an unmapped line still records its accepted tick.
func (d *Debouncer) Accept(line int, tick time.Duration) (Button, Verdict) {
	if last, seen := d.lastAccepted[line]; seen && tick-last <= d.window {
		return "", Bounced
	}
	d.lastAccepted[line] = tick

	b, ok := d.lines[line]
	if !ok {
		return "", Unmapped
	}
	return b, Accepted
}

// LastAccepted returns the tick of the most recently accepted edge on line.
func (d *Debouncer) LastAccepted(line int) (time.Duration, bool) {
	t, ok := d.lastAccepted[line]
	return t, ok
}

// Window returns the configured bounce window.
func (d *Debouncer) Window() time.Duration {
	return d.window
}
