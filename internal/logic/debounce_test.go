package logic

import (
	"testing"
	"time"
)

func testLines() map[int]Button {
	return map[int]Button{
		21: ButtonInfo,
		20: ButtonPhoto,
		19: ButtonGIF,
		18: ButtonPrint,
	}
}

func TestDebouncerFirstEdgeAccepted(t *testing.T) {
	d := NewDebouncer(time.Second, testLines())

	b, v := d.Accept(20, 5*time.Millisecond)
	if v != Accepted {
		t.Fatalf("expected ACCEPTED, got %s", v)
	}
	if b != ButtonPhoto {
		t.Errorf("expected photo, got %q", b)
	}

	last, ok := d.LastAccepted(20)
	if !ok || last != 5*time.Millisecond {
		t.Errorf("expected last accepted 5ms, got %v (ok=%v)", last, ok)
	}
}

func TestDebouncerDropsBounce(t *testing.T) {
	d := NewDebouncer(100*time.Millisecond, testLines())

	if _, v := d.Accept(20, time.Second); v != Accepted {
		t.Fatalf("expected first edge accepted, got %s", v)
	}
	if _, v := d.Accept(20, time.Second+50*time.Millisecond); v != Bounced {
		t.Errorf("expected edge within window to bounce, got %s", v)
	}
	// Exactly the window apart is still a bounce: acceptance needs strictly more.
	if _, v := d.Accept(20, time.Second+100*time.Millisecond); v != Bounced {
		t.Errorf("expected edge at window boundary to bounce, got %s", v)
	}
	if _, v := d.Accept(20, time.Second+101*time.Millisecond); v != Accepted {
		t.Errorf("expected edge past window accepted, got %s", v)
	}
}

func TestDebouncerLastAcceptedIgnoresBounces(t *testing.T) {
	d := NewDebouncer(100*time.Millisecond, testLines())
	start := 10 * time.Second

	// A chatter of edges every 40ms. Only edges more than 100ms after the
	// last *accepted* one get through, so the chatter cannot keep extending
	// the window.
	var accepted []time.Duration
	for i := 0; i < 10; i++ {
		tick := start + time.Duration(i)*40*time.Millisecond
		if _, v := d.Accept(20, tick); v == Accepted {
			accepted = append(accepted, tick)
		}
		last, _ := d.LastAccepted(20)
		if last != accepted[len(accepted)-1] {
			t.Fatalf("edge %d: last accepted %v, want %v", i, last, accepted[len(accepted)-1])
		}
	}

	want := []time.Duration{
		start,
		start + 120*time.Millisecond,
		start + 240*time.Millisecond,
		start + 360*time.Millisecond,
	}
	if len(accepted) != len(want) {
		t.Fatalf("expected %d accepted edges, got %d: %v", len(want), len(accepted), accepted)
	}
	for i := range want {
		if accepted[i] != want[i] {
			t.Errorf("accepted[%d]: got %v, want %v", i, accepted[i], want[i])
		}
	}
}

func TestDebouncerLinesAreIndependent(t *testing.T) {
	d := NewDebouncer(time.Second, testLines())

	if _, v := d.Accept(20, 2*time.Second); v != Accepted {
		t.Fatalf("photo: expected ACCEPTED, got %s", v)
	}
	b, v := d.Accept(19, 2*time.Second+10*time.Millisecond)
	if v != Accepted {
		t.Fatalf("gif: expected ACCEPTED on a different line, got %s", v)
	}
	if b != ButtonGIF {
		t.Errorf("expected gif, got %q", b)
	}
}

func TestDebouncerUnmappedLine(t *testing.T) {
	d := NewDebouncer(time.Second, testLines())

	b, v := d.Accept(4, 3*time.Second)
	if v != Unmapped {
		t.Fatalf("expected UNMAPPED, got %s", v)
	}
	if b != "" {
		t.Errorf("expected no button, got %q", b)
	}

	// The edge still counted for bounce purposes.
	if _, v := d.Accept(4, 3*time.Second+time.Millisecond); v != Bounced {
		t.Errorf("expected follow-up edge to bounce, got %s", v)
	}
}

func TestDebouncerCopiesMapping(t *testing.T) {
	lines := testLines()
	d := NewDebouncer(time.Second, lines)
	delete(lines, 20)

	if _, v := d.Accept(20, time.Second); v != Accepted {
		t.Errorf("expected mapping to be copied at construction, got %s", v)
	}
	if d.Window() != time.Second {
		t.Errorf("expected window 1s, got %v", d.Window())
	}
}
