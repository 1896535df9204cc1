package mqtt

import (
	"testing"
)

func TestOutboxEmptyTake(t *testing.T) {
	o := newOutbox(10)
	got, dropped := o.take()
	if got != nil || dropped != 0 {
		t.Errorf("expected nothing from empty take, got %d items, %d dropped", len(got), dropped)
	}
}

func TestOutboxAddAndTake(t *testing.T) {
	o := newOutbox(10)
	for i := 0; i < 5; i++ {
		o.add(pending{topic: "t", payload: []byte{byte(i)}})
	}

	got, _ := o.take()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	for i := 0; i < 5; i++ {
		if got[i].payload[0] != byte(i) {
			t.Errorf("item %d: expected payload %d, got %d", i, i, got[i].payload[0])
		}
	}

	if again, _ := o.take(); again != nil {
		t.Errorf("expected nil from second take, got %d items", len(again))
	}
}

func TestOutboxOverflowKeepsNewest(t *testing.T) {
	size := 5
	o := newOutbox(size)

	for i := 0; i < size+3; i++ {
		o.add(pending{topic: "t", payload: []byte{byte(i)}})
	}

	got, dropped := o.take()
	if len(got) != size {
		t.Fatalf("expected %d items, got %d", size, len(got))
	}
	if dropped != 3 {
		t.Errorf("dropped: got %d, want 3", dropped)
	}
	for i := 0; i < size; i++ {
		want := byte(i + 3)
		if got[i].payload[0] != want {
			t.Errorf("item %d: expected payload %d, got %d", i, want, got[i].payload[0])
		}
	}

	if _, dropped := o.take(); dropped != 0 {
		t.Errorf("drop count should reset after take, got %d", dropped)
	}
}

func TestOutboxRepeatedCycles(t *testing.T) {
	o := newOutbox(5)

	for i := 0; i < 3; i++ {
		o.add(pending{topic: "t", payload: []byte{byte(i)}})
	}
	if got, _ := o.take(); len(got) != 3 {
		t.Fatalf("cycle 1: expected 3 items, got %d", len(got))
	}

	for i := 10; i < 14; i++ {
		o.add(pending{topic: "t", payload: []byte{byte(i)}})
	}
	got, _ := o.take()
	if len(got) != 4 {
		t.Fatalf("cycle 2: expected 4 items, got %d", len(got))
	}
	for i, m := range got {
		if want := byte(10 + i); m.payload[0] != want {
			t.Errorf("cycle 2 item %d: expected %d, got %d", i, want, m.payload[0])
		}
	}
}

func TestOutboxLen(t *testing.T) {
	o := newOutbox(10)
	if o.len() != 0 {
		t.Errorf("expected len 0, got %d", o.len())
	}

	o.add(pending{topic: "t"})
	o.add(pending{topic: "t"})
	if o.len() != 2 {
		t.Errorf("expected len 2, got %d", o.len())
	}

	o.take()
	if o.len() != 0 {
		t.Errorf("expected len 0 after take, got %d", o.len())
	}
}

func TestOutboxMinimumCapacity(t *testing.T) {
	o := newOutbox(0)
	o.add(pending{topic: "a"})
	o.add(pending{topic: "b"})

	got, dropped := o.take()
	if len(got) != 1 || got[0].topic != "b" || dropped != 1 {
		t.Errorf("expected only newest message, got %+v (dropped %d)", got, dropped)
	}
}

func TestOutboxPreservesFields(t *testing.T) {
	o := newOutbox(10)
	o.add(pending{
		topic:    "photobooth/system",
		payload:  []byte(`{"test":true}`),
		qos:      1,
		retained: true,
	})

	got, _ := o.take()
	if len(got) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got))
	}
	m := got[0]
	if m.topic != "photobooth/system" || string(m.payload) != `{"test":true}` || m.qos != 1 || !m.retained {
		t.Errorf("fields not preserved: %+v", m)
	}
}
