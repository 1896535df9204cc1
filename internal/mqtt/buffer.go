package mqtt

import "github.com/sweeney/photobooth/internal/logger"

// OutboxSize is the number of messages kept while disconnected.
const OutboxSize = 100

// pending is a serialized message waiting for a connection.
type pending struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox keeps the newest messages published while disconnected, dropping
// the oldest once full. Not safe for concurrent use; the publisher holds
// its lock around every call.
type outbox struct {
	slots   []pending
	next    int // write position
	size    int
	dropped int // since the last drain
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{slots: make([]pending, capacity)}
}

func (o *outbox) add(m pending) {
	if o.size == len(o.slots) {
		if o.dropped == 0 {
			logger.WithComponent("mqtt").Warn().
				Int("capacity", len(o.slots)).
				Msg("outbox full, dropping oldest messages")
		}
		o.dropped++
	} else {
		o.size++
	}
	o.slots[o.next] = m
	o.next = (o.next + 1) % len(o.slots)
}

// take returns the queued messages oldest first and empties the outbox,
// along with the number dropped since the last take.
func (o *outbox) take() ([]pending, int) {
	dropped := o.dropped
	o.dropped = 0
	if o.size == 0 {
		return nil, dropped
	}

	out := make([]pending, 0, o.size)
	first := (o.next - o.size + len(o.slots)) % len(o.slots)
	for i := 0; i < o.size; i++ {
		out = append(out, o.slots[(first+i)%len(o.slots)])
	}
	o.size = 0
	o.next = 0
	return out, dropped
}

func (o *outbox) len() int {
	return o.size
}
