package memory

import "github.com/tavlicon/lanes/job"

// history is a bounded, order-preserving event log for one job.
//
// Non-terminal events live in a ring buffer and the oldest is evicted
// first. The terminal event is kept outside the ring so it can never be
// evicted; while it is present the ring shrinks by one slot, keeping the
// total at or below limit.
type history struct {
	ring     []*job.Event
	start    int
	size     int
	terminal *job.Event
	evicted  int64
}

func newHistory(limit int) *history {
	if limit < 1 {
		limit = 1
	}
	return &history{ring: make([]*job.Event, limit)}
}

// capacity is the number of non-terminal events the ring may hold.
func (h *history) capacity() int {
	if h.terminal != nil {
		return len(h.ring) - 1
	}
	return len(h.ring)
}

func (h *history) append(evt *job.Event) {
	if evt.Kind.Terminal() {
		h.terminal = evt
		for h.size > h.capacity() {
			h.evictOldest()
		}
		return
	}
	if h.capacity() == 0 {
		h.evicted++
		return
	}
	if h.size == h.capacity() {
		h.evictOldest()
	}
	h.ring[(h.start+h.size)%len(h.ring)] = evt
	h.size++
}

func (h *history) evictOldest() {
	h.ring[h.start] = nil
	h.start = (h.start + 1) % len(h.ring)
	h.size--
	h.evicted++
}

// snapshot returns the retained events, oldest first.
func (h *history) snapshot() []*job.Event {
	n := h.size
	if h.terminal != nil {
		n++
	}
	out := make([]*job.Event, 0, n)
	for i := range h.size {
		out = append(out, h.ring[(h.start+i)%len(h.ring)])
	}
	if h.terminal != nil {
		out = append(out, h.terminal)
	}
	return out
}

func (h *history) len() int {
	if h.terminal != nil {
		return h.size + 1
	}
	return h.size
}
