// File: internal/events/ring.go
package events

import "github.com/robit-man/web-scrape-service/api/schemas"

// ring is a fixed-capacity event buffer that overwrites its oldest entry when
// full. Not safe for concurrent use; the Bus serializes access.
type ring struct {
	buf   []schemas.Event
	start int
	count int
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{buf: make([]schemas.Event, capacity)}
}

func (r *ring) push(ev schemas.Event) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = ev
		r.count++
		return
	}
	// Full: overwrite the oldest slot and advance.
	r.buf[r.start] = ev
	r.start = (r.start + 1) % len(r.buf)
}

// snapshot copies the buffered events, oldest first.
func (r *ring) snapshot() []schemas.Event {
	out := make([]schemas.Event, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}
