package events

import "github.com/ashureev/promptboost/internal/domain"

// ring is a fixed-size circular buffer of events. When full, the oldest
// event is overwritten. Callers hold the hub lock.
type ring struct {
	buf  []domain.LedgerEvent
	head int // write position
	full bool
}

func newRing(size int) *ring {
	if size <= 0 {
		size = historySize
	}
	return &ring{buf: make([]domain.LedgerEvent, size)}
}

func (r *ring) push(ev domain.LedgerEvent) {
	r.buf[r.head] = ev
	r.head = (r.head + 1) % len(r.buf)
	if r.head == 0 {
		r.full = true
	}
}

// snapshot returns the events oldest first.
func (r *ring) snapshot() []domain.LedgerEvent {
	out := make([]domain.LedgerEvent, 0, r.len())
	if !r.full {
		return append(out, r.buf[:r.head]...)
	}
	out = append(out, r.buf[r.head:]...)
	return append(out, r.buf[:r.head]...)
}

func (r *ring) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.head
}
