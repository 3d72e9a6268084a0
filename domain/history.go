package domain

import "sync"

// DefaultHistoryCap bounds how many turns a session keeps as upstream
// context. Older turns are evicted first.
const DefaultHistoryCap = 12

// History is an ordered, size-bounded sequence of prior turns. Appending
// beyond the cap evicts from the head, so the retained turns are always the
// most recent ones in conversation order.
type History struct {
	mu    sync.Mutex
	cap   int
	turns []Turn
}

func NewHistory(cap int) *History {
	if cap <= 0 {
		cap = DefaultHistoryCap
	}
	return &History{cap: cap}
}

// Append inserts a well-formed turn at the tail, evicting from the head
// while the buffer exceeds its cap. Malformed turns are dropped.
func (h *History) Append(turn Turn) {
	if !turn.WellFormed() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns = append(h.turns, turn)
	for len(h.turns) > h.cap {
		h.turns = h.turns[1:]
	}
}

// Snapshot returns a copy of the buffered turns in conversation order.
// Callers hand the copy to an in-flight request; later appends cannot race
// it.
func (h *History) Snapshot() []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}
