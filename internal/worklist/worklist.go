// Package worklist implements the state set (spec.md §4.5): the
// pointwise join of every abstract state ever observed at each program
// point, plus the set of program points whose state has grown and
// needs reprocessing.
package worklist

import (
	"github.com/jpamb-tools/debloatcore/internal/frame"
	"github.com/jpamb-tools/debloatcore/internal/state"
)

// Set is a worklist-driven state set. It owns every state it holds
// (spec.md §3, "Ownership"). Drain order is FIFO — spec.md §5 only
// requires fairness, and FIFO is the simplest policy that guarantees
// it, matching the teacher's own plain-slice-as-queue idiom for its
// call-frame stack (internal/vm/vm.go's frames []CallFrame).
type Set struct {
	states map[frame.Point]*state.State
	queue  []frame.Point
	queued map[frame.Point]bool
}

// New returns an empty state set.
func New() *Set {
	return &Set{states: make(map[frame.Point]*state.State), queued: make(map[frame.Point]bool)}
}

// enqueue adds p to the needs-work queue if it is not already present.
func (s *Set) enqueue(p frame.Point) {
	if s.queued[p] {
		return
	}
	s.queued[p] = true
	s.queue = append(s.queue, p)
}

// Join merges st into the state set at st.PC() (spec.md §4.5,
// "join(state)"). ok is false only on a stack-height mismatch, which
// is a fatal analysis error (spec.md §4.4's failure model), never
// swallowed. grew reports whether the installed state strictly grew
// (used by the driver to count updates toward widening, spec.md §9).
func (s *Set) Join(st *state.State) (grew, ok bool) {
	p := st.PC()
	cur, present := s.states[p]
	if !present {
		s.states[p] = st.Clone()
		s.enqueue(p)
		return true, true
	}
	clone := cur.Clone()
	grew, joinOK := clone.Join(st)
	if !joinOK {
		return false, false
	}
	if grew {
		s.states[p] = clone
		s.enqueue(p)
	}
	return grew, true
}

// Widen replaces the state at p with widened — used by the driver
// after config.WideningAfter growing joins at the same point, whatever
// the domain (spec.md §9; the sign domain's Widen is a plain join). It is the driver's
// responsibility to compute the widened per-name elements; Widen only
// installs the result and re-enqueues p.
func (s *Set) Widen(p frame.Point, widened *state.State) {
	s.states[p] = widened
	s.enqueue(p)
}

// At returns the state currently installed at p.
func (s *Set) At(p frame.Point) (*state.State, bool) {
	st, ok := s.states[p]
	return st, ok
}

// Empty reports whether the needs-work queue is drained.
func (s *Set) Empty() bool { return len(s.queue) == 0 }

// Pop removes and returns one program point and its current state
// (spec.md §4.5, "drain()"). ok is false once the set is empty.
func (s *Set) Pop() (p frame.Point, st *state.State, ok bool) {
	if len(s.queue) == 0 {
		return frame.Point{}, nil, false
	}
	p = s.queue[0]
	s.queue = s.queue[1:]
	s.queued[p] = false
	return p, s.states[p], true
}

// Points returns every program point ever joined, in no particular
// order (map iteration order).
func (s *Set) Points() []frame.Point {
	out := make([]frame.Point, 0, len(s.states))
	for p := range s.states {
		out = append(out, p)
	}
	return out
}
