// Package state implements the abstract state (spec.md §3, §4.4): the
// triple (heap, frame stack, constraint store) that the worklist joins
// pointwise at each program point.
package state

import (
	"github.com/jpamb-tools/debloatcore/internal/frame"
	"github.com/jpamb-tools/debloatcore/internal/heap"
	"github.com/jpamb-tools/debloatcore/internal/store"
)

// State is one abstract state: single owner, cloned before every
// transfer-function call and before joining into the worklist's state
// set (spec.md §3, "Lifecycle").
type State struct {
	Heap   *heap.Heap
	Frames []*frame.Frame
	Store  *store.Store
}

// New returns a state with a single frame at method's entry and an
// empty heap and store.
func New(entry *frame.Frame) *State {
	return &State{Heap: heap.New(), Frames: []*frame.Frame{entry}, Store: store.New()}
}

// PC returns the top frame's program point (spec.md §3: "The program
// point is the program counter of the top frame").
func (s *State) PC() frame.Point {
	return s.Frames[len(s.Frames)-1].PC()
}

// Top returns the top (currently executing) frame.
func (s *State) Top() *frame.Frame {
	return s.Frames[len(s.Frames)-1]
}

// PushFrame pushes a new call frame (only reachable if a future
// extension models method invocation opcodes; spec.md's own schema
// leaves call opcodes unmodelled, see spec.md §9's open question).
func (s *State) PushFrame(f *frame.Frame) {
	s.Frames = append(s.Frames, f)
}

// PopFrame removes and returns the top frame, reporting whether any
// frame remains (spec.md §4.6, "Return").
func (s *State) PopFrame() (popped *frame.Frame, empty bool) {
	popped = s.Frames[len(s.Frames)-1]
	s.Frames = s.Frames[:len(s.Frames)-1]
	return popped, len(s.Frames) == 0
}

// Clone deep-copies the heap, every frame, and the constraint store
// (spec.md §4.4, "clone()").
func (s *State) Clone() *State {
	frames := make([]*frame.Frame, len(s.Frames))
	for i, f := range s.Frames {
		frames[i] = f.Clone()
	}
	return &State{Heap: s.Heap.Clone(), Frames: frames, Store: s.Store.Clone()}
}

// compatible reports whether s and o can be joined: same program
// point, same frame count, matching per-frame pc and stack depth
// (spec.md §4.4, "Join... when s.pc()=t.pc() and |s.frames|=|t.frames|
// and, for every corresponding frame pair, pc matches and stack depth
// matches").
func (s *State) compatible(o *State) bool {
	if len(s.Frames) != len(o.Frames) {
		return false
	}
	for i := range s.Frames {
		if s.Frames[i].PC() != o.Frames[i].PC() {
			return false
		}
		if s.Frames[i].Depth() != o.Frames[i].Depth() {
			return false
		}
	}
	return true
}

// ErrStackHeightMismatch-shaped failure is reported by returning false
// from Join so the driver can turn it into analysiserr.ErrStackHeightMismatch
// (spec.md §4.4, "Failure model": a mismatch is fatal, not a program
// property).

// Join merges o into s in place, mutating s (spec.md §4.4's "s ⊔= t").
// ok is false if s and o are not join-compatible, which the caller
// must treat as a fatal analysis error, never as a soundness decision.
// grew reports whether s changed as a result.
func (s *State) Join(o *State) (grew bool, ok bool) {
	if !s.compatible(o) {
		return false, false
	}
	storeGrew := s.Store.Join(o.Store)
	heapGrew := s.Heap.Join(o.Heap, s.Store)
	framesGrew := false
	for i := range s.Frames {
		if joinFrames(s.Frames[i], o.Frames[i], s.Store) {
			framesGrew = true
		}
	}
	return storeGrew || heapGrew || framesGrew, true
}

// joinFrames applies the locals/stack three-case merge from spec.md
// §4.4 step 2-3 to one pair of already-depth-matched frames.
func joinFrames(s, o *frame.Frame, st *store.Store) (grew bool) {
	for idx, foreignName := range o.Locals() {
		mine, ok := s.Local(idx)
		switch {
		case !ok:
			s.SetLocal(idx, foreignName)
			grew = true
		case mine == foreignName:
		default:
			mineAV, _ := st.Get(mine)
			foreignAV, _ := st.Get(foreignName)
			joined := st.Fresh(mineAV.Join(foreignAV))
			s.SetLocal(idx, joined)
			grew = true
		}
	}
	for i := 0; i < s.Depth(); i++ {
		mine, _ := s.StackAt(i)
		foreignName, _ := o.StackAt(i)
		if mine == foreignName {
			continue
		}
		mineAV, _ := st.Get(mine)
		foreignAV, _ := st.Get(foreignName)
		joined := st.Fresh(mineAV.Join(foreignAV))
		s.SetStackAt(i, joined)
		grew = true
	}
	return grew
}

// Equal reports whether s and o are identical per spec.md §4.4: names
// match at every address/local/stack slot, and the constraint stores
// are equal. Name identity is significant here — see spec.md's
// rationale that after a fixed point, refinement-by-name is part of
// the state's meaning, not incidental.
func (s *State) Equal(o *State) bool {
	if !s.compatible(o) {
		return false
	}
	if !s.Heap.Equal(o.Heap) {
		return false
	}
	for i := range s.Frames {
		if !framesEqual(s.Frames[i], o.Frames[i]) {
			return false
		}
	}
	return s.Store.Equal(o.Store)
}

func framesEqual(a, b *frame.Frame) bool {
	al, bl := a.Locals(), b.Locals()
	if len(al) != len(bl) {
		return false
	}
	for idx, n := range al {
		if bn, ok := bl[idx]; !ok || bn != n {
			return false
		}
	}
	for i := 0; i < a.Depth(); i++ {
		an, _ := a.StackAt(i)
		bn, _ := b.StackAt(i)
		if an != bn {
			return false
		}
	}
	return true
}
