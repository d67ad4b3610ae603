// Package store implements the constraint store (spec.md §3, §4.2): a
// mapping from value name to abstract element, plus a monotonically
// increasing counter used to mint fresh names. The backing map is a
// SwissTable (github.com/dolthub/swiss), the same choice
// mna-nenuphar's machine package makes for its own hot, frequently
// resized value map (lang/machine/map.go) — constraint stores are
// cloned on every branch and grow by one entry per opcode, which is
// exactly the access pattern SwissTable is tuned for.
package store

import (
	"github.com/dolthub/swiss"

	"github.com/jpamb-tools/debloatcore/internal/domain"
	"github.com/jpamb-tools/debloatcore/internal/name"
)

// Store is a mutable, single-owner constraint store. It is never
// shared between two abstract states: Clone deep-copies it before any
// branch or join (spec.md §3, "Ownership").
type Store struct {
	m       *swiss.Map[name.Name, domain.AV]
	counter uint64
}

// New returns an empty store.
func New() *Store {
	return &Store{m: swiss.NewMap[name.Name, domain.AV](16), counter: 0}
}

// Fresh mints a name unique to this store and binds it to av.
func (s *Store) Fresh(av domain.AV) name.Name {
	s.counter++
	n := name.Name(s.counter)
	s.m.Put(n, av)
	return n
}

// Get returns the element bound to n. Looking up a name absent from
// the store is a programmer error (spec.md §3's invariant: every name
// referenced by a frame, stack or heap appears in the store) and
// returns domain's zero value with ok=false rather than panicking, so
// callers can turn it into an analysiserr.
func (s *Store) Get(n name.Name) (domain.AV, bool) {
	return s.m.Get(n)
}

// Set rebinds n to av. n must already exist in the store (Fresh
// establishes new bindings; Set only ever narrows or replaces one).
func (s *Store) Set(n name.Name, av domain.AV) {
	s.m.Put(n, av)
}

// Contains reports whether n is bound in this store.
func (s *Store) Contains(n name.Name) bool {
	_, ok := s.m.Get(n)
	return ok
}

// Clone deep-copies the store. The counter is copied as-is: two
// independent clones that each mint fresh names afterward will mint
// overlapping Name values, but since each clone only ever reads its
// own bindings by name, aliasing across clones is harmless (spec.md
// §4.2, "Clone").
func (s *Store) Clone() *Store {
	out := swiss.NewMap[name.Name, domain.AV](uint32(s.m.Count()))
	s.m.Iter(func(k name.Name, v domain.AV) bool {
		out.Put(k, v)
		return false
	})
	return &Store{m: out, counter: s.counter}
}

// Len reports the number of bound names.
func (s *Store) Len() int { return s.m.Count() }

// Equal reports whether s and o bind exactly the same set of names to
// pairwise-Leq-in-both-directions elements (spec.md §4.2: "two stores
// are equal iff they have the same key set and get(k) is equal for
// every k"). AV equality is approximated by mutual Leq, since AV has no
// dedicated Equal method and every realisation in this module is a
// pure lattice element where Leq both ways implies equality.
func (s *Store) Equal(o *Store) bool {
	if s.m.Count() != o.m.Count() {
		return false
	}
	equal := true
	s.m.Iter(func(k name.Name, v domain.AV) bool {
		ov, ok := o.m.Get(k)
		if !ok || !v.Leq(ov) || !ov.Leq(v) {
			equal = false
			return true
		}
		return false
	})
	return equal
}

// Widen applies dom.Widen to every name bound in both s and prev,
// replacing s's binding with the widened result in place. Names bound
// only in s (minted since prev was captured) are left untouched — spec.md
// §9's widening operator only accelerates convergence of values that
// have been updated repeatedly at the same program point.
func (s *Store) Widen(prev *Store, dom domain.Domain) {
	s.m.Iter(func(k name.Name, v domain.AV) bool {
		if pv, ok := prev.m.Get(k); ok {
			s.m.Put(k, dom.Widen(pv, v))
		}
		return false
	})
}

// Join merges every binding in o into s that is absent, replacing
// common bindings with their join. It returns true if s changed.
// Bindings present only in o are adopted by value (spec.md §4.4's
// three-case merge, applied here at the store level for the common
// case where both states reference the same name).
func (s *Store) Join(o *Store) (grew bool) {
	o.m.Iter(func(k name.Name, ov domain.AV) bool {
		sv, ok := s.m.Get(k)
		if !ok {
			s.m.Put(k, ov)
			grew = true
			return false
		}
		j := sv.Join(ov)
		if !j.Leq(sv) || !sv.Leq(j) {
			s.m.Put(k, j)
			grew = true
		}
		return false
	})
	return grew
}
