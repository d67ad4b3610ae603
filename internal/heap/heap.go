// Package heap implements the abstract heap (spec.md §3): a monotone
// mapping from heap address to value name, plus the array metadata
// (length name, element slots) needed by the array opcodes in
// spec.md §4.6. Addresses, once issued, never change meaning.
package heap

import (
	"github.com/jpamb-tools/debloatcore/internal/name"
	"github.com/jpamb-tools/debloatcore/internal/store"
)

// Addr is a heap address: a natural number, monotonically issued.
type Addr uint64

// ArrayMeta records the metadata allocated alongside an array name:
// its backing address and the name bound (in the constraint store) to
// its length.
type ArrayMeta struct {
	Addr     Addr
	SizeName name.Name
}

// Heap is a single-owner abstract heap. Like Store and Frame, it is
// cloned before every branch and join (spec.md §3, "Lifecycle").
type Heap struct {
	next     uint64
	objects  map[Addr]name.Name
	arrays   map[name.Name]ArrayMeta
	elements map[name.Name]name.Name // derived element name -> current value name
}

// New returns an empty heap.
func New() *Heap {
	return &Heap{
		objects:  make(map[Addr]name.Name),
		arrays:   make(map[name.Name]ArrayMeta),
		elements: make(map[name.Name]name.Name),
	}
}

// Alloc issues a fresh address and records arrayName's metadata there
// (spec.md §4.6, "Array allocation").
func (h *Heap) Alloc(arrayName name.Name, sizeName name.Name) Addr {
	h.next++
	addr := Addr(h.next)
	h.objects[addr] = arrayName
	h.arrays[arrayName] = ArrayMeta{Addr: addr, SizeName: sizeName}
	return addr
}

// Meta returns the metadata recorded for arrayName.
func (h *Heap) Meta(arrayName name.Name) (ArrayMeta, bool) {
	m, ok := h.arrays[arrayName]
	return m, ok
}

// NameAt returns the array name recorded at addr.
func (h *Heap) NameAt(addr Addr) (name.Name, bool) {
	n, ok := h.objects[addr]
	return n, ok
}

// Element returns the value name currently stored at arrayName[idx],
// or ok=false if that slot has never been written.
func (h *Heap) Element(arrayName name.Name, idx int64) (name.Name, bool) {
	n, ok := h.elements[arrayName.Array(idx)]
	return n, ok
}

// SetElement records that arrayName[idx] now holds valueName (spec.md
// §4.6, "Array store").
func (h *Heap) SetElement(arrayName name.Name, idx int64, valueName name.Name) {
	h.elements[arrayName.Array(idx)] = valueName
}

// Clone deep-copies every map (spec.md §4.4, "clone() deep-copies
// heap...").
func (h *Heap) Clone() *Heap {
	out := New()
	out.next = h.next
	for k, v := range h.objects {
		out.objects[k] = v
	}
	for k, v := range h.arrays {
		out.arrays[k] = v
	}
	for k, v := range h.elements {
		out.elements[k] = v
	}
	return out
}

// Addrs returns every address currently allocated, for join/equality.
func (h *Heap) Addrs() []Addr {
	out := make([]Addr, 0, len(h.objects))
	for a := range h.objects {
		out = append(out, a)
	}
	return out
}

// Join merges o into h following spec.md §4.4 step 1: for each address
// in o, adopt the foreign name if h has none there, join constraints if
// the names coincide, or mint a fresh name bound to the join of both
// prior constraints if the names differ. s is the (already-joined)
// constraint store backing both heaps, used to read/write constraints
// and mint fresh names. Element slots receive the identical
// three-case treatment. Reports whether h changed.
func (h *Heap) Join(o *Heap, s *store.Store) (grew bool) {
	for addr, foreignName := range o.objects {
		mine, ok := h.objects[addr]
		switch {
		case !ok:
			h.objects[addr] = foreignName
			if meta, hasMeta := o.arrays[foreignName]; hasMeta {
				h.arrays[foreignName] = meta
			}
			grew = true
		case mine == foreignName:
			// Same name: nothing to merge at the object-identity
			// level; the store-level Join already merged the bound
			// constraint (the array's size, if any).
		default:
			mineAV, _ := s.Get(mine)
			foreignAV, _ := s.Get(foreignName)
			var joined name.Name
			if mineAV != nil && foreignAV != nil {
				joined = s.Fresh(mineAV.Join(foreignAV))
			} else {
				joined = s.Fresh(mineAV)
			}
			h.objects[addr] = joined
			grew = true
		}
	}
	for key, foreignVal := range o.elements {
		mineVal, ok := h.elements[key]
		switch {
		case !ok:
			h.elements[key] = foreignVal
			grew = true
		case mineVal == foreignVal:
		default:
			mineAV, _ := s.Get(mineVal)
			foreignAV, _ := s.Get(foreignVal)
			if mineAV != nil && foreignAV != nil {
				h.elements[key] = s.Fresh(mineAV.Join(foreignAV))
			} else {
				h.elements[key] = s.Fresh(mineAV)
			}
			grew = true
		}
	}
	return grew
}

// Equal reports whether h and o record identical addresses and element
// bindings by name (spec.md §4.4, "Equality"). Array metadata is not
// compared.
func (h *Heap) Equal(o *Heap) bool {
	if len(h.objects) != len(o.objects) || len(h.elements) != len(o.elements) {
		return false
	}
	for addr, n := range h.objects {
		if on, ok := o.objects[addr]; !ok || on != n {
			return false
		}
	}
	for key, v := range h.elements {
		if ov, ok := o.elements[key]; !ok || ov != v {
			return false
		}
	}
	return true
}
