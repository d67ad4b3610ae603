// Package frame implements per-frame abstract state (spec.md §3, §4.3):
// locals, an operand stack, and a program counter, each addressed by
// value name rather than by concrete value.
package frame

import (
	"fmt"

	"github.com/jpamb-tools/debloatcore/internal/name"
	"github.com/jpamb-tools/debloatcore/internal/opcode"
)

// Point is a program point: a (method, offset) pair, the unit at which
// the worklist's state set is indexed (spec.md glossary).
type Point struct {
	Method opcode.ID
	Offset int
}

func (p Point) String() string { return fmt.Sprintf("%s@%d", p.Method, p.Offset) }

// Frame is one call frame: indexed locals plus a LIFO operand stack,
// both holding value names rather than values (spec.md §4.3).
type Frame struct {
	locals map[int]name.Name
	stack  []name.Name
	pc     Point
}

// New returns an empty frame positioned at entry of method.
func New(method opcode.ID) *Frame {
	return &Frame{locals: make(map[int]name.Name), pc: Point{Method: method, Offset: 0}}
}

// PC returns the frame's current program point.
func (f *Frame) PC() Point { return f.pc }

// SetPC repositions the frame's offset within the same method.
func (f *Frame) SetPC(offset int) { f.pc.Offset = offset }

// Local returns the name bound to local index i, or ok=false if i has
// never been stored.
func (f *Frame) Local(i int) (name.Name, bool) {
	n, ok := f.locals[i]
	return n, ok
}

// SetLocal rebinds local index i to n, overwriting any prior binding
// (spec.md §4.6, "Store local i").
func (f *Frame) SetLocal(i int, n name.Name) { f.locals[i] = n }

// Locals returns every bound local index, for join and equality.
func (f *Frame) Locals() map[int]name.Name { return f.locals }

// Push appends n to the top of the operand stack.
func (f *Frame) Push(n name.Name) { f.stack = append(f.stack, n) }

// Pop removes and returns the top of the operand stack. ok is false on
// underflow (an analysis error, spec.md §4.8).
func (f *Frame) Pop() (name.Name, bool) {
	if len(f.stack) == 0 {
		return name.Invalid, false
	}
	top := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return top, true
}

// Peek returns the top of the operand stack without removing it.
func (f *Frame) Peek() (name.Name, bool) {
	if len(f.stack) == 0 {
		return name.Invalid, false
	}
	return f.stack[len(f.stack)-1], true
}

// Depth returns the current operand stack height.
func (f *Frame) Depth() int { return len(f.stack) }

// StackAt returns the name at stack index i (0 = bottom of stack).
func (f *Frame) StackAt(i int) (name.Name, bool) {
	if i < 0 || i >= len(f.stack) {
		return name.Invalid, false
	}
	return f.stack[i], true
}

// SetStackAt overwrites the name at stack index i, used when joining
// two frames' stacks in place (spec.md §4.4 step 3).
func (f *Frame) SetStackAt(i int, n name.Name) { f.stack[i] = n }

// Clone deep-copies locals and the stack; the program counter is
// value-copied since Point is immutable (spec.md §4.3).
func (f *Frame) Clone() *Frame {
	locals := make(map[int]name.Name, len(f.locals))
	for k, v := range f.locals {
		locals[k] = v
	}
	stack := make([]name.Name, len(f.stack))
	copy(stack, f.stack)
	return &Frame{locals: locals, stack: stack, pc: f.pc}
}
