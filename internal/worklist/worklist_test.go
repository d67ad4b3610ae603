package worklist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpamb-tools/debloatcore/internal/domain"
	"github.com/jpamb-tools/debloatcore/internal/frame"
	"github.com/jpamb-tools/debloatcore/internal/opcode"
	"github.com/jpamb-tools/debloatcore/internal/state"
)

func testID() opcode.ID {
	return opcode.ID{Class: "Example", Name: "m", ParamTypes: "int", ReturnType: opcode.Int}
}

func TestJoinFirstInstallEnqueues(t *testing.T) {
	s := New()
	st := state.New(frame.New(testID()))

	grew, ok := s.Join(st)
	require.True(t, ok)
	assert.True(t, grew)
	assert.False(t, s.Empty())
}

func TestPopDrainsFIFO(t *testing.T) {
	s := New()
	a := state.New(frame.New(testID()))
	a.Top().SetPC(0)
	b := state.New(frame.New(testID()))
	b.Top().SetPC(1)

	s.Join(a)
	s.Join(b)

	p1, _, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, 0, p1.Offset)

	p2, _, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, p2.Offset)

	_, _, ok = s.Pop()
	assert.False(t, ok)
}

func TestJoinAtSamePointMergesAndReenqueues(t *testing.T) {
	s := New()
	a := state.New(frame.New(testID()))
	a.Top().SetLocal(0, a.Store.Fresh(domain.SignDomain{}.Abstract(1)))
	s.Join(a)
	_, _, _ = s.Pop() // drain so the second Join's re-enqueue is observable

	b := a.Clone()
	b.Top().SetLocal(0, b.Store.Fresh(domain.SignDomain{}.Abstract(-1)))

	grew, ok := s.Join(b)
	require.True(t, ok)
	assert.True(t, grew)
	assert.False(t, s.Empty())
}

func TestJoinOfIdenticalStateDoesNotReenqueue(t *testing.T) {
	s := New()
	a := state.New(frame.New(testID()))
	s.Join(a)
	s.Pop()

	grew, ok := s.Join(a.Clone())
	require.True(t, ok)
	assert.False(t, grew)
	assert.True(t, s.Empty())
}

func TestWidenInstallsAndReenqueues(t *testing.T) {
	s := New()
	a := state.New(frame.New(testID()))
	s.Join(a)
	p, _, _ := s.Pop()

	widened := a.Clone()
	s.Widen(p, widened)

	got, ok := s.At(p)
	require.True(t, ok)
	assert.Same(t, widened, got)
	assert.False(t, s.Empty())
}
