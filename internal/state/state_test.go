package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpamb-tools/debloatcore/internal/domain"
	"github.com/jpamb-tools/debloatcore/internal/frame"
	"github.com/jpamb-tools/debloatcore/internal/opcode"
)

func testID() opcode.ID {
	return opcode.ID{Class: "Example", Name: "m", ParamTypes: "int", ReturnType: opcode.Int}
}

func TestNewStatePositionsAtEntry(t *testing.T) {
	st := New(frame.New(testID()))
	assert.Equal(t, 0, st.PC().Offset)
}

func TestCloneIsIndependent(t *testing.T) {
	st := New(frame.New(testID()))
	n := st.Store.Fresh(domain.SignDomain{}.Abstract(1))
	st.Top().SetLocal(0, n)

	clone := st.Clone()
	clone.Top().SetLocal(0, clone.Store.Fresh(domain.SignDomain{}.Abstract(2)))

	got, _ := st.Top().Local(0)
	assert.Equal(t, n, got)
}

func TestJoinRejectsMismatchedStackDepth(t *testing.T) {
	a := New(frame.New(testID()))
	a.Top().Push(a.Store.Fresh(domain.SignDomain{}.Abstract(1)))

	b := New(frame.New(testID()))

	_, ok := a.Join(b)
	assert.False(t, ok, "joining states with different stack depths at the same pc is a fatal mismatch")
}

func TestJoinMergesDivergentLocals(t *testing.T) {
	a := New(frame.New(testID()))
	n1 := a.Store.Fresh(domain.SignDomain{}.Abstract(1))
	a.Top().SetLocal(0, n1)

	b := a.Clone()
	n2 := b.Store.Fresh(domain.SignDomain{}.Abstract(-1))
	b.Top().SetLocal(0, n2)

	grew, ok := a.Join(b)
	require.True(t, ok)
	assert.True(t, grew)

	got, _ := a.Top().Local(0)
	av, _ := a.Store.Get(got)
	assert.Equal(t, domain.SignDomain{}.Abstract(-1, 1), av)
}

func TestJoinOfEqualStatesDoesNotGrow(t *testing.T) {
	a := New(frame.New(testID()))
	a.Top().SetLocal(0, a.Store.Fresh(domain.SignDomain{}.Abstract(1)))
	b := a.Clone()

	grew, ok := a.Join(b)
	require.True(t, ok)
	assert.False(t, grew)
}

func TestEqualAfterClone(t *testing.T) {
	a := New(frame.New(testID()))
	a.Top().SetLocal(0, a.Store.Fresh(domain.SignDomain{}.Abstract(1)))
	b := a.Clone()
	assert.True(t, a.Equal(b))
}

func TestPopFrameReportsEmptiness(t *testing.T) {
	st := New(frame.New(testID()))
	_, empty := st.PopFrame()
	assert.True(t, empty)
}
