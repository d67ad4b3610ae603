package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpamb-tools/debloatcore/internal/config"
	"github.com/jpamb-tools/debloatcore/internal/domain"
	"github.com/jpamb-tools/debloatcore/internal/frame"
	"github.com/jpamb-tools/debloatcore/internal/opcode"
	"github.com/jpamb-tools/debloatcore/internal/state"
	"github.com/jpamb-tools/debloatcore/internal/terminal"
)

func testID() opcode.ID {
	return opcode.ID{Class: "Example", Name: "m", ParamTypes: "", ReturnType: opcode.Int}
}

func codeOf(rec ...opcode.Record) opcode.Code {
	return opcode.Code{Bytecode: rec}
}

func newState() *state.State {
	return state.New(frame.New(testID()))
}

func TestStepPushMintsFreshNameAndAdvances(t *testing.T) {
	rec := opcode.Record{Offset: 0, Tag: opcode.Push, Value: 7}
	code := codeOf(rec, opcode.Record{Offset: 1, Tag: opcode.Return})
	st := newState()

	outs, err := Step(st, rec, code, domain.SignDomain{}, config.Default())
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, 1, outs[0].Next.PC().Offset)

	n, ok := outs[0].Next.Top().Peek()
	require.True(t, ok)
	av, _ := outs[0].Next.Store.Get(n)
	assert.True(t, av.(domain.Sign).Leq(domain.SignDomain{}.Abstract(7)))
}

func TestStepBinaryDivMaybeZeroEmitsBothOutcomes(t *testing.T) {
	st := newState()
	n1 := st.Store.Fresh(domain.IntervalDomain{}.Abstract(10))
	n2 := st.Store.Fresh(domain.IntervalDomain{}.Abstract(-1, 0, 1)) // straddles zero
	st.Top().Push(n1)
	st.Top().Push(n2)

	rec := opcode.Record{Offset: 0, Tag: opcode.Binary, Op: opcode.Div}
	code := codeOf(rec, opcode.Record{Offset: 1, Tag: opcode.Return})

	outs, err := Step(st, rec, code, domain.IntervalDomain{}, config.Default())
	require.NoError(t, err)
	require.Len(t, outs, 2)

	var sawTerminal, sawNext bool
	for _, o := range outs {
		if o.Terminal == terminal.DivideByZero {
			sawTerminal = true
		}
		if o.Next != nil {
			sawNext = true
		}
	}
	assert.True(t, sawTerminal)
	assert.True(t, sawNext)
}

func TestStepBinaryDivExactlyZeroEmitsOnlyTerminal(t *testing.T) {
	st := newState()
	n1 := st.Store.Fresh(domain.IntervalDomain{}.Abstract(10))
	n2 := st.Store.Fresh(domain.IntervalDomain{}.Abstract(0))
	st.Top().Push(n1)
	st.Top().Push(n2)

	rec := opcode.Record{Offset: 0, Tag: opcode.Binary, Op: opcode.Div}
	code := codeOf(rec, opcode.Record{Offset: 1, Tag: opcode.Return})

	outs, err := Step(st, rec, code, domain.IntervalDomain{}, config.Default())
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, terminal.DivideByZero, outs[0].Terminal)
}

func TestStepIfzBranchesOnBothFeasibleSides(t *testing.T) {
	st := newState()
	n := st.Store.Fresh(domain.SignDomain{}.Abstract(-1, 0, 1))
	st.Top().Push(n)

	rec := opcode.Record{Offset: 0, Tag: opcode.Ifz, Op: opcode.Eq, Target: 5}
	code := codeOf(rec, opcode.Record{Offset: 1, Tag: opcode.Return}, opcode.Record{Offset: 5, Tag: opcode.Return})

	outs, err := Step(st, rec, code, domain.SignDomain{}, config.Default())
	require.NoError(t, err)
	require.Len(t, outs, 2)

	var offsets []int
	for _, o := range outs {
		offsets = append(offsets, o.Next.PC().Offset)
	}
	assert.ElementsMatch(t, []int{1, 5}, offsets)
}

func TestStepIfzSingleFeasibleSideOnlyAdvances(t *testing.T) {
	st := newState()
	n := st.Store.Fresh(domain.SignDomain{}.Abstract(1))
	st.Top().Push(n)

	rec := opcode.Record{Offset: 0, Tag: opcode.Ifz, Op: opcode.Eq, Target: 5}
	code := codeOf(rec, opcode.Record{Offset: 1, Tag: opcode.Return}, opcode.Record{Offset: 5, Tag: opcode.Return})

	outs, err := Step(st, rec, code, domain.SignDomain{}, config.Default())
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, 1, outs[0].Next.PC().Offset)
}

func TestStepNewArrayNegativeSizeIsTerminal(t *testing.T) {
	st := newState()
	n := st.Store.Fresh(domain.IntervalDomain{}.Abstract(-3))
	st.Top().Push(n)

	rec := opcode.Record{Offset: 0, Tag: opcode.NewArray}
	code := codeOf(rec, opcode.Record{Offset: 1, Tag: opcode.Return})

	outs, err := Step(st, rec, code, domain.IntervalDomain{}, config.Default())
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, terminal.NegativeSize, outs[0].Terminal)
}

func TestArrayStoreThenLoadRoundTripsConcreteIndex(t *testing.T) {
	st := newState()
	sizeName := st.Store.Fresh(domain.IntervalDomain{}.Abstract(4))
	arrName := st.Store.Fresh(domain.IntervalDomain{}.Top())
	st.Heap.Alloc(arrName, sizeName)

	valName := st.Store.Fresh(domain.IntervalDomain{}.Abstract(42))
	idxName := st.Store.Fresh(domain.IntervalDomain{}.Abstract(1))
	st.Top().Push(arrName)
	st.Top().Push(idxName)
	st.Top().Push(valName)

	storeRec := opcode.Record{Offset: 0, Tag: opcode.ArrayStore}
	code := codeOf(storeRec, opcode.Record{Offset: 1, Tag: opcode.ArrayLoad}, opcode.Record{Offset: 2, Tag: opcode.Return})

	outs, err := Step(st, storeRec, code, domain.IntervalDomain{}, config.Default())
	require.NoError(t, err)
	require.Len(t, outs, 1)
	next := outs[0].Next

	next.Top().Push(arrName)
	idxName2 := next.Store.Fresh(domain.IntervalDomain{}.Abstract(1))
	next.Top().Push(idxName2)

	loadRec := opcode.Record{Offset: 1, Tag: opcode.ArrayLoad}
	outs2, err := Step(next, loadRec, code, domain.IntervalDomain{}, config.Default())
	require.NoError(t, err)
	require.Len(t, outs2, 1)

	loaded, ok := outs2[0].Next.Top().Peek()
	require.True(t, ok)
	av, err := lookup(outs2[0].Next, loaded, 1)
	require.NoError(t, err)
	lo, hi, ok := av.(domain.Interval).Bounds()
	require.True(t, ok)
	assert.Equal(t, int64(42), lo)
	assert.Equal(t, int64(42), hi)
}

func TestArrayLoadOutOfBoundsIsTerminal(t *testing.T) {
	st := newState()
	sizeName := st.Store.Fresh(domain.IntervalDomain{}.Abstract(2))
	arrName := st.Store.Fresh(domain.IntervalDomain{}.Top())
	st.Heap.Alloc(arrName, sizeName)

	idxName := st.Store.Fresh(domain.IntervalDomain{}.Abstract(5))
	st.Top().Push(arrName)
	st.Top().Push(idxName)

	rec := opcode.Record{Offset: 0, Tag: opcode.ArrayLoad}
	code := codeOf(rec, opcode.Record{Offset: 1, Tag: opcode.Return})

	outs, err := Step(st, rec, code, domain.IntervalDomain{}, config.Default())
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, terminal.ArrayOutOfBounds, outs[0].Terminal)
}

func TestArrayLoadNarrowsSurvivingIndexToInBounds(t *testing.T) {
	st := newState()
	sizeName := st.Store.Fresh(domain.IntervalDomain{}.Abstract(5))
	arrName := st.Store.Fresh(domain.IntervalDomain{}.Top())
	st.Heap.Alloc(arrName, sizeName)

	idxName := st.Store.Fresh(domain.IntervalDomain{}.Abstract(3, 7))
	st.Top().Push(arrName)
	st.Top().Push(idxName)

	rec := opcode.Record{Offset: 0, Tag: opcode.ArrayLoad}
	code := codeOf(rec, opcode.Record{Offset: 1, Tag: opcode.Return})

	outs, err := Step(st, rec, code, domain.IntervalDomain{}, config.Default())
	require.NoError(t, err)
	require.Len(t, outs, 2)

	var sawTerminal bool
	var survivor *state.State
	for _, o := range outs {
		if o.Terminal == terminal.ArrayOutOfBounds {
			sawTerminal = true
		}
		if o.Next != nil {
			survivor = o.Next
		}
	}
	require.True(t, sawTerminal)
	require.NotNil(t, survivor)

	refined, err := lookup(survivor, idxName, rec.Offset)
	require.NoError(t, err)
	lo, hi, ok := refined.(domain.Interval).Bounds()
	require.True(t, ok)
	assert.Equal(t, int64(3), lo)
	assert.Equal(t, int64(4), hi)
}

func TestStepUnsupportedOpcodeIsFatal(t *testing.T) {
	st := newState()
	rec := opcode.Record{Offset: 0, Tag: opcode.Tag("nonsense")}
	code := codeOf(rec)

	_, err := Step(st, rec, code, domain.SignDomain{}, config.Default())
	require.Error(t, err)
}
