package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jpamb-tools/debloatcore/internal/name"
)

// FloatCmpResult is the distinguished AV produced by the
// compare_floating opcode (spec.md §4.6): it is not an ordinary
// numeric element, it *is* the three-way comparison result, carrying
// enough identity (which two names produced it, and the caller's NaN
// bias) that the very next conditional opcode can re-derive branch
// refinements on the original operands rather than on this token.
//
// No arithmetic is defined on it; Add/Sub/Mul/Div/Rem are unreachable
// in a correct transfer function (the opcode set never arithmetically
// combines a compare_floating result) and return the receiver
// unchanged as a defensive no-op rather than panicking, so a
// programmer error surfaces as a stuck fixed point instead of a crash.
type FloatCmpResult struct {
	Left, Right name.Name
	Relations   map[FloatRelation]bool
	NaNBias     FloatRelation
}

var _ AV = FloatCmpResult{}

func (f FloatCmpResult) IsBottom() bool { return len(f.Relations) == 0 }
func (f FloatCmpResult) IsTop() bool    { return len(f.Relations) == 3 }

func (f FloatCmpResult) Leq(other AV) bool {
	o, ok := other.(FloatCmpResult)
	if !ok {
		return false
	}
	for r := range f.Relations {
		if !o.Relations[r] {
			return false
		}
	}
	return true
}

// sameProducer reports whether f and o were derived from the same
// pair of operand names, in which case their relation sets can be
// joined directly; otherwise the join conservatively widens to every
// relation, since the two results no longer describe the same
// comparison.
func (f FloatCmpResult) sameProducer(o FloatCmpResult) bool {
	return f.Left == o.Left && f.Right == o.Right
}

func (f FloatCmpResult) Join(other AV) AV {
	o, ok := other.(FloatCmpResult)
	if !ok || !f.sameProducer(o) {
		return FloatCmpResult{Left: f.Left, Right: f.Right, NaNBias: f.NaNBias,
			Relations: map[FloatRelation]bool{FLt: true, FEq: true, FGt: true}}
	}
	out := map[FloatRelation]bool{}
	for r := range f.Relations {
		out[r] = true
	}
	for r := range o.Relations {
		out[r] = true
	}
	return FloatCmpResult{Left: f.Left, Right: f.Right, Relations: out, NaNBias: f.NaNBias}
}

func (f FloatCmpResult) Meet(other AV) AV {
	o, ok := other.(FloatCmpResult)
	if !ok {
		return FloatCmpResult{Left: f.Left, Right: f.Right, NaNBias: f.NaNBias, Relations: map[FloatRelation]bool{}}
	}
	out := map[FloatRelation]bool{}
	for r := range f.Relations {
		if o.Relations[r] {
			out[r] = true
		}
	}
	return FloatCmpResult{Left: f.Left, Right: f.Right, Relations: out, NaNBias: f.NaNBias}
}

func (f FloatCmpResult) Add(AV) AV { return f }
func (f FloatCmpResult) Sub(AV) AV { return f }
func (f FloatCmpResult) Mul(AV) AV { return f }
func (f FloatCmpResult) Div(AV) AV { return f }
func (f FloatCmpResult) Rem(AV) AV { return f }

func (f FloatCmpResult) MaybeZero() bool     { return false }
func (f FloatCmpResult) IsExactlyZero() bool { return false }
func (f FloatCmpResult) NonZero() AV         { return f }

func (f FloatCmpResult) Compare(AV, Relation) (maybeTrue, maybeFalse bool) {
	return false, false
}

func (f FloatCmpResult) Constrain(AV, Relation) (refinedTrue, refinedFalse AV) {
	return f, f
}

func (f FloatCmpResult) String() string {
	var rels []string
	for r := range f.Relations {
		rels = append(rels, fmt.Sprint(int(r)))
	}
	sort.Strings(rels)
	return fmt.Sprintf("FloatCmpResult(%s,%s,{%s})", f.Left, f.Right, strings.Join(rels, ","))
}

// relationToOp maps a realised 3-way relation back to the binary
// operator it witnesses, so the conditional consuming a
// FloatCmpResult can re-derive constrain(left, right, relationToOp(r))
// per relation it keeps (spec.md §4.6, "if cond target").
func relationToOp(r FloatRelation) Relation {
	switch r {
	case FLt:
		return Lt
	case FGt:
		return Gt
	default:
		return Eq
	}
}

// RelationToOp exports relationToOp for the transfer package.
func RelationToOp(r FloatRelation) Relation { return relationToOp(r) }
