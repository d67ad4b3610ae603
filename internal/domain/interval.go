package domain

import (
	"fmt"
	"math"
)

var negInf = math.Inf(-1)

// Interval is the integer-interval AV: a pair [lo, hi] over the
// extended reals, with lo > hi as the bottom sentinel (spec.md §3).
// Bounds use float64 so ±Inf (the unbounded top element, and the
// result of widening) can be represented directly, mirroring
// original_source/debloater/static/abstractions/interval_abstraction.py's
// use of Python's math.inf.
type Interval struct {
	lo, hi float64
}

var _ AV = Interval{}

func posInf() float64 { return -negInf }

func emptyInterval() Interval { return Interval{lo: 1, hi: 0} }

func (iv Interval) IsBottom() bool { return iv.lo > iv.hi }
func (iv Interval) IsTop() bool    { return iv.lo == negInf && iv.hi == posInf() }

func (iv Interval) Leq(other AV) bool {
	o := other.(Interval)
	if iv.IsBottom() {
		return true
	}
	if o.IsBottom() {
		return false
	}
	return o.lo <= iv.lo && iv.hi <= o.hi
}

func (iv Interval) Join(other AV) AV {
	o := other.(Interval)
	if iv.IsBottom() {
		return o
	}
	if o.IsBottom() {
		return iv
	}
	return Interval{lo: min(iv.lo, o.lo), hi: max(iv.hi, o.hi)}
}

func (iv Interval) Meet(other AV) AV {
	o := other.(Interval)
	if iv.IsBottom() || o.IsBottom() {
		return emptyInterval()
	}
	lo, hi := max(iv.lo, o.lo), min(iv.hi, o.hi)
	if lo > hi {
		return emptyInterval()
	}
	return Interval{lo: lo, hi: hi}
}

func (iv Interval) String() string {
	if iv.IsBottom() {
		return "bot"
	}
	return fmt.Sprintf("[%s, %s]", fmtBound(iv.lo), fmtBound(iv.hi))
}

func fmtBound(v float64) string {
	switch {
	case v == negInf:
		return "-inf"
	case v == posInf():
		return "+inf"
	default:
		return fmt.Sprintf("%g", v)
	}
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func (iv Interval) Add(other AV) AV {
	o := other.(Interval)
	if iv.IsBottom() || o.IsBottom() {
		return emptyInterval()
	}
	return Interval{lo: iv.lo + o.lo, hi: iv.hi + o.hi}
}

func (iv Interval) negated() Interval {
	if iv.IsBottom() {
		return emptyInterval()
	}
	return Interval{lo: -iv.hi, hi: -iv.lo}
}

func (iv Interval) Sub(other AV) AV {
	o := other.(Interval)
	if iv.IsBottom() || o.IsBottom() {
		return emptyInterval()
	}
	return Interval{lo: iv.lo - o.hi, hi: iv.hi - o.lo}
}

func (iv Interval) Mul(other AV) AV {
	o := other.(Interval)
	if iv.IsBottom() || o.IsBottom() {
		return emptyInterval()
	}
	a, b, c, d := iv.lo, iv.hi, o.lo, o.hi
	products := [4]float64{a * c, a * d, b * c, b * d}
	lo, hi := products[0], products[0]
	for _, p := range products[1:] {
		lo, hi = min(lo, p), max(hi, p)
	}
	return Interval{lo: lo, hi: hi}
}

// Div mirrors the reference's three-way split: a denominator pinned
// exactly to zero is bottom (undefined), a denominator that merely
// spans zero escalates to top (imprecise but sound), and an
// exclusively-nonzero denominator divides normally.
func (iv Interval) Div(other AV) AV {
	o := other.(Interval)
	if iv.IsBottom() || o.IsBottom() {
		return emptyInterval()
	}
	a, b, c, d := iv.lo, iv.hi, o.lo, o.hi
	if c == 0 && d == 0 {
		return emptyInterval()
	}
	if c <= 0 && 0 <= d {
		return Interval{lo: negInf, hi: posInf()}
	}
	candidates := [4]float64{a / c, a / d, b / c, b / d}
	lo, hi := candidates[0], candidates[0]
	for _, v := range candidates[1:] {
		lo, hi = min(lo, v), max(hi, v)
	}
	return Interval{lo: lo, hi: hi}
}

// Rem is not modelled by the reference interpreter for the interval
// domain; it is supplemented here using the standard sound bound: the
// result's magnitude cannot exceed the divisor's greatest possible
// magnitude minus one, and it keeps the dividend's sign range. A
// divisor that may be zero escalates to top, same as Div.
func (iv Interval) Rem(other AV) AV {
	o := other.(Interval)
	if iv.IsBottom() || o.IsBottom() {
		return emptyInterval()
	}
	c, d := o.lo, o.hi
	if c == 0 && d == 0 {
		return emptyInterval()
	}
	if c <= 0 && 0 <= d {
		return Interval{lo: negInf, hi: posInf()}
	}
	maxAbs := max(absF(c), absF(d))
	if maxAbs == posInf() {
		return Interval{lo: negInf, hi: posInf()}
	}
	bound := maxAbs - 1
	lo, hi := -bound, bound
	if iv.lo >= 0 {
		lo = 0
	}
	if iv.hi <= 0 {
		hi = 0
	}
	return Interval{lo: lo, hi: hi}
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Bounds returns iv's finite integer endpoints, or ok=false if iv is
// bottom or either bound is infinite. Used by the transfer layer to
// recognise a singleton index or a small-enough array length to
// enumerate (spec.md §9's array-index open question).
func (iv Interval) Bounds() (lo, hi int64, ok bool) {
	if iv.IsBottom() || iv.lo == negInf || iv.hi == posInf() {
		return 0, 0, false
	}
	return int64(iv.lo), int64(iv.hi), true
}

func (iv Interval) MaybeZero() bool {
	if iv.IsBottom() {
		return false
	}
	return iv.lo <= 0 && 0 <= iv.hi
}

func (iv Interval) IsExactlyZero() bool { return iv.lo == 0 && iv.hi == 0 }

func (iv Interval) NonZero() AV {
	if iv.IsBottom() {
		return iv
	}
	if iv.lo == 0 {
		return Interval{lo: 1, hi: iv.hi}
	}
	if iv.hi == 0 {
		return Interval{lo: iv.lo, hi: -1}
	}
	return iv
}

// relations reports which of {-1, 0, 1} (self-other) are realisable,
// following the reference's overlap test.
func (iv Interval) relations(o Interval) map[int]bool {
	if iv.IsBottom() || o.IsBottom() {
		return map[int]bool{}
	}
	a, b, c, d := iv.lo, iv.hi, o.lo, o.hi
	rels := map[int]bool{}
	if a < d {
		rels[-1] = true
	}
	if max(a, c) <= min(b, d) {
		rels[0] = true
	}
	if b > c {
		rels[1] = true
	}
	return rels
}

func (iv Interval) Compare(other AV, op Relation) (maybeTrue, maybeFalse bool) {
	o := other.(Interval)
	for r := range iv.relations(o) {
		if holds(r, op) {
			maybeTrue = true
		} else {
			maybeFalse = true
		}
	}
	return
}

// Constrain implements the per-operator narrowing from the reference
// interpreter's Interval.constrain, operator by operator.
func (iv Interval) Constrain(other AV, op Relation) (refinedTrue, refinedFalse AV) {
	o := other.(Interval)
	if iv.IsBottom() || o.IsBottom() {
		return emptyInterval(), emptyInterval()
	}
	a, b, c, d := iv.lo, iv.hi, o.lo, o.hi
	of := func(lo, hi float64) Interval {
		if lo > hi {
			return emptyInterval()
		}
		return Interval{lo: lo, hi: hi}
	}

	switch op {
	case Lt:
		if a >= d {
			return emptyInterval(), iv
		}
		tHi := min(b, d-1)
		t := of(a, tHi)
		if tHi < b {
			return t, of(tHi+1, b)
		}
		return t, emptyInterval()
	case Le:
		if a > d {
			return emptyInterval(), iv
		}
		tHi := min(b, d)
		t := of(a, tHi)
		if tHi < b {
			return t, of(tHi+1, b)
		}
		return t, emptyInterval()
	case Gt:
		if b <= c {
			return emptyInterval(), iv
		}
		tLo := max(a, c+1)
		t := of(tLo, b)
		if tLo > a {
			return t, of(a, tLo-1)
		}
		return t, emptyInterval()
	case Ge:
		if b < c {
			return emptyInterval(), iv
		}
		tLo := max(a, c)
		t := of(tLo, b)
		if tLo > a {
			return t, of(a, tLo-1)
		}
		return t, emptyInterval()
	case Eq:
		m := of(max(a, c), min(b, d))
		if m.IsBottom() {
			return emptyInterval(), iv
		}
		if a == b && c == d && a == c {
			return iv, emptyInterval()
		}
		return m, iv
	case Ne:
		m := of(max(a, c), min(b, d))
		if m.IsBottom() {
			return iv, emptyInterval()
		}
		if a == b && c == d && a == c {
			return emptyInterval(), iv
		}
		return iv, iv
	}
	return iv, iv
}

// IntervalDomain is the domain.Domain factory for the interval lattice.
type IntervalDomain struct{}

var _ Domain = IntervalDomain{}

func (IntervalDomain) Name() string { return "interval" }
func (IntervalDomain) Bottom() AV   { return emptyInterval() }
func (IntervalDomain) Top() AV      { return Interval{lo: negInf, hi: posInf()} }

func (IntervalDomain) Abstract(vs ...int64) AV {
	if len(vs) == 0 {
		return emptyInterval()
	}
	lo, hi := float64(vs[0]), float64(vs[0])
	for _, v := range vs[1:] {
		f := float64(v)
		lo, hi = min(lo, f), max(hi, f)
	}
	return Interval{lo: lo, hi: hi}
}

func (d IntervalDomain) FromType(isFloat bool) AV { return d.Top() }

// CompareFloating reports which of the three orderings are realisable
// between two intervals, using the same overlap test as ordinary
// Compare (spec.md §4.1's floating variant). NaN is not modelled: the
// result holds only the orderings the two intervals admit, and no
// caller adds a relation for an unordered (NaN) comparison.
func (IntervalDomain) CompareFloating(a, b AV) map[FloatRelation]bool {
	av, bv := a.(Interval), b.(Interval)
	rels := av.relations(bv)
	out := map[FloatRelation]bool{}
	for r := range rels {
		out[FloatRelation(r)] = true
	}
	return out
}

// Widen expands any bound of next that strictly exceeds prev's to
// infinity (spec.md §9): "after K updates to the same program point,
// replace the joined element with its widened version: expand to -inf
// / +inf on any bound that strictly grew."
func (IntervalDomain) Widen(prev, next AV) AV {
	p, n := prev.(Interval), next.(Interval)
	if p.IsBottom() {
		return n
	}
	if n.IsBottom() {
		return p
	}
	lo, hi := n.lo, n.hi
	if n.lo < p.lo {
		lo = negInf
	}
	if n.hi > p.hi {
		hi = posInf()
	}
	return Interval{lo: lo, hi: hi}
}
