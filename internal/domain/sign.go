package domain

// signMask is a subset of {-, 0, +} encoded as three bits. This is the
// sign-set realisation of AV (spec.md §3): bottom is the empty mask,
// top is all three bits set, and the lattice is finite, so no widening
// is ever required.
type signMask uint8

const (
	signNeg signMask = 1 << iota
	signZero
	signPos
	signAll = signNeg | signZero | signPos
)

func signOf(v int64) signMask {
	switch {
	case v < 0:
		return signNeg
	case v == 0:
		return signZero
	default:
		return signPos
	}
}

// Sign is the sign-set AV: a finite subset of {-, 0, +}.
type Sign struct{ mask signMask }

var _ AV = Sign{}

func (s Sign) IsBottom() bool { return s.mask == 0 }
func (s Sign) IsTop() bool    { return s.mask == signAll }

func (s Sign) Leq(other AV) bool {
	o := other.(Sign)
	return s.mask&^o.mask == 0
}

func (s Sign) Join(other AV) AV {
	o := other.(Sign)
	return Sign{mask: s.mask | o.mask}
}

func (s Sign) Meet(other AV) AV {
	o := other.(Sign)
	return Sign{mask: s.mask & o.mask}
}

func (s Sign) String() string {
	out := ""
	if s.mask&signNeg != 0 {
		out += "-"
	}
	if s.mask&signZero != 0 {
		out += "0"
	}
	if s.mask&signPos != 0 {
		out += "+"
	}
	if out == "" {
		return "{}"
	}
	return "{" + out + "}"
}

// addTable, mulTable encode the lifted sign arithmetic from the
// reference abstract interpreter (original_source/debloater/abstractions/sign_abstraction.py).
var addTable = map[[2]signMask]signMask{
	{signPos, signPos}: signPos,
	{signPos, signZero}: signPos,
	{signPos, signNeg}: signAll,
	{signZero, signPos}: signPos,
	{signZero, signZero}: signZero,
	{signZero, signNeg}: signNeg,
	{signNeg, signPos}: signAll,
	{signNeg, signZero}: signNeg,
	{signNeg, signNeg}: signNeg,
}

var mulTable = map[[2]signMask]signMask{
	{signPos, signPos}: signPos,
	{signPos, signZero}: signZero,
	{signPos, signNeg}: signNeg,
	{signZero, signPos}: signZero,
	{signZero, signZero}: signZero,
	{signZero, signNeg}: signZero,
	{signNeg, signPos}: signNeg,
	{signNeg, signZero}: signZero,
	{signNeg, signNeg}: signPos,
}

func lift(a, b signMask, table map[[2]signMask]signMask) signMask {
	var out signMask
	for _, sa := range []signMask{signNeg, signZero, signPos} {
		if a&sa == 0 {
			continue
		}
		for _, sb := range []signMask{signNeg, signZero, signPos} {
			if b&sb == 0 {
				continue
			}
			out |= table[[2]signMask{sa, sb}]
			if out == signAll {
				return out
			}
		}
	}
	return out
}

func (s Sign) negated() Sign {
	var out signMask
	if s.mask&signNeg != 0 {
		out |= signPos
	}
	if s.mask&signPos != 0 {
		out |= signNeg
	}
	if s.mask&signZero != 0 {
		out |= signZero
	}
	return Sign{mask: out}
}

func (s Sign) Add(other AV) AV {
	o := other.(Sign)
	return Sign{mask: lift(s.mask, o.mask, addTable)}
}

func (s Sign) Sub(other AV) AV {
	o := other.(Sign)
	return s.Add(o.negated())
}

func (s Sign) Mul(other AV) AV {
	o := other.(Sign)
	return Sign{mask: lift(s.mask, o.mask, mulTable)}
}

// Div follows the reference implementation's per-pair sign table,
// skipping any (sa, sb) pair where sb is zero (division undefined for
// that pair, spec.md §4.1).
func (s Sign) Div(other AV) AV {
	o := other.(Sign)
	var out signMask
	for _, sa := range []signMask{signNeg, signZero, signPos} {
		if s.mask&sa == 0 {
			continue
		}
		for _, sb := range []signMask{signNeg, signZero, signPos} {
			if o.mask&sb == 0 || sb == signZero {
				continue
			}
			switch {
			case sa == signZero:
				out |= signZero
			case sa == sb:
				out |= signPos
			default:
				out |= signNeg
			}
			if out == signAll {
				return Sign{mask: out}
			}
		}
	}
	return Sign{mask: out}
}

// Rem keeps the dividend's sign (truncating division semantics),
// skipping zero divisors the same way Div does.
func (s Sign) Rem(other AV) AV {
	o := other.(Sign)
	var out signMask
	for _, sa := range []signMask{signNeg, signZero, signPos} {
		if s.mask&sa == 0 {
			continue
		}
		for _, sb := range []signMask{signNeg, signZero, signPos} {
			if o.mask&sb == 0 || sb == signZero {
				continue
			}
			if sa == signZero {
				out |= signZero
			} else {
				out |= sa | signZero
			}
			if out == signAll {
				return Sign{mask: out}
			}
		}
	}
	return Sign{mask: out}
}

// OnlyZero reports whether s concretises to exactly {0} — the only
// case the sign domain can ever resolve to a single concrete index
// (spec.md §9's array-index open question).
func (s Sign) OnlyZero() bool { return s.mask == signZero }

func (s Sign) MaybeZero() bool     { return s.mask&signZero != 0 }
func (s Sign) IsExactlyZero() bool { return s.mask == signZero }
func (s Sign) NonZero() AV         { return Sign{mask: s.mask &^ signZero} }

// compareTable maps an ordered pair of signs to the set of relative
// orders (diff = self - other) that pair can realise, mirroring the
// original's subtract-then-classify approach collapsed into a direct
// table (compare_table in group/abstractions/group_sign_abstraction.py).
var compareTable = map[[2]signMask]map[int]bool{
	{signNeg, signNeg}: {-1: true, 0: true, 1: true},
	{signNeg, signZero}: {-1: true},
	{signNeg, signPos}: {-1: true},
	{signZero, signNeg}: {1: true},
	{signZero, signZero}: {0: true},
	{signZero, signPos}: {-1: true},
	{signPos, signNeg}: {1: true},
	{signPos, signZero}: {1: true},
	{signPos, signPos}: {-1: true, 0: true, 1: true},
}

// Holds reports whether a realised integer relation (-1, 0 or 1, in
// the sense of "self - other") satisfies comparison operator op. It is
// exported because the transfer layer reuses it verbatim to interpret
// a FloatCmpResult's relation set against an ifz-style comparison to
// zero (spec.md §4.6, "Float three-way compare").
func Holds(rel int, op Relation) bool { return holds(rel, op) }

// Mirror returns the operator that holds between b and a whenever op
// holds between a and b, e.g. Mirror(Lt) = Gt. Used to refine the
// second operand of a two-operand conditional (spec.md §4.6, "if cond
// target": "refine both names with constrain(v1, v2, cond) on each
// side").
func Mirror(op Relation) Relation {
	switch op {
	case Lt:
		return Gt
	case Gt:
		return Lt
	case Le:
		return Ge
	case Ge:
		return Le
	default:
		return op
	}
}

func holds(rel int, op Relation) bool {
	switch op {
	case Lt:
		return rel == -1
	case Le:
		return rel == -1 || rel == 0
	case Gt:
		return rel == 1
	case Ge:
		return rel == 1 || rel == 0
	case Eq:
		return rel == 0
	case Ne:
		return rel != 0
	}
	return false
}

func (s Sign) relations(other Sign) map[int]bool {
	rels := map[int]bool{}
	for _, sa := range []signMask{signNeg, signZero, signPos} {
		if s.mask&sa == 0 {
			continue
		}
		for _, sb := range []signMask{signNeg, signZero, signPos} {
			if other.mask&sb == 0 {
				continue
			}
			for r := range compareTable[[2]signMask{sa, sb}] {
				rels[r] = true
			}
		}
	}
	return rels
}

func (s Sign) Compare(other AV, op Relation) (maybeTrue, maybeFalse bool) {
	o := other.(Sign)
	for r := range s.relations(o) {
		if holds(r, op) {
			maybeTrue = true
		} else {
			maybeFalse = true
		}
	}
	return
}

func (s Sign) Constrain(other AV, op Relation) (refinedTrue, refinedFalse AV) {
	o := other.(Sign)
	var trueMask, falseMask signMask
	for _, sx := range []signMask{signNeg, signZero, signPos} {
		if s.mask&sx == 0 {
			continue
		}
		for _, sy := range []signMask{signNeg, signZero, signPos} {
			if o.mask&sy == 0 {
				continue
			}
			for r := range compareTable[[2]signMask{sx, sy}] {
				if holds(r, op) {
					trueMask |= sx
				} else {
					falseMask |= sx
				}
			}
		}
	}
	return Sign{mask: trueMask}, Sign{mask: falseMask}
}

// SignDomain is the domain.Domain factory for the sign-set lattice.
type SignDomain struct{}

var _ Domain = SignDomain{}

func (SignDomain) Name() string { return "sign" }
func (SignDomain) Bottom() AV   { return Sign{mask: 0} }
func (SignDomain) Top() AV      { return Sign{mask: signAll} }

func (SignDomain) Abstract(vs ...int64) AV {
	var mask signMask
	for _, v := range vs {
		mask |= signOf(v)
		if mask == signAll {
			break
		}
	}
	return Sign{mask: mask}
}

func (d SignDomain) FromType(isFloat bool) AV { return d.Top() }

// CompareFloating on the sign domain cannot distinguish NaN from any
// other value, so it always reports every relation possible — the
// "widened interpretation" spec.md §9 permits when NaN bias is
// unexercised.
func (SignDomain) CompareFloating(a, b AV) map[FloatRelation]bool {
	return map[FloatRelation]bool{FLt: true, FEq: true, FGt: true}
}

// Widen is a no-op: the sign lattice is finite, so ordinary join
// already guarantees termination (spec.md §9).
func (SignDomain) Widen(prev, next AV) AV { return prev.Join(next) }
