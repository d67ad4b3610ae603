// Package domain defines the abstract-value capability set (spec.md §3,
// §4.1) and its two realisations: a finite sign-set lattice and an
// integer-interval lattice. The driver and transfer function are
// written against the AV interface only, never against a concrete
// representation — the same way the teacher's VM keeps a single Value
// contract and lets ValueType pick the concrete branch
// (compare internal structure once held in funvibe-funxy/internal/vm/value.go,
// a tagged union of concrete kinds behind one accessor surface).
package domain

// Relation is one of the six comparison operators the transfer function
// evaluates (spec.md §4.1).
type Relation string

const (
	Eq Relation = "eq"
	Ne Relation = "ne"
	Lt Relation = "lt"
	Le Relation = "le"
	Gt Relation = "gt"
	Ge Relation = "ge"
)

// FloatRelation is one member of the 3-way result compare_floating can
// report: strictly-less, equal, or strictly-greater.
type FloatRelation int

const (
	FLt FloatRelation = -1
	FEq FloatRelation = 0
	FGt FloatRelation = 1
)

// AV is one element of a complete lattice approximating sets of
// concrete int64 values. Every method must be a pure function of its
// receiver and arguments: AV values are immutable, so a store can hand
// the same AV out to multiple names without cloning it.
type AV interface {
	// IsBottom reports whether this element is the lattice's bottom
	// (no concretisation, unreachable in practice).
	IsBottom() bool

	// IsTop reports whether this element is the lattice's top (every
	// concrete value is a member).
	IsTop() bool

	// Leq is the partial order a ⊑ b.
	Leq(b AV) bool

	// Join is a ⊔ b, the least upper bound.
	Join(b AV) AV

	// Meet is a ⊓ b, the greatest lower bound.
	Meet(b AV) AV

	// Add, Sub, Mul are sound over-approximations of the concrete
	// operator lifted point-wise over the concretisation.
	Add(b AV) AV
	Sub(b AV) AV
	Mul(b AV) AV

	// Div and Rem additionally report, via MaybeZero, whether the
	// divisor side (the receiver, by convention — callers pass the
	// divisor as the receiver) may concretise to zero, so the
	// transfer function can raise "divide by zero" (spec.md §4.6).
	// The returned AV is the result computed as if division by zero
	// were excluded; NonZero returns the receiver narrowed to exclude 0.
	Div(b AV) AV
	Rem(b AV) AV
	MaybeZero() bool
	IsExactlyZero() bool
	NonZero() AV

	// Compare reports, as a set encoded in (maybeTrue, maybeFalse),
	// whether op can hold between the receiver and b. At least one of
	// the two is true whenever neither operand is bottom.
	Compare(b AV, op Relation) (maybeTrue, maybeFalse bool)

	// Constrain returns the greatest sub-element of the receiver
	// consistent with op holding (refinedTrue) and with op failing
	// (refinedFalse) against b. Both results satisfy result ⊑ receiver;
	// an infeasible side is Bottom().
	Constrain(b AV, op Relation) (refinedTrue, refinedFalse AV)

	// String renders the element for diagnostics.
	String() string
}

// Domain is a factory producing AV elements for one lattice realisation
// (sign-set or interval). The driver is generic over Domain, selected
// once per analysis run from config.Config.Domain.
type Domain interface {
	// Name identifies the realisation ("sign" or "interval").
	Name() string

	// Bottom and Top are the lattice extrema.
	Bottom() AV
	Top() AV

	// Abstract returns the least element whose concretisation
	// contains every value in vs (spec.md §8, "Soundness of abstract").
	Abstract(vs ...int64) AV

	// FromType returns the starting element for a freshly-seeded
	// parameter of the given opcode.Type (e.g. Top for unconstrained
	// int parameters).
	FromType(isFloat bool) AV

	// CompareFloating is only meaningful on the interval domain
	// (spec.md §4.1); sign-set implementations fold NaN-unordered
	// handling the same way by returning all three relations whenever
	// either operand could be NaN-bearing. Returns the set of possible
	// relations.
	CompareFloating(a, b AV) map[FloatRelation]bool

	// Widen is the accelerated join applied after config.WideningAfter
	// updates to the same program point (spec.md §9). Sign-set
	// implementations return prev.Join(next) unchanged, since the
	// sign lattice has no infinite ascending chain.
	Widen(prev, next AV) AV
}
