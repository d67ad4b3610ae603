package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpamb-tools/debloatcore/internal/domain"
)

func TestFreshBindsDistinctNames(t *testing.T) {
	s := New()
	n1 := s.Fresh(domain.SignDomain{}.Abstract(1))
	n2 := s.Fresh(domain.SignDomain{}.Abstract(2))
	assert.NotEqual(t, n1, n2)

	v1, ok := s.Get(n1)
	require.True(t, ok)
	assert.True(t, v1.(domain.Sign).Leq(domain.SignDomain{}.Abstract(1)))
}

func TestCloneIsIndependent(t *testing.T) {
	s := New()
	n := s.Fresh(domain.SignDomain{}.Abstract(1))
	clone := s.Clone()
	clone.Set(n, domain.SignDomain{}.Abstract(2))

	orig, _ := s.Get(n)
	cloned, _ := clone.Get(n)
	assert.False(t, orig.Leq(cloned) && cloned.Leq(orig), "mutating the clone must not affect the original")
}

func TestJoinMergesSharedNameBindings(t *testing.T) {
	a := New()
	n := a.Fresh(domain.SignDomain{}.Abstract(1))

	// b must mint the same name to exercise the shared-name join path;
	// store names are only meaningful within one analysis run, so here
	// we simulate that by cloning a before diverging.
	b := a.Clone()
	b.Set(n, domain.SignDomain{}.Abstract(-1))

	grew := a.Join(b)
	assert.True(t, grew)
	v, _ := a.Get(n)
	assert.Equal(t, domain.SignDomain{}.Abstract(-1, 1), v)
}

func TestJoinIsNoOpWhenAlreadyEqual(t *testing.T) {
	a := New()
	n := a.Fresh(domain.SignDomain{}.Abstract(1))
	b := a.Clone()

	grew := a.Join(b)
	assert.False(t, grew)
	v, _ := a.Get(n)
	assert.True(t, v.(domain.Sign).Leq(domain.SignDomain{}.Abstract(1)))
}

func TestEqualReflectsSameBindings(t *testing.T) {
	a := New()
	a.Fresh(domain.SignDomain{}.Abstract(1))
	b := a.Clone()
	assert.True(t, a.Equal(b))

	b.Fresh(domain.SignDomain{}.Abstract(2))
	assert.False(t, a.Equal(b))
}

func TestWidenOnlyTouchesNamesBoundInBoth(t *testing.T) {
	prev := New()
	n1 := prev.Fresh(domain.IntervalDomain{}.Abstract(0, 10))

	cur := prev.Clone()
	cur.Set(n1, domain.IntervalDomain{}.Abstract(0, 20))
	n2 := cur.Fresh(domain.IntervalDomain{}.Abstract(5))

	cur.Widen(prev, domain.IntervalDomain{})

	widened, _ := cur.Get(n1)
	assert.True(t, widened.(domain.Interval).IsTop() == false)
	lo, hi, ok := widened.(domain.Interval).Bounds()
	assert.False(t, ok, "the grown upper bound should have widened to +inf: got [%d,%d]", lo, hi)

	untouched, _ := cur.Get(n2)
	loU, hiU, okU := untouched.(domain.Interval).Bounds()
	require.True(t, okU)
	assert.Equal(t, int64(5), loU)
	assert.Equal(t, int64(5), hiU)
}
