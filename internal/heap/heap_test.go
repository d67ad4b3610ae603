package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpamb-tools/debloatcore/internal/domain"
	"github.com/jpamb-tools/debloatcore/internal/name"
	"github.com/jpamb-tools/debloatcore/internal/store"
)

func TestAllocRecordsMeta(t *testing.T) {
	h := New()
	s := store.New()
	arrName := s.Fresh(domain.SignDomain{}.Abstract(0))
	sizeName := s.Fresh(domain.SignDomain{}.Abstract(3))

	addr := h.Alloc(arrName, sizeName)
	meta, ok := h.Meta(arrName)
	require.True(t, ok)
	assert.Equal(t, addr, meta.Addr)
	assert.Equal(t, sizeName, meta.SizeName)

	got, ok := h.NameAt(addr)
	require.True(t, ok)
	assert.Equal(t, arrName, got)
}

func TestSetElementThenElement(t *testing.T) {
	h := New()
	s := store.New()
	arrName := s.Fresh(domain.SignDomain{}.Abstract(0))
	valName := s.Fresh(domain.SignDomain{}.Abstract(7))

	h.SetElement(arrName, 2, valName)
	got, ok := h.Element(arrName, 2)
	require.True(t, ok)
	assert.Equal(t, valName, got)

	_, ok = h.Element(arrName, 3)
	assert.False(t, ok, "an index never stored should miss")
}

func TestCloneIsIndependent(t *testing.T) {
	h := New()
	s := store.New()
	arrName := s.Fresh(domain.SignDomain{}.Abstract(0))
	sizeName := s.Fresh(domain.SignDomain{}.Abstract(3))
	h.Alloc(arrName, sizeName)

	clone := h.Clone()
	otherArr := name.Name(999)
	clone.SetElement(otherArr, 0, name.Name(1))

	_, ok := h.Element(otherArr, 0)
	assert.False(t, ok, "mutating the clone must not affect the original")
}

func TestJoinAdoptsForeignAddressNotYetSeen(t *testing.T) {
	s := store.New()
	a := New()
	b := New()

	arrName := s.Fresh(domain.SignDomain{}.Abstract(0))
	sizeName := s.Fresh(domain.SignDomain{}.Abstract(5))
	b.Alloc(arrName, sizeName)

	grew := a.Join(b, s)
	assert.True(t, grew)
	_, ok := a.Meta(arrName)
	assert.True(t, ok)
}

func TestEqualReflectsSameAddressesAndElements(t *testing.T) {
	s := store.New()
	a := New()
	arrName := s.Fresh(domain.SignDomain{}.Abstract(0))
	sizeName := s.Fresh(domain.SignDomain{}.Abstract(5))
	a.Alloc(arrName, sizeName)

	b := a.Clone()
	assert.True(t, a.Equal(b))

	b.SetElement(arrName, 0, name.Name(42))
	assert.False(t, a.Equal(b))
}
