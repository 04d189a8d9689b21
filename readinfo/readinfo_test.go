package readinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEndOpposite(t *testing.T) {
	e := ReadEnd{ID: 5, ThreePrime: false}
	assert.Equal(t, ReadEnd{ID: 5, ThreePrime: true}, e.Opposite())
	assert.Equal(t, e, e.Opposite().Opposite())
}

func TestReadEndNil(t *testing.T) {
	assert.True(t, ReadEnd{}.IsNil())
	assert.False(t, (ReadEnd{ID: 1}).IsNil())
}

func TestReadEndLess(t *testing.T) {
	a := ReadEnd{ID: 1, ThreePrime: false}
	b := ReadEnd{ID: 1, ThreePrime: true}
	c := ReadEnd{ID: 2, ThreePrime: false}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.True(t, b.Less(c))
}

func TestReadEndString(t *testing.T) {
	assert.Equal(t, "50055'", ReadEnd{ID: 5005, ThreePrime: false}.String())
	assert.Equal(t, "70033'", ReadEnd{ID: 7003, ThreePrime: true}.String())
}

func TestTableBasics(t *testing.T) {
	tbl := NewTable(3)
	tbl.Set(1, 100, 0, 2)
	tbl.Set(2, 100, 0, 1)
	tbl.Set(3, 50, 1, NilRead)

	assert.Equal(t, 3, tbl.NumReads())
	assert.Equal(t, uint32(100), tbl.Length(1))
	assert.Equal(t, uint32(0), tbl.Library(1))
	assert.Equal(t, ReadID(2), tbl.Mate(1))
	assert.Equal(t, uint32(0), tbl.Length(0), "null sentinel row stays zero")

	assert.True(t, IsValid(tbl, 1))
	assert.False(t, IsValid(tbl, 0))
	assert.False(t, IsValid(tbl, 4))

	tbl.Set(3, 0, 1, NilRead)
	assert.False(t, IsValid(tbl, 3), "zero length marks a deleted read")
}

func TestHugeTableBasics(t *testing.T) {
	tbl, err := NewHugeTable(3)
	require.NoError(t, err)
	defer tbl.Close()

	tbl.Set(1, 100, 0, 2)
	tbl.Set(2, 100, 0, 1)
	tbl.Set(3, 50, 1, NilRead)

	assert.Equal(t, 3, tbl.NumReads())
	assert.Equal(t, uint32(100), tbl.Length(1))
	assert.Equal(t, uint32(50), tbl.Length(3))
	assert.Equal(t, ReadID(2), tbl.Mate(1))
	assert.Equal(t, uint32(0), tbl.Length(0), "null sentinel row stays zero")
	assert.True(t, IsValid(tbl, 1))
	assert.False(t, IsValid(tbl, 0))

	require.NoError(t, tbl.Close())
	require.NoError(t, tbl.Close(), "closing an already-closed table is a no-op")
}
