package chunkgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/bogart/bog"
	"github.com/grailbio/bogart/overlapstore"
	"github.com/grailbio/bogart/readinfo"
)

type fakeStore struct {
	byRead map[readinfo.ReadID][]overlapstore.Overlap
	n      int
}

func (s *fakeStore) NumReads() int { return s.n }
func (s *fakeStore) Overlaps(id readinfo.ReadID, maxErate float64) []overlapstore.Overlap {
	return s.byRead[id]
}

func addSymmetric(s *fakeStore, o overlapstore.Overlap) {
	s.byRead[o.A] = append(s.byRead[o.A], o)
	s.byRead[o.B] = append(s.byRead[o.B], o.Flip())
}

func TestChunkGraphChain(t *testing.T) {
	rs := readinfo.NewTable(3)
	rs.Set(1, 100, 0, 0)
	rs.Set(2, 100, 0, 0)
	rs.Set(3, 100, 0, 0)

	store := &fakeStore{n: 3, byRead: map[readinfo.ReadID][]overlapstore.Overlap{}}
	addSymmetric(store, overlapstore.Overlap{A: 1, B: 2, AHang: 30, BHang: 30})
	addSymmetric(store, overlapstore.Overlap{A: 2, B: 3, AHang: 40, BHang: 40})
	cache := overlapstore.NewCache(store, 1.0, nil)

	g, err := bog.Build(rs, cache, bog.Options{GraphErate: 1.0})
	require.NoError(t, err)

	cg := Build(g)

	// In an unbranched n-read chain every read's combined path length is
	// n+1: read i sees i reads walking off its 5' end and n-i+1 off its
	// 3'. The tie then breaks by smaller id, so read 1 leads iteration.
	assert.Equal(t, uint32(4), cg.PathLength(1))
	assert.Equal(t, uint32(4), cg.PathLength(2))
	assert.Equal(t, uint32(4), cg.PathLength(3))

	id, pathLen := cg.At(0)
	assert.Equal(t, readinfo.ReadID(1), id)
	assert.Equal(t, uint32(4), pathLen)

	var seen []readinfo.ReadID
	cg.Each(func(id readinfo.ReadID, pathLen uint32) { seen = append(seen, id) })
	assert.Len(t, seen, 3)

	// The null sentinel terminates the array.
	lastID, lastLen := cg.At(cg.Len() - 1)
	assert.Equal(t, readinfo.NilRead, lastID)
	assert.Equal(t, uint32(0), lastLen)
}

func TestChunkGraphCycle(t *testing.T) {
	rs := readinfo.NewTable(3)
	rs.Set(1, 100, 0, 0)
	rs.Set(2, 100, 0, 0)
	rs.Set(3, 100, 0, 0)

	// A circular chain 1 -> 2 -> 3 -> 1: following best edges from any end
	// loops forever, so the cycle branch must assign every end the cycle's
	// length instead of spinning.
	store := &fakeStore{n: 3, byRead: map[readinfo.ReadID][]overlapstore.Overlap{}}
	addSymmetric(store, overlapstore.Overlap{A: 1, B: 2, AHang: 30, BHang: 30})
	addSymmetric(store, overlapstore.Overlap{A: 2, B: 3, AHang: 30, BHang: 30})
	addSymmetric(store, overlapstore.Overlap{A: 3, B: 1, AHang: 30, BHang: 30})
	cache := overlapstore.NewCache(store, 1.0, nil)
	g, err := bog.Build(rs, cache, bog.Options{GraphErate: 1.0})
	require.NoError(t, err)

	cg := Build(g)
	// Each end sits on a 3-end cycle, so every read's combined length is 6.
	assert.Equal(t, uint32(6), cg.PathLength(1))
	assert.Equal(t, uint32(6), cg.PathLength(2))
	assert.Equal(t, uint32(6), cg.PathLength(3))
}

func TestChunkGraphSkipsContainedAndCoverageGap(t *testing.T) {
	rs := readinfo.NewTable(2)
	rs.Set(1, 200, 0, 0)
	rs.Set(2, 50, 0, 0)

	store := &fakeStore{n: 2, byRead: map[readinfo.ReadID][]overlapstore.Overlap{}}
	addSymmetric(store, overlapstore.Overlap{A: 1, B: 2, AHang: 40, BHang: -110})
	cache := overlapstore.NewCache(store, 1.0, nil)
	g, err := bog.Build(rs, cache, bog.Options{GraphErate: 1.0})
	require.NoError(t, err)
	require.True(t, g.IsContained(2))

	cg := Build(g)
	assert.Equal(t, uint32(0), cg.PathLength(2), "contained reads never seed unitigs")
}
