package bog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/bogart/overlapstore"
	"github.com/grailbio/bogart/readinfo"
)

// fakeStore is a minimal in-memory overlapstore.Store for tests.
type fakeStore struct {
	byRead map[readinfo.ReadID][]overlapstore.Overlap
	n      int
}

func (s *fakeStore) NumReads() int { return s.n }
func (s *fakeStore) Overlaps(id readinfo.ReadID, maxErate float64) []overlapstore.Overlap {
	var out []overlapstore.Overlap
	for _, o := range s.byRead[id] {
		if o.Erate() <= maxErate {
			out = append(out, o)
		}
	}
	return out
}

func addSymmetric(s *fakeStore, o overlapstore.Overlap) {
	s.byRead[o.A] = append(s.byRead[o.A], o)
	s.byRead[o.B] = append(s.byRead[o.B], o.Flip())
}

// threeReadChain builds a simple three-read overlap chain: 1-2-3.
func threeReadChain() (*readinfo.Table, *fakeStore) {
	rs := readinfo.NewTable(3)
	rs.Set(1, 100, 0, 0)
	rs.Set(2, 100, 0, 0)
	rs.Set(3, 100, 0, 0)

	store := &fakeStore{n: 3, byRead: map[readinfo.ReadID][]overlapstore.Overlap{}}
	addSymmetric(store, overlapstore.Overlap{A: 1, B: 2, AHang: 30, BHang: 30, Evalue: 10})
	addSymmetric(store, overlapstore.Overlap{A: 2, B: 3, AHang: 40, BHang: 40, Evalue: 12})
	return rs, store
}

func TestBuildChainBestEdges(t *testing.T) {
	rs, store := threeReadChain()
	cache := overlapstore.NewCache(store, 1.0, nil)

	g, err := Build(rs, cache, Options{GraphErate: 1.0})
	require.NoError(t, err)

	b3of1 := g.Best3(1)
	require.True(t, b3of1.IsValid())
	assert.Equal(t, readinfo.ReadID(2), b3of1.Target.ID)
	assert.False(t, b3of1.Target.ThreePrime)

	b5of2 := g.Best5(2)
	require.True(t, b5of2.IsValid())
	assert.Equal(t, readinfo.ReadID(1), b5of2.Target.ID)
	assert.True(t, b5of2.Target.ThreePrime)

	b3of2 := g.Best3(2)
	require.True(t, b3of2.IsValid())
	assert.Equal(t, readinfo.ReadID(3), b3of2.Target.ID)
	assert.False(t, b3of2.Target.ThreePrime)

	// Read 1's 5' end and read 3's 3' end have no overlaps at all.
	assert.False(t, g.Best5(1).IsValid())
	assert.False(t, g.Best3(3).IsValid())

	assert.Equal(t, 0, g.FailedReads())
}

func TestBuildContainment(t *testing.T) {
	rs := readinfo.NewTable(2)
	rs.Set(1, 200, 0, 0)
	rs.Set(2, 50, 0, 0)

	store := &fakeStore{n: 2, byRead: map[readinfo.ReadID][]overlapstore.Overlap{}}
	addSymmetric(store, overlapstore.Overlap{A: 1, B: 2, AHang: 40, BHang: -110, Evalue: 0})
	cache := overlapstore.NewCache(store, 1.0, nil)

	g, err := Build(rs, cache, Options{GraphErate: 1.0})
	require.NoError(t, err)

	assert.True(t, g.IsContained(2))
	cont := g.Containment(2)
	assert.Equal(t, readinfo.ReadID(1), cont.Container)
	assert.True(t, cont.SameOrientation)
	assert.Equal(t, int32(40), cont.AHang)
	assert.Equal(t, int32(-110), cont.BHang)

	// Contained reads have their best edges zeroed post-pass.
	assert.False(t, g.Best5(2).IsValid())
	assert.False(t, g.Best3(2).IsValid())
	assert.False(t, g.IsContained(1))
}

func TestContainmentTieBreakSmallerIDWins(t *testing.T) {
	rs := readinfo.NewTable(3)
	rs.Set(1, 100, 0, 0)
	rs.Set(2, 100, 0, 0)
	rs.Set(3, 100, 0, 0)

	// Two independent exact-equal-length containments of read 3, both with
	// the same score; only the forward (container-side) direction is
	// populated here since the reverse direction of an all-zero-hang
	// overlap is itself ambiguous about which read is the container --
	// that ambiguity is the overlap store's to resolve, not BOG's (see
	// Overlap.Classify's doc comment).
	store := &fakeStore{n: 3, byRead: map[readinfo.ReadID][]overlapstore.Overlap{
		2: {{A: 2, B: 3, AHang: 0, BHang: 0, Evalue: 10}},
		1: {{A: 1, B: 3, AHang: 0, BHang: 0, Evalue: 10}},
	}}
	cache := overlapstore.NewCache(store, 1.0, nil)

	g, err := Build(rs, cache, Options{GraphErate: 1.0})
	require.NoError(t, err)

	assert.Equal(t, readinfo.ReadID(1), g.Containment(3).Container)
}

func TestSuspiciousReadDetection(t *testing.T) {
	rs := readinfo.NewTable(3)
	rs.Set(1, 100, 0, 0)
	rs.Set(2, 100, 0, 0)
	rs.Set(3, 100, 0, 0)

	store := &fakeStore{n: 3, byRead: map[readinfo.ReadID][]overlapstore.Overlap{}}
	// Read 1's two overlaps cover [0,40) and [60,100): two disjoint spans
	// with no containing overlap, so read 1 is suspicious. Reads 2 and 3
	// each have a single span and stay clean.
	addSymmetric(store, overlapstore.Overlap{A: 1, B: 2, AHang: -30, BHang: -60, Evalue: 0})
	addSymmetric(store, overlapstore.Overlap{A: 1, B: 3, AHang: 60, BHang: 30, Evalue: 0})
	cache := overlapstore.NewCache(store, 1.0, nil)

	g, err := Build(rs, cache, Options{GraphErate: 1.0})
	require.NoError(t, err)

	assert.True(t, g.IsSuspicious(1))
	assert.False(t, g.IsSuspicious(2))
	assert.False(t, g.IsSuspicious(3))
}

func TestSuspiciousFlagsReadWithNoOverlaps(t *testing.T) {
	rs := readinfo.NewTable(1)
	rs.Set(1, 100, 0, 0)
	store := &fakeStore{n: 1, byRead: map[readinfo.ReadID][]overlapstore.Overlap{}}
	cache := overlapstore.NewCache(store, 1.0, nil)

	g, err := Build(rs, cache, Options{GraphErate: 1.0})
	require.NoError(t, err)

	// No overlap evidence at all: the read can never be a best-edge target
	// and is left to singleton promotion.
	assert.True(t, g.IsSuspicious(1))
}

func TestCoverageGapDetection(t *testing.T) {
	rs := readinfo.NewTable(3)
	rs.Set(1, 100, 0, 0)
	rs.Set(2, 100, 0, 0)
	rs.Set(3, 100, 0, 0)

	store := &fakeStore{n: 3, byRead: map[readinfo.ReadID][]overlapstore.Overlap{}}
	// Read 1's two halves overlap different read sets with no bridging
	// overlap: [0,40) against read 2, [60,100) against read 3. The
	// interior gap [40,60) is the chimeric join signature.
	addSymmetric(store, overlapstore.Overlap{A: 1, B: 2, AHang: -30, BHang: -60, Evalue: 0})
	addSymmetric(store, overlapstore.Overlap{A: 1, B: 3, AHang: 60, BHang: 30, Evalue: 0})
	cache := overlapstore.NewCache(store, 1.0, nil)

	g, err := Build(rs, cache, Options{GraphErate: 1.0, EnableCoverageGapRemoval: true})
	require.NoError(t, err)

	assert.True(t, g.IsCoverageGap(1))
	assert.False(t, g.IsCoverageGap(2))
	assert.False(t, g.IsCoverageGap(3))
}

func TestEraseMutualDoubleEdges(t *testing.T) {
	rs := readinfo.NewTable(2)
	rs.Set(1, 100, 0, 0)
	rs.Set(2, 100, 0, 0)

	store := &fakeStore{n: 2, byRead: map[readinfo.ReadID][]overlapstore.Overlap{}}
	// Contradictory: read 1 has a best edge to read 2 from BOTH its own
	// ends (constructed directly via two independent dovetail overlaps).
	addSymmetric(store, overlapstore.Overlap{A: 1, B: 2, AHang: 30, BHang: 30, Evalue: 0})    // off 1's 3'
	addSymmetric(store, overlapstore.Overlap{A: 1, B: 2, AHang: -30, BHang: -30, Evalue: 50}) // off 1's 5', clearly worse score but still a distinct edge
	cache := overlapstore.NewCache(store, 1.0, nil)

	g, err := Build(rs, cache, Options{GraphErate: 1.0})
	require.NoError(t, err)

	// Both 1's edges point at 2 -> both erased.
	assert.False(t, g.Best5(1).IsValid())
	assert.False(t, g.Best3(1).IsValid())
}

func TestSpurRemoval(t *testing.T) {
	rs := readinfo.NewTable(2)
	rs.Set(1, 100, 0, 0)
	rs.Set(2, 100, 0, 0)

	store := &fakeStore{n: 2, byRead: map[readinfo.ReadID][]overlapstore.Overlap{}}
	addSymmetric(store, overlapstore.Overlap{A: 1, B: 2, AHang: 30, BHang: 30, Evalue: 0})
	cache := overlapstore.NewCache(store, 1.0, nil)

	g, err := Build(rs, cache, Options{GraphErate: 1.0, EnableSpurRemoval: true})
	require.NoError(t, err)

	// Read 1 only has a best edge from its 3' end -> spur.
	assert.True(t, g.IsSpur(1))
}
