package placement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/bogart/overlapstore"
	"github.com/grailbio/bogart/readinfo"
	"github.com/grailbio/bogart/tig"
)

func TestPositionFromOverlapContainment(t *testing.T) {
	// Read 1 (len 200) contains read 2 (len 50), a_hang=40, b_hang=-110,
	// unflipped. Placing read 2 against read 1's position (0,200).
	ov := overlapstore.Overlap{A: 1, B: 2, Flipped: false, AHang: 40, BHang: -110}.Flip()
	pos, ok := PositionFromOverlap(50, tig.Position{Begin: 0, End: 200}, ov)
	require.True(t, ok)
	assert.Equal(t, tig.Position{Begin: 40, End: 90}, pos)
}

func TestPositionFromOverlapDovetailChain(t *testing.T) {
	// Read 2 is placed at (30,130); read 3 dovetails off read 2's 3' end
	// with a_hang=40,b_hang=40.
	ov := overlapstore.Overlap{A: 3, B: 2, Flipped: false, AHang: -40, BHang: -40}
	pos, ok := PositionFromOverlap(100, tig.Position{Begin: 30, End: 130}, ov)
	require.True(t, ok)
	assert.Equal(t, tig.Position{Begin: 70, End: 170}, pos)
}

func TestSlop(t *testing.T) {
	assert.Equal(t, int32(5), slop(10))    // 7.5% of 10 rounds to 0, floor is 5
	assert.Equal(t, int32(75), slop(1000)) // 7.5% of 1000
}

// fakeReadStore is a minimal readinfo.Store for placement tests.
type fakeReadStore struct{ lengths map[readinfo.ReadID]uint32 }

func (s fakeReadStore) NumReads() int                           { return len(s.lengths) }
func (s fakeReadStore) Length(id readinfo.ReadID) uint32        { return s.lengths[id] }
func (s fakeReadStore) Library(id readinfo.ReadID) uint32       { return 0 }
func (s fakeReadStore) Mate(id readinfo.ReadID) readinfo.ReadID { return 0 }

func TestPlaceClustersAgreeingOverlaps(t *testing.T) {
	rs := fakeReadStore{lengths: map[readinfo.ReadID]uint32{1: 100, 2: 50}}
	tv := tig.NewVector(2)
	host := tv.New()
	require.NoError(t, tv.Add(host, tig.Node{ReadID: 1, Position: tig.Position{Begin: 0, End: 100}}, 0))
	tv.Sort(host)

	// Two overlaps both implying nearly the same placement for read 2
	// (within slop), so they should cluster into a single candidate.
	overlaps := []overlapstore.Overlap{
		{A: 2, B: 1, AHang: -25, BHang: -75, Evalue: 0},
		{A: 2, B: 1, AHang: -23, BHang: -73, Evalue: 100},
	}
	clusters := Place(rs, tv, 2, overlaps, Options{})
	require.Len(t, clusters, 1)
	assert.Equal(t, host.ID(), clusters[0].TigID)
	assert.True(t, clusters[0].Forward)
	assert.Equal(t, 2, clusters[0].NumMembers)
}

func TestPlaceRejectsOutOfBounds(t *testing.T) {
	rs := fakeReadStore{lengths: map[readinfo.ReadID]uint32{1: 100, 2: 500}}
	tv := tig.NewVector(2)
	host := tv.New()
	require.NoError(t, tv.Add(host, tig.Node{ReadID: 1, Position: tig.Position{Begin: 0, End: 100}}, 0))
	tv.Sort(host)

	// Read 2 is far larger than the tig; any placement overruns the tig's
	// bounds and should be rejected.
	overlaps := []overlapstore.Overlap{
		{A: 2, B: 1, AHang: -30, BHang: 370, Evalue: 0},
	}
	clusters := Place(rs, tv, 2, overlaps, Options{})
	assert.Empty(t, clusters)
}

func TestBestRequiresFullCoverage(t *testing.T) {
	clusters := []Cluster{
		{TigID: 1, FCoverage: 0.5, Errors: 1},
		{TigID: 2, FCoverage: 0.995, Errors: 5},
	}
	best, ok := Best(clusters)
	require.True(t, ok)
	assert.Equal(t, tig.ID(2), best.TigID)
}

func TestBestInTig(t *testing.T) {
	clusters := []Cluster{{TigID: 1}, {TigID: 2}}
	c, ok := BestInTig(clusters, 2)
	require.True(t, ok)
	assert.Equal(t, tig.ID(2), c.TigID)

	_, ok = BestInTig(clusters, 99)
	assert.False(t, ok)
}
