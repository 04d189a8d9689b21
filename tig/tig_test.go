package tig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/bogart/readinfo"
)

func TestAddAndInvariants(t *testing.T) {
	v := NewVector(3)
	tg := v.New()

	require.NoError(t, v.Add(tg, Node{ReadID: 1, Position: Position{Begin: 0, End: 100}}, 0))
	require.NoError(t, v.Add(tg, Node{ReadID: 2, Position: Position{Begin: 30, End: 130}}, 0))

	v.Sort(tg)
	require.NoError(t, v.CheckInvariants())

	assert.Equal(t, ID(1), v.TigOf(1))
	assert.Equal(t, ID(1), v.TigOf(2))
	assert.Equal(t, int32(130), tg.Length())
}

func TestAddRejectsDoublePlacement(t *testing.T) {
	v := NewVector(2)
	a := v.New()
	b := v.New()
	require.NoError(t, v.Add(a, Node{ReadID: 1, Position: Position{Begin: 0, End: 10}}, 0))
	err := v.Add(b, Node{ReadID: 1, Position: Position{Begin: 0, End: 10}}, 0)
	assert.Error(t, err)
}

func TestAddRejectsNullRead(t *testing.T) {
	v := NewVector(1)
	tg := v.New()
	err := v.Add(tg, Node{ReadID: readinfo.NilRead}, 0)
	assert.Error(t, err)
}

func TestNormalizeToZeroOnNegativePlacement(t *testing.T) {
	v := NewVector(2)
	tg := v.New()
	require.NoError(t, v.Add(tg, Node{ReadID: 1, Position: Position{Begin: 0, End: 100}}, 0))
	require.NoError(t, v.AddAndNormalize(tg, Node{ReadID: 2, Position: Position{Begin: -20, End: 80}}))

	require.NoError(t, v.CheckInvariants())
	// After normalizing, read 1 should have shifted by +20.
	var n1, n2 Node
	for _, n := range tg.RawPath() {
		switch n.ReadID {
		case 1:
			n1 = n
		case 2:
			n2 = n
		}
	}
	assert.Equal(t, Position{Begin: 20, End: 120}, n1.Position)
	assert.Equal(t, Position{Begin: 0, End: 100}, n2.Position)
	assert.Equal(t, int32(120), tg.Length())
}

func TestReverseComplementTwiceRestoresOriginal(t *testing.T) {
	v := NewVector(3)
	tg := v.New()
	require.NoError(t, v.Add(tg, Node{ReadID: 1, Position: Position{Begin: 0, End: 100}}, 0))
	require.NoError(t, v.Add(tg, Node{ReadID: 2, Position: Position{Begin: 30, End: 130}, AHang: 5, BHang: -5}, 0))
	v.Sort(tg)

	before := append([]Node(nil), tg.Path()...)

	v.ReverseComplement(tg)
	v.ReverseComplement(tg)
	v.Sort(tg)

	after := tg.Path()
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].Position, after[i].Position)
		assert.Equal(t, before[i].AHang, after[i].AHang)
		assert.Equal(t, before[i].BHang, after[i].BHang)
	}
}

func TestRemoveClearsIndex(t *testing.T) {
	v := NewVector(2)
	tg := v.New()
	require.NoError(t, v.Add(tg, Node{ReadID: 1, Position: Position{Begin: 0, End: 100}}, 0))
	require.NoError(t, v.Add(tg, Node{ReadID: 2, Position: Position{Begin: 10, End: 110}}, 0))
	v.Sort(tg)

	v.Remove(2)
	assert.False(t, v.IsPlaced(2))
	assert.Equal(t, 1, tg.NumReads())
	require.NoError(t, v.CheckInvariants())
}

func TestSplitTransfersOwnership(t *testing.T) {
	v := NewVector(4)
	tg := v.New()
	nodes := []Node{
		{ReadID: 1, Position: Position{Begin: 0, End: 100}},
		{ReadID: 2, Position: Position{Begin: 30, End: 130}},
		{ReadID: 3, Position: Position{Begin: 500, End: 600}},
		{ReadID: 4, Position: Position{Begin: 530, End: 630}},
	}
	for _, n := range nodes {
		require.NoError(t, v.Add(tg, n, 0))
	}
	v.Sort(tg)

	groups := [][]Node{{nodes[0], nodes[1]}, {nodes[2], nodes[3]}}
	newTigs := v.Split(tg, groups)

	require.Len(t, newTigs, 2)
	assert.True(t, tg.Deleted())
	assert.Nil(t, v.Get(tg.ID()), "destroyed tig no longer resolvable via Get")

	assert.Equal(t, newTigs[0].ID(), v.TigOf(1))
	assert.Equal(t, newTigs[0].ID(), v.TigOf(2))
	assert.Equal(t, newTigs[1].ID(), v.TigOf(3))
	assert.Equal(t, newTigs[1].ID(), v.TigOf(4))

	// The second group's positions were normalized to start at 0.
	assert.Equal(t, int32(0), newTigs[1].Path()[0].Position.Min())

	require.NoError(t, v.CheckInvariants())
}

func TestSortOrdersContainedAfterBackboneAtSameOffset(t *testing.T) {
	v := NewVector(2)
	tg := v.New()
	require.NoError(t, v.Add(tg, Node{ReadID: 1, Position: Position{Begin: 0, End: 100}}, 0))
	require.NoError(t, v.Add(tg, Node{ReadID: 2, Position: Position{Begin: 0, End: 50}, Contained: 1}, 0))
	v.Sort(tg)

	path := tg.Path()
	require.Len(t, path, 2)
	assert.Equal(t, readinfo.ReadID(1), path[0].ReadID, "backbone read sorts before its contain at the same offset")
	assert.Equal(t, readinfo.ReadID(2), path[1].ReadID)
}

func TestLoadReconstructsFromPayload(t *testing.T) {
	v := NewVector(2)
	nodes := []Node{
		{ReadID: 1, Position: Position{Begin: 0, End: 100}},
		{ReadID: 2, Position: Position{Begin: 30, End: 130}},
	}
	tg := v.Load(5, ClassContig, SuggestRepeat, nodes)
	assert.Equal(t, ID(5), tg.ID())
	assert.Equal(t, ClassContig, tg.Class())
	assert.Equal(t, SuggestRepeat, tg.Suggest())
	assert.Equal(t, int32(130), tg.Length())
	assert.Equal(t, ID(5), v.TigOf(1))
	assert.Equal(t, ID(6), v.nextID, "Load bumps nextID past the loaded id")
}
