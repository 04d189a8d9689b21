package intervallist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeOverlapping(t *testing.T) {
	var l List
	l.Add(0, 50)
	l.Add(40, 60) // overlaps [0,50) -> merges to [0,100)
	l.Add(200, 10)

	merged := l.Merge()
	assert.Equal(t, []Interval{{Begin: 0, Length: 100}, {Begin: 200, Length: 10}}, merged)
}

func TestMergeAdjacentCoalesces(t *testing.T) {
	var l List
	l.Add(0, 50)
	l.Add(50, 50) // touches but does not overlap [0,50)
	merged := l.Merge()
	// Begin <= cur.End() means touching at the boundary does merge (half-open adjacency).
	assert.Equal(t, []Interval{{Begin: 0, Length: 100}}, merged)
}

func TestCoversSingleSpan(t *testing.T) {
	var l List
	l.Add(0, 60)
	l.Add(50, 50) // [0,60) + [50,100) -> [0,100)
	assert.True(t, l.CoversSingleSpan(100))

	var gappy List
	gappy.Add(0, 40)
	gappy.Add(60, 40)
	assert.False(t, gappy.CoversSingleSpan(100))
}

func TestGaps(t *testing.T) {
	var l List
	l.Add(10, 20) // [10,30)
	l.Add(60, 10) // [60,70)

	gaps := l.Gaps(100)
	assert.Equal(t, []Interval{
		{Begin: 0, Length: 10},
		{Begin: 30, Length: 30},
		{Begin: 70, Length: 30},
	}, gaps)
}

func TestGapsNoCoverage(t *testing.T) {
	var l List
	gaps := l.Gaps(50)
	assert.Equal(t, []Interval{{Begin: 0, Length: 50}}, gaps)
}

func TestDepth(t *testing.T) {
	var l List
	l.Add(0, 10)
	l.Add(5, 10) // overlaps [0,10) in [5,15)

	depth := l.Depth()
	// boundaries at 0 (depth 1), 5 (depth 2), 10 (depth 1), 15 (depth 0)
	assert.Equal(t, []Interval{
		{Begin: 0, Length: 1},
		{Begin: 5, Length: 2},
		{Begin: 10, Length: 1},
		{Begin: 15, Length: 0},
	}, depth)
}

func TestAddIgnoresNonPositiveLength(t *testing.T) {
	var l List
	l.Add(0, 0)
	l.Add(5, -10)
	assert.Equal(t, 0, l.Len())
}
