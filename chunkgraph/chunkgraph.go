// Package chunkgraph provides a deterministic processing order over reads
// that favours reads on long best-edge chains, built from a three-case
// path-length traversal over the best-edge graph.
package chunkgraph

import (
	"sort"

	"github.com/grailbio/bogart/bog"
	"github.com/grailbio/bogart/readinfo"
)

type entry struct {
	id      readinfo.ReadID
	pathLen uint32
}

// Graph holds, for every read, the combined best-edge path length
// (path_length(5') + path_length(3')), sorted descending (ties: smaller id
// first).
type Graph struct {
	order []entry
	pos   map[readinfo.ReadID]int
}

func endIndex(e readinfo.ReadEnd) uint64 {
	v := uint64(e.ID) * 2
	if e.ThreePrime {
		v++
	}
	return v
}

func followEdge(g *bog.Graph, e readinfo.ReadEnd) readinfo.ReadEnd {
	edge := g.BestEdge(e)
	if !edge.IsValid() {
		return readinfo.ReadEnd{}
	}
	return readinfo.ReadEnd{ID: edge.Target.ID, ThreePrime: !edge.Target.ThreePrime}
}

// countFullWidth computes path_length(firstEnd), memoizing into
// endPathLen, and handles three termination cases: ran out of edges, hit
// an end with an already-known length, or discovered a cycle -- in which
// case every end in the cycle is set to the cycle's length.
func countFullWidth(g *bog.Graph, firstEnd readinfo.ReadEnd, endPathLen []uint32) uint32 {
	firstIdx := endIndex(firstEnd)
	if endPathLen[firstIdx] != 0 {
		return endPathLen[firstIdx]
	}

	var length uint32
	seen := map[uint64]bool{}
	lastEnd := firstEnd
	lastIdx := firstIdx

	for lastEnd.ID != readinfo.NilRead && endPathLen[lastIdx] == 0 {
		seen[lastIdx] = true
		length++
		endPathLen[lastIdx] = length
		lastEnd = followEdge(g, lastEnd)
		lastIdx = endIndex(lastEnd)
	}

	switch {
	case lastEnd.ID == readinfo.NilRead:
		// Case 1: ran out of overlaps. Nothing more to do.
	case !seen[lastIdx]:
		// Case 2: landed on an end with a known length, not part of this walk.
		length += endPathLen[lastIdx]
	default:
		// Case 3: landed back inside our own walk -- a cycle. Every end in
		// the cycle gets the cycle's length.
		cycleLen := length - endPathLen[lastIdx] + 1
		currEnd := lastEnd
		currIdx := lastIdx
		for {
			endPathLen[currIdx] = cycleLen
			currEnd = followEdge(g, currEnd)
			currIdx = endIndex(currEnd)
			if currEnd == lastEnd {
				break
			}
		}
	}

	// Second traversal: convert "path length from the start" into "path
	// length to the end", so the first end carries the full chain length.
	currEnd := firstEnd
	currIdx := firstIdx
	for currEnd != lastEnd {
		endPathLen[currIdx] = length
		length--
		currEnd = followEdge(g, currEnd)
		currIdx = endIndex(currEnd)
	}

	return endPathLen[firstIdx]
}

// Build computes the chunk graph order for every read. Contained and
// coverage-gap reads are skipped (their length is left at 0, so they sort
// last and never seed unitigs).
func Build(g *bog.Graph) *Graph {
	n := g.NumReads()
	endPathLen := make([]uint32, 2*n+2)

	order := make([]entry, 0, n+1)
	for id := readinfo.ReadID(1); int(id) <= n; id++ {
		if g.IsContained(id) || g.IsCoverageGap(id) {
			order = append(order, entry{id: id, pathLen: 0})
			continue
		}
		l5 := countFullWidth(g, readinfo.ReadEnd{ID: id, ThreePrime: false}, endPathLen)
		l3 := countFullWidth(g, readinfo.ReadEnd{ID: id, ThreePrime: true}, endPathLen)
		order = append(order, entry{id: id, pathLen: l5 + l3})
	}
	order = append(order, entry{id: readinfo.NilRead, pathLen: 0})

	sort.Slice(order, func(i, j int) bool {
		if order[i].pathLen != order[j].pathLen {
			return order[i].pathLen > order[j].pathLen
		}
		return order[i].id < order[j].id
	})

	pos := make(map[readinfo.ReadID]int, len(order))
	for i, e := range order {
		pos[e.id] = i
	}
	return &Graph{order: order, pos: pos}
}

// Len returns the number of entries, including the terminating null
// sentinel.
func (cg *Graph) Len() int { return len(cg.order) }

// At returns the ith read id and its combined path length in the iteration
// order. The null sentinel (id 0, length 0) sorts ahead of every other
// zero-length entry (contained and coverage-gap reads), so it is at index
// Len()-1 only when no read has length 0.
func (cg *Graph) At(i int) (readinfo.ReadID, uint32) {
	e := cg.order[i]
	return e.id, e.pathLen
}

// PathLength returns the combined path length previously computed for id.
func (cg *Graph) PathLength(id readinfo.ReadID) uint32 {
	if i, ok := cg.pos[id]; ok {
		return cg.order[i].pathLen
	}
	return 0
}

// Each iterates reads in descending chunk-length order, stopping at the
// null sentinel (id 0); the zero-length contained and coverage-gap reads
// sorted after it are not visited.
func (cg *Graph) Each(f func(id readinfo.ReadID, pathLen uint32)) {
	for _, e := range cg.order {
		if e.id == readinfo.NilRead {
			return
		}
		f(e.id, e.pathLen)
	}
}
