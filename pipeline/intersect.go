package pipeline

import (
	"github.com/grailbio/base/log"

	"github.com/grailbio/bogart/readinfo"
	"github.com/grailbio/bogart/tig"
)

// intersectionPoint is a read inside some tig that an unconfirmed best
// edge lands on, plus which side of the read, in layout coordinates, the
// incoming chain attaches to.
type intersectionPoint struct {
	read   readinfo.ReadID
	before bool // the edge attaches on the read's low-coordinate side
}

// BreakIntersections examines every placed backbone read's best edges. An
// edge whose target sits in a different tig -- or in the same tig but
// without physically overlapping the source read in the layout -- is an
// unconfirmed intersection, recorded against the target read in the
// target's tig. Each tig is then broken at every intersection point that
// meets the evidence threshold and would split off at least MinBreakLength
// bases. Contained reads are dropped during the break and re-placed by the
// following PlaceContains pass.
func (c *Context) BreakIntersections() {
	c.Tigs.Each(func(t *tig.Tig) { c.Tigs.Sort(t) })

	incoming := map[tig.ID]map[intersectionPoint]int{}

	for id := readinfo.ReadID(1); int(id) <= c.Reads.NumReads(); id++ {
		if !readinfo.IsValid(c.Reads, id) || c.BOG.IsContained(id) || !c.Tigs.IsPlaced(id) {
			continue
		}
		myTigID := c.Tigs.TigOf(id)
		myTig := c.Tigs.Get(myTigID)
		if myTig == nil {
			continue
		}
		myNode := myTig.RawPath()[c.Tigs.OrdinalOf(id)]

		for _, threePrime := range [2]bool{false, true} {
			edge := c.BOG.BestEdge(readinfo.ReadEnd{ID: id, ThreePrime: threePrime})
			if !edge.IsValid() {
				continue
			}
			target := edge.Target.ID
			if target == id {
				log.Printf("pipeline: read %d has a direct self edge, ignoring", id)
				continue
			}
			tid := c.Tigs.TigOf(target)
			if tid == tig.NilTig {
				continue
			}
			t := c.Tigs.Get(tid)
			if t == nil {
				continue
			}
			targetNode := t.RawPath()[c.Tigs.OrdinalOf(target)]
			if tid == myTigID && positionsOverlap(myNode.Position, targetNode.Position) {
				// Confirmed: the edge is already accounted for in the layout.
				continue
			}
			pt := intersectionPoint{
				read: target,
				// A forward-placed target has its 5' end at the lower tig
				// coordinate; a reversed one has its 3' end there.
				before: edge.Target.ThreePrime != targetNode.Position.Forward(),
			}
			if incoming[tid] == nil {
				incoming[tid] = map[intersectionPoint]int{}
			}
			incoming[tid][pt]++
		}
	}

	for _, id := range c.tigSnapshot() {
		t := c.Tigs.Get(id)
		if t == nil {
			continue
		}
		if pts := incoming[id]; len(pts) > 0 {
			c.breakOneTig(t, pts)
		}
	}
}

func (c *Context) breakOneTig(t *tig.Tig, pts map[intersectionPoint]int) {
	breakBefore := map[readinfo.ReadID]bool{}
	breakAfter := map[readinfo.ReadID]bool{}
	for pt, evidence := range pts {
		if evidence < c.Opts.MinBreakEvidence {
			continue
		}
		if c.Tigs.TigOf(pt.read) != t.ID() {
			continue
		}
		node := t.RawPath()[c.Tigs.OrdinalOf(pt.read)]
		if breakLength(node.Position, t.Length()) < c.Opts.MinBreakLength {
			continue
		}
		if pt.before {
			breakBefore[pt.read] = true
		} else {
			breakAfter[pt.read] = true
		}
	}
	if len(breakBefore) == 0 && len(breakAfter) == 0 {
		return
	}

	var backbone []tig.Node
	for _, n := range t.Path() {
		if !n.IsContained() {
			backbone = append(backbone, n)
		}
	}
	if len(backbone) < 2 {
		return
	}

	// A read marked on both sides becomes a singleton group; one marked
	// before starts a new tig, one marked after ends the current tig.
	var groups [][]tig.Node
	var cur []tig.Node
	for _, n := range backbone {
		if breakBefore[n.ReadID] && len(cur) > 0 {
			groups = append(groups, cur)
			cur = nil
		}
		cur = append(cur, n)
		if breakAfter[n.ReadID] {
			groups = append(groups, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	if len(groups) <= 1 {
		return
	}

	log.Printf("pipeline: breaking tig %d into %d pieces at intersection points", t.ID(), len(groups))
	c.Tigs.Split(t, groups)
	c.Stats.IntersectionsBroken += len(groups) - 1
}

func positionsOverlap(a, b tig.Position) bool {
	return a.Min() < b.Max() && b.Min() < a.Max()
}

// breakLength estimates the length of tig fragment a break at pos would
// split off: the distance from pos to the nearer tig end.
func breakLength(pos tig.Position, tigLen int32) int32 {
	left := pos.Min()
	right := tigLen - pos.Max()
	if left < right {
		return left
	}
	return right
}
