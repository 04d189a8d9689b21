package pipeline

import (
	"sort"

	"github.com/grailbio/base/log"

	"github.com/grailbio/bogart/bog"
	"github.com/grailbio/bogart/overlapstore"
	"github.com/grailbio/bogart/placement"
	"github.com/grailbio/bogart/readinfo"
	"github.com/grailbio/bogart/tig"
)

// joinCandidate is one proposed merge of two tigs at their facing free
// ends.
type joinCandidate struct {
	hostID         tig.ID
	targetID       tig.ID
	hostReadID     readinfo.ReadID
	hostThreePrime bool
	edge           bog.BestEdgeOverlap
	mergedLen      int32
}

// Join finds and applies facing-end merges between tigs. Disabled by
// default (Options.EnableJoin) per the project's decision that the merge
// path is rarely safe without the deeper repeat-detection machinery the
// rest of the assembler relies on for it.
func (c *Context) Join() {
	var candidates []joinCandidate
	for _, id := range c.tigSnapshot() {
		t := c.Tigs.Get(id)
		if t == nil {
			continue
		}
		first, last, ok := backboneEnds(t)
		if !ok {
			continue
		}
		if cand, ok := c.findJoinCandidate(t, first.ReadID, false); ok {
			candidates = append(candidates, cand)
		}
		if cand, ok := c.findJoinCandidate(t, last.ReadID, true); ok {
			candidates = append(candidates, cand)
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].mergedLen > candidates[j].mergedLen })

	for _, cand := range candidates {
		host := c.Tigs.Get(cand.hostID)
		target := c.Tigs.Get(cand.targetID)
		if host == nil || target == nil || host.ID() == target.ID() {
			c.Stats.JoinsAbandoned++
			continue
		}
		edge := c.BOG.BestEdge(readinfo.ReadEnd{ID: cand.hostReadID, ThreePrime: cand.hostThreePrime})
		if !edge.IsValid() || edge.Target.ID != cand.edge.Target.ID {
			c.Stats.JoinsAbandoned++
			continue
		}
		if c.applyJoin(host, target, cand.hostReadID, cand.hostThreePrime, edge) {
			log.Printf("pipeline: joined tig %d into tig %d", cand.targetID, cand.hostID)
			c.Stats.JoinsApplied++
		} else {
			c.Stats.JoinsAbandoned++
		}
	}
}

// findJoinCandidate checks whether hostReadID's best edge off its free
// end (hostThreePrime) reaches a compatible free end of a different tig's
// boundary read -- i.e. the target read's OWN free end, so the two tigs
// can be glued together rather than one edge just landing mid-tig.
func (c *Context) findJoinCandidate(host *tig.Tig, hostReadID readinfo.ReadID, hostThreePrime bool) (joinCandidate, bool) {
	edge := c.BOG.BestEdge(readinfo.ReadEnd{ID: hostReadID, ThreePrime: hostThreePrime})
	if !edge.IsValid() {
		return joinCandidate{}, false
	}
	targetID := c.Tigs.TigOf(edge.Target.ID)
	if targetID == tig.NilTig || targetID == host.ID() {
		return joinCandidate{}, false
	}
	target := c.Tigs.Get(targetID)
	if target == nil {
		return joinCandidate{}, false
	}
	tfirst, tlast, ok := backboneEnds(target)
	if !ok {
		return joinCandidate{}, false
	}
	compatible := (edge.Target.ID == tfirst.ReadID && !edge.Target.ThreePrime) ||
		(edge.Target.ID == tlast.ReadID && edge.Target.ThreePrime)
	if !compatible {
		return joinCandidate{}, false
	}
	back := c.BOG.BestEdge(readinfo.ReadEnd{ID: edge.Target.ID, ThreePrime: edge.Target.ThreePrime})
	if !back.IsValid() || back.Target.ID != hostReadID {
		return joinCandidate{}, false
	}
	return joinCandidate{
		hostID:         host.ID(),
		targetID:       targetID,
		hostReadID:     hostReadID,
		hostThreePrime: hostThreePrime,
		edge:           edge,
		mergedLen:      host.Length() + target.Length(),
	}, true
}

// applyJoin places the anchor read (the edge's target) against host using
// the shared hang arithmetic, reverse-complements target if the computed
// placement disagrees with the anchor's current orientation there, shifts
// every target read by the resulting offset, appends them all, and
// destroys target.
func (c *Context) applyJoin(host, target *tig.Tig, hostReadID readinfo.ReadID, hostThreePrime bool, edge bog.BestEdgeOverlap) bool {
	// View the edge's overlap from the anchor read's side (A = the read
	// being placed, B = the placed host read), matching
	// PositionFromOverlap's convention.
	ov := overlapstore.Overlap{
		A:       hostReadID,
		B:       edge.Target.ID,
		Flipped: hostThreePrime == edge.Target.ThreePrime,
		AHang:   edge.AHang,
		BHang:   edge.BHang,
	}.Flip()

	hostNode := host.RawPath()[c.Tigs.OrdinalOf(hostReadID)]
	anchorLen := int32(c.Reads.Length(edge.Target.ID))
	anchorPos, ok := placement.PositionFromOverlap(anchorLen, hostNode.Position, ov)
	if !ok {
		return false
	}

	anchorNode := target.RawPath()[c.Tigs.OrdinalOf(edge.Target.ID)]
	if anchorPos.Forward() != anchorNode.Position.Forward() {
		c.Tigs.ReverseComplement(target)
		anchorNode = target.RawPath()[c.Tigs.OrdinalOf(edge.Target.ID)]
	}
	delta := anchorPos.Begin - anchorNode.Position.Begin

	nodes := append([]tig.Node(nil), target.RawPath()...)
	c.Tigs.Destroy(target)
	for _, n := range nodes {
		n.Position.Begin += delta
		n.Position.End += delta
		if err := c.Tigs.Add(host, n, 0); err != nil {
			log.Printf("pipeline: joining read %d into tig %d: %v", n.ReadID, host.ID(), err)
		}
	}
	// A join at the host's 0-end lands incoming reads at negative
	// coordinates; reshift the merged layout once, then restore order.
	c.Tigs.Normalize(host)
	c.Tigs.Sort(host)
	return true
}
