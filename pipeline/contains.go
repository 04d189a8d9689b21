package pipeline

import (
	"github.com/grailbio/base/log"

	"github.com/grailbio/bogart/overlapstore"
	"github.com/grailbio/bogart/placement"
	"github.com/grailbio/bogart/readinfo"
	"github.com/grailbio/bogart/tig"
)

// PlaceContains places every contained read directly under its
// BOG-assigned container. Containment can nest (a
// contained read's container can itself be contained), so this runs in
// passes until a pass places nothing new. A read whose containment chain
// never resolves to a placed backbone -- the containers form a cycle, or
// the chain exceeds MaxContainmentDepth -- is a zombie: counted, logged,
// and promoted to its own singleton tig unless singleton promotion is
// disallowed.
func (c *Context) PlaceContains() {
	for pass := uint32(0); pass < c.Opts.MaxContainmentDepth; pass++ {
		progressed := 0
		for id := readinfo.ReadID(1); int(id) <= c.Reads.NumReads(); id++ {
			if !readinfo.IsValid(c.Reads, id) || !c.BOG.IsContained(id) || c.Tigs.IsPlaced(id) {
				continue
			}
			if c.placeOneContain(id) {
				progressed++
			}
		}
		if progressed == 0 {
			break
		}
	}

	for id := readinfo.ReadID(1); int(id) <= c.Reads.NumReads(); id++ {
		if !readinfo.IsValid(c.Reads, id) || !c.BOG.IsContained(id) || c.Tigs.IsPlaced(id) {
			continue
		}
		c.Stats.ContainsZombie++
		if c.Opts.DisallowSingletonPromotion {
			log.Printf("pipeline: read %d's containment chain never resolved to a backbone, leaving unplaced", id)
			continue
		}
		log.Printf("pipeline: read %d's containment chain never resolved to a backbone, promoting to singleton", id)
		t := c.Tigs.New()
		length := int32(c.Reads.Length(id))
		_ = c.Tigs.Add(t, tig.Node{ReadID: id, Position: tig.Position{Begin: 0, End: length}}, 0)
		t.SetClass(tig.ClassUnassembled)
	}
}

// placeOneContain places a single contained read against its container,
// which must already be placed (directly or itself as a contained read of
// a read placed in an earlier pass). Returns false if the container isn't
// placed yet, or if the containment depth exceeds MaxContainmentDepth.
func (c *Context) placeOneContain(id readinfo.ReadID) bool {
	bc := c.BOG.Containment(id)
	containerTigID := c.Tigs.TigOf(bc.Container)
	if containerTigID == tig.NilTig {
		return false
	}
	t := c.Tigs.Get(containerTigID)
	if t == nil {
		return false
	}
	containerOrd := c.Tigs.OrdinalOf(bc.Container)
	containerNode := t.RawPath()[containerOrd]

	depth := uint32(1)
	if containerNode.IsContained() {
		depth = containerNode.ContainmentDepth + 1
	}
	if depth > c.Opts.MaxContainmentDepth {
		return false
	}

	// bc's hangs were recorded from the container's perspective
	// (BOG.offerContainment: A=container, B=id); flip to view them from
	// the read being placed, matching PositionFromOverlap's (A=new,
	// B=reference) convention.
	ov := overlapstore.Overlap{
		A:       bc.Container,
		B:       id,
		Flipped: !bc.SameOrientation,
		AHang:   bc.AHang,
		BHang:   bc.BHang,
	}.Flip()

	pos, _ := placement.PositionFromOverlap(int32(c.Reads.Length(id)), containerNode.Position, ov)

	node := tig.Node{
		ReadID:           id,
		Position:         pos,
		Parent:           bc.Container,
		AHang:            bc.AHang,
		BHang:            bc.BHang,
		Contained:        bc.Container,
		ContainmentDepth: depth,
	}
	if err := c.Tigs.Add(t, node, 0); err != nil {
		log.Debug.Printf("pipeline: placing contained read %d under %d: %v", id, bc.Container, err)
		return false
	}
	c.Stats.ContainsPlaced++
	return true
}

// MoveContains is the re-placement step: after a backbone-changing phase
// (split-discontinuous moves reads between tigs),
// every contained read's position relative to its container may be stale,
// so all of them are pulled out and placed again from scratch via
// PlaceContains.
func (c *Context) MoveContains() {
	var toMove []readinfo.ReadID
	for id := readinfo.ReadID(1); int(id) <= c.Reads.NumReads(); id++ {
		if c.BOG.IsContained(id) && c.Tigs.IsPlaced(id) {
			toMove = append(toMove, id)
		}
	}
	for _, id := range toMove {
		c.Tigs.Remove(id)
	}
	c.PlaceContains()
}
