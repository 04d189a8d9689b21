package pipeline

import (
	"github.com/grailbio/base/log"

	"github.com/grailbio/bogart/bog"
	"github.com/grailbio/bogart/overlapstore"
	"github.com/grailbio/bogart/placement"
	"github.com/grailbio/bogart/readinfo"
	"github.com/grailbio/bogart/tig"
)

// SeedAndPopulate seeds and populates unitigs in CG order, then sweeps
// all reads (ascending id, for a deterministic sweep order) for any still
// unplaced.
func (c *Context) SeedAndPopulate() {
	c.CG.Each(func(id readinfo.ReadID, _ uint32) {
		c.populateUnitig(id)
	})

	for id := readinfo.ReadID(1); int(id) <= c.Reads.NumReads(); id++ {
		if !readinfo.IsValid(c.Reads, id) {
			continue
		}
		if c.BOG.IsContained(id) {
			continue
		}
		c.populateUnitig(id)
	}

	if !c.Opts.DisallowSingletonPromotion {
		c.promoteUnplacedToSingletons()
	}
}

// populateUnitig seeds a new tig at id (if unplaced), then extends it in
// both directions by following best edges.
func (c *Context) populateUnitig(seed readinfo.ReadID) {
	if c.Tigs.IsPlaced(seed) {
		return
	}
	if c.BOG.IsContained(seed) || c.BOG.IsSuspicious(seed) {
		return
	}

	t := c.Tigs.New()
	length := int32(c.Reads.Length(seed))
	_ = c.Tigs.Add(t, tig.Node{ReadID: seed, Position: tig.Position{Begin: 0, End: length}}, 0)

	// Extend toward the 3' end, then the 5' end. If any reads were added
	// in the opposite (5') direction the whole tig is renormalized to
	// zero; c.extend already does this per-add via AddAndNormalize.
	c.extend(t, seed, true)
	c.extend(t, seed, false)

	c.Tigs.Sort(t)
	t.SetClass(tig.ClassContig)
}

// extend walks from the current end of t in one direction, following best
// edges, appending each newly discovered read until an edge is missing,
// points at an already-placed read (an intersection, logged and left for
// the break phase), or points at a suspicious/contained read.
func (c *Context) extend(t *tig.Tig, seed readinfo.ReadID, toward3p bool) {
	currentRead := seed
	currentThreePrime := toward3p

	for {
		// The end we extend FROM is the far end of the current backbone
		// read in the direction of travel.
		edge := c.BOG.BestEdge(readinfo.ReadEnd{ID: currentRead, ThreePrime: currentThreePrime})
		if !edge.IsValid() {
			return
		}
		target := edge.Target.ID
		if c.Tigs.IsPlaced(target) {
			log.Debug.Printf("populateUnitig: tig %d meets existing tig %d at read %d (intersection)",
				t.ID(), c.Tigs.TigOf(target), target)
			return
		}
		if c.BOG.IsSuspicious(target) || c.BOG.IsContained(target) {
			return
		}

		node, ok := c.placeAlongEdge(t, currentRead, currentThreePrime, edge)
		if !ok {
			return
		}
		if err := c.Tigs.AddAndNormalize(t, node); err != nil {
			log.Printf("populateUnitig: %v", err)
			return
		}

		// The walk always continues from the far end of the read just
		// placed -- the end opposite whichever end the edge attached to --
		// regardless of which direction the overall walk is going.
		currentRead = target
		currentThreePrime = !edge.Target.ThreePrime
	}
}

// placeAlongEdge computes the new node's position given the edge out of
// (currentRead, currentThreePrime). It reconstructs the underlying
// overlap (A = currentRead, matching how bog.Build recorded it) and
// reuses the same hang-to-position math as the containment placement
// engine, flipped to view it from the new read's side via
// overlapstore.Overlap.Flip.
func (c *Context) placeAlongEdge(t *tig.Tig, currentRead readinfo.ReadID, currentThreePrime bool, edge bog.BestEdgeOverlap) (tig.Node, bool) {
	ov := overlapstore.Overlap{
		A:       currentRead,
		B:       edge.Target.ID,
		Flipped: currentThreePrime == edge.Target.ThreePrime,
		AHang:   edge.AHang,
		BHang:   edge.BHang,
		Evalue:  edge.Evalue,
	}.Flip() // A = target (new), B = currentRead (already placed)

	ord := c.Tigs.OrdinalOf(currentRead)
	refNode := t.RawPath()[ord]

	targetLen := int32(c.Reads.Length(ov.A))
	pos, ok := placement.PositionFromOverlap(targetLen, refNode.Position, ov)
	if !ok {
		return tig.Node{}, false
	}

	return tig.Node{
		ReadID:   ov.A,
		Position: pos,
		Parent:   currentRead,
		AHang:    ov.AHang,
		BHang:    ov.BHang,
	}, true
}

// promoteUnplacedToSingletons seeds a one-read tig for every valid,
// non-contained read that SeedAndPopulate's passes never reached -- reads
// whose best edges all point at reads that were themselves rejected
// (suspicious, contained, or already claimed by another tig's walk before
// this one got to them). Corresponds to the CLI's "-DP" switch, which
// disables this and leaves such reads out of the tig store entirely.
func (c *Context) promoteUnplacedToSingletons() {
	for id := readinfo.ReadID(1); int(id) <= c.Reads.NumReads(); id++ {
		if !readinfo.IsValid(c.Reads, id) {
			continue
		}
		if c.BOG.IsContained(id) || c.Tigs.IsPlaced(id) {
			continue
		}

		t := c.Tigs.New()
		length := int32(c.Reads.Length(id))
		_ = c.Tigs.Add(t, tig.Node{ReadID: id, Position: tig.Position{Begin: 0, End: length}}, 0)
		t.SetClass(tig.ClassUnassembled)
		c.Stats.SingletonsSeeded++
	}
}
