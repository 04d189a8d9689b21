package pipeline

import (
	"github.com/grailbio/base/log"

	"github.com/grailbio/bogart/overlapstore"
	"github.com/grailbio/bogart/placement"
	"github.com/grailbio/bogart/readinfo"
	"github.com/grailbio/bogart/tig"
)

// PopIntersectionBubbles applies the bubble-candidate definition literally:
// a short tig whose first and last non-contained read's best edge both
// land in the same larger tig.
func (c *Context) PopIntersectionBubbles() {
	for _, id := range c.tigSnapshot() {
		t := c.Tigs.Get(id)
		if t == nil {
			continue
		}
		first, last, ok := backboneEnds(t)
		if !ok {
			continue
		}

		e5 := c.BOG.BestEdge(readinfo.ReadEnd{ID: first.ReadID, ThreePrime: false})
		e3 := c.BOG.BestEdge(readinfo.ReadEnd{ID: last.ReadID, ThreePrime: true})
		if !e5.IsValid() || !e3.IsValid() {
			continue
		}
		hostA, hostB := c.Tigs.TigOf(e5.Target.ID), c.Tigs.TigOf(e3.Target.ID)
		if hostA == tig.NilTig || hostA != hostB || hostA == t.ID() {
			continue
		}
		host := c.Tigs.Get(hostA)
		if host == nil || host.Length() <= t.Length() {
			continue
		}

		c.attemptBubblePop(t, host)
	}
}

// PopOverlapBubbles is a second pass over whatever bubble-shaped tigs
// remain after PopIntersectionBubbles, this time finding the host via the
// placement engine directly instead of requiring BOG's best edges to
// point at it -- catches cases where the best-edge heuristic missed a
// merge that the raw overlap evidence still supports.
func (c *Context) PopOverlapBubbles() {
	for _, id := range c.tigSnapshot() {
		t := c.Tigs.Get(id)
		if t == nil {
			continue
		}
		first, _, ok := backboneEnds(t)
		if !ok {
			continue
		}

		clusters := placement.Place(c.Reads, c.Tigs, first.ReadID, c.mergeOverlaps(first.ReadID), placement.Options{})
		if len(clusters) == 0 {
			c.Stats.PlacementFailures++
			continue
		}
		var host *tig.Tig
		for _, cl := range clusters {
			if cl.TigID == t.ID() {
				continue
			}
			if cand := c.Tigs.Get(cl.TigID); cand != nil && cand.Length() > t.Length() {
				host = cand
				break
			}
		}
		if host == nil {
			continue
		}
		c.attemptBubblePop(t, host)
	}
}

func (c *Context) attemptBubblePop(candidate, host *tig.Tig) {
	if c.tryPopBubble(candidate, host) {
		log.Printf("pipeline: popped bubble tig %d into tig %d", candidate.ID(), host.ID())
		c.Stats.BubblesPopped++
	} else {
		c.Stats.BubblesRejected++
	}
}

// tryPopBubble checks the three merge conditions (orientation agreement,
// span consistency, and per-read placement agreement), using the placement
// engine restricted to host for every check.
func (c *Context) tryPopBubble(candidate, host *tig.Tig) bool {
	path := candidate.Path()
	first, last, ok := backboneEnds(candidate)
	if !ok {
		return false
	}

	opts := placement.Options{RestrictToTig: host.ID()}
	fc, ok1 := placement.BestInTig(placement.Place(c.Reads, c.Tigs, first.ReadID, c.mergeOverlaps(first.ReadID), opts), host.ID())
	lc, ok2 := placement.BestInTig(placement.Place(c.Reads, c.Tigs, last.ReadID, c.mergeOverlaps(last.ReadID), opts), host.ID())
	if !ok1 || !ok2 {
		return false
	}
	if fc.Forward != lc.Forward {
		return false // condition 2: endpoints must agree on orientation
	}

	lo, hi := fc.Position.Min(), fc.Position.Max()
	if m := lc.Position.Min(); m < lo {
		lo = m
	}
	if m := lc.Position.Max(); m > hi {
		hi = m
	}
	span := hi - lo
	candLen := candidate.Length()
	if candLen == 0 || float64(span) < 0.5*float64(candLen) || float64(span) > 2*float64(candLen) {
		return false // condition 1
	}

	window := span / 2
	winLo, winHi := lo-window, hi+window

	newNodes := make([]tig.Node, 0, len(path))
	orientation := fc.Forward
	for _, n := range path {
		if frac := c.Opts.BubbleSpanFraction; frac > 0 {
			if float64(c.Reads.Length(n.ReadID))/float64(candLen) >= frac {
				return false // a single read already accounts for most of the candidate; not a genuine bubble
			}
		}
		best, ok := placement.BestInTig(placement.Place(c.Reads, c.Tigs, n.ReadID, c.mergeOverlaps(n.ReadID), opts), host.ID())
		if !ok || best.FCoverage < 0.99 {
			return false
		}
		if best.Position.Min() < winLo || best.Position.Max() > winHi {
			return false
		}
		if best.Forward != orientation {
			return false // condition 3: single-orientation agreement
		}
		newNodes = append(newNodes, tig.Node{ReadID: n.ReadID, Position: best.Position})
	}

	// Every read placed consistently: adopt the placements (positions
	// only) into host and destroy the candidate.
	c.Tigs.Destroy(candidate)
	for _, n := range newNodes {
		_ = c.Tigs.Add(host, n, 0)
	}
	c.Tigs.Sort(host)
	return true
}

// mergeOverlaps returns id's cached overlaps, additionally capped at
// Options.MergeErate when one is configured.
func (c *Context) mergeOverlaps(id readinfo.ReadID) []overlapstore.Overlap {
	all := c.Overlaps.Overlaps(id)
	if c.Opts.MergeErate <= 0 {
		return all
	}
	kept := make([]overlapstore.Overlap, 0, len(all))
	for _, o := range all {
		if o.Erate() <= c.Opts.MergeErate {
			kept = append(kept, o)
		}
	}
	return kept
}

// backboneEnds returns the first and last non-contained reads of t's
// ufpath, in layout order.
func backboneEnds(t *tig.Tig) (first, last tig.Node, ok bool) {
	for _, n := range t.Path() {
		if n.IsContained() {
			continue
		}
		if !ok {
			first = n
		}
		last = n
		ok = true
	}
	return
}

// tigSnapshot returns the ids of all live tigs at the moment of the call,
// so a phase that destroys or creates tigs while iterating doesn't revisit
// or skip them unpredictably.
func (c *Context) tigSnapshot() []tig.ID {
	var ids []tig.ID
	c.Tigs.Each(func(t *tig.Tig) { ids = append(ids, t.ID()) })
	return ids
}
