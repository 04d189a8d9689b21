package pipeline

import (
	"github.com/grailbio/base/log"

	"github.com/grailbio/bogart/tig"
)

// SplitDiscontinuous walks each tig's backbone in layout order tracking
// the running maximum end coordinate; a read that overlaps that running
// maximum by less than MinOverlapForContinuity (or leaves a gap before it)
// splits the tig there. Contained reads are
// dropped during the split and left for the next PlaceContains/
// MoveContains pass. Returns the number of new tigs produced by splitting
// (0 means nothing changed).
func (c *Context) SplitDiscontinuous() int {
	created := 0
	for _, id := range c.tigSnapshot() {
		t := c.Tigs.Get(id)
		if t == nil {
			continue
		}
		created += c.splitOneTig(t)
	}
	return created
}

func (c *Context) splitOneTig(t *tig.Tig) int {
	var backbone []tig.Node
	for _, n := range t.Path() {
		if !n.IsContained() {
			backbone = append(backbone, n)
		}
	}
	if len(backbone) < 2 {
		return 0
	}

	var groups [][]tig.Node
	cur := []tig.Node{backbone[0]}
	runningMax := backbone[0].Position.Max()

	for _, n := range backbone[1:] {
		if n.Position.Min() > runningMax-c.Opts.MinOverlapForContinuity {
			groups = append(groups, cur)
			cur = nil
		}
		cur = append(cur, n)
		if m := n.Position.Max(); m > runningMax {
			runningMax = m
		}
	}
	groups = append(groups, cur)

	if len(groups) <= 1 {
		return 0
	}

	log.Printf("pipeline: splitting discontinuous tig %d into %d pieces", t.ID(), len(groups))
	c.Tigs.Split(t, groups)
	c.Stats.DiscontinuitySplits += len(groups) - 1
	return len(groups) - 1
}
