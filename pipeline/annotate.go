package pipeline

import (
	"github.com/grailbio/bogart/readinfo"
	"github.com/grailbio/bogart/tig"
)

// ComputeParentHangAnnotations fills in the Parent/AHang/BHang annotation
// on any backbone node that doesn't already carry one -- notably reads
// copied across during a bubble pop, which moves positions only and
// explicitly skips propagating parent/hang. The annotation is derived
// from the final layout itself (each backbone
// read's parent becomes its immediate predecessor, with hangs reconstructed
// from the position delta) so every persisted tig has a usable consensus
// anchor chain regardless of which phase produced its current position.
func (c *Context) ComputeParentHangAnnotations() {
	c.Tigs.Each(func(t *tig.Tig) {
		path := t.Path()
		var prev *tig.Node
		for i := range path {
			n := &path[i]
			if n.IsContained() {
				continue
			}
			if n.Parent == readinfo.NilRead && prev != nil {
				n.Parent = prev.ReadID
				n.AHang = n.Position.Min() - prev.Position.Min()
				n.BHang = n.Position.Max() - prev.Position.Max()
			}
			prev = n
		}
	})
}
