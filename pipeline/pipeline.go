// Package pipeline orchestrates the top-level phases of unitig
// construction: seed & populate, place contains, pop bubbles, break
// intersections, join, and split-discontinuous; persisting the result is
// left to the caller (cmd/bogart). It replaces the
// source's file-scope globals (OG/CG/FI/OC) with an explicit Context
// threaded through every phase function.
package pipeline

import (
	"github.com/grailbio/base/log"

	"github.com/grailbio/bogart/bog"
	"github.com/grailbio/bogart/chunkgraph"
	"github.com/grailbio/bogart/overlapstore"
	"github.com/grailbio/bogart/readinfo"
	"github.com/grailbio/bogart/tig"
)

// Options controls optional/parameterized pipeline behavior.
type Options struct {
	// DisallowSingletonPromotion corresponds to the CLI's "-DP": if set, a
	// read that never gets placed is left unplaced rather than becoming
	// its own singleton tig.
	DisallowSingletonPromotion bool

	// EnableJoin turns on the join phase. Disabled by default: the
	// source's merge path for join is dead code and only "append" is
	// exercised upstream.
	EnableJoin bool

	// MergeErate, if > 0, caps the error rate of overlaps consulted when
	// merging tigs (bubble popping); corresponds to the CLI's "-em".
	// Overlaps above the cap are ignored for merge placement even though
	// they passed the graph-construction threshold.
	MergeErate float64

	// BubbleSpanFraction rejects a bubble pop when any single read in the
	// candidate tig already covers at least this fraction of the
	// candidate's length -- such a read dominates the tig enough that it
	// isn't a genuine multi-read bubble.
	BubbleSpanFraction float64

	// MinOverlapForContinuity is the minimum required overlap between
	// adjacent ufpath entries before split-discontinuous calls it a gap.
	MinOverlapForContinuity int32

	// MinBreakEvidence / MinBreakLength are the intersection-break
	// thresholds.
	MinBreakEvidence int
	MinBreakLength   int32

	// MaxContainmentDepth caps containment chains; a read reaching the cap
	// is promoted to singleton and logged.
	MaxContainmentDepth uint32
}

// DefaultOptions returns the pipeline defaults used when the CLI doesn't
// override them.
func DefaultOptions() Options {
	return Options{
		BubbleSpanFraction:      0.9,
		MinOverlapForContinuity: 40,
		MinBreakEvidence:        1,
		MinBreakLength:          500,
		MaxContainmentDepth:     100,
	}
}

// Context is the explicit pipeline context threaded through every phase,
// holding immutable references to completed components (reads, overlaps,
// BOG, CG) and the one mutable component each phase transforms (the
// TigVector).
type Context struct {
	Reads    readinfo.Store
	Overlaps *overlapstore.Cache
	BOG      *bog.Graph
	CG       *chunkgraph.Graph
	Tigs     *tig.Vector
	Opts     Options

	Stats Stats
}

// Stats accumulates per-phase failure counts, surfaced as a summary at the
// end of the run. A non-zero failure count is reported but the run still
// emits the tig store it produced.
type Stats struct {
	SingletonsSeeded    int
	ContainsPlaced      int
	ContainsDeferred    int
	ContainsZombie      int
	BubblesPopped       int
	BubblesRejected     int
	IntersectionsBroken int
	JoinsApplied        int
	JoinsAbandoned      int
	DiscontinuitySplits int
	PlacementFailures   int
}

// NewContext builds a fresh pipeline context.
func NewContext(reads readinfo.Store, overlaps *overlapstore.Cache, g *bog.Graph, cg *chunkgraph.Graph, opts Options) *Context {
	return &Context{
		Reads:    reads,
		Overlaps: overlaps,
		BOG:      g,
		CG:       cg,
		Tigs:     tig.NewVector(reads.NumReads()),
		Opts:     opts,
	}
}

// Run executes the full top-level pipeline after the BOG and CG have been
// built (building those is the caller's responsibility -- they are
// themselves substantial phases with their own entry points in
// bog.Build/chunkgraph.Build).
func (c *Context) Run() {
	log.Printf("pipeline: seeding and populating unitigs")
	c.SeedAndPopulate()

	log.Printf("pipeline: placing contained reads (pass 1)")
	c.PlaceContains()

	log.Printf("pipeline: popping bubbles")
	c.PopIntersectionBubbles()
	c.PopOverlapBubbles()

	log.Printf("pipeline: breaking intersections")
	c.BreakIntersections()
	c.PlaceContains()

	if c.Opts.EnableJoin {
		log.Printf("pipeline: joining tigs")
		c.Join()
		c.PlaceContains()
	}

	log.Printf("pipeline: splitting discontinuous tigs")
	for pass := 0; pass < 3; pass++ {
		n := c.SplitDiscontinuous()
		c.MoveContains()
		if n == 0 {
			break
		}
	}

	c.ComputeParentHangAnnotations()

	log.Printf("pipeline: done. stats=%+v", c.Stats)
}
