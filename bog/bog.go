// Package bog implements the Best Overlap Graph: per read-end, the single
// best dovetail edge; per read, the single best containment. It also
// classifies reads (contained, suspicious, spur, lopsided, coverage-gap).
package bog

import (
	"sync"

	"github.com/dgryski/go-farm"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"

	"github.com/grailbio/bogart/intervallist"
	"github.com/grailbio/bogart/overlapstore"
	"github.com/grailbio/bogart/readinfo"
)

// StatusFlags is the bit-packed per-read status.
type StatusFlags uint16

const (
	Contained StatusFlags = 1 << iota
	Ignored               // suspicious read (detectSuspicious); never chosen as a best-edge target
	CoverageGap
	Lopsided5
	Lopsided3
	Backbone
	Spur
	Bubble
	Orphan
	Delinquent
)

func (f StatusFlags) Has(bit StatusFlags) bool { return f&bit != 0 }

// BestEdgeOverlap is the single best dovetail edge out of one read end. A
// zero Target.ID means "no edge".
type BestEdgeOverlap struct {
	Target readinfo.ReadEnd
	AHang  int32
	BHang  int32
	Evalue uint32
}

// IsValid reports whether this edge names a read (i.e. is not the zero
// value).
func (e BestEdgeOverlap) IsValid() bool { return e.Target.ID != readinfo.NilRead }

// BestContainment is the single best containment for a read, naming its
// container.
type BestContainment struct {
	Container       readinfo.ReadID
	SameOrientation bool
	AHang           int32
	BHang           int32
	IsContained     bool
}

// Options configures graph construction. GraphErate is a fraction in
// [0,1]; GraphErrorLimit is an absolute error-count ceiling recorded
// alongside it in checkpoints but not applied as an extra overlap filter.
type Options struct {
	GraphErate      float64
	GraphErrorLimit uint32

	EnableSpurRemoval        bool
	EnableLopsidedRemoval    bool
	EnableCoverageGapRemoval bool

	// WeakOverlapKeepFraction, if > 0, enables the weak-overlap removal
	// pass: per read end, the bottom (1-WeakOverlapKeepFraction) fraction
	// of overlaps by erate are dropped from the cache before scoring.
	WeakOverlapKeepFraction float64

	// MaxOverlapsPerEnd is not read by any construction pass: the scoring
	// passes consider every overlap that passes the quality filter,
	// whatever its value.
	MaxOverlapsPerEnd int
}

// Graph is the Best Overlap Graph for a set of reads.
type Graph struct {
	opts Options

	best5 []BestEdgeOverlap // indexed by ReadID
	best3 []BestEdgeOverlap
	cont  []BestContainment
	flags []StatusFlags

	best5score []uint64
	best3score []uint64
	contscore  []uint64

	numReads int

	failedReads int // reads for which no edge could be determined
}

// Best5 returns read id's best 5' edge.
func (g *Graph) Best5(id readinfo.ReadID) BestEdgeOverlap { return g.best5[id] }

// Best3 returns read id's best 3' edge.
func (g *Graph) Best3(id readinfo.ReadID) BestEdgeOverlap { return g.best3[id] }

// BestEdge returns the best edge off the given read end.
func (g *Graph) BestEdge(e readinfo.ReadEnd) BestEdgeOverlap {
	if e.ThreePrime {
		return g.best3[e.ID]
	}
	return g.best5[e.ID]
}

// Containment returns read id's best containment, if any.
func (g *Graph) Containment(id readinfo.ReadID) BestContainment { return g.cont[id] }

// Flags returns read id's status flags.
func (g *Graph) Flags(id readinfo.ReadID) StatusFlags { return g.flags[id] }

func (g *Graph) setFlag(id readinfo.ReadID, bit StatusFlags) { g.flags[id] |= bit }

// IsContained reports whether id has a best containment.
func (g *Graph) IsContained(id readinfo.ReadID) bool { return g.cont[id].IsContained }

// IsSuspicious reports whether id was flagged suspicious during
// construction (pass 1). Suspicious reads are never best-edge targets.
func (g *Graph) IsSuspicious(id readinfo.ReadID) bool { return g.flags[id].Has(Ignored) }

// IsCoverageGap reports whether id was flagged as a likely chimera.
func (g *Graph) IsCoverageGap(id readinfo.ReadID) bool { return g.flags[id].Has(CoverageGap) }

// IsSpur reports whether id was flagged a spur (best edge from only one
// end).
func (g *Graph) IsSpur(id readinfo.ReadID) bool { return g.flags[id].Has(Spur) }

// NumReads returns N.
func (g *Graph) NumReads() int { return g.numReads }

// FailedReads returns how many reads ended graph construction with no
// usable edge on either end (they become singletons during population).
func (g *Graph) FailedReads() int { return g.failedReads }

// scoreOverlap packs (length, MaxEvalue-evalue, MaxEvalue) into a single
// monotone integer: containments score purely on quality (their "length"
// is constant), and dovetails score on implied aligned length first,
// quality second. The composite is always > 0.
func scoreOverlap(o overlapstore.Overlap, aLen uint32) uint64 {
	const evalueBits = 17 // MaxEvalue = 1<<16, needs 17 bits to hold the difference+1
	corr := uint64(overlapstore.MaxEvalue-o.Evalue) << evalueBits
	orig := uint64(overlapstore.MaxEvalue)

	if o.IsContainment() {
		return corr | orig
	}

	var length int64
	if o.AHang > 0 {
		length = int64(aLen) - int64(o.AHang)
	} else {
		length = int64(aLen) + int64(o.BHang)
	}
	if length < 0 {
		length = 0
	}
	return (uint64(length) << (2 * evalueBits)) | corr | orig
}

// Build runs every construction pass and returns the resulting graph.
func Build(rs readinfo.Store, cache *overlapstore.Cache, opts Options) (*Graph, error) {
	n := rs.NumReads()
	g := &Graph{
		opts:       opts,
		best5:      make([]BestEdgeOverlap, n+1),
		best3:      make([]BestEdgeOverlap, n+1),
		cont:       make([]BestContainment, n+1),
		flags:      make([]StatusFlags, n+1),
		best5score: make([]uint64, n+1),
		best3score: make([]uint64, n+1),
		contscore:  make([]uint64, n+1),
		numReads:   n,
	}

	g.detectSuspicious(rs, cache)

	if opts.WeakOverlapKeepFraction > 0 && opts.WeakOverlapKeepFraction < 1 {
		g.removeWeakOverlaps(rs, cache)
	}

	g.scoreContainments(rs, cache, opts.GraphErate)
	g.scoreDovetails(rs, cache, opts.GraphErate)

	g.eraseMutualDoubleEdges()

	if opts.EnableSpurRemoval {
		g.removeSpurTargets(rs, cache, opts.GraphErate)
	}
	if opts.EnableLopsidedRemoval {
		g.detectLopsided(rs)
	}
	if opts.EnableCoverageGapRemoval {
		g.detectCoverageGaps(rs, cache)
	}

	g.clearContainedEdges()
	g.countFailures()

	return g, nil
}

// detectSuspicious builds an interval list of the aligned span implied by
// every quality-passing overlap on a read. A read is verified if it has a
// containing overlap, or if the spans merge into exactly one interval; any
// other read -- split coverage, or no usable overlaps at all -- is flagged
// suspicious (stored as the Ignored bit, which doubles as "exclude from
// best-edge targeting"). Isolated reads end up here too; they fall
// through to singleton promotion during population.
func (g *Graph) detectSuspicious(rs readinfo.Store, cache *overlapstore.Cache) {
	var mu sync.Mutex
	n := rs.NumReads()
	blockSize := n/99 + 1
	_ = traverse.Each(numBlocks(n, blockSize), func(block int) error {
		lo := block*blockSize + 1
		hi := lo + blockSize
		if hi > n+1 {
			hi = n + 1
		}
		for id := readinfo.ReadID(lo); int(id) < hi; id++ {
			if !readinfo.IsValid(rs, id) {
				continue
			}
			var il intervallist.List
			verified := false
			aLen := int32(rs.Length(id))
			for _, o := range cache.Overlaps(id) {
				if overlapstore.IsBadQuality(rs, o, g.opts.GraphErate) {
					continue
				}
				switch o.Classify() {
				case overlapstore.KindBContainsA:
					verified = true
				case overlapstore.KindAContainsB:
					il.Add(o.AHang, aLen+o.BHang-o.AHang)
				case overlapstore.KindDovetail5:
					il.Add(0, aLen+o.BHang)
				case overlapstore.KindDovetail3:
					il.Add(o.AHang, aLen-o.AHang)
				}
				if verified {
					break
				}
			}
			if !verified {
				verified = len(il.Merge()) == 1
			}
			if !verified {
				mu.Lock()
				g.setFlag(id, Ignored)
				mu.Unlock()
			}
		}
		return nil
	})
}

func numBlocks(n, blockSize int) int {
	if n == 0 {
		return 0
	}
	return (n + blockSize - 1) / blockSize
}

// removeWeakOverlaps sorts each read's overlaps by erate and drops the
// bottom (1-keepFraction) fraction.
func (g *Graph) removeWeakOverlaps(rs readinfo.Store, cache *overlapstore.Cache) {
	for id := readinfo.ReadID(1); int(id) <= rs.NumReads(); id++ {
		overlaps := cache.Overlaps(id)
		if len(overlaps) < 4 {
			continue
		}
		order := make([]int, len(overlaps))
		for i := range order {
			order[i] = i
		}
		sortByErateDesc(overlaps, order)
		keep := int(float64(len(order)) * g.opts.WeakOverlapKeepFraction)
		drop := make(map[int]bool)
		for _, idx := range order[:len(order)-keep] {
			drop[idx] = true
		}
		cache.DropWeak(id, drop)
	}
}

func sortByErateDesc(overlaps []overlapstore.Overlap, order []int) {
	// insertion sort is fine: per-read overlap counts are small (tens to
	// low hundreds), and this runs once per read.
	for i := 1; i < len(order); i++ {
		j := i
		for j > 0 && overlaps[order[j-1]].Erate() < overlaps[order[j]].Erate() {
			order[j-1], order[j] = order[j], order[j-1]
			j--
		}
	}
}

// scoreContainments scans every read's overlaps for containments and
// offers each one as a candidate container.
func (g *Graph) scoreContainments(rs readinfo.Store, cache *overlapstore.Cache, graphErate float64) {
	for a := readinfo.ReadID(1); int(a) <= rs.NumReads(); a++ {
		for _, o := range cache.Overlaps(a) {
			if overlapstore.IsBadQuality(rs, o, graphErate) {
				continue
			}
			if o.Classify() != overlapstore.KindAContainsB {
				continue
			}
			g.offerContainment(o, rs.Length(o.A))
		}
	}
}

func (g *Graph) offerContainment(o overlapstore.Overlap, aLen uint32) {
	score := scoreOverlap(o, aLen)
	b := o.B
	better := score > g.contscore[b]
	if score == g.contscore[b] && score != 0 {
		// Exact symmetric containment: smaller id wins as container.
		better = o.A < g.cont[b].Container
	}
	if !better {
		return
	}
	g.contscore[b] = score
	g.cont[b] = BestContainment{
		Container:       o.A,
		SameOrientation: !o.Flipped,
		AHang:           o.AHang,
		BHang:           o.BHang,
		IsContained:     true,
	}
}

// scoreDovetails scans every non-contained, non-suspicious read's
// overlaps for dovetails and offers each one as a best-edge candidate.
func (g *Graph) scoreDovetails(rs readinfo.Store, cache *overlapstore.Cache, graphErate float64) {
	for a := readinfo.ReadID(1); int(a) <= rs.NumReads(); a++ {
		if g.IsContained(a) || g.IsSuspicious(a) {
			continue
		}
		for _, o := range cache.Overlaps(a) {
			if overlapstore.IsBadQuality(rs, o, graphErate) {
				continue
			}
			if o.IsContainment() {
				continue
			}
			if g.IsContained(o.B) || g.IsSuspicious(o.B) {
				continue
			}
			g.offerDovetail(o, rs.Length(a))
		}
	}
}

func (g *Graph) offerDovetail(o overlapstore.Overlap, aLen uint32) {
	score := scoreOverlap(o, aLen)
	threePrime := o.Classify() == overlapstore.KindDovetail3
	var scores []uint64
	var edges []BestEdgeOverlap
	if threePrime {
		scores, edges = g.best3score, g.best3
	} else {
		scores, edges = g.best5score, g.best5
	}
	if score <= scores[o.A] {
		return
	}
	scores[o.A] = score
	edges[o.A] = BestEdgeOverlap{
		Target: readinfo.ReadEnd{ID: o.B, ThreePrime: o.Flipped == threePrime},
		AHang:  o.AHang,
		BHang:  o.BHang,
		Evalue: o.Evalue,
	}
}

// eraseMutualDoubleEdges detects a contradictory shape: a read with best
// edges to the same partner from both of its own ends, which is erased
// from both sides. Pairs are keyed with farm.Hash64WithSeed for a cheap,
// collision-resistant scratch set.
func (g *Graph) eraseMutualDoubleEdges() {
	reported := make(map[uint64]bool)
	for id := readinfo.ReadID(1); int(id) <= g.numReads; id++ {
		b5, b3 := g.best5[id], g.best3[id]
		if !b5.IsValid() || !b3.IsValid() {
			continue
		}
		if b5.Target.ID != b3.Target.ID {
			continue
		}
		// The pair (id, target) is unordered: if the partner has the same
		// contradiction pointing back at id, only log it once.
		key := pairKey(id, b5.Target.ID)
		if !reported[key] {
			reported[key] = true
			log.Printf("bog: read %d has best edges to %d from both ends, erasing both", id, b5.Target.ID)
		}
		g.best5[id] = BestEdgeOverlap{}
		g.best3[id] = BestEdgeOverlap{}
		g.best5score[id] = 0
		g.best3score[id] = 0
	}
}

// pairKey hashes an unordered pair of read ids with farm so the anomaly
// dedupe set above doesn't care which read was visited first.
func pairKey(a, b readinfo.ReadID) uint64 {
	if a > b {
		a, b = b, a
	}
	buf := make([]byte, 8)
	buf[0] = byte(a)
	buf[1] = byte(a >> 8)
	buf[2] = byte(a >> 16)
	buf[3] = byte(a >> 24)
	buf[4] = byte(b)
	buf[5] = byte(b >> 8)
	buf[6] = byte(b >> 16)
	buf[7] = byte(b >> 24)
	return farm.Hash64WithSeed(buf, 0)
}

// removeSpurTargets identifies spurs -- a read with a best edge from only
// one of its two ends -- then rebuilds every best edge disallowing
// targets into a spur.
func (g *Graph) removeSpurTargets(rs readinfo.Store, cache *overlapstore.Cache, graphErate float64) {
	spurs := map[readinfo.ReadID]bool{}
	for id := readinfo.ReadID(1); int(id) <= g.numReads; id++ {
		if g.IsContained(id) || g.IsSuspicious(id) {
			continue
		}
		has5 := g.best5[id].IsValid()
		has3 := g.best3[id].IsValid()
		if has5 != has3 {
			spurs[id] = true
			g.setFlag(id, Spur)
		}
	}
	if len(spurs) == 0 {
		return
	}
	for i := range g.best5 {
		g.best5[i] = BestEdgeOverlap{}
		g.best3[i] = BestEdgeOverlap{}
		g.best5score[i] = 0
		g.best3score[i] = 0
	}
	for a := readinfo.ReadID(1); int(a) <= rs.NumReads(); a++ {
		if g.IsContained(a) || g.IsSuspicious(a) {
			continue
		}
		for _, o := range cache.Overlaps(a) {
			if overlapstore.IsBadQuality(rs, o, graphErate) || o.IsContainment() {
				continue
			}
			if g.IsContained(o.B) || g.IsSuspicious(o.B) || spurs[o.B] {
				continue
			}
			g.offerDovetail(o, rs.Length(a))
		}
	}
}

// detectLopsided flags reads whose two best edges imply grossly
// inconsistent aligned lengths: the 5' edge aligns [0, aLen+b_hang), the
// 3' edge aligns [a_hang, aLen), and one being less than a third of the
// other marks the shorter side lopsided.
func (g *Graph) detectLopsided(rs readinfo.Store) {
	for id := readinfo.ReadID(1); int(id) <= g.numReads; id++ {
		b5, b3 := g.best5[id], g.best3[id]
		if !b5.IsValid() || !b3.IsValid() {
			continue
		}
		aLen := int32(rs.Length(id))
		l5 := aLen + b5.BHang
		l3 := aLen - b3.AHang
		if l5 <= 0 || l3 <= 0 {
			continue
		}
		ratio := float64(l5) / float64(l3)
		if ratio < 1.0/3 {
			g.setFlag(id, Lopsided5)
		} else if ratio > 3 {
			g.setFlag(id, Lopsided3)
		}
	}
}

// detectCoverageGaps flags a read as a likely chimera when its
// quality-passing overlaps leave an internal gap that an unbroken overlap
// set could not produce.
func (g *Graph) detectCoverageGaps(rs readinfo.Store, cache *overlapstore.Cache) {
	for id := readinfo.ReadID(1); int(id) <= g.numReads; id++ {
		if g.IsContained(id) {
			continue
		}
		aLen := int32(rs.Length(id))
		if aLen == 0 {
			continue
		}
		var il intervallist.List
		for _, o := range cache.Overlaps(id) {
			if overlapstore.IsBadQuality(rs, o, g.opts.GraphErate) {
				continue
			}
			switch o.Classify() {
			case overlapstore.KindAContainsB:
				il.Add(o.AHang, aLen+o.BHang-o.AHang)
			case overlapstore.KindDovetail5:
				il.Add(0, aLen+o.BHang)
			case overlapstore.KindDovetail3:
				il.Add(o.AHang, aLen-o.AHang)
			}
		}
		gaps := il.Gaps(aLen)
		for _, gap := range gaps {
			// A gap strictly inside the read (not touching either end) with
			// no bridging overlap indicates a chimeric join point.
			if gap.Begin > 0 && gap.End() < aLen {
				g.setFlag(id, CoverageGap)
				break
			}
		}
	}
}

// clearContainedEdges zeroes both BestEdgeOverlaps for every contained
// read, as a final cleanup pass.
func (g *Graph) clearContainedEdges() {
	for id := readinfo.ReadID(1); int(id) <= g.numReads; id++ {
		if g.IsContained(id) {
			g.best5[id] = BestEdgeOverlap{}
			g.best3[id] = BestEdgeOverlap{}
			g.setFlag(id, Contained)
		}
	}
}

func (g *Graph) countFailures() {
	n := 0
	for id := readinfo.ReadID(1); int(id) <= g.numReads; id++ {
		if g.IsContained(id) {
			continue
		}
		if !g.best5[id].IsValid() && !g.best3[id].IsValid() {
			n++
		}
	}
	g.failedReads = n
	if n > 0 {
		log.Printf("bog: %d reads have no best edge on either end; they will be seeded as singletons", n)
	}
}
