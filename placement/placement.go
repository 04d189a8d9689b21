// Package placement implements placeFragUsingOverlaps: given an unplaced
// read, compute every candidate placement implied by its overlaps to
// already-placed reads, cluster placements that agree, and score each
// cluster.
package placement

import (
	"math"
	"sort"

	"github.com/grailbio/base/log"

	"github.com/grailbio/bogart/intervallist"
	"github.com/grailbio/bogart/overlapstore"
	"github.com/grailbio/bogart/readinfo"
	"github.com/grailbio/bogart/tig"
)

// rawPlacement is a single overlap's implied placement, before
// clustering.
type rawPlacement struct {
	tigID         tig.ID
	begin, end    int32 // verified_begin/end in tig coordinates (forward: begin<end)
	forward       bool
	alignedLength uint32
	errors        float64
	reference     readinfo.ReadID
}

// Cluster is a consolidated candidate placement for a read within one tig.
type Cluster struct {
	TigID         tig.ID
	Position      tig.Position
	Forward       bool
	VerifiedBegin int32
	VerifiedEnd   int32
	FCoverage     float64
	AlignedLength uint32
	Errors        float64
	StdDevBegin   float64
	StdDevEnd     float64
	NumMembers    int

	meanBegin float64
	meanEnd   float64
}

// slop returns the clustering tolerance for a read of the given length:
// at least 5 bases, else 7.5% of the read length.
func slop(readLen uint32) int32 {
	s := int32(float64(readLen) * 0.075)
	if s < 5 {
		s = 5
	}
	return s
}

// PositionFromOverlap computes where read A lands in tig coordinates given
// an overlap to read B, whose current placement is bPos, using the usual
// hang conventions: in the shared (unflipped) alignment frame where A
// occupies [0, aLen), B's aligned span is [a_hang, aLen+b_hang).
// This holds uniformly across all four overlap kinds -- containment is
// just the case where that span happens to fall inside, or swallow,
// [0, aLen) -- so the same formula inverts to place A against a known B
// without branching on Classify(). B's Position encodes B's own
// read-local-0 -> tig coordinate mapping (Begin) and read-local-length ->
// tig coordinate mapping (End); the returned Position uses the same
// convention for A. This is the one place hang-to-position arithmetic is
// implemented; both the placement engine and the unitig edge walk go
// through it.
func PositionFromOverlap(aLen int32, bPos tig.Position, o overlapstore.Overlap) (pos tig.Position, ok bool) {
	bSign := int32(1)
	if !bPos.Forward() {
		bSign = -1
	}
	tigCoord := func(localOnB int32) int32 { return bPos.Begin + bSign*localOnB }

	// B-local coordinate of A's local-0 and local-aLen, inverting
	// bBegin=a_hang, bEnd=aLen+b_hang (or their reverse-complement swap
	// when Flipped).
	var pAt0, pAtLen int32
	if !o.Flipped {
		pAt0 = -o.AHang
		pAtLen = aLen - o.AHang
	} else {
		pAt0 = aLen + o.BHang
		pAtLen = o.BHang
	}

	return tig.Position{Begin: tigCoord(pAt0), End: tigCoord(pAtLen)}, true
}

// computeRaw turns one overlap (read A = the unplaced read, read B =
// already placed) into zero or one rawPlacement.
func computeRaw(rs readinfo.Store, tv *tig.Vector, aID readinfo.ReadID, o overlapstore.Overlap) (rawPlacement, bool) {
	bID := o.B
	tigID := tv.TigOf(bID)
	if tigID == tig.NilTig {
		return rawPlacement{}, false
	}
	t := tv.Get(tigID)
	if t == nil {
		return rawPlacement{}, false
	}
	ord := tv.OrdinalOf(bID)
	bNode := t.RawPath()[ord]
	bPos := bNode.Position

	aLen := int32(rs.Length(aID))

	pos, ok := PositionFromOverlap(aLen, bPos, o)
	if !ok {
		return rawPlacement{}, false
	}
	lo, hi := pos.Min(), pos.Max()
	if lo < 0 || hi > t.Length() {
		return rawPlacement{}, false
	}

	return rawPlacement{
		tigID:         tigID,
		begin:         lo,
		end:           hi,
		forward:       pos.Forward(),
		alignedLength: o.Length(uint32(rs.Length(o.A))),
		errors:        float64(o.Length(uint32(rs.Length(o.A)))) * o.Erate(),
		reference:     bID,
	}, true
}

// Options configures the placement engine.
type Options struct {
	// RestrictToTig, if non-zero, only considers placements within this
	// tig (used by bubble pop and repeat reconstruction).
	RestrictToTig tig.ID
	// MaxStdDevFraction bounds the begin/end std-dev filter; 0 disables
	// the filter.
	MaxStdDevFraction float64
}

// Place computes every clustered candidate for read aID against the
// overlaps given (already filtered to quality), and returns them sorted
// best-first (lowest errors, highest fCoverage).
func Place(rs readinfo.Store, tv *tig.Vector, aID readinfo.ReadID, overlaps []overlapstore.Overlap, opts Options) []Cluster {
	var raws []rawPlacement
	for _, o := range overlaps {
		if o.A != aID {
			o = o.Flip()
			if o.A != aID {
				continue
			}
		}
		if tv.TigOf(o.B) == tig.NilTig {
			continue
		}
		if opts.RestrictToTig != 0 && tv.TigOf(o.B) != opts.RestrictToTig {
			continue
		}
		rp, ok := computeRaw(rs, tv, aID, o)
		if ok {
			raws = append(raws, rp)
		}
	}
	if len(raws) == 0 {
		return nil
	}

	sort.Slice(raws, func(i, j int) bool {
		if raws[i].tigID != raws[j].tigID {
			return raws[i].tigID < raws[j].tigID
		}
		if raws[i].forward != raws[j].forward {
			return raws[i].forward
		}
		return raws[i].begin < raws[j].begin
	})

	readLen := rs.Length(aID)
	s := slop(readLen)

	clusters := clusterRaws(raws, s)

	out := make([]Cluster, 0, len(clusters))
	for _, members := range clusters {
		c := consolidate(members, readLen)
		if !passesFilter(c, readLen, opts) {
			log.Debug.Printf("placement: rejecting cluster for read %d in tig %d (fcov=%.3f errs=%.2f)",
				aID, c.TigID, c.FCoverage, c.Errors)
			continue
		}
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Errors != out[j].Errors {
			return out[i].Errors < out[j].Errors
		}
		return out[i].FCoverage > out[j].FCoverage
	})
	return out
}

// clusterRaws groups rawPlacements sharing a (tig, orientation, begin-
// cluster x end-cluster) label: merge begin points within slop, merge end
// points within slop, and group placements whose (begin-group, end-group)
// pair matches.
func clusterRaws(raws []rawPlacement, s int32) [][]rawPlacement {
	var groups [][]rawPlacement
	i := 0
	for i < len(raws) {
		j := i
		tigID, forward := raws[i].tigID, raws[i].forward
		for j < len(raws) && raws[j].tigID == tigID && raws[j].forward == forward {
			j++
		}
		groups = append(groups, clusterWithinGroup(raws[i:j], s)...)
		i = j
	}
	return groups
}

func clusterWithinGroup(members []rawPlacement, s int32) [][]rawPlacement {
	n := len(members)
	if n == 0 {
		return nil
	}
	beginLabel := labelByProximity(members, s, func(rp rawPlacement) int32 { return rp.begin })
	endSorted := append([]int(nil), rangeIdx(n)...)
	sort.Slice(endSorted, func(a, b int) bool { return members[endSorted[a]].end < members[endSorted[b]].end })
	endLabel := make([]int, n)
	cur := -1
	var lastEnd int32
	for k, idx := range endSorted {
		if k == 0 || members[idx].end-lastEnd > s {
			cur++
		}
		endLabel[idx] = cur
		lastEnd = members[idx].end
	}

	type key struct{ b, e int }
	byKey := map[key][]rawPlacement{}
	var order []key
	for i, rp := range members {
		k := key{beginLabel[i], endLabel[i]}
		if _, ok := byKey[k]; !ok {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], rp)
	}
	out := make([][]rawPlacement, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out
}

func rangeIdx(n int) []int {
	r := make([]int, n)
	for i := range r {
		r[i] = i
	}
	return r
}

func labelByProximity(members []rawPlacement, s int32, key func(rawPlacement) int32) []int {
	n := len(members)
	idx := rangeIdx(n)
	sort.Slice(idx, func(a, b int) bool { return key(members[idx[a]]) < key(members[idx[b]]) })
	labels := make([]int, n)
	cur := -1
	var last int32
	for k, i := range idx {
		if k == 0 || key(members[i])-last > s {
			cur++
		}
		labels[i] = cur
		last = key(members[i])
	}
	return labels
}

func consolidate(members []rawPlacement, readLen uint32) Cluster {
	n := len(members)
	var sumBegin, sumEnd float64
	var sumAligned uint32
	var sumErrors float64
	fwd, rev := 0, 0
	var il intervallist.List
	for _, m := range members {
		sumBegin += float64(m.begin)
		sumEnd += float64(m.end)
		sumAligned += m.alignedLength
		sumErrors += m.errors
		if m.forward {
			fwd++
		} else {
			rev++
		}
		il.Add(m.begin, m.end-m.begin)
	}
	meanBegin := sumBegin / float64(n)
	meanEnd := sumEnd / float64(n)

	var verifiedBegin, verifiedEnd int32
	merged := il.Merge()
	if len(merged) > 0 {
		verifiedBegin = merged[0].Begin
		verifiedEnd = merged[0].End()
		for _, iv := range merged[1:] {
			if iv.Begin < verifiedBegin {
				verifiedBegin = iv.Begin
			}
			if iv.End() > verifiedEnd {
				verifiedEnd = iv.End()
			}
		}
	}

	var varBegin, varEnd float64
	for _, m := range members {
		db := float64(m.begin) - meanBegin
		de := float64(m.end) - meanEnd
		varBegin += db * db
		varEnd += de * de
	}
	var sdBegin, sdEnd float64
	if n > 1 {
		sdBegin = math.Sqrt(varBegin / float64(n-1))
		sdEnd = math.Sqrt(varEnd / float64(n-1))
	}

	forward := fwd >= rev
	var pos tig.Position
	if forward {
		pos = tig.Position{Begin: int32(meanBegin), End: int32(meanEnd)}
	} else {
		pos = tig.Position{Begin: int32(meanEnd), End: int32(meanBegin)}
	}

	verifiedSpan := verifiedEnd - verifiedBegin
	fcov := float64(verifiedSpan) / float64(readLen)

	return Cluster{
		TigID:         members[0].tigID,
		Position:      pos,
		Forward:       forward,
		VerifiedBegin: verifiedBegin,
		VerifiedEnd:   verifiedEnd,
		FCoverage:     fcov,
		AlignedLength: sumAligned,
		Errors:        sumErrors,
		StdDevBegin:   sdBegin,
		StdDevEnd:     sdEnd,
		NumMembers:    n,
		meanBegin:     meanBegin,
		meanEnd:       meanEnd,
	}
}

// passesFilter rejects a cluster if its begin/end spread is too wide, if
// its begin and end distributions overlap (a cluster whose low tail on the
// begin side reaches past the low tail on the end side isn't a coherent
// placement), or if the placed length is too far from the read's true
// length.
func passesFilter(c Cluster, readLen uint32, opts Options) bool {
	if opts.MaxStdDevFraction > 0 {
		maxSD := 2.0
		if frac := opts.MaxStdDevFraction * float64(readLen); frac > maxSD {
			maxSD = frac
		}
		if c.StdDevBegin > maxSD || c.StdDevEnd > maxSD {
			return false
		}
	}
	if c.meanBegin-3*c.StdDevBegin > c.meanEnd-3*c.StdDevEnd {
		return false
	}
	placedLen := float64(c.Position.Len())
	trueLen := float64(readLen)
	if trueLen == 0 {
		return false
	}
	ratio := placedLen / trueLen
	if ratio < 1.0/3 || ratio > 2.0 {
		return false
	}
	return true
}

// Best returns the lowest-error cluster with fCoverage >= 0.99 ("strict"
// mode), or the zero Cluster and false if none qualifies.
func Best(clusters []Cluster) (Cluster, bool) {
	for _, c := range clusters {
		if c.FCoverage >= 0.99 {
			return c, true
		}
	}
	return Cluster{}, false
}

// BestInTig returns the best placement restricted to a specific tig, used
// by bubble pop and repeat reconstruction when a specific reference tig is
// already known.
func BestInTig(clusters []Cluster, tigID tig.ID) (Cluster, bool) {
	for _, c := range clusters {
		if c.TigID == tigID {
			return c, true
		}
	}
	return Cluster{}, false
}
