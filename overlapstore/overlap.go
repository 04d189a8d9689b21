// Package overlapstore models a filtered pairwise read-to-read overlap and
// provides a random-access cache over the per-read overlap lists the
// external overlap store hands back. The store itself -- error-rate
// filtering, on-disk layout -- is out of scope; this package is the
// boundary the core engine talks to.
package overlapstore

import (
	"v.io/x/lib/vlog"

	"github.com/grailbio/bogart/readinfo"
)

// MaxEvalue is the quantisation ceiling for an overlap's error-rate
// encoding. Scoring packs (MaxEvalue-evalue) into the score's middle
// bits.
const MaxEvalue = 1 << 16

// Overlap is a pairwise alignment between reads A and B, from A's
// perspective. Hangs follow the usual convention: a negative hang means
// the aligned span extends off that read's 5' end, a positive hang means
// it extends off the 3' end.
type Overlap struct {
	A, B    readinfo.ReadID
	Flipped bool
	AHang   int32
	BHang   int32
	Evalue  uint32 // quantised error rate, in [0, MaxEvalue]
}

// Erate returns the overlap's error rate as a fraction in [0, 1].
func (o Overlap) Erate() float64 {
	return float64(o.Evalue) / float64(MaxEvalue)
}

// Kind classifies an overlap by its hangs.
type Kind int

const (
	// KindDovetail5 is an overlap off A's 5' end (a_hang < 0, b_hang < 0).
	KindDovetail5 Kind = iota
	// KindDovetail3 is an overlap off A's 3' end (a_hang > 0, b_hang > 0).
	KindDovetail3
	// KindAContainsB: a_hang >= 0, b_hang <= 0.
	KindAContainsB
	// KindBContainsA: a_hang <= 0, b_hang >= 0.
	KindBContainsA
)

// Classify returns the overlap's Kind. Exactly-equal containment (a_hang ==
// b_hang == 0) is reported as KindAContainsB; callers that need the
// "smaller id wins" container tie-break apply it themselves, since that
// tie-break is about which read becomes the container, not about the
// overlap's shape.
func (o Overlap) Classify() Kind {
	switch {
	case o.AHang >= 0 && o.BHang <= 0:
		return KindAContainsB
	case o.AHang <= 0 && o.BHang >= 0:
		return KindBContainsA
	case o.AHang < 0 && o.BHang < 0:
		return KindDovetail5
	default:
		return KindDovetail3
	}
}

// IsContainment reports whether this overlap says one read contains the
// other.
func (o Overlap) IsContainment() bool {
	k := o.Classify()
	return k == KindAContainsB || k == KindBContainsA
}

// AEnd returns which end of A this dovetail overlap touches. Only valid
// when Classify() is a dovetail kind.
func (o Overlap) AEnd() readinfo.ReadEnd {
	return readinfo.ReadEnd{ID: o.A, ThreePrime: o.Classify() == KindDovetail3}
}

// Flip returns the same overlap from B's perspective. For an unflipped
// overlap the hangs negate; for a flipped overlap they swap, because B's
// 5' side faces A's 3' side in the shared alignment frame.
func (o Overlap) Flip() Overlap {
	f := Overlap{
		A:       o.B,
		B:       o.A,
		Flipped: o.Flipped,
		Evalue:  o.Evalue,
	}
	if o.Flipped {
		f.AHang, f.BHang = o.BHang, o.AHang
	} else {
		f.AHang, f.BHang = -o.AHang, -o.BHang
	}
	return f
}

// Length is the implied aligned length on the A read, used both for
// scoring and for the placement engine's aligned_length accounting. A
// dovetail off A's 3' end aligns [a_hang, aLen); one off its 5' end
// aligns [0, aLen+b_hang). A read contained in its partner is aligned
// end to end; a read containing its partner aligns [a_hang, aLen+b_hang).
func (o Overlap) Length(aLen uint32) uint32 {
	a := int32(aLen)
	var span int32
	switch o.Classify() {
	case KindBContainsA:
		span = a
	case KindAContainsB:
		span = a + o.BHang - o.AHang
	case KindDovetail3:
		span = a - o.AHang
	default: // KindDovetail5
		span = a + o.BHang
	}
	if span < 0 {
		return 0
	}
	return uint32(span)
}

// Store is the external overlap store: for a read and an error-rate
// ceiling, the filtered list of its overlaps.
type Store interface {
	// NumReads returns N.
	NumReads() int
	// Overlaps returns every overlap on record for read id whose erate is
	// <= maxErate, from id's perspective (id == A).
	Overlaps(id readinfo.ReadID, maxErate float64) []Overlap
}

// Cache is a random-access, read-only-after-fill view over a Store's
// overlaps for a restricted set of reads, with optional per-end weak-
// overlap trimming. It is filled once and then never mutated except by
// DropWeak.
type Cache struct {
	store    Store
	maxErate float64
	byRead   map[readinfo.ReadID][]Overlap
}

// NewCache loads every read's overlaps up to maxErate into memory. ids, if
// non-nil, restricts the cache to a subset of reads -- the "restrict set"
// used by sub-BOGs built over a subset of reads.
func NewCache(store Store, maxErate float64, ids []readinfo.ReadID) *Cache {
	c := &Cache{store: store, maxErate: maxErate, byRead: make(map[readinfo.ReadID][]Overlap)}
	if ids == nil {
		n := store.NumReads()
		ids = make([]readinfo.ReadID, n)
		for i := 0; i < n; i++ {
			ids[i] = readinfo.ReadID(i + 1)
		}
	}
	for _, id := range ids {
		ov := store.Overlaps(id, maxErate)
		c.byRead[id] = ov
		vlog.VI(2).Infof("overlapstore: cached %d overlaps for read %d (erate<=%.4f)", len(ov), id, maxErate)
	}
	return c
}

// Overlaps returns the cached overlaps for id, or nil if id is not in the
// cache's restrict set.
func (c *Cache) Overlaps(id readinfo.ReadID) []Overlap {
	return c.byRead[id]
}

// DropWeak removes, for the given read, the overlaps named by indices into
// the slice previously returned by Overlaps. Used by the weak-overlap
// removal refinement: the caller sorts a copy by erate, decides which
// tail is "weak", and asks the cache to drop them.
func (c *Cache) DropWeak(id readinfo.ReadID, drop map[int]bool) {
	if len(drop) == 0 {
		return
	}
	old := c.byRead[id]
	kept := old[:0:0]
	for i, o := range old {
		if !drop[i] {
			kept = append(kept, o)
		}
	}
	c.byRead[id] = kept
}

// IsBadQuality reports whether an overlap is unusable: either read is
// deleted (zero length) or the overlap's error rate exceeds graphErate.
func IsBadQuality(rs readinfo.Store, o Overlap, graphErate float64) bool {
	if !readinfo.IsValid(rs, o.A) || !readinfo.IsValid(rs, o.B) {
		return true
	}
	return o.Erate() > graphErate
}
