// Package tig implements the Unitig/TigStore in-memory data model: a Tig
// is an ordered list of positioned, oriented reads (its ufpath); a
// TigVector owns every Tig plus the global read->tig membership index.
package tig

import (
	"sort"

	"github.com/grailbio/bogart/readinfo"
)

// Class is a tig's classification.
type Class int

const (
	ClassNone Class = iota
	ClassUnassembled
	ClassContig
	ClassBubble
	ClassRepeat
)

// SuggestFlags are advisory flags a tig may carry.
type SuggestFlags uint8

const (
	SuggestRepeat SuggestFlags = 1 << iota
	SuggestBubble
	SuggestCircular
	SuggestNoTrim
)

// ID identifies a tig. Zero is the null sentinel.
type ID uint32

// NilTig is the null tig id.
const NilTig ID = 0

// Position is a read's placement within a tig. Begin > End iff the read is
// placed reverse-complemented.
type Position struct {
	Begin, End int32
}

// Forward reports whether the read is placed in its forward orientation.
func (p Position) Forward() bool { return p.End >= p.Begin }

// Min returns min(Begin, End).
func (p Position) Min() int32 {
	if p.Begin < p.End {
		return p.Begin
	}
	return p.End
}

// Max returns max(Begin, End).
func (p Position) Max() int32 {
	if p.Begin > p.End {
		return p.Begin
	}
	return p.End
}

// Len returns the placed length (Max - Min).
func (p Position) Len() int32 { return p.Max() - p.Min() }

// Node is one read's placement within a Tig's ufpath.
type Node struct {
	ReadID   readinfo.ReadID
	Position Position

	Parent readinfo.ReadID // read this one was placed against, or 0
	AHang  int32
	BHang  int32

	Contained        readinfo.ReadID // direct container, or 0
	ContainmentDepth uint32

	// ASkip/BSkip trim bases into the read that shouldn't contribute to
	// consensus.
	ASkip, BSkip int32
}

// IsContained reports whether this node is placed as a contained read.
func (n Node) IsContained() bool { return n.Contained != readinfo.NilRead }

// Tig is a linear layout of positioned reads.
type Tig struct {
	id      ID
	class   Class
	suggest SuggestFlags

	ufpath []Node
	length int32

	sorted  bool
	deleted bool
}

// ID returns the tig's id.
func (t *Tig) ID() ID { return t.id }

// Class returns the tig's classification.
func (t *Tig) Class() Class { return t.class }

// SetClass sets the tig's classification.
func (t *Tig) SetClass(c Class) { t.class = c }

// Suggest returns the tig's suggestion flags.
func (t *Tig) Suggest() SuggestFlags { return t.suggest }

// SetSuggest ORs suggestion flags into the tig.
func (t *Tig) SetSuggest(f SuggestFlags) { t.suggest |= f }

// Length returns max over ufpath of max(position).
func (t *Tig) Length() int32 { return t.length }

// NumReads returns the number of entries in ufpath.
func (t *Tig) NumReads() int { return len(t.ufpath) }

// Deleted reports whether this tig has been destroyed.
func (t *Tig) Deleted() bool { return t.deleted }

// Path returns the tig's ufpath. Callers must not mutate the returned
// slice's Node values via index assignment into positions that affect
// ordering without calling MarkDirty; prefer the mutation methods below.
func (t *Tig) Path() []Node {
	t.ensureSorted()
	return t.ufpath
}

// RawPath returns ufpath without forcing a sort -- used by phases that are
// about to rebuild the path wholesale (e.g. split) and don't care about
// order.
func (t *Tig) RawPath() []Node { return t.ufpath }

// MarkDirty forces the next Path()/ensureSorted() call to re-sort. Exposed
// for callers that mutate Node fields in place via RawPath.
func (t *Tig) MarkDirty() { t.sorted = false }

func (t *Tig) ensureSorted() {
	if t.sorted {
		return
	}
	sort.SliceStable(t.ufpath, func(i, j int) bool {
		a, b := t.ufpath[i], t.ufpath[j]
		if a.Position.Min() != b.Position.Min() {
			return a.Position.Min() < b.Position.Min()
		}
		// Ties: backbone reads before their contains at the same offset.
		if a.IsContained() != b.IsContained() {
			return !a.IsContained()
		}
		return a.ReadID < b.ReadID
	})
	t.sorted = true
}

// recomputeLength scans ufpath for the new max extent. Called after any
// mutation that could change it.
func (t *Tig) recomputeLength() {
	var max int32
	for _, n := range t.ufpath {
		if m := n.Position.Max(); m > max {
			max = m
		}
	}
	t.length = max
}

// normalizeToZero shifts every position so the minimum begin/end becomes
// 0.
func (t *Tig) normalizeToZero() {
	if len(t.ufpath) == 0 {
		return
	}
	min := t.ufpath[0].Position.Min()
	for _, n := range t.ufpath[1:] {
		if m := n.Position.Min(); m < min {
			min = m
		}
	}
	if min == 0 {
		return
	}
	shift := -min
	for i := range t.ufpath {
		t.ufpath[i].Position.Begin += shift
		t.ufpath[i].Position.End += shift
	}
}

// ReverseComplement flips every position about the tig's current length,
// so that position p becomes (length-p.Begin, length-p.End). Applying it
// twice restores the original tig bitwise, modulo a single re-sort to
// restore ufpath order.
func (t *Tig) ReverseComplement() {
	length := t.length
	for i := range t.ufpath {
		n := &t.ufpath[i]
		n.Position.Begin, n.Position.End = length-n.Position.Begin, length-n.Position.End
		n.AHang, n.BHang = -n.BHang, -n.AHang
	}
	t.sorted = false
}
