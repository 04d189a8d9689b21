package tig

import (
	"fmt"

	"github.com/grailbio/bogart/readinfo"
)

// Vector owns every Tig and the global read->tig membership index. It is
// the sole mutator of both, touched by one tig-transforming phase at a
// time.
type Vector struct {
	tigs    []*Tig // indexed by ID; index 0 unused
	nextID  ID
	readTig []ID  // readID -> tig id, 0 if unplaced
	readPos []int // readID -> ordinal within ufpath, meaningless if readTig==0
}

// NewVector allocates a Vector for a read universe of size n (ids 1..n).
func NewVector(n int) *Vector {
	return &Vector{
		tigs:    []*Tig{nil},
		nextID:  1,
		readTig: make([]ID, n+1),
		readPos: make([]int, n+1),
	}
}

// New creates a new, empty tig and returns it.
func (v *Vector) New() *Tig {
	t := &Tig{id: v.nextID, sorted: true}
	v.nextID++
	v.tigs = append(v.tigs, t)
	return t
}

// Load reconstructs a tig with a caller-specified id, class, suggest flags
// and ufpath, registering it in the global index. Unlike New, it does not
// draw from nextID: this is how a tig read back out of a tigstore payload
// (whose id was assigned in a previous process) is reinserted into a fresh
// Vector, e.g. by a consensus job that only wants to look at one tig.
func (v *Vector) Load(id ID, class Class, suggest SuggestFlags, nodes []Node) *Tig {
	for int(id) >= len(v.tigs) {
		v.tigs = append(v.tigs, nil)
	}
	t := &Tig{id: id, class: class, suggest: suggest, sorted: false}
	v.tigs[id] = t
	if id >= v.nextID {
		v.nextID = id + 1
	}
	for _, n := range nodes {
		_ = v.Add(t, n, 0)
	}
	t.recomputeLength()
	return t
}

// Get returns the tig with the given id, or nil if it doesn't exist or has
// been destroyed.
func (v *Vector) Get(id ID) *Tig {
	if id == NilTig || int(id) >= len(v.tigs) {
		return nil
	}
	t := v.tigs[id]
	if t == nil || t.deleted {
		return nil
	}
	return t
}

// MaxID returns the highest tig id ever allocated (some may be deleted).
func (v *Vector) MaxID() ID { return v.nextID - 1 }

// Each calls f for every non-deleted tig, in id order.
func (v *Vector) Each(f func(*Tig)) {
	for id := ID(1); id <= v.MaxID(); id++ {
		if t := v.Get(id); t != nil {
			f(t)
		}
	}
}

// TigOf returns the tig id containing readID, or NilTig if unplaced.
func (v *Vector) TigOf(readID readinfo.ReadID) ID { return v.readTig[readID] }

// OrdinalOf returns readID's index within its tig's ufpath. Valid only
// when TigOf(readID) != NilTig.
func (v *Vector) OrdinalOf(readID readinfo.ReadID) int { return v.readPos[readID] }

// IsPlaced reports whether readID is in any tig.
func (v *Vector) IsPlaced(readID readinfo.ReadID) bool { return v.readTig[readID] != NilTig }

// Add appends node to t's ufpath, shifted by offset, updates the global
// index, and grows t.length if the new node extends it.
func (v *Vector) Add(t *Tig, node Node, offset int32) error {
	if node.ReadID == readinfo.NilRead {
		return fmt.Errorf("tig: refusing to add the null read")
	}
	if existing := v.TigOf(node.ReadID); existing != NilTig && existing != t.id {
		return fmt.Errorf("tig: read %d already placed in tig %d, cannot add to tig %d", node.ReadID, existing, t.id)
	}
	node.Position.Begin += offset
	node.Position.End += offset

	v.readTig[node.ReadID] = t.id
	v.readPos[node.ReadID] = len(t.ufpath)

	t.ufpath = append(t.ufpath, node)
	t.sorted = false

	if m := node.Position.Max(); m > t.length {
		t.length = m
	}
	return nil
}

// AddAndNormalize is Add followed by a renormalization of the whole tig to
// a zero-based minimum, matching addAndPlaceFrag's "shift the whole unitig
// if we just placed something before position 0" behavior. It then
// refreshes the global index for every read in the tig, since
// normalization can move everyone's coordinates.
func (v *Vector) AddAndNormalize(t *Tig, node Node) error {
	if err := v.Add(t, node, 0); err != nil {
		return err
	}
	t.normalizeToZero()
	t.recomputeLength()
	v.reindex(t)
	return nil
}

// Normalize reshifts t's whole layout to a zero-based minimum and
// refreshes its cached length and the global index. For callers that add
// several nodes at arbitrary (possibly negative) offsets and fix the
// layout up once at the end.
func (v *Vector) Normalize(t *Tig) {
	t.normalizeToZero()
	t.recomputeLength()
	v.reindex(t)
}

// Remove deletes readID from its tig's ufpath (used during splitting and
// re-placement) and clears its global index entry; if the read later
// rejoins a tig, the index is reset from scratch.
func (v *Vector) Remove(readID readinfo.ReadID) {
	tid := v.TigOf(readID)
	if tid == NilTig {
		return
	}
	t := v.Get(tid)
	if t == nil {
		return
	}
	idx := -1
	for i, n := range t.ufpath {
		if n.ReadID == readID {
			idx = i
			break
		}
	}
	if idx < 0 {
		v.readTig[readID] = NilTig
		return
	}
	t.ufpath = append(t.ufpath[:idx], t.ufpath[idx+1:]...)
	v.readTig[readID] = NilTig
	v.readPos[readID] = 0
	v.reindex(t)
	t.recomputeLength()
}

// reindex rewrites the global ordinal index for every read currently in t,
// matching t.ufpath's current (possibly unsorted) order.
func (v *Vector) reindex(t *Tig) {
	for i, n := range t.ufpath {
		v.readTig[n.ReadID] = t.id
		v.readPos[n.ReadID] = i
	}
}

// Sort forces t's ufpath into canonical (position-ascending) order and
// refreshes the index.
func (v *Vector) Sort(t *Tig) {
	t.ensureSorted()
	v.reindex(t)
}

// ReverseComplement flips t and refreshes the index; it does not re-sort
// (callers that need canonical order afterward should call Sort).
func (v *Vector) ReverseComplement(t *Tig) {
	t.ReverseComplement()
	v.reindex(t)
}

// Destroy removes every read of t from the global index and marks t
// deleted. The Node entries are not copied anywhere; if the caller is
// splitting t, it must have already transferred ownership of the entries
// it wants to keep into new tigs via Add before calling Destroy.
func (v *Vector) Destroy(t *Tig) {
	for _, n := range t.ufpath {
		if v.readTig[n.ReadID] == t.id {
			v.readTig[n.ReadID] = NilTig
		}
	}
	t.ufpath = nil
	t.deleted = true
}

// Split replaces t with the tigs in groups (each a set of Nodes, in their
// original relative order); t is destroyed and every node's ownership is
// transferred to its new tig. Nodes of t appearing in no group (typically
// its contained reads) are left unplaced for a later placement pass.
// Returns the new tigs in the order groups were given.
func (v *Vector) Split(t *Tig, groups [][]Node) []*Tig {
	// Release t's claim on its reads first, so the Adds below don't see
	// them as already placed.
	v.Destroy(t)
	out := make([]*Tig, 0, len(groups))
	for _, group := range groups {
		if len(group) == 0 {
			continue
		}
		nt := v.New()
		nt.class = t.class
		for _, n := range group {
			// Add with zero offset; the group's own coordinates are already
			// relative to the original tig and get renormalized below.
			_ = v.Add(nt, n, 0)
		}
		nt.normalizeToZero()
		nt.recomputeLength()
		v.Sort(nt)
		out = append(out, nt)
	}
	return out
}

// CheckInvariants verifies, across the whole vector, that every read's
// global tig/ordinal index matches its actual position in its tig's
// ufpath and that each tig's cached length matches its widest position.
// Used by tests.
func (v *Vector) CheckInvariants() error {
	for id := ID(1); id <= v.MaxID(); id++ {
		t := v.Get(id)
		if t == nil {
			continue
		}
		var minPos, maxPos int32
		first := true
		for i, n := range t.ufpath {
			if v.readTig[n.ReadID] != id {
				return fmt.Errorf("tig: read %d in tig %d ufpath but index says tig %d", n.ReadID, id, v.readTig[n.ReadID])
			}
			if v.readPos[n.ReadID] != i {
				return fmt.Errorf("tig: read %d ordinal mismatch: index says %d, actual %d", n.ReadID, v.readPos[n.ReadID], i)
			}
			if first || n.Position.Min() < minPos {
				minPos = n.Position.Min()
			}
			if first || n.Position.Max() > maxPos {
				maxPos = n.Position.Max()
			}
			first = false
		}
		if len(t.ufpath) > 0 {
			if minPos != 0 {
				return fmt.Errorf("tig %d: minimum position %d != 0", id, minPos)
			}
			if maxPos != t.length {
				return fmt.Errorf("tig %d: max position %d != tig length %d", id, maxPos, t.length)
			}
		}
	}
	return nil
}
