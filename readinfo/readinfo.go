// Package readinfo holds the immutable per-read metadata the rest of the
// unitigger consults: length, library id, and mate id. The actual sequence
// lives in the read store, an external collaborator this package never
// touches.
package readinfo

import "fmt"

// ReadID is a dense identifier in [1, N]. Zero is the null sentinel: every
// slice keyed by ReadID is sized N+1 so index 0 is always safe to read.
type ReadID uint32

// NilRead is the sentinel meaning "no read".
const NilRead ReadID = 0

// ReadEnd names one of a read's two ends. It is hashable and totally
// ordered. Two plain fields rather than a packed bitfield: there is no
// on-disk representation of ReadEnd to stay compatible with.
type ReadEnd struct {
	ID         ReadID
	ThreePrime bool
}

// Opposite returns the other end of the same read.
func (e ReadEnd) Opposite() ReadEnd {
	return ReadEnd{ID: e.ID, ThreePrime: !e.ThreePrime}
}

// IsNil reports whether this is the null end (ID == 0).
func (e ReadEnd) IsNil() bool {
	return e.ID == NilRead
}

// Less gives ReadEnd a total order: by ID, then 5' before 3'.
func (e ReadEnd) Less(o ReadEnd) bool {
	if e.ID != o.ID {
		return e.ID < o.ID
	}
	return !e.ThreePrime && o.ThreePrime
}

func (e ReadEnd) String() string {
	p := "5'"
	if e.ThreePrime {
		p = "3'"
	}
	return fmt.Sprintf("%d%s", e.ID, p)
}

// Info is the immutable metadata for one read.
type Info struct {
	Length    uint32
	LibraryID uint32
	MateID    ReadID
}

// Store is a read-only, random-access view over all reads, indexed 1..N.
// It is implemented by the external read store; this package only declares
// the contract the core engine depends on.
type Store interface {
	// NumReads returns N, the number of reads. Valid ids are [1, N].
	NumReads() int
	// Length returns the read's length in bases. A length of zero marks a
	// deleted read; the quality filter treats these as bad.
	Length(id ReadID) uint32
	// Library returns the read's library id.
	Library(id ReadID) uint32
	// Mate returns the read's mate id, or NilRead if unpaired.
	Mate(id ReadID) ReadID
}

// Table is an in-memory Store backed by flat, 1-indexed slices. It is the
// concrete Store used by tests and by cmd/bogart, which fills it from the
// read metadata file.
type Table struct {
	lengths   []uint32
	libraries []uint32
	mates     []ReadID

	// mmapped is non-nil when the three slices above are views over a
	// single mmap'd region (see NewHugeTable) rather than the Go heap.
	mmapped []byte
}

// NewTable allocates a Table for n reads (ids 1..n). Index 0 is the null
// sentinel row and is always zero.
func NewTable(n int) *Table {
	return &Table{
		lengths:   make([]uint32, n+1),
		libraries: make([]uint32, n+1),
		mates:     make([]ReadID, n+1),
	}
}

// Set installs the metadata for read id. It is only meant to be used while
// populating a Table; reads are immutable once the pipeline begins.
func (t *Table) Set(id ReadID, length uint32, library uint32, mate ReadID) {
	t.lengths[id] = length
	t.libraries[id] = library
	t.mates[id] = mate
}

func (t *Table) NumReads() int           { return len(t.lengths) - 1 }
func (t *Table) Length(id ReadID) uint32 { return t.lengths[id] }
func (t *Table) Library(id ReadID) uint32 {
	return t.libraries[id]
}
func (t *Table) Mate(id ReadID) ReadID { return t.mates[id] }

// IsValid reports whether id names a non-deleted read: in range and with
// nonzero length.
func IsValid(s Store, id ReadID) bool {
	return id != NilRead && int(id) <= s.NumReads() && s.Length(id) > 0
}

// Close releases t's backing mmap region, if it has one (see
// NewHugeTable). Tables created with NewTable need not be closed; Close
// is a no-op for them.
func (t *Table) Close() error {
	return t.closeMmap()
}
