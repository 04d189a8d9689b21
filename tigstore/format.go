// Package tigstore implements a versioned on-disk tig store: a trio of
// files per version (seqDB.v###.{tig,dat,ctg}), with a fixed-size binary
// index header and per-tig bitfield-packed metadata entries.
package tigstore

import (
	"github.com/biogo/store/llrb"

	"github.com/grailbio/bogart/tig"
)

// masrMagic/masrVersion are the tig-store index file's magic number
// (0x5253414d) and format version (2). Version 1 stores are
// upgrade-readable but never written.
const (
	masrMagic        = uint32(0x5253414d)
	masrVersion      = uint32(2)
	masrVersionOld   = uint32(1)
	indexHeaderBytes = 4 + 4 + 4 + 4 + 4 // magic, version, n_tigs, index_unused, array_len
)

// indexEntry is one tig's record in a seqDB.v###.tig index: the tig's
// metadata plus a packed 64-bit bitfield {flags:12, flush_needed:1,
// is_deleted:1, svID:10, fileOffset:40}.
type indexEntry struct {
	ID        tig.ID
	NumReads  uint32
	Length    uint32
	Class     uint8
	Suggest   uint8
	Checksum  uint64
	PayloadSz uint32

	Flags       uint16
	FlushNeeded bool
	IsDeleted   bool
	SvID        uint16 // which version's .dat file holds the payload
	FileOffset  uint64 // byte offset into that .dat file
}

// Compare implements llrb.Comparable, ordering entries by tig id.
func (e *indexEntry) Compare(other llrb.Comparable) int {
	o := other.(*indexEntry)
	switch {
	case e.ID < o.ID:
		return -1
	case e.ID > o.ID:
		return 1
	default:
		return 0
	}
}

const (
	bitsFlags       = 12
	bitsFlushNeeded = 1
	bitsIsDeleted   = 1
	bitsSvID        = 10
	bitsFileOffset  = 40

	maskFlags      = uint64(1)<<bitsFlags - 1
	maskSvID       = uint64(1)<<bitsSvID - 1
	maskFileOffset = uint64(1)<<bitsFileOffset - 1

	shiftFlags       = 0
	shiftFlushNeeded = shiftFlags + bitsFlags
	shiftIsDeleted   = shiftFlushNeeded + bitsFlushNeeded
	shiftSvID        = shiftIsDeleted + bitsIsDeleted
	shiftFileOffset  = shiftSvID + bitsSvID
)

// packBits encodes the tig-store index bitfield.
func packBits(flags uint16, flushNeeded, isDeleted bool, svID uint16, fileOffset uint64) uint64 {
	var b uint64
	b |= (uint64(flags) & maskFlags) << shiftFlags
	if flushNeeded {
		b |= 1 << shiftFlushNeeded
	}
	if isDeleted {
		b |= 1 << shiftIsDeleted
	}
	b |= (uint64(svID) & maskSvID) << shiftSvID
	b |= (fileOffset & maskFileOffset) << shiftFileOffset
	return b
}

func unpackBits(b uint64) (flags uint16, flushNeeded, isDeleted bool, svID uint16, fileOffset uint64) {
	flags = uint16((b >> shiftFlags) & maskFlags)
	flushNeeded = (b>>shiftFlushNeeded)&1 != 0
	isDeleted = (b>>shiftIsDeleted)&1 != 0
	svID = uint16((b >> shiftSvID) & maskSvID)
	fileOffset = (b >> shiftFileOffset) & maskFileOffset
	return
}
