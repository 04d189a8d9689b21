package readinfo

import (
	"reflect"
	"unsafe"

	"github.com/grailbio/base/log"
	"golang.org/x/sys/unix"
)

// NewHugeTable allocates a Table for n reads whose three backing arrays
// live in a single anonymous, huge-page-advised mmap region instead of
// the garbage-collected heap. At production read counts (tens of
// millions of reads) this keeps the per-read metadata out of GC scan
// range and, via MADV_HUGEPAGE, reduces TLB pressure the same way the
// kmer index's hash table does. Call Close (or Table.Close) to release
// the mapping once the table is no longer needed.
func NewHugeTable(n int) (*Table, error) {
	const hugePageSize = 2 << 20

	rows := n + 1
	lengthsBytes := rows * 4
	librariesBytes := rows * 4
	matesBytes := rows * 4
	total := lengthsBytes + librariesBytes + matesBytes + hugePageSize

	data, err := unix.Mmap(-1, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	if err := unix.Madvise(data, unix.MADV_HUGEPAGE); err != nil {
		log.Debug.Printf("readinfo: madvise(MADV_HUGEPAGE) failed, continuing without it: %v", err)
	}

	base := (uintptr(unsafe.Pointer(&data[0]))-1)/hugePageSize*hugePageSize + hugePageSize

	t := &Table{
		mmapped: data,
	}
	sliceAt(&t.lengths, base, rows)
	sliceAt(&t.libraries, base+uintptr(lengthsBytes), rows)
	sliceAt((*[]uint32)(unsafe.Pointer(&t.mates)), base+uintptr(lengthsBytes+librariesBytes), rows)
	return t, nil
}

// sliceAt points s at a rows-element uint32 array starting at addr,
// reusing the mmap'd backing store rather than allocating.
func sliceAt(s *[]uint32, addr uintptr, rows int) {
	hdr := (*reflect.SliceHeader)(unsafe.Pointer(s))
	hdr.Data = addr
	hdr.Len = rows
	hdr.Cap = rows
}

func (t *Table) closeMmap() error {
	if t.mmapped == nil {
		return nil
	}
	err := unix.Munmap(t.mmapped)
	t.mmapped = nil
	t.lengths = nil
	t.libraries = nil
	t.mates = nil
	return err
}
