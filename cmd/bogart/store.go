package main

import (
	"bufio"
	"context"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"

	"github.com/grailbio/bogart/overlapstore"
	"github.com/grailbio/bogart/readinfo"
)

// readStoreLine is one parsed line of a "-S" read-metadata file.
type readStoreLine struct {
	id      readinfo.ReadID
	length  uint32
	library uint32
	mate    readinfo.ReadID
}

// loadReadStore reads the simple tab-separated read-metadata file this
// binary accepts as its "-S" input: one line per read, fields
// read_id, length, library_id, mate_id (mate_id 0 means unpaired). Reads
// are 1-indexed and lines may appear in any order; the table is sized to
// the largest read id seen, and any id never named in the file keeps its
// zero-value length, which readinfo.IsValid correctly treats as deleted.
func loadReadStore(ctx context.Context, path string) (*readinfo.Table, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "bogart: opening read store %s", path)
	}
	defer f.Close(ctx) // nolint: errcheck

	var lines []readStoreLine
	maxID := readinfo.ReadID(0)

	sc := bufio.NewScanner(f.Reader(ctx))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			return nil, errors.Errorf("bogart: %s:%d: expected 4 tab-separated fields, got %d", path, lineNo, len(fields))
		}
		id, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "bogart: %s:%d: bad read id", path, lineNo)
		}
		length, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "bogart: %s:%d: bad length", path, lineNo)
		}
		library, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "bogart: %s:%d: bad library id", path, lineNo)
		}
		mate, err := strconv.ParseUint(fields[3], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "bogart: %s:%d: bad mate id", path, lineNo)
		}
		l := readStoreLine{
			id:      readinfo.ReadID(id),
			length:  uint32(length),
			library: uint32(library),
			mate:    readinfo.ReadID(mate),
		}
		if l.id > maxID {
			maxID = l.id
		}
		lines = append(lines, l)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "bogart: reading read store %s", path)
	}

	table := newReadTable(int(maxID))
	for _, l := range lines {
		table.Set(l.id, l.length, l.library, l.mate)
	}
	return table, nil
}

// hugeTableMinReads is the read count above which the per-read metadata
// arrays move off the garbage-collected heap into a huge-page-advised
// mmap region. Below it the plain heap table is cheaper than a mapping.
const hugeTableMinReads = 1 << 24

// newReadTable picks the metadata table backing for n reads, falling back
// to the heap if the mmap can't be established.
func newReadTable(n int) *readinfo.Table {
	if n < hugeTableMinReads {
		return readinfo.NewTable(n)
	}
	table, err := readinfo.NewHugeTable(n)
	if err != nil {
		log.Printf("bogart: mmap for %d-read metadata table failed (%v), using the heap", n, err)
		return readinfo.NewTable(n)
	}
	return table
}

// fileOverlapStore implements overlapstore.Store over the simple
// tab-separated overlap file this binary accepts as its "-O" input: one
// line per overlap, fields a_id, b_id, flipped(0/1), a_hang, b_hang,
// evalue, from a's perspective.
type fileOverlapStore struct {
	numReads int
	byRead   map[readinfo.ReadID][]overlapstore.Overlap
}

func (s *fileOverlapStore) NumReads() int { return s.numReads }

func (s *fileOverlapStore) Overlaps(id readinfo.ReadID, maxErate float64) []overlapstore.Overlap {
	all := s.byRead[id]
	out := make([]overlapstore.Overlap, 0, len(all))
	for _, o := range all {
		if o.Erate() <= maxErate {
			out = append(out, o)
		}
	}
	return out
}

func loadOverlapStore(ctx context.Context, path string, numReads int) (*fileOverlapStore, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "bogart: opening overlap store %s", path)
	}
	defer f.Close(ctx) // nolint: errcheck

	s := &fileOverlapStore{numReads: numReads, byRead: make(map[readinfo.ReadID][]overlapstore.Overlap)}
	sc := bufio.NewScanner(f.Reader(ctx))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 6 {
			return nil, errors.Errorf("bogart: %s:%d: expected 6 tab-separated fields, got %d", path, lineNo, len(fields))
		}
		a, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "bogart: %s:%d: bad a_id", path, lineNo)
		}
		b, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "bogart: %s:%d: bad b_id", path, lineNo)
		}
		flipped := fields[2] == "1"
		aHang, err := strconv.ParseInt(fields[3], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "bogart: %s:%d: bad a_hang", path, lineNo)
		}
		bHang, err := strconv.ParseInt(fields[4], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "bogart: %s:%d: bad b_hang", path, lineNo)
		}
		evalue, err := strconv.ParseUint(fields[5], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "bogart: %s:%d: bad evalue", path, lineNo)
		}
		o := overlapstore.Overlap{
			A:       readinfo.ReadID(a),
			B:       readinfo.ReadID(b),
			Flipped: flipped,
			AHang:   int32(aHang),
			BHang:   int32(bHang),
			Evalue:  uint32(evalue),
		}
		s.byRead[o.A] = append(s.byRead[o.A], o)
		s.byRead[o.B] = append(s.byRead[o.B], o.Flip())
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "bogart: reading overlap store %s", path)
	}
	return s, nil
}
