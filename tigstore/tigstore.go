package tigstore

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"regexp"
	"sort"

	"github.com/biogo/store/llrb"
	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"

	"github.com/grailbio/bogart/tig"
)

// Mode selects how Open behaves.
type Mode int

const (
	// ModeCreate starts a brand-new store at version 1, failing if one
	// already exists.
	ModeCreate Mode = iota
	// ModeReadOnly opens the latest existing version for reading only.
	ModeReadOnly
	// ModeWrite starts a new version with an empty index, wiping whatever
	// the current version held.
	ModeWrite
	// ModeAppend starts a new version that begins as a copy of the
	// current version's index (every existing tig's entry is carried
	// forward unchanged until overwritten).
	ModeAppend
	// ModeModify reopens the current version in place; new or changed
	// payloads are appended to its .dat file and the index is rewritten
	// at Close.
	ModeModify
)

var versionPattern = regexp.MustCompile(`^seqDB\.v(\d+)\.tig$`)

func indexPath(dir string, version uint32) string {
	return fmt.Sprintf("%s/seqDB.v%03d.tig", dir, version)
}
func datPath(dir string, version uint32) string {
	return fmt.Sprintf("%s/seqDB.v%03d.dat", dir, version)
}
func ctgPath(dir string, version uint32) string {
	return fmt.Sprintf("%s/seqDB.v%03d.ctg", dir, version)
}

// latestVersion scans dir for seqDB.v###.tig files and returns the highest
// version found.
func latestVersion(ctx context.Context, dir string) (uint32, bool, error) {
	lister := file.List(ctx, dir, false /*recursive*/)
	var best uint32
	found := false
	for lister.Scan() {
		base := file.Base(lister.Path())
		m := versionPattern.FindStringSubmatch(base)
		if m == nil {
			continue
		}
		var v uint32
		fmt.Sscanf(m[1], "%d", &v)
		if !found || v > best {
			best, found = v, true
		}
	}
	if err := lister.Err(); err != nil {
		return 0, false, errors.Wrapf(err, "tigstore: listing %s", dir)
	}
	return best, found, nil
}

// Store is an open tig-store session. It owns the in-memory index (an
// ordered tree keyed by tig id, for deterministic iteration in Each,
// matching cmd/bio-bam-sort/sorter/sort.go's use of
// biogo/store/llrb) and, for writable modes, the payload file new tigs
// are appended to.
type Store struct {
	ctx     context.Context
	dir     string
	mode    Mode
	version uint32

	tree  llrb.Tree
	byID  map[tig.ID]*indexEntry
	dirty map[tig.ID]bool

	dat       file.File
	datWriter *bufio.Writer
	datOffset uint64
}

// Open starts a tig-store session in dir under mode.
func Open(ctx context.Context, dir string, mode Mode) (*Store, error) {
	latest, exists, err := latestVersion(ctx, dir)
	if err != nil {
		return nil, err
	}

	s := &Store{
		ctx:   ctx,
		dir:   dir,
		mode:  mode,
		byID:  make(map[tig.ID]*indexEntry),
		dirty: make(map[tig.ID]bool),
	}

	switch mode {
	case ModeCreate:
		if exists {
			return nil, errors.Errorf("tigstore: store already exists in %s at version %d", dir, latest)
		}
		s.version = 1
		if err := s.openDatForWrite(s.version); err != nil {
			return nil, err
		}
		return s, nil

	case ModeReadOnly:
		if !exists {
			return nil, errors.Errorf("tigstore: no store found in %s", dir)
		}
		s.version = latest
		if err := s.loadIndex(latest); err != nil {
			return nil, err
		}
		return s, nil

	case ModeWrite:
		if !exists {
			return nil, errors.Errorf("tigstore: no store found in %s", dir)
		}
		s.version = latest + 1
		if err := s.openDatForWrite(s.version); err != nil {
			return nil, err
		}
		return s, nil

	case ModeAppend:
		if !exists {
			return nil, errors.Errorf("tigstore: no store found in %s", dir)
		}
		if err := s.loadIndex(latest); err != nil {
			return nil, err
		}
		s.version = latest + 1
		if err := s.openDatForWrite(s.version); err != nil {
			return nil, err
		}
		return s, nil

	case ModeModify:
		if !exists {
			return nil, errors.Errorf("tigstore: no store found in %s", dir)
		}
		s.version = latest
		if err := s.loadIndex(latest); err != nil {
			return nil, err
		}
		if err := s.openDatForAppend(s.version); err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, errors.Errorf("tigstore: unknown mode %d", mode)
}

func (s *Store) openDatForWrite(version uint32) error {
	f, err := file.Create(s.ctx, datPath(s.dir, version))
	if err != nil {
		return errors.Wrapf(err, "tigstore: creating %s", datPath(s.dir, version))
	}
	s.dat = f
	s.datWriter = bufio.NewWriter(f.Writer(s.ctx))
	s.datOffset = 0
	return nil
}

func (s *Store) openDatForAppend(version uint32) error {
	// grailbio/base/file has no in-place append primitive across all
	// backends, so "modify" is implemented as: read the existing payload
	// size via the index's recorded offsets (the largest fileOffset+size
	// we've seen), then recreate the writer positioned there by replaying
	// nothing -- new writes always go after every existing offset. Since
	// Store never truncates on ModeModify, this is append-only with the
	// same filename.
	var maxEnd uint64
	for _, e := range s.byID {
		if e.SvID == uint16(version) {
			if end := e.FileOffset + uint64(e.PayloadSz); end > maxEnd {
				maxEnd = end
			}
		}
	}
	f, err := file.Create(s.ctx, datPath(s.dir, version))
	if err != nil {
		return errors.Wrapf(err, "tigstore: reopening %s for modify", datPath(s.dir, version))
	}
	s.dat = f
	s.datWriter = bufio.NewWriter(f.Writer(s.ctx))
	s.datOffset = maxEnd
	return nil
}

// loadIndex reads the seqDB.v###.tig index file for version into memory.
func (s *Store) loadIndex(version uint32) error {
	f, err := file.Open(s.ctx, indexPath(s.dir, version))
	if err != nil {
		return errors.Wrapf(err, "tigstore: opening index %s", indexPath(s.dir, version))
	}
	defer f.Close(s.ctx)
	r := bufio.NewReader(f.Reader(s.ctx))

	hdr := make([]byte, indexHeaderBytes)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return errors.Wrapf(err, "tigstore: reading index header %s", indexPath(s.dir, version))
	}
	magic := binary.LittleEndian.Uint32(hdr[0:])
	fileVersion := binary.LittleEndian.Uint32(hdr[4:])
	if magic != masrMagic {
		return errors.Errorf("tigstore: bad MASR magic 0x%x in %s", magic, indexPath(s.dir, version))
	}
	if fileVersion != masrVersion && fileVersion != masrVersionOld {
		return errors.Errorf("tigstore: unsupported store version %d in %s", fileVersion, indexPath(s.dir, version))
	}
	nTigs := binary.LittleEndian.Uint32(hdr[8:])
	_ = binary.LittleEndian.Uint32(hdr[12:]) // index_unused
	arrayLen := binary.LittleEndian.Uint32(hdr[16:])

	for i := uint32(0); i < arrayLen; i++ {
		e, err := readIndexEntry(r)
		if err != nil {
			return errors.Wrapf(err, "tigstore: reading entry %d of %s", i, indexPath(s.dir, version))
		}
		if !e.IsDeleted {
			s.tree.Insert(e)
		}
		s.byID[e.ID] = e
	}
	if uint32(len(s.byID)) < nTigs {
		log.Printf("tigstore: index %s declares %d tigs but only %d entries present", indexPath(s.dir, version), nTigs, len(s.byID))
	}
	return nil
}

const indexEntryBytes = 4 + 4 + 4 + 1 + 1 + 2 /*pad*/ + 8 + 4 + 8 // ID,NumReads,Length,Class,Suggest,pad,Checksum,PayloadSz,bits

func writeIndexEntry(w io.Writer, e *indexEntry) error {
	buf := make([]byte, indexEntryBytes)
	binary.LittleEndian.PutUint32(buf[0:], uint32(e.ID))
	binary.LittleEndian.PutUint32(buf[4:], e.NumReads)
	binary.LittleEndian.PutUint32(buf[8:], e.Length)
	buf[12] = e.Class
	buf[13] = e.Suggest
	binary.LittleEndian.PutUint64(buf[16:], e.Checksum)
	binary.LittleEndian.PutUint32(buf[24:], e.PayloadSz)
	bits := packBits(e.Flags, e.FlushNeeded, e.IsDeleted, e.SvID, e.FileOffset)
	binary.LittleEndian.PutUint64(buf[28:], bits)
	_, err := w.Write(buf)
	return err
}

func readIndexEntry(r io.Reader) (*indexEntry, error) {
	buf := make([]byte, indexEntryBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	e := &indexEntry{
		ID:        tig.ID(binary.LittleEndian.Uint32(buf[0:])),
		NumReads:  binary.LittleEndian.Uint32(buf[4:]),
		Length:    binary.LittleEndian.Uint32(buf[8:]),
		Class:     buf[12],
		Suggest:   buf[13],
		Checksum:  binary.LittleEndian.Uint64(buf[16:]),
		PayloadSz: binary.LittleEndian.Uint32(buf[24:]),
	}
	bits := binary.LittleEndian.Uint64(buf[28:])
	e.Flags, e.FlushNeeded, e.IsDeleted, e.SvID, e.FileOffset = unpackBits(bits)
	return e, nil
}

// Put serializes t's layout to the store's payload file and records (or
// updates) its index entry. The payload format is a simple fixed-size
// record stream: tig id, class, suggest, read count, then one
// fixed-size record per ufpath node -- deliberately not recordio-framed,
// since downstream consensus tooling depends on these files being
// bit-exact and directly seekable by fileOffset.
func (s *Store) Put(t *tig.Tig) error {
	if s.datWriter == nil {
		return errors.New("tigstore: store not open for writing")
	}
	payload := marshalTig(t)
	off := s.datOffset
	if _, err := s.datWriter.Write(payload); err != nil {
		return errors.Wrapf(err, "tigstore: writing payload for tig %d", t.ID())
	}
	s.datOffset += uint64(len(payload))

	e := &indexEntry{
		ID:         t.ID(),
		NumReads:   uint32(t.NumReads()),
		Length:     uint32(t.Length()),
		Class:      uint8(t.Class()),
		Suggest:    uint8(t.Suggest()),
		Checksum:   farm.Hash64WithSeed(payload, 0),
		PayloadSz:  uint32(len(payload)),
		SvID:       uint16(s.version),
		FileOffset: off,
		IsDeleted:  t.Deleted(),
	}
	s.setEntry(e)
	return nil
}

// Delete marks a tig as deleted as of this version (a tombstone; its
// payload in an earlier version's .dat is left in place).
func (s *Store) Delete(id tig.ID) {
	e, ok := s.byID[id]
	if !ok {
		e = &indexEntry{ID: id}
	}
	e.IsDeleted = true
	s.setEntry(e)
}

func (s *Store) setEntry(e *indexEntry) {
	if old, ok := s.byID[e.ID]; ok {
		s.tree.Delete(old)
	}
	s.byID[e.ID] = e
	if !e.IsDeleted {
		s.tree.Insert(e)
	}
	s.dirty[e.ID] = true
}

// Get returns the live tig record for id, or (nil, false) if it doesn't
// exist or was deleted.
func (s *Store) Get(id tig.ID) (Record, bool) {
	e, ok := s.byID[id]
	if !ok || e.IsDeleted {
		return Record{}, false
	}
	return recordFromEntry(e), true
}

// Each calls f for every live (non-deleted) tig, in ascending id order.
func (s *Store) Each(f func(Record)) {
	s.tree.Do(func(item llrb.Comparable) bool {
		f(recordFromEntry(item.(*indexEntry)))
		return true
	})
}

// Record is a tig's persisted metadata, without its ufpath payload.
type Record struct {
	ID         tig.ID
	NumReads   uint32
	Length     uint32
	Class      tig.Class
	Suggest    tig.SuggestFlags
	SvID       uint16
	FileOffset uint64
}

func recordFromEntry(e *indexEntry) Record {
	return Record{
		ID:         e.ID,
		NumReads:   e.NumReads,
		Length:     e.Length,
		Class:      tig.Class(e.Class),
		Suggest:    tig.SuggestFlags(e.Suggest),
		SvID:       e.SvID,
		FileOffset: e.FileOffset,
	}
}

// Fetch reads id's persisted layout back out of whichever version's .dat
// file the index names, verifies its checksum, and reconstructs the tig
// into v. A payload Put during the current write session is flushed to
// disk first so it can be read back immediately.
func (s *Store) Fetch(id tig.ID, v *tig.Vector) (*tig.Tig, error) {
	e, ok := s.byID[id]
	if !ok || e.IsDeleted {
		return nil, errors.Errorf("tigstore: tig %d not in store", id)
	}
	if s.datWriter != nil && uint32(e.SvID) == s.version {
		if err := s.datWriter.Flush(); err != nil {
			return nil, errors.Wrap(err, "tigstore: flushing payload file before fetch")
		}
	}
	f, err := file.Open(s.ctx, datPath(s.dir, uint32(e.SvID)))
	if err != nil {
		return nil, errors.Wrapf(err, "tigstore: opening payload file for tig %d", id)
	}
	defer f.Close(s.ctx) // nolint: errcheck
	r := f.Reader(s.ctx)
	if _, err := r.Seek(int64(e.FileOffset), io.SeekStart); err != nil {
		return nil, errors.Wrapf(err, "tigstore: seeking to tig %d payload", id)
	}
	payload := make([]byte, e.PayloadSz)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrapf(err, "tigstore: reading tig %d payload", id)
	}
	if sum := farm.Hash64WithSeed(payload, 0); sum != e.Checksum {
		return nil, errors.Errorf("tigstore: tig %d payload checksum mismatch", id)
	}
	return UnmarshalTig(v, payload), nil
}

// Close flushes the index (for writable modes) and closes open files. A
// nextVersion write session's index at the active version supersedes
// earlier versions for any tig it names.
func (s *Store) Close() error {
	if s.datWriter != nil {
		if err := s.datWriter.Flush(); err != nil {
			return errors.Wrap(err, "tigstore: flushing payload file")
		}
		if err := s.dat.Close(s.ctx); err != nil {
			return errors.Wrap(err, "tigstore: closing payload file")
		}
		if err := s.writeIndex(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) writeIndex() error {
	f, err := file.Create(s.ctx, indexPath(s.dir, s.version))
	if err != nil {
		return errors.Wrapf(err, "tigstore: creating index %s", indexPath(s.dir, s.version))
	}
	w := bufio.NewWriter(f.Writer(s.ctx))

	ids := make([]tig.ID, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	live := 0
	for _, id := range ids {
		if !s.byID[id].IsDeleted {
			live++
		}
	}

	hdr := make([]byte, indexHeaderBytes)
	binary.LittleEndian.PutUint32(hdr[0:], masrMagic)
	binary.LittleEndian.PutUint32(hdr[4:], masrVersion)
	binary.LittleEndian.PutUint32(hdr[8:], uint32(live))
	binary.LittleEndian.PutUint32(hdr[12:], 0) // index_unused
	binary.LittleEndian.PutUint32(hdr[16:], uint32(len(ids)))
	if _, err := w.Write(hdr); err != nil {
		return errors.Wrap(err, "tigstore: writing index header")
	}
	for _, id := range ids {
		if err := writeIndexEntry(w, s.byID[id]); err != nil {
			return errors.Wrap(err, "tigstore: writing index entry")
		}
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "tigstore: flushing index")
	}
	return f.Close(s.ctx)
}

// NextVersion flushes dirty tigs, closes the current payload file,
// advances the active version, and wipes any preexisting files at the new
// version.
func (s *Store) NextVersion() error {
	if err := s.Close(); err != nil {
		return err
	}
	next := s.version + 1
	for _, p := range []string{indexPath(s.dir, next), datPath(s.dir, next), ctgPath(s.dir, next)} {
		if err := file.Remove(s.ctx, p); err != nil {
			log.Debug.Printf("tigstore: nothing to wipe at %s (%v)", p, err)
		}
	}
	s.version = next
	return s.openDatForWrite(next)
}

// Version returns the store's active version number.
func (s *Store) Version() uint32 { return s.version }
