package report

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"

	"github.com/minio/highwayhash"
	"github.com/pkg/errors"

	"github.com/grailbio/bogart/readinfo"
	"github.com/grailbio/bogart/tig"
	"github.com/grailbio/bogart/tigstore"
)

// Package-export magic numbers and chunk tags.
const (
	packageMagic   = uint64(0x5f5f656c69467173) // "sqFile__" little-endian
	packageVersion = uint32(1)

	tagMAGC = "MAGC"
	tagVERS = "VERS"
	tagDEFV = "DEFV"
	tagREAD = "READ"
	tagTIG_ = "TIG_"
	tagCSUM = "CSUM"
)

var highwayKey [highwayhash.Size]byte

// WritePackage emits a TLV stream for offloading one tig's computation to
// a remote consensus worker: opening
// MAGC/VERS/DEFV chunks, a READ chunk per backbone/contained read naming
// its length and library, a single TIG_ chunk carrying the tig's
// marshaled layout, and a trailing CSUM chunk (a highwayhash digest of
// everything written before it) so a truncated or corrupted package is
// caught before reaching the consensus engine.
func WritePackage(w io.Writer, rs readinfo.Store, t *tig.Tig, defaultReadVersion uint32) error {
	var body bytes.Buffer

	if err := writeChunk(&body, tagMAGC, uint64Bytes(packageMagic)); err != nil {
		return errors.Wrap(err, "report: writing MAGC chunk")
	}
	if err := writeChunk(&body, tagVERS, uint32Bytes(packageVersion)); err != nil {
		return errors.Wrap(err, "report: writing VERS chunk")
	}
	if err := writeChunk(&body, tagDEFV, uint32Bytes(defaultReadVersion)); err != nil {
		return errors.Wrap(err, "report: writing DEFV chunk")
	}

	seen := make(map[readinfo.ReadID]bool)
	for _, n := range t.RawPath() {
		if seen[n.ReadID] {
			continue
		}
		seen[n.ReadID] = true
		if err := writeChunk(&body, tagREAD, readRecord(rs, n.ReadID)); err != nil {
			return errors.Wrapf(err, "report: writing READ chunk for read %d", n.ReadID)
		}
	}

	if err := writeChunk(&body, tagTIG_, tigstore.MarshalTigForExport(t)); err != nil {
		return errors.Wrap(err, "report: writing TIG_ chunk")
	}

	sum := highwayhash.Sum(body.Bytes(), highwayKey[:])

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(body.Bytes()); err != nil {
		return errors.Wrap(err, "report: writing package body")
	}
	if err := writeChunk(bw, tagCSUM, sum[:]); err != nil {
		return errors.Wrap(err, "report: writing CSUM chunk")
	}
	return bw.Flush()
}

// PackageRead is one READ chunk's payload: the metadata a consensus
// worker needs for a read it has never seen.
type PackageRead struct {
	ID      readinfo.ReadID
	Length  uint32
	Library uint32
	Mate    readinfo.ReadID
}

// ReadPackage parses a stream written by WritePackage, verifying the
// opening magic/version chunks and the trailing checksum, and returns the
// read records plus the tig reconstructed into v.
func ReadPackage(r io.Reader, v *tig.Vector) ([]PackageRead, *tig.Tig, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, errors.Wrap(err, "report: reading package")
	}

	var reads []PackageRead
	var t *tig.Tig
	sawMagic := false
	off := 0
	for off < len(raw) {
		if len(raw)-off < 8 {
			return nil, nil, errors.New("report: truncated package chunk header")
		}
		tag := string(raw[off : off+4])
		length := int(binary.LittleEndian.Uint32(raw[off+4 : off+8]))
		if len(raw)-off-8 < length {
			return nil, nil, errors.Errorf("report: truncated %s chunk", tag)
		}
		payload := raw[off+8 : off+8+length]

		switch tag {
		case tagMAGC:
			if length != 8 || binary.LittleEndian.Uint64(payload) != packageMagic {
				return nil, nil, errors.New("report: bad package magic")
			}
			sawMagic = true
		case tagVERS:
			if length != 4 || binary.LittleEndian.Uint32(payload) != packageVersion {
				return nil, nil, errors.Errorf("report: unsupported package version")
			}
		case tagDEFV:
			// Default read version; carried for the consensus worker, not
			// interpreted here.
		case tagREAD:
			if length != 16 {
				return nil, nil, errors.Errorf("report: bad READ chunk length %d", length)
			}
			reads = append(reads, PackageRead{
				ID:      readinfo.ReadID(binary.LittleEndian.Uint32(payload[0:])),
				Length:  binary.LittleEndian.Uint32(payload[4:]),
				Library: binary.LittleEndian.Uint32(payload[8:]),
				Mate:    readinfo.ReadID(binary.LittleEndian.Uint32(payload[12:])),
			})
		case tagTIG_:
			t = tigstore.UnmarshalTig(v, payload)
		case tagCSUM:
			want := highwayhash.Sum(raw[:off], highwayKey[:])
			if length != len(want) || !bytes.Equal(payload, want[:]) {
				return nil, nil, errors.New("report: package checksum mismatch")
			}
		default:
			return nil, nil, errors.Errorf("report: unknown package chunk %q", tag)
		}
		off += 8 + length
	}
	if !sawMagic {
		return nil, nil, errors.New("report: not a package stream")
	}
	if t == nil {
		return nil, nil, errors.New("report: package has no tig record")
	}
	return reads, t, nil
}

func writeChunk(w io.Writer, tag string, payload []byte) error {
	if _, err := w.Write([]byte(tag)); err != nil {
		return err
	}
	if _, err := w.Write(uint32Bytes(uint32(len(payload)))); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readRecord(rs readinfo.Store, id readinfo.ReadID) []byte {
	buf := make([]byte, 4+4+4+4)
	binary.LittleEndian.PutUint32(buf[0:], uint32(id))
	binary.LittleEndian.PutUint32(buf[4:], rs.Length(id))
	binary.LittleEndian.PutUint32(buf[8:], rs.Library(id))
	binary.LittleEndian.PutUint32(buf[12:], uint32(rs.Mate(id)))
	return buf
}

func uint32Bytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func uint64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}
