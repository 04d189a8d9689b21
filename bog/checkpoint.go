package bog

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"math"

	"github.com/golang/snappy"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"

	"github.com/grailbio/bogart/readinfo"
)

func float64bits(v float64) uint64     { return math.Float64bits(v) }
func float64frombits(b uint64) float64 { return math.Float64frombits(b) }

// checkpointMagic tags a saved BOG file, distinct from the tigstore's MASR
// magic (MASR is reserved for the tig store).
const checkpointMagic = uint32(0x424f4743) // "BOGC"
const checkpointVersion = uint32(1)

// Params is the subset of construction parameters that must match between
// a checkpoint and the run attempting to load it.
type Params struct {
	GraphErate      float64
	GraphErrorLimit uint32
}

// Save writes the graph's best-edge and containment arrays to path,
// snappy-compressed, preceded by a magic/version/params header. BOG
// arrays are read-only after construction, so this is safe to call at
// any point after Build returns.
func (g *Graph) Save(ctx context.Context, path string, params Params) error {
	f, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "bog: creating checkpoint", path)
	}
	w := f.Writer(ctx)
	sw := snappy.NewBufferedWriter(w)
	bw := bufio.NewWriter(sw)

	hdr := make([]byte, 4+4+8+4)
	binary.LittleEndian.PutUint32(hdr[0:], checkpointMagic)
	binary.LittleEndian.PutUint32(hdr[4:], checkpointVersion)
	binary.LittleEndian.PutUint64(hdr[8:], uint64(float64bits(params.GraphErate)))
	binary.LittleEndian.PutUint32(hdr[16:], params.GraphErrorLimit)
	if _, err := bw.Write(hdr); err != nil {
		return errors.E(err, "bog: writing checkpoint header", path)
	}

	binary.Write(bw, binary.LittleEndian, uint32(g.numReads))
	for id := 1; id <= g.numReads; id++ {
		writeEdge(bw, g.best5[readinfo.ReadID(id)])
		writeEdge(bw, g.best3[readinfo.ReadID(id)])
		writeCont(bw, g.cont[readinfo.ReadID(id)])
		binary.Write(bw, binary.LittleEndian, uint16(g.flags[readinfo.ReadID(id)]))
	}

	if err := bw.Flush(); err != nil {
		return errors.E(err, "bog: flushing checkpoint", path)
	}
	if err := sw.Close(); err != nil {
		return errors.E(err, "bog: closing snappy writer", path)
	}
	if err := f.Close(ctx); err != nil {
		return errors.E(err, "bog: closing checkpoint", path)
	}
	return nil
}

// Load reads a checkpoint previously written by Save. If the stored
// parameters don't match wantParams, the checkpoint is rejected (not
// fatal): the caller should discard it and recompute.
func Load(ctx context.Context, path string, wantParams Params) (*Graph, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "bog: opening checkpoint", path)
	}
	defer f.Close(ctx)
	r := bufio.NewReader(f.Reader(ctx))
	sr := snappy.NewReader(r)
	br := bufio.NewReader(sr)

	hdr := make([]byte, 4+4+8+4)
	if _, err := io.ReadFull(br, hdr); err != nil {
		return nil, errors.E(err, "bog: reading checkpoint header", path)
	}
	magic := binary.LittleEndian.Uint32(hdr[0:])
	version := binary.LittleEndian.Uint32(hdr[4:])
	if magic != checkpointMagic {
		return nil, errors.E("bog: bad checkpoint magic", path)
	}
	if version != checkpointVersion {
		return nil, errors.E("bog: unsupported checkpoint version", path)
	}
	gotErate := float64frombits(binary.LittleEndian.Uint64(hdr[8:]))
	gotLimit := binary.LittleEndian.Uint32(hdr[16:])
	if gotErate != wantParams.GraphErate || gotLimit != wantParams.GraphErrorLimit {
		log.Printf("bog: checkpoint %s built with erate=%.4f elimit=%d, want erate=%.4f elimit=%d; discarding",
			path, gotErate, gotLimit, wantParams.GraphErate, wantParams.GraphErrorLimit)
		return nil, errCheckpointMismatch
	}

	var n uint32
	if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
		return nil, errors.E(err, "bog: reading checkpoint read count", path)
	}
	g := &Graph{
		best5:      make([]BestEdgeOverlap, n+1),
		best3:      make([]BestEdgeOverlap, n+1),
		cont:       make([]BestContainment, n+1),
		flags:      make([]StatusFlags, n+1),
		best5score: make([]uint64, n+1),
		best3score: make([]uint64, n+1),
		contscore:  make([]uint64, n+1),
		numReads:   int(n),
	}
	for id := uint32(1); id <= n; id++ {
		g.best5[id] = readEdge(br)
		g.best3[id] = readEdge(br)
		g.cont[id] = readCont(br)
		var flags uint16
		if err := binary.Read(br, binary.LittleEndian, &flags); err != nil {
			return nil, errors.E(err, "bog: reading checkpoint flags", path)
		}
		g.flags[id] = StatusFlags(flags)
	}
	g.countFailures()
	return g, nil
}

var errCheckpointMismatch = errors.E("bog: checkpoint parameters do not match")

// IsCheckpointMismatch reports whether err is the "parameters differ"
// sentinel Load returns (as opposed to a fatal I/O or corruption error).
func IsCheckpointMismatch(err error) bool {
	return err == errCheckpointMismatch
}

func writeEdge(w io.Writer, e BestEdgeOverlap) {
	binary.Write(w, binary.LittleEndian, uint32(e.Target.ID))
	binary.Write(w, binary.LittleEndian, e.Target.ThreePrime)
	binary.Write(w, binary.LittleEndian, e.AHang)
	binary.Write(w, binary.LittleEndian, e.BHang)
	binary.Write(w, binary.LittleEndian, e.Evalue)
}

func readEdge(r io.Reader) BestEdgeOverlap {
	var e BestEdgeOverlap
	var id uint32
	var threeP bool
	binary.Read(r, binary.LittleEndian, &id)
	binary.Read(r, binary.LittleEndian, &threeP)
	binary.Read(r, binary.LittleEndian, &e.AHang)
	binary.Read(r, binary.LittleEndian, &e.BHang)
	binary.Read(r, binary.LittleEndian, &e.Evalue)
	e.Target = readinfo.ReadEnd{ID: readinfo.ReadID(id), ThreePrime: threeP}
	return e
}

func writeCont(w io.Writer, c BestContainment) {
	binary.Write(w, binary.LittleEndian, uint32(c.Container))
	binary.Write(w, binary.LittleEndian, c.SameOrientation)
	binary.Write(w, binary.LittleEndian, c.AHang)
	binary.Write(w, binary.LittleEndian, c.BHang)
	binary.Write(w, binary.LittleEndian, c.IsContained)
}

func readCont(r io.Reader) BestContainment {
	var c BestContainment
	var container uint32
	binary.Read(r, binary.LittleEndian, &container)
	binary.Read(r, binary.LittleEndian, &c.SameOrientation)
	binary.Read(r, binary.LittleEndian, &c.AHang)
	binary.Read(r, binary.LittleEndian, &c.BHang)
	binary.Read(r, binary.LittleEndian, &c.IsContained)
	c.Container = readinfo.ReadID(container)
	return c
}
