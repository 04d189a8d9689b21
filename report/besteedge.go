// Package report implements the assembler's external-interface writers:
// the best-edge report, the partitioning file, and the package-export
// TLV stream used to offload a single tig's computation.
package report

import (
	"bufio"
	"fmt"
	"io"

	"github.com/grailbio/bogart/bog"
	"github.com/grailbio/bogart/overlapstore"
	"github.com/grailbio/bogart/readinfo"
	"github.com/grailbio/bogart/tig"
)

// WriteBestEdges writes the tab-separated best-edge report: one line per
// non-contained, non-singleton read with fields read_id, library_id,
// best5_id, best5_end, best3_id, best3_end, erate5, erate3. Contained and
// singleton reads are written to separate streams instead, matching the
// source's per-category report files.
func WriteBestEdges(w, containedW, singletonW io.Writer, rs readinfo.Store, g *bog.Graph, tigs *tig.Vector) error {
	main := bufio.NewWriter(w)
	contained := bufio.NewWriter(containedW)
	singleton := bufio.NewWriter(singletonW)

	for id := readinfo.ReadID(1); int(id) <= rs.NumReads(); id++ {
		if !readinfo.IsValid(rs, id) {
			continue
		}
		line := bestEdgeLine(rs, g, id)

		switch {
		case g.IsContained(id):
			if _, err := fmt.Fprintln(contained, line); err != nil {
				return err
			}
		case isSingletonRead(g, tigs, id):
			if _, err := fmt.Fprintln(singleton, line); err != nil {
				return err
			}
		default:
			if _, err := fmt.Fprintln(main, line); err != nil {
				return err
			}
		}
	}

	if err := main.Flush(); err != nil {
		return err
	}
	if err := contained.Flush(); err != nil {
		return err
	}
	return singleton.Flush()
}

func bestEdgeLine(rs readinfo.Store, g *bog.Graph, id readinfo.ReadID) string {
	b5 := g.Best5(id)
	b3 := g.Best3(id)
	return fmt.Sprintf("%d\t%d\t%d\t%s\t%d\t%s\t%.6f\t%.6f",
		id, rs.Library(id),
		b5.Target.ID, endLabel(b5.Target.ThreePrime),
		b3.Target.ID, endLabel(b3.Target.ThreePrime),
		erate(b5.Evalue), erate(b3.Evalue))
}

func endLabel(threePrime bool) string {
	if threePrime {
		return "3"
	}
	return "5"
}

func erate(evalue uint32) float64 {
	return float64(evalue) / float64(overlapstore.MaxEvalue)
}

// isSingletonRead reports whether id is the only read of its own tig,
// contained reads included -- the singleton-promotion outcome.
func isSingletonRead(g *bog.Graph, tigs *tig.Vector, id readinfo.ReadID) bool {
	tid := tigs.TigOf(id)
	if tid == tig.NilTig {
		return false
	}
	t := tigs.Get(tid)
	return t != nil && t.NumReads() == 1
}
