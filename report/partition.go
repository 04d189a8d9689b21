package report

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"github.com/grailbio/bogart/tig"
)

// PartitionAssignment is one tig's greedy partition assignment.
type PartitionAssignment struct {
	TigID     tig.ID
	NumReads  int
	Length    int32
	Partition int
}

// Partition implements the offline partitioning tool: given a per-
// partition read-count cap, scan every tig in descending size order and
// greedily assign it to the currently smallest partition that doesn't
// exceed the cap, opening a new partition if none qualifies. Descending
// order keeps big tigs from being stranded by a string of small ones
// filling every partition first.
func Partition(tigs *tig.Vector, cap int) []PartitionAssignment {
	var all []PartitionAssignment
	tigs.Each(func(t *tig.Tig) {
		all = append(all, PartitionAssignment{
			TigID:    t.ID(),
			NumReads: t.NumReads(),
			Length:   t.Length(),
		})
	})
	sort.Slice(all, func(i, j int) bool { return all[i].NumReads > all[j].NumReads })

	var sizes []int // reads currently assigned to each partition, indexed 0..
	for i := range all {
		best := -1
		for p, sz := range sizes {
			if sz+all[i].NumReads <= cap && (best < 0 || sz < sizes[best]) {
				best = p
			}
		}
		if best < 0 {
			best = len(sizes)
			sizes = append(sizes, 0)
		}
		sizes[best] += all[i].NumReads
		all[i].Partition = best + 1
	}
	return all
}

// WritePartitions writes one line per tig: "tig_id tig_reads tig_length
// partition_id".
func WritePartitions(w io.Writer, assignments []PartitionAssignment) error {
	bw := bufio.NewWriter(w)
	for _, a := range assignments {
		if _, err := fmt.Fprintf(bw, "%d %d %d %d\n", a.TigID, a.NumReads, a.Length, a.Partition); err != nil {
			return err
		}
	}
	return bw.Flush()
}
