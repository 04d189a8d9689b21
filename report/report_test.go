package report

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/bogart/bog"
	"github.com/grailbio/bogart/overlapstore"
	"github.com/grailbio/bogart/readinfo"
	"github.com/grailbio/bogart/tig"
)

type fakeStore struct {
	byRead map[readinfo.ReadID][]overlapstore.Overlap
	n      int
}

func (s *fakeStore) NumReads() int { return s.n }
func (s *fakeStore) Overlaps(id readinfo.ReadID, maxErate float64) []overlapstore.Overlap {
	return s.byRead[id]
}

func addSymmetric(s *fakeStore, o overlapstore.Overlap) {
	s.byRead[o.A] = append(s.byRead[o.A], o)
	s.byRead[o.B] = append(s.byRead[o.B], o.Flip())
}

func TestWriteBestEdgesRoutesByCategory(t *testing.T) {
	rs := readinfo.NewTable(3)
	rs.Set(1, 100, 0, 0)
	rs.Set(2, 100, 0, 0)
	rs.Set(3, 20, 0, 0)

	store := &fakeStore{n: 3, byRead: map[readinfo.ReadID][]overlapstore.Overlap{}}
	addSymmetric(store, overlapstore.Overlap{A: 1, B: 2, AHang: 30, BHang: 30, Evalue: 0})
	cache := overlapstore.NewCache(store, 1.0, nil)
	g, err := bog.Build(rs, cache, bog.Options{GraphErate: 1.0})
	require.NoError(t, err)

	tv := tig.NewVector(3)
	t1 := tv.New()
	require.NoError(t, tv.Add(t1, tig.Node{ReadID: 1, Position: tig.Position{Begin: 0, End: 100}}, 0))
	require.NoError(t, tv.Add(t1, tig.Node{ReadID: 2, Position: tig.Position{Begin: 30, End: 130}}, 0))
	tv.Sort(t1)
	t2 := tv.New()
	require.NoError(t, tv.Add(t2, tig.Node{ReadID: 3, Position: tig.Position{Begin: 0, End: 20}}, 0))

	var main, contained, singleton bytes.Buffer
	require.NoError(t, WriteBestEdges(&main, &contained, &singleton, rs, g, tv))

	assert.Contains(t, main.String(), "1\t0\t")
	assert.Contains(t, singleton.String(), "3\t0\t")
	assert.Empty(t, contained.String())
}

func TestPartitionAssignsGreedilyByReadCount(t *testing.T) {
	tv := tig.NewVector(6)
	big := tv.New()
	for i, id := range []readinfo.ReadID{1, 2, 3} {
		require.NoError(t, tv.Add(big, tig.Node{ReadID: id, Position: tig.Position{Begin: int32(i * 10), End: int32(i*10 + 50)}}, 0))
	}
	small1 := tv.New()
	require.NoError(t, tv.Add(small1, tig.Node{ReadID: 4, Position: tig.Position{Begin: 0, End: 50}}, 0))
	small2 := tv.New()
	require.NoError(t, tv.Add(small2, tig.Node{ReadID: 5, Position: tig.Position{Begin: 0, End: 50}}, 0))

	assignments := Partition(tv, 3)
	require.Len(t, assignments, 3)

	byTig := map[tig.ID]PartitionAssignment{}
	for _, a := range assignments {
		byTig[a.TigID] = a
	}
	// The 3-read tig fills a whole partition on its own (cap 3).
	assert.Equal(t, 3, byTig[big.ID()].NumReads)
	// The two singleton tigs share a second partition (1+1 <= 3).
	assert.Equal(t, byTig[small1.ID()].Partition, byTig[small2.ID()].Partition)
	assert.NotEqual(t, byTig[big.ID()].Partition, byTig[small1.ID()].Partition)

	var out bytes.Buffer
	require.NoError(t, WritePartitions(&out, assignments))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 3)
}

func TestMaybeGzipRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	w := MaybeGzip(&buf, true)
	_, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	var out bytes.Buffer
	_, err = out.ReadFrom(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", out.String())
}

func TestMaybeGzipPassthroughWhenDisabled(t *testing.T) {
	var buf bytes.Buffer
	w := MaybeGzip(&buf, false)
	_, err := w.Write([]byte("plain"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, "plain", buf.String())
}

func TestWritePackageProducesExpectedChunks(t *testing.T) {
	rs := readinfo.NewTable(2)
	rs.Set(1, 100, 3, 0)
	rs.Set(2, 100, 3, 0)

	tv := tig.NewVector(2)
	tg := tv.New()
	require.NoError(t, tv.Add(tg, tig.Node{ReadID: 1, Position: tig.Position{Begin: 0, End: 100}}, 0))
	require.NoError(t, tv.Add(tg, tig.Node{ReadID: 2, Position: tig.Position{Begin: 30, End: 130}}, 0))
	tv.Sort(tg)

	var buf bytes.Buffer
	require.NoError(t, WritePackage(&buf, rs, tg, 7))

	b := buf.Bytes()
	// MAGC is the first chunk: 4-byte tag, 4-byte length, then payload.
	require.GreaterOrEqual(t, len(b), 16)
	assert.Equal(t, "MAGC", string(b[0:4]))
	length := binary.LittleEndian.Uint32(b[4:8])
	assert.Equal(t, uint32(8), length)
	magic := binary.LittleEndian.Uint64(b[8:16])
	assert.Equal(t, packageMagic, magic)

	// The trailing chunk is CSUM.
	assert.Equal(t, "CSUM", string(b[len(b)-highwayhashChunkLen():len(b)-highwayhashChunkLen()+4]))
}

// highwayhashChunkLen returns the total byte length of a CSUM chunk (tag +
// length prefix + highwayhash digest) to locate it at the tail of a
// package written by WritePackage.
func highwayhashChunkLen() int { return 4 + 4 + 32 }

func TestPackageRoundTrip(t *testing.T) {
	rs := readinfo.NewTable(2)
	rs.Set(1, 100, 3, 2)
	rs.Set(2, 100, 3, 1)

	tv := tig.NewVector(2)
	tg := tv.New()
	require.NoError(t, tv.Add(tg, tig.Node{ReadID: 1, Position: tig.Position{Begin: 0, End: 100}}, 0))
	require.NoError(t, tv.Add(tg, tig.Node{ReadID: 2, Position: tig.Position{Begin: 30, End: 130}, Parent: 1, AHang: 30, BHang: 30}, 0))
	tv.Sort(tg)

	var buf bytes.Buffer
	require.NoError(t, WritePackage(&buf, rs, tg, 7))

	fresh := tig.NewVector(2)
	reads, got, err := ReadPackage(&buf, fresh)
	require.NoError(t, err)

	require.Len(t, reads, 2)
	assert.Equal(t, PackageRead{ID: 1, Length: 100, Library: 3, Mate: 2}, reads[0])
	assert.Equal(t, PackageRead{ID: 2, Length: 100, Library: 3, Mate: 1}, reads[1])

	assert.Equal(t, tg.ID(), got.ID())
	require.Equal(t, tg.NumReads(), got.NumReads())
	wantPath, gotPath := tg.Path(), got.Path()
	for i := range wantPath {
		assert.Equal(t, wantPath[i], gotPath[i])
	}
}

func TestReadPackageRejectsCorruption(t *testing.T) {
	rs := readinfo.NewTable(1)
	rs.Set(1, 100, 0, 0)
	tv := tig.NewVector(1)
	tg := tv.New()
	require.NoError(t, tv.Add(tg, tig.Node{ReadID: 1, Position: tig.Position{Begin: 0, End: 100}}, 0))

	var buf bytes.Buffer
	require.NoError(t, WritePackage(&buf, rs, tg, 1))

	// Flip one byte inside the tig payload; the trailing checksum must
	// catch it.
	b := buf.Bytes()
	b[len(b)-highwayhashChunkLen()-1] ^= 0xff
	_, _, err := ReadPackage(bytes.NewReader(b), tig.NewVector(1))
	assert.Error(t, err)
}
