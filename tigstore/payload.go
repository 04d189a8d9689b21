package tigstore

import (
	"encoding/binary"

	"github.com/grailbio/bogart/readinfo"
	"github.com/grailbio/bogart/tig"
)

// nodeRecordBytes is the on-disk size of one ufpath node: ReadID(4),
// Begin(4), End(4), Parent(4), AHang(4), BHang(4), Contained(4),
// ContainmentDepth(4), ASkip(4), BSkip(4).
const nodeRecordBytes = 4 * 10

// marshalTig serializes a tig's full layout -- id, class, suggest flags,
// and every ufpath node -- into the flat record Put writes to the
// payload file. This is deliberately not gob/protobuf-framed: downstream
// consensus tooling seeks directly into the .dat file by the index's
// recorded fileOffset/PayloadSz, so the format needs to be a plain,
// fixed-stride array the reader can slice without parsing.
// MarshalTigForExport exposes marshalTig's wire format for the package
// export TLV stream's TIG_ chunk (report.WritePackage), so the
// tig-computation offload uses the exact same on-disk layout tigstore
// itself persists.
func MarshalTigForExport(t *tig.Tig) []byte { return marshalTig(t) }

func marshalTig(t *tig.Tig) []byte {
	path := t.RawPath()
	buf := make([]byte, 4+1+1+4+len(path)*nodeRecordBytes)
	binary.LittleEndian.PutUint32(buf[0:], uint32(t.ID()))
	buf[4] = byte(t.Class())
	buf[5] = byte(t.Suggest())
	binary.LittleEndian.PutUint32(buf[6:], uint32(len(path)))

	off := 10
	for _, n := range path {
		binary.LittleEndian.PutUint32(buf[off+0:], uint32(n.ReadID))
		binary.LittleEndian.PutUint32(buf[off+4:], uint32(n.Position.Begin))
		binary.LittleEndian.PutUint32(buf[off+8:], uint32(n.Position.End))
		binary.LittleEndian.PutUint32(buf[off+12:], uint32(n.Parent))
		binary.LittleEndian.PutUint32(buf[off+16:], uint32(n.AHang))
		binary.LittleEndian.PutUint32(buf[off+20:], uint32(n.BHang))
		binary.LittleEndian.PutUint32(buf[off+24:], uint32(n.Contained))
		binary.LittleEndian.PutUint32(buf[off+28:], n.ContainmentDepth)
		binary.LittleEndian.PutUint32(buf[off+32:], uint32(n.ASkip))
		binary.LittleEndian.PutUint32(buf[off+36:], uint32(n.BSkip))
		off += nodeRecordBytes
	}
	return buf
}

// UnmarshalTig parses a payload previously produced by marshalTig and
// reinserts it into v, for tooling that reads a tig's layout back out of a
// .dat file (e.g. Store.Fetch, or a consensus job reading Put's output at
// Record.FileOffset) without replaying the whole assembly
// pipeline.
func UnmarshalTig(v *tig.Vector, payload []byte) *tig.Tig {
	id := tig.ID(binary.LittleEndian.Uint32(payload[0:]))
	class := tig.Class(payload[4])
	suggest := tig.SuggestFlags(payload[5])
	n := binary.LittleEndian.Uint32(payload[6:])

	nodes := make([]tig.Node, 0, n)
	off := 10
	for i := uint32(0); i < n; i++ {
		nodes = append(nodes, tig.Node{
			ReadID: readinfo.ReadID(binary.LittleEndian.Uint32(payload[off+0:])),
			Position: tig.Position{
				Begin: int32(binary.LittleEndian.Uint32(payload[off+4:])),
				End:   int32(binary.LittleEndian.Uint32(payload[off+8:])),
			},
			Parent:           readinfo.ReadID(binary.LittleEndian.Uint32(payload[off+12:])),
			AHang:            int32(binary.LittleEndian.Uint32(payload[off+16:])),
			BHang:            int32(binary.LittleEndian.Uint32(payload[off+20:])),
			Contained:        readinfo.ReadID(binary.LittleEndian.Uint32(payload[off+24:])),
			ContainmentDepth: binary.LittleEndian.Uint32(payload[off+28:]),
			ASkip:            int32(binary.LittleEndian.Uint32(payload[off+32:])),
			BSkip:            int32(binary.LittleEndian.Uint32(payload[off+36:])),
		})
		off += nodeRecordBytes
	}
	return v.Load(id, class, suggest, nodes)
}
