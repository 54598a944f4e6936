// Package wirecodec implements the self-describing, pointer-based
// binary record format for dirnode and ACL objects: a deterministic
// tag/uvarint-length/value encoding (marker byte + uvarint lengths +
// raw bytes). A dirnode record carries location, name, parent path,
// K_acl, timestamps, aggregate size, and the ordered inode list; an
// ACL record carries uname, gname, mode, and its own content key.
// Field order is fixed and part of the on-disk format — existing
// records must decode under the same layout they were written with.
// Encoding is deterministic given insertion order; decoding rejects
// records whose declared tags don't match the expected variant set.
// Dirnode records are additionally zstd-compressed before they reach
// the catalog.
package wirecodec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"lukechampine.com/blake3"

	"github.com/threefoldtech/go-flist/internal/dirtree"
	"github.com/threefoldtech/go-flist/internal/flisterr"
	"github.com/threefoldtech/go-flist/internal/hashutil"
)

// Record markers. These are part of the on-disk compatibility
// contract and must never be renumbered.
const (
	tagDirnode byte = 0xD1
	tagACL     byte = 0xA1

	kindDirectory byte = 1
	kindRegular   byte = 2
	kindSymlink   byte = 3
	kindSpecial   byte = 4
)

type writer struct {
	buf bytes.Buffer
}

func (w *writer) byte(b byte) { w.buf.WriteByte(b) }

func (w *writer) uvarint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.buf.Write(tmp[:n])
}

func (w *writer) bytesField(b []byte) {
	w.uvarint(uint64(len(b)))
	w.buf.Write(b)
}

func (w *writer) stringField(s string) { w.bytesField([]byte(s)) }

func (w *writer) key16(k hashutil.Key16) { w.buf.Write(k[:]) }

func (w *writer) time(t time.Time) { w.uvarint(uint64(t.UnixNano())) }

type reader struct {
	r *bytes.Reader
}

func (r *reader) byte() (byte, error) { return r.r.ReadByte() }

func (r *reader) uvarint() (uint64, error) {
	return binary.ReadUvarint(r.r)
}

func (r *reader) bytesField() ([]byte, error) {
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (r *reader) stringField() (string, error) {
	b, err := r.bytesField()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) key16() (hashutil.Key16, error) {
	var k hashutil.Key16
	if _, err := io.ReadFull(r.r, k[:]); err != nil {
		return k, err
	}
	return k, nil
}

func (r *reader) time() (time.Time, error) {
	v, err := r.uvarint()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, int64(v)), nil
}

// withChecksum appends a trailing Blake3 checksum of payload, used as
// a read-time corruption check on the catalog record (distinct from
// the content-addressing scheme — dirnodes are keyed by K_path, not
// by content hash).
func withChecksum(payload []byte) []byte {
	sum := blake3.Sum256(payload)
	out := make([]byte, 0, len(payload)+len(sum))
	out = append(out, payload...)
	out = append(out, sum[:]...)
	return out
}

func splitChecksum(record []byte) ([]byte, error) {
	const sumLen = 32
	if len(record) < sumLen {
		return nil, fmt.Errorf("%w: record too short for checksum trailer", flisterr.CorruptArchive)
	}
	payload := record[:len(record)-sumLen]
	trailer := record[len(record)-sumLen:]
	want := blake3.Sum256(payload)
	if !bytes.Equal(trailer, want[:]) {
		return nil, fmt.Errorf("%w: checksum mismatch", flisterr.CorruptArchive)
	}
	return payload, nil
}

// Dirnode records carry an unbounded inode list and are the only
// record type worth compressing; ACL records are four small fields
// and gain nothing from it. The encoder/decoder pair is built
// once and reused, per the klauspost docs' guidance against
// constructing one per call.
var (
	zstdEncoderOnce sync.Once
	zstdEncoder     *zstd.Encoder
	zstdDecoderOnce sync.Once
	zstdDecoder     *zstd.Decoder
)

func getZstdEncoder() *zstd.Encoder {
	zstdEncoderOnce.Do(func() {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			panic(fmt.Sprintf("wirecodec: build zstd encoder: %v", err))
		}
		zstdEncoder = enc
	})
	return zstdEncoder
}

func getZstdDecoder() *zstd.Decoder {
	zstdDecoderOnce.Do(func() {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			panic(fmt.Sprintf("wirecodec: build zstd decoder: %v", err))
		}
		zstdDecoder = dec
	})
	return zstdDecoder
}

func compress(payload []byte) []byte {
	return getZstdEncoder().EncodeAll(payload, make([]byte, 0, len(payload)))
}

func decompress(record []byte) ([]byte, error) {
	out, err := getZstdDecoder().DecodeAll(record, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd decompress: %v", flisterr.CorruptArchive, err)
	}
	return out, nil
}

// EncodeACL serializes an ACL record: {uname, gname, mode, key}.
func EncodeACL(acl dirtree.ACL) []byte {
	w := &writer{}
	w.byte(tagACL)
	w.stringField(acl.Uname)
	w.stringField(acl.Gname)
	w.uvarint(uint64(acl.Mode))
	w.key16(acl.Key)
	return withChecksum(w.buf.Bytes())
}

// DecodeACL parses an ACL record produced by EncodeACL.
func DecodeACL(record []byte) (dirtree.ACL, error) {
	payload, err := splitChecksum(record)
	if err != nil {
		return dirtree.ACL{}, err
	}
	r := &reader{r: bytes.NewReader(payload)}

	tag, err := r.byte()
	if err != nil {
		return dirtree.ACL{}, fmt.Errorf("%w: read acl tag: %v", flisterr.CorruptArchive, err)
	}
	if tag != tagACL {
		return dirtree.ACL{}, fmt.Errorf("%w: unexpected acl tag %02x", flisterr.CorruptArchive, tag)
	}

	uname, err := r.stringField()
	if err != nil {
		return dirtree.ACL{}, fmt.Errorf("%w: read uname: %v", flisterr.CorruptArchive, err)
	}
	gname, err := r.stringField()
	if err != nil {
		return dirtree.ACL{}, fmt.Errorf("%w: read gname: %v", flisterr.CorruptArchive, err)
	}
	mode, err := r.uvarint()
	if err != nil {
		return dirtree.ACL{}, fmt.Errorf("%w: read mode: %v", flisterr.CorruptArchive, err)
	}
	key, err := r.key16()
	if err != nil {
		return dirtree.ACL{}, fmt.Errorf("%w: read acl key: %v", flisterr.CorruptArchive, err)
	}

	return dirtree.ACL{Uname: uname, Gname: gname, Mode: uint16(mode), Key: key}, nil
}

// EncodeDirnode serializes a dirnode record: location, name, parent
// path, K_acl, timestamps, size, and the ordered list of inodes —
// each a tagged union over {dir, file, link, special}.
func EncodeDirnode(d *dirtree.Dirnode) []byte {
	w := &writer{}
	w.byte(tagDirnode)
	w.stringField(d.Path)
	w.stringField(d.Name)
	w.stringField(d.ParentPath)
	w.key16(d.ACLKey)
	w.time(d.Created)
	w.time(d.Updated)
	w.uvarint(uint64(d.Size))

	w.uvarint(uint64(len(d.Inodes)))
	for _, in := range d.Inodes {
		encodeInode(w, in)
	}

	return compress(withChecksum(w.buf.Bytes()))
}

func encodeInode(w *writer, in *dirtree.Inode) {
	w.stringField(in.Name)
	w.uvarint(uint64(in.Size))
	w.key16(in.ACLKey)
	w.time(in.Created)
	w.time(in.Updated)

	switch in.Kind {
	case dirtree.KindDirectory:
		w.byte(kindDirectory)
		w.key16(in.Dir.SubdirKey)
	case dirtree.KindRegular:
		w.byte(kindRegular)
		w.uvarint(uint64(in.File.BlockSize))
		w.uvarint(uint64(len(in.File.Blocks)))
		for _, blk := range in.File.Blocks {
			w.key16(blk.ChunkID)
			w.key16(blk.CipherKey)
		}
	case dirtree.KindSymlink:
		w.byte(kindSymlink)
		w.stringField(in.Link.Target)
	case dirtree.KindSpecial:
		w.byte(kindSpecial)
		w.byte(byte(in.Special.Type))
		w.stringField(in.Special.Data)
	default:
		panic(fmt.Sprintf("wirecodec: unknown inode kind %d", in.Kind))
	}
}

// DecodeDirnode parses a dirnode record produced by EncodeDirnode.
// Records whose declared inode tags fall outside {dir, file, link,
// special} are rejected as CorruptArchive.
func DecodeDirnode(record []byte) (*dirtree.Dirnode, error) {
	checksummed, err := decompress(record)
	if err != nil {
		return nil, err
	}
	payload, err := splitChecksum(checksummed)
	if err != nil {
		return nil, err
	}
	r := &reader{r: bytes.NewReader(payload)}

	tag, err := r.byte()
	if err != nil {
		return nil, fmt.Errorf("%w: read dirnode tag: %v", flisterr.CorruptArchive, err)
	}
	if tag != tagDirnode {
		return nil, fmt.Errorf("%w: unexpected dirnode tag %02x", flisterr.CorruptArchive, tag)
	}

	d := &dirtree.Dirnode{}
	if d.Path, err = r.stringField(); err != nil {
		return nil, fmt.Errorf("%w: read path: %v", flisterr.CorruptArchive, err)
	}
	if d.Name, err = r.stringField(); err != nil {
		return nil, fmt.Errorf("%w: read name: %v", flisterr.CorruptArchive, err)
	}
	if d.ParentPath, err = r.stringField(); err != nil {
		return nil, fmt.Errorf("%w: read parent path: %v", flisterr.CorruptArchive, err)
	}
	if d.ACLKey, err = r.key16(); err != nil {
		return nil, fmt.Errorf("%w: read acl key: %v", flisterr.CorruptArchive, err)
	}
	if d.Created, err = r.time(); err != nil {
		return nil, fmt.Errorf("%w: read created: %v", flisterr.CorruptArchive, err)
	}
	if d.Updated, err = r.time(); err != nil {
		return nil, fmt.Errorf("%w: read updated: %v", flisterr.CorruptArchive, err)
	}
	size, err := r.uvarint()
	if err != nil {
		return nil, fmt.Errorf("%w: read size: %v", flisterr.CorruptArchive, err)
	}
	d.Size = int64(size)

	count, err := r.uvarint()
	if err != nil {
		return nil, fmt.Errorf("%w: read inode count: %v", flisterr.CorruptArchive, err)
	}

	for i := uint64(0); i < count; i++ {
		in, err := decodeInode(r)
		if err != nil {
			return nil, fmt.Errorf("%w: inode %d: %v", flisterr.CorruptArchive, i, err)
		}
		d.Inodes = append(d.Inodes, in)
	}

	return d, nil
}

func decodeInode(r *reader) (*dirtree.Inode, error) {
	in := &dirtree.Inode{}
	var err error

	if in.Name, err = r.stringField(); err != nil {
		return nil, fmt.Errorf("read name: %w", err)
	}
	size, err := r.uvarint()
	if err != nil {
		return nil, fmt.Errorf("read size: %w", err)
	}
	in.Size = int64(size)
	if in.ACLKey, err = r.key16(); err != nil {
		return nil, fmt.Errorf("read acl key: %w", err)
	}
	if in.Created, err = r.time(); err != nil {
		return nil, fmt.Errorf("read created: %w", err)
	}
	if in.Updated, err = r.time(); err != nil {
		return nil, fmt.Errorf("read updated: %w", err)
	}

	kind, err := r.byte()
	if err != nil {
		return nil, fmt.Errorf("read kind tag: %w", err)
	}

	switch kind {
	case kindDirectory:
		in.Kind = dirtree.KindDirectory
		key, err := r.key16()
		if err != nil {
			return nil, fmt.Errorf("read subdirkey: %w", err)
		}
		in.Dir = &dirtree.DirAttr{SubdirKey: key}
	case kindRegular:
		in.Kind = dirtree.KindRegular
		blockSize, err := r.uvarint()
		if err != nil {
			return nil, fmt.Errorf("read blocksize: %w", err)
		}
		blockCount, err := r.uvarint()
		if err != nil {
			return nil, fmt.Errorf("read block count: %w", err)
		}
		blocks := make([]dirtree.Block, 0, blockCount)
		for i := uint64(0); i < blockCount; i++ {
			chunkID, err := r.key16()
			if err != nil {
				return nil, fmt.Errorf("read block %d chunk id: %w", i, err)
			}
			cipherKey, err := r.key16()
			if err != nil {
				return nil, fmt.Errorf("read block %d cipher key: %w", i, err)
			}
			blocks = append(blocks, dirtree.Block{ChunkID: chunkID, CipherKey: cipherKey})
		}
		in.File = &dirtree.FileAttr{BlockSize: int64(blockSize), Blocks: blocks}
	case kindSymlink:
		in.Kind = dirtree.KindSymlink
		target, err := r.stringField()
		if err != nil {
			return nil, fmt.Errorf("read link target: %w", err)
		}
		in.Link = &dirtree.LinkAttr{Target: target}
	case kindSpecial:
		in.Kind = dirtree.KindSpecial
		subtype, err := r.byte()
		if err != nil {
			return nil, fmt.Errorf("read special subtype: %w", err)
		}
		data, err := r.stringField()
		if err != nil {
			return nil, fmt.Errorf("read special data: %w", err)
		}
		in.Special = &dirtree.SpecialAttr{Type: dirtree.SpecialType(subtype), Data: data}
	default:
		return nil, fmt.Errorf("unknown inode kind tag %02x", kind)
	}

	return in, nil
}
