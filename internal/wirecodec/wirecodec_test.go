package wirecodec

import (
	"testing"
	"time"

	"github.com/threefoldtech/go-flist/internal/dirtree"
	"github.com/threefoldtech/go-flist/internal/hashutil"
)

func TestACLRoundTrip(t *testing.T) {
	acl := dirtree.NewACL("root", "root", 0755)
	record := EncodeACL(acl)

	decoded, err := DecodeACL(record)
	if err != nil {
		t.Fatalf("DecodeACL failed: %v", err)
	}
	if decoded != acl {
		t.Errorf("round trip mismatch: got %+v want %+v", decoded, acl)
	}
	if decoded.Key != hashutil.ACLKey("root", "root", 0755) {
		t.Errorf("decoded key mismatch: got %v", decoded.Key)
	}
}

func TestACLCorruptionDetected(t *testing.T) {
	acl := dirtree.NewACL("u", "g", 0644)
	record := EncodeACL(acl)
	record[2] ^= 0xFF

	if _, err := DecodeACL(record); err == nil {
		t.Error("expected error decoding corrupted acl record")
	}
}

func buildSampleDirnode() *dirtree.Dirnode {
	now := time.Now()
	d := &dirtree.Dirnode{
		Path:       "a/b",
		Name:       "b",
		ParentPath: "a",
		Created:    now,
		Updated:    now,
		ACLKey:     hashutil.ACLKey("root", "root", 0755),
		Size:       3,
	}
	d.Inodes = []*dirtree.Inode{
		{
			Name: "sub", Size: 0, Created: now, Updated: now,
			ACLKey: hashutil.ACLKey("root", "root", 0755),
			Kind:   dirtree.KindDirectory,
			Dir:    &dirtree.DirAttr{SubdirKey: hashutil.PathKey("a/b/sub")},
		},
		{
			Name: "file.txt", Size: 3, Created: now, Updated: now,
			ACLKey: hashutil.ACLKey("root", "root", 0644),
			Kind:   dirtree.KindRegular,
			File: &dirtree.FileAttr{
				BlockSize: 512 * 1024,
				Blocks: []dirtree.Block{
					{ChunkID: hashutil.Sum16([]byte("cipher")), CipherKey: hashutil.Sum16([]byte("hi\n"))},
				},
			},
		},
		{
			Name: "link", Created: now, Updated: now,
			ACLKey: hashutil.ACLKey("root", "root", 0777),
			Kind:   dirtree.KindSymlink,
			Link:   &dirtree.LinkAttr{Target: "/usr/bin/env"},
		},
		{
			Name: "dev", Created: now, Updated: now,
			ACLKey:  hashutil.ACLKey("root", "root", 0600),
			Kind:    dirtree.KindSpecial,
			Special: &dirtree.SpecialAttr{Type: dirtree.SpecialBlock, Data: "8:0"},
		},
	}
	return d
}

func TestDirnodeRoundTrip(t *testing.T) {
	d := buildSampleDirnode()
	record := EncodeDirnode(d)

	decoded, err := DecodeDirnode(record)
	if err != nil {
		t.Fatalf("DecodeDirnode failed: %v", err)
	}

	if decoded.Path != d.Path || decoded.Name != d.Name || decoded.ParentPath != d.ParentPath ||
		decoded.ACLKey != d.ACLKey || decoded.Size != d.Size {
		t.Fatalf("dirnode fields mismatch: %+v vs %+v", decoded, d)
	}
	if len(decoded.Inodes) != len(d.Inodes) {
		t.Fatalf("inode count mismatch: got %d want %d", len(decoded.Inodes), len(d.Inodes))
	}

	for i, want := range d.Inodes {
		got := decoded.Inodes[i]
		if got.Name != want.Name || got.Kind != want.Kind || got.ACLKey != want.ACLKey {
			t.Errorf("inode %d mismatch: got %+v want %+v", i, got, want)
		}
		switch want.Kind {
		case dirtree.KindDirectory:
			if got.Dir.SubdirKey != want.Dir.SubdirKey {
				t.Errorf("inode %d subdirkey mismatch", i)
			}
		case dirtree.KindRegular:
			if len(got.File.Blocks) != len(want.File.Blocks) || got.File.BlockSize != want.File.BlockSize {
				t.Errorf("inode %d file attr mismatch", i)
			}
		case dirtree.KindSymlink:
			if got.Link.Target != want.Link.Target {
				t.Errorf("inode %d link target mismatch", i)
			}
		case dirtree.KindSpecial:
			if got.Special.Type != want.Special.Type || got.Special.Data != want.Special.Data {
				t.Errorf("inode %d special attr mismatch", i)
			}
		}
	}
}

func TestDirnodeCorruptionDetected(t *testing.T) {
	d := buildSampleDirnode()
	record := EncodeDirnode(d)
	record[len(record)/2] ^= 0xFF

	if _, err := DecodeDirnode(record); err == nil {
		t.Error("expected error decoding corrupted dirnode record")
	}
}

func TestDecodeDirnodeRejectsUnknownInodeTag(t *testing.T) {
	d := buildSampleDirnode()
	// Corrupt the on-wire kind tag of the first inode isn't
	// straightforward to locate byte-for-byte, so instead build a
	// minimal record by hand with an invalid tag.
	w := &writer{}
	w.byte(tagDirnode)
	w.stringField("")
	w.stringField("")
	w.stringField("")
	w.key16(hashutil.PathKey(""))
	w.time(time.Now())
	w.time(time.Now())
	w.uvarint(0)
	w.uvarint(1)
	w.stringField("bogus")
	w.uvarint(0)
	w.key16(hashutil.PathKey(""))
	w.time(time.Now())
	w.time(time.Now())
	w.byte(0xFF) // invalid kind tag
	record := compress(withChecksum(w.buf.Bytes()))

	if _, err := DecodeDirnode(record); err == nil {
		t.Error("expected error decoding record with unknown inode tag")
	}
	_ = d
}
