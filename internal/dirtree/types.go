// Package dirtree implements the in-memory directory/inode data
// model: dirnodes, inodes (tagged over directory/file/symlink/
// special), and ACL records, plus the constructors and queries that
// keep child names unique within a dirnode on every append.
//
// Dirnode keeps an ordered, flat child-inode slice rather than a hash
// trie: nothing here needs sub-linear lookup within one directory, so
// a plain slice is simpler to reason about and to encode on the wire.
package dirtree

import (
	"time"

	"github.com/threefoldtech/go-flist/internal/hashutil"
)

// Kind discriminates the tagged inode variant.
type Kind uint8

const (
	KindDirectory Kind = iota + 1
	KindRegular
	KindSymlink
	KindSpecial
)

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindRegular:
		return "regular"
	case KindSymlink:
		return "symlink"
	case KindSpecial:
		return "special"
	default:
		return "unknown"
	}
}

// SpecialType enumerates the special-node subtypes.
type SpecialType uint8

const (
	SpecialSocket SpecialType = iota + 1
	SpecialBlock
	SpecialChar
	SpecialFIFO
)

// ACL is the (uname, gname, mode) permission triple, deduplicated by
// content hash (K_acl). Key carries that same hash alongside the
// triple so a record is self-identifying on the wire.
type ACL struct {
	Uname string
	Gname string
	Mode  uint16 // POSIX permission bitfield, low 9 bits meaningful + type bits above
	Key   hashutil.Key16
}

// NewACL builds an ACL triple with Key populated from its content hash.
func NewACL(uname, gname string, mode uint16) ACL {
	return ACL{
		Uname: uname,
		Gname: gname,
		Mode:  mode,
		Key:   hashutil.ACLKey(uname, gname, mode),
	}
}

// Block is one entry of a file inode's chunk manifest: the backend
// reference (chunk id, a content hash of ciphertext bytes) and the
// symmetric decryption key (a content hash of plaintext bytes).
type Block struct {
	ChunkID   hashutil.Key16
	CipherKey hashutil.Key16
}

// DirAttr holds the variant-specific fields of a directory inode.
type DirAttr struct {
	SubdirKey hashutil.Key16 // K_path of the child dirnode
}

// FileAttr holds the variant-specific fields of a regular file inode.
type FileAttr struct {
	BlockSize int64
	Blocks    []Block // ordered chunk manifest
}

// LinkAttr holds the variant-specific fields of a symlink inode.
type LinkAttr struct {
	Target string // uninterpreted
}

// SpecialAttr holds the variant-specific fields of a special-node inode.
type SpecialAttr struct {
	Type SpecialType
	Data string // opaque payload, e.g. a device string
}

// Inode is one directory entry, tagged by Kind. Exactly one of
// Dir/File/Link/Special is populated, matching Kind.
type Inode struct {
	Name    string
	Size    int64
	Path    string // full normalized path of this entry
	Created time.Time
	Updated time.Time
	ACLKey  hashutil.Key16
	ACL     *ACL // resolved ACL, populated by the directory engine on load

	Kind    Kind
	Dir     *DirAttr
	File    *FileAttr
	Link    *LinkAttr
	Special *SpecialAttr
}

// Dirnode is a directory: the full normalized path, leaf name,
// parent path, K_path, timestamps, K_acl, aggregate size, and the
// ordered list of child inodes. The root dirnode has empty path,
// empty name and empty parent path.
type Dirnode struct {
	Path       string
	Name       string
	ParentPath string
	Created    time.Time
	Updated    time.Time
	ACLKey     hashutil.Key16
	ACL        *ACL
	Size       int64 // sum of the sizes of Inodes, kept current by the directory engine

	Inodes []*Inode // owned, ordered sequence; canonical encode/append order

	// children is a traversal convenience only — not an ownership
	// edge. Directory inodes reference child dirnodes by K_path
	// (Inode.Dir.SubdirKey) and are resolved on demand by the
	// directory engine; this map is populated lazily as children are
	// loaded, never required to be complete.
	children map[hashutil.Key16]*Dirnode
}

// PathKey returns K_path for this dirnode.
func (d *Dirnode) PathKey() hashutil.Key16 {
	return hashutil.PathKey(d.Path)
}

// RecomputeSize sets Size to the sum of the sizes of d's immediate
// inodes. Callers recompute after any append or removal so the
// dirnode record's size field stays current before it is committed.
func (d *Dirnode) RecomputeSize() {
	var total int64
	for _, in := range d.Inodes {
		total += in.Size
	}
	d.Size = total
}

// SetChild records a loaded child dirnode for traversal convenience.
func (d *Dirnode) SetChild(key hashutil.Key16, child *Dirnode) {
	if d.children == nil {
		d.children = make(map[hashutil.Key16]*Dirnode)
	}
	d.children[key] = child
}

// Child returns a previously loaded child dirnode, if any.
func (d *Dirnode) Child(key hashutil.Key16) (*Dirnode, bool) {
	c, ok := d.children[key]
	return c, ok
}
