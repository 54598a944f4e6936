package dirtree

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/threefoldtech/go-flist/internal/chunker"
	"github.com/threefoldtech/go-flist/internal/hashutil"
)

// NormalizePath strips leading/trailing slashes so the root is the
// empty string.
func NormalizePath(p string) string {
	return strings.Trim(path.Clean("/"+p), "/")
}

// JoinPath joins a normalized parent path and a leaf name into a
// normalized full path.
func JoinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// Basename returns the leaf name of an already-normalized path ("" for
// the root).
func Basename(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}

// NewRootDirnode creates the root dirnode: empty path, empty name,
// empty parent path.
func NewRootDirnode(acl ACL) *Dirnode {
	now := time.Now()
	return &Dirnode{
		Path:       "",
		Name:       "",
		ParentPath: "",
		Created:    now,
		Updated:    now,
		ACLKey:     acl.Key,
		ACL:        &acl,
	}
}

// NewDirectoryInode creates a directory inode named name under the
// dirnode at parentPath, along with the new, empty child dirnode it
// references via subdirkey. Caller is responsible for appending the
// returned inode to the parent dirnode and committing both.
func NewDirectoryInode(parentPath, name string, acl ACL) (*Inode, *Dirnode) {
	now := time.Now()
	childPath := JoinPath(parentPath, name)

	child := &Dirnode{
		Path:       childPath,
		Name:       name,
		ParentPath: parentPath,
		Created:    now,
		Updated:    now,
		ACLKey:     acl.Key,
		ACL:        &acl,
	}

	inode := &Inode{
		Name:    name,
		Size:    0,
		Path:    childPath,
		Created: now,
		Updated: now,
		ACLKey:  acl.Key,
		ACL:     &acl,
		Kind:    KindDirectory,
		Dir:     &DirAttr{SubdirKey: child.PathKey()},
	}

	return inode, child
}

// InodeFromLocalFile builds a regular-file inode by chunking the
// local file at localPath through builder.
func InodeFromLocalFile(builder *chunker.Builder, localPath, parentPath, name string, acl ACL) (*Inode, error) {
	manifest, err := builder.Split(localPath)
	if err != nil {
		return nil, fmt.Errorf("dirtree: chunk %s: %w", localPath, err)
	}

	blocks := make([]Block, 0, len(manifest.Blocks))
	for _, b := range manifest.Blocks {
		blocks = append(blocks, Block{ChunkID: b.ChunkID, CipherKey: b.CipherKey})
	}

	now := time.Now()
	fullPath := JoinPath(parentPath, name)
	return &Inode{
		Name:    name,
		Size:    manifest.Size,
		Path:    fullPath,
		Created: now,
		Updated: now,
		ACLKey:  acl.Key,
		ACL:     &acl,
		Kind:    KindRegular,
		File: &FileAttr{
			BlockSize: manifest.BlockSize,
			Blocks:    blocks,
		},
	}, nil
}

// InodeFromLocalSymlink builds a symlink inode pointing at target.
func InodeFromLocalSymlink(target, parentPath, name string, acl ACL) *Inode {
	now := time.Now()
	fullPath := JoinPath(parentPath, name)
	return &Inode{
		Name:    name,
		Size:    int64(len(target)),
		Path:    fullPath,
		Created: now,
		Updated: now,
		ACLKey:  acl.Key,
		ACL:     &acl,
		Kind:    KindSymlink,
		Link:    &LinkAttr{Target: target},
	}
}

// InodeFromLocalSpecial builds a special-node inode (socket, device,
// fifo) with an opaque payload.
func InodeFromLocalSpecial(subtype SpecialType, data, parentPath, name string, acl ACL) *Inode {
	now := time.Now()
	fullPath := JoinPath(parentPath, name)
	return &Inode{
		Name:    name,
		Size:    0,
		Path:    fullPath,
		Created: now,
		Updated: now,
		ACLKey:  acl.Key,
		ACL:     &acl,
		Kind:    KindSpecial,
		Special: &SpecialAttr{Type: subtype, Data: data},
	}
}

// AppendInode appends inode to d's child list, enforcing unique child
// names within a dirnode by rejecting duplicates — callers must
// remove the existing entry first.
func AppendInode(d *Dirnode, inode *Inode) error {
	if _, ok := Search(d, inode.Name); ok {
		return fmt.Errorf("dirtree: %q already exists in %q", inode.Name, d.Path)
	}
	d.Inodes = append(d.Inodes, inode)
	return nil
}

// Search returns the child inode named name, if any.
func Search(d *Dirnode, name string) (*Inode, bool) {
	for _, in := range d.Inodes {
		if in.Name == name {
			return in, true
		}
	}
	return nil, false
}

// RemoveInode removes inode from d's child list by identity (name
// match). A no-op if the inode is not present.
func RemoveInode(d *Dirnode, inode *Inode) {
	out := d.Inodes[:0]
	for _, in := range d.Inodes {
		if in.Name != inode.Name {
			out = append(out, in)
		}
	}
	d.Inodes = out
}
