// Package direngine implements the directory engine: loading,
// mutating, and committing directory trees, with ACL deduplication
// and a strict write order (new ACLs, then affected leaf dirnodes
// post-order, then the parent last).
package direngine

import (
	"fmt"

	"github.com/threefoldtech/go-flist/internal/dirtree"
	"github.com/threefoldtech/go-flist/internal/flistctx"
	"github.com/threefoldtech/go-flist/internal/flisterr"
	"github.com/threefoldtech/go-flist/internal/hashutil"
	"github.com/threefoldtech/go-flist/internal/wirecodec"
)

// Get loads the dirnode at path (already normalized by the caller, or
// run through dirtree.NormalizePath here for safety), resolving each
// child inode's ACL reference. A missing K_acl is a CorruptArchive.
func Get(ctx *flistctx.Context, p string) (*dirtree.Dirnode, error) {
	p = dirtree.NormalizePath(p)
	key := hashutil.PathKey(p)

	raw, found, err := ctx.DB.Sget(key.String())
	if err != nil {
		return nil, fmt.Errorf("%w: direngine: get %q: %v", flisterr.IOError, p, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", flisterr.NotFound, p)
	}

	d, err := wirecodec.DecodeDirnode(raw)
	if err != nil {
		return nil, fmt.Errorf("direngine: decode %q: %w", p, err)
	}

	for _, in := range d.Inodes {
		in.Path = dirtree.JoinPath(d.Path, in.Name)

		aclRaw, found, err := ctx.DB.Sget(in.ACLKey.String())
		if err != nil {
			return nil, fmt.Errorf("%w: direngine: get acl for %q: %v", flisterr.IOError, in.Path, err)
		}
		if !found {
			return nil, fmt.Errorf("%w: dangling acl reference for %q", flisterr.CorruptArchive, in.Path)
		}
		acl, err := wirecodec.DecodeACL(aclRaw)
		if err != nil {
			return nil, fmt.Errorf("direngine: decode acl for %q: %w", in.Path, err)
		}
		in.ACL = &acl
	}

	if !d.ACLKey.IsZero() {
		aclRaw, found, err := ctx.DB.Sget(d.ACLKey.String())
		if err != nil {
			return nil, fmt.Errorf("%w: direngine: get dirnode acl for %q: %v", flisterr.IOError, p, err)
		}
		if !found {
			return nil, fmt.Errorf("%w: dangling acl reference for dirnode %q", flisterr.CorruptArchive, p)
		}
		acl, err := wirecodec.DecodeACL(aclRaw)
		if err != nil {
			return nil, fmt.Errorf("direngine: decode dirnode acl for %q: %w", p, err)
		}
		d.ACL = &acl
	}

	return d, nil
}

// GetRecursive loads p and DFS-loads every descendant directory
// inode, attaching children for traversal (dirtree.Dirnode.SetChild).
// Failure anywhere short-circuits with the original error.
func GetRecursive(ctx *flistctx.Context, p string) (*dirtree.Dirnode, error) {
	d, err := Get(ctx, p)
	if err != nil {
		return nil, err
	}
	for _, in := range d.Inodes {
		if in.Kind != dirtree.KindDirectory {
			continue
		}
		child, err := GetRecursive(ctx, in.Path)
		if err != nil {
			return nil, err
		}
		d.SetChild(in.Dir.SubdirKey, child)
	}
	return d, nil
}

// GetParent loads the parent of d. The root's parent is itself.
func GetParent(ctx *flistctx.Context, d *dirtree.Dirnode) (*dirtree.Dirnode, error) {
	if d.Path == "" {
		return d, nil
	}
	parentPath := Dirname(d.Path)
	return Get(ctx, parentPath)
}

// Dirname implements the standard dirname rule, with "" being its own
// parent, over already-normalized (no leading/trailing slash) paths.
func Dirname(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[:i]
		}
	}
	return ""
}

// Commit persists d to the catalog and, if parent is non-nil and
// distinct from d (i.e. d is not the root), rewrites parent's inode
// entry for d (subdirkey, ACL, updated timestamp, size). When cascade
// is true the walk continues to parent's own parent and so on to the
// root — the mkdir/rmdir case, where an ancestor's inode list changed.
// When cascade is false only the direct parent is rewritten — the
// chmod-of-a-directory case. rm, put and chmod of a leaf pass a nil
// parent, so only d itself is written.
//
// ACL records for any inode referencing a novel key (including d's
// own) are inserted before d's own record is written, and d is always
// written before parent.
func Commit(ctx *flistctx.Context, d *dirtree.Dirnode, parent *dirtree.Dirnode, cascade bool) error {
	if err := ensureACLs(ctx, d); err != nil {
		return err
	}

	d.RecomputeSize()
	record := wirecodec.EncodeDirnode(d)
	if err := ctx.DB.Sset(d.PathKey().String(), record); err != nil {
		return fmt.Errorf("%w: direngine: commit %q: %v", flisterr.IOError, d.Path, err)
	}

	if parent == nil || parent.Path == d.Path {
		return nil
	}

	ref, ok := dirtree.Search(parent, d.Name)
	if ok && ref.Kind == dirtree.KindDirectory {
		ref.Dir.SubdirKey = d.PathKey()
		ref.ACLKey = d.ACLKey
		ref.ACL = d.ACL
		ref.Updated = d.Updated
		ref.Size = d.Size
	}
	parent.Updated = d.Updated

	if !cascade {
		if err := ensureACLs(ctx, parent); err != nil {
			return err
		}
		parent.RecomputeSize()
		record := wirecodec.EncodeDirnode(parent)
		if err := ctx.DB.Sset(parent.PathKey().String(), record); err != nil {
			return fmt.Errorf("%w: direngine: commit parent %q: %v", flisterr.IOError, parent.Path, err)
		}
		return nil
	}

	grandparent, err := GetParent(ctx, parent)
	if err != nil {
		return fmt.Errorf("direngine: load grandparent of %q: %w", parent.Path, err)
	}
	return Commit(ctx, parent, grandparent, true)
}

// ensureACLs inserts ACL records for d's own ACL and every child
// inode's ACL that is not already present in the catalog, keyed by
// content (idempotent: same key implies same content, so a duplicate
// insert is a safe no-op).
func ensureACLs(ctx *flistctx.Context, d *dirtree.Dirnode) error {
	if d.ACL != nil {
		d.ACLKey = d.ACL.Key
		if err := insertACLIfNovel(ctx, d.ACLKey, *d.ACL); err != nil {
			return err
		}
	}
	for _, in := range d.Inodes {
		if in.ACL == nil {
			continue
		}
		in.ACLKey = in.ACL.Key
		if err := insertACLIfNovel(ctx, in.ACLKey, *in.ACL); err != nil {
			return err
		}
	}
	return nil
}

func insertACLIfNovel(ctx *flistctx.Context, key hashutil.Key16, acl dirtree.ACL) error {
	exists, err := ctx.DB.Exists(key.String())
	if err != nil {
		return fmt.Errorf("%w: direngine: check acl %s: %v", flisterr.IOError, key, err)
	}
	if exists {
		return nil
	}
	if err := ctx.DB.Sset(key.String(), wirecodec.EncodeACL(acl)); err != nil {
		return fmt.Errorf("%w: direngine: insert acl %s: %v", flisterr.IOError, key, err)
	}
	return nil
}

// RmRecursively post-order deletes every descendant dirnode's entries
// row, then d's own row. It does not touch d's parent — the caller
// removes d's inode from the parent and commits the parent
// separately. ACL records are left untouched (they are keyed by
// content and may be shared).
func RmRecursively(ctx *flistctx.Context, d *dirtree.Dirnode) error {
	for _, in := range d.Inodes {
		if in.Kind != dirtree.KindDirectory {
			continue
		}
		child, err := Get(ctx, in.Path)
		if err != nil {
			return fmt.Errorf("direngine: load %q for removal: %w", in.Path, err)
		}
		if err := RmRecursively(ctx, child); err != nil {
			return err
		}
	}
	if err := ctx.DB.Sdel(d.PathKey().String()); err != nil {
		return fmt.Errorf("%w: direngine: delete %q: %v", flisterr.IOError, d.Path, err)
	}
	return nil
}
