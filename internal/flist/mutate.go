package flist

import (
	"fmt"
	"time"

	"github.com/threefoldtech/go-flist/internal/dirtree"
	"github.com/threefoldtech/go-flist/internal/direngine"
	"github.com/threefoldtech/go-flist/internal/flistctx"
	"github.com/threefoldtech/go-flist/internal/flisterr"
)

// Mkdir creates an empty directory at p. Precondition: parent(p)
// exists and p does not.
func Mkdir(ctx *flistctx.Context, p string) error {
	p = dirtree.NormalizePath(p)
	if p == "" {
		return fmt.Errorf("%w: mkdir: root always exists", flisterr.AlreadyExists)
	}

	parentPath := direngine.Dirname(p)
	name := dirtree.Basename(p)

	parent, err := direngine.Get(ctx, parentPath)
	if err != nil {
		return fmt.Errorf("mkdir %q: %w", p, err)
	}
	if _, exists := dirtree.Search(parent, name); exists {
		return fmt.Errorf("%w: %q", flisterr.AlreadyExists, p)
	}

	inode, child := dirtree.NewDirectoryInode(parent.Path, name, defaultDirACL)
	if err := dirtree.AppendInode(parent, inode); err != nil {
		return fmt.Errorf("mkdir %q: %w", p, err)
	}
	ctx.Stats.AddDirectory()

	if err := direngine.Commit(ctx, child, parent, true); err != nil {
		return fmt.Errorf("mkdir %q: %w", p, err)
	}
	return nil
}

// Rmdir recursively removes the directory at p and everything beneath
// it. Precondition: p exists, is a directory, and is not the root.
func Rmdir(ctx *flistctx.Context, p string) error {
	p = dirtree.NormalizePath(p)
	if p == "" {
		return fmt.Errorf("%w: rmdir: cannot remove root", flisterr.InvalidPath)
	}

	target, err := direngine.Get(ctx, p)
	if err != nil {
		return fmt.Errorf("rmdir %q: %w", p, err)
	}
	parent, err := direngine.GetParent(ctx, target)
	if err != nil {
		return fmt.Errorf("rmdir %q: %w", p, err)
	}

	ref, ok := dirtree.Search(parent, target.Name)
	if !ok || ref.Kind != dirtree.KindDirectory {
		return fmt.Errorf("%w: %q is not a directory entry of its parent", flisterr.CorruptArchive, p)
	}
	dirtree.RemoveInode(parent, ref)
	parent.Updated = time.Now()

	// Post-order: delete the subtree's catalog rows before the parent
	// is rewritten.
	if err := direngine.RmRecursively(ctx, target); err != nil {
		return fmt.Errorf("rmdir %q: %w", p, err)
	}

	grandparent, err := direngine.GetParent(ctx, parent)
	if err != nil {
		return fmt.Errorf("rmdir %q: %w", p, err)
	}
	if err := direngine.Commit(ctx, parent, grandparent, true); err != nil {
		return fmt.Errorf("rmdir %q: %w", p, err)
	}
	return nil
}

// Rm removes a non-directory inode at p. Precondition: p exists and
// is not a directory.
func Rm(ctx *flistctx.Context, p string) error {
	p = dirtree.NormalizePath(p)
	if p == "" {
		return fmt.Errorf("%w: rm: root is a directory", flisterr.InvalidPath)
	}

	parentPath := direngine.Dirname(p)
	name := dirtree.Basename(p)

	parent, err := direngine.Get(ctx, parentPath)
	if err != nil {
		return fmt.Errorf("rm %q: %w", p, err)
	}
	inode, ok := dirtree.Search(parent, name)
	if !ok {
		return fmt.Errorf("%w: %q", flisterr.NotFound, p)
	}
	if inode.Kind == dirtree.KindDirectory {
		return fmt.Errorf("%w: %q is a directory, use rmdir", flisterr.InvalidPath, p)
	}

	dirtree.RemoveInode(parent, inode)
	parent.Updated = time.Now()

	// rm touches only parent's own record: its path, and hence how its
	// own parent references it, never changes.
	if err := direngine.Commit(ctx, parent, nil, false); err != nil {
		return fmt.Errorf("rm %q: %w", p, err)
	}
	return nil
}

// Chmod rewrites the permission bits of p's ACL, preserving any bits
// set above the low 9. A new ACL record is inserted if the resulting
// triple is novel; the previous one is left in place (ACLs are never
// deleted).
func Chmod(ctx *flistctx.Context, p string, mode uint16) error {
	p = dirtree.NormalizePath(p)

	if p == "" {
		root, err := direngine.Get(ctx, "")
		if err != nil {
			return fmt.Errorf("chmod %q: %w", p, err)
		}
		if root.ACL == nil {
			return fmt.Errorf("%w: root has no resolved acl", flisterr.CorruptArchive)
		}
		newACL := dirtree.NewACL(root.ACL.Uname, root.ACL.Gname, chmodBits(root.ACL.Mode, mode))
		root.ACL = &newACL
		root.Updated = time.Now()
		if err := direngine.Commit(ctx, root, nil, false); err != nil {
			return fmt.Errorf("chmod %q: %w", p, err)
		}
		return nil
	}

	parentPath := direngine.Dirname(p)
	name := dirtree.Basename(p)

	parent, err := direngine.Get(ctx, parentPath)
	if err != nil {
		return fmt.Errorf("chmod %q: %w", p, err)
	}
	ref, ok := dirtree.Search(parent, name)
	if !ok {
		return fmt.Errorf("%w: %q", flisterr.NotFound, p)
	}
	if ref.ACL == nil {
		return fmt.Errorf("%w: %q has no resolved acl", flisterr.CorruptArchive, p)
	}
	newACL := dirtree.NewACL(ref.ACL.Uname, ref.ACL.Gname, chmodBits(ref.ACL.Mode, mode))
	now := time.Now()

	if ref.Kind == dirtree.KindDirectory {
		child, err := direngine.Get(ctx, p)
		if err != nil {
			return fmt.Errorf("chmod %q: %w", p, err)
		}
		child.ACL = &newACL
		child.Updated = now
		if err := direngine.Commit(ctx, child, parent, false); err != nil {
			return fmt.Errorf("chmod %q: %w", p, err)
		}
		return nil
	}

	ref.ACL = &newACL
	ref.ACLKey = newACL.Key
	ref.Updated = now

	// chmod of a leaf touches only parent's own record, same reasoning
	// as Rm.
	if err := direngine.Commit(ctx, parent, nil, false); err != nil {
		return fmt.Errorf("chmod %q: %w", p, err)
	}
	return nil
}

// chmodBits preserves bits above the low 9 and ORs in the new
// permission bits after clearing the old ones.
func chmodBits(current, mode uint16) uint16 {
	return (current &^ 0o777) | (mode & 0o777)
}
