package flist

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/threefoldtech/go-flist/internal/dirtree"
	"github.com/threefoldtech/go-flist/internal/direngine"
	"github.com/threefoldtech/go-flist/internal/flistctx"
	"github.com/threefoldtech/go-flist/internal/flisterr"
)

// Put ingests the local file at localPath into dst, overwriting any
// existing inode of the same name. A missing backend is not fatal —
// chunks are still hashed and recorded, just not uploaded — so put
// works offline; a configured backend is the common case, not a
// requirement.
func Put(ctx *flistctx.Context, localPath, dst string) error {
	dst = dirtree.NormalizePath(dst)
	if dst == "" {
		return fmt.Errorf("%w: put: destination must not be root", flisterr.InvalidPath)
	}
	if !ctx.Chunker.HasBackend() {
		log.Printf("warning: put %s: no backend configured, chunks will be hashed but not uploaded", dst)
	}

	parentPath := direngine.Dirname(dst)
	name := dirtree.Basename(dst)

	parent, err := direngine.Get(ctx, parentPath)
	if err != nil {
		return fmt.Errorf("put %q: %w", dst, err)
	}
	if existing, ok := dirtree.Search(parent, name); ok {
		dirtree.RemoveInode(parent, existing)
	}

	inode, err := dirtree.InodeFromLocalFile(ctx.Chunker, localPath, parent.Path, name, defaultFileACL)
	if err != nil {
		return fmt.Errorf("put %q: %w", dst, err)
	}
	if err := dirtree.AppendInode(parent, inode); err != nil {
		return fmt.Errorf("put %q: %w", dst, err)
	}
	ctx.Stats.AddRegular(inode.Size)

	// Like rm/chmod of a leaf, put only rewrites parent's own record:
	// its path — and so how its own parent references it — is unchanged.
	if err := direngine.Commit(ctx, parent, nil, false); err != nil {
		return fmt.Errorf("put %q: %w", dst, err)
	}
	return nil
}

// PutDir recursively ingests localDir into a newly created directory
// at dst, dispatching each local entry by kind: regular files are
// chunked, symlinks record their target, subdirectories recurse, and
// anything else is recorded as a special node. Statistics are
// accumulated on ctx.Stats while walking.
func PutDir(ctx *flistctx.Context, localDir, dst string) error {
	dst = dirtree.NormalizePath(dst)
	if dst == "" {
		return fmt.Errorf("%w: putdir: destination must not be root", flisterr.InvalidPath)
	}
	if !ctx.Chunker.HasBackend() {
		log.Printf("warning: putdir %s: no backend configured, chunks will be hashed but not uploaded", dst)
	}

	parentPath := direngine.Dirname(dst)
	name := dirtree.Basename(dst)

	parent, err := direngine.Get(ctx, parentPath)
	if err != nil {
		return fmt.Errorf("putdir %q: %w", dst, err)
	}
	if _, exists := dirtree.Search(parent, name); exists {
		return fmt.Errorf("%w: %q", flisterr.AlreadyExists, dst)
	}

	inode, dir, err := ingestLocalDir(ctx, localDir, parent.Path, name)
	if err != nil {
		return fmt.Errorf("putdir %q: %w", dst, err)
	}
	if err := dirtree.AppendInode(parent, inode); err != nil {
		return fmt.Errorf("putdir %q: %w", dst, err)
	}

	if err := direngine.Commit(ctx, dir, parent, true); err != nil {
		return fmt.Errorf("putdir %q: %w", dst, err)
	}
	return nil
}

// ingestLocalDir builds (but does not link into its eventual parent)
// the dirnode for localDir, committing nested subdirectories bottom-up
// as it returns from each recursive call — children are written
// before any ancestor that references them. The caller is responsible
// for appending the returned inode to the real parent and committing
// dir into it last.
func ingestLocalDir(ctx *flistctx.Context, localDir, parentPath, name string) (*dirtree.Inode, *dirtree.Dirnode, error) {
	inode, dir := dirtree.NewDirectoryInode(parentPath, name, defaultDirACL)
	ctx.Stats.AddDirectory()

	entries, err := os.ReadDir(localDir)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read dir %s: %v", flisterr.IOError, localDir, err)
	}

	for _, entry := range entries {
		fullLocal := filepath.Join(localDir, entry.Name())

		switch {
		case entry.Type()&os.ModeSymlink != 0:
			target, err := os.Readlink(fullLocal)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: readlink %s: %v", flisterr.IOError, fullLocal, err)
			}
			linkInode := dirtree.InodeFromLocalSymlink(target, dir.Path, entry.Name(), dirtree.NewACL("root", "root", 0777))
			if err := dirtree.AppendInode(dir, linkInode); err != nil {
				return nil, nil, err
			}
			ctx.Stats.AddSymlink()

		case entry.IsDir():
			childInode, childDir, err := ingestLocalDir(ctx, fullLocal, dir.Path, entry.Name())
			if err != nil {
				return nil, nil, err
			}
			if err := dirtree.AppendInode(dir, childInode); err != nil {
				return nil, nil, err
			}
			// Leaf-first: persist the now-complete child dirnode
			// without touching dir's own (not-yet-complete) record.
			if err := direngine.Commit(ctx, childDir, nil, false); err != nil {
				return nil, nil, err
			}
			childInode.Size = childDir.Size

		case entry.Type().IsRegular():
			fileInode, err := dirtree.InodeFromLocalFile(ctx.Chunker, fullLocal, dir.Path, entry.Name(), defaultFileACL)
			if err != nil {
				return nil, nil, err
			}
			if err := dirtree.AppendInode(dir, fileInode); err != nil {
				return nil, nil, err
			}
			ctx.Stats.AddRegular(fileInode.Size)

		default:
			info, err := entry.Info()
			if err != nil {
				return nil, nil, fmt.Errorf("%w: stat %s: %v", flisterr.IOError, fullLocal, err)
			}
			specialInode := dirtree.InodeFromLocalSpecial(classifySpecial(info.Mode()), info.Mode().String(), dir.Path, entry.Name(), dirtree.NewACL("root", "root", 0600))
			if err := dirtree.AppendInode(dir, specialInode); err != nil {
				return nil, nil, err
			}
			ctx.Stats.AddSpecial()
		}
	}

	return inode, dir, nil
}

// classifySpecial maps a stdlib file mode's type bits to the
// {socket, block, char, fifo} special sub-type: character devices map
// to SpecialChar, other devices to SpecialBlock, and any other
// non-regular type falls back to SpecialBlock. Device major/minor
// numbers are platform-specific and outside what os.FileMode exposes
// portably, so none are recorded; the opaque Data field (the mode
// string) is preserved for diagnostic purposes.
func classifySpecial(mode os.FileMode) dirtree.SpecialType {
	switch {
	case mode&os.ModeSocket != 0:
		return dirtree.SpecialSocket
	case mode&os.ModeNamedPipe != 0:
		return dirtree.SpecialFIFO
	case mode&os.ModeCharDevice != 0:
		return dirtree.SpecialChar
	case mode&os.ModeDevice != 0:
		return dirtree.SpecialBlock
	default:
		return dirtree.SpecialBlock
	}
}
