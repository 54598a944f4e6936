package flist

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/threefoldtech/go-flist/internal/chunker"
	"github.com/threefoldtech/go-flist/internal/dirtree"
	"github.com/threefoldtech/go-flist/internal/direngine"
	"github.com/threefoldtech/go-flist/internal/flistctx"
	"github.com/threefoldtech/go-flist/internal/flisterr"
	"github.com/threefoldtech/go-flist/internal/hashutil"
)

// Entry is one directory entry as surfaced by Ls/Find/Stat, carrying
// the resolved ACL inline so a consumer never has to chase K_acl
// itself.
type Entry struct {
	Path    string
	Name    string
	Kind    dirtree.Kind
	Size    int64
	Uname   string
	Gname   string
	Mode    uint16
	Created time.Time
	Updated time.Time

	// BlockSize/ChunkCount are populated for regular-file entries only.
	BlockSize  int64
	ChunkCount int
}

func entryFromInode(in *dirtree.Inode) Entry {
	e := Entry{
		Path:    in.Path,
		Name:    in.Name,
		Kind:    in.Kind,
		Size:    in.Size,
		Created: in.Created,
		Updated: in.Updated,
	}
	if in.ACL != nil {
		e.Uname = in.ACL.Uname
		e.Gname = in.ACL.Gname
		e.Mode = in.ACL.Mode
	}
	if in.Kind == dirtree.KindRegular && in.File != nil {
		e.BlockSize = in.File.BlockSize
		e.ChunkCount = len(in.File.Blocks)
	}
	return e
}

// Ls enumerates the children of the directory at p.
func Ls(ctx *flistctx.Context, p string) ([]Entry, error) {
	d, err := direngine.Get(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("ls %q: %w", p, err)
	}
	entries := make([]Entry, 0, len(d.Inodes))
	for _, in := range d.Inodes {
		entries = append(entries, entryFromInode(in))
	}
	return entries, nil
}

// Stat returns the resolved entry for p itself — a directory's own
// identity (root, or via its parent's inode reference) or a leaf
// inode's full metadata plus chunk summary.
func Stat(ctx *flistctx.Context, p string) (Entry, error) {
	p = dirtree.NormalizePath(p)
	if p == "" {
		root, err := direngine.Get(ctx, "")
		if err != nil {
			return Entry{}, fmt.Errorf("stat %q: %w", p, err)
		}
		e := Entry{Path: "", Name: "", Kind: dirtree.KindDirectory, Created: root.Created, Updated: root.Updated}
		if root.ACL != nil {
			e.Uname, e.Gname, e.Mode = root.ACL.Uname, root.ACL.Gname, root.ACL.Mode
		}
		return e, nil
	}

	parent, err := direngine.Get(ctx, direngine.Dirname(p))
	if err != nil {
		return Entry{}, fmt.Errorf("stat %q: %w", p, err)
	}
	in, ok := dirtree.Search(parent, dirtree.Basename(p))
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", flisterr.NotFound, p)
	}
	return entryFromInode(in), nil
}

// Find returns a full recursive listing of the archive from root,
// along with the walk's statistics. This tally is computed fresh from
// the catalog, independent of ctx.Stats (which accumulates ingest
// counters across put/putdir calls in this session).
func Find(ctx *flistctx.Context) ([]Entry, flistctx.Stats, error) {
	root, err := direngine.GetRecursive(ctx, "")
	if err != nil {
		return nil, flistctx.Stats{}, fmt.Errorf("find: %w", err)
	}

	var entries []Entry
	var stats flistctx.Stats
	walkFind(root, &entries, &stats)
	return entries, stats, nil
}

func walkFind(d *dirtree.Dirnode, entries *[]Entry, stats *flistctx.Stats) {
	for _, in := range d.Inodes {
		*entries = append(*entries, entryFromInode(in))
		switch in.Kind {
		case dirtree.KindDirectory:
			stats.AddDirectory()
			if child, ok := d.Child(in.Dir.SubdirKey); ok {
				walkFind(child, entries, stats)
			}
		case dirtree.KindRegular:
			stats.AddRegular(in.Size)
		case dirtree.KindSymlink:
			stats.AddSymlink()
		case dirtree.KindSpecial:
			stats.AddSpecial()
		}
	}
}

// Cat streams the decrypted payload of the file inode at p to w. A
// missing backend is fatal here, unlike put/putdir, which can still
// hash and record chunks offline.
func Cat(ctx *flistctx.Context, p string, w io.Writer) error {
	p = dirtree.NormalizePath(p)
	if p == "" {
		return fmt.Errorf("%w: cat: root is a directory", flisterr.InvalidPath)
	}

	parent, err := direngine.Get(ctx, direngine.Dirname(p))
	if err != nil {
		return fmt.Errorf("cat %q: %w", p, err)
	}
	in, ok := dirtree.Search(parent, dirtree.Basename(p))
	if !ok {
		return fmt.Errorf("%w: %q", flisterr.NotFound, p)
	}
	if in.Kind != dirtree.KindRegular {
		return fmt.Errorf("%w: %q is not a regular file", flisterr.InvalidPath, p)
	}
	if !ctx.Chunker.HasBackend() {
		return fmt.Errorf("%w: cat %q", flisterr.BackendMissing, p)
	}

	blocks := make([]chunker.Block, 0, len(in.File.Blocks))
	for _, b := range in.File.Blocks {
		blocks = append(blocks, chunker.Block{ChunkID: b.ChunkID, CipherKey: b.CipherKey})
	}
	if err := chunker.Cat(ctx.Backend, blocks, w); err != nil {
		var integrityErr *hashutil.IntegrityError
		if errors.As(err, &integrityErr) {
			return fmt.Errorf("%w: cat %q: %v", flisterr.CorruptArchive, p, err)
		}
		return fmt.Errorf("%w: cat %q: %v", flisterr.BackendUnavailable, p, err)
	}
	return nil
}
