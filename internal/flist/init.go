// Package flist implements the archive mutation API: mkdir, rmdir,
// rm, chmod, put, putdir, ls, stat, find, cat, composed over the
// directory engine, the chunker, and the catalog through a single
// explicit *flistctx.Context. Every mutation follows
// load(path) -> mutate(in memory) -> commit(dirnode + parent).
//
// Every call returns an error rather than aborting the process; it is
// the CLI layer's job to turn a returned error into an exit code.
package flist

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/threefoldtech/go-flist/internal/backend"
	"github.com/threefoldtech/go-flist/internal/catalog"
	"github.com/threefoldtech/go-flist/internal/dirtree"
	"github.com/threefoldtech/go-flist/internal/direngine"
	"github.com/threefoldtech/go-flist/internal/flistctx"
	"github.com/threefoldtech/go-flist/internal/flisterr"
)

// CatalogFileName is the fixed on-disk name of the catalog store
// inside a working directory and inside the archive container. The
// ".sqlite3" suffix is cosmetic: the file is a bbolt database, kept
// for compatibility with tooling that expects that name.
const CatalogFileName = "flistdb.sqlite3"

// defaultRootACL is the ACL of a freshly initialized archive's root.
var defaultRootACL = dirtree.NewACL("root", "root", 0755)

// defaultDirACL and defaultFileACL seed newly created directories and
// files; chmod is the documented way to change them afterwards.
var (
	defaultDirACL  = dirtree.NewACL("root", "root", 0755)
	defaultFileACL = dirtree.NewACL("root", "root", 0644)
)

// Init creates a new archive rooted at dir: the catalog file, the root
// dirnode record, and bootstrap metadata (codec, and backend if
// UPLOADBACKEND names one).
func Init(dir string) (*flistctx.Context, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: flist: init: mkdir %s: %v", flisterr.IOError, dir, err)
	}

	dbPath := filepath.Join(dir, CatalogFileName)
	db, err := catalog.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: flist: init: %v", flisterr.IOError, err)
	}

	be, desc, err := backendFromEnvironment()
	if err != nil {
		db.Close()
		return nil, err
	}

	ctx := flistctx.New(db, be)

	root := dirtree.NewRootDirnode(defaultRootACL)
	if err := direngine.Commit(ctx, root, nil, false); err != nil {
		ctx.Close()
		db.Close()
		return nil, fmt.Errorf("flist: init: commit root: %w", err)
	}

	if err := db.Mdset("codec", "flist/1"); err != nil {
		ctx.Close()
		db.Close()
		return nil, fmt.Errorf("%w: flist: init: write codec metadata: %v", flisterr.IOError, err)
	}

	if desc != nil {
		encoded, err := desc.Encode()
		if err != nil {
			ctx.Close()
			db.Close()
			return nil, fmt.Errorf("flist: init: encode backend descriptor: %w", err)
		}
		if err := db.Mdset("backend", string(encoded)); err != nil {
			ctx.Close()
			db.Close()
			return nil, fmt.Errorf("%w: flist: init: write backend metadata: %v", flisterr.IOError, err)
		}
	}

	return ctx, nil
}

// Open reopens an existing archive's catalog at dir and wires a
// backend from its stored "backend" metadata record, falling back to
// UPLOADBACKEND when the archive carries none.
func Open(dir string) (*flistctx.Context, error) {
	dbPath := filepath.Join(dir, CatalogFileName)
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("%w: flist: open: no archive at %s (run init first): %v", flisterr.NotFound, dir, err)
	}
	db, err := catalog.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: flist: open: %v", flisterr.IOError, err)
	}

	var be backend.Client
	if raw, found, err := db.Mdget("backend"); err == nil && found {
		if desc, err := backend.ParseDescriptor([]byte(raw)); err == nil {
			if dialed, err := backend.Dial(desc); err == nil {
				be = dialed
			}
		}
	}
	if be == nil {
		if fromEnv, _, err := backendFromEnvironment(); err == nil {
			be = fromEnv
		}
	}

	return flistctx.New(db, be), nil
}

// backendFromEnvironment parses UPLOADBACKEND, if set, into a dialed
// Client and its Descriptor for metadata bootstrap. Absence is not an
// error: a nil ctx.backend is a valid offline configuration.
func backendFromEnvironment() (backend.Client, *backend.Descriptor, error) {
	raw := os.Getenv("UPLOADBACKEND")
	if raw == "" {
		return nil, nil, nil
	}
	desc, err := backend.ParseDescriptor([]byte(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("flist: parse UPLOADBACKEND: %w", err)
	}
	client, err := backend.Dial(desc)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: flist: dial UPLOADBACKEND: %v", flisterr.BackendUnavailable, err)
	}
	return client, &desc, nil
}
