// Package flistctx defines the explicit context value threaded
// through every mutation-API call: the catalog handle, backend
// client, and statistics counters. Every call takes this value
// explicitly rather than reaching for process-wide global state.
package flistctx

import (
	"sync"

	"github.com/threefoldtech/go-flist/internal/backend"
	"github.com/threefoldtech/go-flist/internal/catalog"
	"github.com/threefoldtech/go-flist/internal/chunker"
)

// Stats accumulates walk counters: regular/symlink/directory/special
// counts and total size, updated on the ctx by mkdir, put and putdir.
// Find tallies into a separate Stats value of its own.
type Stats struct {
	mu          sync.Mutex
	Regular     int
	Symlinks    int
	Directories int
	Specials    int
	TotalSize   int64
}

func (s *Stats) AddRegular(size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Regular++
	s.TotalSize += size
}

func (s *Stats) AddSymlink() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Symlinks++
}

func (s *Stats) AddDirectory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Directories++
}

func (s *Stats) AddSpecial() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Specials++
}

func (s *Stats) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Regular:     s.Regular,
		Symlinks:    s.Symlinks,
		Directories: s.Directories,
		Specials:    s.Specials,
		TotalSize:   s.TotalSize,
	}
}

// Context owns the catalog handle, backend client, chunk builder, and
// running statistics for one open archive session. The engine assumes
// exclusive access to the catalog file for the duration of the
// Context's lifetime; concurrent users must serialize externally.
type Context struct {
	DB      *catalog.DB
	Backend backend.Client // nil is valid: offline dry run
	Chunker *chunker.Builder
	Stats   Stats
}

// New creates a Context over an already-open catalog, wiring be (which
// may be nil) into a fresh chunker.Builder.
func New(db *catalog.DB, be backend.Client) *Context {
	return &Context{
		DB:      db,
		Backend: be,
		Chunker: chunker.NewBuilder(be),
	}
}

// Close releases the backend connection, if any. The catalog handle
// is owned by the caller of catalog.Open and is closed separately.
func (c *Context) Close() error {
	if c.Backend != nil {
		return c.Backend.Close()
	}
	return nil
}
