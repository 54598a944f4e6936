package flist

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/threefoldtech/go-flist/internal/backend"
	"github.com/threefoldtech/go-flist/internal/flistctx"
)

func newTestArchive(t *testing.T) *flistctx.Context {
	t.Helper()
	ctx, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { ctx.DB.Close() })
	ctx.Backend = backend.NewMemory()
	ctx.Chunker.Backend = ctx.Backend
	return ctx
}

// TestInitThenLsRoot exercises init followed by an ls of the empty root.
func TestInitThenLsRoot(t *testing.T) {
	ctx := newTestArchive(t)

	entries, err := Ls(ctx, "")
	if err != nil {
		t.Fatalf("ls root failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty root listing, got %d entries", len(entries))
	}
}

// TestMkdirChain exercises a chain of nested mkdir calls.
func TestMkdirChain(t *testing.T) {
	ctx := newTestArchive(t)

	if err := Mkdir(ctx, "/a"); err != nil {
		t.Fatalf("mkdir /a: %v", err)
	}
	if err := Mkdir(ctx, "/a/b"); err != nil {
		t.Fatalf("mkdir /a/b: %v", err)
	}
	if err := Mkdir(ctx, "/a/b/c"); err != nil {
		t.Fatalf("mkdir /a/b/c: %v", err)
	}

	entries, err := Ls(ctx, "/a/b")
	if err != nil {
		t.Fatalf("ls /a/b: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "c" {
		t.Fatalf("expected [c], got %+v", entries)
	}

	rootEntries, err := Ls(ctx, "/")
	if err != nil {
		t.Fatalf("ls /: %v", err)
	}
	if len(rootEntries) != 1 || rootEntries[0].Name != "a" {
		t.Fatalf("expected root to have one entry 'a', got %+v", rootEntries)
	}
}

func TestMkdirRejectsDuplicateAndMissingParent(t *testing.T) {
	ctx := newTestArchive(t)
	if err := Mkdir(ctx, "/a"); err != nil {
		t.Fatalf("mkdir /a: %v", err)
	}
	if err := Mkdir(ctx, "/a"); err == nil {
		t.Fatal("expected AlreadyExists mkdir-ing /a twice")
	}
	if err := Mkdir(ctx, "/missing/x"); err == nil {
		t.Fatal("expected error mkdir-ing under a missing parent")
	}
}

// TestPutSmallFile exercises put of a small file and reads it back via cat.
func TestPutSmallFile(t *testing.T) {
	ctx := newTestArchive(t)

	local := filepath.Join(t.TempDir(), "hello.txt")
	if err := os.WriteFile(local, []byte("hi\n"), 0644); err != nil {
		t.Fatalf("write local file: %v", err)
	}

	if err := Put(ctx, local, "/hello.txt"); err != nil {
		t.Fatalf("put: %v", err)
	}

	st, err := Stat(ctx, "/hello.txt")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.Size != 3 {
		t.Fatalf("expected size 3, got %d", st.Size)
	}
	if st.ChunkCount != 1 {
		t.Fatalf("expected 1 chunk, got %d", st.ChunkCount)
	}

	var out bytes.Buffer
	if err := Cat(ctx, "/hello.txt", &out); err != nil {
		t.Fatalf("cat: %v", err)
	}
	if out.String() != "hi\n" {
		t.Fatalf("cat mismatch: got %q", out.String())
	}
}

func TestPutOverwritesExistingInode(t *testing.T) {
	ctx := newTestArchive(t)
	dir := t.TempDir()

	local1 := filepath.Join(dir, "v1.txt")
	os.WriteFile(local1, []byte("first"), 0644)
	if err := Put(ctx, local1, "/f.txt"); err != nil {
		t.Fatalf("put v1: %v", err)
	}

	local2 := filepath.Join(dir, "v2.txt")
	os.WriteFile(local2, []byte("second version"), 0644)
	if err := Put(ctx, local2, "/f.txt"); err != nil {
		t.Fatalf("put v2: %v", err)
	}

	entries, err := Ls(ctx, "/")
	if err != nil {
		t.Fatalf("ls: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one entry after overwrite, got %d", len(entries))
	}

	var out bytes.Buffer
	if err := Cat(ctx, "/f.txt", &out); err != nil {
		t.Fatalf("cat: %v", err)
	}
	if out.String() != "second version" {
		t.Fatalf("expected overwritten content, got %q", out.String())
	}
}

// TestChmodRoundtrip exercises chmod and confirms the new mode persists.
func TestChmodRoundtrip(t *testing.T) {
	ctx := newTestArchive(t)
	if err := Mkdir(ctx, "/x"); err != nil {
		t.Fatalf("mkdir /x: %v", err)
	}

	before, err := Stat(ctx, "/x")
	if err != nil {
		t.Fatalf("stat before: %v", err)
	}

	if err := Chmod(ctx, "/x", 0o750); err != nil {
		t.Fatalf("chmod 0750: %v", err)
	}
	mid, err := Stat(ctx, "/x")
	if err != nil {
		t.Fatalf("stat mid: %v", err)
	}
	if mid.Mode != 0o750 {
		t.Fatalf("expected mode 0750, got %o", mid.Mode)
	}

	if err := Chmod(ctx, "/x", 0o755); err != nil {
		t.Fatalf("chmod 0755: %v", err)
	}
	after, err := Stat(ctx, "/x")
	if err != nil {
		t.Fatalf("stat after: %v", err)
	}
	if after.Mode != before.Mode {
		t.Fatalf("expected mode restored to %o, got %o", before.Mode, after.Mode)
	}
}

func TestChmodPreservesHighBits(t *testing.T) {
	ctx := newTestArchive(t)
	local := filepath.Join(t.TempDir(), "f.txt")
	os.WriteFile(local, []byte("x"), 0644)
	if err := Put(ctx, local, "/f.txt"); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := Chmod(ctx, "/f.txt", 0o4755); err != nil {
		t.Fatalf("chmod with setuid bit: %v", err)
	}
	st, err := Stat(ctx, "/f.txt")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.Mode&0o777 != 0o755 {
		t.Fatalf("expected low 9 bits 0755, got %o", st.Mode&0o777)
	}

	if err := Chmod(ctx, "/f.txt", 0o644); err != nil {
		t.Fatalf("chmod without setuid: %v", err)
	}
	st2, err := Stat(ctx, "/f.txt")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st2.Mode&^0o777 != st.Mode&^0o777 {
		t.Fatalf("expected bits above low 9 preserved across chmod, got %o vs %o", st2.Mode, st.Mode)
	}
	if st2.Mode&0o777 != 0o644 {
		t.Fatalf("expected low 9 bits 0644, got %o", st2.Mode&0o777)
	}
}

// TestRmdirRecursive exercises rmdir of a populated subtree.
func TestRmdirRecursive(t *testing.T) {
	ctx := newTestArchive(t)
	if err := Mkdir(ctx, "/a"); err != nil {
		t.Fatalf("mkdir /a: %v", err)
	}
	if err := Mkdir(ctx, "/a/b"); err != nil {
		t.Fatalf("mkdir /a/b: %v", err)
	}
	local := filepath.Join(t.TempDir(), "f.txt")
	os.WriteFile(local, []byte("payload"), 0644)
	if err := Put(ctx, local, "/a/b/f"); err != nil {
		t.Fatalf("put /a/b/f: %v", err)
	}

	if err := Rmdir(ctx, "/a"); err != nil {
		t.Fatalf("rmdir /a: %v", err)
	}

	entries, err := Ls(ctx, "/")
	if err != nil {
		t.Fatalf("ls /: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty root after rmdir, got %+v", entries)
	}
	if _, err := Ls(ctx, "/a"); err == nil {
		t.Fatal("expected /a to be gone")
	}

	// Chunk stored by the earlier put is not garbage-collected.
	if ctx.Backend.(*backend.Memory).Len() == 0 {
		t.Fatal("expected backend chunk to survive rmdir (no GC by design)")
	}
}

// TestMkdirRmdirIsCatalogNoOp exercises mkdir immediately followed by
// rmdir of the same path: the set of keys reachable through the
// catalog's entries table must end up exactly where it started.
func TestMkdirRmdirIsCatalogNoOp(t *testing.T) {
	ctx := newTestArchive(t)

	before, err := ctx.DB.Keys()
	if err != nil {
		t.Fatalf("Keys before: %v", err)
	}

	if err := Mkdir(ctx, "/tmp"); err != nil {
		t.Fatalf("mkdir /tmp: %v", err)
	}
	if err := Rmdir(ctx, "/tmp"); err != nil {
		t.Fatalf("rmdir /tmp: %v", err)
	}

	after, err := ctx.DB.Keys()
	if err != nil {
		t.Fatalf("Keys after: %v", err)
	}

	if len(after) != len(before) {
		t.Fatalf("expected catalog entry count unchanged, got %d before, %d after", len(before), len(after))
	}
	sort.Strings(before)
	sort.Strings(after)
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("expected identical key sets, before=%v after=%v", before, after)
		}
	}

	entries, err := Ls(ctx, "/")
	if err != nil {
		t.Fatalf("ls /: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty root after mkdir;rmdir, got %+v", entries)
	}
}

func TestRmRejectsDirectories(t *testing.T) {
	ctx := newTestArchive(t)
	if err := Mkdir(ctx, "/a"); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := Rm(ctx, "/a"); err == nil {
		t.Fatal("expected rm of a directory to fail")
	}
}

func TestRmdirRejectsRoot(t *testing.T) {
	ctx := newTestArchive(t)
	if err := Rmdir(ctx, "/"); err == nil {
		t.Fatal("expected rmdir / to fail")
	}
}

func TestPutDirAndFind(t *testing.T) {
	ctx := newTestArchive(t)

	src := t.TempDir()
	os.MkdirAll(filepath.Join(src, "nested"), 0755)
	os.WriteFile(filepath.Join(src, "top.txt"), []byte("top"), 0644)
	os.WriteFile(filepath.Join(src, "nested", "leaf.txt"), []byte("leaf content"), 0644)
	os.Symlink("top.txt", filepath.Join(src, "link"))

	if err := PutDir(ctx, src, "/tree"); err != nil {
		t.Fatalf("putdir: %v", err)
	}

	entries, stats, err := Find(ctx)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stats.Regular != 2 {
		t.Fatalf("expected 2 regular files, got %d", stats.Regular)
	}
	if stats.Symlinks != 1 {
		t.Fatalf("expected 1 symlink, got %d", stats.Symlinks)
	}
	if stats.Directories != 2 { // /tree and /tree/nested
		t.Fatalf("expected 2 directories, got %d", stats.Directories)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries total, got %d: %+v", len(entries), entries)
	}

	var out bytes.Buffer
	if err := Cat(ctx, "/tree/nested/leaf.txt", &out); err != nil {
		t.Fatalf("cat nested file: %v", err)
	}
	if out.String() != "leaf content" {
		t.Fatalf("unexpected nested file content: %q", out.String())
	}
}

func TestCatWithoutBackendIsFatal(t *testing.T) {
	ctx, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	defer ctx.DB.Close()

	local := filepath.Join(t.TempDir(), "f.txt")
	os.WriteFile(local, []byte("data"), 0644)
	if err := Put(ctx, local, "/f.txt"); err != nil {
		t.Fatalf("put without backend should still succeed: %v", err)
	}

	if err := Cat(ctx, "/f.txt", &bytes.Buffer{}); err == nil {
		t.Fatal("expected cat without a backend to fail")
	}
}
