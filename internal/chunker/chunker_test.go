package chunker

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/threefoldtech/go-flist/internal/backend"
	"github.com/threefoldtech/go-flist/internal/hashutil"
)

func writeTempFile(t *testing.T, content []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "payload")
	if err := os.WriteFile(p, content, 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return p
}

func TestSplitSmallFileSingleChunk(t *testing.T) {
	be := backend.NewMemory()
	b := NewBuilder(be)

	path := writeTempFile(t, []byte("hi\n"))
	manifest, err := b.Split(path)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	if manifest.Size != 3 {
		t.Errorf("expected size 3, got %d", manifest.Size)
	}
	if len(manifest.Blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(manifest.Blocks))
	}

	wantKey := hashutil.Sum16([]byte("hi\n"))
	if manifest.Blocks[0].CipherKey != wantKey {
		t.Errorf("cipher key mismatch")
	}
	if be.Len() != 1 {
		t.Errorf("expected 1 object pushed to backend, got %d", be.Len())
	}
}

func TestSplitMultiBlock(t *testing.T) {
	be := backend.NewMemory()
	b := NewBuilder(be)
	b.BlockSize = 4

	path := writeTempFile(t, []byte("abcdefghij")) // 10 bytes -> 4,4,2
	manifest, err := b.Split(path)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(manifest.Blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(manifest.Blocks))
	}
	if manifest.Size != 10 {
		t.Errorf("expected size 10, got %d", manifest.Size)
	}
}

func TestSplitWithoutBackendStillHashes(t *testing.T) {
	b := NewBuilder(nil)
	path := writeTempFile(t, []byte("offline dry run"))

	manifest, err := b.Split(path)
	if err != nil {
		t.Fatalf("Split without backend should succeed: %v", err)
	}
	if len(manifest.Blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(manifest.Blocks))
	}
	if b.HasBackend() {
		t.Error("expected HasBackend false")
	}
}

func TestCatRoundTrip(t *testing.T) {
	be := backend.NewMemory()
	b := NewBuilder(be)
	b.BlockSize = 4

	content := []byte("the quick brown fox")
	path := writeTempFile(t, content)

	manifest, err := b.Split(path)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	var out bytes.Buffer
	if err := Cat(be, manifest.Blocks, &out); err != nil {
		t.Fatalf("Cat failed: %v", err)
	}
	if out.String() != string(content) {
		t.Errorf("cat mismatch: got %q want %q", out.String(), content)
	}
}

func TestCatWithoutBackendFails(t *testing.T) {
	b := NewBuilder(nil)
	path := writeTempFile(t, []byte("no backend"))
	manifest, err := b.Split(path)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	var out bytes.Buffer
	if err := Cat(nil, manifest.Blocks, &out); err == nil {
		t.Error("expected error catting without a configured backend")
	}
}

func TestDeduplicationAcrossIdenticalChunks(t *testing.T) {
	be := backend.NewMemory()
	b := NewBuilder(be)
	b.BlockSize = 4

	// "aaaa" repeated: identical plaintext chunks must dedup.
	path := writeTempFile(t, []byte("aaaaaaaa"))
	manifest, err := b.Split(path)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(manifest.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(manifest.Blocks))
	}
	if manifest.Blocks[0].ChunkID != manifest.Blocks[1].ChunkID {
		t.Error("identical plaintext chunks must produce identical chunk ids")
	}
	if be.Len() != 1 {
		t.Errorf("expected backend to dedup to 1 object, got %d", be.Len())
	}
}
