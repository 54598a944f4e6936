// Package chunker implements the fixed-size chunking/encryption
// pipeline: splitting a local file into 512 KiB blocks, deriving a
// per-chunk key, encrypting, hashing, and pushing to the backend; and
// the inverse (cat) assembly.
//
// Chunks are recorded as a flat ordered manifest rather than a Merkle
// tree: nothing above needs content-addressed subtree sharing, only
// the ordered block list needed to reassemble a file.
package chunker

import (
	"fmt"
	"io"
	"os"

	"github.com/threefoldtech/go-flist/internal/backend"
	"github.com/threefoldtech/go-flist/internal/hashutil"
)

// DefaultBlockSize is the fixed chunk size used to split files.
const DefaultBlockSize = 512 * 1024

// Block is one entry of a file's chunk manifest.
type Block struct {
	ChunkID   hashutil.Key16
	CipherKey hashutil.Key16
}

// Manifest is the ordered chunk list and declared block size produced
// by Split, matching the file inode's chunk manifest.
type Manifest struct {
	BlockSize int64
	Blocks    []Block
	Size      int64 // sum of plaintext lengths
}

// Builder splits local files into chunks and pushes them to a
// backend. A nil Backend is valid: chunks are still hashed and
// recorded but not uploaded, permitting offline dry runs for
// put/putdir; it is the caller's job to surface that as a warning.
type Builder struct {
	Backend   backend.Client
	BlockSize int64
}

// NewBuilder creates a Builder with the given backend (may be nil)
// and the default 512 KiB block size.
func NewBuilder(be backend.Client) *Builder {
	return &Builder{Backend: be, BlockSize: DefaultBlockSize}
}

// Split reads localPath sequentially into fixed blocks, encrypting and
// hashing each.
func (b *Builder) Split(localPath string) (Manifest, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return Manifest{}, fmt.Errorf("chunker: open %s: %w", localPath, err)
	}
	defer f.Close()

	blockSize := b.BlockSize
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}

	manifest := Manifest{BlockSize: blockSize}
	buf := make([]byte, blockSize)

	for {
		n, readErr := io.ReadFull(f, buf)
		if n > 0 {
			block, err := b.pushBlock(buf[:n])
			if err != nil {
				return Manifest{}, err
			}
			manifest.Blocks = append(manifest.Blocks, block)
			manifest.Size += int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return Manifest{}, fmt.Errorf("chunker: read %s: %w", localPath, readErr)
		}
	}

	return manifest, nil
}

// pushBlock encrypts one plaintext block and, if a backend is
// configured, uploads the ciphertext.
func (b *Builder) pushBlock(plaintext []byte) (Block, error) {
	plainKey := hashutil.Sum16(plaintext)

	ciphertext, err := hashutil.Encrypt(plaintext, plainKey)
	if err != nil {
		return Block{}, fmt.Errorf("chunker: encrypt block: %w", err)
	}

	chunkID := hashutil.Sum16(ciphertext)

	if b.Backend != nil {
		if err := b.Backend.Put(chunkID[:], ciphertext); err != nil {
			return Block{}, fmt.Errorf("chunker: backend put %s: %w", chunkID, err)
		}
	}

	return Block{ChunkID: chunkID, CipherKey: plainKey}, nil
}

// HasBackend reports whether this builder will actually upload
// chunks, versus only hashing/recording them for a dry run.
func (b *Builder) HasBackend() bool {
	return b.Backend != nil
}

// Cat assembles a file's plaintext from its chunk manifest by
// fetching and decrypting each block in order.
func Cat(be backend.Client, blocks []Block, w io.Writer) error {
	if be == nil {
		return fmt.Errorf("chunker: cat requires a configured backend")
	}
	for i, blk := range blocks {
		ciphertext, found, err := be.Get(blk.ChunkID[:])
		if err != nil {
			return fmt.Errorf("chunker: fetch chunk %d (%s): %w", i, blk.ChunkID, err)
		}
		if !found {
			return fmt.Errorf("chunker: chunk %d (%s) not found in backend", i, blk.ChunkID)
		}
		plaintext, err := hashutil.Decrypt(ciphertext, blk.CipherKey)
		if err != nil {
			return fmt.Errorf("chunker: decrypt chunk %d (%s): %w", i, blk.ChunkID, err)
		}
		if _, err := w.Write(plaintext); err != nil {
			return fmt.Errorf("chunker: write chunk %d: %w", i, err)
		}
	}
	return nil
}
