// Package hashutil provides the path-keying hash, hex rendering, and
// chunk envelope encryption used throughout the flist engine.
//
// Path and ACL keys are 16-byte keyed Blake2b digests (empty key),
// rendered as lowercase hex. The chunk envelope is AES-256-GCM keyed
// by the plaintext's Blake2b-128 hash, with a deterministic,
// key-derived nonce so identical plaintexts always encrypt to the
// same ciphertext (and therefore dedup at the backend).
package hashutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the output length, in bytes, of every path/ACL/chunk key
// in this engine.
const KeySize = 16

// Key16 is a 16-byte Blake2b digest used for K_path, K_acl, chunk ids
// and chunk cipher keys.
type Key16 [KeySize]byte

// String renders the key as lowercase hex.
func (k Key16) String() string {
	return hex.EncodeToString(k[:])
}

// IsZero reports whether k is the zero key (never a valid hash output,
// used as a sentinel for "absent").
func (k Key16) IsZero() bool {
	return k == Key16{}
}

// ParseKey16 parses a lowercase hex string into a Key16.
func ParseKey16(s string) (Key16, error) {
	var k Key16
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("hashutil: invalid key %q: %w", s, err)
	}
	if len(b) != KeySize {
		return k, fmt.Errorf("hashutil: key %q has length %d, want %d", s, len(b), KeySize)
	}
	copy(k[:], b)
	return k, nil
}

// Sum16 computes the 16-byte keyed Blake2b digest of data with an
// empty key.
func Sum16(data []byte) Key16 {
	h, err := blake2b.New(KeySize, nil)
	if err != nil {
		// Only parameter errors reach here (bad key/size), and both
		// are compile-time constants above.
		panic(fmt.Sprintf("hashutil: blake2b init: %v", err))
	}
	h.Write(data)
	var out Key16
	copy(out[:], h.Sum(nil))
	return out
}

// PathKey normalizes nothing itself — callers pass the already
// normalized path string (see dirtree.NormalizePath) — and returns
// its K_path.
func PathKey(normalizedPath string) Key16 {
	return Sum16([]byte(normalizedPath))
}

// ACLKey returns K_acl for the permission triple (uname, gname, mode).
func ACLKey(uname, gname string, mode uint16) Key16 {
	return Sum16([]byte(fmt.Sprintf("%s\x00%s\x00%d", uname, gname, mode)))
}

// LegacyPathKey32 reproduces the 32-byte Blake2b variant used by an
// older generation of the format for the same "path key" role. It
// exists solely so callers reading an archive in the wild can try the
// legacy width on a 16-byte lookup miss; nothing in this engine ever
// writes with it.
func LegacyPathKey32(normalizedPath string) [32]byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(fmt.Sprintf("hashutil: blake2b-256 init: %v", err))
	}
	h.Write([]byte(normalizedPath))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// nonceInfo is the HKDF "info" parameter fixing the nonce-derivation
// scheme documented in archive metadata under the "codec" name
// (value "flist/1"). Changing this string would silently break dedup
// against archives written under the old scheme, so it is never
// varied at runtime.
const nonceInfo = "flist-chunk-nonce/v1"

// deriveNonce expands a 16-byte chunk key into a 12-byte GCM nonce
// deterministically, so that encrypting the same plaintext always
// yields the same ciphertext (required for backend-side dedup).
func deriveNonce(key Key16) ([]byte, error) {
	r := hkdf.New(sha256.New, key[:], nil, []byte(nonceInfo))
	nonce := make([]byte, 12)
	if _, err := io.ReadFull(r, nonce); err != nil {
		return nil, fmt.Errorf("hashutil: derive nonce: %w", err)
	}
	return nonce, nil
}

// expandKey turns the 16-byte chunk key into the 32-byte AES-256 key
// via HKDF, domain-separated from nonce derivation.
func expandKey(key Key16) ([]byte, error) {
	r := hkdf.New(sha256.New, key[:], nil, []byte("flist-chunk-key/v1"))
	out := make([]byte, 32)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("hashutil: expand key: %w", err)
	}
	return out, nil
}

// Encrypt seals plaintext under an AES-256-GCM envelope keyed by key
// (the plaintext's Blake2b-128 hash). Nonce derivation is
// deterministic so identical plaintexts always produce identical
// ciphertext.
func Encrypt(plaintext []byte, key Key16) ([]byte, error) {
	aesKey, err := expandKey(key)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, fmt.Errorf("hashutil: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("hashutil: new gcm: %w", err)
	}
	nonce, err := deriveNonce(key)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, nonce, plaintext, nil), nil
}

// IntegrityError reports that a chunk's ciphertext failed AEAD
// verification. Callers map this to flisterr.CorruptArchive.
type IntegrityError struct {
	Err error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("hashutil: integrity check failed: %v", e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// Decrypt opens the AES-256-GCM envelope produced by Encrypt, given
// the same key. Any authentication failure is returned as an
// *IntegrityError.
func Decrypt(ciphertext []byte, key Key16) ([]byte, error) {
	aesKey, err := expandKey(key)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, fmt.Errorf("hashutil: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("hashutil: new gcm: %w", err)
	}
	nonce, err := deriveNonce(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, &IntegrityError{Err: err}
	}
	return plaintext, nil
}
