package backend

import (
	"bytes"
	"testing"
)

func TestMemoryPutGetRoundTrip(t *testing.T) {
	m := NewMemory()
	key := []byte("chunk-1")
	value := []byte("ciphertext bytes")

	if err := m.Put(key, value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, found, err := m.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found {
		t.Fatal("expected key to be found")
	}
	if !bytes.Equal(got, value) {
		t.Fatalf("got %q, want %q", got, value)
	}
}

func TestMemoryGetMissing(t *testing.T) {
	m := NewMemory()
	_, found, err := m.Get([]byte("nope"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Fatal("expected missing key to report not found")
	}
}

func TestMemoryPutIsIdempotent(t *testing.T) {
	m := NewMemory()
	key := []byte("chunk-1")
	value := []byte("same bytes")

	if err := m.Put(key, value); err != nil {
		t.Fatalf("first put failed: %v", err)
	}
	if err := m.Put(key, value); err != nil {
		t.Fatalf("second put failed: %v", err)
	}
	if m.Len() != 1 {
		t.Fatalf("expected one stored object, got %d", m.Len())
	}
}

func TestMemoryLen(t *testing.T) {
	m := NewMemory()
	if m.Len() != 0 {
		t.Fatalf("expected empty store, got %d", m.Len())
	}
	_ = m.Put([]byte("a"), []byte("1"))
	_ = m.Put([]byte("b"), []byte("2"))
	if m.Len() != 2 {
		t.Fatalf("expected 2 stored objects, got %d", m.Len())
	}
}

func TestDescriptorEncodeParseRoundTrip(t *testing.T) {
	d := Descriptor{Host: "cache.example.com", Port: 9900, Namespace: "flist"}
	encoded, err := d.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := ParseDescriptor(encoded)
	if err != nil {
		t.Fatalf("ParseDescriptor failed: %v", err)
	}
	if decoded != d {
		t.Fatalf("got %+v, want %+v", decoded, d)
	}
}

func TestParseDescriptorRejectsMalformedJSON(t *testing.T) {
	if _, err := ParseDescriptor([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed descriptor")
	}
}
