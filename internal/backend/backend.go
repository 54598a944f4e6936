// Package backend defines the narrow interface to the remote blob
// store addressed by chunk id. The store's own wire protocol is out
// of scope; this package ships the contract, an in-memory stub used
// by tests, and a minimal TCP client (dial.go).
package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
)

// Client is the contract a blob-store backend must satisfy:
// content-addressed put/get over opaque byte keys.
type Client interface {
	// Put stores value under key. Idempotent: a duplicate key is
	// allowed to short-circuit with success without rewriting.
	Put(key, value []byte) error

	// Get retrieves value by key. Returns (nil, false, nil) if
	// absent.
	Get(key []byte) ([]byte, bool, error)

	// Close releases any resources (connections) held by the client.
	Close() error
}

// Descriptor is the JSON shape of the "backend" metadata record
// persisted alongside the catalog.
type Descriptor struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Namespace string `json:"namespace"`
}

// ParseDescriptor decodes a backend descriptor from its JSON form.
func ParseDescriptor(data []byte) (Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("backend: parse descriptor: %w", err)
	}
	return d, nil
}

// Encode renders the descriptor back to its JSON form, for storage in
// the "backend" metadata record.
func (d Descriptor) Encode() ([]byte, error) {
	return json.Marshal(d)
}

// Memory is an in-memory Client, used by tests. Offline dry runs do
// not use it: with no backend configured the Client is nil and chunks
// are hashed and recorded without being uploaded. Safe for concurrent
// use.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Idempotent: identical key already present is a successful no-op.
	if existing, ok := m.data[string(key)]; ok {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[string(key)] = cp
	return nil
}

func (m *Memory) Get(key []byte) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (m *Memory) Close() error { return nil }

// Len reports how many objects are stored, useful in tests.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
