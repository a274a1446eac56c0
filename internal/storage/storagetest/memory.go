// Package storagetest provides an in-memory storage.Store for tests.
package storagetest

import (
	"context"
	"errors"
	"sync"
)

// Memory is an in-memory store that records every call in order.
// FailWrites makes every write return an error.
type Memory struct {
	mu       sync.Mutex
	digests  map[string]string
	contents map[string][]byte
	calls    []string

	FailWrites bool
}

var ErrInjected = errors.New("injected storage failure")

func NewMemory() *Memory {
	return &Memory{digests: map[string]string{}, contents: map[string][]byte{}}
}

// Seed sets a digest/content pair without recording a call.
func (m *Memory) Seed(key, digest string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.digests[key] = digest
	if content != nil {
		m.contents[key] = append([]byte(nil), content...)
	}
}

func (m *Memory) ReadDigest(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "read_digest:"+key)
	d, ok := m.digests[key]
	return d, ok, nil
}

func (m *Memory) WriteDigest(_ context.Context, key, digest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "write_digest:"+key)
	if m.FailWrites {
		return ErrInjected
	}
	m.digests[key] = digest
	return nil
}

func (m *Memory) ReadContent(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "read_content:"+key)
	c, ok := m.contents[key]
	return append([]byte(nil), c...), ok, nil
}

func (m *Memory) WriteContent(_ context.Context, key string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "write_content:"+key)
	if m.FailWrites {
		return ErrInjected
	}
	m.contents[key] = append([]byte(nil), content...)
	return nil
}

func (m *Memory) Close() error { return nil }

// Digest returns the stored digest for key.
func (m *Memory) Digest(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.digests[key]
	return d, ok
}

// Content returns the stored content for key.
func (m *Memory) Content(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contents[key]
	return c, ok
}

// Calls returns a copy of the recorded call log.
func (m *Memory) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}
