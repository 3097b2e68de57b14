// Package localstore is the client-side durable key/value space the tracker
// and error logger persist their state in.
package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Storage mirrors a browser's local storage: string values under string keys.
// Get reports false for a missing key.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
}

type Memory struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewMemory() *Memory {
	return &Memory{items: map[string]string{}}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	m.items[key] = value
	m.mu.Unlock()
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

// File keeps every key in one JSON document, rewritten atomically on each change.
type File struct {
	mu    sync.Mutex
	path  string
	items map[string]string
}

func OpenFile(path string) (*File, error) {
	f := &File{path: path, items: map[string]string{}}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &f.items); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return f, nil
}

func (f *File) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.items[key]
	return v, ok
}

// Set and Remove change the in-memory view only once the document is on disk.
func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := f.copyItems()
	next[key] = value
	if err := f.persist(next); err != nil {
		return err
	}
	f.items = next
	return nil
}

func (f *File) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[key]; !ok {
		return nil
	}
	next := f.copyItems()
	delete(next, key)
	if err := f.persist(next); err != nil {
		return err
	}
	f.items = next
	return nil
}

func (f *File) copyItems() map[string]string {
	out := make(map[string]string, len(f.items)+1)
	for k, v := range f.items {
		out[k] = v
	}
	return out
}

func (f *File) persist(items map[string]string) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".localstore-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

// Fallback writes to primary and falls back to an in-memory copy when the
// primary rejects the write, the way private-browsing local storage does.
type Fallback struct {
	primary Storage
	memory  *Memory
}

func WithFallback(primary Storage) *Fallback {
	return &Fallback{primary: primary, memory: NewMemory()}
}

func (f *Fallback) Get(key string) (string, bool) {
	if v, ok := f.memory.Get(key); ok {
		return v, true
	}
	return f.primary.Get(key)
}

func (f *Fallback) Set(key, value string) error {
	if err := f.primary.Set(key, value); err != nil {
		return f.memory.Set(key, value)
	}
	return f.memory.Remove(key)
}

func (f *Fallback) Remove(key string) error {
	_ = f.memory.Remove(key)
	return f.primary.Remove(key)
}
