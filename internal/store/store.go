// Package store persists the small amount of state the monitor keeps between
// runs: the zone set and the last connected device id.
package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
)

// Well-known keys
const (
	KeyZones        = "zones"
	KeyLastDeviceID = "last_device_id"
)

var (
	ErrNotFound         = errors.New("key not found")
	ErrPersistenceRead  = errors.New("persistence read failure")
	ErrPersistenceWrite = errors.New("persistence write failure")
)

// Store is a key-value store where every Set is applied atomically.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Open picks a backend from the path: SQLite for .db/.sqlite files, YAML otherwise.
// An empty path yields an in-memory store.
func Open(path string) (Store, error) {
	if path == "" {
		return NewMemory(), nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return NewSQLite(path)
	default:
		return NewFile(path)
	}
}

// Memory is a Store kept in process memory.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Close() error { return nil }
