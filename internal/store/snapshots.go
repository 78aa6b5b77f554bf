package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileSnapshots keeps one <key>.json file per collection under dir.
type FileSnapshots struct {
	dir string
}

func NewFileSnapshots(dir string) (*FileSnapshots, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &FileSnapshots{dir: dir}, nil
}

func (f *FileSnapshots) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (f *FileSnapshots) PutAll(_ context.Context, snapshots map[string][]byte) error {
	for key, data := range snapshots {
		tmp := f.path(key) + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
		if err := os.Rename(tmp, f.path(key)); err != nil {
			return fmt.Errorf("replace %s: %w", key, err)
		}
	}
	return nil
}

func (f *FileSnapshots) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

type MemorySnapshots struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemorySnapshots() *MemorySnapshots {
	return &MemorySnapshots{data: map[string][]byte{}}
}

func (m *MemorySnapshots) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

func (m *MemorySnapshots) PutAll(_ context.Context, snapshots map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, data := range snapshots {
		m.data[key] = append([]byte(nil), data...)
	}
	return nil
}
