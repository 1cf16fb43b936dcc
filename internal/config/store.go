package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmagar/cloudie-cli/internal/model"
)

// Store is the key-value settings store the download pipeline reads from.
type Store interface {
	Get(key string) (any, bool)
}

// String reads a string setting. Absent keys and non-string values
// return a *model.ConfigMissingError naming the key.
func String(s Store, key string) (string, error) {
	v, ok := s.Get(key)
	if !ok {
		return "", &model.ConfigMissingError{Field: key}
	}
	str, ok := v.(string)
	if !ok {
		return "", &model.ConfigMissingError{Field: key}
	}
	return str, nil
}

// Bool reads a boolean setting.
func Bool(s Store, key string) (bool, error) {
	v, ok := s.Get(key)
	if !ok {
		return false, &model.ConfigMissingError{Field: key}
	}
	b, ok := v.(bool)
	if !ok {
		return false, &model.ConfigMissingError{Field: key}
	}
	return b, nil
}

// MapStore is an in-memory Store.
type MapStore map[string]any

func (m MapStore) Get(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

// FileStore is a Store backed by a JSON object on disk.
type FileStore struct {
	path string

	mu     sync.RWMutex
	values map[string]any
}

// LoadFileStore reads the JSON object at path.
func LoadFileStore(path string) (*FileStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	values := map[string]any{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse config at %s: %w", path, err)
	}
	return &FileStore{path: path, values: values}, nil
}

// NewFileStore returns an empty store that will be written to path on Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, values: map[string]any{}}
}

// Path returns the backing file.
func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Get(key string) (any, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.values[key]
	return v, ok
}

// Set updates a value in memory. Call Save to persist it.
func (f *FileStore) Set(key string, value any) {
	f.mu.Lock()
	f.values[key] = value
	f.mu.Unlock()
}

// Decode fills cfg from the stored values.
func (f *FileStore) Decode(cfg *model.Config) error {
	f.mu.RLock()
	data, err := json.Marshal(f.values)
	f.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode config at %s: %w", f.path, err)
	}
	return nil
}

// Save writes the store back to its file under an exclusive lock.
// The file is replaced atomically and kept at 0600.
func (f *FileStore) Save() error {
	f.mu.RLock()
	data, err := json.MarshalIndent(f.values, "", "  ")
	f.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}

	return WithFileLock(f.path+".lock", func() error {
		tmp, err := os.CreateTemp(dir, ".config-*.json")
		if err != nil {
			return fmt.Errorf("failed to write config to %s: %w", f.path, err)
		}
		tmpPath := tmp.Name()
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("failed to write config to %s: %w", f.path, err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to write config to %s: %w", f.path, err)
		}
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to chmod config: %w", err)
		}
		if err := os.Rename(tmpPath, f.path); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to replace config %s: %w", f.path, err)
		}
		return nil
	})
}
