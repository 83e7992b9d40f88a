package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Store persists one JSON document. Writes go to a temp file that is then
// renamed over the target, so readers never see a partial file.
type Store[T any] struct {
	path string
}

func New[T any](path string) *Store[T] {
	return &Store[T]{path: path}
}

func (s *Store[T]) Path() string { return s.path }

// Load decodes the stored document. A missing file returns fs.ErrNotExist
// (wrapped) so callers can fall back to defaults.
func (s *Store[T]) Load() (T, error) {
	var v T
	file, err := os.Open(s.path)
	if err != nil {
		return v, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&v); err != nil {
		return v, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return v, nil
}

// LoadOr returns def when nothing has been stored yet.
func (s *Store[T]) LoadOr(def T) (T, error) {
	v, err := s.Load()
	if errors.Is(err, fs.ErrNotExist) {
		return def, nil
	}
	return v, err
}

func (s *Store[T]) Save(v T) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	tmpPath := s.path + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		file.Close()
		return fmt.Errorf("encode %s: %w", s.path, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	file.Close()

	return os.Rename(tmpPath, s.path)
}
