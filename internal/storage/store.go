// Package storage keeps saved entity data on the local filesystem under a
// data root: one JSON document per entity, number maps written by restores,
// the git mirror and a manifest describing the save.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// ErrNotFound is returned when an entity has no saved data.
var ErrNotFound = errors.New("no saved data")

const (
	dataSuffix = ".json"
	mapSuffix  = ".map.json"
)

// Store reads and writes entity documents under Root.
type Store struct {
	root string
	mu   sync.Mutex // serializes manifest read-modify-write
}

// Open returns a store rooted at dir, creating it when needed.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("open store: empty data root")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute data root.
func (s *Store) Root() string { return s.root }

// Path joins elem onto the data root.
func (s *Store) Path(elem ...string) string {
	return filepath.Join(append([]string{s.root}, elem...)...)
}

// DataPath returns the document path for entity.
func (s *Store) DataPath(entity string) string {
	return s.Path(entity + dataSuffix)
}

// Write stores v as the document for entity, replacing it atomically.
func (s *Store) Write(entity string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", entity, err)
	}
	return writeAtomic(s.DataPath(entity), append(data, '\n'))
}

// Read decodes the document for entity into v.
func (s *Store) Read(entity string, v any) error {
	data, err := os.ReadFile(s.DataPath(entity))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", entity, ErrNotFound)
		}
		return fmt.Errorf("read %s: %w", entity, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", entity, err)
	}
	return nil
}

// Has reports whether entity has a saved document.
func (s *Store) Has(entity string) bool {
	_, err := os.Stat(s.DataPath(entity))
	return err == nil
}

// NumberMap maps item numbers in the saved project to the numbers they got
// in the restored project.
type NumberMap map[int]int

// WriteMap stores the number map produced by restoring entity.
func (s *Store) WriteMap(entity string, m NumberMap) error {
	enc := make(map[string]int, len(m))
	for k, v := range m {
		enc[strconv.Itoa(k)] = v
	}
	data, err := json.MarshalIndent(enc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s map: %w", entity, err)
	}
	return writeAtomic(s.Path(entity+mapSuffix), append(data, '\n'))
}

// ReadMap loads the number map of entity. A missing map yields an empty map.
func (s *Store) ReadMap(entity string) (NumberMap, error) {
	data, err := os.ReadFile(s.Path(entity + mapSuffix))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NumberMap{}, nil
		}
		return nil, fmt.Errorf("read %s map: %w", entity, err)
	}
	var enc map[string]int
	if err := json.Unmarshal(data, &enc); err != nil {
		return nil, fmt.Errorf("decode %s map: %w", entity, err)
	}
	m := make(NumberMap, len(enc))
	for k, v := range enc {
		n, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("decode %s map: key %q: %w", entity, k, err)
		}
		m[n] = v
	}
	return m, nil
}

// Lookup returns the restored number for old, or old itself when unmapped.
func (m NumberMap) Lookup(old int) int {
	if n, ok := m[old]; ok {
		return n
	}
	return old
}

// writeAtomic writes data to a temp file beside path and renames it in place.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
