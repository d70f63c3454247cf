package storage

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tidwall/gjson"
)

// InventoryEntry summarizes one saved entity document.
type InventoryEntry struct {
	Entity string
	Path   string
	Items  int
	Bytes  int64
}

// Inventory lists saved entity documents, counting top-level array items
// without decoding them. Number maps and the manifest are excluded.
func (s *Store) Inventory() ([]InventoryEntry, error) {
	matches, err := doublestar.Glob(os.DirFS(s.root), "*"+dataSuffix)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.root, err)
	}
	var out []InventoryEntry
	for _, name := range matches {
		if name == manifestFile || strings.HasSuffix(name, mapSuffix) {
			continue
		}
		path := s.Path(name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		items := 0
		if doc := gjson.ParseBytes(data); doc.IsArray() {
			items = int(doc.Get("#").Int())
		}
		out = append(out, InventoryEntry{
			Entity: strings.TrimSuffix(name, dataSuffix),
			Path:   path,
			Items:  items,
			Bytes:  int64(len(data)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entity < out[j].Entity })
	return out, nil
}

// Matching returns the saved entity names whose document name matches the
// doublestar pattern, e.g. "*comments".
func (s *Store) Matching(pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}
	entries, err := s.Inventory()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if ok, _ := doublestar.Match(pattern, e.Entity); ok {
			names = append(names, e.Entity)
		}
	}
	return names, nil
}
