// Package bond persists the set of device identifiers the user has
// approved. Connecting to a device bonds it; bonded devices survive scan
// pruning and reappear as disconnected entries across sessions.
package bond

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/tracklab/gatelink/internal/config"
)

// Store is the minimal key-value surface the controller needs. The
// identifier set round-trips exactly; order is irrelevant.
type Store interface {
	LoadIdentifiers() (map[string]struct{}, error)
	SaveIdentifiers(ids map[string]struct{}) error
}

// FileStore keeps the bond set as a JSON array of identifiers.
type FileStore struct {
	path string
}

// DefaultPath returns the default bond file (~/.gatelink/bonded.json).
func DefaultPath() (string, error) {
	dir, err := config.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "bonded.json"), nil
}

// Open returns a FileStore backed by the given path.
func Open(path string) *FileStore {
	return &FileStore{path: path}
}

// OpenDefault opens the store at the default path.
func OpenDefault() (*FileStore, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return Open(path), nil
}

// LoadIdentifiers reads the persisted bond set. A missing file is an
// empty set, not an error.
func (s *FileStore) LoadIdentifiers() (map[string]struct{}, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read bond file: %w", err)
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("failed to parse bond file: %w", err)
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// SaveIdentifiers writes the bond set back out, sorted for stable diffs.
func (s *FileStore) SaveIdentifiers(set map[string]struct{}) error {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	data, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create bond dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write bond file: %w", err)
	}
	return nil
}

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	ids map[string]struct{}
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: map[string]struct{}{}}
}

// LoadIdentifiers returns a copy of the stored set.
func (s *MemoryStore) LoadIdentifiers() (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(s.ids))
	for id := range s.ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// SaveIdentifiers replaces the stored set with a copy of ids.
func (s *MemoryStore) SaveIdentifiers(ids map[string]struct{}) error {
	out := make(map[string]struct{}, len(ids))
	for id := range ids {
		out[id] = struct{}{}
	}
	s.ids = out
	return nil
}
