package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"bilancio/internal/kv"
)

// Store keeps values in a map. A store opened with NewFromFiles also writes
// every value back to <dir>/<key>.json; one built with New forgets
// everything on exit.
type Store struct {
	mu     sync.Mutex
	dir    string
	values map[string]string
}

// ErrInvalidKey is returned by Set for keys that cannot name a file.
var ErrInvalidKey = errors.New("key cannot be used as a file name")

var (
	_ kv.Store  = (*Store)(nil)
	_ kv.Lister = (*Store)(nil)
)

func New() *Store {
	return &Store{values: make(map[string]string)}
}

// NewFromFiles seeds the store from base/*.json: each file's name without
// the extension is a key and its content the value. A missing or unreadable
// directory yields an empty store. Set persists to the same directory,
// creating it on first write.
func NewFromFiles(base string) *Store {
	s := New()
	s.dir = base
	paths, err := filepath.Glob(filepath.Join(base, "*.json"))
	if err != nil {
		return s
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		content := strings.TrimSpace(string(data))
		if content == "" {
			continue
		}
		key := strings.TrimSuffix(filepath.Base(p), ".json")
		s.values[key] = content
	}
	return s
}

// Dir is the directory values are persisted to, empty when nothing is.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Set stores value under key. With a backing directory the file is written
// first, and the map is only updated when the write succeeded.
func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir != "" {
		if err := s.writeFile(key, value); err != nil {
			return err
		}
	}
	s.values[key] = value
	return nil
}

// writeFile replaces <dir>/<key>.json through a temporary file and rename.
func (s *Store) writeFile(key, value string) error {
	if !validKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, "."+key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(value + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, key+".json")); err != nil {
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}

func validKey(key string) bool {
	return key != "" && !strings.HasPrefix(key, ".") && !strings.ContainsAny(key, `/\`+"\x00")
}

// Keys returns the stored keys in sorted order.
func (s *Store) Keys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
