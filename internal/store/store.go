// Package store persists arbitrary key/value state in a single on-disk
// JSON document. The document is rewritten wholesale on every mutation
// and carries version and timestamp fields so external tooling can tell
// writes apart.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// document is the on-disk shape.
type document struct {
	Version   int                        `json:"version"`
	CreatedAt time.Time                  `json:"createdAt"`
	UpdatedAt time.Time                  `json:"updatedAt"`
	Data      map[string]json.RawMessage `json:"data"`
}

// Store is a process-wide key/value document with last-writer-wins
// semantics. Safe for concurrent use.
type Store struct {
	path string

	mu  sync.Mutex
	doc document
}

// Open loads the document at path, creating an empty one in memory when
// the file does not exist yet. The file itself is only created on the
// first write.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s.doc = document{Data: make(map[string]json.RawMessage)}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("store: parse %s: %w", path, err)
	}
	if s.doc.Data == nil {
		s.doc.Data = make(map[string]json.RawMessage)
	}
	return s, nil
}

// Get unmarshals the value for key into v. It reports whether the key
// exists.
func (s *Store) Get(key string, v any) (bool, error) {
	s.mu.Lock()
	raw, ok := s.doc.Data[key]
	s.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("store: decode %q: %w", key, err)
	}
	return true, nil
}

// Set stores the value for key and rewrites the document.
func (s *Store) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Data[key] = raw
	return s.flushLocked()
}

// Delete removes key and rewrites the document. Unknown keys are a
// no-op and do not bump the version.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.doc.Data[key]; !ok {
		return nil
	}
	delete(s.doc.Data, key)
	return s.flushLocked()
}

// Version returns the current document version. Zero until the first
// write.
func (s *Store) Version() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Version
}

func (s *Store) flushLocked() error {
	now := time.Now().UTC()
	if s.doc.Version == 0 {
		s.doc.CreatedAt = now
	}
	s.doc.Version++
	s.doc.UpdatedAt = now

	data, err := json.MarshalIndent(&s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode document: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("store: write %s: %w", s.path, err)
	}
	return nil
}
