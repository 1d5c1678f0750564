// Package state persists the watcher's single durable record: the last
// observed change token and when it was observed.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var (
	// ErrNotFound reports that no record has ever been saved. This is the
	// normal first-run condition, not a failure.
	ErrNotFound = errors.New("state: no record")

	// ErrCorrupt reports that a record exists on disk but could not be
	// parsed. Unlike ErrNotFound this is surfaced as a fault: silently
	// treating a damaged record as absent would re-announce an old change.
	ErrCorrupt = errors.New("state: record corrupt")
)

// Record is the durable watch state.
type Record struct {
	// Token is the change token as last observed, quote-stripped.
	Token string `json:"token"`

	// ObservedAt is when Token was observed.
	ObservedAt time.Time `json:"-"`
}

// record is the on-disk shape: observed_at as integer milliseconds since the
// epoch, matching the documented persisted-state format.
type record struct {
	Token      string `json:"token"`
	ObservedAt int64  `json:"observed_at"`
}

// FileStore stores the record as a single JSON document on disk.
//
// Saves are atomic from the reader's perspective: the document is written to
// a temporary file in the same directory and renamed over the target, so a
// concurrent load never observes a partial write.
type FileStore struct {
	path string
}

// NewFileStore returns a store persisting to the given file path. The parent
// directory is created on the first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the target file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the persisted record.
//
// Returns [ErrNotFound] if the file does not exist, an error wrapping
// [ErrCorrupt] if it exists but cannot be parsed, and the underlying I/O
// error for anything else.
func (s *FileStore) Load() (Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("state: read %s: %w", s.path, err)
	}

	var raw record
	if err := json.Unmarshal(data, &raw); err != nil {
		return Record{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}

	return Record{
		Token:      raw.Token,
		ObservedAt: time.UnixMilli(raw.ObservedAt),
	}, nil
}

// Save writes the record atomically, creating the parent directory if needed.
func (s *FileStore) Save(r Record) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("state: create %s: %w", dir, err)
	}

	data, err := json.Marshal(record{
		Token:      r.Token,
		ObservedAt: r.ObservedAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("state: encode record: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".etag-*")
	if err != nil {
		return fmt.Errorf("state: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("state: write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("state: close %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("state: replace %s: %w", s.path, err)
	}
	return nil
}
