// Package storage implements the filesystem-backed key-value store used for
// cross-redirect OAuth state. Each store ID maps to one JSON document on
// disk; writes are atomic (temp file, fsync, rename) and files are kept at
// mode 0600.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sync"
)

// storeIDPattern is the only accepted shape for store IDs. Anything else is
// rejected outright rather than sanitized, which closes path traversal.
var storeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ErrInvalidStoreID is returned for IDs that fail validation.
var ErrInvalidStoreID = errors.New("invalid store id: must match ^[A-Za-z0-9_-]+$")

// ValidateStoreID checks a store ID against the strict pattern.
func ValidateStoreID(id string) error {
	if id == "" || !storeIDPattern.MatchString(id) {
		return ErrInvalidStoreID
	}
	return nil
}

// DefaultDir returns the default storage root, $HOME/.mcp-inspector/storage.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".mcp-inspector", "storage")
	}
	return filepath.Join(home, ".mcp-inspector", "storage")
}

// Store persists JSON documents keyed by store ID under one directory.
type Store struct {
	dir    string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewStore creates a store rooted at dir. The directory is created lazily on
// first write.
func NewStore(dir string, logger *slog.Logger) *Store {
	if dir == "" {
		dir = DefaultDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

// Dir returns the storage root.
func (s *Store) Dir() string { return s.dir }

// Get reads the document for id. A missing file reads as the empty document
// {}; any other read failure is an error.
func (s *Store) Get(id string) (json.RawMessage, error) {
	if err := ValidateStoreID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return json.RawMessage("{}"), nil
		}
		return nil, fmt.Errorf("read store %s: %w", id, err)
	}
	if len(data) == 0 || !json.Valid(data) {
		return json.RawMessage("{}"), nil
	}
	return data, nil
}

// Put overwrites the document for id. The write sequence is: ensure the
// directory exists, take the in-process mutex and a cross-process flock,
// write to <id>.json.tmp, fsync, rename over <id>.json, then chmod 0600
// (ignored on platforms without POSIX permissions).
func (s *Store) Put(id string, doc json.RawMessage) error {
	if err := ValidateStoreID(id); err != nil {
		return err
	}
	if !json.Valid(doc) {
		return errors.New("document is not valid JSON")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}

	path := s.path(id)
	lockFile, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer func() { _ = lockFile.Close() }()
	if err := flockLock(lockFile.Fd()); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer flockUnlock(lockFile.Fd()) //nolint:errcheck

	if err := s.writeAtomic(path, doc); err != nil {
		return err
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(path, 0600); err != nil {
			s.logger.Warn("failed to set permissions on store file", "store_id", id, "error", err)
		}
	}
	return nil
}

// Delete removes the document for id. A missing file is success.
func (s *Store) Delete(id string) error {
	if err := ValidateStoreID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete store %s: %w", id, err)
	}
	return nil
}

// writeAtomic writes data through a temp file so concurrent readers never
// observe a partial document. The temp file is cleaned up on any error.
func (s *Store) writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}
