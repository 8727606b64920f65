package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir(), nil)
}

func TestStore_RoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	doc := json.RawMessage(`{"state":"xyz","verifier":"abc"}`)

	if err := s.Put("oauth-state", doc); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := s.Get("oauth-state")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != string(doc) {
		t.Errorf("Get() = %s, want %s", got, doc)
	}
}

func TestStore_MissingReadsAsEmptyDocument(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	got, err := s.Get("never-written")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "{}" {
		t.Errorf("Get() = %s, want {}", got)
	}
}

func TestStore_CorruptFileReadsAsEmptyDocument(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := NewStore(dir, nil)
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{half a doc"), 0600); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get("broken")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "{}" {
		t.Errorf("Get() = %s, want {}", got)
	}
}

func TestStore_InvalidIDsRejected(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ids := []string{"", "../escape", "a/b", "a.b", "state json", "tab\tid"}
	for _, id := range ids {
		if _, err := s.Get(id); !errors.Is(err, ErrInvalidStoreID) {
			t.Errorf("Get(%q) error = %v, want ErrInvalidStoreID", id, err)
		}
		if err := s.Put(id, json.RawMessage("{}")); !errors.Is(err, ErrInvalidStoreID) {
			t.Errorf("Put(%q) error = %v, want ErrInvalidStoreID", id, err)
		}
		if err := s.Delete(id); !errors.Is(err, ErrInvalidStoreID) {
			t.Errorf("Delete(%q) error = %v, want ErrInvalidStoreID", id, err)
		}
	}
}

func TestStore_ValidIDs(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"a", "A-Z_09", "mcp-oauth-state", "x_y-z"} {
		if err := ValidateStoreID(id); err != nil {
			t.Errorf("ValidateStoreID(%q) = %v, want nil", id, err)
		}
	}
}

func TestStore_PutRejectsInvalidJSON(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	if err := s.Put("doc", json.RawMessage("{broken")); err == nil {
		t.Error("Put() accepted invalid JSON")
	}
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	if err := s.Put("doc", json.RawMessage("{}")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Delete("doc"); err != nil {
		t.Fatalf("first Delete() error = %v", err)
	}
	if err := s.Delete("doc"); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}

	got, err := s.Get("doc")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "{}" {
		t.Errorf("Get() after delete = %s, want {}", got)
	}
}

func TestStore_FileModeIs0600(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX permissions only")
	}

	dir := t.TempDir()
	s := NewStore(dir, nil)
	if err := s.Put("secret", json.RawMessage(`{"token":"s3cr3t"}`)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, "secret.json"))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file mode = %o, want 0600", perm)
	}
}

func TestStore_OverwriteReplacesDocument(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	if err := s.Put("doc", json.RawMessage(`{"v":1}`)); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("doc", json.RawMessage(`{"v":2}`)); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get("doc")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"v":2}` {
		t.Errorf("Get() = %s, want {\"v\":2}", got)
	}
}

func TestStore_LazyDirectoryCreation(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "deep", "nested", "storage")
	s := NewStore(dir, nil)

	// Reads before any write never create the directory.
	if _, err := s.Get("x"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("read created the storage directory")
	}

	if err := s.Put("x", json.RawMessage("{}")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("storage directory missing after write: %v", err)
	}
}
