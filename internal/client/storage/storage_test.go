package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestNewFileStorage_FileNotExist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "storage.json")

	fs, err := NewFileStorage(path)
	if err != nil {
		t.Fatalf("NewFileStorage failed: %v", err)
	}
	if _, ok := fs.Get("anything"); ok {
		t.Errorf("expected empty storage")
	}
}

func TestNewFileStorage_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	fs, err := NewFileStorage(path)
	if err != nil {
		t.Fatalf("NewFileStorage failed: %v", err)
	}
	if _, ok := fs.Get(TokenKey); ok {
		t.Errorf("expected corrupt file to load as empty")
	}
	if err := fs.Set("k", "v"); err != nil {
		t.Fatalf("Set after corrupt load failed: %v", err)
	}
}

func TestFileStorage_SetPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "storage.json")

	fs, err := NewFileStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.Set("greeting", "hello"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var onDisk map[string]string
	if err := json.Unmarshal(buf, &onDisk); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if onDisk["greeting"] != "hello" {
		t.Errorf("unexpected file content: %s", buf)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}

	reopened, err := NewFileStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := reopened.Get("greeting"); !ok || v != "hello" {
		t.Errorf("Get after reopen = %q, %v", v, ok)
	}
}

func TestFileStorage_Remove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	fs, err := NewFileStorage(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := fs.Remove("missing"); err != nil {
		t.Errorf("Remove of missing key returned %v", err)
	}
	_ = fs.Set("a", "1")
	_ = fs.Set("b", "2")
	if err := fs.Remove("a"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	reopened, _ := NewFileStorage(path)
	if _, ok := reopened.Get("a"); ok {
		t.Errorf("removed key still on disk")
	}
	if v, _ := reopened.Get("b"); v != "2" {
		t.Errorf("unrelated key lost, got %q", v)
	}
}

func TestMemoryStorage(t *testing.T) {
	m := NewMemoryStorage()
	if _, ok := m.Get("x"); ok {
		t.Fatal("expected empty storage")
	}
	_ = m.Set("x", "y")
	if v, ok := m.Get("x"); !ok || v != "y" {
		t.Errorf("Get = %q, %v", v, ok)
	}
	_ = m.Remove("x")
	if _, ok := m.Get("x"); ok {
		t.Errorf("expected key removed")
	}
}

func TestFileStorage_FailedWriteKeepsMemory(t *testing.T) {
	dir := t.TempDir()
	parent := filepath.Join(dir, "sub")
	fs, err := NewFileStorage(filepath.Join(parent, "storage.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.Set(TokenKey, `{"access":"abc"}`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Replace the directory with a plain file so every later write fails.
	if err := os.RemoveAll(parent); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(parent, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := fs.Remove(TokenKey); err == nil {
		t.Fatal("expected Remove to fail")
	}
	if v, ok := fs.Get(TokenKey); !ok || v != `{"access":"abc"}` {
		t.Errorf("failed Remove changed memory: %q, %v", v, ok)
	}

	if err := fs.Set("other", "v"); err == nil {
		t.Fatal("expected Set to fail")
	}
	if _, ok := fs.Get("other"); ok {
		t.Errorf("failed Set changed memory")
	}
}
