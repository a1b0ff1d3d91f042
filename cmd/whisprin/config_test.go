package main

import (
	"os"
	"path/filepath"
	"testing"
)

// TestLoadDenylist tests the YAML denylist loader.
func TestLoadDenylist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "denylist.yaml")
	content := "denylist:\n  - WindowsTerminal.exe\n  - ConsoleWindowClass\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := loadDenylist(path)
	if err != nil {
		t.Fatalf("loadDenylist() = %v", err)
	}
	if m == nil {
		t.Fatal("expected a matcher")
	}
	if !m.matches("windowsterminal.exe", "") {
		t.Error("configured entry did not match")
	}
}

// TestLoadDenylist_Missing tests that an absent file or empty path disables
// suppression without error.
func TestLoadDenylist_Missing(t *testing.T) {
	m, err := loadDenylist("")
	if err != nil || m != nil {
		t.Errorf("empty path: matcher = %v, err = %v, want nil, nil", m, err)
	}

	m, err = loadDenylist(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil || m != nil {
		t.Errorf("missing file: matcher = %v, err = %v, want nil, nil", m, err)
	}
}

// TestLoadDenylist_Malformed tests that broken YAML is an error, not a
// silent no-op.
func TestLoadDenylist_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "denylist.yaml")
	if err := os.WriteFile(path, []byte(":\n\t- broken"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := loadDenylist(path); err == nil {
		t.Error("malformed denylist accepted")
	}
}
