package config

import (
	"os"
	"path/filepath"
	"testing"
)

// withHome redirects os.UserHomeDir's result by setting HOME (and
// USERPROFILE for completeness), isolating the global config file to
// a throwaway directory for the duration of the test.
func withHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	return home
}

func TestDefaultConfigIdentity(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Identity.Uname != "root" || cfg.Identity.Gname != "root" {
		t.Fatalf("unexpected default identity: %+v", cfg.Identity)
	}
}

func TestSetAndGetArchiveValue(t *testing.T) {
	withHome(t)
	archiveDir := t.TempDir()

	if err := SetValue(archiveDir, "identity.uname", "alice", false); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	got, err := GetValue(archiveDir, "identity.uname")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if got != "alice" {
		t.Fatalf("got %q, want alice", got)
	}

	if _, err := os.Stat(filepath.Join(archiveDir, ConfigFileName)); err != nil {
		t.Fatalf("expected archive config file to exist: %v", err)
	}
}

func TestArchiveValueOverridesGlobal(t *testing.T) {
	withHome(t)
	archiveDir := t.TempDir()

	if err := SetValue("", "backend.host", "global.example.com", true); err != nil {
		t.Fatalf("set global failed: %v", err)
	}
	if err := SetValue(archiveDir, "backend.host", "archive.example.com", false); err != nil {
		t.Fatalf("set archive failed: %v", err)
	}

	got, err := GetValue(archiveDir, "backend.host")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if got != "archive.example.com" {
		t.Fatalf("expected archive override, got %q", got)
	}
}

func TestGetValueRejectsMalformedKey(t *testing.T) {
	withHome(t)
	if _, err := GetValue(t.TempDir(), "nodot"); err == nil {
		t.Fatal("expected error for key without a section.field dot")
	}
}
