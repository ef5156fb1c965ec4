package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestManagerLoad_MissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(filepath.Join(dir, "settings.json"))

	settings, err := m.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.ListenAddr != ":4567" {
		t.Errorf("unexpected default listen addr %q", settings.ListenAddr)
	}
	if settings.DatabasePath != filepath.Join(dir, "library.db") {
		t.Errorf("database path not rooted at data dir: %q", settings.DatabasePath)
	}
	if settings.DownloadAheadLimit != 0 {
		t.Errorf("download-ahead must default to disabled, got %d", settings.DownloadAheadLimit)
	}
	if settings.APIRateLimitPerSecond != 5 || settings.APIRateLimitBurst != 20 {
		t.Errorf("unexpected rate limit defaults: %d/s burst %d",
			settings.APIRateLimitPerSecond, settings.APIRateLimitBurst)
	}
}

func TestManagerSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(filepath.Join(dir, "settings.json"))

	settings, _ := m.Load()
	settings.DownloadAheadLimit = 5
	settings.ListenAddr = ":9000"

	if err := m.Save(settings); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := m.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.DownloadAheadLimit != 5 || loaded.ListenAddr != ":9000" {
		t.Errorf("round trip lost changes: %+v", loaded)
	}
}

func TestManagerLoad_PartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	if err := os.WriteFile(path, []byte(`{"downloadAheadLimit": 3}`), 0o644); err != nil {
		t.Fatal(err)
	}

	settings, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.DownloadAheadLimit != 3 {
		t.Errorf("explicit value lost: %d", settings.DownloadAheadLimit)
	}
	if settings.ListenAddr != ":4567" {
		t.Errorf("unset field should keep its default, got %q", settings.ListenAddr)
	}
}

func TestDataDir_EnvOverride(t *testing.T) {
	t.Setenv("MANGAVAULT_DATA", "/custom/data")
	if got := DataDir(); got != "/custom/data" {
		t.Errorf("expected env override, got %q", got)
	}
}
