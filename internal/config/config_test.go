package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.VaultRoot != "." {
		t.Errorf("VaultRoot = %q, want .", cfg.VaultRoot)
	}
	if cfg.FuzzyThreshold != 0.6 {
		t.Errorf("FuzzyThreshold = %v, want 0.6", cfg.FuzzyThreshold)
	}
	if cfg.SlowFileMillis != 500 {
		t.Errorf("SlowFileMillis = %d, want 500", cfg.SlowFileMillis)
	}
	if want := filepath.Join(".", ".vq", "index.db"); cfg.DBPath != want {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, want)
	}
	if cfg.Log.MaxSizeMB != 10 || cfg.Log.MaxBackups != 3 || !cfg.Log.Compress {
		t.Errorf("Log defaults = %+v", cfg.Log)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yaml := `vault_root: /srv/notes
fuzzy_threshold: 0.8
no_color: true
log:
  file: /var/log/vq.log
  max_backups: 7
`
	if err := os.WriteFile(filepath.Join(dir, "vaultquery.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.VaultRoot != "/srv/notes" {
		t.Errorf("VaultRoot = %q, want /srv/notes", cfg.VaultRoot)
	}
	if cfg.FuzzyThreshold != 0.8 {
		t.Errorf("FuzzyThreshold = %v, want 0.8", cfg.FuzzyThreshold)
	}
	if !cfg.NoColor {
		t.Error("NoColor = false, want true")
	}
	if cfg.Log.File != "/var/log/vq.log" || cfg.Log.MaxBackups != 7 {
		t.Errorf("Log = %+v", cfg.Log)
	}
	// Unset keys keep their defaults.
	if cfg.Log.MaxSizeMB != 10 {
		t.Errorf("Log.MaxSizeMB = %d, want default 10", cfg.Log.MaxSizeMB)
	}
	if want := filepath.Join("/srv/notes", ".vq", "index.db"); cfg.DBPath != want {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, want)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	if err := os.WriteFile(filepath.Join(dir, "vaultquery.yaml"), []byte("vault_root: /srv/notes\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("VQ_VAULT_ROOT", "/srv/other")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.VaultRoot != "/srv/other" {
		t.Errorf("VaultRoot = %q, want env override /srv/other", cfg.VaultRoot)
	}
}

func TestLoad_BadConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	if err := os.WriteFile(filepath.Join(dir, "vaultquery.yaml"), []byte("vault_root: [unclosed\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil, want parse error")
	}
}

func TestLoad_ExplicitDBPathKept(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	if err := os.WriteFile(filepath.Join(dir, "vaultquery.yaml"), []byte("db_path: /data/index.db\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DBPath != "/data/index.db" {
		t.Errorf("DBPath = %q, want explicit /data/index.db", cfg.DBPath)
	}
}
