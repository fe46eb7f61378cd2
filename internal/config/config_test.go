package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.MaxFiles != 50 || cfg.MaxFileBytes != 500<<20 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.DBDriver != "sqlite" || cfg.DefaultCurrency != "ETB" || !cfg.MetricsEnabled {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "tenderdesk.yaml")
	yml := "max_files: 5\nupload_root: /srv/uploads\ndefault_currency: usd\nallowed_types:\n  - application/pdf\n"
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("TENDER_HASH_WORKERS=7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TENDER_MAX_FILES", "9")
	t.Setenv("TENDER_STRICT_COERCION", "true")
	t.Cleanup(func() { os.Unsetenv("TENDER_HASH_WORKERS") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxFiles != 9 {
		t.Errorf("env should override file: MaxFiles = %d", cfg.MaxFiles)
	}
	if cfg.UploadRoot != "/srv/uploads" {
		t.Errorf("UploadRoot = %q", cfg.UploadRoot)
	}
	if !cfg.StrictCoercion {
		t.Errorf("StrictCoercion not applied")
	}
	if cfg.HashWorkers != 7 {
		t.Errorf(".env not loaded: HashWorkers = %d", cfg.HashWorkers)
	}

	opts := cfg.IntakeOptions()
	if opts.MaxFiles != 9 || opts.DefaultCurrency != "usd" || len(opts.AllowedTypes) != 1 {
		t.Errorf("unexpected intake options: %+v", opts)
	}
}

func TestEnvListAndBadNumbers(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TENDER_ALLOWED_TYPES", "application/pdf, image/png,,")
	t.Setenv("TENDER_MAX_FILE_BYTES", "lots")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.AllowedTypes) != 2 || cfg.AllowedTypes[1] != "image/png" {
		t.Errorf("AllowedTypes = %v", cfg.AllowedTypes)
	}
	if cfg.MaxFileBytes != 500<<20 {
		t.Errorf("bad number should keep default, got %d", cfg.MaxFileBytes)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.MaxFiles = 0
	cfg.DBDriver = "mysql"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"max_files", "mysql"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
