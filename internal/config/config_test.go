package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Fatalf("listen = %q", cfg.Listen)
	}
	if cfg.Cache.Backend != "memory" || cfg.Cache.TTL != 30*time.Second {
		t.Fatalf("cache defaults = %+v", cfg.Cache)
	}
	if cfg.Meta.Backend != "filesystem" {
		t.Fatalf("meta backend = %q", cfg.Meta.Backend)
	}
	if cfg.Token.Enable {
		t.Fatal("token enabled by default")
	}
}

func TestLoadFileAndValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trackd.yaml")
	content := `
listen: ":9090"
storage:
  root: /var/lib/trackd
token:
  enable: true
  secret: s3cret
document_server:
  site_url: http://docs.internal/
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9090" || cfg.Storage.Root != "/var/lib/trackd" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if !cfg.Token.Enable || cfg.Token.Secret != "s3cret" {
		t.Fatalf("token = %+v", cfg.Token)
	}
}

func TestLoadRejectsTokenWithoutSecret(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trackd.yaml")
	if err := os.WriteFile(path, []byte("token:\n  enable: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error")
	}
}
