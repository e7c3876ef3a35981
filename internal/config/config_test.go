package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9000
engine:
  provider: scripted
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want default", cfg.Server.Host)
	}
	if cfg.Engine.Provider != "scripted" {
		t.Errorf("Engine.Provider = %q, want scripted", cfg.Engine.Provider)
	}
	if cfg.Engine.MaxToolRounds != 8 {
		t.Errorf("Engine.MaxToolRounds = %d, want default 8", cfg.Engine.MaxToolRounds)
	}
	if cfg.Server.ShutdownTimeout != 15*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want default", cfg.Server.ShutdownTimeout)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("SCRIBE_TEST_KEY", "sk-test-value")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
engine:
  api_key: ${SCRIBE_TEST_KEY}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Engine.APIKey != "sk-test-value" {
		t.Errorf("Engine.APIKey = %q, want expanded env value", cfg.Engine.APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Load() on missing file: want error")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.Port != 8080 {
		t.Errorf("Default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Storage.Path != "scribe.db" {
		t.Errorf("Default Storage.Path = %q", cfg.Storage.Path)
	}
	if cfg.Tracing.SamplingRate != 1.0 {
		t.Errorf("Default Tracing.SamplingRate = %v", cfg.Tracing.SamplingRate)
	}
}
