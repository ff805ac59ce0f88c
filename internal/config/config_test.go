package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
anthropic:
  api_key: test-key
  model: claude-sonnet-4-20250514
store:
  path: /tmp/test.db
roster:
  path: /tmp/roster.yaml
  watch: true
execution:
  max_retries: 5
  backoff: 500ms
  subtask_timeout: 30s
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("APIKey = %q", cfg.Anthropic.APIKey)
	}
	if cfg.Store.Path != "/tmp/test.db" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if !cfg.Roster.Watch {
		t.Error("Roster.Watch = false, want true")
	}
	if cfg.Execution.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.Execution.MaxRetries)
	}
	if cfg.Execution.Backoff != 500*time.Millisecond {
		t.Errorf("Backoff = %v, want 500ms", cfg.Execution.Backoff)
	}
	if cfg.Execution.SubtaskTimeout != 30*time.Second {
		t.Errorf("SubtaskTimeout = %v, want 30s", cfg.Execution.SubtaskTimeout)
	}
}

func TestLoadFromPathDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("anthropic:\n  api_key: k\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Execution.MaxRetries != 2 {
		t.Errorf("default MaxRetries = %d, want 2", cfg.Execution.MaxRetries)
	}
	if cfg.Execution.Backoff != 2*time.Second {
		t.Errorf("default Backoff = %v, want 2s", cfg.Execution.Backoff)
	}
	if cfg.Execution.SubtaskTimeout != 2*time.Minute {
		t.Errorf("default SubtaskTimeout = %v, want 2m", cfg.Execution.SubtaskTimeout)
	}
	if cfg.Roster.Watch {
		t.Error("default Roster.Watch = true, want false")
	}
}

func TestLoadFromPathExpandsEnvInAPIKey(t *testing.T) {
	t.Setenv("MAESTRO_TEST_SECRET", "expanded-key")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("anthropic:\n  api_key: $MAESTRO_TEST_SECRET\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Anthropic.APIKey != "expanded-key" {
		t.Errorf("APIKey = %q, want expanded-key", cfg.Anthropic.APIKey)
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
