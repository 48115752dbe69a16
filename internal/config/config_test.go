package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Workers != 3 {
		t.Errorf("expected 3 workers, got %d", cfg.Workers)
	}
	if cfg.QueueSize != 0 {
		t.Errorf("expected unbounded queue, got %d", cfg.QueueSize)
	}
	if cfg.TaskTimeout != 0 {
		t.Errorf("expected no task timeout, got %v", cfg.TaskTimeout)
	}
	if !cfg.SocketTakeover {
		t.Error("expected socket takeover by default")
	}
	if cfg.AssistantCommand != "claude" {
		t.Errorf("expected claude assistant, got %q", cfg.AssistantCommand)
	}
	if cfg.SocketPath == "" {
		t.Error("socket path should not be empty")
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Workers != 3 {
		t.Errorf("expected defaults for missing file, got %d workers", cfg.Workers)
	}
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `socket_path: /tmp/test.sock
workers: 5
queue_size: 10
task_timeout: 30m
socket_takeover: false
assistant_command: codex
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.SocketPath != "/tmp/test.sock" {
		t.Errorf("expected /tmp/test.sock, got %q", cfg.SocketPath)
	}
	if cfg.Workers != 5 {
		t.Errorf("expected 5 workers, got %d", cfg.Workers)
	}
	if cfg.QueueSize != 10 {
		t.Errorf("expected queue size 10, got %d", cfg.QueueSize)
	}
	if cfg.TaskTimeout != 30*time.Minute {
		t.Errorf("expected 30m timeout, got %v", cfg.TaskTimeout)
	}
	if cfg.SocketTakeover {
		t.Error("expected socket takeover disabled")
	}
	if cfg.AssistantCommand != "codex" {
		t.Errorf("expected codex, got %q", cfg.AssistantCommand)
	}
	// Unset keys keep defaults.
	if cfg.ImagePrefix != "taskcell" {
		t.Errorf("expected default image prefix, got %q", cfg.ImagePrefix)
	}
}

func TestLoadFromPathBadTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("task_timeout: soon\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := LoadFromPath(path); err == nil {
		t.Error("expected error for unparseable timeout")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TASKCELL_SOCKET", "/tmp/env.sock")
	t.Setenv("TASKCELL_WORKERS", "7")
	t.Setenv("TASKCELL_ASSISTANT", "gemini")

	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.SocketPath != "/tmp/env.sock" {
		t.Errorf("expected env socket, got %q", cfg.SocketPath)
	}
	if cfg.Workers != 7 {
		t.Errorf("expected 7 workers, got %d", cfg.Workers)
	}
	if cfg.AssistantCommand != "gemini" {
		t.Errorf("expected gemini, got %q", cfg.AssistantCommand)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	got := expandPath("~/foo/bar")
	want := filepath.Join(home, "foo", "bar")
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	if got := expandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("absolute path should pass through, got %q", got)
	}
}
