package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseEnvPairs(t *testing.T) {
	env, err := parseEnvPairs([]string{"FOO=bar", "EMPTY=", "EQ=a=b"})
	if err != nil {
		t.Fatalf("parseEnvPairs failed: %v", err)
	}
	if env["FOO"] != "bar" {
		t.Errorf("FOO = %q, want bar", env["FOO"])
	}
	if v, ok := env["EMPTY"]; !ok || v != "" {
		t.Errorf("EMPTY = %q (present %v), want empty string", v, ok)
	}
	if env["EQ"] != "a=b" {
		t.Errorf("EQ = %q, want a=b (split on first = only)", env["EQ"])
	}

	if _, err := parseEnvPairs([]string{"NOVALUE"}); err == nil {
		t.Error("expected error for pair without =")
	}
	if _, err := parseEnvPairs([]string{"=value"}); err == nil {
		t.Error("expected error for empty key")
	}

	env, err = parseEnvPairs(nil)
	if err != nil || env != nil {
		t.Errorf("empty input: got %v, %v", env, err)
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("one\ntwo\nthree"); got != "one" {
		t.Errorf("firstLine = %q, want one", got)
	}
	if got := firstLine("single"); got != "single" {
		t.Errorf("firstLine = %q, want single", got)
	}
	if got := firstLine(""); got != "" {
		t.Errorf("firstLine(empty) = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 50); got != "short" {
		t.Errorf("truncate = %q, want unchanged", got)
	}
	got := truncate("a very long description that exceeds the limit", 20)
	if len(got) != 20 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate = %q (len %d), want 20 chars ending in ...", got, len(got))
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Errorf("shortID = %q, want 01234567", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID = %q, want abc", got)
	}
}

func TestLogTypeName(t *testing.T) {
	tests := []struct {
		logType      string
		continuation int
		want         string
	}{
		{"output", 0, "assistant_output"},
		{"commit", 0, "assistant_commit"},
		{"output", 2, "assistant_output_cont_2"},
		{"commit", 1, "assistant_commit_cont_1"},
		{"", 0, "assistant_output"},
	}
	for _, tt := range tests {
		if got := logTypeName(tt.logType, tt.continuation); got != tt.want {
			t.Errorf("logTypeName(%q, %d) = %q, want %q", tt.logType, tt.continuation, got, tt.want)
		}
	}
}

func TestEnsureGitignore(t *testing.T) {
	dir := t.TempDir()

	// No .gitignore yet: file is created with the line.
	if err := ensureGitignore(dir, ".claude/settings.local.json"); err != nil {
		t.Fatalf("ensureGitignore failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		t.Fatalf("read .gitignore: %v", err)
	}
	if string(data) != ".claude/settings.local.json\n" {
		t.Errorf("unexpected content: %q", data)
	}

	// Second call is a no-op.
	if err := ensureGitignore(dir, ".claude/settings.local.json"); err != nil {
		t.Fatalf("second ensureGitignore failed: %v", err)
	}
	data, _ = os.ReadFile(filepath.Join(dir, ".gitignore"))
	if strings.Count(string(data), ".claude/settings.local.json") != 1 {
		t.Errorf("line duplicated: %q", data)
	}

	// Existing file without trailing newline gets one before the append.
	os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("node_modules"), 0o644)
	if err := ensureGitignore(dir, ".env"); err != nil {
		t.Fatalf("ensureGitignore failed: %v", err)
	}
	data, _ = os.ReadFile(filepath.Join(dir, ".gitignore"))
	if string(data) != "node_modules\n.env\n" {
		t.Errorf("unexpected content: %q", data)
	}
}

func TestWriteAssistantSettings(t *testing.T) {
	dir := t.TempDir()

	if err := writeAssistantSettings(dir); err != nil {
		t.Fatalf("writeAssistantSettings failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ".claude", "settings.local.json"))
	if err != nil {
		t.Fatalf("settings file not written: %v", err)
	}
	if !strings.Contains(string(data), `"Bash(git:*)"`) {
		t.Errorf("settings missing git allow entry: %s", data)
	}

	ignore, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		t.Fatalf("gitignore not written: %v", err)
	}
	if !strings.Contains(string(ignore), ".claude/settings.local.json") {
		t.Errorf("gitignore missing settings entry: %q", ignore)
	}
}

func TestContinuationPrompt(t *testing.T) {
	prompt := continuationPrompt("Add a login page", "Use OAuth instead", 2)

	if !strings.Contains(prompt, "Add a login page") {
		t.Error("prompt missing original description")
	}
	if !strings.Contains(prompt, "Use OAuth instead") {
		t.Error("prompt missing feedback")
	}
	if !strings.Contains(prompt, "worked on 2 time(s) before") {
		t.Errorf("prompt missing continuation count: %s", prompt)
	}
}

func TestTaskPRBody(t *testing.T) {
	body := taskPRBody("Fix the flaky test", "Stabilize timeouts in watcher test")

	if !strings.Contains(body, "## Task Description") {
		t.Error("body missing description heading")
	}
	if !strings.Contains(body, "Fix the flaky test") {
		t.Error("body missing description")
	}
	if !strings.Contains(body, "## Changes Made") {
		t.Error("body missing changes heading")
	}
	if !strings.Contains(body, "Stabilize timeouts in watcher test") {
		t.Error("body missing commit message")
	}
}

func TestPidFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")

	if err := writePidFile(path, 12345); err != nil {
		t.Fatalf("writePidFile failed: %v", err)
	}
	pid, err := readPidFile(path)
	if err != nil {
		t.Fatalf("readPidFile failed: %v", err)
	}
	if pid != 12345 {
		t.Errorf("pid = %d, want 12345", pid)
	}

	if _, err := readPidFile(filepath.Join(t.TempDir(), "missing.pid")); err == nil {
		t.Error("expected error for missing pid file")
	}
}

func TestProcessExists(t *testing.T) {
	if !processExists(os.Getpid()) {
		t.Error("current process should exist")
	}
	// PIDs just below the max are overwhelmingly unlikely to be live.
	if processExists(1<<22 - 1) {
		t.Skip("improbable pid is alive on this machine")
	}
}
