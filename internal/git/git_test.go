package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestFindRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatalf("failed to create .git: %v", err)
	}
	nested := filepath.Join(root, "services", "api")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("failed to create nested dir: %v", err)
	}

	c := New()

	found, ok := c.FindRoot(nested)
	if !ok {
		t.Fatal("expected to find repository root")
	}
	if found != root {
		t.Errorf("expected %q, got %q", root, found)
	}

	// Starting at the root itself also works.
	found, ok = c.FindRoot(root)
	if !ok || found != root {
		t.Errorf("expected root from root, got %q ok=%v", found, ok)
	}
}

func TestFindRootNoRepo(t *testing.T) {
	dir := t.TempDir()

	c := New()
	found, ok := c.FindRoot(dir)
	if ok {
		t.Error("expected no repository")
	}
	if found != dir {
		t.Errorf("expected start dir back, got %q", found)
	}
}

// initRepo creates a real git repo with one commit, skipping when git
// is not installed.
func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if output, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, output)
		}
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi\n"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	run("add", ".")
	run("commit", "-m", "init")
	return dir
}

func TestBranchLifecycle(t *testing.T) {
	dir := initRepo(t)
	ctx := context.Background()
	c := New()

	local, remote, err := c.BranchExists(ctx, dir, "feat-x")
	if err != nil {
		t.Fatalf("branch exists check failed: %v", err)
	}
	if local || remote {
		t.Error("feat-x should not exist yet")
	}

	if err := c.CreateBranch(ctx, dir, "feat-x"); err != nil {
		t.Fatalf("failed to create branch: %v", err)
	}

	local, _, err = c.BranchExists(ctx, dir, "feat-x")
	if err != nil {
		t.Fatalf("branch exists check failed: %v", err)
	}
	if !local {
		t.Error("feat-x should exist locally")
	}

	if err := c.Checkout(ctx, dir, "main"); err != nil {
		t.Fatalf("failed to checkout main: %v", err)
	}
}

func TestHasChangesAndHead(t *testing.T) {
	dir := initRepo(t)
	ctx := context.Background()
	c := New()

	changed, err := c.HasChanges(ctx, dir)
	if err != nil {
		t.Fatalf("has changes failed: %v", err)
	}
	if changed {
		t.Error("fresh repo should have no changes")
	}

	if err := os.WriteFile(filepath.Join(dir, "new.txt"), []byte("x\n"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	changed, err = c.HasChanges(ctx, dir)
	if err != nil {
		t.Fatalf("has changes failed: %v", err)
	}
	if !changed {
		t.Error("expected uncommitted changes")
	}

	head, err := c.Head(ctx, dir)
	if err != nil {
		t.Fatalf("head failed: %v", err)
	}
	if len(head) != 40 {
		t.Errorf("expected full commit hash, got %q", head)
	}

	msg, err := c.LastMessage(ctx, dir)
	if err != nil {
		t.Fatalf("last message failed: %v", err)
	}
	if msg != "init" {
		t.Errorf("expected %q, got %q", "init", msg)
	}
}

func TestDefaultBranch(t *testing.T) {
	dir := initRepo(t)
	c := New()

	if branch := c.DefaultBranch(context.Background(), dir); branch != "main" {
		t.Errorf("expected main, got %q", branch)
	}
}
