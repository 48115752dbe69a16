// Package git wraps the git CLI for the operations tasks need.
package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Client runs git commands against a working directory.
type Client struct{}

// New creates a git client.
func New() *Client {
	return &Client{}
}

// FindRoot walks upward from start looking for a repository root.
// Returns the root and true, or start and false when no repository
// contains it.
func (c *Client) FindRoot(start string) (string, bool) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return start, false
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start, false
		}
		dir = parent
	}
}

// Fetch updates remote refs.
func (c *Client) Fetch(ctx context.Context, dir string) error {
	cmd := exec.CommandContext(ctx, "git", "fetch", "origin")
	cmd.Dir = dir
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("fetch: %v\n%s", err, output)
	}
	return nil
}

// BranchExists reports whether a branch exists locally or on origin.
func (c *Client) BranchExists(ctx context.Context, dir, branch string) (local, remote bool, err error) {
	localCmd := exec.CommandContext(ctx, "git", "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	localCmd.Dir = dir
	local = localCmd.Run() == nil

	remoteCmd := exec.CommandContext(ctx, "git", "show-ref", "--verify", "--quiet", "refs/remotes/origin/"+branch)
	remoteCmd.Dir = dir
	remote = remoteCmd.Run() == nil

	return local, remote, nil
}

// CreateBranch creates and checks out a new branch.
func (c *Client) CreateBranch(ctx context.Context, dir, branch string) error {
	cmd := exec.CommandContext(ctx, "git", "checkout", "-b", branch)
	cmd.Dir = dir
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("create branch %s: %v\n%s", branch, err, output)
	}
	return nil
}

// Checkout switches to an existing branch.
func (c *Client) Checkout(ctx context.Context, dir, branch string) error {
	cmd := exec.CommandContext(ctx, "git", "checkout", branch)
	cmd.Dir = dir
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("checkout %s: %v\n%s", branch, err, output)
	}
	return nil
}

// Pull pulls a branch from origin.
func (c *Client) Pull(ctx context.Context, dir, branch string) error {
	cmd := exec.CommandContext(ctx, "git", "pull", "origin", branch)
	cmd.Dir = dir
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("pull %s: %v\n%s", branch, err, output)
	}
	return nil
}

// Push pushes a branch to origin, setting upstream.
func (c *Client) Push(ctx context.Context, dir, branch string) error {
	cmd := exec.CommandContext(ctx, "git", "push", "-u", "origin", branch)
	cmd.Dir = dir
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("push %s: %v\n%s", branch, err, output)
	}
	return nil
}

// HasChanges reports whether the working tree has uncommitted changes.
func (c *Client) HasChanges(ctx context.Context, dir string) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "status", "--porcelain")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("status: %w", err)
	}
	return len(strings.TrimSpace(string(output))) > 0, nil
}

// Head returns the current commit hash.
func (c *Client) Head(ctx context.Context, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("rev-parse: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// LastMessage returns the most recent commit message.
func (c *Client) LastMessage(ctx context.Context, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "log", "-1", "--pretty=%B")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("log: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// DefaultBranch returns the repository's default branch name.
func (c *Client) DefaultBranch(ctx context.Context, dir string) string {
	cmd := exec.CommandContext(ctx, "git", "symbolic-ref", "refs/remotes/origin/HEAD")
	cmd.Dir = dir
	if output, err := cmd.Output(); err == nil {
		ref := strings.TrimSpace(string(output))
		parts := strings.Split(ref, "/")
		if len(parts) > 0 {
			return parts[len(parts)-1]
		}
	}

	for _, branch := range []string{"main", "master"} {
		cmd := exec.CommandContext(ctx, "git", "rev-parse", "--verify", branch)
		cmd.Dir = dir
		if err := cmd.Run(); err == nil {
			return branch
		}
	}

	return "main"
}
