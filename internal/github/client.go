// Package github drives the gh CLI for pull request automation.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// PRState represents the state of a pull request.
type PRState string

const (
	PRStateOpen   PRState = "OPEN"
	PRStateClosed PRState = "CLOSED"
	PRStateMerged PRState = "MERGED"
	PRStateDraft  PRState = "DRAFT"
)

// PRInfo contains information about a pull request.
type PRInfo struct {
	Number  int
	URL     string
	State   PRState
	IsDraft bool
	Title   string
}

// Client wraps pull request operations using the gh CLI.
type Client struct{}

// New creates a GitHub client.
func New() *Client {
	return &Client{}
}

// Available reports whether the gh CLI is installed. The daemon checks
// this once at startup, not per task.
func (c *Client) Available() bool {
	_, err := exec.LookPath("gh")
	return err == nil
}

// IsRepo reports whether the directory belongs to a GitHub repository
// that gh can operate on.
func (c *Client) IsRepo(ctx context.Context, dir string) bool {
	cmd := exec.CommandContext(ctx, "gh", "repo", "view", "--json", "name")
	cmd.Dir = dir
	return cmd.Run() == nil
}

// PRForBranch queries for a PR associated with the branch. Returns nil
// when no PR exists.
func (c *Client) PRForBranch(ctx context.Context, dir, branch string) (*PRInfo, error) {
	if branch == "" {
		return nil, nil
	}

	cmd := exec.CommandContext(ctx, "gh", "pr", "view", branch,
		"--json", "number,url,state,isDraft,title")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		// gh exits non-zero when the branch has no PR.
		return nil, nil
	}

	return parsePRJSON(output)
}

// CreateDraft opens a draft PR for the branch and returns its URL.
func (c *Client) CreateDraft(ctx context.Context, dir, branch, title, body string) (string, error) {
	cmd := exec.CommandContext(ctx, "gh", "pr", "create",
		"--title", title,
		"--body", body,
		"--head", branch,
		"--draft")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("create pr: %w", err)
	}

	// gh prints the PR URL as the last line of stdout.
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	url := strings.TrimSpace(lines[len(lines)-1])
	if !strings.HasPrefix(url, "https://") {
		return "", fmt.Errorf("create pr: unexpected output %q", url)
	}
	return url, nil
}

// EditBody replaces the PR description.
func (c *Client) EditBody(ctx context.Context, dir string, number int, body string) error {
	cmd := exec.CommandContext(ctx, "gh", "pr", "edit", strconv.Itoa(number), "--body", body)
	cmd.Dir = dir
	if _, err := cmd.Output(); err != nil {
		return fmt.Errorf("edit pr %d: %w", number, err)
	}
	return nil
}

// MarkReady flips a draft PR to ready for review.
func (c *Client) MarkReady(ctx context.Context, dir string, number int) error {
	cmd := exec.CommandContext(ctx, "gh", "pr", "ready", strconv.Itoa(number))
	cmd.Dir = dir
	if _, err := cmd.Output(); err != nil {
		return fmt.Errorf("mark pr %d ready: %w", number, err)
	}
	return nil
}

// NumberFromURL extracts the PR number from a GitHub PR URL.
func NumberFromURL(url string) (int, error) {
	parts := strings.Split(strings.TrimSuffix(url, "/"), "/")
	if len(parts) >= 2 && parts[len(parts)-2] == "pull" {
		n, err := strconv.Atoi(parts[len(parts)-1])
		if err != nil {
			return 0, fmt.Errorf("parse pr number from %q: %w", url, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("not a pr url: %q", url)
}

// parsePRJSON parses the JSON output from gh pr view.
func parsePRJSON(data []byte) (*PRInfo, error) {
	var resp struct {
		Number  int    `json:"number"`
		URL     string `json:"url"`
		State   string `json:"state"`
		IsDraft bool   `json:"isDraft"`
		Title   string `json:"title"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse pr json: %w", err)
	}

	info := &PRInfo{
		Number:  resp.Number,
		URL:     resp.URL,
		IsDraft: resp.IsDraft,
		Title:   resp.Title,
	}
	switch strings.ToUpper(resp.State) {
	case "OPEN":
		if resp.IsDraft {
			info.State = PRStateDraft
		} else {
			info.State = PRStateOpen
		}
	case "CLOSED":
		info.State = PRStateClosed
	case "MERGED":
		info.State = PRStateMerged
	default:
		info.State = PRStateOpen
	}
	return info, nil
}
