package executor

import (
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/taskcell/taskcell/internal/container"
)

// WorkspaceDir is where the project root is mounted inside task containers.
const WorkspaceDir = "/workspace"

// MountSet describes where a task's container mounts the project
// and which directory it starts in.
type MountSet struct {
	ProjectRoot string // host path mounted at /workspace
	WorkDir     string // in-container working directory
	Mounts      []container.Mount
}

// ResolveMounts builds the mount set for a task. When the working
// directory sits inside a repository, the whole repository root is
// mounted so the assistant can reach files outside the literal working
// directory; the in-container workdir becomes the relative offset.
func ResolveMounts(workingDir, gitRoot string) (*MountSet, error) {
	root := workingDir
	workdir := WorkspaceDir
	if gitRoot != "" {
		rel, err := filepath.Rel(gitRoot, workingDir)
		if err != nil {
			return nil, fmt.Errorf("resolve workdir offset: %w", err)
		}
		root = gitRoot
		if rel != "." {
			workdir = path.Join(WorkspaceDir, filepath.ToSlash(rel))
		}
	}

	mounts := []container.Mount{
		{Source: root, Target: WorkspaceDir},
	}
	mounts = append(mounts, credentialMounts()...)
	if m := npmPrefixMount(); m != nil {
		mounts = append(mounts, *m)
	}

	return &MountSet{
		ProjectRoot: root,
		WorkDir:     workdir,
		Mounts:      mounts,
	}, nil
}

// credentialMounts mounts assistant and hosting credentials into the
// container: assistant config read-write so it can update trusted
// folders, SSH and gh config read-only. Missing paths are skipped.
func credentialMounts() []container.Mount {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}

	candidates := []container.Mount{
		{Source: filepath.Join(home, ".claude.json"), Target: "/root/.claude.json"},
		{Source: filepath.Join(home, ".claude"), Target: "/root/.claude"},
		{Source: filepath.Join(home, ".ssh"), Target: "/root/.ssh", ReadOnly: true},
		{Source: filepath.Join(home, ".config", "gh"), Target: "/root/.config/gh", ReadOnly: true},
	}

	var mounts []container.Mount
	for _, m := range candidates {
		if _, err := os.Stat(m.Source); err == nil {
			mounts = append(mounts, m)
		}
	}
	return mounts
}

// npmPrefixMount probes the npm global prefix and mounts it read-only
// at the same path, so globally installed tools resolve inside the
// container. Absence of npm is tolerated.
func npmPrefixMount() *container.Mount {
	out, err := exec.Command("npm", "config", "get", "prefix").Output()
	if err != nil {
		return nil
	}
	prefix := strings.TrimSpace(string(out))
	if prefix == "" {
		return nil
	}
	if _, err := os.Stat(prefix); err != nil {
		return nil
	}
	return &container.Mount{Source: prefix, Target: prefix, ReadOnly: true}
}
