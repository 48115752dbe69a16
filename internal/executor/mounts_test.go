package executor

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveMountsInsideRepo(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "pkg", "api")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	rm, err := ResolveMounts(sub, root)
	if err != nil {
		t.Fatalf("ResolveMounts: %v", err)
	}
	if rm.ProjectRoot != root {
		t.Errorf("project root = %q, want %q", rm.ProjectRoot, root)
	}
	if rm.WorkDir != "/workspace/pkg/api" {
		t.Errorf("workdir = %q, want /workspace/pkg/api", rm.WorkDir)
	}
	if len(rm.Mounts) == 0 || rm.Mounts[0].Source != root || rm.Mounts[0].Target != WorkspaceDir {
		t.Errorf("first mount = %+v, want %s -> %s", rm.Mounts, root, WorkspaceDir)
	}
}

func TestResolveMountsAtRepoRoot(t *testing.T) {
	root := t.TempDir()
	rm, err := ResolveMounts(root, root)
	if err != nil {
		t.Fatalf("ResolveMounts: %v", err)
	}
	if rm.WorkDir != WorkspaceDir {
		t.Errorf("workdir = %q, want %s", rm.WorkDir, WorkspaceDir)
	}
}

func TestResolveMountsOutsideRepo(t *testing.T) {
	dir := t.TempDir()
	rm, err := ResolveMounts(dir, "")
	if err != nil {
		t.Fatalf("ResolveMounts: %v", err)
	}
	if rm.ProjectRoot != dir {
		t.Errorf("project root = %q, want %q", rm.ProjectRoot, dir)
	}
	if rm.WorkDir != WorkspaceDir {
		t.Errorf("workdir = %q, want %s", rm.WorkDir, WorkspaceDir)
	}
}

func TestCredentialMountsSkipMissing(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if got := credentialMounts(); len(got) != 0 {
		t.Fatalf("mounts for empty home = %+v, want none", got)
	}

	if err := os.WriteFile(filepath.Join(home, ".claude.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(home, ".ssh"), 0o700); err != nil {
		t.Fatal(err)
	}

	got := credentialMounts()
	if len(got) != 2 {
		t.Fatalf("mounts = %+v, want 2", got)
	}
	byTarget := map[string]bool{}
	for _, m := range got {
		byTarget[m.Target] = m.ReadOnly
	}
	if ro, ok := byTarget["/root/.claude.json"]; !ok || ro {
		t.Errorf("assistant config mount missing or read-only: %v", byTarget)
	}
	if ro, ok := byTarget["/root/.ssh"]; !ok || !ro {
		t.Errorf("ssh mount missing or writable: %v", byTarget)
	}
}

func TestInsertSkipFlag(t *testing.T) {
	tests := []struct {
		name      string
		assistant string
		command   []string
		want      []string
	}{
		{
			name:      "inserts after assistant",
			assistant: "claude",
			command:   []string{"claude", "-p", "fix the bug"},
			want:      []string{"claude", "--dangerously-skip-permissions", "-p", "fix the bug"},
		},
		{
			name:      "already present",
			assistant: "claude",
			command:   []string{"claude", "--dangerously-skip-permissions", "-p", "x"},
			want:      []string{"claude", "--dangerously-skip-permissions", "-p", "x"},
		},
		{
			name:      "other command untouched",
			assistant: "claude",
			command:   []string{"make", "test"},
			want:      []string{"make", "test"},
		},
		{
			name:      "empty command",
			assistant: "claude",
			command:   nil,
			want:      nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := insertSkipFlag(tt.command, tt.assistant)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}
