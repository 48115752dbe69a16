// Package container runs task containers through the docker CLI.
package container

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// Mount maps a host path into the container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RunSpec describes a container to run.
type RunSpec struct {
	Image   string
	Name    string
	Command []string
	WorkDir string
	Mounts  []Mount
	Env     map[string]string
}

// LineFunc receives one line of container output. Stream is "output"
// for stdout and "error" for stderr.
type LineFunc func(stream, line string)

// Runtime drives containers via the docker CLI.
type Runtime struct{}

// New creates a docker runtime.
func New() *Runtime {
	return &Runtime{}
}

// Available reports whether the docker daemon answers.
func (r *Runtime) Available() bool {
	return exec.Command("docker", "info").Run() == nil
}

// ImageExists reports whether an image is present locally.
func (r *Runtime) ImageExists(ctx context.Context, image string) bool {
	return exec.CommandContext(ctx, "docker", "image", "inspect", image).Run() == nil
}

// Run runs a one-shot container in the foreground, streaming its output
// line by line. Returns the container's exit code. The container is not
// removed; callers remove it after reading the exit status.
func (r *Runtime) Run(ctx context.Context, spec RunSpec, onLine LineFunc) (int, error) {
	args := []string{"run", "--name", spec.Name}
	args = append(args, specArgs(spec)...)
	args = append(args, spec.Image)
	args = append(args, spec.Command...)

	cmd := exec.CommandContext(ctx, "docker", args...)
	return streamCommand(cmd, onLine)
}

// Start launches a persistent container that idles until removed, for
// running individual steps with Exec. Returns the container id.
func (r *Runtime) Start(ctx context.Context, spec RunSpec) (string, error) {
	args := []string{"run", "-d", "--name", spec.Name}
	args = append(args, specArgs(spec)...)
	args = append(args, spec.Image, "sleep", "infinity")

	cmd := exec.CommandContext(ctx, "docker", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("start container: %v\n%s", err, output)
	}
	return strings.TrimSpace(string(output)), nil
}

// Exec runs one command inside a persistent container, streaming its
// output. Returns the command's exit code.
func (r *Runtime) Exec(ctx context.Context, name, workdir string, argv []string, onLine LineFunc) (int, error) {
	args := []string{"exec"}
	if workdir != "" {
		args = append(args, "-w", workdir)
	}
	args = append(args, name)
	args = append(args, argv...)

	cmd := exec.CommandContext(ctx, "docker", args...)
	return streamCommand(cmd, onLine)
}

// Kill forcibly stops a container. Used by the optimistic kill path; the
// caller does not wait for confirmation.
func (r *Runtime) Kill(ctx context.Context, name string) error {
	if output, err := exec.CommandContext(ctx, "docker", "kill", name).CombinedOutput(); err != nil {
		return fmt.Errorf("kill container: %v\n%s", err, output)
	}
	return nil
}

// Remove force-removes a container, stopping it first if needed.
func (r *Runtime) Remove(ctx context.Context, name string) error {
	if output, err := exec.CommandContext(ctx, "docker", "rm", "-f", name).CombinedOutput(); err != nil {
		return fmt.Errorf("remove container: %v\n%s", err, output)
	}
	return nil
}

func specArgs(spec RunSpec) []string {
	var args []string
	if spec.WorkDir != "" {
		args = append(args, "-w", spec.WorkDir)
	}
	for _, m := range spec.Mounts {
		v := m.Source + ":" + m.Target
		if m.ReadOnly {
			v += ":ro"
		}
		args = append(args, "-v", v)
	}
	for k, v := range spec.Env {
		args = append(args, "-e", k+"="+v)
	}
	return args
}

// streamCommand starts cmd, forwards each stdout/stderr line to onLine,
// waits, and maps the error to an exit code.
func streamCommand(cmd *exec.Cmd, onLine LineFunc) (int, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("start: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if onLine != nil {
				onLine("output", scanner.Text())
			}
		}
	}()
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			if onLine != nil {
				onLine("error", scanner.Text())
			}
		}
	}()

	wg.Wait()
	err = cmd.Wait()
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("wait: %w", err)
}
