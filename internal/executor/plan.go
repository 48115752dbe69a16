package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/taskcell/taskcell/internal/container"
)

// stepResult captures one plan step's outcome.
type stepResult struct {
	name     string
	exitCode int
	output   []string
}

// runFeature executes a feature task as an ordered plan of separate
// exec invocations against a persistent container: checkout the task
// branch, pull, run the assistant command, then commit and push any
// resulting changes. Each step has its own captured result, so the
// point of a partial failure is visible in the task's error output.
func (e *Executor) runFeature(ctx context.Context, h *Handle, spec container.RunSpec) (int, error) {
	if _, err := e.runtime.Start(ctx, spec); err != nil {
		return 0, fmt.Errorf("start container: %w", err)
	}
	defer e.runtime.Remove(context.Background(), spec.Name)

	quiet := func(name string, argv ...string) (*stepResult, error) {
		return e.execStep(ctx, h, spec.Name, spec.WorkDir, name, argv, false)
	}

	if res, err := quiet("checkout", "git", "checkout", h.Branch); err != nil || res.exitCode != 0 {
		return failStep(res, err)
	}
	if res, err := quiet("pull", "git", "pull", "origin", h.Branch); err != nil || res.exitCode != 0 {
		return failStep(res, err)
	}

	run, err := e.execStep(ctx, h, spec.Name, spec.WorkDir, "run", h.Command, true)
	if err != nil || run.exitCode != 0 {
		e.diagnoseRateLimit(h, strings.Join(run.output, "\n"))
		return failStep(run, err)
	}

	status, err := quiet("detect-changes", "git", "status", "--porcelain")
	if err != nil || status.exitCode != 0 {
		return failStep(status, err)
	}
	if len(status.output) == 0 {
		e.logLine(h, "output", "No changes to commit")
		return 0, nil
	}

	if res, err := quiet("stage", "git", "add", "-A"); err != nil || res.exitCode != 0 {
		return failStep(res, err)
	}
	if res, err := quiet("commit", "git", "commit", "-m", commitMessage(h)); err != nil || res.exitCode != 0 {
		return failStep(res, err)
	}
	if res, err := quiet("push", "git", "push", "-u", "origin", h.Branch); err != nil || res.exitCode != 0 {
		return failStep(res, err)
	}
	return 0, nil
}

func failStep(res *stepResult, err error) (int, error) {
	if err != nil {
		return 0, err
	}
	return res.exitCode, nil
}

// execStep runs one command inside the task container. Streamed steps
// feed the handle's output live; quiet steps collect output and surface
// it only on failure.
func (e *Executor) execStep(ctx context.Context, h *Handle, containerID, workdir, step string, argv []string, streamed bool) (*stepResult, error) {
	e.journalLine(h.TaskID, "system", fmt.Sprintf("step %s: %s", step, strings.Join(argv, " ")))

	res := &stepResult{name: step}
	onLine := func(stream, line string) {
		if streamed {
			e.logLine(h, stream, line)
		}
		if strings.TrimSpace(line) != "" {
			res.output = append(res.output, line)
		}
	}

	exitCode, err := e.runtime.Exec(ctx, containerID, workdir, argv, onLine)
	if err != nil {
		return res, fmt.Errorf("step %s: %w", step, err)
	}
	res.exitCode = exitCode

	if exitCode != 0 {
		e.logLine(h, "error", fmt.Sprintf("step %s failed (exit %d)", step, exitCode))
		if !streamed {
			for _, line := range res.output {
				e.logLine(h, "error", line)
			}
		}
	}
	return res, nil
}

// commitMessage builds the plan's commit message from the task
// description when present.
func commitMessage(h *Handle) string {
	if desc := h.Metadata["task_description"]; desc != "" {
		return "Task: " + desc
	}
	return "Task " + h.TaskID
}
