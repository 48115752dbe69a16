// Package executor queues and runs container-isolated tasks for the
// daemon: a fixed worker pool drains a FIFO queue of execution handles,
// each task running in its own container with branch and pull request
// automation around it.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/taskcell/taskcell/internal/config"
	"github.com/taskcell/taskcell/internal/container"
	"github.com/taskcell/taskcell/internal/github"
	"github.com/taskcell/taskcell/internal/journal"
)

// Lookup failures surfaced to the dispatcher, which owns the wire
// error strings.
var (
	ErrNotFound   = errors.New("task not found")
	ErrNotRunning = errors.New("task not running")
)

// ContainerRuntime is the container engine contract used for execution.
type ContainerRuntime interface {
	ImageExists(ctx context.Context, image string) bool
	Run(ctx context.Context, spec container.RunSpec, onLine container.LineFunc) (int, error)
	Start(ctx context.Context, spec container.RunSpec) (string, error)
	Exec(ctx context.Context, name, workdir string, argv []string, onLine container.LineFunc) (int, error)
	Kill(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error
}

// GitClient is the host-side version-control contract used at submit
// time. Branch work during execution happens inside the container.
type GitClient interface {
	FindRoot(start string) (string, bool)
	CreateBranch(ctx context.Context, dir, branch string) error
	Push(ctx context.Context, dir, branch string) error
}

// PRClient drives pull request automation through the hosting CLI.
type PRClient interface {
	Available() bool
	PRForBranch(ctx context.Context, dir, branch string) (*github.PRInfo, error)
	CreateDraft(ctx context.Context, dir, branch, title, body string) (string, error)
	EditBody(ctx context.Context, dir string, number int, body string) error
	MarkReady(ctx context.Context, dir string, number int) error
}

// Executor manages background task execution.
type Executor struct {
	cfg     *config.Config
	logger  *log.Logger
	journal *journal.Journal
	runtime ContainerRuntime
	git     GitClient
	gh      PRClient

	mu      sync.RWMutex
	handles map[string]*Handle
	order   []string
	cancels map[string]context.CancelFunc
	running bool

	queue  *taskQueue
	stopCh chan struct{}
	wg     sync.WaitGroup

	// Checked once at Start, not per task.
	ghAvailable bool
}

// New creates a silent executor (for tests and embedding).
func New(cfg *config.Config, jrnl *journal.Journal, runtime ContainerRuntime, git GitClient, gh PRClient) *Executor {
	return newExecutor(cfg, jrnl, runtime, git, gh, io.Discard)
}

// NewWithLogging creates an executor that logs to w (daemon mode).
func NewWithLogging(cfg *config.Config, jrnl *journal.Journal, runtime ContainerRuntime, git GitClient, gh PRClient, w io.Writer) *Executor {
	return newExecutor(cfg, jrnl, runtime, git, gh, w)
}

func newExecutor(cfg *config.Config, jrnl *journal.Journal, runtime ContainerRuntime, git GitClient, gh PRClient, w io.Writer) *Executor {
	return &Executor{
		cfg:     cfg,
		logger:  log.NewWithOptions(w, log.Options{Prefix: "executor"}),
		journal: jrnl,
		runtime: runtime,
		git:     git,
		gh:      gh,
		handles: make(map[string]*Handle),
		cancels: make(map[string]context.CancelFunc),
		queue:   newTaskQueue(cfg.QueueSize),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the worker pool.
func (e *Executor) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	e.ghAvailable = e.gh.Available()
	if !e.ghAvailable {
		e.logger.Warn("gh CLI not found, PR automation disabled")
	}

	workers := e.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}
	e.logger.Info("Executor started", "workers", workers)
}

// Stop stops the worker pool and waits for idle workers to exit.
// Running tasks keep their workers until they finish.
func (e *Executor) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	e.mu.Unlock()

	e.wg.Wait()
	e.logger.Info("Executor stopped")
}

func (e *Executor) isRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

func (e *Executor) worker(ctx context.Context) {
	defer e.wg.Done()
	for e.isRunning() {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		default:
		}

		h := e.queue.Dequeue(time.Second)
		if h == nil {
			continue
		}
		e.execute(ctx, h)
	}
}

// Submit registers a new handle and queues it. For feature tasks the
// CLI has already created the branch; for everything else the daemon
// creates one named from the task id and opens a draft PR first. When
// that setup fails the handle is finalized FAILED and never queued, but
// the returned snapshot still has the success shape. The only error is
// ErrQueueFull from a bounded queue.
func (e *Executor) Submit(ctx context.Context, command []string, workingDir string, env, metadata map[string]string) (Snapshot, error) {
	taskID := uuid.New().String()[:8]

	branch := ""
	feature := metadata["type"] == "feature_task"
	if feature {
		branch = metadata["branch"]
	} else {
		branch = "task/" + taskID
	}

	h := newHandle(taskID, command, workingDir, branch, env, metadata)

	e.mu.Lock()
	e.handles[taskID] = h
	e.order = append(e.order, taskID)
	e.mu.Unlock()

	if !feature {
		if err := e.setupBranch(ctx, h); err != nil {
			e.logger.Error("Submit-time branch setup failed", "id", taskID, "error", err)
			e.logLine(h, "error", err.Error())
			h.transition(StatusFailed)
			h.markDone()
			return h.Snapshot(), nil
		}
	}

	if err := e.queue.Enqueue(h); err != nil {
		e.mu.Lock()
		delete(e.handles, taskID)
		if n := len(e.order); n > 0 && e.order[n-1] == taskID {
			e.order = e.order[:n-1]
		}
		e.mu.Unlock()
		return Snapshot{}, err
	}

	e.logger.Info("Task queued", "id", taskID, "branch", branch)
	e.journalLine(taskID, "system", "task queued: "+strings.Join(command, " "))
	return h.Snapshot(), nil
}

// setupBranch creates and pushes the task branch, then opens a draft PR
// when the hosting CLI is available.
func (e *Executor) setupBranch(ctx context.Context, h *Handle) error {
	if err := e.git.CreateBranch(ctx, h.WorkingDir, h.Branch); err != nil {
		return err
	}
	if err := e.git.Push(ctx, h.WorkingDir, h.Branch); err != nil {
		return err
	}
	if !e.gh.Available() {
		return nil
	}

	title := summarizeCommand(h.Command, 60)
	body := fmt.Sprintf("Automated task `%s`\n\nCommand:\n```\n%s\n```",
		h.TaskID, strings.Join(h.Command, " "))
	url, err := e.gh.CreateDraft(ctx, h.WorkingDir, h.Branch, title, body)
	if err != nil {
		return err
	}
	h.setPRURL(url)
	return nil
}

// Get returns a snapshot of the handle for taskID.
func (e *Executor) Get(taskID string) (Snapshot, bool) {
	e.mu.RLock()
	h, ok := e.handles[taskID]
	e.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	return h.Snapshot(), true
}

// List returns snapshots of all handles in submission order.
func (e *Executor) List() []Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(e.order))
	for _, id := range e.order {
		if h, ok := e.handles[id]; ok {
			snaps = append(snaps, h.Snapshot())
		}
	}
	return snaps
}

// Kill terminates a running task. The reply is optimistic: termination
// is requested but not awaited.
func (e *Executor) Kill(taskID string) error {
	e.mu.RLock()
	h, ok := e.handles[taskID]
	cancel := e.cancels[taskID]
	e.mu.RUnlock()

	if !ok {
		return ErrNotFound
	}
	if !h.transition(StatusKilled) {
		return ErrNotRunning
	}

	e.logger.Info("Killing task", "id", taskID)
	e.journalLine(taskID, "system", "task killed")
	if cancel != nil {
		cancel()
	}
	go e.runtime.Kill(context.Background(), ContainerName(taskID))
	return nil
}

// execute drives one task to a terminal state.
func (e *Executor) execute(ctx context.Context, h *Handle) {
	if !h.transition(StatusRunning) {
		// Killed or failed before a worker picked it up.
		return
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if e.cfg.TaskTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.cfg.TaskTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	e.mu.Lock()
	e.cancels[h.TaskID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.cancels, h.TaskID)
		e.mu.Unlock()
	}()

	defer h.markDone()
	defer func() {
		if r := recover(); r != nil {
			e.logLine(h, "error", fmt.Sprintf("Error: panic: %v", r))
			e.logLine(h, "error", string(debug.Stack()))
			h.setExitCode(-1)
			h.transition(StatusError)
			e.journalLine(h.TaskID, "system", "task errored")
		}
	}()

	e.logger.Info("Processing task", "id", h.TaskID, "command", strings.Join(h.Command, " "))
	e.journalLine(h.TaskID, "system", "task started")

	exitCode, err := e.runTask(runCtx, h)

	switch {
	case h.Status() == StatusKilled:
		// The kill handler already owns the terminal state.
	case runCtx.Err() == context.DeadlineExceeded:
		e.logLine(h, "error", "task deadline exceeded")
		h.setExitCode(exitCode)
		h.transition(StatusFailed)
	case err != nil:
		e.logLine(h, "error", err.Error())
		h.setExitCode(-1)
		h.transition(StatusError)
	case exitCode == 0:
		h.setExitCode(0)
		h.transition(StatusCompleted)
	default:
		h.setExitCode(exitCode)
		h.transition(StatusFailed)
	}

	final := h.Status()
	e.finishPR(h, final)
	e.mirrorRecord(h, final)

	e.journalLine(h.TaskID, "system", "task "+string(final))
	e.logger.Info("Task finished", "id", h.TaskID, "status", final, "exit_code", exitCode)
}

// runTask resolves mounts, verifies the image and dispatches to the
// feature or ad-hoc path. A returned error means a setup failure and
// maps to ERROR, not FAILED.
func (e *Executor) runTask(ctx context.Context, h *Handle) (int, error) {
	workingDir, err := filepath.Abs(h.WorkingDir)
	if err != nil {
		return 0, fmt.Errorf("resolve working dir: %w", err)
	}
	if _, err := os.Stat(workingDir); err != nil {
		return 0, fmt.Errorf("working dir %s: %w", h.WorkingDir, err)
	}

	gitRoot, _ := e.git.FindRoot(workingDir)
	resolved, err := ResolveMounts(workingDir, gitRoot)
	if err != nil {
		return 0, err
	}

	image := ImageName(e.cfg.ImagePrefix, resolved.ProjectRoot)
	if !e.runtime.ImageExists(ctx, image) {
		return 0, fmt.Errorf("Docker image '%s' not found. Build the project image first.", image)
	}

	spec := container.RunSpec{
		Image:   image,
		Name:    ContainerName(h.TaskID),
		WorkDir: resolved.WorkDir,
		Mounts:  resolved.Mounts,
		Env:     e.taskEnv(h),
	}

	if h.Metadata["type"] == "feature_task" && h.Branch != "" {
		return e.runFeature(ctx, h, spec)
	}
	return e.runAdHoc(ctx, h, spec)
}

// runAdHoc runs the command as a one-shot container.
func (e *Executor) runAdHoc(ctx context.Context, h *Handle, spec container.RunSpec) (int, error) {
	spec.Command = insertSkipFlag(h.Command, e.cfg.AssistantCommand)

	// Removal always runs, even if streaming blows up.
	defer e.runtime.Remove(context.Background(), spec.Name)

	exitCode, err := e.runtime.Run(ctx, spec, func(stream, line string) {
		e.logLine(h, stream, line)
	})
	if err == nil && exitCode != 0 {
		snap := h.Snapshot()
		e.diagnoseRateLimit(h, strings.Join(append(snap.Output, snap.Errors...), "\n"))
	}
	return exitCode, err
}

// insertSkipFlag adds the assistant's skip-confirmation flag so the
// non-interactive container run does not stall on a prompt.
func insertSkipFlag(command []string, assistant string) []string {
	if len(command) == 0 || command[0] != assistant {
		return command
	}
	for _, arg := range command {
		if arg == "--dangerously-skip-permissions" {
			return command
		}
	}
	out := make([]string, 0, len(command)+1)
	out = append(out, command[0], "--dangerously-skip-permissions")
	out = append(out, command[1:]...)
	return out
}

// ContainerName names the container for a task id. The CLI's sync path
// and the daemon share this so listings line up.
func ContainerName(taskID string) string {
	return "taskcell-task-" + taskID
}

// ImageName derives the per-project image name from its root directory.
func ImageName(prefix, projectRoot string) string {
	if prefix == "" {
		prefix = "taskcell"
	}
	return strings.ToLower(prefix + "-" + filepath.Base(projectRoot))
}

func (e *Executor) taskEnv(h *Handle) map[string]string {
	env := map[string]string{
		"TASKCELL_TASK_ID":  h.TaskID,
		"CLAUDE_CONFIG_DIR": "/root/.claude",
	}
	for k, v := range h.Env {
		env[k] = v
	}
	return env
}

// summarizeCommand flattens a command for titles, truncating long ones.
func summarizeCommand(command []string, max int) string {
	s := strings.Join(command, " ")
	if len(s) > max {
		s = s[:max-3] + "..."
	}
	return s
}

// logLine appends a line to the handle and mirrors it to the journal.
func (e *Executor) logLine(h *Handle, stream, line string) {
	if stream == "error" {
		h.appendError(line)
	} else {
		h.appendOutput(line)
	}
	e.journalLine(h.TaskID, stream, line)
}

func (e *Executor) journalLine(taskID, lineType, content string) {
	if e.journal == nil {
		return
	}
	if err := e.journal.Append(taskID, lineType, content); err != nil {
		e.logger.Debug("journal append failed", "id", taskID, "error", err)
	}
}
