package executor

import (
	"sync"
	"time"
)

// Status is the lifecycle state of an execution handle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusError     Status = "error"
	StatusKilled    Status = "killed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusError, StatusKilled:
		return true
	}
	return false
}

// Handle tracks one submitted task for the daemon's lifetime. It has no
// persistence; restarting the daemon forgets all handles.
type Handle struct {
	TaskID     string
	Command    []string
	WorkingDir string
	Env        map[string]string
	Metadata   map[string]string
	Branch     string

	mu          sync.Mutex
	status      Status
	prURL       string
	exitCode    *int
	startedAt   *time.Time
	completedAt *time.Time
	output      []string
	errOutput   []string
}

func newHandle(taskID string, command []string, workingDir, branch string, env, metadata map[string]string) *Handle {
	return &Handle{
		TaskID:     taskID,
		Command:    command,
		WorkingDir: workingDir,
		Env:        env,
		Metadata:   metadata,
		Branch:     branch,
		status:     StatusPending,
	}
}

// Status returns the current lifecycle state.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// transition attempts a state change. Transitions are monotonic: a
// terminal state is never overwritten, so a kill that lands first wins
// over the worker's own completion write.
func (h *Handle) transition(to Status) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.status.Terminal() {
		return false
	}
	switch to {
	case StatusRunning:
		if h.status != StatusPending {
			return false
		}
		now := time.Now()
		h.startedAt = &now
	case StatusCompleted, StatusFailed, StatusError:
		// Reachable from pending (submit-time failure) or running.
	case StatusKilled:
		if h.status != StatusRunning {
			return false
		}
	default:
		return false
	}
	h.status = to
	return true
}

// markDone records the completion time exactly once.
func (h *Handle) markDone() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.completedAt == nil {
		now := time.Now()
		h.completedAt = &now
	}
}

func (h *Handle) setExitCode(code int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exitCode = &code
}

func (h *Handle) setPRURL(url string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prURL = url
}

// PRURL returns the pull request URL, if one has been recorded.
func (h *Handle) PRURL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.prURL
}

func (h *Handle) appendOutput(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.output = append(h.output, line)
}

func (h *Handle) appendError(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errOutput = append(h.errOutput, line)
}

// Snapshot is a point-in-time copy of a handle's state, safe to read
// without holding the handle's lock.
type Snapshot struct {
	TaskID      string
	Status      Status
	Command     []string
	WorkingDir  string
	Branch      string
	PRURL       string
	ExitCode    *int
	StartedAt   *time.Time
	CompletedAt *time.Time
	Output      []string
	Errors      []string
}

// Snapshot copies the handle's current state.
func (h *Handle) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap := Snapshot{
		TaskID:     h.TaskID,
		Status:     h.status,
		Command:    append([]string(nil), h.Command...),
		WorkingDir: h.WorkingDir,
		Branch:     h.Branch,
		PRURL:      h.prURL,
		Output:     append([]string(nil), h.output...),
		Errors:     append([]string(nil), h.errOutput...),
	}
	if h.exitCode != nil {
		code := *h.exitCode
		snap.ExitCode = &code
	}
	if h.startedAt != nil {
		t := *h.startedAt
		snap.StartedAt = &t
	}
	if h.completedAt != nil {
		t := *h.completedAt
		snap.CompletedAt = &t
	}
	return snap
}
