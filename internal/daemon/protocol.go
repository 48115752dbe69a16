package daemon

import "time"

// Wire limits. A request must fit one read on the daemon side and a
// reply one read on the client side; there is no length prefix or
// chunking, oversized messages fail to parse.
const (
	maxRequestBytes = 4096
	maxReplyBytes   = 8192

	acceptPoll  = time.Second
	connTimeout = 5 * time.Minute
	dialTimeout = 2 * time.Second
)

// Actions understood by the dispatcher.
const (
	ActionSubmit = "submit"
	ActionStatus = "status"
	ActionOutput = "output"
	ActionList   = "list"
	ActionKill   = "kill"
)

// Request is the single JSON object a client sends per connection.
// Fields beyond Action are read per action; unknown actions are
// rejected with an error reply.
type Request struct {
	Action     string            `json:"action"`
	TaskID     string            `json:"task_id,omitempty"`
	Command    []string          `json:"command,omitempty"`
	WorkingDir string            `json:"working_dir,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// SubmitReply acknowledges a submission. Status is always "queued";
// setup failures surface later through the status action.
type SubmitReply struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	Branch string `json:"branch,omitempty"`
	PRURL  string `json:"pr_url,omitempty"`
}

// StatusReply reports one task's lifecycle state. Unset timestamps and
// exit code are null, matching a task that has not started or finished.
type StatusReply struct {
	TaskID      string  `json:"task_id"`
	Status      string  `json:"status"`
	ExitCode    *int    `json:"exit_code"`
	StartedAt   *string `json:"started_at"`
	CompletedAt *string `json:"completed_at"`
	Branch      string  `json:"branch,omitempty"`
	PRURL       string  `json:"pr_url,omitempty"`
}

// OutputReply carries the accumulated stdout and stderr text.
type OutputReply struct {
	TaskID string `json:"task_id"`
	Output string `json:"output"`
	Error  string `json:"error"`
}

// TaskSummary is one row of a list reply.
type TaskSummary struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Command string `json:"command"`
}

// ListReply enumerates all known tasks in submission order.
type ListReply struct {
	Tasks []TaskSummary `json:"tasks"`
}

// KillReply acknowledges a kill request.
type KillReply struct {
	Status string `json:"status"`
}

type errorReply struct {
	Error string `json:"error"`
}
