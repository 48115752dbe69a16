// Package store persists task records for a project.
//
// Records live under <project>/.taskcell/tasks, one directory per task
// holding the record JSON, feedback snapshots, and saved logs. A registry
// index file supports listing without opening every record.
package store

import "time"

// Status values for a task record.
type Status string

const (
	StatusCreated   Status = "created"
	StatusContinued Status = "continued"
	StatusFailed    Status = "failed"
)

// FeedbackType classifies how feedback was supplied.
type FeedbackType string

const (
	FeedbackText   FeedbackType = "text"
	FeedbackFile   FeedbackType = "file"
	FeedbackInline FeedbackType = "inline"
)

// FeedbackEntry is one round of feedback on a task. Entries are
// append-only and never modified once written.
type FeedbackEntry struct {
	Timestamp       time.Time    `json:"timestamp"`
	Feedback        string       `json:"feedback"`
	FeedbackType    FeedbackType `json:"feedback_type"`
	ResponseSummary string       `json:"response_summary,omitempty"`
}

// TaskRecord is the durable description of a task and its outcome.
type TaskRecord struct {
	ID                string          `json:"id"`
	Description       string          `json:"description"`
	Status            Status          `json:"status"`
	BranchName        string          `json:"branch_name"`
	CreatedAt         time.Time       `json:"created_at"`
	StartedAt         *time.Time      `json:"started_at,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	ContainerID       string          `json:"container_id,omitempty"`
	PRURL             string          `json:"pr_url,omitempty"`
	CommitHash        string          `json:"commit_hash,omitempty"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	FeedbackHistory   []FeedbackEntry `json:"feedback_history"`
	LastContinuedAt   *time.Time      `json:"last_continued_at,omitempty"`
	ContinuationCount int             `json:"continuation_count"`
	MCPServers        []string        `json:"mcp_servers,omitempty"`
}

// IndexEntry is the lightweight registry view of a record, enough for
// listing and lookups without loading the full JSON.
type IndexEntry struct {
	Branch    string    `json:"branch"`
	CreatedAt time.Time `json:"created_at"`
	Status    Status    `json:"status"`
	PRURL     string    `json:"pr_url,omitempty"`
}
