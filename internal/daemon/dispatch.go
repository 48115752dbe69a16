package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/taskcell/taskcell/internal/executor"
)

// dispatch parses one request and routes it. The reply is always a
// well-formed JSON object; handler failures surface as error payloads,
// never as a dropped connection.
func (s *Server) dispatch(data []byte) []byte {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return marshalReply(errorReply{Error: "Invalid JSON: " + err.Error()})
	}

	s.logger.Debug("Request", "action", req.Action, "task_id", req.TaskID)

	switch req.Action {
	case ActionSubmit:
		return marshalReply(s.handleSubmit(&req))
	case ActionStatus:
		return marshalReply(s.handleStatus(&req))
	case ActionOutput:
		return marshalReply(s.handleOutput(&req))
	case ActionList:
		return marshalReply(s.handleList())
	case ActionKill:
		return marshalReply(s.handleKill(&req))
	default:
		return marshalReply(errorReply{Error: "Unknown action: " + req.Action})
	}
}

func marshalReply(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"error":"internal: reply serialization failed"}`)
	}
	return data
}

func (s *Server) handleSubmit(req *Request) any {
	workingDir := req.WorkingDir
	if workingDir == "" {
		workingDir = "."
	}

	snap, err := s.tasks.Submit(context.Background(), req.Command, workingDir, req.Env, req.Metadata)
	if err != nil {
		if errors.Is(err, executor.ErrQueueFull) {
			return errorReply{Error: "Queue full"}
		}
		return errorReply{Error: err.Error()}
	}

	return SubmitReply{
		TaskID: snap.TaskID,
		Status: "queued",
		Branch: snap.Branch,
		PRURL:  snap.PRURL,
	}
}

func (s *Server) handleStatus(req *Request) any {
	snap, ok := s.tasks.Get(req.TaskID)
	if !ok {
		return errorReply{Error: "Task not found"}
	}
	return StatusReply{
		TaskID:      snap.TaskID,
		Status:      string(snap.Status),
		ExitCode:    snap.ExitCode,
		StartedAt:   timeString(snap.StartedAt),
		CompletedAt: timeString(snap.CompletedAt),
		Branch:      snap.Branch,
		PRURL:       snap.PRURL,
	}
}

func (s *Server) handleOutput(req *Request) any {
	snap, ok := s.tasks.Get(req.TaskID)
	if !ok {
		return errorReply{Error: "Task not found"}
	}
	return OutputReply{
		TaskID: snap.TaskID,
		Output: strings.Join(snap.Output, "\n"),
		Error:  strings.Join(snap.Errors, "\n"),
	}
}

func (s *Server) handleList() any {
	snaps := s.tasks.List()
	reply := ListReply{Tasks: make([]TaskSummary, 0, len(snaps))}
	for _, snap := range snaps {
		reply.Tasks = append(reply.Tasks, TaskSummary{
			TaskID:  snap.TaskID,
			Status:  string(snap.Status),
			Command: strings.Join(snap.Command, " "),
		})
	}
	return reply
}

func (s *Server) handleKill(req *Request) any {
	err := s.tasks.Kill(req.TaskID)
	switch {
	case errors.Is(err, executor.ErrNotFound):
		return errorReply{Error: "Task not found"}
	case errors.Is(err, executor.ErrNotRunning):
		return errorReply{Error: "Task not running"}
	case err != nil:
		return errorReply{Error: err.Error()}
	}
	return KillReply{Status: "killed"}
}

func timeString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
