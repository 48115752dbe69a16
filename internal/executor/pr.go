package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/taskcell/taskcell/internal/github"
	"github.com/taskcell/taskcell/internal/store"
)

const prTimeout = 2 * time.Minute

// finishPR runs the post-run PR lifecycle. It never changes the task's
// terminal status; every failure here is logged and dropped.
func (e *Executor) finishPR(h *Handle, final Status) {
	if h.Branch == "" || !e.ghAvailable {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), prTimeout)
	defer cancel()

	url := h.PRURL()
	created := false
	if url == "" {
		info, err := e.gh.PRForBranch(ctx, h.WorkingDir, h.Branch)
		if err != nil {
			e.logger.Warn("PR lookup failed", "id", h.TaskID, "branch", h.Branch, "error", err)
			return
		}
		if info != nil {
			url = info.URL
		} else {
			title := summarizeCommand(h.Command, 60)
			url, err = e.gh.CreateDraft(ctx, h.WorkingDir, h.Branch, title, e.prBody(h, final))
			if err != nil {
				e.logger.Warn("PR creation failed", "id", h.TaskID, "branch", h.Branch, "error", err)
				return
			}
			created = true
		}
		h.setPRURL(url)
		e.logLine(h, "output", "Pull request: "+url)
	}

	if created {
		// The fresh draft already carries the final status in its body
		// and stays draft for review.
		return
	}

	number, err := github.NumberFromURL(url)
	if err != nil {
		e.logger.Warn("PR update skipped", "id", h.TaskID, "url", url, "error", err)
		return
	}
	if err := e.gh.EditBody(ctx, h.WorkingDir, number, e.prBody(h, final)); err != nil {
		e.logger.Warn("PR body update failed", "id", h.TaskID, "pr", number, "error", err)
	}
	if final == StatusCompleted {
		if err := e.gh.MarkReady(ctx, h.WorkingDir, number); err != nil {
			e.logger.Warn("PR ready-for-review failed", "id", h.TaskID, "pr", number, "error", err)
		}
	}
}

func (e *Executor) prBody(h *Handle, final Status) string {
	snap := h.Snapshot()

	var b strings.Builder
	fmt.Fprintf(&b, "## Task\n\n```\n%s\n```\n\n", strings.Join(h.Command, " "))
	if desc := h.Metadata["task_description"]; desc != "" {
		fmt.Fprintf(&b, "%s\n\n", desc)
	}
	fmt.Fprintf(&b, "## Result\n\nStatus: %s", final)
	if snap.ExitCode != nil {
		fmt.Fprintf(&b, " (exit %d)", *snap.ExitCode)
	}
	fmt.Fprintf(&b, "\nBranch: `%s`\nTask id: `%s`\n", h.Branch, h.TaskID)
	return b.String()
}

// mirrorRecord copies the outcome onto the durable task record when the
// submitter linked one through metadata. Best-effort: daemon handles
// and store records live in separate id spaces, the bridge is only as
// good as the metadata.
func (e *Executor) mirrorRecord(h *Handle, final Status) {
	recordID := h.Metadata["record_id"]
	if recordID == "" {
		return
	}

	root, ok := e.git.FindRoot(h.WorkingDir)
	if !ok {
		root = h.WorkingDir
	}
	st, err := store.Open(root)
	if err != nil {
		e.logger.Warn("Record mirror skipped", "id", h.TaskID, "record", recordID, "error", err)
		return
	}

	prURL := h.PRURL()
	_, err = st.Update(recordID, func(rec *store.TaskRecord) {
		if prURL != "" {
			rec.PRURL = prURL
		}
		if final == StatusFailed || final == StatusError {
			rec.Status = store.StatusFailed
			rec.ErrorMessage = firstLine(h.Snapshot().Errors)
		}
		now := time.Now()
		rec.CompletedAt = &now
		rec.ContainerID = ""
	})
	if err != nil {
		e.logger.Warn("Record mirror failed", "id", h.TaskID, "record", recordID, "error", err)
	}
}

func firstLine(lines []string) string {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return l
		}
	}
	return ""
}
