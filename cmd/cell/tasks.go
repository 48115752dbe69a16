package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/taskcell/taskcell/internal/config"
	"github.com/taskcell/taskcell/internal/container"
	"github.com/taskcell/taskcell/internal/daemon"
	"github.com/taskcell/taskcell/internal/executor"
	"github.com/taskcell/taskcell/internal/git"
	"github.com/taskcell/taskcell/internal/github"
	"github.com/taskcell/taskcell/internal/mcp"
	"github.com/taskcell/taskcell/internal/store"
)

// assistantSettings is written to .claude/settings.local.json in the
// workspace so the assistant can use common tools without interactive
// permission prompts. The file is gitignored, never committed.
const assistantSettings = `{
  "permissions": {
    "allow": [
      "Bash(git:*)",
      "Bash(gh:*)",
      "Bash(npm:*)",
      "Bash(npx:*)",
      "Bash(node:*)",
      "Bash(yarn:*)",
      "Bash(pnpm:*)",
      "Bash(python:*)",
      "Bash(pip:*)",
      "Bash(poetry:*)",
      "Bash(pytest:*)",
      "Bash(go:*)",
      "Bash(cargo:*)",
      "Bash(make:*)",
      "Bash(docker:*)",
      "Bash(grep:*)",
      "Bash(rg:*)",
      "Bash(find:*)",
      "Bash(ls:*)",
      "Bash(cat:*)",
      "Bash(sed:*)",
      "Bash(awk:*)",
      "Bash(head:*)",
      "Bash(tail:*)",
      "Bash(mkdir:*)",
      "Bash(cp:*)",
      "Bash(mv:*)",
      "Bash(rm:*)",
      "Bash(touch:*)",
      "Bash(chmod:*)",
      "Bash(curl:*)",
      "Bash(tar:*)"
    ]
  }
}
`

const settingsIgnoreLine = ".claude/settings.local.json"

func createTaskCommand() *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Branch-scoped assistant tasks with durable records",
	}

	taskCmd.AddCommand(createTaskCreateCommand())
	taskCmd.AddCommand(createTaskContinueCommand())
	taskCmd.AddCommand(createTaskListCommand())
	taskCmd.AddCommand(createTaskShowCommand())
	taskCmd.AddCommand(createTaskSearchCommand())
	taskCmd.AddCommand(createTaskHistoryCommand())
	taskCmd.AddCommand(createTaskLogsCommand())
	taskCmd.AddCommand(createTaskDeleteCommand())

	return taskCmd
}

func createTaskCreateCommand() *cobra.Command {
	var branch string
	var descriptionFile string
	var async bool
	var mcpNames []string

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new task and run it to completion",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			root := projectRoot()
			st := openStore()
			gitClient := git.New()
			ctx := context.Background()

			if branch == "" {
				err := huh.NewInput().
					Title("Branch name").
					Value(&branch).
					Validate(func(s string) error {
						if strings.TrimSpace(s) == "" {
							return fmt.Errorf("branch name cannot be empty")
						}
						return nil
					}).
					Run()
				if err != nil {
					fail(err)
				}
			}

			description := ""
			if descriptionFile != "" {
				data, err := os.ReadFile(descriptionFile)
				if err != nil {
					fail(fmt.Errorf("read description file: %w", err))
				}
				description = strings.TrimSpace(string(data))
			} else {
				err := huh.NewText().
					Title("Task description").
					Value(&description).
					Validate(func(s string) error {
						if strings.TrimSpace(s) == "" {
							return fmt.Errorf("task description cannot be empty")
						}
						return nil
					}).
					Run()
				if err != nil {
					fail(err)
				}
			}

			branch = strings.TrimSpace(branch)
			description = strings.TrimSpace(description)
			if branch == "" || description == "" {
				fail(fmt.Errorf("branch name and task description cannot be empty"))
			}

			fmt.Println(dimStyle.Render("Fetching remote refs..."))
			if err := gitClient.Fetch(ctx, root); err != nil {
				fmt.Fprintln(os.Stderr, warnStyle.Render("Warning: fetch failed, branch check may be stale"))
			}

			local, remote, _ := gitClient.BranchExists(ctx, root, branch)
			if local || remote {
				fmt.Fprintln(os.Stderr, errorStyle.Render("Error: Branch '"+branch+"' already exists"))
				if local {
					fmt.Fprintln(os.Stderr, "  found as local branch")
				}
				if remote {
					fmt.Fprintln(os.Stderr, "  found on remote origin")
				}
				fmt.Fprintln(os.Stderr, "\nUse 'cell task continue' to work on an existing task")
				os.Exit(1)
			}

			mcpArgs, err := prepareMCPConfig(root, mcpNames)
			if err != nil {
				fail(err)
			}

			rec, err := st.Create(description, branch)
			if err != nil {
				fail(fmt.Errorf("create task record: %w", err))
			}
			if len(mcpNames) > 0 {
				st.Update(rec.ID, func(r *store.TaskRecord) { r.MCPServers = mcpNames })
			}
			fmt.Println(successStyle.Render("Created task "+shortID(rec.ID)) + " on branch '" + branch + "'")

			if async {
				runAsyncCreate(ctx, cfg, st, gitClient, root, rec)
				return
			}

			if err := runSyncCreate(ctx, cfg, st, gitClient, root, rec, mcpArgs); err != nil {
				recordTaskFailure(st, rec.ID, err)
				fail(err)
			}
		},
	}

	createCmd.Flags().StringVarP(&branch, "branch", "b", "", "Git branch name for the task")
	createCmd.Flags().StringVarP(&descriptionFile, "file", "f", "", "File containing the task description")
	createCmd.Flags().BoolVar(&async, "async", false, "Submit to the daemon instead of running in the foreground")
	createCmd.Flags().StringArrayVar(&mcpNames, "mcp", nil, "Registered MCP server to enable (repeatable)")
	return createCmd
}

// runAsyncCreate pushes the task branch and hands the run to the daemon.
// The daemon mirrors pr_url and failures back onto the record.
func runAsyncCreate(ctx context.Context, cfg config.Config, st *store.Store, gitClient *git.Client, root string, rec *store.TaskRecord) {
	if err := gitClient.CreateBranch(ctx, root, rec.BranchName); err != nil {
		recordTaskFailure(st, rec.ID, err)
		fail(err)
	}
	if err := gitClient.Push(ctx, root, rec.BranchName); err != nil {
		recordTaskFailure(st, rec.ID, err)
		fail(err)
	}

	command := []string{cfg.AssistantCommand, "-p", rec.Description}
	metadata := map[string]string{
		"type":             "feature_task",
		"branch":           rec.BranchName,
		"task_description": rec.Description,
		"record_id":        rec.ID,
	}

	reply, err := daemon.NewClient(cfg.SocketPath).Submit(command, root, nil, metadata)
	if err != nil {
		recordTaskFailure(st, rec.ID, err)
		fail(fmt.Errorf("submit to daemon: %w", err))
	}

	fmt.Println(successStyle.Render("Submitted to daemon: ") + reply.TaskID)
	fmt.Println(dimStyle.Render("Follow with: cell status " + reply.TaskID))
}

// runSyncCreate runs the whole task in the foreground: container up,
// branch, assistant, commit, push, draft PR. The container is removed on
// every path; failures are recorded by the caller.
func runSyncCreate(ctx context.Context, cfg config.Config, st *store.Store, gitClient *git.Client, root string, rec *store.TaskRecord, mcpArgs []string) error {
	runtime := container.New()
	if !runtime.Available() {
		return fmt.Errorf("docker is not available")
	}

	resolved, err := executor.ResolveMounts(root, root)
	if err != nil {
		return err
	}
	image := executor.ImageName(cfg.ImagePrefix, resolved.ProjectRoot)
	if !runtime.ImageExists(ctx, image) {
		return fmt.Errorf("container image %q not found", image)
	}

	if err := writeAssistantSettings(resolved.ProjectRoot); err != nil {
		fmt.Fprintln(os.Stderr, warnStyle.Render("Warning: "+err.Error()))
	}

	now := time.Now()
	st.Update(rec.ID, func(r *store.TaskRecord) { r.StartedAt = &now })

	fmt.Println(dimStyle.Render("Starting task container..."))
	name := executor.ContainerName(shortID(rec.ID))
	containerID, err := runtime.Start(ctx, container.RunSpec{
		Image:   image,
		Name:    name,
		WorkDir: resolved.WorkDir,
		Mounts:  resolved.Mounts,
		Env: map[string]string{
			"TASKCELL_TASK_ID":  shortID(rec.ID),
			"CLAUDE_CONFIG_DIR": "/root/.claude",
		},
	})
	if err != nil {
		return err
	}
	defer runtime.Remove(context.Background(), name)
	st.Update(rec.ID, func(r *store.TaskRecord) { r.ContainerID = containerID })

	fmt.Println(dimStyle.Render("Setting up branch '" + rec.BranchName + "'..."))
	if out, code, err := execStep(ctx, runtime, name, resolved.WorkDir, []string{"git", "checkout", "-b", rec.BranchName}); err != nil || code != 0 {
		return stepError("create branch", out, code, err)
	}

	fmt.Println()
	fmt.Println(boldStyle.Render("Running " + cfg.AssistantCommand + " with task:"))
	fmt.Println(dimStyle.Render("  " + firstLine(rec.Description)))
	fmt.Println(dimStyle.Render(strings.Repeat("-", 60)))

	assistantArgs := append([]string{cfg.AssistantCommand, "-p", rec.Description}, mcpArgs...)
	output, _, err := streamStep(ctx, runtime, name, resolved.WorkDir, assistantArgs)
	st.SaveLog(rec.ID, "assistant_output", strings.Join(output, "\n"))
	if err != nil {
		return fmt.Errorf("run assistant: %w", err)
	}

	statusOut, code, err := execStep(ctx, runtime, name, resolved.WorkDir, []string{"git", "status", "--porcelain"})
	if err != nil || code != 0 {
		return stepError("check working tree", statusOut, code, err)
	}

	commitMessage := ""
	if len(statusOut) == 0 {
		fmt.Println(dimStyle.Render("No changes to commit"))
	} else {
		commitPrompt := "Please commit all the changes you made. Review the changes with git diff and git status, then create a meaningful commit message that describes what was accomplished for the task: " + rec.Description

		fmt.Println()
		fmt.Println(boldStyle.Render("Asking the assistant to commit the changes"))
		fmt.Println(dimStyle.Render(strings.Repeat("-", 60)))

		commitOutput, _, err := streamStep(ctx, runtime, name, resolved.WorkDir, []string{cfg.AssistantCommand, "-p", commitPrompt})
		st.SaveLog(rec.ID, "assistant_commit", strings.Join(commitOutput, "\n"))
		if err != nil {
			return fmt.Errorf("run assistant commit: %w", err)
		}

		msgOut, code, err := execStep(ctx, runtime, name, resolved.WorkDir, []string{"git", "log", "-1", "--pretty=%B"})
		if err == nil && code == 0 {
			commitMessage = strings.TrimSpace(strings.Join(msgOut, "\n"))
			if hashOut, code, err := execStep(ctx, runtime, name, resolved.WorkDir, []string{"git", "rev-parse", "HEAD"}); err == nil && code == 0 && len(hashOut) > 0 {
				hash := strings.TrimSpace(hashOut[0])
				st.Update(rec.ID, func(r *store.TaskRecord) { r.CommitHash = hash })
			}
			fmt.Println(successStyle.Render("Changes committed"))
		} else {
			fmt.Fprintln(os.Stderr, warnStyle.Render("Warning: could not read the last commit"))
			commitMessage = "Task: " + firstLine(rec.Description)
		}
	}

	if commitMessage != "" {
		fmt.Println(dimStyle.Render("Pushing branch '" + rec.BranchName + "'..."))
		if out, code, err := execStep(ctx, runtime, name, resolved.WorkDir, []string{"git", "push", "-u", "origin", rec.BranchName}); err != nil || code != 0 {
			return stepError("push branch", out, code, err)
		}

		gh := github.New()
		if gh.Available() {
			fmt.Println(dimStyle.Render("Creating draft pull request..."))
			url, err := gh.CreateDraft(ctx, root, rec.BranchName, firstLine(commitMessage), taskPRBody(rec.Description, commitMessage))
			if err != nil {
				fmt.Fprintln(os.Stderr, warnStyle.Render("Warning: could not create PR: "+err.Error()))
			} else {
				st.Update(rec.ID, func(r *store.TaskRecord) { r.PRURL = url })
				fmt.Println(successStyle.Render("Draft PR: ") + url)
			}
		} else {
			fmt.Println(dimStyle.Render("gh not available, skipping PR creation"))
		}
	} else {
		fmt.Println(dimStyle.Render("No changes were made, skipping PR creation"))
	}

	done := time.Now()
	st.Update(rec.ID, func(r *store.TaskRecord) {
		r.CompletedAt = &done
		r.ContainerID = ""
	})

	fmt.Println()
	fmt.Println(successStyle.Render("Task completed"))
	fmt.Println("  ID:     " + shortID(rec.ID))
	fmt.Println("  Branch: " + rec.BranchName)
	return nil
}

func createTaskContinueCommand() *cobra.Command {
	var feedback string
	var feedbackFile string

	continueCmd := &cobra.Command{
		Use:   "continue <task-id|pr-url>",
		Short: "Continue an existing task with new feedback",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			root := projectRoot()
			st := openStore()
			ctx := context.Background()

			rec := lookupTask(st, args[0])

			fmt.Println(boldStyle.Render("Continuing task " + shortID(rec.ID)))
			fmt.Println("  Branch:        " + rec.BranchName)
			fmt.Println("  Description:   " + firstLine(rec.Description))
			if rec.PRURL != "" {
				fmt.Println("  PR:            " + rec.PRURL)
			}
			fmt.Println("  Continuations: " + fmt.Sprint(rec.ContinuationCount))

			content, ftype := collectFeedback(feedback, feedbackFile)

			updated, err := st.AddFeedback(rec.ID, content, ftype)
			if err != nil {
				fail(fmt.Errorf("record feedback: %w", err))
			}

			if err := runContinue(ctx, cfg, st, root, updated, content); err != nil {
				st.Update(rec.ID, func(r *store.TaskRecord) {
					r.Status = store.StatusFailed
					r.ErrorMessage = err.Error()
					r.ContainerID = ""
				})
				fail(err)
			}
		},
	}

	continueCmd.Flags().StringVarP(&feedback, "feedback", "f", "", "Inline feedback string")
	continueCmd.Flags().StringVar(&feedbackFile, "feedback-file", "", "File containing feedback")
	return continueCmd
}

func collectFeedback(inline, file string) (string, store.FeedbackType) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			fail(fmt.Errorf("read feedback file: %w", err))
		}
		return strings.TrimSpace(string(data)), store.FeedbackFile
	}
	if inline != "" {
		return inline, store.FeedbackInline
	}

	content := ""
	err := huh.NewText().
		Title("Feedback").
		Value(&content).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("feedback cannot be empty")
			}
			return nil
		}).
		Run()
	if err != nil {
		fail(err)
	}
	return strings.TrimSpace(content), store.FeedbackText
}

// runContinue reruns the assistant on the task branch with the new
// feedback folded into the prompt. Push failures only warn: the work is
// committed locally and can be pushed by hand.
func runContinue(ctx context.Context, cfg config.Config, st *store.Store, root string, rec *store.TaskRecord, feedback string) error {
	runtime := container.New()
	if !runtime.Available() {
		return fmt.Errorf("docker is not available")
	}

	resolved, err := executor.ResolveMounts(root, root)
	if err != nil {
		return err
	}
	image := executor.ImageName(cfg.ImagePrefix, resolved.ProjectRoot)
	if !runtime.ImageExists(ctx, image) {
		return fmt.Errorf("container image %q not found", image)
	}

	if err := writeAssistantSettings(resolved.ProjectRoot); err != nil {
		fmt.Fprintln(os.Stderr, warnStyle.Render("Warning: "+err.Error()))
	}

	fmt.Println(dimStyle.Render("Starting task container..."))
	name := executor.ContainerName(shortID(rec.ID))
	containerID, err := runtime.Start(ctx, container.RunSpec{
		Image:   image,
		Name:    name,
		WorkDir: resolved.WorkDir,
		Mounts:  resolved.Mounts,
		Env: map[string]string{
			"TASKCELL_TASK_ID":  shortID(rec.ID),
			"CLAUDE_CONFIG_DIR": "/root/.claude",
		},
	})
	if err != nil {
		return err
	}
	defer runtime.Remove(context.Background(), name)
	st.Update(rec.ID, func(r *store.TaskRecord) { r.ContainerID = containerID })

	fmt.Println(dimStyle.Render("Fetching latest remote changes..."))
	if out, code, err := execStep(ctx, runtime, name, resolved.WorkDir, []string{"git", "fetch", "--all"}); err != nil || code != 0 {
		fmt.Fprintln(os.Stderr, warnStyle.Render("Warning: fetch failed"))
		printStepOutput(out)
	}

	fmt.Println(dimStyle.Render("Checking out branch '" + rec.BranchName + "'..."))
	if out, code, err := execStep(ctx, runtime, name, resolved.WorkDir, []string{"git", "checkout", rec.BranchName}); err != nil || code != 0 {
		return stepError("checkout branch", out, code, err)
	}

	if out, code, err := execStep(ctx, runtime, name, resolved.WorkDir, []string{"git", "pull"}); err != nil || code != 0 {
		fmt.Fprintln(os.Stderr, warnStyle.Render("Warning: pull failed, continuing with local state"))
		printStepOutput(out)
	}

	prompt := continuationPrompt(rec.Description, feedback, rec.ContinuationCount)

	fmt.Println()
	fmt.Println(boldStyle.Render("Running " + cfg.AssistantCommand + " with feedback"))
	fmt.Println(dimStyle.Render(strings.Repeat("-", 60)))

	n := rec.ContinuationCount
	output, _, err := streamStep(ctx, runtime, name, resolved.WorkDir, []string{cfg.AssistantCommand, "-p", prompt})
	st.SaveLog(rec.ID, fmt.Sprintf("assistant_output_cont_%d", n), strings.Join(output, "\n"))
	if err != nil {
		return fmt.Errorf("run assistant: %w", err)
	}

	statusOut, code, err := execStep(ctx, runtime, name, resolved.WorkDir, []string{"git", "status", "--porcelain"})
	if err != nil || code != 0 {
		return stepError("check working tree", statusOut, code, err)
	}

	if len(statusOut) == 0 {
		fmt.Println(dimStyle.Render("No changes to commit"))
	} else {
		commitPrompt := "Please commit all the changes you made. Create a meaningful commit message that describes what was accomplished based on the feedback: " + feedback

		fmt.Println()
		fmt.Println(boldStyle.Render("Asking the assistant to commit the changes"))
		fmt.Println(dimStyle.Render(strings.Repeat("-", 60)))

		commitOutput, _, err := streamStep(ctx, runtime, name, resolved.WorkDir, []string{cfg.AssistantCommand, "-p", commitPrompt})
		st.SaveLog(rec.ID, fmt.Sprintf("assistant_commit_cont_%d", n), strings.Join(commitOutput, "\n"))
		if err != nil {
			return fmt.Errorf("run assistant commit: %w", err)
		}

		if msgOut, code, err := execStep(ctx, runtime, name, resolved.WorkDir, []string{"git", "log", "-1", "--pretty=%B"}); err == nil && code == 0 && len(msgOut) > 0 {
			if hashOut, code, err := execStep(ctx, runtime, name, resolved.WorkDir, []string{"git", "rev-parse", "HEAD"}); err == nil && code == 0 && len(hashOut) > 0 {
				hash := strings.TrimSpace(hashOut[0])
				st.Update(rec.ID, func(r *store.TaskRecord) { r.CommitHash = hash })
			}
			fmt.Println(successStyle.Render("Changes committed"))

			fmt.Println(dimStyle.Render("Pushing changes..."))
			if out, code, err := execStep(ctx, runtime, name, resolved.WorkDir, []string{"git", "push"}); err != nil || code != 0 {
				fmt.Fprintln(os.Stderr, warnStyle.Render("Warning: push failed, changes remain local"))
				printStepOutput(out)
			} else {
				fmt.Println(successStyle.Render("Changes pushed"))
			}
		} else {
			fmt.Fprintln(os.Stderr, warnStyle.Render("Warning: no commit was made"))
		}
	}

	done := time.Now()
	st.Update(rec.ID, func(r *store.TaskRecord) {
		r.CompletedAt = &done
		r.ContainerID = ""
	})

	fmt.Println()
	fmt.Println(successStyle.Render("Task continuation completed"))
	fmt.Println("  ID:     " + shortID(rec.ID))
	fmt.Println("  Branch: " + rec.BranchName)
	if rec.PRURL != "" {
		fmt.Println("  PR:     " + rec.PRURL)
	}
	return nil
}

func continuationPrompt(description, feedback string, count int) string {
	return fmt.Sprintf(`You are continuing work on a task. Here is the original task description:

%s

The task has been worked on %d time(s) before.

Here is the new feedback/requirements:

%s

Please continue working on this task based on the feedback provided.`, description, count, feedback)
}

func createTaskListCommand() *cobra.Command {
	var status string

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks for this project",
		Run: func(cmd *cobra.Command, args []string) {
			st := openStore()
			records, err := st.History(0, "")
			if err != nil {
				fail(err)
			}
			if status != "" {
				filtered := records[:0]
				for _, r := range records {
					if string(r.Status) == status {
						filtered = append(filtered, r)
					}
				}
				records = filtered
			}
			if len(records) == 0 {
				fmt.Println(dimStyle.Render("No tasks found"))
				return
			}
			printRecordTable(records)
		},
	}
	listCmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status: created, continued, failed")
	return listCmd
}

func createTaskSearchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search tasks by description",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			st := openStore()
			records, err := st.Search(args[0])
			if err != nil {
				fail(err)
			}
			if len(records) == 0 {
				fmt.Println(dimStyle.Render("No tasks found matching '" + args[0] + "'"))
				return
			}
			fmt.Println(boldStyle.Render("Tasks matching '" + args[0] + "'"))
			printRecordTable(records)
		},
	}
}

func createTaskHistoryCommand() *cobra.Command {
	var limit int
	var branch string

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show task execution history",
		Run: func(cmd *cobra.Command, args []string) {
			st := openStore()
			records, err := st.History(limit, branch)
			if err != nil {
				fail(err)
			}
			if len(records) == 0 {
				if branch != "" {
					fmt.Println(dimStyle.Render("No task history for branch '" + branch + "'"))
				} else {
					fmt.Println(dimStyle.Render("No task history"))
				}
				return
			}
			printRecordTable(records)
			fmt.Println(dimStyle.Render(fmt.Sprintf("\nShowing %d task(s)", len(records))))
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of tasks to show")
	historyCmd.Flags().StringVarP(&branch, "branch", "b", "", "Filter by branch name")
	return historyCmd
}

func createTaskShowCommand() *cobra.Command {
	var showFeedback bool

	showCmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show detailed task information",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			st := openStore()
			rec := lookupTask(st, args[0])

			fmt.Println(boldStyle.Render("Task " + rec.ID))
			fmt.Println()
			fmt.Println("Status:        " + recordStatusStyle(rec.Status).Render(string(rec.Status)))
			fmt.Println("Branch:        " + rec.BranchName)
			fmt.Println("Created:       " + rec.CreatedAt.Format("2006-01-02 15:04:05"))
			if rec.StartedAt != nil {
				fmt.Println("Started:       " + rec.StartedAt.Format("2006-01-02 15:04:05"))
			}
			if rec.CompletedAt != nil {
				fmt.Println("Completed:     " + rec.CompletedAt.Format("2006-01-02 15:04:05"))
			}
			if rec.LastContinuedAt != nil {
				fmt.Println("Continued:     " + rec.LastContinuedAt.Format("2006-01-02 15:04:05"))
			}
			fmt.Println("Continuations: " + fmt.Sprint(rec.ContinuationCount))
			if rec.PRURL != "" {
				fmt.Println("PR:            " + rec.PRURL)
			}
			if rec.CommitHash != "" {
				fmt.Println("Commit:        " + rec.CommitHash)
			}
			if len(rec.MCPServers) > 0 {
				fmt.Println("MCP servers:   " + strings.Join(rec.MCPServers, ", "))
			}

			fmt.Println()
			fmt.Println(boldStyle.Render("Description"))
			rendered, err := glamour.Render(rec.Description, "dark")
			if err != nil {
				fmt.Println(rec.Description)
			} else {
				fmt.Println(strings.TrimSpace(rendered))
			}

			if rec.ErrorMessage != "" {
				fmt.Println()
				fmt.Println(errorStyle.Render("Error: " + rec.ErrorMessage))
			}

			if showFeedback && len(rec.FeedbackHistory) > 0 {
				fmt.Println()
				fmt.Println(boldStyle.Render("Feedback history"))
				for i, entry := range rec.FeedbackHistory {
					fmt.Printf("\n[%d] %s (%s)\n", i+1, entry.Timestamp.Format("2006-01-02 15:04:05"), entry.FeedbackType)
					fmt.Println(entry.Feedback)
				}
			}
		},
	}
	showCmd.Flags().BoolVar(&showFeedback, "feedback-history", false, "Show feedback history")
	return showCmd
}

func createTaskLogsCommand() *cobra.Command {
	var logType string
	var continuation int

	logsCmd := &cobra.Command{
		Use:   "logs <task-id>",
		Short: "View saved assistant logs for a task",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			st := openStore()
			rec := lookupTask(st, args[0])

			available, err := st.Logs(rec.ID)
			if err != nil {
				fail(err)
			}
			if len(available) == 0 {
				fmt.Println(dimStyle.Render("No logs for task " + shortID(rec.ID)))
				return
			}

			want := logTypeName(logType, continuation)
			content, err := st.GetLog(rec.ID, want)
			if err != nil {
				fail(err)
			}
			if content == "" {
				fmt.Println(dimStyle.Render("No '" + want + "' log. Available logs:"))
				for _, name := range available {
					fmt.Println("  " + name)
				}
				return
			}

			fmt.Println(dimStyle.Render("Showing " + want))
			fmt.Println(dimStyle.Render(strings.Repeat("-", 60)))
			fmt.Println(content)
		},
	}
	logsCmd.Flags().StringVarP(&logType, "type", "t", "output", "Log type: output or commit")
	logsCmd.Flags().IntVarP(&continuation, "continuation", "c", 0, "Continuation number (0 = initial run)")
	return logsCmd
}

// logTypeName maps the user-facing type/continuation pair onto the
// stored log name.
func logTypeName(logType string, continuation int) string {
	name := "assistant_output"
	if logType == "commit" {
		name = "assistant_commit"
	}
	if continuation > 0 {
		name = fmt.Sprintf("%s_cont_%d", name, continuation)
	}
	return name
}

func createTaskDeleteCommand() *cobra.Command {
	var yes bool

	deleteCmd := &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task and all its data",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			st := openStore()
			rec := lookupTask(st, args[0])

			if !yes {
				confirmed := false
				err := huh.NewConfirm().
					Title("Delete task " + shortID(rec.ID) + " on branch '" + rec.BranchName + "'?").
					Value(&confirmed).
					Run()
				if err != nil {
					fail(err)
				}
				if !confirmed {
					fmt.Println(dimStyle.Render("Cancelled"))
					return
				}
			}

			if err := st.Delete(rec.ID); err != nil {
				fail(err)
			}
			fmt.Println(successStyle.Render("Deleted task " + shortID(rec.ID)))
			fmt.Println(dimStyle.Render("  Branch: " + rec.BranchName))
			fmt.Println(dimStyle.Render("  " + firstLine(rec.Description)))
		},
	}
	deleteCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return deleteCmd
}

// lookupTask resolves a record by PR URL, exact id, or unique prefix.
func lookupTask(st *store.Store, identifier string) *store.TaskRecord {
	if strings.HasPrefix(identifier, "http") {
		rec, err := st.LookupByPR(identifier)
		if err != nil {
			fail(err)
		}
		if rec == nil {
			fail(fmt.Errorf("no task found for PR URL: %s", identifier))
		}
		return rec
	}
	return resolveRecord(st, identifier)
}

func printRecordTable(records []*store.TaskRecord) {
	for _, r := range records {
		id := dimStyle.Render(shortID(r.ID))
		status := recordStatusStyle(r.Status).Render(fmt.Sprintf("%-10s", r.Status))
		desc := truncate(firstLine(r.Description), 50)
		if r.ContinuationCount > 0 {
			desc += warnStyle.Render(fmt.Sprintf(" (cont: %d)", r.ContinuationCount))
		}
		pr := ""
		if r.PRURL != "" {
			if n, err := github.NumberFromURL(r.PRURL); err == nil {
				pr = dimStyle.Render(fmt.Sprintf(" PR #%d", n))
			} else {
				pr = dimStyle.Render(" PR")
			}
		}
		created := dimStyle.Render(r.CreatedAt.Format("2006-01-02 15:04"))
		fmt.Printf("%s %s %-20s %s %s%s\n", id, status, r.BranchName, created, desc, pr)
	}
}

func recordStatusStyle(status store.Status) lipgloss.Style {
	switch status {
	case store.StatusCreated:
		return successStyle
	case store.StatusContinued:
		return warnStyle
	case store.StatusFailed:
		return errorStyle
	default:
		return dimStyle
	}
}

// prepareMCPConfig validates the requested server names and writes a
// filtered registry file the assistant reads through the workspace
// mount. Returns the extra assistant arguments, if any.
func prepareMCPConfig(root string, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}

	manager := mcp.NewManager(root)
	reg, err := manager.Load()
	if err != nil {
		return nil, err
	}
	if missing := reg.Missing(names); len(missing) > 0 {
		return nil, fmt.Errorf("unknown MCP servers: %s (registered: %s)",
			strings.Join(missing, ", "), strings.Join(reg.Names(), ", "))
	}

	data, err := reg.Filter(names).MCPJSON()
	if err != nil {
		return nil, err
	}
	runFile := filepath.Join(root, store.DataDirName, "mcp-run.json")
	if err := os.MkdirAll(filepath.Dir(runFile), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(runFile, data, 0o644); err != nil {
		return nil, fmt.Errorf("write mcp run config: %w", err)
	}

	containerPath := path.Join(executor.WorkspaceDir, store.DataDirName, "mcp-run.json")
	return []string{"--mcp-config", containerPath}, nil
}

// writeAssistantSettings drops the liberal permissions file into the
// workspace and makes sure it stays out of version control. The project
// root is bind-mounted, so writing host-side lands in the container.
func writeAssistantSettings(root string) error {
	dir := filepath.Join(root, ".claude")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create .claude dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "settings.local.json"), []byte(assistantSettings), 0o644); err != nil {
		return fmt.Errorf("write settings.local.json: %w", err)
	}
	return ensureGitignore(root, settingsIgnoreLine)
}

// ensureGitignore appends line to the project .gitignore unless present.
func ensureGitignore(root, line string) error {
	path := filepath.Join(root, ".gitignore")
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read .gitignore: %w", err)
	}
	for _, existing := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(existing) == line {
			return nil
		}
	}

	content := string(data)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += line + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("update .gitignore: %w", err)
	}
	return nil
}

// execStep runs one command in the task container, collecting output
// quietly. Both streams are interleaved in arrival order.
func execStep(ctx context.Context, runtime *container.Runtime, name, workdir string, argv []string) ([]string, int, error) {
	var lines []string
	code, err := runtime.Exec(ctx, name, workdir, argv, func(stream, line string) {
		lines = append(lines, line)
	})
	return lines, code, err
}

// streamStep runs one command in the task container, echoing output to
// the terminal as it arrives and returning the collected lines.
func streamStep(ctx context.Context, runtime *container.Runtime, name, workdir string, argv []string) ([]string, int, error) {
	var lines []string
	code, err := runtime.Exec(ctx, name, workdir, argv, func(stream, line string) {
		if stream == "error" {
			fmt.Fprintln(os.Stderr, line)
		} else {
			fmt.Println(line)
		}
		lines = append(lines, line)
	})
	return lines, code, err
}

func stepError(what string, out []string, code int, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	detail := strings.TrimSpace(strings.Join(out, "\n"))
	if detail == "" {
		return fmt.Errorf("%s: exit %d", what, code)
	}
	return fmt.Errorf("%s: exit %d\n%s", what, code, detail)
}

func printStepOutput(lines []string) {
	for _, line := range lines {
		fmt.Fprintln(os.Stderr, dimStyle.Render("  "+line))
	}
}

func recordTaskFailure(st *store.Store, id string, cause error) {
	now := time.Now()
	st.Update(id, func(r *store.TaskRecord) {
		r.Status = store.StatusFailed
		r.ErrorMessage = cause.Error()
		r.CompletedAt = &now
		r.ContainerID = ""
	})
}

func taskPRBody(description, commitMessage string) string {
	return fmt.Sprintf(`## Task Description

%s

## Changes Made

%s

---

*Created automatically by cell task*`, description, commitMessage)
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
