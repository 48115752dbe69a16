package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/taskcell/taskcell/internal/daemon"
)

func daemonClient() *daemon.Client {
	return daemon.NewClient(loadConfig().SocketPath)
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "pending":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	case "running":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6"))
	case "completed":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	case "failed", "error":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	}
}

func createSubmitCommand() *cobra.Command {
	var workingDir string
	var envPairs []string

	submitCmd := &cobra.Command{
		Use:   "submit [flags] -- <command...>",
		Short: "Submit a command to the daemon queue",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			env, err := parseEnvPairs(envPairs)
			if err != nil {
				fail(err)
			}
			if workingDir == "" {
				workingDir, err = os.Getwd()
				if err != nil {
					fail(err)
				}
			}

			reply, err := daemonClient().Submit(args, workingDir, env, nil)
			if err != nil {
				fail(err)
			}

			fmt.Println(successStyle.Render("Task queued: ") + reply.TaskID)
			if reply.Branch != "" {
				fmt.Println(dimStyle.Render("Branch: " + reply.Branch))
			}
			if reply.PRURL != "" {
				fmt.Println(dimStyle.Render("PR: " + reply.PRURL))
			}
		},
	}
	submitCmd.Flags().StringVarP(&workingDir, "dir", "d", "", "Working directory for the task (default: current directory)")
	submitCmd.Flags().StringArrayVarP(&envPairs, "env", "e", nil, "Environment variable KEY=VALUE (repeatable)")
	return submitCmd
}

func parseEnvPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid env pair %q (want KEY=VALUE)", pair)
		}
		env[key] = value
	}
	return env, nil
}

func createStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show a queued task's status",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			reply, err := daemonClient().Status(args[0])
			if err != nil {
				fail(err)
			}

			fmt.Println(boldStyle.Render("Task " + reply.TaskID))
			fmt.Println("Status:    " + statusStyle(reply.Status).Render(reply.Status))
			fmt.Println("Exit code: " + orDash(intString(reply.ExitCode)))
			fmt.Println("Started:   " + orDash(reply.StartedAt))
			fmt.Println("Completed: " + orDash(reply.CompletedAt))
			if reply.Branch != "" {
				fmt.Println("Branch:    " + reply.Branch)
			}
			if reply.PRURL != "" {
				fmt.Println("PR:        " + reply.PRURL)
			}
		},
	}
}

func intString(n *int) *string {
	if n == nil {
		return nil
	}
	s := fmt.Sprintf("%d", *n)
	return &s
}

func orDash(s *string) string {
	if s == nil {
		return dimStyle.Render("-")
	}
	return *s
}

func createOutputCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "output <task-id>",
		Short: "Print a task's captured output",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			reply, err := daemonClient().Output(args[0])
			if err != nil {
				fail(err)
			}
			if reply.Output != "" {
				fmt.Println(reply.Output)
			}
			if reply.Error != "" {
				fmt.Fprintln(os.Stderr, errorStyle.Render(reply.Error))
			}
		},
	}
}

func createPsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ps",
		Short: "List tasks known to the daemon",
		Run: func(cmd *cobra.Command, args []string) {
			reply, err := daemonClient().List()
			if err != nil {
				fail(err)
			}
			if len(reply.Tasks) == 0 {
				fmt.Println(dimStyle.Render("No tasks"))
				return
			}
			for _, t := range reply.Tasks {
				id := dimStyle.Render(fmt.Sprintf("%-10s", t.TaskID))
				status := statusStyle(t.Status).Render(fmt.Sprintf("%-10s", t.Status))
				fmt.Printf("%s %s %s\n", id, status, t.Command)
			}
		},
	}
}

func createKillCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "kill <task-id>",
		Short: "Kill a running task",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := daemonClient().Kill(args[0]); err != nil {
				fail(err)
			}
			fmt.Println(successStyle.Render("Task killed: ") + args[0])
		},
	}
}
