// cell is the local CLI for container-isolated coding tasks.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/taskcell/taskcell/internal/config"
	"github.com/taskcell/taskcell/internal/git"
	"github.com/taskcell/taskcell/internal/github"
	"github.com/taskcell/taskcell/internal/store"
)

var (
	version = "dev"

	// Styles for CLI output
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	boldStyle    = lipgloss.NewStyle().Bold(true)
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "cell",
		Short:   "Container-isolated coding tasks",
		Long:    "Run coding assistant tasks in project containers, tied to branches and pull requests.",
		Version: version,
	}
	rootCmd.SetVersionTemplate(`{{.Version}}
`)

	rootCmd.AddCommand(createTaskCommand())
	rootCmd.AddCommand(createDaemonCommand())
	rootCmd.AddCommand(createSubmitCommand())
	rootCmd.AddCommand(createStatusCommand())
	rootCmd.AddCommand(createOutputCommand())
	rootCmd.AddCommand(createPsCommand())
	rootCmd.AddCommand(createKillCommand())
	rootCmd.AddCommand(createJournalCommand())
	rootCmd.AddCommand(createMCPCommand())
	rootCmd.AddCommand(createUpgradeCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
	os.Exit(1)
}

func loadConfig() config.Config {
	cfg, err := config.Load()
	if err != nil {
		fail(err)
	}
	return cfg
}

// projectRoot resolves the repository root for the current directory,
// falling back to the directory itself outside a repository.
func projectRoot() string {
	cwd, err := os.Getwd()
	if err != nil {
		fail(err)
	}
	if root, ok := git.New().FindRoot(cwd); ok {
		return root
	}
	return cwd
}

func openStore() *store.Store {
	st, err := store.Open(projectRoot())
	if err != nil {
		fail(err)
	}
	return st
}

// resolveRecord looks a record up by full id or unique prefix.
func resolveRecord(st *store.Store, identifier string) *store.TaskRecord {
	rec, err := st.ResolvePrefix(identifier)
	if err != nil {
		fail(err)
	}
	return rec
}

func createUpgradeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade",
		Short: "Check for a newer release",
		Run: func(cmd *cobra.Command, args []string) {
			release := github.FetchLatestRelease()
			if release == nil {
				fail(fmt.Errorf("could not reach the releases API"))
			}
			if github.IsNewerVersion(version, release.Version) {
				fmt.Println(boldStyle.Render("Update available: ") + release.Version)
				fmt.Println(dimStyle.Render(release.URL))
			} else {
				fmt.Println(successStyle.Render("cell is up to date (" + version + ")"))
			}
		},
	}
}
