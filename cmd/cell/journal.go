package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/taskcell/taskcell/internal/journal"
)

func createJournalCommand() *cobra.Command {
	var follow bool
	var limit int

	journalCmd := &cobra.Command{
		Use:   "journal [task-id]",
		Short: "Read the daemon's task journal",
		Long:  "Without arguments, lists journaled tasks. With a task id, prints that task's lines; --follow keeps printing as the daemon appends.",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			jrnl, err := journal.Open(cfg.JournalPath)
			if err != nil {
				fail(err)
			}
			defer jrnl.Close()

			if len(args) == 0 {
				tasks, err := jrnl.Tasks(limit)
				if err != nil {
					fail(err)
				}
				if len(tasks) == 0 {
					fmt.Println(dimStyle.Render("Journal is empty"))
					return
				}
				for _, t := range tasks {
					id := dimStyle.Render(fmt.Sprintf("%-12s", t.TaskID))
					seen := t.LastSeen.Local().Format("2006-01-02 15:04:05")
					fmt.Printf("%s %5d lines  %s\n", id, t.Lines, dimStyle.Render(seen))
				}
				return
			}

			taskID := args[0]
			entries, err := jrnl.Logs(taskID, limit)
			if err != nil {
				fail(err)
			}
			if len(entries) == 0 && !follow {
				fmt.Println(dimStyle.Render("No journal lines for task " + taskID))
				return
			}

			var lastID int64
			for _, e := range entries {
				printJournalEntry(e)
				lastID = e.ID
			}

			if follow {
				followJournal(jrnl, cfg.JournalPath, taskID, lastID)
			}
		},
	}

	journalCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines as they arrive")
	journalCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum lines to print")
	return journalCmd
}

// followJournal blocks, printing new lines for the task until
// interrupted. File events signal new writes; the ticker is a fallback
// because WAL checkpointing does not always touch the main db file.
func followJournal(jrnl *journal.Journal, dbPath, taskID string, lastID int64) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fail(err)
	}
	defer watcher.Close()

	watcher.Add(dbPath)
	watcher.Add(dbPath + "-wal")

	changed := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write {
					// Non-blocking send to debounce rapid changes
					select {
					case changed <- struct{}{}:
					default:
					}
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)

	for {
		select {
		case <-changed:
		case <-ticker.C:
		case <-sigCh:
			return
		}

		entries, err := jrnl.LogsSince(taskID, lastID)
		if err != nil {
			continue
		}
		for _, e := range entries {
			printJournalEntry(e)
			lastID = e.ID
		}
	}
}

func printJournalEntry(e *journal.Entry) {
	ts := dimStyle.Render(e.CreatedAt.Local().Format("15:04:05"))
	switch e.LineType {
	case "error":
		fmt.Println(ts + " " + errorStyle.Render(e.Content))
	case "system":
		fmt.Println(ts + " " + dimStyle.Render(e.Content))
	default:
		fmt.Println(ts + " " + e.Content)
	}
}
