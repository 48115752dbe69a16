// celld is the task daemon.
// It listens on a local unix socket, queues submitted tasks and runs
// them in per-project containers with bounded concurrency.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/taskcell/taskcell/internal/config"
	"github.com/taskcell/taskcell/internal/container"
	"github.com/taskcell/taskcell/internal/daemon"
	"github.com/taskcell/taskcell/internal/executor"
	"github.com/taskcell/taskcell/internal/git"
	"github.com/taskcell/taskcell/internal/github"
	"github.com/taskcell/taskcell/internal/journal"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath(), "Config file path")
	socketPath := flag.String("socket", "", "Unix socket path (default from config)")
	workers := flag.Int("workers", 0, "Worker pool size (default from config)")
	journalPath := flag.String("journal", "", "Task log journal path (default from config)")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "celld",
	})

	cfg, err := config.LoadFromPath(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", "error", err)
	}
	if *socketPath != "" {
		cfg.SocketPath = *socketPath
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if *journalPath != "" {
		cfg.JournalPath = *journalPath
	}

	jrnl, err := journal.Open(cfg.JournalPath)
	if err != nil {
		logger.Fatal("Failed to open journal", "error", err)
	}
	defer jrnl.Close()
	logger.Info("Journal opened", "path", cfg.JournalPath)

	runtime := container.New()
	if !runtime.Available() {
		logger.Fatal("Docker is not available")
	}

	exec := executor.NewWithLogging(&cfg, jrnl, runtime, git.New(), github.New(), os.Stderr)
	srv := daemon.NewWithLogging(&cfg, exec, os.Stderr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exec.Start(ctx)

	if err := srv.Start(); err != nil {
		exec.Stop()
		logger.Fatal("Failed to start daemon", "error", err)
	}

	if err := writePidFile(cfg.PidFile); err != nil {
		logger.Warn("Failed to write pid file", "path", cfg.PidFile, "error", err)
	}

	logger.Info("Starting celld",
		"socket", cfg.SocketPath,
		"workers", cfg.Workers,
		"journal", cfg.JournalPath,
	)
	fmt.Printf("\n  Socket: %s\n  Submit: cell submit -- <command>\n\n", cfg.SocketPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Received signal, shutting down", "signal", sig)

	srv.Stop()
	exec.Stop()
	os.Remove(cfg.PidFile)
}

func writePidFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}
