package main

import (
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskcell/taskcell/internal/config"
	"github.com/taskcell/taskcell/internal/daemon"
)

func createDaemonCommand() *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the task daemon",
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			if err := ensureDaemonRunning(cfg); err != nil {
				fail(err)
			}
		},
	}
	daemonCmd.AddCommand(startCmd)

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			if err := stopDaemon(cfg); err != nil {
				fail(err)
			}
			fmt.Println(successStyle.Render("Daemon stopped"))
		},
	}
	daemonCmd.AddCommand(stopCmd)

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the daemon",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			// Stop if running (ignore errors, might not be running)
			stopDaemon(cfg)
			time.Sleep(100 * time.Millisecond)
			if err := ensureDaemonRunning(cfg); err != nil {
				fail(err)
			}
			fmt.Println(successStyle.Render("Daemon restarted"))
		},
	}
	daemonCmd.AddCommand(restartCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Check daemon status",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			pid, err := readPidFile(cfg.PidFile)
			if err != nil || !processExists(pid) {
				fmt.Println(dimStyle.Render("Daemon not running"))
				return
			}
			if daemon.NewClient(cfg.SocketPath).Ping() {
				fmt.Println(successStyle.Render(fmt.Sprintf("Daemon running (pid %d)", pid)))
				fmt.Println(dimStyle.Render("Socket: " + cfg.SocketPath))
			} else {
				fmt.Println(warnStyle.Render(fmt.Sprintf("Daemon process alive (pid %d) but not answering on %s", pid, cfg.SocketPath)))
			}
		},
	}
	daemonCmd.AddCommand(statusCmd)

	return daemonCmd
}

// ensureDaemonRunning starts celld in the background if it is not
// already running, then waits for the socket to answer.
func ensureDaemonRunning(cfg config.Config) error {
	if pid, err := readPidFile(cfg.PidFile); err == nil {
		if processExists(pid) {
			fmt.Println(dimStyle.Render(fmt.Sprintf("Daemon already running (pid %d)", pid)))
			return nil
		}
		// Stale pid file, remove it
		os.Remove(cfg.PidFile)
	}

	binary, err := findDaemonBinary()
	if err != nil {
		return err
	}

	cmd := osexec.Command(binary)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	cmd.Env = os.Environ()
	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	if err := writePidFile(cfg.PidFile, cmd.Process.Pid); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}

	client := daemon.NewClient(cfg.SocketPath)
	for i := 0; i < 30; i++ {
		if client.Ping() {
			fmt.Println(successStyle.Render(fmt.Sprintf("Daemon started (pid %d)", cmd.Process.Pid)))
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon started (pid %d) but socket %s did not come up", cmd.Process.Pid, cfg.SocketPath)
}

// findDaemonBinary looks for celld next to the cell executable first,
// then on PATH.
func findDaemonBinary() (string, error) {
	if executable, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(executable), "celld")
		if _, err := os.Stat(sibling); err == nil {
			return sibling, nil
		}
	}
	if path, err := osexec.LookPath("celld"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("celld binary not found (looked next to cell and on PATH)")
}

func stopDaemon(cfg config.Config) error {
	pid, err := readPidFile(cfg.PidFile)
	if err != nil {
		return fmt.Errorf("daemon not running (no pid file)")
	}

	if !processExists(pid) {
		os.Remove(cfg.PidFile)
		return fmt.Errorf("daemon not running (stale pid file)")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}

	os.Remove(cfg.PidFile)
	return nil
}

func readPidFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, err
	}
	return pid, nil
}

func writePidFile(path string, pid int) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("%d", pid)), 0644)
}

func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds, so send signal 0 to probe
	err = process.Signal(syscall.Signal(0))
	return err == nil
}
