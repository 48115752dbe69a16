// Package config provides daemon and CLI configuration.
//
// Configuration comes from an optional YAML file, with defaults for
// anything unset and TASKCELL_* environment variables applied last.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds resolved configuration for the daemon and CLI.
type Config struct {
	// SocketPath is the unix socket the daemon listens on.
	SocketPath string
	// PidFile is written by celld so `cell daemon stop` can signal it.
	PidFile string
	// JournalPath is the sqlite journal for daemon task logs.
	JournalPath string
	// Workers is the number of concurrent task workers.
	Workers int
	// QueueSize bounds the task queue; 0 means unbounded.
	QueueSize int
	// TaskTimeout caps a single task's runtime; 0 disables the deadline.
	TaskTimeout time.Duration
	// SocketTakeover controls startup when the socket already exists:
	// true removes and rebinds it, false refuses if a daemon answers.
	SocketTakeover bool
	// AssistantCommand is the coding assistant CLI run inside containers.
	AssistantCommand string
	// ImagePrefix prefixes per-project container image names.
	ImagePrefix string
}

// fileConfig mirrors Config with optional fields so omitted keys keep
// their defaults.
type fileConfig struct {
	SocketPath       *string `yaml:"socket_path,omitempty"`
	PidFile          *string `yaml:"pid_file,omitempty"`
	JournalPath      *string `yaml:"journal_path,omitempty"`
	Workers          *int    `yaml:"workers,omitempty"`
	QueueSize        *int    `yaml:"queue_size,omitempty"`
	TaskTimeout      *string `yaml:"task_timeout,omitempty"`
	SocketTakeover   *bool   `yaml:"socket_takeover,omitempty"`
	AssistantCommand *string `yaml:"assistant_command,omitempty"`
	ImagePrefix      *string `yaml:"image_prefix,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		SocketPath:       filepath.Join(home, ".taskcell.sock"),
		PidFile:          filepath.Join(home, ".taskcell.pid"),
		JournalPath:      filepath.Join(home, ".local", "share", "taskcell", "journal.db"),
		Workers:          3,
		QueueSize:        0,
		TaskTimeout:      0,
		SocketTakeover:   true,
		AssistantCommand: "claude",
		ImagePrefix:      "taskcell",
	}
}

// DefaultConfigPath returns the default path for the config file.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "taskcell", "config.yaml")
}

// Load loads configuration from the default config path.
func Load() (Config, error) {
	return LoadFromPath(DefaultConfigPath())
}

// LoadFromPath loads configuration from a specific file. A missing file
// is not an error; defaults are returned.
func LoadFromPath(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else {
			var fc fileConfig
			if err := yaml.Unmarshal(data, &fc); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
			if err := fc.apply(&cfg); err != nil {
				return cfg, err
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func (fc *fileConfig) apply(cfg *Config) error {
	if fc.SocketPath != nil {
		cfg.SocketPath = expandPath(*fc.SocketPath)
	}
	if fc.PidFile != nil {
		cfg.PidFile = expandPath(*fc.PidFile)
	}
	if fc.JournalPath != nil {
		cfg.JournalPath = expandPath(*fc.JournalPath)
	}
	if fc.Workers != nil {
		cfg.Workers = *fc.Workers
	}
	if fc.QueueSize != nil {
		cfg.QueueSize = *fc.QueueSize
	}
	if fc.TaskTimeout != nil {
		d, err := time.ParseDuration(*fc.TaskTimeout)
		if err != nil {
			return fmt.Errorf("parse task_timeout: %w", err)
		}
		cfg.TaskTimeout = d
	}
	if fc.SocketTakeover != nil {
		cfg.SocketTakeover = *fc.SocketTakeover
	}
	if fc.AssistantCommand != nil {
		cfg.AssistantCommand = *fc.AssistantCommand
	}
	if fc.ImagePrefix != nil {
		cfg.ImagePrefix = *fc.ImagePrefix
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TASKCELL_SOCKET"); v != "" {
		cfg.SocketPath = expandPath(v)
	}
	if v := os.Getenv("TASKCELL_DB_PATH"); v != "" {
		cfg.JournalPath = expandPath(v)
	}
	if v := os.Getenv("TASKCELL_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("TASKCELL_ASSISTANT"); v != "" {
		cfg.AssistantCommand = v
	}
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
