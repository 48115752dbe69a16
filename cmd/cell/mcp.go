package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/taskcell/taskcell/internal/mcp"
)

func createMCPCommand() *cobra.Command {
	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Manage the project's MCP server registry",
	}

	mcpCmd.AddCommand(createMCPAddCommand())
	mcpCmd.AddCommand(createMCPListCommand())
	mcpCmd.AddCommand(createMCPRemoveCommand())

	return mcpCmd
}

func createMCPAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add <name> <config>",
		Short: "Add or update an MCP server",
		Long: `Add or update an MCP server configuration.

CONFIG is a JSON string, or @file.json to load from a file.

Examples:
  cell mcp add context7 '{"type": "stdio", "command": "npx", "args": ["-y", "@upstash/context7-mcp"]}'
  cell mcp add telemetry '{"type": "http", "url": "https://mcp.example.com"}'
  cell mcp add myserver @server-config.json`,
		Args: cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			name, raw := args[0], args[1]

			if strings.HasPrefix(raw, "@") {
				data, err := os.ReadFile(raw[1:])
				if err != nil {
					fail(fmt.Errorf("read configuration file: %w", err))
				}
				raw = string(data)
			}

			var cfg mcp.ServerConfig
			if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
				fail(fmt.Errorf("invalid JSON configuration: %w", err))
			}

			manager := mcp.NewManager(projectRoot())
			existed, err := manager.Add(name, cfg)
			if err != nil {
				fail(err)
			}

			if existed {
				fmt.Println(successStyle.Render("Updated MCP server '" + name + "'"))
			} else {
				fmt.Println(successStyle.Render("Added MCP server '" + name + "'"))
			}
			if pretty, err := json.MarshalIndent(cfg, "", "  "); err == nil {
				fmt.Println(dimStyle.Render(string(pretty)))
			}
		},
	}
}

func createMCPListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered MCP servers",
		Run: func(cmd *cobra.Command, args []string) {
			manager := mcp.NewManager(projectRoot())
			reg, err := manager.Load()
			if err != nil {
				fail(err)
			}

			if len(reg.Servers) == 0 {
				fmt.Println(dimStyle.Render("No MCP servers registered"))
				fmt.Println(dimStyle.Render("Use 'cell mcp add' to register servers"))
				return
			}

			for _, name := range reg.Names() {
				cfg := reg.Servers[name]
				summary := ""
				switch cfg.Type {
				case "stdio":
					summary = cfg.Command
					if len(cfg.Args) > 0 {
						summary += " " + strings.Join(cfg.Args, " ")
					}
				case "http":
					summary = cfg.URL
				}
				fmt.Printf("%s %-8s %s\n",
					boldStyle.Render(fmt.Sprintf("%-16s", name)),
					dimStyle.Render(cfg.Type),
					summary)
			}
		},
	}
}

func createMCPRemoveCommand() *cobra.Command {
	var yes bool

	removeCmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove an MCP server",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			name := args[0]
			manager := mcp.NewManager(projectRoot())

			existing, err := manager.Get(name)
			if err != nil {
				fail(err)
			}
			if existing == nil {
				fmt.Println(warnStyle.Render("MCP server '" + name + "' not found"))
				return
			}

			if !yes {
				confirmed := false
				err := huh.NewConfirm().
					Title("Remove MCP server '" + name + "'?").
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

			removed, err := manager.Remove(name)
			if err != nil {
				fail(err)
			}
			if !removed {
				fail(fmt.Errorf("remove MCP server %q", name))
			}
			fmt.Println(successStyle.Render("Removed MCP server '" + name + "'"))
		},
	}
	removeCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return removeCmd
}
