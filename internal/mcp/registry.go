// Package mcp manages the per-project MCP server registry. Server
// configurations are stored as JSON and handed to the assistant CLI
// unchanged, so unknown fields survive a load/save round trip.
package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/taskcell/taskcell/internal/store"
)

const registryFile = "mcp.json"

// ServerConfig describes a single MCP server. Fields beyond the known
// ones are kept in Extra and re-emitted on save.
type ServerConfig struct {
	Type    string
	Command string
	Args    []string
	URL     string
	Env     map[string]string
	Extra   map[string]json.RawMessage
}

// Validate checks the fields required for the server type.
func (c *ServerConfig) Validate() error {
	if c.Type == "" {
		return fmt.Errorf("configuration must include 'type' field")
	}
	if c.Type == "stdio" && c.Command == "" {
		return fmt.Errorf("stdio servers must include 'command' field")
	}
	if c.Type == "http" && c.URL == "" {
		return fmt.Errorf("http servers must include 'url' field")
	}
	return nil
}

func (c *ServerConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	take := func(key string, dst interface{}) error {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		delete(raw, key)
		return json.Unmarshal(v, dst)
	}

	if err := take("type", &c.Type); err != nil {
		return fmt.Errorf("parse type: %w", err)
	}
	if err := take("command", &c.Command); err != nil {
		return fmt.Errorf("parse command: %w", err)
	}
	if err := take("args", &c.Args); err != nil {
		return fmt.Errorf("parse args: %w", err)
	}
	if err := take("url", &c.URL); err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if err := take("env", &c.Env); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if len(raw) > 0 {
		c.Extra = raw
	} else {
		c.Extra = nil
	}
	return nil
}

func (c ServerConfig) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(c.Extra)+5)
	out["type"] = c.Type
	if c.Command != "" {
		out["command"] = c.Command
	}
	if len(c.Args) > 0 {
		out["args"] = c.Args
	}
	if c.URL != "" {
		out["url"] = c.URL
	}
	if len(c.Env) > 0 {
		out["env"] = c.Env
	}
	for k, v := range c.Extra {
		out[k] = v
	}
	return json.Marshal(out)
}

// Registry maps server names to configurations. The on-disk form is the
// same shape the assistant CLI accepts for --mcp-config.
type Registry struct {
	Servers map[string]ServerConfig `json:"mcpServers"`
}

// Names returns all server names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.Servers))
	for name := range r.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Filter returns a registry containing only the named servers.
func (r *Registry) Filter(names []string) *Registry {
	filtered := &Registry{Servers: make(map[string]ServerConfig)}
	for _, name := range names {
		if cfg, ok := r.Servers[name]; ok {
			filtered.Servers[name] = cfg
		}
	}
	return filtered
}

// Missing returns the requested names that are not registered.
func (r *Registry) Missing(names []string) []string {
	var missing []string
	for _, name := range names {
		if _, ok := r.Servers[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// MCPJSON renders the registry in the assistant CLI's config format.
func (r *Registry) MCPJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Manager loads and saves the registry for one project.
type Manager struct {
	path string
}

// NewManager creates a manager rooted at the project directory.
func NewManager(projectRoot string) *Manager {
	return &Manager{path: filepath.Join(projectRoot, store.DataDirName, registryFile)}
}

// Path returns the registry file location.
func (m *Manager) Path() string {
	return m.path
}

// Load reads the registry. A missing file yields an empty registry.
func (m *Manager) Load() (*Registry, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return &Registry{Servers: make(map[string]ServerConfig)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read mcp registry: %w", err)
	}

	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("invalid mcp registry file: %w", err)
	}
	if reg.Servers == nil {
		reg.Servers = make(map[string]ServerConfig)
	}
	return &reg, nil
}

// Save writes the registry, creating the data directory if needed.
func (m *Manager) Save(reg *Registry) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal mcp registry: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("write mcp registry: %w", err)
	}
	return nil
}

// Add registers or updates a server. Returns true when an existing
// entry was replaced.
func (m *Manager) Add(name string, cfg ServerConfig) (bool, error) {
	if err := cfg.Validate(); err != nil {
		return false, err
	}

	reg, err := m.Load()
	if err != nil {
		return false, err
	}
	_, existed := reg.Servers[name]
	reg.Servers[name] = cfg
	if err := m.Save(reg); err != nil {
		return false, err
	}
	return existed, nil
}

// Remove deletes a server. Returns false when the name is not registered.
func (m *Manager) Remove(name string) (bool, error) {
	reg, err := m.Load()
	if err != nil {
		return false, err
	}
	if _, ok := reg.Servers[name]; !ok {
		return false, nil
	}
	delete(reg.Servers, name)
	if err := m.Save(reg); err != nil {
		return false, err
	}
	return true, nil
}

// Get returns a server configuration, or nil when absent.
func (m *Manager) Get(name string) (*ServerConfig, error) {
	reg, err := m.Load()
	if err != nil {
		return nil, err
	}
	cfg, ok := reg.Servers[name]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}
