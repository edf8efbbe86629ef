// Package setup registers the MCP server with a desktop MCP client.
package setup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// ServerName is the key the server is registered under.
const ServerName = "reperto-cdss"

// DataDirEnv is the variable the server reads its data directory from.
const DataDirEnv = "REPERTO_DATA_DIR"

// ClientConfig is the client's configuration file. Unknown top-level keys
// are preserved on save.
type ClientConfig struct {
	MCPServers map[string]ServerEntry `json:"mcpServers"`

	extra map[string]json.RawMessage
}

// ServerEntry is one launchable MCP server.
type ServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Options describe the registration.
type Options struct {
	ConfigPath string // defaults to DefaultConfigPath
	BinaryPath string // defaults to the running executable
	DataDir    string
}

// Status reports what is currently registered.
type Status struct {
	ConfigPath string   `json:"config_path"`
	Registered bool     `json:"registered"`
	BinaryPath string   `json:"binary_path,omitempty"`
	DataDir    string   `json:"data_dir,omitempty"`
	Issues     []string `json:"issues"`
}

// DefaultConfigPath returns the desktop client's config location for this OS.
func DefaultConfigPath() (string, error) {
	var dir string
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			dir = filepath.Join(xdg, "Claude")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			dir = filepath.Join(home, ".config", "Claude")
		}
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
	return filepath.Join(dir, "claude_desktop_config.json"), nil
}

// LoadClientConfig reads path. A missing file yields an empty config.
func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := &ClientConfig{MCPServers: make(map[string]ServerEntry)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg.extra); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if raw, ok := cfg.extra["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &cfg.MCPServers); err != nil {
			return nil, fmt.Errorf("failed to parse mcpServers: %w", err)
		}
		delete(cfg.extra, "mcpServers")
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]ServerEntry)
	}
	return cfg, nil
}

// Save writes the config to path, creating the directory.
func (c *ClientConfig) Save(path string) error {
	out := make(map[string]interface{}, len(c.extra)+1)
	for k, v := range c.extra {
		out[k] = v
	}
	out["mcpServers"] = c.MCPServers

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Register adds or replaces the server entry and returns the config path used.
func Register(opts Options) (string, error) {
	path, err := resolveConfigPath(opts.ConfigPath)
	if err != nil {
		return "", err
	}

	binary := opts.BinaryPath
	if binary == "" {
		if binary, err = os.Executable(); err != nil {
			return "", fmt.Errorf("could not determine server binary: %w", err)
		}
	}
	if abs, err := filepath.Abs(binary); err == nil {
		binary = abs
	}

	cfg, err := LoadClientConfig(path)
	if err != nil {
		return "", err
	}

	entry := ServerEntry{Command: binary}
	if opts.DataDir != "" {
		entry.Env = map[string]string{DataDirEnv: opts.DataDir}
	}
	cfg.MCPServers[ServerName] = entry

	return path, cfg.Save(path)
}

// GetStatus inspects the registration at configPath.
func GetStatus(configPath string) (*Status, error) {
	path, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}
	status := &Status{ConfigPath: path, Issues: []string{}}

	cfg, err := LoadClientConfig(path)
	if err != nil {
		return nil, err
	}
	entry, ok := cfg.MCPServers[ServerName]
	if !ok {
		status.Issues = append(status.Issues, "server is not registered")
		return status, nil
	}

	status.Registered = true
	status.BinaryPath = entry.Command
	status.DataDir = entry.Env[DataDirEnv]

	info, err := os.Stat(entry.Command)
	switch {
	case os.IsNotExist(err):
		status.Issues = append(status.Issues, fmt.Sprintf("server binary not found: %s", entry.Command))
	case err == nil && runtime.GOOS != "windows" && info.Mode()&0111 == 0:
		status.Issues = append(status.Issues, fmt.Sprintf("server binary is not executable: %s", entry.Command))
	}
	if status.DataDir != "" {
		if _, err := os.Stat(status.DataDir); os.IsNotExist(err) {
			status.Issues = append(status.Issues, fmt.Sprintf("data directory will be created on first run: %s", status.DataDir))
		}
	}
	return status, nil
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	return DefaultConfigPath()
}
