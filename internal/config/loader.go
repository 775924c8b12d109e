package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config,
// defaults. Missing files are not errors; malformed JSON is.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}
	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}
	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.taskmesh/config.json
// Project: .taskmesh/config.json (relative to cwd)
func LoadDefault() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".taskmesh", "config.json")
	projectPath := filepath.Join(".taskmesh", "config.json")
	return Load(globalPath, projectPath)
}

// mergeConfigFile reads a JSON config file and merges it into the base.
// Missing files are silently skipped.
func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	for key, w := range loaded.Workers {
		base.Workers[key] = w
	}
	if loaded.Engine.MaxRetries > 0 {
		base.Engine.MaxRetries = loaded.Engine.MaxRetries
	}
	if loaded.Engine.TickMillis > 0 {
		base.Engine.TickMillis = loaded.Engine.TickMillis
	}
	if loaded.Engine.DefaultPriority > 0 {
		base.Engine.DefaultPriority = loaded.Engine.DefaultPriority
	}
	if loaded.Learning.Enabled {
		base.Learning.Enabled = true
	}
	if loaded.Learning.DBPath != "" {
		base.Learning.DBPath = loaded.Learning.DBPath
	}
	return nil
}
