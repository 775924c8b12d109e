package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"

	"github.com/taskmesh/taskmesh/internal/config"
)

var cfgPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "taskmesh",
		Short: "Capability-aware task orchestration engine",
		Long: `taskmesh takes a decomposed plan (named steps with dependencies) and
drives it to completion: it assigns each step to a capability-tagged
worker, resolves assignment conflicts, schedules ready work by priority,
executes accepted work concurrently with retries, and learns execution
statistics to improve future scheduling.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a project config file (JSON)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newPatternsCmd())
	root.AddCommand(newRunsCmd())
	root.AddCommand(newInitCmd())
	return root
}

// loadConfig merges defaults, the global config, and either the --config
// override or the conventional project config.
func loadConfig() (*config.Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}
	globalPath := filepath.Join(homeDir, ".taskmesh", "config.json")

	projectPath := cfgPath
	if projectPath == "" {
		projectPath = filepath.Join(".taskmesh", "config.json")
	}
	return config.Load(globalPath, projectPath)
}

// patternDBPath resolves the learning database location: explicit config
// wins, otherwise the XDG data directory.
func patternDBPath(cfg *config.Config) (string, error) {
	if cfg.Learning.DBPath != "" {
		return cfg.Learning.DBPath, nil
	}
	return xdg.DataFile("taskmesh/patterns.db")
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to .taskmesh/config.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(".taskmesh", "config.json")
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.Save(config.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
}
