// Package commands provides the CLI commands for waveline.
package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/waveline-ai/waveline/internal/config"
	"github.com/waveline-ai/waveline/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
	configDir string
)

var rootCmd = &cobra.Command{
	Use:   "waveline",
	Short: "waveline - MCP tool orchestration with waves, gates, and sync",
	Long: `waveline connects to MCP servers, runs playbooks of tool calls in
concurrent waves with validation gates between them, and keeps a
dotfiles checkout in step with GitHub.

Run 'waveline serve' for the status API, 'waveline run' to execute a
playbook, or 'waveline mcp list' to see configured servers.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if configDir != "" {
			os.Setenv("WAVELINE_CONFIG_DIR", configDir)
		}
		setupLogging()
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Config directory (overrides WAVELINE_CONFIG_DIR)")

	rootCmd.SetVersionTemplate(fmt.Sprintf("waveline %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setupLogging routes logs to a file under the data directory so
// command output stays clean; --print-logs streams them to stderr
// instead.
func setupLogging() {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(logLevel)
	if printLogs {
		cfg.Pretty = true
	} else {
		cfg.Output = io.Discard
		cfg.LogToFile = true
		cfg.LogDir = filepath.Join(config.DefaultDataDir(), "logs")
	}
	logging.Init(cfg)
}

// loadConfig loads the merged configuration for the current directory.
func loadConfig() (*config.Config, string, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(workDir)
	if err != nil {
		return nil, "", err
	}
	return cfg, workDir, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
