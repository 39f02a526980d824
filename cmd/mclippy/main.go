package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/SiddharthSirohi/mclippy/internal/config"
)

const appVersion = "0.1.0"

var debug bool

var rootCmd = &cobra.Command{
	Use:   "mclippy",
	Short: "A proactive assistant for your inbox and calendar",
	Long: `mclippy watches Gmail and Google Calendar through Composio MCP
servers, triages what arrives with Gemini, and helps you act on the
results from the terminal.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and exit",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("mclippy v" + appVersion)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.AddCommand(versionCmd)
}

func setupLogging() {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}

// loadConfig reads the user config, exiting with guidance on first run
// for commands that need a completed setup.
func loadConfig(requireSetup bool) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if requireSetup && !cfg.Configured() {
		return nil, fmt.Errorf("not configured yet, run: mclippy setup")
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
