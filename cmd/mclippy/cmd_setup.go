package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SiddharthSirohi/mclippy/internal/config"
	"github.com/SiddharthSirohi/mclippy/internal/ui"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive first-run setup",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}

		if err := ui.RunSetup(cfg); err != nil {
			return fmt.Errorf("setup aborted: %w", err)
		}
		if err := cfg.Save(); err != nil {
			return err
		}

		fmt.Println()
		fmt.Println("Configuration saved. Next steps:")
		fmt.Printf("  - put %s, %s, and %s in your environment or a .env file\n",
			config.EnvGoogleAPIKey, config.EnvGmailServerUUID, config.EnvCalendarServerUUID)
		fmt.Println("  - run: mclippy check")
		return nil
	},
}
