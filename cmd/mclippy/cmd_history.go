package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/SiddharthSirohi/mclippy/internal/config"
	"github.com/SiddharthSirohi/mclippy/internal/store"
)

var historyLimit int

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "How many cycles to show")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent check cycles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := config.Dir()
		if err != nil {
			return err
		}
		st, err := store.Open(filepath.Join(dir, dbFileName))
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		cycles, err := st.RecentCycles(historyLimit)
		if err != nil {
			return err
		}
		if len(cycles) == 0 {
			fmt.Println("No check cycles recorded yet.")
			return nil
		}

		for _, c := range cycles {
			started := c.StartedAt.Local().Format("2006-01-02 15:04:05")
			fmt.Printf("%s  %-13s  fetched=%d important=%d events=%d",
				started, c.Status, c.EmailsFetched, c.EmailsImportant, c.EventsFound)
			if c.Detail != "" {
				fmt.Printf("  (%s)", c.Detail)
			}
			fmt.Println()
		}
		return nil
	},
}
