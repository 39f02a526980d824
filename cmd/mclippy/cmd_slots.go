package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/SiddharthSirohi/mclippy/internal/mcpsession"
)

var (
	slotsDuration time.Duration
	slotsDays     int
)

func init() {
	rootCmd.AddCommand(slotsCmd)
	slotsCmd.Flags().DurationVar(&slotsDuration, "duration", time.Hour, "Slot length to look for")
	slotsCmd.Flags().IntVar(&slotsDays, "days", 3, "How many days ahead to search")
}

var slotsCmd = &cobra.Command{
	Use:   "slots",
	Short: "Show free slots in your working hours",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}

		a, err := newApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.calendar.Session().WithSession(cmd.Context(), func(*mcpsession.Session) error {
			return printFreeSlots(cmd.Context(), a, slotsDuration, slotsDays)
		})
	},
}

func printFreeSlots(ctx context.Context, a *app, duration time.Duration, days int) error {
	loc := a.cfg.Location()
	now := time.Now().In(loc)

	slots, err := a.calendarSvc.FreeSlots(ctx, now, now.AddDate(0, 0, days), duration)
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		fmt.Println("No free slots in that window.")
		return nil
	}

	fmt.Printf("Free %s slots over the next %d day(s):\n", duration, days)
	for _, s := range slots {
		fmt.Printf("  %s - %s\n",
			s.Start.In(loc).Format("Mon Jan 2 15:04"),
			s.End.In(loc).Format("15:04"))
	}
	return nil
}
