package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SiddharthSirohi/mclippy/internal/config"
	"github.com/SiddharthSirohi/mclippy/internal/ui"
)

func init() {
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive session: run checks and schedule things on demand",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}

		a, err := newApp(cfg, true)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.start(cmd.Context()); err != nil {
			return err
		}

		fmt.Println("mclippy is listening. Commands: check, schedule <what>, slots, quit.")
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			cmdWord, rest, _ := strings.Cut(line, " ")
			switch strings.ToLower(cmdWord) {
			case "quit", "exit":
				return nil
			case "check":
				if err := chatCheck(cmd.Context(), a); err != nil {
					fmt.Println("Check failed:", err)
				}
			case "schedule":
				if rest == "" {
					fmt.Println("Usage: schedule <what and when>")
					continue
				}
				if err := chatSchedule(cmd.Context(), a, rest); err != nil {
					fmt.Println("Could not schedule:", err)
				}
			case "slots":
				if err := printFreeSlots(cmd.Context(), a, time.Hour, 3); err != nil {
					fmt.Println("Could not compute slots:", err)
				}
			default:
				fmt.Println("Unknown command. Try: check, schedule <what>, slots, quit.")
			}
		}
	},
}

func chatCheck(parent context.Context, a *app) error {
	ctx, cancel := context.WithTimeout(parent, config.DefaultCycleTimeout)
	defer cancel()

	res, err := a.assistant.RunCycle(ctx)
	if res != nil {
		printAuthHints(res)
	}
	if err != nil {
		return err
	}
	printCheckResult(res)
	return runActionLoop(ctx, a, res)
}

func chatSchedule(ctx context.Context, a *app, request string) error {
	ok, err := ui.Confirm(fmt.Sprintf("Create a calendar event for %q?", request))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	cycleID, err := a.store.BeginCycle()
	if err != nil {
		return err
	}
	details, err := a.assistant.CreateEventFromSuggestion(ctx, cycleID, request, "")
	if err != nil {
		_ = a.store.FinishCycle(cycleID, 0, 0, 0, "error", err.Error())
		return err
	}
	fmt.Printf("Created %q starting %s.\n", details.Summary, details.StartDateTime)
	return a.store.FinishCycle(cycleID, 0, 0, 0, "ok", "manual schedule")
}
