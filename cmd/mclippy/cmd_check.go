package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SiddharthSirohi/mclippy/internal/assistant"
	"github.com/SiddharthSirohi/mclippy/internal/config"
	"github.com/SiddharthSirohi/mclippy/internal/ui"
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().Bool("no-prompt", false, "Report only, skip the interactive action loop")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one proactive check of your inbox and calendar",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		noPrompt, _ := cmd.Flags().GetBool("no-prompt")

		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), config.DefaultCycleTimeout)
		defer cancel()

		a, err := newApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.withSessions(ctx, func() error {
			res, err := a.assistant.RunCycle(ctx)
			if res != nil {
				printAuthHints(res)
			}
			if err != nil {
				return err
			}

			printCheckResult(res)
			if noPrompt {
				return nil
			}
			return runActionLoop(ctx, a, res)
		})
	},
}

func printAuthHints(res *assistant.CheckResult) {
	if res.GmailAuthURL != "" {
		fmt.Println("Gmail needs authorization. Open this link, then run check again:")
		fmt.Println("  " + res.GmailAuthURL)
	}
	if res.CalendarAuthURL != "" {
		fmt.Println("Calendar needs authorization. Open this link, then run check again:")
		fmt.Println("  " + res.CalendarAuthURL)
	}
}

func printCheckResult(res *assistant.CheckResult) {
	fmt.Printf("Checked %d new email(s).\n", res.EmailsFetched)
	if len(res.Emails) == 0 {
		fmt.Println("Nothing important in your inbox.")
	}
	for i, item := range res.Emails {
		fmt.Println()
		fmt.Printf("[%d] %s\n", i+1, item.Email.SubjectLine())
		fmt.Printf("    From: %s\n", item.Email.From())
		fmt.Printf("    %s\n", item.Analysis.Summary)
	}

	if len(res.Events) > 0 {
		fmt.Println()
		fmt.Println("Coming up in the next 24 hours:")
		for _, item := range res.Events {
			line := "  - " + item.Event.Summary
			if note := item.Analysis.Summary; note != "" {
				line += " (" + note + ")"
			}
			fmt.Println(line)
		}
	}
}

// runActionLoop walks each important email's suggested actions and
// executes the one the user picks.
func runActionLoop(ctx context.Context, a *app, res *assistant.CheckResult) error {
	for i := range res.Emails {
		item := &res.Emails[i]
		if len(item.Analysis.SuggestedActions) == 0 {
			continue
		}
		choice, err := ui.PickAction(item.Email.SubjectLine(), item.Analysis.SuggestedActions)
		if err != nil {
			return err
		}
		if choice < 0 {
			continue
		}
		action := item.Analysis.SuggestedActions[choice]
		if err := executeAction(ctx, a, res.CycleID, item, action); err != nil {
			fmt.Println("Action failed:", err)
		}
	}

	for _, item := range res.Events {
		if len(item.Analysis.SuggestedActions) == 0 {
			continue
		}
		choice, err := ui.PickAction(item.Event.Summary, item.Analysis.SuggestedActions)
		if err != nil {
			return err
		}
		if choice < 0 {
			continue
		}
		suggestion := item.Analysis.SuggestedActions[choice]
		if isSchedulingAction(suggestion) {
			if err := createSuggestedEvent(ctx, a, res.CycleID, suggestion, item.Event.Summary); err != nil {
				fmt.Println("Could not create event:", err)
			}
		} else {
			fmt.Println("Noted:", suggestion)
		}
	}
	return nil
}

func executeAction(ctx context.Context, a *app, cycleID string, item *assistant.EmailItem, action string) error {
	switch {
	case isReplyAction(action):
		return replyFlow(ctx, a, cycleID, item, action)
	case isSchedulingAction(action):
		return createSuggestedEvent(ctx, a, cycleID, action, item.Email.Preview(500))
	default:
		fmt.Println("Noted:", action)
		return nil
	}
}

// replyFlow drafts a reply, lets the user revise it, and sends it once
// approved. Availability slots are attached when the action mentions
// proposing times.
func replyFlow(ctx context.Context, a *app, cycleID string, item *assistant.EmailItem, action string) error {
	withSlots := isSchedulingAction(action)
	editInstructions := ""

	for {
		draft, err := a.assistant.DraftReplyWithAvailability(ctx, &item.Email, action, editInstructions, withSlots, time.Hour)
		if err != nil {
			return err
		}
		decision, instructions, err := ui.ReviewDraft(draft)
		if err != nil {
			return err
		}
		switch decision {
		case ui.DecisionSend:
			if err := a.assistant.SendReply(ctx, cycleID, &item.Email, draft); err != nil {
				return err
			}
			fmt.Println("Reply sent.")
			return nil
		case ui.DecisionEdit:
			editInstructions = instructions
		case ui.DecisionCancel:
			fmt.Println("Discarded.")
			return nil
		}
	}
}

func createSuggestedEvent(ctx context.Context, a *app, cycleID, suggestion, contextText string) error {
	details, err := a.assistant.CreateEventFromSuggestion(ctx, cycleID, suggestion, contextText)
	if err != nil {
		return err
	}
	fmt.Printf("Created %q starting %s.\n", details.Summary, details.StartDateTime)
	return nil
}

func isReplyAction(action string) bool {
	return strings.Contains(strings.ToLower(action), "repl")
}

func isSchedulingAction(action string) bool {
	lower := strings.ToLower(action)
	return strings.Contains(lower, "schedul") ||
		strings.Contains(lower, "meeting") ||
		strings.Contains(lower, "calendar") ||
		strings.Contains(lower, "availab")
}
