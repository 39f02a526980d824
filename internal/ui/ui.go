// Package ui holds the interactive terminal prompts: the first-run setup
// form and the review flows for drafted replies and suggested actions.
package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/SiddharthSirohi/mclippy/internal/config"
	"github.com/SiddharthSirohi/mclippy/internal/llm"
)

var formTheme = huh.ThemeBase16()

// ReviewDecision is the user's verdict on a drafted reply.
type ReviewDecision string

const (
	DecisionSend   ReviewDecision = "send"
	DecisionEdit   ReviewDecision = "edit"
	DecisionCancel ReviewDecision = "cancel"
)

// RunSetup walks the first-run form and fills cfg in place. The caller
// persists the result.
func RunSetup(cfg *config.Config) error {
	emailNotif := cfg.Notifications.Email == "important"
	calendarNotif := cfg.Notifications.Calendar == "on"
	workStart := strconv.Itoa(cfg.WorkStartHour)
	workEnd := strconv.Itoa(cfg.WorkEndHour)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Your email address").
				Prompt("> ").
				Validate(validateEmail).
				Value(&cfg.UserEmail),
			huh.NewInput().
				Title("Who are you?").
				Description("One line about your role, used to judge what matters to you.").
				Prompt("> ").
				Value(&cfg.Persona),
			huh.NewText().
				Title("Current priorities").
				Description("What should count as important right now?").
				Value(&cfg.Priorities),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Timezone").
				Description("IANA name, e.g. Asia/Kolkata.").
				Prompt("> ").
				Value(&cfg.Timezone),
			huh.NewInput().
				Title("Workday starts at (hour, 0-23)").
				Prompt("> ").
				Validate(validateHour).
				Value(&workStart),
			huh.NewInput().
				Title("Workday ends at (hour, 0-23)").
				Prompt("> ").
				Validate(validateHour).
				Value(&workEnd),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Notify about important emails?").
				Value(&emailNotif),
			huh.NewConfirm().
				Title("Notify about upcoming events?").
				Value(&calendarNotif),
		),
	).WithTheme(formTheme)

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Notifications.Email = "off"
	if emailNotif {
		cfg.Notifications.Email = "important"
	}
	cfg.Notifications.Calendar = "off"
	if calendarNotif {
		cfg.Notifications.Calendar = "on"
	}
	cfg.WorkStartHour, _ = strconv.Atoi(workStart)
	cfg.WorkEndHour, _ = strconv.Atoi(workEnd)
	return nil
}

// PickAction shows the suggested actions for one item and returns the
// chosen index, or -1 when the user skips.
func PickAction(title string, actions []string) (int, error) {
	opts := make([]huh.Option[int], 0, len(actions)+1)
	for i, a := range actions {
		opts = append(opts, huh.NewOption(a, i))
	}
	opts = append(opts, huh.NewOption("Skip", -1))

	selected := -1
	err := huh.NewSelect[int]().
		Title(title).
		Options(opts...).
		Value(&selected).
		WithTheme(formTheme).
		Run()
	if err != nil {
		return -1, err
	}
	return selected, nil
}

// ReviewDraft shows a drafted reply and asks the user to send, edit, or
// cancel. For edit it also collects the revision instructions.
func ReviewDraft(draft llm.ReplyDraft) (ReviewDecision, string, error) {
	fmt.Println()
	fmt.Println("Subject:", draft.Subject)
	fmt.Println(strings.Repeat("-", 40))
	fmt.Println(draft.Body)
	fmt.Println(strings.Repeat("-", 40))

	decision := DecisionSend
	err := huh.NewSelect[ReviewDecision]().
		Title("Send this reply?").
		Options(
			huh.NewOption("Send", DecisionSend),
			huh.NewOption("Edit", DecisionEdit),
			huh.NewOption("Cancel", DecisionCancel),
		).
		Value(&decision).
		WithTheme(formTheme).
		Run()
	if err != nil {
		return DecisionCancel, "", err
	}
	if decision != DecisionEdit {
		return decision, "", nil
	}

	var instructions string
	err = huh.NewText().
		Title("What should change?").
		Value(&instructions).
		WithTheme(formTheme).
		Run()
	if err != nil {
		return DecisionCancel, "", err
	}
	return DecisionEdit, instructions, nil
}

// Confirm asks a yes/no question.
func Confirm(title string) (bool, error) {
	ok := false
	err := huh.NewConfirm().
		Title(title).
		Value(&ok).
		WithTheme(formTheme).
		Run()
	return ok, err
}

func validateEmail(s string) error {
	if !strings.Contains(s, "@") {
		return fmt.Errorf("enter a valid email address")
	}
	return nil
}

func validateHour(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 || n > 23 {
		return fmt.Errorf("enter an hour between 0 and 23")
	}
	return nil
}
