package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strideapp/stride/internal/model"
	"github.com/strideapp/stride/internal/repo"
	"github.com/strideapp/stride/internal/ui"
)

var focusCmd = &cobra.Command{
	Use:     "focus",
	GroupID: "core",
	Short:   "Show or pick the focus task",
	Long: `Show the current focus task, or pick the next one.

"stride focus next" moves focus to the best candidate: highest priority
first, earliest due date breaking ties, and record identity after that so
the choice is deterministic. --skip excludes tasks you are not in the mood
for; --home limits selection to tasks without a location.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		db, err := openStore(ctx)
		if err != nil {
			exitErr(err)
		}
		defer db.Close()

		t, err := newRepos(db).Tasks.Focused(ctx, cfg.Owner.ID)
		if err != nil {
			exitErr(err)
		}
		if t == nil {
			fmt.Println(ui.Faint("No focus task. Run \"stride focus next\" to pick one."))
			return
		}
		fmt.Println(ui.TaskLine(t))
		if t.EstimatedMinutes > 0 {
			fmt.Println(ui.Faint(fmt.Sprintf("    ~%d min", t.EstimatedMinutes)))
		}
	},
}

var focusNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Move focus to the next best task",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		db, err := openStore(ctx)
		if err != nil {
			exitErr(err)
		}
		defer db.Close()

		repos := newRepos(db)

		current, err := repos.Tasks.Focused(ctx, cfg.Owner.ID)
		if err != nil {
			exitErr(err)
		}

		opts := repo.FocusOptions{}
		if current != nil {
			opts.CurrentFocusID = current.ID
		}
		if skip, _ := cmd.Flags().GetStringSlice("skip"); len(skip) > 0 {
			opts.ExcludeIDs = skip
		}
		if home, _ := cmd.Flags().GetBool("home"); home {
			opts.Travel = repo.TravelHomeOnly
		}

		t, err := repos.Tasks.SelectFocus(ctx, cfg.Owner.ID, opts)
		if errors.Is(err, model.ErrNoEligibleTask) {
			fmt.Println(ui.Warn(err.Error()))
			return
		}
		if err != nil {
			exitErr(err)
		}

		fmt.Println(ui.Pass("Now focusing: ") + ui.TaskLine(t))
	},
}

var focusClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the focus task",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		db, err := openStore(ctx)
		if err != nil {
			exitErr(err)
		}
		defer db.Close()

		repos := newRepos(db)

		current, err := repos.Tasks.Focused(ctx, cfg.Owner.ID)
		if err != nil {
			exitErr(err)
		}
		if current == nil {
			fmt.Println(ui.Faint("Nothing focused."))
			return
		}

		if _, err := repos.Tasks.SetFocus(ctx, current.ID, false); err != nil {
			exitErr(err)
		}
		fmt.Println(ui.Pass("Cleared focus."))
	},
}

func init() {
	focusNextCmd.Flags().StringSlice("skip", nil, "task ids to exclude this round")
	focusNextCmd.Flags().Bool("home", false, "only tasks without a location")

	focusCmd.AddCommand(focusNextCmd, focusClearCmd)
	rootCmd.AddCommand(focusCmd)
}
