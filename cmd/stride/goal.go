package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/strideapp/stride/internal/model"
	"github.com/strideapp/stride/internal/store"
	"github.com/strideapp/stride/internal/ui"
)

var goalCmd = &cobra.Command{
	Use:     "goal",
	GroupID: "core",
	Short:   "Manage goals, milestones, and steps",
}

var goalAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a goal",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		db, err := openStore(ctx)
		if err != nil {
			exitErr(err)
		}
		defer db.Close()

		g := &model.Goal{
			OwnerID: cfg.Owner.ID,
			Title:   args[0],
		}
		if v, _ := cmd.Flags().GetString("description"); v != "" {
			g.Description = v
		}
		if v, _ := cmd.Flags().GetString("priority"); v != "" {
			g.Priority = model.ParsePriority(v)
		}
		if v, _ := cmd.Flags().GetString("due"); v != "" {
			due, err := time.ParseInLocation("2006-01-02", v, time.Local)
			if err != nil {
				exitErr(fmt.Errorf("invalid --due date %q (want YYYY-MM-DD)", v))
			}
			g.DueAt = &due
		}

		created, err := newRepos(db).Goals.Create(ctx, g)
		if err != nil {
			exitErr(err)
		}

		fmt.Println(ui.Pass("Added goal ") + ui.Accent(created.ID))
	},
}

var goalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List goals with their milestones",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		db, err := openStore(ctx)
		if err != nil {
			exitErr(err)
		}
		defer db.Close()

		all, _ := cmd.Flags().GetBool("all")
		repos := newRepos(db)

		goals, err := repos.Goals.List(ctx, store.GoalFilter{
			OwnerID:          cfg.Owner.ID,
			IncludeCompleted: all,
		})
		if err != nil {
			exitErr(err)
		}

		if len(goals) == 0 {
			fmt.Println(ui.Faint("No goals."))
			return
		}

		for _, g := range goals {
			fmt.Println(ui.GoalLine(g))

			milestones, err := repos.Goals.ListMilestones(ctx, cfg.Owner.ID, g.ID)
			if err != nil {
				exitErr(err)
			}
			for _, m := range milestones {
				mark := "[ ]"
				if m.Completed {
					mark = "[x]"
				}
				fmt.Printf("    %s %s\n", mark, m.Title)
			}
		}
	},
}

var goalDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a goal completed",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		db, err := openStore(ctx)
		if err != nil {
			exitErr(err)
		}
		defer db.Close()

		g, err := newRepos(db).Goals.Update(ctx, args[0], func(g *model.Goal) {
			g.Completed = true
		})
		if err != nil {
			exitErr(err)
		}

		fmt.Println(ui.Pass("Completed ") + g.Title)
	},
}

var goalRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a goal and its milestones",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		db, err := openStore(ctx)
		if err != nil {
			exitErr(err)
		}
		defer db.Close()

		if err := newRepos(db).Goals.Delete(ctx, args[0]); err != nil {
			exitErr(err)
		}

		fmt.Println(ui.Pass("Removed ") + ui.Accent(args[0]))
	},
}

var milestoneAddCmd = &cobra.Command{
	Use:   "milestone <goal-id> <title>",
	Short: "Add a milestone to a goal",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		db, err := openStore(ctx)
		if err != nil {
			exitErr(err)
		}
		defer db.Close()

		m := &model.Milestone{
			GoalID:  args[0],
			OwnerID: cfg.Owner.ID,
			Title:   args[1],
		}

		created, err := newRepos(db).Goals.CreateMilestone(ctx, m)
		if err != nil {
			exitErr(err)
		}

		fmt.Println(ui.Pass("Added milestone ") + ui.Accent(created.ID))
	},
}

var stepAddCmd = &cobra.Command{
	Use:   "step <milestone-id> <title>",
	Short: "Add a step to a milestone",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		db, err := openStore(ctx)
		if err != nil {
			exitErr(err)
		}
		defer db.Close()

		s := &model.Step{
			MilestoneID: args[0],
			OwnerID:     cfg.Owner.ID,
			Title:       args[1],
		}

		created, err := newRepos(db).Goals.CreateStep(ctx, s)
		if err != nil {
			exitErr(err)
		}

		fmt.Println(ui.Pass("Added step ") + ui.Accent(created.ID))
	},
}

func init() {
	goalAddCmd.Flags().StringP("description", "d", "", "description")
	goalAddCmd.Flags().StringP("priority", "p", "", "priority (low, medium, high)")
	goalAddCmd.Flags().String("due", "", "due date (YYYY-MM-DD)")

	goalListCmd.Flags().BoolP("all", "a", false, "include completed goals")

	goalCmd.AddCommand(goalAddCmd, goalListCmd, goalDoneCmd, goalRemoveCmd, milestoneAddCmd, stepAddCmd)
	rootCmd.AddCommand(goalCmd)
}
