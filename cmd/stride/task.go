package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/strideapp/stride/internal/model"
	"github.com/strideapp/stride/internal/store"
	"github.com/strideapp/stride/internal/ui"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: "core",
	Short:   "Manage tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		db, err := openStore(ctx)
		if err != nil {
			exitErr(err)
		}
		defer db.Close()

		t := &model.Task{
			OwnerID: cfg.Owner.ID,
			Title:   args[0],
		}

		if v, _ := cmd.Flags().GetString("priority"); v != "" {
			t.Priority = model.ParsePriority(v)
		}
		if v, _ := cmd.Flags().GetString("notes"); v != "" {
			t.Notes = v
		}
		if v, _ := cmd.Flags().GetString("goal"); v != "" {
			t.GoalID = v
		}
		if v, _ := cmd.Flags().GetString("location"); v != "" {
			t.Location = v
		}
		if v, _ := cmd.Flags().GetInt("estimate"); v > 0 {
			t.EstimatedMinutes = v
		}
		if v, _ := cmd.Flags().GetString("due"); v != "" {
			due, err := time.ParseInLocation("2006-01-02", v, time.Local)
			if err != nil {
				exitErr(fmt.Errorf("invalid --due date %q (want YYYY-MM-DD)", v))
			}
			t.DueAt = &due
		}

		created, err := newRepos(db).Tasks.Create(ctx, t)
		if err != nil {
			exitErr(err)
		}

		fmt.Println(ui.Pass("Added task ") + ui.Accent(created.ID))
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		db, err := openStore(ctx)
		if err != nil {
			exitErr(err)
		}
		defer db.Close()

		all, _ := cmd.Flags().GetBool("all")
		goalID, _ := cmd.Flags().GetString("goal")

		tasks, err := newRepos(db).Tasks.List(ctx, store.TaskFilter{
			OwnerID:          cfg.Owner.ID,
			GoalID:           goalID,
			IncludeCompleted: all,
		})
		if err != nil {
			exitErr(err)
		}

		if len(tasks) == 0 {
			fmt.Println(ui.Faint("No tasks."))
			return
		}
		for _, t := range tasks {
			fmt.Println(ui.TaskLine(t))
		}
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		db, err := openStore(ctx)
		if err != nil {
			exitErr(err)
		}
		defer db.Close()

		t, err := newRepos(db).Tasks.Update(ctx, args[0], func(t *model.Task) {
			t.Completed = true
			t.Focus = false
		})
		if err != nil {
			exitErr(err)
		}

		fmt.Println(ui.Pass("Completed ") + t.Title)
	},
}

var taskEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		db, err := openStore(ctx)
		if err != nil {
			exitErr(err)
		}
		defer db.Close()

		t, err := newRepos(db).Tasks.Update(ctx, args[0], func(t *model.Task) {
			if v, _ := cmd.Flags().GetString("title"); v != "" {
				t.Title = v
			}
			if v, _ := cmd.Flags().GetString("notes"); cmd.Flags().Changed("notes") {
				t.Notes = v
			}
			if v, _ := cmd.Flags().GetString("priority"); v != "" {
				t.Priority = model.ParsePriority(v)
			}
			if v, _ := cmd.Flags().GetString("location"); cmd.Flags().Changed("location") {
				t.Location = v
			}
			if v, _ := cmd.Flags().GetInt("estimate"); v > 0 {
				t.EstimatedMinutes = v
			}
		})
		if err != nil {
			exitErr(err)
		}

		fmt.Println(ui.Pass("Updated ") + ui.Accent(t.ID))
	},
}

var taskRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a task",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		db, err := openStore(ctx)
		if err != nil {
			exitErr(err)
		}
		defer db.Close()

		if err := newRepos(db).Tasks.Delete(ctx, args[0]); err != nil {
			exitErr(err)
		}

		fmt.Println(ui.Pass("Removed ") + ui.Accent(args[0]))
	},
}

func init() {
	taskAddCmd.Flags().StringP("priority", "p", "", "priority (low, medium, high)")
	taskAddCmd.Flags().String("notes", "", "notes")
	taskAddCmd.Flags().String("goal", "", "attach to goal id")
	taskAddCmd.Flags().String("location", "", "location required to do this task")
	taskAddCmd.Flags().String("due", "", "due date (YYYY-MM-DD)")
	taskAddCmd.Flags().Int("estimate", 0, "estimated minutes")

	taskListCmd.Flags().BoolP("all", "a", false, "include completed tasks")
	taskListCmd.Flags().String("goal", "", "only tasks attached to goal id")

	taskEditCmd.Flags().String("title", "", "new title")
	taskEditCmd.Flags().String("notes", "", "new notes")
	taskEditCmd.Flags().StringP("priority", "p", "", "new priority (low, medium, high)")
	taskEditCmd.Flags().String("location", "", "new location")
	taskEditCmd.Flags().Int("estimate", 0, "new estimated minutes")

	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskDoneCmd, taskEditCmd, taskRemoveCmd)
	rootCmd.AddCommand(taskCmd)
}
