package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/strideapp/stride/internal/sync"
	"github.com/strideapp/stride/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "core",
	Short:   "Run a full sync now",
	Long: `Push every pending local change and pull the complete remote state.

Background sync handles day-to-day replication; this command is the recovery
path when you want to force a full round-trip and see the result.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		db, err := openStore(ctx)
		if err != nil {
			exitErr(err)
		}
		defer db.Close()

		syncer, err := newSyncer(db)
		if err != nil {
			exitErr(err)
		}

		sum, err := syncer.Run(ctx, sync.Full)

		fmt.Printf("%s pushed=%d pulled=%d deleted=%d conflicts=%d failures=%d (%v)\n",
			ui.Accent("Sync:"),
			sum.Pushed, sum.Pulled, sum.Deleted, sum.Conflicts, sum.Failures,
			sum.Finished.Sub(sum.Started).Round(time.Millisecond))

		if err != nil {
			exitErr(err)
		}
		fmt.Println(ui.Pass("Up to date."))
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
