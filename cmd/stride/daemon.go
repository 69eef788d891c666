package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/strideapp/stride/internal/daemon"
	"github.com/strideapp/stride/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "advanced",
	Short:   "Run the background sync daemon",
	Long: `Keep this device continuously synchronized.

The daemon runs an initial sync, then wakes on local database changes
(debounced) and on a fixed interval to pick up changes from other devices.
Logs go to the configured log file with rotation, or stderr when unset.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := openStore(ctx)
		if err != nil {
			exitErr(err)
		}
		defer db.Close()

		syncer, err := newSyncer(db)
		if err != nil {
			exitErr(err)
		}

		logger := daemon.FileLogger(cfg.Log.File)

		d, err := daemon.New(syncer, db.Path(), &daemon.Config{
			SyncInterval:     cfg.Sync.Interval,
			DebounceInterval: cfg.Sync.Debounce,
			Logger:           logger,
		})
		if err != nil {
			exitErr(err)
		}

		fmt.Println(ui.Accent("Daemon running.") + ui.Faint(" Press Ctrl+C to stop."))

		if err := d.Start(ctx); err != nil {
			exitErr(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
