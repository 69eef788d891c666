package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/strideapp/stride/internal/daemon"
	"github.com/strideapp/stride/internal/dashboard"
	"github.com/strideapp/stride/internal/ui"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "advanced",
	Short:   "Start the real-time WebSocket dashboard",
	Long: `Start a WebSocket server broadcasting local record changes and sync
results to connected clients.

WebSocket messages include:
- record_update: a task, goal, milestone, or step changed locally
- sync_complete: a sync cycle finished, with its counters
- stats: task totals, pending count, and the current focus task

Example usage:
  stride dashboard                 # Start on the configured port
  stride dashboard --port 9000     # Start on a custom port

Connect with a WebSocket client:
  ws://localhost:<port>/ws`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := openStore(ctx)
		if err != nil {
			exitErr(err)
		}
		defer db.Close()

		port := cfg.Dashboard.Port
		if v, _ := cmd.Flags().GetInt("port"); cmd.Flags().Changed("port") {
			port = v
		}

		server := dashboard.NewServer(&dashboard.Config{
			Port:   port,
			Logger: log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
		})
		if err := server.Start(); err != nil {
			exitErr(err)
		}

		bridge := dashboard.NewBridge(server, db, cfg.Owner.ID, nil)
		go bridge.Run(ctx)

		// With a remote configured the dashboard also runs background sync,
		// so connected clients see sync_complete messages for real cycles.
		if syncer, err := newSyncer(db); err == nil {
			syncer.NotifyComplete(bridge.OnSyncComplete)

			d, err := daemon.New(syncer, db.Path(), &daemon.Config{
				SyncInterval:     cfg.Sync.Interval,
				DebounceInterval: cfg.Sync.Debounce,
				Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
			})
			if err != nil {
				exitErr(err)
			}
			go func() {
				if err := d.Start(ctx); err != nil {
					log.Printf("Background sync stopped: %v", err)
				}
			}()
		} else {
			fmt.Println(ui.Faint("Remote not configured; showing local activity only."))
		}

		fmt.Printf("Dashboard server started on http://localhost:%d\n", port)
		fmt.Printf("WebSocket endpoint: ws://localhost:%d/ws\n", port)
		fmt.Println("\nPress Ctrl+C to stop...")

		<-ctx.Done()

		fmt.Println("\nShutting down dashboard server...")
		if err := server.Stop(); err != nil {
			exitErr(err)
		}
	},
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 8350, "port to listen on")

	rootCmd.AddCommand(dashboardCmd)
}
