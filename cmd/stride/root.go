package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/strideapp/stride/internal/config"
	"github.com/strideapp/stride/internal/remote"
	"github.com/strideapp/stride/internal/repo"
	"github.com/strideapp/stride/internal/store"
	"github.com/strideapp/stride/internal/sync"
	"github.com/strideapp/stride/internal/ui"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "stride",
	Short: "Local-first task and goal tracker",
	Long: `Stride keeps your tasks, goals, milestones, and steps in a local SQLite
database and synchronizes them with the backend in the background.

Every command works offline. Changes are queued locally and pushed by the
next sync cycle; "stride sync" forces a full round-trip, and "stride daemon"
keeps a device continuously in sync.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default ./.stride.yaml, then ~/.stride/config.yaml)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "core", Title: "Core Commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced Commands:"},
	)
}

// openStore opens the configured database and ensures the schema exists.
// Callers own the Close.
func openStore(ctx context.Context) (*store.DB, error) {
	db, err := store.Open(cfg.Data.Path)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// newRemote builds the backend client from config. Commands that sync require
// a configured remote URL; everything else works without one.
func newRemote() (remote.Store, error) {
	if cfg.Remote.URL == "" {
		return nil, fmt.Errorf("remote.url is not configured (set it in the config file or STRIDE_REMOTE_URL)")
	}
	return remote.NewClient(cfg.Remote.URL, cfg.Remote.Token,
		remote.WithTimeout(cfg.Remote.Timeout)), nil
}

func newRepos(db *store.DB) *repo.Repos {
	return repo.New(db)
}

func newSyncer(db *store.DB) (*sync.Syncer, error) {
	rs, err := newRemote()
	if err != nil {
		return nil, err
	}
	return sync.New(db, rs, cfg.Owner.ID, nil), nil
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, ui.Err("Error: ")+err.Error())
	os.Exit(1)
}
