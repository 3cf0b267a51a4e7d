package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bobstanton/vaultquery/internal/config"
	"github.com/bobstanton/vaultquery/internal/engine"
	"github.com/bobstanton/vaultquery/internal/indexer"
	"github.com/bobstanton/vaultquery/internal/logging"
	"github.com/bobstanton/vaultquery/internal/preview"
	"github.com/bobstanton/vaultquery/internal/ui"
	"github.com/bobstanton/vaultquery/internal/vault"
	"github.com/bobstanton/vaultquery/internal/writesync"
)

var rootCmd = &cobra.Command{
	Use:   "vq",
	Short: "Query and mutate a Markdown vault as a relational database",
	Long: `vq indexes a folder of Markdown documents into an embedded SQLite
database and lets you query and mutate it with SQL. Mutations are previewed
as transactional dry runs, then applied back to the source documents as
minimal text edits.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(taskCmd)
}

// env bundles the opened collaborators every command needs.
type env struct {
	cfg      *config.Config
	db       *engine.DB
	store    *vault.FS
	idx      *indexer.Indexer
	previews *preview.Previewer
	syncer   *writesync.Syncer
}

// mustEnv loads config and opens the store and database, exiting on failure
// the way every command reports fatal setup errors.
func mustEnv() *env {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.NoColor {
		ui.DisableColor()
	}

	store, err := vault.Open(cfg.VaultRoot, logging.New("vault", cfg.Log))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening vault: %v\n", err)
		os.Exit(1)
	}

	db, err := engine.OpenWithLogger(cfg.DBPath, logging.New("engine", cfg.Log))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	if err := db.InitSchema(); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
		os.Exit(1)
	}

	idx := indexer.New(db, store, logging.New("indexer", cfg.Log))
	if cfg.SlowFileMillis > 0 {
		idx.SlowFileThreshold = millis(cfg.SlowFileMillis)
	}

	return &env{
		cfg:      cfg,
		db:       db,
		store:    store,
		idx:      idx,
		previews: preview.New(db, logging.New("preview", cfg.Log)),
		syncer: writesync.New(db, store, writesync.Config{
			FuzzyThreshold: cfg.FuzzyThreshold,
			Logger:         logging.New("writesync", cfg.Log),
		}),
	}
}

func millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (e *env) close() {
	if err := e.db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
	}
}
