package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/platformbuilds/chpurge/internal/config"
	"github.com/platformbuilds/chpurge/internal/models"
	"github.com/platformbuilds/chpurge/internal/services"
	"github.com/platformbuilds/chpurge/internal/storage/clickhouse"
	"github.com/platformbuilds/chpurge/internal/ui"
	"github.com/platformbuilds/chpurge/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "chpurge",
	Short: "Delete rows from ClickHouse tables by key prefix",
	Long: `chpurge submits ALTER TABLE ... DELETE mutations for every row whose match
key starts with one of the given prefixes. Mutations run asynchronously on
the server; chpurge previews the blast radius, asks before submitting, and
can wait for each mutation to finish.`,
	Example: `  # Preview and confirm a delete on one table
  chpurge -d prod -t graphite -p desktop01

  # Several prefixes and tables, no prompt, wait for completion
  chpurge -d prod -t graphite,graphite_index -p desktop01 -p desktop02 -f -W

  # Inspect mutation status without deleting anything
  chpurge -d prod -t graphite -S`,
	Args: cobra.NoArgs,
	Run:  runPurge,
}

var (
	purgeConfigPath   string
	purgeDatabase     string
	purgeTables       []string
	purgeKey          string
	purgePrefixes     []string
	purgeCheckoutOnly bool
	purgeAwaitEnd     bool
	purgeForce        bool
	purgeWorkers      int
	purgeLogLevel     string
)

func init() {
	rootCmd.Flags().StringVarP(&purgeConfigPath, "config", "c", "", "Path to the configuration file")
	rootCmd.Flags().StringVarP(&purgeDatabase, "database", "d", "", "Database holding the tables (defaults to clickhouse.database from the config)")
	rootCmd.Flags().StringSliceVarP(&purgeTables, "table", "t", nil, "Table to purge; repeat or comma-separate for several")
	rootCmd.Flags().StringVarP(&purgeKey, "key", "k", "", "Column the prefixes match against (defaults to clickhouse.match_key from the config)")
	rootCmd.Flags().StringArrayVarP(&purgePrefixes, "prefix", "p", nil, "Key prefix to delete; repeat for several")
	rootCmd.Flags().BoolVarP(&purgeCheckoutOnly, "checkout-only", "S", false, "Only show mutation status for the tables, delete nothing")
	rootCmd.Flags().BoolVarP(&purgeAwaitEnd, "await-mutation-end", "W", false, "Wait until each submitted mutation finishes")
	rootCmd.Flags().BoolVarP(&purgeForce, "force", "f", false, "Skip the preview and confirmation prompt")
	rootCmd.Flags().IntVar(&purgeWorkers, "workers", 0, "Concurrent table workflows (defaults to cleaner.workers from the config)")
	rootCmd.Flags().StringVar(&purgeLogLevel, "log-level", "", "Log verbosity: debug, info, warn, error")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(2)
	}
}

func runPurge(cmd *cobra.Command, args []string) {
	if purgeCheckoutOnly && (purgeForce || purgeAwaitEnd) {
		fmt.Fprintln(os.Stderr, "chpurge: --checkout-only cannot be combined with --force or --await-mutation-end")
		os.Exit(2)
	}

	cfg, err := config.Load(purgeConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chpurge: %v\n", err)
		os.Exit(1)
	}
	if purgeLogLevel != "" {
		cfg.LogLevel = purgeLogLevel
	}
	if purgeWorkers > 0 {
		cfg.Cleaner.Workers = purgeWorkers
	}

	log := logger.New(cfg.LogLevel)

	database := purgeDatabase
	if database == "" {
		database = cfg.ClickHouse.Database
	}
	key := purgeKey
	if key == "" {
		key = cfg.ClickHouse.MatchKey
	}
	req := &models.DeleteRequest{
		Database: database,
		Tables:   purgeTables,
		MatchKey: key,
		Prefixes: purgePrefixes,
	}

	client := clickhouse.NewClient(cfg.ClickHouse, log)
	registry := services.NewMutationRegistry(client, cfg.Cleaner.LookupRetries, log)
	poller := services.NewStatusPoller(client, log)
	confirmer := ui.NewTerminalConfirmer(os.Stdin, os.Stdout)
	orch := services.NewOrchestrator(registry, poller, client, confirmer, cfg.Cleaner, log)

	// Graceful shutdown on interrupt: stop starting work, report what was
	// already in flight.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Warn("interrupt received, stopping")
		cancel()
	}()

	result, err := orch.Run(ctx, req, services.RunOptions{
		CheckoutOnly: purgeCheckoutOnly,
		AwaitEnd:     purgeAwaitEnd,
		Force:        purgeForce,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "chpurge: %v\n", err)
		var invalid *models.InvalidRequestError
		if errors.As(err, &invalid) {
			os.Exit(2)
		}
		os.Exit(1)
	}

	ui.WriteRunReport(os.Stdout, result)
	if !result.Succeeded() {
		os.Exit(1)
	}
}
