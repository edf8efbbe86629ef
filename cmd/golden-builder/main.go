// Package main is the golden repertory builder CLI. It copies the allow-listed
// rubrics of the source repertory, their ancestors, remedies and graded
// relations into the curated store.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/reperto-cdss-server/internal/config"
	"github.com/reperto-cdss-server/internal/database"
	"github.com/reperto-cdss-server/internal/domain"
	"github.com/reperto-cdss-server/internal/golden"
	"github.com/reperto-cdss-server/internal/repository"
	"github.com/reperto-cdss-server/internal/source"
)

// buildLockKey identifies the builder's advisory lock on the curated database.
const buildLockKey int64 = 0x5245_5045_5254_4f01

type flags struct {
	configFile      string
	allowList       string
	strictHierarchy bool
	dryRun          bool
	target          string
	sqlitePath      string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:          "golden-builder",
		Short:        "Build the curated golden repertory from the source repertory",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.configFile, "config", "", "config file (default: ./config.yaml if present)")
	cmd.Flags().StringVar(&f.allowList, "allowlist", "", "allow-list YAML (default: embedded)")
	cmd.Flags().BoolVar(&f.strictHierarchy, "strict-hierarchy", false, "fail on missing parents and cycles")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "verify and resolve only, write nothing")
	cmd.Flags().StringVar(&f.target, "target", "", "curated store driver: postgres or sqlite (default: storage.driver)")
	cmd.Flags().StringVar(&f.sqlitePath, "sqlite-path", "", "curated SQLite file (default: storage.sqlite_path)")
	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, f flags) error {
	manager, err := loadConfig(f.configFile)
	if err != nil {
		return err
	}
	cfg := manager.GetConfig()
	logger := config.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	allowList, err := golden.LoadAllowList(f.allowList)
	if err != nil {
		return err
	}

	srcDB, err := database.NewConnection(ctx, database.ConfigFrom(*manager.GetSourceConfig()), logger)
	if err != nil {
		return fmt.Errorf("connecting to source repertory: %w", err)
	}
	defer srcDB.Close()
	graph := source.NewOOREPGraph(srcDB.Pool, logger)

	opts := golden.Options{StrictHierarchy: f.strictHierarchy, DryRun: f.dryRun}

	target := f.target
	if target == "" {
		target = cfg.Storage.Driver
	}

	var report *golden.Report
	build := func(ctx context.Context, store domain.GoldenWriter) error {
		var err error
		report, err = golden.NewBuilder(graph, store, allowList, opts, logger).Run(ctx)
		return err
	}

	switch target {
	case "sqlite":
		path := f.sqlitePath
		if path == "" {
			path = cfg.Storage.SQLitePath
		}
		store, err := repository.NewSQLiteStore(path, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		err = build(ctx, store)
		if report != nil {
			_ = printReport(cmd, report)
		}
		return err
	case "postgres":
		dbConfig := database.ConfigFrom(cfg.Database)
		if !f.dryRun {
			if err := migrate(ctx, dbConfig.URL(), logger); err != nil {
				return err
			}
		}
		db, err := database.NewConnection(ctx, dbConfig, logger)
		if err != nil {
			return fmt.Errorf("connecting to curated database: %w", err)
		}
		defer db.Close()

		store := repository.NewPostgresStore(db.Pool, logger)
		err = db.WithAdvisoryLock(ctx, buildLockKey, func(ctx context.Context) error {
			return build(ctx, store)
		})
		if errors.Is(err, database.ErrLockHeld) {
			return fmt.Errorf("another golden build is running: %w", err)
		}
		if report != nil {
			_ = printReport(cmd, report)
		}
		return err
	default:
		return fmt.Errorf("unsupported target %q", target)
	}
}

func loadConfig(path string) (*config.Manager, error) {
	var (
		manager *config.Manager
		err     error
	)
	if path != "" {
		manager, err = config.NewManagerFromFile(path)
	} else {
		manager, err = config.NewManager()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return manager, nil
}

func migrate(ctx context.Context, url string, logger *logrus.Logger) error {
	runner, err := database.NewMigrationRunner(url, logger)
	if err != nil {
		return err
	}
	defer runner.Close()
	return runner.Up(ctx)
}

// printReport writes the report to stdout, which is reserved for it.
func printReport(cmd *cobra.Command, report *golden.Report) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
