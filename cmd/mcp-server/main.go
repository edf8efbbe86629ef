// Package main is the standalone MCP entry point. It needs no external
// services: the curated repertory and the phrase dataset are SQLite files
// under the data directory.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/reperto-cdss-server/internal/cdss"
	"github.com/reperto-cdss-server/internal/config"
	"github.com/reperto-cdss-server/internal/dataset"
	"github.com/reperto-cdss-server/internal/domain"
	"github.com/reperto-cdss-server/internal/insights"
	"github.com/reperto-cdss-server/internal/mcp"
	"github.com/reperto-cdss-server/internal/nlp"
	"github.com/reperto-cdss-server/internal/repertory"
	"github.com/reperto-cdss-server/internal/repository"
	"github.com/reperto-cdss-server/internal/setup"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "mcp-server",
		Short:        "Serve the repertory CDSS tools over MCP stdio",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}

	setupCmd := &cobra.Command{
		Use:   "setup",
		Short: "Register this server with a desktop MCP client",
	}

	var opts setup.Options
	register := &cobra.Command{
		Use:   "register",
		Short: "Add or update the client configuration entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := setup.Register(opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s in %s\n", setup.ServerName, path)
			return nil
		},
	}
	register.Flags().StringVar(&opts.ConfigPath, "client-config", "", "client config file (default: platform location)")
	register.Flags().StringVar(&opts.BinaryPath, "binary", "", "server binary (default: this executable)")
	register.Flags().StringVar(&opts.DataDir, "data-dir", "", "data directory passed to the server")

	var statusPath string
	status := &cobra.Command{
		Use:   "status",
		Short: "Show the current registration",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := setup.GetStatus(statusPath)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	}
	status.Flags().StringVar(&statusPath, "client-config", "", "client config file (default: platform location)")

	setupCmd.AddCommand(register, status)
	root.AddCommand(setupCmd)
	return root
}

func serve() error {
	cfg := config.LoadLiteConfig()

	// stdout carries the protocol, so logs go to stderr.
	logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := repository.NewSQLiteStore(cfg.GoldenDBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to open golden repertory: %w", err)
	}
	defer store.Close()

	phrases, err := dataset.NewSQLiteStore(cfg.PhrasesDBPath())
	if err != nil {
		return fmt.Errorf("failed to open phrase dataset: %w", err)
	}
	defer phrases.Close()

	recorder := dataset.NewAsyncRecorder(phrases, 64, 5*time.Second, logger)
	defer recorder.Close()

	repo := repository.NewCachedRepository(store, cfg.CacheMaxItems, cfg.CacheTTL, nil, logger)

	var generator domain.InsightGenerator
	if cfg.OpenAIAPIKey != "" {
		gen, err := insights.NewOpenAIGenerator(domain.InsightsConfig{
			Enabled: true,
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create insight generator: %w", err)
		}
		generator = gen
	}

	mapper := nlp.NewMapper(nlp.NewNormalizer(nlp.DefaultVocabulary()), repertory.NewSearcher(repo, logger), cfg.SearchLimit, logger)
	analyzer := cdss.NewAnalyzer(
		mapper,
		repertory.NewScorer(repo, logger),
		repo,
		generator,
		recorder,
		cdss.Options{TopRubrics: cfg.TopRubrics, TopRemedies: cfg.TopRemedies},
		logger,
	)

	server, err := mcp.NewServer(domain.MCPConfig{TransportType: cfg.Transport}, mcp.Dependencies{
		Analyzer:  analyzer,
		Rubrics:   repo,
		Dataset:   phrases,
		ExportDir: cfg.ExportDir(),
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	logger.WithFields(logrus.Fields{
		"data_dir":  cfg.DataDir,
		"transport": cfg.Transport,
		"insights":  generator != nil,
	}).Info("Starting repertory MCP server")

	if err := server.Run(ctx); err != nil {
		return err
	}
	logger.Info("MCP server stopped")
	return nil
}
