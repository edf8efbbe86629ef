package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/reperto-cdss-server/internal/api"
	"github.com/reperto-cdss-server/internal/cdss"
	"github.com/reperto-cdss-server/internal/config"
	"github.com/reperto-cdss-server/internal/database"
	"github.com/reperto-cdss-server/internal/dataset"
	"github.com/reperto-cdss-server/internal/domain"
	"github.com/reperto-cdss-server/internal/insights"
	"github.com/reperto-cdss-server/internal/nlp"
	"github.com/reperto-cdss-server/internal/repertory"
	"github.com/reperto-cdss-server/internal/repository"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := config.NewLogger(cfg.Logging.Level, cfg.Logging.Format, logOutput(cfg.Logging.Output))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := make(map[string]api.HealthCheck)
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	store, err := openStore(ctx, cfg, logger, checks, &closers)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open curated store")
	}

	var repo domain.RubricRepository = store
	if cfg.Cache.Enabled {
		var remote repository.RemoteCache
		if cfg.Cache.RedisURL != "" {
			redisCache, err := repository.NewRedisCache(cfg.Cache)
			if err != nil {
				logger.WithError(err).Warn("Redis unavailable, using in-process cache only")
			} else {
				remote = redisCache
				closers = append(closers, func() { _ = redisCache.Close() })
			}
		}
		repo = repository.NewCachedRepository(store, cfg.Cache.LRUSize, cfg.Cache.DefaultTTL, remote, logger)
	}

	var recorder domain.PhraseRecorder
	if cfg.Dataset.Enabled {
		ds, err := openDataset(cfg)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open phrase dataset")
		}
		async := dataset.NewAsyncRecorder(ds, cfg.Dataset.BufferSize, cfg.Dataset.Timeout, logger)
		recorder = async
		closers = append(closers, func() {
			async.Close()
			_ = ds.Close()
		})
	}

	var generator domain.InsightGenerator
	if cfg.Insights.Enabled {
		gen, err := insights.NewOpenAIGenerator(cfg.Insights, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create insight generator")
		}
		generator = gen
	}

	normalizer := nlp.NewNormalizer(nlp.DefaultVocabulary())
	mapper := nlp.NewMapper(normalizer, repertory.NewSearcher(repo, logger), cfg.Pipeline.SearchLimit, logger)
	analyzer := cdss.NewAnalyzer(
		mapper,
		repertory.NewScorer(repo, logger),
		repo,
		generator,
		recorder,
		cdss.Options{
			TopRubrics:   cfg.Pipeline.TopRubrics,
			TopRemedies:  cfg.Pipeline.TopRemedies,
			StoreTimeout: cfg.Pipeline.StoreTimeout,
		},
		logger,
	)

	server := api.NewServer(configManager, api.Dependencies{
		Analyzer: analyzer,
		Rubrics:  repo,
		Checks:   checks,
		Logger:   logger,
	})

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	logger.WithFields(logrus.Fields{
		"host":    cfg.Server.Host,
		"port":    cfg.Server.Port,
		"storage": cfg.Storage.Driver,
		"dataset": cfg.Dataset.Enabled,
		"insight": cfg.Insights.Enabled,
	}).Info("Starting repertory CDSS server")

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("Server failed")
		return
	}

	logger.Info("Server stopped")
}

// openStore opens the curated repertory on the configured driver. Postgres
// stores are migrated before use.
func openStore(ctx context.Context, cfg *domain.Config, logger *logrus.Logger, checks map[string]api.HealthCheck, closers *[]func()) (repository.Store, error) {
	switch cfg.Storage.Driver {
	case "sqlite":
		store, err := repository.NewSQLiteStore(cfg.Storage.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, func() { _ = store.Close() })
		return store, nil
	default:
		dbConfig := database.ConfigFrom(cfg.Database)

		migrator, err := database.NewMigrationRunner(dbConfig.URL(), logger)
		if err != nil {
			return nil, err
		}
		err = migrator.Up(ctx)
		_ = migrator.Close()
		if err != nil {
			return nil, err
		}

		db, err := database.NewConnection(ctx, dbConfig, logger)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, db.Close)
		checks["database"] = db.Health
		return repository.NewPostgresStore(db.Pool, logger), nil
	}
}

func openDataset(cfg *domain.Config) (dataset.Store, error) {
	switch cfg.Dataset.Driver {
	case "sqlite":
		return dataset.NewSQLiteStore(cfg.Dataset.SQLitePath)
	case "postgres":
		return dataset.NewPostgresStoreFromURL(config.ConnectionString(cfg.Database))
	default:
		return nil, fmt.Errorf("unsupported dataset driver %q", cfg.Dataset.Driver)
	}
}

func logOutput(name string) io.Writer {
	if name == "stdout" {
		return os.Stdout
	}
	return os.Stderr
}
