// episodicd is the memory substrate daemon: it drives scheduled source
// ingestion through the batch pipeline, runs the lifecycle, segmentation,
// community, and maintenance sweepers, and serves the operational HTTP
// surface the outer CLI talks to.
package main

import (
	"context"
	stdsql "database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/athenamem/episodic/pkg/api"
	"github.com/athenamem/episodic/pkg/cleanup"
	"github.com/athenamem/episodic/pkg/community"
	"github.com/athenamem/episodic/pkg/config"
	"github.com/athenamem/episodic/pkg/database"
	"github.com/athenamem/episodic/pkg/embeddings"
	"github.com/athenamem/episodic/pkg/failures"
	"github.com/athenamem/episodic/pkg/lifecycle"
	"github.com/athenamem/episodic/pkg/orchestrator"
	"github.com/athenamem/episodic/pkg/pipeline"
	"github.com/athenamem/episodic/pkg/segmentation"
	"github.com/athenamem/episodic/pkg/sources"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// dbHealth adapts database.Health to the one-method probe the API server
// expects.
type dbHealth struct {
	db *stdsql.DB
}

func (h dbHealth) Ping(ctx context.Context) error {
	_, err := database.Health(ctx, h.db)
	return err
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env from the config directory before anything reads the
	// environment; credentials only ever arrive this way.
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("could not load .env, continuing with existing environment", "path", envPath, "error", err)
	} else {
		slog.Info("loaded environment", "path", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	gin.SetMode(getEnv("GIN_MODE", gin.ReleaseMode))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		fatal("failed to initialize configuration", err)
	}

	dbCfg, err := databaseConfig(cfg)
	if err != nil {
		fatal("failed to load database config", err)
	}
	dbClient, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		fatal("failed to connect to database", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("error closing database client", "error", err)
		}
	}()
	slog.Info("connected to postgres, schema up to date")

	store := database.NewStore(dbClient)
	embedder := embeddings.New(cfg.Embedding)
	metrics := pipeline.NewMetrics(prometheus.DefaultRegisterer)
	pl := pipeline.New(cfg.Pipeline, store, embedder, dbClient, metrics, nil)

	// A bad source config skips that source rather than aborting the
	// daemon; the remaining sources still sync.
	adapters := make(map[string]sources.Adapter, len(cfg.Sources))
	for id, sc := range cfg.Sources {
		adapter, err := sources.New(id, sc)
		if err != nil {
			slog.Error("skipping misconfigured source", "source_id", id, "error", err)
			continue
		}
		adapters[id] = adapter
	}

	orch := orchestrator.New(cfg.Orchestrator, cfg.Pipeline, store, pl, adapters)

	recorder := failures.New(getEnv("PROJECT_ID", "episodic"), pl, nil)
	orch.OnSourceFailure(func(sourceID string, err error) {
		recordCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = recorder.RecordImportFailure(recordCtx, "orchestrator", err.Error(),
			map[string]any{"source_id": sourceID})
	})

	lifecycleSvc := lifecycle.NewService(cfg.Lifecycle, store, nil)
	lifecycleSvc.Start(ctx)
	defer lifecycleSvc.Stop()

	segmentationSvc := segmentation.NewService(cfg.Segmentation, store, embedder, nil)
	segmentationSvc.Start(ctx)
	defer segmentationSvc.Stop()

	communitySvc := community.NewService(cfg.Community, store)
	communitySvc.Start(ctx)
	defer communitySvc.Stop()

	maintenanceSvc := cleanup.NewService(cfg.Maintenance, store, embedder)
	maintenanceSvc.Start(ctx)
	defer maintenanceSvc.Stop()

	// LISTEN/NOTIFY wakes the lifecycle sweeper as soon as a batch commits.
	// Without it the sweeper still runs on its poll interval, so a listener
	// failure is degraded service, not fatal.
	listener := database.NewNotifyListener(databaseDSN(dbCfg))
	if err := listener.Start(ctx); err != nil {
		slog.Warn("notify listener unavailable, sweepers fall back to polling", "error", err)
	} else {
		listener.RegisterHandler(database.EventsIngestedChannel, func([]byte) {
			lifecycleSvc.Wake()
		})
		if err := listener.Subscribe(ctx, database.EventsIngestedChannel); err != nil {
			slog.Warn("subscribe to events_ingested failed", "error", err)
		}
		defer listener.Stop(context.Background())
	}

	if len(adapters) > 0 {
		schedules := make(map[string]string, len(adapters))
		for id := range adapters {
			schedules[id] = cfg.Sources[id].Schedule
		}
		go orch.RunScheduled(ctx, schedules)
		slog.Info("scheduled ingestion started", "sources", len(schedules))
	}

	server := api.NewServer(cfg, orch, store, store, dbHealth{db: dbClient.DB()})
	router := server.Router()
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	httpServer := &http.Server{
		Addr:    ":" + httpPort,
		Handler: router,
	}
	go func() {
		slog.Info("http server listening", "port", httpPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("http server failed", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown failed", "error", err)
	}
}

// databaseConfig maps the YAML database section onto pkg/database's
// connection settings, resolving the password from the environment variable
// the config names. Container deployments that configure the database
// purely through DB_* environment variables take precedence: if DB_HOST is
// set, the YAML section is ignored entirely.
func databaseConfig(cfg *config.Config) (database.Config, error) {
	if os.Getenv("DB_HOST") != "" {
		return database.LoadConfigFromEnv()
	}
	return database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.DatabasePassword(),
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}, nil
}

// databaseDSN builds the keyword/value DSN the dedicated LISTEN connection
// uses; identical connection parameters to the pooled client.
func databaseDSN(cfg database.Config) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
}
