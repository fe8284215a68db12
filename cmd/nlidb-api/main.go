package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AbhiSondakar/NLIDB/internal/answer"
	"github.com/AbhiSondakar/NLIDB/internal/api"
	"github.com/AbhiSondakar/NLIDB/internal/auth"
	"github.com/AbhiSondakar/NLIDB/internal/config"
	"github.com/AbhiSondakar/NLIDB/internal/gateway"
	"github.com/AbhiSondakar/NLIDB/internal/nl2sql"
	"github.com/AbhiSondakar/NLIDB/internal/observability"
	"github.com/AbhiSondakar/NLIDB/internal/schema"
)

func main() {
	cfg, err := config.LoadFromEnv("nlidb-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	driver := gateway.Driver(cfg.DataDB.Driver)

	dataDB, err := gateway.Open(context.Background(), gateway.DBConfig{
		Driver:          driver,
		DSN:             cfg.DataDB.DSN,
		MaxOpenConns:    cfg.DataDB.MaxOpenConns,
		MaxIdleConns:    cfg.DataDB.MaxIdleConns,
		ConnMaxIdleTime: cfg.DataDB.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.DataDB.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open data db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = dataDB.Close() }()

	introspector := &schema.Introspector{
		DB:        dataDB,
		Driver:    driver,
		MaxTables: cfg.Schema.MaxTables,
	}
	schemaCache := &schema.Cache{
		Source: introspector,
		TTL:    cfg.Schema.CacheTTL,
		Key:    schema.CacheKey(cfg.DataDB.Driver, cfg.DataDB.DSN),
	}

	executor := &gateway.Executor{
		DB:      dataDB,
		Driver:  driver,
		Timeout: cfg.Execution.Timeout,
		MaxRows: cfg.Execution.MaxRows,
	}

	deps := api.Dependencies{
		Logger:          logger,
		SchemaSource:    schemaCache,
		SchemaRefresher: schemaCache,
		SchemaAllowList: cfg.Schema.AllowedTables(),
		Readiness: api.CombineReadinessChecks(
			api.CheckDataDSN(cfg),
			api.CheckDataDB(dataDB),
		),
		DependencyTimeout: time.Second,
	}

	if cfg.Generation.Enabled {
		generator, err := nl2sql.NewOpenAIGenerator(nl2sql.OpenAIConfig{
			BaseURL:     cfg.Generation.BaseURL,
			APIKey:      cfg.Generation.APIKey,
			Model:       cfg.Generation.Model,
			Temperature: cfg.Generation.Temperature,
			Timeout:     cfg.Generation.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize sql generator", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Answerer = &answer.Service{
			Generator: generator,
			Schema:    schemaCache,
			Runner:    executor,
			AllowList: cfg.Schema.AllowedTables(),
			Logger:    logger,
		}
	}

	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
