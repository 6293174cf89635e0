package main

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/ledgerhound/ledgerhound/internal/cache"
	"github.com/ledgerhound/ledgerhound/internal/common"
	"github.com/ledgerhound/ledgerhound/internal/config"
	"github.com/ledgerhound/ledgerhound/internal/jobs"
	"github.com/ledgerhound/ledgerhound/internal/oracle"
	"github.com/ledgerhound/ledgerhound/internal/pipeline"
	"github.com/ledgerhound/ledgerhound/internal/service"
	"github.com/ledgerhound/ledgerhound/internal/storage"
	"github.com/ledgerhound/ledgerhound/internal/vendor"
)

func loadSettings() (config.Settings, error) {
	return config.Load(viper.GetViper())
}

// initStorage opens the database and applies pending migrations.
func initStorage(ctx context.Context, settings config.Settings) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(settings.Database.Path)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// initOracle builds the classification service adapter from configuration.
func initOracle(settings config.Settings) (*oracle.Adapter, error) {
	if settings.Oracle.Endpoint == "" {
		return nil, fmt.Errorf("%w: oracle.endpoint", common.ErrMissingConfig)
	}
	if settings.Oracle.APIKey == "" {
		return nil, fmt.Errorf("%w: oracle.api_key", common.ErrMissingConfig)
	}

	return oracle.NewAdapter(oracle.Config{
		Endpoint:   settings.Oracle.Endpoint,
		APIKey:     settings.Oracle.APIKey,
		MaxRetries: settings.Oracle.MaxRetries,
		RetryDelay: settings.Oracle.RetryDelay,
		Timeout:    settings.Oracle.Timeout,
		RateLimit:  settings.Oracle.RateLimit,
	})
}

// initOrchestrator wires storage, oracle, registry, and cache into a job
// orchestrator.
func initOrchestrator(store service.Storage, o service.Oracle, settings config.Settings) *jobs.Orchestrator {
	registry := vendor.NewRegistry(store, vendor.Config{
		AcceptThreshold: settings.Vendors.AcceptThreshold,
		ReviewThreshold: settings.Vendors.ReviewThreshold,
	})
	resultCache := cache.New(store)

	factory := jobs.PipelineFactory(store, o, registry, resultCache, pipeline.Config{
		Workers: settings.Pipeline.Workers,
	})

	return jobs.NewOrchestrator(store, factory, jobs.Config{
		BatchTimeout: settings.Pipeline.BatchTimeout,
	})
}
