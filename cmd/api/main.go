package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/odnarb/bigfoot-map/internal/api"
	"github.com/odnarb/bigfoot-map/internal/config"
	"github.com/odnarb/bigfoot-map/internal/dal"
	"github.com/odnarb/bigfoot-map/internal/docstore"
	"github.com/odnarb/bigfoot-map/internal/metrics"
	"github.com/odnarb/bigfoot-map/internal/orchestrator"
	"github.com/odnarb/bigfoot-map/internal/service"
	"github.com/odnarb/bigfoot-map/internal/sources"
	"github.com/odnarb/bigfoot-map/pkg/zerolog_config"
	"github.com/rs/zerolog/log"
)

func main() {
	config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	zerolog_config.SetAppPrefix("bigfoot-api")
	if err := zerolog_config.StartupWithEnv(cfg.Logging.ElasticsearchURL, cfg.Logging.Index, cfg.Logging.Level); err != nil {
		log.Fatal().Err(err).Msg("Failed to start logger")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("storeDriver", cfg.Store.Driver).
		Msg("Starting bigfoot-map API service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := orchestrator.NewSignalHandler()
	defer signals.Stop()
	signals.HandleSignals(ctx, cancel)

	store, err := docstore.Open(ctx, docstore.Options{
		Driver:   cfg.Store.Driver,
		FilePath: cfg.Store.FilePath,
		Couchbase: docstore.CouchbaseOptions{
			URL:      cfg.Store.Couchbase.URL,
			Username: cfg.Store.Couchbase.Username,
			Password: cfg.Store.Couchbase.Password,
			Bucket:   cfg.Store.Couchbase.Bucket,
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open document store")
	}

	reportModel := dal.NewReportModel(store)

	if cfg.Seed.Enabled {
		seedCtx, seedCancel := context.WithTimeout(ctx, cfg.Seed.Timeout)
		loader := sources.NewLoader(sources.Locations{
			BFRO:    cfg.Seed.BFROSource,
			Woodape: cfg.Seed.WoodapeSource,
			Kilmury: cfg.Seed.KilmurySource,
		}, cfg.Seed.Timeout)
		ingestor := sources.NewIngestor(loader, reportModel, dal.NewSeedStatusModel(store))

		result, err := ingestor.SeedIfEmpty(seedCtx)
		seedCancel()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to seed reports")
		}
		log.Info().
			Bool("seeded", result.Seeded).
			Int("documents", result.Documents).
			Msg("Seed check complete")
	}

	if cfg.Metrics.SystemEnabled {
		storePath := "."
		if cfg.Store.Driver == docstore.DriverFile {
			storePath = cfg.Store.FilePath
		}
		metrics.StartSystemMetrics(ctx, cfg.Metrics.SystemInterval, storePath)
	}

	authProvider, err := api.NewAuthProvider(cfg.Auth.Provider, cfg.Auth.JWTSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure authentication")
	}

	router := api.SetupRoutes(api.Dependencies{
		Reports: service.NewReportService(reportModel),
		Auth:    authProvider,
		Server:  cfg.Server,
	})

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	manager := orchestrator.NewServiceManager(server, cfg.Server.ShutdownTimeout)
	manager.OnShutdown("document store", store.Close)

	if err := manager.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("API service stopped with error")
	}

	log.Info().Msg("API service shutdown complete")
}
