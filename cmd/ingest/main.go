package main

import (
	"context"
	"flag"
	"os"

	"github.com/odnarb/bigfoot-map/internal/config"
	"github.com/odnarb/bigfoot-map/internal/dal"
	"github.com/odnarb/bigfoot-map/internal/docstore"
	"github.com/odnarb/bigfoot-map/internal/orchestrator"
	"github.com/odnarb/bigfoot-map/internal/sources"
	"github.com/odnarb/bigfoot-map/pkg/zerolog_config"
	"github.com/rs/zerolog/log"
)

func main() {
	force := flag.Bool("force", false, "replace the reports collection even when it already holds data")
	flag.Parse()

	config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	zerolog_config.SetAppPrefix("bigfoot-ingest")
	if err := zerolog_config.StartupWithEnv(cfg.Logging.ElasticsearchURL, cfg.Logging.Index, cfg.Logging.Level); err != nil {
		log.Fatal().Err(err).Msg("Failed to start logger")
	}

	log.Info().Bool("force", *force).Msg("Starting bigfoot-map ingest")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Seed.Timeout)
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

	loader := sources.NewLoader(sources.Locations{
		BFRO:    cfg.Seed.BFROSource,
		Woodape: cfg.Seed.WoodapeSource,
		Kilmury: cfg.Seed.KilmurySource,
	}, cfg.Seed.Timeout)
	ingestor := sources.NewIngestor(loader, dal.NewReportModel(store), dal.NewSeedStatusModel(store))

	run := ingestor.SeedIfEmpty
	if *force {
		run = ingestor.Reseed
	}

	result, err := run(ctx)
	if closeErr := store.Close(); closeErr != nil {
		log.Warn().Err(closeErr).Msg("Failed to close document store")
	}
	if err != nil {
		log.Error().Err(err).Msg("Report ingestion failed")
		os.Exit(1)
	}

	log.Info().
		Bool("seeded", result.Seeded).
		Int("documents", result.Documents).
		Msg("Report ingestion completed")
}
