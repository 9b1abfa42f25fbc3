package main

import (
	"context"

	"github.com/rotisserie/eris"

	kafkaadapter "github.com/couchcryptid/hazard-data-pipeline/internal/adapter/kafka"
	"github.com/couchcryptid/hazard-data-pipeline/internal/adapter/mapbox"
	"github.com/couchcryptid/hazard-data-pipeline/internal/dedupe"
	"github.com/couchcryptid/hazard-data-pipeline/internal/domain"
	"github.com/couchcryptid/hazard-data-pipeline/internal/georesolve"
	"github.com/couchcryptid/hazard-data-pipeline/internal/observability"
	"github.com/couchcryptid/hazard-data-pipeline/internal/pipeline"
	"github.com/couchcryptid/hazard-data-pipeline/internal/store"
)

// app bundles the wired pipeline and the collaborators that need closing.
type app struct {
	pipeline  *pipeline.Pipeline
	store     *store.SQLiteStore
	publisher *kafkaadapter.Publisher // nil when publishing is disabled
	metrics   *observability.Metrics
}

// buildApp wires the pipeline from the loaded configuration.
func buildApp(ctx context.Context) (*app, error) {
	metrics := observability.NewMetrics()

	var geocoder domain.Geocoder
	if cfg.Geocoding.Enabled {
		client := mapbox.NewClient(cfg.Geocoding.Token, cfg.Geocoding.Timeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.Geocoding.CacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("geocoding enabled", "cache_size", cfg.Geocoding.CacheSize, "timeout", cfg.Geocoding.Timeout)
	} else {
		logger.Info("geocoding disabled")
	}

	s, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var publisher *kafkaadapter.Publisher
	var pub pipeline.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = kafkaadapter.NewPublisher(cfg.Kafka, logger)
		pub = publisher
		logger.Info("kafka publishing enabled", "topic", cfg.Kafka.Topic)
	}

	p := pipeline.New(cfg,
		georesolve.New(geocoder, cfg.Pipeline.ResolverWorkers, logger),
		dedupe.New(cfg.Merge),
		s, pub, logger, metrics,
	)
	return &app{pipeline: p, store: s, publisher: publisher, metrics: metrics}, nil
}

func (a *app) close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}
}
