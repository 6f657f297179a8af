package container

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kevinb28-21/CropView-sub001/internal/analyzer"
	"github.com/kevinb28-21/CropView-sub001/internal/config"
	"github.com/kevinb28-21/CropView-sub001/internal/factory"
	"github.com/kevinb28-21/CropView-sub001/internal/logger"
	"github.com/kevinb28-21/CropView-sub001/internal/observer"
	"github.com/kevinb28-21/CropView-sub001/internal/repository"
	"github.com/kevinb28-21/CropView-sub001/internal/service"
	"github.com/kevinb28-21/CropView-sub001/internal/storage"
	"github.com/kevinb28-21/CropView-sub001/internal/transport"
)

// Container holds all application dependencies
type Container struct {
	config    *config.Config
	bands     *config.BandRegistry
	pipeline  *analyzer.Pipeline
	fetcher   storage.ImageFetcher
	store     storage.ObjectStore
	repo      repository.Store
	publisher observer.Subject
	service   service.FieldAnalysisService
	handler   http.Handler
}

// NewContainer builds the dependency graph. The repository stays nil when
// no database is configured; upload and history endpoints then refuse
// requests while synchronous analysis keeps working.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	// A capture rig declaring a non-canonical band layout is a deployment
	// mistake; refuse to start
	bands, err := config.LoadBandRegistry(cfg.BandRegistryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load band registry: %w", err)
	}

	pipeline := analyzer.NewPipeline(analyzer.NewModelProvider())

	storageFactory := factory.NewStorageFactory(cfg)
	store, err := storageFactory.CreateObjectStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create object store: %w", err)
	}
	fetcher := storageFactory.CreateURLFetcher()
	originals := storageFactory.CreateKeyFetcher(store)

	var repo repository.Store
	if cfg.DatabaseURL != "" {
		pg, err := repository.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		repo = pg
	}

	publisher := observer.NewEventPublisher()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(observer.NewMetricsObserver())

	options := analyzer.DefaultOptions().
		WithSoilFactor(cfg.SoilFactor).
		WithGridResolution(cfg.GridResolution).
		WithHealthyThreshold(cfg.HealthyThreshold).
		WithModel(cfg.ModelPath)

	svc := service.NewFieldAnalysisService(service.Dependencies{
		Pipeline:      pipeline,
		Fetcher:       fetcher,
		Originals:     originals,
		Store:         store,
		Repo:          repo,
		Publisher:     publisher,
		Logger:        logger.Logger,
		Options:       options,
		OverlayPrefix: cfg.OverlayPrefix,
	})

	handler := transport.NewHandler(svc, cfg)

	return &Container{
		config:    cfg,
		bands:     bands,
		pipeline:  pipeline,
		fetcher:   fetcher,
		store:     store,
		repo:      repo,
		publisher: publisher,
		service:   svc,
		handler:   handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Service returns the field analysis service
func (c *Container) Service() service.FieldAnalysisService {
	return c.service
}

// Repository returns the database store, nil when unconfigured
func (c *Container) Repository() repository.Store {
	return c.repo
}

// Bands returns the validated band registry
func (c *Container) Bands() *config.BandRegistry {
	return c.bands
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Close releases held resources
func (c *Container) Close() error {
	if c.repo != nil {
		return c.repo.Close()
	}
	return nil
}
