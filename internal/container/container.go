// Package container provides dependency injection for the taxi-etl application.
// It centralizes the creation and wiring of all application dependencies,
// making them explicit and testable.
package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"dzs/taxi-etl/internal/common"
	"dzs/taxi-etl/internal/config"
	"dzs/taxi-etl/internal/logging"
	"dzs/taxi-etl/internal/pipeline"
	"dzs/taxi-etl/internal/reconciler"
	"dzs/taxi-etl/internal/report"
	"dzs/taxi-etl/internal/source"
	"dzs/taxi-etl/internal/storage"
	"dzs/taxi-etl/internal/store"
	"dzs/taxi-etl/internal/warehouse"
)

// Container holds all application dependencies and provides methods to access them.
//
// Container is immutable after creation - all fields are private and can only
// be accessed through getter methods.
type Container struct {
	logger     logging.Logger
	config     *config.Config
	objects    storage.ObjectStore
	tables     *store.MapTableStore
	reconciler *reconciler.Reconciler
	taxi       *source.TaxiClient
	weather    *source.WeatherClient
	extractor  *pipeline.Extractor
	loader     *pipeline.Loader
	generator  *report.Generator
	sink       *warehouse.Sink
	gcs        *storage.GCSStore
}

// NewContainer creates and wires all application dependencies.
// This is the main entry point for dependency injection in the application.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	return NewContainerWithLogger(ctx, cfg, config.NewLogger(cfg))
}

// NewContainerWithLogger is NewContainer with a caller-supplied logger.
func NewContainerWithLogger(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	c := &Container{logger: logger, config: cfg}

	objects, err := c.newObjectStore(ctx)
	if err != nil {
		return nil, err
	}
	c.objects = objects

	delimiter := common.ParseDelimiter(cfg.CSV.Delimiter)
	c.tables = store.NewMapTableStore(objects, cfg.Layout, delimiter, logger)
	c.reconciler = reconciler.New(reconciler.Options{CaseSensitive: cfg.Reconcile.CaseSensitive})

	c.taxi = source.NewTaxiClient(source.TaxiConfig{
		BaseURL:  cfg.Sources.Taxi.URL,
		AppToken: cfg.Sources.Taxi.AppToken,
		Limit:    cfg.Sources.Taxi.Limit,
		HTTP:     httpConfig(cfg.Sources.Taxi.HTTPSourceConfig),
	}, logger)
	c.weather = source.NewWeatherClient(source.WeatherConfig{
		BaseURL:   cfg.Sources.Weather.URL,
		Latitude:  cfg.Sources.Weather.Latitude,
		Longitude: cfg.Sources.Weather.Longitude,
		Timezone:  cfg.Sources.Weather.Timezone,
		HTTP:      httpConfig(cfg.Sources.Weather.HTTPSourceConfig),
	}, logger)
	c.extractor = pipeline.NewExtractor(c.taxi, c.weather, objects, cfg.Layout, logger)

	// A nil *warehouse.Sink must not reach the loader as a non-nil interface.
	var sink pipeline.Sink
	if cfg.Warehouse.Enabled {
		c.sink, err = warehouse.NewSink(ctx, warehouse.Config{
			ProjectID:    cfg.Warehouse.ProjectID,
			Dataset:      cfg.Warehouse.Dataset,
			TripsTable:   cfg.Warehouse.TripsTable,
			WeatherTable: cfg.Warehouse.WeatherTable,
			BatchSize:    cfg.Warehouse.BatchSize,
		}, logger)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to create warehouse sink: %w", err)
		}
		sink = c.sink
	}

	c.loader = pipeline.NewLoader(objects, c.tables, c.reconciler,
		pipeline.LoaderConfig{Layout: cfg.Layout, Delimiter: delimiter}, sink, logger)
	c.generator = report.NewGenerator(logger)

	logger.Info("Container initialized successfully",
		logging.Field{Key: "storage_backend", Value: cfg.Storage.Backend},
		logging.Field{Key: "case_sensitive", Value: cfg.Reconcile.CaseSensitive},
		logging.Field{Key: "warehouse_enabled", Value: cfg.Warehouse.Enabled})
	return c, nil
}

func (c *Container) newObjectStore(ctx context.Context) (storage.ObjectStore, error) {
	switch c.config.Storage.Backend {
	case config.BackendMemory:
		return storage.NewMemoryStore(), nil
	case config.BackendGCS:
		gcs, err := storage.NewGCSStore(ctx, c.config.Storage.Bucket, c.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open gcs bucket: %w", err)
		}
		c.gcs = gcs
		return gcs, nil
	case config.BackendLocal, "":
		return storage.NewLocalStore(c.config.Storage.LocalRoot, c.logger)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", c.config.Storage.Backend)
	}
}

func httpConfig(cfg config.HTTPSourceConfig) source.HTTPClientConfig {
	out := source.DefaultHTTPClientConfig()
	if cfg.TimeoutSeconds > 0 {
		out.Client = &http.Client{Timeout: cfg.Timeout()}
	}
	out.Backoff.MaxRetries = cfg.MaxRetries
	out.Backoff.InitialInterval = 500 * time.Millisecond
	return out
}

// GetLogger returns the container's logger instance.
func (c *Container) GetLogger() logging.Logger {
	return c.logger
}

// GetConfig returns the container's configuration instance.
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetObjectStore returns the configured object store backend.
func (c *Container) GetObjectStore() storage.ObjectStore {
	return c.objects
}

// GetTableStore returns the map table store.
func (c *Container) GetTableStore() *store.MapTableStore {
	return c.tables
}

// GetReconciler returns the reconciler configured with the normalization policy.
func (c *Container) GetReconciler() *reconciler.Reconciler {
	return c.reconciler
}

// GetExtractor returns the extract stage.
func (c *Container) GetExtractor() *pipeline.Extractor {
	return c.extractor
}

// GetLoader returns the load stage.
func (c *Container) GetLoader() *pipeline.Loader {
	return c.loader
}

// GetReportGenerator returns the report generator.
func (c *Container) GetReportGenerator() *report.Generator {
	return c.generator
}

// GetWarehouseSink returns the BigQuery sink, or nil when disabled.
func (c *Container) GetWarehouseSink() *warehouse.Sink {
	return c.sink
}

// Close releases the cloud clients held by the container.
func (c *Container) Close() error {
	var errs []error
	if c.sink != nil {
		errs = append(errs, c.sink.Close())
	}
	if c.gcs != nil {
		errs = append(errs, c.gcs.Close())
	}
	c.logger.Debug("Container closed")
	return errors.Join(errs...)
}
