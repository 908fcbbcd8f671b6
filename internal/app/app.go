// Package app builds and owns the long-lived services shared by the
// harvester commands: the task store, the progress hub and its sinks, and the
// Street View clients.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/JakeFAU/streetview-harvester/internal/clock/system"
	"github.com/JakeFAU/streetview-harvester/internal/config"
	"github.com/JakeFAU/streetview-harvester/internal/harvest"
	idgen "github.com/JakeFAU/streetview-harvester/internal/id/uuid"
	"github.com/JakeFAU/streetview-harvester/internal/progress"
	"github.com/JakeFAU/streetview-harvester/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/streetview-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/streetview-harvester/internal/ratelimit"
	"github.com/JakeFAU/streetview-harvester/internal/storage/memory"
	"github.com/JakeFAU/streetview-harvester/internal/storage/postgres"
	"github.com/JakeFAU/streetview-harvester/internal/storage/sqlite"
	"github.com/JakeFAU/streetview-harvester/internal/streetview"
)

// App holds the services built from one Config. It is created once per
// command and closed when the command returns.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	store      harvest.TaskStore
	hub        *progress.Hub
	publisher  harvest.Publisher
	clock      harvest.Clock
	ids        *idgen.Generator
	limiter    *ratelimit.Limiter
	httpClient *http.Client
}

type options struct {
	store      harvest.TaskStore
	publisher  harvest.Publisher
	registerer prometheus.Registerer
	clock      harvest.Clock
}

// Option overrides a dependency New would otherwise build from config.
type Option func(*options)

// WithStore uses store instead of opening store.driver.
func WithStore(store harvest.TaskStore) Option {
	return func(o *options) { o.store = store }
}

// WithPublisher uses pub for progress.pubsub.topic instead of dialing Pub/Sub.
func WithPublisher(pub harvest.Publisher) Option {
	return func(o *options) { o.publisher = pub }
}

// WithRegisterer registers progress collectors on reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithClock overrides the wall clock.
func WithClock(clock harvest.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// New opens the store and starts the progress hub. It fails fast when any
// configured dependency cannot be initialised, closing whatever it already
// opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	o := options{registerer: prometheus.DefaultRegisterer, clock: system.New()}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{
		cfg:        cfg,
		logger:     logger,
		clock:      o.clock,
		ids:        idgen.New(),
		limiter:    newLimiter(cfg),
		httpClient: newHTTPClient(cfg),
	}

	store := o.store
	if store == nil {
		var err error
		store, err = openStore(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		logger.Info("task store opened", zap.String("driver", cfg.Store.Driver))
	}
	a.store = store

	sinkList, err := a.buildSinks(ctx, o)
	if err != nil {
		_ = a.closeStore()
		return nil, err
	}
	a.hub = progress.NewHub(progress.Config{Logger: logger.Named("progress")}, sinkList...)
	return a, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (harvest.TaskStore, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, sqlite.Config{
			Path:          cfg.Path,
			BusyTimeoutMs: cfg.BusyTimeoutMs,
			MaxOpenConns:  cfg.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	case config.DriverPostgres:
		s, err := postgres.NewTaskStore(ctx, postgres.Config{
			DSN:      cfg.DSN,
			MaxConns: int32(cfg.MaxConns), //nolint:gosec // validated as a small positive int
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil
	case config.DriverMemory:
		return memory.NewTaskStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}

func (a *App) buildSinks(ctx context.Context, o options) ([]progress.Sink, error) {
	out := []progress.Sink{sinks.NewLogSink(a.logger.Named("progress"))}

	promSink, err := sinks.NewPrometheusSink(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("init prometheus sink: %w", err)
	}
	out = append(out, promSink)

	pc := a.cfg.Progress
	if pc.CSVPath != "" || pc.JSONLPath != "" {
		fileSink, err := sinks.NewFileSink(pc.CSVPath, pc.JSONLPath)
		if err != nil {
			return nil, fmt.Errorf("init file sink: %w", err)
		}
		out = append(out, fileSink)
	}

	if pc.PubSub.Topic != "" {
		pub := o.publisher
		if pub == nil {
			p, err := pubsubpublisher.New(ctx, pc.PubSub.ProjectID)
			if err != nil {
				closeSinks(out)
				return nil, fmt.Errorf("init pubsub publisher: %w", err)
			}
			otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
				propagation.TraceContext{},
				propagation.Baggage{},
			))
			pub = p
		}
		a.publisher = pub
		pubSink := sinks.NewPublisherSink(pub, pc.PubSub.Topic, a.logger.Named("progress"))
		pubSink.IncludeUnits = pc.PubSub.IncludeUnits
		out = append(out, pubSink)
		a.logger.Info("publishing progress", zap.String("topic", pc.PubSub.Topic))
	}
	return out, nil
}

func closeSinks(list []progress.Sink) {
	for _, s := range list {
		_ = s.Close(context.Background())
	}
}

func newLimiter(cfg config.Config) *ratelimit.Limiter {
	l := ratelimit.New(ratelimit.Config{})
	l.Configure(streetview.ServiceSearch, ratelimit.Config{RPS: cfg.Search.RPS, Burst: cfg.Search.Burst})
	l.Configure(streetview.ServiceMetadata, ratelimit.Config{RPS: cfg.Enrich.RPS, Burst: cfg.Enrich.Burst})
	return l
}

func newHTTPClient(cfg config.Config) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConnsPerHost = max(cfg.Search.Workers, cfg.Enrich.Workers, 2)
	return &http.Client{Timeout: cfg.HTTPTimeout(), Transport: tr}
}

func (a *App) streetviewConfig() streetview.Config {
	return streetview.Config{
		SearchEndpoint:   a.cfg.Search.Endpoint,
		MetadataEndpoint: a.cfg.Enrich.Endpoint,
		APIKey:           a.cfg.Enrich.APIKey,
		Timeout:          a.cfg.HTTPTimeout(),
		UserAgent:        a.cfg.HTTP.UserAgent,
		MaxRetries:       a.cfg.HTTP.MaxRetries,
		SearchRadius:     a.cfg.Search.RadiusMeters,
	}
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the task store.
func (a *App) Store() harvest.TaskStore { return a.store }

// Clock returns the wall clock.
func (a *App) Clock() harvest.Clock { return a.clock }

// Reporter starts a new run of pass and returns its progress reporter.
func (a *App) Reporter(pass harvest.Pass) (*progress.Reporter, error) {
	runID, err := a.ids.NewRunID()
	if err != nil {
		return nil, err
	}
	return progress.NewReporter(a.hub, runID, pass, a.clock), nil
}

// SearchClient builds the panorama search client.
func (a *App) SearchClient() *streetview.SearchClient {
	return streetview.NewSearchClient(a.streetviewConfig(), a.httpClient, a.limiter, a.logger.Named("streetview"))
}

// MetadataClient builds the metadata client; it needs enrich.api_key.
func (a *App) MetadataClient() (*streetview.MetadataClient, error) {
	if err := a.cfg.RequireAPIKey(); err != nil {
		return nil, err
	}
	return streetview.NewMetadataClient(a.streetviewConfig(), a.httpClient, a.limiter, a.logger.Named("streetview")), nil
}

// Close flushes progress sinks and releases the publisher and the store.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.hub.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if dropped := a.hub.Dropped(); dropped > 0 {
		a.logger.Warn("progress events dropped", zap.Int64("dropped", dropped))
	}
	if c, ok := a.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if err := a.closeStore(); err != nil {
		errs = append(errs, err)
	}
	a.httpClient.CloseIdleConnections()
	return errors.Join(errs...)
}

func (a *App) closeStore() error {
	if a.store == nil {
		return nil
	}
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
