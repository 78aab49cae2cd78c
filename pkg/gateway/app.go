// Package gateway wires the payment gateway's components — storage,
// credential resolution, wallet client, order engine, reconciler, poller,
// callback engine, and HTTP router — into a single running application,
// following the functional-options shape the teacher's own App type used.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/qiupay/gateway/internal/callbacks"
	"github.com/qiupay/gateway/internal/circuitbreaker"
	"github.com/qiupay/gateway/internal/config"
	"github.com/qiupay/gateway/internal/credstore"
	"github.com/qiupay/gateway/internal/httpapi"
	"github.com/qiupay/gateway/internal/lifecycle"
	"github.com/qiupay/gateway/internal/logger"
	"github.com/qiupay/gateway/internal/metrics"
	"github.com/qiupay/gateway/internal/observability"
	"github.com/qiupay/gateway/internal/orders"
	"github.com/qiupay/gateway/internal/poller"
	"github.com/qiupay/gateway/internal/reconciler"
	"github.com/qiupay/gateway/internal/storage"
	"github.com/qiupay/gateway/internal/walletclient"

	"github.com/prometheus/client_golang/prometheus"
)

// Config is the gateway's top-level configuration, re-exported so callers
// only need to import this package.
type Config = config.Config

// LoadConfig loads and finalizes configuration from a YAML file (or
// defaults plus environment overrides if path is empty).
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// App owns every wired component and the resources that need orderly
// shutdown: the order-expiry sweeper, the callback retry scanner, every
// in-flight poller task, and the storage backend's connection.
type App struct {
	Config *Config
	Store  storage.Store

	orders     *orders.Engine
	sweeper    *orders.Sweeper
	reconciler *reconciler.Reconciler
	poller     *poller.Poller
	callback   *callbacks.Engine
	scanner    *callbacks.Scanner
	dlq        callbacks.DLQStore
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	resources *lifecycle.Manager
	appCtx    context.Context
	cancel    context.CancelFunc
}

// Option customizes App construction, mirroring the teacher's
// functional-options wiring shape.
type Option func(*options)

type options struct {
	store storage.Store
	dlq   callbacks.DLQStore
}

// WithStore overrides the storage backend New would otherwise build from
// cfg.Storage. Primarily useful in tests.
func WithStore(store storage.Store) Option {
	return func(o *options) { o.store = store }
}

// WithDLQStore overrides the callback dead-letter store New would
// otherwise build from cfg.Callbacks.
func WithDLQStore(dlq callbacks.DLQStore) Option {
	return func(o *options) { o.dlq = dlq }
}

// New wires every gateway component from cfg and returns a running App.
// The caller owns the returned App's lifetime and must call Close when
// done; App itself starts the background sweeper and callback scanner
// immediately since both are pure maintenance loops with no HTTP surface
// of their own.
func New(cfg *Config, opts ...Option) (*App, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	resources := lifecycle.NewManager()
	appLogger := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "gateway",
		Environment: cfg.Logging.Environment,
	})

	store := o.store
	if store == nil {
		built, err := buildStore(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("gateway: build store: %w", err)
		}
		store = built
	}

	collector := metrics.New(prometheus.DefaultRegisterer)

	hooks := observability.NewRegistry(appLogger)
	promHook := observability.NewPrometheusHook(collector)
	hooks.RegisterOrderHook(promHook)
	hooks.RegisterReconciliationHook(promHook)
	hooks.RegisterWalletHook(promHook)
	hooks.RegisterWebhookHook(promHook)
	hooks.RegisterStorageHook(promHook)

	store = storage.NewInstrumentedStore(store, cfg.Storage.Backend, hooks)
	resources.Register("storage", store)

	dlq := o.dlq
	if dlq == nil {
		built, err := buildDLQStore(cfg.Callbacks)
		if err != nil {
			return nil, fmt.Errorf("gateway: build dlq store: %w", err)
		}
		dlq = built
	}

	encryptor, err := credstore.NewEncryptor(cfg.Wallet.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("gateway: build credential encryptor: %w", err)
	}
	credentials := credstore.NewResolver(&credentialLister{store: store}, encryptor)

	breaker := circuitbreaker.NewManagerFromConfig(cfg.CircuitBreaker)
	walletFactory := walletclient.NewFactory(cfg.Wallet, breaker)

	callbackEngine := callbacks.NewEngine(store, cfg.Callbacks, dlq, collector)
	scanner := callbacks.NewScanner(store, callbackEngine, cfg.Callbacks.ScanInterval.Duration, retrySchedule(cfg.Callbacks.RetrySchedule))

	ordersEngine := orders.NewEngine(store, credentials, &ordersWalletFactory{factory: walletFactory}, cfg.Orders)
	ordersEngine.SetHooks(hooks)
	rec := reconciler.New(store, credentials, &reconcilerWalletFactory{factory: walletFactory}, callbackEngine, cfg.Reconciler)
	rec.SetHooks(hooks)
	sweeper := orders.NewSweeper(ordersEngine, rec, cfg.Orders.ExpireSweep.Duration)
	pollerLoop := poller.New(store, rec, ordersEngine, rec, cfg.Poller.Interval.Duration, cfg.Poller.Duration.Duration)
	pollerLoop.SetMetrics(collector)

	appCtx, cancel := context.WithCancel(context.Background())

	app := &App{
		Config:     cfg,
		Store:      store,
		orders:     ordersEngine,
		sweeper:    sweeper,
		reconciler: rec,
		poller:     pollerLoop,
		callback:   callbackEngine,
		scanner:    scanner,
		dlq:        dlq,
		metrics:    collector,
		logger:     appLogger,
		resources:  resources,
		appCtx:     appCtx,
		cancel:     cancel,
	}

	sweeper.Start(appCtx)
	scanner.Start(appCtx)
	resources.RegisterFunc("sweeper", func() error { sweeper.Stop(); return nil })
	resources.RegisterFunc("scanner", func() error { scanner.Stop(); return nil })
	resources.RegisterFunc("poller", func() error { pollerLoop.StopAll(); return nil })

	return app, nil
}

// Handler returns the gateway's HTTP handler, ready to mount on an
// http.Server.
func (a *App) Handler() http.Handler {
	return httpapi.NewRouter(httpapi.Deps{
		Config:   a.Config,
		Store:    a.Store,
		Orders:   a.orders,
		Checker:  a.reconciler,
		Poller:   a.poller,
		Callback: a.callback,
		DLQ:      a.dlq,
		Metrics:  a.metrics,
		Logger:   a.logger,
		AppCtx:   a.appCtx,
	})
}

// Logger returns the application's configured structured logger.
func (a *App) Logger() zerolog.Logger { return a.logger }

// Close stops every background loop, cancels the app context (which in
// turn cancels every in-flight poller task via its derived context), and
// releases the storage backend.
func (a *App) Close() error {
	a.cancel()
	return a.resources.Close()
}

func buildStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return storage.NewMemoryStore(), nil
	case "postgres":
		return storage.NewPostgresStore(cfg.PostgresURL, cfg.PostgresPool, cfg.SchemaMapping)
	case "mongodb":
		return storage.NewMongoStore(cfg.MongoDBURL, cfg.MongoDBDatabase)
	default:
		return nil, fmt.Errorf("gateway: unknown storage backend %q", cfg.Backend)
	}
}

func buildDLQStore(cfg config.CallbacksConfig) (callbacks.DLQStore, error) {
	if !cfg.DLQEnabled {
		return callbacks.NoopDLQStore{}, nil
	}
	if cfg.DLQPath != "" {
		return callbacks.NewFileDLQStore(cfg.DLQPath)
	}
	return callbacks.NewMemoryDLQStore(), nil
}

func retrySchedule(ds []config.Duration) []time.Duration {
	out := make([]time.Duration, len(ds))
	for i, d := range ds {
		out[i] = d.Duration
	}
	return out
}
