// Package monitor owns a spamwatch process's telemetry pipeline: the store,
// the event relay and its publishers, the connection to the spammer, the
// read-only servers and the export scheduler. Nothing here is global; each
// Monitor is constructed, started and closed explicitly.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/alfredjeanlab/spamwatch/internal/client"
	"github.com/alfredjeanlab/spamwatch/internal/config"
	"github.com/alfredjeanlab/spamwatch/internal/events"
	"github.com/alfredjeanlab/spamwatch/internal/export"
	"github.com/alfredjeanlab/spamwatch/internal/server"
	"github.com/alfredjeanlab/spamwatch/internal/store"
)

// shutdownTimeout bounds the HTTP server's graceful shutdown.
const shutdownTimeout = 10 * time.Second

// Option configures a Monitor.
type Option func(*options)

type options struct {
	registry   *prometheus.Registry
	publishers []events.Publisher
	dests      []export.Destination
}

// WithRegistry collects metrics into reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithPublisher adds a publisher to the relay, next to the SSE hub and NATS.
func WithPublisher(p events.Publisher) Option {
	return func(o *options) { o.publishers = append(o.publishers, p) }
}

// WithDestination adds an export destination to those configured.
func WithDestination(d export.Destination) Option {
	return func(o *options) { o.dests = append(o.dests, d) }
}

// Monitor is one live telemetry pipeline.
type Monitor struct {
	cfg    *config.Config
	logger *slog.Logger

	registry  *prometheus.Registry
	store     *store.Store
	client    *client.Client
	hub       *server.Hub
	publisher events.Multi
	srv       *server.Server
	health    *server.HealthReporter
	dests     []export.Destination
	scheduler *export.Scheduler

	mu          sync.Mutex
	started     bool
	cancel      context.CancelFunc
	unsubscribe func()
	closeOnce   sync.Once
	closeErr    error
}

// New builds the pipeline from cfg without connecting. The store's
// commander is bound to the client, so RequestStart and RequestStop reach
// the spammer once Start has connected.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Monitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}

	m := &Monitor{
		cfg:      cfg,
		logger:   logger,
		registry: o.registry,
		hub:      server.NewHub(),
		health:   server.NewHealthReporter(logger),
	}

	m.publisher = append(events.Multi{m.hub}, o.publishers...)
	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("nats publisher: %w", err)
		}
		m.publisher = append(m.publisher, pub)
		logger.Info("events enabled", "nats_url", cfg.NATSURL)
	} else {
		logger.Info("events disabled (SPAMWATCH_NATS_URL not set)")
	}

	m.store = store.New(store.WithLogger(logger), store.WithRetention(cfg.Retention))
	relay := events.NewRelay(m.store, m.publisher, logger)

	dialer, err := Dialer(cfg)
	if err != nil {
		_ = m.publisher.Close()
		return nil, err
	}

	m.client, err = client.New(cfg.URL, relay,
		client.WithLogger(logger),
		client.WithDialer(dialer),
		client.WithPingInterval(cfg.PingInterval),
		client.WithReadTimeout(cfg.ReadTimeout),
		client.WithWriteTimeout(cfg.WriteTimeout),
		client.WithRegisterer(m.registry),
	)
	if err != nil {
		_ = m.publisher.Close()
		return nil, err
	}
	m.store.Bind(m.client)

	m.srv = server.New(m.store, m.store,
		server.WithLink(m.client),
		server.WithHub(m.hub),
		server.WithGatherer(m.registry),
		server.WithLogger(logger),
	)

	m.dests, err = destinations(cfg, logger)
	if err != nil {
		_ = m.publisher.Close()
		return nil, err
	}
	m.dests = append(m.dests, o.dests...)
	if cfg.ExportInterval > 0 && len(m.dests) > 0 {
		m.scheduler = export.NewScheduler(m.store, m.dests, cfg.ExportInterval, logger)
	}
	return m, nil
}

// Dialer returns the WebSocket dialer for cfg's TLS settings.
func Dialer(cfg *config.Config) (*websocket.Dialer, error) {
	tlsCfg, err := cfg.TLSConfig()
	if err != nil {
		return nil, err
	}
	return &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: client.DefaultHandshakeTimeout,
		TLSClientConfig:  tlsCfg,
	}, nil
}

func destinations(cfg *config.Config, logger *slog.Logger) ([]export.Destination, error) {
	var dests []export.Destination
	if cfg.ExportFile != "" {
		dests = append(dests, export.NewFileDestination(cfg.ExportFile))
		logger.Info("export file destination enabled", "path", cfg.ExportFile)
	}
	if cfg.ExportS3Bucket != "" {
		d, err := export.NewS3Destination(context.Background(),
			cfg.ExportS3Bucket, cfg.ExportS3Key, cfg.ExportS3Region, cfg.ExportS3Endpoint)
		if err != nil {
			return nil, fmt.Errorf("s3 export destination: %w", err)
		}
		dests = append(dests, d)
		logger.Info("export S3 destination enabled", "bucket", cfg.ExportS3Bucket, "key", cfg.ExportS3Key)
	}
	return dests, nil
}

func (m *Monitor) Store() *store.Store { return m.store }
func (m *Monitor) Client() *client.Client { return m.client }
func (m *Monitor) Server() *server.Server { return m.srv }
func (m *Monitor) Health() *server.HealthReporter { return m.health }
func (m *Monitor) Registry() *prometheus.Registry { return m.registry }
func (m *Monitor) Destinations() []export.Destination { return m.dests }

// Start begins following connection state, starts the export scheduler and
// connects to the spammer. A failed dial is returned; the monitor stays
// usable and Start's background work keeps running until Close.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return m.client.Connect(ctx)
	}
	m.started = true
	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	states, unsubscribe := m.client.Subscribe()
	m.unsubscribe = unsubscribe
	m.mu.Unlock()

	go m.health.Follow(runCtx, states)
	if m.scheduler != nil {
		m.scheduler.Start()
		m.logger.Info("export scheduler started", "interval", m.cfg.ExportInterval)
	}
	return m.client.Connect(ctx)
}

// Serve runs the HTTP and gRPC surfaces on the given listeners until ctx
// ends or either server fails.
func (m *Monitor) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	httpServer := &http.Server{
		Handler:           m.srv.NewHTTPHandler(m.cfg.AuthToken),
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcServer := server.NewGRPCServer(m.srv, m.health.Server(), m.cfg.AuthToken)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m.logger.Info("HTTP server listening", "addr", httpLis.Addr().String())
		if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		m.logger.Info("gRPC server listening", "addr", grpcLis.Addr().String())
		if err := grpcServer.Serve(grpcLis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		grpcServer.GracefulStop()
		m.logger.Info("gRPC server stopped")

		// Open event streams only end when the hub closes.
		_ = m.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			m.logger.Error("HTTP server shutdown error", "err", err)
		}
		m.logger.Info("HTTP server stopped")
		return nil
	})
	return g.Wait()
}

// Close stops the scheduler (after a final export), closes the connection
// and the publishers, and marks the health service NOT_SERVING. Close is
// idempotent.
func (m *Monitor) Close() error {
	m.closeOnce.Do(func() {
		if m.scheduler != nil {
			m.scheduler.Stop()
			m.logger.Info("export scheduler stopped")
		}

		var errs []error
		if err := m.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing client: %w", err))
		}

		m.mu.Lock()
		if m.cancel != nil {
			m.cancel()
			m.unsubscribe()
		}
		m.mu.Unlock()
		m.health.Shutdown()

		if err := m.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing publishers: %w", err))
		}
		m.closeErr = errors.Join(errs...)
		m.logger.Info("monitor closed")
	})
	return m.closeErr
}
