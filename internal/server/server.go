// Package server orchestrates all components: NATS client, store, dispatcher, HTTP health.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/serene/internal/config"
	"github.com/morezero/serene/internal/telemetry"
	"github.com/morezero/serene/pkg/commsutil"
	"github.com/morezero/serene/pkg/db"
	"github.com/morezero/serene/pkg/dispatcher"
	"github.com/morezero/serene/pkg/events"
	"github.com/morezero/serene/pkg/resource"
	"github.com/morezero/serene/pkg/transport"
	"github.com/morezero/serene/pkg/version"
)

const logPrefix = "server:server"

// shutdownTimeout bounds the graceful shutdown after a signal.
const shutdownTimeout = 10 * time.Second

// Server is the serene orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	store      resource.Store
	disp       *dispatcher.Dispatcher
	subs       []*comms.Subscription
	httpServer *http.Server
	listener   net.Listener
	tracing    func(context.Context) error
	ready      atomic.Bool
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	slog.SetDefault(NewLogger(cfg.LogLevel))

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting serene", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := New(ctx, cfg)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	return s.Shutdown(shutdownCtx)
}

// NewLogger returns a text logger on stdout at the named level
// (debug, info, warn, error). Unknown names mean info.
func NewLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

// New connects every component and starts serving. ctx bounds dispatches
// started by the COMMS subscriptions; cancel it only after Shutdown.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{cfg: cfg}
	if err := s.start(ctx); err != nil {
		s.close(context.Background())
		return nil, err
	}
	s.ready.Store(true)
	slog.Info(fmt.Sprintf("%s - serene is ready", logPrefix))
	return s, nil
}

func (s *Server) start(ctx context.Context) error {
	cfg := s.cfg

	// Step 1: Tracing
	shutdownTracing, err := telemetry.Setup(ctx, cfg.COMMSName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("%s - failed to set up tracing: %w", logPrefix, err)
	}
	s.tracing = shutdownTracing

	// Step 2: Connect to NATS
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}
	s.nc = nc
	slog.Info(fmt.Sprintf("%s - Connected to NATS at %s", logPrefix, cfg.COMMSURL))

	// Step 3: Store
	if err := s.openStore(ctx); err != nil {
		return err
	}

	// Step 4: Dispatcher
	publisher := events.NewCommsPublisher(nc, &events.CommsPublisherOpts{GlobalChangeSubject: cfg.ChangeEventSubject})
	disp, err := buildDispatcher(cfg, s.store, publisher)
	if err != nil {
		return err
	}
	s.disp = disp

	// Step 5: Subscribe
	adapter := transport.NewAdapter(disp, cfg.RequestTimeout)
	sub, err := adapter.Subscribe(ctx, nc, cfg.DispatchSubject, cfg.DispatchQueue)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	for _, name := range cfg.Resources {
		sub, err := adapter.SubscribeResource(ctx, nc, cfg.DispatchSubject, cfg.DispatchQueue, name)
		if err != nil {
			return err
		}
		s.subs = append(s.subs, sub)
	}

	// Step 6: HTTP health server
	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("%s - failed to listen on %s: %w", logPrefix, cfg.ListenAddr(), err)
	}
	s.listener = ln
	s.httpServer = &http.Server{Handler: s.routes(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, ln.Addr()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()
	return nil
}

// openStore selects Postgres when DATABASE_URL is set and the in-memory
// store otherwise.
func (s *Server) openStore(ctx context.Context) error {
	cfg := s.cfg
	if !cfg.UsesDatabase() {
		slog.Info(fmt.Sprintf("%s - DATABASE_URL not set, using in-memory store", logPrefix))
		s.store = resource.NewMemoryStore()
		return nil
	}

	if cfg.RunMigrations {
		if err := db.EnsureDatabase(ctx, cfg.DatabaseURL); err != nil {
			return fmt.Errorf("%s - failed to ensure database: %w", logPrefix, err)
		}
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	s.pool = pool

	if cfg.RunMigrations {
		migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
		if err != nil {
			return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
			return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}
	s.store = db.NewRepository(pool)
	return nil
}

// buildDispatcher assembles the handler chain: version negotiation, the
// resource handler, then change notification.
func buildDispatcher(cfg *config.Config, store resource.Store, pub events.EventPublisher) (*dispatcher.Dispatcher, error) {
	negotiator, err := version.NewNegotiator(cfg.APIVersions, version.WithDeprecated(cfg.DeprecatedAPIVersions...))
	if err != nil {
		return nil, fmt.Errorf("%s - invalid API versions: %w", logPrefix, err)
	}

	d := dispatcher.NewDispatcher()
	d.Use(negotiator, dispatcher.WithName("version"))
	d.Use(resource.NewHandler(store, cfg.Resources...), dispatcher.WithName("resource"))
	d.Use(events.NewNotifier(pub), dispatcher.WithName("notify"))
	return d, nil
}

// Addr returns the address of the HTTP health server.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Dispatcher returns the server's dispatcher.
func (s *Server) Dispatcher() *dispatcher.Dispatcher {
	return s.disp
}

// Shutdown stops accepting requests, drains the COMMS connection and
// releases the store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	err := s.close(ctx)
	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return err
}

func (s *Server) close(ctx context.Context) error {
	var errs []error
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, comms.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	s.subs = nil
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	} else if s.listener != nil {
		s.listener.Close()
	}
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil && !errors.Is(err, comms.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
	if s.tracing != nil {
		if err := s.tracing(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s - shutdown: %w", logPrefix, errors.Join(errs...))
	}
	return nil
}
