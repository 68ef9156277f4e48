package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/awards/internal/adapters/http/api"
	"github.com/okian/awards/internal/adapters/rpc"
	"github.com/okian/awards/internal/adapters/store"
	"github.com/okian/awards/internal/adapters/store/firestore"
	"github.com/okian/awards/internal/adapters/store/memory"
	app "github.com/okian/awards/internal/app"
	"github.com/okian/awards/internal/config"
	"github.com/okian/awards/internal/identity"
	"github.com/okian/awards/pkg/logger"
	"github.com/okian/awards/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// The service exports its own runtime gauges on a private registry.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "service failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	backend, fb, closeBackend, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeBackend()

	verifier, err := newVerifier(ctx, cfg, fb)
	if err != nil {
		return err
	}

	procs := rpc.New(cfg.FunctionsURL(),
		rpc.WithTimeout(cfg.RPCTimeout()),
		rpc.WithLogger(logger.Named("rpc")),
	)

	svc := app.New(backend, identity.ContextSource{},
		app.WithLogger(logger.Named("service")),
		app.WithProcedures(procs),
		app.WithEventPartition(cfg.EventPartition),
		app.WithMailboxSize(cfg.MailboxSize),
		app.WithVoteConfirmTimeout(cfg.VoteConfirmTimeout()),
	)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)

	mux := http.NewServeMux()
	apiServer := api.NewServer(svc, verifier,
		api.WithLogger(logger.Named("api")),
		api.WithOutboxSize(cfg.OutboxSize),
	)
	apiServer.Register(mux)

	// No server-wide read/write timeouts: websocket sessions are long lived
	// and manage their own deadlines.
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("backend", cfg.Backend),
			logger.String("auth_mode", cfg.AuthMode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not closed by Shutdown.
	apiServer.Gateway().Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// openBackend connects the configured document store. The firebase app is
// returned for the firestore backend so the verifier can share it.
func openBackend(ctx context.Context, cfg *config.Config, log logger.Logger) (store.Backend, *firebase.App, func(), error) {
	switch cfg.Backend {
	case config.BackendFirestore:
		fb, err := firestore.NewApp(ctx, cfg.ProjectID, cfg.CredentialsFile)
		if err != nil {
			return nil, nil, nil, err
		}
		b, err := firestore.Open(ctx, fb, logger.Named("firestore"))
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() {
			if err := b.Close(); err != nil {
				log.Warn(ctx, "closing firestore client", logger.Error(err))
			}
		}
		return b, fb, closeFn, nil

	default:
		s := memory.New(memory.WithLogger(logger.Named("memstore")))
		if cfg.FixturesFile != "" {
			n, err := s.LoadFixtures(cfg.FixturesFile)
			if err != nil {
				return nil, nil, nil, err
			}
			log.Info(ctx, "loaded fixtures", logger.String("file", cfg.FixturesFile), logger.Int("documents", n))
		}
		return s, nil, func() {}, nil
	}
}

func newVerifier(ctx context.Context, cfg *config.Config, fb *firebase.App) (identity.Verifier, error) {
	if cfg.AuthMode != config.AuthFirebase {
		return identity.InsecureVerifier{}, nil
	}
	if fb == nil {
		return nil, fmt.Errorf("%w: auth_mode firebase needs a firebase app", config.ErrInvalidConfig)
	}
	v, err := identity.NewFirebaseVerifier(ctx, fb)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
