package serve

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/sig-0/fxcache/cache"
	"github.com/sig-0/fxcache/janitor"
	"github.com/sig-0/fxcache/metrics"
	"github.com/sig-0/fxcache/rates"
	"github.com/sig-0/fxcache/router"
	"github.com/sig-0/fxcache/server"
	"github.com/sig-0/fxcache/server/config"
	"github.com/sig-0/fxcache/session"
	"github.com/sig-0/fxcache/storage"
)

// run wires the fxcache services over the given storage,
// and runs them until ctx is done or a signal is received [BLOCKING]
func run(
	ctx context.Context,
	cfg *config.Config,
	store storage.Storage,
	logger *slog.Logger,
) error {
	if err := config.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration, %w", err)
	}

	durations, err := cfg.Durations()
	if err != nil {
		return err
	}

	defaults, err := cfg.Session.State()
	if err != nil {
		return err
	}

	// Set up the rate sources
	registry, err := defaultProviders(cfg.Providers, durations.ProviderTimeout, logger)
	if err != nil {
		return fmt.Errorf("unable to register providers, %w", err)
	}

	// Set up the metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Create the rate service and the session, and restore their state
	rateService := rates.New(
		cache.NewStore(),
		registry,
		store,
		rates.WithLogger(logger),
		rates.WithTTL(durations.RateTTL),
		rates.WithMetrics(metrics.New(reg)),
	)

	sess := session.New(
		store,
		session.WithLogger(logger),
		session.WithDefaults(defaults),
	)

	rateService.Load(ctx)
	sess.Load(ctx)

	if source := sess.State().Source; source != "" {
		if _, err := registry.Get(source); err != nil {
			logger.Warn(
				"active rate source is not available",
				"source", source.String(),
				"available", fmt.Sprint(registry.Sources()),
			)
		}
	}

	msgRouter := router.New(rateService, sess, router.WithLogger(logger))

	// Create the maintenance service
	j := janitor.New(janitor.WithLogger(logger))

	if err := j.Register(janitor.PruneJob(rateService, durations.PruneInterval, logger)); err != nil {
		return fmt.Errorf("unable to register prune job, %w", err)
	}

	if err := j.Register(janitor.HeartbeatJob(durations.HeartbeatInterval, logger)); err != nil {
		return fmt.Errorf("unable to register heartbeat job, %w", err)
	}

	// Create the server instance
	s, err := server.New(
		msgRouter,
		server.WithLogger(logger),
		server.WithConfig(cfg),
		server.WithMetrics(reg),
	)
	if err != nil {
		return fmt.Errorf("unable to create server, %w", err)
	}

	runCtx, cancelFn := signal.NotifyContext(
		ctx,
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer cancelFn()

	group, gCtx := errgroup.WithContext(runCtx)

	// Start the HTTP server
	group.Go(func() error {
		return s.Serve(gCtx)
	})

	// Start the maintenance service
	group.Go(func() error {
		return j.Start(gCtx)
	})

	// Drain the in-flight messages on shutdown
	group.Go(func() error {
		<-gCtx.Done()

		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*30)
		defer cancel()

		return msgRouter.Close(closeCtx)
	})

	return group.Wait()
}
