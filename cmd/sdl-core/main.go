// Command sdl-core runs the Application Manager as a standalone
// process: it wires the request/state/resumption controllers together
// behind the embedded MQTT message-router simulator (the only transport
// this repository carries end to end; a deployment with a real mobile/HMI
// transport swaps internal/collab/simulator's Router for its own
// collab.MessageRouter) and exposes the admin/introspection HTTP surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/smartdevicelink/sdl-core-go/internal/api"
	"github.com/smartdevicelink/sdl-core-go/internal/appmgr"
	"github.com/smartdevicelink/sdl-core-go/internal/collab/simulator"
	"github.com/smartdevicelink/sdl-core-go/internal/config"
	"github.com/smartdevicelink/sdl-core-go/internal/requestctl"
	"github.com/smartdevicelink/sdl-core-go/internal/resumectl"
	"github.com/smartdevicelink/sdl-core-go/internal/resumectl/store"
	"github.com/smartdevicelink/sdl-core-go/internal/resumectl/store/jsonfile"
	"github.com/smartdevicelink/sdl-core-go/internal/resumectl/store/postgres"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	var overrides config.Overrides
	var showVersion bool
	flag.StringVar(&overrides.EnvFile, "env-file", "", "Path to .env file (default: .env)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "Admin HTTP listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s (commit=%s, built=%s)\n", version, commit, buildTime)
		os.Exit(0)
	}

	startTime := time.Now()

	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("invalid config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("built", buildTime).
		Msg("sdl-core starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Resumption storage backend
	resumeStorage, closeStorage, err := openResumptionStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open resumption storage")
	}
	defer closeStorage()

	// Request controller
	requestCtl := requestctl.NewController(requestctl.Options{
		ThreadPoolSize:   cfg.ThreadPoolSize,
		DefaultTimeoutMS: cfg.DefaultTimeoutMS,
		Logger:           log.With().Str("component", "requestctl").Logger(),
		RateLimit: requestctl.RateLimitConfig{
			PendingRequestsAmount:      cfg.PendingRequestsAmount,
			AppTimeScale:               cfg.AppTimeScale,
			AppTimeScaleMaxRequests:    cfg.AppTimeScaleMaxRequests,
			AppHMILevelNoneTimeScale:   cfg.AppHMILevelNoneTimeScale,
			AppHMILevelNoneMaxRequests: cfg.AppHMILevelNoneMaxRequests,
		},
	})
	requestCtl.Start(ctx)
	defer requestCtl.Stop()

	// Message-router simulator: embedded broker + paho client, the
	// only collab.MessageRouter implementation this repository carries.
	simLog := log.With().Str("component", "simulator").Logger()
	harness, err := simulator.New(simulator.Options{
		BrokerAddr: cfg.MQTTBrokerAddr,
		Log:        simLog,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start message-router simulator")
	}
	defer harness.Stop()
	harness.SetMobileFactory(&simulator.EchoMobileFactory{Router: harness.Router, Log: simLog})

	// Wrap the simulator's router so every HMI-status notification also
	// reaches the admin surface's live event stream (GET /events).
	eventsHub := api.NewHub(log.With().Str("component", "events-hub").Logger())
	broadcastRouter := api.NewBroadcastingRouter(harness.Router, eventsHub)

	mgr := appmgr.New(requestCtl, nil, broadcastRouter, nil, log.With().Str("component", "appmgr").Logger())
	harness.SetManager(mgr)
	harness.Router.SetAppStore(mgr)
	broadcastRouter.SetAppStore(mgr)
	if err := harness.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start message-router simulator subscriptions")
	}

	// Resumption controller
	resumeCtl := resumectl.NewController(resumeStorage, resumectl.Options{
		SaveInterval:    cfg.AppResumptionSaveTimeout,
		ResumingTimeout: cfg.AppResumingTimeout,
		DelayBeforeIgn:  cfg.ResumptionDelayBeforeIgn,
		DelayAfterIgn:   cfg.ResumptionDelayAfterIgn,
		HashStringSize:  cfg.HashStringSize,
		Logger:          log.With().Str("component", "resumectl").Logger(),
	})
	resumeCtl.Start(ctx, mgr)
	defer resumeCtl.Stop(context.Background(), mgr)
	mgr.SetResumeController(resumeCtl)

	// Admin/introspection HTTP surface
	srv := api.NewServer(api.ServerOptions{
		Config:    cfg,
		Manager:   mgr,
		ResumeCtl: resumeCtl,
		Version:   fmt.Sprintf("%s (commit=%s, built=%s)", version, commit, buildTime),
		StartTime: startTime,
		Log:       log.With().Str("component", "http").Logger(),
		Events:    eventsHub,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	log.Info().
		Str("listen", cfg.HTTPAddr).
		Str("mqtt_broker", cfg.MQTTBrokerAddr).
		Dur("startup_ms", time.Since(startTime)).
		Msg("sdl-core ready")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("sdl-core stopped")
}

// openResumptionStorage picks jsonfile or postgres per config, starting
// an embedded Postgres instance first if configured to do so.
func openResumptionStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Storage, func(), error) {
	if !cfg.UseDBForResumption {
		s, err := jsonfile.Open(cfg.ResumptionJSONPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open json resumption store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	}

	databaseURL := cfg.DatabaseURL
	var embedded *postgres.EmbeddedServer
	if cfg.EmbeddedPostgres {
		embedded = postgres.NewEmbeddedServer(postgres.EmbeddedConfig{DataPath: "./resumption-pgdata"})
		if err := embedded.Start(); err != nil {
			return nil, nil, fmt.Errorf("start embedded postgres: %w", err)
		}
		databaseURL = postgres.DatabaseURL(0)
		log.Info().Msg("embedded postgres started for resumption storage")
	}

	s, err := postgres.Open(ctx, databaseURL, log.With().Str("component", "resumectl-store").Logger())
	if err != nil {
		if embedded != nil {
			_ = embedded.Stop()
		}
		return nil, nil, fmt.Errorf("open postgres resumption store: %w", err)
	}

	return s, func() {
		_ = s.Close()
		if embedded != nil {
			_ = embedded.Stop()
		}
	}, nil
}
