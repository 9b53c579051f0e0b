package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/smartdevicelink/sdl-core-go/internal/appmgr"
	"github.com/smartdevicelink/sdl-core-go/internal/config"
	"github.com/smartdevicelink/sdl-core-go/internal/metrics"
	"github.com/smartdevicelink/sdl-core-go/internal/resumectl"
)

// Server is the admin/observability HTTP surface of SPEC_FULL.md's
// AMBIENT STACK section: read-only introspection over the
// Application Manager, never a transport for mobile/HMI traffic.
type Server struct {
	http   *http.Server
	log    zerolog.Logger
	health *HealthHandler
	Events *Hub
}

type ServerOptions struct {
	Config    *config.Config
	Manager   *appmgr.Manager
	ResumeCtl *resumectl.Controller
	Version   string
	StartTime time.Time
	Log       zerolog.Logger

	// Events, if set, is the Hub that Manager's router was wrapped with
	// via NewBroadcastingRouter before Manager was constructed, so /events
	// serves the same Hub that is actually receiving notifications.
	// NewServer builds its own, disconnected Hub when left nil.
	Events *Hub
}

func NewServer(opts ServerOptions) *Server {
	r := chi.NewRouter()

	var corsOrigins []string
	if opts.Config.CORSOrigins != "" {
		for _, o := range strings.Split(opts.Config.CORSOrigins, ",") {
			if s := strings.TrimSpace(o); s != "" {
				corsOrigins = append(corsOrigins, s)
			}
		}
	}

	r.Use(RequestID)
	r.Use(CORSWithOrigins(corsOrigins))
	r.Use(RateLimiter(opts.Config.RateLimitRPS, opts.Config.RateLimitBurst))
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))

	health := NewHealthHandler(opts.ResumeCtl, opts.Version, opts.StartTime)
	r.Get("/api/v1/health", health.ServeHTTP)

	hub := opts.Events
	if hub == nil {
		hub = NewHub(opts.Log.With().Str("component", "events-hub").Logger())
	}
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(opts.Config.AuthToken))
		r.Get("/events", hub.ServeHTTP)
	})

	if opts.Config.MetricsEnabled {
		collector := metrics.NewCollector(opts.Manager, opts.ResumeCtl)
		prometheus.MustRegister(collector)
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(MaxBodySize(1 << 20))
		if opts.Config.MetricsEnabled {
			r.Use(metrics.InstrumentHandler)
		}
		r.Use(BearerAuth(opts.Config.AuthToken))
		r.Use(ResponseTimeout(opts.Config.WriteTimeout))

		r.Route("/api/v1", func(r chi.Router) {
			NewAppsHandler(opts.Manager).Routes(r)
			NewRequestsHandler(opts.Manager.RequestCtl).Routes(r)
		})
	})

	srv := &http.Server{
		Addr:         opts.Config.HTTPAddr,
		Handler:      r,
		ReadTimeout:  opts.Config.ReadTimeout,
		IdleTimeout:  opts.Config.IdleTimeout,
		WriteTimeout: 0,
	}

	return &Server{http: srv, log: opts.Log, health: health, Events: hub}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("admin http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("admin http server shutting down")
	return s.http.Shutdown(ctx)
}
