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

	"github.com/joyautomation/mantle/internal/alarm"
	"github.com/joyautomation/mantle/internal/cascade"
	"github.com/joyautomation/mantle/internal/config"
	"github.com/joyautomation/mantle/internal/eventbus"
	"github.com/joyautomation/mantle/internal/hidden"
	"github.com/joyautomation/mantle/internal/hotcache"
	"github.com/joyautomation/mantle/internal/metrics"
	"github.com/joyautomation/mantle/internal/mqttclient"
	"github.com/joyautomation/mantle/internal/storage"
	"github.com/joyautomation/mantle/internal/topology"
)

// Server is the HTTP query/mutation/subscription surface. The topology,
// history, hidden-item, alarm and command handlers together cover every
// operation the delegated GraphQL transport needs to call into.
type Server struct {
	http   *http.Server
	log    zerolog.Logger
	health *HealthHandler
}

type ServerOptions struct {
	Config  *config.Config
	Store   *storage.Store
	MQTT    *mqttclient.Client
	Hot     *hotcache.Cache // nil when the hot cache is not configured
	Host    *topology.Host
	Hidden  *hidden.Store
	Cascade *cascade.Engine
	Alarms  *alarm.Engine
	Bus     *eventbus.Bus
	Writer  MetricWriter // the ingress pipeline's command write path
	Ingest  metrics.IngestStats

	Version   string
	StartTime time.Time
	Log       zerolog.Logger
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

	// Unauthenticated endpoints
	health := NewHealthHandler(opts.Store, opts.MQTT, opts.Hot, opts.Alarms, opts.Bus, opts.Version, opts.StartTime)
	r.Get("/api/v1/health", health.ServeHTTP)

	if opts.Config.MetricsEnabled {
		collector := metrics.NewCollector(opts.Store.Pool, opts.Ingest, opts.Alarms, opts.Bus)
		prometheus.MustRegister(collector)
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
	}

	topo := NewTopologyHandler(opts.Host, opts.Hidden)
	history := NewHistoryHandler(opts.Store)
	hiddenH := NewHiddenHandler(opts.Hidden, opts.Cascade)
	alarms := NewAlarmsHandler(opts.Alarms)
	command := NewCommandHandler(opts.Writer)
	events := NewEventsHandler(opts.Bus)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(MaxBodySize(1 << 20))
		if opts.Config.MetricsEnabled {
			r.Use(metrics.InstrumentHandler)
		}
		r.Use(BearerAuth(opts.Config.AuthToken, opts.Config.WriteToken))
		r.Use(WriteAuth(opts.Config.WriteToken))

		r.Route("/api/v1", func(r chi.Router) {
			// SSE stream stays outside the response-timeout group so the
			// connection can live indefinitely.
			events.Routes(r)

			r.Group(func(r chi.Router) {
				r.Use(ResponseTimeout(opts.Config.WriteTimeout))
				topo.Routes(r)
				history.Routes(r)
				hiddenH.Routes(r)
				alarms.Routes(r)
				command.Routes(r)
			})
		})
	})

	srv := &http.Server{
		Addr:        opts.Config.HTTPAddr,
		Handler:     r,
		ReadTimeout: opts.Config.ReadTimeout,
		IdleTimeout: opts.Config.IdleTimeout,
		// WriteTimeout stays 0 to allow long-lived SSE connections;
		// non-streaming handlers are bounded by ResponseTimeout above.
		WriteTimeout: 0,
	}

	return &Server{
		http:   srv,
		log:    opts.Log,
		health: health,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
