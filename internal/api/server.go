// Package api is the HTTP surface of the activity service.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/willwe-dev/activity/internal/gateway"
	"github.com/willwe-dev/activity/internal/logging"
	"github.com/willwe-dev/activity/internal/store"
)

// HealthChecker reports whether the upstream event source answers.
type HealthChecker interface {
	Health(ctx context.Context) error
}

type Server struct {
	e        *echo.Echo
	store    *store.Store
	gateway  *gateway.Gateway
	upstream HealthChecker
	log      zerolog.Logger
	now      func() time.Time
}

type Option func(*Server)

// WithUpstream adds the event source to the health report.
func WithUpstream(h HealthChecker) Option {
	return func(s *Server) { s.upstream = h }
}

// WithMetricsGatherer exposes g on /metrics.
func WithMetricsGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
	}
}

func New(st *store.Store, gw *gateway.Gateway, l zerolog.Logger, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{e: e, store: st, gateway: gw, log: logging.For(l, "api"), now: time.Now}

	e.Use(logging.Echo(l))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.GET("/health", s.health)
	e.GET("/activities", s.listActivities)
	e.GET("/activities/daily", s.dailyActivity)
	e.GET("/activities/total", s.totalActivity)
	e.GET("/activities/:id", s.getActivity)
	e.GET("/chat/messages", s.listChatMessages)
	e.POST("/chat/messages", s.createChatMessage)
	e.GET("/nodes/:id", s.getNode)
	e.GET("/nodes/:id/movements", s.listMovements)
	e.GET("/movements/:id", s.getMovement)
	e.GET("/movements/:id/signatures", s.listSignatures)
	e.GET("/membranes/:id", s.getMembrane)
	e.GET("/users/:address/preferences", s.getPreference)
	e.PUT("/users/:address/preferences", s.putPreference)

	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) Start(addr string) error {
	s.log.Info().Str("addr", addr).Msg("listening")
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}
