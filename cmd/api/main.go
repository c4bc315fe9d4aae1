package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/willwe-dev/activity/internal/api"
	"github.com/willwe-dev/activity/internal/config"
	"github.com/willwe-dev/activity/internal/eventsource"
	"github.com/willwe-dev/activity/internal/gateway"
	"github.com/willwe-dev/activity/internal/logging"
	"github.com/willwe-dev/activity/internal/metrics"
	"github.com/willwe-dev/activity/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := logging.New(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.DatabaseDSN, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	st := store.New(db)
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	gwOpts := []gateway.Option{
		gateway.WithDefaultLimit(cfg.DefaultLimit),
		gateway.WithLogger(logger),
		gateway.WithMetrics(m),
	}
	apiOpts := []api.Option{api.WithMetricsGatherer(reg)}
	if cfg.EventSourceURL != "" {
		src := eventsource.New(cfg.EventSourceURL)
		gwOpts = append(gwOpts, gateway.WithSource(src))
		apiOpts = append(apiOpts, api.WithUpstream(src))
	} else {
		logger.Warn().Msg("no event source configured, backfill disabled")
	}

	srv := api.New(st, gateway.New(st, gwOpts...), logger, apiOpts...)

	go func() {
		if err := srv.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown failed")
	}
}
