// Package gateway serves activity feeds from the local store and fills cold
// feeds from the upstream event source.
package gateway

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/willwe-dev/activity"
	"github.com/willwe-dev/activity/internal/logging"
	"github.com/willwe-dev/activity/internal/metrics"
	"github.com/willwe-dev/activity/internal/store"
)

// Source is the upstream event source queried on a cache miss.
type Source interface {
	Activities(ctx context.Context, subject activity.Subject, limit int) ([]map[string]any, error)
}

type Gateway struct {
	store        *store.Store
	source       Source
	defaultLimit int
	log          zerolog.Logger
	metrics      *metrics.Metrics
}

type Option func(*Gateway)

// WithSource enables write-through backfill from src.
func WithSource(src Source) Option {
	return func(g *Gateway) { g.source = src }
}

func WithDefaultLimit(n int) Option {
	return func(g *Gateway) { g.defaultLimit = activity.ClampLimit(n) }
}

func WithLogger(l zerolog.Logger) Option {
	return func(g *Gateway) { g.log = logging.For(l, "gateway") }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

func New(s *store.Store, opts ...Option) *Gateway {
	g := &Gateway{
		store:        s,
		defaultLimit: activity.DefaultLimit,
		log:          zerolog.Nop(),
		metrics:      metrics.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) limit(n int) int {
	if n <= 0 {
		return g.defaultLimit
	}
	return activity.ClampLimit(n)
}

// GetActivities returns the subject's newest activities. An empty local
// result triggers one fetch from the source; a failing source yields the
// empty result instead of an error.
func (g *Gateway) GetActivities(ctx context.Context, subject activity.Subject, limit int) ([]activity.Record, error) {
	if err := subject.Validate(); err != nil {
		return nil, err
	}
	limit = g.limit(limit)

	acts, err := g.store.ListActivities(ctx, subject, limit)
	if err != nil {
		return nil, err
	}
	if len(acts) > 0 || g.source == nil {
		return activity.Records(acts), nil
	}

	written, err := g.Sync(ctx, subject, limit)
	if err != nil {
		g.log.Warn().Err(err).Str(logging.Key, subject.Key()).Msg("backfill failed, serving local result")
		return activity.Records(acts), nil
	}
	if written == 0 {
		return activity.Records(acts), nil
	}

	acts, err = g.store.ListActivities(ctx, subject, limit)
	if err != nil {
		return nil, err
	}
	return activity.Records(acts), nil
}

// Sync pulls the subject's events from the source and writes them to the
// store. Events that cannot be normalized or stored are logged and skipped.
// It returns the number of events offered to the store.
func (g *Gateway) Sync(ctx context.Context, subject activity.Subject, limit int) (int, error) {
	if err := subject.Validate(); err != nil {
		return 0, err
	}
	if g.source == nil {
		return 0, nil
	}

	events, err := g.source.Activities(ctx, subject, g.limit(limit))
	if err != nil {
		g.metrics.Backfills.WithLabelValues(metrics.Failed).Inc()
		return 0, err
	}
	g.metrics.Backfills.WithLabelValues(metrics.OK).Inc()

	written := 0
	for i, raw := range events {
		a, err := activity.Normalize(raw)
		if err != nil {
			g.metrics.IngestErrors.WithLabelValues("normalize").Inc()
			g.log.Warn().Err(err).Str(logging.Key, subject.Key()).Int("index", i).Msg("skipping malformed event")
			continue
		}
		fillSubject(a, subject)

		inserted, err := g.store.WriteActivity(ctx, a)
		if err != nil {
			g.metrics.IngestErrors.WithLabelValues("write").Inc()
			g.log.Error().Err(err).Str(logging.ID, a.ID).Msg("failed to store event")
			continue
		}
		g.metrics.Written(a.EventType, inserted)
		written++
	}

	g.log.Debug().Str(logging.Key, subject.Key()).Int("fetched", len(events)).Int("written", written).Msg("backfill done")
	return written, nil
}

// fillSubject attributes a fetched event to the subject it was fetched for
// when the source left that field out.
func fillSubject(a *activity.Activity, subject activity.Subject) {
	if subject.NodeID != "" && a.NodeID == nil {
		id := subject.NodeID
		a.NodeID = &id
	}
	if subject.NodeID == "" && subject.UserAddress != "" && a.UserAddress == nil {
		addr := activity.NormalizeAddress(subject.UserAddress)
		a.UserAddress = &addr
	}
}
