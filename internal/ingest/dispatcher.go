package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/willwe-dev/activity"
	"github.com/willwe-dev/activity/internal/logging"
	"github.com/willwe-dev/activity/internal/metrics"
	"github.com/willwe-dev/activity/internal/store"
)

type Dispatcher struct {
	store   *store.Store
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(s *store.Store, l zerolog.Logger, m *metrics.Metrics) *Dispatcher {
	if m == nil {
		m = metrics.Nop()
	}
	return &Dispatcher{store: s, log: logging.For(l, "ingest"), metrics: m}
}

// Handle records ev and applies its aggregate changes in one transaction.
// A replayed event finds its activity row already present and changes
// nothing; Handle then reports false.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) (bool, error) {
	if err := ev.Validate(); err != nil {
		return false, err
	}
	ts, err := ev.Timestamp()
	if err != nil {
		return false, fmt.Errorf("%s %s: %w", ev.Name, ev.ID(), err)
	}
	data, err := activity.EncodeData(ev.Payload())
	if err != nil {
		return false, err
	}

	k := kindOf(ev.Name)
	a := &activity.Activity{
		ID:        ev.ID(),
		EventType: ev.Name,
		Data:      data,
		Timestamp: ts,
	}
	if node := ev.Arg(k.node...); node != "" {
		a.NodeID = &node
	}
	if actor := activity.NormalizeAddress(ev.Arg(k.actor...)); actor != "" {
		a.UserAddress = &actor
	}

	var inserted bool
	err = d.store.Transaction(ctx, func(tx *store.Store) error {
		var err error
		if inserted, err = tx.WriteActivity(ctx, a); err != nil || !inserted {
			return err
		}
		if a.UserAddress != nil {
			if err := tx.EnsureUser(ctx, *a.UserAddress); err != nil {
				return err
			}
		}
		if a.NodeID != nil {
			if err := tx.EnsureNode(ctx, *a.NodeID, nil, a.Timestamp); err != nil {
				return err
			}
		}
		if k.apply != nil {
			return k.apply(ctx, tx, ev, a)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	d.metrics.Written(ev.Name, inserted)
	if !inserted {
		d.log.Debug().Str(logging.ID, a.ID).Str(logging.EventType, ev.Name).Msg("event already applied")
	}
	return inserted, nil
}

// HandleAll applies events in order, logging and skipping the ones that fail.
// It returns how many were newly applied.
func (d *Dispatcher) HandleAll(ctx context.Context, events []Event) int {
	applied := 0
	for _, ev := range events {
		inserted, err := d.Handle(ctx, ev)
		if err != nil {
			d.metrics.IngestErrors.WithLabelValues("handle").Inc()
			d.log.Error().Err(err).Str(logging.EventType, ev.Name).Str(logging.ID, ev.ID()).Msg("failed to apply event")
			continue
		}
		if inserted {
			applied++
		}
	}
	return applied
}
