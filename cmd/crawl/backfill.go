package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/willwe-dev/activity"
	"github.com/willwe-dev/activity/internal/eventsource"
	"github.com/willwe-dev/activity/internal/gateway"
	"github.com/willwe-dev/activity/internal/logging"
)

func newBackfillCmd() *cobra.Command {
	var (
		nodeID string
		user   string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Copy a subject's events from the event source into the store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			subject := activity.Subject{NodeID: nodeID, UserAddress: activity.NormalizeAddress(user)}
			if err := subject.Validate(); err != nil {
				return err
			}

			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if e.cfg.EventSourceURL == "" {
				return errors.New("WILLWE_EVENT_SOURCE_URL is required for backfill")
			}
			gw := gateway.New(e.store,
				gateway.WithSource(eventsource.New(e.cfg.EventSourceURL)),
				gateway.WithDefaultLimit(e.cfg.DefaultLimit),
				gateway.WithLogger(e.log),
				gateway.WithMetrics(e.metrics),
			)

			n, err := gw.Sync(cmd.Context(), subject, limit)
			if err != nil {
				return fmt.Errorf("backfill %s: %w", subject.Key(), err)
			}
			e.log.Info().Str(logging.Key, subject.Key()).Int("written", n).Msg("backfill complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&nodeID, "node", "", "node id")
	cmd.Flags().StringVar(&user, "user", "", "user address")
	cmd.Flags().IntVar(&limit, "limit", activity.MaxLimit, "maximum number of events to fetch")
	cmd.MarkFlagsOneRequired("node", "user")
	return cmd
}
