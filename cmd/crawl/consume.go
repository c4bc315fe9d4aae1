package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/willwe-dev/activity/internal/ingest"
)

func newConsumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Apply indexer events from Kafka until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if !e.cfg.KafkaEnabled() {
				return errors.New("WILLWE_KAFKA_BROKERS is required for consume")
			}
			k := e.cfg.Kafka
			reader := ingest.NewKafkaReader(k.Brokers, k.Topic, k.GroupID)
			c := ingest.NewConsumer(reader, ingest.NewDispatcher(e.store, e.log, e.metrics), e.log, e.metrics)
			defer c.Close()

			e.log.Info().Strs("brokers", k.Brokers).Str("topic", k.Topic).Msg("consuming")
			return c.Run(cmd.Context())
		},
	}
}
