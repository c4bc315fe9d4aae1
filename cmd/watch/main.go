package main

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/willwe-dev/activity"
	"github.com/willwe-dev/activity/internal/config"
	"github.com/willwe-dev/activity/internal/logging"
	"github.com/willwe-dev/activity/internal/poller"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		nodeID     string
		user       string
		gatewayURL string
		interval   time.Duration
		limit      int
	)
	cmd := &cobra.Command{
		Use:          "watch",
		Short:        "Follow the activity feed of a node or user",
		Long:         "Polls the gateway and prints new activities as they arrive. Press Enter to refresh immediately.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			subject := activity.Subject{NodeID: nodeID, UserAddress: activity.NormalizeAddress(user)}
			if err := subject.Validate(); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			l := logging.New(cfg.LogLevel, cfg.LogPretty)
			if interval <= 0 {
				interval = cfg.PollInterval
			}

			r := newRenderer(cmd.OutOrStdout())
			client := poller.NewClient(gatewayURL, nil)
			p := poller.New(
				poller.Key(subject, cfg.NetworkID),
				client.Fetcher(subject, limit),
				poller.NewRegistry(),
				poller.WithInterval(interval),
				poller.OnUpdate(r.Render),
			)
			p.Start()
			defer p.Stop()

			l.Info().Str(logging.Key, subject.Key()).Str("gateway", gatewayURL).Dur("interval", interval).Msg("watching")

			go func() {
				sc := bufio.NewScanner(cmd.InOrStdin())
				for sc.Scan() {
					if err := p.Refresh(); err != nil {
						return
					}
				}
			}()

			<-cmd.Context().Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&nodeID, "node", "", "node id")
	cmd.Flags().StringVar(&user, "user", "", "user address")
	cmd.Flags().StringVar(&gatewayURL, "gateway", "http://localhost:3000", "base URL of the activity API")
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (default WILLWE_POLL_INTERVAL)")
	cmd.Flags().IntVar(&limit, "limit", activity.DefaultLimit, "number of activities to fetch")
	cmd.MarkFlagsOneRequired("node", "user")
	cmd.MarkFlagsMutuallyExclusive("node", "user")
	return cmd
}
