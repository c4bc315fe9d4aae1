package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/willwe-dev/activity/internal/config"
	"github.com/willwe-dev/activity/internal/logging"
	"github.com/willwe-dev/activity/internal/metrics"
	"github.com/willwe-dev/activity/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "crawl",
		Short:        "Ingestion jobs for the WillWe activity store",
		SilenceUsage: true,
	}
	root.AddCommand(newBackfillCmd(), newConsumeCmd(), newReplayCmd(), newGitHubCmd())
	return root
}

// env is the state shared by every job: configuration, logger and a migrated store.
type env struct {
	cfg     *config.Config
	log     zerolog.Logger
	store   *store.Store
	metrics *metrics.Metrics
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	l := logging.New(cfg.LogLevel, cfg.LogPretty)

	db, err := store.Open(cfg.DatabaseDSN, l)
	if err != nil {
		return nil, err
	}
	st := store.New(db)
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return &env{cfg: cfg, log: l, store: st, metrics: metrics.Nop()}, nil
}

func (e *env) Close() error {
	return e.store.Close()
}
