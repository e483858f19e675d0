package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ibroh-tech/Omonat-bot/bot"
	"github.com/ibroh-tech/Omonat-bot/flow"
	"github.com/ibroh-tech/Omonat-bot/logging"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot",
		Long: `Run the Telegram bot until interrupted.

On startup every user with an unfinished survey this month is sent the
next step again, then long polling begins.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, err := opts.config()
	if err != nil {
		return err
	}
	if err := cfg.RequireBotToken(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	def, db, err := load(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("survey loaded",
		zap.Int("questions", def.Len()),
		zap.Int("regions", len(def.Regions)),
		zap.String("period", db.Period()),
	)

	b, err := bot.New(cfg, def, logger)
	if err != nil {
		return err
	}

	ctrl := flow.NewController(def, db, b, flow.Options{
		StoreTimeout:    cfg.StoreTimeout,
		AllowOutOfOrder: cfg.AllowOutOfOrder,
		Logger:          logger,
	})

	// The pass logs its own summary. Serving new updates is possible even
	// when it fails.
	if _, err := ctrl.Reconcile(ctx, flow.ReconcileOptions{
		Parallelism: cfg.ReconcileParallelism,
		UserTimeout: cfg.ReconcileTimeout,
	}); err != nil {
		logger.Error("reconciliation failed", zap.Error(err))
	}

	if err := b.Run(ctx, ctrl); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("bot stopped")
	return nil
}
