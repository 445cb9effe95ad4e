package main

import (
	"fmt"

	"github.com/DanielPopoola/marketplace-escrow/internal/adapters/provider"
	"github.com/DanielPopoola/marketplace-escrow/internal/adapters/ratelimit"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/service"
	"github.com/DanielPopoola/marketplace-escrow/internal/worker"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func reconcileCmd(a *app) *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation sweep over stuck payment attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			redisClient := redis.NewClient(a.cfg.Redis.RedisOptions())
			defer redisClient.Close()

			escrows := service.NewEscrowService(a.repo, a.logger)
			intents := service.NewPaymentIntentService(
				a.repo,
				a.directory,
				provider.NewResolver(a.cfg.Providers, a.cfg.Retry, a.cfg.Payments.ProviderTimeout, a.logger),
				ratelimit.NewRedisLimiter(redisClient, a.cfg.RateLimit, a.logger),
				service.NewFeatureGate(a.directory, a.cfg.Features, a.logger),
				escrows,
				a.cfg.Payments,
				a.logger,
			)

			workerCfg := a.cfg.Worker
			if batchSize > 0 {
				workerCfg.BatchSize = batchSize
			}
			result := worker.NewReconciler(a.repo, intents, workerCfg, a.logger).RunOnce(cmd.Context())

			fmt.Fprintf(cmd.OutOrStdout(), "reconciled=%d abandoned=%d failed=%d\n",
				result.Reconciled, result.Abandoned, result.Failed)
			if result.Failed > 0 {
				return fmt.Errorf("%d attempts could not be reconciled, see logs", result.Failed)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&batchSize, "batch-size", "n", 0, "Maximum attempts per recovery point (defaults to worker.batch_size)")

	return cmd
}
