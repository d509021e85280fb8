package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Poll stale pending payments once and purge expired idempotency keys",
		Long: `Run a single reconciliation pass and exit.

Every payment attempt still pending after CHECKOUT_SWEEP_MIN_AGE is polled
with the provider. Attempts the provider still reports as pending are left
alone. Checkout responses older than CHECKOUT_IDEMPOTENCY_TTL are deleted;
a TTL of zero keeps them forever.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			c, cleanup, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := c.sweeper().SweepOnce(ctx)
			if err != nil {
				return fmt.Errorf("sweep pending payments: %w", err)
			}

			var purged int64
			if cutoff, ok := purgeCutoff(time.Now(), c.cfg.Checkout.IdempotencyTTL); ok {
				purged, err = c.idem.Purge(ctx, cutoff)
				if err != nil {
					return fmt.Errorf("purge idempotency keys: %w", err)
				}
			}

			cmd.Printf("checked %d pending payment(s), %d failed to poll, purged %d idempotency key(s)\n",
				stats.Checked, stats.Failed, purged)
			return nil
		},
	}
}

// purgeCutoff returns the creation time before which idempotency keys have
// expired. A non-positive ttl never expires keys, so there is nothing to purge.
func purgeCutoff(now time.Time, ttl time.Duration) (time.Time, bool) {
	if ttl <= 0 {
		return time.Time{}, false
	}
	return now.Add(-ttl), true
}
