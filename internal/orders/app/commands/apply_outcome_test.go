package commands_test

import (
	"context"
	"testing"

	"github.com/dejobratic/storefront/internal/orders/adapters/memory"
	"github.com/dejobratic/storefront/internal/orders/app/commands"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callback(externalID string, status domain.TransactionStatus, ref string) commands.ApplyOutcomeCommand {
	return commands.ApplyOutcomeCommand{
		ExternalID:        externalID,
		Status:            status,
		ProviderReference: ref,
		Source:            commands.SourceCallback,
	}
}

func TestApplyOutcome(t *testing.T) {
	ctx := context.Background()

	t.Run("successful callback settles the order", func(t *testing.T) {
		f := newFixture(t, nil)
		order := placePrepaid(t, f)
		externalID := order.Transactions[0].ExternalID

		res, err := f.outcomes.Handle(ctx, callback(externalID, domain.TransactionSuccessful, "TX123"))
		require.NoError(t, err)

		assert.Equal(t, domain.OutcomeSettled, res.Result)
		assert.Equal(t, domain.PaymentPaid, res.Order.PaymentStatus)
		assert.Equal(t, externalID, res.Order.SettledTransactionRef)
		assert.Equal(t, "TX123", res.Order.ProviderReference)
		assert.Equal(t, []string{order.ID}, f.events.settled)

		stored, err := f.repo.GetByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentPaid, stored.PaymentStatus)
		assert.Equal(t, int64(2), stored.Version)
	})

	t.Run("replayed callback changes nothing and publishes once", func(t *testing.T) {
		f := newFixture(t, nil)
		order := placePrepaid(t, f)
		externalID := order.Transactions[0].ExternalID

		_, err := f.outcomes.Handle(ctx, callback(externalID, domain.TransactionSuccessful, "TX123"))
		require.NoError(t, err)
		res, err := f.outcomes.Handle(ctx, callback(externalID, domain.TransactionSuccessful, "TX123"))
		require.NoError(t, err)

		assert.False(t, res.Result.Changed())
		assert.Len(t, f.events.settled, 1)

		stored, err := f.repo.GetByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stored.Version)
	})

	t.Run("stale failure after settlement is ignored", func(t *testing.T) {
		f := newFixture(t, nil)
		order := placePrepaid(t, f)
		externalID := order.Transactions[0].ExternalID

		_, err := f.outcomes.Handle(ctx, callback(externalID, domain.TransactionSuccessful, "TX123"))
		require.NoError(t, err)
		res, err := f.outcomes.Handle(ctx, callback(externalID, domain.TransactionFailed, ""))
		require.NoError(t, err)

		assert.Equal(t, domain.OutcomeAlreadySettled, res.Result)
		assert.Equal(t, domain.PaymentPaid, res.Order.PaymentStatus)
		assert.Empty(t, f.events.failed)
	})

	t.Run("failure with no live sibling fails the order", func(t *testing.T) {
		f := newFixture(t, nil)
		order := placePrepaid(t, f)
		externalID := order.Transactions[0].ExternalID

		cmd := callback(externalID, domain.TransactionFailed, "")
		cmd.Reason = "PAYER_NOT_FOUND"
		res, err := f.outcomes.Handle(ctx, cmd)
		require.NoError(t, err)

		assert.Equal(t, domain.OutcomeOrderFailed, res.Result)
		assert.Equal(t, domain.PaymentFailed, res.Order.PaymentStatus)
		assert.Equal(t, []string{order.ID}, f.events.failed)
	})

	t.Run("unknown external id", func(t *testing.T) {
		f := newFixture(t, nil)

		_, err := f.outcomes.Handle(ctx, callback("nope", domain.TransactionSuccessful, "TX1"))
		assert.ErrorIs(t, err, domain.ErrUnknownTransaction)
	})

	t.Run("pending is not an outcome", func(t *testing.T) {
		f := newFixture(t, nil)

		_, err := f.outcomes.Handle(ctx, callback("ext-1", domain.TransactionPending, ""))
		assert.ErrorIs(t, err, domain.ErrInvalidOutcome)
	})

	t.Run("version conflict is retried on a fresh copy", func(t *testing.T) {
		repo := &conflictingRepository{Repository: memory.NewRepository()}
		f := newFixture(t, repo)
		order := placePrepaid(t, f)
		externalID := order.Transactions[0].ExternalID

		repo.conflicts = 2
		res, err := f.outcomes.Handle(ctx, callback(externalID, domain.TransactionSuccessful, "TX123"))
		require.NoError(t, err)

		assert.Equal(t, domain.OutcomeSettled, res.Result)
		assert.Equal(t, 3, repo.updates)
	})

	t.Run("gives up after repeated conflicts", func(t *testing.T) {
		repo := &conflictingRepository{Repository: memory.NewRepository()}
		f := newFixture(t, repo)
		order := placePrepaid(t, f)
		externalID := order.Transactions[0].ExternalID

		repo.conflicts = 100
		_, err := f.outcomes.Handle(ctx, callback(externalID, domain.TransactionSuccessful, "TX123"))

		assert.ErrorIs(t, err, ports.ErrVersionConflict)
		assert.Empty(t, f.events.settled)
	})
}
