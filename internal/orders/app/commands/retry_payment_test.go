package commands_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dejobratic/storefront/internal/orders/app/commands"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("retry after a gateway failure creates a second distinct attempt", func(t *testing.T) {
		f := newFixture(t, nil)
		calls := 0
		f.gateway.requestToPayFn = func(context.Context, ports.PaymentRequest) error {
			calls++
			if calls == 1 {
				return errors.New("timeout")
			}
			return nil
		}

		order, err := f.place.Handle(ctx, checkoutCommand(domain.PaymentPrepaid))
		require.ErrorIs(t, err, ports.ErrGatewayUnavailable)
		require.Equal(t, domain.PaymentFailed, order.PaymentStatus)

		res, err := f.retry.Handle(ctx, commands.RetryPaymentCommand{OrderID: order.ID})
		require.NoError(t, err)

		require.NotNil(t, res.Transaction)
		require.Len(t, res.Order.Transactions, 2)
		first, second := res.Order.Transactions[0], res.Order.Transactions[1]
		assert.NotEqual(t, first.ExternalID, second.ExternalID)
		assert.Equal(t, domain.TransactionFailed, first.Status)
		assert.Equal(t, domain.TransactionPending, second.Status)
		assert.Equal(t, second.ExternalID, res.Transaction.ExternalID)
		assert.Equal(t, domain.PaymentPending, res.Order.PaymentStatus)
		assert.Equal(t, []string{second.ExternalID}, f.recheck.ids)
	})

	t.Run("retry on a paid order sends nothing", func(t *testing.T) {
		f := newFixture(t, nil)
		order := placePrepaid(t, f)
		_, err := f.outcomes.Handle(ctx, callback(order.Transactions[0].ExternalID, domain.TransactionSuccessful, "TX1"))
		require.NoError(t, err)

		res, err := f.retry.Handle(ctx, commands.RetryPaymentCommand{OrderID: order.ID})
		require.NoError(t, err)

		assert.Nil(t, res.Transaction)
		assert.Equal(t, domain.PaymentPaid, res.Order.PaymentStatus)
		assert.Equal(t, 1, f.gateway.requestCount())
	})

	t.Run("cash on delivery orders cannot be retried", func(t *testing.T) {
		f := newFixture(t, nil)
		order, err := f.place.Handle(ctx, checkoutCommand(domain.PaymentCashOnDelivery))
		require.NoError(t, err)

		_, err = f.retry.Handle(ctx, commands.RetryPaymentCommand{OrderID: order.ID})
		assert.ErrorIs(t, err, domain.ErrNotPrepaid)
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newFixture(t, nil)

		_, err := f.retry.Handle(ctx, commands.RetryPaymentCommand{OrderID: "missing"})
		assert.ErrorIs(t, err, ports.ErrNotFound)
	})

	t.Run("missing order id", func(t *testing.T) {
		f := newFixture(t, nil)

		_, err := f.retry.Handle(ctx, commands.RetryPaymentCommand{})
		assert.ErrorIs(t, err, domain.ErrMissingOrderID)
	})

	t.Run("retry whose request is rejected reports the failed attempt", func(t *testing.T) {
		f := newFixture(t, nil)
		order := placePrepaid(t, f)
		f.gateway.requestToPayFn = func(context.Context, ports.PaymentRequest) error {
			return errors.New("503")
		}

		res, err := f.retry.Handle(ctx, commands.RetryPaymentCommand{OrderID: order.ID})

		require.ErrorIs(t, err, ports.ErrGatewayUnavailable)
		require.NotNil(t, res.Transaction)
		assert.Equal(t, domain.TransactionFailed, res.Transaction.Status)
		// The first attempt is still in flight.
		assert.Equal(t, domain.PaymentPending, res.Order.PaymentStatus)
	})
}
