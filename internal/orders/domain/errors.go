package domain

import "errors"

// Input errors. These are surfaced to the shopper and no order is created.
var (
	ErrMissingCustomer           = errors.New("customer_id is required")
	ErrMissingOrderID            = errors.New("order_id is required")
	ErrEmptyCart                 = errors.New("cart is empty")
	ErrInvalidLineItem           = errors.New("invalid line item")
	ErrInvalidDeliveryAddress    = errors.New("invalid delivery address")
	ErrInvalidPaymentMethod      = errors.New("invalid payment method")
	ErrInvalidPayerHandle        = errors.New("invalid payer handle")
	ErrInvalidDeliveryFee        = errors.New("invalid delivery fee")
	ErrCashOnDeliveryUnavailable = errors.New("cash on delivery is not available for this district")
)

// Payment state errors.
var (
	ErrNotPrepaid            = errors.New("order is not prepaid")
	ErrAlreadyPaid           = errors.New("order is already paid")
	ErrUnknownTransaction    = errors.New("unknown transaction")
	ErrDuplicateExternalID   = errors.New("external id already in use")
	ErrSettlementConflict    = errors.New("settlement conflict")
	ErrInvalidOutcome        = errors.New("outcome must be successful or failed")
	ErrPaymentInvariant      = errors.New("payment invariant violated")
	ErrInvalidFulfillment    = errors.New("invalid fulfillment status")
	ErrFulfillmentTransition = errors.New("fulfillment transition not allowed")
)

var inputErrors = []error{
	ErrMissingCustomer,
	ErrMissingOrderID,
	ErrEmptyCart,
	ErrInvalidLineItem,
	ErrInvalidDeliveryAddress,
	ErrInvalidPaymentMethod,
	ErrInvalidPayerHandle,
	ErrInvalidDeliveryFee,
	ErrCashOnDeliveryUnavailable,
	ErrInvalidFulfillment,
}

// IsInputError reports whether err was caused by invalid client input.
func IsInputError(err error) bool {
	for _, target := range inputErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsReconciliationNoise reports whether err is an expected provider outcome
// that is logged and dropped: an unknown external id, or an outcome that
// contradicts one already recorded.
func IsReconciliationNoise(err error) bool {
	return errors.Is(err, ErrUnknownTransaction) || errors.Is(err, ErrSettlementConflict)
}
