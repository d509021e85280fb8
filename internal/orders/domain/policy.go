package domain

import (
	"fmt"
	"strings"
)

// CheckoutPolicy holds the storefront rules that depend on deployment
// configuration rather than on the order itself.
type CheckoutPolicy struct {
	// PayerHandleLength is the exact number of digits in a subscriber number.
	PayerHandleLength int
	// PayerPrefixes lists the network prefixes accepted for prepaid orders.
	PayerPrefixes []string
	// CashOnDeliveryDistricts limits where cash on delivery is offered. Empty
	// means everywhere.
	CashOnDeliveryDistricts []string
}

// DefaultCheckoutPolicy matches the MTN Uganda numbering plan and the
// districts the storefront delivers to for cash.
func DefaultCheckoutPolicy() CheckoutPolicy {
	return CheckoutPolicy{
		PayerHandleLength:       10,
		PayerPrefixes:           []string{"077", "078", "076"},
		CashOnDeliveryDistricts: []string{"Kampala", "Wakiso"},
	}
}

// ValidatePayerHandle checks a mobile-money subscriber number.
func (p CheckoutPolicy) ValidatePayerHandle(handle string) error {
	if len(handle) != p.PayerHandleLength {
		return fmt.Errorf("%w: must be %d digits", ErrInvalidPayerHandle, p.PayerHandleLength)
	}
	for _, r := range handle {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: must be numeric", ErrInvalidPayerHandle)
		}
	}
	for _, prefix := range p.PayerPrefixes {
		if strings.HasPrefix(handle, prefix) {
			return nil
		}
	}
	return fmt.Errorf("%w: unsupported prefix %q", ErrInvalidPayerHandle, handle[:min(3, len(handle))])
}

// AllowsCashOnDelivery reports whether cash on delivery is offered in district.
func (p CheckoutPolicy) AllowsCashOnDelivery(district string) bool {
	if len(p.CashOnDeliveryDistricts) == 0 {
		return true
	}
	for _, d := range p.CashOnDeliveryDistricts {
		if strings.EqualFold(strings.TrimSpace(district), d) {
			return true
		}
	}
	return false
}

// ValidatePayment applies the method-specific checkout rules.
func (p CheckoutPolicy) ValidatePayment(method PaymentMethod, payerHandle string, address DeliveryAddress) error {
	switch method {
	case PaymentPrepaid:
		return p.ValidatePayerHandle(payerHandle)
	case PaymentCashOnDelivery:
		if !p.AllowsCashOnDelivery(address.District) {
			return fmt.Errorf("%w: %s", ErrCashOnDeliveryUnavailable, address.District)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, method)
	}
}
