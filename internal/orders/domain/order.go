package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is chosen at checkout and never changes afterwards.
type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentPrepaid        PaymentMethod = "prepaid"
)

// Valid reports whether the method is one the storefront accepts.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCashOnDelivery || m == PaymentPrepaid
}

// PaymentStatus captures the money side of an order.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// FulfillmentStatus is driven by administrative action only.
type FulfillmentStatus string

const (
	FulfillmentProcessing FulfillmentStatus = "processing"
	FulfillmentShipped    FulfillmentStatus = "shipped"
	FulfillmentDelivered  FulfillmentStatus = "delivered"
	FulfillmentCancelled  FulfillmentStatus = "cancelled"
)

var fulfillmentTransitions = map[FulfillmentStatus][]FulfillmentStatus{
	FulfillmentProcessing: {FulfillmentShipped, FulfillmentCancelled},
	FulfillmentShipped:    {FulfillmentDelivered, FulfillmentCancelled},
	FulfillmentDelivered:  {},
	FulfillmentCancelled:  {},
}

// LineItem is a cart line snapshotted at checkout. Later catalog price changes
// never reach it.
type LineItem struct {
	ProductRef   string          `json:"product_ref"`
	Name         string          `json:"name"`
	VariantLabel string          `json:"variant_label,omitempty"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int             `json:"quantity"`
}

// Subtotal returns unit price times quantity.
func (i LineItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i LineItem) validate() error {
	if strings.TrimSpace(i.ProductRef) == "" {
		return fmt.Errorf("%w: product_ref is required", ErrInvalidLineItem)
	}
	if i.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidLineItem)
	}
	if i.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: unit_price must not be negative", ErrInvalidLineItem)
	}
	if !fitsMoneyScale(i.UnitPrice) {
		return fmt.Errorf("%w: unit_price has more than %d decimal places", ErrInvalidLineItem, MoneyScale)
	}
	return nil
}

// MoneyScale is the number of decimal places amounts are stored with.
const MoneyScale = 2

// fitsMoneyScale reports whether d survives storage at MoneyScale unchanged.
func fitsMoneyScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyScale))
}

// DeliveryAddress is copied onto the order so later profile edits do not move
// a placed order.
type DeliveryAddress struct {
	District string `json:"district"`
	Village  string `json:"village,omitempty"`
	Street   string `json:"street,omitempty"`
}

// Validate checks the required address fields.
func (a DeliveryAddress) Validate() error {
	if strings.TrimSpace(a.District) == "" {
		return fmt.Errorf("%w: district is required", ErrInvalidDeliveryAddress)
	}
	return nil
}

// Order is the aggregate persisted by the order store. Transactions are
// embedded and append-only.
type Order struct {
	ID                    string            `json:"id"`
	CustomerID            string            `json:"customer_id"`
	Items                 []LineItem        `json:"items"`
	DeliveryFee           decimal.Decimal   `json:"delivery_fee"`
	Total                 decimal.Decimal   `json:"total"`
	Currency              string            `json:"currency"`
	PaymentMethod         PaymentMethod     `json:"payment_method"`
	PaymentStatus         PaymentStatus     `json:"payment_status"`
	PayerHandle           string            `json:"payer_handle,omitempty"`
	DeliveryAddress       DeliveryAddress   `json:"delivery_address"`
	FulfillmentStatus     FulfillmentStatus `json:"fulfillment_status"`
	Transactions          []Transaction     `json:"transactions"`
	SettledTransactionRef string            `json:"settled_transaction_ref,omitempty"`
	ProviderReference     string            `json:"provider_reference,omitempty"`
	Version               int64             `json:"-"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// NewOrderParams carries everything needed to open an order.
type NewOrderParams struct {
	ID              string
	CustomerID      string
	Items           []LineItem
	DeliveryFee     decimal.Decimal
	Currency        string
	PaymentMethod   PaymentMethod
	PayerHandle     string
	DeliveryAddress DeliveryAddress
}

// NewOrder snapshots the cart and computes the total once. Payment status
// starts as unpaid for cash on delivery and pending for prepaid orders.
func NewOrder(params NewOrderParams, now time.Time) (Order, error) {
	if strings.TrimSpace(params.CustomerID) == "" {
		return Order{}, ErrMissingCustomer
	}
	if len(params.Items) == 0 {
		return Order{}, ErrEmptyCart
	}
	if !params.PaymentMethod.Valid() {
		return Order{}, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, params.PaymentMethod)
	}
	if params.DeliveryFee.IsNegative() {
		return Order{}, ErrInvalidDeliveryFee
	}
	if !fitsMoneyScale(params.DeliveryFee) {
		return Order{}, fmt.Errorf("%w: more than %d decimal places", ErrInvalidDeliveryFee, MoneyScale)
	}
	if err := params.DeliveryAddress.Validate(); err != nil {
		return Order{}, err
	}

	items := make([]LineItem, len(params.Items))
	copy(items, params.Items)

	total := params.DeliveryFee
	for _, item := range items {
		if err := item.validate(); err != nil {
			return Order{}, err
		}
		total = total.Add(item.Subtotal())
	}

	status := PaymentUnpaid
	payer := ""
	if params.PaymentMethod == PaymentPrepaid {
		status = PaymentPending
		payer = params.PayerHandle
	}

	return Order{
		ID:                params.ID,
		CustomerID:        params.CustomerID,
		Items:             items,
		DeliveryFee:       params.DeliveryFee,
		Total:             total,
		Currency:          params.Currency,
		PaymentMethod:     params.PaymentMethod,
		PaymentStatus:     status,
		PayerHandle:       payer,
		DeliveryAddress:   params.DeliveryAddress,
		FulfillmentStatus: FulfillmentProcessing,
		Transactions:      []Transaction{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// Validate checks the structural and payment invariants of the aggregate.
func (o Order) Validate() error {
	if strings.TrimSpace(o.CustomerID) == "" {
		return ErrMissingCustomer
	}
	if len(o.Items) == 0 {
		return ErrEmptyCart
	}

	sum := o.DeliveryFee
	for _, item := range o.Items {
		sum = sum.Add(item.Subtotal())
	}
	if !sum.Equal(o.Total) {
		return fmt.Errorf("total %s does not match items %s", o.Total, sum)
	}

	return o.CheckPaymentInvariant()
}

// CheckPaymentInvariant verifies that the order is paid exactly when one of
// its transactions succeeded, and that cash orders carry no transactions.
func (o Order) CheckPaymentInvariant() error {
	if o.PaymentMethod == PaymentCashOnDelivery && len(o.Transactions) > 0 {
		return fmt.Errorf("%w: cash on delivery order has transactions", ErrPaymentInvariant)
	}

	successful := o.countTransactions(TransactionSuccessful)
	paid := o.PaymentStatus == PaymentPaid
	if paid != (successful == 1) {
		return fmt.Errorf("%w: status %s with %d successful transactions", ErrPaymentInvariant, o.PaymentStatus, successful)
	}
	if paid && o.SettledTransactionRef == "" {
		return fmt.Errorf("%w: paid order without settled transaction", ErrPaymentInvariant)
	}
	return nil
}

// Clone returns a copy that shares no slices with o.
func (o Order) Clone() Order {
	c := o
	c.Items = append([]LineItem(nil), o.Items...)
	c.Transactions = make([]Transaction, len(o.Transactions))
	for i, tx := range o.Transactions {
		if tx.ResolvedAt != nil {
			resolved := *tx.ResolvedAt
			tx.ResolvedAt = &resolved
		}
		c.Transactions[i] = tx
	}
	return c
}

// IsPaid reports whether the order has settled.
func (o Order) IsPaid() bool {
	return o.PaymentStatus == PaymentPaid
}

// LatestTransaction returns the most recent payment attempt.
func (o Order) LatestTransaction() (Transaction, bool) {
	if len(o.Transactions) == 0 {
		return Transaction{}, false
	}
	return o.Transactions[len(o.Transactions)-1], true
}

// Transaction looks up an attempt by external id.
func (o Order) Transaction(externalID string) (Transaction, bool) {
	if i := o.transactionIndex(externalID); i >= 0 {
		return o.Transactions[i], true
	}
	return Transaction{}, false
}

// NeedsStatusCheck reports whether the payment outcome is still outstanding
// on the latest attempt.
func (o Order) NeedsStatusCheck() bool {
	if o.PaymentMethod != PaymentPrepaid || o.IsPaid() {
		return false
	}
	latest, ok := o.LatestTransaction()
	return ok && latest.Status == TransactionPending
}

// StartAttempt appends a new pending transaction for the full order total.
func (o *Order) StartAttempt(externalID string, now time.Time) (Transaction, error) {
	if o.PaymentMethod != PaymentPrepaid {
		return Transaction{}, ErrNotPrepaid
	}
	if o.IsPaid() {
		return Transaction{}, ErrAlreadyPaid
	}
	if o.transactionIndex(externalID) >= 0 {
		return Transaction{}, ErrDuplicateExternalID
	}

	tx := Transaction{
		ExternalID:  externalID,
		Status:      TransactionPending,
		Amount:      o.Total,
		PayerHandle: o.PayerHandle,
		CreatedAt:   now,
	}
	o.Transactions = append(o.Transactions, tx)
	o.PaymentStatus = PaymentPending
	o.UpdatedAt = now
	return tx, nil
}

// UpdateFulfillment moves the fulfillment lifecycle forward.
func (o *Order) UpdateFulfillment(status FulfillmentStatus, now time.Time) error {
	if _, ok := fulfillmentTransitions[status]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidFulfillment, status)
	}
	if o.FulfillmentStatus == status {
		return nil
	}
	for _, next := range fulfillmentTransitions[o.FulfillmentStatus] {
		if next == status {
			o.FulfillmentStatus = status
			o.UpdatedAt = now
			return nil
		}
	}
	return fmt.Errorf("%w: %s to %s", ErrFulfillmentTransition, o.FulfillmentStatus, status)
}

func (o Order) transactionIndex(externalID string) int {
	for i, tx := range o.Transactions {
		if tx.ExternalID == externalID {
			return i
		}
	}
	return -1
}

func (o Order) countTransactions(status TransactionStatus) int {
	n := 0
	for _, tx := range o.Transactions {
		if tx.Status == status {
			n++
		}
	}
	return n
}

func (o Order) hasLiveSibling(externalID string) bool {
	for _, tx := range o.Transactions {
		if tx.ExternalID != externalID && tx.isLive() {
			return true
		}
	}
	return false
}
