package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dejobratic/storefront/internal/momo"
	"github.com/dejobratic/storefront/internal/orders/app"
	"github.com/dejobratic/storefront/internal/orders/app/commands"
	"github.com/dejobratic/storefront/internal/orders/app/queries"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// Checkout result views the storefront renders.
const (
	viewPaymentPending = "payment_pending"
	viewSuccess        = "success"
)

// Handler exposes HTTP endpoints for order operations.
type Handler struct {
	service *app.Service
	logger  *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(service *app.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register binds the order handlers to the provided router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/checkout", h.checkout)
	r.Get("/v1/orders", h.listOrders)
	r.Get("/v1/orders/{id}", h.getOrder)
	r.Post("/v1/orders/{id}/retry-payment", h.retryPayment)
	r.Post("/v1/orders/{id}/fulfillment", h.updateFulfillment)
	r.Post("/payment-callback", h.paymentCallback)
}

type checkoutRequest struct {
	CustomerID      string                 `json:"customer_id"`
	Items           []domain.LineItem      `json:"items"`
	DeliveryAddress domain.DeliveryAddress `json:"delivery_address"`
	DeliveryFee     decimal.Decimal        `json:"delivery_fee"`
	PaymentMethod   string                 `json:"payment_method"`
	PayerHandle     string                 `json:"payer_handle"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))

	if idemKey != "" {
		reserved, err := h.service.ReserveIdempotencyKey(ctx, idemKey)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !reserved {
			h.replayCheckout(w, r, idemKey)
			return
		}
	}

	// release frees the key when the checkout ends without a response worth
	// replaying, so the shopper can correct the form and submit again.
	release := func() {
		if idemKey == "" {
			return
		}
		if err := h.service.ReleaseIdempotencyKey(ctx, idemKey); err != nil {
			h.logger.WarnContext(ctx, "failed to release idempotency key", "error", err)
		}
	}

	var payload checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		release()
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	order, err := h.service.PlaceOrder(ctx, commands.PlaceOrderCommand{
		CustomerID:      payload.CustomerID,
		Items:           payload.Items,
		DeliveryFee:     payload.DeliveryFee,
		DeliveryAddress: payload.DeliveryAddress,
		PaymentMethod:   domain.PaymentMethod(payload.PaymentMethod),
		PayerHandle:     payload.PayerHandle,
	})

	var status int
	var response map[string]any
	switch {
	case err == nil:
		status = http.StatusCreated
		response = map[string]any{"order": order, "view": viewFor(order)}
	case errors.Is(err, ports.ErrGatewayUnavailable) && order != nil:
		status = http.StatusBadGateway
		response = map[string]any{"error": err.Error(), "order": order}
	case domain.IsInputError(err):
		release()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	default:
		release()
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	body, err := json.Marshal(response)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if idemKey != "" {
		stored := ports.StoredResponse{StatusCode: status, Body: body, OrderID: order.ID}
		if err := h.service.SaveIdempotentResponse(ctx, idemKey, stored); err != nil {
			h.logger.WarnContext(ctx, "failed to store checkout response", "order_id", order.ID, "error", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// replayCheckout answers a submission whose key is already taken: with the
// stored response, or 409 while the first checkout is still running.
func (h *Handler) replayCheckout(w http.ResponseWriter, r *http.Request, key string) {
	stored, err := h.service.GetIdempotentResponse(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if stored == nil || stored.InFlight() {
		writeError(w, http.StatusConflict, "checkout with this idempotency key is already in progress")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(stored.StatusCode)
	_, _ = w.Write(stored.Body)
}

func (h *Handler) retryPayment(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.RetryPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ports.ErrGatewayUnavailable) && res.Order != nil {
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":       err.Error(),
				"order":       res.Order,
				"transaction": res.Transaction,
			})
			return
		}
		writeServiceError(w, err)
		return
	}

	if res.Transaction == nil {
		writeJSON(w, http.StatusOK, map[string]any{"order": res.Order, "view": viewSuccess})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"transaction": res.Transaction,
		"order":       res.Order,
		"view":        viewPaymentPending,
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order, "view": viewFor(order)})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query := queries.ListOrdersQuery{
		CustomerID:    params.Get("customer_id"),
		PaymentStatus: params.Get("payment_status"),
	}

	var err error
	if query.Page, err = intParam(params.Get("page")); err != nil {
		writeError(w, http.StatusBadRequest, "page must be an integer")
		return
	}
	if query.PageSize, err = intParam(params.Get("page_size")); err != nil {
		writeError(w, http.StatusBadRequest, "page_size must be an integer")
		return
	}

	orders, err := h.service.ListOrders(r.Context(), query)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

type fulfillmentRequest struct {
	Status string `json:"status"`
}

func (h *Handler) updateFulfillment(w http.ResponseWriter, r *http.Request) {
	var payload fulfillmentRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	order, err := h.service.UpdateFulfillment(r.Context(), chi.URLParam(r, "id"), domain.FulfillmentStatus(payload.Status))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

type callbackRequest struct {
	ExternalID             string `json:"externalId"`
	Status                 string `json:"status"`
	ProviderReference      string `json:"providerReference"`
	FinancialTransactionID string `json:"financialTransactionId"`
	Reason                 string `json:"reason"`
}

// paymentCallback always answers 200 so the provider does not keep
// redelivering; anything it cannot act on is logged.
func (h *Handler) paymentCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ack := map[string]any{"received": true}

	var payload callbackRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.WarnContext(ctx, "discarding unreadable payment callback", "error", err)
		writeJSON(w, http.StatusOK, ack)
		return
	}

	status := momo.ParseStatus(payload.Status)
	if !status.IsTerminal() {
		h.logger.InfoContext(ctx, "ignoring non-terminal payment callback",
			"external_id", payload.ExternalID,
			"status", payload.Status,
		)
		writeJSON(w, http.StatusOK, ack)
		return
	}

	reference := payload.ProviderReference
	if reference == "" {
		reference = payload.FinancialTransactionID
	}

	// Failures are logged by the command; the provider always gets an ack.
	_, _ = h.service.ApplyOutcome(ctx, commands.ApplyOutcomeCommand{
		ExternalID:        payload.ExternalID,
		Status:            status,
		ProviderReference: reference,
		Reason:            payload.Reason,
		Source:            commands.SourceCallback,
	})
	writeJSON(w, http.StatusOK, ack)
}

func viewFor(order *domain.Order) string {
	if order.PaymentMethod == domain.PaymentPrepaid && !order.IsPaid() {
		return viewPaymentPending
	}
	return viewSuccess
}

func intParam(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ports.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case domain.IsInputError(err), errors.Is(err, queries.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotPrepaid), errors.Is(err, domain.ErrFulfillmentTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
