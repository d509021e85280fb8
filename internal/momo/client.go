package momo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	headerSubscriptionKey = "Ocp-Apim-Subscription-Key"
	headerReferenceID     = "X-Reference-Id"
	headerTargetEnv       = "X-Target-Environment"
	headerCallbackURL     = "X-Callback-Url"

	tokenPath        = "/collection/token/"
	requestToPayPath = "/collection/v1_0/requesttopay"

	maxErrorBody = 4 << 10
)

// Config holds the collection API credentials and call limits.
type Config struct {
	BaseURL           string
	SubscriptionKey   string
	APIUser           string
	APIKey            string
	TargetEnvironment string
	RequestTimeout    time.Duration
	PollTimeout       time.Duration
	TokenTTL          time.Duration
	RateLimit         float64
	RateBurst         int
}

func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("momo base url is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid momo base url: %w", err)
	}
	if c.SubscriptionKey == "" || c.APIUser == "" || c.APIKey == "" {
		return errors.New("momo subscription key, api user and api key are required")
	}
	if c.TargetEnvironment == "" {
		return errors.New("momo target environment is required")
	}
	return nil
}

// GatewayError is a non-2xx answer from the provider.
type GatewayError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("momo %s: unexpected status %d: %s", e.Operation, e.StatusCode, e.Body)
}

func (e *GatewayError) Unwrap() error {
	return ports.ErrGatewayUnavailable
}

// Client talks to the MTN MoMo collection API. It holds no per-payment state;
// the only thing it caches is the access token.
type Client struct {
	cfg     Config
	http    *http.Client
	tokens  *TokenCache
	limiter *rate.Limiter
	metrics *Metrics
	logger  *slog.Logger
}

type Option func(*Client)

// WithHTTPClient swaps the instrumented default client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.http = client
	}
}

// WithTokenCache replaces the cache built from the client's own token endpoint.
func WithTokenCache(tokens *TokenCache) Option {
	return func(c *Client) {
		c.tokens = tokens
	}
}

func NewClient(cfg Config, logger *slog.Logger, metrics *Metrics, opts ...Option) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: rate.NewLimiter(limit, burst),
		metrics: metrics,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tokens == nil {
		c.tokens = NewTokenCache(c.fetchToken, cfg.TokenTTL)
	}
	return c
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *Client) fetchToken(ctx context.Context) (token string, err error) {
	defer func() {
		c.metrics.RecordTokenFetch(ctx, err == nil)
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+tokenPath, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.APIUser, c.cfg.APIKey)
	req.Header.Set(headerSubscriptionKey, c.cfg.SubscriptionKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: fetch token: %w", ports.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", newGatewayError("token", resp)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode token response: %w", ports.ErrGatewayUnavailable, err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("%w: token response without access_token", ports.ErrGatewayUnavailable)
	}

	c.logger.DebugContext(ctx, "momo access token refreshed", "expires_in", body.ExpiresIn)
	return body.AccessToken, nil
}

type payer struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

type requestToPayBody struct {
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	ExternalID   string `json:"externalId"`
	Payer        payer  `json:"payer"`
	PayerMessage string `json:"payerMessage"`
	PayeeNote    string `json:"payeeNote"`
}

// RequestToPay asks the provider to collect req.Amount from the payer. A nil
// error only means the request was accepted; the outcome comes later.
func (c *Client) RequestToPay(ctx context.Context, req ports.PaymentRequest) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordRequest(ctx, "request_to_pay", time.Since(start).Seconds(), err == nil)
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %w", ports.ErrGatewayUnavailable, err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(requestToPayBody{
		Amount:       req.Amount.String(),
		Currency:     req.Currency,
		ExternalID:   req.ExternalID,
		Payer:        payer{PartyIDType: "MSISDN", PartyID: req.PayerHandle},
		PayerMessage: req.PayerMessage,
		PayeeNote:    req.PayeeNote,
	})
	if err != nil {
		return fmt.Errorf("encode request to pay: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+requestToPayPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request to pay: %w", err)
	}
	c.authorize(httpReq, token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(headerReferenceID, req.ExternalID)
	if req.CallbackURL != "" {
		httpReq.Header.Set(headerCallbackURL, req.CallbackURL)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: request to pay: %w", ports.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newGatewayError("request_to_pay", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type statusResponse struct {
	Status                 string `json:"status"`
	FinancialTransactionID string `json:"financialTransactionId"`
	ExternalID             string `json:"externalId"`
	Reason                 reason `json:"reason"`
}

// reason is sent either as a bare code or as {"code", "message"}.
type reason string

func (r *reason) UnmarshalJSON(data []byte) error {
	var code string
	if err := json.Unmarshal(data, &code); err == nil {
		*r = reason(code)
		return nil
	}
	var obj struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*r = reason(obj.Code)
	if obj.Code == "" {
		*r = reason(obj.Message)
	}
	return nil
}

// PollStatus reads the provider's current view of one request.
func (c *Client) PollStatus(ctx context.Context, externalID string) (report ports.PaymentStatusReport, err error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordRequest(ctx, "poll_status", time.Since(start).Seconds(), err == nil)
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return ports.PaymentStatusReport{}, fmt.Errorf("%w: rate limiter: %w", ports.ErrGatewayUnavailable, err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return ports.PaymentStatusReport{}, err
	}

	endpoint := c.cfg.BaseURL + requestToPayPath + "/" + url.PathEscape(externalID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return ports.PaymentStatusReport{}, fmt.Errorf("build status request: %w", err)
	}
	c.authorize(httpReq, token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return ports.PaymentStatusReport{}, fmt.Errorf("%w: poll status: %w", ports.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate()
	}
	if resp.StatusCode != http.StatusOK {
		return ports.PaymentStatusReport{}, newGatewayError("poll_status", resp)
	}

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ports.PaymentStatusReport{}, fmt.Errorf("%w: decode status response: %w", ports.ErrGatewayUnavailable, err)
	}

	return ports.PaymentStatusReport{
		Status:            ParseStatus(body.Status),
		ProviderReference: body.FinancialTransactionID,
		Reason:            string(body.Reason),
	}, nil
}

// ParseStatus maps provider status strings onto transaction statuses. Anything
// the provider has not finalised reads as pending.
func ParseStatus(status string) domain.TransactionStatus {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "SUCCESSFUL", "SUCCESS":
		return domain.TransactionSuccessful
	case "FAILED", "REJECTED", "TIMEOUT", "EXPIRED":
		return domain.TransactionFailed
	default:
		return domain.TransactionPending
	}
}

func (c *Client) authorize(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(headerSubscriptionKey, c.cfg.SubscriptionKey)
	req.Header.Set(headerTargetEnv, c.cfg.TargetEnvironment)
}

func newGatewayError(operation string, resp *http.Response) *GatewayError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &GatewayError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}
