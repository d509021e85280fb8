package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, defaultHTTPPort, cfg.HTTP.Port)
	assert.Equal(t, "storefront-api", cfg.Service.Name)
	assert.Contains(t, cfg.Database.URL, "/storefront?")
	assert.Equal(t, "UGX", cfg.Momo.Currency)
	assert.Equal(t, 15*time.Second, cfg.Momo.RequestTimeout)
	assert.Equal(t, 5*time.Second, cfg.Momo.PollTimeout)
	assert.Equal(t, []string{"077", "078", "076"}, cfg.Checkout.PayerPrefixes)
	assert.Equal(t, []string{"Kampala", "Wakiso"}, cfg.Checkout.CashOnDeliveryDistricts)
	assert.Equal(t, 30*time.Second, cfg.Checkout.RecheckDelay)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_HTTP_PORT", "9090")
	t.Setenv("MOMO_CALLBACK_URL", "https://shop.example/payment-callback")
	t.Setenv("MOMO_POLL_TIMEOUT", "2s")
	t.Setenv("MOMO_RATE_LIMIT_RPS", "12.5")
	t.Setenv("CHECKOUT_COD_DISTRICTS", " Kampala , ,Mukono")
	t.Setenv("CHECKOUT_SWEEP_INTERVAL", "1m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "https://shop.example/payment-callback", cfg.Momo.CallbackURL)
	assert.Equal(t, 2*time.Second, cfg.Momo.PollTimeout)
	assert.InDelta(t, 12.5, cfg.Momo.RateLimit, 0.001)
	assert.Equal(t, []string{"Kampala", "Mukono"}, cfg.Checkout.CashOnDeliveryDistricts)
	assert.Equal(t, time.Minute, cfg.Checkout.SweepInterval)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port", "API_HTTP_PORT", "eighty"},
		{"sample rate", "OTEL_SAMPLE_RATE", "all"},
		{"request timeout", "MOMO_REQUEST_TIMEOUT", "15"},
		{"recheck delay", "CHECKOUT_RECHECK_DELAY", "soon"},
		{"batch size", "CHECKOUT_SWEEP_BATCH_SIZE", "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.ErrorContains(t, err, tt.key)
		})
	}
}
