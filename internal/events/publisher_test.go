package events

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/shopspring/decimal"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	publisher := NewLogPublisher(slog.New(slog.NewJSONHandler(&buf, nil)))
	ctx := context.Background()

	order := domain.Order{
		ID:                    "order-1",
		CustomerID:            "customer-1",
		PaymentMethod:         domain.PaymentPrepaid,
		Total:                 decimal.NewFromInt(50000),
		Currency:              "UGX",
		SettledTransactionRef: "ext-1",
		ProviderReference:     "TX123",
	}

	if err := publisher.PublishOrderPlaced(ctx, order); err != nil {
		t.Fatalf("PublishOrderPlaced() error = %v", err)
	}
	if err := publisher.PublishPaymentSettled(ctx, order); err != nil {
		t.Fatalf("PublishPaymentSettled() error = %v", err)
	}
	if err := publisher.PublishPaymentFailed(ctx, order, "PAYER_NOT_FOUND"); err != nil {
		t.Fatalf("PublishPaymentFailed() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 log lines, got %d", len(lines))
	}

	wantMsgs := []string{"event::" + TypeOrderPlaced, "event::" + TypePaymentSettled, "event::" + TypePaymentFailed}
	for i, line := range lines {
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			t.Fatalf("line %d is not JSON: %v", i, err)
		}
		if record["msg"] != wantMsgs[i] {
			t.Errorf("line %d: expected msg %q, got %v", i, wantMsgs[i], record["msg"])
		}
		if record["order_id"] != "order-1" {
			t.Errorf("line %d: expected order_id, got %v", i, record["order_id"])
		}
	}
}

func TestRecordPublish(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}

	ctx := context.Background()
	metrics.RecordPublish(ctx, TypeOrderPlaced, 0.01, true)
	metrics.RecordPublish(ctx, TypePaymentFailed, 0.02, false)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Failed to collect metrics: %v", err)
	}

	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "order_event_publish_latency_seconds" {
				continue
			}
			found = true
			histogram, ok := m.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatal("Expected Histogram[float64] data type")
			}
			if len(histogram.DataPoints) != 2 {
				t.Errorf("Expected 2 data points, got %d", len(histogram.DataPoints))
			}
		}
	}
	if !found {
		t.Error("order_event_publish_latency_seconds metric not found")
	}
}
