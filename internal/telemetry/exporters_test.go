package telemetry

import (
	"context"
	"sync/atomic"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// countingMetricExporter records how many times the reader pushed data.
type countingMetricExporter struct {
	exports  atomic.Int64
	shutdown atomic.Bool
}

func (e *countingMetricExporter) Temporality(sdkmetric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

func (e *countingMetricExporter) Aggregation(sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.AggregationDefault{}
}

func (e *countingMetricExporter) Export(context.Context, *metricdata.ResourceMetrics) error {
	e.exports.Add(1)
	return nil
}

func (e *countingMetricExporter) ForceFlush(context.Context) error { return nil }

func (e *countingMetricExporter) Shutdown(context.Context) error {
	e.shutdown.Store(true)
	return nil
}
