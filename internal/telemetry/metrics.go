package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// InitMeterProvider initializes the Prometheus exporter and MeterProvider.
// It returns an http.Handler for the /metrics endpoint and a shutdown function.
func InitMeterProvider(serviceName, serviceVersion string) (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	return promhttp.Handler(), mp.Shutdown, nil
}

// CheckoutMetrics counts checkout attempts by outcome. A nil receiver is
// valid and records nothing, so tests can skip metric setup.
type CheckoutMetrics struct {
	attempts metric.Int64Counter
}

func NewCheckoutMetrics() (*CheckoutMetrics, error) {
	meter := otel.Meter("shopflow/checkout")

	attempts, err := meter.Int64Counter("shopflow.checkout.attempts",
		metric.WithDescription("Checkout attempts by outcome."),
	)
	if err != nil {
		return nil, err
	}

	return &CheckoutMetrics{attempts: attempts}, nil
}

func (m *CheckoutMetrics) RecordCheckout(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// WebhookMetrics counts webhook deliveries by event type and result
// (applied, duplicate, rejected, retryable, ignored).
type WebhookMetrics struct {
	deliveries metric.Int64Counter
}

func NewWebhookMetrics() (*WebhookMetrics, error) {
	meter := otel.Meter("shopflow/webhook")

	deliveries, err := meter.Int64Counter("shopflow.webhook.deliveries",
		metric.WithDescription("Payment webhook deliveries by type and result."),
	)
	if err != nil {
		return nil, err
	}

	return &WebhookMetrics{deliveries: deliveries}, nil
}

func (m *WebhookMetrics) RecordDelivery(ctx context.Context, eventType, result string) {
	if m == nil {
		return
	}
	m.deliveries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("result", result),
	))
}
