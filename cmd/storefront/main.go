package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/joao-fontenele/shopflow/internal/catalog"
	"github.com/joao-fontenele/shopflow/internal/checkout"
	"github.com/joao-fontenele/shopflow/internal/messaging"
	"github.com/joao-fontenele/shopflow/internal/orders"
	"github.com/joao-fontenele/shopflow/internal/payment"
	"github.com/joao-fontenele/shopflow/internal/telemetry"
	"github.com/joao-fontenele/shopflow/internal/webhook"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	paymentProviderURL := os.Getenv("PAYMENT_PROVIDER_URL")
	if paymentProviderURL == "" {
		logger.Error("PAYMENT_PROVIDER_URL environment variable is required")
		os.Exit(1)
	}
	paymentAPIKey := os.Getenv("PAYMENT_API_KEY")
	if paymentAPIKey == "" {
		logger.Error("PAYMENT_API_KEY environment variable is required")
		os.Exit(1)
	}
	webhookSecret := os.Getenv("PAYMENT_WEBHOOK_SECRET")
	if webhookSecret == "" {
		logger.Error("PAYMENT_WEBHOOK_SECRET environment variable is required")
		os.Exit(1)
	}

	pricing, err := pricingFromEnv()
	if err != nil {
		logger.Error("invalid pricing configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "storefront", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("storefront", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	if err := runtime.Start(); err != nil {
		logger.Error("failed to start runtime instrumentation", "error", err)
		os.Exit(1)
	}

	// search_path goes in the DSN so every pooled connection picks it up.
	db, err := telemetry.OpenDB("postgres", withSearchPath(postgresURL))
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var producer *messaging.Producer
	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers != "" {
		brokers := strings.Split(kafkaBrokers, ",")
		producer = messaging.NewProducer(brokers, "order.settled")
		defer func() { _ = producer.Close() }()
	}

	checkoutMetrics, err := telemetry.NewCheckoutMetrics()
	if err != nil {
		logger.Error("failed to create checkout metrics", "error", err)
		os.Exit(1)
	}
	webhookMetrics, err := telemetry.NewWebhookMetrics()
	if err != nil {
		logger.Error("failed to create webhook metrics", "error", err)
		os.Exit(1)
	}

	gatewayClient := payment.NewClient(paymentProviderURL, paymentAPIKey, webhookSecret, &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})

	catalogRepo := catalog.NewRepository(db)
	orderRepo := orders.NewOrderRepository(db)

	checkoutService := checkout.NewService(catalogRepo, orderRepo, gatewayClient, pricing, logger)
	checkoutHandler := checkout.NewHandler(checkoutService, checkoutMetrics, logger)
	orderHandler := orders.NewHandler(orderRepo, logger)

	var publisher webhook.EventPublisher
	if producer != nil {
		publisher = producer
	}
	webhookHandler := webhook.NewHandler(orderRepo, gatewayClient, publisher, webhookMetrics, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /checkout", checkoutHandler.HandleCheckout)
	mux.HandleFunc("GET /orders", orderHandler.HandleList)
	mux.HandleFunc("GET /orders/{id}", orderHandler.HandleGet)
	mux.HandleFunc("PATCH /orders/{id}/status", orderHandler.HandleUpdateStatus)
	mux.HandleFunc("POST /webhooks/payment", webhookHandler.HandleWebhook)
	mux.Handle("GET /metrics", metricsHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting storefront service", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func withSearchPath(connStr string) string {
	if strings.Contains(connStr, "?") {
		return connStr + "&search_path=storefront"
	}
	return connStr + "?search_path=storefront"
}

func pricingFromEnv() (checkout.Pricing, error) {
	pricing := checkout.Pricing{
		TaxRate:               decimal.NewFromFloat(0.08),
		FreeShippingThreshold: 10000,
		FlatShippingFee:       500,
		Currency:              "usd",
	}

	if v := os.Getenv("TAX_RATE"); v != "" {
		rate, err := decimal.NewFromString(v)
		if err != nil {
			return pricing, err
		}
		pricing.TaxRate = rate
	}
	if v := os.Getenv("FREE_SHIPPING_THRESHOLD"); v != "" {
		threshold, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return pricing, err
		}
		pricing.FreeShippingThreshold = threshold
	}
	if v := os.Getenv("FLAT_SHIPPING_FEE"); v != "" {
		fee, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return pricing, err
		}
		pricing.FlatShippingFee = fee
	}
	if v := os.Getenv("CURRENCY"); v != "" {
		pricing.Currency = v
	}

	return pricing, nil
}
