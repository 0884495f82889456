package app

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/covacitrees/oms/internal/dal/postgres"
	"github.com/covacitrees/oms/internal/dal/rabbitmq"
	"github.com/covacitrees/oms/internal/dal/uow"
	"github.com/covacitrees/oms/internal/otel"
	"github.com/covacitrees/oms/internal/providers"
	"github.com/covacitrees/oms/internal/providers/banktransfer"
	"github.com/covacitrees/oms/internal/providers/card"
	"github.com/covacitrees/oms/internal/providers/paynet"
	"github.com/covacitrees/oms/internal/providers/runpay"
	"github.com/covacitrees/oms/internal/providers/wallet"
	"github.com/covacitrees/oms/internal/service/services/invoicesvc"
	"github.com/covacitrees/oms/internal/service/services/ledgersvc"
	"github.com/covacitrees/oms/internal/service/services/ordersvc"
	"github.com/covacitrees/oms/internal/service/services/reconcilesvc"
	httptransport "github.com/covacitrees/oms/internal/transport/http"
	outboxworker "github.com/covacitrees/oms/internal/worker/outbox"
)

// App represents the application.
type App struct {
	orderSvc       *ordersvc.OrderService
	reconcileSvc   *reconcilesvc.ReconcileService
	invoiceSvc     *invoicesvc.InvoiceService
	transport      *httptransport.HTTPTransport
	outboxWorker   *outboxworker.Worker
	postgresClient *postgres.Client
	rabbitClient   *rabbitmq.Client
	otelController *otel.OtelController
}

// MustNewApp creates a new application.
func MustNewApp() *App {
	otelController := otel.MustInitOtel()
	postgresClient := postgres.MustNewClient()
	rabbitClient := rabbitmq.MustNewClient()

	registry := newProviderRegistry()

	invoiceSvc := invoicesvc.MustNewInvoiceService(
		invoicesvc.WithPostgresClient(postgresClient),
		invoicesvc.WithGenerator(invoicesvc.NewHTTPGenerator(
			viper.GetString("invoices.base_url"),
			nil,
		)),
	)

	orderSvc := ordersvc.MustNewOrderService(
		ordersvc.WithPostgresClient(postgresClient),
		ordersvc.WithInvoiceTrigger(invoiceSvc),
	)

	reconcileSvc := reconcilesvc.MustNewReconcileService(
		reconcilesvc.WithPostgresClient(postgresClient),
		reconcilesvc.WithRegistry(registry),
		reconcilesvc.WithLedger(ledgersvc.NewLedgerService()),
		reconcilesvc.WithOrderService(orderSvc),
	)

	outboxWorker := outboxworker.NewWorker(
		uow.NewUnitOfWork(postgresClient).OutboxRepository(),
		rabbitClient,
	)

	transport := httptransport.NewHTTPTransport(orderSvc, reconcileSvc)
	transport.RegisterRoutes()

	return &App{
		orderSvc:       orderSvc,
		reconcileSvc:   reconcileSvc,
		invoiceSvc:     invoiceSvc,
		transport:      transport,
		outboxWorker:   outboxWorker,
		postgresClient: postgresClient,
		rabbitClient:   rabbitClient,
		otelController: otelController,
	}
}

func newProviderRegistry() *providers.Registry {
	httpClient := &http.Client{Timeout: 15 * time.Second}

	return providers.NewRegistry(
		card.NewAdapter(card.Config{
			BaseURL:       viper.GetString("providers.card.base_url"),
			SecretKey:     os.Getenv("CARD_SECRET_KEY"),
			WebhookSecret: os.Getenv("CARD_WEBHOOK_SECRET"),
		}, httpClient),
		wallet.NewAdapter(wallet.Config{
			BaseURL:      viper.GetString("providers.wallet.base_url"),
			ClientID:     os.Getenv("WALLET_CLIENT_ID"),
			ClientSecret: os.Getenv("WALLET_CLIENT_SECRET"),
		}, httpClient),
		paynet.NewAdapter(paynet.Config{
			BaseURL:    viper.GetString("providers.paynet.base_url"),
			MerchantID: os.Getenv("PAYNET_MERCHANT_ID"),
			SecretKey:  os.Getenv("PAYNET_SECRET_KEY"),
		}, httpClient),
		runpay.NewAdapter(runpay.Config{
			BaseURL:    viper.GetString("providers.runpay.base_url"),
			APIKey:     os.Getenv("RUNPAY_API_KEY"),
			MerchantID: os.Getenv("RUNPAY_MERCHANT_ID"),
		}, httpClient),
		banktransfer.NewAdapter(banktransfer.Config{
			Beneficiary: viper.GetString("providers.bank_transfer.beneficiary"),
			IBAN:        viper.GetString("providers.bank_transfer.iban"),
			Bank:        viper.GetString("providers.bank_transfer.bank"),
		}),
	)
}

// Run starts the application.
// Tracks interrupt signal to gracefully shut down the application.
func (a *App) Run() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	go a.outboxWorker.Start(workerCtx)

	go func() {
		slog.Info("Starting HTTP server")
		if err := a.transport.Run(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	<-stop
	slog.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.transport.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped gracefully")
	}

	cancelWorker()
	a.invoiceSvc.Wait()

	if err := a.rabbitClient.Close(); err != nil {
		slog.Error("RabbitMQ connection close error", "error", err)
	} else {
		slog.Info("RabbitMQ connection closed gracefully")
	}

	a.postgresClient.Close()
	slog.Info("Database connection closed gracefully")

	if err := a.otelController.Shutdown(); err != nil {
		slog.Error("Trace provider shutdown error", "error", err)
	}

	slog.Info("Application shutdown complete")
}
