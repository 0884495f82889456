package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/covacitrees/oms/internal/service/models/order"
	"github.com/covacitrees/oms/internal/service/models/payment"
	"github.com/covacitrees/oms/internal/service/services/ordersvc"
	"github.com/covacitrees/oms/internal/service/services/reconcilesvc"
	cancelorder "github.com/covacitrees/oms/internal/transport/http/cancel_order"
	capturepayment "github.com/covacitrees/oms/internal/transport/http/capture_payment"
	createorder "github.com/covacitrees/oms/internal/transport/http/create_order"
	initiatepayment "github.com/covacitrees/oms/internal/transport/http/initiate_payment"
	listorders "github.com/covacitrees/oms/internal/transport/http/list_orders"
	providerwebhook "github.com/covacitrees/oms/internal/transport/http/provider_webhook"
	refundpayment "github.com/covacitrees/oms/internal/transport/http/refund_payment"
	updatestatus "github.com/covacitrees/oms/internal/transport/http/update_status"
	"github.com/covacitrees/oms/pkg/http/middleware/trace"
	"github.com/covacitrees/oms/pkg/logger"
)

// orderService is the order lifecycle surface the transport exposes.
type orderService interface {
	CreateOrder(ctx context.Context, model ordersvc.CreateOrderModel) (*order.Order, error)
	GetOrders(ctx context.Context, model order.QueryOrdersModel) ([]order.Order, error)
	Cancel(ctx context.Context, orderID, reason string) (*order.Order, error)
	UpdateFulfillment(ctx context.Context, orderID string, target order.Status, note string) (*order.Order, error)
}

// reconcileService is the payment surface the transport exposes.
type reconcileService interface {
	InitiatePayment(ctx context.Context, orderID string, provider payment.Provider) (*reconcilesvc.InitiateOutcome, error)
	HandleCapture(ctx context.Context, provider payment.Provider, providerTransactionID string) (*reconcilesvc.Reconciled, error)
	HandleWebhook(ctx context.Context, provider payment.Provider, rawBody []byte, headers http.Header) (*reconcilesvc.Reconciled, error)
	RefundPayment(ctx context.Context, paymentID, reason string) (*reconcilesvc.Reconciled, error)
}

type HTTPTransport struct {
	server    *http.Server
	router    *chi.Mux
	orders    orderService
	reconcile reconcileService
}

func NewHTTPTransport(orders orderService, reconcile reconcileService) *HTTPTransport {
	router := newRouter()
	server := newServer(router)

	return &HTTPTransport{
		server:    server,
		router:    router,
		orders:    orders,
		reconcile: reconcile,
	}
}

func (h *HTTPTransport) Run() error {
	return h.server.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (h *HTTPTransport) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// RegisterRoutes registers the routes for the HTTPTransport.
func (h *HTTPTransport) RegisterRoutes() {
	h.router.Route("/api", func(r chi.Router) {
		r.Post("/orders", h.createOrder)
		r.Get("/orders", h.listOrders)
		r.Post("/orders/{id}/payments", h.initiatePayment)
		r.Post("/orders/{id}/cancel", h.cancelOrder)
		r.Patch("/orders/{id}/status", h.updateStatus)
		r.Post("/payments/{provider}/capture", h.capturePayment)
		r.Post("/refunds", h.refundPayment)
		r.Post("/webhooks/{provider}", h.providerWebhook)
	})
	h.router.Get("/swagger/*", httpSwagger.WrapHandler)
}

func (h *HTTPTransport) createOrder(w http.ResponseWriter, r *http.Request) {
	createorder.CreateOrder(w, r, h.orders)
}

func (h *HTTPTransport) listOrders(w http.ResponseWriter, r *http.Request) {
	listorders.ListOrders(w, r, h.orders)
}

func (h *HTTPTransport) initiatePayment(w http.ResponseWriter, r *http.Request) {
	initiatepayment.InitiatePayment(w, r, h.reconcile)
}

func (h *HTTPTransport) cancelOrder(w http.ResponseWriter, r *http.Request) {
	cancelorder.CancelOrder(w, r, h.orders)
}

func (h *HTTPTransport) updateStatus(w http.ResponseWriter, r *http.Request) {
	updatestatus.UpdateStatus(w, r, h.orders)
}

func (h *HTTPTransport) capturePayment(w http.ResponseWriter, r *http.Request) {
	capturepayment.CapturePayment(w, r, h.reconcile)
}

func (h *HTTPTransport) refundPayment(w http.ResponseWriter, r *http.Request) {
	refundpayment.RefundPayment(w, r, h.reconcile)
}

func (h *HTTPTransport) providerWebhook(w http.ResponseWriter, r *http.Request) {
	providerwebhook.HandleWebhook(w, r, h.reconcile)
}

func newRouter() *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(logger.NewLoggerMiddleware(slog.Default()))
	router.Use(trace.NewTraceMiddleware)

	allowedOrigins := viper.GetStringSlice("server.http.cors.allowed_origins")
	allowedMethods := viper.GetStringSlice("server.http.cors.allowed_methods")
	allowedHeaders := viper.GetStringSlice("server.http.cors.allowed_headers")
	exposedHeaders := viper.GetStringSlice("server.http.cors.exposed_headers")
	allowCredentials := viper.GetBool("server.http.cors.allow_credentials")
	maxAge := viper.GetInt("server.http.cors.max_age")

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   allowedMethods,
		AllowedHeaders:   allowedHeaders,
		ExposedHeaders:   exposedHeaders,
		AllowCredentials: allowCredentials,
		MaxAge:           maxAge,
	})

	router.Use(c.Handler)

	return router
}

func newServer(router http.Handler) *http.Server {
	return &http.Server{
		Addr:    "0.0.0.0:" + viper.GetString("server.http.port"),
		Handler: router,
	}
}
