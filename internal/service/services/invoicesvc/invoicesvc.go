// Package invoicesvc generates invoices for freshly created orders. It runs
// strictly off the critical path: order creation succeeds whether or not the
// invoice backend is reachable.
package invoicesvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/covacitrees/oms/internal/dal/interfaces/iorderrepo"
	"github.com/covacitrees/oms/internal/dal/postgres"
	"github.com/covacitrees/oms/internal/dal/uow"
	"github.com/covacitrees/oms/internal/service/models/order"
)

// Document is the reference handed back by an invoice generator.
type Document struct {
	Number      string
	DocumentRef string
	FileName    string
}

// Generator renders an invoice document for an order.
type Generator interface {
	Generate(ctx context.Context, ord order.Order) (*Document, error)
}

type invoiceStore interface {
	OrderRepository() iorderrepo.IOrderRepository
}

// InvoiceService fans invoice generation out to a bounded worker group and
// records successful documents on the order.
type InvoiceService struct {
	generator Generator
	newStore  func() invoiceStore
	now       func() time.Time
	timeout   time.Duration

	group *errgroup.Group
}

// option is a function that configures the InvoiceService.
type option func(*InvoiceService)

// MustNewInvoiceService creates a new InvoiceService.
func MustNewInvoiceService(opts ...option) *InvoiceService {
	group := &errgroup.Group{}
	group.SetLimit(3)

	s := &InvoiceService{
		now:     time.Now,
		timeout: 30 * time.Second,
		group:   group,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.generator == nil {
		panic("invoicesvc: no generator configured")
	}
	if s.newStore == nil {
		panic("invoicesvc: no store configured")
	}

	return s
}

// WithGenerator sets the invoice document generator.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithGenerator(generator Generator) option {
	return func(s *InvoiceService) {
		s.generator = generator
	}
}

// WithPostgresClient sets the Postgres client for the InvoiceService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPostgresClient(pgClient *postgres.Client) option {
	return func(s *InvoiceService) {
		s.newStore = func() invoiceStore {
			return uow.NewUnitOfWork(pgClient)
		}
	}
}

// WithStoreFactory overrides the storage source, used by tests.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithStoreFactory(factory func() invoiceStore) option {
	return func(s *InvoiceService) {
		s.newStore = factory
	}
}

// WithTimeout bounds one generation attempt.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithTimeout(timeout time.Duration) option {
	return func(s *InvoiceService) {
		s.timeout = timeout
	}
}

// Trigger schedules invoice generation for the order and returns
// immediately. Failures are logged and never propagate to the caller.
func (s *InvoiceService) Trigger(ord order.Order) {
	s.group.Go(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := s.generate(ctx, ord); err != nil {
			slog.Error("invoice generation failed",
				"order_id", ord.ID,
				"order_number", ord.OrderNumber,
				"error", err.Error(),
			)
		}

		return nil
	})
}

// Wait blocks until all scheduled generations finished, used on shutdown.
func (s *InvoiceService) Wait() {
	_ = s.group.Wait()
}

func (s *InvoiceService) generate(ctx context.Context, ord order.Order) error {
	doc, err := s.generator.Generate(ctx, ord)
	if err != nil {
		return err
	}

	inv := order.Invoice{
		Number:      doc.Number,
		DocumentRef: doc.DocumentRef,
		SentAt:      s.now(),
		SentTo:      ord.Customer.Email(),
	}

	store := s.newStore()
	if err := store.OrderRepository().SetInvoice(ctx, ord.ID, inv); err != nil {
		return fmt.Errorf("failed to attach invoice %s: %w", doc.Number, err)
	}

	slog.Info("invoice generated",
		"order_id", ord.ID,
		"invoice_number", doc.Number,
	)

	return nil
}

// HTTPGenerator renders invoices through the external document service.
type HTTPGenerator struct {
	baseURL string
	client  *http.Client
}

// NewHTTPGenerator creates a generator backed by the document service at
// baseURL.
func NewHTTPGenerator(baseURL string, client *http.Client) *HTTPGenerator {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	return &HTTPGenerator{baseURL: baseURL, client: client}
}

type invoiceRequest struct {
	InvoiceNumber string            `json:"invoiceNumber"`
	OrderNumber   string            `json:"orderNumber"`
	CustomerEmail string            `json:"customerEmail,omitempty"`
	TotalCents    int64             `json:"totalCents"`
	Currency      string            `json:"currency"`
	Lines         []invoiceLineItem `json:"lines"`
}

type invoiceLineItem struct {
	Title          string `json:"title"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}

type invoiceResponse struct {
	DocumentRef string `json:"documentRef"`
	FileName    string `json:"fileName"`
}

// Generate renders the invoice document for the order.
func (g *HTTPGenerator) Generate(ctx context.Context, ord order.Order) (*Document, error) {
	number := "INV-" + ord.OrderNumber

	lines := make([]invoiceLineItem, len(ord.OrderItems))
	for i, item := range ord.OrderItems {
		lines[i] = invoiceLineItem{
			Title:          item.TitleSnapshot,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		}
	}

	body, err := json.Marshal(invoiceRequest{
		InvoiceNumber: number,
		OrderNumber:   ord.OrderNumber,
		CustomerEmail: ord.Customer.Email(),
		TotalCents:    ord.TotalCents,
		Currency:      ord.Currency.String(),
		Lines:         lines,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/invoices", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call invoice service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))

		return nil, fmt.Errorf("invoice service responded %d: %s", resp.StatusCode, payload)
	}

	var out invoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode invoice response: %w", err)
	}

	return &Document{Number: number, DocumentRef: out.DocumentRef, FileName: out.FileName}, nil
}
