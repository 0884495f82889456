package createorder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covacitrees/oms/internal/service/models/order"
	"github.com/covacitrees/oms/internal/service/services/ordersvc"
)

type fakeService struct {
	got *ordersvc.CreateOrderModel
	res *order.Order
	err error
}

func (f *fakeService) CreateOrder(_ context.Context, model ordersvc.CreateOrderModel) (*order.Order, error) {
	f.got = &model

	return f.res, f.err
}

func serve(svc service, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body))
	CreateOrder(rec, req, svc)

	return rec
}

const validBody = `{
	"customer": {"guestName": "Ana Popescu", "guestEmail": "ana@example.md"},
	"items": [{"productId": "tree-thuja", "title": "Thuja occidentalis", "quantity": 2, "unitPriceCents": 5000}],
	"totalCents": 10000,
	"currency": "MDL",
	"shippingAddress": "str. Stefan cel Mare 1, Chisinau"
}`

func TestCreateOrder(t *testing.T) {
	t.Parallel()

	svc := &fakeService{res: &order.Order{ID: "ord-1", OrderNumber: "ORD-202609-0001"}}

	rec := serve(svc, validBody)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.got)
	assert.Equal(t, int64(10000), svc.got.TotalCents)
	assert.Equal(t, "ana@example.md", svc.got.Customer.GuestEmail)
	require.Len(t, svc.got.Items, 1)
	assert.Equal(t, 2, svc.got.Items[0].Quantity)
	assert.Contains(t, rec.Body.String(), "ORD-202609-0001")
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"items":`},
		{name: "no items", body: `{"customer":{"guestEmail":"a@b.md"},"items":[],"totalCents":1,"currency":"MDL","shippingAddress":"x"}`},
		{name: "unknown currency", body: strings.Replace(validBody, `"MDL"`, `"GBP"`, 1)},
		{name: "invalid email", body: strings.Replace(validBody, "ana@example.md", "not-an-email", 1)},
		{name: "negative total", body: strings.Replace(validBody, `"totalCents": 10000`, `"totalCents": -1`, 1)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &fakeService{}
			rec := serve(svc, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Nil(t, svc.got, "the service must not be reached")
		})
	}
}

func TestCreateOrderZeroTotal(t *testing.T) {
	t.Parallel()

	svc := &fakeService{res: &order.Order{ID: "ord-2", OrderNumber: "ORD-202609-0002"}}

	body := `{
		"customer": {"guestName": "Ana Popescu", "guestEmail": "ana@example.md"},
		"items": [{"productId": "sapling-gift", "title": "Promotional sapling", "quantity": 1, "unitPriceCents": 0}],
		"totalCents": 0,
		"currency": "MDL",
		"shippingAddress": "str. Stefan cel Mare 1, Chisinau"
	}`
	rec := serve(svc, body)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.got)
	assert.Equal(t, int64(0), svc.got.TotalCents)
}
