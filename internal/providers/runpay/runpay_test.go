package runpay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covacitrees/oms/internal/providers"
	"github.com/covacitrees/oms/internal/service/errs"
)

func TestInitiateCreatesInvoice(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/invoices", r.URL.Path)
		assert.Equal(t, "api-key", r.Header.Get("X-Api-Key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "merchant-1", body["merchant_id"])
		assert.Equal(t, "rp-ORD-202609-0001", body["external_id"])
		assert.Equal(t, float64(10000), body["amount"])
		assert.Equal(t, "MDL", body["currency"])

		json.NewEncoder(w).Encode(map[string]any{
			"invoice_id": "RP-42",
			"pay_url":    "https://runpay.test/pay/RP-42",
			"status":     "created",
		})
	}))
	t.Cleanup(srv.Close)

	adapter := NewAdapter(Config{
		BaseURL:    srv.URL,
		APIKey:     "api-key",
		MerchantID: "merchant-1",
	}, srv.Client())

	res, err := adapter.Initiate(context.Background(), providers.InitiateRequest{
		OrderNumber:   "ORD-202609-0001",
		AmountCents:   10000,
		Currency:      "MDL",
		CustomerEmail: "buyer@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "RP-42", res.ProviderTransactionID)
	assert.Equal(t, "https://runpay.test/pay/RP-42", res.RedirectURL)
}

func TestInitiateGatewayError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	adapter := NewAdapter(Config{BaseURL: srv.URL, APIKey: "api-key", MerchantID: "merchant-1"}, srv.Client())

	_, err := adapter.Initiate(context.Background(), providers.InitiateRequest{
		OrderNumber: "ORD-202609-0001",
		AmountCents: 10000,
		Currency:    "MDL",
	})
	var provErr *errs.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "runpay", provErr.Provider)
}

func TestCaptureMapsInvoiceStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status string
		want   providers.Outcome
	}{
		{name: "paid invoice completes", status: "paid", want: providers.OutcomeSucceeded},
		{name: "created invoice stays pending", status: "created", want: providers.OutcomePending},
		{name: "pending invoice stays pending", status: "pending", want: providers.OutcomePending},
		{name: "expired invoice fails", status: "expired", want: providers.OutcomeFailed},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/invoices/RP-42", r.URL.Path)
				json.NewEncoder(w).Encode(map[string]any{
					"invoice_id": "RP-42",
					"status":     tc.status,
					"amount":     10000,
				})
			}))
			t.Cleanup(srv.Close)

			adapter := NewAdapter(Config{BaseURL: srv.URL, APIKey: "api-key"}, srv.Client())

			res, err := adapter.Capture(context.Background(), "RP-42")
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Status)
			assert.Equal(t, int64(10000), res.AmountCents)
		})
	}
}

func TestVerifyCallback(t *testing.T) {
	t.Parallel()

	adapter := NewAdapter(Config{APIKey: "api-key"}, nil)
	body := []byte(`{"invoice_id":"RP-42","status":"paid","amount":10000}`)

	t.Run("valid signature", func(t *testing.T) {
		headers := http.Header{}
		headers.Set(SignatureHeader, providers.SignHex([]byte("api-key"), body))

		res, err := adapter.VerifyCallback(body, headers)
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Equal(t, "RP-42", res.ProviderTransactionID)
		assert.Equal(t, providers.OutcomeSucceeded, res.Status)
	})

	t.Run("wrong key", func(t *testing.T) {
		headers := http.Header{}
		headers.Set(SignatureHeader, providers.SignHex([]byte("other-key"), body))

		res, err := adapter.VerifyCallback(body, headers)
		require.NoError(t, err)
		assert.False(t, res.Valid)
	})

	t.Run("missing signature", func(t *testing.T) {
		res, err := adapter.VerifyCallback(body, http.Header{})
		require.NoError(t, err)
		assert.False(t, res.Valid)
	})

	t.Run("tampered body", func(t *testing.T) {
		headers := http.Header{}
		headers.Set(SignatureHeader, providers.SignHex([]byte("api-key"), body))
		tampered := []byte(`{"invoice_id":"RP-42","status":"paid","amount":99999}`)

		res, err := adapter.VerifyCallback(tampered, headers)
		require.NoError(t, err)
		assert.False(t, res.Valid)
	})
}
